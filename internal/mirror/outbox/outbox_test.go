package outbox

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestChannelOutbox(t *testing.T) {
	ctx := context.Background()
	ob := NewChannel()

	ob.MarkDirty(ctx, "webhook")
	ob.MarkDirty(ctx, "checkout")

	select {
	case <-ob.Ready():
	default:
		t.Fatal("expected ready signal")
	}

	markers, err := ob.Drain(ctx)
	require.NoError(t, err)
	require.Len(t, markers, 2)
	assert.Equal(t, "webhook", markers[0].Reason)
	assert.Less(t, markers[0].ID, markers[1].ID)

	markers, err = ob.Drain(ctx)
	require.NoError(t, err)
	assert.Empty(t, markers)
}

func TestChannelOutboxBounded(t *testing.T) {
	ctx := context.Background()
	ob := NewChannel()
	for i := 0; i < maxQueued+10; i++ {
		ob.MarkDirty(ctx, "bulk")
	}
	markers, err := ob.Drain(ctx)
	require.NoError(t, err)
	assert.Len(t, markers, maxQueued)
}

func TestRedisOutbox(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	ob := NewRedis(client, "test:outbox", zap.NewNop())

	ob.MarkDirty(ctx, "approve")
	ob.MarkDirty(ctx, "payout")

	list, err := mr.List("test:outbox")
	require.NoError(t, err)
	assert.Len(t, list, 2)

	markers, err := ob.Drain(ctx)
	require.NoError(t, err)
	require.Len(t, markers, 2)
	assert.Equal(t, "approve", markers[0].Reason)
	assert.Equal(t, "payout", markers[1].Reason)
	assert.False(t, mr.Exists("test:outbox"))

	select {
	case <-ob.Ready():
	default:
		t.Fatal("expected ready signal")
	}
}

func TestRedisOutboxSkipsMalformed(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	_, err := mr.RPush("test:outbox", "not-json")
	require.NoError(t, err)

	ob := NewRedis(client, "test:outbox", zap.NewNop())
	ob.MarkDirty(context.Background(), "ok")

	markers, err := ob.Drain(context.Background())
	require.NoError(t, err)
	require.Len(t, markers, 1)
	assert.Equal(t, "ok", markers[0].Reason)
}
