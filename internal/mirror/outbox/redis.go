package outbox

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Redis keeps markers in a Redis list so several processes can share one
// mirror worker.
type Redis struct {
	client *redis.Client
	key    string
	log    *zap.Logger
	ready  signal
}

func NewRedis(client *redis.Client, key string, log *zap.Logger) *Redis {
	return &Redis{
		client: client,
		key:    key,
		log:    log.Named("mirror.outbox"),
		ready:  newSignal(),
	}
}

func (r *Redis) MarkDirty(ctx context.Context, reason string) {
	payload, err := json.Marshal(newMarker(reason))
	if err == nil {
		err = r.client.RPush(context.WithoutCancel(ctx), r.key, payload).Err()
	}
	if err != nil {
		r.log.Warn("failed to enqueue mirror marker", zap.String("reason", reason), zap.Error(err))
	}
	r.ready.notify()
}

func (r *Redis) Ready() <-chan struct{} { return r.ready }

// Drain reads and clears the list in one MULTI block.
func (r *Redis) Drain(ctx context.Context) ([]Marker, error) {
	var items *redis.StringSliceCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		items = pipe.LRange(ctx, r.key, 0, -1)
		pipe.Del(ctx, r.key)
		return nil
	})
	if err != nil {
		return nil, err
	}

	raw := items.Val()
	out := make([]Marker, 0, len(raw))
	for _, item := range raw {
		var m Marker
		if err := json.Unmarshal([]byte(item), &m); err != nil {
			r.log.Warn("skipping malformed mirror marker", zap.Error(err))
			continue
		}
		out = append(out, m)
	}
	return out, nil
}
