package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPeriod(t *testing.T) {
	// Wednesday
	start, end := DefaultPeriod(time.Date(2026, 10, 14, 15, 30, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2026, 10, 5, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, 10, 11, 0, 0, 0, 0, time.UTC), end)
	assert.Equal(t, time.Monday, start.Weekday())
	assert.Equal(t, time.Sunday, end.Weekday())

	// Monday itself still points at the previous week
	start, end = DefaultPeriod(time.Date(2026, 10, 12, 0, 0, 1, 0, time.UTC))
	assert.Equal(t, time.Date(2026, 10, 5, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, 10, 11, 0, 0, 0, 0, time.UTC), end)

	// Sunday
	start, _ = DefaultPeriod(time.Date(2026, 10, 18, 23, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2026, 10, 5, 0, 0, 0, 0, time.UTC), start)
}

func TestWindow(t *testing.T) {
	from, to, err := Window(
		time.Date(2026, 10, 5, 18, 0, 0, 0, time.UTC),
		time.Date(2026, 10, 11, 9, 0, 0, 0, time.UTC),
	)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 10, 5, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC), to)

	_, _, err = Window(time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC), time.Date(2026, 10, 5, 0, 0, 0, 0, time.UTC))
	assert.ErrorIs(t, err, ErrInvalidPeriod)

	// single day
	from, to, err = Window(time.Date(2026, 10, 5, 0, 0, 0, 0, time.UTC), time.Date(2026, 10, 5, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, to.Sub(from))
}
