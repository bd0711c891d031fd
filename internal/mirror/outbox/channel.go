package outbox

import (
	"context"
	"sync"
)

const maxQueued = 1024

// Channel keeps markers in process memory.
type Channel struct {
	mu      sync.Mutex
	pending []Marker
	ready   signal
}

func NewChannel() *Channel {
	return &Channel{ready: newSignal()}
}

func (c *Channel) MarkDirty(_ context.Context, reason string) {
	c.mu.Lock()
	// a full queue already guarantees a push
	if len(c.pending) < maxQueued {
		c.pending = append(c.pending, newMarker(reason))
	}
	c.mu.Unlock()
	c.ready.notify()
}

func (c *Channel) Ready() <-chan struct{} { return c.ready }

func (c *Channel) Drain(context.Context) ([]Marker, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.pending
	c.pending = nil
	return out, nil
}
