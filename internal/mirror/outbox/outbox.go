// Package outbox records that local ledger tables changed and need to be
// pushed to the mirror. Producers never block and never fail; a single
// worker drains the markers.
package outbox

import (
	"context"
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Marker is one "tables are dirty" notification.
type Marker struct {
	ID     string    `json:"id"`
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
}

type Outbox interface {
	// MarkDirty records a pending change. It must not block request handlers.
	MarkDirty(ctx context.Context, reason string)
	// Ready is signalled after MarkDirty. Signals coalesce.
	Ready() <-chan struct{}
	// Drain removes and returns every queued marker.
	Drain(ctx context.Context) ([]Marker, error)
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

func newMarker(reason string) Marker {
	now := time.Now().UTC()
	entropyMu.Lock()
	id := ulid.MustNew(ulid.Timestamp(now), entropy)
	entropyMu.Unlock()
	return Marker{ID: id.String(), Reason: reason, At: now}
}

// signal is a coalescing wake-up channel shared by the implementations.
type signal chan struct{}

func newSignal() signal { return make(signal, 1) }

func (s signal) notify() {
	select {
	case s <- struct{}{}:
	default:
	}
}

// Noop discards markers. It is used when mirroring is disabled.
type Noop struct{}

func (Noop) MarkDirty(context.Context, string)      {}
func (Noop) Ready() <-chan struct{}                  { return nil }
func (Noop) Drain(context.Context) ([]Marker, error) { return nil, nil }
