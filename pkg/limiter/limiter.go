// Package limiter bounds the number of concurrent fetch attempts.
//
// The limiter is a fixed-capacity counting semaphore: at no instant can more
// than Capacity goroutines hold a slot. Acquire blocks until a slot frees or
// the context is done. Waiters are served in FIFO-ish channel order; no
// stronger fairness is guaranteed.
package limiter

import (
	"context"
	"fmt"
)

// Limiter is a fixed-capacity semaphore over in-flight fetch attempts.
type Limiter struct {
	slots chan struct{}
}

// New creates a limiter with the given capacity.
func New(capacity int) (*Limiter, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("limiter capacity must be positive (got %d)", capacity)
	}
	return &Limiter{
		slots: make(chan struct{}, capacity),
	}, nil
}

// Acquire blocks until a slot is available or ctx is done.
func (l *Limiter) Acquire(ctx context.Context) error {
	select {
	case l.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a previously acquired slot.
func (l *Limiter) Release() {
	select {
	case <-l.slots:
	default:
		panic("limiter: release without matching acquire")
	}
}

// Capacity returns the maximum number of concurrent holders.
func (l *Limiter) Capacity() int {
	return cap(l.slots)
}

// InFlight returns the number of currently held slots.
func (l *Limiter) InFlight() int {
	return len(l.slots)
}
