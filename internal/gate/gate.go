// Package gate provides a binary gate: while open, Wait returns at once;
// while closed, Wait blocks until the gate is opened again or the context
// ends. Blocked waiters park on a channel and consume no CPU.
//
// The same primitive serves as a pause gate (toggled repeatedly) and as a
// one-shot start barrier (created closed, opened once).
package gate

import (
	"context"
	"sync"
)

// Gate is safe for concurrent use. The zero value is not usable; call New.
type Gate struct {
	mu   sync.Mutex
	ch   chan struct{} // closed while the gate is open
	open bool
}

// New returns a gate in the given initial state.
func New(open bool) *Gate {
	g := &Gate{ch: make(chan struct{})}
	if open {
		close(g.ch)
		g.open = true
	}
	return g
}

// Open releases every current and future waiter until Close is called.
func (g *Gate) Open() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.open {
		close(g.ch)
		g.open = true
	}
}

// Close makes subsequent waiters block. Goroutines already past Wait are
// not affected.
func (g *Gate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.open {
		g.ch = make(chan struct{})
		g.open = false
	}
}

// IsOpen reports the current state.
func (g *Gate) IsOpen() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.open
}

// Wait blocks until the gate is open or ctx is done, returning ctx.Err()
// in the latter case.
func (g *Gate) Wait(ctx context.Context) error {
	g.mu.Lock()
	ch := g.ch
	g.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done returns a channel that is closed while the gate is open. The channel
// is a snapshot: after Close, callers must call Done again.
func (g *Gate) Done() <-chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ch
}
