//go:build windows
// +build windows

package cloudfiles

import (
	"sync"
	"time"
)

// CallbackGate serializes the kernel callback dispatcher against shutdown.
// It has two states, open and closed. While open, TryEnter admits callers
// and counts them inflight; Leave decrements the count. Close flips to
// closed atomically with respect to TryEnter and then waits (bounded) for
// the inflight count to reach zero. Once Close returns, TryEnter refuses
// forever until the next Open.
type CallbackGate struct {
	mu      sync.Mutex
	cond    *sync.Cond
	open    bool
	inflight int
}

// NewCallbackGate returns a gate in the open state.
func NewCallbackGate() *CallbackGate {
	g := &CallbackGate{open: true}
	g.cond = sync.NewCond(&g.mu)
	return g
}

// TryEnter admits a callback if the gate is open, incrementing the inflight
// counter. It returns false without side effects if the gate is closed.
func (g *CallbackGate) TryEnter() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.open {
		return false
	}
	g.inflight++
	return true
}

// Leave releases one inflight slot acquired by a successful TryEnter.
func (g *CallbackGate) Leave() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.inflight--
	if g.inflight <= 0 {
		g.cond.Broadcast()
	}
}

// Close flips the gate closed so that every subsequent TryEnter fails, then
// waits up to timeout for the inflight counter to drain to zero. It reports
// whether the drain completed before the timeout elapsed. Close is
// idempotent: calling it again while already closed just re-waits.
func (g *CallbackGate) Close(timeout time.Duration) bool {
	g.mu.Lock()
	g.open = false
	if g.inflight == 0 {
		g.mu.Unlock()
		return true
	}

	done := make(chan struct{})
	go func() {
		g.mu.Lock()
		for g.inflight > 0 {
			g.cond.Wait()
		}
		g.mu.Unlock()
		close(done)
	}()
	g.mu.Unlock()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Open reopens the gate for a fresh connect/reconnect cycle.
func (g *CallbackGate) Open() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.open = true
}

// IsOpen reports the current gate state.
func (g *CallbackGate) IsOpen() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.open
}

// Inflight reports the current inflight callback count, for diagnostics.
func (g *CallbackGate) Inflight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inflight
}
