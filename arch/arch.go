// Package arch is the boundary to the machine: saved register state, the
// context switch and the wait-for-interrupt idle primitive.
package arch

import (
	"context"
	"sync"

	"github.com/evanphx/penguin/pkg/waiter"
)

// Context is the saved user execution state of a process.
type Context struct {
	IP uint64
	SP uint64

	// Argument registers in System V order: rdi, rsi, rdx, rcx, r8, r9.
	Args [6]uint64
}

type Arch interface {
	// Idle waits for the next interrupt, or for ctx to end.
	Idle(ctx context.Context)

	// SwitchContext saves the running state into from and resumes to.
	SwitchContext(from, to *Context)
}

const (
	_ waiter.EventType = 1 << iota
	Interrupt
)

// Host runs the kernel as an ordinary program. Interrupts are delivered by
// calling Interrupt; the running context is tracked but not executed.
type Host struct {
	mu       sync.Mutex
	events   waiter.Waiter
	current  *Context
	switches int
	idles    int
	pending  bool
}

func NewHost() *Host {
	return &Host{}
}

func (h *Host) Idle(ctx context.Context) {
	c := make(chan struct{}, 1)
	ev := h.events.RegisterChannel(Interrupt, c)
	defer h.events.Unregister(ev)

	h.mu.Lock()
	h.idles++
	if h.pending {
		h.pending = false
		h.mu.Unlock()
		return
	}
	h.mu.Unlock()

	select {
	case <-ctx.Done():
	case <-c:
		h.mu.Lock()
		h.pending = false
		h.mu.Unlock()
	}
}

// Interrupt wakes an idle kernel.
func (h *Host) Interrupt() {
	h.mu.Lock()
	h.pending = true
	h.mu.Unlock()

	h.events.Notify(Interrupt)
}

func (h *Host) SwitchContext(from, to *Context) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.switches++
	h.current = to
}

// Current is the context most recently switched to.
func (h *Host) Current() *Context {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.current
}

func (h *Host) Switches() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.switches
}

func (h *Host) Idles() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.idles
}
