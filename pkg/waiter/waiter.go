package waiter

import (
	"sync"

	"github.com/evanphx/penguin/log"
)

type EventType uint64

// Waiter fans event notifications out to registered listeners.
type Waiter struct {
	mu sync.RWMutex

	waiters []*Event
}

type Event struct {
	Mask     EventType
	Context  interface{}
	Callback func(e *Event)
}

func (w *Waiter) Register(e *Event) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.waiters = append(w.waiters, e)
}

func triggerChan(e *Event) {
	c := e.Context.(chan struct{})

	select {
	case c <- struct{}{}:
	default:
	}
}

// RegisterChannel arranges for a non-blocking send on c whenever an event
// in mask is notified. c should be buffered.
func (w *Waiter) RegisterChannel(mask EventType, c chan struct{}) *Event {
	e := &Event{
		Callback: triggerChan,
		Context:  c,
		Mask:     mask,
	}

	w.Register(e)

	return e
}

func (w *Waiter) Unregister(e *Event) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for i, cur := range w.waiters {
		if cur == e {
			w.waiters = append(w.waiters[:i], w.waiters[i+1:]...)
			return
		}
	}
}

func (w *Waiter) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return len(w.waiters)
}

func (w *Waiter) Notify(mask EventType) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	log.L.Trace("waiters-notify", "count", len(w.waiters))

	for _, e := range w.waiters {
		if mask&e.Mask != 0 {
			e.Callback(e)
		}
	}
}
