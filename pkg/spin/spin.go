// Package spin provides a busy-wait lock and a guard that scopes access to
// the value it protects.
//
// A spin lock never yields to the scheduler while held. Critical sections
// must be short and must not try to reacquire the same lock.
package spin

import (
	"runtime"
	"sync/atomic"
)

// spinsBeforeYield bounds how long Lock spins before letting the Go runtime
// run something else. On a single P a pure spin would never observe the
// holder's release.
const spinsBeforeYield = 64

type Lock struct {
	held atomic.Bool
}

func (l *Lock) Lock() {
	for spins := 0; !l.held.CompareAndSwap(false, true); spins++ {
		if spins >= spinsBeforeYield {
			runtime.Gosched()
			spins = 0
		}
	}
}

func (l *Lock) TryLock() bool {
	return l.held.CompareAndSwap(false, true)
}

func (l *Lock) Unlock() {
	if !l.held.CompareAndSwap(true, false) {
		panic("spin: unlock of unlocked lock")
	}
}

func (l *Lock) Locked() bool {
	return l.held.Load()
}

// Guard owns a value that may only be touched inside Do.
type Guard[T any] struct {
	lock Lock
	val  *T
}

func NewGuard[T any](val *T) *Guard[T] {
	return &Guard[T]{val: val}
}

// Do runs f with exclusive access to the guarded value. The lock is released
// on every exit path of f, including a panic.
func (g *Guard[T]) Do(f func(v *T) error) error {
	g.lock.Lock()
	defer g.lock.Unlock()

	return f(g.val)
}

// Locked reports whether some caller is currently inside Do.
func (g *Guard[T]) Locked() bool {
	return g.lock.Locked()
}
