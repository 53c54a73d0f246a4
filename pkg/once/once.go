// Package once implements a value that is published exactly once and is
// immutable afterwards.
package once

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
)

var (
	ErrUninitialized      = errors.New("once: value read before initialization")
	ErrAlreadyInitialized = errors.New("once: value initialized twice")
)

type Value[T any] struct {
	mu    sync.Mutex
	ready atomic.Bool
	val   T
}

// Init publishes the value returned by f. Calling Init a second time is a
// contract violation and panics with ErrAlreadyInitialized.
func (o *Value[T]) Init(f func() T) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.ready.Load() {
		panic(ErrAlreadyInitialized)
	}

	o.val = f()
	o.ready.Store(true)
}

// TryGet returns the published value, or false if Init has not run.
func (o *Value[T]) TryGet() (T, bool) {
	if !o.ready.Load() {
		var zero T
		return zero, false
	}

	return o.val, true
}

// Get returns the published value and panics with ErrUninitialized when
// called before Init.
func (o *Value[T]) Get() T {
	v, ok := o.TryGet()
	if !ok {
		panic(ErrUninitialized)
	}

	return v
}

func (o *Value[T]) Initialized() bool {
	return o.ready.Load()
}
