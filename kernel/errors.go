package kernel

import (
	"fmt"

	"github.com/evanphx/penguin/memory"
	"github.com/pkg/errors"
)

var (
	ErrBadDescriptor     = errors.New("bad file descriptor")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrRootFsUnpublished = errors.New("root filesystem not published")
	ErrInitExists        = errors.New("init process already exists")
	ErrNoSuchProcess     = errors.New("no such process")
	ErrNotZombie         = errors.New("process has not exited")
	ErrNoCurrentProcess  = errors.New("no current process")
	ErrArgumentsTooLarge = errors.New("argument list too long")
)

// ErrResourceExhausted is reported both for descriptor table exhaustion and
// for running out of physical memory.
var ErrResourceExhausted = memory.ErrResourceExhausted

// FatalError is the panic value used when the kernel cannot continue, such
// as a boot step failing or a process being created before the root
// filesystem is published. It is never returned to a caller.
type FatalError struct {
	Op  string
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("kernel panic: %s: %v", e.Op, e.Err)
}

func (e *FatalError) Cause() error {
	return e.Err
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

func halt(op string, err error) {
	panic(&FatalError{Op: op, Err: err})
}
