package syscalls

import (
	"context"

	"github.com/evanphx/penguin/kernel"
	hclog "github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
)

// SysArgs is one system call request: the call number and the six argument
// registers.
type SysArgs struct {
	Index int
	Args  [6]int64
}

// Handler implements one system call for task. A non-nil error is turned
// into a negative errno by the dispatcher.
type Handler func(ctx context.Context, l hclog.Logger, task *kernel.Task, args SysArgs) (int64, error)

// MaxSyscall bounds the table of handlers.
const MaxSyscall = 512

var Syscalls [MaxSyscall]Handler

var (
	ErrNoSuchSyscall   = errors.New("no such syscall")
	ErrInvalidArgument = errors.New("invalid argument")
)

// Lookup returns the handler registered for index.
func Lookup(index int) (Handler, error) {
	if index < 0 || index >= MaxSyscall || Syscalls[index] == nil {
		return nil, errors.Wrapf(ErrNoSuchSyscall, "syscall %d", index)
	}

	return Syscalls[index], nil
}
