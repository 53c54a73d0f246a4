package syscalls

import (
	"context"

	"github.com/evanphx/penguin/kernel"
	"github.com/evanphx/penguin/log"
)

// Invoker is the system call entry point of a kernel.
type Invoker struct {
	Kernel *kernel.Kernel
}

// Invoke runs the handler for args on behalf of the task in ctx, or the
// current process when ctx carries none. It returns the handler's result or
// a negative errno.
func (i *Invoker) Invoke(ctx context.Context, args SysArgs) int64 {
	f, err := Lookup(args.Index)
	if err != nil {
		log.L.Debug("unknown syscall", "index", args.Index)
		return errno(err)
	}

	task, ok := kernel.GetTask(ctx)
	if !ok {
		proc := i.Kernel.Current()
		if proc == nil {
			return errno(kernel.ErrNoCurrentProcess)
		}

		task = &kernel.Task{Process: proc}
		ctx = kernel.SetTask(ctx, task)
	}

	l := task.L.With("syscall", args.Index)

	ret, err := f(ctx, l, task, args)
	if err != nil {
		code, known := Errno(err)
		if !known {
			l.Error("syscall failed", "error", err)
		} else {
			l.Trace("syscall failed", "error", err, "errno", code)
		}

		return -code
	}

	return ret
}

func errno(err error) int64 {
	code, _ := Errno(err)
	return -code
}
