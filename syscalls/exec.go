package syscalls

import (
	"context"

	"github.com/evanphx/penguin/abi/linux"
	"github.com/evanphx/penguin/kernel"
	hclog "github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
)

// MaxArgs bounds the argv entries execve copies in.
const MaxArgs = 256

func readArgv(task *kernel.Task, ptr uint64) ([]string, error) {
	var argv []string

	if ptr == 0 {
		return nil, nil
	}

	for {
		if len(argv) >= MaxArgs {
			return nil, errors.Wrapf(kernel.ErrArgumentsTooLarge, "more than %d arguments", MaxArgs)
		}

		var sp uint64
		if err := task.CopyIn(ptr, &sp); err != nil {
			return nil, err
		}

		if sp == 0 {
			break
		}

		str, err := task.ReadCString(sp)
		if err != nil {
			return nil, err
		}

		argv = append(argv, str)
		ptr += 8
	}

	return argv, nil
}

func sysExecve(ctx context.Context, l hclog.Logger, task *kernel.Task, args SysArgs) (int64, error) {
	var (
		pathPtr = uint64(args.Args[0])
		argvPtr = uint64(args.Args[1])
	)

	path, err := task.ReadCString(pathPtr)
	if err != nil {
		return 0, err
	}

	argv, err := readArgv(task, argvPtr)
	if err != nil {
		return 0, err
	}

	l.Trace("execve", "path", path, "args", argv)

	if err := task.Exec(ctx, path, argv); err != nil {
		return 0, errors.Wrapf(err, "exec %s", path)
	}

	return 0, nil
}

func sysExit(ctx context.Context, l hclog.Logger, task *kernel.Task, args SysArgs) (int64, error) {
	code := int(args.Args[0] & 0xff)

	if err := task.Exit(code); err != nil {
		return 0, err
	}

	return 0, nil
}

func sysGetpid(ctx context.Context, l hclog.Logger, task *kernel.Task, args SysArgs) (int64, error) {
	return int64(task.Pid), nil
}

func sysSchedYield(ctx context.Context, l hclog.Logger, task *kernel.Task, args SysArgs) (int64, error) {
	if _, err := task.Yield(); err != nil {
		return 0, err
	}

	return 0, nil
}

func init() {
	Syscalls[linux.SYS_EXECVE] = sysExecve
	Syscalls[linux.SYS_EXIT] = sysExit
	Syscalls[linux.SYS_GETPID] = sysGetpid
	Syscalls[linux.SYS_SCHED_YIELD] = sysSchedYield
}
