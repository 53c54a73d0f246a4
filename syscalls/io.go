package syscalls

import (
	"context"

	"golang.org/x/sys/unix"

	"github.com/evanphx/penguin/abi/linux"
	"github.com/evanphx/penguin/fs/devfs"
	"github.com/evanphx/penguin/kernel"
	hclog "github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
)

// MaxIO bounds the bytes moved by a single read or write.
const MaxIO = 1 << 20

func ioSize(sz int64) (int, error) {
	if sz < 0 {
		return 0, errors.Wrapf(ErrInvalidArgument, "negative count %d", sz)
	}

	if sz > MaxIO {
		sz = MaxIO
	}

	return int(sz), nil
}

func sysRead(ctx context.Context, l hclog.Logger, task *kernel.Task, args SysArgs) (int64, error) {
	var (
		fd  = kernel.Fd(args.Args[0])
		ptr = uint64(args.Args[1])
	)

	sz, err := ioSize(args.Args[2])
	if err != nil {
		return 0, err
	}

	f, _, err := task.Files.Get(fd)
	if err != nil {
		return 0, err
	}

	data := make([]byte, sz)

	n, err := f.Read(ctx, data)
	if err != nil {
		return 0, err
	}

	if _, err := task.WriteAt(data[:n], int64(ptr)); err != nil {
		return 0, errors.Wrapf(err, "copying read data to %#x", ptr)
	}

	return int64(n), nil
}

func sysWrite(ctx context.Context, l hclog.Logger, task *kernel.Task, args SysArgs) (int64, error) {
	var (
		fd  = kernel.Fd(args.Args[0])
		ptr = uint64(args.Args[1])
	)

	sz, err := ioSize(args.Args[2])
	if err != nil {
		return 0, err
	}

	f, opts, err := task.Files.Get(fd)
	if err != nil {
		return 0, err
	}

	data := make([]byte, sz)

	if _, err := task.ReadAt(data, int64(ptr)); err != nil {
		return 0, errors.Wrapf(err, "reading write data from %#x", ptr)
	}

	n, err := f.Write(ctx, data, opts.Append)
	if err != nil {
		return 0, err
	}

	return int64(n), nil
}

func sysClose(ctx context.Context, l hclog.Logger, task *kernel.Task, args SysArgs) (int64, error) {
	fd := kernel.Fd(args.Args[0])

	if err := task.Files.Close(fd); err != nil {
		if errors.Cause(err) == kernel.ErrBadDescriptor {
			return 0, err
		}

		// The descriptor is gone either way.
		l.Warn("error closing file", "fd", fd, "error", err)
	}

	return 0, nil
}

func sysDup(ctx context.Context, l hclog.Logger, task *kernel.Task, args SysArgs) (int64, error) {
	fd, err := task.Files.Dup(kernel.Fd(args.Args[0]), kernel.NewOpenOptions(false, false))
	if err != nil {
		return 0, err
	}

	return int64(fd), nil
}

func sysDup2(ctx context.Context, l hclog.Logger, task *kernel.Task, args SysArgs) (int64, error) {
	var (
		old = kernel.Fd(args.Args[0])
		new = kernel.Fd(args.Args[1])
	)

	fd, err := task.Files.Dup2(old, new, kernel.NewOpenOptions(false, false))
	if err != nil {
		return 0, err
	}

	l.Trace("dup2", "old", old, "new", new)

	return int64(fd), nil
}

func sysIoctl(ctx context.Context, l hclog.Logger, task *kernel.Task, args SysArgs) (int64, error) {
	var (
		fd  = kernel.Fd(args.Args[0])
		req = uint64(args.Args[1])
		ptr = uint64(args.Args[2])
	)

	f, _, err := task.Files.Get(fd)
	if err != nil {
		return 0, err
	}

	term, ok := f.Handle().(devfs.Terminal)
	if !ok {
		return 0, errors.Wrapf(devfs.ErrNotTTY, "fd %d", fd)
	}

	switch req {
	case unix.TIOCGWINSZ:
		ws, err := term.Winsize()
		if err != nil {
			return 0, err
		}

		if err := task.CopyOut(ptr, ws); err != nil {
			return 0, err
		}

		return 0, nil
	default:
		l.Debug("unsupported ioctl", "fd", fd, "request", hclog.Fmt("%#x", req))
		return 0, errors.Wrapf(devfs.ErrNotTTY, "ioctl %#x", req)
	}
}

func init() {
	Syscalls[linux.SYS_READ] = sysRead
	Syscalls[linux.SYS_WRITE] = sysWrite
	Syscalls[linux.SYS_CLOSE] = sysClose
	Syscalls[linux.SYS_IOCTL] = sysIoctl
	Syscalls[linux.SYS_DUP] = sysDup
	Syscalls[linux.SYS_DUP2] = sysDup2
}
