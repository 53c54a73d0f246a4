package syscalls

import (
	"context"

	"github.com/evanphx/penguin/abi/linux"
	"github.com/evanphx/penguin/fs"
	"github.com/evanphx/penguin/kernel"
	hclog "github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
)

func openFlags(flags int64) (fs.OpenFlags, kernel.OpenOptions, error) {
	var of fs.OpenFlags

	switch flags & linux.O_ACCMODE {
	case linux.O_RDONLY:
		of.Read = true
	case linux.O_WRONLY:
		of.Write = true
	case linux.O_RDWR:
		of.Read = true
		of.Write = true
	default:
		return of, kernel.OpenOptions{}, errors.Wrapf(ErrInvalidArgument, "access mode %#x", flags&linux.O_ACCMODE)
	}

	of.Truncate = flags&linux.O_TRUNC != 0

	opts := kernel.NewOpenOptions(flags&linux.O_CLOEXEC != 0, flags&linux.O_APPEND != 0)

	return of, opts, nil
}

func sysOpen(ctx context.Context, l hclog.Logger, task *kernel.Task, args SysArgs) (int64, error) {
	var (
		ptr   = uint64(args.Args[0])
		flags = args.Args[1]
	)

	path, err := task.ReadCString(ptr)
	if err != nil {
		return 0, err
	}

	of, opts, err := openFlags(flags)
	if err != nil {
		return 0, err
	}

	l.Trace("open file", "path", path, "flags", hclog.Fmt("%#x", flags))

	fd, err := task.OpenPath(ctx, path, of, opts, flags&linux.O_CREAT != 0)
	if err != nil {
		return 0, errors.Wrapf(err, "open %s", path)
	}

	return int64(fd), nil
}

func init() {
	Syscalls[linux.SYS_OPEN] = sysOpen
}
