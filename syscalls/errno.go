package syscalls

import (
	"github.com/evanphx/penguin/abi"
	"github.com/evanphx/penguin/elf"
	"github.com/evanphx/penguin/fs"
	"github.com/evanphx/penguin/fs/devfs"
	"github.com/evanphx/penguin/kernel"
	"github.com/evanphx/penguin/memory"
	"github.com/pkg/errors"
)

// Errno classifies err as the errno returned to user code. The second
// result is false when the error had no specific number and EIO was used.
func Errno(err error) (int64, bool) {
	switch errors.Cause(err) {
	case elf.ErrMalformedBinary:
		return abi.ENOEXEC, true
	case fs.ErrNotFound:
		return abi.ENOENT, true
	case fs.ErrTooManySymlinks:
		return abi.ELOOP, true
	case fs.ErrAlreadyMounted:
		return abi.EBUSY, true
	case kernel.ErrBadDescriptor, fs.ErrBadAccessMode:
		return abi.EBADF, true
	case kernel.ErrResourceExhausted:
		return abi.ENOMEM, true
	case ErrNoSuchSyscall:
		return abi.ENOSYS, true
	case fs.ErrNotDirectory:
		return abi.ENOTDIR, true
	case fs.ErrIsDirectory:
		return abi.EISDIR, true
	case fs.ErrReadOnly:
		return abi.EROFS, true
	case fs.ErrExists:
		return abi.EEXIST, true
	case memory.ErrInvalidMemoryAccess:
		return abi.EFAULT, true
	case devfs.ErrNotTTY:
		return abi.ENOTTY, true
	case kernel.ErrArgumentsTooLarge:
		return abi.E2BIG, true
	case kernel.ErrNoSuchProcess, kernel.ErrNoCurrentProcess:
		return abi.ESRCH, true
	case ErrInvalidArgument, kernel.ErrInvalidTransition, fs.ErrInvalidName,
		fs.ErrNotSymlink, fs.ErrNotReachable, fs.ErrNotImplemented,
		memory.ErrBadRegionRequest:
		return abi.EINVAL, true
	default:
		return abi.EIO, false
	}
}
