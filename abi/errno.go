// Package abi holds the error numbers user code sees.
package abi

// Linux errno values. System calls return them negated.
const (
	EPERM   = 1
	ENOENT  = 2
	ESRCH   = 3
	EINTR   = 4
	EIO     = 5
	E2BIG   = 7
	ENOEXEC = 8
	EBADF   = 9
	ECHILD  = 10
	ENOMEM  = 12
	EFAULT  = 14
	EBUSY   = 16
	EEXIST  = 17
	ENOTDIR = 20
	EISDIR  = 21
	EINVAL  = 22
	ENOTTY  = 25
	EROFS   = 30
	ENOSYS  = 38
	ELOOP   = 40
)
