// Package linux holds the x86-64 Linux system call numbers and flag values
// understood by the kernel.
package linux

const (
	SYS_READ        = 0
	SYS_WRITE       = 1
	SYS_OPEN        = 2
	SYS_CLOSE       = 3
	SYS_IOCTL       = 16
	SYS_SCHED_YIELD = 24
	SYS_DUP         = 32
	SYS_DUP2        = 33
	SYS_GETPID      = 39
	SYS_EXECVE      = 59
	SYS_EXIT        = 60
)

// open(2) flags.
const (
	O_ACCMODE = 0x3
	O_RDONLY  = 0x0
	O_WRONLY  = 0x1
	O_RDWR    = 0x2
	O_CREAT   = 0x40
	O_TRUNC   = 0x200
	O_APPEND  = 0x400
	O_CLOEXEC = 0x80000
)
