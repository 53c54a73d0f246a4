package fs

import "github.com/pkg/errors"

var (
	ErrNotFound        = errors.New("no such file or directory")
	ErrNotDirectory    = errors.New("not a directory")
	ErrIsDirectory     = errors.New("is a directory")
	ErrNotSymlink      = errors.New("not symlink")
	ErrTooManySymlinks = errors.New("too many levels of symbolic links")
	ErrAlreadyMounted  = errors.New("mount point busy")
	ErrNotReachable    = errors.New("mount target not reachable from root")
	ErrExists          = errors.New("file exists")
	ErrReadOnly        = errors.New("read-only file system")
	ErrBadAccessMode   = errors.New("file not open for this access")
	ErrInvalidName     = errors.New("invalid file name")
	ErrNotImplemented  = errors.New("not implemented")
)
