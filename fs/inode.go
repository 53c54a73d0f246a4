package fs

import (
	"context"
	"fmt"
	"os"
	"time"
)

// InodeType enumerates types of Inodes.
type InodeType int

const (
	// RegularFile is a regular file.
	RegularFile InodeType = iota

	// Directory is a directory.
	Directory

	// Symlink is a symbolic link.
	Symlink

	// Pipe is a pipe (named or regular).
	Pipe

	// Socket is a socket.
	Socket

	// CharacterDevice is a character device.
	CharacterDevice

	// BlockDevice is a block device.
	BlockDevice

	// Anonymous is an anonymous type when none of the above apply.
	Anonymous
)

// String returns a human-readable representation of the InodeType.
func (n InodeType) String() string {
	switch n {
	case RegularFile:
		return "file"
	case Directory:
		return "directory"
	case Symlink:
		return "symlink"
	case Pipe:
		return "pipe"
	case Socket:
		return "socket"
	case CharacterDevice:
		return "character-device"
	case BlockDevice:
		return "block-device"
	case Anonymous:
		return "anonymous"
	default:
		return "unknown"
	}
}

// InodeStableAttr holds the attributes that never change over the lifetime
// of an Inode. DeviceID and InodeID together identify the inode.
type InodeStableAttr struct {
	// Type is the InodeType of a InodeOperations.
	Type InodeType

	// DeviceID is the device on which a InodeOperations resides.
	DeviceID uint64

	// InodeID uniquely identifies InodeOperations on its device.
	InodeID uint64

	// BlockSize is the block size of data backing this InodeOperations.
	BlockSize int64

	// DeviceFileMajor and DeviceFileMinor are set for device nodes.
	DeviceFileMajor uint16
	DeviceFileMinor uint32
}

func (attr *InodeStableAttr) SetType(mode os.FileMode) {
	switch mode & os.ModeType {
	case 0:
		attr.Type = RegularFile
	case os.ModeDir:
		attr.Type = Directory
	case os.ModeSymlink:
		attr.Type = Symlink
	case os.ModeNamedPipe:
		attr.Type = Pipe
	case os.ModeSocket:
		attr.Type = Socket
	case os.ModeDevice | os.ModeCharDevice:
		attr.Type = CharacterDevice
	case os.ModeDevice:
		attr.Type = BlockDevice
	default:
		attr.Type = Anonymous
	}
}

// InodeUnstableAttr contains Inode attributes that may change over the
// lifetime of the Inode.
type InodeUnstableAttr struct {
	// Size is the file size in bytes.
	Size int64

	// Perms is the protection (read/write/execute for user/group/other).
	Perms int

	UserId, GroupId int

	ModificationTime time.Time

	// Links is the number of hard links.
	Links uint64
}

// OpenFlags describe the access an OpenedFile was opened for.
type OpenFlags struct {
	Read     bool
	Write    bool
	Truncate bool
}

// FileOps is the backend state of one open of an inode.
type FileOps interface {
	ReadAt(ctx context.Context, p []byte, off int64) (int, error)
	WriteAt(ctx context.Context, p []byte, off int64) (int, error)
	Close() error
}

// InodeOps is the capability every backend provides for its inodes.
type InodeOps interface {
	LookupChild(ctx context.Context, inode *Inode, name string) (*Inode, error)
	UnstableAttr(ctx context.Context, inode *Inode) (*InodeUnstableAttr, error)
	ReadLink(ctx context.Context, inode *Inode) (string, error)
	Open(ctx context.Context, inode *Inode, flags OpenFlags) (FileOps, error)
}

// Creator is implemented by directory ops of backends that can create new
// entries.
type Creator interface {
	Create(ctx context.Context, dir *Inode, name string, typ InodeType, perms int) (*Inode, error)
}

// Filesystem is a mountable backend.
type Filesystem interface {
	Root() (*Inode, error)
}

type Inode struct {
	StableAttr InodeStableAttr

	Ops InodeOps
}

func NewInode(attr InodeStableAttr, ops InodeOps) *Inode {
	return &Inode{StableAttr: attr, Ops: ops}
}

// InodeKey identifies an inode across every mounted backend.
type InodeKey struct {
	DeviceID uint64
	InodeID  uint64
}

func (i *Inode) Key() InodeKey {
	return InodeKey{DeviceID: i.StableAttr.DeviceID, InodeID: i.StableAttr.InodeID}
}

func (i *Inode) IsDir() bool {
	return i.StableAttr.Type == Directory
}

func (i *Inode) String() string {
	return fmt.Sprintf("%s %d:%d", i.StableAttr.Type, i.StableAttr.DeviceID, i.StableAttr.InodeID)
}
