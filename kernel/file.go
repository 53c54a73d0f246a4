package kernel

import (
	"context"
	"io"
	"sync"

	"github.com/evanphx/penguin/fs"
	"github.com/pkg/errors"
)

// OpenedFile is the kernel side of an open: the inode, how it was opened and
// the cursor. It is shared by every descriptor duplicated from the one it
// was opened on and closed when the last of them goes away.
type OpenedFile struct {
	mu   sync.Mutex
	refs int
	pos  int64

	Inode *fs.Inode
	Flags fs.OpenFlags

	handle fs.FileOps
}

// OpenInode opens inode through its backend. The returned file carries one
// reference owned by the caller, normally handed straight to FDTable.Open.
func OpenInode(ctx context.Context, inode *fs.Inode, flags fs.OpenFlags) (*OpenedFile, error) {
	handle, err := inode.Ops.Open(ctx, inode, flags)
	if err != nil {
		return nil, err
	}

	return &OpenedFile{
		refs:   1,
		Inode:  inode,
		Flags:  flags,
		handle: handle,
	}, nil
}

// Handle exposes the backend state, e.g. for device specific requests.
func (f *OpenedFile) Handle() fs.FileOps {
	return f.handle
}

func (f *OpenedFile) Refs() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.refs
}

func (f *OpenedFile) incRef() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.refs++
}

// decRef drops one reference and closes the backend handle when it was the
// last.
func (f *OpenedFile) decRef() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.refs--
	if f.refs > 0 {
		return nil
	}

	if f.refs < 0 {
		panic("kernel: opened file released too many times")
	}

	return f.handle.Close()
}

func (f *OpenedFile) Read(ctx context.Context, p []byte) (int, error) {
	if !f.Flags.Read {
		return 0, errors.Wrap(fs.ErrBadAccessMode, "read")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	n, err := f.handle.ReadAt(ctx, p, f.pos)
	f.pos += int64(n)

	if err == io.EOF {
		return n, nil
	}

	return n, err
}

// Write writes p at the cursor, or at the end of the file when appending.
func (f *OpenedFile) Write(ctx context.Context, p []byte, appending bool) (int, error) {
	if !f.Flags.Write {
		return 0, errors.Wrap(fs.ErrBadAccessMode, "write")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if appending {
		attr, err := f.Inode.Ops.UnstableAttr(ctx, f.Inode)
		if err != nil {
			return 0, err
		}

		f.pos = attr.Size
	}

	n, err := f.handle.WriteAt(ctx, p, f.pos)
	f.pos += int64(n)

	return n, err
}

func (f *OpenedFile) Pos() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.pos
}
