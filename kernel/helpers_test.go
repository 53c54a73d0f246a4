package kernel

import (
	"context"
	"sync"

	"github.com/evanphx/penguin/fs"
)

// countingFile records how often its backend handle is closed.
type countingFile struct {
	fs.StandardFileOps

	mu     sync.Mutex
	closes int
	data   []byte
}

func (c *countingFile) UnstableAttr(ctx context.Context, inode *fs.Inode) (*fs.InodeUnstableAttr, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return &fs.InodeUnstableAttr{Size: int64(len(c.data))}, nil
}

func (c *countingFile) ReadLink(ctx context.Context, inode *fs.Inode) (string, error) {
	return "", fs.ErrNotSymlink
}

func (c *countingFile) Open(ctx context.Context, inode *fs.Inode, flags fs.OpenFlags) (fs.FileOps, error) {
	return c, nil
}

func (c *countingFile) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if off >= int64(len(c.data)) {
		return 0, nil
	}

	return copy(p, c.data[off:]), nil
}

func (c *countingFile) WriteAt(ctx context.Context, p []byte, off int64) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	end := int(off) + len(p)
	if end > len(c.data) {
		c.data = append(c.data, make([]byte, end-len(c.data))...)
	}

	return copy(c.data[off:], p), nil
}

func (c *countingFile) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closes++
	return nil
}

func (c *countingFile) Closes() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.closes
}

func openCounting(c *countingFile) *OpenedFile {
	inode := fs.NewInode(fs.InodeStableAttr{Type: fs.RegularFile, InodeID: 1}, c)

	file, err := OpenInode(context.Background(), inode, fs.OpenFlags{Read: true, Write: true})
	if err != nil {
		panic(err)
	}

	return file
}
