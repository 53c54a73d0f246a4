package fs

import (
	"context"
	"io"

	"github.com/pkg/errors"
)

type StandardDirOps struct{}

func (_ StandardDirOps) ReadLink(ctx context.Context, inode *Inode) (string, error) {
	return "", ErrNotSymlink
}

func (_ StandardDirOps) Open(ctx context.Context, inode *Inode, flags OpenFlags) (FileOps, error) {
	if flags.Write {
		return nil, ErrIsDirectory
	}

	return dirFile{}, nil
}

type dirFile struct{}

func (dirFile) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	return 0, ErrIsDirectory
}

func (dirFile) WriteAt(ctx context.Context, p []byte, off int64) (int, error) {
	return 0, ErrIsDirectory
}

func (dirFile) Close() error {
	return nil
}

type StandardFileOps struct{}

func (_ StandardFileOps) LookupChild(ctx context.Context, inode *Inode, name string) (*Inode, error) {
	return nil, ErrNotDirectory
}

// ReadAll reads the whole contents of inode. It is used to pull executables
// into kernel memory.
func ReadAll(ctx context.Context, inode *Inode) ([]byte, error) {
	if inode.IsDir() {
		return nil, ErrIsDirectory
	}

	attr, err := inode.Ops.UnstableAttr(ctx, inode)
	if err != nil {
		return nil, err
	}

	f, err := inode.Ops.Open(ctx, inode, OpenFlags{Read: true})
	if err != nil {
		return nil, err
	}

	defer f.Close()

	buf := make([]byte, attr.Size)

	var off int64

	for off < attr.Size {
		n, err := f.ReadAt(ctx, buf[off:], off)
		off += int64(n)

		if err == io.EOF {
			break
		}

		if err != nil {
			return nil, errors.Wrapf(err, "reading %s", inode)
		}

		if n == 0 {
			break
		}
	}

	return buf[:off], nil
}
