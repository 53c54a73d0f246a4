// Package tarfs is an in-memory filesystem populated from a tar archive. It
// backs the initramfs.
package tarfs

import (
	"archive/tar"
	"context"
	"io"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/evanphx/penguin/device"
	"github.com/evanphx/penguin/fs"
	"github.com/evanphx/penguin/log"
	"github.com/pkg/errors"
)

type Dir struct {
	fs.StandardDirOps
	tfs      *TarFS
	Unstable fs.InodeUnstableAttr
	Children map[string]*fs.Inode
	Order    []string
}

func (d *Dir) AddChild(name string, inode *fs.Inode) {
	if _, ok := d.Children[name]; !ok {
		d.Order = append(d.Order, name)
	}

	d.Children[name] = inode
}

type File struct {
	fs.StandardFileOps

	mu       sync.Mutex
	Unstable fs.InodeUnstableAttr
	Body     []byte
}

func (f *File) String() string {
	return spew.Sdump(f.Unstable)
}

type TarFS struct {
	Device *device.Device
	root   *fs.Inode
}

func (t *TarFS) newAttr(typ fs.InodeType) fs.InodeStableAttr {
	return fs.InodeStableAttr{
		Type:            typ,
		BlockSize:       4096,
		DeviceFileMajor: t.Device.Major,
		DeviceFileMinor: t.Device.Minor,
		DeviceID:        t.Device.DeviceID(),
		InodeID:         t.Device.NextIno(),
	}
}

func (t *TarFS) newDir(us fs.InodeUnstableAttr) *fs.Inode {
	return fs.NewInode(t.newAttr(fs.Directory), &Dir{
		tfs:      t,
		Unstable: us,
		Children: make(map[string]*fs.Inode),
	})
}

// New returns an empty filesystem holding only its root directory.
func New() *TarFS {
	t := &TarFS{Device: device.NewAnonDevice()}
	t.root = t.newDir(fs.InodeUnstableAttr{Perms: 0755, Links: 2, ModificationTime: time.Now()})
	return t
}

// findParent returns the directory that will hold name, creating missing
// intermediate directories.
func (t *TarFS) findParent(name string) (*Dir, error) {
	dirName := path.Dir(name)

	parent := t.root.Ops.(*Dir)

	if dirName == "" || dirName == "." || dirName == "/" {
		return parent, nil
	}

	for _, sec := range strings.Split(dirName, "/") {
		ch, ok := parent.Children[sec]
		if !ok {
			ch = t.newDir(fs.InodeUnstableAttr{Perms: 0755, Links: 2})
			parent.AddChild(sec, ch)
		}

		dir, ok := ch.Ops.(*Dir)
		if !ok {
			return nil, errors.Wrapf(fs.ErrNotDirectory, "%s in %s", sec, name)
		}

		parent = dir
	}

	return parent, nil
}

func cleanName(name string) string {
	name = strings.TrimPrefix(name, "./")
	name = strings.TrimPrefix(name, "/")
	name = strings.TrimSuffix(name, "/")
	return name
}

// NewTarFS reads every entry of the archive in r into memory.
func NewTarFS(r io.Reader) (*TarFS, error) {
	t := New()

	tr := tar.NewReader(r)

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}

		if err != nil {
			return nil, err
		}

		name := cleanName(hdr.Name)

		mode := hdr.FileInfo().Mode()

		us := fs.InodeUnstableAttr{
			GroupId:          hdr.Gid,
			UserId:           hdr.Uid,
			Perms:            int(mode.Perm()),
			Size:             hdr.Size,
			ModificationTime: hdr.ModTime,
			Links:            1,
		}

		// root!
		if name == "" || name == "." {
			t.root.Ops.(*Dir).Unstable = us
			continue
		}

		var attr fs.InodeStableAttr
		attr.SetType(mode)

		parent, err := t.findParent(name)
		if err != nil {
			return nil, err
		}

		base := path.Base(name)

		if attr.Type == fs.Directory {
			if existing, ok := parent.Children[base]; ok {
				if dir, ok := existing.Ops.(*Dir); ok {
					dir.Unstable = us
					continue
				}
			}

			us.Links = 2
			parent.AddChild(base, t.newDir(us))
			continue
		}

		var body []byte

		switch attr.Type {
		case fs.Symlink:
			body = []byte(hdr.Linkname)
			us.Size = int64(len(body))
		case fs.RegularFile:
			body, err = io.ReadAll(tr)
			if err != nil {
				return nil, err
			}
		}

		inode := fs.NewInode(t.newAttr(attr.Type), &File{
			Unstable: us,
			Body:     body,
		})

		parent.AddChild(base, inode)
	}

	log.L.Debug("loaded initramfs", "device", t.Device.DeviceID())

	return t, nil
}

func (t *TarFS) Root() (*fs.Inode, error) {
	return t.root, nil
}

func (d *Dir) LookupChild(ctx context.Context, inode *fs.Inode, name string) (*fs.Inode, error) {
	child, ok := d.Children[name]
	if !ok {
		return nil, fs.ErrNotFound
	}

	return child, nil
}

func (d *Dir) UnstableAttr(ctx context.Context, inode *fs.Inode) (*fs.InodeUnstableAttr, error) {
	us := d.Unstable
	return &us, nil
}

// Create adds an empty file or directory. Other inode types cannot be
// created in a tarfs.
func (d *Dir) Create(ctx context.Context, dir *fs.Inode, name string, typ fs.InodeType, perms int) (*fs.Inode, error) {
	if name == "" || strings.Contains(name, "/") {
		return nil, fs.ErrInvalidName
	}

	if _, ok := d.Children[name]; ok {
		return nil, fs.ErrExists
	}

	us := fs.InodeUnstableAttr{Perms: perms, Links: 1, ModificationTime: time.Now()}

	var inode *fs.Inode

	switch typ {
	case fs.Directory:
		us.Links = 2
		inode = d.tfs.newDir(us)
	case fs.RegularFile:
		inode = fs.NewInode(d.tfs.newAttr(fs.RegularFile), &File{Unstable: us})
	default:
		return nil, errors.Wrapf(fs.ErrNotImplemented, "create %s", typ)
	}

	d.AddChild(name, inode)

	return inode, nil
}

func (f *File) UnstableAttr(ctx context.Context, inode *fs.Inode) (*fs.InodeUnstableAttr, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	us := f.Unstable
	us.Size = int64(len(f.Body))
	return &us, nil
}

func (f *File) ReadLink(ctx context.Context, inode *fs.Inode) (string, error) {
	if inode.StableAttr.Type != fs.Symlink {
		return "", fs.ErrNotSymlink
	}

	return string(f.Body), nil
}

func (f *File) Open(ctx context.Context, inode *fs.Inode, flags fs.OpenFlags) (fs.FileOps, error) {
	if inode.StableAttr.Type == fs.Symlink {
		return nil, errors.Wrap(fs.ErrNotImplemented, "open of a symlink")
	}

	if flags.Truncate && flags.Write {
		f.mu.Lock()
		f.Body = nil
		f.mu.Unlock()
	}

	return &handle{f: f}, nil
}

type handle struct {
	f *File
}

func (h *handle) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	h.f.mu.Lock()
	defer h.f.mu.Unlock()

	if off >= int64(len(h.f.Body)) {
		return 0, io.EOF
	}

	n := copy(p, h.f.Body[off:])
	return n, nil
}

func (h *handle) WriteAt(ctx context.Context, p []byte, off int64) (int, error) {
	h.f.mu.Lock()
	defer h.f.mu.Unlock()

	end := off + int64(len(p))
	if end > int64(len(h.f.Body)) {
		grown := make([]byte, end)
		copy(grown, h.f.Body)
		h.f.Body = grown
	}

	copy(h.f.Body[off:], p)
	h.f.Unstable.ModificationTime = time.Now()

	return len(p), nil
}

func (h *handle) Close() error {
	return nil
}
