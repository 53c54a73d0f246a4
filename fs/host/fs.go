// Package host exposes a directory of the host as a read-only filesystem
// backend.
package host

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/evanphx/penguin/device"
	"github.com/evanphx/penguin/fs"
	"github.com/evanphx/penguin/log"
	"github.com/pkg/errors"
)

type HostFS struct {
	Device *device.Device
	root   *fs.Inode

	mu   sync.Mutex
	inos map[hostKey]uint64
}

// hostKey is the identity of a file on the host.
type hostKey struct {
	dev, ino uint64
}

func statToStableAttr(stat os.FileInfo) fs.InodeStableAttr {
	var attr fs.InodeStableAttr
	attr.SetType(stat.Mode())

	if lower, ok := stat.Sys().(*syscall.Stat_t); ok {
		attr.BlockSize = int64(lower.Blksize)
		attr.DeviceID = uint64(lower.Dev)
		attr.InodeID = uint64(lower.Ino)
		attr.DeviceFileMajor, attr.DeviceFileMinor = device.DecodeDeviceID(uint64(lower.Rdev))
	}

	return attr
}

func NewHostFS(path string) (*HostFS, error) {
	h := &HostFS{
		Device: device.NewAnonDevice(),
		inos:   make(map[hostKey]uint64),
	}

	log.L.Trace("creating host fs", "path", path)

	stat, err := os.Stat(path)
	if err != nil {
		log.L.Error("error stating hostfs path", "error", err)
		return nil, err
	}

	if !stat.IsDir() {
		return nil, errors.Wrapf(fs.ErrNotDirectory, "host path %s", path)
	}

	h.root = h.newInode(path, stat)

	return h, nil
}

func (h *HostFS) Root() (*fs.Inode, error) {
	return h.root, nil
}

// inodeID returns the inode number standing for the host file (dev, ino).
// The same host file always gets the same number.
func (h *HostFS) inodeID(dev, ino uint64) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	key := hostKey{dev: dev, ino: ino}

	id, ok := h.inos[key]
	if !ok {
		id = h.Device.NextIno()
		h.inos[key] = id
	}

	return id
}

func (h *HostFS) newInode(path string, stat os.FileInfo) *fs.Inode {
	attr := statToStableAttr(stat)

	// Host device numbers could collide with kernel allocated ones; every
	// inode of this backend lives on its own anonymous device and gets an
	// inode number from it.
	attr.InodeID = h.inodeID(attr.DeviceID, attr.InodeID)
	attr.DeviceID = h.Device.DeviceID()

	if stat.IsDir() {
		return fs.NewInode(attr, &Dir{host: h, FSPath: FSPath{Path: path, Info: stat}})
	}

	return fs.NewInode(attr, &Entry{FSPath: FSPath{Path: path, Info: stat}})
}

type FSPath struct {
	Path string
	Info os.FileInfo
}

func (p *FSPath) UnstableAttr(ctx context.Context, inode *fs.Inode) (*fs.InodeUnstableAttr, error) {
	stat, err := os.Lstat(p.Path)
	if err != nil {
		return nil, err
	}

	us := fs.InodeUnstableAttr{
		Perms:            int(stat.Mode().Perm()),
		Size:             stat.Size(),
		ModificationTime: stat.ModTime(),
		Links:            1,
	}

	if lower, ok := stat.Sys().(*syscall.Stat_t); ok {
		us.GroupId = int(lower.Gid)
		us.UserId = int(lower.Uid)
		us.Links = uint64(lower.Nlink)
	}

	return &us, nil
}

type Dir struct {
	fs.StandardDirOps
	FSPath

	host *HostFS
}

type Entry struct {
	fs.StandardFileOps
	FSPath
}

func (e *Entry) ReadLink(ctx context.Context, inode *fs.Inode) (string, error) {
	if inode.StableAttr.Type != fs.Symlink {
		return "", fs.ErrNotSymlink
	}

	return os.Readlink(e.Path)
}

func (e *Entry) Open(ctx context.Context, inode *fs.Inode, flags fs.OpenFlags) (fs.FileOps, error) {
	if flags.Write {
		return nil, errors.Wrapf(fs.ErrReadOnly, "open %s for writing", e.Path)
	}

	f, err := os.Open(e.Path)
	if err != nil {
		return nil, err
	}

	return &file{f: f}, nil
}

type file struct {
	f *os.File
}

func (h *file) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	return h.f.ReadAt(p, off)
}

func (h *file) WriteAt(ctx context.Context, p []byte, off int64) (int, error) {
	return 0, fs.ErrReadOnly
}

func (h *file) Close() error {
	return h.f.Close()
}

func (d *Dir) LookupChild(ctx context.Context, inode *fs.Inode, name string) (*fs.Inode, error) {
	log.L.Trace("lookup child on host fs", "dir", d.Path, "name", name)

	cp := filepath.Join(d.Path, name)

	stat, err := os.Lstat(cp)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fs.ErrNotFound
		}

		return nil, err
	}

	return d.host.newInode(cp, stat), nil
}
