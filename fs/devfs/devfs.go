// Package devfs is the device filesystem mounted at /dev.
package devfs

import (
	"context"
	"io"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/evanphx/penguin/device"
	"github.com/evanphx/penguin/fs"
	"github.com/pkg/errors"
)

var ErrNotTTY = errors.New("inappropriate ioctl for device")

// Terminal is implemented by open device files that behave like a tty.
type Terminal interface {
	Winsize() (*unix.Winsize, error)
}

type DevFS struct {
	Device *device.Device
	root   *fs.Inode
	dir    *Dir
}

// New builds a devfs whose console reads from and writes to console.
func New(console io.ReadWriter) *DevFS {
	d := &DevFS{
		Device: device.NewAnonDevice(),
		dir:    &Dir{Children: make(map[string]*fs.Inode)},
	}

	d.root = fs.NewInode(d.attr(fs.Directory, 0, 0), d.dir)

	d.dir.Children["console"] = fs.NewInode(d.attr(fs.CharacterDevice, 5, 1), &Console{stream: console})
	d.dir.Children["null"] = fs.NewInode(d.attr(fs.CharacterDevice, 1, 3), &Null{})

	return d
}

func (d *DevFS) attr(typ fs.InodeType, major uint16, minor uint32) fs.InodeStableAttr {
	return fs.InodeStableAttr{
		Type:            typ,
		DeviceID:        d.Device.DeviceID(),
		InodeID:         d.Device.NextIno(),
		BlockSize:       4096,
		DeviceFileMajor: major,
		DeviceFileMinor: minor,
	}
}

func (d *DevFS) Root() (*fs.Inode, error) {
	return d.root, nil
}

type Dir struct {
	fs.StandardDirOps
	Children map[string]*fs.Inode
}

func (d *Dir) LookupChild(ctx context.Context, inode *fs.Inode, name string) (*fs.Inode, error) {
	child, ok := d.Children[name]
	if !ok {
		return nil, fs.ErrNotFound
	}

	return child, nil
}

func (d *Dir) UnstableAttr(ctx context.Context, inode *fs.Inode) (*fs.InodeUnstableAttr, error) {
	return &fs.InodeUnstableAttr{Perms: 0755, Links: 2}, nil
}

type deviceOps struct {
	fs.StandardFileOps
}

func (deviceOps) UnstableAttr(ctx context.Context, inode *fs.Inode) (*fs.InodeUnstableAttr, error) {
	return &fs.InodeUnstableAttr{Perms: 0666, Links: 1}, nil
}

func (deviceOps) ReadLink(ctx context.Context, inode *fs.Inode) (string, error) {
	return "", fs.ErrNotSymlink
}

// Console is the system console. Offsets are ignored; it is a stream.
type Console struct {
	deviceOps

	mu     sync.Mutex
	stream io.ReadWriter
}

func (c *Console) Open(ctx context.Context, inode *fs.Inode, flags fs.OpenFlags) (fs.FileOps, error) {
	return c, nil
}

func (c *Console) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if c.stream == nil {
		return 0, io.EOF
	}

	return c.stream.Read(p)
}

func (c *Console) WriteAt(ctx context.Context, p []byte, off int64) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stream == nil {
		return len(p), nil
	}

	return c.stream.Write(p)
}

func (c *Console) Close() error {
	return nil
}

// Winsize reports the window size of the host terminal behind the console.
func (c *Console) Winsize() (*unix.Winsize, error) {
	f, ok := c.stream.(interface{ Fd() uintptr })
	if !ok {
		return nil, ErrNotTTY
	}

	ws, err := unix.IoctlGetWinsize(int(f.Fd()), unix.TIOCGWINSZ)
	if err != nil {
		return nil, errors.Wrap(ErrNotTTY, err.Error())
	}

	return ws, nil
}

// Stdio joins the host's standard input and output into one console stream.
type Stdio struct {
	In  *os.File
	Out *os.File
}

func (s Stdio) Read(p []byte) (int, error) {
	return s.In.Read(p)
}

func (s Stdio) Write(p []byte) (int, error) {
	return s.Out.Write(p)
}

func (s Stdio) Fd() uintptr {
	return s.Out.Fd()
}

// Null discards writes and reads as empty.
type Null struct {
	deviceOps
}

func (n *Null) Open(ctx context.Context, inode *fs.Inode, flags fs.OpenFlags) (fs.FileOps, error) {
	return n, nil
}

func (n *Null) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	return 0, io.EOF
}

func (n *Null) WriteAt(ctx context.Context, p []byte, off int64) (int, error) {
	return len(p), nil
}

func (n *Null) Close() error {
	return nil
}
