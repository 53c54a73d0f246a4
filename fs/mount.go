package fs

import (
	"context"

	"github.com/evanphx/penguin/log"
	hclog "github.com/hashicorp/go-hclog"
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
)

const (
	// DefaultMaxSymlinks bounds how many symbolic links one lookup follows.
	DefaultMaxSymlinks = 8

	DefaultDirentCacheSize = 1000
)

type Options struct {
	// MaxSymlinks overrides DefaultMaxSymlinks when positive.
	MaxSymlinks int

	// DirentCacheSize overrides DefaultDirentCacheSize when positive.
	DirentCacheSize int
}

// LookupOptions control how the last component of a path is handled.
type LookupOptions struct {
	// FollowLast resolves a symlink in the final component.
	FollowLast bool

	// Create asks the backend to create the final component when it is
	// missing.
	Create     bool
	CreateType InodeType
	Perms      int
}

// RootFs is the tree of mounted backends that every absolute path is
// resolved against. It is not safe for concurrent use; the kernel guards it
// with a spin lock.
type RootFs struct {
	L hclog.Logger

	root        *Inode
	mounts      map[InodeKey]*Inode
	covered     map[InodeKey]InodeKey
	devices     map[uint64]struct{}
	cache       *lru.ARCCache
	maxSymlinks int
}

func NewRootFs(backend Filesystem, opts Options) (*RootFs, error) {
	root, err := backend.Root()
	if err != nil {
		return nil, err
	}

	if !root.IsDir() {
		return nil, errors.Wrapf(ErrNotDirectory, "root filesystem root is a %s", root.StableAttr.Type)
	}

	if opts.MaxSymlinks <= 0 {
		opts.MaxSymlinks = DefaultMaxSymlinks
	}

	if opts.DirentCacheSize <= 0 {
		opts.DirentCacheSize = DefaultDirentCacheSize
	}

	cache, err := lru.NewARC(opts.DirentCacheSize)
	if err != nil {
		return nil, err
	}

	r := &RootFs{
		L:           log.Named("vfs"),
		root:        root,
		mounts:      make(map[InodeKey]*Inode),
		covered:     make(map[InodeKey]InodeKey),
		devices:     map[uint64]struct{}{root.StableAttr.DeviceID: {}},
		cache:       cache,
		maxSymlinks: opts.MaxSymlinks,
	}

	return r, nil
}

// redirect returns the root of the backend mounted on inode, or inode itself.
func (r *RootFs) redirect(inode *Inode) *Inode {
	if mounted, ok := r.mounts[inode.Key()]; ok {
		return mounted
	}

	return inode
}

func (r *RootFs) rootDirent() *Dirent {
	return &Dirent{Inode: r.redirect(r.root)}
}

// RootDir returns the directory "/" resolves to.
func (r *RootFs) RootDir() *Inode {
	return r.redirect(r.root)
}

func (r *RootFs) IsMountPoint(dir *Inode) bool {
	_, ok := r.mounts[dir.Key()]
	return ok
}

// Mount attaches backend's root at dir. dir must be a directory on a backend
// that is already part of the tree. dir may be given either as the covered
// directory or as the root of what is mounted on it; both count as the same
// mount point.
func (r *RootFs) Mount(dir *Inode, backend Filesystem) error {
	if !dir.IsDir() {
		return errors.Wrapf(ErrNotDirectory, "mount target %s", dir)
	}

	key := dir.Key()

	if _, ok := r.mounts[key]; ok {
		return errors.Wrapf(ErrAlreadyMounted, "mount target %s", dir)
	}

	if _, ok := r.covered[key]; ok {
		return errors.Wrapf(ErrAlreadyMounted, "mount target %s is a mounted root", dir)
	}

	if _, ok := r.devices[dir.StableAttr.DeviceID]; !ok {
		return errors.Wrapf(ErrNotReachable, "mount target %s", dir)
	}

	root, err := backend.Root()
	if err != nil {
		return err
	}

	if !root.IsDir() {
		return errors.Wrapf(ErrNotDirectory, "mounted root %s", root)
	}

	r.mounts[key] = root
	r.covered[root.Key()] = key
	r.devices[root.StableAttr.DeviceID] = struct{}{}
	r.cache.Purge()

	r.L.Debug("mounted filesystem", "target", dir.String(), "root", root.String())

	return nil
}

// Resolve walks path from start, or from the root when path is absolute or
// start is nil.
func (r *RootFs) Resolve(ctx context.Context, start *Dirent, path string, opts LookupOptions) (*Dirent, error) {
	if path == "" {
		return nil, errors.Wrap(ErrNotFound, "empty path")
	}

	cacheable := (start == nil || isAbs(path)) && opts.FollowLast && !opts.Create

	if cacheable {
		if val, ok := r.cache.Get(path); ok {
			return val.(*Dirent), nil
		}
	}

	cur := start
	if cur == nil || isAbs(path) {
		cur = r.rootDirent()
	}

	pending := splitPath(path)
	followed := 0

	for len(pending) > 0 {
		name := pending[0]
		pending = pending[1:]
		last := len(pending) == 0

		switch name {
		case ".":
			continue
		case "..":
			if cur.Parent != nil {
				cur = cur.Parent
			}
			continue
		}

		if !cur.Inode.IsDir() {
			return nil, errors.Wrapf(ErrNotDirectory, "component %q of %s", cur.Name, path)
		}

		child, err := cur.Inode.Ops.LookupChild(ctx, cur.Inode, name)
		if err != nil {
			if errors.Cause(err) != ErrNotFound || !last || !opts.Create {
				return nil, errors.Wrapf(err, "lookup %q in %s", name, path)
			}

			child, err = r.create(ctx, cur, name, opts)
			if err != nil {
				return nil, err
			}
		}

		child = r.redirect(child)

		if child.StableAttr.Type == Symlink && (!last || opts.FollowLast) {
			followed++
			if followed > r.maxSymlinks {
				return nil, errors.Wrapf(ErrTooManySymlinks, "resolving %s", path)
			}

			target, err := child.Ops.ReadLink(ctx, child)
			if err != nil {
				return nil, err
			}

			if target == "" {
				return nil, errors.Wrapf(ErrNotFound, "empty symlink %q in %s", name, path)
			}

			r.L.Trace("vfs-follow-symlink", "name", name, "target", target)

			if isAbs(target) {
				cur = r.rootDirent()
			}

			pending = append(splitPath(target), pending...)
			continue
		}

		cur = &Dirent{Name: name, Parent: cur, Inode: child}
	}

	if cacheable {
		r.cache.Add(path, cur)
	}

	return cur, nil
}

func (r *RootFs) create(ctx context.Context, dir *Dirent, name string, opts LookupOptions) (*Inode, error) {
	creator, ok := dir.Inode.Ops.(Creator)
	if !ok {
		return nil, errors.Wrapf(ErrReadOnly, "create %q in %s", name, dir.Path())
	}

	r.L.Trace("vfs-create", "dir", dir.Path(), "name", name, "type", opts.CreateType)

	inode, err := creator.Create(ctx, dir.Inode, name, opts.CreateType, opts.Perms)
	if err != nil {
		return nil, errors.Wrapf(err, "create %q in %s", name, dir.Path())
	}

	r.cache.Purge()

	return inode, nil
}

// LookupInode resolves path relative to the directory start, or from the
// root when path is absolute or start is nil.
func (r *RootFs) LookupInode(ctx context.Context, start *Inode, path string, followLast bool) (*Inode, error) {
	var from *Dirent
	if start != nil {
		from = &Dirent{Inode: start}
	}

	d, err := r.Resolve(ctx, from, path, LookupOptions{FollowLast: followLast})
	if err != nil {
		return nil, err
	}

	return d.Inode, nil
}

// LookupPath resolves an absolute path, following symlinks.
func (r *RootFs) LookupPath(ctx context.Context, path string) (*Inode, error) {
	return r.LookupInode(ctx, nil, path, true)
}

func (r *RootFs) LookupDir(ctx context.Context, path string) (*Inode, error) {
	inode, err := r.LookupPath(ctx, path)
	if err != nil {
		return nil, err
	}

	if !inode.IsDir() {
		return nil, errors.Wrapf(ErrNotDirectory, "%s", path)
	}

	return inode, nil
}

func (r *RootFs) LookupFile(ctx context.Context, path string) (*Inode, error) {
	inode, err := r.LookupPath(ctx, path)
	if err != nil {
		return nil, err
	}

	if inode.IsDir() {
		return nil, errors.Wrapf(ErrIsDirectory, "%s", path)
	}

	return inode, nil
}
