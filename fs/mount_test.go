package fs_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/evanphx/penguin/fs"
	"github.com/evanphx/penguin/fs/devfs"
	"github.com/evanphx/penguin/fs/tarfs"
	"github.com/evanphx/penguin/testutils"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/vektra/neko"
)

func newRootFs(t *testing.T, opts fs.Options, entries ...testutils.Entry) *fs.RootFs {
	tfs, err := tarfs.NewTarFS(bytes.NewReader(testutils.BuildTar(entries...)))
	require.NoError(t, err)

	r, err := fs.NewRootFs(tfs, opts)
	require.NoError(t, err)

	return r
}

func TestRootFs(t *testing.T) {
	n := neko.Modern(t)

	ctx := context.Background()

	n.It("resolves /dev/console only after devfs is mounted", func(t *testing.T) {
		r := newRootFs(t, fs.Options{}, testutils.Dir("dev"))

		_, err := r.LookupPath(ctx, "/dev/console")
		require.Equal(t, fs.ErrNotFound, errors.Cause(err))

		dev, err := r.LookupDir(ctx, "/dev")
		require.NoError(t, err)

		require.NoError(t, r.Mount(dev, devfs.New(&bytes.Buffer{})))

		console, err := r.LookupPath(ctx, "/dev/console")
		require.NoError(t, err)
		require.Equal(t, fs.CharacterDevice, console.StableAttr.Type)
	})

	n.It("rejects a second mount on the same directory", func(t *testing.T) {
		r := newRootFs(t, fs.Options{}, testutils.Dir("dev"))

		dev, err := r.LookupDir(ctx, "/dev")
		require.NoError(t, err)

		require.NoError(t, r.Mount(dev, devfs.New(&bytes.Buffer{})))

		err = r.Mount(dev, devfs.New(&bytes.Buffer{}))
		require.Equal(t, fs.ErrAlreadyMounted, errors.Cause(err))

		// Looking /dev up again yields the mounted root; it is the same
		// mount point.
		mounted, err := r.LookupDir(ctx, "/dev")
		require.NoError(t, err)

		err = r.Mount(mounted, devfs.New(&bytes.Buffer{}))
		require.Equal(t, fs.ErrAlreadyMounted, errors.Cause(err))

		_, err = r.LookupPath(ctx, "/dev/console")
		require.NoError(t, err)
	})

	n.It("rejects mounting on a file", func(t *testing.T) {
		r := newRootFs(t, fs.Options{}, testutils.File("motd", []byte("hi")))

		motd, err := r.LookupFile(ctx, "/motd")
		require.NoError(t, err)

		err = r.Mount(motd, devfs.New(&bytes.Buffer{}))
		require.Equal(t, fs.ErrNotDirectory, errors.Cause(err))
	})

	n.It("rejects targets outside the tree", func(t *testing.T) {
		r := newRootFs(t, fs.Options{})

		stray := devfs.New(&bytes.Buffer{})
		strayRoot, err := stray.Root()
		require.NoError(t, err)

		err = r.Mount(strayRoot, devfs.New(&bytes.Buffer{}))
		require.Equal(t, fs.ErrNotReachable, errors.Cause(err))
	})

	n.It("walks .. back across a mount point", func(t *testing.T) {
		r := newRootFs(t, fs.Options{},
			testutils.Dir("dev"),
			testutils.File("motd", []byte("hi")),
		)

		dev, err := r.LookupDir(ctx, "/dev")
		require.NoError(t, err)
		require.NoError(t, r.Mount(dev, devfs.New(&bytes.Buffer{})))

		motd, err := r.LookupPath(ctx, "/dev/../motd")
		require.NoError(t, err)
		require.Equal(t, fs.RegularFile, motd.StableAttr.Type)

		root, err := r.LookupPath(ctx, "/../..")
		require.NoError(t, err)
		require.Equal(t, r.RootDir(), root)
	})

	n.It("resolves relative to a starting directory", func(t *testing.T) {
		r := newRootFs(t, fs.Options{},
			testutils.Dir("etc"),
			testutils.File("etc/motd", []byte("hi")),
		)

		etc, err := r.LookupDir(ctx, "/etc")
		require.NoError(t, err)

		motd, err := r.LookupInode(ctx, etc, "motd", true)
		require.NoError(t, err)
		require.Equal(t, fs.RegularFile, motd.StableAttr.Type)

		_, err = r.LookupInode(ctx, etc, "etc/motd", true)
		require.Equal(t, fs.ErrNotFound, errors.Cause(err))
	})

	n.It("fails through a non-directory component", func(t *testing.T) {
		r := newRootFs(t, fs.Options{}, testutils.File("motd", []byte("hi")))

		_, err := r.LookupPath(ctx, "/motd/x")
		require.Equal(t, fs.ErrNotDirectory, errors.Cause(err))

		_, err = r.LookupDir(ctx, "/motd")
		require.Equal(t, fs.ErrNotDirectory, errors.Cause(err))

		_, err = r.LookupFile(ctx, "/")
		require.Equal(t, fs.ErrIsDirectory, errors.Cause(err))
	})

	n.It("follows symlinks", func(t *testing.T) {
		r := newRootFs(t, fs.Options{},
			testutils.Dir("bin"),
			testutils.File("bin/busybox", []byte("bb")),
			testutils.Symlink("bin/sh", "busybox"),
			testutils.Symlink("sbin", "/bin"),
		)

		sh, err := r.LookupPath(ctx, "/sbin/sh")
		require.NoError(t, err)
		require.Equal(t, fs.RegularFile, sh.StableAttr.Type)

		link, err := r.LookupInode(ctx, nil, "/bin/sh", false)
		require.NoError(t, err)
		require.Equal(t, fs.Symlink, link.StableAttr.Type)
	})

	n.It("bounds symlink resolution", func(t *testing.T) {
		r := newRootFs(t, fs.Options{},
			testutils.Symlink("a", "b"),
			testutils.Symlink("b", "a"),
		)

		_, err := r.LookupPath(ctx, "/a")
		require.Equal(t, fs.ErrTooManySymlinks, errors.Cause(err))
	})

	n.It("honors a tuned symlink bound", func(t *testing.T) {
		entries := []testutils.Entry{
			testutils.File("f", []byte("x")),
			testutils.Symlink("l1", "f"),
			testutils.Symlink("l2", "l1"),
			testutils.Symlink("l3", "l2"),
		}

		r := newRootFs(t, fs.Options{MaxSymlinks: 2}, entries...)

		_, err := r.LookupPath(ctx, "/l2")
		require.NoError(t, err)

		_, err = r.LookupPath(ctx, "/l3")
		require.Equal(t, fs.ErrTooManySymlinks, errors.Cause(err))
	})

	n.It("creates the final component on request", func(t *testing.T) {
		r := newRootFs(t, fs.Options{}, testutils.Dir("tmp"))

		opts := fs.LookupOptions{FollowLast: true, Create: true, CreateType: fs.RegularFile, Perms: 0644}

		d, err := r.Resolve(ctx, nil, "/tmp/new", opts)
		require.NoError(t, err)
		require.Equal(t, "/tmp/new", d.Path())

		again, err := r.LookupPath(ctx, "/tmp/new")
		require.NoError(t, err)
		require.Equal(t, d.Inode, again)

		_, err = r.Resolve(ctx, nil, "/tmp/missing/new", opts)
		require.Equal(t, fs.ErrNotFound, errors.Cause(err))
	})

	n.It("refuses creation on read-only backends", func(t *testing.T) {
		r := newRootFs(t, fs.Options{}, testutils.Dir("dev"))

		dev, err := r.LookupDir(ctx, "/dev")
		require.NoError(t, err)
		require.NoError(t, r.Mount(dev, devfs.New(&bytes.Buffer{})))

		opts := fs.LookupOptions{Create: true, CreateType: fs.RegularFile}

		_, err = r.Resolve(ctx, nil, "/dev/tty9", opts)
		require.Equal(t, fs.ErrReadOnly, errors.Cause(err))
	})

	n.It("does not serve stale cache entries after a mount", func(t *testing.T) {
		r := newRootFs(t, fs.Options{}, testutils.Dir("mnt"))

		before, err := r.LookupPath(ctx, "/mnt")
		require.NoError(t, err)

		require.NoError(t, r.Mount(before, devfs.New(&bytes.Buffer{})))

		after, err := r.LookupPath(ctx, "/mnt")
		require.NoError(t, err)
		require.NotEqual(t, before.Key(), after.Key())
		require.True(t, r.IsMountPoint(before))
	})

	n.It("rejects an empty path", func(t *testing.T) {
		r := newRootFs(t, fs.Options{})

		_, err := r.LookupPath(ctx, "")
		require.Equal(t, fs.ErrNotFound, errors.Cause(err))
	})

	n.Meow()
}
