package tarfs

import (
	"bytes"
	"context"
	"testing"

	"github.com/evanphx/penguin/fs"
	"github.com/evanphx/penguin/testutils"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/vektra/neko"
)

func TestTarFS(t *testing.T) {
	n := neko.Modern(t)

	ctx := context.Background()

	load := func(t *testing.T, entries ...testutils.Entry) *fs.Inode {
		tfs, err := NewTarFS(bytes.NewReader(testutils.BuildTar(entries...)))
		require.NoError(t, err)

		root, err := tfs.Root()
		require.NoError(t, err)

		return root
	}

	n.It("builds the directory tree", func(t *testing.T) {
		root := load(t,
			testutils.Dir("bin"),
			testutils.File("bin/sh", []byte("sh")),
			testutils.Symlink("bin/ash", "sh"),
		)

		bin, err := root.Ops.LookupChild(ctx, root, "bin")
		require.NoError(t, err)
		require.Equal(t, fs.Directory, bin.StableAttr.Type)

		sh, err := bin.Ops.LookupChild(ctx, bin, "sh")
		require.NoError(t, err)
		require.Equal(t, fs.RegularFile, sh.StableAttr.Type)

		body, err := fs.ReadAll(ctx, sh)
		require.NoError(t, err)
		require.Equal(t, "sh", string(body))

		ash, err := bin.Ops.LookupChild(ctx, bin, "ash")
		require.NoError(t, err)

		target, err := ash.Ops.ReadLink(ctx, ash)
		require.NoError(t, err)
		require.Equal(t, "sh", target)
	})

	n.It("creates parents that the archive omits", func(t *testing.T) {
		root := load(t, testutils.File("usr/lib/x", []byte("x")))

		usr, err := root.Ops.LookupChild(ctx, root, "usr")
		require.NoError(t, err)
		require.True(t, usr.IsDir())
	})

	n.It("reports missing children", func(t *testing.T) {
		root := load(t)

		_, err := root.Ops.LookupChild(ctx, root, "nope")
		require.Equal(t, fs.ErrNotFound, errors.Cause(err))
	})

	n.It("creates and writes files", func(t *testing.T) {
		root := load(t)

		creator := root.Ops.(fs.Creator)

		f, err := creator.Create(ctx, root, "log", fs.RegularFile, 0644)
		require.NoError(t, err)

		_, err = creator.Create(ctx, root, "log", fs.RegularFile, 0644)
		require.Equal(t, fs.ErrExists, errors.Cause(err))

		h, err := f.Ops.Open(ctx, f, fs.OpenFlags{Write: true})
		require.NoError(t, err)

		_, err = h.WriteAt(ctx, []byte("abc"), 2)
		require.NoError(t, err)

		attr, err := f.Ops.UnstableAttr(ctx, f)
		require.NoError(t, err)
		require.Equal(t, int64(5), attr.Size)

		body, err := fs.ReadAll(ctx, f)
		require.NoError(t, err)
		require.Equal(t, []byte{0, 0, 'a', 'b', 'c'}, body)
	})

	n.It("gives every inode a distinct identity", func(t *testing.T) {
		root := load(t, testutils.File("a", nil), testutils.File("b", nil))

		a, err := root.Ops.LookupChild(ctx, root, "a")
		require.NoError(t, err)

		b, err := root.Ops.LookupChild(ctx, root, "b")
		require.NoError(t, err)

		require.NotEqual(t, a.Key(), b.Key())
		require.NotEqual(t, root.Key(), a.Key())
	})

	n.Meow()
}
