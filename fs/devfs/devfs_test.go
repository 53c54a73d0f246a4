package devfs

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/evanphx/penguin/fs"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/vektra/neko"
)

func TestDevFS(t *testing.T) {
	n := neko.Modern(t)

	ctx := context.Background()

	lookup := func(t *testing.T, d *DevFS, name string) *fs.Inode {
		root, err := d.Root()
		require.NoError(t, err)

		inode, err := root.Ops.LookupChild(ctx, root, name)
		require.NoError(t, err)

		return inode
	}

	n.It("exposes the console as a character device", func(t *testing.T) {
		var buf bytes.Buffer
		buf.WriteString("input")

		d := New(&buf)

		console := lookup(t, d, "console")
		require.Equal(t, fs.CharacterDevice, console.StableAttr.Type)
		require.Equal(t, uint16(5), console.StableAttr.DeviceFileMajor)
		require.Equal(t, uint32(1), console.StableAttr.DeviceFileMinor)

		h, err := console.Ops.Open(ctx, console, fs.OpenFlags{Read: true, Write: true})
		require.NoError(t, err)

		p := make([]byte, 5)
		cnt, err := h.ReadAt(ctx, p, 100)
		require.NoError(t, err)
		require.Equal(t, "input", string(p[:cnt]))

		_, err = h.WriteAt(ctx, []byte("output"), 0)
		require.NoError(t, err)
		require.Equal(t, "output", buf.String())

		_, err = h.(Terminal).Winsize()
		require.Equal(t, ErrNotTTY, errors.Cause(err))
	})

	n.It("tolerates a missing console stream", func(t *testing.T) {
		d := New(nil)

		console := lookup(t, d, "console")

		h, err := console.Ops.Open(ctx, console, fs.OpenFlags{Write: true})
		require.NoError(t, err)

		cnt, err := h.WriteAt(ctx, []byte("lost"), 0)
		require.NoError(t, err)
		require.Equal(t, 4, cnt)

		_, err = h.ReadAt(ctx, make([]byte, 1), 0)
		require.Equal(t, io.EOF, err)
	})

	n.It("discards writes to null", func(t *testing.T) {
		d := New(nil)

		null := lookup(t, d, "null")

		h, err := null.Ops.Open(ctx, null, fs.OpenFlags{Read: true, Write: true})
		require.NoError(t, err)

		cnt, err := h.WriteAt(ctx, []byte("gone"), 0)
		require.NoError(t, err)
		require.Equal(t, 4, cnt)

		_, err = h.ReadAt(ctx, make([]byte, 1), 0)
		require.Equal(t, io.EOF, err)
	})

	n.It("reports unknown devices", func(t *testing.T) {
		d := New(nil)

		root, err := d.Root()
		require.NoError(t, err)
		require.True(t, root.IsDir())

		_, err = root.Ops.LookupChild(ctx, root, "tty0")
		require.Equal(t, fs.ErrNotFound, errors.Cause(err))

		console := lookup(t, d, "console")
		null := lookup(t, d, "null")

		require.Equal(t, root.StableAttr.DeviceID, console.StableAttr.DeviceID)
		require.NotEqual(t, console.StableAttr.InodeID, null.StableAttr.InodeID)
	})

	n.Meow()
}
