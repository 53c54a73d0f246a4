package kernel

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/vektra/neko"
)

func TestFDTable(t *testing.T) {
	n := neko.Modern(t)

	n.It("allocates the lowest unused descriptor", func(t *testing.T) {
		tbl := NewFDTable()

		for i := 0; i < 3; i++ {
			fd, err := tbl.Open(openCounting(&countingFile{}), OpenOptions{})
			require.NoError(t, err)
			require.Equal(t, Fd(i), fd)
		}

		require.NoError(t, tbl.Close(1))

		fd, err := tbl.Open(openCounting(&countingFile{}), OpenOptions{})
		require.NoError(t, err)
		require.Equal(t, Fd(1), fd)
	})

	n.It("reports exhaustion", func(t *testing.T) {
		tbl := NewFDTable()
		c := &countingFile{}

		first, err := tbl.Open(openCounting(c), OpenOptions{})
		require.NoError(t, err)

		for i := 1; i < MaxFds; i++ {
			_, err := tbl.Dup(first, OpenOptions{})
			require.NoError(t, err)
		}

		_, err = tbl.Dup(first, OpenOptions{})
		require.Equal(t, ErrResourceExhausted, errors.Cause(err))

		_, err = tbl.Open(openCounting(&countingFile{}), OpenOptions{})
		require.Equal(t, ErrResourceExhausted, errors.Cause(err))
	})

	n.It("rejects unbound and out of range descriptors", func(t *testing.T) {
		tbl := NewFDTable()

		for _, fd := range []Fd{-1, 0, 7, MaxFds} {
			_, _, err := tbl.Get(fd)
			require.Equal(t, ErrBadDescriptor, errors.Cause(err))

			require.Equal(t, ErrBadDescriptor, errors.Cause(tbl.Close(fd)))
		}
	})

	n.It("treats dup2 onto itself as a no-op", func(t *testing.T) {
		tbl := NewFDTable()
		c := &countingFile{}

		fd, err := tbl.Open(openCounting(c), NewOpenOptions(true, false))
		require.NoError(t, err)

		res, err := tbl.Dup2(fd, fd, OpenOptions{})
		require.NoError(t, err)
		require.Equal(t, fd, res)

		file, opts, err := tbl.Get(fd)
		require.NoError(t, err)
		require.Equal(t, 1, file.Refs())
		require.True(t, opts.CloseOnExec)
		require.Equal(t, 0, c.Closes())
	})

	n.It("shares the file between dup2 descriptors and closes it once", func(t *testing.T) {
		tbl := NewFDTable()
		a := &countingFile{}
		b := &countingFile{}

		fa, err := tbl.Open(openCounting(a), OpenOptions{})
		require.NoError(t, err)

		fb, err := tbl.Open(openCounting(b), OpenOptions{})
		require.NoError(t, err)

		res, err := tbl.Dup2(fa, fb, NewOpenOptions(true, false))
		require.NoError(t, err)
		require.Equal(t, fb, res)

		require.Equal(t, 1, b.Closes())

		f1, o1, err := tbl.Get(fa)
		require.NoError(t, err)

		f2, o2, err := tbl.Get(fb)
		require.NoError(t, err)

		require.True(t, f1 == f2)
		require.Equal(t, 2, f1.Refs())
		require.False(t, o1.CloseOnExec)
		require.True(t, o2.CloseOnExec)

		ctx := context.Background()

		_, err = f1.Write(ctx, []byte("abc"), false)
		require.NoError(t, err)
		require.Equal(t, int64(3), f2.Pos())

		require.NoError(t, tbl.Close(fa))
		require.Equal(t, 0, a.Closes())

		require.NoError(t, tbl.Close(fb))
		require.Equal(t, 1, a.Closes())
	})

	n.It("leaves the table alone when dup2 gets an unbound descriptor", func(t *testing.T) {
		tbl := NewFDTable()
		c := &countingFile{}

		fd, err := tbl.Open(openCounting(c), OpenOptions{})
		require.NoError(t, err)

		_, err = tbl.Dup2(5, fd, OpenOptions{})
		require.Equal(t, ErrBadDescriptor, errors.Cause(err))

		_, err = tbl.Dup2(fd, MaxFds, OpenOptions{})
		require.Equal(t, ErrBadDescriptor, errors.Cause(err))

		file, _, err := tbl.Get(fd)
		require.NoError(t, err)
		require.Equal(t, 1, file.Refs())
		require.Equal(t, 1, tbl.Len())
		require.Equal(t, 0, c.Closes())
	})

	n.It("closes only close-on-exec descriptors on exec", func(t *testing.T) {
		tbl := NewFDTable()
		keep := &countingFile{}
		drop := &countingFile{}

		_, err := tbl.Open(openCounting(keep), OpenOptions{})
		require.NoError(t, err)

		_, err = tbl.Open(openCounting(drop), NewOpenOptions(true, false))
		require.NoError(t, err)

		tbl.CloseOnExec()

		require.Equal(t, 1, tbl.Len())
		require.Equal(t, 0, keep.Closes())
		require.Equal(t, 1, drop.Closes())

		tbl.CloseAll()
		require.Equal(t, 0, tbl.Len())
		require.Equal(t, 1, keep.Closes())
	})

	n.It("appends at the end of the file", func(t *testing.T) {
		tbl := NewFDTable()
		c := &countingFile{data: []byte("hello")}

		fd, err := tbl.Open(openCounting(c), NewOpenOptions(false, true))
		require.NoError(t, err)

		file, opts, err := tbl.Get(fd)
		require.NoError(t, err)

		_, err = file.Write(context.Background(), []byte(" world"), opts.Append)
		require.NoError(t, err)

		require.Equal(t, "hello world", string(c.data))
	})

	n.Meow()
}
