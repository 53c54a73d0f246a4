package elf

import (
	delf "debug/elf"
	"encoding/binary"
	"testing"

	"github.com/evanphx/penguin/testutils"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/vektra/neko"
)

func TestParse(t *testing.T) {
	n := neko.Modern(t)

	n.It("exposes the entry point and every program header", func(t *testing.T) {
		buf := testutils.BuildELF(testutils.Image{
			Entry: 0x401234,
			Segments: []testutils.Segment{
				{Vaddr: 0x400000, Data: []byte("text"), Flags: delf.PF_R | delf.PF_X},
				{Vaddr: 0x600000, Data: []byte("data"), Memsz: 0x2000, Flags: delf.PF_R | delf.PF_W},
			},
			Extra: []delf.ProgType{delf.PT_NOTE},
		})

		f, err := Parse(buf)
		require.NoError(t, err)

		require.Equal(t, uint64(0x401234), f.Entry())
		require.Len(t, f.ProgramHeaders(), 3)

		loads := f.LoadSegments()
		require.Len(t, loads, 2)

		require.Equal(t, uint64(0x600000), loads[1].Vaddr)
		require.Equal(t, uint64(4), loads[1].Filesz)
		require.Equal(t, uint64(0x2000), loads[1].Memsz)
		require.Equal(t, delf.PF_R|delf.PF_W, loads[1].Flags)

		data, err := f.SegmentData(buf, loads[0])
		require.NoError(t, err)
		require.Equal(t, "text", string(data))
	})

	n.It("accepts an image without program headers", func(t *testing.T) {
		buf := testutils.BuildELF(testutils.Image{Entry: 0x1000})

		f, err := Parse(buf)
		require.NoError(t, err)
		require.Empty(t, f.ProgramHeaders())
	})

	n.It("rejects buffers shorter than the header", func(t *testing.T) {
		buf := testutils.MinimalELF()

		for _, l := range []int{0, 1, 16, HeaderSize - 1} {
			_, err := Parse(buf[:l])
			require.Equal(t, ErrMalformedBinary, errors.Cause(err), "length %d", l)
		}
	})

	n.It("rejects bad magic", func(t *testing.T) {
		buf := testutils.MinimalELF()
		buf[1] = 'X'

		_, err := Parse(buf)
		require.Equal(t, ErrMalformedBinary, errors.Cause(err))
	})

	n.It("rejects 32 bit images", func(t *testing.T) {
		buf := testutils.MinimalELF()
		buf[delf.EI_CLASS] = byte(delf.ELFCLASS32)

		_, err := Parse(buf)
		require.Equal(t, ErrMalformedBinary, errors.Cause(err))
	})

	n.It("rejects big endian images", func(t *testing.T) {
		buf := testutils.MinimalELF()
		buf[delf.EI_DATA] = byte(delf.ELFDATA2MSB)

		_, err := Parse(buf)
		require.Equal(t, ErrMalformedBinary, errors.Cause(err))
	})

	n.It("rejects foreign machines", func(t *testing.T) {
		buf := testutils.BuildELF(testutils.Image{Entry: 0x1000, Machine: delf.EM_AARCH64})

		_, err := Parse(buf)
		require.Equal(t, ErrMalformedBinary, errors.Cause(err))
	})

	n.It("rejects a program header table past the end of the buffer", func(t *testing.T) {
		buf := testutils.MinimalELF()

		// Claim more headers than the buffer holds.
		binary.LittleEndian.PutUint16(buf[56:], 200)

		_, err := Parse(buf)
		require.Equal(t, ErrMalformedBinary, errors.Cause(err))
	})

	n.It("rejects a program header offset that would overflow", func(t *testing.T) {
		buf := testutils.MinimalELF()

		binary.LittleEndian.PutUint64(buf[32:], ^uint64(0)-8)

		_, err := Parse(buf)
		require.Equal(t, ErrMalformedBinary, errors.Cause(err))
	})

	n.It("rejects a truncated program header table", func(t *testing.T) {
		buf := testutils.MinimalELF()

		_, err := Parse(buf[:HeaderSize+ProgramHeaderSize-1])
		require.Equal(t, ErrMalformedBinary, errors.Cause(err))
	})

	n.It("rejects an unexpected program header size", func(t *testing.T) {
		buf := testutils.MinimalELF()
		binary.LittleEndian.PutUint16(buf[54:], 32)

		_, err := Parse(buf)
		require.Equal(t, ErrMalformedBinary, errors.Cause(err))
	})

	n.It("bounds checks segment data", func(t *testing.T) {
		buf := testutils.MinimalELF()

		f, err := Parse(buf)
		require.NoError(t, err)

		ph := f.LoadSegments()[0]
		ph.Filesz = uint64(len(buf))

		_, err = f.SegmentData(buf, ph)
		require.Equal(t, ErrMalformedBinary, errors.Cause(err))
	})

	n.It("validates segment sizes", func(t *testing.T) {
		ph := ProgramHeader{Vaddr: 0x1000, Filesz: 0x20, Memsz: 0x10}
		require.Equal(t, ErrMalformedBinary, errors.Cause(ph.Validate()))

		ph = ProgramHeader{Vaddr: ^uint64(0) - 1, Filesz: 0, Memsz: 0x10}
		require.Equal(t, ErrMalformedBinary, errors.Cause(ph.Validate()))

		ph = ProgramHeader{Vaddr: 0x1000, Filesz: 0x10, Memsz: 0x20}
		require.NoError(t, ph.Validate())
	})

	n.Meow()
}
