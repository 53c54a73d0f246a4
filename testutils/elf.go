// Package testutils builds fixtures shared by the kernel's package tests.
package testutils

import (
	delf "debug/elf"
	"encoding/binary"
)

// Segment describes one PT_LOAD segment of a synthetic executable.
type Segment struct {
	Vaddr uint64
	Data  []byte
	Memsz uint64
	Flags delf.ProgFlag
}

// Image describes a synthetic ELF64 executable.
type Image struct {
	Entry    uint64
	Machine  delf.Machine
	Segments []Segment

	// Extra program headers appended after the loadable ones, e.g. PT_NOTE.
	Extra []delf.ProgType
}

// BuildELF lays out a little endian ELF64 executable: the file header, the
// program header table immediately after it, then segment data in order.
func BuildELF(img Image) []byte {
	if img.Machine == 0 {
		img.Machine = delf.EM_X86_64
	}

	const (
		ehsize    = 64
		phentsize = 56
	)

	phnum := len(img.Segments) + len(img.Extra)
	dataStart := ehsize + phnum*phentsize

	size := dataStart
	for _, seg := range img.Segments {
		size += len(seg.Data)
	}

	buf := make([]byte, size)
	le := binary.LittleEndian

	copy(buf, delf.ELFMAG)
	buf[delf.EI_CLASS] = byte(delf.ELFCLASS64)
	buf[delf.EI_DATA] = byte(delf.ELFDATA2LSB)
	buf[delf.EI_VERSION] = byte(delf.EV_CURRENT)

	le.PutUint16(buf[16:], uint16(delf.ET_EXEC))
	le.PutUint16(buf[18:], uint16(img.Machine))
	le.PutUint32(buf[20:], uint32(delf.EV_CURRENT))
	le.PutUint64(buf[24:], img.Entry)
	le.PutUint64(buf[32:], ehsize)
	le.PutUint16(buf[52:], ehsize)
	le.PutUint16(buf[54:], phentsize)
	le.PutUint16(buf[56:], uint16(phnum))

	off := dataStart
	ph := buf[ehsize:]

	for _, seg := range img.Segments {
		memsz := seg.Memsz
		if memsz < uint64(len(seg.Data)) {
			memsz = uint64(len(seg.Data))
		}

		le.PutUint32(ph[0:], uint32(delf.PT_LOAD))
		le.PutUint32(ph[4:], uint32(seg.Flags))
		le.PutUint64(ph[8:], uint64(off))
		le.PutUint64(ph[16:], seg.Vaddr)
		le.PutUint64(ph[24:], seg.Vaddr)
		le.PutUint64(ph[32:], uint64(len(seg.Data)))
		le.PutUint64(ph[40:], memsz)
		le.PutUint64(ph[48:], 0x1000)

		copy(buf[off:], seg.Data)
		off += len(seg.Data)
		ph = ph[phentsize:]
	}

	for _, typ := range img.Extra {
		le.PutUint32(ph[0:], uint32(typ))
		ph = ph[phentsize:]
	}

	return buf
}

// MinimalELF is an executable with one read/execute segment at 0x400000.
func MinimalELF() []byte {
	return BuildELF(Image{
		Entry: 0x400000,
		Segments: []Segment{
			{
				Vaddr: 0x400000,
				Data:  []byte{0xf4, 0xeb, 0xfd}, // hlt; jmp -3
				Flags: delf.PF_R | delf.PF_X,
			},
		},
	})
}
