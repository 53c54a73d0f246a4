// Package elf parses the header and program header table of ELF64
// executables.
//
// Every field is copied out of the caller's buffer after its range has been
// checked, so a truncated or hostile image can only produce
// ErrMalformedBinary.
package elf

import (
	delf "debug/elf"
	"encoding/binary"

	"github.com/davecgh/go-spew/spew"
	"github.com/pkg/errors"
)

var ErrMalformedBinary = errors.New("malformed binary")

const (
	// HeaderSize is the size of an ELF64 file header.
	HeaderSize = 64

	// ProgramHeaderSize is the size of one ELF64 program header.
	ProgramHeaderSize = 56
)

// Machine is the architecture executables must be built for.
const Machine = delf.EM_X86_64

var le = binary.LittleEndian

type Header struct {
	Type      delf.Type
	Machine   delf.Machine
	Version   uint32
	Entry     uint64
	Phoff     uint64
	Shoff     uint64
	Flags     uint32
	Ehsize    uint16
	Phentsize uint16
	Phnum     uint16
	Shentsize uint16
	Shnum     uint16
	Shstrndx  uint16
}

type ProgramHeader struct {
	Type   delf.ProgType
	Flags  delf.ProgFlag
	Offset uint64
	Vaddr  uint64
	Paddr  uint64
	Filesz uint64
	Memsz  uint64
	Align  uint64
}

// Validate checks the header's internal consistency. It says nothing about
// the buffer the header came from; see File.SegmentData for that.
func (ph *ProgramHeader) Validate() error {
	if ph.Filesz > ph.Memsz {
		return errors.Wrapf(ErrMalformedBinary, "segment at %#x: filesz %#x > memsz %#x", ph.Vaddr, ph.Filesz, ph.Memsz)
	}

	if ph.Vaddr+ph.Memsz < ph.Vaddr {
		return errors.Wrapf(ErrMalformedBinary, "segment at %#x wraps the address space", ph.Vaddr)
	}

	return nil
}

// File is the parsed view of an executable. It holds no reference to the
// buffer it was parsed from.
type File struct {
	Header         Header
	programHeaders []ProgramHeader
}

func (f *File) Entry() uint64 {
	return f.Header.Entry
}

func (f *File) ProgramHeaders() []ProgramHeader {
	return f.programHeaders
}

// LoadSegments returns the PT_LOAD program headers in table order.
func (f *File) LoadSegments() []ProgramHeader {
	var out []ProgramHeader

	for _, ph := range f.programHeaders {
		if ph.Type == delf.PT_LOAD {
			out = append(out, ph)
		}
	}

	return out
}

// SegmentData returns the file bytes of ph within buf.
func (f *File) SegmentData(buf []byte, ph ProgramHeader) ([]byte, error) {
	if !inBounds(buf, ph.Offset, ph.Filesz) {
		return nil, errors.Wrapf(ErrMalformedBinary, "segment data %#x+%#x outside image of %#x bytes", ph.Offset, ph.Filesz, len(buf))
	}

	return buf[ph.Offset : ph.Offset+ph.Filesz], nil
}

func (f *File) String() string {
	return spew.Sdump(f.Header, f.programHeaders)
}

func inBounds(buf []byte, off, size uint64) bool {
	n := uint64(len(buf))
	return off <= n && size <= n-off
}

// Parse validates buf as an ELF64 executable for Machine and returns its
// header and program headers.
func Parse(buf []byte) (*File, error) {
	if len(buf) < HeaderSize {
		return nil, errors.Wrapf(ErrMalformedBinary, "image is %d bytes, header needs %d", len(buf), HeaderSize)
	}

	ident := buf[:delf.EI_NIDENT]

	if string(ident[:4]) != delf.ELFMAG {
		return nil, errors.Wrap(ErrMalformedBinary, "bad magic")
	}

	if delf.Class(ident[delf.EI_CLASS]) != delf.ELFCLASS64 {
		return nil, errors.Wrapf(ErrMalformedBinary, "unsupported class %s", delf.Class(ident[delf.EI_CLASS]))
	}

	if delf.Data(ident[delf.EI_DATA]) != delf.ELFDATA2LSB {
		return nil, errors.Wrapf(ErrMalformedBinary, "unsupported byte order %s", delf.Data(ident[delf.EI_DATA]))
	}

	hdr := readHeader(buf[delf.EI_NIDENT:HeaderSize])

	if hdr.Machine != Machine {
		return nil, errors.Wrapf(ErrMalformedBinary, "built for %s, want %s", hdr.Machine, Machine)
	}

	f := &File{Header: hdr}

	if hdr.Phnum == 0 {
		return f, nil
	}

	if hdr.Phentsize != ProgramHeaderSize {
		return nil, errors.Wrapf(ErrMalformedBinary, "program header size %d, want %d", hdr.Phentsize, ProgramHeaderSize)
	}

	tableSize := uint64(hdr.Phnum) * ProgramHeaderSize

	if !inBounds(buf, hdr.Phoff, tableSize) {
		return nil, errors.Wrapf(ErrMalformedBinary, "program headers %#x+%#x outside image of %#x bytes", hdr.Phoff, tableSize, len(buf))
	}

	table := buf[hdr.Phoff : hdr.Phoff+tableSize]

	f.programHeaders = make([]ProgramHeader, hdr.Phnum)

	for i := range f.programHeaders {
		f.programHeaders[i] = readProgramHeader(table[i*ProgramHeaderSize : (i+1)*ProgramHeaderSize])
	}

	return f, nil
}

// readHeader decodes the header fields following e_ident. b must be exactly
// HeaderSize-EI_NIDENT bytes.
func readHeader(b []byte) Header {
	return Header{
		Type:      delf.Type(le.Uint16(b[0:])),
		Machine:   delf.Machine(le.Uint16(b[2:])),
		Version:   le.Uint32(b[4:]),
		Entry:     le.Uint64(b[8:]),
		Phoff:     le.Uint64(b[16:]),
		Shoff:     le.Uint64(b[24:]),
		Flags:     le.Uint32(b[32:]),
		Ehsize:    le.Uint16(b[36:]),
		Phentsize: le.Uint16(b[38:]),
		Phnum:     le.Uint16(b[40:]),
		Shentsize: le.Uint16(b[42:]),
		Shnum:     le.Uint16(b[44:]),
		Shstrndx:  le.Uint16(b[46:]),
	}
}

// b must be exactly ProgramHeaderSize bytes.
func readProgramHeader(b []byte) ProgramHeader {
	return ProgramHeader{
		Type:   delf.ProgType(le.Uint32(b[0:])),
		Flags:  delf.ProgFlag(le.Uint32(b[4:])),
		Offset: le.Uint64(b[8:]),
		Vaddr:  le.Uint64(b[16:]),
		Paddr:  le.Uint64(b[24:]),
		Filesz: le.Uint64(b[32:]),
		Memsz:  le.Uint64(b[40:]),
		Align:  le.Uint64(b[48:]),
	}
}
