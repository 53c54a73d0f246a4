package kernel

import (
	"context"
	delf "debug/elf"
	"encoding/binary"

	"github.com/evanphx/penguin/arch"
	"github.com/evanphx/penguin/elf"
	"github.com/evanphx/penguin/fs"
	"github.com/evanphx/penguin/memory"
	"github.com/pkg/errors"
)

const (
	// StackTop is the first address above the user stack.
	StackTop uint64 = 0x7ffffffff000

	StackPages = 8

	// MaxArgBytes bounds the argv strings written to a new stack.
	MaxArgBytes = (StackPages - 1) * memory.PageSize
)

type image struct {
	mem     *memory.VirtualMemory
	context arch.Context
}

func segmentPerm(flags delf.ProgFlag) memory.Perm {
	var perm memory.Perm

	if flags&delf.PF_R != 0 {
		perm |= memory.PermRead
	}

	if flags&delf.PF_W != 0 {
		perm |= memory.PermWrite
	}

	if flags&delf.PF_X != 0 {
		perm |= memory.PermExec
	}

	return perm
}

// loadImage builds a fresh address space holding the executable in exe and
// a stack carrying argv. The caller owns the returned memory.
func (pm *ProcessManager) loadImage(ctx context.Context, exe *fs.Inode, argv []string) (*image, error) {
	buf, err := fs.ReadAll(ctx, exe)
	if err != nil {
		return nil, errors.Wrapf(err, "read executable %s", exe)
	}

	f, err := pm.loader.Load(buf)
	if err != nil {
		return nil, err
	}

	mem := memory.NewVirtualMemory(pm.pages)

	if err := mapSegments(mem, f, buf); err != nil {
		mem.Release()
		return nil, err
	}

	sp, err := setupStack(mem, argv)
	if err != nil {
		mem.Release()
		return nil, err
	}

	img := &image{mem: mem}
	img.context.IP = f.Entry()
	img.context.SP = sp
	img.context.Args[0] = uint64(len(argv))
	img.context.Args[1] = sp + 8

	pm.L.Trace("loaded image", "entry", f.Entry(), "segments", len(f.LoadSegments()), "sp", sp)

	return img, nil
}

func mapSegments(mem *memory.VirtualMemory, f *elf.File, buf []byte) error {
	for _, ph := range f.LoadSegments() {
		if ph.Memsz == 0 {
			continue
		}

		if _, err := mem.Map(ph.Vaddr, ph.Memsz, segmentPerm(ph.Flags)); err != nil {
			return errors.Wrapf(err, "map segment at %#x", ph.Vaddr)
		}

		data, err := f.SegmentData(buf, ph)
		if err != nil {
			return err
		}

		if len(data) == 0 {
			continue
		}

		if _, err := mem.WriteAt(data, int64(ph.Vaddr)); err != nil {
			return errors.Wrapf(err, "copy segment at %#x", ph.Vaddr)
		}
	}

	return nil
}

// setupStack maps the user stack and writes the exec header at its bottom:
// argc, the argv pointers, NULL, an empty envp, NULL, an empty auxv. The
// strings follow the header. It returns the stack pointer, which points at
// argc and is 16 byte aligned.
func setupStack(mem *memory.VirtualMemory, argv []string) (uint64, error) {
	size := uint64(StackPages * memory.PageSize)
	base := StackTop - size

	if _, err := mem.Map(base, size, memory.PermRead|memory.PermWrite); err != nil {
		return 0, errors.Wrap(err, "map stack")
	}

	headerLen := 8 + // argc
		8*len(argv) + // argv
		8 + // NULL
		8 + // NULL, empty envp
		16 // AT_NULL auxv entry

	strLen := 0
	for _, s := range argv {
		strLen += len(s) + 1
	}

	if strLen > MaxArgBytes {
		return 0, errors.Wrapf(ErrArgumentsTooLarge, "%d bytes of arguments", strLen)
	}

	total := uint64(headerLen + strLen)
	if total+16 > size {
		return 0, errors.Wrapf(ErrArgumentsTooLarge, "%d arguments", len(argv))
	}

	sp := (StackTop - total) &^ 15

	hdr, err := mem.Project(sp, total)
	if err != nil {
		return 0, err
	}

	le := binary.LittleEndian

	le.PutUint64(hdr, uint64(len(argv)))

	ptr := hdr[8:]
	next := uint64(headerLen)

	for _, s := range argv {
		le.PutUint64(ptr, sp+next)
		copy(hdr[next:], s)
		hdr[next+uint64(len(s))] = 0
		next += uint64(len(s) + 1)
		ptr = ptr[8:]
	}

	// argv NULL, envp NULL and the auxv terminator are already zero.

	return sp, nil
}
