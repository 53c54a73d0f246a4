package memory

import (
	"fmt"

	"github.com/pkg/errors"
)

// Perm is the protection of a mapped region.
type Perm uint8

const (
	PermRead Perm = 1 << iota
	PermWrite
	PermExec
)

func (p Perm) String() string {
	b := []byte("---")
	if p&PermRead != 0 {
		b[0] = 'r'
	}
	if p&PermWrite != 0 {
		b[1] = 'w'
	}
	if p&PermExec != 0 {
		b[2] = 'x'
	}
	return string(b)
}

// Region is a page aligned run of user memory backed by physical pages.
// Perm is the union of the protections of its pages.
type Region struct {
	Start, Size uint64
	Perm        Perm

	perms  []Perm
	pages  []PAddr
	linear []byte
}

func (reg *Region) Contains(x uint64) bool {
	return x >= reg.Start && x-reg.Start < reg.Size
}

func (reg *Region) End() uint64 {
	return reg.Start + reg.Size
}

// PermAt returns the protection of the page holding addr.
func (reg *Region) PermAt(addr uint64) Perm {
	if !reg.Contains(addr) {
		return 0
	}

	return reg.perms[(addr-reg.Start)/PageSize]
}

func (reg *Region) String() string {
	return fmt.Sprintf("%#x-%#x %s", reg.Start, reg.End(), reg.Perm)
}

var (
	ErrInvalidMemoryAccess = errors.New("invalid memory access via projection")
	ErrBadRegionRequest    = errors.New("bad region request")
)

// VirtualMemory is one process's user address space.
type VirtualMemory struct {
	pages   *PageAllocator
	regions []*Region
}

func NewVirtualMemory(pages *PageAllocator) *VirtualMemory {
	return &VirtualMemory{pages: pages}
}

func (vm *VirtualMemory) Regions() []*Region {
	return vm.regions
}

func (vm *VirtualMemory) Size() uint64 {
	var sz uint64
	for _, reg := range vm.regions {
		sz += reg.Size
	}
	return sz
}

func (vm *VirtualMemory) FindRegion(addr uint64) (*Region, bool) {
	for _, reg := range vm.regions {
		if reg.Contains(addr) {
			return reg, true
		}
	}

	return nil, false
}

// Map makes [addr, addr+size), rounded out to page boundaries, accessible
// with perm. Pages that are already mapped keep their contents and gain
// perm; the regions they belong to are merged with the new range into one
// region. Only unmapped pages are allocated.
func (vm *VirtualMemory) Map(addr, size uint64, perm Perm) (*Region, error) {
	if size == 0 {
		return nil, errors.Wrap(ErrBadRegionRequest, "zero sized region")
	}

	start := pageAlignDown(addr)
	end := addr + size
	if end < addr || pageAlignUp(end) < end {
		return nil, errors.Wrapf(ErrBadRegionRequest, "region at %#x overflows", addr)
	}
	end = pageAlignUp(end)

	var (
		overlaps []*Region
		rest     []*Region
		mapped   uint64
	)

	lo, hi := start, end

	for _, reg := range vm.regions {
		if start < reg.End() && reg.Start < end {
			overlaps = append(overlaps, reg)
			mapped += reg.Size

			if reg.Start < lo {
				lo = reg.Start
			}

			if reg.End() > hi {
				hi = reg.End()
			}
		} else {
			rest = append(rest, reg)
		}
	}

	fresh, err := vm.pages.AllocPages(int((hi - lo - mapped) / PageSize))
	if err != nil {
		return nil, err
	}

	n := (hi - lo) / PageSize

	reg := &Region{
		Start:  lo,
		Size:   hi - lo,
		perms:  make([]Perm, n),
		pages:  make([]PAddr, n),
		linear: make([]byte, hi-lo),
	}

	covered := make([]bool, n)

	for _, old := range overlaps {
		first := (old.Start - lo) / PageSize

		copy(reg.linear[old.Start-lo:], old.linear)
		copy(reg.pages[first:], old.pages)
		copy(reg.perms[first:], old.perms)

		for i := uint64(0); i < old.Size/PageSize; i++ {
			covered[first+i] = true
		}
	}

	for i := uint64(0); i < n; i++ {
		if !covered[i] {
			reg.pages[i] = fresh[0]
			fresh = fresh[1:]
		}

		page := lo + i*PageSize
		if page >= start && page < end {
			reg.perms[i] |= perm
		}

		reg.Perm |= reg.perms[i]
	}

	vm.regions = append(rest, reg)

	return reg, nil
}

// Project returns the bytes backing [addr, addr+sz). The range must lie
// within a single region.
func (vm *VirtualMemory) Project(addr, sz uint64) ([]byte, error) {
	reg, ok := vm.FindRegion(addr)
	if !ok {
		return nil, errors.Wrapf(ErrInvalidMemoryAccess, "error projecting address=%x, size=%x", addr, sz)
	}

	offset := addr - reg.Start
	if sz > reg.Size-offset {
		return nil, errors.Wrapf(ErrInvalidMemoryAccess, "error projecting address=%x, size=%x", addr, sz)
	}

	return reg.linear[offset : offset+sz], nil
}

// access runs f over the pieces of [off, off+len(b)) in each region the
// range crosses. Every byte of the range must be mapped.
func (vm *VirtualMemory) access(b []byte, off int64, f func(mem, b []byte)) (int, error) {
	if off < 0 {
		return 0, ErrInvalidMemoryAccess
	}

	addr := uint64(off)
	if addr+uint64(len(b)) < addr {
		return 0, errors.Wrapf(ErrInvalidMemoryAccess, "access at %#x wraps", addr)
	}

	for rest := b; len(rest) > 0; {
		reg, ok := vm.FindRegion(addr)
		if !ok {
			return 0, errors.Wrapf(ErrInvalidMemoryAccess, "address %#x not mapped", addr)
		}

		n := reg.End() - addr
		if n > uint64(len(rest)) {
			n = uint64(len(rest))
		}

		addr += n
		rest = rest[n:]
	}

	addr = uint64(off)

	for rest := b; len(rest) > 0; {
		reg, _ := vm.FindRegion(addr)

		offset := addr - reg.Start
		n := reg.Size - offset
		if n > uint64(len(rest)) {
			n = uint64(len(rest))
		}

		f(reg.linear[offset:offset+n], rest[:n])

		addr += n
		rest = rest[n:]
	}

	return len(b), nil
}

// ReadAt copies from user memory. The range may cross adjacent regions.
func (vm *VirtualMemory) ReadAt(b []byte, off int64) (int, error) {
	return vm.access(b, off, func(mem, b []byte) { copy(b, mem) })
}

// WriteAt copies into user memory. Nothing is written unless the whole
// range is mapped.
func (vm *VirtualMemory) WriteAt(b []byte, off int64) (int, error) {
	return vm.access(b, off, func(mem, b []byte) { copy(mem, b) })
}

// Release returns every page to the allocator. The address space is empty
// afterwards.
func (vm *VirtualMemory) Release() {
	for _, reg := range vm.regions {
		vm.pages.FreePages(reg.pages)
		reg.pages = nil
		reg.linear = nil
	}

	vm.regions = nil
}
