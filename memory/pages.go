package memory

import (
	"sync"

	"github.com/pkg/errors"
)

const PageSize = 4096

// ErrResourceExhausted is returned when no physical page is left to satisfy
// an allocation.
var ErrResourceExhausted = errors.New("resource exhausted")

var ErrBadArea = errors.New("bad ram area")

// PAddr is a physical address.
type PAddr uint64

// Area is a contiguous run of usable physical memory.
type Area struct {
	Base PAddr
	Len  uint64
}

type zone struct {
	base, end PAddr
	next      PAddr
}

// PageAllocator hands out physical pages from the RAM areas supplied at
// boot. Freed pages are reused before untouched memory.
type PageAllocator struct {
	mu    sync.Mutex
	zones []zone
	free  []PAddr
	total int
	used  int
}

func pageAlignUp(addr uint64) uint64 {
	return (addr + PageSize - 1) &^ (PageSize - 1)
}

func pageAlignDown(addr uint64) uint64 {
	return addr &^ (PageSize - 1)
}

// NewPageAllocator builds an allocator over areas. Partial pages at the edges
// of an area are discarded.
func NewPageAllocator(areas []Area) (*PageAllocator, error) {
	pa := &PageAllocator{}

	for _, area := range areas {
		if area.Len == 0 {
			continue
		}

		start := uint64(area.Base)
		end := start + area.Len
		if end < start {
			return nil, errors.Wrapf(ErrBadArea, "area at %#x overflows", start)
		}

		start = pageAlignUp(start)
		end = pageAlignDown(end)

		if end <= start {
			continue
		}

		pa.zones = append(pa.zones, zone{
			base: PAddr(start),
			end:  PAddr(end),
			next: PAddr(start),
		})

		pa.total += int((end - start) / PageSize)
	}

	if pa.total == 0 {
		return nil, errors.Wrap(ErrBadArea, "no usable pages")
	}

	return pa, nil
}

func (pa *PageAllocator) allocOne() (PAddr, bool) {
	if n := len(pa.free); n > 0 {
		page := pa.free[n-1]
		pa.free = pa.free[:n-1]
		return page, true
	}

	for i := range pa.zones {
		z := &pa.zones[i]
		if z.next < z.end {
			page := z.next
			z.next += PageSize
			return page, true
		}
	}

	return 0, false
}

// AllocPages allocates n pages. Either all n are returned or none are.
func (pa *PageAllocator) AllocPages(n int) ([]PAddr, error) {
	pa.mu.Lock()
	defer pa.mu.Unlock()

	if n > pa.total-pa.used {
		return nil, errors.Wrapf(ErrResourceExhausted, "want %d pages, %d free", n, pa.total-pa.used)
	}

	pages := make([]PAddr, 0, n)

	for i := 0; i < n; i++ {
		page, ok := pa.allocOne()
		if !ok {
			pa.free = append(pa.free, pages...)
			return nil, errors.Wrapf(ErrResourceExhausted, "want %d pages", n)
		}

		pages = append(pages, page)
	}

	pa.used += n

	return pages, nil
}

func (pa *PageAllocator) FreePages(pages []PAddr) {
	pa.mu.Lock()
	defer pa.mu.Unlock()

	pa.free = append(pa.free, pages...)
	pa.used -= len(pages)
}

func (pa *PageAllocator) Stats() (total, used int) {
	pa.mu.Lock()
	defer pa.mu.Unlock()

	return pa.total, pa.used
}
