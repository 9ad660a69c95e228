// Package frame tracks ownership of physical page frames. The allocator
// hands out each live frame behind exactly one Frame handle; dropping the
// handle recycles the page.
package frame

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/sasha-s/go-deadlock"

	db "strideos/debug"
	sp "strideos/stridep"
)

// Frame is an exclusively-owned capability for one physical page. It may
// be handed off, but never duplicated; Free runs at most once.
type Frame struct {
	ppn   sp.Tppn
	fa    *FrameAlloc
	freed bool
}

func (f *Frame) Ppn() sp.Tppn {
	return f.ppn
}

func (f *Frame) String() string {
	return fmt.Sprintf("frame-%#x", uint64(f.ppn))
}

// Free returns the page to the allocator. Freeing twice is a kernel bug.
func (f *Frame) Free() {
	if f.freed {
		db.DFatalf("Free: frame %v already freed", f)
	}
	f.freed = true
	f.fa.free(f.ppn)
}

// FrameAlloc is a recycling-stack allocator over [current, end): it
// prefers the most recently freed page, and otherwise advances the
// never-yet-allocated boundary.
type FrameAlloc struct {
	mu       deadlock.Mutex
	mem      *PhysMem
	current  sp.Tppn
	end      sp.Tppn
	recycled []sp.Tppn
}

func NewFrameAlloc(mem *PhysMem, l, r sp.Tppn) *FrameAlloc {
	fa := &FrameAlloc{mem: mem, current: l, end: r}
	fa.recycled = make([]sp.Tppn, 0)
	db.DPrintf(db.FRAME, "NewFrameAlloc [%v, %v) %v free", l, r,
		humanize.IBytes(uint64(r-l)*sp.PAGESZ))
	return fa
}

func (fa *FrameAlloc) Mem() *PhysMem {
	return fa.mem
}

// Alloc hands out one zero-filled frame, or reports exhaustion. There is
// no backing store to evict to, so exhaustion is terminal for the
// requesting operation.
func (fa *FrameAlloc) Alloc() (*Frame, error) {
	fa.mu.Lock()
	defer fa.mu.Unlock()

	var ppn sp.Tppn
	if n := len(fa.recycled); n > 0 {
		ppn = fa.recycled[n-1]
		fa.recycled = fa.recycled[:n-1]
	} else if fa.current == fa.end {
		db.DPrintf(db.FRAME_ERR, "Alloc: out of frames")
		return nil, fmt.Errorf("out of physical frames")
	} else {
		ppn = fa.current
		fa.current += 1
	}
	// Stale contents must never leak across reuse.
	fa.mem.Zero(ppn)
	db.DPrintf(db.FRAME, "Alloc %#x", uint64(ppn))
	return &Frame{ppn: ppn, fa: fa}, nil
}

// free recycles ppn. A page still inside the never-allocated range, or
// already on the recycled stack, was not live; that is corruption, not a
// normal error.
func (fa *FrameAlloc) free(ppn sp.Tppn) {
	fa.mu.Lock()
	defer fa.mu.Unlock()

	if ppn >= fa.current {
		db.DFatalf("free: frame %#x has not been allocated", uint64(ppn))
	}
	for _, r := range fa.recycled {
		if r == ppn {
			db.DFatalf("free: frame %#x already free", uint64(ppn))
		}
	}
	db.DPrintf(db.FRAME, "free %#x", uint64(ppn))
	fa.recycled = append(fa.recycled, ppn)
}

// NFree reports how many frames could still be handed out.
func (fa *FrameAlloc) NFree() int {
	fa.mu.Lock()
	defer fa.mu.Unlock()

	return int(fa.end-fa.current) + len(fa.recycled)
}
