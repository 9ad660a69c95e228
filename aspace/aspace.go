// Package aspace manages one process's address space: an ordered set of
// non-overlapping map areas backed by a page table. All mutations funnel
// through the owning table's Map/Unmap.
package aspace

import (
	"fmt"

	db "strideos/debug"
	"strideos/frame"
	"strideos/ptable"
	sp "strideos/stridep"
)

type Tmaptype int

const (
	// Framed areas own one fresh frame per page.
	Framed Tmaptype = iota
	// Identical areas map vpn == ppn; no frames are owned.
	Identical
)

// MapArea is one mapped region: [start, end) pages under one permission
// set, plus the frames backing it when framed.
type MapArea struct {
	start  sp.Tvpn
	end    sp.Tvpn
	mt     Tmaptype
	perm   sp.Tmapperm
	frames map[sp.Tvpn]*frame.Frame
}

func newMapArea(start, end sp.Tvpn, mt Tmaptype, perm sp.Tmapperm) *MapArea {
	return &MapArea{start: start, end: end, mt: mt, perm: perm,
		frames: make(map[sp.Tvpn]*frame.Frame)}
}

func (a *MapArea) String() string {
	return fmt.Sprintf("area[%#x, %#x) perm %#x", uint64(a.start), uint64(a.end), uint8(a.perm))
}

func (a *MapArea) pteFlags() ptable.Tpteflags {
	return ptable.Tpteflags(a.perm)
}

type AddrSpace struct {
	fa    *frame.FrameAlloc
	pt    *ptable.PageTable
	areas []*MapArea
	heap  *MapArea

	heapBottom sp.Tvaddr
	brk        sp.Tvaddr
}

func NewEmpty(fa *frame.FrameAlloc) (*AddrSpace, error) {
	pt, err := ptable.NewPageTable(fa)
	if err != nil {
		return nil, err
	}
	return &AddrSpace{fa: fa, pt: pt, areas: make([]*MapArea, 0)}, nil
}

func (as *AddrSpace) Token() sp.Ttoken {
	return as.pt.Token()
}

func (as *AddrSpace) PageTable() *ptable.PageTable {
	return as.pt
}

func (as *AddrSpace) Brk() sp.Tvaddr {
	return as.brk
}

func (as *AddrSpace) HeapBottom() sp.Tvaddr {
	return as.heapBottom
}

// IsRangeFree probes [start, end) for overlap with any existing area and
// with any installed translation; shared mappings (trampoline) belong to
// no area but still occupy their page.
func (as *AddrSpace) IsRangeFree(start, end sp.Tvpn) bool {
	for _, a := range as.areas {
		if start < a.end && a.start < end {
			return false
		}
	}
	for vpn := start; vpn < end; vpn++ {
		if _, ok := as.pt.Translate(vpn); ok {
			return false
		}
	}
	return true
}

// FindFree returns the lowest free range of n pages at or above from.
func (as *AddrSpace) FindFree(from sp.Tvpn, n sp.Tvpn) (sp.Tvpn, bool) {
	cand := from
	for {
		clear := true
		for _, a := range as.areas {
			if cand < a.end && a.start < cand+n {
				cand = a.end
				clear = false
			}
		}
		if clear {
			break
		}
	}
	for vpn := cand; vpn < cand+n; vpn++ {
		if _, ok := as.pt.Translate(vpn); ok {
			return 0, false
		}
	}
	return cand, true
}

// mapOne backs one page of an area and installs its translation.
func (as *AddrSpace) mapOne(a *MapArea, vpn sp.Tvpn) error {
	var ppn sp.Tppn
	switch a.mt {
	case Framed:
		f, err := as.fa.Alloc()
		if err != nil {
			return err
		}
		a.frames[vpn] = f
		ppn = f.Ppn()
	case Identical:
		ppn = sp.Tppn(vpn)
	}
	return as.pt.Map(vpn, ppn, a.pteFlags())
}

func (as *AddrSpace) unmapOne(a *MapArea, vpn sp.Tvpn) {
	as.pt.Unmap(vpn)
	if a.mt == Framed {
		a.frames[vpn].Free()
		delete(a.frames, vpn)
	}
}

func (as *AddrSpace) pushArea(a *MapArea) error {
	for vpn := a.start; vpn < a.end; vpn++ {
		if err := as.mapOne(a, vpn); err != nil {
			// Roll back the partially built area.
			for v := a.start; v < vpn; v++ {
				as.unmapOne(a, v)
			}
			return err
		}
	}
	as.areas = append(as.areas, a)
	db.DPrintf(db.ASPACE, "push %v", a)
	return nil
}

// InsertFramedArea maps a fresh framed region; overlap with an existing
// area is rejected.
func (as *AddrSpace) InsertFramedArea(start, end sp.Tvaddr, perm sp.Tmapperm) error {
	s, e := start.Floor(), end.Ceil()
	if !as.IsRangeFree(s, e) {
		return fmt.Errorf("region [%#x, %#x) overlaps an existing area", uint64(start), uint64(end))
	}
	return as.pushArea(newMapArea(s, e, Framed, perm))
}

// InsertIdenticalArea maps [start, end) one-to-one, for kernel text/data.
func (as *AddrSpace) InsertIdenticalArea(start, end sp.Tvaddr, perm sp.Tmapperm) error {
	s, e := start.Floor(), end.Ceil()
	if !as.IsRangeFree(s, e) {
		return fmt.Errorf("region [%#x, %#x) overlaps an existing area", uint64(start), uint64(end))
	}
	return as.pushArea(newMapArea(s, e, Identical, perm))
}

// RemoveAreaExact removes the area whose page range is exactly
// [start, end), unmapping each page and releasing its frame. The break
// area is off limits; it moves only through SetBrk.
func (as *AddrSpace) RemoveAreaExact(start, end sp.Tvpn) error {
	for i, a := range as.areas {
		if a.start == start && a.end == end {
			if a == as.heap {
				return fmt.Errorf("area [%#x, %#x) is the break area", uint64(start), uint64(end))
			}
			for vpn := a.start; vpn < a.end; vpn++ {
				as.unmapOne(a, vpn)
			}
			as.areas = append(as.areas[:i], as.areas[i+1:]...)
			db.DPrintf(db.ASPACE, "remove %v", a)
			return nil
		}
	}
	return fmt.Errorf("no area [%#x, %#x)", uint64(start), uint64(end))
}

// MapShared installs a translation to a frame owned elsewhere (the
// trampoline); the frame is aliased by every address space and must not
// be released with this one.
func (as *AddrSpace) MapShared(vpn sp.Tvpn, ppn sp.Tppn, perm sp.Tmapperm) error {
	return as.pt.Map(vpn, ppn, ptable.Tpteflags(perm))
}

// WriteVa copies data into this address space at va, via translation.
func (as *AddrSpace) WriteVa(va sp.Tvaddr, data []byte) error {
	return ptable.CopyOut(as.fa.Mem(), as.Token(), va, data)
}

// ReadVa copies length bytes out of this address space at va.
func (as *AddrSpace) ReadVa(va sp.Tvaddr, length int) ([]byte, error) {
	return ptable.CopyIn(as.fa.Mem(), as.Token(), va, length)
}

// initHeap seeds the empty program-break area; the break starts at the
// heap base and only SetBrk moves it.
func (as *AddrSpace) initHeap(base sp.Tvaddr) {
	as.heap = newMapArea(base.Ceil(), base.Ceil(), Framed, sp.PERM_R|sp.PERM_W|sp.PERM_U)
	as.areas = append(as.areas, as.heap)
	as.heapBottom = base
	as.brk = base
}

// SetBrk moves the program break, growing or shrinking the heap area's
// high boundary. A break below the heap base is a caller error and leaves
// the area untouched.
func (as *AddrSpace) SetBrk(newBrk sp.Tvaddr) bool {
	if as.heap == nil || newBrk < as.heapBottom {
		return false
	}
	oldEnd := as.heap.end
	newEnd := newBrk.Ceil()
	if newEnd > oldEnd {
		if !as.IsRangeFree(oldEnd, newEnd) {
			return false
		}
		for vpn := oldEnd; vpn < newEnd; vpn++ {
			if err := as.mapOne(as.heap, vpn); err != nil {
				// Roll back the partial growth.
				for v := oldEnd; v < vpn; v++ {
					as.unmapOne(as.heap, v)
				}
				return false
			}
		}
	} else {
		for vpn := newEnd; vpn < oldEnd; vpn++ {
			as.unmapOne(as.heap, vpn)
		}
	}
	as.heap.end = newEnd
	as.brk = newBrk
	return true
}

// Free unmaps every area and releases its frames, then drops the page
// table itself. Shared mappings (trampoline) are left to their owner.
func (as *AddrSpace) Free() {
	for _, a := range as.areas {
		for vpn := a.start; vpn < a.end; vpn++ {
			if _, ok := a.frames[vpn]; ok || a.mt == Identical {
				as.unmapOne(a, vpn)
			}
		}
	}
	as.areas = nil
	as.heap = nil
	as.pt.Free()
	db.DPrintf(db.ASPACE, "freed %#x", uint64(as.pt.Root()))
}
