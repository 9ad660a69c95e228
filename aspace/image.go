package aspace

import (
	db "strideos/debug"
	"strideos/frame"
	"strideos/loader"
	sp "strideos/stridep"
)

// Layout holds what image construction needs to know about the machine:
// where the trampoline frame lives and how large a user stack is.
type Layout struct {
	TrampolinePpn  sp.Tppn
	TrampolineVpn  sp.Tvpn
	TrapContextVpn sp.Tvpn
	UserStackPages int
}

// NewFromImage builds a user address space from a flat image: one framed
// area per segment, a guarded user stack above the image, an empty heap
// above the stack, the trap context page, and the shared trampoline.
// Returns the space, the entry point, and the initial stack pointer.
func NewFromImage(fa *frame.FrameAlloc, lo *Layout, img *loader.Image) (*AddrSpace, sp.Tvaddr, sp.Tvaddr, error) {
	as, err := NewEmpty(fa)
	if err != nil {
		return nil, 0, 0, err
	}
	for _, seg := range img.Segments {
		end := seg.Va + sp.Tvaddr(len(seg.Data))
		if err := as.InsertFramedArea(seg.Va, end, seg.Perm|sp.PERM_U); err != nil {
			as.Free()
			return nil, 0, 0, err
		}
		if err := as.WriteVa(seg.Va, seg.Data); err != nil {
			as.Free()
			return nil, 0, 0, err
		}
	}

	// Guard page between the image and the stack.
	stackBottom := (img.End().Ceil() + 1).Addr()
	stackTop := stackBottom + sp.Tvaddr(lo.UserStackPages)*sp.PAGESZ
	if err := as.InsertFramedArea(stackBottom, stackTop, sp.PERM_R|sp.PERM_W|sp.PERM_U); err != nil {
		as.Free()
		return nil, 0, 0, err
	}

	// Program break starts empty, one guard page above the stack.
	as.initHeap(stackTop + sp.PAGESZ)

	if err := as.InsertFramedArea(lo.TrapContextVpn.Addr(), (lo.TrapContextVpn + 1).Addr(),
		sp.PERM_R|sp.PERM_W); err != nil {
		as.Free()
		return nil, 0, 0, err
	}
	if err := as.MapShared(lo.TrampolineVpn, lo.TrampolinePpn, sp.PERM_R|sp.PERM_X); err != nil {
		as.Free()
		return nil, 0, 0, err
	}
	db.DPrintf(db.ASPACE, "NewFromImage %v entry %#x sp %#x", img.Name, uint64(img.Entry), uint64(stackTop))
	return as, img.Entry, stackTop, nil
}

// CloneFrom duplicates a parent space for fork: same areas and
// permissions, freshly framed pages, contents copied. The copy is
// independently mutable.
func CloneFrom(fa *frame.FrameAlloc, lo *Layout, parent *AddrSpace) (*AddrSpace, error) {
	as, err := NewEmpty(fa)
	if err != nil {
		return nil, err
	}
	mem := fa.Mem()
	for _, pa := range parent.areas {
		a := newMapArea(pa.start, pa.end, pa.mt, pa.perm)
		if err := as.pushArea(a); err != nil {
			as.Free()
			return nil, err
		}
		if pa.mt == Framed {
			for vpn := pa.start; vpn < pa.end; vpn++ {
				src := mem.PageBytes(pa.frames[vpn].Ppn())
				dst := mem.PageBytes(a.frames[vpn].Ppn())
				copy(dst, src)
			}
		}
		if pa == parent.heap {
			as.heap = a
		}
	}
	if err := as.MapShared(lo.TrampolineVpn, lo.TrampolinePpn, sp.PERM_R|sp.PERM_X); err != nil {
		as.Free()
		return nil, err
	}
	as.heapBottom = parent.heapBottom
	as.brk = parent.brk
	db.DPrintf(db.ASPACE, "CloneFrom %#x -> %#x", uint64(parent.pt.Root()), uint64(as.pt.Root()))
	return as, nil
}
