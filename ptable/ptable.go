// Package ptable implements per-address-space 3-level radix page tables.
// A table owns its root frame and every intermediate frame it allocates;
// leaf frames belong to the address space's map areas.
package ptable

import (
	db "strideos/debug"
	"strideos/frame"
	sp "strideos/stridep"
)

type PageTable struct {
	fa     *frame.FrameAlloc
	mem    *frame.PhysMem
	root   sp.Tppn
	frames []*frame.Frame
	freed  bool
}

func NewPageTable(fa *frame.FrameAlloc) (*PageTable, error) {
	f, err := fa.Alloc()
	if err != nil {
		return nil, err
	}
	pt := &PageTable{fa: fa, mem: fa.Mem(), root: f.Ppn()}
	pt.frames = []*frame.Frame{f}
	return pt, nil
}

// FromToken borrows a foreign address space's table for translation only;
// the borrowed view owns no frames and must not map or unmap.
func FromToken(mem *frame.PhysMem, token sp.Ttoken) *PageTable {
	return &PageTable{mem: mem, root: token.Root()}
}

func (pt *PageTable) Root() sp.Tppn {
	return pt.root
}

func (pt *PageTable) Token() sp.Ttoken {
	return sp.NewToken(pt.root)
}

// walkCreate descends to the leaf entry for vpn, allocating a
// zero-initialized table frame for any missing intermediate level.
func (pt *PageTable) walkCreate(vpn sp.Tvpn) (sp.Tppn, int, error) {
	idxs := vpn.Indexes()
	ppn := pt.root
	for i, idx := range idxs {
		if i == sp.PTLEVELS-1 {
			return ppn, idx, nil
		}
		pte := Tpte(pt.mem.ReadPte(ppn, idx))
		if !pte.Valid() {
			f, err := pt.fa.Alloc()
			if err != nil {
				return 0, 0, err
			}
			pte = NewPte(f.Ppn(), PTE_V)
			pt.mem.WritePte(ppn, idx, uint64(pte))
			pt.frames = append(pt.frames, f)
		}
		ppn = pte.Ppn()
	}
	db.DFatalf("walkCreate: fell off radix tree for vpn %#x", uint64(vpn))
	return 0, 0, nil
}

// walk is the non-allocating descent; absent on any invalid intermediate.
func (pt *PageTable) walk(vpn sp.Tvpn) (sp.Tppn, int, bool) {
	idxs := vpn.Indexes()
	ppn := pt.root
	for i, idx := range idxs {
		if i == sp.PTLEVELS-1 {
			return ppn, idx, true
		}
		pte := Tpte(pt.mem.ReadPte(ppn, idx))
		if !pte.Valid() {
			return 0, 0, false
		}
		ppn = pte.Ppn()
	}
	return 0, 0, false
}

// Map installs vpn -> (ppn, flags|V). Mapping an already-mapped page is a
// programming error in the caller.
func (pt *PageTable) Map(vpn sp.Tvpn, ppn sp.Tppn, flags Tpteflags) error {
	tbl, idx, err := pt.walkCreate(vpn)
	if err != nil {
		return err
	}
	if old := Tpte(pt.mem.ReadPte(tbl, idx)); old.Valid() {
		db.DFatalf("Map: vpn %#x is mapped before mapping (%v)", uint64(vpn), old)
	}
	pt.mem.WritePte(tbl, idx, uint64(NewPte(ppn, flags|PTE_V)))
	db.DPrintf(db.PTABLE, "Map %#x -> %#x flags %#x", uint64(vpn), uint64(ppn), uint64(flags))
	return nil
}

// Unmap clears the leaf for vpn; unmapping an unmapped page is a
// programming error in the caller.
func (pt *PageTable) Unmap(vpn sp.Tvpn) {
	tbl, idx, ok := pt.walk(vpn)
	if !ok {
		db.DFatalf("Unmap: vpn %#x is invalid before unmapping", uint64(vpn))
	}
	if old := Tpte(pt.mem.ReadPte(tbl, idx)); !old.Valid() {
		db.DFatalf("Unmap: vpn %#x is invalid before unmapping", uint64(vpn))
	}
	pt.mem.WritePte(tbl, idx, uint64(EmptyPte))
	db.DPrintf(db.PTABLE, "Unmap %#x", uint64(vpn))
}

// Translate returns a copy of the leaf entry for vpn, if present.
func (pt *PageTable) Translate(vpn sp.Tvpn) (Tpte, bool) {
	tbl, idx, ok := pt.walk(vpn)
	if !ok {
		return EmptyPte, false
	}
	pte := Tpte(pt.mem.ReadPte(tbl, idx))
	if !pte.Valid() {
		return EmptyPte, false
	}
	return pte, true
}

// TranslateAddr resolves a possibly unaligned virtual address.
func (pt *PageTable) TranslateAddr(va sp.Tvaddr) (sp.Tpaddr, bool) {
	pte, ok := pt.Translate(va.Floor())
	if !ok {
		return 0, false
	}
	return pte.Ppn().Addr() + sp.Tpaddr(va.PageOffset()), true
}

// Free releases the root and intermediate frames. Leaf mappings must have
// been unmapped by the owning address space, except mappings that alias
// shared kernel frames, which are deliberately left to their owner.
func (pt *PageTable) Free() {
	if pt.freed {
		db.DFatalf("Free: page table %#x already freed", uint64(pt.root))
	}
	pt.freed = true
	for _, f := range pt.frames {
		f.Free()
	}
	pt.frames = nil
}
