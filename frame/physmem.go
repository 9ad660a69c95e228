package frame

import (
	"encoding/binary"

	db "strideos/debug"
	sp "strideos/stridep"
)

// PhysMem simulates the machine's physical page frames as one flat byte
// array, byte- and pte-addressable by physical page number.
type PhysMem struct {
	npages int
	bytes  []byte
}

func NewPhysMem(npages int) *PhysMem {
	return &PhysMem{npages: npages, bytes: make([]byte, npages*sp.PAGESZ)}
}

func (pm *PhysMem) NPages() int {
	return pm.npages
}

// PageBytes returns the raw bytes of one frame; the slice aliases the
// frame, so writes through it are "physical" writes.
func (pm *PhysMem) PageBytes(ppn sp.Tppn) []byte {
	if int(ppn) >= pm.npages {
		db.DFatalf("PageBytes: ppn %v out of range (%d frames)", ppn, pm.npages)
	}
	off := uint64(ppn) * sp.PAGESZ
	return pm.bytes[off : off+sp.PAGESZ]
}

func (pm *PhysMem) Zero(ppn sp.Tppn) {
	b := pm.PageBytes(ppn)
	for i := range b {
		b[i] = 0
	}
}

// ReadPte and WritePte access a frame as an array of page-table entries.
func (pm *PhysMem) ReadPte(ppn sp.Tppn, idx int) uint64 {
	b := pm.PageBytes(ppn)
	return binary.LittleEndian.Uint64(b[idx*sp.PTESZ:])
}

func (pm *PhysMem) WritePte(ppn sp.Tppn, idx int, pte uint64) {
	b := pm.PageBytes(ppn)
	binary.LittleEndian.PutUint64(b[idx*sp.PTESZ:], pte)
}
