package ptable

import (
	"fmt"

	sp "strideos/stridep"
)

type Tpteflags uint64

const (
	PTE_V Tpteflags = 1 << 0
	PTE_R Tpteflags = 1 << 1
	PTE_W Tpteflags = 1 << 2
	PTE_X Tpteflags = 1 << 3
	PTE_U Tpteflags = 1 << 4
	PTE_G Tpteflags = 1 << 5
	PTE_A Tpteflags = 1 << 6
	PTE_D Tpteflags = 1 << 7

	FLAGMASK Tpteflags = (1 << 10) - 1
)

// Tpte packs a physical page number and flag bits into one entry, the way
// the entry sits in a frame: ppn in the high bits, flags in the low ten.
type Tpte uint64

const EmptyPte Tpte = 0

func NewPte(ppn sp.Tppn, flags Tpteflags) Tpte {
	return Tpte(uint64(ppn)<<10 | uint64(flags))
}

func (pte Tpte) Ppn() sp.Tppn {
	return sp.Tppn((uint64(pte) >> 10) & sp.PPNMASK)
}

func (pte Tpte) Flags() Tpteflags {
	return Tpteflags(pte) & FLAGMASK
}

func (pte Tpte) Valid() bool {
	return pte.Flags()&PTE_V != 0
}

func (pte Tpte) Readable() bool {
	return pte.Flags()&PTE_R != 0
}

func (pte Tpte) Writable() bool {
	return pte.Flags()&PTE_W != 0
}

func (pte Tpte) Executable() bool {
	return pte.Flags()&PTE_X != 0
}

// Leaf reports whether the entry terminates translation; an entry with no
// R/W/X bits points at a further table.
func (pte Tpte) Leaf() bool {
	return pte.Flags()&(PTE_R|PTE_W|PTE_X) != 0
}

func (pte Tpte) String() string {
	return fmt.Sprintf("pte{ppn %#x flags %#x}", uint64(pte.Ppn()), uint64(pte.Flags()))
}
