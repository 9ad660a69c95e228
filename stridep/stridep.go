// Package stridep holds the types shared by the kernel's memory and task
// subsystems: page numbers, addresses, pids, scheduling weights, and the
// layout hyperparameters.
package stridep

import (
	"fmt"
)

type Tppn uint64   // physical page number
type Tvpn uint64   // virtual page number
type Tpaddr uint64 // physical address
type Tvaddr uint64 // virtual address
type Tpid int32
type Tpriority uint64
type Tstride uint64
type Ttoken uint64 // address-space token: mode tag | root ppn
type Tsysno int

const (
	PAGESZ    = 4096
	PAGESHIFT = 12

	PTESZ       = 8
	PTESPERPAGE = PAGESZ / PTESZ

	// 3-level radix tree, 9 index bits per level.
	PTLEVELS = 3
	IDXBITS  = 9
	IDXMASK  = (1 << IDXBITS) - 1
	VPNBITS  = PTLEVELS * IDXBITS

	// Mode tag in the high bits of an address-space token.
	TOKENMODE Ttoken = 8 << 60
	PPNMASK           = (1 << 44) - 1
)

const (
	NoPid Tpid = -1
)

func (pid Tpid) String() string {
	return fmt.Sprintf("pid-%d", int32(pid))
}

func (ppn Tppn) Addr() Tpaddr {
	return Tpaddr(ppn << PAGESHIFT)
}

func (vpn Tvpn) Addr() Tvaddr {
	return Tvaddr(vpn << PAGESHIFT)
}

// Indexes decomposes a vpn into its per-level radix indices, most
// significant level first.
func (vpn Tvpn) Indexes() [PTLEVELS]int {
	var idx [PTLEVELS]int
	v := uint64(vpn)
	for i := PTLEVELS - 1; i >= 0; i-- {
		idx[i] = int(v & IDXMASK)
		v >>= IDXBITS
	}
	return idx
}

func (pa Tpaddr) Floor() Tppn {
	return Tppn(pa >> PAGESHIFT)
}

func (pa Tpaddr) Ceil() Tppn {
	return Tppn((pa + PAGESZ - 1) >> PAGESHIFT)
}

func (pa Tpaddr) PageOffset() uint64 {
	return uint64(pa) & (PAGESZ - 1)
}

func (va Tvaddr) Floor() Tvpn {
	return Tvpn(va >> PAGESHIFT)
}

func (va Tvaddr) Ceil() Tvpn {
	return Tvpn((va + PAGESZ - 1) >> PAGESHIFT)
}

func (va Tvaddr) PageOffset() uint64 {
	return uint64(va) & (PAGESZ - 1)
}

func (va Tvaddr) Aligned() bool {
	return va.PageOffset() == 0
}

// Token encodes a root page-table location for crossing the user/kernel
// boundary.
func NewToken(root Tppn) Ttoken {
	return TOKENMODE | Ttoken(root)
}

func (t Ttoken) Root() Tppn {
	return Tppn(uint64(t) & PPNMASK)
}

// Syscall numbers, for per-task accounting.
const (
	// Highest syscall number tracked in a task_info counts array.
	MAXSYSNO = 500
)

const (
	SYS_EXIT         Tsysno = 93
	SYS_YIELD        Tsysno = 124
	SYS_SET_PRIORITY Tsysno = 140
	SYS_GET_TIME     Tsysno = 169
	SYS_GETPID       Tsysno = 172
	SYS_SBRK         Tsysno = 214
	SYS_MUNMAP       Tsysno = 215
	SYS_FORK         Tsysno = 220
	SYS_EXEC         Tsysno = 221
	SYS_MMAP         Tsysno = 222
	SYS_WAITPID      Tsysno = 260
	SYS_SPAWN        Tsysno = 400
	SYS_TASK_INFO    Tsysno = 410
)
