// Package kernel ties the core together: one explicitly constructed
// Kernel owns the physical memory, the allocators, the kernel address
// space, the process table, and the ready queue, and runs the
// single-core cooperative dispatch loop.
package kernel

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sasha-s/go-deadlock"

	"strideos/aspace"
	db "strideos/debug"
	"strideos/frame"
	"strideos/loader"
	"strideos/proc"
	"strideos/proctbl"
	"strideos/ptable"
	"strideos/sched"
	sp "strideos/stridep"
)

type Tpolicy int

const (
	PolicyStride Tpolicy = iota
	PolicyFifo
)

type Kernel struct {
	// Protects current. Never held across sw.Switch: switching away
	// with the guard held deadlocks the next task that needs it.
	mu deadlock.Mutex

	cfg      *sp.Config
	mem      *frame.PhysMem
	fa       *frame.FrameAlloc
	pidalloc *proc.PidAlloc
	kas      *aspace.AddrSpace
	tramp    *frame.Frame
	lo       *aspace.Layout
	reg      *loader.Registry
	procs    *proctbl.Tbl[sp.Tpid, *proc.Proc]
	rq       *sched.ReadyQ
	policy   Tpolicy
	sw       Switcher

	current *proc.Proc
	init    *proc.Proc
	idleCtx proc.Context
	boot    time.Time
}

// NewKernel boots the core: simulated physical memory, the frame
// allocator over the non-kernel frames, the kernel address space with
// its identity-mapped image and the shared trampoline frame.
func NewKernel(cfg *sp.Config, reg *loader.Registry, policy Tpolicy, sw Switcher) (*Kernel, error) {
	mem := frame.NewPhysMem(cfg.Mem.PHYS_PAGES)
	fa := frame.NewFrameAlloc(mem, sp.Tppn(cfg.Mem.KERNEL_PAGES), sp.Tppn(cfg.Mem.PHYS_PAGES))

	kas, err := aspace.NewEmpty(fa)
	if err != nil {
		return nil, err
	}
	if err := kas.InsertIdenticalArea(0, sp.Tvaddr(cfg.Mem.KERNEL_PAGES)*sp.PAGESZ,
		sp.PERM_R|sp.PERM_W|sp.PERM_X); err != nil {
		return nil, err
	}
	tramp, err := fa.Alloc()
	if err != nil {
		return nil, err
	}
	if err := kas.MapShared(cfg.TrampolineVpn(), tramp.Ppn(), sp.PERM_R|sp.PERM_X); err != nil {
		return nil, err
	}
	if sw == nil {
		sw = &recordSwitcher{}
	}
	k := &Kernel{
		cfg:      cfg,
		mem:      mem,
		fa:       fa,
		pidalloc: proc.NewPidAlloc(),
		kas:      kas,
		tramp:    tramp,
		lo: &aspace.Layout{
			TrampolinePpn:  tramp.Ppn(),
			TrampolineVpn:  cfg.TrampolineVpn(),
			TrapContextVpn: cfg.TrapContextVpn(),
			UserStackPages: cfg.Stack.USER_STACK_PAGES,
		},
		reg:    reg,
		procs:  proctbl.NewTbl[sp.Tpid, *proc.Proc](),
		rq:     sched.NewReadyQ(cfg.Sched.BIG_STRIDE),
		policy: policy,
		sw:     sw,
		boot:   time.Now(),
	}
	db.DPrintf(db.KERNEL, "boot: %v free", humanize.IBytes(uint64(fa.NFree())*sp.PAGESZ))
	return k, nil
}

func (k *Kernel) Mem() *frame.PhysMem {
	return k.mem
}

func (k *Kernel) FrameAlloc() *frame.FrameAlloc {
	return k.fa
}

func (k *Kernel) Current() *proc.Proc {
	k.mu.Lock()
	defer k.mu.Unlock()

	return k.current
}

func (k *Kernel) Init() *proc.Proc {
	return k.init
}

func (k *Kernel) NProc() int {
	return k.procs.Len()
}

// Resolve looks up a pid in the process table; this is how weak parent
// references are followed.
func (k *Kernel) Resolve(pid sp.Tpid) (*proc.Proc, bool) {
	return k.procs.Lookup(pid)
}

// createProc takes ownership of as: pid, kernel stack placement in the
// kernel address space, PCB, process table, ready queue.
func (k *Kernel) createProc(as *aspace.AddrSpace, entry, usp sp.Tvaddr, prio sp.Tpriority) (*proc.Proc, error) {
	pidh := k.pidalloc.Alloc()
	klo, khi := k.cfg.KernelStackRange(pidh.Pid())
	if err := k.kas.InsertFramedArea(klo.Addr(), khi.Addr(), sp.PERM_R|sp.PERM_W); err != nil {
		pidh.Free()
		as.Free()
		return nil, err
	}
	p := proc.NewProc(pidh, as, entry, usp, klo, khi, prio, k.cfg.Mem.MMAP_BASE)
	k.procs.Insert(p.Pid(), p)
	k.rq.Add(p)
	return p, nil
}

// BootInit creates the root process from a named image. It has no parent
// and is never reaped; exited tasks' orphans reparent to it.
func (k *Kernel) BootInit(name string) (*proc.Proc, error) {
	if k.init != nil {
		db.DFatalf("BootInit: init already exists")
	}
	p, err := k.newFromName(name, k.cfg.Sched.DEFAULT_PRIORITY)
	if err != nil {
		return nil, err
	}
	k.init = p
	return p, nil
}

func (k *Kernel) newFromName(name string, prio sp.Tpriority) (*proc.Proc, error) {
	img, ok := k.reg.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("no image %q", name)
	}
	as, entry, usp, err := aspace.NewFromImage(k.fa, k.lo, img)
	if err != nil {
		return nil, err
	}
	return k.createProc(as, entry, usp, prio)
}

// Fork duplicates the caller: a full copy of the address space, a fresh
// pid and kernel stack, inherited priority, stride reset to zero, and a
// parent/child link.
func (k *Kernel) Fork(parent *proc.Proc) (*proc.Proc, error) {
	as, err := aspace.CloneFrom(k.fa, k.lo, parent.AddrSpace())
	if err != nil {
		return nil, err
	}
	// The child resumes from the duplicated trap context, not a fresh
	// entry point.
	child, err := k.createProc(as, 0, 0, parent.Priority())
	if err != nil {
		return nil, err
	}
	child.SetParent(parent.Pid())
	parent.AddChild(child)
	db.DPrintf(db.KERNEL, "Fork %v -> %v", parent.Pid(), child.Pid())
	return child, nil
}

// Exec replaces the caller's image in place: same pid, same kernel
// stack, new address space and trap context.
func (k *Kernel) Exec(p *proc.Proc, name string) error {
	img, ok := k.reg.Lookup(name)
	if !ok {
		return fmt.Errorf("no image %q", name)
	}
	as, entry, usp, err := aspace.NewFromImage(k.fa, k.lo, img)
	if err != nil {
		return err
	}
	p.ReplaceImage(as, entry, usp)
	return nil
}

// Spawn is create+attach: a brand-new process from an image, made a
// child of the caller without duplicating the caller's address space.
func (k *Kernel) Spawn(parent *proc.Proc, name string) (*proc.Proc, error) {
	child, err := k.newFromName(name, k.cfg.Sched.DEFAULT_PRIORITY)
	if err != nil {
		return nil, err
	}
	child.SetParent(parent.Pid())
	parent.AddChild(child)
	db.DPrintf(db.KERNEL, "Spawn %v -> %v %q", parent.Pid(), child.Pid(), name)
	return child, nil
}

// CopyOutCurrent writes into the current task's address space; the
// destination may straddle page boundaries.
func (k *Kernel) CopyOutCurrent(va sp.Tvaddr, data []byte) error {
	p := k.Current()
	if p == nil {
		return fmt.Errorf("no current task")
	}
	return ptable.CopyOut(k.mem, p.Token(), va, data)
}

// Clock returns seconds and microseconds since boot.
func (k *Kernel) Clock() (uint64, uint64) {
	us := uint64(time.Since(k.boot).Microseconds())
	return us / 1_000_000, us % 1_000_000
}

func (k *Kernel) Now() time.Time {
	return time.Now()
}
