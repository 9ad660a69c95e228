// Package proc implements the process control block: identity, kernel
// stack placement, owned address space, scheduling fields, parent/child
// tree, and syscall accounting.
package proc

import (
	"fmt"
	"time"

	"github.com/sasha-s/go-deadlock"

	"strideos/aspace"
	db "strideos/debug"
	sp "strideos/stridep"
)

type Proc struct {
	mu   deadlock.Mutex
	pidh *PidHandle

	// Kernel stack pages in the kernel address space; the area itself
	// is owned by the kernel space, the placement by this pid.
	kstackLo sp.Tvpn
	kstackHi sp.Tvpn

	ctx      Context
	status   Tstatus
	exitCode int32

	as         *aspace.AddrSpace
	entry, usp sp.Tvaddr

	// parent is a weak, lookup-only reference: a pid resolved against
	// the process table, never counted toward the parent's lifetime.
	parent   sp.Tpid
	children []*Proc

	priority sp.Tpriority
	stride   sp.Tstride
	mmapBase sp.Tvaddr

	syscalls      map[sp.Tsysno]uint32
	dispatched    bool
	firstDispatch time.Time
}

func NewProc(pidh *PidHandle, as *aspace.AddrSpace, entry, usp sp.Tvaddr,
	kstackLo, kstackHi sp.Tvpn, prio sp.Tpriority, mmapBase sp.Tvaddr) *Proc {
	if prio < 2 {
		db.DFatalf("NewProc: priority %d must be >= 2", prio)
	}
	p := &Proc{
		pidh:     pidh,
		kstackLo: kstackLo,
		kstackHi: kstackHi,
		status:   UnInit,
		as:       as,
		entry:    entry,
		usp:      usp,
		parent:   sp.NoPid,
		children: make([]*Proc, 0),
		priority: prio,
		mmapBase: mmapBase,
		syscalls: make(map[sp.Tsysno]uint32),
	}
	p.ctx = NewContext(entry, kstackHi.Addr())
	p.setStatusL(Ready)
	db.DPrintf(db.PROC, "NewProc %v entry %#x", p.Pid(), uint64(entry))
	return p
}

func (p *Proc) String() string {
	return fmt.Sprintf("proc{%v %v prio %d stride %d}", p.Pid(), p.status, p.priority, p.stride)
}

func (p *Proc) Pid() sp.Tpid {
	return p.pidh.Pid()
}

func (p *Proc) PidHandle() *PidHandle {
	return p.pidh
}

func (p *Proc) Kstack() (sp.Tvpn, sp.Tvpn) {
	return p.kstackLo, p.kstackHi
}

func (p *Proc) Ctx() *Context {
	return &p.ctx
}

func (p *Proc) Token() sp.Ttoken {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.as.Token()
}

func (p *Proc) AddrSpace() *aspace.AddrSpace {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.as
}

// setStatusL enforces the lifecycle machine; an illegal transition is a
// kernel bug, not an error to report.
func (p *Proc) setStatusL(next Tstatus) {
	if !p.status.canBecome(next) {
		db.DFatalf("setStatus: %v cannot become %v", p, next)
	}
	p.status = next
}

func (p *Proc) SetStatus(next Tstatus) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.setStatusL(next)
}

func (p *Proc) Status() Tstatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.status
}

// MarkZombie is the terminal transition: record the exit code and release
// the user address space early; the PCB itself waits for the parent.
func (p *Proc) MarkZombie(code int32) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.setStatusL(Zombie)
	p.exitCode = code
	p.as.Free()
	p.as = nil
}

func (p *Proc) ExitCode() int32 {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.exitCode
}

// ReplaceImage swaps in a fresh address space in place, preserving
// pid, kernel stack, and accounting; this is the exec half of fork/exec.
func (p *Proc) ReplaceImage(as *aspace.AddrSpace, entry, usp sp.Tvaddr) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.as.Free()
	p.as = as
	p.entry = entry
	p.usp = usp
	p.ctx = NewContext(entry, p.kstackHi.Addr())
	db.DPrintf(db.PROC, "ReplaceImage %v entry %#x", p.Pid(), uint64(entry))
}

//
// Parent/child tree. The parent link is by pid only; the children list
// owns the child PCBs until they are reaped.
//

func (p *Proc) Parent() sp.Tpid {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.parent
}

func (p *Proc) SetParent(pid sp.Tpid) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.parent = pid
}

func (p *Proc) AddChild(c *Proc) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.children = append(p.children, c)
}

func (p *Proc) RemoveChild(pid sp.Tpid) *Proc {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, c := range p.children {
		if c.Pid() == pid {
			p.children = append(p.children[:i], p.children[i+1:]...)
			return c
		}
	}
	return nil
}

func (p *Proc) Children() []*Proc {
	p.mu.Lock()
	defer p.mu.Unlock()

	cs := make([]*Proc, len(p.children))
	copy(cs, p.children)
	return cs
}

// TakeChildren empties the children list, for reparenting on exit.
func (p *Proc) TakeChildren() []*Proc {
	p.mu.Lock()
	defer p.mu.Unlock()

	cs := p.children
	p.children = make([]*Proc, 0)
	return cs
}

//
// Scheduling fields.
//

func (p *Proc) Priority() sp.Tpriority {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.priority
}

// SetPriority requires prio >= 2: a priority of 1 would make the stride
// increment the full stride numerator and starve fairness.
func (p *Proc) SetPriority(prio sp.Tpriority) error {
	if prio < 2 {
		return fmt.Errorf("priority %d: must be >= 2", prio)
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.priority = prio
	return nil
}

func (p *Proc) Stride() sp.Tstride {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.stride
}

// AdvanceStride applies the stride rule: the pass grows inversely with
// priority, so a task with twice the priority is picked twice as often.
func (p *Proc) AdvanceStride(big sp.Tstride) sp.Tstride {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stride += big / sp.Tstride(p.priority)
	return p.stride
}

//
// Accounting.
//

func (p *Proc) CountSyscall(no sp.Tsysno) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.syscalls[no] += 1
}

func (p *Proc) SyscallCount(no sp.Tsysno) uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.syscalls[no]
}

func (p *Proc) SyscallCounts() map[sp.Tsysno]uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()

	m := make(map[sp.Tsysno]uint32, len(p.syscalls))
	for k, v := range p.syscalls {
		m[k] = v
	}
	return m
}

// MarkDispatched records the first time the scheduler picked this task.
func (p *Proc) MarkDispatched(now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.dispatched {
		p.dispatched = true
		p.firstDispatch = now
	}
}

func (p *Proc) MsSinceDispatch(now time.Time) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.dispatched {
		return 0
	}
	return now.Sub(p.firstDispatch).Milliseconds()
}

//
// Memory syscall back-ends. Validation failures are reported to the
// caller as negative sentinels, never fatal to the kernel.
//

// Mmap maps length bytes at start with the requested port bits. A start
// of 0 leaves placement to the kernel, which picks the lowest free range
// at or above the configured mmap base and returns it; an explicit start
// returns 0 on success.
func (p *Proc) Mmap(start sp.Tvaddr, length uint64, port uint64) int64 {
	if !start.Aligned() {
		return -1
	}
	// port encodes R/W/X one bit right of the mapping permission bits;
	// no bits outside R/W/X, and at least one set.
	if port&^0x7 != 0 || port&0x7 == 0 {
		return -1
	}
	if length == 0 {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	hinted := start == 0
	if hinted {
		vpn, ok := p.as.FindFree(p.mmapBase.Floor(), sp.Tvaddr(length).Ceil())
		if !ok {
			return -1
		}
		start = vpn.Addr()
	}
	end := start + sp.Tvaddr(length)
	if !p.as.IsRangeFree(start.Floor(), end.Ceil()) {
		return -1
	}
	perm := sp.Tmapperm(port<<1) | sp.PERM_U
	if err := p.as.InsertFramedArea(start, end, perm); err != nil {
		return -1
	}
	if hinted {
		return int64(start)
	}
	return 0
}

func (p *Proc) Munmap(start sp.Tvaddr, length uint64) int64 {
	if !start.Aligned() || length == 0 {
		return -1
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	end := start + sp.Tvaddr(length)
	if err := p.as.RemoveAreaExact(start.Floor(), end.Ceil()); err != nil {
		return -1
	}
	return 0
}

// Sbrk moves the program break by delta and returns the previous break,
// or failure if the new boundary would retreat below the heap base.
func (p *Proc) Sbrk(delta int64) (sp.Tvaddr, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	old := p.as.Brk()
	if delta < 0 && sp.Tvaddr(-delta) > old {
		return 0, false
	}
	if !p.as.SetBrk(old + sp.Tvaddr(delta)) {
		return 0, false
	}
	return old, true
}
