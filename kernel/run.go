package kernel

import (
	"time"

	db "strideos/debug"
	"strideos/proc"
	sp "strideos/stridep"
)

// Waitpid sentinels surfaced to the caller.
const (
	NoChild    int64 = -1
	ChildAlive int64 = -2
)

func (k *Kernel) fetch() *proc.Proc {
	if k.policy == PolicyFifo {
		return k.rq.Fetch()
	}
	return k.rq.FetchMinStride()
}

// runNext picks the next task and transfers control. The kernel guard is
// taken to swap current and dropped again before the switch primitive
// runs.
func (k *Kernel) runNext(prev *proc.Context) {
	next := k.fetch()

	k.mu.Lock()
	k.current = next
	nextCtx := &k.idleCtx
	if next != nil {
		next.SetStatus(proc.Running)
		next.MarkDispatched(time.Now())
		nextCtx = next.Ctx()
	}
	k.mu.Unlock()

	if next != nil {
		db.DPrintf(db.KERNEL, "dispatch %v", next)
	} else {
		db.DPrintf(db.KERNEL, "idle")
	}
	k.sw.Switch(prev, nextCtx)
}

// Start dispatches the first task from the boot context.
func (k *Kernel) Start() {
	k.runNext(&k.idleCtx)
}

// YieldCurrent is the voluntary give-up: the running task goes back to
// Ready, rejoins the queue, and the scheduler picks again.
func (k *Kernel) YieldCurrent() {
	p := k.Current()
	if p == nil {
		db.DFatalf("YieldCurrent: no current task")
	}
	p.SetStatus(proc.Ready)
	k.rq.Add(p)
	k.runNext(p.Ctx())
}

// ExitCurrent ends the running task: orphans reparent to init, the task
// turns zombie (its user memory is freed now), and the next task runs.
// Exit is immediate and synchronous; nothing can interrupt it.
func (k *Kernel) ExitCurrent(code int32) {
	p := k.Current()
	if p == nil {
		db.DFatalf("ExitCurrent: no current task")
	}
	if p != k.init {
		for _, c := range p.TakeChildren() {
			c.SetParent(k.init.Pid())
			k.init.AddChild(c)
		}
	}
	p.MarkZombie(code)
	db.DPrintf(db.KERNEL, "exit %v code %d", p.Pid(), code)
	k.runNext(p.Ctx())
}

// WaitPid reaps one zombie child. pid < 0 accepts any child. Returns the
// reaped pid and exit code, NoChild if no matching child exists, or
// ChildAlive if the match has not exited yet.
func (k *Kernel) WaitPid(parent *proc.Proc, pid sp.Tpid) (int64, int32) {
	match := false
	var zombie *proc.Proc
	for _, c := range parent.Children() {
		if pid >= 0 && c.Pid() != pid {
			continue
		}
		match = true
		if c.Status() == proc.Zombie {
			zombie = c
			break
		}
	}
	if !match {
		return NoChild, 0
	}
	if zombie == nil {
		return ChildAlive, 0
	}
	parent.RemoveChild(zombie.Pid())
	code := zombie.ExitCode()
	cpid := zombie.Pid()
	k.destroyProc(zombie)
	return int64(cpid), code
}

// destroyProc finishes a reaped zombie: process-table entry, kernel
// stack area, and pid are all released. Destroying a non-zombie is a
// kernel bug.
func (k *Kernel) destroyProc(p *proc.Proc) {
	if p.Status() != proc.Zombie {
		db.DFatalf("destroyProc: %v is not a zombie", p)
	}
	k.procs.Delete(p.Pid())
	klo, khi := p.Kstack()
	if err := k.kas.RemoveAreaExact(klo, khi); err != nil {
		db.DFatalf("destroyProc: kernel stack of %v: %v", p.Pid(), err)
	}
	p.PidHandle().Free()
	db.DPrintf(db.KERNEL, "destroy %v", p.Pid())
}
