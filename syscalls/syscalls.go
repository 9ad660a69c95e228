// Package syscalls is the process-management syscall layer over the
// kernel core. Pointer-typed arguments are virtual addresses in the
// calling task's address space and go through page-table translation; a
// result struct may straddle a page boundary, so writes go through the
// split-slice copy helpers, never a raw pointer.
package syscalls

import (
	"encoding/binary"

	db "strideos/debug"
	"strideos/kernel"
	"strideos/proc"
	"strideos/ptable"
	sp "strideos/stridep"
)

func cur(k *kernel.Kernel, no sp.Tsysno) *proc.Proc {
	p := k.Current()
	if p == nil {
		db.DFatalf("syscall %d with no current task", no)
	}
	p.CountSyscall(no)
	return p
}

// Exit never returns control to the caller.
func Exit(k *kernel.Kernel, code int32) {
	cur(k, sp.SYS_EXIT)
	k.ExitCurrent(code)
}

func Yield(k *kernel.Kernel) int64 {
	cur(k, sp.SYS_YIELD)
	k.YieldCurrent()
	return 0
}

func GetPid(k *kernel.Kernel) int64 {
	p := cur(k, sp.SYS_GETPID)
	return int64(p.Pid())
}

// GetTime writes {sec, usec} at ts in the caller's space.
func GetTime(k *kernel.Kernel, ts sp.Tvaddr) int64 {
	cur(k, sp.SYS_GET_TIME)
	sec, usec := k.Clock()
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint64(buf[0:], sec)
	binary.LittleEndian.PutUint64(buf[8:], usec)
	if err := k.CopyOutCurrent(ts, buf); err != nil {
		db.DFatalf("GetTime: %v", err)
	}
	return 0
}

// TaskInfo writes the caller's status, per-syscall counts, and elapsed
// milliseconds since first dispatch.
func TaskInfo(k *kernel.Kernel, ti sp.Tvaddr) int64 {
	p := cur(k, sp.SYS_TASK_INFO)
	buf := make([]byte, 8+4*sp.MAXSYSNO+8)
	binary.LittleEndian.PutUint64(buf[0:], uint64(p.Status()))
	for no, n := range p.SyscallCounts() {
		if int(no) < sp.MAXSYSNO {
			binary.LittleEndian.PutUint32(buf[8+4*int(no):], n)
		}
	}
	binary.LittleEndian.PutUint64(buf[8+4*sp.MAXSYSNO:], uint64(p.MsSinceDispatch(k.Now())))
	if err := k.CopyOutCurrent(ti, buf); err != nil {
		db.DFatalf("TaskInfo: %v", err)
	}
	return 0
}

func Mmap(k *kernel.Kernel, start sp.Tvaddr, length uint64, port uint64) int64 {
	p := cur(k, sp.SYS_MMAP)
	return p.Mmap(start, length, port)
}

func Munmap(k *kernel.Kernel, start sp.Tvaddr, length uint64) int64 {
	p := cur(k, sp.SYS_MUNMAP)
	return p.Munmap(start, length)
}

// Sbrk returns the previous program break, or -1 if the new boundary
// would retreat below the heap base.
func Sbrk(k *kernel.Kernel, delta int64) int64 {
	p := cur(k, sp.SYS_SBRK)
	old, ok := p.Sbrk(delta)
	if !ok {
		return -1
	}
	return int64(old)
}

// SetPriority returns the new priority, or -1 for priorities <= 1.
func SetPriority(k *kernel.Kernel, prio int64) int64 {
	p := cur(k, sp.SYS_SET_PRIORITY)
	if prio < 2 {
		return -1
	}
	if err := p.SetPriority(sp.Tpriority(prio)); err != nil {
		return -1
	}
	return prio
}

func Fork(k *kernel.Kernel) int64 {
	p := cur(k, sp.SYS_FORK)
	child, err := k.Fork(p)
	if err != nil {
		return -1
	}
	return int64(child.Pid())
}

// Exec reads the NUL-terminated image name at path and replaces the
// caller's image.
func Exec(k *kernel.Kernel, path sp.Tvaddr) int64 {
	p := cur(k, sp.SYS_EXEC)
	name, err := ptable.TranslatedString(k.Mem(), p.Token(), path)
	if err != nil {
		db.DFatalf("Exec: %v", err)
	}
	if err := k.Exec(p, name); err != nil {
		return -1
	}
	return 0
}

// Spawn creates a child running the named image, without duplicating
// the caller's address space.
func Spawn(k *kernel.Kernel, path sp.Tvaddr) int64 {
	p := cur(k, sp.SYS_SPAWN)
	name, err := ptable.TranslatedString(k.Mem(), p.Token(), path)
	if err != nil {
		db.DFatalf("Spawn: %v", err)
	}
	child, err := k.Spawn(p, name)
	if err != nil {
		return -1
	}
	return int64(child.Pid())
}

// Waitpid reaps a zombie child: the reaped pid, or -1 if the caller has
// no matching child, or -2 if the child is still alive. The exit code is
// written at exitVa unless it is 0.
func Waitpid(k *kernel.Kernel, pid sp.Tpid, exitVa sp.Tvaddr) int64 {
	p := cur(k, sp.SYS_WAITPID)
	ret, code := k.WaitPid(p, pid)
	if ret < 0 {
		return ret
	}
	if exitVa != 0 {
		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, uint32(code))
		if err := k.CopyOutCurrent(exitVa, buf); err != nil {
			db.DFatalf("Waitpid: %v", err)
		}
	}
	return ret
}
