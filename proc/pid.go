package proc

import (
	"github.com/sasha-s/go-deadlock"

	db "strideos/debug"
	sp "strideos/stridep"
)

// PidAlloc hands out process ids, monotonically with recycling, the same
// shape as the frame allocator: pop the recycled stack first, otherwise
// advance the never-allocated boundary.
type PidAlloc struct {
	mu       deadlock.Mutex
	current  sp.Tpid
	recycled []sp.Tpid
}

func NewPidAlloc() *PidAlloc {
	return &PidAlloc{recycled: make([]sp.Tpid, 0)}
}

func (pa *PidAlloc) Alloc() *PidHandle {
	pa.mu.Lock()
	defer pa.mu.Unlock()

	var pid sp.Tpid
	if n := len(pa.recycled); n > 0 {
		pid = pa.recycled[n-1]
		pa.recycled = pa.recycled[:n-1]
	} else {
		pid = pa.current
		pa.current += 1
	}
	return &PidHandle{pid: pid, pa: pa}
}

func (pa *PidAlloc) free(pid sp.Tpid) {
	pa.mu.Lock()
	defer pa.mu.Unlock()

	if pid >= pa.current {
		db.DFatalf("free: %v has not been allocated", pid)
	}
	for _, r := range pa.recycled {
		if r == pid {
			db.DFatalf("free: %v already free", pid)
		}
	}
	pa.recycled = append(pa.recycled, pid)
}

// PidHandle owns one pid; freeing returns it for reuse, and runs at most
// once.
type PidHandle struct {
	pid   sp.Tpid
	pa    *PidAlloc
	freed bool
}

func (h *PidHandle) Pid() sp.Tpid {
	return h.pid
}

func (h *PidHandle) Free() {
	if h.freed {
		db.DFatalf("Free: %v already freed", h.pid)
	}
	h.freed = true
	h.pa.free(h.pid)
}
