// Package sched is the ready queue. Insertion is FIFO; under the stride
// policy selection is by minimum accumulated stride, so dispatch frequency
// tracks priority.
package sched

import (
	"github.com/sasha-s/go-deadlock"

	db "strideos/debug"
	"strideos/proc"
	sp "strideos/stridep"
)

type ReadyQ struct {
	mu deadlock.Mutex
	q  []*proc.Proc

	// Stride numerator, from the sched hyperparams.
	big sp.Tstride
}

func NewReadyQ(big sp.Tstride) *ReadyQ {
	return &ReadyQ{q: make([]*proc.Proc, 0), big: big}
}

func (rq *ReadyQ) Len() int {
	rq.mu.Lock()
	defer rq.mu.Unlock()

	return len(rq.q)
}

// Add appends a runnable task. Queue membership and status must agree.
func (rq *ReadyQ) Add(p *proc.Proc) {
	if st := p.Status(); st != proc.Ready {
		db.DFatalf("Add: %v is not Ready", p)
	}
	rq.mu.Lock()
	defer rq.mu.Unlock()

	rq.q = append(rq.q, p)
	db.DPrintf(db.SCHED, "Add %v", p)
}

// Fetch is the plain FIFO policy, kept as the simpler alternative; a
// kernel runs one policy or the other, never both.
func (rq *ReadyQ) Fetch() *proc.Proc {
	rq.mu.Lock()
	defer rq.mu.Unlock()

	if len(rq.q) == 0 {
		return nil
	}
	p := rq.q[0]
	rq.q = rq.q[1:]
	return p
}

// FetchMinStride removes and returns the task with the smallest stride,
// ties broken by queue order, and advances its stride by big/priority
// before handing it out. O(n) per dispatch, which is fine at a handful
// of tasks.
func (rq *ReadyQ) FetchMinStride() *proc.Proc {
	rq.mu.Lock()
	defer rq.mu.Unlock()

	if len(rq.q) == 0 {
		return nil
	}
	mini := 0
	min := rq.q[0].Stride()
	for i, p := range rq.q {
		if s := p.Stride(); s < min {
			mini = i
			min = s
		}
	}
	p := rq.q[mini]
	rq.q = append(rq.q[:mini], rq.q[mini+1:]...)
	s := p.AdvanceStride(rq.big)
	db.DPrintf(db.SCHED, "FetchMinStride %v stride %d", p, s)
	return p
}
