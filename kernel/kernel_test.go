package kernel

import (
	"testing"

	"github.com/montanaflynn/stats"
	"github.com/stretchr/testify/assert"

	"strideos/loader"
	"strideos/proc"
	sp "strideos/stridep"
)

func testRegistry() *loader.Registry {
	reg := loader.NewRegistry()
	for _, name := range []string{"init", "task", "idle"} {
		reg.Register(&loader.Image{Name: name, Entry: 0x1000,
			Segments: []loader.Segment{
				{Va: 0x1000, Perm: sp.PERM_R | sp.PERM_X, Data: []byte(name)},
			}})
	}
	return reg
}

func newKernel(t *testing.T, policy Tpolicy) *Kernel {
	k, err := NewKernel(sp.NewConfig(), testRegistry(), policy, nil)
	assert.Nil(t, err)
	return k
}

func TestBootInit(t *testing.T) {
	k := newKernel(t, PolicyFifo)
	p, err := k.BootInit("init")
	assert.Nil(t, err)
	assert.Equal(t, sp.Tpid(0), p.Pid())
	assert.Equal(t, proc.Ready, p.Status())
	assert.Equal(t, 1, k.NProc())

	assert.Panics(t, func() { k.BootInit("init") })

	k.Start()
	assert.Equal(t, p, k.Current())
	assert.Equal(t, proc.Running, p.Status())
}

func TestBadImage(t *testing.T) {
	k := newKernel(t, PolicyFifo)
	_, err := k.BootInit("nosuch")
	assert.NotNil(t, err)
}

func TestForkWaitpid(t *testing.T) {
	k := newKernel(t, PolicyFifo)
	init, err := k.BootInit("init")
	assert.Nil(t, err)
	k.Start()

	child, err := k.Fork(init)
	assert.Nil(t, err)
	assert.Equal(t, init.Pid(), child.Parent())
	assert.Equal(t, init.Priority(), child.Priority())
	assert.Equal(t, sp.Tstride(0), child.Stride())

	// Child has not exited yet.
	ret, _ := k.WaitPid(init, child.Pid())
	assert.Equal(t, ChildAlive, ret)
	// No such child.
	ret, _ = k.WaitPid(init, sp.Tpid(42))
	assert.Equal(t, NoChild, ret)

	// Run the child until it exits.
	k.YieldCurrent()
	assert.Equal(t, child, k.Current())
	k.ExitCurrent(7)
	assert.Equal(t, proc.Zombie, child.Status())
	assert.Equal(t, init, k.Current())

	ret, code := k.WaitPid(init, child.Pid())
	assert.Equal(t, int64(child.Pid()), ret)
	assert.Equal(t, int32(7), code)
	assert.Equal(t, 1, k.NProc())
	_, ok := k.Resolve(child.Pid())
	assert.False(t, ok)
}

func TestForkIndependentMemory(t *testing.T) {
	k := newKernel(t, PolicyFifo)
	init, err := k.BootInit("init")
	assert.Nil(t, err)
	k.Start()

	child, err := k.Fork(init)
	assert.Nil(t, err)

	pb, err := init.AddrSpace().ReadVa(0x1000, 4)
	assert.Nil(t, err)
	cb, err := child.AddrSpace().ReadVa(0x1000, 4)
	assert.Nil(t, err)
	assert.Equal(t, pb, cb)

	assert.Nil(t, child.AddrSpace().WriteVa(0x1000, []byte("xxxx")))
	pb2, err := init.AddrSpace().ReadVa(0x1000, 4)
	assert.Nil(t, err)
	assert.Equal(t, pb, pb2)
}

func TestExec(t *testing.T) {
	k := newKernel(t, PolicyFifo)
	init, err := k.BootInit("init")
	assert.Nil(t, err)
	k.Start()

	pid := init.Pid()
	klo, _ := init.Kstack()
	assert.Nil(t, k.Exec(init, "task"))
	// Identity is preserved; the image is replaced.
	assert.Equal(t, pid, init.Pid())
	klo2, _ := init.Kstack()
	assert.Equal(t, klo, klo2)
	b, err := init.AddrSpace().ReadVa(0x1000, 4)
	assert.Nil(t, err)
	assert.Equal(t, []byte("task"), b)

	assert.NotNil(t, k.Exec(init, "nosuch"))
}

func TestSpawn(t *testing.T) {
	k := newKernel(t, PolicyFifo)
	init, err := k.BootInit("init")
	assert.Nil(t, err)
	k.Start()

	child, err := k.Spawn(init, "task")
	assert.Nil(t, err)
	assert.Equal(t, init.Pid(), child.Parent())
	b, err := child.AddrSpace().ReadVa(0x1000, 4)
	assert.Nil(t, err)
	assert.Equal(t, []byte("task"), b)

	_, err = k.Spawn(init, "nosuch")
	assert.NotNil(t, err)
}

// A task's orphans move to init when it exits, and init can reap them.
func TestReparent(t *testing.T) {
	k := newKernel(t, PolicyFifo)
	init, err := k.BootInit("init")
	assert.Nil(t, err)
	k.Start()

	a, err := k.Spawn(init, "task")
	assert.Nil(t, err)
	k.YieldCurrent()
	assert.Equal(t, a, k.Current())

	g, err := k.Fork(a)
	assert.Nil(t, err)
	assert.Equal(t, a.Pid(), g.Parent())

	k.ExitCurrent(0)
	assert.Equal(t, init.Pid(), g.Parent())
	found := false
	for _, c := range init.Children() {
		if c == g {
			found = true
		}
	}
	assert.True(t, found)
	assert.Equal(t, 0, len(a.Children()))

	// The reparented child's weak link resolves to a parent that lists
	// it.
	p, ok := k.Resolve(g.Parent())
	assert.True(t, ok)
	assert.Equal(t, init, p)
}

// Create/destroy cycles return every frame: pid, kernel stack, user
// memory, page tables.
func TestNoFrameLeak(t *testing.T) {
	k := newKernel(t, PolicyFifo)
	init, err := k.BootInit("init")
	assert.Nil(t, err)
	k.Start()

	var free [2]int
	for i := 0; i < 2; i++ {
		child, err := k.Spawn(init, "task")
		assert.Nil(t, err)
		pid := child.Pid()
		k.YieldCurrent()
		assert.Equal(t, child, k.Current())
		k.ExitCurrent(0)
		ret, _ := k.WaitPid(init, pid)
		assert.Equal(t, int64(pid), ret)
		free[i] = k.FrameAlloc().NFree()
	}
	assert.Equal(t, free[0], free[1])
}

func TestExhaustion(t *testing.T) {
	cfg := sp.NewConfig()
	cfg.Mem.PHYS_PAGES = 64
	k, err := NewKernel(cfg, testRegistry(), PolicyFifo, nil)
	assert.Nil(t, err)
	init, err := k.BootInit("init")
	assert.Nil(t, err)
	k.Start()

	failed := false
	for i := 0; i < 20; i++ {
		if _, err := k.Spawn(init, "task"); err != nil {
			failed = true
			break
		}
	}
	assert.True(t, failed, "allocator never ran out")
	// The kernel survives exhaustion; the current task still runs.
	assert.Equal(t, init, k.Current())
}

func TestIdleWhenAllExit(t *testing.T) {
	k := newKernel(t, PolicyFifo)
	_, err := k.BootInit("init")
	assert.Nil(t, err)
	k.Start()
	k.ExitCurrent(0)
	assert.Nil(t, k.Current())
}

// End-to-end stride fairness: priorities 30 vs 15 give a dispatch ratio
// around 2, within stride-rounding tolerance.
func TestStrideFairnessEndToEnd(t *testing.T) {
	k := newKernel(t, PolicyStride)
	init, err := k.BootInit("init")
	assert.Nil(t, err)

	p1, err := k.Spawn(init, "task")
	assert.Nil(t, err)
	assert.Nil(t, p1.SetPriority(30))
	p2, err := k.Spawn(init, "task")
	assert.Nil(t, err)
	assert.Nil(t, p2.SetPriority(15))

	k.Start()
	counts := make(map[sp.Tpid]int)
	for i := 0; i < 9000; i++ {
		p := k.Current()
		assert.NotNil(t, p)
		counts[p.Pid()] += 1
		k.YieldCurrent()
	}
	ratio, err := stats.Mean([]float64{float64(counts[p1.Pid()]) / float64(counts[p2.Pid()])})
	assert.Nil(t, err)
	assert.InDelta(t, 2.0, ratio, 0.05)
	// init ran too, at its own priority's share.
	assert.Greater(t, counts[sp.Tpid(0)], 0)
}
