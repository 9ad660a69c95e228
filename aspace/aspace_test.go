package aspace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/thanhpk/randstr"

	"strideos/frame"
	"strideos/loader"
	sp "strideos/stridep"
)

const NPAGES = 256

func newLayout(t *testing.T, fa *frame.FrameAlloc) *Layout {
	cfg := sp.NewConfig()
	tramp, err := fa.Alloc()
	assert.Nil(t, err)
	return &Layout{
		TrampolinePpn:  tramp.Ppn(),
		TrampolineVpn:  cfg.TrampolineVpn(),
		TrapContextVpn: cfg.TrapContextVpn(),
		UserStackPages: cfg.Stack.USER_STACK_PAGES,
	}
}

func testImage(name string, data []byte) *loader.Image {
	return &loader.Image{
		Name:  name,
		Entry: 0x1000,
		Segments: []loader.Segment{
			{Va: 0x1000, Perm: sp.PERM_R | sp.PERM_X, Data: data},
		},
	}
}

func TestInsertRemove(t *testing.T) {
	mem := frame.NewPhysMem(NPAGES)
	fa := frame.NewFrameAlloc(mem, 0, sp.Tppn(NPAGES))
	as, err := NewEmpty(fa)
	assert.Nil(t, err)

	err = as.InsertFramedArea(0x10000, 0x13000, sp.PERM_R|sp.PERM_W|sp.PERM_U)
	assert.Nil(t, err)
	assert.False(t, as.IsRangeFree(sp.Tvaddr(0x12000).Floor(), sp.Tvaddr(0x14000).Floor()))

	// Overlap is rejected.
	err = as.InsertFramedArea(0x12000, 0x14000, sp.PERM_R|sp.PERM_U)
	assert.NotNil(t, err)

	// Every framed page translates.
	for vpn := sp.Tvaddr(0x10000).Floor(); vpn < sp.Tvaddr(0x13000).Floor(); vpn++ {
		_, ok := as.PageTable().Translate(vpn)
		assert.True(t, ok)
	}

	err = as.RemoveAreaExact(sp.Tvaddr(0x10000).Floor(), sp.Tvaddr(0x13000).Floor())
	assert.Nil(t, err)
	_, ok := as.PageTable().Translate(sp.Tvaddr(0x10000).Floor())
	assert.False(t, ok)

	// Exact-range removal only.
	err = as.InsertFramedArea(0x10000, 0x13000, sp.PERM_R|sp.PERM_U)
	assert.Nil(t, err)
	err = as.RemoveAreaExact(sp.Tvaddr(0x10000).Floor(), sp.Tvaddr(0x12000).Floor())
	assert.NotNil(t, err)
}

func TestFreeReturnsFrames(t *testing.T) {
	mem := frame.NewPhysMem(NPAGES)
	fa := frame.NewFrameAlloc(mem, 0, sp.Tppn(NPAGES))
	lo := newLayout(t, fa)
	free := fa.NFree()

	as, _, _, err := NewFromImage(fa, lo, testImage("echo", randstr.Bytes(2*sp.PAGESZ)))
	assert.Nil(t, err)
	assert.Less(t, fa.NFree(), free)
	as.Free()
	assert.Equal(t, free, fa.NFree())
}

func TestBrk(t *testing.T) {
	mem := frame.NewPhysMem(NPAGES)
	fa := frame.NewFrameAlloc(mem, 0, sp.Tppn(NPAGES))
	lo := newLayout(t, fa)
	as, _, _, err := NewFromImage(fa, lo, testImage("sbrk", []byte("code")))
	assert.Nil(t, err)

	base := as.Brk()
	assert.True(t, as.SetBrk(base+3*sp.PAGESZ))
	assert.Equal(t, base+3*sp.PAGESZ, as.Brk())
	// Heap pages are mapped and writable through translation.
	assert.Nil(t, as.WriteVa(base, []byte("heap bytes")))

	// Retreat below the heap base fails and leaves the break unchanged.
	assert.False(t, as.SetBrk(base-sp.PAGESZ))
	assert.Equal(t, base+3*sp.PAGESZ, as.Brk())

	assert.True(t, as.SetBrk(base))
	_, ok := as.PageTable().Translate(base.Ceil())
	assert.False(t, ok)
	as.Free()
}

func TestImageContents(t *testing.T) {
	mem := frame.NewPhysMem(NPAGES)
	fa := frame.NewFrameAlloc(mem, 0, sp.Tppn(NPAGES))
	lo := newLayout(t, fa)
	data := randstr.Bytes(sp.PAGESZ + 100)
	as, entry, usp, err := NewFromImage(fa, lo, testImage("prog", data))
	assert.Nil(t, err)
	assert.Equal(t, sp.Tvaddr(0x1000), entry)
	assert.True(t, usp > entry)

	got, err := as.ReadVa(0x1000, len(data))
	assert.Nil(t, err)
	assert.Equal(t, data, got)

	// The trampoline aliases the shared frame.
	pte, ok := as.PageTable().Translate(lo.TrampolineVpn)
	assert.True(t, ok)
	assert.Equal(t, lo.TrampolinePpn, pte.Ppn())
	as.Free()
}

func TestCloneIndependent(t *testing.T) {
	mem := frame.NewPhysMem(NPAGES)
	fa := frame.NewFrameAlloc(mem, 0, sp.Tppn(NPAGES))
	lo := newLayout(t, fa)
	data := randstr.Bytes(sp.PAGESZ)
	parent, _, _, err := NewFromImage(fa, lo, testImage("parent", data))
	assert.Nil(t, err)
	assert.True(t, parent.SetBrk(parent.Brk()+sp.PAGESZ))
	assert.Nil(t, parent.WriteVa(parent.HeapBottom(), []byte("parent heap")))

	child, err := CloneFrom(fa, lo, parent)
	assert.Nil(t, err)
	assert.Equal(t, parent.Brk(), child.Brk())

	// Content-identical...
	pb, err := parent.ReadVa(0x1000, len(data))
	assert.Nil(t, err)
	cb, err := child.ReadVa(0x1000, len(data))
	assert.Nil(t, err)
	assert.Equal(t, pb, cb)

	// ...but independently mutable.
	assert.Nil(t, child.WriteVa(0x1000, []byte("child was here")))
	pb2, err := parent.ReadVa(0x1000, len(data))
	assert.Nil(t, err)
	assert.Equal(t, pb, pb2)

	// The child's heap grew out of fresh frames.
	assert.Nil(t, child.WriteVa(child.HeapBottom(), []byte("child heap")))
	ph, err := parent.ReadVa(parent.HeapBottom(), 11)
	assert.Nil(t, err)
	assert.Equal(t, []byte("parent heap"), ph)

	child.Free()
	parent.Free()
}
