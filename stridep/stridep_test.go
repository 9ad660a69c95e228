package stridep

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIndexes(t *testing.T) {
	vpn := Tvpn(2<<18 | 3<<9 | 4)
	idx := vpn.Indexes()
	assert.Equal(t, [PTLEVELS]int{2, 3, 4}, idx)

	top := Tvpn((1 << VPNBITS) - 1)
	assert.Equal(t, [PTLEVELS]int{IDXMASK, IDXMASK, IDXMASK}, top.Indexes())
}

func TestAlign(t *testing.T) {
	va := Tvaddr(PAGESZ + 17)
	assert.Equal(t, Tvpn(1), va.Floor())
	assert.Equal(t, Tvpn(2), va.Ceil())
	assert.Equal(t, uint64(17), va.PageOffset())
	assert.False(t, va.Aligned())
	assert.True(t, va.Floor().Addr().Aligned())
	assert.Equal(t, Tvpn(1), Tvaddr(PAGESZ).Ceil())
}

func TestToken(t *testing.T) {
	tok := NewToken(Tppn(42))
	assert.Equal(t, Tppn(42), tok.Root())
	assert.Equal(t, TOKENMODE, tok&^Ttoken(PPNMASK))
}

func TestConfig(t *testing.T) {
	cfg := NewConfig()
	assert.Equal(t, 1024, cfg.Mem.PHYS_PAGES)
	assert.Equal(t, Tvaddr(0x10000000), cfg.Mem.MMAP_BASE)
	assert.Equal(t, Tpriority(16), cfg.Sched.DEFAULT_PRIORITY)
}

// Adjacent pids get disjoint stacks separated by at least a guard page,
// all below the trampoline.
func TestKernelStackRange(t *testing.T) {
	cfg := NewConfig()
	lo0, hi0 := cfg.KernelStackRange(0)
	lo1, hi1 := cfg.KernelStackRange(1)
	assert.Equal(t, Tvpn(cfg.Stack.KERNEL_STACK_PAGES), hi0-lo0)
	assert.Equal(t, hi0-lo0, hi1-lo1)
	assert.True(t, lo1 < hi1)
	assert.True(t, hi1 < lo0)
	assert.True(t, hi0 <= cfg.TrampolineVpn())
}
