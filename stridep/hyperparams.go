package stridep

import (
	"log"

	"gopkg.in/yaml.v3"
)

// Default machine and policy parameters. A kernel is booted against one
// Config; tests shrink phys_pages to force exhaustion.
var defaults = `
mem:
  phys_pages: 1024
  kernel_pages: 16
  mmap_base: 0x10000000

stack:
  kernel_stack_pages: 2
  guard_pages: 1
  user_stack_pages: 2

sched:
  big_stride: 0x10000000
  default_priority: 16
`

type Config struct {
	Mem struct {
		// Number of simulated physical page frames.
		PHYS_PAGES int `yaml:"phys_pages"`
		// Frames reserved for the kernel image, identity-mapped and
		// never handed to the allocator.
		KERNEL_PAGES int `yaml:"kernel_pages"`
		// Lowest virtual address handed out by mmap.
		MMAP_BASE Tvaddr `yaml:"mmap_base"`
	} `yaml:"mem"`
	Stack struct {
		KERNEL_STACK_PAGES int `yaml:"kernel_stack_pages"`
		// Unmapped pages between adjacent kernel stacks.
		GUARD_PAGES      int `yaml:"guard_pages"`
		USER_STACK_PAGES int `yaml:"user_stack_pages"`
	} `yaml:"stack"`
	Sched struct {
		BIG_STRIDE       Tstride   `yaml:"big_stride"`
		DEFAULT_PRIORITY Tpriority `yaml:"default_priority"`
	} `yaml:"sched"`
}

// Highest page of every address space; aliases one shared kernel frame.
func (c *Config) TrampolineVpn() Tvpn {
	return Tvpn((1 << VPNBITS) - 1)
}

// Trap context sits just below the trampoline.
func (c *Config) TrapContextVpn() Tvpn {
	return c.TrampolineVpn() - 1
}

// Kernel-stack placement in the kernel address space is derived from the
// pid: stacks grow down from the trampoline, one guard gap apart.
func (c *Config) KernelStackRange(pid Tpid) (Tvpn, Tvpn) {
	per := Tvpn(c.Stack.KERNEL_STACK_PAGES + c.Stack.GUARD_PAGES)
	top := c.TrampolineVpn() - Tvpn(pid)*per
	return top - Tvpn(c.Stack.KERNEL_STACK_PAGES), top
}

func NewConfig() *Config {
	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(defaults), cfg); err != nil {
		log.Fatalf("FATAL error unmarshaling hyperparams: %v", err)
	}
	return cfg
}
