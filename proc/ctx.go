package proc

import (
	sp "strideos/stridep"
)

// Context is the minimal register set the external switch primitive saves
// and restores to resume a task's kernel-mode execution. The core treats
// its contents as opaque.
type Context struct {
	Ra uint64
	Sp uint64
	S  [12]uint64
}

// NewContext sets up a context that resumes at entry on the given kernel
// stack top.
func NewContext(entry sp.Tvaddr, kstackTop sp.Tvaddr) Context {
	return Context{Ra: uint64(entry), Sp: uint64(kstackTop)}
}
