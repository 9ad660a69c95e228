package kernel

import (
	"strideos/proc"
)

// Switcher is the external context-switch primitive: it saves prev and
// resumes next. The core never looks inside a context; it only promises
// to have dropped every kernel guard before calling Switch.
type Switcher interface {
	Switch(prev, next *proc.Context)
}

// recordSwitcher stands in for the real register-level switch routine;
// it just counts transfers.
type recordSwitcher struct {
	nswitch int
}

func (rs *recordSwitcher) Switch(prev, next *proc.Context) {
	rs.nswitch += 1
}
