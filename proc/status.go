package proc

type Tstatus int

const (
	UnInit Tstatus = iota
	Ready
	Running
	Zombie
)

func (st Tstatus) String() string {
	switch st {
	case UnInit:
		return "UnInit"
	case Ready:
		return "Ready"
	case Running:
		return "Running"
	case Zombie:
		return "Zombie"
	default:
		return "unknown"
	}
}

// legal lifecycle transitions; Zombie is terminal.
func (st Tstatus) canBecome(next Tstatus) bool {
	switch st {
	case UnInit:
		return next == Ready
	case Running:
		return next == Ready || next == Zombie
	case Ready:
		return next == Running
	}
	return false
}
