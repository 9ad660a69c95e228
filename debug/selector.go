package debug

type Tselector string

// ALWAYS
const (
	ALWAYS Tselector = "ALWAYS"
	ERROR            = "ERROR"
	NEVER            = "NEVER"
)

// ERR
const (
	ERR Tselector = "_ERR"
)

// Memory
const (
	FRAME     Tselector = "FRAME"
	PTABLE              = "PTABLE"
	ASPACE              = "ASPACE"
	FRAME_ERR           = FRAME + ERR
)

// Tasks
const (
	PROC    Tselector = "PROC"
	SCHED             = "SCHED"
	KERNEL            = "KERNEL"
	SYSCALL           = "SYSCALL"
)

// Tests
const (
	TEST Tselector = "TEST"
)
