package debug

import (
	"fmt"
	"log"
	"os"
	"runtime"
	"strings"
)

func init() {
	log.SetFlags(log.Ltime | log.Lmicroseconds)
}

//
// Kernel debug output is controlled by the STRIDEOSDEBUG environment
// variable, which can be a list of selectors (e.g., "FRAME;SCHED").
//

var labels map[Tselector]bool

func debugLabels() map[Tselector]bool {
	if labels != nil {
		return labels
	}
	labels = make(map[Tselector]bool)
	s := os.Getenv("STRIDEOSDEBUG")
	if s == "" {
		return labels
	}
	for _, l := range strings.Split(s, ";") {
		labels[Tselector(l)] = true
	}
	return labels
}

func DPrintf(label Tselector, format string, v ...interface{}) {
	m := debugLabels()
	if _, ok := m[label]; ok || label == ALWAYS {
		log.Printf("%v %v", label, fmt.Sprintf(format, v...))
	}
}

// DFatalf reports an unrecoverable kernel-internal fault. The core is the
// outermost layer, so an invariant violation halts the whole system; the
// panic unwinds to whoever booted the kernel.
func DFatalf(format string, v ...interface{}) {
	msg := fmt.Sprintf(format, v...)
	pc, file, line, ok := runtime.Caller(1)
	fnDetails := runtime.FuncForPC(pc)
	if ok && fnDetails != nil {
		log.Printf("FATAL %v %v:%v %v", fnDetails.Name(), file, line, msg)
	} else {
		log.Printf("FATAL (missing details) %v", msg)
	}
	panic("FATAL " + msg)
}
