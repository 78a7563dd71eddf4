// Package affinity optionally pins the calling OS thread to a single CPU
// core. The reactor loop is single-threaded and latency-sensitive; keeping
// it on one core avoids scheduler migrations perturbing the microsecond-
// scale measurements the rest of the client collects.
package affinity

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// Pin locks the calling goroutine to its current OS thread and restricts
// that thread to the given CPU index. Callers must run this from the
// goroutine that will execute the reactor loop, before entering it.
func Pin(cpu int) error {
	runtime.LockOSThread()
	var set unix.CPUSet
	set.Zero()
	set.Set(cpu)
	return unix.SchedSetaffinity(0, &set)
}
