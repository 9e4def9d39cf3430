// Copyright 2016 by Thorsten von Eicken, see LICENSE file

// Package rtthread pins the calling goroutine to its own kernel thread and
// gives it realtime scheduling priority, for use by the goroutines that
// simulate the radio and timer ISRs (spec.md §5 "Single-core,
// interrupt-driven" model demands those never lose the CPU to unrelated
// work). Adapted from the teacher's thread package, using
// golang.org/x/sys/unix in place of a raw syscall.RawSyscall.
package rtthread

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// fifo and roundRobin are the two realtime scheduling policies; roundRobin
// is used so several realtime goroutines (radio ISR, timer ISR, deferred
// dispatch) time-slice against each other instead of starving one another.
const (
	fifo       = 1
	roundRobin = 2
)

// priority is somewhere in the lower-middle of the realtime range, enough
// to preempt normal-priority goroutines without starving the kernel itself.
const priority = 10

// Realtime locks the calling goroutine to its own kernel thread and
// elevates that thread's scheduling policy to SCHED_RR at a fixed priority.
// It must be called from the goroutine that will do the realtime work
// (typically right at the top of the function run as a new goroutine).
func Realtime() error {
	runtime.LockOSThread()
	tid := unix.Gettid()
	return unix.SchedSetscheduler(tid, roundRobin, &unix.SchedParam{Priority: priority})
}
