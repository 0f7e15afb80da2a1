//go:build linux

package team

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// availableCPUs returns the CPUs the process may run on, in ascending order.
func availableCPUs() []int {
	var set unix.CPUSet
	if err := unix.SchedGetaffinity(0, &set); err != nil {
		return nil
	}
	cpus := make([]int, 0, set.Count())
	for i := 0; len(cpus) < cap(cpus) && i < 1<<16; i++ {
		if set.IsSet(i) {
			cpus = append(cpus, i)
		}
	}
	return cpus
}

// pinThread locks the calling goroutine to its OS thread and restricts the
// thread to cpu. The goroutine must exit without unlocking, so the pinned
// thread is discarded with it.
func pinThread(cpu int) error {
	runtime.LockOSThread()
	var set unix.CPUSet
	set.Set(cpu)
	return unix.SchedSetaffinity(0, &set)
}
