// Package cpu binds worker goroutines to OS threads and, where the platform
// allows it, to individual cores.
package cpu

import "runtime"

// NumCPU returns the number of logical CPUs usable by the process.
func NumCPU() int {
	return runtime.NumCPU()
}

func wrap(id int) int {
	n := runtime.NumCPU()
	if id < 0 {
		id = -id
	}
	return id % n
}
