// Command stressme drives the CPU/RAM stress engines, the CPU benchmark and
// the path-tracer benchmark from a terminal.
package main

import (
	"os"
)

func main() {
	// Enable ANSI escape sequences on Windows for progress bar support
	enableWindowsANSI()

	if err := newRootCmd().Execute(); err != nil {
		_, _ = red.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
