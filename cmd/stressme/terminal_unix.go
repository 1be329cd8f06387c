//go:build !windows

package main

import (
	"os"
	"syscall"
)

const pauseHint = " Send SIGUSR1 to pause or resume CPU stress."

// enableWindowsANSI is a no-op on Unix systems
func enableWindowsANSI() {}

func pauseSignals() []os.Signal {
	return []os.Signal{syscall.SIGUSR1}
}
