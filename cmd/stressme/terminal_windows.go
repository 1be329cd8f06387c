//go:build windows

package main

import (
	"os"

	"golang.org/x/sys/windows"
)

const pauseHint = ""

// enableWindowsANSI enables virtual terminal processing so colors and the
// progress bar render on Windows 10+ consoles.
func enableWindowsANSI() {
	for _, f := range []*os.File{os.Stdout, os.Stderr} {
		handle := windows.Handle(f.Fd())
		var mode uint32
		if err := windows.GetConsoleMode(handle, &mode); err != nil {
			continue
		}
		_ = windows.SetConsoleMode(handle, mode|windows.ENABLE_VIRTUAL_TERMINAL_PROCESSING)
	}
}

// pauseSignals is empty: Windows has no user-defined signals.
func pauseSignals() []os.Signal { return nil }
