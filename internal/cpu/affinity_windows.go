//go:build windows

package cpu

import (
	"runtime"

	"golang.org/x/sys/windows"
)

var (
	kernel32              = windows.NewLazySystemDLL("kernel32.dll")
	setThreadAffinityMask = kernel32.NewProc("SetThreadAffinityMask")
)

// pinToCore pins the current OS thread to a specific CPU core.
// Must be called after runtime.LockOSThread().
func pinToCore(cpuID int) (int, error) {
	cpuID = wrap(cpuID)

	// Bit N = CPU N. Processor groups beyond 64 cores are not handled.
	mask := uintptr(1) << (uint(cpuID) % 64)

	prev, _, err := setThreadAffinityMask.Call(uintptr(windows.CurrentThread()), mask)
	if prev == 0 {
		return 0, err
	}
	return cpuID, nil
}

// Pin locks the calling goroutine to its OS thread and binds that thread
// to core workerID mod NumCPU.
func Pin(workerID int) (release func(), err error) {
	runtime.LockOSThread()
	if _, err = pinToCore(workerID); err != nil {
		return runtime.UnlockOSThread, err
	}
	return runtime.UnlockOSThread, nil
}
