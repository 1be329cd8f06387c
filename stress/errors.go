package stress

import (
	"errors"

	"github.com/utkarsh5026/stressme/internal/pool"
)

var (
	// ErrAlreadyRunning is returned when a session of the same kind is live.
	ErrAlreadyRunning = errors.New("stress: already running")
	// ErrNotRunning is returned by Pause and Resume without a live session.
	ErrNotRunning = errors.New("stress: not running")
	// ErrInvalidThreadCount rejects a non-positive worker count.
	ErrInvalidThreadCount = errors.New("stress: thread count must be positive")
	// ErrInvalidMode rejects an unknown CPU workload.
	ErrInvalidMode = errors.New("stress: unknown mode")
	// ErrExceedsSafeLimit means the reserve leaves no room for any allocation.
	ErrExceedsSafeLimit = errors.New("stress: request exceeds safe limit")
	// ErrNothingAllocated means not a single chunk could be obtained.
	ErrNothingAllocated = errors.New("stress: no memory could be allocated")
	// ErrReleased means Release ran while Allocate was still reserving
	// memory; the partial allocation was returned to the OS.
	ErrReleased = errors.New("stress: allocation released before it started")
	// ErrWorkerPanic wraps a panic recovered from a worker or loop goroutine.
	ErrWorkerPanic = pool.ErrWorkerPanic
)
