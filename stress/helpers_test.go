package stress

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/utkarsh5026/stressme/internal/backoff"
	"github.com/utkarsh5026/stressme/internal/sysmem"
)

// budgetAllocator hands out heap chunks until budget bytes are used up,
// then fails with ErrOutOfMemory. Frees return budget.
type budgetAllocator struct {
	mu     sync.Mutex
	budget int
	used   int
	allocs int
	frees  int
	hard   error // returned instead of ErrOutOfMemory when set
}

func (a *budgetAllocator) Alloc(size int) (*sysmem.Chunk, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.hard != nil {
		return nil, a.hard
	}
	if a.used+size > a.budget {
		return nil, fmt.Errorf("%w: budget exhausted", sysmem.ErrOutOfMemory)
	}

	a.used += size
	a.allocs++
	return sysmem.NewChunk(make([]byte, size), func() error {
		a.mu.Lock()
		defer a.mu.Unlock()
		a.used -= size
		a.frees++
		return nil
	}), nil
}

func (a *budgetAllocator) stats() (allocs, frees, used int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.allocs, a.frees, a.used
}

func totalMiB(mb uint64) func() (uint64, error) {
	return func() (uint64, error) { return mb * sysmem.MiB, nil }
}

func unknownTotal() (uint64, error) {
	return 0, errors.New("no probe")
}

var noDelay = backoff.New(backoff.Exponential, 0, 0, 0)

func testRAMEngine(a sysmem.Allocator, opts ...RAMOption) *RAMEngine {
	base := []RAMOption{
		WithAllocator(a),
		WithTotalMemory(unknownTotal),
		WithChunkMB(4),
		WithMinChunkMB(1),
		WithReleaseTimeout(2 * time.Second),
		WithRetryBackoff(noDelay),
	}
	return NewRAMEngine(append(base, opts...)...)
}

// slowAllocator delays every Alloc and reports each call on calls.
type slowAllocator struct {
	budgetAllocator
	delay time.Duration
	calls chan struct{}
}

func (a *slowAllocator) Alloc(size int) (*sysmem.Chunk, error) {
	select {
	case a.calls <- struct{}{}:
	default:
	}
	time.Sleep(a.delay)
	return a.budgetAllocator.Alloc(size)
}
