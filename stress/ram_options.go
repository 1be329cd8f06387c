package stress

import (
	"time"

	"go.uber.org/zap"

	"github.com/utkarsh5026/stressme/internal/backoff"
	"github.com/utkarsh5026/stressme/internal/sysmem"
)

// Safety defaults for RAM stress.
const (
	DefaultReservePercent = 15.0
	DefaultMinReserveMB   = 2048
	DefaultChunkMB        = 64
	DefaultMinChunkMB     = 4
	DefaultReleaseTimeout = 5 * time.Second
)

// RAMOption configures a RAMEngine.
type RAMOption func(*ramConfig)

type ramConfig struct {
	reservePercent float64
	minReserveMB   int64
	chunkMB        int64
	minChunkMB     int64
	releaseTimeout time.Duration
	probeBytes     int
	allocator      sysmem.Allocator
	totalMemory    func() (uint64, error)
	onCycle        func(PatternCycle)
	onError        func(error)
	logger         *zap.Logger
	retry          backoff.Strategy
}

func defaultRAMConfig() ramConfig {
	return ramConfig{
		reservePercent: DefaultReservePercent,
		minReserveMB:   DefaultMinReserveMB,
		chunkMB:        DefaultChunkMB,
		minChunkMB:     DefaultMinChunkMB,
		releaseTimeout: DefaultReleaseTimeout,
		probeBytes:     DefaultProbeBytes,
		allocator:      sysmem.NewAllocator(),
		totalMemory:    sysmem.TotalBytes,
		logger:         zap.NewNop(),
		retry:          backoff.New(backoff.Jittered, 10*time.Millisecond, 250*time.Millisecond, 0.2),
	}
}

// WithReservePercent sets the share of physical memory kept free, in
// percent (0-100).
func WithReservePercent(pct float64) RAMOption {
	return func(cfg *ramConfig) {
		if pct >= 0 && pct <= 100 {
			cfg.reservePercent = pct
		}
	}
}

// WithMinReserveMB sets the minimum amount of memory kept free.
func WithMinReserveMB(mb int64) RAMOption {
	return func(cfg *ramConfig) {
		if mb >= 0 {
			cfg.minReserveMB = mb
		}
	}
}

// WithChunkMB sets the size of each allocated buffer.
func WithChunkMB(mb int64) RAMOption {
	return func(cfg *ramConfig) {
		if mb > 0 {
			cfg.chunkMB = mb
		}
	}
}

// WithMinChunkMB sets the smallest chunk size tried after allocation
// failures before the engine settles for what it has.
func WithMinChunkMB(mb int64) RAMOption {
	return func(cfg *ramConfig) {
		if mb > 0 {
			cfg.minChunkMB = mb
		}
	}
}

// WithReleaseTimeout bounds how long Release waits for the verification
// loop to observe cancellation.
func WithReleaseTimeout(d time.Duration) RAMOption {
	return func(cfg *ramConfig) {
		if d > 0 {
			cfg.releaseTimeout = d
		}
	}
}

// WithProbeBytes sets the cancellation check granularity of fill and
// verify scans.
func WithProbeBytes(n int) RAMOption {
	return func(cfg *ramConfig) {
		if n > 0 {
			cfg.probeBytes = n
		}
	}
}

// WithAllocator replaces the chunk allocator.
func WithAllocator(a sysmem.Allocator) RAMOption {
	return func(cfg *ramConfig) {
		if a != nil {
			cfg.allocator = a
		}
	}
}

// WithTotalMemory replaces the physical memory probe. Returning an error
// disables clamping.
func WithTotalMemory(fn func() (uint64, error)) RAMOption {
	return func(cfg *ramConfig) {
		if fn != nil {
			cfg.totalMemory = fn
		}
	}
}

// WithCycleHandler registers the per-pass progress callback. It runs on the
// verification goroutine and must not call Release. A handler that blocks
// holds up verification; Release still returns after the release timeout
// and the loop frees the memory once the handler returns.
func WithCycleHandler(fn func(PatternCycle)) RAMOption {
	return func(cfg *ramConfig) {
		cfg.onCycle = fn
	}
}

// WithRAMErrorHandler registers a callback for verification loop faults.
func WithRAMErrorHandler(fn func(error)) RAMOption {
	return func(cfg *ramConfig) {
		cfg.onError = fn
	}
}

// WithRAMLogger sets the logger.
func WithRAMLogger(l *zap.Logger) RAMOption {
	return func(cfg *ramConfig) {
		if l != nil {
			cfg.logger = l
		}
	}
}

// WithRetryBackoff sets the delay strategy between failed chunk attempts.
func WithRetryBackoff(s backoff.Strategy) RAMOption {
	return func(cfg *ramConfig) {
		if s != nil {
			cfg.retry = s
		}
	}
}
