package bench

import (
	"time"

	"go.uber.org/zap"

	"github.com/utkarsh5026/stressme/internal/cpu"
)

// Defaults. The normalization constants are calibration values: a host that
// sustains that many operations per second scores 1.0. They only make
// scores comparable to each other, not to any physical unit.
const (
	DefaultSingleDuration      = 1800 * time.Millisecond
	DefaultMultiDuration       = 3 * time.Second
	DefaultSingleNormalization = 25_000.0
	DefaultMultiNormalization  = 100_000.0
	DefaultBatchSize           = 4096
	DefaultBufferEntries       = 32 * 1024
	DefaultProgressInterval    = 250 * time.Millisecond
	MinProgressInterval        = 200 * time.Millisecond
)

// Option configures an Engine.
type Option func(*config)

type config struct {
	threads          int
	singleDuration   time.Duration
	multiDuration    time.Duration
	singleNorm       float64
	multiNorm        float64
	batchSize        int
	bufferEntries    int
	pinned           bool
	progress         func(Progress)
	progressInterval time.Duration
	logger           *zap.Logger
}

func defaultConfig() config {
	return config{
		threads:          cpu.NumCPU(),
		singleDuration:   DefaultSingleDuration,
		multiDuration:    DefaultMultiDuration,
		singleNorm:       DefaultSingleNormalization,
		multiNorm:        DefaultMultiNormalization,
		batchSize:        DefaultBatchSize,
		bufferEntries:    DefaultBufferEntries,
		progressInterval: DefaultProgressInterval,
		logger:           zap.NewNop(),
	}
}

// WithThreads sets the multi-thread worker count. Defaults to the number
// of logical CPUs.
func WithThreads(n int) Option {
	return func(cfg *config) {
		if n > 0 {
			cfg.threads = n
		}
	}
}

// WithSingleDuration sets the single-thread target duration.
func WithSingleDuration(d time.Duration) Option {
	return func(cfg *config) {
		if d > 0 {
			cfg.singleDuration = d
		}
	}
}

// WithMultiDuration sets the multi-thread target duration.
func WithMultiDuration(d time.Duration) Option {
	return func(cfg *config) {
		if d > 0 {
			cfg.multiDuration = d
		}
	}
}

// WithSingleNormalization sets the single-thread ops/sec-per-point constant.
func WithSingleNormalization(v float64) Option {
	return func(cfg *config) {
		if v > 0 {
			cfg.singleNorm = v
		}
	}
}

// WithMultiNormalization sets the multi-thread ops/sec-per-point constant.
func WithMultiNormalization(v float64) Option {
	return func(cfg *config) {
		if v > 0 {
			cfg.multiNorm = v
		}
	}
}

// WithBatchSize sets how many operations run between clock reads.
func WithBatchSize(n int) Option {
	return func(cfg *config) {
		if n > 0 {
			cfg.batchSize = n
		}
	}
}

// WithBufferEntries sets the size of each worker's private buffer, rounded
// up to a power of two.
func WithBufferEntries(n int) Option {
	return func(cfg *config) {
		if n > 0 {
			cfg.bufferEntries = nextPowerOfTwo(n)
		}
	}
}

// WithPinnedThreads binds worker i to logical core i mod NumCPU.
func WithPinnedThreads(enabled bool) Option {
	return func(cfg *config) {
		cfg.pinned = enabled
	}
}

// WithProgress registers a progress callback. It is invoked from a ticker
// goroutine, never from a worker.
func WithProgress(fn func(Progress)) Option {
	return func(cfg *config) {
		cfg.progress = fn
	}
}

// WithProgressInterval sets the progress cadence. Values below
// MinProgressInterval are raised to it.
func WithProgressInterval(d time.Duration) Option {
	return func(cfg *config) {
		cfg.progressInterval = max(d, MinProgressInterval)
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(cfg *config) {
		if l != nil {
			cfg.logger = l
		}
	}
}

// nextPowerOfTwo returns the next power of 2 >= n
func nextPowerOfTwo(n int) int {
	if n <= 0 {
		return 1
	}

	if n&(n-1) == 0 {
		return n
	}

	power := 1
	for power < n {
		power *= 2
	}
	return power
}
