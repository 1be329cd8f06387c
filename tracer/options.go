package tracer

import (
	"time"

	"go.uber.org/zap"
)

// Defaults.
const (
	DefaultMaxBounces       = 5
	DefaultTileSize         = 64
	DefaultSeed             = 42
	DefaultProgressInterval = 200 * time.Millisecond
)

// Option configures an Engine.
type Option func(*config)

type config struct {
	maxBounces       int
	tileSize         int
	seed             uint64
	progress         func(Progress)
	progressInterval time.Duration
	logger           *zap.Logger
}

func defaultConfig() config {
	return config{
		maxBounces:       DefaultMaxBounces,
		tileSize:         DefaultTileSize,
		seed:             DefaultSeed,
		progressInterval: DefaultProgressInterval,
		logger:           zap.NewNop(),
	}
}

// WithMaxBounces bounds path length.
func WithMaxBounces(n int) Option {
	return func(cfg *config) {
		if n > 0 {
			cfg.maxBounces = n
		}
	}
}

// WithTileSize sets the edge length of the square tiles handed to workers.
func WithTileSize(n int) Option {
	return func(cfg *config) {
		if n > 0 {
			cfg.tileSize = n
		}
	}
}

// WithSeed sets the base seed of the per-tile random streams. Renders with
// the same seed and dimensions are bit-identical regardless of thread count.
func WithSeed(seed uint64) Option {
	return func(cfg *config) {
		cfg.seed = seed
	}
}

// WithProgress registers a tile progress callback. It runs on worker
// goroutines and is throttled to one call per progress interval, plus a
// final call once every tile is done.
func WithProgress(fn func(Progress)) Option {
	return func(cfg *config) {
		cfg.progress = fn
	}
}

// WithProgressInterval sets the minimum spacing of progress calls.
func WithProgressInterval(d time.Duration) Option {
	return func(cfg *config) {
		if d > 0 {
			cfg.progressInterval = d
		}
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
