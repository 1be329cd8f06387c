package stress

import (
	"time"

	"go.uber.org/zap"
)

// DefaultJoinTimeout bounds how long Stop waits for CPU workers.
const DefaultJoinTimeout = 2 * time.Second

// CPUOption configures a CPUEngine.
type CPUOption func(*cpuConfig)

type cpuConfig struct {
	joinTimeout time.Duration
	pinned      bool
	logger      *zap.Logger
	onError     func(error)

	// newWorkload is swapped in tests to inject faults.
	newWorkload func(mode Mode, id int) workload
}

func defaultCPUConfig() cpuConfig {
	return cpuConfig{
		joinTimeout: DefaultJoinTimeout,
		logger:      zap.NewNop(),
		newWorkload: newWorkload,
	}
}

// WithJoinTimeout sets how long Stop waits for workers before abandoning
// them. Non-positive values are ignored.
func WithJoinTimeout(d time.Duration) CPUOption {
	return func(cfg *cpuConfig) {
		if d > 0 {
			cfg.joinTimeout = d
		}
	}
}

// WithPinnedWorkers binds worker i to logical core i mod NumCPU.
func WithPinnedWorkers(enabled bool) CPUOption {
	return func(cfg *cpuConfig) {
		cfg.pinned = enabled
	}
}

// WithCPULogger sets the logger for lifecycle events.
func WithCPULogger(l *zap.Logger) CPUOption {
	return func(cfg *cpuConfig) {
		if l != nil {
			cfg.logger = l
		}
	}
}

// WithCPUErrorHandler registers a callback for worker faults. It runs on the
// engine's supervisor goroutine after the faulted session has terminated.
func WithCPUErrorHandler(fn func(error)) CPUOption {
	return func(cfg *cpuConfig) {
		cfg.onError = fn
	}
}
