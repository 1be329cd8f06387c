// Package pool is a small bounded worker pool. The tracer uses it to spread
// image tiles over a fixed number of goroutines; the other engines reuse its
// panic recovery so a faulty worker turns into an error instead of a crash.
package pool

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// ErrWorkerPanic wraps every recovered worker panic.
var ErrWorkerPanic = errors.New("worker panic")

// ProcessFunc processes a single task. A non-nil error cancels the
// remaining tasks.
type ProcessFunc[T any, R any] func(ctx context.Context, task T) (R, error)

// Option configures a WorkerPool.
type Option func(*config)

type config struct {
	workerCount int
	taskBuffer  int
	onTaskEnd   func(index int, err error)
}

// WithWorkerCount sets the number of concurrent workers.
// If not specified, defaults to runtime.GOMAXPROCS(0).
func WithWorkerCount(count int) Option {
	return func(cfg *config) {
		if count > 0 {
			cfg.workerCount = count
		}
	}
}

// WithTaskBuffer sets the buffer size for the task channel.
// If not specified, defaults to the number of workers.
func WithTaskBuffer(size int) Option {
	return func(cfg *config) {
		if size >= 0 {
			cfg.taskBuffer = size
		}
	}
}

// WithOnTaskEnd registers a hook invoked from the worker goroutine after
// each task finishes, with the task's index in the input slice.
func WithOnTaskEnd(fn func(index int, err error)) Option {
	return func(cfg *config) {
		cfg.onTaskEnd = fn
	}
}

// WorkerPool runs tasks of type T producing results of type R.
type WorkerPool[T any, R any] struct {
	workerCount int
	taskBuffer  int
	onTaskEnd   func(int, error)
}

// New creates a pool. Default configuration: workers = GOMAXPROCS,
// buffer = worker count.
func New[T any, R any](opts ...Option) *WorkerPool[T, R] {
	cfg := &config{workerCount: runtime.GOMAXPROCS(0)}
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.taskBuffer == 0 {
		cfg.taskBuffer = cfg.workerCount
	}

	return &WorkerPool[T, R]{
		workerCount: cfg.workerCount,
		taskBuffer:  cfg.taskBuffer,
		onTaskEnd:   cfg.onTaskEnd,
	}
}

// Workers returns the configured worker count.
func (wp *WorkerPool[T, R]) Workers() int {
	return wp.workerCount
}

type indexedTask[T any] struct {
	index int
	task  T
}

// Process runs every task and returns the results in input order. The first
// error (including a recovered panic) cancels the rest and is returned along
// with the partial results.
func (wp *WorkerPool[T, R]) Process(ctx context.Context, tasks []T, processFn ProcessFunc[T, R]) ([]R, error) {
	results := make([]R, len(tasks))
	if len(tasks) == 0 {
		return results, nil
	}

	g, ctx := errgroup.WithContext(ctx)
	taskChan := make(chan indexedTask[T], wp.taskBuffer)

	for range min(wp.workerCount, len(tasks)) {
		g.Go(func() error {
			return wp.worker(ctx, taskChan, results, processFn)
		})
	}

	g.Go(func() error {
		defer close(taskChan)
		for idx, task := range tasks {
			select {
			case taskChan <- indexedTask[T]{index: idx, task: task}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	return results, g.Wait()
}

// worker drains taskChan. Each index is owned by exactly one task, so
// results are written without locking.
func (wp *WorkerPool[T, R]) worker(
	ctx context.Context,
	taskChan <-chan indexedTask[T],
	results []R,
	processFn ProcessFunc[T, R],
) error {
	for {
		select {
		case t, ok := <-taskChan:
			if !ok {
				return nil
			}

			var r R
			err := Safely(func() error {
				var perr error
				r, perr = processFn(ctx, t.task)
				return perr
			})
			if wp.onTaskEnd != nil {
				wp.onTaskEnd(t.index, err)
			}
			if err != nil {
				return err
			}
			results[t.index] = r
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Safely runs fn and converts a panic into an error wrapping ErrWorkerPanic
// with the goroutine's stack trace.
func Safely(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			err = fmt.Errorf("%w: %v\nstack trace:\n%s", ErrWorkerPanic, r, buf[:n])
		}
	}()

	return fn()
}
