package bench

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/utkarsh5026/stressme/internal/cpu"
	"github.com/utkarsh5026/stressme/internal/gate"
	"github.com/utkarsh5026/stressme/internal/pool"
)

var (
	// ErrAlreadyRunning is returned when a pass is already in progress.
	ErrAlreadyRunning = errors.New("bench: already running")
	// ErrInvalidThreadCount rejects a non-positive worker count.
	ErrInvalidThreadCount = errors.New("bench: thread count must be positive")
	// ErrInvalidRuns rejects a non-positive run count.
	ErrInvalidRuns = errors.New("bench: run count must be positive")
	// ErrWorkerPanic wraps a panic recovered from a worker.
	ErrWorkerPanic = pool.ErrWorkerPanic
)

// Kind distinguishes single- and multi-thread passes.
type Kind int

const (
	KindSingle Kind = iota
	KindMulti
)

func (k Kind) String() string {
	if k == KindSingle {
		return "single"
	}
	return "multi"
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Progress is a snapshot of a running pass.
type Progress struct {
	Kind      Kind          `json:"kind"`
	Run       int           `json:"currentRun"`
	TotalRuns int           `json:"totalRuns"`
	Elapsed   time.Duration `json:"elapsed"`
	Target    time.Duration `json:"target"`
	Done      bool          `json:"done"`
}

// Fraction returns elapsed/target clamped to [0, 1].
func (p Progress) Fraction() float64 {
	if p.Target <= 0 {
		return 0
	}
	return min(max(p.Elapsed.Seconds()/p.Target.Seconds(), 0), 1)
}

// Result is the outcome of one pass.
type Result struct {
	Kind          Kind          `json:"kind"`
	Threads       int           `json:"threads"`
	Target        time.Duration `json:"target"`
	Operations    uint64        `json:"operations"`
	PerThread     []uint64      `json:"perThread"`
	Elapsed       time.Duration `json:"elapsed"`
	OpsPerSecond  float64       `json:"opsPerSecond"`
	Normalization float64       `json:"normalization"`
	Score         float64       `json:"score"`
}

// RunsResult aggregates repeated multi-thread passes.
type RunsResult struct {
	Runs  []Result `json:"runs"`
	Score float64  `json:"score"`
}

// Engine runs one pass at a time.
type Engine struct {
	cfg     config
	running atomic.Bool
}

// NewEngine creates an engine.
func NewEngine(opts ...Option) *Engine {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Engine{cfg: cfg}
}

// Threads returns the multi-thread worker count.
func (e *Engine) Threads() int {
	return e.cfg.threads
}

// RunSingleThread runs one worker for the single-thread target duration.
func (e *Engine) RunSingleThread(ctx context.Context) (Result, error) {
	if !e.running.CompareAndSwap(false, true) {
		return Result{}, ErrAlreadyRunning
	}
	defer e.running.Store(false)

	return e.pass(ctx, KindSingle, 1, 1, 1)
}

// RunMultiThread runs the configured number of workers for the
// multi-thread target duration.
func (e *Engine) RunMultiThread(ctx context.Context) (Result, error) {
	if !e.running.CompareAndSwap(false, true) {
		return Result{}, ErrAlreadyRunning
	}
	defer e.running.Store(false)

	return e.pass(ctx, KindMulti, e.cfg.threads, 1, 1)
}

// RunMultiThreadRuns repeats the multi-thread pass runs times and scores
// the mean. Progress events carry the current run index. On error the runs
// completed so far are returned along with it.
func (e *Engine) RunMultiThreadRuns(ctx context.Context, runs int) (RunsResult, error) {
	if runs <= 0 {
		return RunsResult{}, fmt.Errorf("%w: got %d", ErrInvalidRuns, runs)
	}
	if !e.running.CompareAndSwap(false, true) {
		return RunsResult{}, ErrAlreadyRunning
	}
	defer e.running.Store(false)

	out := RunsResult{Runs: make([]Result, 0, runs)}
	var sum float64
	for run := 1; run <= runs; run++ {
		res, err := e.pass(ctx, KindMulti, e.cfg.threads, run, runs)
		if err != nil {
			return out, err
		}
		out.Runs = append(out.Runs, res)
		sum += res.Score
	}

	out.Score = round1(sum / float64(runs))
	e.cfg.logger.Info("benchmark runs complete", zap.Int("runs", runs), zap.Float64("score", out.Score))
	return out, nil
}

func (e *Engine) pass(ctx context.Context, kind Kind, threads, run, totalRuns int) (Result, error) {
	if threads <= 0 {
		return Result{}, fmt.Errorf("%w: got %d", ErrInvalidThreadCount, threads)
	}

	target, norm := e.cfg.multiDuration, e.cfg.multiNorm
	if kind == KindSingle {
		target, norm = e.cfg.singleDuration, e.cfg.singleNorm
	}

	start := gate.New(false)
	var ready sync.WaitGroup
	ready.Add(threads)

	// deadline is written before start opens; closing the gate channel
	// publishes it to every worker.
	var deadline time.Time
	counts := make([]uint64, threads)

	g, gctx := errgroup.WithContext(ctx)
	for id := range threads {
		g.Go(func() error {
			var once sync.Once
			signal := func() { once.Do(ready.Done) }
			defer signal()

			return pool.Safely(func() error {
				if e.cfg.pinned {
					// The thread stays locked; the runtime retires it on exit.
					if _, err := cpu.Pin(id); err != nil {
						e.cfg.logger.Debug("benchmark worker not pinned", zap.Int("worker", id), zap.Error(err))
					}
				}

				k := newKernel(id, e.cfg.bufferEntries)
				signal()

				if err := start.Wait(gctx); err != nil {
					return err
				}
				n, err := k.run(gctx, deadline, e.cfg.batchSize)
				counts[id] = n
				return err
			})
		})
	}

	ready.Wait()
	begin := time.Now()
	deadline = begin.Add(target)
	stopProgress := e.reportProgress(kind, run, totalRuns, begin, target)
	start.Open()

	err := g.Wait()
	elapsed := time.Since(begin)
	stopProgress(elapsed)

	if err != nil {
		e.cfg.logger.Warn("benchmark pass failed", zap.Stringer("kind", kind), zap.Error(err))
		return Result{}, err
	}

	res := score(counts, elapsed, norm)
	res.Kind = kind
	res.Threads = threads
	res.Target = target

	e.cfg.logger.Info("benchmark pass complete",
		zap.Stringer("kind", kind),
		zap.Int("threads", threads),
		zap.Int("run", run),
		zap.Uint64("operations", res.Operations),
		zap.Duration("elapsed", elapsed),
		zap.Float64("score", res.Score))
	return res, nil
}

// score sums the per-thread counters and normalizes ops/sec.
func score(perThread []uint64, elapsed time.Duration, norm float64) Result {
	var total uint64
	for _, n := range perThread {
		total += n
	}

	res := Result{
		Operations:    total,
		PerThread:     perThread,
		Elapsed:       elapsed,
		Normalization: norm,
	}
	if secs := elapsed.Seconds(); secs > 0 && norm > 0 && total > 0 {
		res.OpsPerSecond = float64(total) / secs
		// Any completed work scores at least the smallest reported step.
		res.Score = max(round1(res.OpsPerSecond/norm), minScore)
	}
	return res
}

// minScore is the score of a pass that completed any operation at all.
const minScore = 0.1

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// reportProgress emits snapshots on a ticker until the returned function is
// called, which emits the final snapshot and waits for the ticker goroutine.
func (e *Engine) reportProgress(kind Kind, run, totalRuns int, begin time.Time, target time.Duration) func(time.Duration) {
	fn := e.cfg.progress
	if fn == nil {
		return func(time.Duration) {}
	}

	snapshot := func(elapsed time.Duration, done bool) Progress {
		return Progress{Kind: kind, Run: run, TotalRuns: totalRuns, Elapsed: elapsed, Target: target, Done: done}
	}

	stop := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		t := time.NewTicker(e.cfg.progressInterval)
		defer t.Stop()

		for {
			select {
			case <-stop:
				return
			case now := <-t.C:
				fn(snapshot(now.Sub(begin), false))
			}
		}
	}()

	return func(elapsed time.Duration) {
		close(stop)
		<-exited
		fn(snapshot(elapsed, true))
	}
}
