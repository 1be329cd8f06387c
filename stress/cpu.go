package stress

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/utkarsh5026/stressme/internal/cpu"
	"github.com/utkarsh5026/stressme/internal/gate"
	"github.com/utkarsh5026/stressme/internal/pool"
)

// CPUEngine runs at most one CPU stress session at a time.
type CPUEngine struct {
	cfg cpuConfig

	mu   sync.Mutex
	sess *cpuSession
}

// cpuSession is one Start..Stop lifetime. Workers reference the session
// directly so a late worker from an abandoned session never touches the
// next one.
type cpuSession struct {
	threads int
	mode    Mode
	gate    *gate.Gate
	cancel  context.CancelFunc
	done    chan struct{} // closed once every worker has returned

	alive  atomic.Bool
	exited atomic.Int32
}

// NewCPUEngine creates an idle engine.
func NewCPUEngine(opts ...CPUOption) *CPUEngine {
	cfg := defaultCPUConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &CPUEngine{cfg: cfg}
}

// Start spawns exactly threads workers running the given workload.
//
// Returns:
//   - ErrInvalidThreadCount if threads <= 0
//   - ErrInvalidMode for an unknown mode
//   - ErrAlreadyRunning if a session is live; the live session is untouched
func (e *CPUEngine) Start(threads int, mode Mode) error {
	if threads <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidThreadCount, threads)
	}
	if !mode.valid() {
		return fmt.Errorf("%w: %s", ErrInvalidMode, mode)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sess != nil && e.sess.alive.Load() {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &cpuSession{
		threads: threads,
		mode:    mode,
		gate:    gate.New(true),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	s.alive.Store(true)

	g, gctx := errgroup.WithContext(ctx)
	for id := range threads {
		g.Go(func() error {
			return pool.Safely(func() error {
				return e.runWorker(gctx, s, id)
			})
		})
	}
	go e.supervise(s, g)

	e.sess = s
	e.cfg.logger.Info("cpu stress started",
		zap.Int("threads", threads),
		zap.Stringer("mode", mode),
		zap.Bool("pinned", e.cfg.pinned))
	return nil
}

// supervise waits for the worker group. A worker error cancels its siblings
// through the errgroup context, so the session ends as a whole.
func (e *CPUEngine) supervise(s *cpuSession, g *errgroup.Group) {
	err := g.Wait()
	s.alive.Store(false)
	s.cancel()
	close(s.done)

	if err == nil || errors.Is(err, context.Canceled) {
		return
	}

	e.cfg.logger.Error("cpu stress session terminated by worker fault", zap.Error(err))
	if e.cfg.onError != nil {
		e.cfg.onError(err)
	}
}

func (e *CPUEngine) runWorker(ctx context.Context, s *cpuSession, id int) error {
	defer s.exited.Add(1)

	if e.cfg.pinned {
		// The thread stays locked; the runtime retires it when the worker returns.
		if _, err := cpu.Pin(id); err != nil {
			e.cfg.logger.Warn("worker affinity not applied", zap.Int("worker", id), zap.Error(err))
		}
	}

	w := e.cfg.newWorkload(s.mode, id)
	for {
		if err := s.gate.Wait(ctx); err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}
		w.step()
	}
}

// Stop cancels the live session and waits up to the join timeout for its
// workers. Workers still running after the deadline are abandoned; they
// exit on their own at the next batch boundary. Stop is idempotent.
func (e *CPUEngine) Stop() {
	e.mu.Lock()
	s := e.sess
	e.sess = nil
	e.mu.Unlock()

	if s == nil {
		return
	}

	s.alive.Store(false)
	s.cancel()
	s.gate.Open()

	if err := waitUntil(s.done, e.cfg.joinTimeout); err != nil {
		e.cfg.logger.Warn("abandoning cpu stress workers",
			zap.Int("threads", s.threads),
			zap.Int32("exited", s.exited.Load()),
			zap.Duration("timeout", e.cfg.joinTimeout))
		return
	}
	e.cfg.logger.Info("cpu stress stopped", zap.Int("threads", s.threads))
}

// Pause blocks every worker at its next batch boundary.
func (e *CPUEngine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.liveLocked()
	if s == nil {
		return ErrNotRunning
	}
	if s.gate.IsOpen() {
		s.gate.Close()
		e.cfg.logger.Info("cpu stress paused")
	}
	return nil
}

// Resume releases paused workers.
func (e *CPUEngine) Resume() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.liveLocked()
	if s == nil {
		return ErrNotRunning
	}
	if !s.gate.IsOpen() {
		s.gate.Open()
		e.cfg.logger.Info("cpu stress resumed")
	}
	return nil
}

// ActiveThreadCount returns the number of workers currently producing load:
// zero when idle or paused.
func (e *CPUEngine) ActiveThreadCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.liveLocked()
	if s == nil || !s.gate.IsOpen() {
		return 0
	}
	return s.threads - int(s.exited.Load())
}

// Running reports whether a session is live (paused or not).
func (e *CPUEngine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.liveLocked() != nil
}

// Paused reports whether the live session is paused.
func (e *CPUEngine) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.liveLocked()
	return s != nil && !s.gate.IsOpen()
}

// Mode returns the live session's workload and whether a session is live.
func (e *CPUEngine) Mode() (Mode, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.liveLocked()
	if s == nil {
		return ModeHeavy, false
	}
	return s.mode, true
}

func (e *CPUEngine) liveLocked() *cpuSession {
	if e.sess == nil || !e.sess.alive.Load() {
		return nil
	}
	return e.sess
}

// waitUntil blocks until done is closed or the timeout elapses.
func waitUntil(done <-chan struct{}, timeout time.Duration) error {
	if timeout <= 0 {
		<-done
		return nil
	}

	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case <-done:
		return nil
	case <-t.C:
		return context.DeadlineExceeded
	}
}
