package stress

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/utkarsh5026/stressme/internal/pool"
	"github.com/utkarsh5026/stressme/internal/sysmem"
)

const (
	msgRAMDisabled      = "RAM stress disabled."
	msgExceedsSafeLimit = "RAM stress request exceeds safe limit; allocation skipped."
	msgRunning          = " Running pattern verification."
	msgReleased         = "RAM stress cleared before verification started."
)

// Allocation describes the outcome of Allocate.
type Allocation struct {
	RequestedMB    int    `json:"requestedMB"`
	AllocatedMB    int    `json:"ramAllocatedMB"`
	ClampedByLimit bool   `json:"clampedByLimit"`
	HitLimit       bool   `json:"hitLimit"`
	Message        string `json:"message"`
}

// RAMEngine owns at most one allocation and its verification loop.
type RAMEngine struct {
	cfg    ramConfig
	errLog rate.Sometimes

	mu      sync.Mutex
	pending *pendingAlloc // in-flight Allocate, nil otherwise
	sess    *ramSession
}

// pendingAlloc lets Release cancel an Allocate that has not installed its
// session yet. Guarded by the engine mutex.
type pendingAlloc struct {
	released bool
}

// ramSession is one allocation. running, exited and orphaned are guarded by
// the engine mutex. closed is set by Release before it waits for the loop.
type ramSession struct {
	buffers     []*PatternBuffer
	chunks      []*sysmem.Chunk
	totalBytes  int64
	allocatedMB int
	cancel      context.CancelFunc
	done        chan struct{}

	running  bool
	exited   bool
	orphaned bool

	closed atomic.Bool
}

// NewRAMEngine creates an idle engine.
func NewRAMEngine(opts ...RAMOption) *RAMEngine {
	cfg := defaultRAMConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.minChunkMB > cfg.chunkMB {
		cfg.minChunkMB = cfg.chunkMB
	}
	return &RAMEngine{cfg: cfg, errLog: rate.Sometimes{Interval: time.Second}}
}

// Ceiling returns the largest allocation allowed, in MiB:
// total - max(reservePercent% of total, minReserveMB), floored at zero.
// known is false when physical memory could not be determined.
func (e *RAMEngine) Ceiling() (mb int64, known bool) {
	total, err := e.cfg.totalMemory()
	if err != nil || total == 0 {
		return 0, false
	}

	totalMB := int64(total / sysmem.MiB)
	reserve := max(int64(float64(totalMB)*e.cfg.reservePercent/100), e.cfg.minReserveMB)
	return max(totalMB-reserve, 0), true
}

// Allocate reserves megabytes of memory (clamped to Ceiling) and starts the
// verification loop.
//
// Behavior:
//   - megabytes <= 0 succeeds with nothing allocated and no loop
//   - a live loop or a concurrent Allocate fails with ErrAlreadyRunning
//   - leftovers of a faulted loop are released first
//   - when the OS refuses a chunk the chunk size is halved down to the
//     minimum; the engine then keeps what it obtained and sets HitLimit
//   - obtaining nothing at all fails with ErrNothingAllocated
//   - a Release issued meanwhile frees what was obtained and fails with
//     ErrReleased; no loop is started
func (e *RAMEngine) Allocate(megabytes int) (Allocation, error) {
	res := Allocation{RequestedMB: megabytes}
	if megabytes <= 0 {
		res.Message = msgRAMDisabled
		return res, nil
	}

	e.mu.Lock()
	if e.pending != nil || (e.sess != nil && e.sess.running) {
		e.mu.Unlock()
		res.Message = "RAM stress is already running."
		return res, ErrAlreadyRunning
	}
	stale := e.sess
	e.sess = nil
	pending := &pendingAlloc{}
	e.pending = pending
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.pending = nil
		e.mu.Unlock()
	}()

	if stale != nil {
		e.teardown(stale)
	}

	target := int64(megabytes)
	if ceiling, known := e.Ceiling(); known {
		if ceiling <= 0 {
			res.Message = msgExceedsSafeLimit
			return res, ErrExceedsSafeLimit
		}
		if target > ceiling {
			target = ceiling
			res.ClampedByLimit = true
			e.cfg.logger.Info("ram request clamped",
				zap.Int("requested_mb", megabytes),
				zap.Int64("ceiling_mb", ceiling))
		}
	}

	chunks, total, hitLimit, err := e.allocateChunks(target, pending)
	if err != nil {
		res.Message = fmt.Sprintf("RAM allocation error: %v", err)
		return res, err
	}
	if e.releasedDuring(pending) {
		e.discard(chunks)
		res.Message = msgReleased
		return res, ErrReleased
	}
	if total == 0 {
		res.Message = "RAM allocation failed: out of memory"
		return res, ErrNothingAllocated
	}

	res.HitLimit = hitLimit
	res.AllocatedMB = int(total / sysmem.MiB)
	if hitLimit || res.ClampedByLimit {
		res.Message = fmt.Sprintf("RAM stress allocated %d MB (limited for system safety).", res.AllocatedMB)
	} else {
		res.Message = fmt.Sprintf("RAM stress allocated %d MB.", res.AllocatedMB)
	}
	res.Message += msgRunning

	ctx, cancel := context.WithCancel(context.Background())
	s := &ramSession{
		chunks:      chunks,
		buffers:     make([]*PatternBuffer, len(chunks)),
		totalBytes:  total,
		allocatedMB: res.AllocatedMB,
		cancel:      cancel,
		done:        make(chan struct{}),
		running:     true,
	}
	for i, c := range chunks {
		s.buffers[i] = NewPatternBuffer(c.Data, e.cfg.probeBytes)
	}

	e.mu.Lock()
	if pending.released {
		e.mu.Unlock()
		cancel()
		e.discard(chunks)
		res.AllocatedMB = 0
		res.Message = msgReleased
		return res, ErrReleased
	}
	e.sess = s
	e.mu.Unlock()

	go e.verifyLoop(ctx, s)

	e.cfg.logger.Info("ram stress allocated",
		zap.Int("requested_mb", megabytes),
		zap.Int("allocated_mb", res.AllocatedMB),
		zap.Int("chunks", len(chunks)),
		zap.Bool("clamped", res.ClampedByLimit),
		zap.Bool("hit_limit", hitLimit))
	return res, nil
}

// allocateChunks obtains targetMB in chunks, page-touching each with
// PatternA so the memory is committed before the loop starts.
func (e *RAMEngine) allocateChunks(targetMB int64, pending *pendingAlloc) (chunks []*sysmem.Chunk, total int64, hitLimit bool, err error) {
	chunkMB := e.cfg.chunkMB
	remaining := targetMB
	attempt := 0

	for remaining > 0 && !e.releasedDuring(pending) {
		size := min(chunkMB, remaining)
		c, aerr := e.cfg.allocator.Alloc(int(size * sysmem.MiB))
		if aerr != nil {
			if !errors.Is(aerr, sysmem.ErrOutOfMemory) {
				return nil, 0, false, multierr.Append(aerr, freeChunks(chunks))
			}

			e.errLog.Do(func() {
				e.cfg.logger.Warn("ram chunk allocation failed",
					zap.Int64("chunk_mb", size),
					zap.Int64("allocated_mb", total/sysmem.MiB),
					zap.Error(aerr))
			})

			if chunkMB <= e.cfg.minChunkMB {
				hitLimit = true
				break
			}
			time.Sleep(e.cfg.retry.NextDelay(attempt))
			attempt++
			chunkMB = max(chunkMB/2, e.cfg.minChunkMB)
			continue
		}

		NewPatternBuffer(c.Data, e.cfg.probeBytes).Touch(PatternA)
		chunks = append(chunks, c)
		total += int64(c.Len())
		remaining -= size
	}

	return chunks, total, hitLimit, nil
}

func (e *RAMEngine) releasedDuring(pending *pendingAlloc) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return pending.released
}

// discard frees chunks of an allocation that never got a loop.
func (e *RAMEngine) discard(chunks []*sysmem.Chunk) {
	if err := freeChunks(chunks); err != nil {
		e.cfg.logger.Warn("freeing released ram chunks", zap.Error(err))
	}
	sysmem.Reclaim()
}

func (e *RAMEngine) verifyLoop(ctx context.Context, s *ramSession) {
	err := pool.Safely(func() error {
		return e.runCycles(ctx, s)
	})
	e.loopExit(s)

	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	e.cfg.logger.Error("ram verification loop terminated", zap.Error(err))
	if e.cfg.onError != nil {
		e.cfg.onError(err)
	}
}

// runCycles alternates pattern A and B passes until cancelled.
func (e *RAMEngine) runCycles(ctx context.Context, s *ramSession) error {
	passes := [...]struct {
		name    string
		pattern byte
	}{{"A", PatternA}, {"B", PatternB}}

	for iter := int64(1); ; iter++ {
		for _, p := range passes {
			c, err := e.runPattern(ctx, s, p.name, p.pattern, iter)
			if err != nil {
				return err
			}
			if !s.emit(ctx, c, e.cfg.onCycle) {
				return context.Canceled
			}
			if c.Mismatches > 0 {
				e.cfg.logger.Warn("ram pattern mismatch",
					zap.String("pattern", c.Pattern),
					zap.Int64("iteration", iter),
					zap.Int64("mismatches", c.Mismatches),
					zap.Int64p("first_offset", c.FirstOffset))
			}
		}
	}
}

// runPattern fills every buffer, then verifies every buffer. Offsets are
// reported relative to the start of the whole allocation.
func (e *RAMEngine) runPattern(ctx context.Context, s *ramSession, name string, p byte, iter int64) (PatternCycle, error) {
	start := time.Now()

	for _, b := range s.buffers {
		if _, err := b.Fill(ctx, p); err != nil {
			return PatternCycle{}, err
		}
	}

	agg := ScanResult{FirstOffset: -1}
	var base int64
	for _, b := range s.buffers {
		r, err := b.Verify(ctx, p)
		if err != nil {
			return PatternCycle{}, err
		}
		if r.Mismatches > 0 && agg.FirstOffset < 0 {
			agg.FirstOffset = base + r.FirstOffset
			agg.Observed = r.Observed
		}
		agg.Mismatches += r.Mismatches
		agg.Scanned += r.Scanned
		base += int64(b.Len())
	}

	return newPatternCycle(name, p, iter, s.allocatedMB, s.totalBytes, agg, time.Since(start)), nil
}

// emit delivers c unless the session has been released. No lock is held
// across fn, so a blocked handler cannot stall Release beyond its timeout.
// Release sets closed before waiting for the loop, so once it returns
// without timing out no further cycle is seen.
func (s *ramSession) emit(ctx context.Context, c PatternCycle, fn func(PatternCycle)) bool {
	if s.closed.Load() || ctx.Err() != nil {
		return false
	}
	if fn != nil {
		fn(c)
	}
	return !s.closed.Load()
}

// loopExit marks the loop finished. If Release gave up waiting, the loop
// owns the chunks and frees them here.
func (e *RAMEngine) loopExit(s *ramSession) {
	e.mu.Lock()
	s.running = false
	s.exited = true
	orphaned := s.orphaned
	e.mu.Unlock()

	close(s.done)

	if orphaned {
		if err := freeChunks(s.chunks); err != nil {
			e.cfg.logger.Warn("freeing orphaned ram chunks", zap.Error(err))
		}
		sysmem.Reclaim()
	}
}

// Release stops the verification loop and returns the memory to the OS.
// It never fails; teardown problems are logged. AllocatedMegabytes reports
// zero as soon as Release returns. An Allocate still reserving chunks is
// told to give them back instead of starting its loop.
func (e *RAMEngine) Release() {
	e.mu.Lock()
	s := e.sess
	e.sess = nil
	if e.pending != nil {
		e.pending.released = true
	}
	e.mu.Unlock()

	if s != nil {
		e.teardown(s)
	}
}

func (e *RAMEngine) teardown(s *ramSession) {
	s.closed.Store(true)
	s.cancel()

	if err := waitUntil(s.done, e.cfg.releaseTimeout); err != nil {
		e.mu.Lock()
		if !s.exited {
			s.orphaned = true
			e.mu.Unlock()
			e.cfg.logger.Warn("ram verification loop did not stop in time; memory is freed when it exits",
				zap.Duration("timeout", e.cfg.releaseTimeout))
			return
		}
		e.mu.Unlock()
	}

	if err := freeChunks(s.chunks); err != nil {
		e.cfg.logger.Warn("freeing ram chunks", zap.Error(err))
	}
	s.chunks, s.buffers = nil, nil
	sysmem.Reclaim()

	e.cfg.logger.Info("ram stress released", zap.Int("released_mb", s.allocatedMB))
}

// AllocatedMegabytes returns the size of the current allocation.
func (e *RAMEngine) AllocatedMegabytes() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sess == nil {
		return 0
	}
	return e.sess.allocatedMB
}

// Running reports whether the verification loop is active.
func (e *RAMEngine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sess != nil && e.sess.running
}

func freeChunks(chunks []*sysmem.Chunk) error {
	var err error
	for _, c := range chunks {
		err = multierr.Append(err, c.Free())
	}
	return err
}
