package tracer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/utkarsh5026/stressme/internal/pool"
)

var (
	// ErrAlreadyRunning is returned when a render is in progress.
	ErrAlreadyRunning = errors.New("tracer: already running")
	// ErrInvalidArgument rejects non-positive sizes, sample or thread counts.
	ErrInvalidArgument = errors.New("tracer: invalid argument")
	// ErrRenderPanic wraps a panic recovered from a tile worker.
	ErrRenderPanic = errors.New("tracer: render panic")
)

// Camera parameters of the benchmark view.
var (
	cameraPos = V(0, 1.5, -2)
	fovDeg    = 60.0
)

// Progress reports finished tiles.
type Progress struct {
	TilesDone  int           `json:"tilesDone"`
	TilesTotal int           `json:"tilesTotal"`
	Elapsed    time.Duration `json:"elapsed"`
	Done       bool          `json:"done"`
}

// Result is the outcome of RunBenchmark. Score equals ElapsedSeconds.
type Result struct {
	SamplesPerSecond float64      `json:"samplesPerSecond"`
	TotalSamples     int64        `json:"totalSamples"`
	ElapsedSeconds   float64      `json:"elapsedSeconds"`
	Score            float64      `json:"score"`
	Frame            *FrameBuffer `json:"-"`
}

// Engine renders the benchmark scene. The scene and BVH are built once in
// NewEngine and shared by every render.
type Engine struct {
	cfg     config
	scene   *Scene
	running atomic.Bool
}

// NewEngine builds the scene and its BVH.
func NewEngine(opts ...Option) *Engine {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	e := &Engine{cfg: cfg, scene: DefaultScene()}
	cfg.logger.Debug("tracer scene ready",
		zap.Int("spheres", len(e.scene.Spheres)),
		zap.Int("planes", len(e.scene.Planes)),
		zap.Int("bvh_nodes", e.scene.bvh.Len()))
	return e
}

// Scene returns the engine's scene.
func (e *Engine) Scene() *Scene { return e.scene }

type tile struct {
	index          int
	x0, y0, x1, y1 int
}

func makeTiles(width, height, size int) []tile {
	var tiles []tile
	for y := 0; y < height; y += size {
		for x := 0; x < width; x += size {
			tiles = append(tiles, tile{
				index: len(tiles),
				x0:    x,
				y0:    y,
				x1:    min(x+size, width),
				y1:    min(y+size, height),
			})
		}
	}
	return tiles
}

// RunBenchmark renders a width x height frame with samplesPerPixel paths
// per pixel on threads workers. Any failure (invalid arguments, a
// concurrent run, cancellation or a worker panic) yields a zero Result and
// the error.
func (e *Engine) RunBenchmark(ctx context.Context, samplesPerPixel, width, height, threads int) (Result, error) {
	if samplesPerPixel <= 0 || width <= 0 || height <= 0 || threads <= 0 {
		return Result{}, fmt.Errorf("%w: spp=%d size=%dx%d threads=%d",
			ErrInvalidArgument, samplesPerPixel, width, height, threads)
	}
	if !e.running.CompareAndSwap(false, true) {
		return Result{}, ErrAlreadyRunning
	}
	defer e.running.Store(false)

	tiles := makeTiles(width, height, e.cfg.tileSize)
	fb := NewFrameBuffer(width, height)

	var done atomic.Int64
	throttle := rate.Sometimes{Interval: e.cfg.progressInterval}
	start := time.Now()

	p := pool.New[tile, int64](
		pool.WithWorkerCount(threads),
		pool.WithOnTaskEnd(func(_ int, err error) {
			if err != nil {
				return
			}
			n := done.Add(1)
			if e.cfg.progress == nil {
				return
			}
			throttle.Do(func() {
				e.cfg.progress(Progress{TilesDone: int(n), TilesTotal: len(tiles), Elapsed: time.Since(start)})
			})
		}),
	)

	e.cfg.logger.Info("render started",
		zap.Int("width", width), zap.Int("height", height),
		zap.Int("spp", samplesPerPixel), zap.Int("threads", threads),
		zap.Int("tiles", len(tiles)))

	counts, err := p.Process(ctx, tiles, func(ctx context.Context, t tile) (int64, error) {
		return e.renderTile(ctx, fb, t, samplesPerPixel, width, height)
	})
	elapsed := time.Since(start)

	if err != nil {
		if errors.Is(err, pool.ErrWorkerPanic) {
			err = fmt.Errorf("%w: %w", ErrRenderPanic, err)
		}
		e.cfg.logger.Error("render failed", zap.Error(err))
		return Result{}, err
	}

	if e.cfg.progress != nil {
		e.cfg.progress(Progress{TilesDone: len(tiles), TilesTotal: len(tiles), Elapsed: elapsed, Done: true})
	}

	var total int64
	for _, n := range counts {
		total += n
	}

	secs := elapsed.Seconds()
	res := Result{
		TotalSamples:   total,
		ElapsedSeconds: secs,
		Score:          secs,
		Frame:          fb,
	}
	if secs > 0 {
		res.SamplesPerSecond = float64(total) / secs
	}

	e.cfg.logger.Info("render complete",
		zap.Int64("samples", total),
		zap.Float64("elapsed_s", secs),
		zap.Float64("samples_per_s", res.SamplesPerSecond))
	return res, nil
}

// renderTile traces every pixel of t and returns the number of samples.
// Cancellation is checked once per row.
func (e *Engine) renderTile(ctx context.Context, fb *FrameBuffer, t tile, spp, width, height int) (int64, error) {
	rng := rand.New(rand.NewPCG(e.cfg.seed, uint64(t.index)))

	aspect := float64(width) / float64(height)
	tanHalf := math.Tan(fovDeg * math.Pi / 180 / 2)
	inv := 1 / float64(spp)

	var samples int64
	for y := t.y0; y < t.y1; y++ {
		if err := ctx.Err(); err != nil {
			return samples, err
		}
		for x := t.x0; x < t.x1; x++ {
			var c Vec3
			for range spp {
				u := (float64(x) + rng.Float64()) / float64(width)
				v := 1 - (float64(y)+rng.Float64())/float64(height)
				dir := V((2*u-1)*aspect*tanHalf, (2*v-1)*tanHalf, 1).Norm()
				c = c.Add(e.scene.radiance(Ray{Origin: cameraPos, Dir: dir}, rng, e.cfg.maxBounces))
			}
			fb.Add(x, y, c.Mul(inv))
			samples += int64(spp)
		}
	}
	return samples, nil
}
