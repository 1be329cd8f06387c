package tracer

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultScene(t *testing.T) {
	s := DefaultScene()

	assert.Len(t, s.Spheres, 9)
	assert.Len(t, s.Planes, 5)
	assert.Len(t, s.lights, 2)

	kinds := map[MaterialKind]int{}
	for _, sp := range s.Spheres {
		kinds[sp.Material]++
	}
	assert.Equal(t, 3, kinds[Glass])
	assert.Equal(t, 3, kinds[Metal])
	assert.Equal(t, 3, kinds[Diffuse])
}

func TestScene_Intersect(t *testing.T) {
	s := DefaultScene()

	t.Run("floor below camera", func(t *testing.T) {
		hit, ok := s.Intersect(Ray{Origin: cameraPos, Dir: V(0, -1, 0)}, math.Inf(1))
		require.True(t, ok)
		assert.Equal(t, -1, hit.Sphere)
		assert.InDelta(t, 1.5, hit.Distance, 1e-9)
		assert.Equal(t, V(0, 1, 0), hit.Normal)
	})

	t.Run("main light", func(t *testing.T) {
		dir := V(0, 3.5, 1).Sub(cameraPos).Norm()
		hit, ok := s.Intersect(Ray{Origin: cameraPos, Dir: dir}, math.Inf(1))
		require.True(t, ok)
		assert.Equal(t, 0, hit.Sphere)
		assert.True(t, hit.IsLight)
	})

	t.Run("open front side", func(t *testing.T) {
		_, ok := s.Intersect(Ray{Origin: cameraPos, Dir: V(0, 0, -1)}, math.Inf(1))
		assert.False(t, ok)
	})
}

func TestRadiance(t *testing.T) {
	s := DefaultScene()
	rng := rand.New(rand.NewPCG(1, 1))

	t.Run("light seen directly", func(t *testing.T) {
		dir := V(0, 3.5, 1).Sub(cameraPos).Norm()
		got := s.radiance(Ray{Origin: cameraPos, Dir: dir}, rng, DefaultMaxBounces)
		assert.InDelta(t, 2.5, got.X, 1e-9)
		assert.InDelta(t, 2.5, got.Y, 1e-9)
		assert.InDelta(t, 2.5, got.Z, 1e-9)
	})

	t.Run("miss is black", func(t *testing.T) {
		got := s.radiance(Ray{Origin: cameraPos, Dir: V(0, 0, -1)}, rng, DefaultMaxBounces)
		assert.Equal(t, Vec3{}, got)
	})

	t.Run("lit floor is bright and finite", func(t *testing.T) {
		got := s.radiance(Ray{Origin: cameraPos, Dir: V(0, -1, 0.3).Norm()}, rng, DefaultMaxBounces)
		for _, c := range []float64{got.X, got.Y, got.Z} {
			assert.False(t, math.IsNaN(c) || math.IsInf(c, 0))
			assert.GreaterOrEqual(t, c, 0.0)
		}
		assert.Positive(t, got.X+got.Y+got.Z)
	})
}

func TestHemisphere_StaysAboveSurface(t *testing.T) {
	rng := rand.New(rand.NewPCG(9, 9))
	normals := []Vec3{V(0, 1, 0), V(1, 0, 0), V(0, 0, -1), V(1, 1, 1).Norm()}

	for _, n := range normals {
		for range 1000 {
			d := hemisphere(n, rng)
			assert.InDelta(t, 1.0, d.Len(), 1e-9)
			assert.GreaterOrEqual(t, d.Dot(n), -1e-12)
		}
	}
}

func TestEngine_RunBenchmark(t *testing.T) {
	var mu sync.Mutex
	var events []Progress

	e := NewEngine(WithProgress(func(p Progress) {
		mu.Lock()
		events = append(events, p)
		mu.Unlock()
	}))

	res, err := e.RunBenchmark(context.Background(), 2, 130, 70, 3)
	require.NoError(t, err)

	assert.Equal(t, int64(2*130*70), res.TotalSamples)
	assert.Equal(t, res.ElapsedSeconds, res.Score)
	assert.Positive(t, res.ElapsedSeconds)
	assert.InDelta(t, float64(res.TotalSamples)/res.ElapsedSeconds, res.SamplesPerSecond, 1e-6)

	require.NotNil(t, res.Frame)
	img := res.Frame.Image()
	assert.Equal(t, 130, img.Bounds().Dx())
	assert.Equal(t, 70, img.Bounds().Dy())

	var lit int
	for y := range 70 {
		for x := range 130 {
			if c := res.Frame.At(x, y); c.X+c.Y+c.Z > 0 {
				lit++
			}
		}
	}
	assert.Positive(t, lit)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.True(t, last.Done)
	assert.Equal(t, 6, last.TilesTotal, "3x2 tiles of 64px")
	assert.Equal(t, last.TilesTotal, last.TilesDone)
}

func TestEngine_DeterministicAcrossThreadCounts(t *testing.T) {
	e := NewEngine(WithTileSize(16), WithSeed(7))

	one, err := e.RunBenchmark(context.Background(), 1, 48, 32, 1)
	require.NoError(t, err)
	four, err := e.RunBenchmark(context.Background(), 1, 48, 32, 4)
	require.NoError(t, err)

	for y := range 32 {
		for x := range 48 {
			require.Equal(t, one.Frame.At(x, y), four.Frame.At(x, y), "pixel %d,%d", x, y)
		}
	}
}

func TestEngine_InvalidArguments(t *testing.T) {
	e := NewEngine()

	cases := [][4]int{
		{0, 16, 16, 1},
		{1, 0, 16, 1},
		{1, 16, -1, 1},
		{1, 16, 16, 0},
	}
	for _, c := range cases {
		res, err := e.RunBenchmark(context.Background(), c[0], c[1], c[2], c[3])
		assert.ErrorIs(t, err, ErrInvalidArgument, "%v", c)
		assert.Equal(t, Result{}, res)
	}
}

func TestEngine_RejectsConcurrentRender(t *testing.T) {
	e := NewEngine()
	e.running.Store(true)

	res, err := e.RunBenchmark(context.Background(), 1, 8, 8, 1)
	assert.ErrorIs(t, err, ErrAlreadyRunning)
	assert.Equal(t, Result{}, res)

	e.running.Store(false)
	_, err = e.RunBenchmark(context.Background(), 1, 8, 8, 1)
	assert.NoError(t, err)
}

func TestEngine_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := NewEngine().RunBenchmark(ctx, 4, 256, 256, 2)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, Result{}, res)
}

func TestFrameBuffer_ImageClamps(t *testing.T) {
	fb := NewFrameBuffer(2, 1)
	fb.Add(0, 0, V(2, -1, 0.5))
	fb.Add(1, 0, V(0.25, 0.25, 0.25))
	fb.Add(1, 0, V(0.25, 0.25, 0.25))

	img := fb.Image()
	c0 := img.RGBAAt(0, 0)
	assert.Equal(t, uint8(255), c0.R)
	assert.Equal(t, uint8(0), c0.G)
	assert.Equal(t, uint8(127), c0.B)

	c1 := img.RGBAAt(1, 0)
	assert.Equal(t, uint8(127), c1.R)
}

func TestMakeTiles(t *testing.T) {
	tiles := makeTiles(130, 70, 64)
	require.Len(t, tiles, 6)

	covered := 0
	for i, tl := range tiles {
		assert.Equal(t, i, tl.index)
		covered += (tl.x1 - tl.x0) * (tl.y1 - tl.y0)
	}
	assert.Equal(t, 130*70, covered)
	assert.Equal(t, tile{index: 5, x0: 128, y0: 64, x1: 130, y1: 70}, tiles[5])
}
