package tracer

import (
	"image"
	"image/color"
	"sync"
)

// numShards must be a power of two.
const numShards = 256

type shardLocks struct{ mu [numShards]sync.Mutex }

func (sl *shardLocks) lock(idx int)   { sl.mu[idx&(numShards-1)].Lock() }
func (sl *shardLocks) unlock(idx int) { sl.mu[idx&(numShards-1)].Unlock() }

// FrameBuffer accumulates linear RGB per pixel. Writes from tile workers go
// through Add, which locks the pixel's shard; reads are meant for the
// goroutine that owns the render once it has finished.
type FrameBuffer struct {
	width, height int
	pix           []Vec3
	locks         shardLocks
}

// NewFrameBuffer returns a black width x height buffer.
func NewFrameBuffer(width, height int) *FrameBuffer {
	return &FrameBuffer{width: width, height: height, pix: make([]Vec3, width*height)}
}

func (f *FrameBuffer) Width() int  { return f.width }
func (f *FrameBuffer) Height() int { return f.height }

// Add accumulates c into pixel (x, y).
func (f *FrameBuffer) Add(x, y int, c Vec3) {
	idx := y*f.width + x
	f.locks.lock(idx)
	f.pix[idx] = f.pix[idx].Add(c)
	f.locks.unlock(idx)
}

// At returns pixel (x, y).
func (f *FrameBuffer) At(x, y int) Vec3 {
	idx := y*f.width + x
	f.locks.lock(idx)
	defer f.locks.unlock(idx)
	return f.pix[idx]
}

// Image converts the buffer to 8-bit RGBA, clamping each channel to [0, 1].
func (f *FrameBuffer) Image() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, f.width, f.height))
	for y := range f.height {
		for x := range f.width {
			c := f.At(x, y)
			img.SetRGBA(x, y, color.RGBA{R: to8(c.X), G: to8(c.Y), B: to8(c.Z), A: 0xff})
		}
	}
	return img
}

func to8(v float64) uint8 {
	return uint8(min(max(v, 0), 1) * 255)
}
