package bench

import (
	"context"
	"math"
	"time"
)

// kernel is one worker's private working set. Nothing in it is shared, so
// threads never contend for cache lines.
type kernel struct {
	acc  float64
	buf  []float64
	mask uint64
	rng  uint64
}

func newKernel(id, entries int) *kernel {
	return &kernel{
		acc:  1.0 + float64(id),
		buf:  make([]float64, entries),
		mask: uint64(entries - 1),
		rng:  uint64(id+1)*0x9E3779B97F4A7C15 | 1,
	}
}

// batch performs n operations. One operation is sqrt, sin and cos on the
// accumulator followed by a write to a pseudo-random buffer slot.
func (k *kernel) batch(n int) {
	x := k.acc
	s := k.rng
	for range n {
		x = math.Sqrt(x*x+1.0) + math.Sin(x)*math.Cos(x)
		if x > 1e6 || math.IsNaN(x) {
			x = 1.0
		}

		s ^= s << 13
		s ^= s >> 7
		s ^= s << 17
		k.buf[s&k.mask] = x
	}
	k.acc = x
	k.rng = s
}

// run executes batches until the deadline, reading the clock once per
// batch, and returns the number of operations completed.
func (k *kernel) run(ctx context.Context, deadline time.Time, batchSize int) (uint64, error) {
	done := ctx.Done()
	var ops uint64

	for {
		k.batch(batchSize)
		ops += uint64(batchSize)

		if !time.Now().Before(deadline) {
			return ops, nil
		}

		select {
		case <-done:
			return ops, ctx.Err()
		default:
		}
	}
}
