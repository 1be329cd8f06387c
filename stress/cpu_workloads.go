package stress

import (
	"math"
	"time"
)

const (
	heavyBatch = 4096

	chaseEntries = 256 * 1024 // private pointer-chase table, 1 MiB of uint32
	strideWords  = 256 * 1024 // private write buffer, 2 MiB of uint64
	strideStep   = 67         // words; odd and > one cache line apart

	instabilityBatch = 2048
	minPhaseBatches  = 8
	maxPhaseBatches  = 64
)

// workload performs one bounded batch of work per call so the worker can
// observe pause and cancellation between batches.
type workload interface {
	step()
}

func newWorkload(mode Mode, id int) workload {
	seed := uint64(id+1) * 0x9E3779B97F4A7C15
	switch mode {
	case ModeInstability:
		return newInstabilityLoad(seed)
	default:
		return &heavyLoad{x: 1.0 + float64(id%7)}
	}
}

// xorShift advances a 64-bit xorshift state. Zero is a fixed point, so
// callers seed with a non-zero value.
func xorShift(state *uint64) uint64 {
	x := *state
	x ^= x << 13
	x ^= x >> 7
	x ^= x << 17
	*state = x
	return x
}

type heavyLoad struct {
	x float64
}

func (h *heavyLoad) step() {
	x := h.x
	for range heavyBatch {
		x = math.Sqrt(x*x+1.5) + math.Sin(x)*math.Cos(x)
		if x > 1e6 || math.IsNaN(x) || math.IsInf(x, 0) {
			x = 1.0
		}
	}
	h.x = x
}

type phase int

const (
	phaseFloat phase = iota
	phaseInteger
	phaseChase
	phaseStride
	phaseCount
)

// instabilityLoad rotates through four phases with randomised lengths and
// injects sleeps or busy-spins at every phase change, so the package power
// draw jumps around instead of settling.
type instabilityLoad struct {
	rng   uint64
	x     float64
	acc   uint64
	chase []uint32
	pos   uint32
	words []uint64
	cur   int

	phase     phase
	remaining int
}

func newInstabilityLoad(seed uint64) *instabilityLoad {
	l := &instabilityLoad{
		rng:   seed | 1,
		x:     1.0,
		chase: make([]uint32, chaseEntries),
		words: make([]uint64, strideWords),
	}
	l.buildChase()
	l.remaining = l.phaseLength()
	return l
}

// buildChase fills the table with a single-cycle permutation (Sattolo's
// algorithm) so the chase visits every entry before repeating.
func (l *instabilityLoad) buildChase() {
	for i := range l.chase {
		l.chase[i] = uint32(i)
	}
	for i := len(l.chase) - 1; i > 0; i-- {
		j := int(xorShift(&l.rng) % uint64(i))
		l.chase[i], l.chase[j] = l.chase[j], l.chase[i]
	}
}

func (l *instabilityLoad) phaseLength() int {
	return minPhaseBatches + int(xorShift(&l.rng)%uint64(maxPhaseBatches-minPhaseBatches+1))
}

func (l *instabilityLoad) step() {
	switch l.phase {
	case phaseFloat:
		x := l.x
		for range instabilityBatch {
			x = math.Sqrt(math.Abs(x)+2.0) * math.Sin(x+0.5)
			if math.IsNaN(x) || math.IsInf(x, 0) {
				x = 1.0
			}
		}
		l.x = x
	case phaseInteger:
		acc := l.acc
		for range instabilityBatch {
			acc += xorShift(&l.rng) * 0x2545F4914F6CDD1D
			acc ^= acc >> 29
		}
		l.acc = acc
	case phaseChase:
		p := l.pos
		for range instabilityBatch {
			p = l.chase[p]
		}
		l.pos = p
	case phaseStride:
		c := l.cur
		for i := range instabilityBatch {
			c = (c + strideStep) % len(l.words)
			l.words[c] += uint64(i) ^ l.acc
		}
		l.cur = c
	}

	l.remaining--
	if l.remaining > 0 {
		return
	}

	l.phase = (l.phase + 1) % phaseCount
	l.remaining = l.phaseLength()
	l.jitter()
}

// jitter either sleeps, spins or does nothing, with durations below a
// millisecond so stop requests still land promptly.
func (l *instabilityLoad) jitter() {
	r := xorShift(&l.rng)
	d := time.Duration(50+r%950) * time.Microsecond

	switch (r >> 32) % 4 {
	case 0:
		time.Sleep(d)
	case 1, 2:
		deadline := time.Now().Add(d)
		for time.Now().Before(deadline) {
			l.acc++
		}
	}
}
