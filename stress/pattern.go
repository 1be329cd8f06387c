package stress

import (
	"context"
	"time"
)

const (
	// PatternA is written on the first pass of every cycle.
	PatternA byte = 0xAA
	// PatternB is its bitwise complement, written on the second pass.
	PatternB byte = 0x55

	// DefaultProbeBytes is how often fill and verify check for cancellation.
	DefaultProbeBytes = 16 * 1024

	pageSize = 4096
	gib      = 1 << 30
)

// PatternBuffer is a fixed-size byte region used for pattern verification.
// It is not safe for concurrent use.
type PatternBuffer struct {
	data  []byte
	probe int
}

// NewPatternBuffer wraps data. probeBytes sets the cancellation granularity;
// non-positive values select DefaultProbeBytes.
func NewPatternBuffer(data []byte, probeBytes int) *PatternBuffer {
	if probeBytes <= 0 {
		probeBytes = DefaultProbeBytes
	}
	return &PatternBuffer{data: data, probe: probeBytes}
}

// Len returns the buffer size in bytes.
func (b *PatternBuffer) Len() int {
	return len(b.data)
}

// Touch writes p once per page so the OS commits every page up front.
func (b *PatternBuffer) Touch(p byte) {
	for i := 0; i < len(b.data); i += pageSize {
		b.data[i] = p
	}
}

// Fill writes p to every byte, checking ctx every probe bytes. It returns the
// number of bytes written and ctx.Err() if interrupted.
func (b *PatternBuffer) Fill(ctx context.Context, p byte) (int, error) {
	for off := 0; off < len(b.data); off += b.probe {
		if err := ctx.Err(); err != nil {
			return off, err
		}

		seg := b.data[off:min(off+b.probe, len(b.data))]
		seg[0] = p
		for n := 1; n < len(seg); n *= 2 {
			copy(seg[n:], seg[:n])
		}
	}
	return len(b.data), nil
}

// ScanResult summarises a Verify pass.
type ScanResult struct {
	Mismatches  int64
	FirstOffset int64 // -1 when there were no mismatches
	Observed    byte  // value found at FirstOffset
	Scanned     int
}

// Verify counts bytes that differ from p, checking ctx every probe bytes.
func (b *PatternBuffer) Verify(ctx context.Context, p byte) (ScanResult, error) {
	res := ScanResult{FirstOffset: -1}

	for off := 0; off < len(b.data); off += b.probe {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		seg := b.data[off:min(off+b.probe, len(b.data))]
		for i, v := range seg {
			if v == p {
				continue
			}
			if res.FirstOffset < 0 {
				res.FirstOffset = int64(off + i)
				res.Observed = v
			}
			res.Mismatches++
		}
		res.Scanned += len(seg)
	}
	return res, nil
}

// PatternCycle reports one fill-then-verify pass over the whole allocation.
type PatternCycle struct {
	Pattern         string        `json:"pattern"`
	Expected        byte          `json:"expected"`
	Iteration       int64         `json:"iteration"`
	Mismatches      int64         `json:"mismatches"`
	FirstOffset     *int64        `json:"firstOffset,omitempty"`
	Observed        *int          `json:"observed,omitempty"`
	AllocatedMB     int           `json:"ramAllocatedMB"`
	Duration        time.Duration `json:"-"`
	DurationMs      int64         `json:"durationMs"`
	BytesTotal      int64         `json:"bytesTotal"`
	BytesProcessed  int64         `json:"bytesProcessed"`
	ThroughputGiBps float64       `json:"throughputGBps"`
}

// newPatternCycle derives the reporting fields. Throughput counts both the
// fill and the verify pass.
func newPatternCycle(name string, p byte, iter int64, allocatedMB int, total int64, scan ScanResult, elapsed time.Duration) PatternCycle {
	c := PatternCycle{
		Pattern:        name,
		Expected:       p,
		Iteration:      iter,
		Mismatches:     scan.Mismatches,
		AllocatedMB:    allocatedMB,
		Duration:       elapsed,
		DurationMs:     elapsed.Milliseconds(),
		BytesTotal:     total,
		BytesProcessed: total * 2,
	}
	if scan.FirstOffset >= 0 {
		off := scan.FirstOffset
		obs := int(scan.Observed)
		c.FirstOffset = &off
		c.Observed = &obs
	}
	if secs := elapsed.Seconds(); secs > 0 {
		c.ThroughputGiBps = float64(c.BytesProcessed) / secs / gib
	}
	return c
}
