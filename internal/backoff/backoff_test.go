package backoff

import (
	"testing"
	"time"
)

func TestExponential_NextDelay(t *testing.T) {
	tests := []struct {
		name    string
		initial time.Duration
		max     time.Duration
		attempt int
		want    time.Duration
	}{
		{"negative attempt", 10 * time.Millisecond, time.Second, -1, 0},
		{"first retry", 10 * time.Millisecond, time.Second, 0, 10 * time.Millisecond},
		{"second retry", 10 * time.Millisecond, time.Second, 1, 20 * time.Millisecond},
		{"fourth retry", 10 * time.Millisecond, time.Second, 3, 80 * time.Millisecond},
		{"capped", 10 * time.Millisecond, 50 * time.Millisecond, 5, 50 * time.Millisecond},
		{"huge attempt", time.Millisecond, time.Second, 200, time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(Exponential, tt.initial, tt.max, 0)
			if got := s.NextDelay(tt.attempt); got != tt.want {
				t.Errorf("NextDelay(%d) = %v, want %v", tt.attempt, got, tt.want)
			}
		})
	}
}

func TestExponential_NoCap(t *testing.T) {
	s := New(Exponential, time.Millisecond, 0, 0)
	if got := s.NextDelay(10); got != 1024*time.Millisecond {
		t.Errorf("NextDelay(10) = %v, want %v", got, 1024*time.Millisecond)
	}
}

func TestJittered_Bounds(t *testing.T) {
	s := New(Jittered, 100*time.Millisecond, 10*time.Second, 0.2)

	for attempt := range 5 {
		base := time.Duration(int64(1)<<uint(attempt)) * 100 * time.Millisecond
		lo := time.Duration(float64(base) * 0.8)
		hi := time.Duration(float64(base) * 1.2)

		for range 50 {
			d := s.NextDelay(attempt)
			if d < lo || d > hi {
				t.Fatalf("attempt %d: delay %v outside [%v, %v]", attempt, d, lo, hi)
			}
		}
	}
}

func TestJittered_FactorClamped(t *testing.T) {
	s := New(Jittered, 100*time.Millisecond, time.Second, 5)
	for range 100 {
		d := s.NextDelay(0)
		if d < 0 || d > 200*time.Millisecond {
			t.Fatalf("delay %v outside clamped range", d)
		}
	}
}
