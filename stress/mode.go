package stress

import (
	"fmt"
	"strings"
)

// Mode selects the CPU workload.
type Mode int

const (
	// ModeHeavy repeatedly applies sqrt/sin/cos to a per-thread value.
	ModeHeavy Mode = iota
	// ModeInstability cycles FP bursts, integer churn, pointer chasing and
	// strided writes with random sleeps and spins in between.
	ModeInstability
)

func (m Mode) String() string {
	switch m {
	case ModeHeavy:
		return "heavy"
	case ModeInstability:
		return "instability"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

func (m Mode) valid() bool {
	return m == ModeHeavy || m == ModeInstability
}

// ParseMode accepts "heavy" or "instability", case-insensitively. The empty
// string selects ModeHeavy.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "heavy":
		return ModeHeavy, nil
	case "instability":
		return ModeInstability, nil
	default:
		return ModeHeavy, fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	if !m.valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidMode, int(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(b []byte) error {
	v, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}
