package sysmem

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTotalBytes(t *testing.T) {
	total, err := TotalBytes()
	if err != nil {
		t.Skipf("physical memory not readable here: %v", err)
	}
	assert.Greater(t, total, uint64(0))
}

func TestHeapAllocator(t *testing.T) {
	t.Run("allocates when memory is available", func(t *testing.T) {
		a := HeapAllocator{Available: func() (uint64, error) { return 64 * MiB, nil }}
		c, err := a.Alloc(MiB)
		require.NoError(t, err)
		assert.Equal(t, MiB, c.Len())
		assert.NoError(t, c.Free())
		assert.Nil(t, c.Data)
	})

	t.Run("refuses beyond headroom", func(t *testing.T) {
		a := HeapAllocator{
			Available: func() (uint64, error) { return 2 * MiB, nil },
			Headroom:  MiB + 1,
		}
		_, err := a.Alloc(MiB)
		assert.True(t, errors.Is(err, ErrOutOfMemory), "got %v", err)
	})

	t.Run("rejects non-positive sizes", func(t *testing.T) {
		_, err := HeapAllocator{}.Alloc(0)
		assert.True(t, errors.Is(err, ErrOutOfMemory))
	})
}

func TestChunk_FreeOnce(t *testing.T) {
	calls := 0
	c := NewChunk(make([]byte, 16), func() error {
		calls++
		return nil
	})

	require.NoError(t, c.Free())
	require.NoError(t, c.Free())
	assert.Equal(t, 1, calls)
}

func TestNewAllocator_RoundTrip(t *testing.T) {
	c, err := NewAllocator().Alloc(2 * MiB)
	require.NoError(t, err)

	for i := range c.Data {
		c.Data[i] = 0x5A
	}
	assert.Equal(t, byte(0x5A), c.Data[len(c.Data)-1])
	assert.NoError(t, c.Free())
}

func TestReclaim(t *testing.T) {
	_ = make([]byte, 4*MiB)
	Reclaim()
}
