package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utkarsh5026/stressme/bench"
	"github.com/utkarsh5026/stressme/stress"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stressme.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "heavy", cfg.CPU.Mode)
	assert.Equal(t, stress.DefaultJoinTimeout, cfg.CPU.JoinTimeout)
	assert.Equal(t, stress.DefaultReservePercent, cfg.RAM.ReservePercent)
	assert.Equal(t, int64(stress.DefaultMinReserveMB), cfg.RAM.MinReserveMB)
	assert.Equal(t, stress.DefaultReleaseTimeout, cfg.RAM.ReleaseTimeout)
	assert.Equal(t, bench.DefaultMultiDuration, cfg.Bench.MultiDuration)
	assert.Equal(t, 1, cfg.Bench.Runs)
	assert.Equal(t, uint64(42), cfg.Tracer.Seed)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Empty(t, cfg.LoadedFrom())
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, Default().RAM, cfg.RAM)
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, `
cpu:
  threads: 3
  mode: instability
ram:
  megabytes: 512
  chunk_mb: 32
bench:
  multi_duration: 750ms
tracer:
  width: 320
  height: 200
log:
  level: debug
`)

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.CPU.Threads)
	assert.Equal(t, stress.ModeInstability, cfg.Mode())
	assert.Equal(t, 512, cfg.RAM.Megabytes)
	assert.Equal(t, int64(32), cfg.RAM.ChunkMB)
	assert.Equal(t, int64(stress.DefaultMinChunkMB), cfg.RAM.MinChunkMB, "unset keys keep defaults")
	assert.Equal(t, 750*time.Millisecond, cfg.Bench.MultiDuration)
	assert.Equal(t, 320, cfg.Tracer.Width)
	assert.Equal(t, 200, cfg.Tracer.Height)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, path, cfg.LoadedFrom())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	assert.Error(t, err)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := writeFile(t, "ram:\n  megabytes: 512\n")
	t.Setenv("STRESSME_RAM_MEGABYTES", "1024")
	t.Setenv("STRESSME_BENCH_SINGLE_DURATION", "2s")

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, 1024, cfg.RAM.Megabytes)
	assert.Equal(t, 2*time.Second, cfg.Bench.SingleDuration)
}

func TestFlagsOverrideEnvironment(t *testing.T) {
	t.Setenv("STRESSME_CPU_THREADS", "2")

	newFlags := func() *pflag.FlagSet {
		fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
		fs.Int("threads", 0, "")
		fs.String("mode", "heavy", "")
		return fs
	}
	bindings := []Binding{{Flag: "threads", Key: "cpu.threads"}, {Flag: "mode", Key: "cpu.mode"}}

	t.Run("unset flags fall through", func(t *testing.T) {
		cfg, err := Load("", newFlags(), bindings...)
		require.NoError(t, err)
		assert.Equal(t, 2, cfg.CPU.Threads)
	})

	t.Run("set flags win", func(t *testing.T) {
		fs := newFlags()
		require.NoError(t, fs.Parse([]string{"--threads=6", "--mode=instability"}))
		cfg, err := Load("", fs, bindings...)
		require.NoError(t, err)
		assert.Equal(t, 6, cfg.CPU.Threads)
		assert.Equal(t, "instability", cfg.CPU.Mode)
	})

	t.Run("unknown flag", func(t *testing.T) {
		_, err := Load("", newFlags(), Binding{Flag: "nope", Key: "cpu.threads"})
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative threads", func(c *Config) { c.CPU.Threads = -1 }},
		{"unknown mode", func(c *Config) { c.CPU.Mode = "turbo" }},
		{"negative ram", func(c *Config) { c.RAM.Megabytes = -5 }},
		{"reserve over 100", func(c *Config) { c.RAM.ReservePercent = 120 }},
		{"chunk below min chunk", func(c *Config) { c.RAM.ChunkMB = 2; c.RAM.MinChunkMB = 4 }},
		{"zero release timeout", func(c *Config) { c.RAM.ReleaseTimeout = 0 }},
		{"zero runs", func(c *Config) { c.Bench.Runs = 0 }},
		{"fast progress", func(c *Config) { c.Bench.ProgressInterval = 10 * time.Millisecond }},
		{"zero normalization", func(c *Config) { c.Bench.MultiNormalization = 0 }},
		{"zero spp", func(c *Config) { c.Tracer.SamplesPerPixel = 0 }},
		{"zero width", func(c *Config) { c.Tracer.Width = 0 }},
		{"bad log level", func(c *Config) { c.Log.Level = "chatty" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	path := writeFile(t, "ram:\n  reserve_percent: 150\n")
	_, err := Load(path, nil)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestWriteLoadsBack(t *testing.T) {
	cfg := Default()
	cfg.CPU.Mode = "instability"
	cfg.RAM.Megabytes = 256
	cfg.Bench.MultiDuration = 1500 * time.Millisecond

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, cfg))
	assert.Contains(t, buf.String(), "multi_duration: 1.5s")
	assert.Contains(t, buf.String(), "mode: instability")

	loaded, err := Load(writeFile(t, buf.String()), nil)
	require.NoError(t, err)
	assert.Equal(t, cfg.CPU, loaded.CPU)
	assert.Equal(t, cfg.RAM, loaded.RAM)
	assert.Equal(t, cfg.Bench, loaded.Bench)
	assert.Equal(t, cfg.Tracer, loaded.Tracer)
}

func TestOptionsApply(t *testing.T) {
	cfg := Default()
	cfg.Bench.Threads = 3
	cfg.CPU.Threads = 0

	e := bench.NewEngine(cfg.BenchOptions()...)
	assert.Equal(t, 3, e.Threads())
	assert.Positive(t, cfg.CPUThreads(), "zero falls back to the CPU count")

	assert.Len(t, cfg.CPUOptions(), 2)
	assert.Len(t, cfg.RAMOptions(), 6)
	assert.Len(t, cfg.TracerOptions(), 4)

	ram := stress.NewRAMEngine(append(cfg.RAMOptions(), stress.WithTotalMemory(func() (uint64, error) {
		return 16 << 30, nil
	}))...)
	mb, known := ram.Ceiling()
	assert.True(t, known)
	// 16 GiB minus max(15%, 2048 MB).
	assert.Equal(t, int64(16384-2457), mb)
}
