// Package config loads stressme settings from defaults, an optional YAML
// file, STRESSME_* environment variables and bound command-line flags, and
// translates them into engine options.
package config

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/utkarsh5026/stressme/bench"
	"github.com/utkarsh5026/stressme/internal/cpu"
	"github.com/utkarsh5026/stressme/internal/logutil"
	"github.com/utkarsh5026/stressme/stress"
	"github.com/utkarsh5026/stressme/tracer"
)

// EnvPrefix prefixes environment overrides, e.g. STRESSME_RAM_MEGABYTES.
const EnvPrefix = "STRESSME"

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config is the full stressme configuration.
type Config struct {
	CPU    CPUConfig    `json:"cpu" yaml:"cpu" mapstructure:"cpu"`
	RAM    RAMConfig    `json:"ram" yaml:"ram" mapstructure:"ram"`
	Bench  BenchConfig  `json:"bench" yaml:"bench" mapstructure:"bench"`
	Tracer TracerConfig `json:"tracer" yaml:"tracer" mapstructure:"tracer"`
	Log    LogConfig    `json:"log" yaml:"log" mapstructure:"log"`

	loadedFrom string
}

type CPUConfig struct {
	Threads     int           `json:"threads" yaml:"threads" mapstructure:"threads"`
	Mode        string        `json:"mode" yaml:"mode" mapstructure:"mode"`
	Pinned      bool          `json:"pinned" yaml:"pinned" mapstructure:"pinned"`
	JoinTimeout time.Duration `json:"join_timeout" yaml:"join_timeout" mapstructure:"join_timeout"`
}

type RAMConfig struct {
	Megabytes      int           `json:"megabytes" yaml:"megabytes" mapstructure:"megabytes"`
	ReservePercent float64       `json:"reserve_percent" yaml:"reserve_percent" mapstructure:"reserve_percent"`
	MinReserveMB   int64         `json:"min_reserve_mb" yaml:"min_reserve_mb" mapstructure:"min_reserve_mb"`
	ChunkMB        int64         `json:"chunk_mb" yaml:"chunk_mb" mapstructure:"chunk_mb"`
	MinChunkMB     int64         `json:"min_chunk_mb" yaml:"min_chunk_mb" mapstructure:"min_chunk_mb"`
	ProbeBytes     int           `json:"probe_bytes" yaml:"probe_bytes" mapstructure:"probe_bytes"`
	ReleaseTimeout time.Duration `json:"release_timeout" yaml:"release_timeout" mapstructure:"release_timeout"`
}

type BenchConfig struct {
	Threads             int           `json:"threads" yaml:"threads" mapstructure:"threads"`
	Runs                int           `json:"runs" yaml:"runs" mapstructure:"runs"`
	SingleDuration      time.Duration `json:"single_duration" yaml:"single_duration" mapstructure:"single_duration"`
	MultiDuration       time.Duration `json:"multi_duration" yaml:"multi_duration" mapstructure:"multi_duration"`
	SingleNormalization float64       `json:"single_normalization" yaml:"single_normalization" mapstructure:"single_normalization"`
	MultiNormalization  float64       `json:"multi_normalization" yaml:"multi_normalization" mapstructure:"multi_normalization"`
	BatchSize           int           `json:"batch_size" yaml:"batch_size" mapstructure:"batch_size"`
	BufferEntries       int           `json:"buffer_entries" yaml:"buffer_entries" mapstructure:"buffer_entries"`
	Pinned              bool          `json:"pinned" yaml:"pinned" mapstructure:"pinned"`
	ProgressInterval    time.Duration `json:"progress_interval" yaml:"progress_interval" mapstructure:"progress_interval"`
}

type TracerConfig struct {
	SamplesPerPixel  int           `json:"samples_per_pixel" yaml:"samples_per_pixel" mapstructure:"samples_per_pixel"`
	Width            int           `json:"width" yaml:"width" mapstructure:"width"`
	Height           int           `json:"height" yaml:"height" mapstructure:"height"`
	Threads          int           `json:"threads" yaml:"threads" mapstructure:"threads"`
	MaxBounces       int           `json:"max_bounces" yaml:"max_bounces" mapstructure:"max_bounces"`
	TileSize         int           `json:"tile_size" yaml:"tile_size" mapstructure:"tile_size"`
	Seed             uint64        `json:"seed" yaml:"seed" mapstructure:"seed"`
	ProgressInterval time.Duration `json:"progress_interval" yaml:"progress_interval" mapstructure:"progress_interval"`
}

type LogConfig struct {
	Level       string `json:"level" yaml:"level" mapstructure:"level"`
	Development bool   `json:"development" yaml:"development" mapstructure:"development"`
	JSON        bool   `json:"json" yaml:"json" mapstructure:"json"`
}

// LoadedFrom returns the config file that was read, or "" when only
// defaults and the environment were used.
func (c *Config) LoadedFrom() string { return c.loadedFrom }

// SetDefaults registers every key with its default so that environment
// overrides and flag bindings resolve for all of them.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("cpu.threads", cpu.NumCPU())
	v.SetDefault("cpu.mode", stress.ModeHeavy.String())
	v.SetDefault("cpu.pinned", false)
	v.SetDefault("cpu.join_timeout", stress.DefaultJoinTimeout)

	v.SetDefault("ram.megabytes", 0)
	v.SetDefault("ram.reserve_percent", stress.DefaultReservePercent)
	v.SetDefault("ram.min_reserve_mb", stress.DefaultMinReserveMB)
	v.SetDefault("ram.chunk_mb", stress.DefaultChunkMB)
	v.SetDefault("ram.min_chunk_mb", stress.DefaultMinChunkMB)
	v.SetDefault("ram.probe_bytes", stress.DefaultProbeBytes)
	v.SetDefault("ram.release_timeout", stress.DefaultReleaseTimeout)

	v.SetDefault("bench.threads", cpu.NumCPU())
	v.SetDefault("bench.runs", 1)
	v.SetDefault("bench.single_duration", bench.DefaultSingleDuration)
	v.SetDefault("bench.multi_duration", bench.DefaultMultiDuration)
	v.SetDefault("bench.single_normalization", bench.DefaultSingleNormalization)
	v.SetDefault("bench.multi_normalization", bench.DefaultMultiNormalization)
	v.SetDefault("bench.batch_size", bench.DefaultBatchSize)
	v.SetDefault("bench.buffer_entries", bench.DefaultBufferEntries)
	v.SetDefault("bench.pinned", false)
	v.SetDefault("bench.progress_interval", bench.DefaultProgressInterval)

	v.SetDefault("tracer.samples_per_pixel", 4)
	v.SetDefault("tracer.width", 640)
	v.SetDefault("tracer.height", 360)
	v.SetDefault("tracer.threads", cpu.NumCPU())
	v.SetDefault("tracer.max_bounces", tracer.DefaultMaxBounces)
	v.SetDefault("tracer.tile_size", tracer.DefaultTileSize)
	v.SetDefault("tracer.seed", tracer.DefaultSeed)
	v.SetDefault("tracer.progress_interval", tracer.DefaultProgressInterval)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("log.json", false)
}

// Binding maps a command-line flag onto a configuration key.
type Binding struct {
	Flag string
	Key  string
}

// Load resolves the configuration. Precedence, lowest first: defaults, the
// YAML file at path (skipped when path is empty), STRESSME_* environment
// variables, then any flags in bindings that were set on fs.
func Load(path string, fs *pflag.FlagSet, bindings ...Binding) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if fs != nil {
		for _, b := range bindings {
			f := fs.Lookup(b.Flag)
			if f == nil {
				return nil, fmt.Errorf("bind %q: unknown flag", b.Flag)
			}
			if err := v.BindPFlag(b.Key, f); err != nil {
				return nil, fmt.Errorf("bind %q: %w", b.Flag, err)
			}
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.loadedFrom = v.ConfigFileUsed()
	return &cfg, nil
}

// Default returns the configuration with no file, environment or flags
// applied.
func Default() *Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	// Defaults always decode.
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// Write renders cfg as YAML.
func Write(w io.Writer, cfg *Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return enc.Close()
}

// Validate rejects negative or nonsensical values.
func (c *Config) Validate() error {
	var problems []string
	check := func(ok bool, format string, args ...any) {
		if !ok {
			problems = append(problems, fmt.Sprintf(format, args...))
		}
	}

	check(c.CPU.Threads >= 0, "cpu.threads must not be negative")
	if _, err := stress.ParseMode(c.CPU.Mode); err != nil {
		problems = append(problems, fmt.Sprintf("cpu.mode %q is not heavy or instability", c.CPU.Mode))
	}
	check(c.CPU.JoinTimeout > 0, "cpu.join_timeout must be positive")

	check(c.RAM.Megabytes >= 0, "ram.megabytes must not be negative")
	check(c.RAM.ReservePercent >= 0 && c.RAM.ReservePercent <= 100, "ram.reserve_percent must be between 0 and 100")
	check(c.RAM.MinReserveMB >= 0, "ram.min_reserve_mb must not be negative")
	check(c.RAM.MinChunkMB > 0, "ram.min_chunk_mb must be positive")
	check(c.RAM.ChunkMB >= c.RAM.MinChunkMB, "ram.chunk_mb must be at least ram.min_chunk_mb")
	check(c.RAM.ProbeBytes > 0, "ram.probe_bytes must be positive")
	check(c.RAM.ReleaseTimeout > 0, "ram.release_timeout must be positive")

	check(c.Bench.Threads >= 0, "bench.threads must not be negative")
	check(c.Bench.Runs > 0, "bench.runs must be positive")
	check(c.Bench.SingleDuration > 0, "bench.single_duration must be positive")
	check(c.Bench.MultiDuration > 0, "bench.multi_duration must be positive")
	check(c.Bench.SingleNormalization > 0, "bench.single_normalization must be positive")
	check(c.Bench.MultiNormalization > 0, "bench.multi_normalization must be positive")
	check(c.Bench.BatchSize > 0, "bench.batch_size must be positive")
	check(c.Bench.BufferEntries > 0, "bench.buffer_entries must be positive")
	check(c.Bench.ProgressInterval >= bench.MinProgressInterval, "bench.progress_interval must be at least %s", bench.MinProgressInterval)

	check(c.Tracer.SamplesPerPixel > 0, "tracer.samples_per_pixel must be positive")
	check(c.Tracer.Width > 0 && c.Tracer.Height > 0, "tracer.width and tracer.height must be positive")
	check(c.Tracer.Threads >= 0, "tracer.threads must not be negative")
	check(c.Tracer.MaxBounces > 0, "tracer.max_bounces must be positive")
	check(c.Tracer.TileSize > 0, "tracer.tile_size must be positive")
	check(c.Tracer.ProgressInterval > 0, "tracer.progress_interval must be positive")

	if _, err := logutil.ParseLevel(c.Log.Level); err != nil {
		problems = append(problems, fmt.Sprintf("log.level: %v", err))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// Mode parses CPU.Mode. Validate has already rejected unknown names.
func (c *Config) Mode() stress.Mode {
	m, err := stress.ParseMode(c.CPU.Mode)
	if err != nil {
		return stress.ModeHeavy
	}
	return m
}

// CPUThreads returns CPU.Threads, or the logical CPU count when unset.
func (c *Config) CPUThreads() int { return orNumCPU(c.CPU.Threads) }

// TracerThreads returns Tracer.Threads, or the logical CPU count when unset.
func (c *Config) TracerThreads() int { return orNumCPU(c.Tracer.Threads) }

func orNumCPU(n int) int {
	if n > 0 {
		return n
	}
	return cpu.NumCPU()
}

func (c *Config) CPUOptions() []stress.CPUOption {
	return []stress.CPUOption{
		stress.WithJoinTimeout(c.CPU.JoinTimeout),
		stress.WithPinnedWorkers(c.CPU.Pinned),
	}
}

func (c *Config) RAMOptions() []stress.RAMOption {
	return []stress.RAMOption{
		stress.WithReservePercent(c.RAM.ReservePercent),
		stress.WithMinReserveMB(c.RAM.MinReserveMB),
		stress.WithChunkMB(c.RAM.ChunkMB),
		stress.WithMinChunkMB(c.RAM.MinChunkMB),
		stress.WithProbeBytes(c.RAM.ProbeBytes),
		stress.WithReleaseTimeout(c.RAM.ReleaseTimeout),
	}
}

func (c *Config) BenchOptions() []bench.Option {
	return []bench.Option{
		bench.WithThreads(c.Bench.Threads),
		bench.WithSingleDuration(c.Bench.SingleDuration),
		bench.WithMultiDuration(c.Bench.MultiDuration),
		bench.WithSingleNormalization(c.Bench.SingleNormalization),
		bench.WithMultiNormalization(c.Bench.MultiNormalization),
		bench.WithBatchSize(c.Bench.BatchSize),
		bench.WithBufferEntries(c.Bench.BufferEntries),
		bench.WithPinnedThreads(c.Bench.Pinned),
		bench.WithProgressInterval(c.Bench.ProgressInterval),
	}
}

func (c *Config) TracerOptions() []tracer.Option {
	return []tracer.Option{
		tracer.WithMaxBounces(c.Tracer.MaxBounces),
		tracer.WithTileSize(c.Tracer.TileSize),
		tracer.WithSeed(c.Tracer.Seed),
		tracer.WithProgressInterval(c.Tracer.ProgressInterval),
	}
}
