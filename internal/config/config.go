// Package config loads numakit tool settings from NUMAKIT_* environment
// variables, optionally seeded from a .env file.
package config

import (
	"errors"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/23skdu/numakit/internal/cpualloc"
	nkerr "github.com/23skdu/numakit/internal/errors"
	"github.com/23skdu/numakit/internal/logging"
	"github.com/23skdu/numakit/internal/topology"
)

// Prefix is the environment variable prefix
const Prefix = "NUMAKIT"

// Config validation errors
var (
	ErrInvalidLogFormat   = errors.New("log_format must be 'json', 'console' or 'text'")
	ErrInvalidLogLevel    = errors.New("log_level must be debug, info, warn, or error")
	ErrInvalidStrategy    = errors.New("strategy must be round_robin, numa_local, load_balanced or isolated_critical")
	ErrInvalidSimulate    = errors.New("simulate must be NODESxCPUS, e.g. 2x8")
	ErrInvalidBenchSize   = errors.New("bench_size_mb must be positive")
	ErrInvalidBenchPasses = errors.New("bench_passes must be positive")
)

// Config holds the tool settings. The core packages never read it.
type Config struct {
	LogFormat string `envconfig:"LOG_FORMAT" default:"console"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`

	Strategy           string `envconfig:"STRATEGY" default:"numa_local"`
	ExclusiveIsolation bool   `envconfig:"EXCLUSIVE_ISOLATION" default:"false"`

	// MetricsAddr serves /metrics when non-empty
	MetricsAddr string `envconfig:"METRICS_ADDR" default:""`

	// Simulate replaces the host with a synthetic NODESxCPUS layout
	Simulate string `envconfig:"SIMULATE" default:""`

	BenchSizeMB int `envconfig:"BENCH_SIZE_MB" default:"64"`
	BenchPasses int `envconfig:"BENCH_PASSES" default:"5"`
}

// DefaultConfig returns a Config with default values
func DefaultConfig() Config {
	return Config{
		LogFormat:   "console",
		LogLevel:    "info",
		Strategy:    "numa_local",
		BenchSizeMB: 64,
		BenchPasses: 5,
	}
}

// Load reads envFiles (missing files are ignored) into the environment without
// overriding variables already set, then processes NUMAKIT_* variables.
func Load(envFiles ...string) (Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, nkerr.Wrap(err, nkerr.ErrorTypeConfiguration, "config.load", "failed to read env file").
				WithContext("file", f)
		}
	}
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return Config{}, nkerr.Wrap(err, nkerr.ErrorTypeConfiguration, "config.load", "failed to process environment")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var err error
	switch strings.ToLower(c.LogFormat) {
	case "json", "console", "text":
	default:
		err = ErrInvalidLogFormat
	}
	if err == nil {
		switch strings.ToLower(c.LogLevel) {
		case "debug", "info", "warn", "error":
		default:
			err = ErrInvalidLogLevel
		}
	}
	if err == nil {
		if _, perr := cpualloc.ParseStrategy(c.Strategy); perr != nil {
			err = ErrInvalidStrategy
		}
	}
	if err == nil && c.Simulate != "" {
		if _, _, perr := ParseLayout(c.Simulate); perr != nil {
			err = ErrInvalidSimulate
		}
	}
	if err == nil && c.BenchSizeMB <= 0 {
		err = ErrInvalidBenchSize
	}
	if err == nil && c.BenchPasses <= 0 {
		err = ErrInvalidBenchPasses
	}
	if err != nil {
		return nkerr.Wrap(err, nkerr.ErrorTypeConfiguration, "config.validate", "invalid configuration")
	}
	return nil
}

// StrategyValue returns the parsed allocation strategy
func (c *Config) StrategyValue() cpualloc.Strategy {
	s, err := cpualloc.ParseStrategy(c.Strategy)
	if err != nil {
		return cpualloc.NUMALocal
	}
	return s
}

// Logging returns the logger settings. Logs go to stderr; stdout carries command output.
func (c *Config) Logging() logging.Config {
	return logging.Config{
		Format: c.LogFormat,
		Level:  c.LogLevel,
		Output: os.Stderr,
	}
}

// SimulatedTopology returns the synthetic layout named by Simulate; ok is false
// when no simulation was requested.
func (c *Config) SimulatedTopology() (topo topology.Topology, ok bool, err error) {
	if c.Simulate == "" {
		return topology.Topology{}, false, nil
	}
	nodes, cpus, err := ParseLayout(c.Simulate)
	if err != nil {
		return topology.Topology{}, false, err
	}
	topo, err = topology.Uniform(nodes, cpus, 4096)
	if err != nil {
		return topology.Topology{}, false, err
	}
	return topo, true, nil
}
