package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/23skdu/numakit/internal/cpualloc"
	nkerr "github.com/23skdu/numakit/internal/errors"
)

func TestValidateConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())
}

func TestValidateConfig_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"log format", func(c *Config) { c.LogFormat = "xml" }, ErrInvalidLogFormat},
		{"log level", func(c *Config) { c.LogLevel = "trace" }, ErrInvalidLogLevel},
		{"strategy", func(c *Config) { c.Strategy = "fastest" }, ErrInvalidStrategy},
		{"simulate", func(c *Config) { c.Simulate = "2by8" }, ErrInvalidSimulate},
		{"bench size", func(c *Config) { c.BenchSizeMB = 0 }, ErrInvalidBenchSize},
		{"bench passes", func(c *Config) { c.BenchPasses = -1 }, ErrInvalidBenchPasses},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, nkerr.ErrConfiguration)
		})
	}
}

func TestValidateConfig_ValidLogFormats(t *testing.T) {
	for _, format := range []string{"json", "console", "text", "JSON"} {
		cfg := DefaultConfig()
		cfg.LogFormat = format
		assert.NoError(t, cfg.Validate(), format)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	assert.Equal(t, cpualloc.NUMALocal, cfg.StrategyValue())

	_, ok, err := cfg.SimulatedTopology()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLoad_EnvVars(t *testing.T) {
	t.Setenv("NUMAKIT_STRATEGY", "isolated-critical")
	t.Setenv("NUMAKIT_EXCLUSIVE_ISOLATION", "true")
	t.Setenv("NUMAKIT_SIMULATE", "4x6")
	t.Setenv("NUMAKIT_LOG_LEVEL", "debug")
	t.Setenv("NUMAKIT_BENCH_PASSES", "2")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, cpualloc.IsolatedCritical, cfg.StrategyValue())
	assert.True(t, cfg.ExclusiveIsolation)
	assert.Equal(t, "debug", cfg.Logging().Level)
	assert.Equal(t, os.Stderr, cfg.Logging().Output)
	assert.Equal(t, 2, cfg.BenchPasses)

	topo, ok, err := cfg.SimulatedTopology()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 4, topo.NodeCount())
	assert.Equal(t, 24, topo.CPUCount())
	assert.True(t, topo.Available())
}

func TestLoad_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("NUMAKIT_BENCH_SIZE_MB=16\nNUMAKIT_METRICS_ADDR=127.0.0.1:9100\n"), 0o600))
	t.Setenv("NUMAKIT_METRICS_ADDR", "127.0.0.1:9200")
	t.Cleanup(func() { _ = os.Unsetenv("NUMAKIT_BENCH_SIZE_MB") })

	cfg, err := Load(path, filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.BenchSizeMB)
	assert.Equal(t, "127.0.0.1:9200", cfg.MetricsAddr, "the environment wins over the file")
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("NUMAKIT_BENCH_SIZE_MB", "lots")
	_, err := Load()
	assert.ErrorIs(t, err, nkerr.ErrConfiguration)

	t.Setenv("NUMAKIT_BENCH_SIZE_MB", "8")
	t.Setenv("NUMAKIT_LOG_FORMAT", "xml")
	_, err = Load()
	assert.ErrorIs(t, err, ErrInvalidLogFormat)
}

func TestParseLayout(t *testing.T) {
	nodes, cpus, err := ParseLayout(" 2X8 ")
	require.NoError(t, err)
	assert.Equal(t, 2, nodes)
	assert.Equal(t, 8, cpus)

	for _, bad := range []string{"", "2", "x8", "0x8", "2x0", "ax8", "2x-1"} {
		_, _, err := ParseLayout(bad)
		assert.ErrorIs(t, err, nkerr.ErrInvalidArgument, bad)
	}
}
