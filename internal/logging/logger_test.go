package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"DEBUG", zerolog.DebugLevel},
		{"", zerolog.InfoLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseLevel(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := parseLevel("verbose")
	assert.ErrorContains(t, err, "invalid log level: verbose")
}

func TestNewLogger_InvalidLevelReturnsNop(t *testing.T) {
	logger, err := NewLogger(Config{Format: "json", Level: "loud"})
	require.Error(t, err)
	assert.Equal(t, zerolog.Disabled, logger.GetLevel())
}

func TestNewLogger_JSONEntry(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(Config{Format: "json", Level: "info", Output: &buf})
	require.NoError(t, err)

	logger.Info().Int("cpu", 15).Int("node", 1).Msg("thread pinned")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), buf.String())
	assert.Equal(t, "thread pinned", entry["message"])
	assert.Equal(t, "info", entry["level"])
	assert.EqualValues(t, 15, entry["cpu"])
	assert.Contains(t, entry, "time")
}

func TestNewLogger_ConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(Config{Format: "console", Level: "debug", Output: &buf})
	require.NoError(t, err)

	logger.Debug().Int("cpu", 7).Msg("isolated cpu reserved")
	assert.Contains(t, buf.String(), "isolated cpu reserved")
	assert.Contains(t, buf.String(), "cpu=")
	assert.False(t, json.Valid(bytes.TrimSpace(buf.Bytes())))
}

func TestMetricsHook_CountsWrittenEntriesOnly(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(Config{Format: "json", Level: "warn", Output: &buf})
	require.NoError(t, err)

	debugBefore := testutil.ToFloat64(LogEntriesTotal.WithLabelValues("debug"))
	warnBefore := testutil.ToFloat64(LogEntriesTotal.WithLabelValues("warn"))
	errorsBefore := testutil.ToFloat64(LogErrorsTotal)

	logger.Debug().Msg("below level")
	logger.Warn().Msg("fallback to heap")
	logger.Warn().Msg("fallback to round robin")
	logger.Error().Msg("bind failed")
	logger.Log().Msg("no level")

	assert.NotContains(t, buf.String(), "below level")
	assert.InDelta(t, 0, testutil.ToFloat64(LogEntriesTotal.WithLabelValues("debug"))-debugBefore, 0.001)
	assert.InDelta(t, 2, testutil.ToFloat64(LogEntriesTotal.WithLabelValues("warn"))-warnBefore, 0.001)
	assert.InDelta(t, 1, testutil.ToFloat64(LogErrorsTotal)-errorsBefore, 0.001)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, "info", cfg.Level)
	assert.NotNil(t, cfg.Output)

	assert.Equal(t, zerolog.Disabled, DiscardLogger().GetLevel())
}
