package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/fyrsmithlabs/apreview/internal/config"
)

func bufferedLogger(t *testing.T, cfg *Config) (*Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	l, err := newLogger(cfg, nil, zapcore.AddSync(&buf))
	require.NoError(t, err)
	return l, &buf
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"bad format", func(c *Config) { c.Format = "xml" }, "format"},
		{"no outputs", func(c *Config) { c.Output.Stdout = false }, "at least one output"},
		{"zero tick", func(c *Config) { c.Sampling.Tick = 0 }, "sampling tick"},
		{"negative skip", func(c *Config) { c.Caller.Skip = -1 }, "caller skip"},
		{"bad pattern", func(c *Config) { c.Redaction.Patterns = []string{"("} }, "invalid redaction pattern"},
		{"empty field value", func(c *Config) { c.Fields["env"] = "" }, "empty value"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoggerWritesContextFields(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Sampling.Enabled = false
	l, buf := bufferedLogger(t, cfg)

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))
	ctx = WithSessionID(ctx, "sess-1")
	ctx = WithRequestID(ctx, "req_1")
	ctx = WithSubmissionID(ctx, "sub-1")

	l.Info(ctx, "answers applied", zap.Int("changed", 2))

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	entry := lines[0]
	assert.Equal(t, "answers applied", entry["msg"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "apreview", entry["service"])
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", entry["trace_id"])
	assert.Equal(t, "sess-1", entry["session.id"])
	assert.Equal(t, "req_1", entry["request.id"])
	assert.Equal(t, "sub-1", entry["submission.id"])
	assert.EqualValues(t, 2, entry["changed"])
}

func TestLoggerRedactsStdout(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Sampling.Enabled = false
	l, buf := bufferedLogger(t, cfg)

	l.Info(context.Background(), "delivering",
		zap.String("webhook_url", "https://hooks.example.com/abc"),
		zap.String("target", "https://hooks.example.com/x?sig=deadbeef"),
		Secret("hook", config.Secret("topsecret")),
		zap.String("column", "PSLO1 Quality 1"),
	)

	out := buf.String()
	assert.NotContains(t, out, "hooks.example.com/abc")
	assert.NotContains(t, out, "deadbeef")
	assert.NotContains(t, out, "topsecret")
	assert.Contains(t, out, "[REDACTED:9]")
	assert.Contains(t, out, "PSLO1 Quality 1")
}

func TestLoggerTraceLevel(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Sampling.Enabled = false
	cfg.Level = TraceLevel
	l, buf := bufferedLogger(t, cfg)

	l.Trace(context.Background(), "growth evaluated")
	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "trace", lines[0]["level"])

	cfg2 := NewDefaultConfig()
	l2, buf2 := bufferedLogger(t, cfg2)
	l2.Trace(context.Background(), "dropped")
	l2.Debug(context.Background(), "dropped")
	assert.Empty(t, buf2.String())
}

func TestLevelFromString(t *testing.T) {
	lvl, err := LevelFromString("trace")
	require.NoError(t, err)
	assert.Equal(t, TraceLevel, lvl)

	lvl, err = LevelFromString("warn")
	require.NoError(t, err)
	assert.Equal(t, zapcore.WarnLevel, lvl)

	_, err = LevelFromString("loud")
	assert.Error(t, err)
}

func TestSamplingNeverDropsErrors(t *testing.T) {
	core, observed := observer.New(zapcore.DebugLevel)
	sampled := newSampledCore(core, SamplingConfig{
		Enabled: true,
		Tick:    config.Duration(time.Minute),
		Levels: map[zapcore.Level]LevelSamplingConfig{
			zapcore.InfoLevel: {Initial: 2, Thereafter: 0},
		},
	})
	l := zap.New(sampled)

	for i := 0; i < 5; i++ {
		l.Info("noisy")
		l.Error("failure")
		l.Warn("unsampled level")
	}

	assert.Equal(t, 2, observed.FilterMessage("noisy").Len())
	assert.Equal(t, 5, observed.FilterMessage("failure").Len())
	assert.Equal(t, 5, observed.FilterMessage("unsampled level").Len())
}

func TestSamplingDisabledPassesThrough(t *testing.T) {
	core, _ := observer.New(zapcore.InfoLevel)
	assert.Same(t, core, newSampledCore(core, SamplingConfig{}))
}
