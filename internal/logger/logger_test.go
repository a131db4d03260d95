package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for line := range strings.SplitSeq(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestSlogLoggerModuleAndFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewSlogLogger(&buf, LogLevelDebug, time.UTC)

	log.Module("migrate").Module("policies").
		With(String("run_id", "r-1")).
		Info("page processed", Int("page", 3), Bool("dry_run", true))

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "page processed", lines[0]["msg"])
	assert.Equal(t, "migrate.policies", lines[0]["module"])
	assert.Equal(t, "r-1", lines[0]["run_id"])
	assert.InDelta(t, 3, lines[0]["page"], 0)
	assert.Equal(t, true, lines[0]["dry_run"])
}

func TestSlogLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := NewSlogLogger(&buf, LogLevelWarn, time.UTC)

	log.Debug("hidden")
	log.Info("hidden")
	log.Warn("shown")
	log.Log(LogLevelError, "also shown")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "shown", lines[0]["msg"])
	assert.Equal(t, "also shown", lines[1]["msg"])
}

func TestWithContextAddsTraceID(t *testing.T) {
	var buf bytes.Buffer
	log := NewSlogLogger(&buf, LogLevelInfo, time.UTC)

	ctx := WithTraceID(context.Background(), "run-42")
	log.WithContext(ctx).Info("started")
	log.WithContext(context.Background()).Info("no trace")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "run-42", lines[0]["trace_id"])
	assert.NotContains(t, lines[1], "trace_id")
}

func TestSensitiveFieldsAreRedacted(t *testing.T) {
	var buf bytes.Buffer
	log := NewSlogLogger(&buf, LogLevelInfo, time.UTC)

	log.Info("configured", String("crm_token", "abc123"), String("pipeline", "p-1"))

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "[REDACTED]", lines[0]["crm_token"])
	assert.Equal(t, "p-1", lines[0]["pipeline"])
}

func TestRedactSensitiveData(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		secret string
	}{
		{"query token", "GET https://api.convoso.com/v1/lists/search?auth_token=s3cr3t&limit=1", "s3cr3t"},
		{"bearer", "Authorization: Bearer abc.def.ghi", "abc.def.ghi"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RedactSensitiveData(tt.in)
			assert.NotContains(t, got, tt.secret)
			assert.Contains(t, got, "[REDACTED]")
		})
	}
	assert.Empty(t, RedactSensitiveData(""))
}

func TestTextHandlerFormat(t *testing.T) {
	var buf bytes.Buffer
	h := newTextHandler(&buf, slog.LevelInfo, time.UTC)
	log := slog.New(h)

	log.Info("day completed", slog.String(moduleKey, "pipeline"), slog.String("day", "2025-01-02"), slog.String("note", "two words"))
	log.Debug("suppressed")

	out := buf.String()
	assert.Equal(t, 1, strings.Count(out, "\n"))
	assert.Regexp(t, `^\[\d{2}\.\d{2}\.\d{4} \d{2}:\d{2}:\d{2}\] INFO  \[pipeline\] day completed`, out)
	assert.Contains(t, out, "day=2025-01-02")
	assert.Contains(t, out, `note="two words"`)
}

func TestLevelName(t *testing.T) {
	assert.Equal(t, "TRACE", levelName(traceLevelValue))
	assert.Equal(t, "DEBUG", levelName(slog.LevelDebug))
	assert.Equal(t, "INFO", levelName(slog.LevelInfo))
	assert.Equal(t, "WARN", levelName(slog.LevelWarn))
	assert.Equal(t, "ERROR", levelName(slog.LevelError))
}

func TestCentralLoggerFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "crmsync.log")
	cl, err := NewCentralLogger(&LoggingConfig{
		DefaultLevel: "debug",
		Timezone:     "UTC",
		Console:      &ConsoleOutput{Enabled: false},
		FileOutput:   &FileOutput{Enabled: true, Path: path, Level: "debug"},
		ModuleLevels: map[string]string{"ledger": "error"},
	})
	require.NoError(t, err)

	cl.Module("migrate").Debug("visible", String("kind", "policy"))
	cl.Module("ledger").Info("filtered by module level")
	require.NoError(t, cl.Flush())
	require.NoError(t, cl.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := decodeLines(t, bytes.NewBuffer(data))
	require.Len(t, lines, 1)
	assert.Equal(t, "migrate", lines[0]["module"])
	assert.Equal(t, "policy", lines[0]["kind"])
}

func TestNewCentralLoggerRejectsBadInput(t *testing.T) {
	_, err := NewCentralLogger(nil)
	require.Error(t, err)

	_, err = NewCentralLogger(&LoggingConfig{Timezone: "Nowhere/Invalid"})
	require.Error(t, err)
}

func TestGlobalFallback(t *testing.T) {
	SetGlobal(nil)
	t.Cleanup(func() { SetGlobal(nil) })

	g := Global()
	require.NotNil(t, g)
	assert.NotNil(t, g.Module("test"))
	assert.Same(t, g, Global())
}

func TestFanoutHandlerRespectsEachLevel(t *testing.T) {
	var console, file bytes.Buffer
	h := newMultiWriterHandler(
		slog.NewJSONHandler(&console, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewJSONHandler(&file, &slog.HandlerOptions{Level: slog.LevelDebug}),
	)
	log := slog.New(h).With("module", "migrate")

	log.Debug("page fetched", "page", 3)
	log.Info("run finished")

	assert.Len(t, decodeLines(t, &console), 1)
	fileLines := decodeLines(t, &file)
	require.Len(t, fileLines, 2)
	assert.Equal(t, "migrate", fileLines[0]["module"])
	assert.Equal(t, float64(3), fileLines[0]["page"])
	assert.True(t, h.Enabled(context.Background(), slog.LevelDebug))
}
