package migrate

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omniaagent/crmsync/internal/app"
	"github.com/omniaagent/crmsync/internal/buildinfo"
	"github.com/omniaagent/crmsync/internal/logger"
)

func TestParseWindow(t *testing.T) {
	la, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)
	now := time.Date(2026, 10, 15, 20, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		start     string
		end       string
		wantStart time.Time
		wantEnd   time.Time
		wantErr   bool
	}{
		{
			name:      "day bounds",
			start:     "2026-10-01",
			end:       "2026-10-02",
			wantStart: time.Date(2026, 10, 1, 0, 0, 0, 0, la),
			wantEnd:   time.Date(2026, 10, 2, 0, 0, 0, 0, la),
		},
		{
			name:      "time of day",
			start:     "2026-10-01 08:30:00",
			end:       "2026-10-01T17:00:00",
			wantStart: time.Date(2026, 10, 1, 8, 30, 0, 0, la),
			wantEnd:   time.Date(2026, 10, 1, 17, 0, 0, 0, la),
		},
		{
			name:      "end defaults to now",
			start:     "2026-10-15",
			wantStart: time.Date(2026, 10, 15, 0, 0, 0, 0, la),
			wantEnd:   now.In(la),
		},
		{name: "bad start", start: "yesterday", wantErr: true},
		{name: "bad end", start: "2026-10-01", end: "10/02/2026", wantErr: true},
		{name: "empty window", start: "2026-10-02", end: "2026-10-02", wantErr: true},
		{name: "reversed window", start: "2026-10-02", end: "2026-10-01", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			from, to, err := parseWindow(tt.start, tt.end, now, la)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.wantStart.Equal(from), "start %s", from)
			assert.True(t, tt.wantEnd.Equal(to), "end %s", to)
		})
	}
}

func TestKVFields(t *testing.T) {
	fields := kvFields([]any{"entry", 3, "next", "soon", "dangling"})
	require.Len(t, fields, 3)
	assert.Equal(t, "entry", fields[0].Key)
	assert.Equal(t, 3, fields[0].Value)
	assert.Equal(t, "next", fields[1].Key)
	assert.Equal(t, "dangling", fields[2].Key)
}

func TestCronLoggerDoesNotPanic(t *testing.T) {
	cl := cronLogger{log: logger.NewSlogLogger(io.Discard, logger.LogLevelTrace, time.UTC)}
	cl.Info("schedule", "now", time.Now())
	cl.Error(errors.New("boom"), "job failed", "entry", 1)
}

func TestCommandTree(t *testing.T) {
	cmd := Command(app.NewContext(buildinfo.NewContext("test", "")))

	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	assert.Equal(t, map[string]bool{"policies": true, "today": true, "calls": true}, names)

	policies, _, err := cmd.Find([]string{"policies"})
	require.NoError(t, err)
	for _, flag := range []string{"page", "sample", "dry-run"} {
		assert.NotNil(t, policies.Flags().Lookup(flag), flag)
	}

	today, _, err := cmd.Find([]string{"today"})
	require.NoError(t, err)
	for _, flag := range []string{"date", "dry-run", "schedule"} {
		assert.NotNil(t, today.Flags().Lookup(flag), flag)
	}
}

func TestRunWithoutSettingsFails(t *testing.T) {
	c := app.NewContext(buildinfo.NewContext("test", ""))
	err := runPolicies(t.Context(), c)
	require.Error(t, err)
}
