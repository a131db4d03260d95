package buildinfo

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextVersion(t *testing.T) {
	tests := []struct {
		name string
		ctx  *Context
		want string
	}{
		{name: "nil context", ctx: nil, want: UnknownValue},
		{name: "empty version", ctx: NewContext("", "2026-01-01"), want: UnknownValue},
		{name: "valid version", ctx: NewContext("1.0.0", "2026-01-01"), want: "1.0.0"},
		{name: "pre-release tag", ctx: NewContext("1.0.0-beta.1", "2026-01-01"), want: "1.0.0-beta.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.ctx.Version())
		})
	}
}

func TestContextBuildDate(t *testing.T) {
	var nilCtx *Context
	assert.Equal(t, UnknownValue, nilCtx.BuildDate())
	assert.Equal(t, UnknownValue, NewContext("1.0.0", "").BuildDate())
	assert.Equal(t, "2026-10-01T10:30:00Z", NewContext("1.0.0", "2026-10-01T10:30:00Z").BuildDate())
}

func TestNewContextRunID(t *testing.T) {
	a := NewContext("1.0.0", "2026-01-01")
	b := NewContext("1.0.0", "2026-01-01")

	_, err := uuid.Parse(a.RunID())
	require.NoError(t, err)
	assert.NotEqual(t, a.RunID(), b.RunID(), "every context gets its own run ID")
}

func TestWithRunID(t *testing.T) {
	orig := NewContext("1.0.0", "2026-01-01")
	cp := orig.WithRunID("fixed-run")

	assert.Equal(t, "fixed-run", cp.RunID())
	assert.Equal(t, "1.0.0", cp.Version())
	assert.NotEqual(t, "fixed-run", orig.RunID(), "original is not modified")

	var nilCtx *Context
	assert.Equal(t, "fixed-run", nilCtx.WithRunID("fixed-run").RunID())
	assert.Equal(t, UnknownValue, nilCtx.RunID())
}

func TestContextImplementsBuildInfo(t *testing.T) {
	var info BuildInfo = NewContext("2.0.0", "2026-01-01")
	assert.Equal(t, "2.0.0", info.Version())
	assert.NotEmpty(t, info.RunID())
}

func BenchmarkNewContext(b *testing.B) {
	for b.Loop() {
		_ = NewContext("1.0.0", "2026-01-01")
	}
}
