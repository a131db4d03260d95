package errors

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingReporter struct {
	reported []*EnhancedError
}

func (r *recordingReporter) ReportError(ee *EnhancedError) { r.reported = append(r.reported, ee) }
func (r *recordingReporter) IsEnabled() bool              { return true }

func TestFastPathNoTelemetry(t *testing.T) {
	SetTelemetryReporter(nil)

	ee := New(fmt.Errorf("test error")).Build()

	assert.Equal(t, "test error", ee.Error())
	assert.Equal(t, ComponentUnknown, ee.GetComponent())
	assert.Equal(t, CategoryGeneric, ee.Category)
}

func TestBuilderContextAndCategory(t *testing.T) {
	SetTelemetryReporter(nil)

	ee := Newf("page %d failed", 3).
		Component("source").
		Category(CategoryHTTP).
		Context("page", 3).
		Context("status_code", 502).
		Build()

	assert.Equal(t, "page 3 failed", ee.Error())
	assert.Equal(t, "source", ee.GetComponent())
	assert.True(t, IsCategory(ee, CategoryHTTP))

	v, ok := ContextValue(fmt.Errorf("wrapped: %w", ee), "status_code")
	require.True(t, ok)
	assert.Equal(t, 502, v)
}

func TestDetectCategoryFromMessage(t *testing.T) {
	SetTelemetryReporter(nil)

	tests := []struct {
		name string
		err  error
		want ErrorCategory
	}{
		{"cancelled", context.Canceled, CategoryCancellation},
		{"deadline", context.DeadlineExceeded, CategoryTimeout},
		{"duplicate", fmt.Errorf("Duplicate key value violates unique constraint"), CategoryConflict},
		{"dial", fmt.Errorf("dial tcp: connection refused"), CategoryNetwork},
		{"plain", fmt.Errorf("something odd"), CategoryGeneric},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, New(tt.err).Build().Category)
		})
	}
}

func TestEnhancedErrorIsAndUnwrap(t *testing.T) {
	SetTelemetryReporter(nil)

	base := context.Canceled
	ee := New(base).Category(CategoryCancellation).Build()

	assert.ErrorIs(t, ee, context.Canceled)
	assert.Equal(t, base, Unwrap(ee))
	assert.True(t, Is(ee, &EnhancedError{Category: CategoryCancellation}))
}

func TestReporterReceivesErrors(t *testing.T) {
	reporter := &recordingReporter{}
	SetTelemetryReporter(reporter)
	t.Cleanup(func() { SetTelemetryReporter(nil) })

	_ = New(fmt.Errorf("boom")).Component("migrate").Category(CategoryProcessing).Build()

	require.Len(t, reporter.reported, 1)
	assert.Equal(t, "migrate", reporter.reported[0].GetComponent())
}

func TestScrubMessageForPrivacy(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		absent  []string
		present []string
	}{
		{
			name:    "query string",
			in:      "GET https://api.convoso.com/v1/lists/search?auth_token=secret123 failed",
			absent:  []string{"secret123"},
			present: []string{"[REDACTED]"},
		},
		{
			name:    "bearer token",
			in:      "request rejected for Bearer eyJhbGciOi",
			absent:  []string{"eyJhbGciOi"},
			present: []string{"Bearer [REDACTED]"},
		},
		{
			name:    "customer data",
			in:      "duplicate email jane@example.com for +1 (555) 123-4567",
			absent:  []string{"jane@example.com", "123-4567"},
			present: []string{"[EMAIL_REDACTED]", "[PHONE_REDACTED]"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := scrubMessageForPrivacy(tt.in)
			for _, s := range tt.absent {
				assert.NotContains(t, got, s)
			}
			for _, s := range tt.present {
				assert.Contains(t, got, s)
			}
		})
	}
}

func TestSentryLevelFollowsPriority(t *testing.T) {
	SetTelemetryReporter(nil)

	tests := []struct {
		name     string
		priority string
		category ErrorCategory
		want     sentry.Level
	}{
		{"critical overrides transient category", PriorityCritical, CategoryNetwork, sentry.LevelFatal},
		{"high", PriorityHigh, CategoryCancellation, sentry.LevelError},
		{"medium", PriorityMedium, CategoryPipeline, sentry.LevelWarning},
		{"low", PriorityLow, CategoryPipeline, sentry.LevelInfo},
		{"unknown priority becomes medium", "urgent", CategoryPipeline, sentry.LevelWarning},
		{"no priority uses category", "", CategoryTimeout, sentry.LevelWarning},
		{"no priority default", "", CategoryPipeline, sentry.LevelError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ee := Newf("restore failed").Category(tt.category).Priority(tt.priority).Build()
			assert.Equal(t, tt.want, getErrorLevel(ee))
		})
	}
}

func TestNetworkContextAndTiming(t *testing.T) {
	SetTelemetryReporter(nil)

	ee := New(fmt.Errorf("dial tcp: connection refused")).
		NetworkContext("https://crm.example.com/graphql?token=secret", 30*time.Second).
		Timing("graphql_request", 1500*time.Millisecond).
		Build()

	ctx := ee.GetContext()
	assert.Equal(t, "https-endpoint", ctx["url_category"])
	assert.InDelta(t, 30.0, ctx["timeout_seconds"], 0.001)
	assert.Equal(t, "graphql_request", ctx["operation"])
	assert.Equal(t, int64(1500), ctx["duration_ms"])
	assert.Equal(t, "http-endpoint", categorizeURL("HTTP://legacy.example.com"))
	assert.Equal(t, "other-protocol", categorizeURL("ftp://x"))
}
