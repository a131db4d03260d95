package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"

	"github.com/omniaagent/crmsync/internal/errors"
	"github.com/omniaagent/crmsync/internal/logger"
	"github.com/omniaagent/crmsync/internal/observability/metrics"
)

const restoreTimeout = 30 * time.Second

// controller holds what Backfill and Lookback share: the API, the report
// writer and the restore step.
type controller struct {
	api     API
	out     io.Writer
	log     logger.Logger
	metrics metrics.Recorder
	now     func() time.Time
}

// Option configures a Backfill or Lookback.
type Option func(*controller)

// WithOutput sets where the human-readable report is printed.
func WithOutput(w io.Writer) Option {
	return func(c *controller) { c.out = w }
}

func WithLogger(log logger.Logger) Option {
	return func(c *controller) { c.log = log }
}

func WithMetrics(r metrics.Recorder) Option {
	return func(c *controller) { c.metrics = metrics.OrNop(r) }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *controller) { c.now = now }
}

func newController(api API, opts []Option) controller {
	c := controller{
		api:     api,
		out:     os.Stdout,
		log:     GetLogger(),
		metrics: metrics.Nop{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

func (c *controller) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(c.out, format, args...)
}

// restore puts the original config back. It runs on a context detached
// from ctx so an interrupted run still restores.
func (c *controller) restore(ctx context.Context, pipelineID string, original map[string]any) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), restoreTimeout)
	defer cancel()

	c.printf("\nRestoring original pipeline config...\n")
	if _, err := c.api.UpdateConfig(rctx, pipelineID, original); err != nil {
		// the pipeline is left pinned to an override window until fixed by hand
		err = errors.New(err).
			Component("pipeline").
			Category(errors.CategoryPipeline).
			Priority(errors.PriorityCritical).
			Context("operation", "restore_config").
			Context("pipeline_id", pipelineID).
			Build()
		dump, _ := json.MarshalIndent(original, "  ", "  ")
		c.log.Error("failed to restore pipeline config",
			logger.String("pipeline_id", pipelineID),
			logger.String("original_config", string(dump)),
			logger.Error(err))
		warn := color.New(color.FgYellow)
		_, _ = warn.Fprintf(c.out, "  WARNING: Failed to restore config: %v\n", err)
		_, _ = warn.Fprintf(c.out, "  Manual restore may be needed. Original config:\n  %s\n", dump)
		return
	}
	c.log.Info("pipeline config restored", logger.String("pipeline_id", pipelineID))
	c.printf("  Restored.\n")
}

// runOnce applies cfg, triggers a pull and polls it.
func (c *controller) runOnce(ctx context.Context, pipelineID string, cfg map[string]any, wait WaitConfig) (Outcome, *RunLog, error) {
	if _, err := c.api.UpdateConfig(ctx, pipelineID, cfg); err != nil {
		return OutcomeFailed, nil, err
	}
	run, err := c.api.Trigger(ctx, pipelineID)
	if err != nil {
		return OutcomeFailed, nil, err
	}
	c.log.Info("pull triggered", logger.String("pipeline_id", pipelineID), logger.String("log_id", run.ID))
	c.printf("  Triggered pull, log=%s\n", run.ID)
	return Wait(ctx, wait, LogCheck(c.api, pipelineID, run.ID))
}

func originalRange(cfg map[string]any) string {
	params, ok := cfg["dateRangeParams"]
	if !ok {
		return "{}"
	}
	b, err := json.Marshal(params)
	if err != nil {
		return "{}"
	}
	return string(b)
}
