package pipeline

import (
	"context"
	"math"
	"time"

	"github.com/omniaagent/crmsync/internal/errors"
	"github.com/omniaagent/crmsync/internal/logger"
)

// DefaultLookbackBuffer is added on top of the elapsed window.
const DefaultLookbackBuffer = 180 * time.Minute

// LookbackPlan asks the pipeline to re-pull everything since Start.
type LookbackPlan struct {
	PipelineID string
	Start      time.Time
	Buffer     time.Duration
	Wait       WaitConfig
}

// LookbackMinutes is ceil((now-start) in minutes) plus the buffer.
func LookbackMinutes(now, start time.Time, buffer time.Duration) int {
	elapsed := now.Sub(start)
	if elapsed < 0 {
		elapsed = 0
	}
	return int(math.Ceil(elapsed.Minutes())) + int(buffer/time.Minute)
}

// Lookback widens the pipeline's lookback window for a single pull.
type Lookback struct {
	controller
}

func NewLookback(api API, opts ...Option) *Lookback {
	return &Lookback{controller: newController(api, opts)}
}

// Run sets lookbackMinutes, triggers one pull, polls it and restores the
// original config.
func (l *Lookback) Run(ctx context.Context, plan LookbackPlan) (*RunLog, error) {
	if plan.PipelineID == "" {
		plan.PipelineID = DefaultPipelineID
	}
	if plan.Wait.Timeout <= 0 {
		plan.Wait.Timeout = DefaultDayTimeout
	}
	if plan.Buffer == 0 {
		plan.Buffer = DefaultLookbackBuffer
	}
	if plan.Start.IsZero() {
		return nil, errors.Newf("lookback start is required").
			Component("pipeline").
			Category(errors.CategoryValidation).
			Build()
	}

	minutes := LookbackMinutes(l.now(), plan.Start, plan.Buffer)
	l.log.Info("starting lookback pull",
		logger.String("pipeline_id", plan.PipelineID),
		logger.Time("start", plan.Start),
		logger.Int("lookback_minutes", minutes))
	l.printf("Lookback: %d minutes (since %s plus %s buffer)\n",
		minutes, plan.Start.Format(time.RFC3339), plan.Buffer)

	original, err := l.api.GetConfig(ctx, plan.PipelineID)
	if err != nil {
		return nil, err
	}
	original = CloneConfig(original)
	defer l.restore(ctx, plan.PipelineID, original)

	outcome, run, err := l.runOnce(context.WithoutCancel(ctx), plan.PipelineID, WithLookback(original, minutes), plan.Wait)
	l.metrics.RecordPipelineDay(outcome.String())
	if err != nil {
		return run, err
	}
	if outcome == OutcomeFailed {
		msg := "Unknown error"
		if run != nil && run.Errors != "" {
			msg = run.Errors
		}
		return run, errors.Newf("lookback pull failed: %s", msg).
			Component("pipeline").
			Category(errors.CategoryPipeline).
			Build()
	}
	l.printf("  Done: %s received, %s created, %s updated, %s failed\n",
		commas(run.TotalRecordsReceived), commas(run.RecordsCreated),
		commas(run.RecordsUpdated), commas(run.RecordsFailed))
	return run, nil
}
