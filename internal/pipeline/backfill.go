package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/omniaagent/crmsync/internal/checkpoint"
	"github.com/omniaagent/crmsync/internal/errors"
	"github.com/omniaagent/crmsync/internal/logger"
)

// DayLayout is the YYYY-MM-DD day format.
const DayLayout = "2006-01-02"

// Plan describes one backfill run over [Start, End).
type Plan struct {
	PipelineID   string
	Start        string
	End          string
	Resume       bool
	DryRun       bool
	ProgressFile string
	Wait         WaitConfig
}

// Result reports where a backfill run ended.
type Result struct {
	Progress  *checkpoint.Progress
	TotalDays int
	Triggered []string
	Remaining []string
	Outcome   Outcome
}

// ResolveRange turns the CLI flags into an end-exclusive [start, end)
// range. date selects a single day; an empty end means today.
func ResolveRange(date, start, end string, today time.Time) (string, string, error) {
	if date != "" {
		d, err := time.Parse(DayLayout, date)
		if err != nil {
			return "", "", rangeErr("invalid --date %q", date)
		}
		return date, d.AddDate(0, 0, 1).Format(DayLayout), nil
	}
	if start == "" {
		return "", "", rangeErr("specify --date or --start")
	}
	if end == "" {
		end = today.Format(DayLayout)
	}
	return start, end, nil
}

// Days lists every day in [start, end).
func Days(start, end string) ([]string, error) {
	s, err := time.Parse(DayLayout, start)
	if err != nil {
		return nil, rangeErr("invalid start date %q", start)
	}
	e, err := time.Parse(DayLayout, end)
	if err != nil {
		return nil, rangeErr("invalid end date %q", end)
	}
	var days []string
	for d := s; d.Before(e); d = d.AddDate(0, 0, 1) {
		days = append(days, d.Format(DayLayout))
	}
	if len(days) == 0 {
		return nil, rangeErr("no days in range %s to %s", start, end)
	}
	return days, nil
}

func rangeErr(format string, args ...any) error {
	return errors.Newf(format, args...).
		Component("pipeline").
		Category(errors.CategoryValidation).
		Build()
}

// Backfill replays the pipeline one day at a time.
type Backfill struct {
	controller
}

func NewBackfill(api API, opts ...Option) *Backfill {
	return &Backfill{controller: newController(api, opts)}
}

// Run executes plan. The original pipeline config is restored on every
// exit path once it has been captured. ctx is only consulted between
// days; a day already triggered is polled to the end.
func (b *Backfill) Run(ctx context.Context, plan Plan) (*Result, error) {
	if plan.PipelineID == "" {
		plan.PipelineID = DefaultPipelineID
	}
	if plan.ProgressFile == "" {
		plan.ProgressFile = checkpoint.DefaultPath
	}
	if plan.Wait.Interval <= 0 {
		plan.Wait.Interval = DefaultPollInterval
	}
	if plan.Wait.Timeout <= 0 {
		plan.Wait.Timeout = DefaultDayTimeout
	}
	log := b.log.With(logger.String("pipeline_id", plan.PipelineID))

	days, err := Days(plan.Start, plan.End)
	if err != nil {
		return nil, err
	}

	progress := b.loadProgress(plan)
	pending := make([]string, 0, len(days))
	for _, d := range days {
		if !progress.Done(d) {
			pending = append(pending, d)
		}
	}
	res := &Result{Progress: progress, TotalDays: len(days), Remaining: pending, Outcome: OutcomeCompleted}

	b.printf("\nBackfill plan:\n")
	b.printf("  Date range: %s to %s (%d days)\n", plan.Start, plan.End, len(days))
	b.printf("  Already completed: %d\n", len(days)-len(pending))
	b.printf("  Days to process: %d\n", len(pending))
	b.printf("  Pipeline: %s\n", plan.PipelineID)

	if len(pending) == 0 {
		b.printf("\nAll days already completed.\n")
		return res, nil
	}

	if plan.DryRun {
		b.printf("\nDry run -- would process these days:\n")
		for _, d := range pending {
			b.printf("  [%d/%d] %s\n", dayNumber(days, d), len(days), d)
		}
		b.printf("\nEstimated time: %.0f - %d minutes\n", float64(len(pending))*1.5, len(pending)*2)
		return res, nil
	}

	b.printf("\nSaving original pipeline config...\n")
	original, err := b.api.GetConfig(ctx, plan.PipelineID)
	if err != nil {
		return res, err
	}
	original = CloneConfig(original)
	b.printf("  Original dateRangeParams: %s\n", originalRange(original))

	defer b.printSummary(res, plan)
	defer b.restore(ctx, plan.PipelineID, original)

	for _, day := range pending {
		if ctx.Err() != nil {
			log.Warn("backfill interrupted", logger.String("next_day", day))
			b.printf("\n\nInterrupted! Cleaning up...\n")
			res.Outcome = OutcomeCancelled
			return res, errors.New(ctx.Err()).
				Component("pipeline").
				Category(errors.CategoryCancellation).
				Context("next_day", day).
				Build()
		}

		b.printf("\n[Day %d/%d] %s\n", dayNumber(days, day), len(days), day)
		startTime, endTime := day+"T00:00:00", day+"T23:59:59"
		b.printf("  Setting overrides: %s -> %s\n", startTime, endTime)

		res.Triggered = append(res.Triggered, day)
		dayCtx := context.WithoutCancel(ctx)
		outcome, run, err := b.runOnce(dayCtx, plan.PipelineID, WithDateOverrides(original, startTime, endTime), plan.Wait)
		res.Outcome = outcome

		switch {
		case err == nil && outcome == OutcomeCompleted:
			c := checkpoint.Counters{
				Received: run.TotalRecordsReceived,
				Created:  run.RecordsCreated,
				Updated:  run.RecordsUpdated,
				Failed:   run.RecordsFailed,
			}
			progress.MarkDay(day, c)
			res.Remaining = res.Remaining[1:]
			b.metrics.RecordPipelineDay(OutcomeCompleted.String())
			log.Info("day completed",
				logger.String("day", day),
				logger.Int64("received", c.Received),
				logger.Int64("created", c.Created),
				logger.Int64("updated", c.Updated),
				logger.Int64("failed", c.Failed))
			b.printf("  Done: %s received, %s created, %s updated, %s failed\n",
				commas(c.Received), commas(c.Created), commas(c.Updated), commas(c.Failed))
			if err := progress.Save(plan.ProgressFile); err != nil {
				return res, err
			}

		case err == nil && outcome == OutcomeFailed:
			b.metrics.RecordPipelineDay(OutcomeFailed.String())
			msg := "Unknown error"
			if run != nil && run.Errors != "" {
				msg = run.Errors
			}
			log.Error("day failed", logger.String("day", day), logger.String("errors", msg))
			_, _ = color.New(color.FgRed).Fprintf(b.out, "  FAILED: %s\n", msg)
			b.printf("  Stopping backfill. Resume with --resume to retry from this day.\n")
			b.saveQuietly(progress, plan.ProgressFile)
			return res, errors.Newf("pipeline run failed for %s: %s", day, msg).
				Component("pipeline").
				Category(errors.CategoryPipeline).
				Context("day", day).
				Build()

		case outcome == OutcomeTimedOut:
			b.metrics.RecordPipelineDay(OutcomeTimedOut.String())
			log.Error("day timed out", logger.String("day", day), logger.Duration("timeout", plan.Wait.Timeout))
			_, _ = color.New(color.FgRed).Fprintf(b.out, "  Timed out for %s. Stopping.\n", day)
			b.saveQuietly(progress, plan.ProgressFile)
			return res, err

		default:
			b.metrics.RecordPipelineDay("error")
			log.Error("day aborted", logger.String("day", day), logger.Error(err))
			b.saveQuietly(progress, plan.ProgressFile)
			return res, err
		}
	}
	return res, nil
}

func (b *Backfill) loadProgress(plan Plan) *checkpoint.Progress {
	if plan.Resume {
		p, _ := checkpoint.Load(plan.ProgressFile)
		if p != nil {
			b.printf("Resuming: %d days already completed\n", len(p.CompletedDays))
			if p.LastCompletedDate != nil {
				b.printf("  Last completed: %s\n", *p.LastCompletedDate)
			}
			return p
		}
		b.printf("No progress file found, starting fresh\n")
	}
	return checkpoint.New(plan.PipelineID, plan.Start, plan.End)
}

func (b *Backfill) saveQuietly(p *checkpoint.Progress, path string) {
	if err := p.Save(path); err != nil {
		b.log.Error("failed to save progress", logger.String("path", path), logger.Error(err))
	}
}

func (b *Backfill) printSummary(res *Result, plan Plan) {
	p := res.Progress
	rule := strings.Repeat("=", 60)
	b.printf("\n%s\n", rule)
	_, _ = color.New(color.Bold).Fprintln(b.out, "BACKFILL SUMMARY")
	b.printf("  Days completed: %d/%d\n", len(p.CompletedDays), res.TotalDays)
	b.printf("  Total records processed: %s\n", commas(p.TotalRecordsProcessed))
	b.printf("  Total created: %s\n", commas(p.TotalCreated))
	b.printf("  Total updated: %s\n", commas(p.TotalUpdated))
	b.printf("  Total failed: %s\n", commas(p.TotalFailed))
	if p.LastCompletedDate != nil {
		b.printf("  Last completed date: %s\n", *p.LastCompletedDate)
	}
	if n := len(res.Remaining); n > 0 {
		_, _ = color.New(color.FgYellow).Fprintf(b.out, "  Remaining: %d days (use --resume to continue)\n", n)
	}
	b.printf("  Progress file: %s\n", plan.ProgressFile)
	b.printf("%s\n", rule)
}

func dayNumber(days []string, day string) int {
	for i, d := range days {
		if d == day {
			return i + 1
		}
	}
	return 0
}
