package calls

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"

	"github.com/omniaagent/crmsync/internal/dedup"
	"github.com/omniaagent/crmsync/internal/errors"
	"github.com/omniaagent/crmsync/internal/ledger"
	"github.com/omniaagent/crmsync/internal/logger"
	"github.com/omniaagent/crmsync/internal/observability/metrics"
	"github.com/omniaagent/crmsync/internal/payload"
	"github.com/omniaagent/crmsync/internal/report"
	"github.com/omniaagent/crmsync/internal/source"
)

const maxFailureReports = 20

// Walker yields call logs in a time window.
type Walker interface {
	Walk(ctx context.Context, start, end time.Time, fn func(source.Record) error) error
}

// Builder turns a call log into a createCall payload.
type Builder interface {
	Build(ctx context.Context, rec source.Record) (payload.CallInput, bool)
}

// Creator writes Call records.
type Creator interface {
	CreateCall(ctx context.Context, in payload.CallInput) (string, error)
}

// Options select the window and mode of a run.
type Options struct {
	Start  time.Time
	End    time.Time
	DryRun bool
}

// Stats are the counters of one run.
type Stats struct {
	Fetched  int
	Eligible int
	Existing int
	Created  int
	Skipped  int
	Failed   int
	Failures []string
}

// Driver copies new call logs into the CRM.
type Driver struct {
	walker  Walker
	builder Builder
	creator Creator
	guard   dedup.Guard
	ledger  ledger.Recorder
	metrics metrics.Recorder
	out     io.Writer
	log     logger.Logger
}

type DriverOption func(*Driver)

func WithOutput(w io.Writer) DriverOption {
	return func(d *Driver) { d.out = w }
}

func WithLedger(r ledger.Recorder) DriverOption {
	return func(d *Driver) {
		if r != nil {
			d.ledger = r
		}
	}
}

func WithMetrics(r metrics.Recorder) DriverOption {
	return func(d *Driver) { d.metrics = metrics.OrNop(r) }
}

func WithLogger(l logger.Logger) DriverOption {
	return func(d *Driver) {
		if l != nil {
			d.log = l
		}
	}
}

// NewDriver wires a driver. guard should be preloaded with the call IDs
// already in the CRM for the same window.
func NewDriver(w Walker, b Builder, c Creator, guard dedup.Guard, opts ...DriverOption) *Driver {
	d := &Driver{
		walker:  w,
		builder: b,
		creator: c,
		guard:   guard,
		ledger:  ledger.Nop{},
		metrics: metrics.Nop{},
		out:     os.Stdout,
		log:     GetLogger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func callID(rec source.Record) string {
	if id := rec.Trimmed("id"); id != "" && id != "null" {
		return id
	}
	return rec.Trimmed("uniqueid")
}

// Run fetches the window, drops unfinished, system and already synced
// calls, and creates the rest.
func (d *Driver) Run(ctx context.Context, opts Options) (*Stats, error) {
	stats := &Stats{}
	log := d.log.With(
		logger.Time("start", opts.Start),
		logger.Time("end", opts.End),
		logger.Bool("dry_run", opts.DryRun))

	var fetched []source.Record
	err := d.walker.Walk(ctx, opts.Start, opts.End, func(rec source.Record) error {
		fetched = append(fetched, rec)
		return nil
	})
	stats.Fetched = len(fetched)
	if err != nil {
		return stats, err
	}

	fresh := make([]source.Record, 0, len(fetched))
	for _, rec := range fetched {
		if !Eligible(rec) {
			continue
		}
		stats.Eligible++
		id := callID(rec)
		seen, err := d.guard.Seen(ctx, id)
		if err != nil {
			d.fail(ctx, stats, id, err)
			continue
		}
		if seen {
			stats.Existing++
			d.outcome(ctx, id, ledger.OutcomeSkipped, "already synced")
			continue
		}
		fresh = append(fresh, rec)
	}
	log.Info("call window scanned",
		logger.Int("fetched", stats.Fetched),
		logger.Int("eligible", stats.Eligible),
		logger.Int("new", len(fresh)),
		logger.Int("already_synced", stats.Existing))

	bar := report.NewBar(d.out, int64(len(fresh)), "calls")

	for _, rec := range fresh {
		if err := ctx.Err(); err != nil {
			log.Warn("call migration interrupted", logger.Int("created", stats.Created))
			_ = bar.Finish()
			d.printSummary(stats, opts.DryRun)
			return stats, errors.New(err).
				Component("calls").
				Category(errors.CategoryCancellation).
				Build()
		}
		d.one(ctx, stats, rec, opts.DryRun)
		_ = bar.Add(1)
	}

	_ = bar.Finish()
	d.printSummary(stats, opts.DryRun)
	log.Info("call migration finished",
		logger.Int("created", stats.Created),
		logger.Int("skipped", stats.Skipped),
		logger.Int("failed", stats.Failed))
	return stats, nil
}

func (d *Driver) one(ctx context.Context, stats *Stats, rec source.Record, dryRun bool) {
	id := callID(rec)
	in, ok := d.builder.Build(ctx, rec)
	if !ok {
		stats.Skipped++
		d.outcome(ctx, id, ledger.OutcomeSkipped, "not importable")
		return
	}
	if in.ConvosoCallID != "" {
		id = in.ConvosoCallID
	}

	if dryRun {
		stats.Created++
		d.guard.Mark(id)
		d.outcome(ctx, id, ledger.OutcomeDryRun, in.Name)
		return
	}

	started := time.Now()
	_, err := d.creator.CreateCall(ctx, in)
	d.metrics.ObserveWrite(time.Since(started), err)
	if err != nil {
		d.fail(ctx, stats, id, err)
		return
	}
	d.guard.Mark(id)
	stats.Created++
	d.outcome(ctx, id, ledger.OutcomeCreated, "")
}

func (d *Driver) fail(ctx context.Context, stats *Stats, id string, err error) {
	stats.Failed++
	if len(stats.Failures) < maxFailureReports {
		stats.Failures = append(stats.Failures, fmt.Sprintf("call %s: %v", id, err))
	}
	d.log.Warn("call not migrated", logger.String("call_id", id), logger.Error(err))
	d.outcome(ctx, id, ledger.OutcomeFailed, err.Error())
}

func (d *Driver) outcome(ctx context.Context, id, outcome, message string) {
	d.metrics.RecordOutcome(ledger.KindCall, outcome)
	if err := d.ledger.Record(ctx, ledger.KindCall, id, outcome, message); err != nil {
		d.log.Debug("ledger write failed", logger.String("call_id", id), logger.Error(err))
	}
}

func (d *Driver) printSummary(stats *Stats, dryRun bool) {
	title := "CALL MIGRATION SUMMARY"
	if dryRun {
		title += " (dry run)"
	}
	report.Summary(d.out, title, []report.Line{
		{Label: "Fetched", Value: stats.Fetched},
		{Label: "Eligible", Value: stats.Eligible},
		{Label: "Already synced", Value: stats.Existing},
		{Label: "Created", Value: stats.Created, Color: color.FgGreen},
		{Label: "Skipped", Value: stats.Skipped, Color: color.FgYellow},
		{Label: "Failed", Value: stats.Failed, Color: color.FgRed},
	})
	report.Failures(d.out, stats.Failures, stats.Failed, maxFailureReports)
}
