// Package migrate copies legacy policies into the CRM, one record at a time,
// resolving each policy's person and relations along the way.
package migrate

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	"github.com/omniaagent/crmsync/internal/dedup"
	"github.com/omniaagent/crmsync/internal/errors"
	"github.com/omniaagent/crmsync/internal/ledger"
	"github.com/omniaagent/crmsync/internal/logger"
	"github.com/omniaagent/crmsync/internal/observability/metrics"
	"github.com/omniaagent/crmsync/internal/payload"
	"github.com/omniaagent/crmsync/internal/person"
	"github.com/omniaagent/crmsync/internal/report"
	"github.com/omniaagent/crmsync/internal/source"
)

// MaxFailureReports caps the failures and the unmatched records kept in
// Stats.
const MaxFailureReports = 20

// Pager walks the legacy listing. *source.Paginator implements it; start
// page and target date are part of its configuration.
type Pager interface {
	Walk(ctx context.Context, fn func(*source.Page) error) error
}

// People resolves a normalized phone to a person ID.
type People interface {
	Resolve(ctx context.Context, phone string) (string, bool)
}

// Synthesizer creates a missing person from the policy record.
type Synthesizer interface {
	Synthesize(ctx context.Context, rec source.Record, phone string) (string, error)
}

// Builder maps a record to a createPolicy payload.
type Builder interface {
	Build(ctx context.Context, rec source.Record, personID string) payload.PolicyInput
}

// Creator writes Policy records.
type Creator interface {
	CreatePolicy(ctx context.Context, in payload.PolicyInput) (string, error)
}

// Options select the mode of a run.
type Options struct {
	// Sample stops the run once created+failed reaches it. Zero means all.
	Sample int
	DryRun bool
	// Synthesize creates people that the CRM does not know yet.
	Synthesize bool
}

// Failure names one record that was not migrated and why.
type Failure struct {
	ExternalID string
	Message    string
}

// Stats are the counters of one run.
type Stats struct {
	Pages    int
	Created  int
	Skipped  int
	Failed   int
	NoPerson int
	Failures []Failure
	// Unmatched names the records counted in NoPerson.
	Unmatched []Failure
}

// Driver runs the policy migration.
type Driver struct {
	pager       Pager
	guard       dedup.Guard
	people      People
	synthesizer Synthesizer
	builder     Builder
	creator     Creator

	ledger  ledger.Recorder
	metrics metrics.Recorder
	out     io.Writer
	log     logger.Logger
}

// Deps are the collaborators of a Driver. Synthesizer may be nil when
// Options.Synthesize is never set.
type Deps struct {
	Pager       Pager
	Guard       dedup.Guard
	People      People
	Synthesizer Synthesizer
	Builder     Builder
	Creator     Creator
}

type Option func(*Driver)

func WithOutput(w io.Writer) Option {
	return func(d *Driver) { d.out = w }
}

func WithLedger(r ledger.Recorder) Option {
	return func(d *Driver) {
		if r != nil {
			d.ledger = r
		}
	}
}

func WithMetrics(r metrics.Recorder) Option {
	return func(d *Driver) { d.metrics = metrics.OrNop(r) }
}

func WithLogger(l logger.Logger) Option {
	return func(d *Driver) {
		if l != nil {
			d.log = l
		}
	}
}

func NewDriver(deps Deps, opts ...Option) *Driver {
	d := &Driver{
		pager:       deps.Pager,
		guard:       deps.Guard,
		people:      deps.People,
		synthesizer: deps.Synthesizer,
		builder:     deps.Builder,
		creator:     deps.Creator,
		ledger:      ledger.Nop{},
		metrics:     metrics.Nop{},
		out:         os.Stdout,
		log:         GetLogger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run walks the listing and migrates every record not yet in the CRM.
// Per-record failures are counted and the run continues; a page that fails
// to load or a cancelled ctx ends it.
func (d *Driver) Run(ctx context.Context, opts Options) (*Stats, error) {
	stats := &Stats{}
	log := d.log.With(
		logger.Bool("dry_run", opts.DryRun),
		logger.Bool("synthesize", opts.Synthesize),
		logger.Int("sample", opts.Sample))
	log.Info("policy migration started")

	bar := report.NewBar(d.out, -1, "policies")
	started := time.Now()

	err := d.pager.Walk(ctx, func(page *source.Page) error {
		stats.Pages++
		for _, rec := range page.Records {
			if err := ctx.Err(); err != nil {
				return errors.New(err).
					Component("migrate").
					Category(errors.CategoryCancellation).
					Context("page", page.Number).
					Build()
			}
			d.one(ctx, stats, rec, opts)
			if opts.Sample > 0 && stats.Created+stats.Failed >= opts.Sample {
				log.Info("sample limit reached", logger.Int("page", page.Number))
				return source.ErrStop
			}
		}
		d.pageDone(bar, page, stats)
		return nil
	})
	_ = bar.Finish()

	d.printSummary(stats, opts, time.Since(started))
	log.Info("policy migration finished",
		logger.Int("pages", stats.Pages),
		logger.Int("created", stats.Created),
		logger.Int("skipped", stats.Skipped),
		logger.Int("failed", stats.Failed),
		logger.Int("no_person", stats.NoPerson),
		logger.Duration("elapsed", time.Since(started)))
	return stats, err
}

func (d *Driver) pageDone(bar *progressbar.ProgressBar, page *source.Page, stats *Stats) {
	if page.TotalPages > 0 {
		bar.ChangeMax(page.TotalPages)
	}
	_ = bar.Set(page.Number)
	d.log.Debug("page processed",
		logger.Int("page", page.Number),
		logger.Int("total_pages", page.TotalPages),
		logger.Int("records", len(page.Records)),
		logger.Int("created", stats.Created),
		logger.Int("skipped", stats.Skipped),
		logger.Int("failed", stats.Failed))
}

func (d *Driver) one(ctx context.Context, stats *Stats, rec source.Record, opts Options) {
	externalID := rec.Trimmed("policy_id")
	if externalID == "" {
		return
	}

	seen, err := d.guard.Seen(ctx, externalID)
	if err != nil {
		d.fail(ctx, stats, externalID, err)
		return
	}
	if seen {
		stats.Skipped++
		d.outcome(ctx, externalID, ledger.OutcomeSkipped, "already migrated")
		return
	}

	phone, ok := person.NormalizePhone(rec.Get("phone"))
	if !ok {
		d.unmatched(ctx, stats, externalID, ledger.OutcomeNoPerson, "no phone")
		return
	}

	personID, found := d.people.Resolve(ctx, phone)
	if !found {
		switch {
		case opts.DryRun:
			// counted both ways: the person is missing, the policy would be created
			stats.Created++
			d.unmatched(ctx, stats, externalID, ledger.OutcomeDryRun, "person missing")
			return
		case !opts.Synthesize || d.synthesizer == nil:
			d.unmatched(ctx, stats, externalID, ledger.OutcomeNoPerson, "no person for phone")
			return
		}
		personID, err = d.synthesizer.Synthesize(ctx, rec, phone)
		if err != nil {
			d.log.Warn("person synthesis failed", logger.String("policy_id", externalID), logger.Error(err))
			d.unmatched(ctx, stats, externalID, ledger.OutcomeNoPerson, "person synthesis failed: "+err.Error())
			return
		}
	}

	in := d.builder.Build(ctx, rec, personID)
	if opts.DryRun {
		stats.Created++
		d.log.Debug("would create policy", logger.String("policy_id", externalID), logger.String("name", in.Name))
		d.outcome(ctx, externalID, ledger.OutcomeDryRun, in.Name)
		return
	}

	started := time.Now()
	_, err = d.creator.CreatePolicy(ctx, in)
	d.metrics.ObserveWrite(time.Since(started), err)
	if err != nil {
		d.fail(ctx, stats, externalID, err)
		return
	}
	d.guard.Mark(externalID)
	stats.Created++
	d.outcome(ctx, externalID, ledger.OutcomeCreated, "")
}

func (d *Driver) fail(ctx context.Context, stats *Stats, externalID string, err error) {
	stats.Failed++
	if len(stats.Failures) < MaxFailureReports {
		stats.Failures = append(stats.Failures, Failure{ExternalID: externalID, Message: err.Error()})
	}
	d.log.Warn("policy not migrated", logger.String("policy_id", externalID), logger.Error(err))
	d.outcome(ctx, externalID, ledger.OutcomeFailed, err.Error())
}

func (d *Driver) unmatched(ctx context.Context, stats *Stats, externalID, outcome, reason string) {
	stats.NoPerson++
	if len(stats.Unmatched) < MaxFailureReports {
		stats.Unmatched = append(stats.Unmatched, Failure{ExternalID: externalID, Message: reason})
	}
	d.log.Debug("policy has no person", logger.String("policy_id", externalID), logger.String("reason", reason))
	d.outcome(ctx, externalID, outcome, reason)
}

func (d *Driver) outcome(ctx context.Context, externalID, outcome, message string) {
	d.metrics.RecordOutcome(ledger.KindPolicy, outcome)
	if err := d.ledger.Record(ctx, ledger.KindPolicy, externalID, outcome, message); err != nil {
		d.log.Debug("ledger write failed", logger.String("policy_id", externalID), logger.Error(err))
	}
}

func (d *Driver) printSummary(stats *Stats, opts Options, elapsed time.Duration) {
	title := "MIGRATION SUMMARY"
	if opts.DryRun {
		title += " (dry run)"
	}
	report.Summary(d.out, title, []report.Line{
		{Label: "Pages", Value: stats.Pages},
		{Label: "Created", Value: stats.Created, Color: color.FgGreen},
		{Label: "Skipped", Value: stats.Skipped, Color: color.FgYellow},
		{Label: "No person", Value: stats.NoPerson, Color: color.FgYellow},
		{Label: "Failed", Value: stats.Failed, Color: color.FgRed},
	})
	report.Named(d.out, "Unmatched", color.FgYellow, describe(stats.Unmatched), stats.NoPerson, MaxFailureReports)
	report.Failures(d.out, describe(stats.Failures), stats.Failed, MaxFailureReports)
	_, _ = io.WriteString(d.out, "  Elapsed: "+elapsed.Round(time.Second).String()+"\n")
}

func describe(failures []Failure) []string {
	lines := make([]string, 0, len(failures))
	for _, f := range failures {
		lines = append(lines, "policy "+f.ExternalID+": "+f.Message)
	}
	return lines
}
