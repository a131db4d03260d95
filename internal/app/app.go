// Package app builds the collaborators of a crmsync run from Settings: the
// HTTP clients, the CRM and pipeline GraphQL clients, metrics, the outcome
// ledger and the migration drivers assembled from them.
package app

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/omniaagent/crmsync/internal/buildinfo"
	"github.com/omniaagent/crmsync/internal/calls"
	"github.com/omniaagent/crmsync/internal/conf"
	"github.com/omniaagent/crmsync/internal/crm"
	"github.com/omniaagent/crmsync/internal/dedup"
	"github.com/omniaagent/crmsync/internal/errors"
	"github.com/omniaagent/crmsync/internal/graphql"
	"github.com/omniaagent/crmsync/internal/httpclient"
	"github.com/omniaagent/crmsync/internal/identity"
	"github.com/omniaagent/crmsync/internal/ledger"
	"github.com/omniaagent/crmsync/internal/logger"
	"github.com/omniaagent/crmsync/internal/migrate"
	"github.com/omniaagent/crmsync/internal/observability"
	"github.com/omniaagent/crmsync/internal/observability/metrics"
	"github.com/omniaagent/crmsync/internal/person"
	"github.com/omniaagent/crmsync/internal/pipeline"
	"github.com/omniaagent/crmsync/internal/source"
	"github.com/omniaagent/crmsync/internal/transform"
)

const (
	userAgent    = "crmsync"
	sentryFlush  = 2 * time.Second
	closeTimeout = 15 * time.Second
)

var errNotLoaded = errors.Newf("settings not loaded").
	Component("app").
	Category(errors.CategoryConfiguration).
	Build()

// App owns everything a command needs for one process.
type App struct {
	Settings *conf.Settings
	Build    *buildinfo.Context
	Metrics  *observability.Metrics
	Ledger   ledger.Recorder
	CRM      *crm.Client
	Pipeline *pipeline.Client

	// crmHTTP carries the CRM bearer token; webHTTP is used for the
	// legacy listing and the dialer API, which authenticate differently.
	crmHTTP *httpclient.Client
	webHTTP *httpclient.Client

	out io.Writer
	log logger.Logger
}

// Option customizes New.
type Option func(*App)

// WithOutput redirects progress bars and summaries.
func WithOutput(w io.Writer) Option {
	return func(a *App) { a.out = w }
}

// New wires the clients described by settings. The caller must Close the
// returned App.
func New(settings *conf.Settings, build *buildinfo.Context, opts ...Option) (*App, error) {
	a := &App{
		Settings: settings,
		Build:    build,
		out:      os.Stdout,
		log:      GetLogger().With(logger.String("run_id", build.RunID())),
	}
	for _, opt := range opts {
		opt(a)
	}

	m, err := observability.NewMetrics()
	if err != nil {
		return nil, errors.New(err).
			Component("app").
			Category(errors.CategoryConfiguration).
			Context("operation", "metrics").
			Build()
	}
	a.Metrics = m

	rec, err := ledger.Open(ledger.Config{
		Enabled: settings.Ledger.Enabled,
		Driver:  settings.Ledger.Driver,
		DSN:     settings.Ledger.DSN,
	}, build.RunID(), nil)
	if err != nil {
		return nil, err
	}
	a.Ledger = rec

	a.crmHTTP = httpclient.New(&httpclient.Config{
		DefaultTimeout: settings.CRM.Timeout,
		UserAgent:      userAgent + "/" + build.Version(),
		BearerToken:    settings.CRM.Token,
	})
	a.webHTTP = httpclient.New(&httpclient.Config{
		DefaultTimeout: settings.Source.Timeout,
		UserAgent:      userAgent + "/" + build.Version(),
	})
	if settings.Debug {
		a.crmHTTP.LogRequests(GetLogger().Module("http"))
		a.webHTTP.LogRequests(GetLogger().Module("http"))
	}

	gql := graphql.NewClient(a.crmHTTP, settings.GraphQLEndpoint(),
		graphql.WithWriteInterval(settings.CRM.WriteInterval),
		graphql.WithWriteObserver(m.Migration.ObserveWrite))
	a.CRM = crm.New(gql, nil)

	meta := graphql.NewClient(a.crmHTTP, settings.MetadataEndpoint(), graphql.WithWriteInterval(0))
	a.Pipeline = pipeline.NewClient(meta)

	return a, nil
}

// Recorder is the metrics sink handed to drivers.
func (a *App) Recorder() metrics.Recorder {
	return a.Metrics.Migration
}

// Out is where drivers print progress and summaries.
func (a *App) Out() io.Writer {
	return a.out
}

// IdentitySet returns fresh per-run caches over the CRM.
func (a *App) IdentitySet(dryRun bool) *identity.Set {
	return identity.NewSet(a.CRM, identity.SetOptions{
		DryRun:   dryRun,
		Observer: a.Metrics.Migration.RecordLookup,
	})
}

// Paginator walks the legacy listing from startPage. A non-empty
// targetDate keeps only that registration day.
func (a *App) Paginator(startPage int, targetDate string) *source.Paginator {
	return source.NewPaginator(a.webHTTP, source.Config{
		BaseURL:    a.Settings.Source.URL,
		Path:       a.Settings.Source.Path,
		PerPage:    a.Settings.Source.PerPage,
		StartPage:  startPage,
		TargetDate: targetDate,
	}, nil)
}

// PolicyRun selects how a policy driver is assembled.
type PolicyRun struct {
	StartPage  int
	TargetDate string
	DryRun     bool
	// PerRecord checks the CRM for every record instead of preloading all
	// external IDs. Daily runs touch few records, full runs touch all.
	PerRecord bool
}

// PolicyDriver assembles the policy migration. A preloaded guard is filled
// here, so this blocks for the duration of the ID listing.
func (a *App) PolicyDriver(ctx context.Context, run PolicyRun) (*migrate.Driver, error) {
	var guard dedup.Guard
	if run.PerRecord {
		guard = dedup.NewPerRecord(a.CRM.PolicyExists)
	} else {
		pageSize := a.Settings.CRM.PageSize
		loaded, err := dedup.Load(ctx, func(ctx context.Context, fn func(string)) error {
			return a.CRM.ListPolicyExternalIDs(ctx, pageSize, fn)
		}, nil)
		if err != nil {
			return nil, err
		}
		guard = loaded
	}

	ids := a.IdentitySet(run.DryRun)
	deps := migrate.Deps{
		Pager:       a.Paginator(run.StartPage, run.TargetDate),
		Guard:       guard,
		People:      ids.People,
		Synthesizer: person.NewSynthesizer(a.CRM, ids, nil),
		Builder:     transform.NewPolicyBuilder(ids, nil),
		Creator:     a.CRM,
	}
	return migrate.NewDriver(deps,
		migrate.WithOutput(a.out),
		migrate.WithLedger(a.Ledger),
		migrate.WithMetrics(a.Recorder()),
		migrate.WithLogger(migrate.GetLogger().With(logger.String("run_id", a.Build.RunID()))),
	), nil
}

// DialerLocation is the zone of dialer timestamps.
func (a *App) DialerLocation() *time.Location {
	loc, err := conf.Location(a.Settings.Convoso.Timezone)
	if err != nil {
		return calls.DialerLocation()
	}
	return loc
}

// CallDriver assembles the call migration for calls at or after since. It
// loads billing rules and the call IDs already present.
func (a *App) CallDriver(ctx context.Context, since time.Time, dryRun bool) (*calls.Driver, error) {
	rules, err := a.CRM.BillingRules(ctx)
	if err != nil {
		return nil, err
	}
	pageSize := a.Settings.CRM.PageSize
	guard, err := dedup.Load(ctx, func(ctx context.Context, fn func(string)) error {
		return a.CRM.ListCallIDsSince(ctx, since, pageSize, fn)
	}, nil)
	if err != nil {
		return nil, err
	}

	cfg := calls.Config{
		BaseURL: a.Settings.Convoso.URL,
		Token:   a.Settings.Convoso.Token,
		TTL:     a.Settings.Convoso.NameTTL,
	}
	loc := a.DialerLocation()
	builder := transform.NewCallBuilder(a.IdentitySet(dryRun),
		calls.NewListResolver(a.webHTTP, cfg, nil), rules,
		transform.WithUserNames(calls.NewUserResolver(a.webHTTP, cfg, nil)),
		transform.WithLocation(loc))

	return calls.NewDriver(calls.NewSource(a.webHTTP, cfg, loc, nil), builder, a.CRM, guard,
		calls.WithOutput(a.out),
		calls.WithLedger(a.Ledger),
		calls.WithMetrics(a.Recorder()),
	), nil
}

func (a *App) pipelineOptions() []pipeline.Option {
	return []pipeline.Option{
		pipeline.WithOutput(a.out),
		pipeline.WithMetrics(a.Recorder()),
		pipeline.WithLogger(pipeline.GetLogger().With(logger.String("run_id", a.Build.RunID()))),
	}
}

// Backfill returns the per-day pipeline backfill controller.
func (a *App) Backfill() *pipeline.Backfill {
	return pipeline.NewBackfill(a.Pipeline, a.pipelineOptions()...)
}

// Lookback returns the single-run lookback controller.
func (a *App) Lookback() *pipeline.Lookback {
	return pipeline.NewLookback(a.Pipeline, a.pipelineOptions()...)
}

// WaitConfig is the poll configuration from settings, with timeout
// overriding pipeline.timeout when positive.
func (a *App) WaitConfig(timeout time.Duration) pipeline.WaitConfig {
	w := pipeline.WaitConfig{
		Interval: a.Settings.Pipeline.PollInterval,
		Timeout:  a.Settings.Pipeline.Timeout,
	}
	if timeout > 0 {
		w.Timeout = timeout
	}
	return w
}

// Close pushes metrics when a Pushgateway is configured, closes the ledger
// and the HTTP pools, and flushes Sentry. It runs after cancellation, so it
// uses its own deadline.
func (a *App) Close(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
	defer cancel()

	var errs []error
	if err := a.Metrics.Push(ctx, a.Settings.Metrics.PushURL, a.Build.RunID()); err != nil {
		a.log.Warn("metrics push failed", logger.Error(err))
		errs = append(errs, err)
	}
	if err := a.Ledger.Close(); err != nil {
		errs = append(errs, err)
	}
	a.crmHTTP.Close()
	a.webHTTP.Close()
	errors.FlushSentry(sentryFlush)
	return errors.Join(errs...)
}
