package migrate

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/omniaagent/crmsync/internal/app"
	"github.com/omniaagent/crmsync/internal/conf"
	"github.com/omniaagent/crmsync/internal/errors"
	"github.com/omniaagent/crmsync/internal/logger"
	"github.com/omniaagent/crmsync/internal/migrate"
	"github.com/omniaagent/crmsync/internal/pipeline"
)

func todayCommand(ctx *app.Context) *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "today",
		Short: "Migrate the policies registered on one day",
		Long: `Today migrates the policies registered on --date, by default the current
day in migrate.timezone. Each record is checked against the CRM before it is
written, and people missing from the CRM are created from the record.

With --schedule the run repeats on a cron schedule until interrupted, and
metrics are served on metrics.listen when set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runToday(cmd.Context(), ctx, date)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&date, "date", "", "Registration day to migrate, YYYY-MM-DD (default: today)")
	flags.Bool("dry-run", false, "Resolve and count without writing to the CRM")
	flags.String("schedule", "", `Cron spec to repeat the run, e.g. "*/30 * * * *"`)
	conf.BindFlag(flags, "dry-run", "migrate.dryrun")
	conf.BindFlag(flags, "schedule", "migrate.schedule")

	return cmd
}

func runToday(ctx context.Context, c *app.Context, date string) error {
	s := c.Settings.Migrate
	loc, err := conf.Location(s.Timezone)
	if err != nil {
		return err
	}
	if date != "" {
		if _, err := time.Parse(pipeline.DayLayout, date); err != nil {
			return errors.Newf("invalid --date %q, want YYYY-MM-DD", date).
				Component("cli").
				Category(errors.CategoryValidation).
				Build()
		}
	}

	a, err := c.Open()
	if err != nil {
		return err
	}
	defer func() { _ = a.Close(ctx) }()

	once := func(ctx context.Context) error {
		day := date
		if day == "" {
			day = time.Now().In(loc).Format(pipeline.DayLayout)
		}
		d, err := a.PolicyDriver(ctx, app.PolicyRun{
			StartPage:  1,
			TargetDate: day,
			DryRun:     s.DryRun,
			PerRecord:  true,
		})
		if err != nil {
			return err
		}
		_, err = d.Run(ctx, migrate.Options{
			DryRun:     s.DryRun,
			Synthesize: s.Synthesize,
		})
		return err
	}

	if s.Schedule == "" {
		return once(ctx)
	}
	return schedule(ctx, a, s.Schedule, loc, once)
}

// schedule runs job on spec until ctx is done. A run still in progress
// when the next tick fires is not overlapped.
func schedule(ctx context.Context, a *app.App, spec string, loc *time.Location, job func(context.Context) error) error {
	log := GetLogger()
	cl := cronLogger{log: log}

	scheduler := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := scheduler.AddFunc(spec, func() {
		if err := job(ctx); err != nil {
			log.Error("scheduled migration failed", logger.Error(err))
		}
	}); err != nil {
		return errors.New(fmt.Errorf("invalid schedule %q: %w", spec, err)).
			Component("cli").
			Category(errors.CategoryConfiguration).
			Build()
	}

	g, gctx := errgroup.WithContext(ctx)
	if listen := a.Settings.Metrics.Listen; listen != "" {
		g.Go(func() error { return a.Metrics.Serve(gctx, listen) })
	}
	g.Go(func() error {
		scheduler.Start()
		log.Info("migration scheduled", logger.String("schedule", spec), logger.String("timezone", loc.String()))
		<-gctx.Done()
		<-scheduler.Stop().Done()
		log.Info("scheduler stopped")
		return nil
	})
	return g.Wait()
}
