// Package backfill provides the backfill command
package backfill

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/omniaagent/crmsync/internal/app"
	"github.com/omniaagent/crmsync/internal/conf"
	"github.com/omniaagent/crmsync/internal/pipeline"
)

type options struct {
	date    string
	start   string
	end     string
	resume  bool
	dryRun  bool
	timeout int
}

// Command creates and returns the backfill command
func Command(ctx *app.Context) *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Re-run the ingestion pipeline one day at a time",
		Long: `Backfill points the CRM ingestion pipeline at one day, triggers it, waits for
the run to finish and moves on to the next day. The end date is exclusive.
Completed days are written to the progress file so an interrupted backfill
can continue with --resume. The pipeline's own date range is restored on
every exit.`,
		Example: `  crmsync backfill --date 2026-10-01
  crmsync backfill --start 2026-09-01 --end 2026-10-01 --resume`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBackfill(cmd.Context(), ctx, opts)
		},
	}

	setupFlags(cmd, &opts)
	return cmd
}

func setupFlags(cmd *cobra.Command, opts *options) {
	flags := cmd.Flags()
	flags.StringVar(&opts.date, "date", "", "Single day to backfill, YYYY-MM-DD")
	flags.StringVar(&opts.start, "start", "", "First day, YYYY-MM-DD")
	flags.StringVar(&opts.end, "end", "", "Day after the last one, YYYY-MM-DD (default: today)")
	flags.BoolVar(&opts.resume, "resume", false, "Skip days already recorded in the progress file")
	flags.BoolVar(&opts.dryRun, "dry-run", false, "Print the plan without touching the pipeline")
	flags.IntVar(&opts.timeout, "timeout", 0, "Seconds to wait for each day (default: pipeline.timeout)")
	flags.String("pipeline", "", "Ingestion pipeline ID (default: pipeline.id)")
	flags.String("progress-file", "", "Progress file path (default: pipeline.progressfile)")

	cmd.MarkFlagsMutuallyExclusive("date", "start")
	cmd.MarkFlagsMutuallyExclusive("date", "end")
	conf.BindFlag(flags, "pipeline", "pipeline.id")
	conf.BindFlag(flags, "progress-file", "pipeline.progressfile")
}

func runBackfill(ctx context.Context, c *app.Context, opts options) error {
	s := c.Settings
	loc, err := conf.Location(s.Migrate.Timezone)
	if err != nil {
		return err
	}
	start, end, err := pipeline.ResolveRange(opts.date, opts.start, opts.end, time.Now().In(loc))
	if err != nil {
		return err
	}

	a, err := c.Open()
	if err != nil {
		return err
	}
	defer func() { _ = a.Close(ctx) }()

	_, err = a.Backfill().Run(ctx, pipeline.Plan{
		PipelineID:   s.Pipeline.ID,
		Start:        start,
		End:          end,
		Resume:       opts.resume,
		DryRun:       opts.dryRun,
		ProgressFile: s.Pipeline.ProgressFile,
		Wait:         a.WaitConfig(time.Duration(opts.timeout) * time.Second),
	})
	return err
}
