// Package lookback provides the lookback command
package lookback

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/omniaagent/crmsync/internal/app"
	"github.com/omniaagent/crmsync/internal/conf"
	"github.com/omniaagent/crmsync/internal/errors"
	"github.com/omniaagent/crmsync/internal/pipeline"
)

// Command creates and returns the lookback command
func Command(ctx *app.Context) *cobra.Command {
	var (
		start   string
		buffer  int
		timeout int
	)

	cmd := &cobra.Command{
		Use:   "lookback",
		Short: "Re-pull everything since a day in one pipeline run",
		Long: `Lookback sets the ingestion pipeline's lookback window to cover everything
since --start plus a buffer, triggers one run and waits for it. The original
pipeline configuration is restored afterwards.`,
		Example: "  crmsync lookback --start 2026-10-01 --buffer 240",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLookback(cmd.Context(), ctx, start, buffer, timeout)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&start, "start", "", "First day to re-pull, YYYY-MM-DD")
	flags.IntVar(&buffer, "buffer", 0, "Extra minutes added to the window (default: pipeline.lookbackbuffer)")
	flags.IntVar(&timeout, "timeout", 0, "Seconds to wait for the run (default: pipeline.timeout)")
	flags.String("pipeline", "", "Ingestion pipeline ID (default: pipeline.id)")
	_ = cmd.MarkFlagRequired("start")
	conf.BindFlag(flags, "pipeline", "pipeline.id")

	return cmd
}

func runLookback(ctx context.Context, c *app.Context, start string, buffer, timeout int) error {
	s := c.Settings
	loc, err := conf.Location(s.Migrate.Timezone)
	if err != nil {
		return err
	}
	from, err := time.ParseInLocation(pipeline.DayLayout, start, loc)
	if err != nil {
		return errors.Newf("invalid --start %q, want YYYY-MM-DD", start).
			Component("cli").
			Category(errors.CategoryValidation).
			Build()
	}

	a, err := c.Open()
	if err != nil {
		return err
	}
	defer func() { _ = a.Close(ctx) }()

	buf := s.Pipeline.LookbackBuffer
	if buffer > 0 {
		buf = time.Duration(buffer) * time.Minute
	}
	_, err = a.Lookback().Run(ctx, pipeline.LookbackPlan{
		PipelineID: s.Pipeline.ID,
		Start:      from,
		Buffer:     buf,
		Wait:       a.WaitConfig(time.Duration(timeout) * time.Second),
	})
	return err
}
