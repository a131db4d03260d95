package migrate

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/omniaagent/crmsync/internal/app"
	"github.com/omniaagent/crmsync/internal/calls"
	"github.com/omniaagent/crmsync/internal/conf"
	"github.com/omniaagent/crmsync/internal/errors"
)

// windowLayouts are accepted for --start and --end, in the dialer zone.
var windowLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func callsCommand(ctx *app.Context) *cobra.Command {
	var start, end string

	cmd := &cobra.Command{
		Use:   "calls",
		Short: "Migrate dialer call logs in a time window",
		Long: `Calls copies the dialer call log between --start and --end (default: now)
into the CRM. Only calls with a real hang-up reason by a human agent are
migrated, and calls already in the CRM are skipped. Times are in
convoso.timezone.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCalls(cmd.Context(), ctx, start, end)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&start, "start", "", "Window start, YYYY-MM-DD or YYYY-MM-DD HH:MM:SS")
	flags.StringVar(&end, "end", "", "Window end, same formats (default: now)")
	flags.Bool("dry-run", false, "Build payloads and count without writing to the CRM")
	_ = cmd.MarkFlagRequired("start")
	conf.BindFlag(flags, "dry-run", "migrate.dryrun")

	return cmd
}

func runCalls(ctx context.Context, c *app.Context, start, end string) error {
	a, err := c.Open()
	if err != nil {
		return err
	}
	defer func() { _ = a.Close(ctx) }()

	from, to, err := parseWindow(start, end, time.Now(), a.DialerLocation())
	if err != nil {
		return err
	}

	dryRun := c.Settings.Migrate.DryRun
	d, err := a.CallDriver(ctx, from, dryRun)
	if err != nil {
		return err
	}
	_, err = d.Run(ctx, calls.Options{Start: from, End: to, DryRun: dryRun})
	return err
}

// parseWindow reads the call window in loc. An empty end means now.
func parseWindow(start, end string, now time.Time, loc *time.Location) (time.Time, time.Time, error) {
	from, err := parseWindowTime(start, loc)
	if err != nil {
		return time.Time{}, time.Time{}, windowErr("invalid --start %q", start)
	}
	to := now.In(loc)
	if end != "" {
		if to, err = parseWindowTime(end, loc); err != nil {
			return time.Time{}, time.Time{}, windowErr("invalid --end %q", end)
		}
	}
	if !to.After(from) {
		return time.Time{}, time.Time{}, windowErr("--end must be after --start")
	}
	return from, to, nil
}

func parseWindowTime(s string, loc *time.Location) (time.Time, error) {
	var err error
	for _, layout := range windowLayouts {
		var t time.Time
		if t, err = time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, err
}

func windowErr(format string, args ...any) error {
	return errors.Newf(format, args...).
		Component("cli").
		Category(errors.CategoryValidation).
		Build()
}
