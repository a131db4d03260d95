// Package migrate provides the migrate command and its policies, today and
// calls sub-commands.
package migrate

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/omniaagent/crmsync/internal/app"
	"github.com/omniaagent/crmsync/internal/conf"
	"github.com/omniaagent/crmsync/internal/migrate"
)

// Command creates and returns the migrate command
func Command(ctx *app.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Copy legacy records into the CRM",
		Long:  "Migrate reads the legacy lead report and the dialer call log and creates the missing Policy and Call records in the CRM.",
	}

	cmd.AddCommand(
		policiesCommand(ctx),
		todayCommand(ctx),
		callsCommand(ctx),
	)
	return cmd
}

func policiesCommand(ctx *app.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policies",
		Short: "Migrate every legacy policy not yet in the CRM",
		Long: `Policies walks the whole legacy listing. Policy IDs already in the CRM are
loaded up front and skipped. Records whose person cannot be found by phone
are counted and left for a later run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPolicies(cmd.Context(), ctx)
		},
	}

	setupPoliciesFlags(cmd)
	return cmd
}

func setupPoliciesFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.Int("page", 1, "Source page to start from")
	flags.Int("sample", 0, "Stop after this many created or failed records (0 means all)")
	flags.Bool("dry-run", false, "Resolve and count without writing to the CRM")

	conf.BindFlag(flags, "page", "migrate.startpage")
	conf.BindFlag(flags, "sample", "migrate.sample")
	conf.BindFlag(flags, "dry-run", "migrate.dryrun")
}

func runPolicies(ctx context.Context, c *app.Context) error {
	a, err := c.Open()
	if err != nil {
		return err
	}
	defer func() { _ = a.Close(ctx) }()

	s := c.Settings.Migrate
	d, err := a.PolicyDriver(ctx, app.PolicyRun{
		StartPage: s.StartPage,
		DryRun:    s.DryRun,
	})
	if err != nil {
		return err
	}
	_, err = d.Run(ctx, migrate.Options{
		Sample: s.Sample,
		DryRun: s.DryRun,
	})
	return err
}
