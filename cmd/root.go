package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/omniaagent/crmsync/cmd/backfill"
	"github.com/omniaagent/crmsync/cmd/lookback"
	"github.com/omniaagent/crmsync/cmd/migrate"
	"github.com/omniaagent/crmsync/internal/app"
	"github.com/omniaagent/crmsync/internal/buildinfo"
	"github.com/omniaagent/crmsync/internal/conf"
	"github.com/omniaagent/crmsync/internal/errors"
	"github.com/omniaagent/crmsync/internal/logger"
)

// RootCommand creates and returns the root command
func RootCommand(build *buildinfo.Context) *cobra.Command {
	ctx := app.NewContext(build)

	rootCmd := &cobra.Command{
		Use:           "crmsync",
		Short:         "Migrate legacy CRM data and drive CRM ingestion pipelines",
		Version:       fmt.Sprintf("%s (built %s)", build.Version(), build.BuildDate()),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var configFile string
	setupFlags(rootCmd, &configFile)

	rootCmd.AddCommand(
		migrate.Command(ctx),
		backfill.Command(ctx),
		lookback.Command(ctx),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return initialize(cmd, ctx, configFile)
	}

	return rootCmd
}

// initialize loads the settings with the executing command's flags applied,
// then sets up logging, error reporting and the run ID.
func initialize(cmd *cobra.Command, ctx *app.Context, configFile string) error {
	if err := conf.BindFlags(cmd.Flags()); err != nil {
		return err
	}

	settings, err := conf.Load(configFile)
	if err != nil {
		return err
	}
	if settings.Debug {
		enableDebug(&settings.Logging)
	}

	central, err := logger.NewCentralLogger(&settings.Logging)
	if err != nil {
		return errors.New(err).
			Component("configuration").
			Category(errors.CategoryConfiguration).
			Context("operation", "logger").
			Build()
	}
	logger.SetGlobal(central)

	if settings.Sentry.Enabled {
		if err := errors.InitSentry(settings.Sentry.DSN, settings.Sentry.Environment, ctx.Build.Version()); err != nil {
			return err
		}
	}

	ctx.Settings = settings
	cmd.SetContext(logger.WithTraceID(cmd.Context(), ctx.Build.RunID()))

	central.Module("cli").Info("starting",
		logger.String("command", cmd.CommandPath()),
		logger.String("version", ctx.Build.Version()),
		logger.String("run_id", ctx.Build.RunID()))
	return nil
}

func enableDebug(cfg *logger.LoggingConfig) {
	cfg.DefaultLevel = "debug"
	if cfg.Console != nil && !strings.EqualFold(cfg.Console.Level, "trace") {
		cfg.Console.Level = "debug"
	}
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, configFile *string) {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(configFile, "config", "c", "", "Path to config.yaml (default: search ., ~/.config/crmsync, /etc/crmsync)")
	flags.BoolP("debug", "d", false, "Enable debug output")
	conf.BindFlag(flags, "debug", "debug")
}
