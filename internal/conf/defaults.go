package conf

import "github.com/spf13/viper"

// setDefaultConfig registers every default on v. Durations are strings so
// the generated config.yaml stays readable.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("debug", false)

	v.SetDefault("crm.url", "https://crm.omniaagent.com")
	v.SetDefault("crm.token", "")
	v.SetDefault("crm.tokenfile", "")
	v.SetDefault("crm.timeout", "30s")
	v.SetDefault("crm.writeinterval", "20ms")
	v.SetDefault("crm.pagesize", 500)

	v.SetDefault("source.url", "https://omnia.geogrowth.com/api/orgadmin")
	v.SetDefault("source.path", "/lead-report-api")
	v.SetDefault("source.perpage", 10)
	v.SetDefault("source.timeout", "60s")

	v.SetDefault("migrate.startpage", 1)
	v.SetDefault("migrate.sample", 0)
	v.SetDefault("migrate.dryrun", false)
	v.SetDefault("migrate.synthesize", true)
	v.SetDefault("migrate.schedule", "")
	v.SetDefault("migrate.timezone", "America/Los_Angeles")

	v.SetDefault("pipeline.id", "716afad6-a45a-4bdd-b8a4-0e64ed466bf8")
	v.SetDefault("pipeline.pollinterval", "5s")
	v.SetDefault("pipeline.timeout", "600s")
	v.SetDefault("pipeline.progressfile", "backfill-progress.json")
	v.SetDefault("pipeline.lookbackbuffer", "180m")

	v.SetDefault("convoso.url", "https://api.convoso.com")
	v.SetDefault("convoso.token", "")
	v.SetDefault("convoso.namettl", "10m")
	v.SetDefault("convoso.timezone", "America/Los_Angeles")

	v.SetDefault("ledger.enabled", false)
	v.SetDefault("ledger.driver", "sqlite")
	v.SetDefault("ledger.dsn", "crmsync.db")

	v.SetDefault("metrics.listen", "")
	v.SetDefault("metrics.pushurl", "")

	v.SetDefault("sentry.enabled", false)
	v.SetDefault("sentry.dsn", "")
	v.SetDefault("sentry.environment", "production")

	v.SetDefault("logging.default_level", "info")
	v.SetDefault("logging.timezone", "Local")
	v.SetDefault("logging.console.enabled", true)
	v.SetDefault("logging.console.level", "info")
	v.SetDefault("logging.file_output.enabled", false)
	v.SetDefault("logging.file_output.path", "logs/crmsync.log")
	v.SetDefault("logging.file_output.level", "debug")
}
