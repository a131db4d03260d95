package conf

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// envBinding maps one environment variable onto a config key.
type envBinding struct {
	ConfigKey string
	EnvVar    string
	Validate  func(string) error
}

func getEnvBindings() []envBinding {
	return []envBinding{
		{"debug", "CRMSYNC_DEBUG", validateEnvBool},

		{"crm.url", "CRMSYNC_CRM_URL", validateEnvURL},
		{"crm.token", "CRMSYNC_CRM_TOKEN", nil},
		{"crm.tokenfile", "CRMSYNC_CRM_TOKEN_FILE", nil},
		{"crm.writeinterval", "CRMSYNC_CRM_WRITE_INTERVAL", validateEnvDuration},

		{"source.url", "CRMSYNC_SOURCE_URL", validateEnvURL},
		{"source.perpage", "CRMSYNC_SOURCE_PER_PAGE", validateEnvPositiveInt},

		{"migrate.schedule", "CRMSYNC_SCHEDULE", nil},
		{"migrate.timezone", "CRMSYNC_TIMEZONE", validateEnvTimezone},

		{"pipeline.id", "CRMSYNC_PIPELINE_ID", nil},
		{"pipeline.progressfile", "CRMSYNC_PROGRESS_FILE", nil},

		{"convoso.url", "CONVOSO_API_URL", validateEnvURL},
		{"convoso.token", "CONVOSO_API_TOKEN", nil},

		{"ledger.enabled", "CRMSYNC_LEDGER_ENABLED", validateEnvBool},
		{"ledger.driver", "CRMSYNC_LEDGER_DRIVER", nil},
		{"ledger.dsn", "CRMSYNC_LEDGER_DSN", nil},

		{"metrics.listen", "CRMSYNC_METRICS_LISTEN", nil},
		{"metrics.pushurl", "CRMSYNC_METRICS_PUSH_URL", validateEnvURL},

		{"sentry.enabled", "CRMSYNC_SENTRY_ENABLED", validateEnvBool},
		{"sentry.dsn", "SENTRY_DSN", nil},

		{"logging.default_level", "CRMSYNC_LOG_LEVEL", validateEnvLogLevel},
	}
}

// bindEnvVars binds every variable and reports the invalid ones together.
func bindEnvVars() error {
	var warnings []string
	for _, b := range getEnvBindings() {
		if err := viper.BindEnv(b.ConfigKey, b.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("failed to bind %s: %v", b.EnvVar, err))
			continue
		}
		if b.Validate == nil {
			continue
		}
		if value := os.Getenv(b.EnvVar); value != "" {
			if err := b.Validate(value); err != nil {
				warnings = append(warnings, fmt.Sprintf("invalid %s value %q: %v", b.EnvVar, value, err))
			}
		}
	}
	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}
	return nil
}

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("must be true/false, 1/0, t/f")
	}
	return nil
}

func validateEnvURL(value string) error {
	u, err := url.Parse(value)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("host is missing")
	}
	return nil
}

func validateEnvDuration(value string) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return err
	}
	if d < 0 {
		return fmt.Errorf("must not be negative")
	}
	return nil
}

func validateEnvPositiveInt(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return err
	}
	if n <= 0 {
		return fmt.Errorf("must be positive")
	}
	return nil
}

func validateEnvTimezone(value string) error {
	_, err := time.LoadLocation(value)
	return err
}

func validateEnvLogLevel(value string) error {
	if !validLogLevel(value) {
		return fmt.Errorf("must be one of trace, debug, info, warn, error")
	}
	return nil
}
