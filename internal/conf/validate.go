package conf

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ValidationError collects every problem found in Settings.
type ValidationError struct {
	Errors []string
}

func (ve ValidationError) Error() string {
	return fmt.Sprintf("validation errors: %s", strings.Join(ve.Errors, "; "))
}

// ValidateSettings checks settings section by section and returns all
// problems at once.
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}
	add := func(errs []string) { ve.Errors = append(ve.Errors, errs...) }

	add(validateCRMSettings(&settings.CRM))
	add(validateSourceSettings(&settings.Source))
	add(validateMigrateSettings(&settings.Migrate))
	add(validatePipelineSettings(&settings.Pipeline))
	add(validateConvosoSettings(&settings.Convoso))
	add(validateLedgerSettings(&settings.Ledger))
	add(validateMetricsSettings(&settings.Metrics))
	add(validateSentrySettings(&settings.Sentry))

	if settings.Logging.DefaultLevel != "" && !validLogLevel(settings.Logging.DefaultLevel) {
		ve.Errors = append(ve.Errors, fmt.Sprintf("logging.default_level %q is not a log level", settings.Logging.DefaultLevel))
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateCRMSettings(s *CRMSettings) []string {
	var errs []string
	if err := checkURL(s.URL); err != nil {
		errs = append(errs, "crm.url: "+err.Error())
	}
	if s.Token == "" {
		errs = append(errs, "crm.token is required (or crm.tokenfile, or CRMSYNC_CRM_TOKEN)")
	}
	if s.WriteInterval < 0 {
		errs = append(errs, "crm.writeinterval must not be negative")
	}
	if s.PageSize <= 0 || s.PageSize > 1000 {
		errs = append(errs, fmt.Sprintf("crm.pagesize must be between 1 and 1000, got %d", s.PageSize))
	}
	return errs
}

func validateSourceSettings(s *SourceSettings) []string {
	var errs []string
	if err := checkURL(s.URL); err != nil {
		errs = append(errs, "source.url: "+err.Error())
	}
	if s.PerPage <= 0 {
		errs = append(errs, "source.perpage must be positive")
	}
	return errs
}

func validateMigrateSettings(s *MigrateSettings) []string {
	var errs []string
	if s.StartPage < 1 {
		errs = append(errs, "migrate.startpage must be at least 1")
	}
	if s.Sample < 0 {
		errs = append(errs, "migrate.sample must not be negative")
	}
	if s.Schedule != "" {
		if _, err := cron.ParseStandard(s.Schedule); err != nil {
			errs = append(errs, fmt.Sprintf("migrate.schedule %q: %v", s.Schedule, err))
		}
	}
	if _, err := time.LoadLocation(s.Timezone); err != nil {
		errs = append(errs, fmt.Sprintf("migrate.timezone %q: %v", s.Timezone, err))
	}
	return errs
}

func validatePipelineSettings(s *PipelineSettings) []string {
	var errs []string
	if s.ID == "" {
		errs = append(errs, "pipeline.id is required")
	}
	if s.PollInterval <= 0 {
		errs = append(errs, "pipeline.pollinterval must be positive")
	}
	if s.Timeout <= 0 {
		errs = append(errs, "pipeline.timeout must be positive")
	}
	if s.Timeout > 0 && s.PollInterval > s.Timeout {
		errs = append(errs, "pipeline.pollinterval must not exceed pipeline.timeout")
	}
	if s.ProgressFile == "" {
		errs = append(errs, "pipeline.progressfile is required")
	}
	if s.LookbackBuffer < 0 {
		errs = append(errs, "pipeline.lookbackbuffer must not be negative")
	}
	return errs
}

func validateConvosoSettings(s *ConvosoSettings) []string {
	var errs []string
	if err := checkURL(s.URL); err != nil {
		errs = append(errs, "convoso.url: "+err.Error())
	}
	if _, err := time.LoadLocation(s.Timezone); err != nil {
		errs = append(errs, fmt.Sprintf("convoso.timezone %q: %v", s.Timezone, err))
	}
	if s.Token == "" {
		GetLogger().Debug("convoso.token not set, call names will not be resolved")
	}
	return errs
}

func validateLedgerSettings(s *LedgerSettings) []string {
	if !s.Enabled {
		return nil
	}
	var errs []string
	switch s.Driver {
	case "sqlite", "mysql":
	default:
		errs = append(errs, fmt.Sprintf("ledger.driver must be sqlite or mysql, got %q", s.Driver))
	}
	if s.DSN == "" {
		errs = append(errs, "ledger.dsn is required when the ledger is enabled")
	}
	return errs
}

func validateMetricsSettings(s *MetricsSettings) []string {
	if s.PushURL == "" {
		return nil
	}
	if err := checkURL(s.PushURL); err != nil {
		return []string{"metrics.pushurl: " + err.Error()}
	}
	return nil
}

func validateSentrySettings(s *SentrySettings) []string {
	if s.Enabled && s.DSN == "" {
		return []string{"sentry.dsn is required when sentry is enabled"}
	}
	return nil
}

// checkURL accepts an absolute http(s) base URL. Request paths are joined
// onto it, so a query string or fragment is rejected.
func checkURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("is required")
	}
	if err := validateEnvURL(raw); err != nil {
		return err
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return fmt.Errorf("must not carry a query string or fragment")
	}
	return nil
}

func validLogLevel(level string) bool {
	switch strings.ToLower(level) {
	case "trace", "debug", "info", "warn", "warning", "error":
		return true
	}
	return false
}
