// Package conf loads crmsync settings from config.yaml, .env files,
// environment variables and command-line flags.
package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/omniaagent/crmsync/internal/errors"
	"github.com/omniaagent/crmsync/internal/logger"
	"github.com/omniaagent/crmsync/internal/secrets"
)

// CRMSettings points at the target CRM.
type CRMSettings struct {
	URL   string `mapstructure:"url" yaml:"url"`     // base URL; /graphql and /metadata are appended
	Token string `mapstructure:"token" yaml:"token"` // API key sent as a bearer token
	// TokenFile is read when Token is empty.
	TokenFile     string        `mapstructure:"tokenfile" yaml:"tokenfile"`
	Timeout       time.Duration `mapstructure:"timeout" yaml:"timeout"`
	WriteInterval time.Duration `mapstructure:"writeinterval" yaml:"writeinterval"` // minimum gap between mutations
	PageSize      int           `mapstructure:"pagesize" yaml:"pagesize"`
}

// SourceSettings points at the legacy lead report listing.
type SourceSettings struct {
	URL     string        `mapstructure:"url" yaml:"url"`
	Path    string        `mapstructure:"path" yaml:"path"`
	PerPage int           `mapstructure:"perpage" yaml:"perpage"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// MigrateSettings are the policy migration defaults.
type MigrateSettings struct {
	StartPage  int    `mapstructure:"startpage" yaml:"startpage"`
	Sample     int    `mapstructure:"sample" yaml:"sample"`
	DryRun     bool   `mapstructure:"dryrun" yaml:"dryrun"`
	Synthesize bool   `mapstructure:"synthesize" yaml:"synthesize"` // create missing people in `migrate today`
	Schedule   string `mapstructure:"schedule" yaml:"schedule"`     // cron spec for `migrate today`
	Timezone   string `mapstructure:"timezone" yaml:"timezone"`     // zone that decides "today"
}

// PipelineSettings configure the remote ingestion pipeline controller.
type PipelineSettings struct {
	ID             string        `mapstructure:"id" yaml:"id"`
	PollInterval   time.Duration `mapstructure:"pollinterval" yaml:"pollinterval"`
	Timeout        time.Duration `mapstructure:"timeout" yaml:"timeout"` // per day
	ProgressFile   string        `mapstructure:"progressfile" yaml:"progressfile"`
	LookbackBuffer time.Duration `mapstructure:"lookbackbuffer" yaml:"lookbackbuffer"`
}

// ConvosoSettings configure the dialer API used by call migration.
type ConvosoSettings struct {
	URL      string        `mapstructure:"url" yaml:"url"`
	Token    string        `mapstructure:"token" yaml:"token"`
	NameTTL  time.Duration `mapstructure:"namettl" yaml:"namettl"`
	Timezone string        `mapstructure:"timezone" yaml:"timezone"`
}

// LedgerSettings enable the per-record outcome ledger.
type LedgerSettings struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Driver  string `mapstructure:"driver" yaml:"driver"` // sqlite or mysql
	DSN     string `mapstructure:"dsn" yaml:"dsn"`
}

// MetricsSettings control Prometheus exposition.
type MetricsSettings struct {
	Listen  string `mapstructure:"listen" yaml:"listen"`   // e.g. ":9464", used by scheduled runs
	PushURL string `mapstructure:"pushurl" yaml:"pushurl"` // Pushgateway for one-shot runs
}

// SentrySettings enable error reporting.
type SentrySettings struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled"`
	DSN         string `mapstructure:"dsn" yaml:"dsn"`
	Environment string `mapstructure:"environment" yaml:"environment"`
}

// Settings is the complete configuration.
type Settings struct {
	Debug bool `mapstructure:"debug" yaml:"debug"`

	CRM      CRMSettings          `mapstructure:"crm" yaml:"crm"`
	Source   SourceSettings       `mapstructure:"source" yaml:"source"`
	Migrate  MigrateSettings      `mapstructure:"migrate" yaml:"migrate"`
	Pipeline PipelineSettings     `mapstructure:"pipeline" yaml:"pipeline"`
	Convoso  ConvosoSettings      `mapstructure:"convoso" yaml:"convoso"`
	Ledger   LedgerSettings       `mapstructure:"ledger" yaml:"ledger"`
	Metrics  MetricsSettings      `mapstructure:"metrics" yaml:"metrics"`
	Sentry   SentrySettings       `mapstructure:"sentry" yaml:"sentry"`
	Logging  logger.LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// GraphQLEndpoint is the CRM data API.
func (s *Settings) GraphQLEndpoint() string {
	return strings.TrimRight(s.CRM.URL, "/") + "/graphql"
}

// MetadataEndpoint is the CRM metadata API that owns ingestion pipelines.
func (s *Settings) MetadataEndpoint() string {
	return strings.TrimRight(s.CRM.URL, "/") + "/metadata"
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads configFile, or the first config.yaml on the default search
// path, into Settings. A missing file is created with defaults. Values from
// .env and the environment override the file; flags bound with
// viper.BindPFlag override both.
func Load(configFile string) (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	if err := loadDotEnv(); err != nil {
		GetLogger().Warn("could not load .env file", logger.Error(err))
	}

	if err := initViper(configFile); err != nil {
		return nil, configErr(err, "init")
	}
	if err := bindEnvVars(); err != nil {
		GetLogger().Warn(err.Error())
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, configErr(fmt.Errorf("error unmarshaling config into struct: %w", err), "unmarshal")
	}

	if err := resolveSecrets(settings); err != nil {
		return nil, err
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, configErr(err, "validate")
	}

	settingsInstance = settings
	return settingsInstance, nil
}

func configErr(err error, op string) error {
	return errors.New(err).
		Component("configuration").
		Category(errors.CategoryConfiguration).
		Context("operation", op).
		Build()
}

// initViper registers defaults and reads the config file.
func initViper(configFile string) error {
	viper.SetConfigType("yaml")
	setDefaultConfig(viper.GetViper())

	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file %s: %w", configFile, err)
		}
		return nil
	}

	viper.SetConfigName("config")
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return err
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return createDefaultConfig()
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}
	return nil
}

// createDefaultConfig writes the defaults to the user config directory and
// reads it back.
func createDefaultConfig() error {
	configPath, err := DefaultConfigFile()
	if err != nil {
		return err
	}

	data, err := defaultConfigYAML()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	GetLogger().Info("created default config file", logger.String("path", configPath))
	viper.SetConfigFile(configPath)
	return viper.ReadInConfig()
}

// defaultConfigYAML renders the defaults alone, without anything picked up
// from the environment.
func defaultConfigYAML() ([]byte, error) {
	v := viper.New()
	setDefaultConfig(v)
	data, err := yaml.Marshal(v.AllSettings())
	if err != nil {
		return nil, fmt.Errorf("error rendering default config: %w", err)
	}
	return append([]byte("# crmsync configuration\n"), data...), nil
}

func loadDotEnv() error {
	if _, err := os.Stat(".env"); err != nil {
		return nil
	}
	// existing environment variables win over .env entries
	return godotenv.Load(".env")
}

// resolveSecrets expands ${VAR} references in credentials and reads
// crm.tokenfile when no token is configured.
func resolveSecrets(s *Settings) error {
	var err error
	if s.CRM.Token, err = secrets.Resolve(s.CRM.Token, s.CRM.TokenFile); err != nil {
		return err
	}
	for _, v := range []*string{&s.Convoso.Token, &s.Sentry.DSN, &s.Ledger.DSN} {
		if *v, err = secrets.Expand(*v); err != nil {
			return err
		}
	}
	return nil
}

// GetSettings returns the last loaded settings, or nil before Load.
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}
