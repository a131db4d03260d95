// Package ledger keeps an optional per-record history of migration outcomes
// in SQLite or MySQL.
package ledger

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/omniaagent/crmsync/internal/errors"
	"github.com/omniaagent/crmsync/internal/logger"
)

const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"

	maxMessageLen = 1024
)

// Record kinds.
const (
	KindPolicy = "policy"
	KindCall   = "call"
)

// Outcomes shared by the drivers, the ledger and the records counter.
const (
	OutcomeCreated  = "created"
	OutcomeSkipped  = "skipped"
	OutcomeFailed   = "failed"
	OutcomeNoPerson = "no_person"
	OutcomeDryRun   = "dry_run"
)

// Config selects the ledger backend.
type Config struct {
	Enabled bool
	Driver  string
	DSN     string
}

// Outcome is one row of the ledger.
type Outcome struct {
	ID         uint   `gorm:"primaryKey"`
	RunID      string `gorm:"size:36;index"`
	Kind       string `gorm:"size:16;index:idx_kind_external"`
	ExternalID string `gorm:"size:128;index:idx_kind_external"`
	Outcome    string `gorm:"size:16"`
	Message    string `gorm:"size:1024"`
	CreatedAt  time.Time
}

// Recorder stores outcomes.
type Recorder interface {
	Record(ctx context.Context, kind, externalID, outcome, message string) error
	Close() error
}

// Nop is the recorder used when the ledger is disabled.
type Nop struct{}

func (Nop) Record(context.Context, string, string, string, string) error { return nil }
func (Nop) Close() error                                                 { return nil }

// Store is a gorm-backed Recorder bound to one run.
type Store struct {
	db    *gorm.DB
	runID string
	log   logger.Logger
}

// Open returns Nop when cfg is disabled, otherwise a migrated Store.
func Open(cfg Config, runID string, log logger.Logger) (Recorder, error) {
	if !cfg.Enabled {
		return Nop{}, nil
	}
	if log == nil {
		log = GetLogger()
	}

	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.NewGormLoggerAdapter(log.Module("gorm"), 200*time.Millisecond),
	})
	if err != nil {
		return nil, errors.New(err).
			Component("ledger").
			Category(errors.CategoryDatabase).
			Context("driver", cfg.Driver).
			Context("operation", "open").
			Build()
	}
	store, err := newStore(db, runID, log)
	if err != nil {
		return nil, err
	}
	return store, nil
}

func newStore(db *gorm.DB, runID string, log logger.Logger) (*Store, error) {
	if err := db.AutoMigrate(&Outcome{}); err != nil {
		return nil, errors.New(err).
			Component("ledger").
			Category(errors.CategoryDatabase).
			Context("operation", "auto_migrate").
			Build()
	}
	return &Store{db: db, runID: runID, log: log}, nil
}

func dialectorFor(cfg Config) (gorm.Dialector, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", DriverSQLite:
		if cfg.DSN != ":memory:" && !strings.HasPrefix(cfg.DSN, "file:") {
			if dir := filepath.Dir(cfg.DSN); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return nil, errors.New(err).
						Component("ledger").
						Category(errors.CategoryFileIO).
						Context("path", dir).
						Build()
				}
			}
		}
		return sqlite.Open(cfg.DSN), nil
	case DriverMySQL:
		return mysql.Open(cfg.DSN), nil
	default:
		return nil, errors.Newf("unsupported ledger driver %q", cfg.Driver).
			Component("ledger").
			Category(errors.CategoryConfiguration).
			Build()
	}
}

// Record inserts one outcome row.
func (s *Store) Record(ctx context.Context, kind, externalID, outcome, message string) error {
	if len(message) > maxMessageLen {
		message = message[:maxMessageLen]
	}
	row := Outcome{
		RunID:      s.runID,
		Kind:       kind,
		ExternalID: externalID,
		Outcome:    outcome,
		Message:    message,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return errors.New(err).
			Component("ledger").
			Category(errors.CategoryDatabase).
			Context("operation", "record").
			Build()
	}
	return nil
}

// Summary counts the outcomes of runID.
func (s *Store) Summary(ctx context.Context, runID string) (map[string]int64, error) {
	var rows []struct {
		Outcome string
		Count   int64
	}
	err := s.db.WithContext(ctx).
		Model(&Outcome{}).
		Select("outcome, count(*) as count").
		Where("run_id = ?", runID).
		Group("outcome").
		Scan(&rows).Error
	if err != nil {
		return nil, errors.New(err).
			Component("ledger").
			Category(errors.CategoryDatabase).
			Context("operation", "summary").
			Build()
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Outcome] = r.Count
	}
	return out, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
