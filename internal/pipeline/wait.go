package pipeline

import (
	"context"
	"time"

	"github.com/omniaagent/crmsync/internal/errors"
	"github.com/omniaagent/crmsync/internal/logger"
)

// Poll defaults.
const (
	DefaultPollInterval = 5 * time.Second
	DefaultDayTimeout   = 600 * time.Second
)

// Outcome is how a poll ended.
type Outcome int

const (
	OutcomeCompleted Outcome = iota
	OutcomeFailed
	OutcomeTimedOut
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeFailed:
		return "failed"
	case OutcomeTimedOut:
		return "timeout"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// WaitConfig bounds a poll. A zero Timeout waits until ctx is done.
type WaitConfig struct {
	Interval time.Duration
	Timeout  time.Duration
}

// DefaultWaitConfig returns the 5s interval, 600s timeout pair.
func DefaultWaitConfig() WaitConfig {
	return WaitConfig{Interval: DefaultPollInterval, Timeout: DefaultDayTimeout}
}

// CheckFunc fetches the current state of the watched run. A nil log means
// the run is not visible yet.
type CheckFunc func(ctx context.Context) (*RunLog, error)

// Wait polls check every Interval until the run reaches a terminal status,
// the timeout elapses or ctx is done. The first check happens one interval
// after the call. Check errors are logged and polling continues.
//
// TimedOut and Cancelled return the last seen log together with a
// timeout or cancellation error.
func Wait(ctx context.Context, cfg WaitConfig, check CheckFunc) (Outcome, *RunLog, error) {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPollInterval
	}
	log := GetLogger()

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	var deadline <-chan time.Time
	if cfg.Timeout > 0 {
		timer := time.NewTimer(cfg.Timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	start := time.Now()
	var last *RunLog
	for {
		select {
		case <-ctx.Done():
			return OutcomeCancelled, last, errors.New(ctx.Err()).
				Component("pipeline").
				Category(errors.CategoryCancellation).
				Context("operation", "wait").
				Build()
		case <-deadline:
			return OutcomeTimedOut, last, errors.Newf("run did not finish within %s", cfg.Timeout).
				Component("pipeline").
				Category(errors.CategoryTimeout).
				Context("operation", "wait").
				Build()
		case <-ticker.C:
		}

		run, err := check(ctx)
		if err != nil {
			log.Warn("poll check failed", logger.Error(err))
			continue
		}
		if run == nil {
			continue
		}
		last = run

		elapsed := time.Since(start).Round(time.Second)
		switch run.Status {
		case StatusCompleted:
			return OutcomeCompleted, run, nil
		case StatusFailed:
			log.Warn("run failed",
				logger.String("log_id", run.ID),
				logger.String("errors", run.Errors),
				logger.Duration("elapsed", elapsed))
			return OutcomeFailed, run, nil
		}
		log.Debug("run still in progress",
			logger.String("log_id", run.ID),
			logger.String("status", run.Status),
			logger.Duration("elapsed", elapsed))
	}
}

// LogCheck watches the run with logID among the pipeline's latest logs,
// falling back to the newest entry when the ID is not listed.
func LogCheck(api API, pipelineID, logID string) CheckFunc {
	return func(ctx context.Context) (*RunLog, error) {
		logs, err := api.Logs(ctx, pipelineID)
		if err != nil {
			return nil, err
		}
		if len(logs) == 0 {
			return nil, nil
		}
		for i := range logs {
			if logs[i].ID == logID {
				return &logs[i], nil
			}
		}
		return &logs[0], nil
	}
}
