// Package dedup decides whether a source record was already migrated,
// using the external ID stored on the CRM record as the only authority.
package dedup

import (
	"context"
	"sync"

	"github.com/omniaagent/crmsync/internal/errors"
	"github.com/omniaagent/crmsync/internal/logger"
)

// Guard reports and remembers migrated external IDs.
type Guard interface {
	Seen(ctx context.Context, externalID string) (bool, error)
	Mark(externalID string)
}

// Lister streams every external ID already in the CRM.
type Lister func(ctx context.Context, fn func(string)) error

// Checker asks the CRM about a single external ID.
type Checker func(ctx context.Context, externalID string) (bool, error)

// Preloaded holds the full set of migrated IDs in memory.
type Preloaded struct {
	mu  sync.RWMutex
	ids map[string]struct{}
}

// Load builds a Preloaded guard from list.
func Load(ctx context.Context, list Lister, log logger.Logger) (*Preloaded, error) {
	if log == nil {
		log = GetLogger()
	}
	p := &Preloaded{ids: make(map[string]struct{})}
	err := list(ctx, func(id string) {
		if id != "" {
			p.ids[id] = struct{}{}
		}
	})
	if err != nil {
		return nil, errors.New(err).
			Component("dedup").
			Category(errors.CategoryPagination).
			Context("operation", "preload").
			Context("loaded", len(p.ids)).
			Build()
	}
	log.Info("loaded existing external ids", logger.Int("count", len(p.ids)))
	return p, nil
}

// NewPreloaded returns a guard seeded with ids.
func NewPreloaded(ids ...string) *Preloaded {
	p := &Preloaded{ids: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		p.Mark(id)
	}
	return p
}

func (p *Preloaded) Seen(_ context.Context, externalID string) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.ids[externalID]
	return ok, nil
}

func (p *Preloaded) Mark(externalID string) {
	if externalID == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ids[externalID] = struct{}{}
}

// Len returns the number of known IDs.
func (p *Preloaded) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.ids)
}

// PerRecord queries the CRM for each ID it has not marked itself.
type PerRecord struct {
	check  Checker
	marked *Preloaded
}

func NewPerRecord(check Checker) *PerRecord {
	return &PerRecord{check: check, marked: NewPreloaded()}
}

func (p *PerRecord) Seen(ctx context.Context, externalID string) (bool, error) {
	if ok, _ := p.marked.Seen(ctx, externalID); ok {
		return true, nil
	}
	seen, err := p.check(ctx, externalID)
	if err != nil {
		return false, errors.New(err).
			Component("dedup").
			Category(errors.CategoryIntegration).
			Context("operation", "check_existing").
			Build()
	}
	if seen {
		p.marked.Mark(externalID)
	}
	return seen, nil
}

func (p *PerRecord) Mark(externalID string) {
	p.marked.Mark(externalID)
}
