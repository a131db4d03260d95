package identity

import (
	"context"

	"github.com/omniaagent/crmsync/internal/crm"
	"github.com/omniaagent/crmsync/internal/logger"
)

// Placeholders returned in dry-run mode instead of creating.
const (
	DryRunCarrier    = "dry-run-carrier"
	DryRunProduct    = "dry-run-product"
	DryRunLeadSource = "dry-run-lead-source"
)

// Directory is the subset of the CRM a Set needs.
type Directory interface {
	FindByName(ctx context.Context, e crm.Entity, name string) (string, bool, error)
	CreateNamed(ctx context.Context, e crm.Entity, name string) (string, error)
	FindPersonByPhone(ctx context.Context, phone string) (string, bool, error)
}

// SetOptions configures NewSet.
type SetOptions struct {
	DryRun   bool
	Logger   logger.Logger
	Observer Observer
}

// Set bundles the caches of one run.
type Set struct {
	Carriers    *Cache
	Products    *Cache
	Agents      *Cache
	LeadSources *Cache
	// People is keyed by normalized phone. It has no creator; person
	// synthesis stores new IDs with Store.
	People *Cache
}

// NewSet builds fresh caches over dir.
func NewSet(dir Directory, opts SetOptions) *Set {
	common := []Option{WithLogger(opts.Logger), WithObserver(opts.Observer)}

	named := func(e crm.Entity, placeholder string) *Cache {
		lookup := func(ctx context.Context, name string) (string, bool, error) {
			return dir.FindByName(ctx, e, name)
		}
		o := append([]Option{}, common...)
		if e.Creatable {
			if opts.DryRun {
				o = append(o, WithPlaceholder(placeholder))
			} else {
				o = append(o, WithCreator(func(ctx context.Context, name string) (string, error) {
					return dir.CreateNamed(ctx, e, name)
				}))
			}
		}
		return NewCache(e.Kind, lookup, o...)
	}

	return &Set{
		Carriers:    named(crm.Carriers, DryRunCarrier),
		Products:    named(crm.Products, DryRunProduct),
		Agents:      named(crm.Agents, ""),
		LeadSources: named(crm.LeadSources, DryRunLeadSource),
		People:      NewCache("person", dir.FindPersonByPhone, common...),
	}
}
