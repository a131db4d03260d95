// Package identity resolves natural keys (names, phone numbers) to CRM IDs
// and remembers the answers for the length of a run.
//
// A cache stores both hits and confirmed misses so a key is looked up at most
// once. A successful create stores the new ID. A failed create removes the
// entry again, so a later call re-queries instead of trusting a stale miss.
package identity

import (
	"context"
	"strings"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/omniaagent/crmsync/internal/errors"
	"github.com/omniaagent/crmsync/internal/logger"
)

// Lookup finds the ID for key. found=false with a nil error is a confirmed miss.
type Lookup func(ctx context.Context, key string) (id string, found bool, err error)

// Creator creates the entity named key and returns its new ID.
type Creator func(ctx context.Context, key string) (string, error)

// Observer receives one event per resolution: hit, found, miss, created,
// placeholder, lookup_error or create_error.
type Observer func(entity, result string)

type entry struct {
	id    string
	found bool
}

// Cache resolves keys for one entity kind.
type Cache struct {
	kind        string
	lookup      Lookup
	create      Creator
	placeholder string
	store       *cache.Cache
	group       singleflight.Group
	log         logger.Logger
	observe     Observer
}

// Option configures a Cache.
type Option func(*Cache)

// WithCreator enables ResolveOrCreate.
func WithCreator(fn Creator) Option {
	return func(c *Cache) { c.create = fn }
}

// WithPlaceholder makes ResolveOrCreate return id instead of creating.
func WithPlaceholder(id string) Option {
	return func(c *Cache) { c.placeholder = id }
}

func WithLogger(l logger.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.log = l
		}
	}
}

func WithObserver(fn Observer) Option {
	return func(c *Cache) { c.observe = fn }
}

// NewCache returns an empty cache for kind.
func NewCache(kind string, lookup Lookup, opts ...Option) *Cache {
	c := &Cache{
		kind:   kind,
		lookup: lookup,
		store:  cache.New(cache.NoExpiration, 0),
		log:    GetLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With(logger.String("entity", kind))
	return c
}

// Kind returns the entity kind the cache resolves.
func (c *Cache) Kind() string { return c.kind }

// Len returns the number of cached keys, hits and misses alike.
func (c *Cache) Len() int { return c.store.ItemCount() }

// Store records id for key, e.g. after a create done outside the cache.
func (c *Cache) Store(key, id string) {
	key = strings.TrimSpace(key)
	if key == "" || id == "" {
		return
	}
	c.store.Set(key, entry{id: id, found: true}, cache.NoExpiration)
}

func (c *Cache) cached(key string) (entry, bool) {
	v, ok := c.store.Get(key)
	if !ok {
		return entry{}, false
	}
	e, ok := v.(entry)
	return e, ok
}

func (c *Cache) emit(result string) {
	if c.observe != nil {
		c.observe(c.kind, result)
	}
}

// Resolve returns the ID for key. Lookup errors are logged and reported as
// not found without being cached.
func (c *Cache) Resolve(ctx context.Context, key string) (string, bool) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", false
	}
	if e, ok := c.cached(key); ok {
		c.emit("hit")
		return e.id, e.found
	}

	v, err, _ := c.group.Do("lookup:"+key, func() (any, error) {
		if e, ok := c.cached(key); ok {
			return e, nil
		}
		id, found, err := c.lookup(ctx, key)
		if err != nil {
			return nil, err
		}
		e := entry{id: id, found: found && id != ""}
		c.store.Set(key, e, cache.NoExpiration)
		return e, nil
	})
	if err != nil {
		c.emit("lookup_error")
		c.log.Warn("lookup failed, treating as not found",
			logger.String("key", key),
			logger.Error(err))
		return "", false
	}

	e := v.(entry)
	if e.found {
		c.emit("found")
	} else {
		c.emit("miss")
	}
	return e.id, e.found
}

// ResolveOrCreate resolves key and creates the entity when it is absent.
// Concurrent callers for the same key share a single create.
func (c *Cache) ResolveOrCreate(ctx context.Context, key string) (string, bool, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", false, nil
	}
	if id, ok := c.Resolve(ctx, key); ok {
		return id, true, nil
	}
	if c.create == nil && c.placeholder == "" {
		return "", false, nil
	}

	v, err, _ := c.group.Do("create:"+key, func() (any, error) {
		if e, ok := c.cached(key); ok && e.found {
			return e.id, nil
		}
		if c.placeholder != "" {
			c.store.Set(key, entry{id: c.placeholder, found: true}, cache.NoExpiration)
			c.emit("placeholder")
			return c.placeholder, nil
		}

		id, err := c.create(ctx, key)
		if err == nil && id == "" {
			err = errors.Newf("create %s returned an empty id", c.kind).
				Component("identity").
				Category(errors.CategoryIdentity).
				Build()
		}
		if err != nil {
			c.store.Delete(key)
			return nil, err
		}
		c.store.Set(key, entry{id: id, found: true}, cache.NoExpiration)
		c.emit("created")
		c.log.Info("created", logger.String("key", key), logger.String("id", id))
		return id, nil
	})
	if err != nil {
		c.emit("create_error")
		return "", false, errors.New(err).
			Component("identity").
			Category(errors.CategoryIdentity).
			Context("entity", c.kind).
			Context("operation", "create").
			Build()
	}
	return v.(string), true, nil
}
