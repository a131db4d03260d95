// Package calls migrates dialer call logs into CRM Call records.
package calls

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/antonholmquist/jason"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/omniaagent/crmsync/internal/errors"
	"github.com/omniaagent/crmsync/internal/httpclient"
	"github.com/omniaagent/crmsync/internal/logger"
)

const (
	// DefaultBaseURL is the dialer API root.
	DefaultBaseURL = "https://api.convoso.com"

	// DefaultNameTTL bounds how long list and user names are reused.
	DefaultNameTTL = 10 * time.Minute

	namesKey = "names"
)

// Config points at the dialer API.
type Config struct {
	BaseURL string
	Token   string
	TTL     time.Duration
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.TTL <= 0 {
		c.TTL = DefaultNameTTL
	}
	return c
}

// directory fetches a whole id→name table at once and caches it.
type directory struct {
	kind   string
	hc     *httpclient.Client
	cfg    Config
	query  url.Values
	path   string
	decode func(*jason.Object) (map[string]string, error)

	cache  *gocache.Cache
	group  singleflight.Group
	log    logger.Logger
	warned sync.Once
}

func newDirectory(kind, path string, query url.Values, hc *httpclient.Client, cfg Config, log logger.Logger,
	decode func(*jason.Object) (map[string]string, error)) *directory {
	cfg = cfg.withDefaults()
	if log == nil {
		log = GetLogger()
	}
	return &directory{
		kind:   kind,
		hc:     hc,
		cfg:    cfg,
		query:  query,
		path:   path,
		decode: decode,
		cache:  gocache.New(cfg.TTL, 2*cfg.TTL),
		log:    log.With(logger.String("directory", kind)),
	}
}

// Name maps id to a display name. Lookups never fail the caller: problems
// are logged and reported as not found.
func (d *directory) Name(ctx context.Context, id string) (string, bool) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", false
	}
	if d.cfg.Token == "" {
		d.warned.Do(func() {
			d.log.Warn("dialer API token not configured, names unavailable")
		})
		return "", false
	}
	names, err := d.table(ctx)
	if err != nil {
		d.log.Warn("name lookup failed", logger.String("id", id), logger.Error(err))
		return "", false
	}
	name, ok := names[id]
	return name, ok && name != ""
}

func (d *directory) table(ctx context.Context) (map[string]string, error) {
	if v, ok := d.cache.Get(namesKey); ok {
		return v.(map[string]string), nil
	}
	v, err, _ := d.group.Do(namesKey, func() (any, error) {
		names, err := d.fetch(ctx)
		if err != nil {
			return nil, err
		}
		d.cache.SetDefault(namesKey, names)
		d.log.Debug("name table refreshed", logger.Int("entries", len(names)))
		return names, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(map[string]string), nil
}

func (d *directory) fetch(ctx context.Context) (map[string]string, error) {
	q := url.Values{"auth_token": {d.cfg.Token}}
	for k, v := range d.query {
		q[k] = v
	}
	endpoint := d.cfg.BaseURL + d.path + "?" + q.Encode()

	resp, err := d.hc.Get(ctx, endpoint)
	if err != nil {
		return nil, errors.New(err).
			Component("calls").
			Category(errors.CategoryNetwork).
			Context("directory", d.kind).
			Build()
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.New(err).
			Component("calls").
			Category(errors.CategoryNetwork).
			Context("directory", d.kind).
			Build()
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, errors.Newf("dialer API error %d", resp.StatusCode).
			Component("calls").
			Category(errors.CategoryHTTP).
			Context("directory", d.kind).
			Context("status_code", resp.StatusCode).
			Build()
	}

	obj, err := jason.NewObjectFromBytes(body)
	if err != nil {
		return nil, payloadErr(err, d.kind)
	}
	if ok, _ := obj.GetBoolean("success"); !ok {
		return nil, payloadErr(fmt.Errorf("success=false"), d.kind)
	}
	names, err := d.decode(obj)
	if err != nil {
		return nil, payloadErr(err, d.kind)
	}
	return names, nil
}

func payloadErr(err error, kind string) error {
	return errors.New(err).
		Component("calls").
		Category(errors.CategoryPayload).
		Context("directory", kind).
		Build()
}

// ListResolver names dialer lists; the name becomes the call's lead source.
type ListResolver struct {
	*directory
}

func NewListResolver(hc *httpclient.Client, cfg Config, log logger.Logger) *ListResolver {
	return &ListResolver{newDirectory("lists", "/v1/lists/search", nil, hc, cfg, log, decodeLists)}
}

// data: [{id, name}, ...]
func decodeLists(obj *jason.Object) (map[string]string, error) {
	lists, err := obj.GetObjectArray("data")
	if err != nil {
		return nil, fmt.Errorf("lists response has no data array: %w", err)
	}
	names := make(map[string]string, len(lists))
	for _, l := range lists {
		id := valueText(l, "id")
		name, _ := l.GetString("name")
		if id != "" {
			names[id] = name
		}
	}
	return names, nil
}

// UserResolver names dialer users; the name is matched to an agent profile.
type UserResolver struct {
	*directory
}

func NewUserResolver(hc *httpclient.Client, cfg Config, log logger.Logger) *UserResolver {
	q := url.Values{"limit": {"100"}}
	return &UserResolver{newDirectory("users", "/v1/users/search", q, hc, cfg, log, decodeUsers)}
}

// data.results: {"<id>": {first_name, last_name}, ...}
func decodeUsers(obj *jason.Object) (map[string]string, error) {
	results, err := obj.GetObject("data", "results")
	if err != nil {
		return nil, fmt.Errorf("users response has no data.results: %w", err)
	}
	users := results.Map()
	names := make(map[string]string, len(users))
	for id, v := range users {
		u, err := v.Object()
		if err != nil {
			continue
		}
		first, _ := u.GetString("first_name")
		last, _ := u.GetString("last_name")
		names[id] = strings.TrimSpace(strings.Join(nonEmpty(first, last), " "))
	}
	return names, nil
}

func nonEmpty(values ...string) []string {
	out := values[:0]
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// valueText reads a string or number field as text.
func valueText(obj *jason.Object, key string) string {
	if s, err := obj.GetString(key); err == nil {
		return s
	}
	if n, err := obj.GetNumber(key); err == nil {
		return n.String()
	}
	return ""
}
