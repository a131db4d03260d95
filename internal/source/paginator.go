// Package source walks the legacy CRM's paginated lead-report listing.
package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/antonholmquist/jason"

	"github.com/omniaagent/crmsync/internal/errors"
	"github.com/omniaagent/crmsync/internal/httpclient"
	"github.com/omniaagent/crmsync/internal/logger"
)

const (
	DefaultPath    = "/lead-report-api"
	DefaultPerPage = 10
)

// ErrStop ends a walk early without an error.
var ErrStop = errors.NewStd("stop walk")

// Config selects where and what to walk.
type Config struct {
	BaseURL   string
	Path      string
	PerPage   int
	StartPage int
	// TargetDate (YYYY-MM-DD) keeps only records registered that day and
	// stops once a page holds nothing newer.
	TargetDate string
}

// Page is one fetched page. Records is already date-filtered.
type Page struct {
	Number     int
	TotalPages int
	Total      int
	Raw        int
	Records    []Record
}

// Paginator fetches pages in ascending order.
type Paginator struct {
	client *httpclient.Client
	cfg    Config
	log    logger.Logger
}

// NewPaginator returns a paginator with defaults applied to cfg.
func NewPaginator(client *httpclient.Client, cfg Config, log logger.Logger) *Paginator {
	if cfg.Path == "" {
		cfg.Path = DefaultPath
	}
	if cfg.PerPage <= 0 {
		cfg.PerPage = DefaultPerPage
	}
	if cfg.StartPage <= 0 {
		cfg.StartPage = 1
	}
	if log == nil {
		log = GetLogger()
	}
	return &Paginator{client: client, cfg: cfg, log: log}
}

// Walk calls fn with each page until the listing is exhausted, fn returns
// ErrStop, or ctx is done. A page that fails to load ends the walk with an
// error; pages delivered before it stay delivered.
func (p *Paginator) Walk(ctx context.Context, fn func(*Page) error) error {
	for n := p.cfg.StartPage; ; n++ {
		if err := ctx.Err(); err != nil {
			return errors.New(err).
				Component("source").
				Category(errors.CategoryCancellation).
				Context("page", n).
				Build()
		}

		page, records, err := p.fetch(ctx, n)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			p.log.Debug("empty page, listing exhausted", logger.Int("page", n))
			return nil
		}

		stop := false
		if p.cfg.TargetDate != "" {
			page.Records, stop = filterByDay(records, p.cfg.TargetDate)
		} else {
			page.Records = records
		}

		if err := fn(page); err != nil {
			if errors.Is(err, ErrStop) {
				return nil
			}
			return err
		}

		if stop {
			p.log.Debug("page older than target date, stopping",
				logger.Int("page", n),
				logger.String("target_date", p.cfg.TargetDate))
			return nil
		}
		if n >= page.TotalPages {
			return nil
		}
	}
}

// filterByDay keeps records registered on day and reports whether every
// record on the page is older than it.
func filterByDay(records []Record, day string) ([]Record, bool) {
	kept := make([]Record, 0, len(records))
	allOlder := true
	for _, r := range records {
		d := r.RegDay()
		if d == day {
			kept = append(kept, r)
		}
		if d >= day {
			allOlder = false
		}
	}
	return kept, allOlder
}

func (p *Paginator) pageURL(n int) (string, error) {
	u, err := url.Parse(strings.TrimRight(p.cfg.BaseURL, "/") + p.cfg.Path)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(n))
	q.Set("per_page", strconv.Itoa(p.cfg.PerPage))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (p *Paginator) fetch(ctx context.Context, n int) (*Page, []Record, error) {
	target, err := p.pageURL(n)
	if err != nil {
		return nil, nil, errors.New(err).
			Component("source").
			Category(errors.CategoryConfiguration).
			Context("base_url", p.cfg.BaseURL).
			Build()
	}

	start := time.Now()
	resp, err := p.client.Get(ctx, target)
	if err != nil {
		category := errors.CategoryNetwork
		if ctx.Err() != nil {
			category = errors.CategoryCancellation
		}
		return nil, nil, errors.New(err).
			Component("source").
			Category(category).
			NetworkContext(target, p.client.Timeout()).
			Timing("source_page", time.Since(start)).
			Context("page", n).
			Build()
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, nil, errors.Newf("source API error on page %d: %d", n, resp.StatusCode).
			Component("source").
			Category(errors.CategoryHTTP).
			Context("page", n).
			Context("status_code", resp.StatusCode).
			Build()
	}

	body, err := jason.NewObjectFromReader(resp.Body)
	if err != nil {
		return nil, nil, errors.New(fmt.Errorf("decode page %d: %w", n, err)).
			Component("source").
			Category(errors.CategoryPagination).
			Context("page", n).
			Build()
	}

	page := &Page{Number: n, TotalPages: 1}
	if tp := intField(body, "response", "total_page"); tp > 0 {
		page.TotalPages = tp
	}
	page.Total = intField(body, "response", "total")

	items, _ := body.GetObjectArray("response", "data")
	records := make([]Record, 0, len(items))
	for _, item := range items {
		records = append(records, Record{obj: item})
	}
	page.Raw = len(records)
	return page, records, nil
}

// intField reads a number that the listing sometimes sends as a string.
func intField(obj *jason.Object, keys ...string) int {
	v, err := obj.GetValue(keys...)
	if err != nil {
		return 0
	}
	if n, err := v.Int64(); err == nil {
		return int(n)
	}
	if s, err := v.String(); err == nil {
		n, _ := strconv.Atoi(strings.TrimSpace(s))
		return n
	}
	return 0
}
