package calls

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/antonholmquist/jason"

	"github.com/omniaagent/crmsync/internal/errors"
	"github.com/omniaagent/crmsync/internal/httpclient"
	"github.com/omniaagent/crmsync/internal/logger"
	"github.com/omniaagent/crmsync/internal/source"
	"github.com/omniaagent/crmsync/internal/transform"
)

const (
	// PageSize is the log/retrieve limit.
	PageSize = 500

	// DialerZone is the zone of start_time/end_time and call_date.
	DialerZone = "America/Los_Angeles"

	dialerTimeLayout = "2006-01-02T15:04:05"
)

// Eligible reports whether a call log is finished and placed by a person.
func Eligible(rec source.Record) bool {
	term := rec.Trimmed("term_reason")
	if term == "" || term == "NONE" {
		return false
	}
	return !transform.IsSystemUser(rec.Trimmed("user_id"))
}

// Source pages through the dialer's call log.
type Source struct {
	hc  *httpclient.Client
	cfg Config
	loc *time.Location
	log logger.Logger
}

// NewSource returns a call log source. A nil loc means DialerZone, or UTC
// when the zone database is unavailable.
func NewSource(hc *httpclient.Client, cfg Config, loc *time.Location, log logger.Logger) *Source {
	if log == nil {
		log = GetLogger()
	}
	if loc == nil {
		loc = DialerLocation()
	}
	return &Source{hc: hc, cfg: cfg.withDefaults(), loc: loc, log: log}
}

// DialerLocation loads DialerZone.
func DialerLocation() *time.Location {
	loc, err := time.LoadLocation(DialerZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Walk calls fn for every log between start and end, page by page. It stops
// on an unsuccessful or empty page, once total_found records were seen, or
// after a short page.
func (s *Source) Walk(ctx context.Context, start, end time.Time, fn func(source.Record) error) error {
	seen := 0
	for offset := 0; ; offset += PageSize {
		if err := ctx.Err(); err != nil {
			return errors.New(err).
				Component("calls").
				Category(errors.CategoryCancellation).
				Context("offset", offset).
				Build()
		}

		results, total, ok, err := s.fetch(ctx, start, end, offset)
		if err != nil {
			return err
		}
		if !ok || len(results) == 0 {
			return nil
		}
		for _, r := range results {
			if err := fn(source.FromObject(r)); err != nil {
				return err
			}
		}
		seen += len(results)
		s.log.Debug("call log page fetched",
			logger.Int("offset", offset),
			logger.Int("records", len(results)),
			logger.Int("total_found", total))

		if seen >= total || len(results) < PageSize {
			return nil
		}
	}
}

func (s *Source) fetch(ctx context.Context, start, end time.Time, offset int) ([]*jason.Object, int, bool, error) {
	q := url.Values{
		"auth_token":         {s.cfg.Token},
		"start_time":         {start.In(s.loc).Format(dialerTimeLayout)},
		"end_time":           {end.In(s.loc).Format(dialerTimeLayout)},
		"limit":              {strconv.Itoa(PageSize)},
		"offset":             {strconv.Itoa(offset)},
		"include_recordings": {"0"},
	}
	resp, err := s.hc.Get(ctx, s.cfg.BaseURL+"/v1/log/retrieve?"+q.Encode())
	if err != nil {
		cat := errors.CategoryNetwork
		if ctx.Err() != nil {
			cat = errors.CategoryCancellation
		}
		return nil, 0, false, errors.New(err).
			Component("calls").
			Category(cat).
			Context("offset", offset).
			Build()
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, false, errors.New(err).
			Component("calls").
			Category(errors.CategoryNetwork).
			Context("offset", offset).
			Build()
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, 0, false, errors.Newf("call log API error %d: %s", resp.StatusCode, truncate(string(body), 500)).
			Component("calls").
			Category(errors.CategoryHTTP).
			Context("status_code", resp.StatusCode).
			Context("offset", offset).
			Build()
	}

	obj, err := jason.NewObjectFromBytes(body)
	if err != nil {
		return nil, 0, false, payloadErr(err, "call_log")
	}
	if ok, _ := obj.GetBoolean("success"); !ok {
		s.log.Warn("call log page unsuccessful", logger.Int("offset", offset))
		return nil, 0, false, nil
	}
	results, err := obj.GetObjectArray("data", "results")
	if err != nil {
		return nil, 0, false, nil
	}
	total := len(results) + offset
	if v, err := obj.GetValue("data", "total_found"); err == nil {
		if n, ok := intValue(v); ok {
			total = n
		}
	}
	return results, total, true, nil
}

func intValue(v *jason.Value) (int, bool) {
	if n, err := v.Int64(); err == nil {
		return int(n), true
	}
	if s, err := v.String(); err == nil {
		if n, err := strconv.Atoi(s); err == nil {
			return n, true
		}
	}
	return 0, false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
