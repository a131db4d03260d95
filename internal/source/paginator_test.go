package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omniaagent/crmsync/internal/errors"
	"github.com/omniaagent/crmsync/internal/httpclient"
	"github.com/omniaagent/crmsync/internal/logger"
)

func quietLogger() logger.Logger {
	return logger.NewSlogLogger(io.Discard, logger.LogLevelError, nil)
}

// pageBody renders a listing page whose records carry the given reg_dates.
func pageBody(totalPages int, startID int, regDates ...string) string {
	rows := make([]string, 0, len(regDates))
	for i, d := range regDates {
		rows = append(rows, fmt.Sprintf(`{"policy_id":%d,"reg_date":%q,"phone":"555"}`, startID+i, d))
	}
	return fmt.Sprintf(`{"response":{"data":[%s],"total_page":%d,"total":%d}}`,
		strings.Join(rows, ","), totalPages, totalPages*len(regDates))
}

func newMockedPaginator(t *testing.T, cfg Config) *Paginator {
	t.Helper()
	hc := httpclient.New(&httpclient.Config{DefaultTimeout: 5 * time.Second})
	httpmock.ActivateNonDefault(hc.StdClient())
	t.Cleanup(httpmock.DeactivateAndReset)
	cfg.BaseURL = "https://legacy.example.com/api"
	return NewPaginator(hc, cfg, quietLogger())
}

func registerPages(pages map[int]string) {
	httpmock.RegisterResponder(http.MethodGet, "https://legacy.example.com/api/lead-report-api",
		func(req *http.Request) (*http.Response, error) {
			n, _ := strconv.Atoi(req.URL.Query().Get("page"))
			body, ok := pages[n]
			if !ok {
				return httpmock.NewStringResponse(http.StatusOK, `{"response":{"data":[],"total_page":3}}`), nil
			}
			return httpmock.NewStringResponse(http.StatusOK, body), nil
		})
}

func TestWalkVisitsAllPages(t *testing.T) {
	p := newMockedPaginator(t, Config{PerPage: 25})
	registerPages(map[int]string{
		1: pageBody(3, 1, "2026-02-17", "2026-02-17"),
		2: pageBody(3, 3, "2026-02-16"),
		3: pageBody(3, 4, "2026-02-15"),
	})

	var ids []string
	var numbers []int
	err := p.Walk(context.Background(), func(page *Page) error {
		numbers = append(numbers, page.Number)
		for _, r := range page.Records {
			ids = append(ids, r.Get("policy_id"))
		}
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2, 3}, numbers)
	assert.Equal(t, []string{"1", "2", "3", "4"}, ids)

	info := httpmock.GetCallCountInfo()
	assert.Equal(t, 3, info["GET https://legacy.example.com/api/lead-report-api"])
}

func TestWalkStartsAtPageAndSendsParams(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/lead-report-api", r.URL.Path)
		assert.Equal(t, "7", r.URL.Query().Get("page"))
		assert.Equal(t, "10", r.URL.Query().Get("per_page"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		_, _ = io.WriteString(w, `{"response":{"data":[{"policy_id":"a"}]}}`)
	}))
	t.Cleanup(srv.Close)

	hc := httpclient.New(nil)
	t.Cleanup(hc.Close)
	p := NewPaginator(hc, Config{BaseURL: srv.URL, StartPage: 7}, quietLogger())

	var pages []*Page
	require.NoError(t, p.Walk(context.Background(), func(page *Page) error {
		pages = append(pages, page)
		return nil
	}))
	require.Len(t, pages, 1)
	assert.Equal(t, 1, pages[0].TotalPages, "missing total_page means a single page")
}

func TestWalkTargetDateFiltersAndStopsEarly(t *testing.T) {
	p := newMockedPaginator(t, Config{TargetDate: "2026-02-17"})
	registerPages(map[int]string{
		1: pageBody(10, 1, "2026-02-18 09:00:00", "2026-02-17 10:00:00"),
		2: pageBody(10, 3, "2026-02-17 08:00:00", "2026-02-16 23:00:00"),
		3: pageBody(10, 5, "2026-02-16 20:00:00", "2026-02-15 10:00:00"),
		4: pageBody(10, 7, "2026-02-15 20:00:00"),
	})

	var ids []string
	var seen []int
	require.NoError(t, p.Walk(context.Background(), func(page *Page) error {
		seen = append(seen, page.Number)
		for _, r := range page.Records {
			ids = append(ids, r.Get("policy_id"))
		}
		return nil
	}))

	assert.Equal(t, []string{"2", "3"}, ids)
	assert.Equal(t, []int{1, 2, 3}, seen, "page 3 is all older and ends the walk")
}

func TestWalkErrStop(t *testing.T) {
	p := newMockedPaginator(t, Config{})
	registerPages(map[int]string{
		1: pageBody(5, 1, "x"),
		2: pageBody(5, 2, "x"),
	})

	calls := 0
	err := p.Walk(context.Background(), func(*Page) error {
		calls++
		return ErrStop
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestWalkHTTPErrorKeepsDeliveredPages(t *testing.T) {
	p := newMockedPaginator(t, Config{})
	httpmock.RegisterResponder(http.MethodGet, "https://legacy.example.com/api/lead-report-api",
		func(req *http.Request) (*http.Response, error) {
			if req.URL.Query().Get("page") == "1" {
				return httpmock.NewStringResponse(http.StatusOK, pageBody(3, 1, "x")), nil
			}
			return httpmock.NewStringResponse(http.StatusServiceUnavailable, "busy"), nil
		})

	delivered := 0
	err := p.Walk(context.Background(), func(*Page) error {
		delivered++
		return nil
	})
	require.Error(t, err)
	assert.Equal(t, 1, delivered)
	assert.True(t, errors.IsCategory(err, errors.CategoryHTTP))

	page, ok := errors.ContextValue(err, "page")
	require.True(t, ok)
	assert.Equal(t, 2, page)
	status, _ := errors.ContextValue(err, "status_code")
	assert.Equal(t, http.StatusServiceUnavailable, status)
}

func TestWalkCancelled(t *testing.T) {
	p := newMockedPaginator(t, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.Walk(ctx, func(*Page) error { return nil })
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryCancellation))
}

func TestRecordGet(t *testing.T) {
	r, err := RecordFromMap(map[string]any{
		"policy_id":     12345,
		"total_premium": "99.50",
		"active":        true,
		"email":         nil,
		"reg_date":      "2026-02-17 10:11:12",
	})
	require.NoError(t, err)

	assert.Equal(t, "12345", r.Get("policy_id"))
	assert.Equal(t, "99.50", r.Get("total_premium"))
	assert.Equal(t, "true", r.Get("active"))
	assert.Empty(t, r.Get("email"))
	assert.Empty(t, r.Get("missing"))
	assert.Equal(t, "2026-02-17", r.RegDay())
	assert.Empty(t, Record{}.Get("anything"))
}

func TestRegDayShortValues(t *testing.T) {
	for raw, want := range map[string]string{
		"2026-02-17T10:11:12Z": "2026-02-17",
		"2026-02-17":           "2026-02-17",
		"2026-2-7":             "2026-2-7",
		"":                     "",
	} {
		r, err := RecordFromMap(map[string]any{"reg_date": raw})
		require.NoError(t, err)
		assert.Equal(t, want, r.RegDay(), raw)
	}

	r, err := RecordFromMap(map[string]any{"policy_id": 1})
	require.NoError(t, err)
	assert.Empty(t, r.RegDay())
}
