package calls

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omniaagent/crmsync/internal/dedup"
	"github.com/omniaagent/crmsync/internal/errors"
	"github.com/omniaagent/crmsync/internal/httpclient"
	"github.com/omniaagent/crmsync/internal/logger"
	"github.com/omniaagent/crmsync/internal/observability/metrics"
	"github.com/omniaagent/crmsync/internal/payload"
	"github.com/omniaagent/crmsync/internal/source"
)

const testBase = "https://dialer.example.com"

func quietLogger() logger.Logger {
	return logger.NewSlogLogger(io.Discard, logger.LogLevelError, nil)
}

func mockedClient(t *testing.T) *httpclient.Client {
	t.Helper()
	hc := httpclient.New(&httpclient.Config{DefaultTimeout: 5 * time.Second})
	httpmock.ActivateNonDefault(hc.StdClient())
	t.Cleanup(httpmock.DeactivateAndReset)
	return hc
}

func logPage(from, n, total int) string {
	rows := make([]string, 0, n)
	for i := 0; i < n; i++ {
		rows = append(rows, fmt.Sprintf(`{"id":"%d","term_reason":"AGENT","user_id":"1001"}`, from+i))
	}
	return fmt.Sprintf(`{"success":true,"data":{"results":[%s],"total_found":%d}}`, strings.Join(rows, ","), total)
}

func TestSourceWalksOffsets(t *testing.T) {
	hc := mockedClient(t)
	var queries []map[string]string
	httpmock.RegisterResponder(http.MethodGet, testBase+"/v1/log/retrieve",
		func(req *http.Request) (*http.Response, error) {
			q := req.URL.Query()
			queries = append(queries, map[string]string{
				"offset": q.Get("offset"),
				"start":  q.Get("start_time"),
				"end":    q.Get("end_time"),
				"limit":  q.Get("limit"),
				"token":  q.Get("auth_token"),
			})
			offset, _ := strconv.Atoi(q.Get("offset"))
			switch offset {
			case 0:
				return httpmock.NewStringResponse(http.StatusOK, logPage(0, PageSize, 620)), nil
			case PageSize:
				return httpmock.NewStringResponse(http.StatusOK, logPage(PageSize, 120, 620)), nil
			}
			return httpmock.NewStringResponse(http.StatusOK, `{"success":true,"data":{"results":[],"total_found":620}}`), nil
		})

	pst := time.FixedZone("PST", -8*3600)
	src := NewSource(hc, Config{BaseURL: testBase, Token: "tok"}, pst, quietLogger())
	start := time.Date(2025, 1, 15, 18, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)

	var ids []string
	err := src.Walk(context.Background(), start, end, func(rec source.Record) error {
		ids = append(ids, rec.Get("id"))
		return nil
	})
	require.NoError(t, err)
	assert.Len(t, ids, 620)
	assert.Equal(t, "619", ids[619])

	require.Len(t, queries, 2)
	assert.Equal(t, "0", queries[0]["offset"])
	assert.Equal(t, "500", queries[1]["offset"])
	assert.Equal(t, "2025-01-15T10:00:00", queries[0]["start"])
	assert.Equal(t, "2025-01-15T12:00:00", queries[0]["end"])
	assert.Equal(t, "500", queries[0]["limit"])
	assert.Equal(t, "tok", queries[0]["token"])
}

func TestSourceStopsOnUnsuccessfulPage(t *testing.T) {
	hc := mockedClient(t)
	httpmock.RegisterResponder(http.MethodGet, testBase+"/v1/log/retrieve",
		httpmock.NewStringResponder(http.StatusOK, `{"success":false}`))

	src := NewSource(hc, Config{BaseURL: testBase, Token: "tok"}, time.UTC, quietLogger())
	calls := 0
	err := src.Walk(context.Background(), time.Now().Add(-time.Hour), time.Now(), func(source.Record) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Zero(t, calls)
}

func TestSourceHTTPError(t *testing.T) {
	hc := mockedClient(t)
	httpmock.RegisterResponder(http.MethodGet, testBase+"/v1/log/retrieve",
		httpmock.NewStringResponder(http.StatusUnauthorized, `{"error":"bad token"}`))

	src := NewSource(hc, Config{BaseURL: testBase, Token: "tok"}, time.UTC, quietLogger())
	err := src.Walk(context.Background(), time.Now().Add(-time.Hour), time.Now(), func(source.Record) error { return nil })
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryHTTP))
	code, ok := errors.ContextValue(err, "status_code")
	require.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestListResolverCachesTable(t *testing.T) {
	hc := mockedClient(t)
	httpmock.RegisterResponder(http.MethodGet, testBase+"/v1/lists/search",
		httpmock.NewStringResponder(http.StatusOK,
			`{"success":true,"data":[{"id":3412,"name":"Final Expense FB"},{"id":"77","name":"Medicare T65"}]}`))

	r := NewListResolver(hc, Config{BaseURL: testBase, Token: "tok"}, quietLogger())
	name, ok := r.Name(context.Background(), "3412")
	assert.True(t, ok)
	assert.Equal(t, "Final Expense FB", name)

	name, ok = r.Name(context.Background(), "77")
	assert.True(t, ok)
	assert.Equal(t, "Medicare T65", name)

	_, ok = r.Name(context.Background(), "999")
	assert.False(t, ok)

	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestUserResolverJoinsNames(t *testing.T) {
	hc := mockedClient(t)
	httpmock.RegisterResponder(http.MethodGet, testBase+"/v1/users/search",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "100", req.URL.Query().Get("limit"))
			return httpmock.NewStringResponse(http.StatusOK, `{"success":true,"data":{"results":{
				"1001":{"id":1001,"first_name":"Dana","last_name":"Reyes"},
				"1002":{"id":1002,"first_name":"Sam","last_name":""}}}}`), nil
		})

	r := NewUserResolver(hc, Config{BaseURL: testBase, Token: "tok"}, quietLogger())
	name, ok := r.Name(context.Background(), "1001")
	assert.True(t, ok)
	assert.Equal(t, "Dana Reyes", name)

	name, ok = r.Name(context.Background(), "1002")
	assert.True(t, ok)
	assert.Equal(t, "Sam", name)
}

func TestResolverWithoutToken(t *testing.T) {
	hc := mockedClient(t)
	r := NewListResolver(hc, Config{BaseURL: testBase}, quietLogger())
	_, ok := r.Name(context.Background(), "3412")
	assert.False(t, ok)
	assert.Zero(t, httpmock.GetTotalCallCount())
}

func TestEligible(t *testing.T) {
	tests := []struct {
		name string
		rec  map[string]any
		want bool
	}{
		{"finished", map[string]any{"term_reason": "AGENT", "user_id": "1001"}, true},
		{"in progress", map[string]any{"term_reason": "NONE"}, false},
		{"no term reason", map[string]any{"user_id": "1001"}, false},
		{"system user", map[string]any{"term_reason": "AGENT", "user_id": "666666"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := source.RecordFromMap(tt.rec)
			require.NoError(t, err)
			assert.Equal(t, tt.want, Eligible(rec))
		})
	}
}

type sliceWalker []map[string]any

func (w sliceWalker) Walk(_ context.Context, _, _ time.Time, fn func(source.Record) error) error {
	for _, m := range w {
		rec, err := source.RecordFromMap(m)
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

type fakeBuilder struct{}

func (fakeBuilder) Build(_ context.Context, rec source.Record) (payload.CallInput, bool) {
	if rec.Get("status") == "" {
		return payload.CallInput{}, false
	}
	return payload.CallInput{ConvosoCallID: rec.Get("id"), Name: "Inbound - Test", Status: rec.Get("status")}, true
}

type fakeCreator struct {
	created []string
}

func (c *fakeCreator) CreateCall(_ context.Context, in payload.CallInput) (string, error) {
	if in.ConvosoCallID == "bad" {
		return "", fmt.Errorf("CRM GraphQL error: invalid callDate")
	}
	c.created = append(c.created, in.ConvosoCallID)
	return "crm-" + in.ConvosoCallID, nil
}

type outcomeCounter struct {
	metrics.Nop
	outcomes map[string]int
}

func (o *outcomeCounter) RecordOutcome(_, outcome string) {
	if o.outcomes == nil {
		o.outcomes = map[string]int{}
	}
	o.outcomes[outcome]++
}

func callWindow() sliceWalker {
	return sliceWalker{
		{"id": "c1", "term_reason": "AGENT", "status": "SALE"},
		{"id": "c2", "term_reason": "AGENT", "status": "SALE"},
		{"id": "c3", "term_reason": "NONE", "status": "INCALL"},
		{"id": "c4", "term_reason": "AGENT", "status": "SALE", "user_id": "666666"},
		{"id": "c5", "term_reason": "CALLER"},
		{"id": "bad", "term_reason": "AGENT", "status": "NA"},
	}
}

func TestDriverRunAndRerun(t *testing.T) {
	color.NoColor = true
	guard := dedup.NewPreloaded("c2")
	creator := &fakeCreator{}
	counter := &outcomeCounter{}
	var out bytes.Buffer

	d := NewDriver(callWindow(), fakeBuilder{}, creator, guard,
		WithOutput(&out), WithMetrics(counter), WithLogger(quietLogger()))

	stats, err := d.Run(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 6, stats.Fetched)
	assert.Equal(t, 4, stats.Eligible)
	assert.Equal(t, 1, stats.Existing)
	assert.Equal(t, 1, stats.Created)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 1, stats.Failed)
	require.Len(t, stats.Failures, 1)
	assert.Contains(t, stats.Failures[0], "call bad")
	assert.Equal(t, []string{"c1"}, creator.created)
	assert.Contains(t, out.String(), "CALL MIGRATION SUMMARY")
	assert.Equal(t, 1, counter.outcomes["created"])

	stats, err = d.Run(context.Background(), Options{})
	require.NoError(t, err)
	assert.Zero(t, stats.Created)
	assert.Equal(t, 2, stats.Existing)
	assert.Equal(t, []string{"c1"}, creator.created)
}

func TestDriverDryRunWritesNothing(t *testing.T) {
	creator := &fakeCreator{}
	d := NewDriver(callWindow(), fakeBuilder{}, creator, dedup.NewPreloaded(),
		WithOutput(io.Discard), WithLogger(quietLogger()))

	stats, err := d.Run(context.Background(), Options{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Created)
	assert.Empty(t, creator.created)
}

func TestDriverStopsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d := NewDriver(callWindow(), fakeBuilder{}, &fakeCreator{}, dedup.NewPreloaded(),
		WithOutput(io.Discard), WithLogger(quietLogger()))

	stats, err := d.Run(ctx, Options{})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryCancellation))
	assert.Zero(t, stats.Created)
}
