package app

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omniaagent/crmsync/internal/buildinfo"
	"github.com/omniaagent/crmsync/internal/conf"
)

// crmResponse answers every query with one page of each connection the
// drivers list during assembly.
const crmResponse = `{"data":{
  "policies":{"pageInfo":{"hasNextPage":false,"endCursor":""},"edges":[{"node":{"oldCrmPolicyId":"P-1"}}]},
  "calls":{"pageInfo":{"hasNextPage":false,"endCursor":""},"edges":[{"node":{"convosoCallId":"C-1"}}]},
  "leadSources":{"pageInfo":{"hasNextPage":false,"endCursor":""},"edges":[{"node":{"name":"Facebook","costPerCall":{"amountMicros":1500000},"minimumCallDuration":90}}]}
}}`

type fakeCRM struct {
	*httptest.Server
	requests atomic.Int32
	mu       sync.Mutex
	auth     string
	paths    []string
}

func newFakeCRM(t *testing.T) *fakeCRM {
	t.Helper()
	f := &fakeCRM{}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.requests.Add(1)
		f.mu.Lock()
		f.auth = r.Header.Get("Authorization")
		f.paths = append(f.paths, r.URL.Path)
		f.mu.Unlock()
		_, _ = io.Copy(io.Discard, r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, crmResponse)
	}))
	t.Cleanup(f.Close)
	return f
}

func testSettings(t *testing.T, crmURL string) *conf.Settings {
	t.Helper()
	s := &conf.Settings{}
	s.CRM.URL = crmURL
	s.CRM.Token = "tok"
	s.CRM.Timeout = 5 * time.Second
	s.CRM.PageSize = 50
	s.Source.URL = "http://127.0.0.1:1"
	s.Source.PerPage = 10
	s.Source.Timeout = 5 * time.Second
	s.Pipeline.ID = "pipe-1"
	s.Pipeline.PollInterval = time.Second
	s.Pipeline.Timeout = time.Minute
	s.Convoso.URL = "http://127.0.0.1:1"
	s.Convoso.Timezone = "America/Los_Angeles"
	s.Ledger.Enabled = true
	s.Ledger.Driver = "sqlite"
	s.Ledger.DSN = filepath.Join(t.TempDir(), "ledger.db")
	return s
}

func newTestApp(t *testing.T, s *conf.Settings) *App {
	t.Helper()
	a, err := New(s, buildinfo.NewContext("test", "2026-10-01"), WithOutput(io.Discard))
	require.NoError(t, err)
	return a
}

func TestNewWiresClients(t *testing.T) {
	srv := newFakeCRM(t)
	a := newTestApp(t, testSettings(t, srv.URL))

	assert.NotNil(t, a.CRM)
	assert.NotNil(t, a.Pipeline)
	assert.NotNil(t, a.Metrics)
	assert.NotNil(t, a.Ledger)
	assert.Equal(t, io.Discard, a.Out())

	require.NoError(t, a.Close(context.Background()))
}

func TestPolicyDriverPreloadsExistingIDs(t *testing.T) {
	srv := newFakeCRM(t)
	a := newTestApp(t, testSettings(t, srv.URL))
	defer func() { _ = a.Close(context.Background()) }()

	d, err := a.PolicyDriver(context.Background(), PolicyRun{StartPage: 1})
	require.NoError(t, err)
	require.NotNil(t, d)

	assert.Equal(t, int32(1), srv.requests.Load(), "one listing page")
	srv.mu.Lock()
	defer srv.mu.Unlock()
	assert.Equal(t, "Bearer tok", srv.auth)
	assert.Equal(t, []string{"/graphql"}, srv.paths)
}

func TestPolicyDriverPerRecordSkipsPreload(t *testing.T) {
	srv := newFakeCRM(t)
	a := newTestApp(t, testSettings(t, srv.URL))
	defer func() { _ = a.Close(context.Background()) }()

	_, err := a.PolicyDriver(context.Background(), PolicyRun{StartPage: 1, TargetDate: "2026-10-01", PerRecord: true})
	require.NoError(t, err)
	assert.Zero(t, srv.requests.Load())
}

func TestCallDriverLoadsRulesAndExistingCalls(t *testing.T) {
	srv := newFakeCRM(t)
	a := newTestApp(t, testSettings(t, srv.URL))
	defer func() { _ = a.Close(context.Background()) }()

	d, err := a.CallDriver(context.Background(), time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC), true)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, int32(2), srv.requests.Load(), "billing rules and call IDs")
}

func TestPolicyDriverFailsWhenListingFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	a := newTestApp(t, testSettings(t, srv.URL))
	defer func() { _ = a.Close(context.Background()) }()

	_, err := a.PolicyDriver(context.Background(), PolicyRun{StartPage: 1})
	require.Error(t, err)
}

func TestWaitConfig(t *testing.T) {
	srv := newFakeCRM(t)
	a := newTestApp(t, testSettings(t, srv.URL))
	defer func() { _ = a.Close(context.Background()) }()

	w := a.WaitConfig(0)
	assert.Equal(t, time.Second, w.Interval)
	assert.Equal(t, time.Minute, w.Timeout)

	assert.Equal(t, 90*time.Second, a.WaitConfig(90*time.Second).Timeout)
}

func TestDialerLocationFallsBack(t *testing.T) {
	srv := newFakeCRM(t)
	s := testSettings(t, srv.URL)
	s.Convoso.Timezone = "Not/AZone"
	a := newTestApp(t, s)
	defer func() { _ = a.Close(context.Background()) }()

	assert.Equal(t, "America/Los_Angeles", a.DialerLocation().String())
}

func TestClosePushesMetricsForRun(t *testing.T) {
	var pushed atomic.Value
	gw := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pushed.Store(r.URL.Path)
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer gw.Close()

	srv := newFakeCRM(t)
	s := testSettings(t, srv.URL)
	s.Metrics.PushURL = gw.URL
	a := newTestApp(t, s)
	a.Recorder().RecordOutcome("policy", "created")

	require.NoError(t, a.Close(context.Background()))

	path, _ := pushed.Load().(string)
	assert.True(t, strings.HasPrefix(path, "/metrics/job/crmsync"), path)
	assert.Contains(t, path, a.Build.RunID())
}
