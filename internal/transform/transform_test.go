package transform

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omniaagent/crmsync/internal/crm"
	"github.com/omniaagent/crmsync/internal/identity"
	"github.com/omniaagent/crmsync/internal/logger"
	"github.com/omniaagent/crmsync/internal/payload"
	"github.com/omniaagent/crmsync/internal/source"
)

func quietLogger() logger.Logger {
	return logger.NewSlogLogger(io.Discard, logger.LogLevelError, nil)
}

// memoryDirectory is a small in-memory CRM keyed by "<kind>/<name>".
type memoryDirectory struct {
	mu      sync.Mutex
	records map[string]string
	created []string
	fail    map[string]bool
}

func newMemoryDirectory(seed map[string]string) *memoryDirectory {
	if seed == nil {
		seed = map[string]string{}
	}
	return &memoryDirectory{records: seed, fail: map[string]bool{}}
}

func (m *memoryDirectory) FindByName(_ context.Context, e crm.Entity, name string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.records[e.Kind+"/"+name]
	return id, ok, nil
}

func (m *memoryDirectory) CreateNamed(_ context.Context, e crm.Entity, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail[e.Kind] {
		return "", fmt.Errorf("create %s refused", e.Kind)
	}
	id := "new-" + e.Kind + "-" + name
	m.records[e.Kind+"/"+name] = id
	m.created = append(m.created, id)
	return id, nil
}

func (m *memoryDirectory) FindPersonByPhone(_ context.Context, phone string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.records["person/"+phone]
	return id, ok, nil
}

func record(t *testing.T, m map[string]any) source.Record {
	t.Helper()
	r, err := source.RecordFromMap(m)
	require.NoError(t, err)
	return r
}

func TestPremiumMicros(t *testing.T) {
	tests := []struct {
		in   string
		want int64
		ok   bool
	}{
		{"123.45", 123450000, true},
		{"0.1", 100000, true},
		{"1000", 1000000000, true},
		{" 19.99 ", 19990000, true},
		{"0", 0, false},
		{"-5", 0, false},
		{"abc", 0, false},
		{"", 0, false},
		{"NaN", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := PremiumMicros(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMapStatus(t *testing.T) {
	tests := map[string]string{
		"Submitted":                       "SUBMITTED",
		"PENDING":                         "PENDING",
		"Active / Approved":               "ACTIVE_APPROVED",
		"active/approved":                 "ACTIVE_APPROVED",
		"Active/Placed":                   "ACTIVE_PLACED",
		"Payment Error - Canceled":        "PAYMENT_ERROR_CANCELED",
		"payment error - active/approved": "PAYMENT_ERROR_ACTIVE_APPROVED",
		"Payment Error - Active/Placed":   "PAYMENT_ERROR_ACTIVE_PLACED",
	}
	for in, want := range tests {
		got, ok := MapStatus(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}

	_, ok := MapStatus("Lapsed")
	assert.False(t, ok)
}

func TestPolicyName(t *testing.T) {
	assert.Equal(t, "Acme - Gold", PolicyName("Acme", "Gold"))
	assert.Equal(t, "Acme - Unknown", PolicyName("Acme", ""))
	assert.Equal(t, "Unknown - Gold", PolicyName("", "Gold"))
	assert.Equal(t, "Policy", PolicyName("", ""))
}

func TestPolicyBuilderBuild(t *testing.T) {
	dir := newMemoryDirectory(map[string]string{
		"carrier/Acme":    "carrier-1",
		"agent/Sam Agent": "agent-1",
	})
	ids := identity.NewSet(dir, identity.SetOptions{Logger: quietLogger()})
	b := NewPolicyBuilder(ids, quietLogger())

	in := b.Build(context.Background(), record(t, map[string]any{
		"policy_id":      981,
		"policy_number":  "PN-1",
		"carrier_name":   "Acme",
		"product_name":   "Gold",
		"member_name":    "Sam Agent",
		"status_name":    "Active / Placed",
		"total_premium":  "123.45",
		"effective_date": "2026-03-01",
		"expires_date":   "0000-00-00",
		"reg_date":       "2026-02-17 10:00:00",
	}), "person-1")

	assert.Equal(t, "Acme - Gold", in.Name)
	assert.Equal(t, "PN-1", in.PolicyNumber)
	assert.Equal(t, "person-1", in.LeadID)
	assert.Equal(t, "981", in.OldCrmPolicyID)
	assert.Equal(t, payload.Some(payload.Currency{AmountMicros: 123450000, CurrencyCode: "USD"}), in.Premium)
	assert.Equal(t, payload.Some("ACTIVE_PLACED"), in.Status)
	assert.Equal(t, payload.Some("2026-03-01"), in.EffectiveDate)
	assert.True(t, in.ExpirationDate.IsZero())
	assert.Equal(t, payload.Some("2026-02-17 10:00:00"), in.SubmittedDate)
	assert.Equal(t, payload.Some("carrier-1"), in.CarrierID)
	assert.Equal(t, payload.Some("new-product-Gold"), in.ProductID)
	assert.Equal(t, payload.Some("agent-1"), in.AgentID)
	assert.Equal(t, []string{"new-product-Gold"}, dir.created)
}

func TestPolicyBuilderOmitsUnresolvedRelations(t *testing.T) {
	dir := newMemoryDirectory(nil)
	dir.fail["carrier"] = true
	ids := identity.NewSet(dir, identity.SetOptions{Logger: quietLogger()})
	b := NewPolicyBuilder(ids, quietLogger())

	in := b.Build(context.Background(), record(t, map[string]any{
		"policy_id":    "7",
		"carrier_name": "Broken",
		"member_name":  "Ghost",
		"status_name":  "weird",
	}), "person-1")

	assert.Equal(t, "Broken - Unknown", in.Name)
	assert.Equal(t, "", in.PolicyNumber)
	assert.True(t, in.CarrierID.IsZero())
	assert.True(t, in.ProductID.IsZero())
	assert.True(t, in.AgentID.IsZero())
	assert.True(t, in.Status.IsZero())
	assert.True(t, in.Premium.IsZero())
}

func TestPolicyBuilderTrimsExternalID(t *testing.T) {
	ids := identity.NewSet(newMemoryDirectory(nil), identity.SetOptions{Logger: quietLogger()})
	b := NewPolicyBuilder(ids, quietLogger())

	rec := record(t, map[string]any{"policy_id": " 42\t"})
	in := b.Build(context.Background(), rec, "person-1")

	assert.Equal(t, "42", in.OldCrmPolicyID)
	assert.Equal(t, rec.Trimmed("policy_id"), in.OldCrmPolicyID)
}

func TestBill(t *testing.T) {
	rules := []crm.BillingRule{
		{Name: "Medicare", CostMicros: 10_000_000},
		{Name: "Medicare Inbound", CostMicros: 35_000_000, MinDuration: 120},
		{Name: "ACA", CostMicros: 5_000_000},
	}

	tests := []struct {
		name      string
		direction string
		queue     string
		source    string
		duration  int
		billable  bool
		micros    int64
	}{
		{"longest match wins", DirectionInbound, "MEDICARE INBOUND Q1", "", 300, true, 35_000_000},
		{"below min duration", DirectionInbound, "Medicare Inbound", "", 60, false, 0},
		{"label inside rule name", DirectionInbound, "aca", "", 1, true, 5_000_000},
		{"falls back to source", DirectionInbound, "", "ACA Leads", 0, true, 5_000_000},
		{"outbound never billed", DirectionOutbound, "ACA", "", 300, false, 0},
		{"no label", DirectionInbound, "", "", 300, false, 0},
		{"no match", DirectionInbound, "Final Expense", "", 300, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			billable, cost := Bill(rules, tt.direction, tt.queue, tt.source, tt.duration)
			assert.Equal(t, tt.billable, billable)
			assert.Equal(t, tt.micros, cost.AmountMicros)
			assert.Equal(t, "USD", cost.CurrencyCode)
		})
	}
}

type mapNamer map[string]string

func (m mapNamer) Name(_ context.Context, id string) (string, bool) {
	n, ok := m[id]
	return n, ok
}

func TestCallBuilderBuild(t *testing.T) {
	dir := newMemoryDirectory(map[string]string{
		"person/5551234567":   "person-1",
		"agent/Sam Agent":     "agent-1",
		"lead_source/ACA Web": "ls-1",
	})
	ids := identity.NewSet(dir, identity.SetOptions{Logger: quietLogger()})
	la, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)

	b := NewCallBuilder(ids, mapNamer{"42": "ACA Web"},
		[]crm.BillingRule{{Name: "ACA", CostMicros: 5_000_000, MinDuration: 30}},
		WithUserNames(mapNamer{"1001": "Sam Agent"}),
		WithLocation(la),
		WithCallLogger(quietLogger()))

	in, ok := b.Build(context.Background(), record(t, map[string]any{
		"id":           "c-100",
		"lead_id":      "L-9",
		"list_id":      42,
		"user_id":      "1001",
		"phone_number": "1 (555) 123-4567",
		"status":       "SALE",
		"status_name":  "Sale Made",
		"call_length":  "95",
		"call_date":    "2026-02-17 09:30:00",
		"call_type":    "INBOUND",
		"campaign":     "Spring",
		"queue":        "null",
	}))
	require.True(t, ok)

	assert.Equal(t, "Inbound - ACA Web", in.Name)
	assert.Equal(t, "c-100", in.ConvosoCallID)
	assert.Equal(t, payload.Some("L-9"), in.ConvosoLeadID)
	assert.Equal(t, "SALE", in.Status)
	assert.Equal(t, "Sale Made", in.StatusName)
	assert.Equal(t, payload.Some("2026-02-17T17:30:00Z"), in.CallDate)
	assert.Equal(t, payload.Some(95), in.Duration)
	assert.True(t, in.QueueName.IsZero())
	assert.Equal(t, payload.Some(DirectionInbound), in.Direction)
	assert.Equal(t, payload.Some("person-1"), in.LeadID)
	assert.Equal(t, payload.Some("agent-1"), in.AgentID)
	assert.Equal(t, payload.Some("ls-1"), in.LeadSourceID)
	assert.True(t, in.Billable)
	assert.Equal(t, int64(5_000_000), in.Cost.AmountMicros)
}

func TestCallBuilderOutboundLabelFallbacks(t *testing.T) {
	ids := identity.NewSet(newMemoryDirectory(nil), identity.SetOptions{Logger: quietLogger()})
	b := NewCallBuilder(ids, nil, nil, WithCallLogger(quietLogger()))

	in, ok := b.Build(context.Background(), record(t, map[string]any{
		"uniqueid":     "u-1",
		"call_type":    "OUTBOUND",
		"phone_number": "555-1234",
		"call_length":  "12.7",
		"campaign":     "Spring",
	}))
	require.True(t, ok)
	assert.Equal(t, "Outbound - Spring", in.Name)
	assert.Equal(t, "u-1", in.ConvosoCallID)
	assert.Equal(t, payload.Some(12), in.Duration)
	assert.True(t, in.LeadID.IsZero(), "seven-digit phones are not matched")
	assert.False(t, in.Billable)

	in, ok = b.Build(context.Background(), record(t, map[string]any{"status": "X"}))
	require.True(t, ok)
	assert.Equal(t, "Outbound - Unknown", in.Name)
	assert.True(t, in.Direction.IsZero())
}

func TestCallBuilderSkips(t *testing.T) {
	ids := identity.NewSet(newMemoryDirectory(nil), identity.SetOptions{Logger: quietLogger()})
	b := NewCallBuilder(ids, nil, nil, WithCallLogger(quietLogger()))

	_, ok := b.Build(context.Background(), record(t, map[string]any{"lead_id": "1"}))
	assert.False(t, ok, "incomplete payload")

	_, ok = b.Build(context.Background(), record(t, map[string]any{"id": "2", "user_id": "666667", "call_type": "INBOUND"}))
	assert.False(t, ok, "system user")
}
