package transform

import (
	"context"
	"strings"
	"time"

	"github.com/omniaagent/crmsync/internal/crm"
	"github.com/omniaagent/crmsync/internal/identity"
	"github.com/omniaagent/crmsync/internal/logger"
	"github.com/omniaagent/crmsync/internal/payload"
	"github.com/omniaagent/crmsync/internal/person"
	"github.com/omniaagent/crmsync/internal/source"
)

// convosoTimeLayout is the dialer's local timestamp format.
const convosoTimeLayout = "2006-01-02 15:04:05"

// Dialer accounts whose calls are never imported.
var systemUsers = map[string]struct{}{
	"666666": {},
	"666667": {},
	"666671": {},
}

// IsSystemUser reports whether userID is a dialer system account.
func IsSystemUser(userID string) bool {
	_, ok := systemUsers[strings.TrimSpace(userID)]
	return ok
}

// Namer maps a dialer ID (list or user) to a display name.
type Namer interface {
	Name(ctx context.Context, id string) (string, bool)
}

// CallBuilder builds createCall payloads from dialer call logs.
type CallBuilder struct {
	ids   *identity.Set
	lists Namer
	users Namer
	rules []crm.BillingRule
	loc   *time.Location
	log   logger.Logger
}

// CallOption configures a CallBuilder.
type CallOption func(*CallBuilder)

// WithUserNames links calls to agents through the dialer's user names.
func WithUserNames(users Namer) CallOption {
	return func(b *CallBuilder) { b.users = users }
}

// WithLocation sets the zone of call_date timestamps.
func WithLocation(loc *time.Location) CallOption {
	return func(b *CallBuilder) {
		if loc != nil {
			b.loc = loc
		}
	}
}

func WithCallLogger(l logger.Logger) CallOption {
	return func(b *CallBuilder) {
		if l != nil {
			b.log = l
		}
	}
}

// NewCallBuilder returns a builder. lists may be nil when source names are
// always present on the payload.
func NewCallBuilder(ids *identity.Set, lists Namer, rules []crm.BillingRule, opts ...CallOption) *CallBuilder {
	b := &CallBuilder{ids: ids, lists: lists, rules: rules, loc: time.UTC, log: GetLogger()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// clean reads field with literal "null" values blanked.
func clean(rec source.Record, field string) string {
	v := rec.Trimmed(field)
	if v == "null" || v == "NULL" {
		return ""
	}
	return v
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// leadingInt parses an optional sign and the leading digits of s.
func leadingInt(s string) (int, bool) {
	s = strings.TrimSpace(s)
	neg := false
	if s != "" && (s[0] == '-' || s[0] == '+') {
		neg = s[0] == '-'
		s = s[1:]
	}
	n, seen := 0, false
	for _, r := range s {
		if r < '0' || r > '9' {
			break
		}
		n = n*10 + int(r-'0')
		seen = true
	}
	if neg {
		n = -n
	}
	return n, seen
}

// Build returns the payload for rec, or false when the log should not be
// imported: incomplete early webhook payloads and system-user calls.
func (b *CallBuilder) Build(ctx context.Context, rec source.Record) (payload.CallInput, bool) {
	callID := firstOf(clean(rec, "id"), clean(rec, "uniqueid"))
	callType := clean(rec, "call_type")
	status := clean(rec, "status")

	if callType == "" && status == "" && callID == "" {
		b.log.Debug("skipping incomplete call payload")
		return payload.CallInput{}, false
	}
	userID := clean(rec, "user_id")
	if _, system := systemUsers[userID]; system {
		b.log.Debug("skipping system user call", logger.String("user_id", userID))
		return payload.CallInput{}, false
	}

	direction, label := DirectionOutbound, "Outbound"
	if strings.Contains(strings.ToUpper(callType), "IN") {
		direction, label = DirectionInbound, "Inbound"
	}

	sourceName := clean(rec, "source_name")
	if sourceName == "" && b.lists != nil {
		if listID := clean(rec, "list_id"); listID != "" {
			sourceName, _ = b.lists.Name(ctx, listID)
		}
	}
	queue := firstOf(clean(rec, "queue_name"), clean(rec, "queue"))
	campaign := firstOf(clean(rec, "campaign_name"), clean(rec, "campaign"))

	in := payload.CallInput{
		Name:          label + " - " + firstOf(queue, sourceName, campaign, "Unknown"),
		ConvosoCallID: callID,
		ConvosoLeadID: payload.NonEmpty(clean(rec, "lead_id")),
		Status:        status,
		StatusName:    clean(rec, "status_name"),
		QueueName:     payload.NonEmpty(queue),
		CallDate:      b.callDate(clean(rec, "call_date")),
	}
	if callType != "" {
		in.Direction = payload.Some(direction)
	}

	duration, ok := leadingInt(clean(rec, "call_length"))
	if ok {
		in.Duration = payload.Some(duration)
	}

	if phone, ok := person.NormalizeUSPhone(clean(rec, "phone_number")); ok {
		if id, found := b.ids.People.Resolve(ctx, phone); found {
			in.LeadID = payload.Some(id)
		}
	}
	if b.users != nil && userID != "" {
		if name, ok := b.users.Name(ctx, userID); ok {
			if id, found := b.ids.Agents.Resolve(ctx, name); found {
				in.AgentID = payload.Some(id)
			}
		}
	}
	if sourceName != "" {
		id, found, err := b.ids.LeadSources.ResolveOrCreate(ctx, sourceName)
		if err != nil {
			b.log.Warn("lead source not linked", logger.String("source", sourceName), logger.Error(err))
		} else if found {
			in.LeadSourceID = payload.Some(id)
		}
	}

	in.Billable, in.Cost = Bill(b.rules, in.Direction.OrElse(""), queue, sourceName, duration)
	return in, true
}

// callDate converts a dialer timestamp to RFC 3339 UTC. Values already
// carrying a zone are accepted as is.
func (b *CallBuilder) callDate(s string) payload.Optional[string] {
	if s == "" {
		return payload.None[string]()
	}
	if t, err := time.ParseInLocation(convosoTimeLayout, s, b.loc); err == nil {
		return payload.Some(t.UTC().Format(time.RFC3339))
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return payload.Some(t.UTC().Format(time.RFC3339))
	}
	b.log.Debug("unparseable call_date", logger.String("call_date", s))
	return payload.None[string]()
}
