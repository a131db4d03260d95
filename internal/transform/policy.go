// Package transform turns source records into CRM create payloads.
package transform

import (
	"context"
	"math"
	"strconv"
	"strings"

	"github.com/omniaagent/crmsync/internal/identity"
	"github.com/omniaagent/crmsync/internal/logger"
	"github.com/omniaagent/crmsync/internal/payload"
	"github.com/omniaagent/crmsync/internal/source"
)

const zeroDate = "0000-00-00"

var policyStatuses = map[string]string{
	"submitted":                       "SUBMITTED",
	"pending":                         "PENDING",
	"declined":                        "DECLINED",
	"canceled":                        "CANCELED",
	"incomplete":                      "INCOMPLETE",
	"active / approved":               "ACTIVE_APPROVED",
	"active/approved":                 "ACTIVE_APPROVED",
	"active / placed":                 "ACTIVE_PLACED",
	"active/placed":                   "ACTIVE_PLACED",
	"payment error - canceled":        "PAYMENT_ERROR_CANCELED",
	"payment error - active/approved": "PAYMENT_ERROR_ACTIVE_APPROVED",
	"payment error - active/placed":   "PAYMENT_ERROR_ACTIVE_PLACED",
}

// MapStatus maps a legacy status name to the CRM's status option.
func MapStatus(name string) (string, bool) {
	s, ok := policyStatuses[strings.ToLower(strings.TrimSpace(name))]
	return s, ok
}

// PremiumMicros converts a decimal dollar amount to micros. Zero, negative
// and unparseable amounts report false.
func PremiumMicros(s string) (int64, bool) {
	x, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(x) || math.IsInf(x, 0) || x <= 0 {
		return 0, false
	}
	return int64(math.Round(x * 1e6)), true
}

// PolicyName is "Carrier - Product", with Unknown standing in for a missing side.
func PolicyName(carrier, product string) string {
	switch {
	case carrier == "" && product == "":
		return "Policy"
	case carrier == "":
		carrier = "Unknown"
	case product == "":
		product = "Unknown"
	}
	return carrier + " - " + product
}

func date(rec source.Record, field string) payload.Optional[string] {
	d := rec.Trimmed(field)
	if d == zeroDate {
		return payload.None[string]()
	}
	return payload.NonEmpty(d)
}

// PolicyBuilder builds createPolicy payloads, resolving relations through a
// run's identity caches.
type PolicyBuilder struct {
	ids *identity.Set
	log logger.Logger
}

func NewPolicyBuilder(ids *identity.Set, log logger.Logger) *PolicyBuilder {
	if log == nil {
		log = GetLogger()
	}
	return &PolicyBuilder{ids: ids, log: log}
}

// Build returns the payload for rec linked to personID. Each relation that
// cannot be resolved is left out.
func (b *PolicyBuilder) Build(ctx context.Context, rec source.Record, personID string) payload.PolicyInput {
	carrier := rec.Trimmed("carrier_name")
	product := rec.Trimmed("product_name")

	in := payload.PolicyInput{
		Name:           PolicyName(carrier, product),
		PolicyNumber:   rec.Get("policy_number"),
		LeadID:         personID,
		OldCrmPolicyID: rec.Trimmed("policy_id"),
		EffectiveDate:  date(rec, "effective_date"),
		ExpirationDate: date(rec, "expires_date"),
		SubmittedDate:  date(rec, "reg_date"),
	}

	if micros, ok := PremiumMicros(rec.Get("total_premium")); ok {
		in.Premium = payload.Some(payload.Currency{AmountMicros: micros, CurrencyCode: payload.CurrencyUSD})
	}
	if status, ok := MapStatus(rec.Get("status_name")); ok {
		in.Status = payload.Some(status)
	}

	if carrier != "" {
		in.CarrierID = b.resolveOrCreate(ctx, b.ids.Carriers, carrier)
	}
	if product != "" {
		in.ProductID = b.resolveOrCreate(ctx, b.ids.Products, product)
	}
	if agent := rec.Trimmed("member_name"); agent != "" {
		if id, ok := b.ids.Agents.Resolve(ctx, agent); ok {
			in.AgentID = payload.Some(id)
		}
	}
	return in
}

func (b *PolicyBuilder) resolveOrCreate(ctx context.Context, c *identity.Cache, name string) payload.Optional[string] {
	id, ok, err := c.ResolveOrCreate(ctx, name)
	if err != nil {
		b.log.Warn("relation not linked",
			logger.String("entity", c.Kind()),
			logger.String("name", name),
			logger.Error(err))
		return payload.None[string]()
	}
	if !ok {
		return payload.None[string]()
	}
	return payload.Some(id)
}
