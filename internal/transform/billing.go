package transform

import (
	"strings"

	"github.com/omniaagent/crmsync/internal/crm"
	"github.com/omniaagent/crmsync/internal/payload"
)

const (
	DirectionInbound  = "INBOUND"
	DirectionOutbound = "OUTBOUND"
)

// Bill prices a call against the lead-source rules. Only inbound calls are
// billed. The rule whose name overlaps the queue (or source) label as a
// case-insensitive substring, in either direction, wins; the longest name
// breaks ties.
func Bill(rules []crm.BillingRule, direction, queue, sourceName string, duration int) (bool, payload.Currency) {
	noBill := payload.Currency{CurrencyCode: payload.CurrencyUSD}
	if direction != DirectionInbound {
		return false, noBill
	}

	label := queue
	if label == "" {
		label = sourceName
	}
	label = strings.ToLower(label)
	if label == "" {
		return false, noBill
	}

	var best *crm.BillingRule
	for i := range rules {
		name := strings.ToLower(rules[i].Name)
		if name == "" {
			continue
		}
		if strings.Contains(label, name) || strings.Contains(name, label) {
			if best == nil || len(rules[i].Name) > len(best.Name) {
				best = &rules[i]
			}
		}
	}
	if best == nil {
		return false, noBill
	}

	if best.MinDuration != 0 && duration < best.MinDuration {
		return false, noBill
	}
	return true, payload.Currency{AmountMicros: best.CostMicros, CurrencyCode: payload.CurrencyUSD}
}
