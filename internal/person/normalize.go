// Package person normalizes contact data and creates people that a
// migrated record references but the CRM does not know yet.
package person

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/omniaagent/crmsync/internal/payload"
	"github.com/omniaagent/crmsync/internal/source"
)

// placeholderEmails are filler addresses entered when a customer had none.
var placeholderEmails = map[string]struct{}{
	"none@none.com":       {},
	"test@test.com":       {},
	"n/a@n/a.com":         {},
	"na@na.com":           {},
	"noemail@noemail.com": {},
	"no@email.com":        {},
	"none@gmail.com":      {},
	"none@email.com":      {},
	"fake@fakemail.com":   {},
}

func digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizePhone keeps digits only and drops a leading US country code.
func NormalizePhone(s string) (string, bool) {
	d := digits(s)
	if len(d) == 11 && d[0] == '1' {
		d = d[1:]
	}
	return d, d != ""
}

// NormalizeUSPhone is NormalizePhone restricted to exactly ten digits.
func NormalizeUSPhone(s string) (string, bool) {
	d, ok := NormalizePhone(s)
	if !ok || len(d) != 10 {
		return "", false
	}
	return d, true
}

// CleanEmail returns a lowercased usable address, rejecting placeholders.
func CleanEmail(s string) (string, bool) {
	e := strings.TrimSpace(s)
	if e == "" || !strings.Contains(e, "@") {
		return "", false
	}
	e = strings.ToLower(e)
	if _, bad := placeholderEmails[e]; bad {
		return "", false
	}
	return e, true
}

var titleCaser = cases.Title(language.English)

func titleName(s string) string {
	return titleCaser.String(strings.TrimSpace(s))
}

// BuildInput builds the createPerson payload for rec. agentID may be empty.
func BuildInput(rec source.Record, phone, agentID string) payload.PersonInput {
	in := payload.PersonInput{
		Name: payload.FullName{
			FirstName: titleName(rec.Get("first_name")),
			LastName:  titleName(rec.Get("last_name")),
		},
		Phones: payload.Phones{
			PrimaryPhoneNumber:      phone,
			PrimaryPhoneCallingCode: payload.DefaultCallingCode,
		},
		AssignedAgentID: payload.NonEmpty(agentID),
		LeadStatus:      payload.LeadStatusContacted,
	}

	if email, ok := CleanEmail(rec.Get("email")); ok {
		in.Emails = payload.Some(payload.Emails{PrimaryEmail: email})
	}

	city, state, zip := rec.Trimmed("city"), rec.Trimmed("state_name"), rec.Trimmed("zipcode")
	if city != "" || state != "" || zip != "" {
		in.AddressCustom = payload.Some(payload.Address{
			AddressCity:     payload.NonEmpty(city),
			AddressState:    payload.NonEmpty(state),
			AddressPostcode: payload.NonEmpty(zip),
			AddressCountry:  payload.DefaultCountry,
		})
	}
	return in
}
