package payload

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionalOmittedWhenAbsent(t *testing.T) {
	in := PolicyInput{
		Name:           "Acme - Gold",
		PolicyNumber:   "",
		LeadID:         "person-1",
		OldCrmPolicyID: "42",
		Status:         Some("ACTIVE_PLACED"),
	}

	data, err := json.Marshal(in)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))

	assert.Equal(t, "ACTIVE_PLACED", got["status"])
	assert.Contains(t, got, "policyNumber")
	for _, key := range []string{"premium", "effectiveDate", "carrierId", "productId", "agentId"} {
		assert.NotContains(t, got, key)
	}
}

func TestOptionalRoundTrip(t *testing.T) {
	var o Optional[int]
	require.NoError(t, json.Unmarshal([]byte("12"), &o))
	v, ok := o.Get()
	assert.True(t, ok)
	assert.Equal(t, 12, v)

	require.NoError(t, json.Unmarshal([]byte("null"), &o))
	assert.True(t, o.IsZero())
	assert.Equal(t, 7, o.OrElse(7))
}

func TestNonEmpty(t *testing.T) {
	assert.True(t, NonEmpty("").IsZero())
	assert.Equal(t, "x", NonEmpty("x").OrElse(""))
}

func TestPersonWithoutEmail(t *testing.T) {
	p := PersonInput{
		Name:       FullName{FirstName: "Jane", LastName: "Doe"},
		Phones:     Phones{PrimaryPhoneNumber: "5551234567", PrimaryPhoneCallingCode: DefaultCallingCode},
		Emails:     Some(Emails{PrimaryEmail: "jane@example.com"}),
		LeadStatus: LeadStatusContacted,
	}

	stripped := p.WithoutEmail()
	assert.True(t, stripped.Emails.IsZero())
	assert.False(t, p.Emails.IsZero(), "original must be untouched")

	data, err := json.Marshal(stripped)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "emails")
	assert.NotContains(t, string(data), "addressCustom")
}

func TestCallInputCostAlwaysPresent(t *testing.T) {
	data, err := json.Marshal(CallInput{Name: "Inbound - Sales", ConvosoCallID: "9", Cost: Currency{CurrencyCode: CurrencyUSD}})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"cost":{"amountMicros":0,"currencyCode":"USD"}`)
	assert.Contains(t, string(data), `"billable":false`)
}
