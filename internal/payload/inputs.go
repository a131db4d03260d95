package payload

const (
	CurrencyUSD         = "USD"
	DefaultCallingCode  = "+1"
	DefaultCountry      = "United States"
	LeadStatusContacted = "CONTACTED"
)

// FullName is the CRM's composite name field.
type FullName struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// Phones is the CRM's composite phones field.
type Phones struct {
	PrimaryPhoneNumber      string `json:"primaryPhoneNumber"`
	PrimaryPhoneCallingCode string `json:"primaryPhoneCallingCode"`
}

// Emails is the CRM's composite emails field.
type Emails struct {
	PrimaryEmail string `json:"primaryEmail"`
}

// Address is the CRM's composite address field.
type Address struct {
	AddressCity     Optional[string] `json:"addressCity,omitzero"`
	AddressState    Optional[string] `json:"addressState,omitzero"`
	AddressPostcode Optional[string] `json:"addressPostcode,omitzero"`
	AddressCountry  string           `json:"addressCountry"`
}

// Currency is the CRM's composite currency field. Amounts are micros.
type Currency struct {
	AmountMicros int64  `json:"amountMicros"`
	CurrencyCode string `json:"currencyCode"`
}

// PersonInput is the body of createPerson.
type PersonInput struct {
	Name            FullName          `json:"name"`
	Phones          Phones            `json:"phones"`
	Emails          Optional[Emails]  `json:"emails,omitzero"`
	AddressCustom   Optional[Address] `json:"addressCustom,omitzero"`
	AssignedAgentID Optional[string]  `json:"assignedAgentId,omitzero"`
	LeadStatus      string            `json:"leadStatus"`
}

// WithoutEmail returns a copy of p with the email removed.
func (p PersonInput) WithoutEmail() PersonInput {
	p.Emails = None[Emails]()
	return p
}

// PolicyInput is the body of createPolicy.
type PolicyInput struct {
	Name           string             `json:"name"`
	PolicyNumber   string             `json:"policyNumber"`
	LeadID         string             `json:"leadId"`
	OldCrmPolicyID string             `json:"oldCrmPolicyId"`
	Premium        Optional[Currency] `json:"premium,omitzero"`
	Status         Optional[string]   `json:"status,omitzero"`
	EffectiveDate  Optional[string]   `json:"effectiveDate,omitzero"`
	ExpirationDate Optional[string]   `json:"expirationDate,omitzero"`
	SubmittedDate  Optional[string]   `json:"submittedDate,omitzero"`
	CarrierID      Optional[string]   `json:"carrierId,omitzero"`
	ProductID      Optional[string]   `json:"productId,omitzero"`
	AgentID        Optional[string]   `json:"agentId,omitzero"`
}

// CallInput is the body of createCall.
type CallInput struct {
	Name          string           `json:"name"`
	ConvosoCallID string           `json:"convosoCallId"`
	ConvosoLeadID Optional[string] `json:"convosoLeadId,omitzero"`
	Status        string           `json:"status"`
	StatusName    string           `json:"statusName"`
	CallDate      Optional[string] `json:"callDate,omitzero"`
	Duration      Optional[int]    `json:"duration,omitzero"`
	QueueName     Optional[string] `json:"queueName,omitzero"`
	Direction     Optional[string] `json:"direction,omitzero"`
	LeadID        Optional[string] `json:"leadId,omitzero"`
	AgentID       Optional[string] `json:"agentId,omitzero"`
	LeadSourceID  Optional[string] `json:"leadSourceId,omitzero"`
	Billable      bool             `json:"billable"`
	Cost          Currency         `json:"cost"`
}

// NamedInput is the body of createCarrier, createProduct and createLeadSource.
type NamedInput struct {
	Name string `json:"name"`
}
