// Package crm wraps the CRM's GraphQL schema in typed finds, creates and
// cursor listings.
package crm

import (
	"context"
	"fmt"
	"time"

	"github.com/antonholmquist/jason"

	"github.com/omniaagent/crmsync/internal/errors"
	"github.com/omniaagent/crmsync/internal/graphql"
	"github.com/omniaagent/crmsync/internal/logger"
	"github.com/omniaagent/crmsync/internal/payload"
)

// DefaultPageSize is the `first` argument of cursor listings.
const DefaultPageSize = 500

// Client issues typed CRM operations over a GraphQL executor.
type Client struct {
	exec graphql.Executor
	log  logger.Logger
}

// New returns a CRM client. A nil logger uses the module logger.
func New(exec graphql.Executor, log logger.Logger) *Client {
	if log == nil {
		log = GetLogger()
	}
	return &Client{exec: exec, log: log}
}

func (c *Client) findFirst(ctx context.Context, connection, typeName string, filter map[string]any) (string, bool, error) {
	q := fmt.Sprintf(`query Find%[2]s($filter: %[2]sFilterInput) {
  %[1]s(filter: $filter, first: 1) { edges { node { id } } }
}`, connection, typeName)

	data, err := c.exec.Query(ctx, q, map[string]any{"filter": filter})
	if err != nil {
		return "", false, err
	}
	id, ok := graphql.FirstNodeID(data, connection)
	return id, ok, nil
}

func (c *Client) create(ctx context.Context, typeName string, input any) (string, error) {
	mutation := "create" + typeName
	q := fmt.Sprintf(`mutation Create%[1]s($input: %[1]sCreateInput!) {
  %[2]s(data: $input) { id }
}`, typeName, mutation)

	data, err := c.exec.Mutate(ctx, q, map[string]any{"input": input})
	if err != nil {
		return "", err
	}
	id, ok := graphql.CreatedID(data, mutation)
	if !ok {
		return "", errors.Newf("%s returned no id", mutation).
			Component("crm").
			Category(errors.CategoryIntegration).
			Context("operation", mutation).
			Build()
	}
	return id, nil
}

// FindByName returns the ID of the first e whose name matches.
func (c *Client) FindByName(ctx context.Context, e Entity, name string) (string, bool, error) {
	return c.findFirst(ctx, e.Connection, e.TypeName, e.nameFilter(name))
}

// CreateNamed creates e with only a name.
func (c *Client) CreateNamed(ctx context.Context, e Entity, name string) (string, error) {
	if !e.Creatable {
		return "", errors.Newf("%s records cannot be created", e.Kind).
			Component("crm").
			Category(errors.CategoryValidation).
			Build()
	}
	return c.create(ctx, e.TypeName, payload.NamedInput{Name: name})
}

// FindPersonByPhone looks a person up by normalized primary phone.
func (c *Client) FindPersonByPhone(ctx context.Context, phone string) (string, bool, error) {
	filter := map[string]any{"phones": map[string]any{"primaryPhoneNumber": map[string]any{"eq": phone}}}
	return c.findFirst(ctx, "people", "Person", filter)
}

func (c *Client) CreatePerson(ctx context.Context, in payload.PersonInput) (string, error) {
	return c.create(ctx, "Person", in)
}

func (c *Client) CreatePolicy(ctx context.Context, in payload.PolicyInput) (string, error) {
	return c.create(ctx, "Policy", in)
}

func (c *Client) CreateCall(ctx context.Context, in payload.CallInput) (string, error) {
	return c.create(ctx, "Call", in)
}

// PolicyExists reports whether a policy with oldCrmPolicyId == externalID exists.
func (c *Client) PolicyExists(ctx context.Context, externalID string) (bool, error) {
	_, ok, err := c.findFirst(ctx, "policies", "Policy", map[string]any{"oldCrmPolicyId": map[string]any{"eq": externalID}})
	return ok, err
}

// CallExists reports whether a call with convosoCallId == callID exists.
func (c *Client) CallExists(ctx context.Context, callID string) (bool, error) {
	_, ok, err := c.findFirst(ctx, "calls", "Call", map[string]any{"convosoCallId": map[string]any{"eq": callID}})
	return ok, err
}

// listField pages connection with `first: pageSize` and hands every non-empty
// value of field to fn.
func (c *Client) listField(ctx context.Context, connection, typeName, field string, filter map[string]any, pageSize int, fn func(string)) error {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	q := fmt.Sprintf(`query List%[2]s($first: Int, $after: String, $filter: %[2]sFilterInput) {
  %[1]s(first: $first, after: $after, filter: $filter) {
    pageInfo { hasNextPage endCursor }
    edges { node { %[3]s } }
  }
}`, connection, typeName, field)

	var cursor string
	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		vars := map[string]any{"first": pageSize}
		if cursor != "" {
			vars["after"] = cursor
		}
		if filter != nil {
			vars["filter"] = filter
		}

		data, err := c.exec.Query(ctx, q, vars)
		if err != nil {
			return errors.New(err).
				Component("crm").
				Category(errors.CategoryPagination).
				Context("operation", "list_"+connection).
				Context("page", page).
				Build()
		}
		for _, node := range graphql.Nodes(data, connection) {
			if v, err := node.GetString(field); err == nil && v != "" {
				fn(v)
			}
		}

		info := graphql.GetPageInfo(data, connection)
		if !info.HasNextPage || info.EndCursor == "" {
			return nil
		}
		cursor = info.EndCursor
	}
}

// ListPolicyExternalIDs streams every oldCrmPolicyId in the CRM.
func (c *Client) ListPolicyExternalIDs(ctx context.Context, pageSize int, fn func(string)) error {
	return c.listField(ctx, "policies", "Policy", "oldCrmPolicyId", nil, pageSize, fn)
}

// ListCallIDsSince streams the convosoCallId of calls dated on or after since.
func (c *Client) ListCallIDsSince(ctx context.Context, since time.Time, pageSize int, fn func(string)) error {
	filter := map[string]any{"callDate": map[string]any{"gte": since.UTC().Format(time.RFC3339)}}
	return c.listField(ctx, "calls", "Call", "convosoCallId", filter, pageSize, fn)
}

// BillingRule is the call pricing configured on a lead source.
type BillingRule struct {
	Name        string
	CostMicros  int64
	MinDuration int
}

// BillingRules loads the pricing of every lead source.
func (c *Client) BillingRules(ctx context.Context) ([]BillingRule, error) {
	const q = `query LeadSourceBilling($first: Int, $after: String) {
  leadSources(first: $first, after: $after) {
    pageInfo { hasNextPage endCursor }
    edges { node { name costPerCall { amountMicros } minimumCallDuration } }
  }
}`
	var (
		rules  []BillingRule
		cursor string
	)
	for {
		vars := map[string]any{"first": 50}
		if cursor != "" {
			vars["after"] = cursor
		}
		data, err := c.exec.Query(ctx, q, vars)
		if err != nil {
			return nil, err
		}
		for _, node := range graphql.Nodes(data, "leadSources") {
			if rule, ok := billingRule(node); ok {
				rules = append(rules, rule)
			}
		}
		info := graphql.GetPageInfo(data, "leadSources")
		if !info.HasNextPage || info.EndCursor == "" {
			break
		}
		cursor = info.EndCursor
	}
	c.log.Debug("loaded billing rules", logger.Int("count", len(rules)))
	return rules, nil
}

func billingRule(node *jason.Object) (BillingRule, bool) {
	name, err := node.GetString("name")
	if err != nil || name == "" {
		return BillingRule{}, false
	}
	rule := BillingRule{Name: name}
	// amountMicros arrives as a number or a numeric string depending on the CRM version
	if v, err := node.GetValue("costPerCall", "amountMicros"); err == nil {
		rule.CostMicros = jsonInt(v)
	}
	if v, err := node.GetValue("minimumCallDuration"); err == nil {
		rule.MinDuration = int(jsonInt(v))
	}
	return rule, true
}

func jsonInt(v *jason.Value) int64 {
	if n, err := v.Int64(); err == nil {
		return n
	}
	if f, err := v.Float64(); err == nil {
		return int64(f)
	}
	if s, err := v.String(); err == nil {
		var n int64
		if _, err := fmt.Sscan(s, &n); err == nil {
			return n
		}
	}
	return 0
}
