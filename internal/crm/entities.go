package crm

// Match selects how a name filter compares.
type Match int

const (
	MatchEq Match = iota
	// MatchLike wraps the name in %...% and uses the `like` operator.
	MatchLike
)

// Entity describes a name-keyed CRM object.
type Entity struct {
	Kind       string // metric and log label
	Connection string // plural query field, e.g. carriers
	TypeName   string // GraphQL type prefix, e.g. Carrier
	Match      Match
	Creatable  bool
}

var (
	Carriers    = Entity{Kind: "carrier", Connection: "carriers", TypeName: "Carrier", Match: MatchEq, Creatable: true}
	Products    = Entity{Kind: "product", Connection: "products", TypeName: "Product", Match: MatchEq, Creatable: true}
	Agents      = Entity{Kind: "agent", Connection: "agentProfiles", TypeName: "AgentProfile", Match: MatchLike}
	LeadSources = Entity{Kind: "lead_source", Connection: "leadSources", TypeName: "LeadSource", Match: MatchEq, Creatable: true}
)

func (e Entity) nameFilter(name string) map[string]any {
	if e.Match == MatchLike {
		return map[string]any{"name": map[string]any{"like": "%" + name + "%"}}
	}
	return map[string]any{"name": map[string]any{"eq": name}}
}
