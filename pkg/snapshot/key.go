package snapshot

// ResourceType names one of the parallel data streams tracked per scope.
type ResourceType string

const (
	ResourceInventory   ResourceType = "inventory"
	ResourceAdditions   ResourceType = "additions"
	ResourceWithdrawals ResourceType = "withdrawals"
	ResourceScopes      ResourceType = "scopes"
	ResourceSummary     ResourceType = "summary"
)

// AllResourceTypes lists every per-scope stream a stock mutation can affect.
// ResourceScopes is deliberately excluded: the scope list itself is not
// partitioned by scope.
var AllResourceTypes = []ResourceType{
	ResourceInventory,
	ResourceAdditions,
	ResourceWithdrawals,
}

// Key is the composite cache key: which scope (e.g. a warehouse) and which
// resource stream within it. Equality is structural, so Key is usable
// directly as a map key.
type Key struct {
	ScopeID  string
	Resource ResourceType
}

// NewKey builds a Key for a scope-partitioned resource.
func NewKey(scopeID string, resource ResourceType) Key {
	return Key{ScopeID: scopeID, Resource: resource}
}

// String renders the key in "scope:resource" form, used for Redis keys and
// log fields.
func (k Key) String() string {
	return k.ScopeID + ":" + string(k.Resource)
}
