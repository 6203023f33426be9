package cnst

// DefaultHubSubDepth is the sub-tree depth allowance a tenant receives when
// hub capability is enabled without an explicit limit. A hub always enforces
// a depth budget; unlimited nesting is reserved for the root tenant.
const DefaultHubSubDepth = 2
