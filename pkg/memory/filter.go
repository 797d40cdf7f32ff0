package memory

// FilterOp enumerates the operators of the filter DSL exposed to callers
// and to store adapters (§7 of the design).
type FilterOp string

const (
	OpAnd FilterOp = "and"
	OpOr  FilterOp = "or"
	OpNot FilterOp = "not"

	OpEq  FilterOp = "eq"
	OpNe  FilterOp = "ne"
	OpGt  FilterOp = "gt"
	OpGte FilterOp = "gte"
	OpLt  FilterOp = "lt"
	OpLte FilterOp = "lte"

	OpIn        FilterOp = "in"
	OpContains  FilterOp = "contains"
	OpIContains FilterOp = "icontains"

	OpIsNull    FilterOp = "is_null"
	OpIsNotNull FilterOp = "is_not_null"
	OpExists    FilterOp = "exists"
)

// Filter is a single node of the filter expression tree. Logical operators
// (And/Or/Not) hold Children; every other operator holds Field/Value.
// Store adapters translate a Filter tree into their native query language
// (SQL predicates, a document query, etc.); the core never assumes a
// particular backing store.
type Filter struct {
	Op FilterOp

	// Field is a filterable field path: scope fields ("scope.user",
	// "scope.agent", ...), "created_at"/"updated_at"/"accessed_at",
	// "categories", "is_key", "memory_type", "keywords", "id", "ids", or a
	// "metadata.<path>" for provenance/property lookups. Unused by logical
	// operators.
	Field string

	// Value is the comparison operand for comparison/collection operators.
	// For OpIn it is expected to be a slice.
	Value any

	// Children holds the sub-filters for And/Or/Not.
	Children []Filter
}

// And combines filters with logical conjunction.
func And(filters ...Filter) Filter { return Filter{Op: OpAnd, Children: filters} }

// Or combines filters with logical disjunction.
func Or(filters ...Filter) Filter { return Filter{Op: OpOr, Children: filters} }

// Not negates a single filter.
func Not(f Filter) Filter { return Filter{Op: OpNot, Children: []Filter{f}} }

// Eq builds a field == value filter.
func Eq(field string, value any) Filter { return Filter{Op: OpEq, Field: field, Value: value} }

// Ne builds a field != value filter.
func Ne(field string, value any) Filter { return Filter{Op: OpNe, Field: field, Value: value} }

// Gt builds a field > value filter.
func Gt(field string, value any) Filter { return Filter{Op: OpGt, Field: field, Value: value} }

// Gte builds a field >= value filter.
func Gte(field string, value any) Filter { return Filter{Op: OpGte, Field: field, Value: value} }

// Lt builds a field < value filter.
func Lt(field string, value any) Filter { return Filter{Op: OpLt, Field: field, Value: value} }

// Lte builds a field <= value filter.
func Lte(field string, value any) Filter { return Filter{Op: OpLte, Field: field, Value: value} }

// In builds a field IN values filter.
func In(field string, values ...any) Filter { return Filter{Op: OpIn, Field: field, Value: values} }

// Contains builds a substring-match filter (case-sensitive).
func Contains(field, substr string) Filter {
	return Filter{Op: OpContains, Field: field, Value: substr}
}

// IContains builds a case-insensitive substring-match filter.
func IContains(field, substr string) Filter {
	return Filter{Op: OpIContains, Field: field, Value: substr}
}

// IsNull builds a field IS NULL filter.
func IsNull(field string) Filter { return Filter{Op: OpIsNull, Field: field} }

// IsNotNull builds a field IS NOT NULL filter.
func IsNotNull(field string) Filter { return Filter{Op: OpIsNotNull, Field: field} }

// Exists builds a filter matching records where field is present at all
// (distinct from IsNotNull for sparse metadata paths).
func Exists(field string) Filter { return Filter{Op: OpExists, Field: field} }

// ScopeFilter builds the standard (tenant, user, agent[, session]) scope
// predicate every store query must apply. Session is only included in the
// filter when non-empty, matching the Scope.Contains semantics: an empty
// Session scopes across all sessions for the (tenant, user, agent) triple.
func ScopeFilter(tenant, user, agent, session string) Filter {
	clauses := []Filter{
		Eq("scope.user", user),
		Eq("scope.agent", agent),
	}
	if tenant != "" {
		clauses = append(clauses, Eq("scope.tenant", tenant))
	}
	if session != "" {
		clauses = append(clauses, Eq("scope.session", session))
	}
	return And(clauses...)
}
