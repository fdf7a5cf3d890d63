package predicate

// Type identifies the variant of a filter clause
type Type int

const (
	// TypeBasic is a column/operator/value comparison
	TypeBasic Type = iota
	// TypeIn matches when the column value is in a set of values
	TypeIn
	// TypeNotIn matches when the column value is not in a set of values
	TypeNotIn
	// TypeNull matches when the column value is null
	TypeNull
	// TypeNotNull matches when the column value is not null
	TypeNotNull
	// TypeBetween matches an inclusive range (or its negation)
	TypeBetween
	// TypeNested owns an independent sub-list of predicates
	TypeNested
	// TypeRaw passes a pre-built filter document through unchanged
	TypeRaw
)

// String returns the string representation of the type
func (t Type) String() string {
	switch t {
	case TypeBasic:
		return "basic"
	case TypeIn:
		return "in"
	case TypeNotIn:
		return "notIn"
	case TypeNull:
		return "null"
	case TypeNotNull:
		return "notNull"
	case TypeBetween:
		return "between"
	case TypeNested:
		return "nested"
	case TypeRaw:
		return "raw"
	default:
		return "unknown"
	}
}

// Predicate represents a single filter clause with a boolean combinator
// relative to its siblings
type Predicate struct {
	// Type selects the variant and which fields below are meaningful
	Type Type
	// Column is the field path, dot-separated for sub-documents
	Column string
	// Operator is the comparison operator for Basic predicates
	Operator string
	// Value is the scalar comparison value
	Value interface{}
	// Values is the ordered value sequence for In, NotIn and Between
	Values []interface{}
	// Boolean joins this predicate to the previous one ("and" or "or")
	Boolean string
	// Not negates a Between predicate
	Not bool
	// Nested is the owned sub-list for Nested predicates
	Nested []Predicate
	// Raw is the pre-built document for Raw predicates
	Raw map[string]interface{}
}
