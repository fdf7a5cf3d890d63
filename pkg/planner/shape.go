package planner

import (
	"strings"
	"time"
)

// NaturalOrder is the sentinel sort column requesting the store's
// natural cursor order
const NaturalOrder = "$natural"

// unwindMarker splits a field path into the array to flatten and the
// field inside its elements
const unwindMarker = ".*."

// Order represents one sort entry. Direction is 1 for ascending and -1
// for descending.
type Order struct {
	Column    string
	Direction int
}

// AggregateSpec describes a requested aggregate function over one or
// more field paths. A path containing a ".*." segment means the field
// lives inside an array that must be flattened first.
type AggregateSpec struct {
	Function string
	Columns  []string
}

// Shape is the full query state consumed by the planner
type Shape struct {
	// Columns is the projection list
	Columns []string
	// Groups is the ordered group-by field list
	Groups []string
	// Aggregate is the requested aggregate function, if any
	Aggregate *AggregateSpec
	// Orders is the ordered sort specification
	Orders []Order
	// Offset is the number of documents to skip (0 = unset)
	Offset int
	// Limit is the maximum number of documents to return (0 = unset)
	Limit int
	// Distinct requests a distinct-value fetch
	Distinct bool
	// Projections holds explicit field-inclusion overrides
	Projections map[string]interface{}
	// Options is an opaque passthrough merged last into built options
	Options map[string]interface{}
	// Paginating is set by page-based limiting
	Paginating bool
	// MaxTime is the maximum server-side execution time hint
	MaxTime time.Duration
}

// splitUnwind splits an unwind-qualified column into the array path
// and the flattened field path. The second return is false when the
// column carries no unwind marker.
func splitUnwind(column string) (arrayPath, flattened string, ok bool) {
	parts := strings.SplitN(column, unwindMarker, 2)
	if len(parts) != 2 {
		return "", column, false
	}
	return parts[0], parts[0] + "." + parts[1], true
}
