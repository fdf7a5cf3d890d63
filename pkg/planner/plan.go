package planner

import "strings"

// Kind identifies the execution strategy chosen for a query
type Kind int

const (
	// KindFind is a plain filtered fetch
	KindFind Kind = iota
	// KindDistinct is a distinct-value fetch on a single field
	KindDistinct
	// KindAggregate is a multi-stage aggregation
	KindAggregate
)

// String returns the string representation of the plan kind
func (k Kind) String() string {
	switch k {
	case KindFind:
		return "find"
	case KindDistinct:
		return "distinct"
	case KindAggregate:
		return "aggregate"
	default:
		return "unknown"
	}
}

// AggregateField is the synthetic result field carrying the value of a
// pure aggregate-function query
const AggregateField = "aggregate"

// Plan is the execution plan produced for a query shape
type Plan struct {
	// Kind selects the store operation to dispatch
	Kind Kind
	// Filter is the compiled filter document (Find and Distinct; the
	// Aggregate kind embeds it in a $match stage instead)
	Filter map[string]interface{}
	// Options is the options document for Find, or the opaque
	// passthrough options for Aggregate
	Options map[string]interface{}
	// Field is the target field of a Distinct plan
	Field string
	// Pipeline is the ordered stage list of an Aggregate plan
	Pipeline []map[string]interface{}
}

// Build decides the execution strategy for a query shape and compiled
// filter. Aggregation wins whenever grouping, an aggregate function or
// pagination-with-projection is requested; a distinct fetch is used
// when no aggregation is required; everything else is a plain find.
func Build(shape *Shape, filter map[string]interface{}) *Plan {
	if len(shape.Groups) > 0 || shape.Aggregate != nil || shape.Paginating {
		return buildAggregate(shape, filter)
	}
	if shape.Distinct {
		return buildDistinct(shape, filter)
	}
	return buildFind(shape, filter)
}

// buildAggregate assembles the aggregation stage sequence. The stage
// order is fixed: match, unwind, group, sort, skip, limit, project.
func buildAggregate(shape *Shape, filter map[string]interface{}) *Plan {
	group := make(map[string]interface{})
	var unwinds []string

	if len(shape.Groups) > 0 {
		id := make(map[string]interface{}, len(shape.Groups))
		for _, column := range shape.Groups {
			id[column] = "$" + column
		}
		group["_id"] = id

		// A $last accumulator per grouped and selected field keeps the
		// last seen value, emulating relational group-by semantics over
		// an unordered cursor.
		for _, column := range shape.Groups {
			group[column] = map[string]interface{}{"$last": "$" + column}
		}
		for _, column := range shape.Columns {
			key := strings.ReplaceAll(column, ".", "_")
			group[key] = map[string]interface{}{"$last": "$" + column}
		}
	}

	if shape.Aggregate != nil {
		for _, column := range shape.Aggregate.Columns {
			if arrayPath, flattened, ok := splitUnwind(column); ok {
				unwinds = append(unwinds, arrayPath)
				column = flattened
			}

			if shape.Aggregate.Function == "count" {
				// Count lowers to a literal-one sum.
				group[AggregateField] = map[string]interface{}{"$sum": 1}
			} else {
				group[AggregateField] = map[string]interface{}{
					"$" + shape.Aggregate.Function: "$" + column,
				}
			}
		}
	}

	projections := make(map[string]interface{}, len(shape.Projections))
	for key, value := range shape.Projections {
		projections[key] = value
	}
	if shape.Paginating {
		// Some execution engines only apply skip/limit early when the
		// returned columns are projected explicitly.
		for _, column := range shape.Columns {
			projections[column] = 1
		}
	}

	// The _id key is mandatory even when nothing is grouped.
	if len(group) > 0 {
		if _, ok := group["_id"]; !ok {
			group["_id"] = nil
		}
	}

	var pipeline []map[string]interface{}
	if len(filter) > 0 {
		pipeline = append(pipeline, map[string]interface{}{"$match": filter})
	}
	for _, unwind := range unwinds {
		pipeline = append(pipeline, map[string]interface{}{"$unwind": "$" + unwind})
	}
	if len(group) > 0 {
		pipeline = append(pipeline, map[string]interface{}{"$group": group})
	}
	if len(shape.Orders) > 0 {
		pipeline = append(pipeline, map[string]interface{}{"$sort": sortDocument(shape.Orders)})
	}
	if shape.Offset > 0 {
		pipeline = append(pipeline, map[string]interface{}{"$skip": shape.Offset})
	}
	if shape.Limit > 0 {
		pipeline = append(pipeline, map[string]interface{}{"$limit": shape.Limit})
	}
	if len(projections) > 0 {
		pipeline = append(pipeline, map[string]interface{}{"$project": projections})
	}

	return &Plan{
		Kind:     KindAggregate,
		Pipeline: pipeline,
		Options:  shape.Options,
	}
}

// buildDistinct targets a single field, defaulting to the identifier
// field when none is selected
func buildDistinct(shape *Shape, filter map[string]interface{}) *Plan {
	field := "_id"
	if len(shape.Columns) > 0 {
		field = shape.Columns[0]
	}

	plan := &Plan{Kind: KindDistinct, Field: field}
	if len(filter) > 0 {
		plan.Filter = filter
	}
	return plan
}

// buildFind constructs the options document for a plain fetch. Option
// fields appear only when set; the shape's opaque options merge last
// and win on conflict.
func buildFind(shape *Shape, filter map[string]interface{}) *Plan {
	options := make(map[string]interface{})

	projection := make(map[string]interface{})
	for _, column := range shape.Columns {
		if column == "" || column == "*" {
			continue
		}
		projection[column] = 1
	}
	for key, value := range shape.Projections {
		projection[key] = value
	}

	if shape.MaxTime > 0 {
		options["maxTimeMS"] = shape.MaxTime.Milliseconds()
	}
	if len(shape.Orders) > 0 {
		options["sort"] = sortDocument(shape.Orders)
	}
	if shape.Offset > 0 {
		options["skip"] = shape.Offset
	}
	if shape.Limit > 0 {
		options["limit"] = shape.Limit
	}
	if len(projection) > 0 {
		options["projection"] = projection
	}
	for key, value := range shape.Options {
		options[key] = value
	}

	return &Plan{Kind: KindFind, Filter: filter, Options: options}
}

func sortDocument(orders []Order) map[string]interface{} {
	sort := make(map[string]interface{}, len(orders))
	for _, order := range orders {
		sort[order.Column] = order.Direction
	}
	return sort
}
