// Package builder provides the fluent query front-end: it collects
// predicates and query shape, compiles them through the predicate
// compiler and pipeline planner, and dispatches the resulting plan to
// a store driver.
package builder

import (
	"fmt"
	"time"

	"github.com/mnohosten/laura-query/pkg/cache"
	"github.com/mnohosten/laura-query/pkg/driver"
	"github.com/mnohosten/laura-query/pkg/mutation"
	"github.com/mnohosten/laura-query/pkg/planner"
	"github.com/mnohosten/laura-query/pkg/predicate"
)

// Builder accumulates the state of one query. Builders are built
// incrementally, consumed once and discarded; they are not safe for
// concurrent use.
type Builder struct {
	driver driver.Driver
	wheres []predicate.Predicate
	shape  planner.Shape
	cache  *cache.Cache
}

// New creates a query builder over a store driver
func New(d driver.Driver) *Builder {
	return &Builder{driver: d}
}

// Cached memoizes read results in the given cache, keyed by the query
// fingerprint
func (b *Builder) Cached(c *cache.Cache) *Builder {
	b.cache = c
	return b
}

// Where adds an and-joined predicate. Call as Where(column, value) for
// equality or Where(column, operator, value).
func (b *Builder) Where(column string, args ...interface{}) *Builder {
	return b.addWhere("and", column, args...)
}

// OrWhere adds an or-joined predicate
func (b *Builder) OrWhere(column string, args ...interface{}) *Builder {
	return b.addWhere("or", column, args...)
}

func (b *Builder) addWhere(boolean, column string, args ...interface{}) *Builder {
	p := predicate.Predicate{
		Type:    predicate.TypeBasic,
		Column:  column,
		Boolean: boolean,
	}

	switch len(args) {
	case 1:
		p.Value = args[0]
	case 2:
		if op, ok := args[0].(string); ok {
			p.Operator = op
		}
		p.Value = args[1]
	}

	b.wheres = append(b.wheres, p)
	return b
}

// WhereIn matches when the column value is in the given set
func (b *Builder) WhereIn(column string, values []interface{}) *Builder {
	return b.addSetWhere(predicate.TypeIn, "and", column, values)
}

// OrWhereIn is the or-joined form of WhereIn
func (b *Builder) OrWhereIn(column string, values []interface{}) *Builder {
	return b.addSetWhere(predicate.TypeIn, "or", column, values)
}

// WhereNotIn matches when the column value is not in the given set
func (b *Builder) WhereNotIn(column string, values []interface{}) *Builder {
	return b.addSetWhere(predicate.TypeNotIn, "and", column, values)
}

func (b *Builder) addSetWhere(t predicate.Type, boolean, column string, values []interface{}) *Builder {
	b.wheres = append(b.wheres, predicate.Predicate{
		Type:    t,
		Column:  column,
		Values:  values,
		Boolean: boolean,
	})
	return b
}

// WhereNull matches when the column is null or absent
func (b *Builder) WhereNull(column string) *Builder {
	b.wheres = append(b.wheres, predicate.Predicate{
		Type: predicate.TypeNull, Column: column, Boolean: "and",
	})
	return b
}

// WhereNotNull matches when the column is present and not null
func (b *Builder) WhereNotNull(column string) *Builder {
	b.wheres = append(b.wheres, predicate.Predicate{
		Type: predicate.TypeNotNull, Column: column, Boolean: "and",
	})
	return b
}

// OrWhereNull is the or-joined form of WhereNull
func (b *Builder) OrWhereNull(column string) *Builder {
	b.wheres = append(b.wheres, predicate.Predicate{
		Type: predicate.TypeNull, Column: column, Boolean: "or",
	})
	return b
}

// OrWhereNotNull is the or-joined form of WhereNotNull
func (b *Builder) OrWhereNotNull(column string) *Builder {
	b.wheres = append(b.wheres, predicate.Predicate{
		Type: predicate.TypeNotNull, Column: column, Boolean: "or",
	})
	return b
}

// WhereBetween matches when the column value lies in the inclusive
// range [lower, upper]
func (b *Builder) WhereBetween(column string, lower, upper interface{}) *Builder {
	return b.addBetween("and", column, lower, upper, false)
}

// WhereNotBetween matches when the column value lies outside or on the
// boundaries of the range
func (b *Builder) WhereNotBetween(column string, lower, upper interface{}) *Builder {
	return b.addBetween("and", column, lower, upper, true)
}

// OrWhereBetween is the or-joined form of WhereBetween
func (b *Builder) OrWhereBetween(column string, lower, upper interface{}) *Builder {
	return b.addBetween("or", column, lower, upper, false)
}

func (b *Builder) addBetween(boolean, column string, lower, upper interface{}, not bool) *Builder {
	b.wheres = append(b.wheres, predicate.Predicate{
		Type:    predicate.TypeBetween,
		Column:  column,
		Values:  []interface{}{lower, upper},
		Boolean: boolean,
		Not:     not,
	})
	return b
}

// WhereNested groups the predicates added by fn into an independent
// sub-context
func (b *Builder) WhereNested(fn func(*Builder)) *Builder {
	return b.addNested("and", fn)
}

// OrWhereNested is the or-joined form of WhereNested
func (b *Builder) OrWhereNested(fn func(*Builder)) *Builder {
	return b.addNested("or", fn)
}

func (b *Builder) addNested(boolean string, fn func(*Builder)) *Builder {
	sub := New(b.driver)
	fn(sub)
	b.wheres = append(b.wheres, predicate.Predicate{
		Type:    predicate.TypeNested,
		Boolean: boolean,
		Nested:  sub.wheres,
	})
	return b
}

// WhereRaw passes a pre-built filter document straight through
func (b *Builder) WhereRaw(doc map[string]interface{}) *Builder {
	b.wheres = append(b.wheres, predicate.Predicate{
		Type: predicate.TypeRaw, Raw: doc, Boolean: "and",
	})
	return b
}

// Select sets the projection list
func (b *Builder) Select(columns ...string) *Builder {
	b.shape.Columns = columns
	return b
}

// Distinct requests distinct values of the first selected column
func (b *Builder) Distinct() *Builder {
	b.shape.Distinct = true
	return b
}

// GroupBy appends grouping columns
func (b *Builder) GroupBy(columns ...string) *Builder {
	b.shape.Groups = append(b.shape.Groups, columns...)
	return b
}

// OrderBy appends a sort entry; direction is 1 for ascending, -1 for
// descending
func (b *Builder) OrderBy(column string, direction int) *Builder {
	b.shape.Orders = append(b.shape.Orders, planner.Order{Column: column, Direction: direction})
	return b
}

// OrderByNatural sorts by the store's natural cursor order
func (b *Builder) OrderByNatural(direction int) *Builder {
	return b.OrderBy(planner.NaturalOrder, direction)
}

// Offset skips the first n documents
func (b *Builder) Offset(n int) *Builder {
	b.shape.Offset = n
	return b
}

// Skip is an alias for Offset
func (b *Builder) Skip(n int) *Builder {
	return b.Offset(n)
}

// Limit caps the number of returned documents
func (b *Builder) Limit(n int) *Builder {
	b.shape.Limit = n
	return b
}

// Take is an alias for Limit
func (b *Builder) Take(n int) *Builder {
	return b.Limit(n)
}

// ForPage applies page-based limiting, which also switches execution
// to the aggregation path with explicit projection
func (b *Builder) ForPage(page, perPage int) *Builder {
	b.shape.Paginating = true
	return b.Offset((page - 1) * perPage).Limit(perPage)
}

// Project merges explicit field-inclusion overrides into the
// projection
func (b *Builder) Project(projections map[string]interface{}) *Builder {
	if b.shape.Projections == nil {
		b.shape.Projections = make(map[string]interface{})
	}
	for key, value := range projections {
		b.shape.Projections[key] = value
	}
	return b
}

// WithOptions merges opaque options into any built options document,
// overriding generated fields on conflict
func (b *Builder) WithOptions(options map[string]interface{}) *Builder {
	if b.shape.Options == nil {
		b.shape.Options = make(map[string]interface{})
	}
	for key, value := range options {
		b.shape.Options[key] = value
	}
	return b
}

// MaxTime sets the maximum server-side execution time hint
func (b *Builder) MaxTime(d time.Duration) *Builder {
	b.shape.MaxTime = d
	return b
}

// Filter compiles the accumulated predicates into a filter document
func (b *Builder) Filter() (map[string]interface{}, error) {
	return predicate.Compile(b.wheres)
}

// Plan compiles the predicates and builds the execution plan
func (b *Builder) Plan() (*planner.Plan, error) {
	filter, err := b.Filter()
	if err != nil {
		return nil, err
	}
	return planner.Build(&b.shape, filter), nil
}

// Get executes the query and returns the result rows in cursor order.
// Distinct plans wrap each scalar under its field name.
func (b *Builder) Get() ([]map[string]interface{}, error) {
	filter, err := b.Filter()
	if err != nil {
		return nil, err
	}
	plan := planner.Build(&b.shape, filter)

	var key string
	if b.cache != nil {
		key = cache.Fingerprint(b.driver.Name(), b.driver.Collection(), filter, &b.shape)
		if docs, ok := b.cache.GetResults(key); ok {
			return docs, nil
		}
	}

	var docs []map[string]interface{}
	switch plan.Kind {
	case planner.KindAggregate:
		docs, err = b.driver.Aggregate(plan.Pipeline, plan.Options)
	case planner.KindDistinct:
		values, distinctErr := b.driver.Distinct(plan.Field, plan.Filter)
		if distinctErr != nil {
			return nil, distinctErr
		}
		docs = make([]map[string]interface{}, len(values))
		for i, value := range values {
			docs[i] = map[string]interface{}{plan.Field: value}
		}
	default:
		docs, err = b.driver.Find(plan.Filter, plan.Options)
	}
	if err != nil {
		return nil, err
	}

	if b.cache != nil {
		b.cache.PutResults(key, docs)
	}

	return docs, nil
}

// First returns the first matching document, or nil when nothing
// matches
func (b *Builder) First() (map[string]interface{}, error) {
	docs, err := b.Take(1).Get()
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}
	return docs[0], nil
}

// Pluck returns the values of one column. With Distinct set, values
// come from a distinct-value fetch.
func (b *Builder) Pluck(column string) ([]interface{}, error) {
	if b.shape.Distinct {
		filter, err := b.Filter()
		if err != nil {
			return nil, err
		}
		return b.driver.Distinct(column, filter)
	}

	docs, err := b.Select(column).Get()
	if err != nil {
		return nil, err
	}

	values := make([]interface{}, 0, len(docs))
	for _, doc := range docs {
		if value, ok := doc[column]; ok {
			values = append(values, value)
		}
	}
	return values, nil
}

// Exists reports whether any document matches the query
func (b *Builder) Exists() (bool, error) {
	doc, err := b.First()
	if err != nil {
		return false, err
	}
	return doc != nil, nil
}

// Count returns the number of matching documents (or groups)
func (b *Builder) Count() (int64, error) {
	value, err := b.aggregateFunction("count", "*")
	if err != nil {
		return 0, err
	}
	return toInt64(value), nil
}

// Sum returns the sum of a column over matching documents
func (b *Builder) Sum(column string) (interface{}, error) {
	return b.aggregateFunction("sum", column)
}

// Avg returns the average of a column over matching documents
func (b *Builder) Avg(column string) (interface{}, error) {
	return b.aggregateFunction("avg", column)
}

// Min returns the minimum of a column over matching documents
func (b *Builder) Min(column string) (interface{}, error) {
	return b.aggregateFunction("min", column)
}

// Max returns the maximum of a column over matching documents
func (b *Builder) Max(column string) (interface{}, error) {
	return b.aggregateFunction("max", column)
}

// aggregateFunction runs a pure aggregate-function query and reads the
// synthetic aggregate field off the first result row
func (b *Builder) aggregateFunction(function string, columns ...string) (interface{}, error) {
	b.shape.Aggregate = &planner.AggregateSpec{Function: function, Columns: columns}
	defer func() { b.shape.Aggregate = nil }()

	docs, err := b.Get()
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}
	return docs[0][planner.AggregateField], nil
}

// Insert inserts one document and returns its identifier
func (b *Builder) Insert(doc map[string]interface{}) (string, error) {
	result, err := b.driver.InsertOne(doc)
	if err != nil {
		return "", err
	}
	if !result.Acknowledged || len(result.InsertedIDs) == 0 {
		return "", nil
	}
	return result.InsertedIDs[0], nil
}

// InsertMany inserts multiple documents and returns their identifiers
func (b *Builder) InsertMany(docs []map[string]interface{}) ([]string, error) {
	result, err := b.driver.InsertMany(docs)
	if err != nil {
		return nil, err
	}
	if !result.Acknowledged {
		return nil, nil
	}
	return result.InsertedIDs, nil
}

// Update applies a field-set mapping (or raw operator document) to
// every matching document and returns the modified count
func (b *Builder) Update(values map[string]interface{}) (int, error) {
	return b.performUpdate(mutation.BuildUpdate(values), true)
}

// UpdateOne applies the update to the first matching document only
func (b *Builder) UpdateOne(values map[string]interface{}) (int, error) {
	return b.performUpdate(mutation.BuildUpdate(values), false)
}

// Increment adds amount to a column on every matching document. Extra
// fields are set alongside. Documents holding a null in the column are
// guarded out of the filter.
func (b *Builder) Increment(column string, amount interface{}, extra map[string]interface{}) (int, error) {
	b.wheres = append(b.wheres, mutation.IncrementGuard(column))
	return b.performUpdate(mutation.BuildIncrement(column, amount, extra), true)
}

// Decrement subtracts amount from a column on every matching document
func (b *Builder) Decrement(column string, amount interface{}, extra map[string]interface{}) (int, error) {
	negated, err := negateAmount(amount)
	if err != nil {
		return 0, err
	}
	return b.Increment(column, negated, extra)
}

// Push appends a value (or, for a dense sequence, each of its
// elements) to an array column on every matching document
func (b *Builder) Push(column interface{}, value interface{}) (int, error) {
	return b.performUpdate(mutation.BuildArrayInsert(column, value, false), true)
}

// AddToSet appends values with set semantics, skipping elements
// already present
func (b *Builder) AddToSet(column interface{}, value interface{}) (int, error) {
	return b.performUpdate(mutation.BuildArrayInsert(column, value, true), true)
}

// Pull removes matching values from an array column on every matching
// document
func (b *Builder) Pull(column string, value interface{}) (int, error) {
	return b.performUpdate(mutation.BuildArrayRemove(column, value), true)
}

// Unset removes the listed columns from every matching document
func (b *Builder) Unset(columns ...string) (int, error) {
	return b.performUpdate(mutation.BuildUnset(columns), true)
}

func (b *Builder) performUpdate(update map[string]interface{}, multi bool) (int, error) {
	filter, err := b.Filter()
	if err != nil {
		return 0, err
	}

	var result *driver.WriteResult
	if multi {
		result, err = b.driver.UpdateMany(filter, update)
	} else {
		result, err = b.driver.UpdateOne(filter, update)
	}
	if err != nil {
		return 0, err
	}
	if !result.Acknowledged {
		return 0, nil
	}
	return result.ModifiedCount, nil
}

// Delete removes every matching document and returns the deleted count
func (b *Builder) Delete() (int, error) {
	return b.performDelete(true)
}

// DeleteOne removes the first matching document only
func (b *Builder) DeleteOne() (int, error) {
	return b.performDelete(false)
}

func (b *Builder) performDelete(multi bool) (int, error) {
	filter, err := b.Filter()
	if err != nil {
		return 0, err
	}

	var result *driver.WriteResult
	if multi {
		result, err = b.driver.DeleteMany(filter)
	} else {
		result, err = b.driver.DeleteOne(filter)
	}
	if err != nil {
		return 0, err
	}
	if !result.Acknowledged {
		return 0, nil
	}
	return result.DeletedCount, nil
}

// Drop removes the whole collection
func (b *Builder) Drop() error {
	return b.driver.Drop()
}

// negateAmount flips the sign of a numeric amount
func negateAmount(amount interface{}) (interface{}, error) {
	switch v := amount.(type) {
	case int:
		return -v, nil
	case int32:
		return -v, nil
	case int64:
		return -v, nil
	case float32:
		return -v, nil
	case float64:
		return -v, nil
	default:
		return nil, fmt.Errorf("cannot decrement by non-numeric amount %v", amount)
	}
}

// toInt64 converts an aggregate result to int64
func toInt64(v interface{}) int64 {
	switch val := v.(type) {
	case int:
		return int64(val)
	case int32:
		return int64(val)
	case int64:
		return val
	case float64:
		return int64(val)
	default:
		return 0
	}
}
