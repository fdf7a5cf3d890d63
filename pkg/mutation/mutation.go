// Package mutation translates high-level update intents into the
// store's update-operator documents. Default multiplicity for any
// mutation is every document matching the filter; single-document
// semantics are an explicit caller override.
package mutation

import (
	"reflect"

	"github.com/mnohosten/laura-query/pkg/predicate"
)

// operatorSigil marks a key as a store-native operator rather than a
// field name
const operatorSigil = "$"

// BuildUpdate wraps a plain field-set mapping under $set. A mapping
// whose top-level keys already carry the operator sigil passes through
// untouched, letting callers issue raw multi-operator updates.
func BuildUpdate(values map[string]interface{}) map[string]interface{} {
	for key := range values {
		if len(key) > 0 && key[:1] == operatorSigil {
			return values
		}
	}
	return map[string]interface{}{"$set": values}
}

// BuildIncrement emits an increment operator for column:amount plus a
// field-replace operator for any extra fields. Decrement is increment
// with the amount's sign flipped.
func BuildIncrement(column string, amount interface{}, extra map[string]interface{}) map[string]interface{} {
	update := map[string]interface{}{
		"$inc": map[string]interface{}{column: amount},
	}
	if len(extra) > 0 {
		update["$set"] = extra
	}
	return update
}

// IncrementGuard returns the predicate to append to an increment's
// filter: the field is either absent or not null. Incrementing a null
// field would otherwise produce null-arithmetic results.
func IncrementGuard(column string) predicate.Predicate {
	return predicate.Predicate{
		Type:    predicate.TypeNested,
		Boolean: "and",
		Nested: []predicate.Predicate{
			{Type: predicate.TypeBasic, Column: column, Operator: "exists", Value: false, Boolean: "and"},
			{Type: predicate.TypeNotNull, Column: column, Boolean: "or"},
		},
	}
}

// BuildArrayInsert builds a $push (or, with unique set, $addToSet)
// document. A mapping column is a multi-field batch spec used as the
// operand directly; a dense sequence value selects the insert-many
// $each form; anything else inserts a single element.
func BuildArrayInsert(column interface{}, value interface{}, unique bool) map[string]interface{} {
	operator := "$push"
	if unique {
		operator = "$addToSet"
	}

	if batch, ok := column.(map[string]interface{}); ok {
		return map[string]interface{}{operator: batch}
	}

	field, _ := column.(string)
	if values, ok := sliceValues(value); ok {
		return map[string]interface{}{
			operator: map[string]interface{}{
				field: map[string]interface{}{"$each": values},
			},
		}
	}

	return map[string]interface{}{
		operator: map[string]interface{}{field: value},
	}
}

// BuildArrayRemove mirrors array insert: a dense sequence removes all
// matching values via $pullAll, anything else removes one matching
// value via $pull
func BuildArrayRemove(column string, value interface{}) map[string]interface{} {
	if values, ok := sliceValues(value); ok {
		return map[string]interface{}{
			"$pullAll": map[string]interface{}{column: values},
		}
	}
	return map[string]interface{}{
		"$pull": map[string]interface{}{column: value},
	}
}

// BuildUnset builds a field-removal document mapping every listed
// column to a removal marker
func BuildUnset(columns []string) map[string]interface{} {
	fields := make(map[string]interface{}, len(columns))
	for _, column := range columns {
		fields[column] = 1
	}
	return map[string]interface{}{"$unset": fields}
}

// sliceValues returns the elements of a dense, zero-based-indexable
// sequence. Byte slices and maps do not qualify.
func sliceValues(value interface{}) ([]interface{}, bool) {
	if values, ok := value.([]interface{}); ok {
		return values, true
	}

	rv := reflect.ValueOf(value)
	if !rv.IsValid() || rv.Kind() != reflect.Slice {
		return nil, false
	}
	if _, ok := value.([]byte); ok {
		return nil, false
	}

	values := make([]interface{}, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		values[i] = rv.Index(i).Interface()
	}
	return values, true
}
