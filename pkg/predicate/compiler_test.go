package predicate

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/mnohosten/laura-query/pkg/document"
)

func compileOrFail(t *testing.T, predicates []Predicate) map[string]interface{} {
	t.Helper()
	filter, err := Compile(predicates)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	return filter
}

func TestCompileEmptyList(t *testing.T) {
	filter := compileOrFail(t, nil)
	if len(filter) != 0 {
		t.Errorf("Expected empty filter, got %v", filter)
	}
}

func TestCompileBasicEquality(t *testing.T) {
	// Omitted operator and explicit = both emit a plain equality key
	for _, operator := range []string{"", "="} {
		filter := compileOrFail(t, []Predicate{
			{Type: TypeBasic, Column: "name", Operator: operator, Value: "john", Boolean: "and"},
		})

		expected := map[string]interface{}{"name": "john"}
		if !reflect.DeepEqual(filter, expected) {
			t.Errorf("operator %q: expected %v, got %v", operator, expected, filter)
		}
	}
}

func TestCompileComparisonOperators(t *testing.T) {
	cases := map[string]string{
		"!=": "$ne",
		"<>": "$ne",
		"<":  "$lt",
		"<=": "$lte",
		">":  "$gt",
		">=": "$gte",
	}

	for operator, converted := range cases {
		filter := compileOrFail(t, []Predicate{
			{Type: TypeBasic, Column: "age", Operator: operator, Value: 21, Boolean: "and"},
		})

		expected := map[string]interface{}{"age": map[string]interface{}{converted: 21}}
		if !reflect.DeepEqual(filter, expected) {
			t.Errorf("operator %q: expected %v, got %v", operator, expected, filter)
		}
	}
}

func TestCompilePassthroughOperator(t *testing.T) {
	filter := compileOrFail(t, []Predicate{
		{Type: TypeBasic, Column: "tags", Operator: "exists", Value: true, Boolean: "and"},
	})

	expected := map[string]interface{}{"tags": map[string]interface{}{"$exists": true}}
	if !reflect.DeepEqual(filter, expected) {
		t.Errorf("Expected %v, got %v", expected, filter)
	}
}

func TestCompileOperatorRenames(t *testing.T) {
	conditions := map[string]interface{}{"price": map[string]interface{}{"$gt": 10}}
	filter := compileOrFail(t, []Predicate{
		{Type: TypeBasic, Column: "items", Operator: "elemMatch", Value: conditions, Boolean: "and"},
	})

	expected := map[string]interface{}{"items": map[string]interface{}{"$elemMatch": conditions}}
	if !reflect.DeepEqual(filter, expected) {
		t.Errorf("Expected %v, got %v", expected, filter)
	}

	filter = compileOrFail(t, []Predicate{
		{Type: TypeBasic, Column: "loc", Operator: "GeoWithin", Value: "shape", Boolean: "and"},
	})
	if _, ok := filter["loc"].(map[string]interface{})["$geoWithin"]; !ok {
		t.Errorf("Expected $geoWithin key, got %v", filter)
	}
}

func TestCompileLike(t *testing.T) {
	cases := []struct {
		value   string
		pattern string
	}{
		{"john", "^john$"},
		{"john%", "^john.*"},
		{"%doe", ".*doe$"},
		{"%oh%", ".*oh.*"},
		{"a.b", "^a\\.b$"},
	}

	for _, tc := range cases {
		filter := compileOrFail(t, []Predicate{
			{Type: TypeBasic, Column: "name", Operator: "like", Value: tc.value, Boolean: "and"},
		})

		rx, ok := filter["name"].(document.Regex)
		if !ok {
			t.Fatalf("like %q: expected Regex value, got %T", tc.value, filter["name"])
		}
		if rx.Pattern != tc.pattern {
			t.Errorf("like %q: expected pattern %q, got %q", tc.value, tc.pattern, rx.Pattern)
		}
		if rx.Options != "i" {
			t.Errorf("like %q: expected case-insensitive flag, got %q", tc.value, rx.Options)
		}
	}
}

func TestCompileRegexLiteral(t *testing.T) {
	filter := compileOrFail(t, []Predicate{
		{Type: TypeBasic, Column: "name", Operator: "regexp", Value: "/^j.*n$/i", Boolean: "and"},
	})

	ops, ok := filter["name"].(map[string]interface{})
	if !ok {
		t.Fatalf("Expected operator document, got %T", filter["name"])
	}
	rx, ok := ops["$regex"].(document.Regex)
	if !ok {
		t.Fatalf("Expected Regex value, got %T", ops["$regex"])
	}
	if rx.Pattern != "^j.*n$" || rx.Options != "i" {
		t.Errorf("Unexpected regex: %v", rx)
	}
}

func TestCompileNotRegex(t *testing.T) {
	filter := compileOrFail(t, []Predicate{
		{Type: TypeBasic, Column: "name", Operator: "not regexp", Value: "/^j/", Boolean: "and"},
	})

	ops, ok := filter["name"].(map[string]interface{})
	if !ok {
		t.Fatalf("Expected operator document, got %T", filter["name"])
	}
	rx, ok := ops["$not"].(document.Regex)
	if !ok {
		t.Fatalf("Expected $not to wrap a Regex, got %v", ops)
	}
	if rx.Pattern != "^j" || rx.Options != "" {
		t.Errorf("Unexpected regex: %v", rx)
	}
}

func TestCompileInAndNotIn(t *testing.T) {
	values := []interface{}{"a", "b", "c"}

	filter := compileOrFail(t, []Predicate{
		{Type: TypeIn, Column: "status", Values: values, Boolean: "and"},
	})
	expected := map[string]interface{}{"status": map[string]interface{}{"$in": values}}
	if !reflect.DeepEqual(filter, expected) {
		t.Errorf("Expected %v, got %v", expected, filter)
	}

	filter = compileOrFail(t, []Predicate{
		{Type: TypeNotIn, Column: "status", Values: values, Boolean: "and"},
	})
	expected = map[string]interface{}{"status": map[string]interface{}{"$nin": values}}
	if !reflect.DeepEqual(filter, expected) {
		t.Errorf("Expected %v, got %v", expected, filter)
	}
}

func TestCompileNullAndNotNull(t *testing.T) {
	filter := compileOrFail(t, []Predicate{
		{Type: TypeNull, Column: "deleted_at", Boolean: "and"},
	})
	expected := map[string]interface{}{"deleted_at": nil}
	if !reflect.DeepEqual(filter, expected) {
		t.Errorf("Expected %v, got %v", expected, filter)
	}

	filter = compileOrFail(t, []Predicate{
		{Type: TypeNotNull, Column: "deleted_at", Boolean: "and"},
	})
	expected = map[string]interface{}{"deleted_at": map[string]interface{}{"$ne": nil}}
	if !reflect.DeepEqual(filter, expected) {
		t.Errorf("Expected %v, got %v", expected, filter)
	}
}

func TestCompileBetween(t *testing.T) {
	filter := compileOrFail(t, []Predicate{
		{Type: TypeBetween, Column: "age", Values: []interface{}{18, 65}, Boolean: "and"},
	})

	expected := map[string]interface{}{
		"age": map[string]interface{}{"$gte": 18, "$lte": 65},
	}
	if !reflect.DeepEqual(filter, expected) {
		t.Errorf("Expected %v, got %v", expected, filter)
	}
}

func TestCompileNotBetween(t *testing.T) {
	filter := compileOrFail(t, []Predicate{
		{Type: TypeBetween, Column: "age", Values: []interface{}{18, 65}, Not: true, Boolean: "and"},
	})

	// Negated between is a two-branch OR touching the boundaries.
	expected := map[string]interface{}{
		"$or": []interface{}{
			map[string]interface{}{"age": map[string]interface{}{"$lte": 18}},
			map[string]interface{}{"age": map[string]interface{}{"$gte": 65}},
		},
	}
	if !reflect.DeepEqual(filter, expected) {
		t.Errorf("Expected %v, got %v", expected, filter)
	}
}

func TestCompileBetweenMissingValues(t *testing.T) {
	_, err := Compile([]Predicate{
		{Type: TypeBetween, Column: "age", Values: []interface{}{18}, Boolean: "and"},
	})
	if err == nil {
		t.Error("Expected error for between with one value")
	}
}

func TestCompileMultipleWrappedInAnd(t *testing.T) {
	filter := compileOrFail(t, []Predicate{
		{Type: TypeBasic, Column: "a", Value: 1, Boolean: "and"},
		{Type: TypeBasic, Column: "b", Value: 2, Boolean: "and"},
	})

	expected := map[string]interface{}{
		"$and": []interface{}{
			map[string]interface{}{"a": 1},
			map[string]interface{}{"b": 2},
		},
	}
	if !reflect.DeepEqual(filter, expected) {
		t.Errorf("Expected %v, got %v", expected, filter)
	}
}

func TestCompileSameColumnRetainsBothConstraints(t *testing.T) {
	// Two constraints on the same column must accumulate, never
	// silently overwrite each other.
	filter := compileOrFail(t, []Predicate{
		{Type: TypeBasic, Column: "age", Operator: ">", Value: 10, Boolean: "and"},
		{Type: TypeBasic, Column: "age", Operator: "<", Value: 99, Boolean: "and"},
	})

	expected := map[string]interface{}{
		"$and": []interface{}{
			map[string]interface{}{"age": map[string]interface{}{"$gt": 10}},
			map[string]interface{}{"age": map[string]interface{}{"$lt": 99}},
		},
	}
	if !reflect.DeepEqual(filter, expected) {
		t.Errorf("Expected %v, got %v", expected, filter)
	}
}

func TestCompileChainBooleanInheritance(t *testing.T) {
	// The first predicate takes over the combinator of the second.
	filter := compileOrFail(t, []Predicate{
		{Type: TypeBasic, Column: "age", Operator: ">", Value: 10, Boolean: "and"},
		{Type: TypeBasic, Column: "age", Operator: "<", Value: 5, Boolean: "or"},
	})

	expected := map[string]interface{}{
		"$or": []interface{}{
			map[string]interface{}{"age": map[string]interface{}{"$gt": 10}},
			map[string]interface{}{"age": map[string]interface{}{"$lt": 5}},
		},
	}
	if !reflect.DeepEqual(filter, expected) {
		t.Errorf("Expected %v, got %v", expected, filter)
	}
}

func TestCompileMixedBooleans(t *testing.T) {
	filter := compileOrFail(t, []Predicate{
		{Type: TypeBasic, Column: "a", Value: 1, Boolean: "and"},
		{Type: TypeBasic, Column: "b", Value: 2, Boolean: "and"},
		{Type: TypeBasic, Column: "c", Value: 3, Boolean: "or"},
	})

	expected := map[string]interface{}{
		"$and": []interface{}{
			map[string]interface{}{"a": 1},
			map[string]interface{}{"b": 2},
		},
		"$or": []interface{}{
			map[string]interface{}{"c": 3},
		},
	}
	if !reflect.DeepEqual(filter, expected) {
		t.Errorf("Expected %v, got %v", expected, filter)
	}
}

func TestCompileNested(t *testing.T) {
	filter := compileOrFail(t, []Predicate{
		{Type: TypeBasic, Column: "active", Value: true, Boolean: "and"},
		{Type: TypeNested, Boolean: "and", Nested: []Predicate{
			{Type: TypeBasic, Column: "role", Value: "admin", Boolean: "and"},
			{Type: TypeBasic, Column: "role", Value: "owner", Boolean: "or"},
		}},
	})

	expected := map[string]interface{}{
		"$and": []interface{}{
			map[string]interface{}{"active": true},
			map[string]interface{}{"$or": []interface{}{
				map[string]interface{}{"role": "admin"},
				map[string]interface{}{"role": "owner"},
			}},
		},
	}
	if !reflect.DeepEqual(filter, expected) {
		t.Errorf("Expected %v, got %v", expected, filter)
	}
}

func TestCompileRaw(t *testing.T) {
	raw := map[string]interface{}{"$text": map[string]interface{}{"$search": "coffee"}}
	filter := compileOrFail(t, []Predicate{
		{Type: TypeRaw, Raw: raw, Boolean: "and"},
	})

	if !reflect.DeepEqual(filter, raw) {
		t.Errorf("Expected %v, got %v", raw, filter)
	}
}

func TestCompileIdentifierCanonicalization(t *testing.T) {
	filter := compileOrFail(t, []Predicate{
		{Type: TypeBasic, Column: "_id", Operator: "=", Value: "507f1f77bcf86cd799439011", Boolean: "and"},
	})
	if _, ok := filter["_id"].(document.ObjectID); !ok {
		t.Errorf("Expected ObjectID value, got %T", filter["_id"])
	}

	// A 23-character string stays a plain string
	filter = compileOrFail(t, []Predicate{
		{Type: TypeBasic, Column: "_id", Operator: "=", Value: "507f1f77bcf86cd79943901", Boolean: "and"},
	})
	if _, ok := filter["_id"].(string); !ok {
		t.Errorf("Expected string value, got %T", filter["_id"])
	}

	// Nested identifier columns canonicalize too
	filter = compileOrFail(t, []Predicate{
		{Type: TypeIn, Column: "author._id", Values: []interface{}{"507f1f77bcf86cd799439011"}, Boolean: "and"},
	})
	values := filter["author._id"].(map[string]interface{})["$in"].([]interface{})
	if _, ok := values[0].(document.ObjectID); !ok {
		t.Errorf("Expected ObjectID element, got %T", values[0])
	}

	// Non-identifier columns never canonicalize
	filter = compileOrFail(t, []Predicate{
		{Type: TypeBasic, Column: "token", Value: "507f1f77bcf86cd799439011", Boolean: "and"},
	})
	if _, ok := filter["token"].(string); !ok {
		t.Errorf("Expected string value, got %T", filter["token"])
	}
}

func TestCompileTemporalCanonicalization(t *testing.T) {
	when := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	filter := compileOrFail(t, []Predicate{
		{Type: TypeBasic, Column: "created_at", Operator: ">", Value: when, Boolean: "and"},
	})

	ops := filter["created_at"].(map[string]interface{})
	dt, ok := ops["$gt"].(document.DateTime)
	if !ok {
		t.Fatalf("Expected DateTime value, got %T", ops["$gt"])
	}
	if !dt.Time().Equal(when) {
		t.Errorf("Unexpected time: %v", dt.Time())
	}

	// Between bounds canonicalize as well
	filter = compileOrFail(t, []Predicate{
		{Type: TypeBetween, Column: "created_at", Values: []interface{}{when, when.Add(24 * time.Hour)}, Boolean: "and"},
	})
	bounds := filter["created_at"].(map[string]interface{})
	if _, ok := bounds["$gte"].(document.DateTime); !ok {
		t.Errorf("Expected DateTime lower bound, got %T", bounds["$gte"])
	}
}

func TestCompileUnknownTypeFails(t *testing.T) {
	_, err := Compile([]Predicate{{Type: Type(99), Column: "x", Boolean: "and"}})
	if err == nil {
		t.Fatal("Expected error for unknown predicate type")
	}
	if !errors.Is(err, ErrUnknownPredicate) {
		t.Errorf("Expected ErrUnknownPredicate, got %v", err)
	}
}

func TestCompileOrWrapsSinglePredicate(t *testing.T) {
	filter := compileOrFail(t, []Predicate{
		{Type: TypeBasic, Column: "a", Value: 1, Boolean: "or"},
	})

	expected := map[string]interface{}{
		"$or": []interface{}{map[string]interface{}{"a": 1}},
	}
	if !reflect.DeepEqual(filter, expected) {
		t.Errorf("Expected %v, got %v", expected, filter)
	}
}
