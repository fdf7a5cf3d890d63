package predicate

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/mnohosten/laura-query/pkg/document"
)

// ErrUnknownPredicate is returned when a predicate carries a type the
// compiler does not recognize. This is a programming error in the
// caller, not a recoverable condition.
var ErrUnknownPredicate = errors.New("unknown predicate type")

// operatorRenames maps lowercased operator aliases to their store-native
// camelCase form
var operatorRenames = map[string]string{
	"regexp":        "regex",
	"not regexp":    "not regex",
	"elemmatch":     "elemMatch",
	"geowithin":     "geoWithin",
	"geointersects": "geoIntersects",
	"nearsphere":    "nearSphere",
	"maxdistance":   "maxDistance",
	"centersphere":  "centerSphere",
	"uniquedocs":    "uniqueDocs",
}

// comparisonOperators maps SQL-style comparison operators to their
// store-native counterparts
var comparisonOperators = map[string]string{
	"!=": "$ne",
	"<>": "$ne",
	"<":  "$lt",
	"<=": "$lte",
	">":  "$gt",
	">=": "$gte",
}

// regexOperators are the operators whose value is interpreted as a
// regular expression
var regexOperators = map[string]bool{
	"regex":     true,
	"not regex": true,
}

// Compile turns an ordered predicate list into a single filter
// document. The first predicate of a multi-element list inherits the
// boolean combinator of the second (chain-starts-with-next-boolean
// rule). Compilation is pure and fails only on an unknown predicate
// type.
func Compile(predicates []Predicate) (map[string]interface{}, error) {
	acc := &accumulator{}
	multiple := len(predicates) > 1

	for i := range predicates {
		p := predicates[i]

		// The first clause takes over the combinator of the second,
		// so a chain like where().orWhere() compiles as a disjunction
		// of both clauses.
		if i == 0 && multiple {
			p.Boolean = predicates[1].Boolean
		}

		p.Operator = normalizeOperator(p.Operator)

		if isIDColumn(p.Column) {
			p.Value = document.CanonicalizeID(p.Value)
			p.Values = canonicalizeValues(p.Values, document.CanonicalizeID)
		}
		p.Value = document.CanonicalizeTime(p.Value)
		p.Values = canonicalizeValues(p.Values, document.CanonicalizeTime)

		expr, err := compilePredicate(p)
		if err != nil {
			return nil, err
		}

		// Wrapping in a single-element $or/$and array guarantees that
		// merging sibling clauses accumulates instead of overwriting
		// constraints on the same column.
		if p.Boolean == "or" {
			expr = Or{Exprs: []Expr{expr}}
		} else if multiple {
			expr = And{Exprs: []Expr{expr}}
		}

		acc.add(expr)
	}

	return acc.document(), nil
}

// compilePredicate dispatches on the predicate variant
func compilePredicate(p Predicate) (Expr, error) {
	switch p.Type {
	case TypeBasic:
		return compileBasic(p), nil
	case TypeIn:
		return Cond{Column: p.Column, Ops: map[string]interface{}{"$in": valuesOrEmpty(p.Values)}}, nil
	case TypeNotIn:
		return Cond{Column: p.Column, Ops: map[string]interface{}{"$nin": valuesOrEmpty(p.Values)}}, nil
	case TypeNull:
		p.Operator = "="
		p.Value = nil
		return compileBasic(p), nil
	case TypeNotNull:
		p.Operator = "!="
		p.Value = nil
		return compileBasic(p), nil
	case TypeBetween:
		return compileBetween(p)
	case TypeNested:
		sub, err := Compile(p.Nested)
		if err != nil {
			return nil, err
		}
		return Raw{Doc: sub}, nil
	case TypeRaw:
		return Raw{Doc: p.Raw}, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownPredicate, p.Type)
	}
}

// compileBasic compiles a column/operator/value clause
func compileBasic(p Predicate) Expr {
	operator := p.Operator
	value := p.Value

	if operator == "like" {
		return Eq{Column: p.Column, Value: likeToRegex(fmt.Sprintf("%v", value))}
	}

	if regexOperators[operator] {
		if s, ok := value.(string); ok {
			value = parseRegexLiteral(s)
		}
		// A negated regex collapses to a single $not wrapping the
		// regex value.
		if strings.HasPrefix(operator, "not") {
			operator = "not"
		}
	}

	if operator == "" || operator == "=" {
		return Eq{Column: p.Column, Value: value}
	}

	if converted, ok := comparisonOperators[operator]; ok {
		return Cond{Column: p.Column, Ops: map[string]interface{}{converted: value}}
	}

	// Pass-through for store-native operators (exists, type, mod,
	// near, size, ...).
	return Cond{Column: p.Column, Ops: map[string]interface{}{"$" + operator: value}}
}

// compileBetween compiles an inclusive range test. The negated form is
// a two-branch disjunction touching the boundaries; callers depend on
// this shape.
func compileBetween(p Predicate) (Expr, error) {
	if len(p.Values) < 2 {
		return nil, fmt.Errorf("between predicate on %q requires two values", p.Column)
	}

	lower := p.Values[0]
	upper := p.Values[1]

	if p.Not {
		return Or{Exprs: []Expr{
			Cond{Column: p.Column, Ops: map[string]interface{}{"$lte": lower}},
			Cond{Column: p.Column, Ops: map[string]interface{}{"$gte": upper}},
		}}, nil
	}

	return Cond{Column: p.Column, Ops: map[string]interface{}{
		"$gte": lower,
		"$lte": upper,
	}}, nil
}

// normalizeOperator lowercases the operator and applies the rename
// table
func normalizeOperator(operator string) string {
	operator = strings.ToLower(operator)
	if renamed, ok := operatorRenames[operator]; ok {
		return renamed
	}
	return operator
}

// isIDColumn reports whether a column holds document identifiers
func isIDColumn(column string) bool {
	return column == "_id" || strings.HasSuffix(column, "._id")
}

func canonicalizeValues(values []interface{}, canonicalize func(interface{}) interface{}) []interface{} {
	if values == nil {
		return nil
	}
	result := make([]interface{}, len(values))
	for i, v := range values {
		result[i] = canonicalize(v)
	}
	return result
}

func valuesOrEmpty(values []interface{}) []interface{} {
	if values == nil {
		return []interface{}{}
	}
	return values
}

// unescapedWildcard matches a % wildcard not preceded by a backslash
var unescapedWildcard = regexp.MustCompile(`(^|[^\\])%`)

// likeToRegex rewrites a SQL like pattern into an anchored
// case-insensitive regular expression
func likeToRegex(value string) document.Regex {
	pattern := unescapedWildcard.ReplaceAllString(regexp.QuoteMeta(value), "$1.*")

	if !strings.HasPrefix(value, "%") {
		pattern = "^" + pattern
	}
	if !strings.HasSuffix(value, "%") {
		pattern = pattern + "$"
	}

	return document.NewRegex(pattern, "i")
}

// parseRegexLiteral converts a /pattern/flags string into a Regex
// value. Strings in any other form pass through unchanged.
func parseRegexLiteral(s string) interface{} {
	if len(s) < 2 || s[0] != '/' {
		return s
	}

	end := strings.LastIndex(s, "/")
	if end <= 0 {
		return s
	}

	return document.NewRegex(s[1:end], s[end+1:])
}
