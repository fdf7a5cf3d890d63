package driver

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/mnohosten/laura-query/pkg/document"
)

// matchFilter evaluates a filter document against a document
func matchFilter(doc map[string]interface{}, filter map[string]interface{}) (bool, error) {
	for key, value := range filter {
		switch key {
		case "$and":
			conditions, ok := value.([]interface{})
			if !ok {
				return false, fmt.Errorf("$and requires an array of conditions")
			}
			for _, condition := range conditions {
				condMap, ok := condition.(map[string]interface{})
				if !ok {
					return false, fmt.Errorf("invalid condition in $and")
				}
				matches, err := matchFilter(doc, condMap)
				if err != nil || !matches {
					return false, err
				}
			}

		case "$or":
			conditions, ok := value.([]interface{})
			if !ok {
				return false, fmt.Errorf("$or requires an array of conditions")
			}
			matched := false
			for _, condition := range conditions {
				condMap, ok := condition.(map[string]interface{})
				if !ok {
					return false, fmt.Errorf("invalid condition in $or")
				}
				matches, err := matchFilter(doc, condMap)
				if err != nil {
					return false, err
				}
				if matches {
					matched = true
					break
				}
			}
			if !matched {
				return false, nil
			}

		default:
			fieldValue, exists := getPath(doc, key)

			if operators, ok := operatorDocument(value); ok {
				matches, err := matchOperators(fieldValue, exists, operators)
				if err != nil || !matches {
					return false, err
				}
				continue
			}

			// Direct equality comparison
			if rx, ok := value.(document.Regex); ok {
				if !exists {
					return false, nil
				}
				matches, err := matchRegex(fieldValue, rx)
				if err != nil || !matches {
					return false, err
				}
				continue
			}
			if value == nil {
				// Equality against null matches missing fields too.
				if exists && fieldValue != nil {
					return false, nil
				}
				continue
			}
			if !exists || !valuesEqual(fieldValue, value) {
				return false, nil
			}
		}
	}

	return true, nil
}

// operatorDocument reports whether a value is an operator expression:
// a non-empty sub-document whose keys all carry the operator sigil
func operatorDocument(value interface{}) (map[string]interface{}, bool) {
	m, ok := value.(map[string]interface{})
	if !ok || len(m) == 0 {
		return nil, false
	}
	for key := range m {
		if !strings.HasPrefix(key, "$") {
			return nil, false
		}
	}
	return m, true
}

// matchOperators evaluates every operator in an operator expression
// against a field value
func matchOperators(fieldValue interface{}, exists bool, operators map[string]interface{}) (bool, error) {
	for op, opValue := range operators {
		switch op {
		case "$exists":
			want, ok := opValue.(bool)
			if !ok {
				return false, fmt.Errorf("$exists requires a boolean value")
			}
			if exists != want {
				return false, nil
			}

		case "$eq":
			if !exists || !valuesEqual(fieldValue, opValue) {
				return false, nil
			}

		case "$ne":
			if opValue == nil {
				// Missing fields count as null.
				if !exists || fieldValue == nil {
					return false, nil
				}
				continue
			}
			if exists && valuesEqual(fieldValue, opValue) {
				return false, nil
			}

		case "$gt", "$gte", "$lt", "$lte":
			if !exists {
				return false, nil
			}
			cmp := compareValues(fieldValue, opValue)
			if (op == "$gt" && cmp <= 0) ||
				(op == "$gte" && cmp < 0) ||
				(op == "$lt" && cmp >= 0) ||
				(op == "$lte" && cmp > 0) {
				return false, nil
			}

		case "$in":
			if !exists || !valueIn(fieldValue, opValue) {
				return false, nil
			}

		case "$nin":
			if exists && valueIn(fieldValue, opValue) {
				return false, nil
			}

		case "$regex":
			if !exists {
				return false, nil
			}
			rx, err := regexValue(opValue, operators["$options"])
			if err != nil {
				return false, err
			}
			matches, err := matchRegex(fieldValue, rx)
			if err != nil || !matches {
				return false, err
			}

		case "$options":
			// Consumed together with $regex.

		case "$not":
			matches, err := matchNot(fieldValue, exists, opValue)
			if err != nil || !matches {
				return false, err
			}

		case "$size":
			arr, ok := fieldValue.([]interface{})
			if !ok {
				return false, nil
			}
			want, ok := toInt(opValue)
			if !ok {
				return false, fmt.Errorf("$size requires a number")
			}
			if len(arr) != want {
				return false, nil
			}

		case "$elemMatch":
			matches, err := matchElem(fieldValue, opValue)
			if err != nil || !matches {
				return false, err
			}

		default:
			return false, fmt.Errorf("unsupported operator: %s", op)
		}
	}

	return true, nil
}

// matchNot negates a regex or operator expression
func matchNot(fieldValue interface{}, exists bool, opValue interface{}) (bool, error) {
	if rx, ok := opValue.(document.Regex); ok {
		if !exists {
			return true, nil
		}
		matches, err := matchRegex(fieldValue, rx)
		if err != nil {
			return false, err
		}
		return !matches, nil
	}

	if operators, ok := operatorDocument(opValue); ok {
		matches, err := matchOperators(fieldValue, exists, operators)
		if err != nil {
			return false, err
		}
		return !matches, nil
	}

	return false, fmt.Errorf("$not requires a regex or an operator expression")
}

// matchElem checks whether any element of an array field satisfies the
// given conditions
func matchElem(fieldValue interface{}, conditions interface{}) (bool, error) {
	arr, ok := fieldValue.([]interface{})
	if !ok {
		return false, nil
	}

	condMap, ok := conditions.(map[string]interface{})
	if !ok {
		return false, fmt.Errorf("$elemMatch requires an object with conditions")
	}

	for _, element := range arr {
		var matches bool
		var err error

		if operators, ok := operatorDocument(condMap); ok {
			matches, err = matchOperators(element, true, operators)
		} else if elemDoc, ok := element.(map[string]interface{}); ok {
			matches, err = matchFilter(elemDoc, condMap)
		}

		if err != nil {
			return false, err
		}
		if matches {
			return true, nil
		}
	}

	return false, nil
}

// regexValue resolves the value of a $regex operator, folding in a
// sibling $options key
func regexValue(value interface{}, options interface{}) (document.Regex, error) {
	switch v := value.(type) {
	case document.Regex:
		return v, nil
	case string:
		opts, _ := options.(string)
		return document.NewRegex(v, opts), nil
	default:
		return document.Regex{}, fmt.Errorf("$regex requires a string or regex value")
	}
}

// matchRegex matches a string field value against a regex value. The
// store's i, m and s flags map to Go's inline flags.
func matchRegex(fieldValue interface{}, rx document.Regex) (bool, error) {
	str, ok := fieldValue.(string)
	if !ok {
		return false, nil
	}

	pattern := rx.Pattern
	var flags string
	for _, flag := range []string{"i", "m", "s"} {
		if strings.Contains(rx.Options, flag) {
			flags += flag
		}
	}
	if flags != "" {
		pattern = "(?" + flags + ")" + pattern
	}

	matched, err := regexp.MatchString(pattern, str)
	if err != nil {
		return false, fmt.Errorf("invalid regex pattern: %w", err)
	}
	return matched, nil
}

// valueIn checks if a value is in an array
func valueIn(value interface{}, array interface{}) bool {
	arr := reflect.ValueOf(array)
	if arr.Kind() != reflect.Slice && arr.Kind() != reflect.Array {
		return false
	}

	for i := 0; i < arr.Len(); i++ {
		if valuesEqual(value, arr.Index(i).Interface()) {
			return true
		}
	}
	return false
}

// valuesEqual checks if two values are equal, tolerating numeric type
// differences and identifier/hex mixes
func valuesEqual(a, b interface{}) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}

	if reflect.DeepEqual(a, b) {
		return true
	}

	// Numeric comparisons across types
	aNum, aOk := toFloat64(a)
	bNum, bOk := toFloat64(b)
	if aOk && bOk {
		return aNum == bNum
	}

	// ObjectIDs compare equal to their hex form
	if id, ok := a.(document.ObjectID); ok {
		if s, ok := b.(string); ok {
			return id.Hex() == s
		}
	}
	if id, ok := b.(document.ObjectID); ok {
		if s, ok := a.(string); ok {
			return id.Hex() == s
		}
	}

	return false
}

// compareValues orders two values. Mixed incomparable types compare
// equal.
func compareValues(a, b interface{}) int {
	aNum, aOk := toFloat64(a)
	bNum, bOk := toFloat64(b)
	if aOk && bOk {
		switch {
		case aNum < bNum:
			return -1
		case aNum > bNum:
			return 1
		default:
			return 0
		}
	}

	aStr, aOk := a.(string)
	bStr, bOk := b.(string)
	if aOk && bOk {
		return strings.Compare(aStr, bStr)
	}

	aID, aOk := a.(document.ObjectID)
	bID, bOk := b.(document.ObjectID)
	if aOk && bOk {
		return strings.Compare(aID.Hex(), bID.Hex())
	}

	return 0
}

// toFloat64 converts a value to float64
func toFloat64(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint:
		return float64(val), true
	case uint32:
		return float64(val), true
	case uint64:
		return float64(val), true
	case document.DateTime:
		return float64(val), true
	default:
		return 0, false
	}
}

// toInt converts a value to int
func toInt(v interface{}) (int, bool) {
	switch val := v.(type) {
	case int:
		return val, true
	case int32:
		return int(val), true
	case int64:
		return int(val), true
	case float64:
		return int(val), true
	default:
		return 0, false
	}
}

// stableKey renders a deterministic string key for a value, used for
// grouping and distinct de-duplication
func stableKey(value interface{}) string {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprintf("%v", value)
	}
	return string(data)
}
