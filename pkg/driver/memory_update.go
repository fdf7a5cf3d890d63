package driver

import "fmt"

// applyUpdate applies an update-operator document to a document in
// place
func applyUpdate(doc map[string]interface{}, update map[string]interface{}) error {
	for op, spec := range update {
		fields, ok := spec.(map[string]interface{})
		if !ok {
			return fmt.Errorf("%s requires an object", op)
		}

		switch op {
		case "$set":
			for field, value := range fields {
				setPath(doc, field, value)
			}

		case "$unset":
			for field := range fields {
				deletePath(doc, field)
			}

		case "$inc":
			for field, amount := range fields {
				current, exists := getPath(doc, field)
				if !exists {
					setPath(doc, field, amount)
					continue
				}
				incremented, err := addNumbers(current, amount)
				if err != nil {
					return fmt.Errorf("$inc on %s: %w", field, err)
				}
				setPath(doc, field, incremented)
			}

		case "$push":
			for field, value := range fields {
				arr := arrayAt(doc, field)
				arr = append(arr, pushValues(value)...)
				setPath(doc, field, arr)
			}

		case "$addToSet":
			for field, value := range fields {
				arr := arrayAt(doc, field)
				for _, candidate := range pushValues(value) {
					if !containsValue(arr, candidate) {
						arr = append(arr, candidate)
					}
				}
				setPath(doc, field, arr)
			}

		case "$pull":
			for field, value := range fields {
				arr := arrayAt(doc, field)
				setPath(doc, field, removeValues(arr, []interface{}{value}))
			}

		case "$pullAll":
			for field, value := range fields {
				values, ok := value.([]interface{})
				if !ok {
					return fmt.Errorf("$pullAll on %s requires an array", field)
				}
				arr := arrayAt(doc, field)
				setPath(doc, field, removeValues(arr, values))
			}

		default:
			return fmt.Errorf("unsupported update operator: %s", op)
		}
	}

	return nil
}

// pushValues expands the $each modifier into the values to append
func pushValues(value interface{}) []interface{} {
	if modifier, ok := value.(map[string]interface{}); ok {
		if each, hasEach := modifier["$each"]; hasEach {
			if values, ok := each.([]interface{}); ok {
				return values
			}
		}
	}
	return []interface{}{value}
}

// arrayAt returns the array at a field path, or an empty array when
// the field is missing or not an array
func arrayAt(doc map[string]interface{}, field string) []interface{} {
	value, exists := getPath(doc, field)
	if !exists {
		return nil
	}
	arr, ok := value.([]interface{})
	if !ok {
		return nil
	}
	return arr
}

func containsValue(arr []interface{}, value interface{}) bool {
	for _, item := range arr {
		if valuesEqual(item, value) {
			return true
		}
	}
	return false
}

func removeValues(arr []interface{}, values []interface{}) []interface{} {
	result := make([]interface{}, 0, len(arr))
	for _, item := range arr {
		if !containsValue(values, item) {
			result = append(result, item)
		}
	}
	return result
}

// addNumbers adds two numeric values, keeping an integer result when
// both inputs are integral
func addNumbers(a, b interface{}) (interface{}, error) {
	aNum, aOk := toFloat64(a)
	bNum, bOk := toFloat64(b)
	if !aOk || !bOk {
		return nil, fmt.Errorf("cannot add non-numeric values %v and %v", a, b)
	}

	if isIntegral(a) && isIntegral(b) {
		return int64(aNum) + int64(bNum), nil
	}
	return aNum + bNum, nil
}

func isIntegral(v interface{}) bool {
	switch v.(type) {
	case int, int32, int64, uint, uint32, uint64:
		return true
	default:
		return false
	}
}
