package driver

import (
	"fmt"
	"strings"
)

// Aggregate executes an ordered pipeline of stages against the
// collection
func (m *Memory) Aggregate(pipeline []map[string]interface{}, options map[string]interface{}) ([]map[string]interface{}, error) {
	m.mu.RLock()
	docs := make([]map[string]interface{}, len(m.docs))
	for i, doc := range m.docs {
		docs[i] = cloneDocument(doc)
	}
	m.mu.RUnlock()

	for _, stage := range pipeline {
		for stageType, spec := range stage {
			var err error
			docs, err = executeStage(stageType, spec, docs)
			if err != nil {
				return nil, fmt.Errorf("stage %s failed: %w", stageType, err)
			}
		}
	}

	return docs, nil
}

func executeStage(stageType string, spec interface{}, docs []map[string]interface{}) ([]map[string]interface{}, error) {
	switch stageType {
	case "$match":
		filter, ok := spec.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("$match requires a filter object")
		}
		var result []map[string]interface{}
		for _, doc := range docs {
			matches, err := matchFilter(doc, filter)
			if err != nil {
				return nil, err
			}
			if matches {
				result = append(result, doc)
			}
		}
		return result, nil

	case "$unwind":
		return executeUnwind(spec, docs)

	case "$group":
		return executeGroup(spec, docs)

	case "$sort":
		sortSpec, ok := spec.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("$sort requires a sort specification")
		}
		sortDocuments(docs, sortSpec)
		return docs, nil

	case "$skip":
		skip, ok := toInt(spec)
		if !ok {
			return nil, fmt.Errorf("$skip requires a number")
		}
		if skip >= len(docs) {
			return nil, nil
		}
		return docs[skip:], nil

	case "$limit":
		limit, ok := toInt(spec)
		if !ok {
			return nil, fmt.Errorf("$limit requires a number")
		}
		if limit < len(docs) {
			return docs[:limit], nil
		}
		return docs, nil

	case "$project":
		projection, ok := spec.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("$project requires a projection object")
		}
		for i, doc := range docs {
			docs[i] = applyProjection(doc, projection)
		}
		return docs, nil

	default:
		return nil, fmt.Errorf("unsupported stage type: %s", stageType)
	}
}

// executeUnwind flattens an array field, emitting one document per
// element. Documents missing the field are dropped; non-array values
// pass through as a single document.
func executeUnwind(spec interface{}, docs []map[string]interface{}) ([]map[string]interface{}, error) {
	ref, ok := spec.(string)
	if !ok || !strings.HasPrefix(ref, "$") {
		return nil, fmt.Errorf("$unwind requires a $-prefixed field path")
	}
	path := ref[1:]

	var result []map[string]interface{}
	for _, doc := range docs {
		value, exists := getPath(doc, path)
		if !exists {
			continue
		}

		arr, ok := value.([]interface{})
		if !ok {
			result = append(result, doc)
			continue
		}

		for _, element := range arr {
			flattened := cloneDocument(doc)
			setPath(flattened, path, element)
			result = append(result, flattened)
		}
	}

	return result, nil
}

// executeGroup groups documents by the _id expression and computes the
// requested accumulators, preserving first-appearance group order
func executeGroup(spec interface{}, docs []map[string]interface{}) ([]map[string]interface{}, error) {
	groupSpec, ok := spec.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("$group requires a group specification")
	}

	id, hasID := groupSpec["_id"]
	if !hasID {
		return nil, fmt.Errorf("$group requires an _id field")
	}

	type bucket struct {
		key  interface{}
		docs []map[string]interface{}
	}

	buckets := make(map[string]*bucket)
	var order []string

	for _, doc := range docs {
		key := resolveGroupID(id, doc)
		keyStr := stableKey(key)
		b, exists := buckets[keyStr]
		if !exists {
			b = &bucket{key: key}
			buckets[keyStr] = b
			order = append(order, keyStr)
		}
		b.docs = append(b.docs, doc)
	}

	result := make([]map[string]interface{}, 0, len(order))
	for _, keyStr := range order {
		b := buckets[keyStr]
		groupDoc := map[string]interface{}{"_id": b.key}

		for field, accSpec := range groupSpec {
			if field == "_id" {
				continue
			}
			value, err := computeAccumulator(accSpec, b.docs)
			if err != nil {
				return nil, err
			}
			groupDoc[field] = value
		}

		result = append(result, groupDoc)
	}

	return result, nil
}

// resolveGroupID evaluates the _id expression for one document
func resolveGroupID(id interface{}, doc map[string]interface{}) interface{} {
	switch v := id.(type) {
	case nil:
		return nil
	case string:
		return resolveExpr(v, doc)
	case map[string]interface{}:
		key := make(map[string]interface{}, len(v))
		for field, expr := range v {
			key[field] = resolveExpr(expr, doc)
		}
		return key
	default:
		return id
	}
}

// resolveExpr evaluates a field reference or literal against a document
func resolveExpr(expr interface{}, doc map[string]interface{}) interface{} {
	if ref, ok := expr.(string); ok && strings.HasPrefix(ref, "$") {
		value, _ := getPath(doc, ref[1:])
		return value
	}
	return expr
}

// computeAccumulator computes one accumulator over the documents of a
// group
func computeAccumulator(accSpec interface{}, docs []map[string]interface{}) (interface{}, error) {
	accMap, ok := accSpec.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("accumulator must be an object")
	}

	for op, expr := range accMap {
		switch op {
		case "$last":
			var last interface{}
			for _, doc := range docs {
				if value := resolveExpr(expr, doc); value != nil {
					last = value
				}
			}
			return last, nil

		case "$first":
			for _, doc := range docs {
				if value := resolveExpr(expr, doc); value != nil {
					return value, nil
				}
			}
			return nil, nil

		case "$sum":
			return computeSum(expr, docs), nil

		case "$avg":
			if len(docs) == 0 {
				return 0.0, nil
			}
			sum, _ := toFloat64(computeSum(expr, docs))
			return sum / float64(len(docs)), nil

		case "$min":
			var min interface{}
			for _, doc := range docs {
				value := resolveExpr(expr, doc)
				if value == nil {
					continue
				}
				if min == nil || compareValues(value, min) < 0 {
					min = value
				}
			}
			return min, nil

		case "$max":
			var max interface{}
			for _, doc := range docs {
				value := resolveExpr(expr, doc)
				if value == nil {
					continue
				}
				if max == nil || compareValues(value, max) > 0 {
					max = value
				}
			}
			return max, nil

		default:
			return nil, fmt.Errorf("unsupported accumulator: %s", op)
		}
	}

	return nil, fmt.Errorf("empty accumulator")
}

// computeSum sums a field reference or repeats a numeric literal per
// document. Integer inputs keep an integer result.
func computeSum(expr interface{}, docs []map[string]interface{}) interface{} {
	var sum float64
	integral := true

	for _, doc := range docs {
		value := resolveExpr(expr, doc)
		if value == nil {
			continue
		}
		num, ok := toFloat64(value)
		if !ok {
			continue
		}
		if _, isFloat := value.(float64); isFloat {
			integral = false
		}
		if _, isFloat := value.(float32); isFloat {
			integral = false
		}
		sum += num
	}

	if integral {
		return int64(sum)
	}
	return sum
}
