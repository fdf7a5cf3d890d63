package driver

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/mnohosten/laura-query/pkg/document"
)

// Memory is an in-process driver backed by a plain document slice. It
// executes the same filter, pipeline and update documents a remote
// store would, which makes it suitable for tests and embedded use.
type Memory struct {
	mu         sync.RWMutex
	collection string
	docs       []map[string]interface{}
}

// NewMemory creates an empty in-memory collection
func NewMemory(collection string) *Memory {
	return &Memory{collection: collection}
}

// Name returns the store name
func (m *Memory) Name() string {
	return "memory"
}

// Collection returns the collection name
func (m *Memory) Collection() string {
	return m.collection
}

// Find returns copies of the documents matching the filter, honoring
// sort, skip, limit and projection options
func (m *Memory) Find(filter map[string]interface{}, options map[string]interface{}) ([]map[string]interface{}, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []map[string]interface{}
	for _, doc := range m.docs {
		matches, err := matchFilter(doc, filter)
		if err != nil {
			return nil, err
		}
		if matches {
			result = append(result, cloneDocument(doc))
		}
	}

	if sortSpec, ok := options["sort"].(map[string]interface{}); ok {
		sortDocuments(result, sortSpec)
	}
	if skip, ok := toInt(options["skip"]); ok && skip > 0 {
		if skip >= len(result) {
			result = nil
		} else {
			result = result[skip:]
		}
	}
	if limit, ok := toInt(options["limit"]); ok && limit > 0 && limit < len(result) {
		result = result[:limit]
	}
	if projection, ok := options["projection"].(map[string]interface{}); ok && len(projection) > 0 {
		for i, doc := range result {
			result[i] = applyProjection(doc, projection)
		}
	}

	return result, nil
}

// Distinct returns the distinct values of a field among matching
// documents, in order of first appearance
func (m *Memory) Distinct(field string, filter map[string]interface{}) ([]interface{}, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]bool)
	var values []interface{}

	for _, doc := range m.docs {
		matches, err := matchFilter(doc, filter)
		if err != nil {
			return nil, err
		}
		if !matches {
			continue
		}

		value, exists := getPath(doc, field)
		if !exists {
			continue
		}

		key := stableKey(value)
		if !seen[key] {
			seen[key] = true
			values = append(values, value)
		}
	}

	return values, nil
}

// InsertOne inserts a single document, assigning an ObjectID when the
// document carries none
func (m *Memory) InsertOne(doc map[string]interface{}) (*WriteResult, error) {
	result, err := m.InsertMany([]map[string]interface{}{doc})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// InsertMany inserts multiple documents
func (m *Memory) InsertMany(docs []map[string]interface{}) (*WriteResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := &WriteResult{Acknowledged: true}
	for _, doc := range docs {
		stored := cloneDocument(doc)
		if _, ok := stored["_id"]; !ok {
			stored["_id"] = document.NewObjectID()
		}
		m.docs = append(m.docs, stored)
		result.InsertedIDs = append(result.InsertedIDs, idString(stored["_id"]))
	}

	return result, nil
}

// UpdateOne applies the update to the first matching document
func (m *Memory) UpdateOne(filter, update map[string]interface{}) (*WriteResult, error) {
	return m.update(filter, update, false)
}

// UpdateMany applies the update to every matching document
func (m *Memory) UpdateMany(filter, update map[string]interface{}) (*WriteResult, error) {
	return m.update(filter, update, true)
}

func (m *Memory) update(filter, update map[string]interface{}, multi bool) (*WriteResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := &WriteResult{Acknowledged: true}
	for _, doc := range m.docs {
		matches, err := matchFilter(doc, filter)
		if err != nil {
			return nil, err
		}
		if !matches {
			continue
		}

		if err := applyUpdate(doc, update); err != nil {
			return nil, err
		}
		result.MatchedCount++
		result.ModifiedCount++

		if !multi {
			break
		}
	}

	return result, nil
}

// DeleteOne removes the first matching document
func (m *Memory) DeleteOne(filter map[string]interface{}) (*WriteResult, error) {
	return m.delete(filter, false)
}

// DeleteMany removes every matching document
func (m *Memory) DeleteMany(filter map[string]interface{}) (*WriteResult, error) {
	return m.delete(filter, true)
}

func (m *Memory) delete(filter map[string]interface{}, multi bool) (*WriteResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := &WriteResult{Acknowledged: true}
	remaining := m.docs[:0]
	deleted := false

	for _, doc := range m.docs {
		if deleted && !multi {
			remaining = append(remaining, doc)
			continue
		}

		matches, err := matchFilter(doc, filter)
		if err != nil {
			return nil, err
		}
		if matches {
			result.DeletedCount++
			deleted = true
			continue
		}
		remaining = append(remaining, doc)
	}

	m.docs = remaining
	return result, nil
}

// Drop removes all documents in the collection
func (m *Memory) Drop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.docs = nil
	return nil
}

// Count returns the number of documents matching the filter
func (m *Memory) Count(filter map[string]interface{}) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, doc := range m.docs {
		matches, err := matchFilter(doc, filter)
		if err != nil {
			return 0, err
		}
		if matches {
			count++
		}
	}
	return count, nil
}

// getPath retrieves a value using dot notation (e.g. "user.address.city")
func getPath(doc map[string]interface{}, path string) (interface{}, bool) {
	parts := strings.Split(path, ".")
	var current interface{} = doc

	for _, part := range parts {
		currentMap, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = currentMap[part]
		if !ok {
			return nil, false
		}
	}

	return current, true
}

// setPath sets a value using dot notation, creating intermediate
// sub-documents as needed
func setPath(doc map[string]interface{}, path string, value interface{}) {
	parts := strings.Split(path, ".")
	current := doc

	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]interface{})
		if !ok {
			next = make(map[string]interface{})
			current[part] = next
		}
		current = next
	}

	current[parts[len(parts)-1]] = value
}

// deletePath removes a field using dot notation
func deletePath(doc map[string]interface{}, path string) {
	parts := strings.Split(path, ".")
	current := doc

	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]interface{})
		if !ok {
			return
		}
		current = next
	}

	delete(current, parts[len(parts)-1])
}

// cloneDocument creates a deep copy of a document
func cloneDocument(doc map[string]interface{}) map[string]interface{} {
	clone := make(map[string]interface{}, len(doc))
	for key, value := range doc {
		clone[key] = cloneValue(value)
	}
	return clone
}

func cloneValue(value interface{}) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		return cloneDocument(v)
	case []interface{}:
		clone := make([]interface{}, len(v))
		for i, item := range v {
			clone[i] = cloneValue(item)
		}
		return clone
	default:
		return value
	}
}

// applyProjection applies an inclusion or exclusion projection
func applyProjection(doc map[string]interface{}, projection map[string]interface{}) map[string]interface{} {
	inclusion := false
	for _, spec := range projection {
		if included(spec) {
			inclusion = true
			break
		}
	}

	if inclusion {
		result := make(map[string]interface{})
		for field, spec := range projection {
			if !included(spec) {
				continue
			}
			if value, exists := getPath(doc, field); exists {
				setPath(result, field, value)
			}
		}
		return result
	}

	result := cloneDocument(doc)
	for field := range projection {
		deletePath(result, field)
	}
	return result
}

func included(spec interface{}) bool {
	switch v := spec.(type) {
	case bool:
		return v
	case int:
		return v == 1
	case int64:
		return v == 1
	case float64:
		return v == 1
	default:
		return false
	}
}

// sortDocuments sorts in place by the given sort specification. The
// $natural sentinel leaves insertion order untouched.
func sortDocuments(docs []map[string]interface{}, sortSpec map[string]interface{}) {
	type sortField struct {
		field     string
		ascending bool
	}

	var fields []sortField
	for field, direction := range sortSpec {
		if field == "$natural" {
			continue
		}
		dir, ok := toInt(direction)
		if !ok {
			dir = 1
		}
		fields = append(fields, sortField{field: field, ascending: dir >= 0})
	}
	if len(fields) == 0 {
		return
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].field < fields[j].field })

	sort.SliceStable(docs, func(i, j int) bool {
		for _, f := range fields {
			vi, existsI := getPath(docs[i], f.field)
			vj, existsJ := getPath(docs[j], f.field)

			if !existsI && !existsJ {
				continue
			}
			if !existsI {
				return !f.ascending
			}
			if !existsJ {
				return f.ascending
			}

			cmp := compareValues(vi, vj)
			if cmp != 0 {
				if f.ascending {
					return cmp < 0
				}
				return cmp > 0
			}
		}
		return false
	})
}

// idString renders an inserted identifier for the write result
func idString(id interface{}) string {
	switch v := id.(type) {
	case document.ObjectID:
		return v.Hex()
	case string:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}
