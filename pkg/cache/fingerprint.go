package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/mnohosten/laura-query/pkg/planner"
)

// Fingerprint produces a stable key for a query's shape. Two queries
// with identical shape and filter yield identical keys regardless of
// object identity; any difference in a listed field changes the key.
func Fingerprint(store, collection string, filter map[string]interface{}, shape *planner.Shape) string {
	keyData := struct {
		Store      string
		Collection string
		Filter     map[string]interface{}
		Columns    []string
		Groups     []string
		Orders     []planner.Order
		Offset     int
		Limit      int
		Aggregate  *planner.AggregateSpec
	}{
		Store:      store,
		Collection: collection,
		Filter:     filter,
	}
	if shape != nil {
		keyData.Columns = shape.Columns
		keyData.Groups = shape.Groups
		keyData.Orders = shape.Orders
		keyData.Offset = shape.Offset
		keyData.Limit = shape.Limit
		keyData.Aggregate = shape.Aggregate
	}

	// JSON map keys serialize sorted, so the encoding is deterministic.
	jsonBytes, err := json.Marshal(keyData)
	if err != nil {
		// Fallback to string representation
		jsonBytes = []byte(fmt.Sprintf("%s_%s_%v_%+v", store, collection, filter, shape))
	}

	hash := sha256.Sum256(jsonBytes)
	return hex.EncodeToString(hash[:])
}
