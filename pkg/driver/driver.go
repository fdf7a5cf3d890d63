// Package driver defines the store driver contract consumed by the
// query builder, plus an in-process driver and an HTTP driver for
// LauraDB-style servers.
package driver

// WriteResult is the acknowledgement returned by a write operation.
// An unacknowledged write reports zero counts.
type WriteResult struct {
	Acknowledged  bool
	InsertedIDs   []string
	MatchedCount  int
	ModifiedCount int
	DeletedCount  int
}

// Driver executes filter and pipeline documents against one collection
// of a document store
type Driver interface {
	// Name returns the store name
	Name() string
	// Collection returns the collection name
	Collection() string

	// Find returns documents matching the filter, honoring the options
	// document (projection, sort, skip, limit, maxTimeMS)
	Find(filter map[string]interface{}, options map[string]interface{}) ([]map[string]interface{}, error)
	// Aggregate executes an ordered pipeline of stages
	Aggregate(pipeline []map[string]interface{}, options map[string]interface{}) ([]map[string]interface{}, error)
	// Distinct returns the distinct values of a field among matching
	// documents
	Distinct(field string, filter map[string]interface{}) ([]interface{}, error)

	// InsertOne inserts a single document
	InsertOne(doc map[string]interface{}) (*WriteResult, error)
	// InsertMany inserts multiple documents
	InsertMany(docs []map[string]interface{}) (*WriteResult, error)
	// UpdateOne applies an update document to the first matching
	// document
	UpdateOne(filter, update map[string]interface{}) (*WriteResult, error)
	// UpdateMany applies an update document to every matching document
	UpdateMany(filter, update map[string]interface{}) (*WriteResult, error)
	// DeleteOne removes the first matching document
	DeleteOne(filter map[string]interface{}) (*WriteResult, error)
	// DeleteMany removes every matching document
	DeleteMany(filter map[string]interface{}) (*WriteResult, error)
	// Drop removes the collection
	Drop() error
}
