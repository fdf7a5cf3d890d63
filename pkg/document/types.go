package document

import (
	"encoding/json"
	"time"
)

// Regex represents a pattern-match value emitted by the predicate
// compiler for like and regexp operators
type Regex struct {
	Pattern string
	Options string
}

// NewRegex creates a regex value with the given pattern and options
func NewRegex(pattern, options string) Regex {
	return Regex{Pattern: pattern, Options: options}
}

// MarshalJSON encodes the regex in its wire form
func (r Regex) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{
		"$regex":   r.Pattern,
		"$options": r.Options,
	})
}

// String returns the /pattern/options representation of the regex
func (r Regex) String() string {
	return "/" + r.Pattern + "/" + r.Options
}

// DateTime is the store's native temporal type: milliseconds since the
// Unix epoch
type DateTime int64

// NewDateTime converts a time.Time to a DateTime
func NewDateTime(t time.Time) DateTime {
	return DateTime(t.UnixMilli())
}

// Time converts the DateTime back to a time.Time in UTC
func (d DateTime) Time() time.Time {
	return time.UnixMilli(int64(d)).UTC()
}
