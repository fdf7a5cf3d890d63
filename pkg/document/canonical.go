package document

import "time"

// CanonicalizeID converts 24-character hex strings to ObjectIDs.
// Arrays are canonicalized element by element. Any other value passes
// through unchanged.
func CanonicalizeID(value interface{}) interface{} {
	switch v := value.(type) {
	case string:
		if IsObjectIDHex(v) {
			id, err := ObjectIDFromHex(v)
			if err == nil {
				return id
			}
		}
		return v
	case []interface{}:
		result := make([]interface{}, len(v))
		for i, item := range v {
			result[i] = CanonicalizeID(item)
		}
		return result
	default:
		return value
	}
}

// CanonicalizeTime converts time.Time values to the store's DateTime
// type. Arrays are canonicalized element by element. Any other value
// passes through unchanged.
func CanonicalizeTime(value interface{}) interface{} {
	switch v := value.(type) {
	case time.Time:
		return NewDateTime(v)
	case *time.Time:
		if v == nil {
			return value
		}
		return NewDateTime(*v)
	case []interface{}:
		result := make([]interface{}, len(v))
		for i, item := range v {
			result[i] = CanonicalizeTime(item)
		}
		return result
	default:
		return value
	}
}
