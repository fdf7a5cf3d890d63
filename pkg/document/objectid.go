package document

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"time"
)

// ObjectID is the store's 12-byte document identifier: a 4-byte
// big-endian creation timestamp, 5 process-unique random bytes and a
// 3-byte monotonic counter. The layout matches the identifiers a
// LauraDB server mints, so IDs generated on either side are
// interchangeable.
type ObjectID [12]byte

var (
	idCounter uint32
	idProcess [5]byte
)

func init() {
	rand.Read(idProcess[:])
}

// NewObjectID mints an identifier for the current instant
func NewObjectID() ObjectID {
	var id ObjectID

	binary.BigEndian.PutUint32(id[:4], uint32(time.Now().Unix()))
	copy(id[4:9], idProcess[:])

	n := atomic.AddUint32(&idCounter, 1)
	id[9] = byte(n >> 16)
	id[10] = byte(n >> 8)
	id[11] = byte(n)

	return id
}

// ObjectIDFromHex parses the 24-character hex encoding of an ObjectID
func ObjectIDFromHex(s string) (ObjectID, error) {
	var id ObjectID

	if len(s) != 24 {
		return id, fmt.Errorf("invalid ObjectID hex string length: %d", len(s))
	}

	raw, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("invalid ObjectID hex string: %w", err)
	}

	copy(id[:], raw)
	return id, nil
}

// IsObjectIDHex reports whether s is a valid 24-character hex encoding
// of an ObjectID
func IsObjectIDHex(s string) bool {
	if len(s) != 24 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// Hex returns the 24-character hex encoding of the identifier
func (id ObjectID) Hex() string {
	return hex.EncodeToString(id[:])
}

// String returns the string representation of the ObjectID
func (id ObjectID) String() string {
	return id.Hex()
}

// Timestamp extracts the creation time embedded in the identifier
func (id ObjectID) Timestamp() time.Time {
	return time.Unix(int64(binary.BigEndian.Uint32(id[:4])), 0)
}

// IsZero reports whether the identifier is the zero value
func (id ObjectID) IsZero() bool {
	return id == ObjectID{}
}

// MarshalJSON encodes the ObjectID as its hex string
func (id ObjectID) MarshalJSON() ([]byte, error) {
	return []byte(`"` + id.Hex() + `"`), nil
}

// UnmarshalJSON decodes an ObjectID from a hex string
func (id *ObjectID) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("ObjectID must be a JSON string")
	}

	parsed, err := ObjectIDFromHex(string(data[1 : len(data)-1]))
	if err != nil {
		return err
	}

	*id = parsed
	return nil
}
