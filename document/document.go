// Package document defines the record shape served by doccache and the opaque
// backend value types that need tagged encoding to survive a round trip
// through a generic codec.
package document

import "time"

// IDField is the identity field every Document must carry.
const IDField = "id"

// Document is a backend record: a field map whose "id" entry is a non-empty
// string. Values are plain JSON-like values or one of Timestamp, GeoPoint, Ref
// (at any depth).
type Document map[string]any

// ID returns the document identity. ok is false when the field is missing,
// not a string or empty.
func (d Document) ID() (id string, ok bool) {
	if d == nil {
		return "", false
	}
	id, ok = d[IDField].(string)
	return id, ok && id != ""
}

// Timestamp is an instant in time with nanosecond precision.
type Timestamp struct {
	Seconds int64
	Nanos   int32
}

func TimestampOf(t time.Time) Timestamp {
	return Timestamp{Seconds: t.Unix(), Nanos: int32(t.Nanosecond())}
}

func (t Timestamp) Time() time.Time { return time.Unix(t.Seconds, int64(t.Nanos)).UTC() }

// GeoPoint is a latitude/longitude pair in degrees.
type GeoPoint struct {
	Latitude  float64
	Longitude float64
}

// Ref is a reference to another document of the same backend.
// Path is relative to the backend root ("users/42"); Database identifies the
// backend that built it.
type Ref struct {
	Database string
	Path     string
}

// RefResolver builds fully qualified references from a path.
// Backends implement it so decoded references point back at them.
type RefResolver interface {
	Doc(path string) Ref
}
