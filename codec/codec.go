// Package codec holds the generic encodings doccache layers its tagged
// serializer on. A codec only ever sees plain trees: nil, bool, numbers,
// strings, []any and map[string]any. Opaque backend types are turned into
// tagged strings before a codec is invoked.
package codec

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}

// Tree is the value shape the serializer hands to codecs.
type Tree = map[string]any
