// Package serializer turns documents into cache-store payloads and back.
//
// Opaque backend values are replaced with tagged strings before the generic
// codec runs, and recognized again after it decodes:
//
//	$$Timestamp$$:<seconds>:<nanos>
//	$$GeoPoint$$:<latitude>:<longitude>
//	$$DocumentReference$$:<path>
//
// Every other value is left to the codec. Decode(Encode(d)) is deeply equal to
// d for documents made of strings, bools, float64, nil, []any, map[string]any
// and the three opaque types.
package serializer

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/unkn0wn-root/doccache/codec"
	"github.com/unkn0wn-root/doccache/document"
)

var ErrNotDocument = errors.New("serializer: payload does not hold a document")

// Serializer is safe for concurrent use if its codec and resolver are.
type Serializer struct {
	codec codec.Codec[codec.Tree]
	refs  document.RefResolver
}

// New returns a Serializer over c (JSON when nil). refs rebuilds document
// references on decode; when nil, references carry only their path.
func New(c codec.Codec[codec.Tree], refs document.RefResolver) *Serializer {
	if c == nil {
		c = codec.JSON[codec.Tree]{}
	}
	return &Serializer{codec: c, refs: refs}
}

func (s *Serializer) Encode(doc document.Document) ([]byte, error) {
	if doc == nil {
		return nil, ErrNotDocument
	}
	b, err := s.codec.Encode(encodeMap(doc))
	if err != nil {
		return nil, fmt.Errorf("serializer: encode: %w", err)
	}
	return b, nil
}

func (s *Serializer) Decode(b []byte) (document.Document, error) {
	tree, err := s.codec.Decode(b)
	if err != nil {
		return nil, fmt.Errorf("serializer: decode: %w", err)
	}
	if tree == nil {
		return nil, ErrNotDocument
	}
	return document.Document(s.decodeMap(tree)), nil
}

// EncodeValue replaces opaque values inside v with their tagged form.
// The input is not modified.
func EncodeValue(v any) any {
	switch x := v.(type) {
	case document.Timestamp:
		return "$$Timestamp$$:" + strconv.FormatInt(x.Seconds, 10) + ":" + strconv.FormatInt(int64(x.Nanos), 10)
	case document.GeoPoint:
		return "$$GeoPoint$$:" + formatFloat(x.Latitude) + ":" + formatFloat(x.Longitude)
	case document.Ref:
		return "$$DocumentReference$$:" + x.Path
	case document.Document:
		return encodeMap(x)
	case map[string]any:
		return encodeMap(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = EncodeValue(e)
		}
		return out
	default:
		return v
	}
}

// DecodeValue is the inverse of EncodeValue.
func (s *Serializer) DecodeValue(v any) any {
	switch x := v.(type) {
	case string:
		return s.revive(x)
	case map[string]any:
		return s.decodeMap(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = s.DecodeValue(e)
		}
		return out
	default:
		return v
	}
}

func encodeMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = EncodeValue(v)
	}
	return out
}

func (s *Serializer) decodeMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = s.DecodeValue(v)
	}
	return out
}

func (s *Serializer) revive(str string) any {
	t, rest := classify(str)
	switch t {
	case tagTimestamp:
		if ts, ok := parseTimestamp(rest); ok {
			return ts
		}
	case tagGeoPoint:
		if gp, ok := parseGeoPoint(rest); ok {
			return gp
		}
	case tagRef:
		if rest != "" {
			if s.refs == nil {
				return document.Ref{Path: rest}
			}
			return s.refs.Doc(rest)
		}
	}
	return str
}

func formatFloat(f float64) string { return strconv.FormatFloat(f, 'g', -1, 64) }
