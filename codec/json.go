package codec

import "encoding/json"

// JSON is the default codec. Numbers decode as float64.
type JSON[V any] struct{}

var _ Codec[Tree] = JSON[Tree]{}

func (JSON[V]) Encode(v V) ([]byte, error) { return json.Marshal(v) }
func (JSON[V]) Decode(b []byte) (V, error) {
	var v V
	err := json.Unmarshal(b, &v)
	return v, err
}
