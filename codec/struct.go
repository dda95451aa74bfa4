package codec

import (
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Struct encodes document trees as a protobuf google.protobuf.Struct.
// Every number decodes as float64, the same as JSON.
type Struct struct{}

var _ Codec[Tree] = Struct{}

func (Struct) Encode(v Tree) ([]byte, error) {
	s, err := structpb.NewStruct(v)
	if err != nil {
		return nil, err
	}
	return proto.Marshal(s)
}

func (Struct) Decode(b []byte) (Tree, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(b, &s); err != nil {
		return nil, err
	}
	return s.AsMap(), nil
}
