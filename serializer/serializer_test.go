package serializer

import (
	"math"
	"reflect"
	"testing"

	"github.com/unkn0wn-root/doccache/codec"
	"github.com/unkn0wn-root/doccache/document"
)

type fakeDB struct{ name string }

func (f fakeDB) Doc(path string) document.Ref { return document.Ref{Database: f.name, Path: path} }

func newTestSerializer(c codec.Codec[codec.Tree]) *Serializer {
	return New(c, fakeDB{name: "projects/p/databases/(default)"})
}

func TestGeoPointRoundTrip(t *testing.T) {
	s := newTestSerializer(nil)
	in := document.Document{
		"id":       "store-1",
		"location": document.GeoPoint{Latitude: 51.145, Longitude: 12.5512334},
	}
	b, err := s.Encode(in)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	out, err := s.Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	gp, ok := out["location"].(document.GeoPoint)
	if !ok {
		t.Fatalf("location decoded as %T, want GeoPoint", out["location"])
	}
	if gp.Latitude != 51.145 || gp.Longitude != 12.5512334 {
		t.Fatalf("geo point changed: %+v", gp)
	}
}

func TestRoundTripAllCodecs(t *testing.T) {
	in := document.Document{
		"id":      "u1",
		"name":    "Ada",
		"active":  true,
		"score":   3.25,
		"created": document.Timestamp{Seconds: 1700000000, Nanos: 123456789},
		"home":    document.GeoPoint{Latitude: -33.8688, Longitude: 151.2093},
		"manager": document.Ref{Database: "projects/p/databases/(default)", Path: "users/7"},
		"history": []any{
			document.Timestamp{Seconds: -5, Nanos: 0},
			"plain",
			map[string]any{"at": document.GeoPoint{Latitude: 0, Longitude: math.SmallestNonzeroFloat64}},
		},
		"nested": map[string]any{
			"ref":  document.Ref{Database: "projects/p/databases/(default)", Path: "teams/a/members/b"},
			"note": nil,
		},
	}
	codecs := map[string]codec.Codec[codec.Tree]{
		"json":    codec.JSON[codec.Tree]{},
		"msgpack": codec.Msgpack[codec.Tree]{},
		"cbor":    codec.MustCBOR[codec.Tree](false),
		"struct":  codec.Struct{},
	}
	for name, c := range codecs {
		t.Run(name, func(t *testing.T) {
			s := newTestSerializer(c)
			b, err := s.Encode(in)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			out, err := s.Decode(b)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if !reflect.DeepEqual(in, out) {
				t.Fatalf("round trip mismatch:\n in=%#v\nout=%#v", in, out)
			}
		})
	}
}

func TestEncodeDoesNotMutateInput(t *testing.T) {
	ts := document.Timestamp{Seconds: 10, Nanos: 5}
	in := document.Document{"id": "x", "at": ts, "list": []any{ts}}
	if _, err := newTestSerializer(nil).Encode(in); err != nil {
		t.Fatal(err)
	}
	if in["at"] != ts || in["list"].([]any)[0] != ts {
		t.Fatalf("input mutated: %#v", in)
	}
}

func TestEncodeValueTaggedForms(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{document.Timestamp{Seconds: 1, Nanos: 2}, "$$Timestamp$$:1:2"},
		{document.GeoPoint{Latitude: 51.145, Longitude: 12.5512334}, "$$GeoPoint$$:51.145:12.5512334"},
		{document.GeoPoint{Latitude: -1.5, Longitude: 1e-7}, "$$GeoPoint$$:-1.5:1e-07"},
		{document.Ref{Database: "db", Path: "a/b"}, "$$DocumentReference$$:a/b"},
	}
	for _, tc := range cases {
		if got := EncodeValue(tc.in); got != tc.want {
			t.Errorf("EncodeValue(%#v) = %v, want %q", tc.in, got, tc.want)
		}
	}
}

func TestDecodeUnrecognizedPassesThrough(t *testing.T) {
	s := newTestSerializer(nil)
	for _, str := range []string{
		"",
		"hello",
		"$$",
		"$$Unknown$$:1:2",
		"$$Timestamp$$:abc:1",
		"$$Timestamp$$:1",
		"$$Timestamp$$:1:2000000000",
		"$$GeoPoint$$:1.5",
		"$$GeoPoint$$:x:y",
		"$$DocumentReference$$:",
		"prefix $$Timestamp$$:1:2",
	} {
		if got := s.DecodeValue(str); got != str {
			t.Errorf("DecodeValue(%q) = %#v, want unchanged", str, got)
		}
	}
}

func TestDecodeRefKeepsColonsInPath(t *testing.T) {
	s := newTestSerializer(nil)
	got := s.DecodeValue("$$DocumentReference$$:events/2024:01:01")
	want := document.Ref{Database: "projects/p/databases/(default)", Path: "events/2024:01:01"}
	if got != want {
		t.Fatalf("got %#v want %#v", got, want)
	}
}

func TestDecodeRefWithoutResolver(t *testing.T) {
	s := New(nil, nil)
	got := s.DecodeValue("$$DocumentReference$$:users/1")
	if got != (document.Ref{Path: "users/1"}) {
		t.Fatalf("got %#v", got)
	}
}

func TestDecodeRejectsNonDocument(t *testing.T) {
	s := newTestSerializer(nil)
	if _, err := s.Decode([]byte("null")); err != ErrNotDocument {
		t.Fatalf("expected ErrNotDocument, got %v", err)
	}
	if _, err := s.Decode([]byte("{not json")); err == nil {
		t.Fatalf("expected decode error for corrupt payload")
	}
	if _, err := s.Encode(nil); err != ErrNotDocument {
		t.Fatalf("expected ErrNotDocument for nil doc, got %v", err)
	}
}
