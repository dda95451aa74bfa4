package serializer

import (
	"strconv"
	"strings"

	"github.com/unkn0wn-root/doccache/document"
)

type tag uint8

const (
	tagUnrecognized tag = iota
	tagTimestamp
	tagGeoPoint
	tagRef
)

var tagPrefixes = [...]struct {
	tag    tag
	prefix string
}{
	{tagTimestamp, "$$Timestamp$$:"},
	{tagGeoPoint, "$$GeoPoint$$:"},
	{tagRef, "$$DocumentReference$$:"},
}

// classify returns the tag of s and the text after its prefix.
func classify(s string) (tag, string) {
	if !strings.HasPrefix(s, "$$") {
		return tagUnrecognized, s
	}
	for _, p := range tagPrefixes {
		if rest, ok := strings.CutPrefix(s, p.prefix); ok {
			return p.tag, rest
		}
	}
	return tagUnrecognized, s
}

func parseTimestamp(rest string) (document.Timestamp, bool) {
	secs, nanos, ok := strings.Cut(rest, ":")
	if !ok {
		return document.Timestamp{}, false
	}
	s, err := strconv.ParseInt(secs, 10, 64)
	if err != nil {
		return document.Timestamp{}, false
	}
	n, err := strconv.ParseInt(nanos, 10, 32)
	if err != nil || n < 0 || n > 999_999_999 {
		return document.Timestamp{}, false
	}
	return document.Timestamp{Seconds: s, Nanos: int32(n)}, true
}

func parseGeoPoint(rest string) (document.GeoPoint, bool) {
	lat, lng, ok := strings.Cut(rest, ":")
	if !ok {
		return document.GeoPoint{}, false
	}
	la, err := strconv.ParseFloat(lat, 64)
	if err != nil {
		return document.GeoPoint{}, false
	}
	lo, err := strconv.ParseFloat(lng, 64)
	if err != nil {
		return document.GeoPoint{}, false
	}
	return document.GeoPoint{Latitude: la, Longitude: lo}, true
}
