package loader

import (
	"fmt"
	"strings"
)

// FetchError is returned to every caller whose key was part of a failed chunk.
// Keys in other chunks of the same window are unaffected.
type FetchError struct {
	Keys []string
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("backend fetch of %d keys [%s] failed: %v", len(e.Keys), strings.Join(e.Keys, ","), e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// MalformedRecordError reports a fetched record without an identity. It cannot
// be matched to a requested key, so the whole chunk fails.
type MalformedRecordError struct {
	Index int // position in the backend response
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("record %d of backend response has no identity", e.Index)
}
