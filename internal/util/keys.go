package util

// StorageKey is the cache-store key of a document: "<namespace>-<id>".
func StorageKey(namespace, id string) string {
	return namespace + "-" + id
}

// Chunk splits s into consecutive slices of at most size elements.
// The chunks share s's backing array. size <= 0 yields a single chunk.
func Chunk[T any](s []T, size int) [][]T {
	if len(s) == 0 {
		return nil
	}
	if size <= 0 || size >= len(s) {
		return [][]T{s}
	}
	out := make([][]T, 0, (len(s)+size-1)/size)
	for start := 0; start < len(s); start += size {
		end := min(start+size, len(s))
		out = append(out, s[start:end:end])
	}
	return out
}
