// Package doccache is a read-through cache for a document backend.
//
// Point lookups issued close together are deduplicated and coalesced into
// bulk backend fetches of at most Options.MaxBatch ids. Results are memoized
// in the loader and, when the caller passes a TTL, written through to a cache
// store (Provider) as a tagged encoding that keeps timestamps, geo points and
// document references typed across the round trip.
//
// Components:
//   - Loader: batch window + dedup + chunked concurrent fetch (package loader).
//   - Serializer: tagged document encoding over a pluggable Codec.
//   - Provider: byte store with TTL (Redis, Ristretto, BigCache, gcache).
//   - GenStore: per-key generations; a delete bumps the generation so a
//     write-through of an older load is dropped.
//
// Keys:
//
//	<namespace>-<id>
//
// Usage:
//
//	ds, _ := doccache.NewDataSource(backend, doccache.Options{Namespace: "users"})
//	_ = ds.Initialize(doccache.InitOptions{Provider: redisProvider})
//	u, found, err := ds.FindOneByID(ctx, "42", 5*time.Minute)
package doccache
