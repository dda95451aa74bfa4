package doccache

import (
	"context"
	"time"

	c "github.com/unkn0wn-root/doccache/codec"
	"github.com/unkn0wn-root/doccache/document"
	gen "github.com/unkn0wn-root/doccache/genstore"
	pr "github.com/unkn0wn-root/doccache/provider"
)

// NoTTL disables write-through on FindOneByID, FindManyByIDs and PrimeLoader.
// Any ttl >= 0 writes the result to the provider; 0 means "no expiry".
const NoTTL time.Duration = -1

// Backend is the document store the cache reads through to.
type Backend interface {
	// FetchByIDs returns the documents that exist among ids, in any order.
	// Every returned document carries its "id" field. len(ids) never exceeds
	// Options.MaxBatch.
	FetchByIDs(ctx context.Context, ids []string) ([]document.Document, error)

	// Doc builds a reference to the document at path in this backend.
	document.RefResolver
}

type SetCostFunc func(storageKey string, raw []byte) int64

// Options tune a Cache.
// Namespace, Backend and Provider are required; others have sensible defaults.
type Options struct {
	// Required
	Namespace string // e.g. collection path; entries are stored under "<Namespace>-<id>"
	Backend   Backend
	Provider  pr.Provider

	Codec           c.Codec[c.Tree] // nil => JSON
	Logger          Logger          // if nil, NopLogger is used
	Hooks           Hooks           // if nil, NopHooks is used
	GenStore        gen.GenStore    // nil => genstore.Local (in-process)
	RefreshTTL      time.Duration   // TTL used when PrimeLoader refreshes an existing entry; 0 => 10m
	ComputeSetCost  SetCostFunc     // default 1
	CleanupInterval time.Duration   // local gen store sweep; 0 => 1h
	GenRetention    time.Duration   // 0 => 30d

	// Batching
	MaxBatch       int           // ids per backend call; 0 => 10
	BatchWait      time.Duration // batch window; 0 => 2ms
	MaxConcurrency int           // concurrent backend calls per window; 0 => unlimited
}

func New(opts Options) (*Cache, error) {
	return newCache(opts)
}
