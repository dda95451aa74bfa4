package doccache

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/unkn0wn-root/doccache/document"
	gen "github.com/unkn0wn-root/doccache/genstore"
	"github.com/unkn0wn-root/doccache/internal/util"
	"github.com/unkn0wn-root/doccache/loader"
	pr "github.com/unkn0wn-root/doccache/provider"
	"github.com/unkn0wn-root/doccache/serializer"
)

const (
	defaultRefreshTTL   = 10 * time.Minute
	defaultGenRetention = 30 * 24 * time.Hour
	defaultSweep        = time.Hour
)

// Cache is the caching context of one namespace: a batching loader with its
// memo, and a handle to the cache store. It is safe for concurrent use.
//
// The loader memo is never expired. Scope a Cache to a unit of work (a
// request, a job) or call ClearMemo to drop it.
type Cache struct {
	ns             string
	backend        Backend
	provider       pr.Provider
	ser            *serializer.Serializer
	loader         *loader.Loader[document.Document]
	gen            gen.GenStore
	ownsGen        bool
	log            Logger
	hooks          Hooks
	refreshTTL     time.Duration
	computeSetCost SetCostFunc
}

func newCache(opts Options) (*Cache, error) {
	if opts.Backend == nil {
		return nil, fmt.Errorf("doccache: backend is required")
	}
	if opts.Provider == nil {
		return nil, fmt.Errorf("doccache: provider is required")
	}
	if opts.Namespace == "" {
		return nil, fmt.Errorf("doccache: namespace is required")
	}

	c := &Cache{
		ns:       opts.Namespace,
		backend:  opts.Backend,
		provider: opts.Provider,
		ser:      serializer.New(opts.Codec, opts.Backend),
	}

	// defaults
	c.log = coalesce[Logger](opts.Logger, NopLogger{})
	c.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	c.refreshTTL = coalesce[time.Duration](opts.RefreshTTL, defaultRefreshTTL)

	if opts.ComputeSetCost != nil {
		c.computeSetCost = opts.ComputeSetCost
	} else {
		c.computeSetCost = func(string, []byte) int64 { return 1 }
	}

	if opts.GenStore != nil {
		c.gen = opts.GenStore
	} else {
		c.gen = newLocalGen(opts)
		c.ownsGen = true
	}

	c.loader = loader.New[document.Document](c.fetch, document.Document.ID, loader.Options{
		MaxBatch:       opts.MaxBatch,
		Wait:           opts.BatchWait,
		MaxConcurrency: opts.MaxConcurrency,
		OnDispatch: func(keys, chunks int) {
			c.log.Debug("dispatching batch", Fields{"ns": c.ns, "keys": keys, "chunks": chunks})
			c.hooks.BatchDispatched(c.ns, keys, chunks)
		},
		OnChunkError: func(keys []string, err error) {
			c.log.Error("batch chunk failed", Fields{"ns": c.ns, "ids": keys, "err": err})
			c.hooks.ChunkFailed(c.ns, len(keys), err)
		},
	})
	return c, nil
}

func (c *Cache) Namespace() string { return c.ns }

// Close releases the provider and, unless it came from Options.GenStore, the
// generation store.
func (c *Cache) Close(ctx context.Context) error {
	// Close gen store first (best effort)
	if c.ownsGen {
		_ = c.gen.Close(ctx)
	}
	if c.provider != nil {
		return c.provider.Close(ctx)
	}
	return nil
}

// FindOneByID returns the document with id; found is false when the backend
// has no such document. A cache-store hit is returned without touching the
// loader. On a miss the document is loaded (and memoized) and, when
// ttl >= 0, written to the cache store.
func (c *Cache) FindOneByID(ctx context.Context, id string, ttl time.Duration) (doc document.Document, found bool, err error) {
	k := c.storageKey(id)
	c.log.Debug("find by id", Fields{"ns": c.ns, "id": id})

	raw, ok, err := c.provider.Get(ctx, k)
	if err != nil {
		return nil, false, err
	}
	if ok {
		doc, err := c.ser.Decode(raw)
		if err == nil {
			c.log.Debug("cache hit", Fields{"key": k})
			return doc, true, nil
		}
		c.log.Warn("dropping unreadable cache entry", Fields{"key": k, "err": err})
		_ = c.provider.Del(ctx, k) // self-heal
		c.hooks.SelfHeal(k, "decode")
	}
	c.log.Debug("cache miss", Fields{"key": k})

	// snapshot before the load so an eviction racing with it wins
	obs, genErr := c.gen.Snapshot(ctx, k)
	if genErr != nil {
		c.log.Warn("gen snapshot error", Fields{"key": k, "err": genErr})
		c.hooks.GenSnapshotError(k, genErr)
	}

	doc, found, err = c.loader.Load(ctx, id)
	if err != nil || !found {
		return nil, false, err
	}
	if ttl >= 0 && genErr == nil {
		if err := c.writeThrough(ctx, k, doc, obs, ttl); err != nil {
			return nil, false, err
		}
	}
	return doc, true, nil
}

// FindManyByIDs runs FindOneByID for every id concurrently. The result is
// aligned with ids, duplicates included; nil marks a document that does not
// exist. The first error fails the whole call.
func (c *Cache) FindManyByIDs(ctx context.Context, ids []string, ttl time.Duration) ([]document.Document, error) {
	c.log.Debug("find by ids", Fields{"ns": c.ns, "count": len(ids)})
	out := make([]document.Document, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		g.Go(func() error {
			doc, _, err := c.FindOneByID(gctx, id, ttl)
			out[i] = doc
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteFromCacheByID forgets id in the loader memo and deletes its cache
// entry, so the next find goes to the backend. A write-through of a load that
// started before the delete is discarded.
func (c *Cache) DeleteFromCacheByID(ctx context.Context, id string) error {
	c.loader.Clear(id)
	k := c.storageKey(id)

	newGen, bumpErr := c.gen.Bump(ctx, k)
	if bumpErr != nil {
		c.log.Error("gen bump error", Fields{"key": k, "err": bumpErr})
		c.hooks.GenBumpError(k, bumpErr)
	}
	delErr := c.provider.Del(ctx, k)
	if delErr != nil {
		if bumpErr != nil {
			c.hooks.InvalidateOutage(id, bumpErr, delErr)
		}
		return &InvalidateError{Key: id, BumpErr: bumpErr, DelErr: delErr}
	}
	c.log.Debug("deleted from cache", Fields{"key": k, "newGen": newGen})
	return nil
}

// PrimeLoader seeds the loader memo with documents that are already known,
// e.g. one that was just written. Each document is written to the cache
// store when ttl >= 0, or when an entry for it already exists (refreshed
// with Options.RefreshTTL). Without a ttl no new entry is ever created.
func (c *Cache) PrimeLoader(ctx context.Context, ttl time.Duration, docs ...document.Document) error {
	for i, doc := range docs {
		id, ok := doc.ID()
		if !ok {
			return &MalformedRecordError{Index: i}
		}
		c.loader.Prime(id, doc)

		k := c.storageKey(id)
		// snapshot before the existence check so a delete in between wins
		obs, err := c.gen.Snapshot(ctx, k)
		if err != nil {
			c.log.Warn("gen snapshot error", Fields{"key": k, "err": err})
			c.hooks.GenSnapshotError(k, err)
			continue
		}
		writeTTL := ttl
		if ttl < 0 {
			_, exists, err := c.provider.Get(ctx, k)
			if err != nil {
				return err
			}
			if !exists {
				continue
			}
			writeTTL = c.refreshTTL
		}
		if err := c.writeThrough(ctx, k, doc, obs, writeTTL); err != nil {
			return err
		}
	}
	return nil
}

// ClearMemo drops every memoized loader result.
func (c *Cache) ClearMemo() { c.loader.ClearAll() }

func (c *Cache) writeThrough(ctx context.Context, k string, doc document.Document, observedGen uint64, ttl time.Duration) error {
	cur, err := c.gen.Snapshot(ctx, k)
	if err != nil {
		c.log.Warn("gen snapshot error", Fields{"key": k, "err": err})
		c.hooks.GenSnapshotError(k, err)
		return nil
	}
	if cur != observedGen {
		// evicted while loading; skip stale write
		c.log.Debug("write-through skipped (gen mismatch)", Fields{"key": k, "obs": observedGen, "cur": cur})
		c.hooks.WriteSkipped(k)
		return nil
	}
	return c.set(ctx, k, doc, ttl)
}

func (c *Cache) set(ctx context.Context, k string, doc document.Document, ttl time.Duration) error {
	raw, err := c.ser.Encode(doc)
	if err != nil {
		return err
	}
	ok, err := c.provider.Set(ctx, k, raw, c.computeSetCost(k, raw), ttl)
	if err != nil {
		return err
	}
	if !ok {
		c.log.Debug("set rejected by provider (pressure)", Fields{"key": k})
		c.hooks.ProviderSetRejected(k)
	}
	return nil
}

func (c *Cache) fetch(ctx context.Context, ids []string) ([]document.Document, error) {
	c.log.Debug("loading from backend", Fields{"ns": c.ns, "ids": ids})
	docs, err := c.backend.FetchByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]document.Document, 0, len(docs))
	for _, d := range docs {
		if d != nil {
			out = append(out, d)
		}
	}
	c.log.Debug("backend response", Fields{"ns": c.ns, "count": len(out)})
	return out, nil
}

func newLocalGen(opts Options) *gen.Local {
	return gen.NewLocal(gen.LocalOptions{
		Retention:  coalesce[time.Duration](opts.GenRetention, defaultGenRetention),
		SweepEvery: coalesce[time.Duration](opts.CleanupInterval, defaultSweep),
	})
}

func (c *Cache) storageKey(id string) string {
	// isolate by namespace
	return util.StorageKey(c.ns, id)
}
