package doccache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/unkn0wn-root/doccache/document"
	gen "github.com/unkn0wn-root/doccache/genstore"
	pr "github.com/unkn0wn-root/doccache/provider"
	gcp "github.com/unkn0wn-root/doccache/provider/gcache"
)

// DefaultLocalSize is the capacity of the in-process LRU used when
// Initialize is given no provider.
const DefaultLocalSize = 10_000

// State is the lifecycle state of a DataSource: Uninitialized or Initialized.
type State interface{ isState() }

// Uninitialized is the state of a DataSource before Initialize. Every
// operation fails with a *NotInitializedError.
type Uninitialized struct{}

// Initialized carries the live caching context.
type Initialized struct {
	Cache *Cache
}

func (Uninitialized) isState() {}
func (Initialized) isState()   {}

// DataSource binds a backend to a caching context that is created later,
// typically once per request, by Initialize.
//
// Every context of one DataSource shares its generation store, so a delete
// issued in one context discards write-throughs of loads started in another.
type DataSource struct {
	opts Options
	// created by NewDataSource and released by Close
	ownGen      gen.GenStore
	ownProvider pr.Provider

	mu    sync.RWMutex
	state State
}

type InitOptions struct {
	// Provider is the cache store; nil => Options.Provider, or an in-process
	// gcache LRU of DefaultLocalSize shared by every context of the source.
	Provider pr.Provider
}

// NewDataSource returns an Uninitialized DataSource. opts.Provider and
// opts.GenStore are shared by every context built by Initialize; when nil the
// source creates its own, released by Close.
func NewDataSource(backend Backend, opts Options) (*DataSource, error) {
	if backend == nil {
		return nil, errors.New("doccache: backend is required")
	}
	if opts.Namespace == "" {
		return nil, errors.New("doccache: namespace is required")
	}
	opts.Backend = backend
	opts.Logger = coalesce[Logger](opts.Logger, NopLogger{})

	d := &DataSource{state: Uninitialized{}}
	if opts.GenStore == nil {
		d.ownGen = newLocalGen(opts)
		opts.GenStore = d.ownGen
	}
	if opts.Provider == nil {
		d.ownProvider = gcp.NewLRU(DefaultLocalSize)
		opts.Provider = d.ownProvider
	}
	d.opts = opts
	opts.Logger.Info("data source started", Fields{"ns": opts.Namespace})
	return d, nil
}

// Initialize builds a fresh caching context (an empty loader memo) and moves
// the source to Initialized. Calling it again replaces the context; the
// previous Cache is not closed since it holds nothing of its own.
func (d *DataSource) Initialize(init InitOptions) error {
	opts := d.opts
	if init.Provider != nil {
		opts.Provider = init.Provider
	}
	c, err := newCache(opts)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.state = Initialized{Cache: c}
	d.mu.Unlock()
	return nil
}

// Close moves the source back to Uninitialized and releases the generation
// store and provider it created. Stores passed in through Options or
// InitOptions are left to the caller.
func (d *DataSource) Close(ctx context.Context) error {
	d.mu.Lock()
	d.state = Uninitialized{}
	d.mu.Unlock()

	var errs []error
	if d.ownGen != nil {
		errs = append(errs, d.ownGen.Close(ctx))
	}
	if d.ownProvider != nil {
		errs = append(errs, d.ownProvider.Close(ctx))
	}
	return errors.Join(errs...)
}

func (d *DataSource) State() State {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}

func (d *DataSource) cache(op string) (*Cache, error) {
	switch s := d.State().(type) {
	case Initialized:
		return s.Cache, nil
	default:
		return nil, &NotInitializedError{Op: op}
	}
}

func (d *DataSource) FindOneByID(ctx context.Context, id string, ttl time.Duration) (document.Document, bool, error) {
	c, err := d.cache("FindOneByID")
	if err != nil {
		return nil, false, err
	}
	return c.FindOneByID(ctx, id, ttl)
}

func (d *DataSource) FindManyByIDs(ctx context.Context, ids []string, ttl time.Duration) ([]document.Document, error) {
	c, err := d.cache("FindManyByIDs")
	if err != nil {
		return nil, err
	}
	return c.FindManyByIDs(ctx, ids, ttl)
}

func (d *DataSource) DeleteFromCacheByID(ctx context.Context, id string) error {
	c, err := d.cache("DeleteFromCacheByID")
	if err != nil {
		return err
	}
	return c.DeleteFromCacheByID(ctx, id)
}

func (d *DataSource) PrimeLoader(ctx context.Context, ttl time.Duration, docs ...document.Document) error {
	c, err := d.cache("PrimeLoader")
	if err != nil {
		return err
	}
	return c.PrimeLoader(ctx, ttl, docs...)
}
