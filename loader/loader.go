// Package loader coalesces concurrent point lookups into bounded bulk fetches.
//
// Every Load issued while a batch window is open joins that window. When the
// window closes its distinct keys are split into chunks of at most MaxBatch
// keys and fetched concurrently. Identical keys share one pending result, and
// resolved results stay memoized until Clear.
package loader

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/unkn0wn-root/doccache/internal/util"
)

const (
	// DefaultMaxBatch matches the multi-key lookup limit of the backend.
	DefaultMaxBatch = 10
	DefaultWait     = 2 * time.Millisecond
)

// FetchFunc fetches the records for keys. The response may be in any order
// and may omit keys that do not exist.
type FetchFunc[V any] func(ctx context.Context, keys []string) ([]V, error)

// KeyFunc returns the identity of a fetched record; ok=false marks the record
// as malformed.
type KeyFunc[V any] func(V) (key string, ok bool)

type Options struct {
	MaxBatch       int           // keys per fetch call; 0 => DefaultMaxBatch
	Wait           time.Duration // batch window length; 0 => DefaultWait
	MaxConcurrency int           // concurrent fetch calls per window; 0 => unlimited

	// OnDispatch is called once per window before its chunks are fetched.
	OnDispatch func(keys, chunks int)
	// OnChunkError is called for every chunk whose fetch failed.
	OnChunkError func(keys []string, err error)
}

// Result is one positional answer of LoadMany.
type Result[V any] struct {
	Value V
	Found bool
	Err   error
}

type Loader[V any] struct {
	fetch FetchFunc[V]
	key   KeyFunc[V]

	maxBatch     int
	maxConc      int
	wait         time.Duration
	onDispatch   func(int, int)
	onChunkError func([]string, error)

	mu     sync.Mutex
	memo   map[string]*thunk[V]
	window *window[V]
}

type window[V any] struct {
	ctx    context.Context
	keys   []string
	thunks []*thunk[V]
}

func New[V any](fetch FetchFunc[V], key KeyFunc[V], opts Options) *Loader[V] {
	l := &Loader[V]{
		fetch:        fetch,
		key:          key,
		maxBatch:     opts.MaxBatch,
		maxConc:      opts.MaxConcurrency,
		wait:         opts.Wait,
		onDispatch:   opts.OnDispatch,
		onChunkError: opts.OnChunkError,
		memo:         make(map[string]*thunk[V]),
	}
	if l.maxBatch <= 0 {
		l.maxBatch = DefaultMaxBatch
	}
	if l.wait <= 0 {
		l.wait = DefaultWait
	}
	return l
}

// Load returns the record for key; found is false when the backend has none.
// A failed fetch returns a *FetchError. If ctx ends first, Load returns
// ctx.Err() but the fetch itself still runs to completion.
func (l *Loader[V]) Load(ctx context.Context, key string) (v V, found bool, err error) {
	l.mu.Lock()
	t := l.enqueueLocked(ctx, key)
	l.mu.Unlock()
	return t.wait(ctx)
}

// LoadMany loads keys within a single window. The result is aligned with keys,
// duplicates included.
func (l *Loader[V]) LoadMany(ctx context.Context, keys []string) []Result[V] {
	thunks := make([]*thunk[V], len(keys))
	l.mu.Lock()
	for i, k := range keys {
		thunks[i] = l.enqueueLocked(ctx, k)
	}
	l.mu.Unlock()

	out := make([]Result[V], len(keys))
	for i, t := range thunks {
		v, ok, err := t.wait(ctx)
		out[i] = Result[V]{Value: v, Found: ok, Err: err}
	}
	return out
}

// Clear drops the memoized result for key so the next Load refetches it.
// Callers already waiting on an in-flight fetch still receive its result.
func (l *Loader[V]) Clear(key string) {
	l.mu.Lock()
	delete(l.memo, key)
	l.mu.Unlock()
}

func (l *Loader[V]) ClearAll() {
	l.mu.Lock()
	clear(l.memo)
	l.mu.Unlock()
}

// Prime memoizes v as the result for key, replacing any previous entry.
func (l *Loader[V]) Prime(key string, v V) {
	t := newThunk[V]()
	t.settle(v, true, nil)
	l.mu.Lock()
	l.memo[key] = t
	l.mu.Unlock()
}

func (l *Loader[V]) enqueueLocked(ctx context.Context, key string) *thunk[V] {
	if t, ok := l.memo[key]; ok {
		return t
	}
	t := newThunk[V]()
	l.memo[key] = t

	if l.window == nil {
		w := &window[V]{ctx: context.WithoutCancel(ctx)}
		l.window = w
		time.AfterFunc(l.wait, func() { l.dispatch(w) })
	}
	l.window.keys = append(l.window.keys, key)
	l.window.thunks = append(l.window.thunks, t)
	return t
}

func (l *Loader[V]) dispatch(w *window[V]) {
	l.mu.Lock()
	if l.window == w {
		l.window = nil
	}
	l.mu.Unlock()

	keyChunks := util.Chunk(w.keys, l.maxBatch)
	if l.onDispatch != nil {
		l.onDispatch(len(w.keys), len(keyChunks))
	}

	var g errgroup.Group
	if l.maxConc > 0 {
		g.SetLimit(l.maxConc)
	}
	for i, keys := range keyChunks {
		start := i * l.maxBatch
		thunks := w.thunks[start : start+len(keys)]
		g.Go(func() error {
			l.runChunk(w.ctx, keys, thunks)
			return nil
		})
	}
	_ = g.Wait()
}

func (l *Loader[V]) runChunk(ctx context.Context, keys []string, thunks []*thunk[V]) {
	recs, err := l.safeFetch(ctx, keys)
	var byKey map[string]V
	if err == nil {
		byKey, err = l.index(recs)
	}
	if err != nil {
		ferr := &FetchError{Keys: keys, Err: err}
		if l.onChunkError != nil {
			l.onChunkError(keys, err)
		}
		for i, k := range keys {
			l.reject(k, thunks[i], ferr)
		}
		return
	}
	for i, k := range keys {
		v, ok := byKey[k]
		thunks[i].settle(v, ok, nil)
	}
}

func (l *Loader[V]) safeFetch(ctx context.Context, keys []string) (recs []V, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("fetch panicked: %v", r)
		}
	}()
	return l.fetch(ctx, keys)
}

func (l *Loader[V]) index(recs []V) (map[string]V, error) {
	byKey := make(map[string]V, len(recs))
	for i, r := range recs {
		k, ok := l.key(r)
		if !ok {
			return nil, &MalformedRecordError{Index: i}
		}
		byKey[k] = r
	}
	return byKey, nil
}

// reject settles t with err and forgets it, so failures are never memoized.
func (l *Loader[V]) reject(key string, t *thunk[V], err error) {
	l.mu.Lock()
	if l.memo[key] == t {
		delete(l.memo, key)
	}
	l.mu.Unlock()
	var zero V
	t.settle(zero, false, err)
}

type thunk[V any] struct {
	done  chan struct{}
	val   V
	found bool
	err   error
}

func newThunk[V any]() *thunk[V] { return &thunk[V]{done: make(chan struct{})} }

// settle must be called exactly once.
func (t *thunk[V]) settle(v V, found bool, err error) {
	t.val, t.found, t.err = v, found, err
	close(t.done)
}

func (t *thunk[V]) wait(ctx context.Context) (V, bool, error) {
	select {
	case <-t.done:
		return t.val, t.found, t.err
	default:
	}
	select {
	case <-t.done:
		return t.val, t.found, t.err
	case <-ctx.Done():
		var zero V
		return zero, false, ctx.Err()
	}
}
