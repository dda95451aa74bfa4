package loader

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"testing"
	"time"
)

type rec struct {
	ID  string
	Val string
}

// fakeBackend returns records for known keys in reverse order, to make sure
// nothing relies on response ordering.
type fakeBackend struct {
	mu    sync.Mutex
	data  map[string]rec
	calls [][]string
	fail  func(keys []string) error
	gate  chan struct{} // when set, fetches block until it is closed
}

func newFakeBackend(n int) *fakeBackend {
	b := &fakeBackend{data: make(map[string]rec)}
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("k%02d", i)
		b.data[id] = rec{ID: id, Val: "v" + id}
	}
	return b
}

func (b *fakeBackend) fetch(_ context.Context, keys []string) ([]rec, error) {
	b.mu.Lock()
	b.calls = append(b.calls, append([]string(nil), keys...))
	fail := b.fail
	gate := b.gate
	b.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if fail != nil {
		if err := fail(keys); err != nil {
			return nil, err
		}
	}
	var out []rec
	for i := len(keys) - 1; i >= 0; i-- {
		if r, ok := b.data[keys[i]]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (b *fakeBackend) callSizes() []int {
	b.mu.Lock()
	defer b.mu.Unlock()
	sizes := make([]int, len(b.calls))
	for i, c := range b.calls {
		sizes[i] = len(c)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(sizes)))
	return sizes
}

func (b *fakeBackend) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.calls)
}

func recKey(r rec) (string, bool) { return r.ID, r.ID != "" }

func newTestLoader(b *fakeBackend, opts Options) *Loader[rec] {
	if opts.Wait == 0 {
		opts.Wait = 20 * time.Millisecond
	}
	return New[rec](b.fetch, recKey, opts)
}

func keysN(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("k%02d", i)
	}
	return out
}

func TestLoadManyChunksAndKeepsOrder(t *testing.T) {
	b := newFakeBackend(30)
	l := newTestLoader(b, Options{})

	keys := keysN(23)
	// request in a scrambled order
	slices.Reverse(keys)

	res := l.LoadMany(context.Background(), keys)
	if len(res) != len(keys) {
		t.Fatalf("got %d results for %d keys", len(res), len(keys))
	}
	for i, r := range res {
		if r.Err != nil || !r.Found || r.Value.ID != keys[i] {
			t.Fatalf("result %d: %+v want id %s", i, r, keys[i])
		}
	}
	if got := b.callSizes(); !slices.Equal(got, []int{10, 10, 3}) {
		t.Fatalf("chunk sizes = %v, want [10 10 3]", got)
	}
}

func TestConcurrentLoadsShareOneFetch(t *testing.T) {
	b := newFakeBackend(5)
	l := newTestLoader(b, Options{Wait: 50 * time.Millisecond})

	var wg sync.WaitGroup
	results := make([]rec, 2)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, ok, err := l.Load(context.Background(), "k01")
			if err != nil || !ok {
				t.Errorf("Load: ok=%v err=%v", ok, err)
			}
			results[i] = v
		}()
	}
	wg.Wait()

	if n := b.callCount(); n != 1 {
		t.Fatalf("expected 1 backend call, got %d", n)
	}
	if results[0] != results[1] {
		t.Fatalf("callers observed different results: %+v vs %+v", results[0], results[1])
	}
}

func TestConcurrentDistinctKeysBoundedCalls(t *testing.T) {
	b := newFakeBackend(40)
	l := newTestLoader(b, Options{Wait: 100 * time.Millisecond})

	keys := keysN(35)
	var wg sync.WaitGroup
	for _, k := range keys {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok, err := l.Load(context.Background(), k); err != nil || !ok {
				t.Errorf("Load(%s): ok=%v err=%v", k, ok, err)
			}
		}()
	}
	wg.Wait()

	if n := b.callCount(); n > 4 {
		t.Fatalf("expected at most ceil(35/10)=4 backend calls, got %d", n)
	}
}

func TestLoadManyDuplicatesAndMisses(t *testing.T) {
	b := newFakeBackend(3)
	l := newTestLoader(b, Options{})

	keys := []string{"k00", "missing", "k00", "k02", "missing"}
	res := l.LoadMany(context.Background(), keys)
	if len(res) != len(keys) {
		t.Fatalf("len=%d", len(res))
	}
	wantFound := []bool{true, false, true, true, false}
	for i, r := range res {
		if r.Err != nil {
			t.Fatalf("result %d: unexpected err %v", i, r.Err)
		}
		if r.Found != wantFound[i] {
			t.Fatalf("result %d: found=%v want %v", i, r.Found, wantFound[i])
		}
		if r.Found && r.Value.ID != keys[i] {
			t.Fatalf("result %d: id=%s want %s", i, r.Value.ID, keys[i])
		}
	}
	if got := b.callSizes(); !slices.Equal(got, []int{3}) {
		t.Fatalf("expected one call with 3 distinct keys, got %v", got)
	}
}

func TestChunkFailureIsIsolated(t *testing.T) {
	b := newFakeBackend(20)
	boom := errors.New("backend down")
	b.fail = func(keys []string) error {
		if slices.Contains(keys, "k15") {
			return boom
		}
		return nil
	}
	l := newTestLoader(b, Options{})

	var failedChunk []string
	l.onChunkError = func(keys []string, err error) { failedChunk = keys }

	keys := keysN(20)
	res := l.LoadMany(context.Background(), keys)
	for i, r := range res {
		if i < 10 {
			if r.Err != nil || !r.Found {
				t.Fatalf("key %s in healthy chunk: %+v", keys[i], r)
			}
			continue
		}
		var fe *FetchError
		if !errors.As(r.Err, &fe) {
			t.Fatalf("key %s: expected *FetchError, got %v", keys[i], r.Err)
		}
		if !errors.Is(r.Err, boom) {
			t.Fatalf("key %s: FetchError should wrap cause", keys[i])
		}
		if len(fe.Keys) != 10 {
			t.Fatalf("FetchError keys=%v", fe.Keys)
		}
	}
	if len(failedChunk) != 10 {
		t.Fatalf("OnChunkError keys=%v", failedChunk)
	}

	// failures are not memoized
	b.fail = nil
	if _, ok, err := l.Load(context.Background(), "k15"); err != nil || !ok {
		t.Fatalf("reload after failure: ok=%v err=%v", ok, err)
	}
}

func TestMalformedRecordFailsChunk(t *testing.T) {
	fetch := func(_ context.Context, keys []string) ([]rec, error) {
		return []rec{{ID: keys[0]}, {ID: "", Val: "orphan"}}, nil
	}
	l := New[rec](fetch, recKey, Options{Wait: time.Millisecond})

	_, ok, err := l.Load(context.Background(), "a")
	if ok {
		t.Fatalf("expected failure, got found")
	}
	var mr *MalformedRecordError
	if !errors.As(err, &mr) {
		t.Fatalf("expected MalformedRecordError, got %v", err)
	}
	if mr.Index != 1 {
		t.Fatalf("Index=%d want 1", mr.Index)
	}
}

func TestPanickingFetchRejects(t *testing.T) {
	fetch := func(context.Context, []string) ([]rec, error) { panic("oops") }
	l := New[rec](fetch, recKey, Options{Wait: time.Millisecond})

	_, _, err := l.Load(context.Background(), "a")
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FetchError, got %v", err)
	}
}

func TestMemoClearAndPrime(t *testing.T) {
	ctx := context.Background()
	b := newFakeBackend(3)
	l := newTestLoader(b, Options{Wait: time.Millisecond})

	if _, _, err := l.Load(ctx, "k00"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := l.Load(ctx, "k00"); err != nil {
		t.Fatal(err)
	}
	if n := b.callCount(); n != 1 {
		t.Fatalf("memoized load should not refetch, calls=%d", n)
	}

	l.Clear("k00")
	if _, _, err := l.Load(ctx, "k00"); err != nil {
		t.Fatal(err)
	}
	if n := b.callCount(); n != 2 {
		t.Fatalf("Clear should force refetch, calls=%d", n)
	}

	l.Prime("k00", rec{ID: "k00", Val: "primed"})
	v, ok, err := l.Load(ctx, "k00")
	if err != nil || !ok || v.Val != "primed" {
		t.Fatalf("primed load: v=%+v ok=%v err=%v", v, ok, err)
	}
	if n := b.callCount(); n != 2 {
		t.Fatalf("primed key should not hit backend, calls=%d", n)
	}

	l.ClearAll()
	if _, _, err := l.Load(ctx, "k00"); err != nil {
		t.Fatal(err)
	}
	if n := b.callCount(); n != 3 {
		t.Fatalf("ClearAll should force refetch, calls=%d", n)
	}
}

func TestNotFoundIsMemoized(t *testing.T) {
	ctx := context.Background()
	b := newFakeBackend(1)
	l := newTestLoader(b, Options{Wait: time.Millisecond})

	for i := 0; i < 2; i++ {
		if _, ok, err := l.Load(ctx, "nope"); err != nil || ok {
			t.Fatalf("expected not found, ok=%v err=%v", ok, err)
		}
	}
	if n := b.callCount(); n != 1 {
		t.Fatalf("calls=%d want 1", n)
	}
}

func TestCallerContextEndsBeforeFetch(t *testing.T) {
	b := newFakeBackend(2)
	b.gate = make(chan struct{})
	l := newTestLoader(b, Options{Wait: time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, _, err := l.Load(ctx, "k01"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}

	close(b.gate)
	v, ok, err := l.Load(context.Background(), "k01")
	if err != nil || !ok || v.ID != "k01" {
		t.Fatalf("dispatched fetch should still complete: v=%+v ok=%v err=%v", v, ok, err)
	}
	if n := b.callCount(); n != 1 {
		t.Fatalf("calls=%d want 1", n)
	}
}

func TestMaxBatchConfigurable(t *testing.T) {
	b := newFakeBackend(10)
	l := newTestLoader(b, Options{MaxBatch: 4, MaxConcurrency: 1})

	var dispatched, chunks int
	l.onDispatch = func(k, c int) { dispatched, chunks = k, c }

	res := l.LoadMany(context.Background(), keysN(10))
	for i, r := range res {
		if r.Err != nil || !r.Found {
			t.Fatalf("result %d: %+v", i, r)
		}
	}
	if got := b.callSizes(); !slices.Equal(got, []int{4, 4, 2}) {
		t.Fatalf("sizes=%v", got)
	}
	if dispatched != 10 || chunks != 3 {
		t.Fatalf("OnDispatch(%d, %d)", dispatched, chunks)
	}
}
