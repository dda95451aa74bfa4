package genstore

import (
	"context"
	"sync"
	"time"
)

type LocalOptions struct {
	// Retention is how long a generation is kept after its last bump.
	// 0 keeps generations forever.
	Retention time.Duration
	// SweepEvery is the interval of the background prune; 0 disables it.
	SweepEvery time.Duration
}

// Local keeps generations in-process. Only keys that were bumped take
// memory; with a Retention they are pruned again once the delete that
// bumped them is old enough that no load can still be racing it.
type Local struct {
	mu     sync.RWMutex
	gens   map[string]bump
	now    func() time.Time
	keep   time.Duration
	stop   chan struct{}
	done   chan struct{}
	closed sync.Once
}

type bump struct {
	gen uint64
	at  time.Time
}

var _ GenStore = (*Local)(nil)

func NewLocal(opts LocalOptions) *Local {
	s := &Local{
		gens: make(map[string]bump),
		now:  time.Now,
		keep: opts.Retention,
	}
	if opts.SweepEvery > 0 && opts.Retention > 0 {
		s.stop = make(chan struct{})
		s.done = make(chan struct{})
		go s.sweep(opts.SweepEvery)
	}
	return s
}

func (s *Local) sweep(every time.Duration) {
	t := time.NewTicker(every)
	defer func() {
		t.Stop()
		close(s.done)
	}()
	for {
		select {
		case <-t.C:
			s.Prune()
		case <-s.stop:
			return
		}
	}
}

func (s *Local) Snapshot(_ context.Context, k string) (uint64, error) {
	s.mu.RLock()
	b := s.gens[k]
	s.mu.RUnlock()
	return b.gen, nil
}

func (s *Local) Bump(_ context.Context, k string) (uint64, error) {
	at := s.now()
	s.mu.Lock()
	b := s.gens[k]
	b.gen++
	b.at = at
	s.gens[k] = b
	s.mu.Unlock()
	return b.gen, nil
}

// Prune drops generations last bumped more than Retention ago.
func (s *Local) Prune() {
	if s.keep <= 0 {
		return
	}
	cutoff := s.now().Add(-s.keep)
	s.mu.Lock()
	for k, b := range s.gens {
		if b.at.Before(cutoff) {
			delete(s.gens, k)
		}
	}
	s.mu.Unlock()
}

// Len reports how many keys currently hold a generation.
func (s *Local) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.gens)
}

// Close stops the sweeper. It is safe to call more than once.
func (s *Local) Close(_ context.Context) error {
	s.closed.Do(func() {
		if s.stop != nil {
			close(s.stop)
			<-s.done
		}
	})
	return nil
}
