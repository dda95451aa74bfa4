// Package ristretto is an in-process, cost-bounded doccache provider.
//
// Ristretto applies writes asynchronously and may refuse them under its
// admission policy; doccache treats both as a cache miss later on, never as
// an error.
package ristretto

import (
	"context"
	"errors"
	"time"

	rc "github.com/dgraph-io/ristretto"

	pr "github.com/unkn0wn-root/doccache/provider"
)

type Config struct {
	// MaxDocuments is the expected number of live entries (required).
	// It sizes the admission counters and, without MaxBytes, bounds the
	// cache with each entry costing what doccache passes to Set.
	MaxDocuments int64
	// MaxBytes bounds the total encoded size of stored documents. When set,
	// every entry costs its length and the cost passed to Set is ignored.
	MaxBytes int64
	Metrics  bool
}

type Provider struct {
	c       *rc.Cache
	byBytes bool
}

var _ pr.Provider = (*Provider)(nil)

func New(cfg Config) (*Provider, error) {
	if cfg.MaxDocuments <= 0 || cfg.MaxBytes < 0 {
		return nil, errors.New("ristretto: invalid config")
	}
	rcfg := &rc.Config{
		NumCounters:        cfg.MaxDocuments * 10,
		MaxCost:            cfg.MaxDocuments,
		BufferItems:        64,
		Metrics:            cfg.Metrics,
		IgnoreInternalCost: true,
	}
	if cfg.MaxBytes > 0 {
		rcfg.MaxCost = cfg.MaxBytes
		rcfg.Cost = func(v interface{}) int64 {
			b, _ := v.([]byte)
			return int64(len(b))
		}
	}
	c, err := rc.NewCache(rcfg)
	if err != nil {
		return nil, err
	}
	return &Provider{c: c, byBytes: cfg.MaxBytes > 0}, nil
}

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := p.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	b, _ := v.([]byte)
	if b == nil {
		p.c.Del(key)
		return nil, false, nil
	}
	return b, true, nil
}

// Set is asynchronous; the entry becomes visible after Wait.
// ok=false means the write was dropped before reaching the admission policy.
func (p *Provider) Set(_ context.Context, key string, value []byte, cost int64, ttl time.Duration) (bool, error) {
	if ttl < 0 {
		ttl = 0
	}
	if p.byBytes {
		cost = 0 // computed by Config.Cost
	}
	return p.c.SetWithTTL(key, value, cost, ttl), nil
}

func (p *Provider) Del(_ context.Context, key string) error {
	p.c.Del(key)
	return nil
}

// Wait blocks until pending Sets are applied.
func (p *Provider) Wait() { p.c.Wait() }

func (p *Provider) Close(_ context.Context) error {
	p.c.Wait()
	p.c.Close()
	return nil
}

// Metrics exposes ristretto counters (nil unless Config.Metrics).
func (p *Provider) Metrics() *rc.Metrics { return p.c.Metrics }
