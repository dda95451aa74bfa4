// Package gcache is a size-bounded in-process doccache provider backed by
// bluele/gcache. It is the default store of DataSource.Initialize.
package gcache

import (
	"context"
	"errors"
	"time"

	"github.com/bluele/gcache"

	pr "github.com/unkn0wn-root/doccache/provider"
)

type Provider struct {
	c gcache.Cache
}

var _ pr.Provider = (*Provider)(nil)

type Policy string

const (
	LRU Policy = "lru"
	LFU Policy = "lfu"
	ARC Policy = "arc"
)

// New builds a provider holding at most size entries evicted by policy
// (LRU when empty).
func New(size int, policy Policy) *Provider {
	b := gcache.New(size)
	switch policy {
	case LFU:
		b = b.LFU()
	case ARC:
		b = b.ARC()
	default:
		b = b.LRU()
	}
	return &Provider{c: b.Build()}
}

func NewLRU(size int) *Provider { return New(size, LRU) }

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, err := p.c.GetIFPresent(key)
	if errors.Is(err, gcache.KeyNotFoundError) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	b, ok := v.([]byte)
	if !ok {
		p.c.Remove(key)
		return nil, false, nil
	}
	return b, true, nil
}

func (p *Provider) Set(_ context.Context, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	var err error
	if ttl > 0 {
		err = p.c.SetWithExpire(key, value, ttl)
	} else {
		err = p.c.Set(key, value)
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (p *Provider) Del(_ context.Context, key string) error {
	p.c.Remove(key)
	return nil
}

func (p *Provider) Close(_ context.Context) error {
	p.c.Purge()
	return nil
}

// Len reports the number of live entries.
func (p *Provider) Len() int { return p.c.Len(true) }
