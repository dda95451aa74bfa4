package genstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix is prepended to every storage key.
const DefaultRedisPrefix = "doccache:gen:"

type RedisOptions struct {
	// Prefix for generation keys; "" => DefaultRedisPrefix.
	Prefix string
	// TTL refreshed on every bump; 0 => generation keys never expire.
	// Keep it well above the longest backend load.
	TTL time.Duration
}

// Redis shares generations between processes. Storage keys already carry the
// doccache namespace, so one store can serve every namespace.
type Redis struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
}

var _ GenStore = (*Redis)(nil)

func NewRedis(client redis.UniversalClient, opts RedisOptions) *Redis {
	s := &Redis{rdb: client, prefix: opts.Prefix, ttl: opts.TTL}
	if s.prefix == "" {
		s.prefix = DefaultRedisPrefix
	}
	return s
}

func (s *Redis) key(k string) string { return s.prefix + k }

func (s *Redis) Snapshot(ctx context.Context, storageKey string) (uint64, error) {
	g, err := s.rdb.Get(ctx, s.key(storageKey)).Uint64()
	switch {
	case errors.Is(err, redis.Nil):
		return 0, nil
	case err != nil:
		return 0, fmt.Errorf("genstore: snapshot %s: %w", storageKey, err)
	}
	return g, nil
}

// Bump increments the generation. With a TTL, INCR and EXPIRE run in one
// MULTI/EXEC so a bumped key never lives without an expiry.
func (s *Redis) Bump(ctx context.Context, storageKey string) (uint64, error) {
	k := s.key(storageKey)
	if s.ttl <= 0 {
		v, err := s.rdb.Incr(ctx, k).Uint64()
		if err != nil {
			return 0, fmt.Errorf("genstore: bump %s: %w", storageKey, err)
		}
		return v, nil
	}

	var incr *redis.IntCmd
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, k)
		p.Expire(ctx, k, s.ttl)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("genstore: bump %s: %w", storageKey, err)
	}
	return incr.Uint64()
}

// Close is a no-op: the client is usually shared with the redis provider,
// which owns its lifecycle.
func (s *Redis) Close(context.Context) error { return nil }
