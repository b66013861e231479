package stores

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/go-redis/redis"
	"wuyrush.io/pinboard/common/logging"
	pe "wuyrush.io/pinboard/errors"
	md "wuyrush.io/pinboard/models"
)

const (
	keyDiscoveryPins = "pins.discovery."
	keyDiscoveryGen  = "pins.discovery.gen"
)

// DiscoveryCache caches the most recent pins across all users, keyed by generation and listing limit. A cache is
// an optimization only: implementations swallow their own failures and report a miss instead.
//
// Listings are stored under the generation read before the store was queried. Invalidate moves the generation on,
// so a listing read before a write and stored after it lands in a generation nobody reads anymore.
type DiscoveryCache interface {
	// Generation returns the current generation. ok is false when the cache is unusable
	Generation(ctx context.Context) (gen int64, ok bool)
	Get(ctx context.Context, gen int64, limit int) ([]*md.Pin, bool)
	Put(ctx context.Context, gen int64, limit int, ps []*md.Pin)
	// Invalidate retires listings of every limit
	Invalidate(ctx context.Context)
}

// RedisDiscoveryCache implements DiscoveryCache with redis. Listings of all limits of a generation live under
// fields of a single hash, which expires after TTL. The generation is a counter bumped by INCR
type RedisDiscoveryCache struct {
	DB  *redis.Client
	TTL time.Duration
}

func (c *RedisDiscoveryCache) Generation(ctx context.Context) (int64, bool) {
	gen, err := c.DB.WithContext(ctx).Get(keyDiscoveryGen).Int64()
	if err == redis.Nil {
		return 0, true
	}
	if err != nil {
		logging.WithFuncName().WithError(err).Warn("error reading discovery cache generation")
		return 0, false
	}
	return gen, true
}

func (c *RedisDiscoveryCache) Get(ctx context.Context, gen int64, limit int) ([]*md.Pin, bool) {
	b, err := c.DB.WithContext(ctx).HGet(genKey(gen), strconv.Itoa(limit)).Bytes()
	if err != nil {
		if err != redis.Nil {
			logging.WithFuncName().WithError(err).Warn("error reading discovery cache")
		}
		return nil, false
	}
	var ps []*md.Pin
	if err := json.Unmarshal(b, &ps); err != nil {
		logging.WithFuncName().WithError(err).Warn("corrupted discovery cache entry")
		return nil, false
	}
	return ps, true
}

func (c *RedisDiscoveryCache) Put(ctx context.Context, gen int64, limit int, ps []*md.Pin) {
	b, err := json.Marshal(ps)
	if err != nil {
		logging.WithFuncName().WithError(err).Warn("error marshalling discovery listing")
		return
	}
	if _, err := c.DB.WithContext(ctx).TxPipelined(func(p redis.Pipeliner) error {
		p.HSet(genKey(gen), strconv.Itoa(limit), b)
		p.Expire(genKey(gen), c.TTL)
		return nil
	}); err != nil {
		logging.WithFuncName().WithError(err).Warn("error writing discovery cache")
	}
}

func (c *RedisDiscoveryCache) Invalidate(ctx context.Context) {
	if err := c.DB.WithContext(ctx).Incr(keyDiscoveryGen).Err(); err != nil {
		logging.WithFuncName().WithError(err).Warn("error invalidating discovery cache")
	}
}

func genKey(gen int64) string {
	return keyDiscoveryPins + strconv.FormatInt(gen, 10)
}

// CachingPinStore decorates a PinStore with a DiscoveryCache. ListAll is served from cache when possible, and
// every successful write invalidates the cache
type CachingPinStore struct {
	PinStore
	Cache DiscoveryCache
}

func (s *CachingPinStore) Create(ctx context.Context, ownerID string, vp *md.ValidatedPin, imageURLs []string) (*md.Pin, *pe.PinErr) {
	p, err := s.PinStore.Create(ctx, ownerID, vp, imageURLs)
	if err == nil {
		s.Cache.Invalidate(ctx)
	}
	return p, err
}

func (s *CachingPinStore) UpdateText(ctx context.Context, pinID, ownerID, text string) (*md.Pin, *pe.PinErr) {
	p, err := s.PinStore.UpdateText(ctx, pinID, ownerID, text)
	if err == nil {
		s.Cache.Invalidate(ctx)
	}
	return p, err
}

func (s *CachingPinStore) SetArchived(ctx context.Context, pinID, ownerID string, archived bool) (*md.Pin, *pe.PinErr) {
	p, err := s.PinStore.SetArchived(ctx, pinID, ownerID, archived)
	if err == nil {
		s.Cache.Invalidate(ctx)
	}
	return p, err
}

func (s *CachingPinStore) Delete(ctx context.Context, pinID, ownerID string) *pe.PinErr {
	err := s.PinStore.Delete(ctx, pinID, ownerID)
	if err == nil {
		s.Cache.Invalidate(ctx)
	}
	return err
}

func (s *CachingPinStore) ListAll(ctx context.Context, limit int) ([]*md.Pin, *pe.PinErr) {
	limit = effectiveLimit(limit)
	// the generation must be read before the store is
	gen, ok := s.Cache.Generation(ctx)
	if !ok {
		return s.PinStore.ListAll(ctx, limit)
	}
	if ps, ok := s.Cache.Get(ctx, gen, limit); ok {
		return ps, nil
	}
	ps, err := s.PinStore.ListAll(ctx, limit)
	if err != nil {
		return nil, err
	}
	s.Cache.Put(ctx, gen, limit, ps)
	return ps, nil
}
