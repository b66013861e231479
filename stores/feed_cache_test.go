package stores

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/go-redis/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	pe "wuyrush.io/pinboard/errors"
	md "wuyrush.io/pinboard/models"
)

type fakeDiscoveryCache struct {
	gen         int64
	entries     map[int64]map[int][]*md.Pin
	hits        int
	invalidated int
}

func newFakeDiscoveryCache() *fakeDiscoveryCache {
	return &fakeDiscoveryCache{entries: map[int64]map[int][]*md.Pin{}}
}

func (c *fakeDiscoveryCache) Generation(ctx context.Context) (int64, bool) {
	return c.gen, true
}

func (c *fakeDiscoveryCache) Get(ctx context.Context, gen int64, limit int) ([]*md.Pin, bool) {
	ps, ok := c.entries[gen][limit]
	if ok {
		c.hits++
	}
	return ps, ok
}

func (c *fakeDiscoveryCache) Put(ctx context.Context, gen int64, limit int, ps []*md.Pin) {
	if c.entries[gen] == nil {
		c.entries[gen] = map[int][]*md.Pin{}
	}
	c.entries[gen][limit] = ps
}

func (c *fakeDiscoveryCache) Invalidate(ctx context.Context) {
	c.gen++
	c.invalidated++
}

// interleavingPinStore runs during once right after its first ListAll has read the store
type interleavingPinStore struct {
	PinStore
	during func()
}

func (s *interleavingPinStore) ListAll(ctx context.Context, limit int) ([]*md.Pin, *pe.PinErr) {
	ps, err := s.PinStore.ListAll(ctx, limit)
	if s.during != nil {
		during := s.during
		s.during = nil
		during()
	}
	return ps, err
}

func TestCachingPinStore(t *testing.T) {
	ctx := context.Background()
	cache := newFakeDiscoveryCache()
	s := &CachingPinStore{PinStore: NewMemPinStore(), Cache: cache}
	vp := &md.ValidatedPin{TextContent: "hello"}

	p, err := s.Create(ctx, alice.ID, vp, nil)
	require.Nil(t, err)
	assert.Equal(t, 1, cache.invalidated)

	ps, err := s.ListAll(ctx, 0)
	require.Nil(t, err)
	assert.Len(t, ps, 1)
	assert.Equal(t, 0, cache.hits)
	_, ok := cache.entries[cache.gen][50]
	assert.True(t, ok, "non-positive limit is cached under the default cap")

	_, err = s.ListAll(ctx, 50)
	require.Nil(t, err)
	assert.Equal(t, 1, cache.hits)

	_, err = s.UpdateText(ctx, p.ID, alice.ID, "hello world")
	require.Nil(t, err)
	assert.Equal(t, 2, cache.invalidated)
	ps, _ = s.ListAll(ctx, 50)
	assert.Equal(t, "hello world", ps[0].TextContent, "writes must never leave stale listings behind")

	// failed writes leave cache intact
	_, err = s.UpdateText(ctx, p.ID, bob.ID, "hijacked")
	require.NotNil(t, err)
	assert.Equal(t, 2, cache.invalidated)

	_, err = s.SetArchived(ctx, p.ID, alice.ID, true)
	require.Nil(t, err)
	require.Nil(t, s.Delete(ctx, p.ID, alice.ID))
	assert.Equal(t, 4, cache.invalidated)
	ps, _ = s.ListAll(ctx, 50)
	assert.Empty(t, ps)
}

func TestCachingPinStore_WriteDuringListing(t *testing.T) {
	ctx := context.Background()
	cache := newFakeDiscoveryCache()
	backing := &interleavingPinStore{PinStore: NewMemPinStore()}
	s := &CachingPinStore{PinStore: backing, Cache: cache}
	vp := &md.ValidatedPin{TextContent: "hello"}

	var written *md.Pin
	backing.during = func() {
		p, err := s.Create(ctx, alice.ID, vp, nil)
		require.Nil(t, err)
		written = p
	}
	ps, err := s.ListAll(ctx, 50)
	require.Nil(t, err)
	assert.Empty(t, ps, "the listing was read before the write")
	require.NotNil(t, written)

	ps, err = s.ListAll(ctx, 50)
	require.Nil(t, err)
	require.Len(t, ps, 1, "a listing read before a write must not be served after it")
	assert.Equal(t, written.ID, ps[0].ID)
}

func TestRedisDiscoveryCache(t *testing.T) {
	host := os.Getenv("PIN_TEST_REDIS_HOST")
	if host == "" {
		t.Skip("PIN_TEST_REDIS_HOST not set; skipping redis cache integration test")
	}
	ctx := context.Background()
	db := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%d", host, 6379)})
	defer db.Close()
	c := &RedisDiscoveryCache{DB: db, TTL: time.Minute}
	c.Invalidate(ctx)

	gen, ok := c.Generation(ctx)
	require.True(t, ok)
	_, ok = c.Get(ctx, gen, 50)
	assert.False(t, ok)

	ps := []*md.Pin{{ID: "p1", OwnerID: alice.ID, TextContent: "hello", ImageURLs: []string{}, CreatedAt: t0}}
	c.Put(ctx, gen, 50, ps)
	got, ok := c.Get(ctx, gen, 50)
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.Equal(t, "p1", got[0].ID)
	assert.True(t, t0.Equal(got[0].CreatedAt))
	ttl, err := db.TTL(genKey(gen)).Result()
	require.NoError(t, err)
	assert.True(t, ttl > 0)

	c.Invalidate(ctx)
	next, ok := c.Generation(ctx)
	require.True(t, ok)
	assert.Equal(t, gen+1, next)
	_, ok = c.Get(ctx, next, 50)
	assert.False(t, ok)

	// a listing of a retired generation stays invisible
	c.Put(ctx, gen, 50, ps)
	_, ok = c.Get(ctx, next, 50)
	assert.False(t, ok)
}

func TestRedisDiscoveryCache_Unreachable(t *testing.T) {
	ctx := context.Background()
	db := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: 0, DialTimeout: 100 * time.Millisecond})
	defer db.Close()
	c := &RedisDiscoveryCache{DB: db, TTL: time.Minute}
	s := &CachingPinStore{PinStore: NewMemPinStore(), Cache: c}

	_, err := s.Create(ctx, alice.ID, &md.ValidatedPin{TextContent: "hello"}, nil)
	require.Nil(t, err, "cache outage must not fail writes")
	ps, err := s.ListAll(ctx, 10)
	require.Nil(t, err, "cache outage must fall back to the store")
	assert.Len(t, ps, 1)
}
