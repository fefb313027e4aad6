package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/chatlog-search/internal/searcher/executor"
	pkgredis "github.com/Adithya-Monish-Kumar-K/chatlog-search/pkg/redis"
)

func newCache(t *testing.T, ttl time.Duration) (*QueryCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := pkgredis.Wrap(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { client.Close() })
	return New(client, ttl), mr
}

func result(channel string, ids ...string) *executor.SearchResult {
	r := &executor.SearchResult{Channel: channel, Results: []executor.Hit{}, TermStats: map[string]int{}}
	for _, id := range ids {
		r.Results = append(r.Results, executor.Hit{ID: id})
	}
	r.TotalHits = len(ids)
	return r
}

func TestGetOrComputeCachesResult(t *testing.T) {
	c, mr := newCache(t, time.Minute)
	ctx := context.Background()
	var calls atomic.Int32
	compute := func() (*executor.SearchResult, error) {
		calls.Add(1)
		return result("#go", "3", "1"), nil
	}

	got, hit, err := c.GetOrCompute(ctx, "#go", "smith deploy", 10, compute)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 2, got.TotalHits)

	got, hit, err = c.GetOrCompute(ctx, "#go", "Deploy  SMITH", 10, compute)
	require.NoError(t, err)
	assert.True(t, hit, "word order and case do not matter")
	assert.Equal(t, "3", got.Results[0].ID)
	assert.Equal(t, int32(1), calls.Load())

	_, hit, err = c.GetOrCompute(ctx, "#go", "smith deploy", 20, compute)
	require.NoError(t, err)
	assert.False(t, hit, "limit is part of the key")

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(2), misses)

	keys := mr.Keys()
	require.Len(t, keys, 2)
	assert.Equal(t, time.Minute, mr.TTL(keys[0]))
}

func TestGetOrComputeDoesNotCacheErrors(t *testing.T) {
	c, mr := newCache(t, time.Minute)
	boom := errors.New("boom")
	_, _, err := c.GetOrCompute(context.Background(), "#go", "q", 10, func() (*executor.SearchResult, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, mr.Keys())
}

func TestInvalidateIsPerChannel(t *testing.T) {
	c, mr := newCache(t, time.Minute)
	ctx := context.Background()
	c.Set(ctx, "#go", "a", 10, result("#go", "1"))
	c.Set(ctx, "#go", "b", 10, result("#go", "2"))
	c.Set(ctx, "#go*", "a", 10, result("#go*", "3"))
	c.Set(ctx, "#rust", "a", 10, result("#rust", "4"))

	require.NoError(t, c.Invalidate(ctx, "#go"))
	assert.Len(t, mr.Keys(), 2)
	_, ok := c.Get(ctx, "#rust", "a", 10)
	assert.True(t, ok)
	_, ok = c.Get(ctx, "#go*", "a", 10)
	assert.True(t, ok, "glob characters in channel names are literal")

	require.NoError(t, c.Invalidate(ctx, ""))
	assert.Empty(t, mr.Keys())
}

func TestGetIgnoresCorruptEntries(t *testing.T) {
	c, mr := newCache(t, time.Minute)
	require.NoError(t, mr.Set(c.buildKey("#go", "q", 10), "{not json"))
	_, ok := c.Get(context.Background(), "#go", "q", 10)
	assert.False(t, ok)
}

func TestNormalizeQuery(t *testing.T) {
	assert.Equal(t, normalizeQuery("b a"), normalizeQuery("A  B"))
	assert.Equal(t, "OR|a,b|NOT:c", normalizeQuery("a or b not c"))
	assert.NotEqual(t, normalizeQuery("a b"), normalizeQuery("a or b"))
}
