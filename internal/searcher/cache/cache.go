// Package cache keeps recent search results in Redis for a short TTL.
// Entries are keyed per channel so a reindex can drop one channel's results.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/chatlog-search/internal/searcher/executor"
	pkgredis "github.com/Adithya-Monish-Kumar-K/chatlog-search/pkg/redis"
)

const keyPrefix = "search:"

type QueryCache struct {
	client *pkgredis.Client
	ttl    time.Duration
	group  singleflight.Group
	logger *slog.Logger
	hits   atomic.Int64
	misses atomic.Int64
}

func New(client *pkgredis.Client, ttl time.Duration) *QueryCache {
	return &QueryCache{
		client: client,
		ttl:    ttl,
		logger: slog.Default().With("component", "query-cache"),
	}
}

func (c *QueryCache) Get(ctx context.Context, channel, query string, limit int) (*executor.SearchResult, bool) {
	key := c.buildKey(channel, query, limit)
	data, err := c.client.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.misses.Add(1)
		return nil, false
	}
	var result executor.SearchResult
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	c.logger.Debug("cache hit", "channel", channel, "query", query, "key", key)
	return &result, true
}

func (c *QueryCache) Set(ctx context.Context, channel, query string, limit int, result *executor.SearchResult) {
	key := c.buildKey(channel, query, limit)
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached result or computes and stores it.
// Concurrent misses for the same key share one computation.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	channel, query string,
	limit int,
	computeFn func() (*executor.SearchResult, error),
) (*executor.SearchResult, bool, error) {
	if result, ok := c.Get(ctx, channel, query, limit); ok {
		return result, true, nil
	}
	key := c.buildKey(channel, query, limit)
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		result, err := computeFn()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, channel, query, limit, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*executor.SearchResult), false, nil
}

// Invalidate drops cached results for channel, or for every channel when
// channel is empty.
func (c *QueryCache) Invalidate(ctx context.Context, channel string) error {
	pattern := keyPrefix + "*"
	if channel != "" {
		pattern = keyPrefix + escapeGlob(channel) + ":*"
	}
	deleted, err := c.client.FlushByPattern(ctx, pattern)
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "channel", channel, "keys_deleted", deleted)
	return nil
}

func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *QueryCache) buildKey(channel, query string, limit int) string {
	raw := fmt.Sprintf("%s:limit=%d", normalizeQuery(query), limit)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%s:%x", keyPrefix, channel, hash[:16])
}

// normalizeQuery makes equivalent queries share a key: operators and words
// are case-folded and word order is ignored.
func normalizeQuery(query string) string {
	words := strings.Fields(strings.ToLower(query))
	terms := make([]string, 0)
	excludes := make([]string, 0)
	queryType := "AND"
	excludeNext := false
	for _, w := range words {
		switch w {
		case "and":
			queryType = "AND"
		case "or":
			queryType = "OR"
		case "not":
			excludeNext = true
		default:
			if excludeNext {
				excludes = append(excludes, w)
				excludeNext = false
			} else {
				terms = append(terms, w)
			}
		}
	}

	sort.Strings(terms)
	sort.Strings(excludes)
	parts := []string{queryType, strings.Join(terms, ",")}
	if len(excludes) > 0 {
		parts = append(parts, "NOT:"+strings.Join(excludes, ","))
	}
	return strings.Join(parts, "|")
}

func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
