package phonetic

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

type cachedCodes struct {
	primary   string
	alternate string
}

// Cached memoizes a deterministic Encoder in a bounded LRU. Failures are not
// cached so a transient encoder error is retried on the next sighting.
type Cached struct {
	enc   Encoder
	cache *lru.Cache[string, cachedCodes]
}

// NewCached wraps enc with an LRU of the given size.
func NewCached(enc Encoder, size int) (*Cached, error) {
	cache, err := lru.New[string, cachedCodes](size)
	if err != nil {
		return nil, fmt.Errorf("creating encoder cache: %w", err)
	}
	return &Cached{enc: enc, cache: cache}, nil
}

func (c *Cached) Encode(token string) (string, string, error) {
	if hit, ok := c.cache.Get(token); ok {
		return hit.primary, hit.alternate, nil
	}
	primary, alternate, err := c.enc.Encode(token)
	if err != nil {
		return "", "", err
	}
	c.cache.Add(token, cachedCodes{primary: primary, alternate: alternate})
	return primary, alternate, nil
}

// Len returns the number of cached tokens.
func (c *Cached) Len() int {
	return c.cache.Len()
}

// NewFromSize returns enc wrapped in a cache when size > 0, otherwise enc.
func NewFromSize(enc Encoder, size int) (Encoder, error) {
	if size <= 0 {
		return enc, nil
	}
	return NewCached(enc, size)
}
