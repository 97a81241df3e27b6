// Package tokencache caches short-lived server-to-server access tokens.
// Concurrent callers needing the same key while a fetch is in flight share
// one underlying request; the flight handle clears once it settles, so the
// next caller after settlement starts fresh.
package tokencache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Token is a cached credential with its expiry.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// FetchFunc obtains a fresh token from the upstream issuer.
type FetchFunc func(ctx context.Context) (Token, error)

// expiryMargin refetches tokens shortly before they lapse so callers never
// hold a credential that dies mid-request.
const expiryMargin = 30 * time.Second

// Cache is an injectable token cache with single-flight de-duplication.
// Independent instances share nothing, which keeps tests isolated.
type Cache struct {
	mu      sync.Mutex
	entries map[string]Token
	group   singleflight.Group
	now     func() time.Time
}

// New constructs an empty Cache.
func New() *Cache {
	return &Cache{entries: make(map[string]Token), now: time.Now}
}

// Get returns the cached token for key, fetching through fetch when the entry
// is absent or within the expiry margin. Fetch failures are not cached.
func (c *Cache) Get(ctx context.Context, key string, fetch FetchFunc) (Token, error) {
	if tok, ok := c.lookup(key); ok {
		return tok, nil
	}

	ch := c.group.DoChan(key, func() (any, error) {
		// Re-check under the flight: a racing caller may have settled first.
		if tok, ok := c.lookup(key); ok {
			return tok, nil
		}
		tok, err := fetch(ctx)
		if err != nil {
			return Token{}, err
		}
		c.Set(key, tok)
		return tok, nil
	})

	select {
	case <-ctx.Done():
		return Token{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Token{}, res.Err
		}
		return res.Val.(Token), nil
	}
}

// Set stores a token under key.
func (c *Cache) Set(key string, tok Token) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = tok
}

// Invalidate drops the cached token for key.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func (c *Cache) lookup(key string) (Token, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tok, ok := c.entries[key]
	if !ok {
		return Token{}, false
	}
	if c.now().Add(expiryMargin).After(tok.ExpiresAt) {
		return Token{}, false
	}
	return tok, true
}
