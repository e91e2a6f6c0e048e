// Package tokens keeps the API token table in memory for request-time lookups.
package tokens

import "sync"

// Scope lists the route groups a token may call. An empty scope allows all.
type Scope map[string]bool

// Allows reports whether the scope grants name.
func (s Scope) Allows(name string) bool {
	if len(s) == 0 {
		return true
	}
	return s[name]
}

type Entry struct {
	RateLimit int
	Scope     Scope
}

// Cache is the in-memory copy of the token table. It is nil until the first
// successful load so callers can tell "no tokens" apart from "not loaded".
type Cache struct {
	mu sync.RWMutex
	m  map[string]Entry
}

func NewCache() *Cache {
	return &Cache{}
}

// Replace swaps the whole token set. The map is copied.
func (c *Cache) Replace(m map[string]Entry) {
	next := make(map[string]Entry, len(m))
	for k, v := range m {
		next[k] = v
	}
	c.mu.Lock()
	c.m = next
	c.mu.Unlock()
}

func (c *Cache) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.m != nil
}

func (c *Cache) Lookup(token string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.m[token]
	return e, ok
}

func (c *Cache) Valid(token string) bool {
	_, ok := c.Lookup(token)
	return ok
}

// RateLimit returns the per-interval limit of token, or 0 when the token is
// unknown or has no limit of its own.
func (c *Cache) RateLimit(token string) int {
	e, _ := c.Lookup(token)
	return e.RateLimit
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}
