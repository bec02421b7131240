package cache

import (
	"sync"
	"time"
)

// Outcome is the three-way result of a lookup.
type Outcome int

const (
	Miss Outcome = iota
	NotModified
	CachedHit
)

func (o Outcome) String() string {
	switch o {
	case Miss:
		return "miss"
	case NotModified:
		return "not_modified"
	case CachedHit:
		return "hit"
	default:
		return "unknown"
	}
}

// Entry is one stored upstream response.
type Entry struct {
	Body        []byte
	StatusCode  int
	Fingerprint uint64
	CreatedAt   time.Time
}

// Result carries the outcome and, unless it is a Miss, a copy of the entry.
type Result struct {
	Outcome Outcome
	Entry   Entry
}

type ResponseCache struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func New() *ResponseCache {
	return &ResponseCache{
		entries: make(map[string]Entry),
	}
}

// Lookup decides how a request for targetURL from fingerprint should be
// answered. A non-positive ttl disables the cache and always misses.
func (c *ResponseCache) Lookup(targetURL string, fingerprint uint64, ttl time.Duration, now time.Time) Result {
	if ttl <= 0 {
		return Result{Outcome: Miss}
	}

	c.mu.RLock()
	entry, ok := c.entries[targetURL]
	c.mu.RUnlock()

	if !ok || now.Sub(entry.CreatedAt) >= ttl {
		return Result{Outcome: Miss}
	}

	if entry.Fingerprint == fingerprint {
		return Result{Outcome: NotModified, Entry: entry}
	}

	return Result{Outcome: CachedHit, Entry: entry}
}

// Store writes or overwrites the entry for targetURL. It is a no-op when the
// cache is disabled. The body is copied so callers may reuse their buffer.
func (c *ResponseCache) Store(targetURL string, body []byte, statusCode int, fingerprint uint64, ttl time.Duration, now time.Time) {
	if ttl <= 0 {
		return
	}

	entry := Entry{
		Body:        append([]byte(nil), body...),
		StatusCode:  statusCode,
		Fingerprint: fingerprint,
		CreatedAt:   now,
	}

	c.mu.Lock()
	c.entries[targetURL] = entry
	c.mu.Unlock()
}

// Len reports how many target URLs have an entry, expired or not.
func (c *ResponseCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
