// Package cache keeps upstream responses keyed by the resolved target URL.
//
// It is not an HTTP cache. A lookup within the validity window answers
// NotModified to the client that last wrote the entry (it already holds the
// body) and CachedHit, with the full stored body, to any other client.
// Expired entries stay in place until the next Store overwrites them; there
// is no other eviction.
//
// Lookups share a read lock and stores take the write lock. Two requests
// racing to refresh the same URL resolve as last writer wins.
package cache
