// Package handler implements the request orchestrator of the proxy. For each
// GET or HEAD request it matches the Host header to a service, selects an
// upstream host, consults the response cache, fetches upstream on a miss,
// writes a single fully buffered response and records the request latency.
package handler
