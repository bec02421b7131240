// Package upstream performs the outbound fetch for a proxied request: a
// plain GET to the resolved target URL with no forwarded headers or body,
// a bounded timeout, and certificate verification switched off.
package upstream
