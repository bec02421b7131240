// Package httpserver wraps net/http.Server for the proxy and admin
// listeners: it validates the listen address up front, applies conservative
// timeouts and shuts down gracefully.
package httpserver
