// Package loadbalancer holds the configured services in declaration order,
// resolves an inbound Host header to one of them and picks the upstream host
// with the service's own strategy.
package loadbalancer
