// Package strategy defines the load balancing strategy interface and the
// algorithms a service can be configured with:
//
//   - Random: uniform, independent draw per request (the default)
//   - Round Robin: strict cyclic rotation starting at the first host
//
// One strategy instance is built per service, so rotation state is never
// shared between services. Unknown strategy names are rejected by New.
package strategy
