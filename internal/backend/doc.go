// Package backend describes the upstream hosts a service can route to and
// how a request path is resolved against one of them.
package backend
