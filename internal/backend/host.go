package backend

import (
	"net"
	"strconv"
)

// Host is a single upstream address of a service. It is immutable once built.
type Host struct {
	address string
	port    int
}

// New creates a Host for the given address and port.
func New(address string, port int) *Host {
	return &Host{
		address: address,
		port:    port,
	}
}

// Address returns the host name or IP of the upstream.
func (h *Host) Address() string {
	return h.address
}

// Port returns the upstream port.
func (h *Host) Port() int {
	return h.port
}

// String returns address:port, bracketing IPv6 literals.
func (h *Host) String() string {
	return net.JoinHostPort(h.address, strconv.Itoa(h.port))
}

// TargetURL resolves a request path (including any query) against the host.
// The scheme is always plain http.
func (h *Host) TargetURL(path string) string {
	return "http://" + h.String() + path
}
