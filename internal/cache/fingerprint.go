package cache

import "github.com/cespare/xxhash/v2"

// Fingerprint hashes a client's remote address (ip:port). It is stable for
// the life of the process only and is not meant to be collision resistant.
func Fingerprint(remoteAddr string) uint64 {
	return xxhash.Sum64String(remoteAddr)
}
