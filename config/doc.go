// Package config loads the proxy configuration from a YAML file and
// environment variables and validates it before anything is served. It
// defines the routing table (domains, backend hosts and their load balancing
// strategy), the response cache validity window, and the listener settings.
package config
