// Package config loads the gateway configuration from YAML and environment
// variables and validates it. It covers the listener, health checking,
// circuit breaker settings, metrics buffers, authentication, the upstream
// service list and logging.
package config
