// Package gateway is the HTTP front door. It authenticates callers, times
// every request into the metrics store, resolves upstreams through the
// service registry and forwards calls inside each service's circuit breaker.
//
// Routes, relative to the base path:
//
//	GET  /health               public; uptime, per-service health, timestamp
//	GET  /metrics              recent request and system metrics
//	GET  /metrics/prometheus   Prometheus exposition
//	ANY  /<service>[/*path]    proxied to <address>/<service>[/*path]
//
// Circuit failures map to 503, unknown services to 404 and upstream errors to
// the upstream status (500 when there is none).
package gateway
