// Package httpserver runs the gateway's HTTP listener with validated
// addresses, configurable timeouts and a bounded graceful shutdown.
package httpserver
