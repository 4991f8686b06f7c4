// Package logger builds the gateway's structured slog logger: JSON output in
// production, human-readable text otherwise.
package logger
