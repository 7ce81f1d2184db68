// Package server implements the HTTP API for monitoring and managing
// the voice engine: health, session state, sanitized configuration,
// statistics, and Prometheus metrics.
package server
