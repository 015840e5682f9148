// Package timeouts defines the HTTP server timeouts shared by the MCP and
// play servers.
package timeouts

import "time"

// ReadHeader limits how long an HTTP server waits for request headers.
const ReadHeader = 10 * time.Second

// Shutdown limits how long an HTTP server waits for in-flight requests
// during graceful shutdown.
const Shutdown = 10 * time.Second

// TelemetryShutdown bounds the flush of pending spans on exit.
const TelemetryShutdown = 5 * time.Second
