// Package api implements the HTTP REST API and WebSocket server for lifxd.
//
// This package provides:
//   - REST endpoints to list lights, read their cached state and run commands
//   - Read-only views of the location/group tree and tile chains
//   - Per-light change history backed by SQLite
//   - WebSocket hub broadcasting light changes as they are observed
//   - Middleware stack (request ID, logging, recovery, CORS)
//
// # Architecture
//
// The server reads from the in-memory light records owned by the service.
// Commands are executed directly against those records with the same
// command vocabulary as the MQTT bridge, so an HTTP PUT and an MQTT command
// produce identical wire traffic and identical error codes.
//
// # Graceful Degradation
//
// History, tiles, locations and Prometheus metrics are optional. A route
// whose backing component is absent answers 503 instead of failing startup.
package api
