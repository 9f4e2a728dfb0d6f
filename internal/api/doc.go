// Package api implements the operational HTTP API for huesync.
//
// This package provides:
//   - Liveness and version reporting (GET /api/v1/health)
//   - Sync engine status: bridge metrics, aggregates, queue depth (GET /api/v1/status)
//   - State tree browsing and writes (GET/PUT /api/v1/tree/...)
//   - Bridge pairing (POST /api/v1/pair)
//   - Middleware stack (request ID, logging, recovery, CORS)
//
// # Architecture
//
// The API is a sidecar to the MQTT surface, not a replacement for it:
// MQTT remains the canonical read/write path for the state tree, while
// this server answers the questions an operator or supervisor asks —
// is the daemon alive, is the bridge reachable, what does the tree
// hold right now. Tree writes submitted here pass through the same
// store validation as MQTT set messages, so both paths produce
// identical bridge commands.
//
// # Graceful Degradation
//
// The server operates without a paired bridge — status and tree reads
// work from whatever the store holds, and POST /pair exists precisely
// for the unpaired case. It is disabled by default in configuration.
package api
