// Package api implements the HTTP REST API and WebSocket endpoint for authcore.
//
// This package provides:
//   - Registration, login, refresh, logout and device listing endpoints
//   - Bearer authentication and store-fresh role checks per route
//   - Per-origin request limiting with X-RateLimit-Remaining
//   - Prometheus metrics at /api/v1/metrics
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//   - The WebSocket endpoint served by the realtime hub
//
// # Routes
//
// Every route is declared once in routes.go together with whether it is
// public and which roles may call it. The router is built from that table,
// so the authorization rules live in one place.
//
// # Errors
//
// Failures use a single JSON envelope, {"status","code","message"}.
// Authentication failures are opaque; a 401 with code token_expired tells
// the client to refresh instead of logging in again.
package api
