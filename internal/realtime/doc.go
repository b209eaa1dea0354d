// Package realtime implements the WebSocket side of authcore.
//
// It has three parts:
//
//   - Authenticator turns the handshake's Authorization header into a
//     Handshake: authenticated with an identity, or rejected with
//     auth.ErrTokenExpired or auth.ErrUnauthorized.
//   - Registry is the session registry. A single goroutine owns the
//     presence map and processes Connect and Disconnect one at a time,
//     notifying every PresenceSink after each change.
//   - Hub upgrades connections, runs the read and write pumps, and is
//     itself a PresenceSink that pushes presence events to clients.
//
// Rejected handshakes are still upgraded so the client receives an
// exception event explaining why, followed by a policy-violation close.
package realtime
