// Package auth provides authentication and authorisation for authcore.
//
// It covers:
//   - Credential verification with Argon2id password hashes
//   - HS256 access tokens (15 minutes) and opaque, device-scoped refresh
//     tokens (30 days) that rotate in place on every refresh
//   - Revocation of one refresh token or all of a principal's tokens
//   - Store-fresh role checks with OR semantics
//
// Refresh tokens are stored only as SHA-256 hashes. Rotation and revocation
// are single conditional SQL statements, so two concurrent uses of the same
// token cannot both succeed.
package auth
