// Package tokenguard issues and rotates authentication tokens for web and
// mobile clients: short-lived JWT access tokens, single-use refresh tokens
// sealed with AES-256-GCM, and a double-submit CSRF guard.
//
// Every refresh token belongs to a lineage identified by (user, device).
// Redeeming a token marks its record used with an atomic conditional update
// and issues the successor. Presenting a used token again is treated as
// theft: the whole lineage is revoked, an alert is raised, and
// [ErrTokenCompromised] is returned.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// tokenguard is the public surface. It exposes [Engine], [Builder], [Config],
// [TokenManager] and value types. Flow orchestration, throttling and audit
// dispatch live under internal/. Record persistence is behind
// [tokenstore.Store]; accounts are behind [UserProvider].
//
// # Key rotation
//
// Refresh envelopes and CSRF cookies are encrypted with one process-wide key.
// Replacing Config.Encryption.Key invalidates every outstanding refresh token
// and CSRF cookie at once.
//
// # What this package must NOT do
//
//   - Write HTTP responses or choose status codes (internal/httpapi does).
//   - Return a compromised answer while records of the lineage are still live.
//   - Keep package-level mutable state. Everything is built by the Builder.
package tokenguard
