// Package refresh defines the refresh envelope and the codec that seals it
// into the opaque string handed to clients.
//
// # Token format
//
// An envelope is the JSON object {token, userId, deviceId, createdAt,
// expiresAt} with millisecond timestamps. token is the raw refresh secret.
// The envelope only leaves the process encrypted by an encryption.Box, so the
// client never sees the secret in clear text and cannot alter the lineage it
// belongs to.
//
// # Architecture boundaries
//
// This package owns envelope encoding, decoding and expiry checks. Rotation
// policy, reuse detection and revocation are handled by the engine and the
// token store.
//
// # What this package must NOT do
//
//   - Access Redis, Postgres or any I/O.
//   - Import tokenguard, jwt or tokenstore.
//   - Implement rotation or replay logic.
package refresh
