// Package tokenstore persists refresh token records.
//
// A record is keyed by (userID, deviceID, secretHash) and moves through
// issued -> used, or issued/used -> revoked when a device lineage is swept.
// Records are never physically deleted; expiry is logical.
//
// # Atomicity
//
// MarkUsed is a conditional update: it only succeeds when the record is
// neither used nor revoked, and exactly one of any number of concurrent
// callers wins. The Redis store runs a Lua script, the Postgres store issues
// UPDATE ... WHERE used = FALSE and checks the affected row count, and the
// memory store holds one mutex.
//
// # What this package must NOT do
//
//   - See refresh secrets in clear text. Callers pass the secret hash.
//   - Decide rotation policy or raise alerts.
//   - Import tokenguard.
package tokenstore
