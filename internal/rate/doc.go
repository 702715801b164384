// Package rate provides the Redis-backed throttles used by the engine.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Key prefixes:
//   - "tgr:" refresh attempts per (user, device)
//   - "tgl:" failed logins per identifier
//
// # What this package must NOT do
//
//   - Decide what happens to a throttled request (the engine maps errors).
//   - Be imported outside the tokenguard module.
package rate
