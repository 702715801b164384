// Package internal contains helper utilities that are intentionally private to
// tokenguard, chiefly secure random generation and secret hashing.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - flows: the refresh rotation state machine
//   - rate: Redis-backed refresh and login throttles
//   - config, logging, database: service wiring for cmd/tokenguardd
//   - httpapi: the HTTP surface
//
// # What this package must NOT do
//
//   - Export types that appear in the public tokenguard API.
//   - Be imported by any package outside the tokenguard module.
package internal
