// Package flows contains pure-function orchestrators for every Engine operation.
//
// Each flow function (RunLogin, RunRefresh, RunLogout, RunValidate, RunIssue)
// accepts a typed dependency struct and returns results without side-effects
// beyond those dependencies. The root engine maps the classified failures to
// its sentinel errors, metrics and audit events.
//
// # Architecture boundaries
//
// Flow functions coordinate calls to the token store, JWT manager, refresh
// codec, rate limiter and user lookups. They do NOT own any of these
// resources; ownership stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import tokenguard (to avoid import cycles).
//   - Perform I/O directly. All I/O is mediated through dependency interfaces.
package flows
