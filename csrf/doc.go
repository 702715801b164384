// Package csrf implements a double-submit CSRF guard.
//
// The browser receives two things: an encrypted, HttpOnly cookie carrying the
// raw token and its issue time, and the raw token itself in a response body.
// State-changing requests must echo the raw token in a header. The guard
// decrypts the cookie, checks its age and compares both values in constant
// time. No server-side state is kept.
//
// # What this package must NOT do
//
//   - Accept a cookie it cannot authenticate.
//   - Write HTTP responses. Mapping errors to status codes is the middleware's job.
package csrf
