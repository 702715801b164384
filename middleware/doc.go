// Package middleware exposes net/http adapters around tokenguard: a bearer
// access-token guard and the double-submit CSRF check.
//
// # Guards
//
//   - [Guard]: verifies the Authorization bearer token and stores the
//     [tokenguard.AuthResult] in the request context.
//   - [RequireRole]: rejects authenticated requests whose role does not match.
//   - [CSRF]: runs [csrf.Guard.ValidateRequest] on unsafe methods and answers
//     403 with a JSON error body on rejection.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to the Engine).
//   - Access any store.
//   - Make authorization decisions beyond pass/reject.
package middleware
