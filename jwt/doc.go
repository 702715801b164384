// Package jwt issues and verifies short-lived access tokens carrying
// {sub, email, role, iat, exp}. HS256 over a server-held secret is the default;
// Ed25519 with key IDs is available for deployments that verify elsewhere.
//
// # What this package must NOT do
//
//   - Touch refresh tokens or any store.
//   - Import tokenguard.
package jwt
