// Package httpapi is the HTTP surface of tokenguardd: refresh rotation,
// CSRF token issuance, login, logout and the bearer-protected /auth/me,
// plus /healthz and /metrics.
//
// Handlers own the mapping from engine errors to status codes and client
// messages. Unexpected errors answer 500 and are forwarded to the engine's
// alert sink.
package httpapi
