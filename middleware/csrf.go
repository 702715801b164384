package middleware

import (
	"errors"
	"net/http"

	"github.com/MrEthical07/tokenguard/csrf"
)

// CSRFMessage maps a guard rejection to its client-facing text.
func CSRFMessage(err error) string {
	switch {
	case errors.Is(err, csrf.ErrMissing):
		return "CSRF token missing"
	case errors.Is(err, csrf.ErrExpired):
		return "CSRF token expired"
	case errors.Is(err, csrf.ErrInvalid):
		return "CSRF token invalid"
	default:
		return "CSRF validation failed"
	}
}

// CSRF validates unsafe requests against guard. onReject, when set, is called
// before the 403 is written. A nil guard disables the check.
func CSRF(guard *csrf.Guard, onReject func(*http.Request, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if guard == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := guard.ValidateRequest(r); err != nil {
				if onReject != nil {
					onReject(r, err)
				}
				writeError(w, http.StatusForbidden, CSRFMessage(err))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
