package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/tokenguard"
	"github.com/MrEthical07/tokenguard/middleware"
)

const (
	msgRefreshRequired = "Refresh token is required"
	msgInvalidRefresh  = "Invalid refresh token"
	msgInternal        = "Internal server error"
)

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type tokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	DeviceID     string `json:"deviceId,omitempty"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	DeviceID string `json:"deviceId"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	token, ok := s.refreshToken(w, r)
	if !ok {
		writeError(w, http.StatusBadRequest, msgRefreshRequired)
		return
	}

	pair, err := s.engine.Refresh(r.Context(), token)
	if err != nil {
		status, msg := s.refreshError(err)
		if status == http.StatusInternalServerError {
			s.internalError(w, r, "refresh", err)
			return
		}
		writeError(w, status, msg)
		return
	}

	s.setRefreshCookie(w, pair.RefreshToken, pair.RefreshExpiresAt)
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

// refreshError maps an Engine.Refresh error to its status and message.
// ErrRefreshNotFound wraps ErrInvalidToken so it is checked first.
func (s *Server) refreshError(err error) (int, string) {
	var msg string
	switch {
	case errors.Is(err, tokenguard.ErrRefreshRateLimited):
		return http.StatusTooManyRequests, "Too many refresh attempts"
	case errors.Is(err, tokenguard.ErrTokenCompromised):
		msg = "Token compromised, please login again"
	case errors.Is(err, tokenguard.ErrRefreshNotFound):
		msg = "Refresh token not found or revoked"
	case errors.Is(err, tokenguard.ErrUserNotFound):
		msg = "User not found"
	case errors.Is(err, tokenguard.ErrInvalidToken), errors.Is(err, tokenguard.ErrExpiredToken):
		msg = msgInvalidRefresh
	default:
		return http.StatusInternalServerError, msgInternal
	}
	if s.opts.UniformRefreshErrors {
		msg = msgInvalidRefresh
	}
	return http.StatusUnauthorized, msg
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(w, r, s.opts.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	res, err := s.engine.Login(r.Context(), req.Email, req.Password, req.DeviceID)
	switch {
	case err == nil:
	case errors.Is(err, tokenguard.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	case errors.Is(err, tokenguard.ErrLoginRateLimited):
		writeError(w, http.StatusTooManyRequests, "Too many login attempts")
		return
	default:
		s.internalError(w, r, "login", err)
		return
	}

	s.setRefreshCookie(w, res.RefreshToken, res.RefreshExpiresAt)
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		DeviceID:     res.DeviceID,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	token, ok := s.refreshToken(w, r)
	if !ok {
		writeError(w, http.StatusBadRequest, msgRefreshRequired)
		return
	}

	if err := s.engine.Logout(r.Context(), token); err != nil {
		if errors.Is(err, tokenguard.ErrInvalidToken) {
			writeError(w, http.StatusUnauthorized, msgInvalidRefresh)
			return
		}
		s.internalError(w, r, "logout", err)
		return
	}

	s.clearRefreshCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCSRF(w http.ResponseWriter, _ *http.Request) {
	guard := s.engine.CSRF()
	if guard == nil {
		writeError(w, http.StatusNotFound, "CSRF protection disabled")
		return
	}
	tok, err := guard.Issue()
	if err != nil {
		s.logger.Error("csrf issue failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, msgInternal)
		return
	}
	http.SetCookie(w, guard.Cookie(tok))
	writeJSON(w, http.StatusOK, map[string]string{"csrfToken": tok.Raw})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	res, ok := middleware.AuthResultFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"id":    res.UserID,
		"email": res.Email,
		"role":  res.Role,
	})
}

// refreshToken takes the token from the JSON body, falling back to the cookie.
func (s *Server) refreshToken(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req refreshRequest
	_ = decodeBody(w, r, s.opts.MaxBodyBytes, &req)
	if req.RefreshToken != "" {
		return req.RefreshToken, true
	}
	if c, err := r.Cookie(s.opts.RefreshCookieName); err == nil && c.Value != "" {
		return c.Value, true
	}
	return "", false
}

func (s *Server) setRefreshCookie(w http.ResponseWriter, value string, expires time.Time) {
	maxAge := int(time.Until(expires).Seconds())
	if maxAge < 1 {
		maxAge = 1
	}
	http.SetCookie(w, &http.Cookie{
		Name:     s.opts.RefreshCookieName,
		Value:    value,
		Path:     "/auth",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.opts.SecureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}

func (s *Server) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.opts.RefreshCookieName,
		Value:    "",
		Path:     "/auth",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.opts.SecureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, route string, err error) {
	s.logger.Error("request failed", zap.String("route", route), zap.Error(err))
	s.engine.CaptureException(r.Context(), err, map[string]string{"route": route})
	writeError(w, http.StatusInternalServerError, msgInternal)
}
