package csrf

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/MrEthical07/tokenguard/internal"
)

const (
	// DefaultCookieName is the cookie carrying the encrypted token.
	DefaultCookieName = "csrf_token"
	// DefaultHeaderName is the request header carrying the raw token.
	DefaultHeaderName = "x-csrf-token"
	// DefaultTTL is the maximum cookie age.
	DefaultTTL = time.Hour
)

var (
	// ErrCSRF is wrapped by every rejection from Validate.
	ErrCSRF = errors.New("csrf check failed")
	// ErrMissing means the header or the cookie was absent.
	ErrMissing = fmt.Errorf("%w: token missing", ErrCSRF)
	// ErrExpired means the cookie is older than the configured TTL.
	ErrExpired = fmt.Errorf("%w: token expired", ErrCSRF)
	// ErrInvalid means the header does not match the cookie.
	ErrInvalid = fmt.Errorf("%w: token invalid", ErrCSRF)
	// ErrValidationFailed means the cookie could not be decrypted or parsed.
	ErrValidationFailed = fmt.Errorf("%w: validation failed", ErrCSRF)
)

// Sealer is the authenticated encryption protecting the cookie.
// *encryption.Box satisfies it.
type Sealer interface {
	EncryptJSON(v any) (string, error)
	DecryptJSON(blob string, v any) error
}

// Options configures a Guard. Zero values take the defaults.
type Options struct {
	TTL        time.Duration
	Secure     bool
	CookieName string
	HeaderName string
	Now        func() time.Time
}

// Token is an issued pair: Raw goes to the client body, Cookie is the sealed
// value for the cookie.
type Token struct {
	Raw    string
	Cookie string
}

type payload struct {
	Token     string `json:"token"`
	Timestamp int64  `json:"timestamp"`
}

// Guard issues and checks double-submit tokens. A Guard is safe for concurrent use.
type Guard struct {
	sealer Sealer
	opts   Options
}

// NewGuard returns a Guard sealing cookies with sealer.
func NewGuard(sealer Sealer, opts Options) (*Guard, error) {
	if sealer == nil {
		return nil, errors.New("csrf guard requires a sealer")
	}
	if opts.TTL < 0 {
		return nil, errors.New("csrf ttl must be >= 0")
	}
	if opts.TTL == 0 {
		opts.TTL = DefaultTTL
	}
	if opts.CookieName == "" {
		opts.CookieName = DefaultCookieName
	}
	if opts.HeaderName == "" {
		opts.HeaderName = DefaultHeaderName
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Guard{sealer: sealer, opts: opts}, nil
}

// CookieName reports the cookie the guard reads.
func (g *Guard) CookieName() string { return g.opts.CookieName }

// HeaderName reports the header the guard reads.
func (g *Guard) HeaderName() string { return g.opts.HeaderName }

// Issue draws a fresh 256-bit token and seals it with the current time.
func (g *Guard) Issue() (Token, error) {
	raw, err := internal.NewCSRFToken()
	if err != nil {
		return Token{}, err
	}

	sealed, err := g.sealer.EncryptJSON(payload{Token: raw, Timestamp: g.opts.Now().UnixMilli()})
	if err != nil {
		return Token{}, err
	}

	return Token{Raw: raw, Cookie: sealed}, nil
}

// Cookie returns the cookie that carries t.
func (g *Guard) Cookie(t Token) *http.Cookie {
	return &http.Cookie{
		Name:     g.opts.CookieName,
		Value:    t.Cookie,
		Path:     "/",
		MaxAge:   int(g.opts.TTL / time.Second),
		HttpOnly: true,
		Secure:   g.opts.Secure,
		SameSite: http.SameSiteStrictMode,
	}
}

// Validate checks headerToken against the sealed cookieValue. Safe methods
// (GET, HEAD, OPTIONS) always pass.
func (g *Guard) Validate(method, headerToken, cookieValue string) error {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return nil
	}

	if headerToken == "" || cookieValue == "" {
		return ErrMissing
	}

	var p payload
	if err := g.sealer.DecryptJSON(cookieValue, &p); err != nil {
		return fmt.Errorf("%w: %w", ErrValidationFailed, err)
	}
	if p.Token == "" || p.Timestamp <= 0 {
		return ErrValidationFailed
	}

	if g.opts.Now().UnixMilli()-p.Timestamp > g.opts.TTL.Milliseconds() {
		return ErrExpired
	}

	if subtle.ConstantTimeCompare([]byte(headerToken), []byte(p.Token)) != 1 {
		return ErrInvalid
	}

	return nil
}

// ValidateRequest runs Validate with the header and cookie taken from r.
func (g *Guard) ValidateRequest(r *http.Request) error {
	var cookieValue string
	if c, err := r.Cookie(g.opts.CookieName); err == nil {
		cookieValue = c.Value
	}
	return g.Validate(r.Method, r.Header.Get(g.opts.HeaderName), cookieValue)
}
