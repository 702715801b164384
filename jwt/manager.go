package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the access token algorithm.
type SigningMethod string

const (
	// MethodHS256 signs with an HMAC secret. This is the default.
	MethodHS256 SigningMethod = "hs256"
	// MethodEd25519 signs with an Ed25519 private key.
	MethodEd25519 SigningMethod = "ed25519"
)

const maxLeeway = 2 * time.Minute

var (
	// ErrMissingSecret is returned by NewManager when no signing key is configured.
	ErrMissingSecret = errors.New("access token signing secret is required")

	errUnknownKid     = errors.New("unknown kid")
	errMissingSubject = errors.New("token subject missing")
)

// Config defines how access tokens are minted and checked.
//
// PrivateKey is the HMAC secret for HS256, or an Ed25519 private key (raw
// 64 bytes or PEM). VerifyKeys maps kid to public key and, when set, every
// token must carry a kid found in it.
type Config struct {
	AccessTTL     time.Duration
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	KeyID         string
	VerifyKeys    map[string][]byte
	Now           func() time.Time
}

// Manager signs and parses access tokens. Keys are decoded once by
// NewManager.
type Manager struct {
	ttl      time.Duration
	issuer   string
	audience string
	kid      string
	now      func() time.Time

	method  jwt.SigningMethod
	signKey any
	// verifyKey is used when byKid is empty.
	verifyKey any
	byKid     map[string]any
	parser    *jwt.Parser
}

// AccessClaims is the claim set of an access token.
type AccessClaims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// NewManager validates cfg and returns a Manager. An empty SigningMethod
// means HS256.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("access TTL must be positive")
	}
	if cfg.Leeway < 0 || cfg.Leeway > maxLeeway {
		return nil, fmt.Errorf("leeway must be within [0, %s]", maxLeeway)
	}
	if len(cfg.PrivateKey) == 0 {
		return nil, ErrMissingSecret
	}

	m := &Manager{
		ttl:      cfg.AccessTTL,
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		kid:      strings.TrimSpace(cfg.KeyID),
		now:      cfg.Now,
	}
	if m.now == nil {
		m.now = time.Now
	}

	var err error
	switch cfg.SigningMethod {
	case MethodHS256, "":
		m.method = jwt.SigningMethodHS256
		m.signKey, m.verifyKey = cfg.PrivateKey, cfg.PrivateKey
		if len(cfg.VerifyKeys) > 0 {
			m.byKid = make(map[string]any, len(cfg.VerifyKeys))
			for kid, key := range cfg.VerifyKeys {
				m.byKid[kid] = key
			}
		}
	case MethodEd25519:
		m.method = jwt.SigningMethodEdDSA
		if err = m.loadEd25519(cfg); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported signing method %q", cfg.SigningMethod)
	}

	for kid := range m.byKid {
		if strings.TrimSpace(kid) == "" {
			return nil, errors.New("verify key map contains empty kid")
		}
	}
	if m.kid != "" && len(m.byKid) > 0 {
		if _, ok := m.byKid[m.kid]; !ok {
			return nil, fmt.Errorf("key id %q is not present in VerifyKeys", m.kid)
		}
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(m.now),
	}
	if cfg.Leeway > 0 {
		opts = append(opts, jwt.WithLeeway(cfg.Leeway))
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}
	if m.audience != "" {
		opts = append(opts, jwt.WithAudience(m.audience))
	}
	m.parser = jwt.NewParser(opts...)

	return m, nil
}

func (m *Manager) loadEd25519(cfg Config) error {
	priv, err := parseEdPrivateKey(cfg.PrivateKey)
	if err != nil {
		return err
	}
	m.signKey = priv

	if len(cfg.PublicKey) > 0 {
		if m.verifyKey, err = parseEdPublicKey(cfg.PublicKey); err != nil {
			return err
		}
	} else if len(cfg.VerifyKeys) == 0 {
		return errors.New("ed25519 requires a public key or verify keys")
	} else {
		m.verifyKey = priv.Public()
	}

	if len(cfg.VerifyKeys) > 0 {
		m.byKid = make(map[string]any, len(cfg.VerifyKeys))
		for kid, raw := range cfg.VerifyKeys {
			pub, err := parseEdPublicKey(raw)
			if err != nil {
				return fmt.Errorf("invalid ed25519 verify key for kid %q: %w", kid, err)
			}
			m.byKid[kid] = pub
		}
	}
	return nil
}

// TTL reports the configured access token lifetime.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// CreateAccess signs a token for subject with the configured lifetime.
func (m *Manager) CreateAccess(subject, email, role string) (string, error) {
	if subject == "" {
		return "", errors.New("access token subject is required")
	}

	now := m.now()
	claims := AccessClaims{
		Email: email,
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	if m.audience != "" {
		claims.Audience = jwt.ClaimStrings{m.audience}
	}

	token := jwt.NewWithClaims(m.method, claims)
	if m.kid != "" {
		token.Header["kid"] = m.kid
	}
	return token.SignedString(m.signKey)
}

// ParseAccess verifies signature, algorithm, expiry and the optional
// issuer/audience, and returns the claims.
func (m *Manager) ParseAccess(tokenStr string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	token, err := m.parser.ParseWithClaims(tokenStr, claims, m.keyFor)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.Subject == "" {
		return nil, errMissingSubject
	}
	return claims, nil
}

func (m *Manager) keyFor(t *jwt.Token) (any, error) {
	if t.Method.Alg() != m.method.Alg() {
		return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
	}
	kid, _ := t.Header["kid"].(string)

	if len(m.byKid) > 0 {
		key, ok := m.byKid[kid]
		if !ok {
			return nil, errUnknownKid
		}
		return key, nil
	}
	if m.kid != "" && kid != m.kid {
		return nil, errUnknownKid
	}
	return m.verifyKey, nil
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
