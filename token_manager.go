package tokenguard

import (
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/tokenguard/encryption"
	"github.com/MrEthical07/tokenguard/internal"
	"github.com/MrEthical07/tokenguard/jwt"
	"github.com/MrEthical07/tokenguard/refresh"
)

// TokenManager mints and checks access tokens and refresh envelopes. It is
// built once by the Builder and shared; all methods are safe for concurrent use.
type TokenManager struct {
	access *jwt.Manager
	codec  *refresh.Codec
}

// NewTokenManager builds a TokenManager over box. A nil now defaults to time.Now.
// Any construction failure wraps ErrConfiguration.
func NewTokenManager(cfg Config, box *encryption.Box, now func() time.Time) (*TokenManager, error) {
	if box == nil {
		return nil, configError("token manager requires an encryption box")
	}
	if now == nil {
		now = time.Now
	}

	access, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cfg.JWT.PrivateKey,
		PublicKey:     cfg.JWT.PublicKey,
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		KeyID:         cfg.JWT.KeyID,
		Now:           now,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	codec, err := refresh.NewCodec(box, cfg.Refresh.TTL, now)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	return &TokenManager{access: access, codec: codec}, nil
}

// AccessTTL reports the access token lifetime.
func (m *TokenManager) AccessTTL() time.Duration { return m.access.TTL() }

// RefreshTTL reports the refresh envelope lifetime.
func (m *TokenManager) RefreshTTL() time.Duration { return m.codec.TTL() }

// GenerateAccessToken signs an access token for c.UserID.
func (m *TokenManager) GenerateAccessToken(c Claims) (string, error) {
	return m.access.CreateAccess(c.UserID, c.Email, c.Role)
}

// VerifyAccessToken checks signature, algorithm and expiry. Every failure
// wraps ErrInvalidToken.
func (m *TokenManager) VerifyAccessToken(token string) (*Claims, error) {
	ac, err := m.access.ParseAccess(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	c := &Claims{UserID: ac.Subject, Email: ac.Email, Role: ac.Role}
	if ac.IssuedAt != nil {
		c.IssuedAt = ac.IssuedAt.Time
	}
	if ac.ExpiresAt != nil {
		c.ExpiresAt = ac.ExpiresAt.Time
	}
	return c, nil
}

// GenerateRefreshSecret returns 40 random bytes, hex-encoded.
func (m *TokenManager) GenerateRefreshSecret() (string, error) {
	return internal.NewRefreshSecret()
}

// EncryptRefreshEnvelope seals secret for the (userID, deviceID) lineage.
func (m *TokenManager) EncryptRefreshEnvelope(secret, userID, deviceID string) (string, error) {
	blob, _, err := m.codec.Seal(secret, userID, deviceID)
	return blob, err
}

// DecryptRefreshEnvelope opens a refresh token. Failures wrap ErrInvalidToken
// and keep the cause (ErrDecryption for tampered or foreign blobs).
func (m *TokenManager) DecryptRefreshEnvelope(blob string) (RefreshEnvelope, error) {
	env, err := m.codec.Open(blob)
	if err != nil {
		return RefreshEnvelope{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	return env, nil
}

// ValidateEnvelope returns ErrExpiredToken once now is past env.ExpiresAt.
func (m *TokenManager) ValidateEnvelope(env RefreshEnvelope) error {
	if err := m.codec.Validate(env); err != nil {
		if errors.Is(err, refresh.ErrExpired) {
			return fmt.Errorf("%w: %w", ErrExpiredToken, err)
		}
		return err
	}
	return nil
}

func (m *TokenManager) seal(secret, userID, deviceID string) (string, refresh.Envelope, error) {
	return m.codec.Seal(secret, userID, deviceID)
}

func (m *TokenManager) open(blob string) (refresh.Envelope, error) {
	return m.codec.Open(blob)
}
