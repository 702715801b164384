package tokenguard

import (
	"context"
	"time"

	"github.com/MrEthical07/tokenguard/refresh"
)

// UserRecord is the account view the engine needs: identity, claims and the
// argon2id hash for credential checks.
type UserRecord struct {
	UserID       string
	Email        string
	Role         string
	PasswordHash string
}

// UserProvider resolves accounts. Both lookups must return an error wrapping
// ErrUserNotFound when no account matches.
type UserProvider interface {
	GetUserByID(ctx context.Context, userID string) (UserRecord, error)
	GetUserByIdentifier(ctx context.Context, identifier string) (UserRecord, error)
}

// TokenPair is an access token and the sealed refresh envelope issued with it.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	// RefreshExpiresAt is the envelope's expiresAt, useful for cookie lifetimes.
	RefreshExpiresAt time.Time
}

// LoginResult is returned by [Engine.Login].
type LoginResult struct {
	TokenPair
	UserID   string
	DeviceID string
}

// AuthResult is returned by [Engine.ValidateAccess].
type AuthResult struct {
	UserID    string
	Email     string
	Role      string
	ExpiresAt time.Time
}

// Claims is the access token payload produced by [TokenManager.GenerateAccessToken].
type Claims struct {
	UserID string
	Email  string
	Role   string
	// Set by VerifyAccessToken; ignored when generating.
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// RefreshEnvelope is the decrypted content of a refresh token.
type RefreshEnvelope = refresh.Envelope
