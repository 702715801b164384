package tokenguard

import (
	"errors"
	"fmt"

	"github.com/MrEthical07/tokenguard/csrf"
	"github.com/MrEthical07/tokenguard/encryption"
)

var (
	// ErrConfiguration is wrapped by every Config.Validate and Build failure.
	ErrConfiguration = errors.New("invalid configuration")
	// ErrInvalidToken covers malformed, tampered and unknown tokens.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned for access tokens and refresh records past
	// their expiry.
	ErrExpiredToken = errors.New("token expired")
	// ErrTokenCompromised is returned when a redeemed refresh token is presented
	// again. The whole device lineage has been revoked by the time it is seen.
	ErrTokenCompromised = errors.New("token compromised")
	// ErrUserNotFound is returned by UserProvider implementations.
	ErrUserNotFound = errors.New("user not found")
	ErrDecryption   = encryption.ErrDecryption
	ErrCSRF         = csrf.ErrCSRF
	// ErrRefreshNotFound means the refresh record is absent or revoked.
	ErrRefreshNotFound = fmt.Errorf("%w: refresh token not found or revoked", ErrInvalidToken)
	// ErrInvalidCredentials is returned by Login for an unknown identifier or
	// a wrong password. The two cases are not distinguished.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrRefreshRateLimited = errors.New("refresh rate limited")
	ErrLoginRateLimited   = errors.New("login rate limited")
	// ErrEngineNotReady is returned by methods called on a nil or closed Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)
