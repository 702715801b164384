package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
)

const (
	// RefreshSecretBytes is the raw size of a refresh secret (320 bits).
	RefreshSecretBytes = 40
	// CSRFTokenBytes is the raw size of a CSRF token (256 bits).
	CSRFTokenBytes = 32
)

var randReader io.Reader = rand.Reader

// RandomHex reads n bytes from crypto/rand and returns them hex-encoded.
func RandomHex(n int) (string, error) {
	if n <= 0 {
		return "", errors.New("random length must be > 0")
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(randReader, buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// NewRefreshSecret returns a fresh hex-encoded refresh secret.
func NewRefreshSecret() (string, error) {
	return RandomHex(RefreshSecretBytes)
}

// NewCSRFToken returns a fresh hex-encoded CSRF token.
func NewCSRFToken() (string, error) {
	return RandomHex(CSRFTokenBytes)
}

// HashSecret returns the hex SHA-256 of a refresh secret. Stores key records
// by this value so a dump of the store holds no redeemable secret.
func HashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}
