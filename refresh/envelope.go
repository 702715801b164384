package refresh

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrMalformed is returned when a sealed envelope cannot be opened or is
	// missing a required field.
	ErrMalformed = errors.New("refresh envelope malformed")
	// ErrExpired is returned when the envelope is past its expiresAt.
	ErrExpired = errors.New("refresh envelope expired")
)

// Envelope is the clear-text payload of a refresh token.
type Envelope struct {
	Token     string `json:"token"`
	UserID    string `json:"userId"`
	DeviceID  string `json:"deviceId"`
	CreatedAt int64  `json:"createdAt"`
	ExpiresAt int64  `json:"expiresAt"`
}

// Expired reports whether now is strictly after the envelope expiry.
func (e Envelope) Expired(now time.Time) bool {
	return now.UnixMilli() > e.ExpiresAt
}

// ExpiresTime returns ExpiresAt as a time.Time.
func (e Envelope) ExpiresTime() time.Time {
	return time.UnixMilli(e.ExpiresAt)
}

// CreatedTime returns CreatedAt as a time.Time.
func (e Envelope) CreatedTime() time.Time {
	return time.UnixMilli(e.CreatedAt)
}

func (e Envelope) check() error {
	switch {
	case e.Token == "":
		return fmt.Errorf("%w: token missing", ErrMalformed)
	case e.UserID == "":
		return fmt.Errorf("%w: userId missing", ErrMalformed)
	case e.DeviceID == "":
		return fmt.Errorf("%w: deviceId missing", ErrMalformed)
	case e.ExpiresAt <= 0:
		return fmt.Errorf("%w: expiresAt missing", ErrMalformed)
	}
	return nil
}
