package refresh

import (
	"errors"
	"fmt"
	"time"
)

// Sealer is the authenticated encryption used to protect envelopes.
// *encryption.Box satisfies it.
type Sealer interface {
	EncryptJSON(v any) (string, error)
	DecryptJSON(blob string, v any) error
}

// Codec seals and opens envelopes with a fixed lifetime.
type Codec struct {
	sealer Sealer
	ttl    time.Duration
	now    func() time.Time
}

// NewCodec returns a Codec. A nil now defaults to time.Now.
func NewCodec(sealer Sealer, ttl time.Duration, now func() time.Time) (*Codec, error) {
	if sealer == nil {
		return nil, errors.New("refresh codec requires a sealer")
	}
	if ttl <= 0 {
		return nil, errors.New("refresh ttl must be > 0")
	}
	if now == nil {
		now = time.Now
	}
	return &Codec{sealer: sealer, ttl: ttl, now: now}, nil
}

// TTL reports the lifetime stamped into new envelopes.
func (c *Codec) TTL() time.Duration {
	return c.ttl
}

// Seal builds an envelope for secret and encrypts it. createdAt is now and
// expiresAt is now+TTL.
func (c *Codec) Seal(secret, userID, deviceID string) (string, Envelope, error) {
	now := c.now()
	env := Envelope{
		Token:     secret,
		UserID:    userID,
		DeviceID:  deviceID,
		CreatedAt: now.UnixMilli(),
		ExpiresAt: now.Add(c.ttl).UnixMilli(),
	}
	if err := env.check(); err != nil {
		return "", Envelope{}, err
	}

	blob, err := c.sealer.EncryptJSON(env)
	if err != nil {
		return "", Envelope{}, err
	}
	return blob, env, nil
}

// Open decrypts blob and checks the envelope shape. Expiry is not checked.
func (c *Codec) Open(blob string) (Envelope, error) {
	if blob == "" {
		return Envelope{}, fmt.Errorf("%w: empty token", ErrMalformed)
	}

	var env Envelope
	if err := c.sealer.DecryptJSON(blob, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if err := env.check(); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

// Validate returns ErrExpired when the envelope is past its expiry.
func (c *Codec) Validate(env Envelope) error {
	if env.Expired(c.now()) {
		return ErrExpired
	}
	return nil
}
