package tokenstore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when no record matches the lookup key.
	ErrNotFound = errors.New("refresh record not found")
	// ErrAlreadyUsed is returned by MarkUsed when the record was redeemed before.
	ErrAlreadyUsed = errors.New("refresh record already used")
	// ErrRevoked is returned by MarkUsed when the record was revoked.
	ErrRevoked = errors.New("refresh record revoked")
	// ErrDuplicate is returned by Insert when the key already exists.
	ErrDuplicate = errors.New("refresh record already exists")
	// ErrStoreUnavailable wraps backend failures.
	ErrStoreUnavailable = errors.New("refresh store unavailable")
	// ErrInvalidRecord is returned by Insert for records missing key fields.
	ErrInvalidRecord = errors.New("refresh record invalid")
	// ErrParentRevoked is returned by Insert when the record names a parent
	// that is missing or already revoked. Nothing is written.
	ErrParentRevoked = errors.New("refresh lineage revoked")
)

// Record is one issued refresh token.
type Record struct {
	ID         string     `db:"id" json:"id"`
	UserID     string     `db:"user_id" json:"userId"`
	DeviceID   string     `db:"device_id" json:"deviceId"`
	SecretHash string     `db:"secret_hash" json:"-"`
	// ParentHash is the SecretHash of the record this one rotated from;
	// empty for the first record of a login.
	ParentHash string     `db:"parent_hash" json:"-"`
	CreatedAt  time.Time  `db:"created_at" json:"createdAt"`
	ExpiresAt  time.Time  `db:"expires_at" json:"expiresAt"`
	Used       bool       `db:"used" json:"used"`
	UsedAt     *time.Time `db:"used_at" json:"usedAt,omitempty"`
	Revoked    bool       `db:"revoked" json:"revoked"`
	RevokedAt  *time.Time `db:"revoked_at" json:"revokedAt,omitempty"`
}

// Active reports whether the record can still be redeemed at now.
func (r Record) Active(now time.Time) bool {
	return !r.Used && !r.Revoked && !now.After(r.ExpiresAt)
}

func (r Record) validate() error {
	if r.UserID == "" || r.DeviceID == "" || r.SecretHash == "" {
		return ErrInvalidRecord
	}
	return nil
}

// Store is the persistence contract used by the rotation flow.
type Store interface {
	// Find returns the record for the exact key, used and revoked ones included.
	Find(ctx context.Context, userID, deviceID, secretHash string) (*Record, error)
	// Insert adds a new record. The key must not exist yet. When
	// rec.ParentHash is set, the parent check and the write are one atomic
	// step against RevokeDevice: a revoked or missing parent yields
	// ErrParentRevoked.
	Insert(ctx context.Context, rec *Record) error
	// MarkUsed flips used=false to used=true atomically. It returns
	// ErrAlreadyUsed, ErrRevoked or ErrNotFound when the flip did not happen.
	MarkUsed(ctx context.Context, userID, deviceID, secretHash string, at time.Time) error
	// RevokeDevice revokes every not yet revoked record of the device and
	// returns how many changed.
	RevokeDevice(ctx context.Context, userID, deviceID string, at time.Time) (int, error)
	// ListDevice returns every record of the device ordered by creation time.
	ListDevice(ctx context.Context, userID, deviceID string) ([]Record, error)
}

func ensureID(rec *Record) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
}
