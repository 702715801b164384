package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/tokenguard/refresh"
	"github.com/MrEthical07/tokenguard/tokenstore"
)

// IssuedPair is a freshly minted access token and sealed refresh envelope.
type IssuedPair struct {
	AccessToken  string
	RefreshToken string
	Envelope     refresh.Envelope
	RecordID     string
}

// IssueDeps captures token issuance dependencies.
type IssueDeps struct {
	CreateAccess func(subject, email, role string) (string, error)
	NewSecret    func() (string, error)
	Seal         func(secret, userID, deviceID string) (string, refresh.Envelope, error)
	HashSecret   func(string) string
	NewID        func() string
	Store        tokenstore.Store
}

// RunIssue mints an access token and a new refresh lineage entry for user on
// deviceID, and persists the unused record before returning.
func RunIssue(ctx context.Context, user User, deviceID string, deps IssueDeps) (IssuedPair, error) {
	return issue(ctx, user, deviceID, "", deps)
}

// RunIssueSuccessor is RunIssue for a rotation. The record is linked to
// parentHash and the store refuses it with tokenstore.ErrParentRevoked once
// the parent's lineage has been revoked.
func RunIssueSuccessor(ctx context.Context, user User, deviceID, parentHash string, deps IssueDeps) (IssuedPair, error) {
	return issue(ctx, user, deviceID, parentHash, deps)
}

func issue(ctx context.Context, user User, deviceID, parentHash string, deps IssueDeps) (IssuedPair, error) {
	if user.ID == "" || deviceID == "" {
		return IssuedPair{}, errors.New("issue requires user and device")
	}

	access, err := deps.CreateAccess(user.ID, user.Email, user.Role)
	if err != nil {
		return IssuedPair{}, err
	}

	secret, err := deps.NewSecret()
	if err != nil {
		return IssuedPair{}, err
	}

	sealed, env, err := deps.Seal(secret, user.ID, deviceID)
	if err != nil {
		return IssuedPair{}, err
	}

	rec := &tokenstore.Record{
		UserID:     env.UserID,
		DeviceID:   env.DeviceID,
		SecretHash: deps.HashSecret(secret),
		ParentHash: parentHash,
		CreatedAt:  time.UnixMilli(env.CreatedAt),
		ExpiresAt:  time.UnixMilli(env.ExpiresAt),
	}
	if deps.NewID != nil {
		rec.ID = deps.NewID()
	}
	if err := deps.Store.Insert(ctx, rec); err != nil {
		return IssuedPair{}, err
	}

	return IssuedPair{
		AccessToken:  access,
		RefreshToken: sealed,
		Envelope:     env,
		RecordID:     rec.ID,
	}, nil
}
