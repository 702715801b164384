package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/tokenguard/refresh"
	"github.com/MrEthical07/tokenguard/tokenstore"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureDecode
	RefreshFailureExpired
	RefreshFailureRateLimited
	RefreshFailureNotFound
	RefreshFailureReuse
	RefreshFailureRevoke
	RefreshFailureStore
	RefreshFailureUserNotFound
	RefreshFailureUserLookup
	RefreshFailureIssue
)

// RefreshResult carries either the issued token pair or failure metadata.
type RefreshResult struct {
	Failure      RefreshFailureKind
	Err          error
	UserID       string
	DeviceID     string
	Revoked      int
	AccessToken  string
	RefreshToken string
	Envelope     refresh.Envelope
}

type RefreshRateLimiter interface {
	CheckRefresh(ctx context.Context, userID, deviceID string) error
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	OpenEnvelope     func(string) (refresh.Envelope, error)
	ValidateEnvelope func(refresh.Envelope) error
	HashSecret       func(string) string
	Now              func() time.Time
	GetUserByID      func(context.Context, string) (User, error)
	UserNotFound     error
	// Issue mints the successor of the record with parentHash.
	Issue func(ctx context.Context, user User, deviceID, parentHash string) (IssuedPair, error)
	// ReuseDetected runs after the lineage is revoked and before the
	// rejection is returned.
	ReuseDetected func(ctx context.Context, userID, deviceID string, revoked int)
	RateLimiter   RefreshRateLimiter
	Store         tokenstore.Store
}

// RunRefresh redeems a refresh token exactly once and issues its successor.
//
// A token whose record is already used is treated as stolen: every record of
// the device is revoked, ReuseDetected runs, and RefreshFailureReuse is
// returned. The used flag is flipped by the store's conditional update, so of
// two concurrent redemptions one wins and the other takes the reuse branch.
// The winner's successor is only stored while the parent is unrevoked, so a
// reuse answer always leaves the device without a live record.
func RunRefresh(ctx context.Context, refreshToken string, deps RefreshDeps) RefreshResult {
	env, err := deps.OpenEnvelope(refreshToken)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureDecode, Err: err}
	}

	base := RefreshResult{UserID: env.UserID, DeviceID: env.DeviceID}
	fail := func(kind RefreshFailureKind, err error) RefreshResult {
		r := base
		r.Failure = kind
		r.Err = err
		return r
	}

	if err := deps.ValidateEnvelope(env); err != nil {
		return fail(RefreshFailureExpired, err)
	}

	secretHash := deps.HashSecret(env.Token)
	rec, err := deps.Store.Find(ctx, env.UserID, env.DeviceID, secretHash)
	if err != nil {
		if errors.Is(err, tokenstore.ErrNotFound) {
			return fail(RefreshFailureNotFound, err)
		}
		return fail(RefreshFailureStore, err)
	}
	if rec.Revoked {
		return fail(RefreshFailureNotFound, tokenstore.ErrRevoked)
	}
	if rec.Used {
		return runReuse(ctx, base, deps)
	}

	// Replays are answered above so throttling never hides a reuse.
	if deps.RateLimiter != nil {
		if err := deps.RateLimiter.CheckRefresh(ctx, env.UserID, env.DeviceID); err != nil {
			return fail(RefreshFailureRateLimited, err)
		}
	}

	if err := deps.Store.MarkUsed(ctx, env.UserID, env.DeviceID, secretHash, deps.Now()); err != nil {
		switch {
		case errors.Is(err, tokenstore.ErrAlreadyUsed):
			return runReuse(ctx, base, deps)
		case errors.Is(err, tokenstore.ErrRevoked), errors.Is(err, tokenstore.ErrNotFound):
			return fail(RefreshFailureNotFound, err)
		default:
			return fail(RefreshFailureStore, err)
		}
	}

	user, err := deps.GetUserByID(ctx, env.UserID)
	if err != nil {
		if deps.UserNotFound != nil && errors.Is(err, deps.UserNotFound) {
			return fail(RefreshFailureUserNotFound, err)
		}
		return fail(RefreshFailureUserLookup, err)
	}

	pair, err := deps.Issue(ctx, user, env.DeviceID, secretHash)
	if err != nil {
		if errors.Is(err, tokenstore.ErrParentRevoked) {
			// A concurrent redemption of the same token revoked the lineage
			// and raised the alert after our MarkUsed won.
			return fail(RefreshFailureReuse, err)
		}
		return fail(RefreshFailureIssue, err)
	}

	out := base
	out.AccessToken = pair.AccessToken
	out.RefreshToken = pair.RefreshToken
	out.Envelope = pair.Envelope
	return out
}

// runReuse revokes the whole device lineage. The rejection only goes out
// after revocation succeeded.
func runReuse(ctx context.Context, base RefreshResult, deps RefreshDeps) RefreshResult {
	n, err := deps.Store.RevokeDevice(ctx, base.UserID, base.DeviceID, deps.Now())
	if err != nil {
		base.Failure = RefreshFailureRevoke
		base.Err = err
		return base
	}
	if deps.ReuseDetected != nil {
		deps.ReuseDetected(ctx, base.UserID, base.DeviceID, n)
	}
	base.Failure = RefreshFailureReuse
	base.Revoked = n
	return base
}
