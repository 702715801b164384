package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/tokenguard/refresh"
	"github.com/MrEthical07/tokenguard/tokenstore"
)

// LogoutDeps captures logout dependencies.
type LogoutDeps struct {
	OpenEnvelope func(string) (refresh.Envelope, error)
	Now          func() time.Time
	Store        tokenstore.Store
}

// LogoutResult reports which lineage a logout revoked.
type LogoutResult struct {
	UserID   string
	DeviceID string
	Revoked  int
	// Decode is true when Err came from opening the envelope.
	Decode bool
	Err    error
}

// RunLogout revokes the lineage the refresh token belongs to. Expired tokens
// are accepted; the envelope is authenticated so its ids can be trusted.
func RunLogout(ctx context.Context, refreshToken string, deps LogoutDeps) LogoutResult {
	env, err := deps.OpenEnvelope(refreshToken)
	if err != nil {
		return LogoutResult{Decode: true, Err: err}
	}

	n, err := RunRevokeDevice(ctx, env.UserID, env.DeviceID, deps)
	return LogoutResult{
		UserID:   env.UserID,
		DeviceID: env.DeviceID,
		Revoked:  n,
		Err:      err,
	}
}

func RunRevokeDevice(ctx context.Context, userID, deviceID string, deps LogoutDeps) (int, error) {
	return deps.Store.RevokeDevice(ctx, userID, deviceID, deps.Now())
}
