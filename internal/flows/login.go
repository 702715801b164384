package flows

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/tokenguard/refresh"
)

// LoginFailureKind classifies login failures for root-level mapping.
type LoginFailureKind int

const (
	LoginFailureNone LoginFailureKind = iota
	LoginFailureInput
	LoginFailureRateLimited
	LoginFailureUnknownUser
	LoginFailureBadPassword
	LoginFailureLookup
	LoginFailureVerify
	LoginFailureIssue
)

// LoginResult is the flow-local login response shape.
type LoginResult struct {
	Failure      LoginFailureKind
	Err          error
	UserID       string
	DeviceID     string
	AccessToken  string
	RefreshToken string
	Envelope     refresh.Envelope
}

// LoginDeps captures login dependencies.
type LoginDeps struct {
	GetUserByIdentifier func(context.Context, string) (User, error)
	UserNotFound        error
	VerifyPassword      func(password, encodedHash string) (bool, error)
	// DummyHash is verified against when the identifier is unknown so both
	// paths spend the same hashing time.
	DummyHash          string
	NewDeviceID        func() string
	CheckLoginRate     func(context.Context, string) error
	RecordLoginFailure func(context.Context, string) error
	ResetLoginRate     func(context.Context, string) error
	Issue              func(context.Context, User, string) (IssuedPair, error)
}

// RunLogin checks credentials and opens a new refresh lineage for the device.
// An empty deviceID gets a generated one.
func RunLogin(ctx context.Context, identifier, password, deviceID string, deps LoginDeps) LoginResult {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return LoginResult{Failure: LoginFailureInput, Err: errors.New("identifier and password are required")}
	}

	if deps.CheckLoginRate != nil {
		if err := deps.CheckLoginRate(ctx, identifier); err != nil {
			return LoginResult{Failure: LoginFailureRateLimited, Err: err}
		}
	}

	user, err := deps.GetUserByIdentifier(ctx, identifier)
	if err != nil {
		if deps.UserNotFound != nil && errors.Is(err, deps.UserNotFound) {
			if deps.DummyHash != "" {
				_, _ = deps.VerifyPassword(password, deps.DummyHash)
			}
			recordLoginFailure(ctx, identifier, deps)
			return LoginResult{Failure: LoginFailureUnknownUser, Err: err}
		}
		return LoginResult{Failure: LoginFailureLookup, Err: err}
	}

	ok, err := deps.VerifyPassword(password, user.PasswordHash)
	if err != nil {
		return LoginResult{Failure: LoginFailureVerify, Err: err, UserID: user.ID}
	}
	if !ok {
		recordLoginFailure(ctx, identifier, deps)
		return LoginResult{Failure: LoginFailureBadPassword, UserID: user.ID}
	}

	if deps.ResetLoginRate != nil {
		_ = deps.ResetLoginRate(ctx, identifier)
	}

	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		deviceID = deps.NewDeviceID()
	}

	pair, err := deps.Issue(ctx, user, deviceID)
	if err != nil {
		return LoginResult{Failure: LoginFailureIssue, Err: err, UserID: user.ID, DeviceID: deviceID}
	}

	return LoginResult{
		UserID:       user.ID,
		DeviceID:     deviceID,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		Envelope:     pair.Envelope,
	}
}

func recordLoginFailure(ctx context.Context, identifier string, deps LoginDeps) {
	if deps.RecordLoginFailure != nil {
		_ = deps.RecordLoginFailure(ctx, identifier)
	}
}
