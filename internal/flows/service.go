package flows

import "context"

// Service is the centralized flow runner built once by the root engine.
type Service struct {
	deps Deps
}

// New returns a flow service with immutable dependency wiring.
func New(deps Deps) Service {
	return Service{deps: deps}
}

// Initialized reports whether the service has been wired with flow deps.
func (s Service) Initialized() bool {
	return s.deps.Refresh.Store != nil && s.deps.Validate.ParseAccess != nil
}

func (s Service) Issue(ctx context.Context, user User, deviceID string) (IssuedPair, error) {
	return RunIssue(ctx, user, deviceID, s.deps.Issue)
}

func (s Service) Refresh(ctx context.Context, refreshToken string) RefreshResult {
	return RunRefresh(ctx, refreshToken, s.deps.Refresh)
}

func (s Service) Login(ctx context.Context, identifier, password, deviceID string) LoginResult {
	return RunLogin(ctx, identifier, password, deviceID, s.deps.Login)
}

func (s Service) Logout(ctx context.Context, refreshToken string) LogoutResult {
	return RunLogout(ctx, refreshToken, s.deps.Logout)
}

func (s Service) RevokeDevice(ctx context.Context, userID, deviceID string) (int, error) {
	return RunRevokeDevice(ctx, userID, deviceID, s.deps.Logout)
}

func (s Service) Validate(tokenStr string) ValidateResult {
	return RunValidate(tokenStr, s.deps.Validate)
}
