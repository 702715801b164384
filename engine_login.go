package tokenguard

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrEthical07/tokenguard/internal/flows"
	"go.uber.org/zap"
)

// Login verifies email and password and opens a new refresh lineage for
// deviceID. An empty deviceID gets a generated UUID, returned in the result.
//
// Unknown accounts and wrong passwords both return ErrInvalidCredentials.
func (e *Engine) Login(ctx context.Context, email, password, deviceID string) (*LoginResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	res := e.flows.Login(ctx, email, password, deviceID)
	if res.Failure != flows.LoginFailureNone {
		return nil, e.loginFailed(ctx, email, res)
	}

	e.metricInc(MetricLoginSuccess)
	e.metricInc(MetricTokenIssued)
	e.emitAudit(ctx, auditEventLoginSuccess, true, res.UserID, res.DeviceID, nil, nil)

	return &LoginResult{
		TokenPair: TokenPair{
			AccessToken:      res.AccessToken,
			RefreshToken:     res.RefreshToken,
			RefreshExpiresAt: res.Envelope.ExpiresTime(),
		},
		UserID:   res.UserID,
		DeviceID: res.DeviceID,
	}, nil
}

func (e *Engine) loginFailed(ctx context.Context, identifier string, res flows.LoginResult) error {
	var (
		err    error
		reason string
		event  = auditEventLoginFailure
	)
	switch res.Failure {
	case flows.LoginFailureInput:
		err, reason = ErrInvalidCredentials, "missing_input"
	case flows.LoginFailureRateLimited:
		if isRateLimited(res.Err) {
			e.metricInc(MetricLoginRateLimited)
			err, reason, event = ErrLoginRateLimited, "rate_limited", auditEventLoginRateLimited
		} else {
			err, reason = fmt.Errorf("login throttle: %w", res.Err), "throttle_unavailable"
		}
	case flows.LoginFailureUnknownUser:
		err, reason = ErrInvalidCredentials, "unknown_user"
	case flows.LoginFailureBadPassword:
		err, reason = ErrInvalidCredentials, "bad_password"
	case flows.LoginFailureLookup:
		err, reason = fmt.Errorf("user lookup: %w", res.Err), "user_lookup_failed"
	case flows.LoginFailureVerify:
		err, reason = fmt.Errorf("password verify: %w", res.Err), "verify_failed"
	case flows.LoginFailureIssue:
		err, reason = fmt.Errorf("issue tokens: %w", res.Err), "issue_failed"
	default:
		err, reason = errors.New("login failed"), "unknown"
	}

	if event == auditEventLoginFailure {
		e.metricInc(MetricLoginFailure)
	}
	e.logger.Info("login rejected",
		zap.String("reason", reason),
		zap.String("user_id", res.UserID),
		zap.Error(err),
	)
	e.emitAudit(ctx, event, false, res.UserID, res.DeviceID, err, func() map[string]string {
		return map[string]string{
			"reason":     reason,
			"identifier": strings.TrimSpace(identifier),
		}
	})

	return err
}

// IssueTokenPair opens a new lineage for an already authenticated user, for
// flows such as a social login callback where credentials are checked elsewhere.
func (e *Engine) IssueTokenPair(ctx context.Context, user UserRecord, deviceID string) (*TokenPair, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	pair, err := e.flows.Issue(ctx, toFlowUser(user), deviceID)
	if err != nil {
		e.logger.Error("token issue failed", zap.String("user_id", user.UserID), zap.Error(err))
		return nil, fmt.Errorf("issue tokens: %w", err)
	}

	e.metricInc(MetricTokenIssued)
	e.emitAudit(ctx, auditEventTokenIssued, true, user.UserID, deviceID, nil, nil)

	return &TokenPair{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		RefreshExpiresAt: pair.Envelope.ExpiresTime(),
	}, nil
}
