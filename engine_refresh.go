package tokenguard

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/MrEthical07/tokenguard/internal/flows"
	"go.uber.org/zap"
)

// Refresh redeems refreshToken once and returns the next pair.
//
// Errors:
//   - ErrInvalidToken: the envelope cannot be decrypted or is malformed.
//   - ErrExpiredToken: the envelope is past its expiry.
//   - ErrRefreshRateLimited: the device exceeded its refresh budget.
//   - ErrRefreshNotFound: no live record matches (never issued, or revoked).
//   - ErrTokenCompromised: the token was already redeemed. Every record of
//     the device has been revoked and an alert raised before this returns.
//   - ErrUserNotFound: the account behind the lineage no longer exists.
//
// Any other error is an internal failure (store down, revocation failed).
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() { e.metrics.Observe(MetricRefreshLatency, time.Since(start)) }()
	}

	res := e.flows.Refresh(ctx, refreshToken)
	if res.Failure != flows.RefreshFailureNone {
		return nil, e.refreshFailed(ctx, res)
	}

	e.metricInc(MetricRefreshSuccess)
	e.metricInc(MetricTokenIssued)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, res.UserID, res.DeviceID, nil, nil)

	return &TokenPair{
		AccessToken:      res.AccessToken,
		RefreshToken:     res.RefreshToken,
		RefreshExpiresAt: res.Envelope.ExpiresTime(),
	}, nil
}

func (e *Engine) refreshFailed(ctx context.Context, res flows.RefreshResult) error {
	e.metricInc(MetricRefreshFailure)

	var (
		err    error
		reason string
		event  = auditEventRefreshInvalid
	)
	switch res.Failure {
	case flows.RefreshFailureDecode:
		err, reason = fmt.Errorf("%w: %w", ErrInvalidToken, res.Err), "decode_failed"
	case flows.RefreshFailureExpired:
		e.metricInc(MetricRefreshExpired)
		err, reason = fmt.Errorf("%w: %w", ErrExpiredToken, res.Err), "expired"
	case flows.RefreshFailureRateLimited:
		if isRateLimited(res.Err) {
			e.metricInc(MetricRefreshRateLimited)
			err, reason, event = ErrRefreshRateLimited, "rate_limited", auditEventRefreshRateLimited
		} else {
			err, reason = fmt.Errorf("refresh throttle: %w", res.Err), "throttle_unavailable"
		}
	case flows.RefreshFailureNotFound:
		e.metricInc(MetricRefreshNotFound)
		err, reason = fmt.Errorf("%w: %w", ErrRefreshNotFound, res.Err), "not_found"
	case flows.RefreshFailureReuse:
		err, reason, event = ErrTokenCompromised, "reuse", auditEventRefreshReuseDetected
	case flows.RefreshFailureRevoke:
		err, reason = fmt.Errorf("revoke compromised lineage: %w", res.Err), "revoke_failed"
	case flows.RefreshFailureStore:
		err, reason = fmt.Errorf("refresh store: %w", res.Err), "store_failed"
	case flows.RefreshFailureUserNotFound:
		err, reason = fmt.Errorf("%w: %s", ErrUserNotFound, res.UserID), "user_not_found"
	case flows.RefreshFailureUserLookup:
		err, reason = fmt.Errorf("user lookup: %w", res.Err), "user_lookup_failed"
	case flows.RefreshFailureIssue:
		err, reason = fmt.Errorf("issue tokens: %w", res.Err), "issue_failed"
	default:
		err, reason = errors.New("refresh failed"), "unknown"
	}

	fields := []zap.Field{
		zap.String("reason", reason),
		zap.String("user_id", res.UserID),
		zap.String("device_id", res.DeviceID),
		zap.Error(err),
	}
	if isInternalRefreshFailure(res.Failure, res.Err) {
		e.logger.Error("refresh failed", fields...)
	} else {
		e.logger.Info("refresh rejected", fields...)
	}

	e.emitAudit(ctx, event, false, res.UserID, res.DeviceID, err, func() map[string]string {
		md := map[string]string{"reason": reason}
		if res.Failure == flows.RefreshFailureReuse {
			md["revoked"] = strconv.Itoa(res.Revoked)
		}
		return md
	})

	return err
}

func isInternalRefreshFailure(kind flows.RefreshFailureKind, cause error) bool {
	switch kind {
	case flows.RefreshFailureRevoke, flows.RefreshFailureStore,
		flows.RefreshFailureUserLookup, flows.RefreshFailureIssue:
		return true
	case flows.RefreshFailureRateLimited:
		return !isRateLimited(cause)
	default:
		return false
	}
}
