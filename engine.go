package tokenguard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/tokenguard/csrf"
	"github.com/MrEthical07/tokenguard/encryption"
	internalaudit "github.com/MrEthical07/tokenguard/internal/audit"
	"github.com/MrEthical07/tokenguard/internal/flows"
	"github.com/MrEthical07/tokenguard/internal/rate"
	"github.com/MrEthical07/tokenguard/password"
	"github.com/MrEthical07/tokenguard/tokenstore"
	"go.uber.org/zap"
)

// Engine is the token lifecycle service: issuance, rotation, revocation
// and access validation. Build it once with New().Build() and share it.
type Engine struct {
	config       Config
	box          *encryption.Box
	tokens       *TokenManager
	csrf         *csrf.Guard
	store        tokenstore.Store
	rateLimiter  *rate.Limiter
	audit        *internalaudit.Dispatcher
	metrics      *Metrics
	passwordHash *password.Hasher
	userProvider UserProvider
	alerts       AlertSink
	logger       *zap.Logger
	now          func() time.Time
	flows        flows.Service
}

// Close stops the audit dispatcher after draining buffered events.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports audit events lost to a full buffer or a cancelled context.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot copies the engine counters. Maps are empty, never nil,
// when metrics are disabled.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return (*Metrics)(nil).Snapshot()
	}
	return e.metrics.Snapshot()
}

// Tokens returns the shared TokenManager.
func (e *Engine) Tokens() *TokenManager { return e.tokens }

// CSRF returns the guard, or nil when CSRF protection is disabled.
func (e *Engine) CSRF() *csrf.Guard { return e.csrf }

// Box returns the shared encryption box.
func (e *Engine) Box() *encryption.Box { return e.box }

// HashPassword hashes plain with the configured argon2id parameters.
func (e *Engine) HashPassword(plain string) (string, error) {
	if e == nil || e.passwordHash == nil {
		return "", ErrEngineNotReady
	}
	return e.passwordHash.Hash(plain)
}

// ValidateAccess verifies an access token without touching any store.
func (e *Engine) ValidateAccess(ctx context.Context, tokenStr string) (*AuthResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() { e.metrics.Observe(MetricValidateLatency, time.Since(start)) }()
	}

	res := e.flows.Validate(tokenStr)
	if res.Err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, res.Err)
	}

	out := &AuthResult{
		UserID: res.Claims.Subject,
		Email:  res.Claims.Email,
		Role:   res.Claims.Role,
	}
	if res.Claims.ExpiresAt != nil {
		out.ExpiresAt = res.Claims.ExpiresAt.Time
	}
	return out, nil
}

// CaptureException forwards an unexpected error to the alert sink. HTTP
// handlers call it on their 500 path.
func (e *Engine) CaptureException(ctx context.Context, err error, fields map[string]string) {
	if e == nil || e.alerts == nil || err == nil {
		return
	}
	if ip := clientIPFromContext(ctx); ip != "" {
		if fields == nil {
			fields = make(map[string]string, 1)
		}
		fields["ip"] = ip
	}
	if alertErr := e.alerts.CaptureException(ctx, err, fields); alertErr != nil {
		e.metricInc(MetricAlertFailure)
		e.logger.Warn("alert sink failed", zap.Error(alertErr))
	}
}

// ReportCSRFRejection records a request refused by the CSRF guard.
func (e *Engine) ReportCSRFRejection(ctx context.Context, err error) {
	if e == nil {
		return
	}
	e.metricInc(MetricCSRFRejected)
	e.logger.Info("csrf rejected", zap.Error(err), zap.String("ip", clientIPFromContext(ctx)))
	e.emitAudit(ctx, auditEventCSRFRejected, false, "", "", err, nil)
}

func (e *Engine) ready() bool {
	return e != nil && e.flows.Initialized()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) lookupUserByID(ctx context.Context, userID string) (flows.User, error) {
	u, err := e.userProvider.GetUserByID(ctx, userID)
	if err != nil {
		return flows.User{}, err
	}
	return toFlowUser(u), nil
}

func (e *Engine) lookupUserByIdentifier(ctx context.Context, identifier string) (flows.User, error) {
	u, err := e.userProvider.GetUserByIdentifier(ctx, identifier)
	if err != nil {
		return flows.User{}, err
	}
	return toFlowUser(u), nil
}

func toFlowUser(u UserRecord) flows.User {
	return flows.User{
		ID:           u.UserID,
		Email:        u.Email,
		Role:         u.Role,
		PasswordHash: u.PasswordHash,
	}
}

// onReuseDetected runs after the lineage is revoked and before the
// compromised answer is returned.
func (e *Engine) onReuseDetected(ctx context.Context, userID, deviceID string, revoked int) {
	e.metricInc(MetricRefreshReuseDetected)
	e.metricInc(MetricDeviceRevoked)
	e.logger.Warn("refresh token reuse detected",
		zap.String("user_id", userID),
		zap.String("device_id", deviceID),
		zap.Int("revoked", revoked),
	)

	fields := map[string]string{
		"userId":   userID,
		"deviceId": deviceID,
	}
	if ip := clientIPFromContext(ctx); ip != "" {
		fields["ip"] = ip
	}
	if err := e.alerts.CaptureMessage(ctx, "Refresh token reuse detected", fields, AlertLevelWarning); err != nil {
		e.metricInc(MetricAlertFailure)
		e.logger.Warn("alert sink failed", zap.Error(err))
	}
}

func isRateLimited(err error) bool {
	return errors.Is(err, rate.ErrRateLimited)
}
