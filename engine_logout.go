package tokenguard

import (
	"context"
	"fmt"
	"strconv"

	"github.com/MrEthical07/tokenguard/tokenstore"
	"go.uber.org/zap"
)

// Logout revokes every record of the device the refresh token belongs to.
// Expired tokens are accepted; undecryptable ones return ErrInvalidToken.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	res := e.flows.Logout(ctx, refreshToken)
	if res.Decode {
		err := fmt.Errorf("%w: %w", ErrInvalidToken, res.Err)
		e.emitAudit(ctx, auditEventLogout, false, "", "", err, nil)
		return err
	}
	if res.Err != nil {
		e.logger.Error("logout revoke failed",
			zap.String("user_id", res.UserID),
			zap.String("device_id", res.DeviceID),
			zap.Error(res.Err),
		)
		err := fmt.Errorf("revoke device: %w", res.Err)
		e.emitAudit(ctx, auditEventLogout, false, res.UserID, res.DeviceID, err, nil)
		return err
	}

	e.metricInc(MetricLogout)
	e.metricInc(MetricDeviceRevoked)
	e.emitAudit(ctx, auditEventLogout, true, res.UserID, res.DeviceID, nil, func() map[string]string {
		return map[string]string{"revoked": strconv.Itoa(res.Revoked)}
	})
	return nil
}

// RevokeDevice revokes every live record of (userID, deviceID) and reports
// how many were revoked.
func (e *Engine) RevokeDevice(ctx context.Context, userID, deviceID string) (int, error) {
	if !e.ready() {
		return 0, ErrEngineNotReady
	}

	n, err := e.flows.RevokeDevice(ctx, userID, deviceID)
	if err != nil {
		e.logger.Error("device revoke failed", zap.String("user_id", userID), zap.String("device_id", deviceID), zap.Error(err))
		return 0, fmt.Errorf("revoke device: %w", err)
	}

	e.metricInc(MetricDeviceRevoked)
	e.emitAudit(ctx, auditEventDeviceRevoked, true, userID, deviceID, nil, func() map[string]string {
		return map[string]string{"revoked": strconv.Itoa(n)}
	})
	return n, nil
}

// ListDevice returns every record of the lineage, used and revoked ones
// included, oldest first.
func (e *Engine) ListDevice(ctx context.Context, userID, deviceID string) ([]tokenstore.Record, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	return e.store.ListDevice(ctx, userID, deviceID)
}
