package internaldefs

import "github.com/MrEthical07/tokenguard"

// Def names one exported series.
type Def struct {
	ID   tokenguard.MetricID
	Name string
	Help string
}

// Bound is a histogram upper bound. Label is the Prometheus `le` value and
// Suffix the instrument-name form used by OTel gauges.
type Bound struct {
	Label  string
	Suffix string
}

// AuditDropped is the series for audit events lost to a full buffer.
var AuditDropped = Def{
	Name: "tokenguard_audit_dropped_total",
	Help: "Audit events dropped because the dispatcher buffer was full.",
}

// Counters lists every counter series in export order.
var Counters = []Def{
	{ID: tokenguard.MetricLoginSuccess, Name: "tokenguard_login_success_total", Help: "Successful logins."},
	{ID: tokenguard.MetricLoginFailure, Name: "tokenguard_login_failure_total", Help: "Failed logins."},
	{ID: tokenguard.MetricLoginRateLimited, Name: "tokenguard_login_rate_limited_total", Help: "Logins rejected by the throttle."},
	{ID: tokenguard.MetricTokenIssued, Name: "tokenguard_token_issued_total", Help: "Refresh records created, rotations included."},
	{ID: tokenguard.MetricRefreshSuccess, Name: "tokenguard_refresh_success_total", Help: "Successful refresh rotations."},
	{ID: tokenguard.MetricRefreshFailure, Name: "tokenguard_refresh_failure_total", Help: "Rejected or failed refresh attempts."},
	{ID: tokenguard.MetricRefreshExpired, Name: "tokenguard_refresh_expired_total", Help: "Refresh attempts with an expired envelope."},
	{ID: tokenguard.MetricRefreshNotFound, Name: "tokenguard_refresh_not_found_total", Help: "Refresh attempts whose record was missing or revoked."},
	{ID: tokenguard.MetricRefreshReuseDetected, Name: "tokenguard_refresh_reuse_detected_total", Help: "Redeemed refresh tokens presented again."},
	{ID: tokenguard.MetricRefreshRateLimited, Name: "tokenguard_refresh_rate_limited_total", Help: "Refresh attempts rejected by the throttle."},
	{ID: tokenguard.MetricDeviceRevoked, Name: "tokenguard_device_revoked_total", Help: "Device lineage revocations."},
	{ID: tokenguard.MetricLogout, Name: "tokenguard_logout_total", Help: "Logouts."},
	{ID: tokenguard.MetricCSRFRejected, Name: "tokenguard_csrf_rejected_total", Help: "Requests rejected by the CSRF guard."},
	{ID: tokenguard.MetricAlertFailure, Name: "tokenguard_alert_failure_total", Help: "Alert sink calls that failed."},
}

// Histograms lists the latency histograms.
var Histograms = []Def{
	{ID: tokenguard.MetricRefreshLatency, Name: "tokenguard_refresh_latency_seconds", Help: "Refresh rotation latency."},
	{ID: tokenguard.MetricValidateLatency, Name: "tokenguard_validate_latency_seconds", Help: "Access token validation latency."},
}

// Bounds matches the engine's eight latency buckets.
var Bounds = [8]Bound{
	{"0.005", "0_005"},
	{"0.01", "0_01"},
	{"0.025", "0_025"},
	{"0.05", "0_05"},
	{"0.1", "0_1"},
	{"0.25", "0_25"},
	{"0.5", "0_5"},
	{"+Inf", "inf"},
}

// Cumulative turns the snapshot's per-bucket counts into running totals.
// Missing trailing buckets count as zero.
func Cumulative(raw []uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := range out {
		if i < len(raw) {
			running += raw[i]
		}
		out[i] = running
	}
	return out
}
