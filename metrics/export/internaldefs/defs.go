package internaldefs

import (
	"github.com/MrEthical07/authcore"
)

// CounterDef names one counter.
type CounterDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// HistogramDef names one latency histogram.
type HistogramDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// AuditDroppedName is the counter for lost audit events, labelled by
// severity.
const (
	AuditDroppedName = "authcore_audit_dropped_total"
	AuditDroppedHelp = "Audit events lost to dispatcher backpressure or shutdown."
)

var CounterDefs = []CounterDef{
	{ID: authcore.MetricLoginSuccess, Name: "authcore_login_success_total", Help: "Successful logins."},
	{ID: authcore.MetricLoginFailure, Name: "authcore_login_failure_total", Help: "Failed logins."},
	{ID: authcore.MetricLoginRateLimited, Name: "authcore_login_rate_limited_total", Help: "Logins rejected by the throttle."},
	{ID: authcore.MetricRefreshSuccess, Name: "authcore_refresh_success_total", Help: "Successful refresh token rotations."},
	{ID: authcore.MetricRefreshFailure, Name: "authcore_refresh_failure_total", Help: "Failed refresh token rotations of any kind."},
	{ID: authcore.MetricRefreshNotFound, Name: "authcore_refresh_not_found_total", Help: "Rotations of unknown refresh tokens."},
	{ID: authcore.MetricRefreshExpired, Name: "authcore_refresh_expired_total", Help: "Rotations of expired refresh tokens."},
	{ID: authcore.MetricRefreshReuseDetected, Name: "authcore_refresh_reuse_detected_total", Help: "Detected refresh token reuse."},
	{ID: authcore.MetricRefreshRateLimited, Name: "authcore_refresh_rate_limited_total", Help: "Refreshes rejected by the throttle."},
	{ID: authcore.MetricRefreshProfileRejected, Name: "authcore_refresh_profile_rejected_total", Help: "Refreshes ended by the profile gate."},
	{ID: authcore.MetricLogout, Name: "authcore_logout_total", Help: "Single-lineage logouts."},
	{ID: authcore.MetricLogoutAll, Name: "authcore_logout_all_total", Help: "Log-out-everywhere operations."},
	{ID: authcore.MetricSessionCreated, Name: "authcore_session_created_total", Help: "Created lineages."},
	{ID: authcore.MetricSessionInvalidated, Name: "authcore_session_invalidated_total", Help: "Deleted Redis sessions."},
	{ID: authcore.MetricVerifySelfIssued, Name: "authcore_verify_self_issued_total", Help: "Access tokens accepted as self-issued."},
	{ID: authcore.MetricVerifyExternal, Name: "authcore_verify_external_total", Help: "Access tokens accepted by an external verifier."},
	{ID: authcore.MetricVerifyMiss, Name: "authcore_verify_miss_total", Help: "Access tokens rejected by every verifier."},
	{ID: authcore.MetricStoreUnavailable, Name: "authcore_store_unavailable_total", Help: "Operations failed by an unavailable store."},
}

var HistogramDefs = []HistogramDef{
	{ID: authcore.MetricRotateLatency, Name: "authcore_rotate_latency_seconds", Help: "Refresh token rotation latency."},
}

// HistogramUpperBounds are the finite bucket bounds in seconds. The last
// core bucket is +Inf.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each bucket, +Inf included, for exporters that
// flatten buckets into separate instruments.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed-size array, zero-filling.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
