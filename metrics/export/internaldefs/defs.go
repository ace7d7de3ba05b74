package internaldefs

import (
	goSession "github.com/MrEthical07/goSession"
)

// CounterDef binds an engine counter to its exported name.
type CounterDef struct {
	ID   goSession.MetricID
	Name string
	Help string
}

// HistogramDef binds an engine latency histogram to its exported name.
type HistogramDef struct {
	ID   goSession.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: goSession.MetricLoginSuccess, Name: "gosession_login_success_total", Help: "Successful logins."},
	{ID: goSession.MetricLoginFailure, Name: "gosession_login_failure_total", Help: "Failed logins."},
	{ID: goSession.MetricLoginRateLimited, Name: "gosession_login_rate_limited_total", Help: "Rate-limited login attempts."},
	{ID: goSession.MetricSessionCreated, Name: "gosession_session_created_total", Help: "Refresh families started."},
	{ID: goSession.MetricRefreshSuccess, Name: "gosession_refresh_success_total", Help: "Successful refresh rotations."},
	{ID: goSession.MetricRefreshFailure, Name: "gosession_refresh_failure_total", Help: "Failed refresh rotations."},
	{ID: goSession.MetricRefreshReuseDetected, Name: "gosession_refresh_reuse_detected_total", Help: "Refresh tokens presented after rotation."},
	{ID: goSession.MetricRefreshRateLimited, Name: "gosession_refresh_rate_limited_total", Help: "Rate-limited refresh attempts."},
	{ID: goSession.MetricFamilyRevoked, Name: "gosession_family_revoked_total", Help: "Families revoked after reuse."},
	{ID: goSession.MetricResolveAccess, Name: "gosession_resolve_access_total", Help: "Requests resolved by access token alone."},
	{ID: goSession.MetricResolveRotated, Name: "gosession_resolve_rotated_total", Help: "Requests resolved by rotating the refresh token."},
	{ID: goSession.MetricResolveFailure, Name: "gosession_resolve_failure_total", Help: "Requests that failed to resolve."},
	{ID: goSession.MetricStaleSessionVersion, Name: "gosession_stale_session_version_total", Help: "Access tokens rejected for a stale session version."},
	{ID: goSession.MetricLogout, Name: "gosession_logout_total", Help: "Single-session logouts."},
	{ID: goSession.MetricLogoutAll, Name: "gosession_logout_all_total", Help: "Logout-all operations."},
	{ID: goSession.MetricSessionVersionBumped, Name: "gosession_session_version_bumped_total", Help: "Sign-out-everywhere operations."},
	{ID: goSession.MetricTransientStoreError, Name: "gosession_transient_store_error_total", Help: "Store or provider failures."},
}

var HistogramDefs = []HistogramDef{
	{ID: goSession.MetricResolveLatency, Name: "gosession_resolve_latency_seconds", Help: "Resolve latency histogram."},
}

// HistogramBounds are the Prometheus "le" labels of the fixed buckets.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix names the same buckets for instrument names.
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

// NormalizeBuckets pads or truncates raw to the fixed bucket count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
