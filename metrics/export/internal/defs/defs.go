// Package defs holds the metric names and bucket bounds shared by the
// Prometheus and OpenTelemetry exporters so both publish identical series.
package defs

import "github.com/staynest/gatekeep"

type Counter struct {
	ID   gatekeep.MetricID
	Name string
	Help string
}

type Histogram struct {
	ID   gatekeep.MetricID
	Name string
	Help string
}

var Counters = []Counter{
	{ID: gatekeep.MetricAdmissionAllowed, Name: "gatekeep_admission_allowed_total", Help: "Requests admitted by the admission controller."},
	{ID: gatekeep.MetricAdmissionRejected, Name: "gatekeep_admission_rejected_total", Help: "Requests rejected for exceeding their operation ceiling."},
	{ID: gatekeep.MetricAdmissionStoreError, Name: "gatekeep_admission_store_errors_total", Help: "Admission checks that failed to reach the counter store."},
	{ID: gatekeep.MetricAdmissionFailOpen, Name: "gatekeep_admission_fail_open_total", Help: "Requests admitted without a check because the store was unavailable."},
	{ID: gatekeep.MetricAdmissionReset, Name: "gatekeep_admission_resets_total", Help: "Explicit admission counter resets."},
	{ID: gatekeep.MetricCredentialDerived, Name: "gatekeep_credential_derived_total", Help: "Credential records derived."},
	{ID: gatekeep.MetricCredentialDeriveFailure, Name: "gatekeep_credential_derive_failures_total", Help: "Credential derivations that failed."},
	{ID: gatekeep.MetricVerifySuccess, Name: "gatekeep_verify_success_total", Help: "Secrets that matched their stored record."},
	{ID: gatekeep.MetricVerifyFailure, Name: "gatekeep_verify_failure_total", Help: "Secrets that did not match their stored record."},
	{ID: gatekeep.MetricLoginSuccess, Name: "gatekeep_login_success_total", Help: "Successful logins."},
	{ID: gatekeep.MetricLoginFailure, Name: "gatekeep_login_failure_total", Help: "Failed logins."},
	{ID: gatekeep.MetricLoginRateLimited, Name: "gatekeep_login_rate_limited_total", Help: "Logins rejected by admission."},
	{ID: gatekeep.MetricSecretChanged, Name: "gatekeep_secret_changed_total", Help: "Successful secret changes."},
	{ID: gatekeep.MetricTokenIssued, Name: "gatekeep_access_tokens_issued_total", Help: "Access tokens issued."},
}

var Histograms = []Histogram{
	{ID: gatekeep.MetricAdmissionLatency, Name: "gatekeep_admission_latency_seconds", Help: "Admission check latency."},
	{ID: gatekeep.MetricVerifyLatency, Name: "gatekeep_verify_latency_seconds", Help: "Credential verification latency."},
}

const (
	AuditDroppedName = "gatekeep_audit_dropped_total"
	AuditDroppedHelp = "Audit events dropped because the dispatcher buffer was full."
	PolicyPointsName = "gatekeep_admission_policy_points"
	PolicyPointsHelp = "Configured request ceiling per operation window."
	PolicyWindowName = "gatekeep_admission_policy_window_seconds"
	PolicyWindowHelp = "Configured window length per operation."
)

// Bounds are the upper bucket bounds in seconds, matching the engine's
// millisecond buckets.
var Bounds = [8]string{"0.005", "0.01", "0.025", "0.05", "0.1", "0.25", "0.5", "+Inf"}

// BoundSuffix is Bounds rendered as instrument name suffixes.
var BoundSuffix = [8]string{"0_005", "0_01", "0_025", "0_05", "0_1", "0_25", "0_5", "inf"}

// Cumulative turns the engine's per-bucket counts into running totals.
// Short or missing input is treated as zeros.
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
