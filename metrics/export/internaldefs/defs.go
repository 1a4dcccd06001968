package internaldefs

import (
	"github.com/mailotp/mailotp"
)

// CounterDef binds an engine counter to its exported name and help text.
type CounterDef struct {
	ID   mailotp.MetricID
	Name string
	Help string
}

// HistogramDef binds an engine latency histogram to its exported name and
// help text.
type HistogramDef struct {
	ID   mailotp.MetricID
	Name string
	Help string
}

// CounterDefs lists every engine counter in export order.
var CounterDefs = []CounterDef{
	{ID: mailotp.MetricDecisionIssue, Name: "mailotp_decision_issue_total", Help: "Decisions to issue a challenge round."},
	{ID: mailotp.MetricDecisionSucceed, Name: "mailotp_decision_succeed_total", Help: "Terminal succeed decisions."},
	{ID: mailotp.MetricDecisionFail, Name: "mailotp_decision_fail_total", Help: "Terminal fail decisions."},
	{ID: mailotp.MetricChallengeCreated, Name: "mailotp_challenge_created_total", Help: "Successfully issued challenges."},
	{ID: mailotp.MetricChallengeCreateFailure, Name: "mailotp_challenge_create_failure_total", Help: "Challenge issuance failures."},
	{ID: mailotp.MetricChallengeResent, Name: "mailotp_challenge_resent_total", Help: "Explicit challenge resends."},
	{ID: mailotp.MetricRateLimitHit, Name: "mailotp_rate_limit_hit_total", Help: "Issuance requests denied by the rate limiter."},
	{ID: mailotp.MetricUserCreated, Name: "mailotp_user_created_total", Help: "Pending users provisioned during registration."},
	{ID: mailotp.MetricDispatchFailure, Name: "mailotp_dispatch_failure_total", Help: "Mail dispatches rejected by the delivery collaborator."},
	{ID: mailotp.MetricVerifyAccepted, Name: "mailotp_verify_accepted_total", Help: "Accepted code submissions."},
	{ID: mailotp.MetricVerifyRejected, Name: "mailotp_verify_rejected_total", Help: "Well-formed but wrong code submissions."},
	{ID: mailotp.MetricVerifyExpired, Name: "mailotp_verify_expired_total", Help: "Submissions against expired challenges."},
	{ID: mailotp.MetricVerifyNoChallenge, Name: "mailotp_verify_no_challenge_total", Help: "Submissions with no outstanding challenge."},
	{ID: mailotp.MetricVerifyInvalidFormat, Name: "mailotp_verify_invalid_format_total", Help: "Submissions rejected at the format gate."},
}

// HistogramDefs lists the engine latency histograms in export order.
var HistogramDefs = []HistogramDef{
	{ID: mailotp.MetricCreateLatency, Name: "mailotp_create_latency_seconds", Help: "Challenge issuance latency histogram."},
	{ID: mailotp.MetricVerifyLatency, Name: "mailotp_verify_latency_seconds", Help: "Challenge verification latency histogram."},
}

// HistogramBounds are the upper bucket bounds in seconds, Prometheus "le"
// label form.
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

// HistogramBoundSuffix are the bounds in identifier-safe form for backends
// that cannot carry labels.
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

// NormalizeBuckets widens a snapshot bucket slice to the fixed export shape.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to the cumulative form
// Prometheus histograms expect.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
