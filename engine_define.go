package mailotp

import (
	"context"
	"strconv"
)

// DefineChallenge decides, from the session's challenge history, whether to
// issue a(nother) EMAIL_OTP round, succeed, or fail the authentication
// attempt. It is pure decision logic: no store access, no side effects
// beyond audit and metrics.
//
// Rules, in order:
//
//   - no EMAIL_OTP round issued yet → DecisionIssueChallenge
//   - most recent EMAIL_OTP result accepted → DecisionSucceed (terminal)
//   - rejected and issued rounds < MaxRounds → DecisionIssueChallenge
//   - otherwise → DecisionFail (terminal)
//
// Malformed history (an entry with an empty challenge name) fails the
// attempt defensively rather than looping.
func (e *Engine) DefineChallenge(ctx context.Context, req DefineRequest) DefineResponse {
	if e == nil {
		return DefineResponse{Decision: DecisionFail}
	}

	rounds := 0
	lastAccepted := false
	malformed := false

	for _, entry := range req.Session {
		if entry.ChallengeName == "" {
			malformed = true
			break
		}
		if entry.ChallengeName != ChallengeName {
			// Another factor's round; not ours to count.
			continue
		}
		rounds++
		lastAccepted = entry.Accepted
	}

	resp := DefineResponse{Rounds: rounds}

	switch {
	case malformed:
		resp.Decision = DecisionFail
	case rounds == 0:
		resp.Decision = DecisionIssueChallenge
	case lastAccepted:
		resp.Decision = DecisionSucceed
	case rounds < e.config.Challenge.MaxRounds:
		resp.Decision = DecisionIssueChallenge
	default:
		resp.Decision = DecisionFail
	}

	var auditErr error
	switch resp.Decision {
	case DecisionIssueChallenge:
		e.metricInc(MetricDecisionIssue)
	case DecisionSucceed:
		e.metricInc(MetricDecisionSucceed)
	default:
		e.metricInc(MetricDecisionFail)
		if malformed {
			auditErr = ErrMalformedRequest
		}
	}

	e.emitAudit(ctx, auditEventChallengeDefine, resp.Decision != DecisionFail, req.Email, "", auditErr, func() map[string]string {
		return map[string]string{
			"decision": resp.Decision.String(),
			"rounds":   strconv.Itoa(rounds),
		}
	})

	return resp
}
