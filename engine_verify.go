package mailotp

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/mailotp/mailotp/internal"
)

// VerifyChallenge evaluates a submitted answer against the outstanding
// one-time code for the address. A correct answer consumes the record
// (single use) and promotes the user: pending users are marked verified,
// and last-login is stamped either way. A wrong answer increments the
// record's attempt counter but leaves it live; how many wrong rounds end
// the session is DefineChallenge's call, not this handler's.
//
// Malformed answers (anything but the configured digit count of ASCII
// digits) are rejected without touching the store, so they cannot be used
// to probe for outstanding challenges or burn attempt counters.
//
// A user-store failure after a correct answer does not reject the code:
// ownership of the address was proven, so the response is still Accepted
// and the skipped update is audited.
func (e *Engine) VerifyChallenge(ctx context.Context, req VerifyRequest) (*VerifyResponse, error) {
	if e == nil || e.challenges == nil || e.userProvider == nil {
		return nil, ErrEngineNotReady
	}

	ctx, cancel := e.boundInvocation(ctx)
	defer cancel()

	start := time.Now()
	defer func() {
		e.metricObserve(MetricVerifyLatency, time.Since(start))
	}()

	email := normalizeEmail(req.Email)
	if !internal.ValidEmail(email) {
		e.emitAudit(ctx, auditEventChallengeVerify, false, email, "", ErrInvalidEmail, nil)
		return nil, ErrInvalidEmail
	}

	if len(req.Answer) != e.config.Challenge.OTPDigits || !internal.IsNumericString(req.Answer) {
		e.metricInc(MetricVerifyInvalidFormat)
		e.emitVerify(ctx, email, "", OutcomeInvalidFormat, 0, ErrInvalidCodeFormat)
		return &VerifyResponse{Outcome: OutcomeInvalidFormat}, nil
	}

	record, err := e.challenges.Consume(ctx, email, internal.HashCode(req.Answer))
	if err != nil {
		switch {
		case errors.Is(err, errChallengeNotFound):
			e.metricInc(MetricVerifyNoChallenge)
			e.emitVerify(ctx, email, "", OutcomeNoChallenge, 0, ErrNoChallengePending)
			return &VerifyResponse{Outcome: OutcomeNoChallenge}, nil
		case errors.Is(err, errChallengeExpired):
			e.metricInc(MetricVerifyExpired)
			e.emitVerify(ctx, email, "", OutcomeExpired, 0, ErrChallengeExpired)
			return &VerifyResponse{Outcome: OutcomeExpired}, nil
		case errors.Is(err, errCodeHashMismatch):
			attempts := 0
			if record != nil {
				attempts = int(record.Attempts)
			}
			e.metricInc(MetricVerifyRejected)
			e.emitVerify(ctx, email, "", OutcomeRejected, attempts, ErrCodeMismatch)
			return &VerifyResponse{Outcome: OutcomeRejected, Attempts: attempts}, nil
		default:
			e.emitVerify(ctx, email, "", OutcomeRejected, 0, ErrStoreUnavailable)
			return nil, ErrStoreUnavailable
		}
	}

	userID := e.promoteUser(ctx, email)

	e.metricInc(MetricVerifyAccepted)
	e.emitAudit(ctx, auditEventChallengeVerify, true, email, userID, nil, func() map[string]string {
		return map[string]string{
			"outcome":      OutcomeAccepted.String(),
			"challenge_id": record.ChallengeID,
		}
	})

	return &VerifyResponse{
		Accepted: true,
		Outcome:  OutcomeAccepted,
		Attempts: int(record.Attempts),
	}, nil
}

// promoteUser applies the post-acceptance user mutations: one-way status
// promotion for pending users and a last-login stamp for everyone. Failures
// here are audited but never surfaced; the code was correct.
func (e *Engine) promoteUser(ctx context.Context, email string) string {
	now := time.Now().UTC()

	user, err := e.userProvider.GetUserByEmail(ctx, email)
	if err != nil {
		e.emitAudit(ctx, auditEventUserUpdateSkipped, false, email, "", err, nil)
		return ""
	}

	if user.Status == StatusPendingVerification {
		if err := e.userProvider.MarkVerified(ctx, user.UserID, now); err != nil {
			e.emitAudit(ctx, auditEventUserUpdateSkipped, false, email, user.UserID, err, func() map[string]string {
				return map[string]string{"update": "mark_verified"}
			})
		}
	}

	if err := e.userProvider.UpdateLastLogin(ctx, user.UserID, now); err != nil {
		e.emitAudit(ctx, auditEventUserUpdateSkipped, false, email, user.UserID, err, func() map[string]string {
			return map[string]string{"update": "last_login"}
		})
	}

	return user.UserID
}

func (e *Engine) emitVerify(ctx context.Context, email, userID string, outcome VerifyOutcome, attempts int, err error) {
	e.emitAudit(ctx, auditEventChallengeVerify, false, email, userID, err, func() map[string]string {
		md := map[string]string{
			"outcome": outcome.String(),
		}
		if attempts > 0 {
			md["attempts"] = strconv.Itoa(attempts)
		}
		return md
	})
}
