package mailotp

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mailotp/mailotp/internal"
)

// CreateChallenge issues a fresh one-time code for the address and hands it
// to the mail collaborator. The flow indicator (registration vs. login) is
// inferred from whether a user record already exists; a first-time address
// gets a pending user provisioned as a side effect.
//
// Side effects on success: one challenge record write (overwriting any
// outstanding code for the address), zero-or-one user write, one rate-limit
// event, one dispatch call. A failed dispatch does not roll anything back:
// the response reports Delivered=false and the code stays valid until
// expiry (see ResendChallenge for the recovery path).
func (e *Engine) CreateChallenge(ctx context.Context, req CreateRequest) (*CreateResponse, error) {
	if e == nil || e.challenges == nil || e.limiter == nil || e.userProvider == nil || e.mailer == nil {
		return nil, ErrEngineNotReady
	}

	ctx, cancel := e.boundInvocation(ctx)
	defer cancel()

	start := time.Now()
	defer func() {
		e.metricObserve(MetricCreateLatency, time.Since(start))
	}()

	email := normalizeEmail(req.Email)
	if !internal.ValidEmail(email) {
		e.metricInc(MetricChallengeCreateFailure)
		e.emitAudit(ctx, auditEventChallengeCreate, false, email, "", ErrInvalidEmail, nil)
		return nil, ErrInvalidEmail
	}

	ip := clientIPFromContext(ctx)
	if retryAfter, err := e.limiter.Check(ctx, email, ip); err != nil {
		if errors.Is(err, errRequestRateLimited) {
			e.metricInc(MetricChallengeCreateFailure)
			e.emitRateLimit(ctx, email, retryAfter)
			return nil, &RateLimitedError{RetryAfter: retryAfter}
		}
		e.metricInc(MetricChallengeCreateFailure)
		e.emitAudit(ctx, auditEventChallengeCreate, false, email, "", ErrStoreUnavailable, nil)
		return nil, ErrStoreUnavailable
	}

	user, newUser, err := e.lookupOrProvisionUser(ctx, email)
	if err != nil {
		e.metricInc(MetricChallengeCreateFailure)
		e.emitAudit(ctx, auditEventChallengeCreate, false, email, "", err, nil)
		return nil, err
	}

	resp, err := e.issueChallenge(ctx, email, user, newUser, auditEventChallengeCreate)
	if err != nil {
		e.metricInc(MetricChallengeCreateFailure)
		return nil, err
	}

	e.metricInc(MetricChallengeCreated)
	return resp, nil
}

// ResendChallenge regenerates the code for an address that already has a
// live challenge or a known user, overwriting the outstanding record and
// dispatching again. It exists for the case where the record was persisted
// but the mail never arrived; waiting out the natural expiry is not an
// acceptable client experience. Resends draw from the same rate budget as
// first issuances.
func (e *Engine) ResendChallenge(ctx context.Context, req CreateRequest) (*CreateResponse, error) {
	if e == nil || e.challenges == nil || e.limiter == nil || e.userProvider == nil || e.mailer == nil {
		return nil, ErrEngineNotReady
	}

	ctx, cancel := e.boundInvocation(ctx)
	defer cancel()

	email := normalizeEmail(req.Email)
	if !internal.ValidEmail(email) {
		e.emitAudit(ctx, auditEventChallengeResend, false, email, "", ErrInvalidEmail, nil)
		return nil, ErrInvalidEmail
	}

	ip := clientIPFromContext(ctx)
	if retryAfter, err := e.limiter.Check(ctx, email, ip); err != nil {
		if errors.Is(err, errRequestRateLimited) {
			e.emitRateLimit(ctx, email, retryAfter)
			return nil, &RateLimitedError{RetryAfter: retryAfter}
		}
		e.emitAudit(ctx, auditEventChallengeResend, false, email, "", ErrStoreUnavailable, nil)
		return nil, ErrStoreUnavailable
	}

	user, err := e.userProvider.GetUserByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			e.emitAudit(ctx, auditEventChallengeResend, false, email, "", ErrStoreUnavailable, nil)
			return nil, ErrStoreUnavailable
		}

		// No user: only resend when a challenge is actually outstanding,
		// otherwise this would be an issuance oracle for unknown addresses.
		if _, peekErr := e.challenges.Peek(ctx, email); peekErr != nil {
			if errors.Is(peekErr, errChallengeNotFound) {
				e.emitAudit(ctx, auditEventChallengeResend, false, email, "", ErrNoChallengePending, nil)
				return nil, ErrNoChallengePending
			}
			e.emitAudit(ctx, auditEventChallengeResend, false, email, "", ErrStoreUnavailable, nil)
			return nil, ErrStoreUnavailable
		}
	}

	resp, err := e.issueChallenge(ctx, email, user, user.UserID == "", auditEventChallengeResend)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricChallengeResent)
	return resp, nil
}

// lookupOrProvisionUser resolves the flow branch: an existing record means
// a login flow, an absent one means registration and a pending user is
// created.
func (e *Engine) lookupOrProvisionUser(ctx context.Context, email string) (UserRecord, bool, error) {
	user, err := e.userProvider.GetUserByEmail(ctx, email)
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return UserRecord{}, false, ErrStoreUnavailable
	}

	created, err := e.userProvider.CreateUser(ctx, CreateUserInput{
		UserID:    uuid.NewString(),
		Email:     email,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return UserRecord{}, false, ErrStoreUnavailable
	}

	e.metricInc(MetricUserCreated)
	e.emitAudit(ctx, auditEventUserProvisioned, true, email, created.UserID, nil, func() map[string]string {
		return map[string]string{
			"status": created.Status.String(),
		}
	})

	return created, true, nil
}

// issueChallenge is the shared tail of CreateChallenge and ResendChallenge:
// generate, persist, charge the limiter, dispatch.
func (e *Engine) issueChallenge(ctx context.Context, email string, user UserRecord, registration bool, auditEvent string) (*CreateResponse, error) {
	code, err := internal.NewOTP(e.config.Challenge.OTPDigits)
	if err != nil {
		e.emitAudit(ctx, auditEvent, false, email, user.UserID, err, nil)
		return nil, ErrStoreUnavailable
	}

	now := time.Now()
	expiresAt := now.Add(e.config.Challenge.OTPTTL)

	record := &challengeRecord{
		ChallengeID: uuid.NewString(),
		CodeHash:    internal.HashCode(code),
		CreatedAt:   now.Unix(),
		ExpiresAt:   expiresAt.Unix(),
		Attempts:    0,
	}

	if err := e.challenges.Save(ctx, email, record, e.config.Challenge.CleanupGrace); err != nil {
		e.emitAudit(ctx, auditEvent, false, email, user.UserID, ErrStoreUnavailable, nil)
		return nil, ErrStoreUnavailable
	}

	ip := clientIPFromContext(ctx)
	if err := e.limiter.Record(ctx, email, ip); err != nil {
		e.emitAudit(ctx, auditEvent, false, email, user.UserID, ErrStoreUnavailable, nil)
		return nil, ErrStoreUnavailable
	}

	template := TemplateLoginOTP
	if registration {
		template = TemplateRegistrationOTP
	}

	data := map[string]string{
		"otp":           code,
		"expiryMinutes": strconv.Itoa(int(e.config.Challenge.OTPTTL.Minutes())),
	}
	if e.config.Email.FromAddress != "" {
		data["from"] = e.config.Email.FromAddress
	}
	if user.GivenName != "" {
		data["givenName"] = user.GivenName
	}
	if user.FamilyName != "" {
		data["familyName"] = user.FamilyName
	}

	delivered := true
	messageID, err := e.mailer.Send(ctx, template, email, data)
	if err != nil {
		// Deliberate fire-and-forget: the record and the rate charge stand.
		delivered = false
		e.metricInc(MetricDispatchFailure)
		e.emitAudit(ctx, auditEventDispatchFailed, false, email, user.UserID, ErrDispatchFailed, func() map[string]string {
			return map[string]string{
				"template": template,
			}
		})
	}

	e.emitAudit(ctx, auditEvent, true, email, user.UserID, nil, func() map[string]string {
		md := map[string]string{
			"challenge_id": record.ChallengeID,
			"template":     template,
			"delivered":    strconv.FormatBool(delivered),
		}
		if messageID != "" {
			md["message_id"] = messageID
		}
		return md
	})

	return &CreateResponse{
		MaskedEmail:   internal.MaskEmail(email),
		ChallengeType: ChallengeName,
		ExpiresAt:     expiresAt,
		NewUser:       registration,
		Delivered:     delivered,
	}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
