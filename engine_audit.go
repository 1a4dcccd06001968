package mailotp

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventChallengeDefine   = "challenge_define"
	auditEventChallengeCreate   = "challenge_create"
	auditEventChallengeResend   = "challenge_resend"
	auditEventChallengeVerify   = "challenge_verify"
	auditEventUserProvisioned   = "user_provisioned"
	auditEventDispatchFailed    = "dispatch_failed"
	auditEventRateLimitTrigger  = "rate_limit_triggered"
	auditEventUserUpdateSkipped = "user_update_skipped"
)

// AuditErrorCode is the stable vocabulary used in [AuditEvent].Error.
type AuditErrorCode string

const (
	auditErrMalformed       AuditErrorCode = "malformed_request"
	auditErrInvalidEmail    AuditErrorCode = "invalid_email"
	auditErrInvalidFormat   AuditErrorCode = "invalid_code_format"
	auditErrRateLimited     AuditErrorCode = "rate_limited"
	auditErrNoChallenge     AuditErrorCode = "no_challenge_pending"
	auditErrExpired         AuditErrorCode = "challenge_expired"
	auditErrCodeMismatch    AuditErrorCode = "code_mismatch"
	auditErrUserNotFound    AuditErrorCode = "user_not_found"
	auditErrStoreDown       AuditErrorCode = "store_unavailable"
	auditErrDispatchFailed  AuditErrorCode = "dispatch_failed"
	auditErrInternal        AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	email string,
	userID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Email:     email,
		UserID:    userID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitRateLimit(ctx context.Context, email string, retryAfter time.Duration) {
	e.metricInc(MetricRateLimitHit)
	e.emitAudit(ctx, auditEventRateLimitTrigger, false, email, "", ErrRateLimited, func() map[string]string {
		return map[string]string{
			"retry_after": retryAfter.Round(time.Second).String(),
		}
	})
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrMalformedRequest):
		return auditErrMalformed
	case errors.Is(err, ErrInvalidEmail):
		return auditErrInvalidEmail
	case errors.Is(err, ErrInvalidCodeFormat):
		return auditErrInvalidFormat
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrNoChallengePending):
		return auditErrNoChallenge
	case errors.Is(err, ErrChallengeExpired):
		return auditErrExpired
	case errors.Is(err, ErrCodeMismatch):
		return auditErrCodeMismatch
	case errors.Is(err, ErrUserNotFound):
		return auditErrUserNotFound
	case errors.Is(err, ErrStoreUnavailable):
		return auditErrStoreDown
	case errors.Is(err, ErrDispatchFailed):
		return auditErrDispatchFailed
	default:
		return auditErrInternal
	}
}
