package mailotp

import (
	"context"
	"time"
)

// ChallengeName identifies the custom challenge in orchestrator session
// history entries.
const ChallengeName = "EMAIL_OTP"

// Mail template names passed to the [Mailer]. Template content is owned by
// the mail system; selection is a pure function of the flow branch.
const (
	// TemplateRegistrationOTP frames the code as a welcome / first-contact
	// message for addresses with no existing user record.
	TemplateRegistrationOTP = "otp_welcome"
	// TemplateLoginOTP frames the code as a returning-login message.
	TemplateLoginOTP = "otp_login"
)

// AccountStatus is the lifecycle state of a platform identity. The only
// transition this engine ever performs is PendingVerification → Verified;
// it is one-way and enforced by [UserProvider] implementations.
type AccountStatus uint8

const (
	// StatusPendingVerification marks a user created during a registration
	// attempt whose email ownership has not been proven yet.
	StatusPendingVerification AccountStatus = iota
	// StatusVerified marks a user who has completed at least one challenge.
	StatusVerified
)

func (s AccountStatus) String() string {
	switch s {
	case StatusPendingVerification:
		return "PENDING_VERIFICATION"
	case StatusVerified:
		return "VERIFIED"
	default:
		return "UNKNOWN"
	}
}

// UserRecord is the platform identity as seen by this engine. Deletion and
// administrative state changes are external operations; the engine only
// creates pending users and promotes them on a successful verify.
type UserRecord struct {
	UserID     string
	Email      string
	Status     AccountStatus
	GivenName  string
	FamilyName string
	CreatedAt  time.Time
	LastLogin  time.Time
}

// CreateUserInput carries the fields CreateChallenge supplies when it
// provisions a pending user for a first-time address.
type CreateUserInput struct {
	UserID    string
	Email     string
	CreatedAt time.Time
}

// UserProvider is the user-store collaborator. Implementations must return
// [ErrUserNotFound] (or an error wrapping it) from GetUserByEmail when no
// record exists, and must refuse status regressions away from
// [StatusVerified] in MarkVerified.
type UserProvider interface {
	GetUserByEmail(ctx context.Context, email string) (UserRecord, error)
	CreateUser(ctx context.Context, input CreateUserInput) (UserRecord, error)
	MarkVerified(ctx context.Context, userID string, at time.Time) error
	UpdateLastLogin(ctx context.Context, userID string, at time.Time) error
}

// Mailer is the outbound email collaborator. Send returns a provider message
// ID on success. Dispatch is fire-and-forget from the engine's point of
// view: a failed Send never rolls back challenge state.
type Mailer interface {
	Send(ctx context.Context, template string, recipient string, data map[string]string) (string, error)
}

// Decision is the outcome of DefineChallenge.
type Decision uint8

const (
	// DecisionIssueChallenge tells the orchestrator to invoke
	// CreateChallenge for a (new) round.
	DecisionIssueChallenge Decision = iota
	// DecisionSucceed is terminal: the orchestrator should issue tokens.
	DecisionSucceed
	// DecisionFail is terminal: the orchestrator should deny the attempt.
	DecisionFail
)

func (d Decision) String() string {
	switch d {
	case DecisionIssueChallenge:
		return "ISSUE_CHALLENGE"
	case DecisionSucceed:
		return "SUCCEED"
	case DecisionFail:
		return "FAIL"
	default:
		return "UNKNOWN"
	}
}

// ChallengeResult is one entry of the orchestrator's session history: a
// challenge that was issued earlier in this authentication session and
// whether the client's response was accepted.
type ChallengeResult struct {
	ChallengeName string
	Accepted      bool
}

// DefineRequest is the input to DefineChallenge. Session is the ordered
// challenge history for the current authentication session, oldest first.
type DefineRequest struct {
	Email   string
	Session []ChallengeResult
}

// DefineResponse carries the decision back to the orchestrator.
type DefineResponse struct {
	Decision Decision
	// Rounds is the number of EMAIL_OTP challenges issued so far in this
	// session, informational only.
	Rounds int
}

// CreateRequest is the input to CreateChallenge and ResendChallenge.
type CreateRequest struct {
	Email string
}

// CreateResponse is the safe-to-expose result of a successful issuance. It
// never contains the code or its hash.
type CreateResponse struct {
	// MaskedEmail confirms the destination without disclosing it fully,
	// e.g. "a***e@example.com".
	MaskedEmail   string
	ChallengeType string
	ExpiresAt     time.Time
	// NewUser reports whether a pending user record was provisioned
	// (registration flow) rather than found (login flow).
	NewUser bool
	// Delivered is false when the mail collaborator rejected the dispatch.
	// The challenge record stands either way.
	Delivered bool
}

// VerifyOutcome classifies a VerifyChallenge result. Every value except
// OutcomeAccepted is a rejection; the orchestrator feeds the boolean back
// into DefineChallenge as the round result.
type VerifyOutcome uint8

const (
	// OutcomeAccepted is an exported challenge verdict value.
	OutcomeAccepted VerifyOutcome = iota
	// OutcomeRejected is the verdict for a well-formed but wrong code.
	OutcomeRejected
	// OutcomeInvalidFormat is the verdict for an answer that is not six
	// ASCII digits; the store is never consulted.
	OutcomeInvalidFormat
	// OutcomeNoChallenge is the verdict when no live record exists.
	OutcomeNoChallenge
	// OutcomeExpired is the verdict for a record past its expiry.
	OutcomeExpired
)

func (o VerifyOutcome) String() string {
	switch o {
	case OutcomeAccepted:
		return "ACCEPTED"
	case OutcomeRejected:
		return "REJECTED"
	case OutcomeInvalidFormat:
		return "INVALID_FORMAT"
	case OutcomeNoChallenge:
		return "NO_CHALLENGE"
	case OutcomeExpired:
		return "EXPIRED"
	default:
		return "UNKNOWN"
	}
}

// VerifyRequest is the input to VerifyChallenge.
type VerifyRequest struct {
	Email  string
	Answer string
}

// VerifyResponse reports the verdict. Accepted mirrors
// Outcome == OutcomeAccepted for orchestrators that only care about the
// boolean.
type VerifyResponse struct {
	Accepted bool
	Outcome  VerifyOutcome
	// Attempts is the record's failed-attempt counter after this
	// invocation; zero when no record was consulted.
	Attempts int
}
