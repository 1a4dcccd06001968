package mailotp

import (
	"errors"
	"time"
)

// Config is the process-wide configuration tree. It is built once at startup
// and treated as immutable afterwards; there is no dynamic reconfiguration
// mid-flow.
type Config struct {
	Challenge ChallengeConfig
	RateLimit RateLimitConfig
	Email     EmailConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
}

// ChallengeConfig tunes the OTP lifecycle and the decision loop.
type ChallengeConfig struct {
	// OTPDigits is the code length. Only 6 is supported by the verify
	// format gate today; the knob exists for forward compatibility.
	OTPDigits int
	// OTPTTL is the window in which a code is accepted.
	OTPTTL time.Duration
	// CleanupGrace extends the store-level TTL past OTPTTL so an expired
	// record is still observable as Expired (rather than NoChallenge)
	// until the store reaps it.
	CleanupGrace time.Duration
	// MaxRounds bounds how many EMAIL_OTP challenges DefineChallenge will
	// issue in one session before failing the attempt.
	MaxRounds int
	// RedisPrefix namespaces challenge record keys.
	RedisPrefix string
	// HandlerTimeout caps a single handler invocation when the caller's
	// context carries no deadline. The orchestrator enforces its own
	// invocation timeout; exceeding it is a hard failure there.
	HandlerTimeout time.Duration
}

// RateLimitConfig tunes issuance throttling. Counting is per-email always;
// per-IP is an optional second layer fed by [WithClientIP].
type RateLimitConfig struct {
	Window           time.Duration
	MaxRequests      int
	EnableIPThrottle bool
	// RedisPrefix namespaces rate-limit event keys.
	RedisPrefix string
}

// EmailConfig carries dispatch settings passed through to the mail
// collaborator.
type EmailConfig struct {
	// FromAddress is forwarded to the Mailer as template data; template
	// content itself is owned by the mail system.
	FromAddress string
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls the in-process counters and latency histograms.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the production defaults: 6-digit codes valid for
// five minutes, three issuances per address per fifteen minutes, three
// challenge rounds per session.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Challenge: ChallengeConfig{
			OTPDigits:      6,
			OTPTTL:         5 * time.Minute,
			CleanupGrace:   time.Hour,
			MaxRounds:      3,
			RedisPrefix:    "moc",
			HandlerTimeout: 30 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Window:           15 * time.Minute,
			MaxRequests:      3,
			EnableIPThrottle: false,
			RedisPrefix:      "morl",
		},
		Email: EmailConfig{
			FromAddress: "",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	// No reference-typed fields today; value copy is a deep copy.
	return cfg
}

// Validate rejects configurations that would make challenge semantics
// unsound.
func (c *Config) Validate() error {
	if c.Challenge.OTPDigits != 6 {
		return errors.New("Challenge OTPDigits must be 6")
	}
	if c.Challenge.OTPTTL <= 0 {
		return errors.New("Challenge OTPTTL must be > 0")
	}
	if c.Challenge.CleanupGrace < 0 {
		return errors.New("Challenge CleanupGrace must be >= 0")
	}
	if c.Challenge.MaxRounds <= 0 {
		return errors.New("Challenge MaxRounds must be > 0")
	}
	if c.Challenge.RedisPrefix == "" {
		return errors.New("Challenge RedisPrefix must not be empty")
	}
	if c.Challenge.HandlerTimeout <= 0 {
		return errors.New("Challenge HandlerTimeout must be > 0")
	}

	if c.RateLimit.Window <= 0 {
		return errors.New("RateLimit Window must be > 0")
	}
	if c.RateLimit.MaxRequests <= 0 {
		return errors.New("RateLimit MaxRequests must be > 0")
	}
	if c.RateLimit.RedisPrefix == "" {
		return errors.New("RateLimit RedisPrefix must not be empty")
	}
	if c.RateLimit.RedisPrefix == c.Challenge.RedisPrefix {
		return errors.New("RateLimit RedisPrefix must differ from Challenge RedisPrefix")
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when Audit is enabled")
	}

	return nil
}
