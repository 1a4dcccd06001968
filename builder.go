package mailotp

import (
	"errors"

	"github.com/redis/go-redis/v9"
)

// Builder assembles an [Engine]. Construction is allocation-only; no I/O
// happens until the first handler invocation.
type Builder struct {
	config Config
	redis  *redis.Client

	userProvider UserProvider
	mailer       Mailer
	auditSink    AuditSink

	built bool
}

// New starts a builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration tree.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis supplies the key-value store client backing challenge records
// and rate-limit events.
func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.redis = client
	return b
}

// WithUserProvider supplies the user-store collaborator.
func (b *Builder) WithUserProvider(up UserProvider) *Builder {
	b.userProvider = up
	return b
}

// WithMailer supplies the outbound email collaborator.
func (b *Builder) WithMailer(m Mailer) *Builder {
	b.mailer = m
	return b
}

// WithAuditSink supplies the audit destination and implicitly enables
// auditing.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	b.config.Audit.Enabled = true
	return b
}

// WithMetricsEnabled toggles counter recording.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles handler latency histograms.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the engine. A builder is
// single-use.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.userProvider == nil {
		return nil, errors.New("user provider required")
	}
	if b.mailer == nil {
		return nil, errors.New("mailer required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	engine := &Engine{
		config:       cfg,
		challenges:   newChallengeStore(b.redis, cfg.Challenge.RedisPrefix),
		limiter:      newRequestLimiter(b.redis, cfg.RateLimit),
		userProvider: b.userProvider,
		mailer:       b.mailer,
		audit:        newAuditDispatcher(cfg.Audit, b.auditSink),
		metrics:      NewMetrics(cfg.Metrics),
	}

	b.built = true
	return engine, nil
}
