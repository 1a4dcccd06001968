package mailotp

import (
	"context"
	"time"
)

// Engine is the challenge state machine. Build one through [Builder] at
// process start and share it across invocations; all methods are safe for
// concurrent use.
type Engine struct {
	config       Config
	challenges   *challengeStore
	limiter      *requestLimiter
	userProvider UserProvider
	mailer       Mailer
	audit        *auditDispatcher
	metrics      *Metrics
}

// Close flushes and stops the audit dispatcher. The engine must not be used
// after Close.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were discarded because the
// dispatch buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of all engine metrics.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) metricObserve(id MetricID, d time.Duration) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Observe(id, d)
}

// boundInvocation applies the configured handler ceiling when the caller's
// context carries no deadline. The orchestrator enforces its own invocation
// timeout; exceeding ours first keeps the failure typed instead of hung.
func (e *Engine) boundInvocation(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, e.config.Challenge.HandlerTimeout)
}
