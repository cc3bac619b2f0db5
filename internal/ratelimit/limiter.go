// Package ratelimit implements per-client, per-category admission control
// backed by in-memory token buckets.
//
// Each inbound request is mapped to a composite key (client identity plus
// request category) and checked against the category's token bucket. The
// limiter fails open: an internal store error admits the request and is
// reported to metrics, never surfaced to the caller as a rejection.
package ratelimit

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("resilgate/ratelimit")

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed    bool
	Category   string
	Limit      int // category rate per minute
	Burst      int
	Remaining  int
	RetryAfter time.Duration
	FailedOpen bool
}

// Limiter binds the key policy, the bucket store, and observability into the
// admission entry point consulted by the gate middleware.
type Limiter struct {
	store  Store
	policy *KeyPolicy
	logger *zap.Logger
}

// NewLimiter constructs a limiter over the given store and key policy.
func NewLimiter(store Store, policy *KeyPolicy, logger *zap.Logger) *Limiter {
	return &Limiter{store: store, policy: policy, logger: logger}
}

// Check runs one admission decision for the client against the category
// matched from path. The bucket consume is a bounded, constant-time update;
// Check never blocks on I/O.
func (l *Limiter) Check(ctx context.Context, client, path string) Decision {
	_, span := tracer.Start(ctx, "ratelimit.Check")
	defer span.End()

	rule := l.policy.Categorize(path)
	key := CompositeKey(client, rule.Name)

	span.SetAttributes(
		attribute.String("ratelimit.category", rule.Name),
		attribute.String("ratelimit.client", client),
	)

	res, err := l.store.TryConsume(key, rule.Burst, rule.RefillPerSec(), rule.Cost)
	if err != nil {
		// The protective layer must not become the outage: admit and report.
		storeErrors.Inc()
		limiterRequests.WithLabelValues(rule.Name, "error").Inc()
		l.logger.Error("bucket store failure, failing open",
			zap.String("key", key),
			zap.Error(err))
		return Decision{
			Allowed:    true,
			Category:   rule.Name,
			Limit:      rule.RatePerMinute,
			Burst:      rule.Burst,
			Remaining:  rule.Burst,
			FailedOpen: true,
		}
	}

	status := "allowed"
	if !res.Allowed {
		status = "rejected"
	}
	limiterRequests.WithLabelValues(rule.Name, status).Inc()
	span.SetAttributes(attribute.Bool("ratelimit.allowed", res.Allowed))

	return Decision{
		Allowed:    res.Allowed,
		Category:   rule.Name,
		Limit:      rule.RatePerMinute,
		Burst:      rule.Burst,
		Remaining:  int(res.Remaining),
		RetryAfter: res.RetryAfter,
	}
}

// Status exposes the live bucket view when the store supports it.
func (l *Limiter) Status() []BucketStatus {
	if ms, ok := l.store.(*MemoryStore); ok {
		return ms.Snapshot()
	}
	return nil
}
