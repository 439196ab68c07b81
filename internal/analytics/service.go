package analytics

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"tally/internal/analytics/metrics"
	"tally/internal/platform/config"
	id "tally/pkg/domain"
	dErrors "tally/pkg/domain-errors"
)

// Service ingests behavioral events behind the identity, PII, and schema
// guards. The PII policy is injected at startup: strict deployments reject
// dirty payloads loudly, permissive ones drop them silently but always
// leave a breadcrumb.
type Service struct {
	store     Store
	hasher    *Hasher
	detectors *DetectorSet
	registry  *Registry
	policy    config.PIIPolicy
	env       string
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	clock     func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithDetectors overrides the default detector set.
func WithDetectors(set *DetectorSet) Option {
	return func(s *Service) { s.detectors = set }
}

// WithRegistry overrides the default schema registry.
func WithRegistry(r *Registry) Option {
	return func(s *Service) { s.registry = r }
}

// WithLogger sets the service logger. Breadcrumbs for dropped events are
// emitted through it.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithEnvironment tags stored events with the deployment environment.
func WithEnvironment(env string) Option {
	return func(s *Service) { s.env = env }
}

// WithClock sets the clock function for testability.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func NewService(store Store, hasher *Hasher, policy config.PIIPolicy, opts ...Option) *Service {
	s := &Service{
		store:     store,
		hasher:    hasher,
		detectors: DefaultDetectors(),
		registry:  NewRegistry(),
		policy:    policy,
		tracer:    otel.Tracer("tally/analytics"),
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Track ingests one event.
//
// The raw userID is never persisted: it passes through the deterministic
// one-way hash first. Payloads containing detected PII are rejected (strict
// policy, CodePolicyViolation) or dropped with a single warning breadcrumb
// (permissive policy, nil event ID, nil error). Either way zero rows are
// persisted. Unrecognized event names pass with a warning.
func (s *Service) Track(ctx context.Context, eventName string, metadata, contextData map[string]any, userID, sessionID string) (*id.EventID, error) {
	ctx, span := s.tracer.Start(ctx, "analytics.Track",
		trace.WithAttributes(attribute.String("analytics.event", eventName)))
	defer span.End()

	if eventName == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "event name cannot be empty")
	}

	schema, known := s.registry.Lookup(eventName)
	if known {
		if err := schema.Validate(metadata); err != nil {
			return nil, err
		}
	} else {
		if s.metrics != nil {
			s.metrics.UnknownEvents.Inc()
		}
		s.logger.Warn("tracking event with no registered schema", "event", eventName)
		schema = Schema{Name: eventName, Category: CategoryUnknown}
	}

	if match := s.scanPayloads(metadata, contextData); match != nil {
		if s.metrics != nil {
			s.metrics.ScrubbedTotal.WithLabelValues(match.Detector).Inc()
		}
		span.SetAttributes(attribute.String("analytics.scrubbed_by", match.Detector))
		if s.policy == config.PolicyStrict {
			return nil, dErrors.Newf(dErrors.CodePolicyViolation,
				"event %s rejected: %s detected in %s", eventName, match.Detector, match.Field)
		}
		// Permissive: drop silently toward the caller, but never without a
		// trace. Exactly one breadcrumb, referencing the event, never the
		// matched value.
		s.logger.Warn("analytics event dropped by PII guard",
			"event", eventName,
			"detector", match.Detector,
			"detector_set_version", s.detectors.Version)
		return nil, nil
	}

	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "metadata not serializable")
	}
	contextJSON, err := json.Marshal(contextData)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "context not serializable")
	}

	event := Event{
		ID:            id.NewEventID(),
		Name:          eventName,
		Category:      schema.Category,
		SchemaVersion: schema.Version,
		UserIDHash:    s.hasher.HashUserID(userID),
		SessionID:     sessionID,
		Metadata:      metadataJSON,
		Context:       contextJSON,
		OccurredAt:    s.clock(),
		Environment:   s.env,
	}
	if err := s.store.Insert(ctx, event); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorageFailure, "analytics insert failed")
	}
	if s.metrics != nil {
		s.metrics.TrackedTotal.WithLabelValues(eventName).Inc()
	}
	return &event.ID, nil
}

// CohortEvents returns the stored events for one user's hash, most-recent-
// first. The caller supplies the raw ID; only its hash touches storage.
func (s *Service) CohortEvents(ctx context.Context, userID string, limit int) ([]Event, error) {
	if userID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "user id cannot be empty")
	}
	if limit <= 0 {
		limit = 50
	}
	return s.store.ListByUserHash(ctx, s.hasher.HashUserID(userID), limit)
}

// PruneOlderThan deletes events strictly older than cutoff.
func (s *Service) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	deleted, err := s.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeStorageFailure, "analytics prune failed")
	}
	if s.metrics != nil {
		s.metrics.PrunedTotal.Add(float64(deleted))
	}
	return deleted, nil
}

// CountOlderThan reports how many events a prune at cutoff would delete.
// Used by retention dry runs; mutates nothing.
func (s *Service) CountOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.store.CountOlderThan(ctx, cutoff)
}

func (s *Service) scanPayloads(metadata, contextData map[string]any) *Match {
	if match := s.detectors.Scan(metadata); match != nil {
		return match
	}
	return s.detectors.Scan(contextData)
}
