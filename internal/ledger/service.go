package ledger

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"tally/internal/events"
	"tally/internal/ledger/metrics"
	id "tally/pkg/domain"
	dErrors "tally/pkg/domain-errors"
	"tally/pkg/platform/sentinel"
)

// Publisher receives domain events post-commit. The event bus satisfies it;
// tests may substitute a recorder.
type Publisher interface {
	Publish(event events.Event)
}

// Service is the points ledger. It guarantees exactly-once crediting per
// idempotency key and a linearizable per-user balance: concurrent awards
// with distinct keys never lose updates, and concurrent awards with the same
// key converge to a single durable effect.
type Service struct {
	uow     UnitOfWork
	reads   Store
	bus     Publisher
	levels  Levels
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
	clock   func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithPublisher sets the post-commit event publisher.
func WithPublisher(bus Publisher) ServiceOption {
	return func(s *Service) { s.bus = bus }
}

// WithLevels overrides the default level thresholds.
func WithLevels(levels Levels) ServiceOption {
	return func(s *Service) { s.levels = levels }
}

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = logger }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// WithClock sets the clock function for testability.
func WithClock(clock func() time.Time) ServiceOption {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewService constructs the ledger service. reads serves query paths outside
// any unit of work; uow scopes every mutation.
func NewService(uow UnitOfWork, reads Store, opts ...ServiceOption) *Service {
	s := &Service{
		uow:    uow,
		reads:  reads,
		levels: NewLevels(nil),
		tracer: otel.Tracer("tally/ledger"),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// AwardPoints attempts to persist one point award.
//
// Outcomes:
//   - StatusApplied: a new transaction committed and the balance moved.
//   - StatusDuplicate: the idempotency key was already applied (including a
//     unique-constraint race lost at the storage layer); the winner's result
//     is returned with a nil error.
//   - StatusRejected with a CodeValidation error: bad input, nothing written.
//   - zero AwardResult with a CodeStorageFailure error: the whole unit of
//     work aborted; safe to re-issue with the same key.
//
// PointsEarned (and LevelUp when a threshold is crossed) are published
// post-commit only.
func (s *Service) AwardPoints(ctx context.Context, req AwardRequest) (AwardResult, error) {
	start := s.clock()
	ctx, span := s.tracer.Start(ctx, "ledger.AwardPoints",
		trace.WithAttributes(attribute.String("ledger.action", req.Action.String())))
	defer span.End()

	if err := validateAward(req); err != nil {
		s.observe(string(StatusRejected), start)
		span.SetAttributes(attribute.String("ledger.status", string(StatusRejected)))
		return AwardResult{Status: StatusRejected, Message: err.Error()}, err
	}

	// Fast path: the key may already be applied from a previous attempt.
	if prior, err := s.reads.GetByIdempotencyKey(ctx, req.IdempotencyKey); err == nil {
		result, derr := s.duplicateResult(ctx, prior)
		if derr != nil {
			return AwardResult{}, derr
		}
		s.observe(string(StatusDuplicate), start)
		span.SetAttributes(attribute.String("ledger.status", string(StatusDuplicate)))
		return result, nil
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return AwardResult{}, dErrors.Wrap(err, dErrors.CodeStorageFailure, "idempotency lookup failed")
	}

	now := s.clock()
	tx := &PointsTransaction{
		ID:             id.NewTransactionID(),
		UserID:         req.UserID,
		Action:         req.Action,
		Points:         req.Points,
		IdempotencyKey: req.IdempotencyKey,
		Metadata:       req.Metadata,
		Source:         req.Source,
		ProcessedAt:    now,
		CreatedAt:      now,
	}

	var newTotal int64
	err := s.uow.RunInTx(ctx, req.UserID, func(store Store) error {
		if err := store.InsertTransaction(ctx, tx); err != nil {
			return err
		}
		total, err := store.ApplyToBalance(ctx, req.UserID, req.Points)
		if err != nil {
			return err
		}
		newTotal = total
		return nil
	})

	switch {
	case err == nil:
		// fallthrough to post-commit section below

	case errors.Is(err, sentinel.ErrDuplicateKey):
		// Lost a same-key race: the whole unit of work rolled back, the
		// winner's row is durable. Reinterpret as duplicate, not an error.
		winner, rerr := s.reads.GetByIdempotencyKey(ctx, req.IdempotencyKey)
		if rerr != nil {
			return AwardResult{}, dErrors.Wrap(rerr, dErrors.CodeConflictRetryable, "lost idempotency race, winner not yet visible")
		}
		result, derr := s.duplicateResult(ctx, winner)
		if derr != nil {
			return AwardResult{}, derr
		}
		s.observe(string(StatusDuplicate), start)
		span.SetAttributes(attribute.String("ledger.status", string(StatusDuplicate)))
		return result, nil

	default:
		s.observe("failed", start)
		return AwardResult{}, dErrors.Wrap(err, dErrors.CodeStorageFailure, "award unit of work aborted")
	}

	s.emitEvents(tx, newTotal, req.RequestID)
	s.observe(string(StatusApplied), start)
	span.SetAttributes(attribute.String("ledger.status", string(StatusApplied)))

	return AwardResult{
		Status:       StatusApplied,
		TotalPoints:  newTotal,
		PointsEarned: req.Points,
		Level:        s.levels.For(newTotal),
		Message:      "points credited",
	}, nil
}

// Balance returns the user's maintained balance. Users with no transactions
// have a zero balance at level 1.
func (s *Service) Balance(ctx context.Context, userID id.UserID) (Balance, error) {
	if userID.IsNil() {
		return Balance{}, dErrors.New(dErrors.CodeValidation, "user id cannot be nil")
	}
	bal, err := s.reads.GetBalance(ctx, userID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return Balance{UserID: userID, Level: s.levels.For(0)}, nil
	}
	if err != nil {
		return Balance{}, dErrors.Wrap(err, dErrors.CodeStorageFailure, "balance lookup failed")
	}
	bal.Level = s.levels.For(bal.TotalPoints)
	return *bal, nil
}

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// History returns the user's transactions most-recent-first.
func (s *Service) History(ctx context.Context, userID id.UserID, limit, offset int) ([]PointsTransaction, error) {
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "user id cannot be nil")
	}
	if offset < 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "offset cannot be negative")
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	txs, err := s.reads.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorageFailure, "history lookup failed")
	}
	return txs, nil
}

// ReconcileBalance compares the maintained accumulator against the
// transaction-log sum under the user's unit of work and returns the drift
// (accumulator minus sum). Zero means the linearizability invariant holds.
func (s *Service) ReconcileBalance(ctx context.Context, userID id.UserID) (int64, error) {
	if userID.IsNil() {
		return 0, dErrors.New(dErrors.CodeValidation, "user id cannot be nil")
	}
	var drift int64
	err := s.uow.RunInTx(ctx, userID, func(store Store) error {
		sum, err := store.SumTransactions(ctx, userID)
		if err != nil {
			return err
		}
		var total int64
		bal, err := store.GetBalance(ctx, userID)
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			// no awards yet, total stays zero
		case err != nil:
			return err
		default:
			total = bal.TotalPoints
		}
		drift = total - sum
		return nil
	})
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeStorageFailure, "reconciliation failed")
	}
	if drift != 0 {
		s.logger.Error("balance accumulator drifted from transaction log",
			"user_id", userID, "drift", drift)
	}
	if s.metrics != nil {
		abs := drift
		if abs < 0 {
			abs = -abs
		}
		s.metrics.ReconcileDrift.Set(float64(abs))
	}
	return drift, nil
}

func (s *Service) duplicateResult(ctx context.Context, prior *PointsTransaction) (AwardResult, error) {
	var total int64
	bal, err := s.reads.GetBalance(ctx, prior.UserID)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		// balance row lags only if the store is inconsistent; fall back to the log
		total, err = s.reads.SumTransactions(ctx, prior.UserID)
		if err != nil {
			return AwardResult{}, dErrors.Wrap(err, dErrors.CodeStorageFailure, "balance lookup failed")
		}
	case err != nil:
		return AwardResult{}, dErrors.Wrap(err, dErrors.CodeStorageFailure, "balance lookup failed")
	default:
		total = bal.TotalPoints
	}
	return AwardResult{
		Status:       StatusDuplicate,
		TotalPoints:  total,
		PointsEarned: prior.Points,
		Level:        s.levels.For(total),
		Message:      "already credited",
	}, nil
}

func (s *Service) emitEvents(tx *PointsTransaction, newTotal int64, requestID string) {
	if s.bus == nil {
		return
	}
	occurred := tx.ProcessedAt
	s.bus.Publish(events.PointsEarned{
		TransactionID: tx.ID,
		UserID:        tx.UserID,
		Action:        tx.Action,
		Points:        tx.Points,
		TotalPoints:   newTotal,
		RequestID:     requestID,
		OccurredAt:    occurred,
	})
	if level, crossed := s.levels.Crossed(newTotal-tx.Points, newTotal); crossed {
		if s.metrics != nil {
			s.metrics.LevelUpsTotal.Inc()
		}
		s.bus.Publish(events.LevelUp{
			UserID:      tx.UserID,
			Level:       level,
			TotalPoints: newTotal,
			OccurredAt:  occurred,
		})
	}
}

func (s *Service) observe(status string, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveAward(status, s.clock().Sub(start).Seconds())
	}
}

func validateAward(req AwardRequest) error {
	if req.UserID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "user id cannot be nil")
	}
	if req.Action == "" {
		return dErrors.New(dErrors.CodeValidation, "action cannot be empty")
	}
	if req.IdempotencyKey == "" {
		return dErrors.New(dErrors.CodeValidation, "idempotency key cannot be empty")
	}
	if req.Points == 0 {
		return dErrors.New(dErrors.CodeValidation, "points cannot be zero")
	}
	return nil
}
