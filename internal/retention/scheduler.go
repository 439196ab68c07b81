// Package retention runs the periodic purge jobs that keep the audit and
// analytics stores inside their retention windows. Jobs are serialized per
// store through a named lock so overlapping scheduler instances never purge
// the same store concurrently.
package retention

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"tally/internal/retention/metrics"
)

const (
	jobAudit     = "audit"
	jobAnalytics = "analytics"

	defaultLockTTL = 5 * time.Minute
)

// AuditPurger is the slice of the audit trail the scheduler drives.
type AuditPurger interface {
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	CountOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// AnalyticsPruner is the slice of the analytics store the scheduler drives.
type AnalyticsPruner interface {
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	CountOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// JobResult is the outcome of one store's purge within a run.
type JobResult struct {
	Store   string
	Cutoff  time.Time
	Deleted int64
	Skipped bool
	Err     error
}

// Report summarizes one scheduler run.
type Report struct {
	StartedAt time.Time
	DryRun    bool
	Jobs      []JobResult
}

// Scheduler drives both retention jobs on a ticker, or on demand through
// RunOnce.
type Scheduler struct {
	audit     AuditPurger
	analytics AnalyticsPruner
	lock      JobLock

	auditWindow     time.Duration
	analyticsWindow time.Duration
	interval        time.Duration
	lockTTL         time.Duration
	dryRun          bool

	logger  *slog.Logger
	metrics *metrics.Metrics
	clock   func() time.Time
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithDryRun makes runs report would-be-deleted counts without mutating
// storage.
func WithDryRun(dryRun bool) Option {
	return func(s *Scheduler) { s.dryRun = dryRun }
}

// WithInterval sets the ticker period for Run.
func WithInterval(interval time.Duration) Option {
	return func(s *Scheduler) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

// WithLockTTL bounds how long a crashed run can hold a job lock.
func WithLockTTL(ttl time.Duration) Option {
	return func(s *Scheduler) {
		if ttl > 0 {
			s.lockTTL = ttl
		}
	}
}

// WithLogger sets the scheduler logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = logger }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// WithClock sets the clock function for testability.
func WithClock(clock func() time.Time) Option {
	return func(s *Scheduler) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func NewScheduler(audit AuditPurger, analytics AnalyticsPruner, lock JobLock, auditWindow, analyticsWindow time.Duration, opts ...Option) *Scheduler {
	s := &Scheduler{
		audit:           audit,
		analytics:       analytics,
		lock:            lock,
		auditWindow:     auditWindow,
		analyticsWindow: analyticsWindow,
		interval:        time.Hour,
		lockTTL:         defaultLockTTL,
		clock:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Run executes one purge cycle immediately, then on every interval tick
// until ctx is canceled. Job errors are logged, never fatal: the next tick
// retries.
func (s *Scheduler) Run(ctx context.Context) {
	s.runAndLog(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runAndLog(ctx)
		}
	}
}

func (s *Scheduler) runAndLog(ctx context.Context) {
	report, err := s.RunOnce(ctx)
	for _, job := range report.Jobs {
		logger := s.logger.With(
			"store", job.Store,
			"cutoff", job.Cutoff,
			"dry_run", report.DryRun)
		switch {
		case job.Err != nil:
			logger.Error("retention job failed", "error", job.Err)
		case job.Skipped:
			logger.Info("retention job skipped, lock held elsewhere")
		default:
			logger.Info("retention job completed", "deleted", job.Deleted)
		}
	}
	if err == nil && s.metrics != nil {
		s.metrics.RunsTotal.Inc()
	}
}

// RunOnce purges both stores concurrently. One store's failure does not
// abort the other's job; all job errors are joined into the returned error.
// A run where nothing is eligible deletes zero rows and returns no error.
func (s *Scheduler) RunOnce(ctx context.Context) (Report, error) {
	report := Report{
		StartedAt: s.clock(),
		DryRun:    s.dryRun,
		Jobs:      make([]JobResult, 2),
	}

	var g errgroup.Group
	g.Go(func() error {
		report.Jobs[0] = s.runJob(ctx, jobAudit, s.auditWindow,
			s.audit.PurgeOlderThan, s.audit.CountOlderThan)
		return nil
	})
	g.Go(func() error {
		report.Jobs[1] = s.runJob(ctx, jobAnalytics, s.analyticsWindow,
			s.analytics.PruneOlderThan, s.analytics.CountOlderThan)
		return nil
	})
	_ = g.Wait()

	return report, errors.Join(report.Jobs[0].Err, report.Jobs[1].Err)
}

func (s *Scheduler) runJob(ctx context.Context, store string, window time.Duration, purge, count func(context.Context, time.Time) (int64, error)) JobResult {
	result := JobResult{
		Store:  store,
		Cutoff: s.clock().Add(-window),
	}

	release, acquired, err := s.lock.Acquire(ctx, "retention:"+store, s.lockTTL)
	if err != nil {
		result.Err = err
		s.countFailure(store)
		return result
	}
	if !acquired {
		result.Skipped = true
		if s.metrics != nil {
			s.metrics.SkippedLocked.WithLabelValues(store).Inc()
		}
		return result
	}
	defer func() {
		if err := release(ctx); err != nil {
			s.logger.Warn("retention lock release failed", "store", store, "error", err)
		}
	}()

	run := purge
	if s.dryRun {
		run = count
	}
	result.Deleted, result.Err = run(ctx, result.Cutoff)
	if result.Err != nil {
		s.countFailure(store)
		return result
	}
	if !s.dryRun && s.metrics != nil {
		s.metrics.DeletedTotal.WithLabelValues(store).Add(float64(result.Deleted))
	}
	return result
}

func (s *Scheduler) countFailure(store string) {
	if s.metrics != nil {
		s.metrics.JobFailures.WithLabelValues(store).Inc()
	}
}
