package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"tally/internal/analytics"
	analyticsmetrics "tally/internal/analytics/metrics"
	analyticspg "tally/internal/analytics/store/postgres"
	"tally/internal/audit"
	auditmetrics "tally/internal/audit/metrics"
	auditpg "tally/internal/audit/store/postgres"
	"tally/internal/events"
	"tally/internal/events/kafka"
	"tally/internal/ledger"
	ledgermetrics "tally/internal/ledger/metrics"
	ledgerpg "tally/internal/ledger/store/postgres"
	"tally/internal/platform/config"
	"tally/internal/platform/httpserver"
	"tally/internal/platform/logger"
	"tally/internal/platform/otel"
	platformredis "tally/internal/platform/redis"
	"tally/internal/retention"
	retentionmetrics "tally/internal/retention/metrics"
	domain "tally/pkg/domain"
)

// main wires configuration, storage, the event bus, and the retention
// scheduler, then serves the operational HTTP surface (health and metrics).
// Domain transport is the job of the services embedding this core.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.Environment)

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := otel.Setup(ctx, "tally", cfg.OTelEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = otelShutdown(shutdownCtx)
	}()

	db, err := sql.Open("postgres", cfg.PostgresURL)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		return err
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Stores.
	ledgerStore := ledgerpg.New(db)
	auditStore := auditpg.New(db)
	analyticsStore := analyticspg.New(db)
	for _, ensure := range []func(context.Context) error{
		ledgerStore.EnsureSchema,
		auditStore.EnsureSchema,
		analyticsStore.EnsureSchema,
	} {
		if err := ensure(ctx); err != nil {
			return err
		}
	}

	// Audit trail plus its async append worker.
	auditMetrics := auditmetrics.New()
	trail := audit.NewTrail(auditStore,
		audit.WithLogger(log),
		audit.WithMetrics(auditMetrics))
	auditWorker := audit.NewWorker(trail, log, auditMetrics)

	// Analytics sink.
	tracker := analytics.NewService(analyticsStore,
		analytics.NewHasher(cfg.HashSecret),
		cfg.PIIMode,
		analytics.WithLogger(log),
		analytics.WithMetrics(analyticsmetrics.New()),
		analytics.WithEnvironment(cfg.Environment))

	// Event bus: audit before analytics so the trail is the first consumer
	// of every award.
	bus := events.NewBus(events.WithLogger(log))
	analyticsTracker := analytics.NewTracker(tracker, log)
	bus.Subscribe(events.KindPointsEarned, audit.NewRecorder(auditWorker))
	bus.Subscribe(events.KindPointsEarned, analyticsTracker)
	bus.Subscribe(events.KindLevelUp, analyticsTracker)

	if len(cfg.KafkaBrokers) > 0 {
		sink, err := kafka.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return err
		}
		defer sink.Close()
		bus.Subscribe(events.KindPointsEarned, sink)
		bus.Subscribe(events.KindLevelUp, sink)
	}

	// Ledger.
	points := ledger.NewService(
		ledgerpg.NewUnitOfWork(db, ledgerStore),
		ledgerStore,
		ledger.WithPublisher(bus),
		ledger.WithLogger(log),
		ledger.WithMetrics(ledgermetrics.New()))

	// Retention scheduler; Redis lock when available, in-process otherwise.
	var jobLock retention.JobLock = retention.NewMemoryLock()
	if redisClient != nil {
		jobLock = retention.NewRedisLock(redisClient.Client)
	}
	scheduler := retention.NewScheduler(trail, tracker, jobLock,
		cfg.AuditRetention, cfg.AnalyticsRetention,
		retention.WithInterval(cfg.RetentionInterval),
		retention.WithDryRun(cfg.RetentionDryRun),
		retention.WithLogger(log),
		retention.WithMetrics(retentionmetrics.New()))

	srv := httpserver.New(cfg.Addr, newRouter(db, redisClient, points))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return bus.Run(ctx) })
	g.Go(func() error { return auditWorker.Run(ctx) })
	g.Go(func() error {
		scheduler.Run(ctx)
		return nil
	})
	g.Go(func() error {
		log.Info("starting tally", "addr", cfg.Addr, "env", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func newRouter(db *sql.DB, redisClient *platformredis.Client, points *ledger.Service) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/readyz", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			http.Error(w, "postgres unavailable", http.StatusServiceUnavailable)
			return
		}
		if redisClient != nil {
			if err := redisClient.Health(ctx); err != nil {
				http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", promhttp.Handler())

	// Operator-facing integrity check: reports drift between the balance
	// accumulator and the transaction-log sum for one user.
	r.Get("/internal/reconcile/{userID}", func(w http.ResponseWriter, req *http.Request) {
		userID, err := domain.ParseUserID(chi.URLParam(req, "userID"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		drift, err := points.ReconcileBalance(req.Context(), userID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"user_id": userID.String(),
			"drift":   drift,
		})
	})

	return r
}
