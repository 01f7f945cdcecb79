package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/twmb/franz-go/pkg/kgo"

	"amlcore/internal/operations/classification"
	"amlcore/internal/operations/currency"
	"amlcore/internal/operations/folio"
	"amlcore/internal/operations/handler"
	opsmetrics "amlcore/internal/operations/metrics"
	"amlcore/internal/operations/models"
	"amlcore/internal/operations/service"
	"amlcore/internal/operations/store"
	"amlcore/internal/platform/config"
	"amlcore/internal/platform/kafka"
	"amlcore/internal/platform/postgres"
	redisclient "amlcore/internal/platform/redis"
	httptransport "amlcore/internal/transport/http"
	"amlcore/pkg/platform/audit"
	"amlcore/pkg/platform/audit/forwarder"
	auditpg "amlcore/pkg/platform/audit/store/postgres"
	"amlcore/pkg/platform/middleware/auth"
)

const kafkaFlushTimeout = 5 * time.Second

// app owns the long-lived resources of one serve run.
type app struct {
	router  http.Handler
	closers []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
}

// build wires the operations feature over its infrastructure. Redis and
// Kafka are optional; without them the rate cache is in-process and audit
// entries are not forwarded.
func build(ctx context.Context, cfg config.Server, log *slog.Logger, reg prometheus.Registerer, migrateFirst bool) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, db.Close)
	if migrateFirst {
		if err := postgres.Migrate(db, log); err != nil {
			return nil, err
		}
	}

	m := opsmetrics.New(reg)

	normalizer, checks, err := buildNormalizer(ctx, cfg, log, m, a)
	if err != nil {
		return nil, err
	}
	checks["database"] = db.PingContext

	engine, err := classification.NewEngine(classification.Config{
		ReportingCurrency:   cfg.Rates.ReportingCurrency,
		RelevantThreshold:   cfg.Classification.RelevantThreshold,
		WindowDays:          cfg.Classification.WindowDays,
		OccurrenceThreshold: cfg.Classification.OccurrenceThreshold,
		Location:            cfg.Location,
	})
	if err != nil {
		return nil, fmt.Errorf("classification engine: %w", err)
	}

	sequencer, err := folio.NewSequencer(
		folio.WithPrefix(cfg.Folio.Prefix),
		folio.WithMaxAttempts(cfg.Folio.MaxAttempts),
		folio.WithRetryBase(cfg.Folio.RetryBase),
		folio.WithRetryHook(func(attempt int, err error) {
			m.IncrementFolioRetry()
			log.Warn("folio allocation conflict, retrying", "attempt", attempt, "error", err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("folio sequencer: %w", err)
	}

	recorder, err := buildRecorder(ctx, cfg, db, log, reg, a)
	if err != nil {
		return nil, err
	}

	svc := service.New(
		store.NewPostgres(db),
		store.NewPostgresTx(db, 0),
		sequencer,
		normalizer,
		engine,
		recorder,
		service.WithLogger(log),
		service.WithMetrics(m),
		service.WithLocation(cfg.Location),
		service.WithPageSize(cfg.PageSize),
	)

	a.router = httptransport.NewRouter(httptransport.Config{
		Logger:    log,
		Validator: auth.NewTokenService(cfg.Auth.JWTSigningKey, cfg.Auth.Issuer),
		Checks:    checks,
		Features:  []httptransport.Registrar{handler.New(svc, log)},
	})
	return a, nil
}

func buildNormalizer(ctx context.Context, cfg config.Server, log *slog.Logger, m *opsmetrics.Metrics, a *app) (*currency.Normalizer, map[string]httptransport.HealthCheck, error) {
	checks := map[string]httptransport.HealthCheck{}

	fallback, err := currency.ParseFallbackRates(cfg.Rates.FallbackRates)
	if err != nil {
		return nil, nil, fmt.Errorf("fallback rates: %w", err)
	}

	var cache currency.Cache = currency.NewMemoryCache(2 * cfg.Rates.CacheTTL)
	rc, err := redisclient.New(ctx, cfg.Redis)
	if err != nil {
		return nil, nil, err
	}
	if rc != nil {
		a.closers = append(a.closers, rc.Close)
		cache = currency.NewRedisCache(rc.Client, cfg.Rates.ReportingCurrency, 2*cfg.Rates.CacheTTL)
		checks["redis"] = rc.Health
	}

	supplier := currency.NewHTTPSupplier(cfg.Rates.SupplierURL, cfg.Rates.ReportingCurrency,
		currency.WithRateLimit(cfg.Rates.SupplierRPS, 1),
	)

	n, err := currency.NewNormalizer(cfg.Rates.ReportingCurrency, fallback,
		currency.WithSupplier(supplier),
		currency.WithCache(cache),
		currency.WithStaleness(cfg.Rates.CacheTTL),
		currency.WithSupplierTimeout(cfg.Rates.SupplierTimeout),
		currency.WithLogger(log),
		currency.WithProvenanceHook(func(p models.RateProvenance) {
			m.IncrementRateProvenance(string(p))
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("currency normalizer: %w", err)
	}
	return n, checks, nil
}

func buildRecorder(ctx context.Context, cfg config.Server, db *sql.DB, log *slog.Logger, reg prometheus.Registerer, a *app) (*audit.Recorder, error) {
	am := audit.NewMetrics(reg)
	opts := []audit.Option{
		audit.WithLogger(log),
		audit.WithMetrics(am),
	}

	client, err := kafka.New(ctx, cfg.Kafka)
	if err != nil {
		return nil, err
	}
	if client != nil {
		a.closers = append(a.closers, closeKafka(client))
		if err := kafka.EnsureTopic(ctx, client, cfg.Kafka.AuditTopic, 3, 1); err != nil {
			log.Warn("audit topic not ensured", "topic", cfg.Kafka.AuditTopic, "error", err)
		}
		opts = append(opts, audit.WithForwarder(forwarder.New(client, cfg.Kafka.AuditTopic,
			forwarder.WithDeliveryHook(func(e audit.Entry, err error) {
				am.IncForwardFailures()
				log.Warn("audit entry persisted but not delivered",
					"audit_entry_id", e.ID,
					"operation_id", e.OperationID,
					"error", err,
				)
			}),
		)))
	}

	return audit.NewRecorder(auditpg.New(db), opts...), nil
}

func closeKafka(client *kgo.Client) func() error {
	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), kafkaFlushTimeout)
		defer cancel()
		err := client.Flush(ctx)
		client.Close()
		if errors.Is(err, context.DeadlineExceeded) {
			return nil
		}
		return err
	}
}
