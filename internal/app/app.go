package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	healthcheck "github.com/vladislavdragonenkov/ops/internal/health"
	"github.com/vladislavdragonenkov/ops/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/ops/internal/metrics"
	"github.com/vladislavdragonenkov/ops/internal/service/fulfillment"
	"github.com/vladislavdragonenkov/ops/internal/service/httpx"
	"github.com/vladislavdragonenkov/ops/internal/service/idempotency"
	"github.com/vladislavdragonenkov/ops/internal/service/order"
	"github.com/vladislavdragonenkov/ops/internal/service/outbox"
	"github.com/vladislavdragonenkov/ops/internal/version"
)

// Run запускает приложение и блокируется до отмены контекста или ошибки
// сервера. Воркеры outbox и очистки idempotency-ключей работают в фоне,
// Kafka опционален: без брокеров сервис остаётся полностью рабочим.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if deps.closeFn != nil {
		defer func() {
			if err := deps.closeFn(); err != nil {
				logger.WithError(err).Warn("failed to close storage")
			}
		}()
	}

	svc := order.NewService(
		deps.repo,
		deps.customerRepo,
		deps.productRepo,
		deps.outboxRepo,
		deps.timelineRepo,
		metrics.NewOrderMetrics(),
		logger.WithField("layer", "service"),
	)

	// Kafka producer (опционально).
	producer, err := initKafkaProducer(cfg.KafkaBrokers, logger)
	if err != nil {
		logger.Warn("continuing without kafka")
	}
	defer closeKafkaProducer(producer, logger)

	workersCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()

	// Outbox dispatcher доносит события заказов до Kafka.
	var outboxDone chan struct{}
	if producer != nil {
		dispatcher := outbox.NewDispatcher(
			deps.outboxRepo,
			kafka.NewOutboxPublisher(producer, kafka.TopicOrderEvents),
			kafka.NewOutboxPublisher(producer, kafka.TopicDeadLetterQueue),
			outbox.Config{
				PollInterval: cfg.OutboxPollInterval,
				BatchSize:    cfg.OutboxBatchSize,
				MaxAttempts:  cfg.OutboxMaxAttempts,
				RetryDelay:   cfg.OutboxRetryDelay,
			},
			logger.WithField("worker", "outbox"),
		)
		outboxDone = make(chan struct{})
		go func() {
			defer close(outboxDone)
			dispatcher.Run(workersCtx)
		}()
	}

	// Фоновая очистка протухших idempotency-ключей.
	janitor := idempotency.NewJanitor(
		deps.idempotencyRepo,
		idempotency.Config{
			Interval:  cfg.IdempotencyCleanupInterval,
			BatchSize: cfg.IdempotencyCleanupBatchSize,
		},
		logger.WithField("worker", "idempotency-janitor"),
	)
	cleanupDone := make(chan struct{})
	go func() {
		defer close(cleanupDone)
		janitor.Run(workersCtx)
	}()

	// Consumer событий fulfillment переводит заказы в состояние fulfilled.
	var consumer *kafka.Consumer
	if producer != nil && cfg.KafkaConsumerGroup != "" {
		handler := fulfillment.NewHandler(svc, logger.WithField("layer", "fulfillment"))
		consumer, err = kafka.NewConsumerWithDLQ(
			splitBrokers(cfg.KafkaBrokers),
			cfg.KafkaConsumerGroup,
			[]string{kafka.TopicFulfillmentEvents},
			handler.Handle,
			producer,
			3,
		)
		if err != nil {
			logger.WithError(err).Warn("failed to create fulfillment consumer, continuing without it")
			consumer = nil
		} else {
			go func() {
				if err := consumer.Start(workersCtx); err != nil {
					logger.WithError(err).Warn("fulfillment consumer stopped with error")
				}
			}()
		}
	}

	// HTTP health checks.
	healthHandler := healthcheck.NewHandler(version.GetVersion())
	if deps.storageCheck != nil {
		healthHandler.Register("storage", deps.storageCheck)
	}

	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	// API-сервер с идемпотентным созданием заказов.
	idempotencyMW := httpx.NewIdempotencyMiddleware(
		deps.idempotencyRepo,
		cfg.IdempotencyTTL,
		logger.WithField("component", "idempotency"),
	)
	router := httpx.NewRouter(httpx.NewHandler(svc, logger.WithField("layer", "http")), idempotencyMW)
	apiSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("HTTP API слушает %s", cfg.HTTPAddr)
		errCh <- apiSrv.ListenAndServe()
	}()

	shutdown := func() {
		shutdownHTTP(apiSrv, logger)
		shutdownHTTP(metricsSrv, logger)
		cancelWorkers()
		waitForWorker(outboxDone, logger, "outbox")
		waitForWorker(cleanupDone, logger, "idempotency-cleanup")
		if consumer != nil {
			if err := consumer.Stop(); err != nil {
				logger.WithError(err).Warn("failed to stop fulfillment consumer")
			}
		}
	}

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем сервис")
		shutdown()
		return ctx.Err()
	case err := <-errCh:
		shutdown()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// startMetricsServer запускает HTTP-обработчик /metrics для Prometheus.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/livez, %s/readyz", addr, addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}

// waitForWorker дожидается завершения фонового воркера с таймаутом.
func waitForWorker(done chan struct{}, logger *log.Entry, name string) {
	if done == nil {
		return
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		logger.Warnf("%s worker did not stop in time", name)
	}
}
