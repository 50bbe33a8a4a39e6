package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ops/internal/app"
	"github.com/vladislavdragonenkov/ops/internal/version"
)

// Имена переменных окружения сервиса.
const (
	envHTTPAddr    = "OPS_HTTP_ADDR"
	envMetricsAddr = "OPS_METRICS_ADDR"

	envStorageDriver       = "OPS_STORAGE_DRIVER"
	envPostgresDSN         = "OPS_POSTGRES_DSN"
	envPostgresAutoMigrate = "OPS_POSTGRES_AUTO_MIGRATE"

	envIdempotencyBackend          = "OPS_IDEMPOTENCY_BACKEND"
	envRedisAddr                   = "OPS_REDIS_ADDR"
	envIdempotencyTTL              = "OPS_IDEMPOTENCY_TTL"
	envIdempotencyCleanupInterval  = "OPS_IDEMPOTENCY_CLEANUP_INTERVAL"
	envIdempotencyCleanupBatchSize = "OPS_IDEMPOTENCY_CLEANUP_BATCH_SIZE"

	envOutboxPollInterval = "OPS_OUTBOX_POLL_INTERVAL"
	envOutboxBatchSize    = "OPS_OUTBOX_BATCH_SIZE"
	envOutboxMaxAttempts  = "OPS_OUTBOX_MAX_ATTEMPTS"
	envOutboxRetryDelay   = "OPS_OUTBOX_RETRY_DELAY"

	envKafkaBrokers       = "OPS_KAFKA_BROKERS"
	envKafkaConsumerGroup = "OPS_KAFKA_CONSUMER_GROUP"
)

// envLookup абстрагирует доступ к окружению для тестируемости.
type envLookup func(key string) (string, bool)

// setupLogger настраивает формат и уровень логирования для сервиса.
func setupLogger() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)
}

// readConfigFromEnv формирует конфигурацию, переопределяя значения по
// умолчанию переменными окружения. Некорректные значения не валят запуск:
// они сохраняют значение по умолчанию и попадают в список предупреждений.
func readConfigFromEnv(lookup envLookup) (app.Config, []string) {
	cfg := app.DefaultConfig()
	var warnings []string

	warn := func(key, raw string, err error) {
		warnings = append(warnings, fmt.Sprintf("%s=%q ignored: %v", key, raw, err))
	}

	if raw, ok := lookup(envHTTPAddr); ok && strings.TrimSpace(raw) != "" {
		cfg.HTTPAddr = strings.TrimSpace(raw)
	}
	if raw, ok := lookup(envMetricsAddr); ok && strings.TrimSpace(raw) != "" {
		cfg.MetricsAddr = strings.TrimSpace(raw)
	}
	if raw, ok := lookup(envStorageDriver); ok && strings.TrimSpace(raw) != "" {
		cfg.StorageDriver = strings.ToLower(strings.TrimSpace(raw))
	}
	if raw, ok := lookup(envPostgresDSN); ok && strings.TrimSpace(raw) != "" {
		cfg.PostgresDSN = strings.TrimSpace(raw)
	}
	if raw, ok := lookup(envPostgresAutoMigrate); ok {
		if value, err := parseBool(raw); err != nil {
			warn(envPostgresAutoMigrate, raw, err)
		} else {
			cfg.PostgresAutoMigrate = value
		}
	}
	if raw, ok := lookup(envIdempotencyBackend); ok && strings.TrimSpace(raw) != "" {
		cfg.IdempotencyBackend = strings.ToLower(strings.TrimSpace(raw))
	}
	if raw, ok := lookup(envRedisAddr); ok && strings.TrimSpace(raw) != "" {
		cfg.RedisAddr = strings.TrimSpace(raw)
	}
	if raw, ok := lookup(envIdempotencyTTL); ok {
		if value, err := parseDuration(raw, func(v time.Duration) bool { return v > 0 }, "must be > 0"); err != nil {
			warn(envIdempotencyTTL, raw, err)
		} else {
			cfg.IdempotencyTTL = value
		}
	}
	if raw, ok := lookup(envIdempotencyCleanupInterval); ok {
		if value, err := parseDuration(raw, func(v time.Duration) bool { return v > 0 }, "must be > 0"); err != nil {
			warn(envIdempotencyCleanupInterval, raw, err)
		} else {
			cfg.IdempotencyCleanupInterval = value
		}
	}
	if raw, ok := lookup(envIdempotencyCleanupBatchSize); ok {
		if value, err := parseInt(raw, func(v int) bool { return v > 0 }, "must be > 0"); err != nil {
			warn(envIdempotencyCleanupBatchSize, raw, err)
		} else {
			cfg.IdempotencyCleanupBatchSize = value
		}
	}
	if raw, ok := lookup(envOutboxPollInterval); ok {
		if value, err := parseDuration(raw, func(v time.Duration) bool { return v > 0 }, "must be > 0"); err != nil {
			warn(envOutboxPollInterval, raw, err)
		} else {
			cfg.OutboxPollInterval = value
		}
	}
	if raw, ok := lookup(envOutboxBatchSize); ok {
		if value, err := parseInt(raw, func(v int) bool { return v > 0 }, "must be > 0"); err != nil {
			warn(envOutboxBatchSize, raw, err)
		} else {
			cfg.OutboxBatchSize = value
		}
	}
	if raw, ok := lookup(envOutboxMaxAttempts); ok {
		if value, err := parseInt(raw, func(v int) bool { return v > 0 }, "must be > 0"); err != nil {
			warn(envOutboxMaxAttempts, raw, err)
		} else {
			cfg.OutboxMaxAttempts = value
		}
	}
	if raw, ok := lookup(envOutboxRetryDelay); ok {
		if value, err := parseDuration(raw, func(v time.Duration) bool { return v >= 0 }, "must be >= 0"); err != nil {
			warn(envOutboxRetryDelay, raw, err)
		} else {
			cfg.OutboxRetryDelay = value
		}
	}
	if raw, ok := lookup(envKafkaBrokers); ok {
		cfg.KafkaBrokers = strings.TrimSpace(raw)
	}
	if raw, ok := lookup(envKafkaConsumerGroup); ok && strings.TrimSpace(raw) != "" {
		cfg.KafkaConsumerGroup = strings.TrimSpace(raw)
	}

	return cfg, warnings
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "t", "true", "yes", "on":
		return true, nil
	case "0", "f", "false", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean value")
	}
}

func parseInt(raw string, valid func(int) bool, message string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid integer value")
	}
	if !valid(value) {
		return 0, errors.New(message)
	}
	return value, nil
}

func parseDuration(raw string, valid func(time.Duration) bool, message string) (time.Duration, error) {
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid duration value")
	}
	if !valid(value) {
		return 0, errors.New(message)
	}
	return value, nil
}

func main() {
	setupLogger()

	cfg, warnings := readConfigFromEnv(os.LookupEnv)
	for _, warning := range warnings {
		log.Warn(warning)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"http_addr":    cfg.HTTPAddr,
		"metrics_addr": cfg.MetricsAddr,
		"storage":      cfg.StorageDriver,
		"version":      version.String(),
	}).Info("запускаем order API")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("order API остановлен")
}
