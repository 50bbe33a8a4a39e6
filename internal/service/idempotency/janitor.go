package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ops/internal/domain"
)

var (
	purgeRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ops_idempotency_purge_runs_total",
		Help: "Idempotency purge runs grouped by result.",
	}, []string{"result"})
	purgedKeys = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ops_idempotency_purged_keys_total",
		Help: "Expired idempotency keys removed since start.",
	})
	lastPurgeSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ops_idempotency_last_purge_size",
		Help: "Keys removed during the most recent purge run.",
	})
)

// Config задает расписание и размер порции для Janitor.
// Нулевые значения заменяются умолчаниями.
type Config struct {
	Interval  time.Duration
	BatchSize int
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = 10 * time.Minute
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 500
	}
	return c
}

// Janitor периодически удаляет просроченные ключи идемпотентности,
// чтобы хранилище POST /orders не росло бесконечно.
type Janitor struct {
	repo   domain.IdempotencyRepository
	cfg    Config
	logger *log.Entry
}

// NewJanitor создает воркер очистки ключей идемпотентности.
func NewJanitor(repo domain.IdempotencyRepository, cfg Config, logger *log.Entry) *Janitor {
	if logger == nil {
		logger = log.WithField("component", "idempotency-janitor")
	}
	return &Janitor{
		repo:   repo,
		cfg:    cfg.withDefaults(),
		logger: logger,
	}
}

// Run выполняет очистку сразу и далее раз в Interval до отмены ctx.
func (j *Janitor) Run(ctx context.Context) {
	if j.repo == nil {
		j.logger.Warn("idempotency janitor is disabled: repo is nil")
		return
	}

	j.runOnce(ctx)

	ticker := time.NewTicker(j.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.runOnce(ctx)
		}
	}
}

func (j *Janitor) runOnce(ctx context.Context) {
	removed, err := j.Purge(ctx, time.Now().UTC())
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		purgeRuns.WithLabelValues("error").Inc()
		j.logger.WithError(err).Warn("idempotency purge failed")
		return
	}

	purgeRuns.WithLabelValues("ok").Inc()
	lastPurgeSize.Set(float64(removed))
	if removed > 0 {
		j.logger.WithField("removed", removed).Info("idempotency keys purged")
	}
}

// Purge удаляет записи с ttl <= before порциями BatchSize, пока
// хранилище возвращает полные порции. Возвращает число удаленных записей.
func (j *Janitor) Purge(ctx context.Context, before time.Time) (int, error) {
	if before.IsZero() {
		before = time.Now().UTC()
	}

	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		removed, err := j.repo.DeleteExpired(before, j.cfg.BatchSize)
		if err != nil {
			return total, err
		}

		total += removed
		if removed > 0 {
			purgedKeys.Add(float64(removed))
		}

		if removed < j.cfg.BatchSize {
			return total, nil
		}
	}
}
