package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ops/internal/domain"
)

var (
	dispatchResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ops_outbox_dispatch_total",
		Help: "Результаты доставки outbox-записей заказов в брокер",
	}, []string{"result"})
	backlogSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ops_outbox_backlog_size",
		Help: "Количество записей заказов, ожидающих публикации",
	})
	backlogOldestAge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ops_outbox_backlog_oldest_age_seconds",
		Help: "Возраст самой старой неопубликованной записи",
	})
)

// Config задаёт параметры цикла доставки. Нулевые значения заменяются
// значениями по умолчанию, отрицательный RetryDelay отключает паузы.
type Config struct {
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
	RetryDelay   time.Duration
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RetryDelay < 0 {
		c.RetryDelay = 0
	}
	return c
}

// Dispatcher доносит события order.created/order.fulfilled из transactional
// outbox до брокера. Запись, которую не удалось опубликовать за MaxAttempts
// попыток, уходит в dead letter (если он настроен) и помечается failed.
type Dispatcher struct {
	outbox     domain.OutboxRepository
	broker     domain.OutboxPublisher
	deadLetter domain.OutboxPublisher
	cfg        Config
	logger     *log.Entry
}

// NewDispatcher собирает диспетчер. deadLetter может быть nil — тогда
// неудачные записи только помечаются failed и остаются в хранилище.
func NewDispatcher(
	outboxRepo domain.OutboxRepository,
	broker domain.OutboxPublisher,
	deadLetter domain.OutboxPublisher,
	cfg Config,
	logger *log.Entry,
) *Dispatcher {
	if logger == nil {
		logger = log.WithField("component", "outbox-dispatcher")
	}
	return &Dispatcher{
		outbox:     outboxRepo,
		broker:     broker,
		deadLetter: deadLetter,
		cfg:        cfg.withDefaults(),
		logger:     logger,
	}
}

// Run крутит цикл доставки до отмены ctx. Первый проход выполняется сразу,
// не дожидаясь тика.
func (d *Dispatcher) Run(ctx context.Context) {
	if d.outbox == nil || d.broker == nil {
		d.logger.Warn("outbox dispatcher disabled: no repository or broker")
		return
	}

	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	d.Flush(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Flush(ctx)
		}
	}
}

// Flush забирает один батч pending-записей и доставляет его.
func (d *Dispatcher) Flush(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	d.observeBacklog()

	pending, err := d.outbox.PullPending(d.cfg.BatchSize)
	if err != nil {
		d.logger.WithError(err).Warn("pull pending outbox records failed")
		return
	}

	for _, record := range pending {
		if ctx.Err() != nil {
			return
		}
		d.deliver(ctx, record)
	}

	if len(pending) > 0 {
		d.observeBacklog()
	}
}

// deliver публикует запись с повторами и решает её судьбу: sent, либо
// dead letter + failed.
func (d *Dispatcher) deliver(ctx context.Context, record domain.OutboxMessage) {
	err := d.publishWithRetry(ctx, record)
	if err == nil {
		if markErr := d.outbox.MarkSent(record.ID); markErr != nil {
			d.logger.WithError(markErr).WithField("outbox_id", record.ID).Warn("mark sent failed")
		}
		return
	}

	entry := d.logger.WithError(err).WithFields(log.Fields{
		"outbox_id": record.ID,
		"order_id":  record.AggregateID,
		"event":     record.EventType,
	})
	entry.Error("outbox record exhausted publish attempts")
	dispatchResults.WithLabelValues("failed").Inc()

	if dlqErr := d.toDeadLetter(record, err); dlqErr != nil {
		entry.WithError(dlqErr).Warn("dead letter publish failed")
		dispatchResults.WithLabelValues("dead_letter_failed").Inc()
	}
	if markErr := d.outbox.MarkFailed(record.ID); markErr != nil {
		entry.WithError(markErr).Warn("mark failed failed")
	}
}

func (d *Dispatcher) publishWithRetry(ctx context.Context, record domain.OutboxMessage) error {
	var lastErr error
	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		if lastErr = d.broker.Publish(record); lastErr == nil {
			dispatchResults.WithLabelValues("sent").Inc()
			return nil
		}
		dispatchResults.WithLabelValues("retry").Inc()

		if attempt == d.cfg.MaxAttempts {
			break
		}
		if delay := backoffDelay(d.cfg.RetryDelay, attempt); delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return fmt.Errorf("publish failed after %d attempts: %w", d.cfg.MaxAttempts, lastErr)
}

// deadLetterRecord — то, что уезжает в DLQ вместо исходного payload.
// Исходное событие заказа сохраняется вложенным, чтобы его можно было
// переиграть инструментом dlq-reprocess.
type deadLetterRecord struct {
	OutboxID       string          `json:"outbox_id"`
	AggregateType  string          `json:"aggregate_type"`
	AggregateID    string          `json:"aggregate_id"`
	EventType      string          `json:"event_type"`
	Payload        json.RawMessage `json:"payload"`
	PublishError   string          `json:"publish_error"`
	DLQPublishedAt string          `json:"dlq_published_at"`
}

func (d *Dispatcher) toDeadLetter(record domain.OutboxMessage, cause error) error {
	if d.deadLetter == nil {
		return nil
	}

	payload, err := json.Marshal(deadLetterRecord{
		OutboxID:       record.ID,
		AggregateType:  record.AggregateType,
		AggregateID:    record.AggregateID,
		EventType:      record.EventType,
		Payload:        json.RawMessage(record.Payload),
		PublishError:   cause.Error(),
		DLQPublishedAt: time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("marshal dead letter record: %w", err)
	}

	wrapped := record
	wrapped.Payload = payload
	if err := d.deadLetter.Publish(wrapped); err != nil {
		return fmt.Errorf("publish dead letter: %w", err)
	}
	return nil
}

func (d *Dispatcher) observeBacklog() {
	stats, err := d.outbox.Stats()
	if err != nil {
		d.logger.WithError(err).Warn("collect outbox backlog stats failed")
		return
	}

	backlogSize.Set(float64(stats.PendingCount))

	age := 0.0
	if stats.PendingCount > 0 && !stats.OldestPendingAt.IsZero() {
		if age = time.Since(stats.OldestPendingAt).Seconds(); age < 0 {
			age = 0
		}
	}
	backlogOldestAge.Set(age)
}

// backoffDelay удваивает базовую паузу на каждой попытке: base, 2*base, 4*base...
func backoffDelay(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	delay := base
	for i := 1; i < attempt; i++ {
		if delay > time.Hour {
			return time.Hour
		}
		delay *= 2
	}
	return delay
}
