package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ops/internal/messaging/kafka"
)

// Реплей событий заказов из ops.dlq.
//
// В DLQ попадают записи двух видов:
//   - конверт outbox-диспетчера: событие заказа, которое не удалось
//     опубликовать после всех попыток;
//   - запись consumer-а: сырое сообщение, обработка которого провалилась.
//
// Утилита разворачивает обе формы обратно в исходное событие и публикует
// его в топик по event_type: события fulfillment идут в
// ops.fulfillment.events, остальные — в ops.order.events.
// По умолчанию — dry-run, публикация только с флагом -execute.

type settings struct {
	brokers     []string
	sourceTopic string
	orderID     string
	limit       int
	execute     bool
	fromNewest  bool
	idleTimeout time.Duration
}

// failedConsumerRecord — форма, которую пишет в DLQ kafka.Consumer.
type failedConsumerRecord struct {
	OriginalTopic string `json:"original_topic"`
	OriginalKey   string `json:"original_key"`
	OriginalValue string `json:"original_value"`
}

// deadLetteredOutboxRecord — payload конверта, который пишет outbox-диспетчер.
type deadLetteredOutboxRecord struct {
	OutboxID      string          `json:"outbox_id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
}

// dlqEnvelope — внешний конверт сообщения в топике DLQ.
type dlqEnvelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
}

// orderEvent — конверт, в котором событие возвращается в рабочий топик.
type orderEvent struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// replayCandidate — событие, готовое к публикации.
type replayCandidate struct {
	topic   string
	orderID string
	key     string
	value   []byte
}

type replayTotals struct {
	scanned  int
	replayed int
	skipped  int
	filtered int
}

func (t *replayTotals) add(other replayTotals) {
	t.scanned += other.scanned
	t.replayed += other.replayed
	t.skipped += other.skipped
	t.filtered += other.filtered
}

type offsetLookup interface {
	GetOffset(topic string, partition int32, time int64) (int64, error)
	Partitions(topic string) ([]int32, error)
	Close() error
}

type partitionStream interface {
	Messages() <-chan *sarama.ConsumerMessage
	Errors() <-chan *sarama.ConsumerError
	Close() error
}

type streamSource interface {
	ConsumePartition(topic string, partition int32, offset int64) (partitionStream, error)
	Close() error
}

type eventSink interface {
	SendMessage(msg *sarama.ProducerMessage) (partition int32, offset int64, err error)
	Close() error
}

type saramaStreamSource struct {
	consumer sarama.Consumer
}

func (s saramaStreamSource) ConsumePartition(topic string, partition int32, offset int64) (partitionStream, error) {
	pc, err := s.consumer.ConsumePartition(topic, partition, offset)
	if err != nil {
		return nil, err
	}
	return pc, nil
}

func (s saramaStreamSource) Close() error {
	if s.consumer == nil {
		return nil
	}
	return s.consumer.Close()
}

var connectKafka = func(cfg settings) (offsetLookup, streamSource, eventSink, error) {
	consumerConfig := sarama.NewConfig()
	consumerConfig.Consumer.Return.Errors = true

	client, err := sarama.NewClient(cfg.brokers, consumerConfig)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create kafka client: %w", err)
	}

	rawConsumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, nil, nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	source := saramaStreamSource{consumer: rawConsumer}

	if !cfg.execute {
		return client, source, nil, nil
	}

	producerConfig := sarama.NewConfig()
	producerConfig.Producer.RequiredAcks = sarama.WaitForAll
	producerConfig.Producer.Retry.Max = 5
	producerConfig.Producer.Return.Successes = true
	producerConfig.Producer.Compression = sarama.CompressionSnappy
	producerConfig.Producer.Idempotent = true
	producerConfig.Net.MaxOpenRequests = 1

	producer, err := sarama.NewSyncProducer(cfg.brokers, producerConfig)
	if err != nil {
		_ = source.Close()
		_ = client.Close()
		return nil, nil, nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return client, source, producer, nil
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)

	cfg, err := readSettings()
	if err != nil {
		fail("%v", err)
	}

	if err := run(context.Background(), cfg); err != nil {
		fail("dlq replay failed: %v", err)
	}
}

func readSettings() (settings, error) {
	var (
		brokersRaw string
		cfg        settings
	)

	flag.StringVar(&brokersRaw, "brokers", "", "Kafka brokers as comma-separated list (fallback: OPS_KAFKA_BROKERS)")
	flag.StringVar(&cfg.sourceTopic, "source-topic", kafka.TopicDeadLetterQueue, "DLQ topic to scan")
	flag.StringVar(&cfg.orderID, "order-id", "", "replay only events of this order (empty = all)")
	flag.IntVar(&cfg.limit, "limit", 100, "max number of DLQ messages to scan")
	flag.BoolVar(&cfg.execute, "execute", false, "publish replays; default is dry-run")
	flag.BoolVar(&cfg.fromNewest, "from-newest", false, "scan latest messages first (bounded by limit)")
	flag.DurationVar(&cfg.idleTimeout, "idle-timeout", 2*time.Second, "idle timeout per partition")
	flag.Parse()

	if strings.TrimSpace(brokersRaw) == "" {
		brokersRaw = os.Getenv("OPS_KAFKA_BROKERS")
	}

	for _, chunk := range strings.Split(brokersRaw, ",") {
		if broker := strings.TrimSpace(chunk); broker != "" {
			cfg.brokers = append(cfg.brokers, broker)
		}
	}
	if len(cfg.brokers) == 0 {
		return settings{}, fmt.Errorf("kafka brokers are required (-brokers or OPS_KAFKA_BROKERS)")
	}
	if strings.TrimSpace(cfg.sourceTopic) == "" {
		return settings{}, fmt.Errorf("source-topic is required")
	}
	if cfg.limit <= 0 {
		return settings{}, fmt.Errorf("limit must be > 0")
	}
	if cfg.idleTimeout <= 0 {
		return settings{}, fmt.Errorf("idle-timeout must be > 0")
	}
	cfg.orderID = strings.TrimSpace(cfg.orderID)
	return cfg, nil
}

func run(ctx context.Context, cfg settings) error {
	log.WithFields(log.Fields{
		"source_topic": cfg.sourceTopic,
		"order_id":     cfg.orderID,
		"limit":        cfg.limit,
		"execute":      cfg.execute,
	}).Info("starting dlq replay")

	lookup, source, sink, err := connectKafka(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if sink != nil {
			_ = sink.Close()
		}
		if source != nil {
			_ = source.Close()
		}
		if lookup != nil {
			_ = lookup.Close()
		}
	}()

	return replayAll(ctx, cfg, lookup, source, sink)
}

func replayAll(ctx context.Context, cfg settings, lookup offsetLookup, source streamSource, sink eventSink) error {
	if lookup == nil || source == nil {
		return fmt.Errorf("kafka client and consumer are required")
	}
	if cfg.execute && sink == nil {
		return fmt.Errorf("producer is required in execute mode")
	}

	partitions, err := lookup.Partitions(cfg.sourceTopic)
	if err != nil {
		return fmt.Errorf("get partitions for topic %s: %w", cfg.sourceTopic, err)
	}
	if len(partitions) == 0 {
		log.WithField("topic", cfg.sourceTopic).Warn("dlq topic has no partitions")
		return nil
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })

	var totals replayTotals
	for _, partition := range partitions {
		if totals.scanned >= cfg.limit {
			break
		}
		stats, err := drainPartition(ctx, cfg, lookup, source, sink, partition, cfg.limit-totals.scanned)
		if err != nil {
			return err
		}
		totals.add(stats)
	}

	mode := "dry-run"
	if cfg.execute {
		mode = "execute"
	}
	log.WithFields(log.Fields{
		"mode":     mode,
		"scanned":  totals.scanned,
		"replayed": totals.replayed,
		"skipped":  totals.skipped,
		"filtered": totals.filtered,
	}).Info("dlq replay finished")
	return nil
}

func drainPartition(
	ctx context.Context,
	cfg settings,
	lookup offsetLookup,
	source streamSource,
	sink eventSink,
	partition int32,
	limit int,
) (replayTotals, error) {
	var totals replayTotals
	if limit <= 0 {
		return totals, nil
	}

	oldest, err := lookup.GetOffset(cfg.sourceTopic, partition, sarama.OffsetOldest)
	if err != nil {
		return totals, fmt.Errorf("get oldest offset for partition %d: %w", partition, err)
	}
	newest, err := lookup.GetOffset(cfg.sourceTopic, partition, sarama.OffsetNewest)
	if err != nil {
		return totals, fmt.Errorf("get newest offset for partition %d: %w", partition, err)
	}
	if newest <= oldest {
		return totals, nil
	}

	start := oldest
	if cfg.fromNewest {
		if start = newest - int64(limit); start < oldest {
			start = oldest
		}
	}

	stream, err := source.ConsumePartition(cfg.sourceTopic, partition, start)
	if err != nil {
		return totals, fmt.Errorf("consume partition %d: %w", partition, err)
	}
	defer func() { _ = stream.Close() }()

	idle := time.NewTimer(cfg.idleTimeout)
	defer idle.Stop()

	for totals.scanned < limit {
		select {
		case <-ctx.Done():
			return totals, ctx.Err()
		case err := <-stream.Errors():
			if err != nil {
				return totals, fmt.Errorf("partition %d consumer error: %w", partition, err)
			}
		case msg, ok := <-stream.Messages():
			if !ok || msg == nil {
				return totals, nil
			}

			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(cfg.idleTimeout)

			if msg.Offset >= newest {
				return totals, nil
			}
			totals.scanned++

			candidate, ok, err := resolveCandidate(msg)
			if err != nil {
				totals.skipped++
				log.WithError(err).WithFields(log.Fields{
					"partition": msg.Partition,
					"offset":    msg.Offset,
				}).Warn("skip malformed dlq message")
				continue
			}
			if !ok {
				totals.skipped++
				continue
			}
			if cfg.orderID != "" && candidate.orderID != cfg.orderID {
				totals.filtered++
				continue
			}

			if cfg.execute {
				if err := publishCandidate(sink, candidate); err != nil {
					return totals, fmt.Errorf("publish replay message: %w", err)
				}
			} else {
				log.WithFields(log.Fields{
					"partition":    msg.Partition,
					"offset":       msg.Offset,
					"target_topic": candidate.topic,
					"order_id":     candidate.orderID,
				}).Info("dlq replay candidate")
			}
			totals.replayed++

			if msg.Offset+1 >= newest {
				return totals, nil
			}
		case <-idle.C:
			return totals, nil
		}
	}
	return totals, nil
}

// topicForEventType выбирает рабочий топик для реплея по типу события.
func topicForEventType(eventType string) string {
	if eventType == string(kafka.EventTypeFulfillmentRequested) {
		return kafka.TopicFulfillmentEvents
	}
	return kafka.TopicOrderEvents
}

// resolveCandidate разворачивает DLQ-сообщение в исходное событие заказа.
// Второй результат false означает, что форма сообщения не распознана.
func resolveCandidate(msg *sarama.ConsumerMessage) (replayCandidate, bool, error) {
	// Форма consumer-а содержит сырое сообщение и исходный топик.
	var failed failedConsumerRecord
	if err := json.Unmarshal(msg.Value, &failed); err == nil && failed.OriginalValue != "" {
		topic := strings.TrimSpace(failed.OriginalTopic)
		if topic == "" {
			topic = kafka.TopicOrderEvents
		}
		return replayCandidate{
			topic:   topic,
			orderID: failed.OriginalKey,
			key:     failed.OriginalKey,
			value:   []byte(failed.OriginalValue),
		}, true, nil
	}

	var envelope dlqEnvelope
	if err := json.Unmarshal(msg.Value, &envelope); err != nil || len(envelope.Payload) == 0 {
		return replayCandidate{}, false, nil
	}

	var record deadLetteredOutboxRecord
	if err := json.Unmarshal(envelope.Payload, &record); err != nil {
		return replayCandidate{}, false, fmt.Errorf("decode dead-lettered outbox record: %w", err)
	}
	if len(record.Payload) == 0 {
		return replayCandidate{}, false, fmt.Errorf("dead-lettered record has no original event payload")
	}

	event := orderEvent{
		ID:            fallback(record.OutboxID, envelope.ID),
		AggregateType: fallback(record.AggregateType, envelope.AggregateType),
		AggregateID:   fallback(record.AggregateID, envelope.AggregateID),
		EventType:     fallback(record.EventType, envelope.EventType),
		Payload:       record.Payload,
		PublishedAt:   time.Now().UTC(),
	}
	encoded, err := json.Marshal(event)
	if err != nil {
		return replayCandidate{}, false, fmt.Errorf("encode replay event: %w", err)
	}

	key := event.AggregateID
	if key == "" {
		key = event.ID
	}
	return replayCandidate{
		topic:   topicForEventType(event.EventType),
		orderID: event.AggregateID,
		key:     key,
		value:   encoded,
	}, true, nil
}

func publishCandidate(sink eventSink, candidate replayCandidate) error {
	if sink == nil {
		return fmt.Errorf("producer is nil")
	}
	_, _, err := sink.SendMessage(&sarama.ProducerMessage{
		Topic:     candidate.topic,
		Key:       sarama.StringEncoder(candidate.key),
		Value:     sarama.ByteEncoder(candidate.value),
		Timestamp: time.Now().UTC(),
	})
	return err
}

func fallback(value, alt string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return alt
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
