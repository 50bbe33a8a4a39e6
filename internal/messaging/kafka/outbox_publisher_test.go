package kafka

import (
	"encoding/json"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ops/internal/domain"
)

func newMockedProducer(t *testing.T) (*Producer, *mocks.SyncProducer) {
	t.Helper()

	mockProducer := mocks.NewSyncProducer(t, nil)
	producer := &Producer{
		sync:   mockProducer,
		logger: log.WithField("component", "kafka-test"),
	}
	return producer, mockProducer
}

func TestOutboxPublisher_WrapsMessageInOrderEnvelope(t *testing.T) {
	t.Parallel()

	producer, mockProducer := newMockedProducer(t)
	mockProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != TopicOrderEvents {
			t.Errorf("expected topic %q, got %q", TopicOrderEvents, msg.Topic)
		}

		key, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != "42" {
			t.Errorf("expected partition key %q, got %q", "42", key)
		}

		value, err := msg.Value.Encode()
		if err != nil {
			return err
		}
		var envelope orderEventEnvelope
		if err := json.Unmarshal(value, &envelope); err != nil {
			return err
		}
		if envelope.ID != "outbox-1" {
			t.Errorf("expected envelope id %q, got %q", "outbox-1", envelope.ID)
		}
		if envelope.EventType != string(EventTypeOrderCreated) {
			t.Errorf("expected event type %q, got %q", EventTypeOrderCreated, envelope.EventType)
		}
		if envelope.PublishedAt.IsZero() {
			t.Error("published_at should be set by the publisher")
		}

		var payload struct {
			OrderID         int64 `json:"order_id"`
			TotalPriceMinor int64 `json:"total_price_minor"`
		}
		if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
			return err
		}
		if payload.TotalPriceMinor != 30000 {
			t.Errorf("expected total 30000 in payload, got %d", payload.TotalPriceMinor)
		}
		return nil
	})

	publisher := NewOutboxPublisher(producer, "")

	err := publisher.Publish(domain.OutboxMessage{
		ID:            "outbox-1",
		AggregateType: "order",
		AggregateID:   "42",
		EventType:     string(EventTypeOrderCreated),
		Payload:       []byte(`{"order_id":42,"total_price_minor":30000}`),
	})
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestOutboxPublisher_FallsBackToEnvelopeIDAsKey(t *testing.T) {
	t.Parallel()

	producer, mockProducer := newMockedProducer(t)
	mockProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		key, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != "outbox-2" {
			t.Errorf("expected fallback key %q, got %q", "outbox-2", key)
		}
		return nil
	})

	publisher := NewOutboxPublisher(producer, TopicOrderEvents)

	err := publisher.Publish(domain.OutboxMessage{
		ID:        "outbox-2",
		EventType: string(EventTypeOrderFulfilled),
		Payload:   []byte(`{"order_id":2}`),
	})
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestOutboxPublisher_PublishProducerError(t *testing.T) {
	t.Parallel()

	producer, mockProducer := newMockedProducer(t)
	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	publisher := NewOutboxPublisher(producer, TopicOrderEvents)

	err := publisher.Publish(domain.OutboxMessage{
		ID:            "outbox-3",
		AggregateType: "order",
		AggregateID:   "3",
		EventType:     string(EventTypeOrderFulfilled),
		Payload:       []byte(`{"order_id":3}`),
	})
	if err == nil {
		t.Fatal("expected publish error, got nil")
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestOutboxPublisher_PublishNilProducer(t *testing.T) {
	t.Parallel()

	publisher := NewOutboxPublisher(nil, TopicOrderEvents)
	if err := publisher.Publish(domain.OutboxMessage{ID: "outbox-4"}); err == nil {
		t.Fatal("expected error for nil producer")
	}
}
