package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
)

// EventType определяет тип события
type EventType string

const (
	// Order события
	EventTypeOrderCreated   EventType = "order.created"
	EventTypeOrderFulfilled EventType = "order.fulfilled"

	// Fulfillment события
	EventTypeFulfillmentRequested EventType = "fulfillment.requested"
)

// Topics для Kafka
const (
	TopicOrderEvents       = "ops.order.events"
	TopicFulfillmentEvents = "ops.fulfillment.events"
	TopicDeadLetterQueue   = "ops.dlq" // Dead Letter Queue для failed messages
)

// Kafka headers для retry логики
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// OrderEvent представляет событие заказа
type OrderEvent struct {
	EventType       EventType              `json:"event_type"`
	OrderID         int64                  `json:"order_id"`
	CustomerID      int64                  `json:"customer_id"`
	TotalPriceMinor int64                  `json:"total_price_minor"`
	Timestamp       time.Time              `json:"timestamp"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
}

// FulfillmentEvent представляет команду на выполнение заказа
type FulfillmentEvent struct {
	EventType EventType `json:"event_type"`
	OrderID   int64     `json:"order_id"`
	Timestamp time.Time `json:"timestamp"`
}

// NewOrderEvent создает новое событие заказа
func NewOrderEvent(eventType EventType, orderID, customerID, totalPriceMinor int64, metadata map[string]interface{}) *OrderEvent {
	return &OrderEvent{
		EventType:       eventType,
		OrderID:         orderID,
		CustomerID:      customerID,
		TotalPriceMinor: totalPriceMinor,
		Timestamp:       time.Now(),
		Metadata:        metadata,
	}
}

// ParseOrderEvent парсит OrderEvent из сообщения
func ParseOrderEvent(message *sarama.ConsumerMessage) (*OrderEvent, error) {
	var event OrderEvent
	if err := json.Unmarshal(message.Value, &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal order event: %w", err)
	}
	return &event, nil
}

// ParseFulfillmentEvent парсит FulfillmentEvent из сообщения
func ParseFulfillmentEvent(message *sarama.ConsumerMessage) (*FulfillmentEvent, error) {
	var event FulfillmentEvent
	if err := json.Unmarshal(message.Value, &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal fulfillment event: %w", err)
	}
	return &event, nil
}
