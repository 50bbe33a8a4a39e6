package integration

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/vladislavdragonenkov/ops/internal/domain"
	"github.com/vladislavdragonenkov/ops/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/ops/internal/service/fulfillment"
	"github.com/vladislavdragonenkov/ops/internal/service/order"
	"github.com/vladislavdragonenkov/ops/internal/service/outbox"
	"github.com/vladislavdragonenkov/ops/internal/storage/memory"
)

// capturePublisher собирает опубликованные outbox-события вместо Kafka.
type capturePublisher struct {
	mu       sync.Mutex
	events   []domain.OutboxMessage
	failures int
}

func (p *capturePublisher) Publish(event domain.OutboxMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failures > 0 {
		p.failures--
		return errTransient
	}
	p.events = append(p.events, event)
	return nil
}

func (p *capturePublisher) published() []domain.OutboxMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.OutboxMessage(nil), p.events...)
}

var errTransient = &transientError{}

type transientError struct{}

func (*transientError) Error() string { return "broker temporarily unavailable" }

// OrderLifecycleTestSuite тестирует полный жизненный цикл заказов:
// создание, публикацию событий через outbox и выполнение по событию.
type OrderLifecycleTestSuite struct {
	suite.Suite
	store     *memory.Store
	service   *order.Service
	outbox    domain.OutboxRepository
	timeline  domain.TimelineRepository
	publisher *capturePublisher
	worker    *outbox.Dispatcher
	handler   *fulfillment.Handler

	customer domain.Customer
	laptop   domain.Product
	mouse    domain.Product
}

func (suite *OrderLifecycleTestSuite) SetupTest() {
	baseLogger := log.New()
	baseLogger.SetLevel(log.WarnLevel) // Уменьшаем шум в тестах
	logger := baseLogger.WithField("component", "integration-test")

	suite.store = memory.NewStore()
	suite.outbox = memory.NewOutboxRepository()
	suite.timeline = memory.NewTimelineRepository()
	suite.publisher = &capturePublisher{}

	suite.service = order.NewService(
		memory.NewOrderRepository(suite.store),
		memory.NewCustomerRepository(suite.store),
		memory.NewProductRepository(suite.store),
		suite.outbox,
		suite.timeline,
		nil,
		logger,
	)

	suite.worker = outbox.NewDispatcher(suite.outbox, suite.publisher, nil, outbox.Config{
		BatchSize:   10,
		MaxAttempts: 3,
		RetryDelay:  time.Millisecond,
	}, logger)

	suite.handler = fulfillment.NewHandler(suite.service, logger)

	suite.customer = suite.store.AddCustomer("John Doe")
	suite.laptop = suite.store.AddProduct("Laptop Pro", 199900)
	suite.mouse = suite.store.AddProduct("Wireless Mouse", 4999)
}

func (suite *OrderLifecycleTestSuite) TestSuccessfulOrderLifecycle() {
	ctx := context.Background()

	// 1. Создаём заказ
	created, err := suite.service.CreateOrder(ctx, suite.customer.ID, []int64{suite.laptop.ID, suite.mouse.ID})
	require.NoError(suite.T(), err)
	require.False(suite.T(), created.IsFulfilled)
	require.Equal(suite.T(), int64(204899), created.TotalPriceMinor()) // $1999.00 + $49.99

	// 2. Outbox worker публикует order.created
	suite.worker.Flush(ctx)
	events := suite.publisher.published()
	require.Len(suite.T(), events, 1)
	require.Equal(suite.T(), "order.created", events[0].EventType)

	var payload struct {
		OrderID         int64 `json:"order_id"`
		TotalPriceMinor int64 `json:"total_price_minor"`
	}
	require.NoError(suite.T(), json.Unmarshal(events[0].Payload, &payload))
	require.Equal(suite.T(), created.ID, payload.OrderID)
	require.Equal(suite.T(), int64(204899), payload.TotalPriceMinor)

	// 3. Внешний fulfillment-процесс присылает событие выполнения
	require.NoError(suite.T(), suite.handler.Handle(ctx, fulfillmentMessage(created.ID)))

	fulfilled, err := suite.service.GetOrder(ctx, created.ID)
	require.NoError(suite.T(), err)
	require.True(suite.T(), fulfilled.IsFulfilled)

	// 4. Проверяем timeline
	timeline := suite.service.Timeline(created.ID)
	require.GreaterOrEqual(suite.T(), len(timeline), 2)
	require.Equal(suite.T(), "OrderCreated", timeline[0].Type)
	require.Equal(suite.T(), "OrderFulfilled", timeline[len(timeline)-1].Type)

	// 5. После выполнения клиент может создать следующий заказ
	_, err = suite.service.CreateOrder(ctx, suite.customer.ID, []int64{suite.mouse.ID})
	require.NoError(suite.T(), err)
}

func (suite *OrderLifecycleTestSuite) TestSecondUnfulfilledOrderRejected() {
	ctx := context.Background()

	_, err := suite.service.CreateOrder(ctx, suite.customer.ID, []int64{suite.laptop.ID})
	require.NoError(suite.T(), err)

	_, err = suite.service.CreateOrder(ctx, suite.customer.ID, []int64{suite.mouse.ID})
	require.ErrorIs(suite.T(), err, domain.ErrUnfulfilledOrderExists)
}

func (suite *OrderLifecycleTestSuite) TestTotalReflectsCurrentPrices() {
	ctx := context.Background()

	created, err := suite.service.CreateOrder(ctx, suite.customer.ID, []int64{suite.mouse.ID})
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), int64(4999), created.TotalPriceMinor())

	require.NoError(suite.T(), suite.store.SetProductPrice(suite.mouse.ID, 5999))

	got, err := suite.service.GetOrder(ctx, created.ID)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), int64(5999), got.TotalPriceMinor())
}

func (suite *OrderLifecycleTestSuite) TestUnknownProductsDropped() {
	ctx := context.Background()

	created, err := suite.service.CreateOrder(ctx, suite.customer.ID, []int64{suite.laptop.ID, 9999})
	require.NoError(suite.T(), err)
	require.Len(suite.T(), created.Products, 1)
	require.Equal(suite.T(), suite.laptop.ID, created.Products[0].ID)
}

func (suite *OrderLifecycleTestSuite) TestDuplicateFulfillmentEventIsIdempotent() {
	ctx := context.Background()

	created, err := suite.service.CreateOrder(ctx, suite.customer.ID, []int64{suite.laptop.ID})
	require.NoError(suite.T(), err)

	msg := fulfillmentMessage(created.ID)
	require.NoError(suite.T(), suite.handler.Handle(ctx, msg))
	require.NoError(suite.T(), suite.handler.Handle(ctx, msg)) // повторная доставка

	timeline := suite.service.Timeline(created.ID)
	fulfilledEvents := 0
	for _, event := range timeline {
		if event.Type == "OrderFulfilled" {
			fulfilledEvents++
		}
	}
	require.Equal(suite.T(), 1, fulfilledEvents)
}

func (suite *OrderLifecycleTestSuite) TestOutboxRetriesTransientFailures() {
	ctx := context.Background()

	created, err := suite.service.CreateOrder(ctx, suite.customer.ID, []int64{suite.laptop.ID})
	require.NoError(suite.T(), err)

	suite.publisher.failures = 1
	suite.worker.Flush(ctx)

	events := suite.publisher.published()
	require.Len(suite.T(), events, 1)
	require.Equal(suite.T(), "order.created", events[0].EventType)

	var payload struct {
		OrderID int64 `json:"order_id"`
	}
	require.NoError(suite.T(), json.Unmarshal(events[0].Payload, &payload))
	require.Equal(suite.T(), created.ID, payload.OrderID)

	stats, err := suite.outbox.Stats()
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), 0, stats.PendingCount)
}

// fulfillmentMessage собирает Kafka-сообщение внешнего fulfillment-процесса.
func fulfillmentMessage(orderID int64) *sarama.ConsumerMessage {
	event := kafka.FulfillmentEvent{
		EventType: kafka.EventTypeFulfillmentRequested,
		OrderID:   orderID,
		Timestamp: time.Now().UTC(),
	}
	value, _ := json.Marshal(event)
	return &sarama.ConsumerMessage{
		Topic: kafka.TopicFulfillmentEvents,
		Value: value,
	}
}

func TestOrderLifecycle(t *testing.T) {
	suite.Run(t, new(OrderLifecycleTestSuite))
}
