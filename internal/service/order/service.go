package order

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ops/internal/domain"
	"github.com/vladislavdragonenkov/ops/internal/metrics"
)

const (
	defaultListOrdersLimit = 100

	timelineEventOrderCreated   = "OrderCreated"
	timelineEventOrderFulfilled = "OrderFulfilled"

	// Типы событий transactional outbox.
	EventTypeOrderCreated   = "order.created"
	EventTypeOrderFulfilled = "order.fulfilled"

	aggregateTypeOrder = "order"
)

// Service реализует бизнес-логику обработки заказов поверх доменных репозиториев.
// Единственное бизнес-правило: клиент не может создать новый заказ, пока
// предыдущий остаётся невыполненным.
type Service struct {
	orders    domain.OrderRepository
	customers domain.CustomerRepository
	products  domain.ProductRepository
	outbox    domain.OutboxRepository
	timeline  domain.TimelineRepository
	metrics   *metrics.OrderMetrics
	logger    *log.Entry
}

// NewService конструирует сервис с зависимостями.
// outbox и timeline могут быть nil — тогда события не публикуются.
// При nil orderMetrics счётчики регистрируются в реестре по умолчанию.
func NewService(
	orders domain.OrderRepository,
	customers domain.CustomerRepository,
	products domain.ProductRepository,
	outbox domain.OutboxRepository,
	timeline domain.TimelineRepository,
	orderMetrics *metrics.OrderMetrics,
	logger *log.Entry,
) *Service {
	if orderMetrics == nil {
		orderMetrics = metrics.NewOrderMetrics()
	}
	if logger == nil {
		logger = log.WithField("component", "order-service")
	}
	return &Service{
		orders:    orders,
		customers: customers,
		products:  products,
		outbox:    outbox,
		timeline:  timeline,
		metrics:   orderMetrics,
		logger:    logger,
	}
}

// orderCreatedPayload — содержимое события order.created.
type orderCreatedPayload struct {
	OrderID         int64     `json:"order_id"`
	CustomerID      int64     `json:"customer_id"`
	ProductIDs      []int64   `json:"product_ids"`
	TotalPriceMinor int64     `json:"total_price_minor"`
	CreatedAt       time.Time `json:"created_at"`
}

// orderFulfilledPayload — содержимое события order.fulfilled.
type orderFulfilledPayload struct {
	OrderID     int64     `json:"order_id"`
	CustomerID  int64     `json:"customer_id"`
	FulfilledAt time.Time `json:"fulfilled_at"`
}

// CreateOrder создаёт заказ для клиента из набора товаров.
//
// Неизвестные идентификаторы товаров молча отбрасываются, дубликаты
// схлопываются до одной ассоциации. Заказ с пустым списком ассоциаций
// допустим. Ошибки: ErrCustomerNotFound, ErrUnfulfilledOrderExists,
// прочее — обёрнутые ошибки хранилища.
func (s *Service) CreateOrder(ctx context.Context, customerID int64, productIDs []int64) (domain.Order, error) {
	start := time.Now()
	defer func() {
		s.metrics.RecordCreateDuration(time.Since(start))
	}()

	if err := ctx.Err(); err != nil {
		return domain.Order{}, err
	}
	if customerID <= 0 {
		return domain.Order{}, domain.ErrCustomerIDRequired
	}

	if _, err := s.customers.Get(customerID); err != nil {
		if domain.IsNotFound(err) {
			s.metrics.RecordCreateRejected()
		}
		return domain.Order{}, fmt.Errorf("lookup customer %d: %w", customerID, err)
	}

	// Проверка до вставки даёт точную ошибку; частичный уникальный индекс
	// в хранилище остаётся страховкой от гонки check-then-insert.
	if _, exists, err := s.orders.FindUnfulfilled(customerID); err != nil {
		return domain.Order{}, fmt.Errorf("lookup unfulfilled order: %w", err)
	} else if exists {
		s.metrics.RecordCreateConflict()
		return domain.Order{}, domain.ErrUnfulfilledOrderExists
	}

	products, err := s.products.FindByIDs(dedupeIDs(productIDs))
	if err != nil {
		return domain.Order{}, fmt.Errorf("resolve products: %w", err)
	}

	now := time.Now().UTC()
	order := domain.Order{
		CustomerID:  customerID,
		IsFulfilled: false,
		Products:    products,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if errs := order.ValidateInvariants(); len(errs) > 0 {
		return domain.Order{}, fmt.Errorf("order invariants violated: %w", errs[0])
	}

	created, err := s.orders.Create(order)
	if err != nil {
		if domain.IsConflict(err) {
			s.metrics.RecordCreateConflict()
			return domain.Order{}, err
		}
		s.metrics.RecordCreateFailed()
		s.logger.WithError(err).WithField("customer_id", customerID).Error("failed to persist order")
		return domain.Order{}, fmt.Errorf("persist order: %w", err)
	}

	s.metrics.RecordOrderCreated()
	s.appendTimeline(created.ID, timelineEventOrderCreated, "")
	s.enqueueOrderCreated(created)

	s.logger.WithFields(log.Fields{
		"order_id":    created.ID,
		"customer_id": created.CustomerID,
		"products":    len(created.Products),
	}).Info("order created")

	return created, nil
}

// GetOrder возвращает заказ с разрешённым графом товаров.
// Итоговая стоимость всегда отражает актуальные цены на момент чтения.
func (s *Service) GetOrder(ctx context.Context, orderID int64) (domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return domain.Order{}, err
	}

	order, err := s.orders.Get(orderID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("load order %d: %w", orderID, err)
	}
	return order, nil
}

// MarkFulfilled переводит заказ в состояние fulfilled. Вызывается обработчиком
// событий внешнего fulfillment-процесса; повторная доставка события безопасна.
func (s *Service) MarkFulfilled(ctx context.Context, orderID int64) (domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return domain.Order{}, err
	}

	order, err := s.orders.MarkFulfilled(orderID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("mark order %d fulfilled: %w", orderID, err)
	}

	s.metrics.RecordOrderFulfilled()
	s.appendTimeline(order.ID, timelineEventOrderFulfilled, "")
	s.enqueueOrderFulfilled(order)

	s.logger.WithFields(log.Fields{
		"order_id":    order.ID,
		"customer_id": order.CustomerID,
	}).Info("order fulfilled")

	return order, nil
}

// GetCustomer возвращает клиента вместе с его заказами.
func (s *Service) GetCustomer(ctx context.Context, customerID int64) (domain.Customer, error) {
	if err := ctx.Err(); err != nil {
		return domain.Customer{}, err
	}

	customer, err := s.customers.Get(customerID)
	if err != nil {
		return domain.Customer{}, fmt.Errorf("load customer %d: %w", customerID, err)
	}
	return customer, nil
}

// ListCustomers возвращает всех клиентов с их заказами.
func (s *Service) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	customers, err := s.customers.List()
	if err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	return customers, nil
}

// ListProducts возвращает каталог товаров.
func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	products, err := s.products.List()
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return products, nil
}

// ListCustomerOrders возвращает заказы клиента, ограничивая выборку limit (если >0).
func (s *Service) ListCustomerOrders(ctx context.Context, customerID int64, limit int) ([]domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultListOrdersLimit
	}

	orders, err := s.orders.ListByCustomer(customerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list orders for customer %d: %w", customerID, err)
	}
	return orders, nil
}

// Timeline возвращает события жизненного цикла заказа в хронологическом порядке.
func (s *Service) Timeline(orderID int64) []domain.TimelineEvent {
	if s.timeline == nil {
		return nil
	}
	events, err := s.timeline.List(orderID)
	if err != nil {
		s.logger.WithError(err).WithField("order_id", orderID).Warn("failed to list timeline events")
		return nil
	}
	return events
}

func (s *Service) appendTimeline(orderID int64, eventType, reason string) {
	if s.timeline == nil {
		return
	}
	event := domain.TimelineEvent{
		OrderID:  orderID,
		Type:     eventType,
		Reason:   reason,
		Occurred: time.Now().UTC(),
	}
	if err := s.timeline.Append(event); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"order_id": orderID,
			"event":    eventType,
		}).Warn("failed to append timeline event")
		return
	}
	s.metrics.RecordTimelineEvent()
}

func (s *Service) enqueueOrderCreated(order domain.Order) {
	productIDs := make([]int64, 0, len(order.Products))
	for _, product := range order.Products {
		productIDs = append(productIDs, product.ID)
	}

	s.enqueueOutbox(order.ID, EventTypeOrderCreated, orderCreatedPayload{
		OrderID:         order.ID,
		CustomerID:      order.CustomerID,
		ProductIDs:      productIDs,
		TotalPriceMinor: order.TotalPriceMinor(),
		CreatedAt:       order.CreatedAt,
	})
}

func (s *Service) enqueueOrderFulfilled(order domain.Order) {
	s.enqueueOutbox(order.ID, EventTypeOrderFulfilled, orderFulfilledPayload{
		OrderID:     order.ID,
		CustomerID:  order.CustomerID,
		FulfilledAt: order.UpdatedAt,
	})
}

func (s *Service) enqueueOutbox(orderID int64, eventType string, payload any) {
	if s.outbox == nil {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.WithError(err).WithField("event_type", eventType).Warn("failed to marshal outbox payload")
		return
	}

	if _, err := s.outbox.Enqueue(domain.OutboxMessage{
		AggregateType: aggregateTypeOrder,
		AggregateID:   strconv.FormatInt(orderID, 10),
		EventType:     eventType,
		Payload:       data,
	}); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"order_id":   orderID,
			"event_type": eventType,
		}).Warn("failed to enqueue outbox event")
		return
	}
	s.metrics.RecordOutboxEvent()
}

// dedupeIDs схлопывает дубликаты, сохраняя порядок первого вхождения.
func dedupeIDs(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	result := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 || seen[id] {
			continue
		}
		seen[id] = true
		result = append(result, id)
	}
	return result
}
