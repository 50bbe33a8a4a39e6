package fulfillment

import (
	"context"
	"errors"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ops/internal/domain"
	"github.com/vladislavdragonenkov/ops/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/ops/internal/service/order"
)

var fulfillmentEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ops_fulfillment_events_total",
	Help: "Total number of processed fulfillment events grouped by result.",
}, []string{"result"})

// Handler обрабатывает команды выполнения заказа из Kafka.
// Повторная доставка события по уже выполненному заказу не считается
// ошибкой: обработчик идемпотентен.
type Handler struct {
	service *order.Service
	logger  *log.Entry
}

// NewHandler создаёт обработчик fulfillment-событий.
func NewHandler(service *order.Service, logger *log.Entry) *Handler {
	if logger == nil {
		logger = log.WithField("component", "fulfillment-handler")
	}
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Handle подходит под kafka.MessageHandler.
func (h *Handler) Handle(ctx context.Context, message *sarama.ConsumerMessage) error {
	event, err := kafka.ParseFulfillmentEvent(message)
	if err != nil {
		fulfillmentEventsTotal.WithLabelValues("malformed").Inc()
		return fmt.Errorf("parse fulfillment event: %w", err)
	}
	if event.OrderID <= 0 {
		fulfillmentEventsTotal.WithLabelValues("malformed").Inc()
		return fmt.Errorf("fulfillment event without order id")
	}

	_, err = h.service.MarkFulfilled(ctx, event.OrderID)
	switch {
	case err == nil:
		fulfillmentEventsTotal.WithLabelValues("fulfilled").Inc()
		h.logger.WithField("order_id", event.OrderID).Info("order fulfilled")
		return nil
	case errors.Is(err, domain.ErrOrderAlreadyFulfilled):
		// Повторная доставка — заказ уже в нужном состоянии.
		fulfillmentEventsTotal.WithLabelValues("duplicate").Inc()
		h.logger.WithField("order_id", event.OrderID).Debug("order already fulfilled")
		return nil
	case errors.Is(err, domain.ErrOrderNotFound):
		fulfillmentEventsTotal.WithLabelValues("not_found").Inc()
		return fmt.Errorf("fulfill order %d: %w", event.OrderID, err)
	default:
		fulfillmentEventsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("fulfill order %d: %w", event.OrderID, err)
	}
}
