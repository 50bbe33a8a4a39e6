package httpx

import (
	"time"

	"github.com/vladislavdragonenkov/ops/internal/domain"
)

// CreateOrderRequest — тело запроса на создание заказа.
type CreateOrderRequest struct {
	CustomerID int64   `json:"customer_id"`
	ProductIDs []int64 `json:"product_ids"`
}

// ProductResponse — товар в ответе API.
type ProductResponse struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	PriceMinor int64  `json:"price_minor"`
}

// OrderResponse — заказ в ответе API. Итоговая сумма вычисляется по
// актуальным ценам товаров в момент чтения и не хранится.
type OrderResponse struct {
	ID              int64             `json:"id"`
	CustomerID      int64             `json:"customer_id"`
	IsFulfilled     bool              `json:"is_fulfilled"`
	TotalPriceMinor int64             `json:"total_price_minor"`
	Products        []ProductResponse `json:"products"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`

	// Timeline заполняется только при чтении одного заказа.
	Timeline []TimelineEventResponse `json:"timeline,omitempty"`
}

// CustomerResponse — клиент с его заказами. Заказы не содержат обратной
// ссылки на клиента, граф ответа ацикличен.
type CustomerResponse struct {
	ID     int64           `json:"id"`
	Name   string          `json:"name"`
	Orders []OrderResponse `json:"orders"`
}

// TimelineEventResponse — событие жизненного цикла заказа.
type TimelineEventResponse struct {
	OrderID  int64     `json:"order_id"`
	Type     string    `json:"type"`
	Reason   string    `json:"reason,omitempty"`
	Occurred time.Time `json:"occurred_at"`
}

// ErrorResponse — унифицированное тело ошибки.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func toProductResponse(product domain.Product) ProductResponse {
	return ProductResponse{
		ID:         product.ID,
		Name:       product.Name,
		PriceMinor: product.PriceMinor,
	}
}

func toProductResponses(products []domain.Product) []ProductResponse {
	out := make([]ProductResponse, 0, len(products))
	for _, product := range products {
		out = append(out, toProductResponse(product))
	}
	return out
}

func toOrderResponse(order domain.Order) OrderResponse {
	return OrderResponse{
		ID:              order.ID,
		CustomerID:      order.CustomerID,
		IsFulfilled:     order.IsFulfilled,
		TotalPriceMinor: order.TotalPriceMinor(),
		Products:        toProductResponses(order.Products),
		CreatedAt:       order.CreatedAt,
		UpdatedAt:       order.UpdatedAt,
	}
}

func toOrderResponses(orders []domain.Order) []OrderResponse {
	out := make([]OrderResponse, 0, len(orders))
	for _, order := range orders {
		out = append(out, toOrderResponse(order))
	}
	return out
}

func toCustomerResponse(customer domain.Customer) CustomerResponse {
	return CustomerResponse{
		ID:     customer.ID,
		Name:   customer.Name,
		Orders: toOrderResponses(customer.Orders),
	}
}

func toTimelineResponses(events []domain.TimelineEvent) []TimelineEventResponse {
	out := make([]TimelineEventResponse, 0, len(events))
	for _, event := range events {
		out = append(out, TimelineEventResponse{
			OrderID:  event.OrderID,
			Type:     event.Type,
			Reason:   event.Reason,
			Occurred: event.Occurred,
		})
	}
	return out
}
