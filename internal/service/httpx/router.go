package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter собирает маршруты API. Middleware идемпотентности навешивается
// только на создание заказа; передача nil отключает его.
func NewRouter(handler *Handler, idempotency func(http.Handler) http.Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(metricsMiddleware)

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if idempotency != nil {
				r.Use(idempotency)
			}
			r.Post("/orders", handler.CreateOrder)
		})

		r.Get("/orders/{id}", handler.GetOrder)
		r.Post("/orders/{id}/fulfill", handler.FulfillOrder)
		r.Get("/orders/{id}/timeline", handler.GetOrderTimeline)

		r.Get("/customers", handler.ListCustomers)
		r.Get("/customers/{id}", handler.GetCustomer)
		r.Get("/customers/{id}/orders", handler.ListCustomerOrders)

		r.Get("/products", handler.ListProducts)
	})

	return r
}
