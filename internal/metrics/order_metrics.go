package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OrderMetrics содержит метрики жизненного цикла заказов.
type OrderMetrics struct {
	// Счётчики операций
	ordersCreated   prometheus.Counter
	ordersFulfilled prometheus.Counter
	createConflicts prometheus.Counter
	createRejected  prometheus.Counter
	createFailed    prometheus.Counter

	// Гистограммы времени выполнения
	createDuration    prometheus.Histogram
	operationDuration *prometheus.HistogramVec

	// Счётчики сопутствующих событий
	timelineEvents prometheus.Counter
	outboxEvents   prometheus.Counter

	// Gauge невыполненных заказов
	unfulfilledOrders prometheus.Gauge
}

// NewOrderMetrics создаёт новый экземпляр метрик заказов.
func NewOrderMetrics() *OrderMetrics {
	return NewOrderMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewOrderMetricsWithRegisterer создаёт метрики в указанном реестре.
// Удобно в тестах, где нужен изолированный prometheus.Registry.
func NewOrderMetricsWithRegisterer(registerer prometheus.Registerer) *OrderMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &OrderMetrics{
		ordersCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "ops_orders_created_total",
			Help: "Total number of orders created",
		}),
		ordersFulfilled: registerCounter(registerer, prometheus.CounterOpts{
			Name: "ops_orders_fulfilled_total",
			Help: "Total number of orders marked fulfilled",
		}),
		createConflicts: registerCounter(registerer, prometheus.CounterOpts{
			Name: "ops_order_create_conflicts_total",
			Help: "Total number of order creations rejected because the customer already has an unfulfilled order",
		}),
		createRejected: registerCounter(registerer, prometheus.CounterOpts{
			Name: "ops_order_create_rejected_total",
			Help: "Total number of order creations rejected because the customer does not exist",
		}),
		createFailed: registerCounter(registerer, prometheus.CounterOpts{
			Name: "ops_order_create_failed_total",
			Help: "Total number of order creations failed with a storage error",
		}),
		createDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "ops_order_create_duration_seconds",
			Help:    "Duration of order creation in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		operationDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "ops_operation_duration_seconds",
			Help:    "Duration of individual service operations in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"operation"}),
		timelineEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "ops_timeline_events_total",
			Help: "Total number of timeline events recorded",
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "ops_outbox_events_total",
			Help: "Total number of outbox events enqueued",
		}),
		unfulfilledOrders: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "ops_unfulfilled_orders",
			Help: "Number of currently unfulfilled orders",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram vec %q: %v", opts.Name, err))
	}
	return collector
}

// RecordOrderCreated увеличивает счётчик созданных заказов и количество
// невыполненных: новый заказ всегда начинается невыполненным.
func (m *OrderMetrics) RecordOrderCreated() {
	m.ordersCreated.Inc()
	m.unfulfilledOrders.Inc()
}

// RecordOrderFulfilled увеличивает счётчик выполненных заказов и уменьшает
// количество невыполненных.
func (m *OrderMetrics) RecordOrderFulfilled() {
	m.ordersFulfilled.Inc()
	m.unfulfilledOrders.Dec()
}

// RecordCreateConflict увеличивает счётчик отказов из-за уже существующего
// невыполненного заказа.
func (m *OrderMetrics) RecordCreateConflict() {
	m.createConflicts.Inc()
}

// RecordCreateRejected увеличивает счётчик отказов из-за неизвестного клиента.
func (m *OrderMetrics) RecordCreateRejected() {
	m.createRejected.Inc()
}

// RecordCreateFailed увеличивает счётчик ошибок хранилища при создании.
func (m *OrderMetrics) RecordCreateFailed() {
	m.createFailed.Inc()
}

// RecordCreateDuration записывает время создания заказа.
func (m *OrderMetrics) RecordCreateDuration(duration time.Duration) {
	m.createDuration.Observe(duration.Seconds())
}

// RecordOperationDuration записывает время выполнения операции сервиса.
func (m *OrderMetrics) RecordOperationDuration(operation string, duration time.Duration) {
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordTimelineEvent увеличивает счётчик событий хронологии.
func (m *OrderMetrics) RecordTimelineEvent() {
	m.timelineEvents.Inc()
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *OrderMetrics) RecordOutboxEvent() {
	m.outboxEvents.Inc()
}
