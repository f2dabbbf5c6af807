package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Исходы синхронизации заказа.
const (
	SyncOutcomeCreated   = "created"
	SyncOutcomeUpdated   = "updated"
	SyncOutcomeUnchanged = "unchanged"
)

// OrderMetrics содержит метрики операций над заказами и позициями.
type OrderMetrics struct {
	// Счётчики операций
	syncOutcomes   *prometheus.CounterVec
	itemOperations *prometheus.CounterVec
	syncRetries    prometheus.Counter
	failures       *prometheus.CounterVec

	// Гистограмма времени выполнения
	operationDuration *prometheus.HistogramVec

	// Сверка totalAmount
	recalculations *prometheus.CounterVec

	timelineEvents prometheus.Counter
	outboxEvents   prometheus.Counter

	inFlight prometheus.Gauge
}

// NewOrderMetrics создаёт метрики в глобальном реестре Prometheus.
func NewOrderMetrics() *OrderMetrics {
	return NewOrderMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewOrderMetricsWithRegisterer создаёт метрики в указанном реестре.
// Повторная регистрация возвращает уже существующие коллекторы.
func NewOrderMetricsWithRegisterer(registerer prometheus.Registerer) *OrderMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &OrderMetrics{
		syncOutcomes: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "bakery_order_sync_total",
			Help: "Total number of order sync requests grouped by outcome",
		}, []string{"outcome"}),
		itemOperations: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "bakery_order_item_operations_total",
			Help: "Total number of order item mutations grouped by operation",
		}, []string{"operation"}),
		syncRetries: registerCounter(registerer, prometheus.CounterOpts{
			Name: "bakery_order_write_retries_total",
			Help: "Total number of unit-of-work retries after write conflicts",
		}),
		failures: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "bakery_order_operation_failures_total",
			Help: "Total number of failed order operations grouped by operation",
		}, []string{"operation"}),
		operationDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "bakery_order_operation_duration_seconds",
			Help:    "Duration of order operations in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"operation"}),
		recalculations: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "bakery_order_total_recalculations_total",
			Help: "Total number of totalAmount recalculations grouped by result",
		}, []string{"result"}),
		timelineEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "bakery_timeline_events_total",
			Help: "Total number of timeline events recorded",
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "bakery_outbox_events_total",
			Help: "Total number of outbox events enqueued",
		}),
		inFlight: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "bakery_order_operations_in_flight",
			Help: "Number of order operations currently executing",
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

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
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

// RecordSyncOutcome увеличивает счётчик синхронизаций с данным исходом.
func (m *OrderMetrics) RecordSyncOutcome(outcome string) {
	m.syncOutcomes.WithLabelValues(outcome).Inc()
}

// RecordItemOperation увеличивает счётчик мутаций позиций (create/update/delete).
func (m *OrderMetrics) RecordItemOperation(operation string) {
	m.itemOperations.WithLabelValues(operation).Inc()
}

// RecordRetry фиксирует повтор единицы работы после конфликта записи.
func (m *OrderMetrics) RecordRetry() {
	m.syncRetries.Inc()
}

// RecordFailure увеличивает счётчик неудачных операций.
func (m *OrderMetrics) RecordFailure(operation string) {
	m.failures.WithLabelValues(operation).Inc()
}

// RecordOperationDuration записывает время выполнения операции.
func (m *OrderMetrics) RecordOperationDuration(operation string, duration time.Duration) {
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordRecalculation фиксирует результат сверки totalAmount: corrected или unchanged.
func (m *OrderMetrics) RecordRecalculation(corrected bool) {
	result := "unchanged"
	if corrected {
		result = "corrected"
	}
	m.recalculations.WithLabelValues(result).Inc()
}

// RecordTimelineEvent увеличивает счётчик событий timeline.
func (m *OrderMetrics) RecordTimelineEvent() {
	m.timelineEvents.Inc()
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *OrderMetrics) RecordOutboxEvent() {
	m.outboxEvents.Inc()
}

// RecordInFlightStarted увеличивает количество выполняющихся операций.
func (m *OrderMetrics) RecordInFlightStarted() {
	m.inFlight.Inc()
}

// RecordInFlightFinished уменьшает количество выполняющихся операций.
func (m *OrderMetrics) RecordInFlightFinished() {
	m.inFlight.Dec()
}
