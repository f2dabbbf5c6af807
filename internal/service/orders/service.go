package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
	"github.com/vladislavdragonenkov/bakery/internal/metrics"
)

// Store — хранилище, над которым работает сервис: единица работы плюс репозитории для чтения.
type Store interface {
	domain.UnitOfWork
	Repositories() domain.Repositories
}

// Service реализует синхронизацию заказов, поддержку totalAmount и CRUD.
type Service struct {
	store   Store
	repos   domain.Repositories
	logger  *log.Entry
	metrics *metrics.OrderMetrics
	retry   RetryConfig
	now     func() time.Time
	newID   func() string
}

// Option настраивает Service.
type Option func(*Service)

// WithLogger задаёт logger сервиса.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithMetrics включает Prometheus-метрики. Без опции метрики не пишутся.
func WithMetrics(m *metrics.OrderMetrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithRetryConfig задаёт политику повторов при конфликтах записи.
func WithRetryConfig(cfg RetryConfig) Option {
	return func(s *Service) {
		s.retry = cfg
	}
}

// WithClock подменяет источник времени (используется в тестах).
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithIDGenerator подменяет генератор идентификаторов заказов и позиций.
func WithIDGenerator(gen func() string) Option {
	return func(s *Service) {
		s.newID = gen
	}
}

// NewService создаёт сервис заказов поверх хранилища.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store: store,
		repos: store.Repositories(),
		retry: DefaultRetryConfig(),
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.WithField("component", "orders")
	}
	if s.retry.MaxAttempts <= 0 {
		s.retry.MaxAttempts = 1
	}
	return s
}

// clock возвращает текущее время в UTC с точностью до микросекунд, как хранит PostgreSQL.
func (s *Service) clock() time.Time {
	return normalizeTime(s.now())
}

func normalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

func normalizeTimePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	n := normalizeTime(*t)
	return &n
}

// observe оборачивает операцию метриками длительности, in-flight и ошибок.
func (s *Service) observe(operation string) func(err error) {
	if s.metrics == nil {
		return func(error) {}
	}
	start := time.Now()
	s.metrics.RecordInFlightStarted()
	return func(err error) {
		s.metrics.RecordInFlightFinished()
		s.metrics.RecordOperationDuration(operation, time.Since(start))
		if err != nil && !domain.IsNotFound(err) && !domain.IsValidation(err) {
			s.metrics.RecordFailure(operation)
		}
	}
}

// effects считает записи в timeline и outbox внутри единицы работы.
// Метрики обновляются только после коммита.
type effects struct {
	timeline int
	outbox   int
}

func (s *Service) flush(fx *effects) {
	if s.metrics == nil || fx == nil {
		return
	}
	for i := 0; i < fx.timeline; i++ {
		s.metrics.RecordTimelineEvent()
	}
	for i := 0; i < fx.outbox; i++ {
		s.metrics.RecordOutboxEvent()
	}
}

func (s *Service) appendTimeline(ctx context.Context, repos domain.Repositories, fx *effects, orderID, eventType, reason string) error {
	event := domain.TimelineEvent{
		OrderID:  orderID,
		Type:     eventType,
		Reason:   reason,
		Occurred: s.clock(),
	}
	if err := repos.Timeline.Append(ctx, event); err != nil {
		return err
	}
	fx.timeline++
	return nil
}

func (s *Service) enqueue(ctx context.Context, repos domain.Repositories, fx *effects, orderID, eventType string, payload eventPayload) error {
	payload.EventType = eventType
	payload.OrderID = orderID
	payload.OccurredAt = s.clock()

	data, err := payload.marshal()
	if err != nil {
		return err
	}
	if _, err := repos.Outbox.Enqueue(ctx, domain.OutboxMessage{
		AggregateType: domain.AggregateOrder,
		AggregateID:   orderID,
		EventType:     eventType,
		Payload:       data,
		CreatedAt:     payload.OccurredAt,
	}); err != nil {
		return err
	}
	fx.outbox++
	return nil
}
