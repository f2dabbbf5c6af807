package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
)

type orderRecord struct {
	order domain.Order
	seq   int64
}

type itemRecord struct {
	item domain.OrderItem
	seq  int64
}

// Store — in-memory хранилище заказов, позиций, outbox и истории для локальной разработки и тестов.
// Все репозитории работают поверх общего состояния, поэтому UnitOfWork может откатить их вместе.
type Store struct {
	mu       sync.RWMutex
	seq      int64
	orders   map[string]orderRecord
	byUUID   map[string]string
	items    map[string]itemRecord
	outbox   map[string]outboxRecord
	timeline map[string][]domain.TimelineEvent

	// txMu сериализует единицы работы: в памяти это и есть single-writer.
	// Операции вне Do берут его на чтение или запись и не видят незакоммиченного состояния.
	txMu sync.RWMutex
}

// NewStore создаёт пустое хранилище.
func NewStore() *Store {
	return &Store{
		orders:   make(map[string]orderRecord),
		byUUID:   make(map[string]string),
		items:    make(map[string]itemRecord),
		outbox:   make(map[string]outboxRecord),
		timeline: make(map[string][]domain.TimelineEvent),
	}
}

// Orders возвращает репозиторий заказов поверх хранилища.
func (s *Store) Orders() domain.OrderRepository { return &orderRepositoryInMemory{s: s} }

// Items возвращает репозиторий позиций заказа.
func (s *Store) Items() domain.OrderItemRepository { return &orderItemRepositoryInMemory{s: s} }

// Outbox возвращает репозиторий transactional outbox.
func (s *Store) Outbox() *OutboxRepository { return &OutboxRepository{s: s} }

// Timeline возвращает репозиторий истории заказа.
func (s *Store) Timeline() domain.TimelineRepository { return &timelineRepositoryInMemory{s: s} }

// Repositories собирает все репозитории хранилища. Их нельзя использовать внутри Do.
func (s *Store) Repositories() domain.Repositories {
	return domain.Repositories{
		Orders:   s.Orders(),
		Items:    s.Items(),
		Outbox:   s.Outbox(),
		Timeline: s.Timeline(),
	}
}

// txRepositories — репозитории для fn внутри Do: txMu уже захвачен.
func (s *Store) txRepositories() domain.Repositories {
	return domain.Repositories{
		Orders:   &orderRepositoryInMemory{s: s, inTx: true},
		Items:    &orderItemRepositoryInMemory{s: s, inTx: true},
		Outbox:   &OutboxRepository{s: s, inTx: true},
		Timeline: &timelineRepositoryInMemory{s: s, inTx: true},
	}
}

// lock берёт блокировку на запись; вне единицы работы сначала дожидается её завершения.
func (s *Store) lock(inTx bool) (unlock func()) {
	if !inTx {
		s.txMu.Lock()
	}
	s.mu.Lock()
	return func() {
		s.mu.Unlock()
		if !inTx {
			s.txMu.Unlock()
		}
	}
}

// rlock — то же для чтения.
func (s *Store) rlock(inTx bool) (unlock func()) {
	if !inTx {
		s.txMu.RLock()
	}
	s.mu.RLock()
	return func() {
		s.mu.RUnlock()
		if !inTx {
			s.txMu.RUnlock()
		}
	}
}

// Ping всегда успешен: используется health-проверкой наравне с postgres.
func (s *Store) Ping(context.Context) error { return nil }

// Do выполняет fn как единицу работы. При ошибке или панике состояние откатывается к снимку.
func (s *Store) Do(ctx context.Context, fn func(ctx context.Context, repos domain.Repositories) error) (err error) {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	snap := s.snapshot()
	defer func() {
		if r := recover(); r != nil {
			s.restore(snap)
			panic(r)
		}
		if err != nil {
			s.restore(snap)
		}
	}()

	return fn(ctx, s.txRepositories())
}

func (s *Store) nextSeq() int64 {
	s.seq++
	return s.seq
}

type snapshot struct {
	seq      int64
	orders   map[string]orderRecord
	byUUID   map[string]string
	items    map[string]itemRecord
	outbox   map[string]outboxRecord
	timeline map[string][]domain.TimelineEvent
}

func (s *Store) snapshot() snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := snapshot{
		seq:      s.seq,
		orders:   make(map[string]orderRecord, len(s.orders)),
		byUUID:   make(map[string]string, len(s.byUUID)),
		items:    make(map[string]itemRecord, len(s.items)),
		outbox:   make(map[string]outboxRecord, len(s.outbox)),
		timeline: make(map[string][]domain.TimelineEvent, len(s.timeline)),
	}
	for id, rec := range s.orders {
		snap.orders[id] = orderRecord{order: rec.order.Clone(), seq: rec.seq}
	}
	for k, v := range s.byUUID {
		snap.byUUID[k] = v
	}
	for id, rec := range s.items {
		snap.items[id] = rec
	}
	for id, rec := range s.outbox {
		rec.msg.Payload = append([]byte(nil), rec.msg.Payload...)
		snap.outbox[id] = rec
	}
	for id, events := range s.timeline {
		snap.timeline[id] = append([]domain.TimelineEvent(nil), events...)
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq = snap.seq
	s.orders = snap.orders
	s.byUUID = snap.byUUID
	s.items = snap.items
	s.outbox = snap.outbox
	s.timeline = snap.timeline
}

var _ domain.UnitOfWork = (*Store)(nil)
