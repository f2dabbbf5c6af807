package memory

import (
	"context"
	"sort"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
)

// orderRepositoryInMemory — in-memory реализация OrderRepository поверх Store.
type orderRepositoryInMemory struct {
	s    *Store
	inTx bool
}

// Create сохраняет новый заказ, если ID и uuid ещё не заняты.
func (r *orderRepositoryInMemory) Create(_ context.Context, order domain.Order) error {
	defer r.s.lock(r.inTx)()

	if _, exists := r.s.orders[order.ID]; exists {
		return domain.ErrOrderExists
	}
	if _, exists := r.s.byUUID[order.UUID]; exists {
		return domain.ErrOrderUUIDConflict
	}

	order = order.Clone()
	order.ItemIDs = nil
	// Сохраняем копию, чтобы избежать непредсказуемых мутаций извне.
	r.s.orders[order.ID] = orderRecord{order: order, seq: r.s.nextSeq()}
	r.s.byUUID[order.UUID] = order.ID
	return nil
}

// Get возвращает заказ или ErrOrderNotFound, если его нет.
func (r *orderRepositoryInMemory) Get(_ context.Context, id string) (domain.Order, error) {
	defer r.s.rlock(r.inTx)()

	rec, ok := r.s.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return r.withItemIDs(rec.order), nil
}

// GetByUUID ищет заказ по ключу синхронизации.
func (r *orderRepositoryInMemory) GetByUUID(_ context.Context, uuid string) (domain.Order, error) {
	defer r.s.rlock(r.inTx)()

	id, ok := r.s.byUUID[uuid]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	rec, ok := r.s.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return r.withItemIDs(rec.order), nil
}

// List возвращает все заказы в порядке создания.
func (r *orderRepositoryInMemory) List(context.Context) ([]domain.Order, error) {
	defer r.s.rlock(r.inTx)()

	records := make([]orderRecord, 0, len(r.s.orders))
	for _, rec := range r.s.orders {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].seq < records[j].seq })

	result := make([]domain.Order, 0, len(records))
	for _, rec := range records {
		result = append(result, r.withItemIDs(rec.order))
	}
	return result, nil
}

// Save перезаписывает заказ, проверяя версию (optimistic locking).
func (r *orderRepositoryInMemory) Save(_ context.Context, order domain.Order) error {
	defer r.s.lock(r.inTx)()

	current, ok := r.s.orders[order.ID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if current.order.Version != order.Version {
		return domain.ErrOrderVersionConflict
	}
	// uuid неизменяем, сохраняем исходный.
	order = order.Clone()
	order.UUID = current.order.UUID
	order.ItemIDs = nil
	order.Version++
	r.s.orders[order.ID] = orderRecord{order: order, seq: current.seq}
	return nil
}

// Delete удаляет заказ, не трогая его позиции.
func (r *orderRepositoryInMemory) Delete(_ context.Context, id string) error {
	defer r.s.lock(r.inTx)()

	rec, ok := r.s.orders[id]
	if !ok {
		return domain.ErrOrderNotFound
	}
	delete(r.s.byUUID, rec.order.UUID)
	delete(r.s.orders, id)
	return nil
}

// withItemIDs вычисляет список позиций заказа. Вызывается под блокировкой.
func (r *orderRepositoryInMemory) withItemIDs(order domain.Order) domain.Order {
	out := order.Clone()
	owned := r.s.itemsOf(order.ID)
	out.ItemIDs = make([]string, 0, len(owned))
	for _, item := range owned {
		out.ItemIDs = append(out.ItemIDs, item.ID)
	}
	return out
}

var _ domain.OrderRepository = (*orderRepositoryInMemory)(nil)
