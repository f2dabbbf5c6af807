package memory

import (
	"context"
	"sort"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
)

type orderItemRepositoryInMemory struct {
	s    *Store
	inTx bool
}

func (r *orderItemRepositoryInMemory) Create(_ context.Context, item domain.OrderItem) error {
	defer r.s.lock(r.inTx)()

	if _, exists := r.s.items[item.ID]; exists {
		return domain.ErrOrderItemExists
	}
	r.s.items[item.ID] = itemRecord{item: item, seq: r.s.nextSeq()}
	return nil
}

// CreateBatch сохраняет все позиции или ни одной, если хотя бы один ID занят.
func (r *orderItemRepositoryInMemory) CreateBatch(_ context.Context, items []domain.OrderItem) error {
	defer r.s.lock(r.inTx)()

	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		if _, exists := r.s.items[item.ID]; exists {
			return domain.ErrOrderItemExists
		}
		if _, dup := seen[item.ID]; dup {
			return domain.ErrOrderItemExists
		}
		seen[item.ID] = struct{}{}
	}
	for _, item := range items {
		r.s.items[item.ID] = itemRecord{item: item, seq: r.s.nextSeq()}
	}
	return nil
}

func (r *orderItemRepositoryInMemory) Get(_ context.Context, id string) (domain.OrderItem, error) {
	defer r.s.rlock(r.inTx)()

	rec, ok := r.s.items[id]
	if !ok {
		return domain.OrderItem{}, domain.ErrOrderItemNotFound
	}
	return rec.item, nil
}

func (r *orderItemRepositoryInMemory) List(context.Context) ([]domain.OrderItem, error) {
	defer r.s.rlock(r.inTx)()

	return r.s.sortedItems(func(domain.OrderItem) bool { return true }), nil
}

func (r *orderItemRepositoryInMemory) ListByOrder(_ context.Context, orderID string) ([]domain.OrderItem, error) {
	defer r.s.rlock(r.inTx)()

	return r.s.itemsOf(orderID), nil
}

func (r *orderItemRepositoryInMemory) Save(_ context.Context, item domain.OrderItem) error {
	defer r.s.lock(r.inTx)()

	rec, ok := r.s.items[item.ID]
	if !ok {
		return domain.ErrOrderItemNotFound
	}
	r.s.items[item.ID] = itemRecord{item: item, seq: rec.seq}
	return nil
}

func (r *orderItemRepositoryInMemory) Delete(_ context.Context, id string) error {
	defer r.s.lock(r.inTx)()

	if _, ok := r.s.items[id]; !ok {
		return domain.ErrOrderItemNotFound
	}
	delete(r.s.items, id)
	return nil
}

func (r *orderItemRepositoryInMemory) DeleteByOrder(_ context.Context, orderID string) (int, error) {
	defer r.s.lock(r.inTx)()

	removed := 0
	for id, rec := range r.s.items {
		if rec.item.OrderID != orderID {
			continue
		}
		delete(r.s.items, id)
		removed++
	}
	return removed, nil
}

// itemsOf возвращает позиции заказа в порядке вставки. Вызывается под блокировкой.
func (s *Store) itemsOf(orderID string) []domain.OrderItem {
	return s.sortedItems(func(item domain.OrderItem) bool { return item.OrderID == orderID })
}

func (s *Store) sortedItems(keep func(domain.OrderItem) bool) []domain.OrderItem {
	records := make([]itemRecord, 0)
	for _, rec := range s.items {
		if keep(rec.item) {
			records = append(records, rec)
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].seq < records[j].seq })

	result := make([]domain.OrderItem, 0, len(records))
	for _, rec := range records {
		result = append(result, rec.item)
	}
	return result
}

var _ domain.OrderItemRepository = (*orderItemRepositoryInMemory)(nil)
