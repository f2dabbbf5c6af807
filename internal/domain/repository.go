package domain

import "context"

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ. ErrOrderUUIDConflict, если uuid уже занят.
	Create(ctx context.Context, order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound, если его нет.
	Get(ctx context.Context, id string) (Order, error)
	// GetByUUID ищет заказ по клиентскому ключу синхронизации.
	GetByUUID(ctx context.Context, uuid string) (Order, error)
	// List возвращает все заказы без фильтрации и пагинации.
	List(ctx context.Context) ([]Order, error)
	// Save применяет обновления к заказу с учётом optimistic locking (order.Version — ожидаемая версия).
	Save(ctx context.Context, order Order) error
	// Delete удаляет заказ. Позиции заказа не удаляются.
	Delete(ctx context.Context, id string) error
}

// OrderItemRepository описывает хранилище позиций заказа.
type OrderItemRepository interface {
	Create(ctx context.Context, item OrderItem) error
	// CreateBatch сохраняет набор позиций за один вызов.
	CreateBatch(ctx context.Context, items []OrderItem) error
	Get(ctx context.Context, id string) (OrderItem, error)
	List(ctx context.Context) ([]OrderItem, error)
	// ListByOrder возвращает позиции заказа в порядке хранилища.
	ListByOrder(ctx context.Context, orderID string) ([]OrderItem, error)
	Save(ctx context.Context, item OrderItem) error
	Delete(ctx context.Context, id string) error
	// DeleteByOrder удаляет все позиции заказа и возвращает их количество.
	DeleteByOrder(ctx context.Context, orderID string) (int, error)
}

// Repositories группирует репозитории, которые участвуют в одной единице работы.
type Repositories struct {
	Orders   OrderRepository
	Items    OrderItemRepository
	Outbox   OutboxRepository
	Timeline TimelineRepository
}

// UnitOfWork выполняет fn атомарно: либо все записи внутри применяются, либо ни одна.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}
