package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
)

var orderItemColumns = []string{
	"id", "order_id", "item_name", "quantity", "price", "created_at", "updated_at",
}

type orderItemRepository struct {
	db dbtx
}

// NewOrderItemRepository создаёт PostgreSQL-реализацию OrderItemRepository вне транзакции.
func NewOrderItemRepository(store *Store) domain.OrderItemRepository {
	return &orderItemRepository{db: store.DB()}
}

func (r *orderItemRepository) Create(ctx context.Context, item domain.OrderItem) error {
	return r.CreateBatch(ctx, []domain.OrderItem{item})
}

// CreateBatch вставляет все позиции одним INSERT ... VALUES (...), (...).
func (r *orderItemRepository) CreateBatch(ctx context.Context, items []domain.OrderItem) error {
	if len(items) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	insert := psql.Insert("order_items").Columns(orderItemColumns...)
	for _, item := range items {
		insert = insert.Values(
			item.ID, item.OrderID, item.ItemName, item.Quantity, item.Price, item.CreatedAt, item.UpdatedAt,
		)
	}
	query, args, err := insert.ToSql()
	if err != nil {
		return fmt.Errorf("build insert order items: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrOrderItemExists
		}
		return fmt.Errorf("insert order items: %w", err)
	}
	return nil
}

func (r *orderItemRepository) Get(ctx context.Context, id string) (domain.OrderItem, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query, args, err := psql.Select(orderItemColumns...).
		From("order_items").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return domain.OrderItem{}, fmt.Errorf("build select order item: %w", err)
	}

	item, err := scanOrderItem(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.OrderItem{}, domain.ErrOrderItemNotFound
		}
		return domain.OrderItem{}, err
	}
	return item, nil
}

func (r *orderItemRepository) List(ctx context.Context) ([]domain.OrderItem, error) {
	return r.list(ctx, nil)
}

func (r *orderItemRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	return r.list(ctx, sq.Eq{"order_id": orderID})
}

func (r *orderItemRepository) Save(ctx context.Context, item domain.OrderItem) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query, args, err := psql.Update("order_items").
		Set("item_name", item.ItemName).
		Set("quantity", item.Quantity).
		Set("price", item.Price).
		Set("updated_at", item.UpdatedAt).
		Where(sq.Eq{"id": item.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update order item: %w", err)
	}

	return r.execAffecting(ctx, query, args, "update order item")
}

func (r *orderItemRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query, args, err := psql.Delete("order_items").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete order item: %w", err)
	}

	return r.execAffecting(ctx, query, args, "delete order item")
}

func (r *orderItemRepository) DeleteByOrder(ctx context.Context, orderID string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query, args, err := psql.Delete("order_items").Where(sq.Eq{"order_id": orderID}).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete order items: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete order items: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(affected), nil
}

func (r *orderItemRepository) list(ctx context.Context, where sq.Sqlizer) ([]domain.OrderItem, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	builder := psql.Select(orderItemColumns...).From("order_items").OrderBy("seq ASC")
	if where != nil {
		builder = builder.Where(where)
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list order items: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.OrderItem, 0)
	for rows.Next() {
		item, err := scanOrderItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}
	return items, nil
}

func (r *orderItemRepository) execAffecting(ctx context.Context, query string, args []any, op string) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrOrderItemNotFound
	}
	return nil
}

func scanOrderItem(row rowScanner) (domain.OrderItem, error) {
	var item domain.OrderItem
	err := row.Scan(
		&item.ID, &item.OrderID, &item.ItemName, &item.Quantity, &item.Price, &item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.OrderItem{}, err
		}
		return domain.OrderItem{}, fmt.Errorf("scan order item: %w", err)
	}
	item.CreatedAt = item.CreatedAt.UTC()
	item.UpdatedAt = item.UpdatedAt.UTC()
	return item, nil
}

var _ domain.OrderItemRepository = (*orderItemRepository)(nil)
