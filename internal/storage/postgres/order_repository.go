package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
)

const (
	pgUniqueViolation   = "23505"
	ordersUUIDIndexName = "orders_uuid_uidx"
)

var orderColumns = []string{
	"id", "uuid", "baker_name", "status", "delivery_date",
	"total_amount", "version", "created_at", "updated_at",
}

type orderRepository struct {
	db dbtx
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository вне транзакции.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{db: store.DB()}
}

func (r *orderRepository) Create(ctx context.Context, order domain.Order) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query, args, err := psql.Insert("orders").
		Columns(orderColumns...).
		Values(
			order.ID, order.UUID, order.BakerName, order.Status, nullTime(order.DeliveryDate),
			order.TotalAmount, order.Version, order.CreatedAt, order.UpdatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert order: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			if constraintName(err) == ordersUUIDIndexName {
				return domain.ErrOrderUUIDConflict
			}
			return domain.ErrOrderExists
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (r *orderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	return r.getOne(ctx, sq.Eq{"id": id})
}

func (r *orderRepository) GetByUUID(ctx context.Context, uuid string) (domain.Order, error) {
	return r.getOne(ctx, sq.Eq{"uuid": uuid})
}

func (r *orderRepository) List(ctx context.Context) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query, args, err := psql.Select(orderColumns...).
		From("orders").
		OrderBy("created_at ASC", "id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list orders: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}

	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
	}
	owned, err := r.loadItemIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].ItemIDs = ensureIDs(owned[orders[i].ID])
	}

	return orders, nil
}

// Save обновляет заказ с проверкой версии: UPDATE ... WHERE id AND version.
func (r *orderRepository) Save(ctx context.Context, order domain.Order) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query, args, err := psql.Update("orders").
		Set("baker_name", order.BakerName).
		Set("status", order.Status).
		Set("delivery_date", nullTime(order.DeliveryDate)).
		Set("total_amount", order.TotalAmount).
		Set("updated_at", order.UpdatedAt).
		Set("version", sq.Expr("version + 1")).
		Where(sq.Eq{"id": order.ID, "version": order.Version}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update order: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		exists, err := r.orderExists(ctx, order.ID)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrOrderNotFound
		}
		return domain.ErrOrderVersionConflict
	}

	return nil
}

func (r *orderRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query, args, err := psql.Delete("orders").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete order: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

func (r *orderRepository) getOne(ctx context.Context, where sq.Eq) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query, args, err := psql.Select(orderColumns...).From("orders").Where(where).ToSql()
	if err != nil {
		return domain.Order{}, fmt.Errorf("build select order: %w", err)
	}

	order, err := scanOrder(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, err
	}

	owned, err := r.loadItemIDs(ctx, []string{order.ID})
	if err != nil {
		return domain.Order{}, err
	}
	order.ItemIDs = ensureIDs(owned[order.ID])

	return order, nil
}

// loadItemIDs возвращает идентификаторы позиций по заказам в порядке вставки.
func (r *orderRepository) loadItemIDs(ctx context.Context, orderIDs []string) (map[string][]string, error) {
	result := make(map[string][]string, len(orderIDs))
	if len(orderIDs) == 0 {
		return result, nil
	}

	query, args, err := psql.Select("order_id", "id").
		From("order_items").
		Where(sq.Eq{"order_id": orderIDs}).
		OrderBy("seq ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build load item ids: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load order item ids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var orderID, id string
		if err := rows.Scan(&orderID, &id); err != nil {
			return nil, fmt.Errorf("scan order item id: %w", err)
		}
		result[orderID] = append(result[orderID], id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order item ids: %w", err)
	}
	return result, nil
}

func (r *orderRepository) orderExists(ctx context.Context, orderID string) (bool, error) {
	var id string
	err := r.db.QueryRowContext(ctx, `SELECT id FROM orders WHERE id = $1`, orderID).Scan(&id)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("check order exists: %w", err)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order    domain.Order
		delivery sql.NullTime
	)
	err := row.Scan(
		&order.ID, &order.UUID, &order.BakerName, &order.Status, &delivery,
		&order.TotalAmount, &order.Version, &order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, err
		}
		return domain.Order{}, fmt.Errorf("scan order: %w", err)
	}
	if delivery.Valid {
		d := delivery.Time.UTC()
		order.DeliveryDate = &d
	}
	order.CreatedAt = order.CreatedAt.UTC()
	order.UpdatedAt = order.UpdatedAt.UTC()
	return order, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func ensureIDs(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	return false
}

func constraintName(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName
	}
	return ""
}

var _ domain.OrderRepository = (*orderRepository)(nil)
