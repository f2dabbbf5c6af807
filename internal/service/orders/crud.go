package orders

import (
	"context"
	"fmt"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
)

// GetOrder возвращает заказ по идентификатору.
func (s *Service) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	return s.repos.Orders.Get(ctx, id)
}

// ListOrders возвращает все заказы.
func (s *Service) ListOrders(ctx context.Context) ([]domain.Order, error) {
	return s.repos.Orders.List(ctx)
}

// UpdateOrder перезаписывает переданные поля без сравнения updatedAt.
// Смена uuid запрещена; totalAmount не принимается от клиента.
func (s *Service) UpdateOrder(ctx context.Context, id string, patch domain.OrderPatch) (updated domain.Order, err error) {
	done := s.observe("order_update")
	defer func() { done(err) }()

	if patch.DeliveryDate != nil {
		patch.DeliveryDate = normalizeTimePtr(patch.DeliveryDate)
	}
	if patch.UpdatedAt == nil {
		now := s.clock()
		patch.UpdatedAt = &now
	} else {
		patch.UpdatedAt = normalizeTimePtr(patch.UpdatedAt)
	}

	var fx *effects
	err = s.executeWithRetry(ctx, "order_update", id, func(ctx context.Context) error {
		fx = &effects{}
		return s.store.Do(ctx, func(ctx context.Context, repos domain.Repositories) error {
			order, err := repos.Orders.Get(ctx, id)
			if err != nil {
				return err
			}
			if patch.UUID != nil && *patch.UUID != order.UUID {
				return domain.NewValidationError(domain.ErrOrderUUIDImmutable)
			}

			order.ApplyPatch(patch)
			if err := repos.Orders.Save(ctx, order); err != nil {
				return err
			}
			if err := s.appendTimeline(ctx, repos, fx, id, domain.TimelineOrderUpdated, fmt.Sprintf("status %q", order.Status)); err != nil {
				return err
			}

			stored, err := repos.Orders.Get(ctx, id)
			if err != nil {
				return err
			}
			if err := s.enqueue(ctx, repos, fx, id, domain.EventOrderUpdated, eventPayload{
				UUID:        stored.UUID,
				TotalAmount: amount(stored.TotalAmount),
			}); err != nil {
				return err
			}
			updated = stored
			return nil
		})
	})
	if err != nil {
		return domain.Order{}, err
	}

	s.flush(fx)
	return updated, nil
}

// DeleteOrder удаляет заказ. Позиции остаются в хранилище.
func (s *Service) DeleteOrder(ctx context.Context, id string) (err error) {
	done := s.observe("order_delete")
	defer func() { done(err) }()

	var fx *effects
	err = s.executeWithRetry(ctx, "order_delete", id, func(ctx context.Context) error {
		fx = &effects{}
		return s.store.Do(ctx, func(ctx context.Context, repos domain.Repositories) error {
			order, err := repos.Orders.Get(ctx, id)
			if err != nil {
				return err
			}
			if err := repos.Orders.Delete(ctx, id); err != nil {
				return err
			}
			return s.enqueue(ctx, repos, fx, id, domain.EventOrderDeleted, eventPayload{
				UUID:    order.UUID,
				ItemIDs: order.ItemIDs,
			})
		})
	})
	if err != nil {
		return err
	}

	s.flush(fx)
	s.logger.WithField("order_id", id).Info("order deleted")
	return nil
}

// GetItem возвращает позицию по идентификатору.
func (s *Service) GetItem(ctx context.Context, id string) (domain.OrderItem, error) {
	return s.repos.Items.Get(ctx, id)
}

// ListItems возвращает все позиции всех заказов.
func (s *Service) ListItems(ctx context.Context) ([]domain.OrderItem, error) {
	return s.repos.Items.List(ctx)
}

// ListItemsByOrder возвращает позиции заказа; для неизвестного заказа — пустой список.
func (s *Service) ListItemsByOrder(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	return s.repos.Items.ListByOrder(ctx, orderID)
}

// Timeline возвращает историю заказа в хронологическом порядке.
func (s *Service) Timeline(ctx context.Context, orderID string) ([]domain.TimelineEvent, error) {
	if _, err := s.repos.Orders.Get(ctx, orderID); err != nil {
		return nil, err
	}
	return s.repos.Timeline.List(ctx, orderID)
}

// Ready проверяет доступность хранилища на чтение.
func (s *Service) Ready(ctx context.Context) error {
	_, err := s.repos.Orders.GetByUUID(ctx, "readiness-check")
	if err != nil && !domain.IsNotFound(err) {
		return err
	}
	return nil
}
