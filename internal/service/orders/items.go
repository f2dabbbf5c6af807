package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
)

// CreateItemInput — новая позиция заказа.
type CreateItemInput struct {
	OrderID  string
	ItemName string
	Quantity int
	Price    decimal.Decimal
}

// UpdateItemInput — перезаписываемые поля позиции. nil означает "не менять".
type UpdateItemInput struct {
	ItemName *string
	Quantity *int
	Price    *decimal.Decimal
}

// CreateItem добавляет позицию и увеличивает totalAmount заказа на quantity*price.
func (s *Service) CreateItem(ctx context.Context, in CreateItemInput) (item domain.OrderItem, err error) {
	done := s.observe("item_create")
	defer func() { done(err) }()

	now := s.clock()
	item = domain.OrderItem{
		ID:        s.newID(),
		OrderID:   in.OrderID,
		ItemName:  in.ItemName,
		Quantity:  in.Quantity,
		Price:     in.Price,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := item.Validate(); err != nil {
		return domain.OrderItem{}, err
	}

	var fx *effects
	err = s.executeWithRetry(ctx, "item_create", in.OrderID, func(ctx context.Context) error {
		fx = &effects{}
		return s.store.Do(ctx, func(ctx context.Context, repos domain.Repositories) error {
			order, err := repos.Orders.Get(ctx, item.OrderID)
			if err != nil {
				return err
			}
			if err := repos.Items.Create(ctx, item); err != nil {
				return err
			}

			before := order.TotalAmount
			order.AdjustTotal(item.LineTotal())
			if err := repos.Orders.Save(ctx, order); err != nil {
				return err
			}

			reason := fmt.Sprintf("%s x%d @ %s; total %s -> %s", item.ItemName, item.Quantity, item.Price.StringFixed(2), before.StringFixed(2), order.TotalAmount.StringFixed(2))
			if err := s.appendTimeline(ctx, repos, fx, order.ID, domain.TimelineItemAdded, reason); err != nil {
				return err
			}
			return s.enqueue(ctx, repos, fx, order.ID, domain.EventOrderItemCreated, eventPayload{
				ItemID:      item.ID,
				TotalAmount: amount(order.TotalAmount),
				Delta:       amount(item.LineTotal()),
			})
		})
	})
	if err != nil {
		return domain.OrderItem{}, err
	}

	s.flush(fx)
	s.recordItemOperation("create")
	return item, nil
}

// UpdateItem перезаписывает поля позиции и сдвигает totalAmount на разницу line total.
func (s *Service) UpdateItem(ctx context.Context, id string, in UpdateItemInput) (updated domain.OrderItem, err error) {
	done := s.observe("item_update")
	defer func() { done(err) }()

	var fx *effects
	err = s.executeWithRetry(ctx, "item_update", id, func(ctx context.Context) error {
		fx = &effects{}
		return s.store.Do(ctx, func(ctx context.Context, repos domain.Repositories) error {
			current, err := repos.Items.Get(ctx, id)
			if err != nil {
				return err
			}

			next := current
			if in.ItemName != nil {
				next.ItemName = *in.ItemName
			}
			if in.Quantity != nil {
				next.Quantity = *in.Quantity
			}
			if in.Price != nil {
				next.Price = *in.Price
			}
			next.UpdatedAt = s.clock()
			if err := next.Validate(); err != nil {
				return err
			}

			if err := repos.Items.Save(ctx, next); err != nil {
				return err
			}

			delta := next.LineTotal().Sub(current.LineTotal())
			total, err := s.adjustOwnerTotal(ctx, repos, next.OrderID, delta, "update")
			if err != nil {
				return err
			}

			reason := fmt.Sprintf("%s x%d @ %s -> %s x%d @ %s", current.ItemName, current.Quantity, current.Price.StringFixed(2), next.ItemName, next.Quantity, next.Price.StringFixed(2))
			if err := s.appendTimeline(ctx, repos, fx, next.OrderID, domain.TimelineItemUpdated, reason); err != nil {
				return err
			}
			if err := s.enqueue(ctx, repos, fx, next.OrderID, domain.EventOrderItemUpdated, eventPayload{
				ItemID:      next.ID,
				TotalAmount: total,
				Delta:       amount(delta),
			}); err != nil {
				return err
			}

			updated = next
			return nil
		})
	})
	if err != nil {
		return domain.OrderItem{}, err
	}

	s.flush(fx)
	s.recordItemOperation("update")
	return updated, nil
}

// DeleteItem удаляет позицию и уменьшает totalAmount заказа на её line total.
func (s *Service) DeleteItem(ctx context.Context, id string) (err error) {
	done := s.observe("item_delete")
	defer func() { done(err) }()

	var fx *effects
	err = s.executeWithRetry(ctx, "item_delete", id, func(ctx context.Context) error {
		fx = &effects{}
		return s.store.Do(ctx, func(ctx context.Context, repos domain.Repositories) error {
			item, err := repos.Items.Get(ctx, id)
			if err != nil {
				return err
			}

			delta := item.LineTotal().Neg()
			total, err := s.adjustOwnerTotal(ctx, repos, item.OrderID, delta, "delete")
			if err != nil {
				return err
			}
			if err := repos.Items.Delete(ctx, id); err != nil {
				return err
			}

			reason := fmt.Sprintf("%s x%d @ %s", item.ItemName, item.Quantity, item.Price.StringFixed(2))
			if err := s.appendTimeline(ctx, repos, fx, item.OrderID, domain.TimelineItemRemoved, reason); err != nil {
				return err
			}
			return s.enqueue(ctx, repos, fx, item.OrderID, domain.EventOrderItemDeleted, eventPayload{
				ItemID:      item.ID,
				TotalAmount: total,
				Delta:       amount(delta),
			})
		})
	})
	if err != nil {
		return err
	}

	s.flush(fx)
	s.recordItemOperation("delete")
	return nil
}

// adjustOwnerTotal сдвигает totalAmount заказа-владельца. Если заказа уже нет, позиция
// считается осиротевшей: сумма не меняется, возвращается nil.
func (s *Service) adjustOwnerTotal(ctx context.Context, repos domain.Repositories, orderID string, delta decimal.Decimal, operation string) (*decimal.Decimal, error) {
	order, err := repos.Orders.Get(ctx, orderID)
	if errors.Is(err, domain.ErrOrderNotFound) {
		s.logger.WithFields(log.Fields{
			"order_id":  orderID,
			"operation": operation,
		}).Warn("owning order is missing, total adjustment skipped")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	order.AdjustTotal(delta)
	if err := repos.Orders.Save(ctx, order); err != nil {
		return nil, err
	}
	return amount(order.TotalAmount), nil
}

func (s *Service) recordItemOperation(operation string) {
	if s.metrics != nil {
		s.metrics.RecordItemOperation(operation)
	}
}
