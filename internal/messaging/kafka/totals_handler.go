package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
)

// TotalRecalculator пересчитывает totalAmount заказа по его позициям.
type TotalRecalculator interface {
	RecalculateTotal(ctx context.Context, orderID string) (domain.Order, error)
}

// NewTotalsHandler возвращает обработчик событий заказов, который сверяет totalAmount
// после изменения позиций или синхронизации заказа.
func NewTotalsHandler(recalc TotalRecalculator, logger *log.Entry) MessageHandler {
	if logger == nil {
		logger = log.WithField("component", "totals-handler")
	}

	return func(ctx context.Context, message *sarama.ConsumerMessage) error {
		envelope, err := ParseOutboxEnvelope(message)
		if err != nil {
			return err
		}

		switch envelope.EventType {
		case domain.EventOrderItemCreated,
			domain.EventOrderItemUpdated,
			domain.EventOrderItemDeleted,
			domain.EventOrderSynced:
		default:
			return nil
		}

		order, err := recalc.RecalculateTotal(ctx, envelope.AggregateID)
		if err != nil {
			if errors.Is(err, domain.ErrOrderNotFound) {
				logger.WithField("order_id", envelope.AggregateID).Debug("order already deleted, skip recalculation")
				return nil
			}
			return fmt.Errorf("recalculate total for order %s: %w", envelope.AggregateID, err)
		}

		logger.WithFields(log.Fields{
			"order_id":     order.ID,
			"event_type":   envelope.EventType,
			"total_amount": order.TotalAmount.StringFixed(2),
		}).Debug("order total verified")
		return nil
	}
}
