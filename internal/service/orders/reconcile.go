package orders

import (
	"context"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
)

const reconcileConcurrency = 4

// ReconcileReport — итог сверки всех заказов.
type ReconcileReport struct {
	Checked   int
	Corrected int
}

// RecalculateTotal пересчитывает totalAmount из позиций и сохраняет его, если он разошёлся.
func (s *Service) RecalculateTotal(ctx context.Context, orderID string) (domain.Order, error) {
	order, _, err := s.recalculate(ctx, orderID)
	return order, err
}

func (s *Service) recalculate(ctx context.Context, orderID string) (result domain.Order, corrected bool, err error) {
	done := s.observe("recalculate")
	defer func() { done(err) }()

	var fx *effects
	err = s.executeWithRetry(ctx, "recalculate", orderID, func(ctx context.Context) error {
		fx = &effects{}
		corrected = false
		return s.store.Do(ctx, func(ctx context.Context, repos domain.Repositories) error {
			order, err := repos.Orders.Get(ctx, orderID)
			if err != nil {
				return err
			}
			items, err := repos.Items.ListByOrder(ctx, orderID)
			if err != nil {
				return err
			}

			expected := domain.SumLineTotals(items)
			if order.TotalAmount.Equal(expected) {
				result = order
				return nil
			}

			before := order.TotalAmount
			order.TotalAmount = expected
			if err := repos.Orders.Save(ctx, order); err != nil {
				return err
			}
			reason := "total " + before.StringFixed(2) + " -> " + expected.StringFixed(2)
			if err := s.appendTimeline(ctx, repos, fx, orderID, domain.TimelineTotalRecalculated, reason); err != nil {
				return err
			}

			result, err = repos.Orders.Get(ctx, orderID)
			if err != nil {
				return err
			}
			corrected = true
			return nil
		})
	})
	if err != nil {
		return domain.Order{}, false, err
	}

	s.flush(fx)
	if s.metrics != nil {
		s.metrics.RecordRecalculation(corrected)
	}
	if corrected {
		s.logger.WithFields(log.Fields{
			"order_id":     orderID,
			"total_amount": result.TotalAmount.StringFixed(2),
		}).Warn("order total drift corrected")
	}
	return result, corrected, nil
}

// ReconcileAll сверяет totalAmount всех заказов. Заказы, удалённые во время сверки, пропускаются.
func (s *Service) ReconcileAll(ctx context.Context) (ReconcileReport, error) {
	orders, err := s.repos.Orders.List(ctx)
	if err != nil {
		return ReconcileReport{}, err
	}

	var checked, corrected atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(reconcileConcurrency)
	for _, order := range orders {
		orderID := order.ID
		g.Go(func() error {
			_, fixed, err := s.recalculate(gctx, orderID)
			if domain.IsNotFound(err) {
				return nil
			}
			if err != nil {
				return err
			}
			checked.Add(1)
			if fixed {
				corrected.Add(1)
			}
			return nil
		})
	}

	report := ReconcileReport{}
	err = g.Wait()
	report.Checked = int(checked.Load())
	report.Corrected = int(corrected.Load())
	return report, err
}
