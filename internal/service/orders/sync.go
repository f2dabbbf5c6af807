package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
)

// SyncOutcome — результат синхронизации заказа.
type SyncOutcome string

const (
	// OutcomeCreated — заказа с таким uuid не было, он создан.
	OutcomeCreated SyncOutcome = "created"
	// OutcomeUpdated — payload новее сохранённого заказа и применён.
	OutcomeUpdated SyncOutcome = "updated"
	// OutcomeUnchanged — payload не новее, заказ не изменён.
	OutcomeUnchanged SyncOutcome = "unchanged"
)

// ItemInput — позиция внутри запроса синхронизации.
type ItemInput struct {
	ItemName string
	Quantity int
	Price    decimal.Decimal
}

// SyncOrderInput — снимок заказа с клиента. nil-поля не применяются.
type SyncOrderInput struct {
	UUID         string
	BakerName    *string
	Status       *string
	DeliveryDate *time.Time
	UpdatedAt    *time.Time
	Items        []ItemInput
}

// SyncResult — сохранённый заказ, его позиции и исход синхронизации.
type SyncResult struct {
	Order   domain.Order
	Items   []domain.OrderItem
	Outcome SyncOutcome
}

func (in SyncOrderInput) validate() error {
	var errs []error
	if strings.TrimSpace(in.UUID) == "" {
		errs = append(errs, domain.ErrOrderUUIDRequired)
	}
	for i, item := range in.Items {
		candidate := domain.OrderItem{ItemName: item.ItemName, Quantity: item.Quantity, Price: item.Price}
		var ve *domain.ValidationError
		if err := candidate.ValidateDetached(); errors.As(err, &ve) {
			for _, cause := range ve.Errs {
				errs = append(errs, fmt.Errorf("orderItems[%d]: %w", i, cause))
			}
		}
	}
	return domain.NewValidationError(errs...)
}

func (in SyncOrderInput) patch() domain.OrderPatch {
	return domain.OrderPatch{
		BakerName:    in.BakerName,
		Status:       in.Status,
		DeliveryDate: normalizeTimePtr(in.DeliveryDate),
		UpdatedAt:    normalizeTimePtr(in.UpdatedAt),
	}
}

// SyncOrder создаёт или обновляет заказ по клиентскому uuid (last-write-wins по updatedAt).
func (s *Service) SyncOrder(ctx context.Context, in SyncOrderInput) (result SyncResult, err error) {
	done := s.observe("sync")
	defer func() { done(err) }()

	if err := in.validate(); err != nil {
		return SyncResult{}, err
	}

	var fx *effects
	err = s.executeWithRetry(ctx, "sync", in.UUID, func(ctx context.Context) error {
		fx = &effects{}
		return s.store.Do(ctx, func(ctx context.Context, repos domain.Repositories) error {
			r, err := s.syncInTx(ctx, repos, fx, in)
			if err != nil {
				return err
			}
			result = r
			return nil
		})
	})
	if err != nil {
		s.logger.WithError(err).WithField("uuid", in.UUID).Warn("order sync failed")
		return SyncResult{}, err
	}

	s.flush(fx)
	if s.metrics != nil {
		s.metrics.RecordSyncOutcome(string(result.Outcome))
	}
	s.logger.WithFields(log.Fields{
		"order_id": result.Order.ID,
		"uuid":     result.Order.UUID,
		"outcome":  result.Outcome,
	}).Info("order synced")

	return result, nil
}

func (s *Service) syncInTx(ctx context.Context, repos domain.Repositories, fx *effects, in SyncOrderInput) (SyncResult, error) {
	existing, err := repos.Orders.GetByUUID(ctx, in.UUID)
	if errors.Is(err, domain.ErrOrderNotFound) {
		return s.createFromSync(ctx, repos, fx, in)
	}
	if err != nil {
		return SyncResult{}, err
	}

	// LWW защищает только поля заказа; непустой список позиций заменяется всегда.
	patch := in.patch()
	outcome := OutcomeUnchanged
	order := existing.Clone()
	if existing.IsNewerThan(patch.UpdatedAt) {
		order.ApplyPatch(patch)
		outcome = OutcomeUpdated
	}

	if outcome == OutcomeUnchanged && len(in.Items) == 0 {
		items, err := repos.Items.ListByOrder(ctx, existing.ID)
		if err != nil {
			return SyncResult{}, err
		}
		return SyncResult{Order: existing, Items: items, Outcome: OutcomeUnchanged}, nil
	}

	if len(in.Items) > 0 {
		if err := s.replaceItems(ctx, repos, fx, &order, in.Items); err != nil {
			return SyncResult{}, err
		}
	}

	if err := repos.Orders.Save(ctx, order); err != nil {
		return SyncResult{}, err
	}

	if outcome == OutcomeUpdated {
		reason := fmt.Sprintf("updatedAt %s -> %s", existing.UpdatedAt.Format(time.RFC3339Nano), order.UpdatedAt.Format(time.RFC3339Nano))
		if err := s.appendTimeline(ctx, repos, fx, order.ID, domain.TimelineOrderSynced, reason); err != nil {
			return SyncResult{}, err
		}
	}

	return s.finishSync(ctx, repos, fx, order.ID, outcome)
}

// replaceItems удаляет позиции заказа, вставляет новые и пересчитывает сумму.
func (s *Service) replaceItems(ctx context.Context, repos domain.Repositories, fx *effects, order *domain.Order, inputs []ItemInput) error {
	removed, err := repos.Items.DeleteByOrder(ctx, order.ID)
	if err != nil {
		return err
	}
	items := s.buildItems(order.ID, inputs)
	if err := repos.Items.CreateBatch(ctx, items); err != nil {
		return err
	}
	before := order.TotalAmount
	order.TotalAmount = domain.SumLineTotals(items)
	reason := fmt.Sprintf("%d items replaced by %d; total %s -> %s", removed, len(items), before.StringFixed(2), order.TotalAmount.StringFixed(2))
	return s.appendTimeline(ctx, repos, fx, order.ID, domain.TimelineItemsReplaced, reason)
}

func (s *Service) createFromSync(ctx context.Context, repos domain.Repositories, fx *effects, in SyncOrderInput) (SyncResult, error) {
	now := s.clock()
	order := domain.Order{
		ID:          s.newID(),
		UUID:        in.UUID,
		TotalAmount: decimal.Zero,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	order.ApplyPatch(in.patch())

	items := s.buildItems(order.ID, in.Items)
	order.TotalAmount = domain.SumLineTotals(items)

	if err := repos.Orders.Create(ctx, order); err != nil {
		return SyncResult{}, err
	}
	if err := repos.Items.CreateBatch(ctx, items); err != nil {
		return SyncResult{}, err
	}

	reason := fmt.Sprintf("created from sync with %d items; total %s", len(items), order.TotalAmount.StringFixed(2))
	if err := s.appendTimeline(ctx, repos, fx, order.ID, domain.TimelineOrderCreated, reason); err != nil {
		return SyncResult{}, err
	}

	return s.finishSync(ctx, repos, fx, order.ID, OutcomeCreated)
}

// finishSync перечитывает заказ (версия и ItemIDs) и ставит событие order.synced в outbox.
func (s *Service) finishSync(ctx context.Context, repos domain.Repositories, fx *effects, orderID string, outcome SyncOutcome) (SyncResult, error) {
	stored, err := repos.Orders.Get(ctx, orderID)
	if err != nil {
		return SyncResult{}, err
	}
	items, err := repos.Items.ListByOrder(ctx, orderID)
	if err != nil {
		return SyncResult{}, err
	}

	if err := s.enqueue(ctx, repos, fx, orderID, domain.EventOrderSynced, eventPayload{
		UUID:        stored.UUID,
		Outcome:     string(outcome),
		ItemIDs:     stored.ItemIDs,
		TotalAmount: amount(stored.TotalAmount),
	}); err != nil {
		return SyncResult{}, err
	}

	return SyncResult{Order: stored, Items: items, Outcome: outcome}, nil
}

func (s *Service) buildItems(orderID string, inputs []ItemInput) []domain.OrderItem {
	now := s.clock()
	items := make([]domain.OrderItem, 0, len(inputs))
	for _, in := range inputs {
		items = append(items, domain.OrderItem{
			ID:        s.newID(),
			OrderID:   orderID,
			ItemName:  in.ItemName,
			Quantity:  in.Quantity,
			Price:     in.Price,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}
	return items
}
