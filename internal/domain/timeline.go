package domain

import "time"

// Типы событий в истории заказа.
const (
	TimelineOrderCreated      = "order_created"
	TimelineOrderSynced       = "order_synced"
	TimelineOrderUpdated      = "order_updated"
	TimelineItemsReplaced     = "items_replaced"
	TimelineItemAdded         = "item_added"
	TimelineItemUpdated       = "item_updated"
	TimelineItemRemoved       = "item_removed"
	TimelineTotalRecalculated = "total_recalculated"
)

// TimelineEvent описывает событие в жизненном цикле заказа.
type TimelineEvent struct {
	OrderID string
	Type    string
	// Reason — короткое человекочитаемое пояснение (например, "total 10 -> 20").
	Reason   string
	Occurred time.Time
}
