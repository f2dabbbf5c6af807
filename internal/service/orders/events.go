package orders

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// eventPayload — тело события заказа в outbox.
type eventPayload struct {
	EventType   string           `json:"eventType"`
	OrderID     string           `json:"orderId"`
	UUID        string           `json:"uuid,omitempty"`
	Outcome     string           `json:"outcome,omitempty"`
	ItemID      string           `json:"itemId,omitempty"`
	ItemIDs     []string         `json:"itemIds,omitempty"`
	TotalAmount *decimal.Decimal `json:"totalAmount,omitempty"`
	Delta       *decimal.Decimal `json:"delta,omitempty"`
	OccurredAt  time.Time        `json:"occurredAt"`
}

func (p eventPayload) marshal() ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal %s event: %w", p.EventType, err)
	}
	return data, nil
}

func amount(d decimal.Decimal) *decimal.Decimal {
	return &d
}
