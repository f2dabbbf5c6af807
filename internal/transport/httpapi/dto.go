package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
	"github.com/vladislavdragonenkov/bakery/internal/service/orders"
)

// moneyScale — количество знаков после запятой в ответах API.
const moneyScale = 2

// timestampLayouts — форматы дат, которые принимает API.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	time.DateOnly,
}

// Timestamp принимает RFC3339, дату-время без зоны (UTC) или голую дату.
type Timestamp struct {
	time.Time
}

// UnmarshalJSON разбирает строку даты; null оставляет нулевое значение.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("timestamp must be a string: %w", err)
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("unsupported timestamp %q", raw)
}

func (t *Timestamp) ptr() *time.Time {
	if t == nil {
		return nil
	}
	v := t.Time
	return &v
}

// ItemRequest — позиция во вложенном списке orderItems запроса синхронизации.
type ItemRequest struct {
	ItemName string           `json:"itemName"`
	Quantity int              `json:"quantity"`
	Price    *decimal.Decimal `json:"price"`
}

// SyncOrderRequest — тело POST /orders.
type SyncOrderRequest struct {
	UUID         string        `json:"uuid"`
	BakerName    *string       `json:"bakerName"`
	Status       *string       `json:"status"`
	DeliveryDate *Timestamp    `json:"deliveryDate"`
	UpdatedAt    *Timestamp    `json:"updatedAt"`
	OrderItems   []ItemRequest `json:"orderItems"`
	// TotalAmount принимается для совместимости с клиентами и игнорируется.
	TotalAmount *decimal.Decimal `json:"totalAmount,omitempty"`
}

func (r SyncOrderRequest) toInput() (orders.SyncOrderInput, error) {
	in := orders.SyncOrderInput{
		UUID:         r.UUID,
		BakerName:    r.BakerName,
		Status:       r.Status,
		DeliveryDate: r.DeliveryDate.ptr(),
		UpdatedAt:    r.UpdatedAt.ptr(),
	}
	var errs []error
	for i, item := range r.OrderItems {
		if item.Price == nil {
			errs = append(errs, fmt.Errorf("orderItems[%d]: %w", i, domain.ErrItemPriceRequired))
			continue
		}
		in.Items = append(in.Items, orders.ItemInput{
			ItemName: item.ItemName,
			Quantity: item.Quantity,
			Price:    *item.Price,
		})
	}
	return in, domain.NewValidationError(errs...)
}

// UpdateOrderRequest — тело PUT /orders/:id.
type UpdateOrderRequest struct {
	UUID         *string          `json:"uuid"`
	BakerName    *string          `json:"bakerName"`
	Status       *string          `json:"status"`
	DeliveryDate *Timestamp       `json:"deliveryDate"`
	UpdatedAt    *Timestamp       `json:"updatedAt"`
	TotalAmount  *decimal.Decimal `json:"totalAmount,omitempty"`
}

func (r UpdateOrderRequest) toPatch() domain.OrderPatch {
	return domain.OrderPatch{
		UUID:         r.UUID,
		BakerName:    r.BakerName,
		Status:       r.Status,
		DeliveryDate: r.DeliveryDate.ptr(),
		UpdatedAt:    r.UpdatedAt.ptr(),
	}
}

// CreateItemRequest — тело POST /orderItems.
type CreateItemRequest struct {
	OrderID  string           `json:"orderId"`
	ItemName string           `json:"itemName"`
	Quantity int              `json:"quantity"`
	Price    *decimal.Decimal `json:"price"`
}

func (r CreateItemRequest) toInput() (orders.CreateItemInput, error) {
	if r.Price == nil {
		return orders.CreateItemInput{}, domain.NewValidationError(domain.ErrItemPriceRequired)
	}
	return orders.CreateItemInput{
		OrderID:  r.OrderID,
		ItemName: r.ItemName,
		Quantity: r.Quantity,
		Price:    *r.Price,
	}, nil
}

// UpdateItemRequest — тело PUT /orderItems/:id; отсутствующие поля не меняются.
type UpdateItemRequest struct {
	ItemName *string          `json:"itemName"`
	Quantity *int             `json:"quantity"`
	Price    *decimal.Decimal `json:"price"`
}

func (r UpdateItemRequest) toInput() orders.UpdateItemInput {
	return orders.UpdateItemInput{
		ItemName: r.ItemName,
		Quantity: r.Quantity,
		Price:    r.Price,
	}
}

// OrderResponse — представление заказа в API.
type OrderResponse struct {
	ID           string         `json:"id"`
	UUID         string         `json:"uuid"`
	BakerName    string         `json:"bakerName"`
	Status       string         `json:"status"`
	DeliveryDate *time.Time     `json:"deliveryDate"`
	TotalAmount  string         `json:"totalAmount"`
	Items        []string       `json:"items"`
	OrderItems   []ItemResponse `json:"orderItems,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

func newOrderResponse(o domain.Order) OrderResponse {
	items := o.ItemIDs
	if items == nil {
		items = []string{}
	}
	return OrderResponse{
		ID:           o.ID,
		UUID:         o.UUID,
		BakerName:    o.BakerName,
		Status:       o.Status,
		DeliveryDate: o.DeliveryDate,
		TotalAmount:  o.TotalAmount.StringFixed(moneyScale),
		Items:        items,
		CreatedAt:    o.CreatedAt,
		UpdatedAt:    o.UpdatedAt,
	}
}

func newOrderResponses(list []domain.Order) []OrderResponse {
	out := make([]OrderResponse, 0, len(list))
	for _, o := range list {
		out = append(out, newOrderResponse(o))
	}
	return out
}

// ItemResponse — представление позиции заказа в API.
type ItemResponse struct {
	ID        string    `json:"id"`
	OrderID   string    `json:"orderId"`
	ItemName  string    `json:"itemName"`
	Quantity  int       `json:"quantity"`
	Price     string    `json:"price"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func newItemResponse(i domain.OrderItem) ItemResponse {
	return ItemResponse{
		ID:        i.ID,
		OrderID:   i.OrderID,
		ItemName:  i.ItemName,
		Quantity:  i.Quantity,
		Price:     i.Price.StringFixed(moneyScale),
		CreatedAt: i.CreatedAt,
		UpdatedAt: i.UpdatedAt,
	}
}

func newItemResponses(list []domain.OrderItem) []ItemResponse {
	out := make([]ItemResponse, 0, len(list))
	for _, i := range list {
		out = append(out, newItemResponse(i))
	}
	return out
}

// TimelineEventResponse — запись истории заказа.
type TimelineEventResponse struct {
	Type       string    `json:"type"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

func newTimelineResponses(events []domain.TimelineEvent) []TimelineEventResponse {
	out := make([]TimelineEventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, TimelineEventResponse{Type: e.Type, Reason: e.Reason, OccurredAt: e.Occurred})
	}
	return out
}

// MessageResponse — тело ошибок и подтверждений удаления.
type MessageResponse struct {
	Message string `json:"message"`
}
