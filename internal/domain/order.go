package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// maxPriceScale ограничивает точность цены копейками.
const maxPriceScale = 2

// Верхние границы позиции согласованы со столбцами order_items и orders.total_amount.
const (
	MaxItemQuantity = 1_000_000
	maxItemPriceRaw = "99999.99"
)

// MaxItemPrice — максимальная цена за единицу.
var MaxItemPrice = decimal.RequireFromString(maxItemPriceRaw)

// OrderItem представляет одну позицию заказа.
type OrderItem struct {
	// ID позиции нужен для однозначной идентификации и аудита.
	ID string
	// OrderID — обратная ссылка на заказ-владелец.
	OrderID string
	// ItemName — название изделия (например, "круассан").
	ItemName string
	// Quantity — количество единиц, не меньше 1.
	Quantity int
	// Price — цена за единицу, неотрицательная.
	Price     decimal.Decimal
	CreatedAt time.Time
	UpdatedAt time.Time
}

// LineTotal возвращает вклад позиции в сумму заказа: quantity * price.
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Validate проверяет инварианты позиции. Все нарушения собираются в один ValidationError.
func (i OrderItem) Validate() error {
	var errs []error

	if strings.TrimSpace(i.OrderID) == "" {
		errs = append(errs, ErrOrderIDRequired)
	}
	errs = append(errs, i.validateFields()...)

	return NewValidationError(errs...)
}

// ValidateDetached проверяет поля позиции без ссылки на заказ (вложенные позиции при синхронизации).
func (i OrderItem) ValidateDetached() error {
	return NewValidationError(i.validateFields()...)
}

func (i OrderItem) validateFields() []error {
	var errs []error
	if strings.TrimSpace(i.ItemName) == "" {
		errs = append(errs, ErrItemNameRequired)
	}
	if i.Quantity < 1 {
		errs = append(errs, ErrItemQuantityInvalid)
	}
	if i.Quantity > MaxItemQuantity {
		errs = append(errs, ErrItemQuantityTooLarge)
	}
	if i.Price.IsNegative() {
		errs = append(errs, ErrItemPriceNegative)
	}
	if i.Price.GreaterThan(MaxItemPrice) {
		errs = append(errs, ErrItemPriceTooLarge)
	}
	if !i.Price.Equal(i.Price.Round(maxPriceScale)) {
		errs = append(errs, ErrItemPricePrecision)
	}
	return errs
}

// SumLineTotals считает сумму quantity*price по всем позициям.
func SumLineTotals(items []OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.LineTotal())
	}
	return total
}

// Order агрегирует состояние заказа пекарни.
type Order struct {
	ID string
	// UUID — ключ синхронизации, который генерирует клиент (офлайн-режим). Неизменяем.
	UUID      string
	BakerName string
	// Status хранится как непрозрачная метка, переходы не проверяются.
	Status       string
	DeliveryDate *time.Time
	// TotalAmount — производное значение: сумма quantity*price по позициям заказа.
	TotalAmount decimal.Decimal
	// ItemIDs заполняется репозиторием при чтении из принадлежащих заказу позиций.
	ItemIDs   []string
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// OrderPatch описывает перезаписываемые поля заказа. nil означает "не менять".
type OrderPatch struct {
	UUID         *string
	BakerName    *string
	Status       *string
	DeliveryDate *time.Time
	UpdatedAt    *time.Time
}

// Clone возвращает глубокую копию заказа.
func (o Order) Clone() Order {
	out := o
	if o.DeliveryDate != nil {
		d := *o.DeliveryDate
		out.DeliveryDate = &d
	}
	if o.ItemIDs != nil {
		out.ItemIDs = append([]string(nil), o.ItemIDs...)
	}
	return out
}

// ApplyPatch перезаписывает переданные поля. UUID здесь не меняется: его сверяет вызывающий код.
func (o *Order) ApplyPatch(p OrderPatch) {
	if p.BakerName != nil {
		o.BakerName = *p.BakerName
	}
	if p.Status != nil {
		o.Status = *p.Status
	}
	if p.DeliveryDate != nil {
		d := *p.DeliveryDate
		o.DeliveryDate = &d
	}
	if p.UpdatedAt != nil {
		o.UpdatedAt = p.UpdatedAt.UTC()
	}
}

// AdjustTotal сдвигает сумму заказа на delta.
func (o *Order) AdjustTotal(delta decimal.Decimal) {
	o.TotalAmount = o.TotalAmount.Add(delta)
}

// IsNewerThan сообщает, строго ли ts позже сохранённого UpdatedAt (last-write-wins).
func (o Order) IsNewerThan(ts *time.Time) bool {
	if ts == nil {
		return false
	}
	return ts.After(o.UpdatedAt)
}
