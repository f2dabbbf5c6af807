package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
	"github.com/vladislavdragonenkov/bakery/internal/storage/memory"
)

func newOrder(id, uuid string) domain.Order {
	now := time.Now().UTC()
	return domain.Order{
		ID:          id,
		UUID:        uuid,
		BakerName:   "Anna",
		Status:      "new",
		TotalAmount: decimal.Zero,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func newItem(id, orderID string, qty int, price string) domain.OrderItem {
	return domain.OrderItem{
		ID:       id,
		OrderID:  orderID,
		ItemName: "baguette",
		Quantity: qty,
		Price:    decimal.RequireFromString(price),
	}
}

func TestOrderRepository_CreateGet(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewStore().Orders()
	order := newOrder("order-1", "client-1")

	if err := repo.Create(ctx, order); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	stored, err := repo.Get(ctx, order.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if stored.ID != order.ID || stored.UUID != order.UUID {
		t.Fatalf("unexpected order %+v", stored)
	}

	byUUID, err := repo.GetByUUID(ctx, "client-1")
	if err != nil {
		t.Fatalf("get by uuid failed: %v", err)
	}
	if byUUID.ID != order.ID {
		t.Fatalf("expected id %s, got %s", order.ID, byUUID.ID)
	}

	if _, err := repo.Get(ctx, "missing"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
	if _, err := repo.GetByUUID(ctx, "missing"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound by uuid, got %v", err)
	}
}

func TestOrderRepository_CreateDuplicateUUID(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewStore().Orders()

	if err := repo.Create(ctx, newOrder("order-1", "client-1")); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := repo.Create(ctx, newOrder("order-2", "client-1")); !errors.Is(err, domain.ErrOrderUUIDConflict) {
		t.Fatalf("expected ErrOrderUUIDConflict, got %v", err)
	}
	if err := repo.Create(ctx, newOrder("order-1", "client-2")); !errors.Is(err, domain.ErrOrderExists) {
		t.Fatalf("expected ErrOrderExists, got %v", err)
	}
}

func TestOrderRepository_SaveOptimisticLock(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewStore().Orders()
	order := newOrder("order-1", "client-1")
	if err := repo.Create(ctx, order); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	stored, _ := repo.Get(ctx, order.ID)
	stored.TotalAmount = decimal.RequireFromString("12.50")
	if err := repo.Save(ctx, stored); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	// Повторное сохранение со старой версией должно конфликтовать.
	if err := repo.Save(ctx, stored); !errors.Is(err, domain.ErrOrderVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}

	latest, _ := repo.Get(ctx, order.ID)
	if latest.Version != 1 {
		t.Fatalf("expected version 1, got %d", latest.Version)
	}
	if !latest.TotalAmount.Equal(decimal.RequireFromString("12.5")) {
		t.Fatalf("unexpected total %s", latest.TotalAmount)
	}

	missing := newOrder("nope", "x")
	if err := repo.Save(ctx, missing); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestOrderRepository_ItemIDsDerivedFromItems(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	orders, items := store.Orders(), store.Items()

	if err := orders.Create(ctx, newOrder("order-1", "client-1")); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	batch := []domain.OrderItem{
		newItem("i-1", "order-1", 1, "2.00"),
		newItem("i-2", "order-1", 2, "3.00"),
		newItem("i-3", "order-2", 1, "1.00"),
	}
	if err := items.CreateBatch(ctx, batch); err != nil {
		t.Fatalf("create batch failed: %v", err)
	}

	order, _ := orders.Get(ctx, "order-1")
	if len(order.ItemIDs) != 2 || order.ItemIDs[0] != "i-1" || order.ItemIDs[1] != "i-2" {
		t.Fatalf("unexpected item ids %v", order.ItemIDs)
	}
}

func TestOrderRepository_ListAndDelete(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	orders, items := store.Orders(), store.Items()

	for _, o := range []domain.Order{newOrder("a", "u-a"), newOrder("b", "u-b"), newOrder("c", "u-c")} {
		if err := orders.Create(ctx, o); err != nil {
			t.Fatalf("create failed: %v", err)
		}
	}
	if err := items.Create(ctx, newItem("i-1", "b", 1, "1.00")); err != nil {
		t.Fatalf("create item failed: %v", err)
	}

	list, err := orders.List(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(list) != 3 || list[0].ID != "a" || list[2].ID != "c" {
		t.Fatalf("unexpected list %+v", list)
	}

	if err := orders.Delete(ctx, "b"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if err := orders.Delete(ctx, "b"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound on second delete, got %v", err)
	}
	if _, err := orders.GetByUUID(ctx, "u-b"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("uuid index must be cleared, got %v", err)
	}
	// Позиции не удаляются каскадно.
	if _, err := items.Get(ctx, "i-1"); err != nil {
		t.Fatalf("expected item to survive order deletion, got %v", err)
	}
}
