package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	idempotencyHeader = "Idempotency-Key"

	methodScenario   = "scenario"
	methodSyncOrder  = "SyncOrder"
	methodResync     = "ResyncStale"
	methodCreateItem = "CreateItem"
	methodUpdateItem = "UpdateItem"
	methodDeleteItem = "DeleteItem"
	methodGetOrder   = "GetOrder"
)

var errTotalMismatch = errors.New("total amount mismatch")

type itemPayload struct {
	OrderID  string          `json:"orderId,omitempty"`
	ItemName string          `json:"itemName"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

type syncPayload struct {
	UUID       string        `json:"uuid"`
	BakerName  string        `json:"bakerName"`
	Status     string        `json:"status"`
	UpdatedAt  string        `json:"updatedAt"`
	OrderItems []itemPayload `json:"orderItems"`
}

type orderBody struct {
	ID          string `json:"id"`
	TotalAmount string `json:"totalAmount"`
}

type itemBody struct {
	ID string `json:"id"`
}

// apiClient — тонкий HTTP-клиент к API заказов пекарни.
type apiClient struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	col     *collector
}

func newAPIClient(baseURL string, httpClient *http.Client, timeout time.Duration, col *collector) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		timeout: timeout,
		col:     col,
	}
}

// do выполняет запрос, записывает метрику и декодирует тело при статусе < 400.
func (c *apiClient) do(ctx context.Context, method, name, path, key string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(raw)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set(idempotencyHeader, key)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.col.record(name, time.Since(start), 0)
		return 0, err
	}
	defer resp.Body.Close()
	c.col.record(name, time.Since(start), resp.StatusCode)

	if resp.StatusCode >= http.StatusBadRequest {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resp.StatusCode, fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode %s response: %w", name, err)
		}
	}
	return resp.StatusCode, nil
}

func (c *apiClient) syncOrder(ctx context.Context, name string, payload syncPayload, key string) (orderBody, int, error) {
	var out orderBody
	status, err := c.do(ctx, http.MethodPost, name, "/api/orders", key, payload, &out)
	return out, status, err
}

func (c *apiClient) createItem(ctx context.Context, payload itemPayload, key string) (itemBody, error) {
	var out itemBody
	_, err := c.do(ctx, http.MethodPost, methodCreateItem, "/api/orderItems", key, payload, &out)
	return out, err
}

func (c *apiClient) updateItemQuantity(ctx context.Context, id string, quantity int) error {
	_, err := c.do(ctx, http.MethodPut, methodUpdateItem, "/api/orderItems/"+id, "", map[string]int{"quantity": quantity}, nil)
	return err
}

func (c *apiClient) deleteItem(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, methodDeleteItem, "/api/orderItems/"+id, "", nil, nil)
	return err
}

func (c *apiClient) getOrder(ctx context.Context, id string) (orderBody, error) {
	var out orderBody
	_, err := c.do(ctx, http.MethodGet, methodGetOrder, "/api/orders/"+id, "", nil, &out)
	return out, err
}

// runScenario прогоняет один сценарий и сверяет итоговую сумму заказа с ожидаемой.
func runScenario(ctx context.Context, client *apiClient, cfg config, index int, runID string) (err error) {
	scenarioStart := time.Now()
	defer func() {
		status := http.StatusOK
		if err != nil {
			status = http.StatusInternalServerError
		}
		client.col.record(methodScenario, time.Since(scenarioStart), status)
	}()

	updatedAt := time.Now().UTC()
	payload := syncPayload{
		UUID:      uuid.NewString(),
		BakerName: fmt.Sprintf("%s-%s-%d", cfg.bakerTag, runID, index),
		Status:    "pending",
		UpdatedAt: updatedAt.Format(time.RFC3339Nano),
		OrderItems: []itemPayload{
			{ItemName: cfg.itemName, Quantity: 2, Price: cfg.price},
			{ItemName: cfg.itemName + "-extra", Quantity: 1, Price: cfg.price},
		},
	}
	// 2 + 1 единицы
	units := int64(3)

	order, status, err := client.syncOrder(ctx, methodSyncOrder, payload, fmt.Sprintf("lt-sync-%s-%d", runID, index))
	if err != nil {
		return err
	}
	if status != http.StatusCreated {
		return fmt.Errorf("sync returned %d, want %d", status, http.StatusCreated)
	}
	if order.ID == "" {
		return errors.New("sync response returned empty order id")
	}
	if err := client.expectTotal(order, cfg.price, units); err != nil {
		return err
	}

	if shouldResyncStale(index, cfg.resyncRate) {
		stale := payload
		stale.Status = "stale"
		stale.UpdatedAt = updatedAt.Add(-time.Hour).Format(time.RFC3339Nano)
		resynced, status, err := client.syncOrder(ctx, methodResync, stale, "")
		if err != nil {
			return err
		}
		if status != http.StatusOK {
			return fmt.Errorf("stale resync returned %d, want %d", status, http.StatusOK)
		}
		if err := client.expectTotal(resynced, cfg.price, units); err != nil {
			return err
		}
	}

	if cfg.mode == modeSync {
		return nil
	}

	item, err := client.createItem(ctx, itemPayload{
		OrderID:  order.ID,
		ItemName: cfg.itemName + "-edit",
		Quantity: 1,
		Price:    cfg.price,
	}, fmt.Sprintf("lt-item-%s-%d", runID, index))
	if err != nil {
		return err
	}
	if item.ID == "" {
		return errors.New("create item returned empty id")
	}
	units++

	if err := client.updateItemQuantity(ctx, item.ID, 3); err != nil {
		return err
	}
	units += 2

	if cfg.mode == modeSyncEditDelete {
		if err := client.deleteItem(ctx, item.ID); err != nil {
			return err
		}
		units -= 3
	}

	current, err := client.getOrder(ctx, order.ID)
	if err != nil {
		return err
	}
	return client.expectTotal(current, cfg.price, units)
}

func (c *apiClient) expectTotal(order orderBody, price decimal.Decimal, units int64) error {
	want := price.Mul(decimal.NewFromInt(units))
	got, err := decimal.NewFromString(order.TotalAmount)
	if err != nil {
		return fmt.Errorf("parse total %q: %w", order.TotalAmount, err)
	}
	if !got.Equal(want) {
		c.col.recordMismatch()
		return fmt.Errorf("%w: order %s got %s want %s", errTotalMismatch, order.ID, got.StringFixed(2), want.StringFixed(2))
	}
	return nil
}

func shouldResyncStale(index, rate int) bool {
	if rate <= 0 {
		return false
	}
	if rate >= 100 {
		return true
	}
	return index%100 < rate
}
