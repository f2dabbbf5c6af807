package httpapi

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
	"github.com/vladislavdragonenkov/bakery/internal/service/orders"
)

// OrderService — операции над заказами, которые обслуживает HTTP API.
type OrderService interface {
	SyncOrder(ctx context.Context, in orders.SyncOrderInput) (orders.SyncResult, error)
	GetOrder(ctx context.Context, id string) (domain.Order, error)
	ListOrders(ctx context.Context) ([]domain.Order, error)
	UpdateOrder(ctx context.Context, id string, patch domain.OrderPatch) (domain.Order, error)
	DeleteOrder(ctx context.Context, id string) error
	Timeline(ctx context.Context, orderID string) ([]domain.TimelineEvent, error)
	RecalculateTotal(ctx context.Context, orderID string) (domain.Order, error)

	CreateItem(ctx context.Context, in orders.CreateItemInput) (domain.OrderItem, error)
	GetItem(ctx context.Context, id string) (domain.OrderItem, error)
	ListItems(ctx context.Context) ([]domain.OrderItem, error)
	ListItemsByOrder(ctx context.Context, orderID string) ([]domain.OrderItem, error)
	UpdateItem(ctx context.Context, id string, in orders.UpdateItemInput) (domain.OrderItem, error)
	DeleteItem(ctx context.Context, id string) error
}

type handler struct {
	svc    OrderService
	logger *log.Entry
}

func (h *handler) syncOrder(c *gin.Context) {
	var req SyncOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.abortWithError(c, malformed(err))
		return
	}
	in, err := req.toInput()
	if err != nil {
		h.abortWithError(c, err)
		return
	}

	res, err := h.svc.SyncOrder(c.Request.Context(), in)
	if err != nil {
		h.abortWithError(c, err)
		return
	}

	status := http.StatusOK
	if res.Outcome == orders.OutcomeCreated {
		status = http.StatusCreated
	}
	body := newOrderResponse(res.Order)
	body.OrderItems = newItemResponses(res.Items)
	c.JSON(status, body)
}

func (h *handler) listOrders(c *gin.Context) {
	list, err := h.svc.ListOrders(c.Request.Context())
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, newOrderResponses(list))
}

func (h *handler) getOrder(c *gin.Context) {
	order, err := h.svc.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, newOrderResponse(order))
}

func (h *handler) updateOrder(c *gin.Context) {
	var req UpdateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.abortWithError(c, malformed(err))
		return
	}

	order, err := h.svc.UpdateOrder(c.Request.Context(), c.Param("id"), req.toPatch())
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, newOrderResponse(order))
}

func (h *handler) deleteOrder(c *gin.Context) {
	if err := h.svc.DeleteOrder(c.Request.Context(), c.Param("id")); err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "Order deleted successfully"})
}

func (h *handler) orderTimeline(c *gin.Context) {
	events, err := h.svc.Timeline(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, newTimelineResponses(events))
}

func (h *handler) recalculateOrder(c *gin.Context) {
	order, err := h.svc.RecalculateTotal(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, newOrderResponse(order))
}

func (h *handler) createItem(c *gin.Context) {
	var req CreateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.abortWithError(c, malformed(err))
		return
	}
	in, err := req.toInput()
	if err != nil {
		h.abortWithError(c, err)
		return
	}

	item, err := h.svc.CreateItem(c.Request.Context(), in)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newItemResponse(item))
}

func (h *handler) listItems(c *gin.Context) {
	items, err := h.svc.ListItems(c.Request.Context())
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, newItemResponses(items))
}

func (h *handler) listItemsByOrder(c *gin.Context) {
	items, err := h.svc.ListItemsByOrder(c.Request.Context(), c.Param("orderId"))
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, newItemResponses(items))
}

func (h *handler) getItem(c *gin.Context) {
	item, err := h.svc.GetItem(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, newItemResponse(item))
}

func (h *handler) updateItem(c *gin.Context) {
	var req UpdateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.abortWithError(c, malformed(err))
		return
	}

	item, err := h.svc.UpdateItem(c.Request.Context(), c.Param("id"), req.toInput())
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, newItemResponse(item))
}

func (h *handler) deleteItem(c *gin.Context) {
	if err := h.svc.DeleteItem(c.Request.Context(), c.Param("id")); err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "Order item deleted"})
}
