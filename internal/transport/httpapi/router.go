package httpapi

import (
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
	"github.com/vladislavdragonenkov/bakery/internal/metrics"
)

// Config собирает зависимости HTTP API.
type Config struct {
	Service        OrderService
	Idempotency    domain.IdempotencyRepository
	IdempotencyTTL time.Duration
	Metrics        *metrics.HTTPMetrics
	Logger         *log.Entry
}

// mountPrefixes — API доступно под /api и без префикса.
var mountPrefixes = []string{"/api", ""}

// NewRouter собирает gin.Engine с middleware и маршрутами заказов.
func NewRouter(cfg Config) *gin.Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = log.WithField("component", "http")
	}

	r := gin.New()
	r.Use(
		RequestID(),
		Recovery(logger),
		AccessLog(logger),
		Metrics(cfg.Metrics),
		CORS(),
	)
	r.NoRoute(func(c *gin.Context) {
		c.JSON(404, MessageResponse{Message: "route not found"})
	})

	h := &handler{svc: cfg.Service, logger: logger}
	idem := Idempotency(cfg.Idempotency, cfg.IdempotencyTTL, logger)

	for _, prefix := range mountPrefixes {
		g := r.Group(prefix)

		ordersGroup := g.Group("/orders")
		ordersGroup.POST("", idem, h.syncOrder)
		ordersGroup.GET("", h.listOrders)
		ordersGroup.GET("/:id", h.getOrder)
		ordersGroup.PUT("/:id", h.updateOrder)
		ordersGroup.DELETE("/:id", h.deleteOrder)
		ordersGroup.GET("/:id/timeline", h.orderTimeline)
		ordersGroup.POST("/:id/recalculate", h.recalculateOrder)

		itemsGroup := g.Group("/orderItems")
		itemsGroup.POST("", idem, h.createItem)
		itemsGroup.GET("", h.listItems)
		itemsGroup.GET("/order/:orderId", h.listItemsByOrder)
		itemsGroup.GET("/:id", h.getItem)
		itemsGroup.PUT("/:id", h.updateItem)
		itemsGroup.DELETE("/:id", h.deleteItem)
	}

	return r
}
