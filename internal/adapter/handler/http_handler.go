package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/rl1809/card-shop/internal/core/domain"
	"github.com/rl1809/card-shop/internal/core/service"
	"github.com/rl1809/card-shop/internal/metrics"
)

const IdempotencyKeyHeader = "Idempotency-Key"

type CartService interface {
	AddItem(ctx context.Context, caller domain.Identity, itemID int64, quantity int) (*domain.CartLine, error)
	SetQuantity(ctx context.Context, caller domain.Identity, lineID int64, quantity int) (*domain.CartLine, error)
	RemoveItem(ctx context.Context, caller domain.Identity, lineID int64) error
	ListCart(ctx context.Context, caller domain.Identity) ([]domain.CartLineView, error)
}

type CheckoutService interface {
	Commit(ctx context.Context, caller domain.Identity, idempotencyKey string) (*service.CheckoutResult, error)
}

type OrderService interface {
	GetOrder(ctx context.Context, caller domain.Identity, orderID int64) (*domain.Order, error)
	ListOrders(ctx context.Context, caller domain.Identity) ([]domain.Order, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type HTTPHandler struct {
	cart     CartService
	checkout CheckoutService
	orders   OrderService
	db       Pinger
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

type AddItemRequest struct {
	ItemID   *int64 `json:"itemId"`
	Quantity *int   `json:"quantity"`
}

type SetQuantityRequest struct {
	Quantity *int `json:"quantity"`
}

type CheckoutResponse struct {
	OrderID    int64  `json:"orderId"`
	TotalValue string `json:"totalValue"`
}

func NewHTTPHandler(cart CartService, checkout CheckoutService, orders OrderService, db Pinger, m *metrics.Metrics, logger *zap.Logger) *HTTPHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.New()
	}
	return &HTTPHandler{
		cart:     cart,
		checkout: checkout,
		orders:   orders,
		db:       db,
		metrics:  m,
		logger:   logger,
	}
}

func (h *HTTPHandler) AddItem(c *gin.Context) {
	var req AddItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.countCart("add", domain.ErrValidation)
		writeJSON(c, http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.ItemID == nil || req.Quantity == nil {
		h.countCart("add", domain.ErrValidation)
		writeJSON(c, http.StatusBadRequest, gin.H{"error": "itemId and quantity are required"})
		return
	}

	line, err := h.cart.AddItem(c.Request.Context(), identityFrom(c), *req.ItemID, *req.Quantity)
	h.countCart("add", err)
	if err != nil {
		h.writeError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, line)
}

func (h *HTTPHandler) ListCart(c *gin.Context) {
	views, err := h.cart.ListCart(c.Request.Context(), identityFrom(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, views)
}

func (h *HTTPHandler) SetQuantity(c *gin.Context) {
	lineID, ok := pathID(c, "lineId")
	if !ok {
		return
	}
	var req SetQuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Quantity == nil {
		h.countCart("update", domain.ErrValidation)
		writeJSON(c, http.StatusBadRequest, gin.H{"error": "quantity is required"})
		return
	}

	line, err := h.cart.SetQuantity(c.Request.Context(), identityFrom(c), lineID, *req.Quantity)
	h.countCart("update", err)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if line == nil {
		c.Status(http.StatusNoContent)
		return
	}
	writeJSON(c, http.StatusOK, line)
}

func (h *HTTPHandler) RemoveItem(c *gin.Context) {
	lineID, ok := pathID(c, "lineId")
	if !ok {
		return
	}
	err := h.cart.RemoveItem(c.Request.Context(), identityFrom(c), lineID)
	h.countCart("remove", err)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *HTTPHandler) Checkout(c *gin.Context) {
	result, err := h.checkout.Commit(c.Request.Context(), identityFrom(c), c.GetHeader(IdempotencyKeyHeader))
	if err != nil {
		h.metrics.Checkouts.WithLabelValues(outcome(err)).Inc()
		h.writeError(c, err)
		return
	}

	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
		h.metrics.Checkouts.WithLabelValues("replayed").Inc()
	} else {
		h.metrics.Checkouts.WithLabelValues("completed").Inc()
	}
	writeJSON(c, status, CheckoutResponse{
		OrderID:    result.Order.ID,
		TotalValue: result.Order.TotalValue.StringFixed(2),
	})
}

func (h *HTTPHandler) ListOrders(c *gin.Context) {
	orders, err := h.orders.ListOrders(c.Request.Context(), identityFrom(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, orders)
}

func (h *HTTPHandler) GetOrder(c *gin.Context) {
	orderID, ok := pathID(c, "orderId")
	if !ok {
		return
	}
	order, err := h.orders.GetOrder(c.Request.Context(), identityFrom(c), orderID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, order)
}

func (h *HTTPHandler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := h.db.Ping(ctx); err != nil {
		h.logger.Warn("health check failed", zap.Error(err))
		writeJSON(c, http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"status": "ok"})
}

// StatusFor maps a service error to its HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrOutOfStock),
		errors.Is(err, domain.ErrEmptyCart):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInsufficientStock),
		errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *HTTPHandler) writeError(c *gin.Context, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("request_id", c.GetString(RequestIDKey)),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		writeJSON(c, status, gin.H{"error": "internal error"})
		return
	}

	body := gin.H{"error": err.Error()}
	var stockErr *domain.StockError
	if errors.As(err, &stockErr) {
		body["error"] = stockErr.Error()
		body["itemId"] = stockErr.ItemID
		body["requested"] = stockErr.Requested
		body["available"] = stockErr.Available
	}
	writeJSON(c, status, body)
}

func (h *HTTPHandler) countCart(op string, err error) {
	h.metrics.CartMutations.WithLabelValues(op, outcome(err)).Inc()
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrOutOfStock):
		return "out_of_stock"
	case errors.Is(err, domain.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, domain.ErrEmptyCart):
		return "empty_cart"
	case errors.Is(err, domain.ErrConflict):
		return "conflict"
	}
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		return "error"
	}
	return "rejected"
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(c, http.StatusBadRequest, gin.H{"error": name + " must be a positive integer"})
		return 0, false
	}
	return id, true
}

func writeJSON(c *gin.Context, status int, data interface{}) {
	c.JSON(status, data)
}
