package httpserver

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"restaurant-fulfillment/internal/domain"
	orderrepo "restaurant-fulfillment/internal/repository/order"
)

type transitionRequest struct {
	Status domain.OrderStatus `json:"status" binding:"required"`
	Note   string             `json:"note"`
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

func (h *handlers) listOrders(c *gin.Context) {
	filter := orderrepo.ListFilter{
		Status:     domain.OrderStatus(strings.TrimSpace(c.Query("status"))),
		CustomerID: strings.TrimSpace(c.Query("customerId")),
		Limit:      queryInt(c, "limit", 50),
		Offset:     queryInt(c, "offset", 0),
	}
	orders, err := h.deps.OrderSvc.List(c.Request.Context(), filter, actorFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	if orders == nil {
		orders = []domain.Order{}
	}
	c.JSON(http.StatusOK, gin.H{"results": orders, "count": len(orders), "offset": filter.Offset})
}

// loadOrder accepts either the order id or its human-readable number.
func (h *handlers) loadOrder(c *gin.Context) (*domain.Order, bool) {
	ref := strings.TrimSpace(c.Param("id"))
	var (
		order *domain.Order
		err   error
	)
	if _, perr := uuid.Parse(ref); perr == nil {
		order, err = h.deps.OrderSvc.Get(c.Request.Context(), ref, actorFrom(c))
	} else {
		order, err = h.deps.OrderSvc.GetByNumber(c.Request.Context(), ref, actorFrom(c))
	}
	if err != nil {
		writeError(c, err)
		return nil, false
	}
	return order, true
}

// orderID resolves an order number to its id; ids pass through untouched.
func (h *handlers) orderID(c *gin.Context) (string, bool) {
	ref := strings.TrimSpace(c.Param("id"))
	if _, err := uuid.Parse(ref); err == nil {
		return ref, true
	}
	order, ok := h.loadOrder(c)
	if !ok {
		return "", false
	}
	return order.ID, true
}

func (h *handlers) getOrder(c *gin.Context) {
	order, ok := h.loadOrder(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *handlers) transitionOrder(c *gin.Context) {
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	id, ok := h.orderID(c)
	if !ok {
		return
	}
	order, err := h.deps.OrderSvc.Transition(c.Request.Context(), id, req.Status, req.Note, actorFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *handlers) cancelOrder(c *gin.Context) {
	var req reasonRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		badRequest(c, err)
		return
	}
	id, ok := h.orderID(c)
	if !ok {
		return
	}
	order, err := h.deps.OrderSvc.Cancel(c.Request.Context(), id, req.Reason, actorFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *handlers) refundOrder(c *gin.Context) {
	var req reasonRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		badRequest(c, err)
		return
	}
	id, ok := h.orderID(c)
	if !ok {
		return
	}
	order, err := h.deps.OrderSvc.Refund(c.Request.Context(), id, req.Reason, actorFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *handlers) orderAvailability(c *gin.Context) {
	if h.deps.InventorySvc == nil {
		c.JSON(http.StatusServiceUnavailable, errorBody("unavailable", "inventory not configured"))
		return
	}
	order, ok := h.loadOrder(c)
	if !ok {
		return
	}
	avail, err := h.deps.InventorySvc.CheckAvailability(c.Request.Context(), order.Items)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, avail)
}

// reconcileOrder runs the stock reduction synchronously. The reduction
// ledger turns a repeat into skipped results.
func (h *handlers) reconcileOrder(c *gin.Context) {
	if h.deps.InventorySvc == nil {
		c.JSON(http.StatusServiceUnavailable, errorBody("unavailable", "inventory not configured"))
		return
	}
	order, ok := h.loadOrder(c)
	if !ok {
		return
	}
	report, err := h.deps.InventorySvc.ReduceAs(c.Request.Context(), actorFrom(c), order.ID, order.Items)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func bindOptionalJSON(c *gin.Context, out any) error {
	if c.Request.ContentLength == 0 {
		return nil
	}
	return c.ShouldBindJSON(out)
}

func queryInt(c *gin.Context, key string, def int) int {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	return v
}
