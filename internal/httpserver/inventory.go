package httpserver

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"restaurant-fulfillment/internal/auth"
	"restaurant-fulfillment/internal/client"
	"restaurant-fulfillment/internal/domain"
)

// The stock endpoints speak the same protocol the inventory client uses, so
// another deployment can point INVENTORY_SERVICE_URL at this one.

func (h *handlers) stockAllowed(c *gin.Context) bool {
	if h.deps.Stock == nil {
		c.JSON(http.StatusServiceUnavailable, errorBody("unavailable", "inventory not configured"))
		return false
	}
	if actor := actorFrom(c); !actor.Can(auth.PermInventoryReduce) {
		writeError(c, fmt.Errorf("%w: %s", domain.ErrForbidden, auth.PermInventoryReduce))
		return false
	}
	return true
}

func (h *handlers) checkStock(c *gin.Context) {
	if !h.stockAllowed(c) {
		return
	}
	var req client.CheckStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	stock, err := h.deps.Stock.Stock(c.Request.Context(), req.Ingredients)
	if err != nil {
		writeError(c, err)
		return
	}
	items := make([]domain.Ingredient, 0, len(stock))
	for _, name := range req.Ingredients {
		if ing, ok := stock[domain.NormalizeName(name)]; ok {
			items = append(items, ing)
		}
	}
	c.JSON(http.StatusOK, client.CheckStockResponse{Items: items})
}

func (h *handlers) reduceStock(c *gin.Context) {
	if !h.stockAllowed(c) {
		return
	}
	var req client.ReduceStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	key := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	if req.OrderID == "" {
		req.OrderID = key
	}
	if req.OrderID == "" {
		writeError(c, domain.Validationf("orderId required"))
		return
	}
	if key != "" && key != req.OrderID {
		writeError(c, domain.Validationf("Idempotency-Key does not match orderId"))
		return
	}
	results, err := h.deps.Stock.Reduce(c.Request.Context(), req.OrderID, req.Items)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, client.ReduceStockResponse{Results: results})
}
