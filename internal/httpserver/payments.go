package httpserver

import (
	"net/http"

	"github.com/gin-gonic/gin"

	paymentsvc "restaurant-fulfillment/internal/service/payment"
)

type manualMatchRequest struct {
	OrderID string `json:"orderId" binding:"required"`
}

// cassoWebhook always answers 2xx once the body was understood, unless a
// transaction could not be stored and Casso should deliver it again.
func (h *handlers) cassoWebhook(c *gin.Context) {
	if !h.deps.PaymentSvc.VerifyToken(c.GetHeader("Secure-Token")) {
		c.JSON(http.StatusUnauthorized, errorBody("unauthenticated", "invalid secure token"))
		return
	}
	var hook paymentsvc.Webhook
	if err := c.ShouldBindJSON(&hook); err != nil {
		badRequest(c, err)
		return
	}
	results, err := h.deps.PaymentSvc.Ingest(c.Request.Context(), hook)
	if err != nil && results == nil {
		writeError(c, err)
		return
	}
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": 1, "results": results})
		return
	}
	c.JSON(http.StatusOK, gin.H{"error": 0, "results": results})
}

func (h *handlers) listUnmatched(c *gin.Context) {
	txs, err := h.deps.PaymentSvc.FindUnmatched(c.Request.Context(), queryInt(c, "limit", 50), queryInt(c, "offset", 0), actorFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": txs, "count": len(txs)})
}

func (h *handlers) manualMatch(c *gin.Context) {
	var req manualMatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.deps.PaymentSvc.ManualMatch(c.Request.Context(), c.Param("cassoId"), req.OrderID, actorFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
