package httpserver

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"restaurant-fulfillment/internal/domain"
	cartsvc "restaurant-fulfillment/internal/service/cart"
)

func (h *handlers) createSession(c *gin.Context) {
	token, sessionID, err := h.deps.Tokens.IssueGuest()
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"token":     token,
		"sessionId": sessionID,
		"expiresIn": h.deps.Tokens.GuestTTLSeconds(),
	})
}

func (h *handlers) shopper(c *gin.Context) (domain.Owner, bool) {
	owner := actorFrom(c).Owner()
	if !owner.Valid() {
		writeError(c, domain.Validationf("only customers and guest sessions have carts"))
		return domain.Owner{}, false
	}
	return owner, true
}

func (h *handlers) getCart(c *gin.Context) {
	owner, ok := h.shopper(c)
	if !ok {
		return
	}
	cart, err := h.deps.CartSvc.Get(c.Request.Context(), owner)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}

func (h *handlers) updateCart(c *gin.Context) {
	owner, ok := h.shopper(c)
	if !ok {
		return
	}
	var in cartsvc.UpdateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	if len(in.Actions) == 0 {
		writeError(c, domain.Validationf("at least one action required"))
		return
	}
	cart, err := h.deps.CartSvc.Update(c.Request.Context(), owner, in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}

func (h *handlers) checkout(c *gin.Context) {
	owner, ok := h.shopper(c)
	if !ok {
		return
	}
	var in cartsvc.CheckoutInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	in.UpdatedBy = actorFrom(c).Name()
	order, err := h.deps.CartSvc.Checkout(c.Request.Context(), owner, in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}
