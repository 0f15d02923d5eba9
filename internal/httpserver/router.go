package httpserver

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"restaurant-fulfillment/internal/auth"
	"restaurant-fulfillment/internal/domain"
	orderrepo "restaurant-fulfillment/internal/repository/order"
	cartsvc "restaurant-fulfillment/internal/service/cart"
	paymentsvc "restaurant-fulfillment/internal/service/payment"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type TokenService interface {
	IssueGuest() (token, sessionID string, err error)
	GuestTTLSeconds() int
	Parse(raw string) (auth.Actor, error)
}

type CartService interface {
	Get(ctx context.Context, owner domain.Owner) (*domain.Cart, error)
	Update(ctx context.Context, owner domain.Owner, in cartsvc.UpdateInput) (*domain.Cart, error)
	Checkout(ctx context.Context, owner domain.Owner, in cartsvc.CheckoutInput) (*domain.Order, error)
}

type OrderService interface {
	Get(ctx context.Context, id string, actor auth.Actor) (*domain.Order, error)
	GetByNumber(ctx context.Context, number string, actor auth.Actor) (*domain.Order, error)
	List(ctx context.Context, filter orderrepo.ListFilter, actor auth.Actor) ([]domain.Order, error)
	Transition(ctx context.Context, id string, to domain.OrderStatus, note string, actor auth.Actor) (*domain.Order, error)
	Cancel(ctx context.Context, id, reason string, actor auth.Actor) (*domain.Order, error)
	Refund(ctx context.Context, id, reason string, actor auth.Actor) (*domain.Order, error)
}

type InventoryService interface {
	CheckAvailability(ctx context.Context, items []domain.OrderItem) (domain.Availability, error)
	ReduceAs(ctx context.Context, actor auth.Actor, orderID string, items []domain.OrderItem) (domain.ReductionReport, error)
}

// StockStore backs the check-stock and reduce-stock endpoints.
type StockStore interface {
	Stock(ctx context.Context, names []string) (map[string]domain.Ingredient, error)
	Reduce(ctx context.Context, orderID string, reqs []domain.Requirement) ([]domain.IngredientResult, error)
}

type PaymentService interface {
	VerifyToken(header string) bool
	Ingest(ctx context.Context, hook paymentsvc.Webhook) ([]domain.MatchResult, error)
	FindUnmatched(ctx context.Context, limit, offset int, actor auth.Actor) ([]domain.CassoTransaction, error)
	ManualMatch(ctx context.Context, cassoID, orderID string, actor auth.Actor) (domain.MatchResult, error)
}

type TaskLister interface {
	List(ctx context.Context, status domain.TaskStatus, limit int) ([]domain.Task, error)
}

// Deps are the services the router dispatches to.
type Deps struct {
	DB           Pinger
	Tokens       TokenService
	CartSvc      CartService
	OrderSvc     OrderService
	InventorySvc InventoryService
	Stock        StockStore
	PaymentSvc   PaymentService
	Tasks        TaskLister

	CORSAllowedOrigins   []string
	WebhookRatePerSecond float64
	WebhookBurst         int
}

// buildRouter wires routes for the API.
func buildRouter(logger zerolog.Logger, deps Deps) (*gin.Engine, error) {
	if deps.Tokens == nil {
		return nil, errors.New("token service required")
	}
	if deps.CartSvc == nil || deps.OrderSvc == nil || deps.PaymentSvc == nil {
		return nil, errors.New("cart, order and payment services required")
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(requestLogger(logger), gin.Recovery())
	if mw := corsMiddleware(deps.CORSAllowedOrigins); mw != nil {
		router.Use(mw)
	}

	router.GET("/healthz", healthHandler)
	router.GET("/readyz", readyHandler(deps.DB))

	h := &handlers{deps: deps, logger: logger}
	api := router.Group("/api")

	limit := rate.Limit(deps.WebhookRatePerSecond)
	if deps.WebhookRatePerSecond <= 0 {
		limit = rate.Inf
	}
	burst := deps.WebhookBurst
	if burst <= 0 {
		burst = 1
	}
	api.POST("/webhooks/casso", rateLimit(rate.NewLimiter(limit, burst)), h.cassoWebhook)

	api.POST("/sessions", h.createSession)

	authed := api.Group("", authenticate(deps.Tokens))
	authed.GET("/cart", h.getCart)
	authed.POST("/cart/actions", h.updateCart)
	authed.POST("/cart/checkout", h.checkout)

	authed.GET("/orders", h.listOrders)
	authed.GET("/orders/:id", h.getOrder)
	authed.POST("/orders/:id/transitions", h.transitionOrder)
	authed.POST("/orders/:id/cancel", h.cancelOrder)
	authed.POST("/orders/:id/refund", h.refundOrder)
	authed.POST("/orders/:id/availability", h.orderAvailability)
	authed.POST("/orders/:id/reconcile", h.reconcileOrder)

	authed.GET("/payments/unmatched", h.listUnmatched)
	authed.POST("/payments/transactions/:cassoId/match", h.manualMatch)

	authed.POST("/inventory/check-stock", h.checkStock)
	authed.POST("/inventory/reduce-stock", h.reduceStock)

	authed.GET("/ops/tasks", h.listTasks)

	return router, nil
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	if len(origins) == 0 {
		return nil
	}
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "Idempotency-Key"},
		ExposeHeaders: []string{"X-Request-ID"},
	}
	for _, o := range origins {
		if strings.TrimSpace(o) == "*" {
			cfg.AllowAllOrigins = true
			return cors.New(cfg)
		}
	}
	cfg.AllowOrigins = origins
	return cors.New(cfg)
}

type handlers struct {
	deps   Deps
	logger zerolog.Logger
}
