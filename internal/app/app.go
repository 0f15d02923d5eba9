// Package app assembles repositories, collaborators and services from config.
// cmd/api and cmd/worker share it so both processes see the same graph.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"restaurant-fulfillment/internal/auth"
	"restaurant-fulfillment/internal/client"
	"restaurant-fulfillment/internal/config"
	"restaurant-fulfillment/internal/domain"
	"restaurant-fulfillment/internal/events"
	"restaurant-fulfillment/internal/httpserver"
	"restaurant-fulfillment/internal/outbox"
	"restaurant-fulfillment/internal/pricing"
	cartrepo "restaurant-fulfillment/internal/repository/cart"
	couponrepo "restaurant-fulfillment/internal/repository/coupon"
	inventoryrepo "restaurant-fulfillment/internal/repository/inventory"
	menurepo "restaurant-fulfillment/internal/repository/menu"
	orderrepo "restaurant-fulfillment/internal/repository/order"
	outboxrepo "restaurant-fulfillment/internal/repository/outbox"
	paymentrepo "restaurant-fulfillment/internal/repository/payment"
	cartsvc "restaurant-fulfillment/internal/service/cart"
	inventorysvc "restaurant-fulfillment/internal/service/inventory"
	ordersvc "restaurant-fulfillment/internal/service/order"
	paymentsvc "restaurant-fulfillment/internal/service/payment"
	"restaurant-fulfillment/internal/service/recipe"
)

const cartPurgeInterval = time.Minute

type App struct {
	Pool      *pgxpool.Pool
	Tokens    *auth.Tokens
	Carts     *cartsvc.Service
	Orders    *ordersvc.Service
	Payments  *paymentsvc.Service
	Inventory *inventorysvc.Reconciler
	Publisher events.Publisher

	orderRepo orderrepo.Repository
	stock     inventoryrepo.Repository
	tasks     outboxrepo.Repository
	redis     *redis.Client
	cfg       config.Config
	logger    zerolog.Logger
}

// Build wires everything on top of an open pool. Remote collaborators are used
// when their URL is configured; otherwise the local tables answer.
func Build(ctx context.Context, cfg config.Config, pool *pgxpool.Pool, logger zerolog.Logger) (*App, error) {
	a := &App{
		Pool:      pool,
		Tokens:    auth.NewTokens(cfg.JWTSecret),
		orderRepo: orderrepo.NewPostgres(pool, logger),
		stock:     inventoryrepo.NewPostgres(pool, logger),
		tasks:     outboxrepo.NewPostgres(pool, logger),
		cfg:       cfg,
		logger:    logger,
	}
	hc := &http.Client{Timeout: cfg.CollaboratorTimeout}

	localMenu := menurepo.NewPostgres(pool, logger)
	var menu recipe.Source = localMenu
	resolver := recipe.New(localMenu)
	if cfg.MenuServiceURL != "" {
		remote := client.NewMenu(cfg.MenuServiceURL, hc)
		menu = remote
		resolver = recipe.New(remote, localMenu)
	}

	var store inventorysvc.Store = a.stock
	if cfg.InventoryServiceURL != "" {
		store = client.NewInventory(cfg.InventoryServiceURL, hc)
	}
	a.Inventory = inventorysvc.New(resolver, store, logger.With().Str("module", "inventory").Logger())

	a.Orders = ordersvc.New(a.orderRepo, logger.With().Str("module", "orders").Logger())

	cartDeps := cartsvc.Deps{
		Repo:    cartrepo.NewPostgres(pool, logger),
		Menu:    menu,
		Coupons: couponrepo.NewPostgres(pool, logger),
		Orders:  a.Orders,
		Rules:   pricing.RulesFromConfig(cfg.Pricing),
		TTL:     cfg.CartTTL,
		Logger:  logger.With().Str("module", "cart").Logger(),
	}
	if cfg.CustomerServiceURL != "" {
		cartDeps.Customers = client.NewCustomers(cfg.CustomerServiceURL, hc)
	}
	a.Carts = cartsvc.New(cartDeps)

	payOpts := paymentsvc.Options{
		SecureToken:   cfg.CassoSecureToken,
		MatchAttempts: cfg.PaymentMatchRetries,
	}
	if cfg.RedisAddr != "" {
		a.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := a.redis.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			// The guard fails open, so a missing redis only costs deduplication.
			logger.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("app: redis not reachable")
		}
		payOpts.Guard = paymentsvc.NewRedisGuard(a.redis, cfg.CassoDedupeTTL)
	}
	a.Payments = paymentsvc.New(paymentrepo.NewPostgres(pool, logger), a.orderRepo,
		logger.With().Str("module", "payments").Logger(), payOpts)

	if len(cfg.KafkaBrokers) > 0 {
		a.Publisher = events.NewKafkaPublisher(events.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaOrderTopic))
	} else {
		a.Publisher = events.NewLogPublisher(logger.With().Str("module", "events").Logger())
	}

	logger.Info().
		Bool("remote_menu", cfg.MenuServiceURL != "").
		Bool("remote_inventory", cfg.InventoryServiceURL != "").
		Bool("remote_customers", cfg.CustomerServiceURL != "").
		Bool("redis", a.redis != nil).
		Bool("kafka", len(cfg.KafkaBrokers) > 0).
		Msg("app: services wired")
	return a, nil
}

// HTTPDeps is the router's view of the app.
func (a *App) HTTPDeps() httpserver.Deps {
	return httpserver.Deps{
		DB:                   a.Pool,
		Tokens:               a.Tokens,
		CartSvc:              a.Carts,
		OrderSvc:             a.Orders,
		InventorySvc:         a.Inventory,
		Stock:                a.stock,
		PaymentSvc:           a.Payments,
		Tasks:                a.tasks,
		CORSAllowedOrigins:   a.cfg.CORSAllowedOrigins,
		WebhookRatePerSecond: a.cfg.WebhookRatePerSecond,
		WebhookBurst:         a.cfg.WebhookBurst,
	}
}

// Worker drains the outbox: inventory reconciliation, event fan-out and the
// expired cart sweep.
func (a *App) Worker() *outbox.Worker {
	w := outbox.NewWorker(a.tasks, a.logger.With().Str("module", "outbox").Logger(), outbox.Options{
		PollInterval: a.cfg.WorkerPollInterval,
		BatchSize:    a.cfg.WorkerBatchSize,
		TaskTimeout:  a.cfg.WorkerTaskTimeout,
	})
	w.Register(domain.TaskReconcileInventory, inventorysvc.NewTaskHandler(a.Inventory, a.orderRepo, a.logger))
	w.Register(domain.TaskPublishOrderEvent, events.NewTaskHandler(a.Publisher))
	w.Every("purge-expired-carts", cartPurgeInterval, a.Carts.PurgeExpired)
	return w
}

// Close releases the publisher and redis. The pool belongs to the caller.
func (a *App) Close() error {
	var errs []error
	if a.Publisher != nil {
		if err := a.Publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close publisher: %w", err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	return errors.Join(errs...)
}
