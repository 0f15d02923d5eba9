package order

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"restaurant-fulfillment/internal/domain"
	"restaurant-fulfillment/internal/testdb"
)

func sampleOrder(number string, now time.Time) *domain.Order {
	return &domain.Order{
		OrderNumber:             number,
		CustomerID:              "cust-1",
		CustomerInfo:            domain.ContactInfo{Name: "Lan", Phone: "0900000000"},
		Items:                   []domain.OrderItem{{MenuItemID: "m1", Name: "Pho", Price: 100000, Quantity: 2, Subtotal: 200000}},
		OrderType:               domain.DeliveryTypeDelivery,
		Delivery:                domain.Delivery{Type: domain.DeliveryTypeDelivery, Fee: 30000, Address: "1 Le Loi", EstimatedTime: 45},
		Pricing:                 domain.OrderPricing{Subtotal: 200000, Tax: 16000, DeliveryFee: 30000, Discount: 0, Total: 246000},
		Payment:                 domain.Payment{Method: domain.PaymentBankTransfer, Status: domain.PaymentAwaiting},
		Status:                  domain.StatusPending,
		Timeline:                []domain.TimelineEntry{{Status: domain.StatusPending, Timestamp: now, Note: "order created", UpdatedBy: "cust-1"}},
		EstimatedCompletionTime: now.Add(45 * time.Minute),
		CreatedAt:               now,
	}
}

func TestPostgres_CreateAndTransition(t *testing.T) {
	ctx := context.Background()
	pool := testdb.Pool(t)
	repo := NewPostgres(pool, zerolog.Nop())
	now := time.Now().UTC().Truncate(time.Millisecond)

	o := sampleOrder("ORD260101AAAAAA", now)
	if err := repo.Create(ctx, o, []domain.NewTask{{Kind: domain.TaskPublishOrderEvent}}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if o.ID == "" {
		t.Fatalf("expected id")
	}

	if err := repo.Create(ctx, sampleOrder("ORD260101AAAAAA", now), nil); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists for duplicate number, got %v", err)
	}

	err := repo.ApplyTransition(ctx, TransitionInput{
		OrderID: o.ID,
		From:    domain.StatusPending,
		To:      domain.StatusConfirmed,
		Entry:   domain.TimelineEntry{Status: domain.StatusConfirmed, Timestamp: now.Add(time.Minute), UpdatedBy: "staff-1"},
		Tasks:   []domain.NewTask{{Kind: domain.TaskReconcileInventory}, {Kind: domain.TaskPublishOrderEvent}},
	})
	if err != nil {
		t.Fatalf("ApplyTransition: %v", err)
	}

	err = repo.ApplyTransition(ctx, TransitionInput{
		OrderID: o.ID,
		From:    domain.StatusPending,
		To:      domain.StatusCancelled,
		Entry:   domain.TimelineEntry{Status: domain.StatusCancelled, Timestamp: now.Add(2 * time.Minute)},
	})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict for stale from-status, got %v", err)
	}

	got, err := repo.GetByNumber(ctx, "ord260101aaaaaa")
	if err != nil {
		t.Fatalf("GetByNumber: %v", err)
	}
	if got.Status != domain.StatusConfirmed || len(got.Timeline) != 2 {
		t.Fatalf("unexpected order status=%s timeline=%d", got.Status, len(got.Timeline))
	}
	if !got.Pricing.Balanced() || got.Items[0].Name != "Pho" {
		t.Fatalf("unexpected order %+v", got)
	}

	var tasks int
	if err := pool.QueryRow(ctx, `SELECT count(*) FROM outbox_tasks WHERE order_id = $1`, o.ID).Scan(&tasks); err != nil {
		t.Fatalf("count tasks: %v", err)
	}
	if tasks != 3 {
		t.Fatalf("expected 3 tasks, got %d", tasks)
	}
}

func TestPostgres_ListFilters(t *testing.T) {
	ctx := context.Background()
	repo := NewPostgres(testdb.Pool(t), zerolog.Nop())
	now := time.Now().UTC()

	a := sampleOrder("ORD260101BBBBBB", now)
	b := sampleOrder("ORD260101CCCCCC", now.Add(time.Second))
	b.CustomerID = ""
	b.SessionID = "sess-9"
	for _, o := range []*domain.Order{a, b} {
		if err := repo.Create(ctx, o, nil); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	bySession, err := repo.List(ctx, ListFilter{SessionID: "sess-9"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(bySession) != 1 || bySession[0].OrderNumber != b.OrderNumber {
		t.Fatalf("unexpected session list %+v", bySession)
	}

	all, err := repo.List(ctx, ListFilter{Status: domain.StatusPending, Limit: 10})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 2 || all[0].OrderNumber != b.OrderNumber {
		t.Fatalf("expected newest first, got %+v", all)
	}

	if _, err := repo.GetByID(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
