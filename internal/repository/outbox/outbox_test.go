package outbox

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"restaurant-fulfillment/internal/domain"
	"restaurant-fulfillment/internal/testdb"
)

func TestPostgres_InsertClaimComplete(t *testing.T) {
	ctx := context.Background()
	pool := testdb.Pool(t)
	repo := NewPostgres(pool, zerolog.Nop())

	err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		return InsertTx(ctx, tx,
			domain.NewTask{Kind: domain.TaskReconcileInventory, OrderID: "o1"},
			domain.NewTask{Kind: domain.TaskPublishOrderEvent, OrderID: "o1", Payload: []byte(`{"status":"confirmed"}`), MaxAttempts: 3},
		)
	})
	if err != nil {
		t.Fatalf("InsertTx: %v", err)
	}

	now := time.Now().Add(time.Second)
	claimed, err := repo.Claim(ctx, now, 10, time.Minute)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if len(claimed) != 2 {
		t.Fatalf("expected 2 claimed, got %d", len(claimed))
	}
	for _, task := range claimed {
		if task.Attempts != 1 {
			t.Fatalf("expected attempts=1, got %+v", task)
		}
	}

	again, err := repo.Claim(ctx, now, 10, time.Minute)
	if err != nil {
		t.Fatalf("Claim again: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("leased tasks must not be claimed twice, got %d", len(again))
	}

	if err := repo.Complete(ctx, claimed[0].ID); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if err := repo.Bury(ctx, claimed[1].ID, "boom"); err != nil {
		t.Fatalf("Bury: %v", err)
	}
	dead, err := repo.List(ctx, domain.TaskDead, 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(dead) != 1 || dead[0].LastError != "boom" {
		t.Fatalf("unexpected dead tasks %+v", dead)
	}
}

func TestPostgres_RetryReschedules(t *testing.T) {
	ctx := context.Background()
	pool := testdb.Pool(t)
	repo := NewPostgres(pool, zerolog.Nop())

	if err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		return InsertTx(ctx, tx, domain.NewTask{Kind: domain.TaskReconcileInventory, OrderID: "o2"})
	}); err != nil {
		t.Fatalf("InsertTx: %v", err)
	}
	now := time.Now().Add(time.Second)
	claimed, err := repo.Claim(ctx, now, 1, time.Minute)
	if err != nil || len(claimed) != 1 {
		t.Fatalf("Claim: %v %d", err, len(claimed))
	}
	if err := repo.Retry(ctx, claimed[0].ID, now.Add(-time.Millisecond), "inventory down"); err != nil {
		t.Fatalf("Retry: %v", err)
	}
	due, err := repo.Claim(ctx, now, 1, time.Minute)
	if err != nil {
		t.Fatalf("Claim after retry: %v", err)
	}
	if len(due) != 1 || due[0].Attempts != 2 || due[0].LastError != "inventory down" {
		t.Fatalf("unexpected retried task %+v", due)
	}
}
