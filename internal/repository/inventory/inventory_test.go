package inventory

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"restaurant-fulfillment/internal/domain"
	"restaurant-fulfillment/internal/testdb"
)

func TestPostgres_ReduceIsIdempotentPerOrder(t *testing.T) {
	ctx := context.Background()
	repo := NewPostgres(testdb.Pool(t), zerolog.Nop())

	if err := repo.Upsert(ctx, domain.Ingredient{Name: "Beef", Quantity: 1, Unit: "kg", MinimumStock: 0.5}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	reqs := []domain.Requirement{
		{IngredientName: "beef", Quantity: 0.6, Unit: "kg"},
		{IngredientName: "saffron", Quantity: 1, Unit: "g"},
	}
	first, err := repo.Reduce(ctx, "order-1", reqs)
	if err != nil {
		t.Fatalf("Reduce: %v", err)
	}
	if first[0].Outcome != domain.OutcomeReduced || first[0].Status != domain.StockLowStock {
		t.Fatalf("unexpected beef result %+v", first[0])
	}
	if first[1].Outcome != domain.OutcomeNotFound {
		t.Fatalf("expected not_found for saffron, got %+v", first[1])
	}

	replay, err := repo.Reduce(ctx, "order-1", reqs[:1])
	if err != nil {
		t.Fatalf("Reduce replay: %v", err)
	}
	if replay[0].Outcome != domain.OutcomeSkipped {
		t.Fatalf("expected skipped on replay, got %+v", replay[0])
	}

	stock, err := repo.Stock(ctx, []string{"BEEF"})
	if err != nil {
		t.Fatalf("Stock: %v", err)
	}
	if q := stock["beef"].Quantity; q < 0.399 || q > 0.401 {
		t.Fatalf("expected 0.4kg left, got %v", q)
	}
}

func TestPostgres_ConcurrentReduceNeverNegative(t *testing.T) {
	ctx := context.Background()
	repo := NewPostgres(testdb.Pool(t), zerolog.Nop())

	if err := repo.Upsert(ctx, domain.Ingredient{Name: "rice", Quantity: 5, Unit: "kg", MinimumStock: 1}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = repo.Reduce(ctx, fmt.Sprintf("order-%d", i), []domain.Requirement{{IngredientName: "rice", Quantity: 1, Unit: "kg"}})
		}(i)
	}
	wg.Wait()

	stock, err := repo.Stock(ctx, []string{"rice"})
	if err != nil {
		t.Fatalf("Stock: %v", err)
	}
	rice := stock["rice"]
	if rice.Quantity != 0 || rice.Status != domain.StockOutOfStock {
		t.Fatalf("expected floored out-of-stock rice, got %+v", rice)
	}
}
