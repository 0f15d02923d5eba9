package inventory

import (
	"context"

	"restaurant-fulfillment/internal/domain"
)

// Repository is the ingredient stock store keyed by normalised ingredient name.
type Repository interface {
	Stock(ctx context.Context, names []string) (map[string]domain.Ingredient, error)
	// Reduce applies each requirement in its own transaction. Results come back
	// in input order; one failing ingredient does not stop the rest.
	Reduce(ctx context.Context, orderID string, reqs []domain.Requirement) ([]domain.IngredientResult, error)
	Upsert(ctx context.Context, ing domain.Ingredient) error
	List(ctx context.Context) ([]domain.Ingredient, error)
}
