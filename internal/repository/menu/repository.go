package menu

import (
	"context"

	"restaurant-fulfillment/internal/domain"
)

type Repository interface {
	List(ctx context.Context) ([]domain.MenuItem, error)
	GetByID(ctx context.Context, id string) (*domain.MenuItem, error)
	GetByName(ctx context.Context, name string) (*domain.MenuItem, error)
	Upsert(ctx context.Context, item domain.MenuItem) (*domain.MenuItem, error)
}
