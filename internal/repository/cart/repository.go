package cart

import (
	"context"
	"time"

	"restaurant-fulfillment/internal/domain"
)

// Repository stores one cart document per owner. Save is a compare-and-swap on
// Version and returns domain.ErrConflict when another writer got there first.
type Repository interface {
	GetByOwner(ctx context.Context, owner domain.Owner) (*domain.Cart, error)
	Create(ctx context.Context, cart *domain.Cart) error
	Save(ctx context.Context, cart *domain.Cart) error
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}
