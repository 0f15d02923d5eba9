package coupon

import (
	"context"

	"restaurant-fulfillment/internal/domain"
)

type Repository interface {
	Get(ctx context.Context, code string) (*domain.Coupon, error)
	Upsert(ctx context.Context, c domain.Coupon) error
}
