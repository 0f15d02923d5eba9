package coupon

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"restaurant-fulfillment/internal/domain"
)

type postgresRepo struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

func NewPostgres(pool *pgxpool.Pool, logger zerolog.Logger) Repository {
	return &postgresRepo{pool: pool, logger: logger}
}

// NormalizeCode is the storage form of a coupon code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (r *postgresRepo) Get(ctx context.Context, code string) (*domain.Coupon, error) {
	const q = `
SELECT code, discount_type, discount_value, min_order_value, max_discount, valid_from, valid_until, active
FROM coupons
WHERE code = $1
`
	var c domain.Coupon
	var discountType string
	err := r.pool.QueryRow(ctx, q, NormalizeCode(code)).Scan(
		&c.Code, &discountType, &c.DiscountValue, &c.MinOrderValue, &c.MaxDiscount, &c.ValidFrom, &c.ValidUntil, &c.Active,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		r.logger.Error().Err(err).Str("code", code).Msg("coupon repo: get")
		return nil, err
	}
	c.DiscountType = domain.DiscountType(discountType)
	return &c, nil
}

func (r *postgresRepo) Upsert(ctx context.Context, c domain.Coupon) error {
	const q = `
INSERT INTO coupons (code, discount_type, discount_value, min_order_value, max_discount, valid_from, valid_until, active)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (code) DO UPDATE SET
    discount_type = EXCLUDED.discount_type,
    discount_value = EXCLUDED.discount_value,
    min_order_value = EXCLUDED.min_order_value,
    max_discount = EXCLUDED.max_discount,
    valid_from = EXCLUDED.valid_from,
    valid_until = EXCLUDED.valid_until,
    active = EXCLUDED.active
`
	if _, err := r.pool.Exec(ctx, q,
		NormalizeCode(c.Code), string(c.DiscountType), c.DiscountValue, c.MinOrderValue, c.MaxDiscount, c.ValidFrom, c.ValidUntil, c.Active,
	); err != nil {
		r.logger.Error().Err(err).Str("code", c.Code).Msg("coupon repo: upsert")
		return err
	}
	return nil
}
