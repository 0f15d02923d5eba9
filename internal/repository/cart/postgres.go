package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
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

func (r *postgresRepo) GetByOwner(ctx context.Context, owner domain.Owner) (*domain.Cart, error) {
	const q = `
SELECT id::text, COALESCE(customer_id, ''), COALESCE(session_id, ''), items, applied_coupon, delivery, summary, version, expires_at, created_at, updated_at
FROM carts
WHERE owner_key = $1
`
	var cart domain.Cart
	var items, coupon, delivery, summary []byte
	err := r.pool.QueryRow(ctx, q, owner.Key()).Scan(
		&cart.ID,
		&cart.Owner.CustomerID,
		&cart.Owner.SessionID,
		&items,
		&coupon,
		&delivery,
		&summary,
		&cart.Version,
		&cart.ExpiresAt,
		&cart.CreatedAt,
		&cart.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		r.logger.Error().Err(err).Str("owner", owner.Key()).Msg("cart repo: get")
		return nil, err
	}
	if err := decodeDocument(&cart, items, coupon, delivery, summary); err != nil {
		return nil, err
	}
	return &cart, nil
}

func (r *postgresRepo) Create(ctx context.Context, cart *domain.Cart) error {
	items, coupon, delivery, summary, err := encodeDocument(cart)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO carts (owner_key, customer_id, session_id, items, applied_coupon, delivery, summary, version, expires_at)
VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4, $5, $6, $7, 1, $8)
RETURNING id::text, version, created_at, updated_at
`
	err = r.pool.QueryRow(ctx, q,
		cart.Owner.Key(), cart.Owner.CustomerID, cart.Owner.SessionID,
		items, coupon, delivery, summary, cart.ExpiresAt,
	).Scan(&cart.ID, &cart.Version, &cart.CreatedAt, &cart.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrAlreadyExists
		}
		r.logger.Error().Err(err).Str("owner", cart.Owner.Key()).Msg("cart repo: create")
		return err
	}
	r.logger.Debug().Str("cart_id", cart.ID).Str("owner", cart.Owner.Key()).Msg("cart repo: created")
	return nil
}

func (r *postgresRepo) Save(ctx context.Context, cart *domain.Cart) error {
	items, coupon, delivery, summary, err := encodeDocument(cart)
	if err != nil {
		return err
	}
	const q = `
UPDATE carts
SET items = $1, applied_coupon = $2, delivery = $3, summary = $4, expires_at = $5,
    version = version + 1, updated_at = now()
WHERE id = $6 AND version = $7
RETURNING version, updated_at
`
	err = r.pool.QueryRow(ctx, q, items, coupon, delivery, summary, cart.ExpiresAt, cart.ID, cart.Version).
		Scan(&cart.Version, &cart.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.Debug().Str("cart_id", cart.ID).Int("version", cart.Version).Msg("cart repo: stale version")
			return fmt.Errorf("%w: cart %s changed concurrently", domain.ErrConflict, cart.ID)
		}
		r.logger.Error().Err(err).Str("cart_id", cart.ID).Msg("cart repo: save")
		return err
	}
	return nil
}

func (r *postgresRepo) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM carts WHERE expires_at < $1`, now)
	if err != nil {
		r.logger.Error().Err(err).Msg("cart repo: purge expired")
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func encodeDocument(cart *domain.Cart) (items, coupon, delivery, summary []byte, err error) {
	lines := cart.Items
	if lines == nil {
		lines = []domain.CartItem{}
	}
	if items, err = json.Marshal(lines); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("encode items: %w", err)
	}
	if cart.AppliedCoupon != nil {
		if coupon, err = json.Marshal(cart.AppliedCoupon); err != nil {
			return nil, nil, nil, nil, fmt.Errorf("encode coupon: %w", err)
		}
	}
	if delivery, err = json.Marshal(cart.Delivery); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("encode delivery: %w", err)
	}
	if summary, err = json.Marshal(cart.Summary); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("encode summary: %w", err)
	}
	return items, coupon, delivery, summary, nil
}

func decodeDocument(cart *domain.Cart, items, coupon, delivery, summary []byte) error {
	if err := json.Unmarshal(items, &cart.Items); err != nil {
		return fmt.Errorf("decode items: %w", err)
	}
	if len(coupon) > 0 && string(coupon) != "null" {
		cart.AppliedCoupon = &domain.AppliedCoupon{}
		if err := json.Unmarshal(coupon, cart.AppliedCoupon); err != nil {
			return fmt.Errorf("decode coupon: %w", err)
		}
	}
	if err := json.Unmarshal(delivery, &cart.Delivery); err != nil {
		return fmt.Errorf("decode delivery: %w", err)
	}
	if err := json.Unmarshal(summary, &cart.Summary); err != nil {
		return fmt.Errorf("decode summary: %w", err)
	}
	return nil
}
