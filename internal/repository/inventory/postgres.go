package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"restaurant-fulfillment/internal/domain"
)

type postgresRepo struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

func NewPostgres(pool *pgxpool.Pool, logger zerolog.Logger) Repository {
	return &postgresRepo{pool: pool, logger: logger}
}

func (r *postgresRepo) Stock(ctx context.Context, names []string) (map[string]domain.Ingredient, error) {
	keys := make([]string, 0, len(names))
	for _, n := range names {
		keys = append(keys, domain.NormalizeName(n))
	}
	rows, err := r.pool.Query(ctx, `
SELECT name_key, name, quantity::float8, unit, minimum_stock::float8, status, updated_at
FROM ingredients
WHERE name_key = ANY($1)
`, keys)
	if err != nil {
		r.logger.Error().Err(err).Msg("inventory repo: stock")
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]domain.Ingredient, len(keys))
	for rows.Next() {
		var key, status string
		var ing domain.Ingredient
		if err := rows.Scan(&key, &ing.Name, &ing.Quantity, &ing.Unit, &ing.MinimumStock, &status, &ing.UpdatedAt); err != nil {
			return nil, err
		}
		ing.Status = domain.StockStatus(status)
		out[key] = ing
	}
	return out, rows.Err()
}

func (r *postgresRepo) List(ctx context.Context) ([]domain.Ingredient, error) {
	rows, err := r.pool.Query(ctx, `
SELECT name, quantity::float8, unit, minimum_stock::float8, status, updated_at
FROM ingredients
ORDER BY name
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Ingredient
	for rows.Next() {
		var ing domain.Ingredient
		var status string
		if err := rows.Scan(&ing.Name, &ing.Quantity, &ing.Unit, &ing.MinimumStock, &status, &ing.UpdatedAt); err != nil {
			return nil, err
		}
		ing.Status = domain.StockStatus(status)
		out = append(out, ing)
	}
	return out, rows.Err()
}

func (r *postgresRepo) Upsert(ctx context.Context, ing domain.Ingredient) error {
	status := domain.DeriveStockStatus(ing.Quantity, ing.MinimumStock)
	_, err := r.pool.Exec(ctx, `
INSERT INTO ingredients (name_key, name, quantity, unit, minimum_stock, status)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (name_key) DO UPDATE SET
    name = EXCLUDED.name,
    quantity = EXCLUDED.quantity,
    unit = EXCLUDED.unit,
    minimum_stock = EXCLUDED.minimum_stock,
    status = EXCLUDED.status,
    updated_at = now()
`, domain.NormalizeName(ing.Name), ing.Name, ing.Quantity, ing.Unit, ing.MinimumStock, string(status))
	if err != nil {
		r.logger.Error().Err(err).Str("ingredient", ing.Name).Msg("inventory repo: upsert")
	}
	return err
}

func (r *postgresRepo) Reduce(ctx context.Context, orderID string, reqs []domain.Requirement) ([]domain.IngredientResult, error) {
	if orderID == "" {
		return nil, fmt.Errorf("%w: order id required for reduction", domain.ErrValidation)
	}
	results := make([]domain.IngredientResult, 0, len(reqs))
	for _, req := range reqs {
		res, err := r.reduceOne(ctx, orderID, req)
		if err != nil {
			res = domain.IngredientResult{
				IngredientName: req.IngredientName,
				Required:       req.Quantity,
				Unit:           req.Unit,
				Outcome:        domain.OutcomeFailed,
				Error:          err.Error(),
			}
			r.logger.Warn().Err(err).Str("order_id", orderID).Str("ingredient", req.IngredientName).Msg("inventory repo: reduce failed")
		}
		results = append(results, res)
	}
	return results, nil
}

// reduceOne records the (order, ingredient) ledger row and decrements stock in
// one transaction. A ledger hit means the decrement already happened.
func (r *postgresRepo) reduceOne(ctx context.Context, orderID string, req domain.Requirement) (domain.IngredientResult, error) {
	key := domain.NormalizeName(req.IngredientName)
	res := domain.IngredientResult{IngredientName: req.IngredientName, Required: req.Quantity, Unit: req.Unit}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return res, err
	}
	defer tx.Rollback(ctx)

	var minimum float64
	var unit string
	err = tx.QueryRow(ctx, `
SELECT quantity::float8, minimum_stock::float8, unit
FROM ingredients
WHERE name_key = $1
FOR UPDATE
`, key).Scan(&res.PreviousQuantity, &minimum, &unit)
	if errors.Is(err, pgx.ErrNoRows) {
		res.Outcome = domain.OutcomeNotFound
		return res, nil
	}
	if err != nil {
		return res, err
	}
	if res.Unit == "" {
		res.Unit = unit
	}

	cmd, err := tx.Exec(ctx, `
INSERT INTO inventory_reductions (order_id, ingredient_key, quantity)
VALUES ($1, $2, $3)
ON CONFLICT (order_id, ingredient_key) DO NOTHING
`, orderID, key, req.Quantity)
	if err != nil {
		return res, err
	}
	if cmd.RowsAffected() == 0 {
		res.Remaining = res.PreviousQuantity
		res.Status = domain.DeriveStockStatus(res.Remaining, minimum)
		res.Outcome = domain.OutcomeSkipped
		return res, nil
	}

	remaining := decimal.NewFromFloat(res.PreviousQuantity).Sub(decimal.NewFromFloat(req.Quantity))
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	res.Remaining = remaining.InexactFloat64()
	res.Status = domain.DeriveStockStatus(res.Remaining, minimum)

	if _, err := tx.Exec(ctx, `
UPDATE ingredients
SET quantity = GREATEST(quantity - $2, 0), status = $3, updated_at = now()
WHERE name_key = $1
`, key, req.Quantity, string(res.Status)); err != nil {
		return res, err
	}
	if err := tx.Commit(ctx); err != nil {
		return res, err
	}
	res.Outcome = domain.OutcomeReduced
	return res, nil
}
