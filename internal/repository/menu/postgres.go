package menu

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

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

const selectColumns = `id::text, name, description, price, category, available, ingredients, created_at`

func (r *postgresRepo) List(ctx context.Context) ([]domain.MenuItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+selectColumns+` FROM menu_items ORDER BY category, name`)
	if err != nil {
		r.logger.Error().Err(err).Msg("menu repo: list")
		return nil, err
	}
	defer rows.Close()

	var result []domain.MenuItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	r.logger.Debug().Int("count", len(result)).Msg("menu repo: list")
	return result, nil
}

func (r *postgresRepo) GetByID(ctx context.Context, id string) (*domain.MenuItem, error) {
	item, err := scanItem(r.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM menu_items WHERE id::text = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		r.logger.Error().Err(err).Str("menu_item_id", id).Msg("menu repo: get")
		return nil, err
	}
	return item, nil
}

func (r *postgresRepo) GetByName(ctx context.Context, name string) (*domain.MenuItem, error) {
	item, err := scanItem(r.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM menu_items WHERE name_key = $1`, domain.NormalizeName(name)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		r.logger.Error().Err(err).Str("name", name).Msg("menu repo: get by name")
		return nil, err
	}
	return item, nil
}

// Upsert keys on the normalised name so re-importing a menu updates in place.
func (r *postgresRepo) Upsert(ctx context.Context, item domain.MenuItem) (*domain.MenuItem, error) {
	ingredients := item.Ingredients
	if ingredients == nil {
		ingredients = []domain.RecipeIngredient{}
	}
	raw, err := json.Marshal(ingredients)
	if err != nil {
		return nil, fmt.Errorf("encode ingredients: %w", err)
	}

	const q = `
INSERT INTO menu_items (id, name, name_key, description, price, category, available, ingredients)
VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (name_key) DO UPDATE SET
    name = EXCLUDED.name,
    description = EXCLUDED.description,
    price = EXCLUDED.price,
    category = EXCLUDED.category,
    available = EXCLUDED.available,
    ingredients = EXCLUDED.ingredients,
    updated_at = now()
RETURNING id::text, created_at
`
	res := item
	res.Ingredients = ingredients
	if err := r.pool.QueryRow(ctx, q,
		item.ID,
		item.Name,
		domain.NormalizeName(item.Name),
		item.Description,
		item.Price,
		item.Category,
		item.Available,
		raw,
	).Scan(&res.ID, &res.CreatedAt); err != nil {
		r.logger.Error().Err(err).Str("name", item.Name).Msg("menu repo: upsert")
		return nil, err
	}
	if item.ID != "" && res.ID != item.ID {
		return nil, fmt.Errorf("menu repo: id mismatch for name=%s existing_id=%s import_id=%s", item.Name, res.ID, item.ID)
	}
	r.logger.Debug().Str("name", res.Name).Str("menu_item_id", res.ID).Msg("menu repo: upserted")
	return &res, nil
}

func scanItem(row pgx.Row) (*domain.MenuItem, error) {
	var item domain.MenuItem
	var raw []byte
	if err := row.Scan(&item.ID, &item.Name, &item.Description, &item.Price, &item.Category, &item.Available, &raw, &item.CreatedAt); err != nil {
		return nil, err
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &item.Ingredients); err != nil {
			return nil, fmt.Errorf("decode ingredients for %s: %w", item.ID, err)
		}
	}
	return &item, nil
}
