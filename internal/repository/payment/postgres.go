package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"restaurant-fulfillment/internal/domain"
	orderrepo "restaurant-fulfillment/internal/repository/order"
	"restaurant-fulfillment/internal/repository/outbox"
)

type postgresRepo struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

func NewPostgres(pool *pgxpool.Pool, logger zerolog.Logger) Repository {
	return &postgresRepo{pool: pool, logger: logger}
}

const txColumns = `casso_id, tid, amount, description, tx_when, bank_account_id, match_status, processed,
COALESCE(order_id::text, ''), order_number, matched_at, delivery_count, created_at`

func (r *postgresRepo) Record(ctx context.Context, t domain.CassoTransaction) (*domain.CassoTransaction, bool, error) {
	var raw []byte
	if len(t.RawPayload) > 0 {
		raw = t.RawPayload
	}
	var when any
	if !t.When.IsZero() {
		when = t.When
	}
	cmd, err := r.pool.Exec(ctx, `
INSERT INTO casso_transactions (casso_id, tid, amount, description, tx_when, bank_account_id, match_status, raw_payload)
VALUES ($1, $2, $3, $4, $5, $6, 'pending', $7)
ON CONFLICT (casso_id) DO NOTHING
`, t.CassoID, t.TID, t.Amount, t.Description, when, t.BankAccountID, raw)
	if err != nil {
		r.logger.Error().Err(err).Str("casso_id", t.CassoID).Msg("payment repo: record")
		return nil, false, err
	}
	if cmd.RowsAffected() == 1 {
		stored, err := r.Get(ctx, t.CassoID)
		return stored, true, err
	}

	stored, err := scanTransaction(r.pool.QueryRow(ctx, `
UPDATE casso_transactions
SET delivery_count = delivery_count + 1, updated_at = now()
WHERE casso_id = $1
RETURNING `+txColumns, t.CassoID))
	if err != nil {
		return nil, false, err
	}
	r.logger.Info().Str("casso_id", t.CassoID).Int("deliveries", stored.DeliveryCount).Msg("payment repo: duplicate delivery")
	return stored, false, nil
}

func (r *postgresRepo) Get(ctx context.Context, cassoID string) (*domain.CassoTransaction, error) {
	t, err := scanTransaction(r.pool.QueryRow(ctx, `SELECT `+txColumns+` FROM casso_transactions WHERE casso_id = $1`, cassoID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return t, nil
}

func (r *postgresRepo) Candidates(ctx context.Context, amount int64) ([]domain.Order, error) {
	rows, err := r.pool.Query(ctx, `
SELECT `+orderrepo.Columns+`
FROM orders
WHERE payment_status = 'awaiting_payment'
  AND total = $1
  AND status NOT IN ('cancelled', 'refunded')
ORDER BY created_at ASC
`, amount)
	if err != nil {
		r.logger.Error().Err(err).Int64("amount", amount).Msg("payment repo: candidates")
		return nil, err
	}
	defer rows.Close()

	var out []domain.Order
	for rows.Next() {
		o, err := orderrepo.ScanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

func (r *postgresRepo) Match(ctx context.Context, in MatchInput) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	cmd, err := tx.Exec(ctx, `
UPDATE casso_transactions
SET match_status = 'matched', processed = TRUE, order_id = $2::uuid, order_number = $3, matched_at = $4, updated_at = now()
WHERE casso_id = $1 AND match_status IN ('pending', 'unmatched')
`, in.CassoID, in.OrderID, in.OrderNumber, in.MatchedAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", domain.ErrAlreadyMatched, in.CassoID)
	}

	cmd, err = tx.Exec(ctx, `
UPDATE orders
SET payment_status = 'paid', transaction_id = $2, paid_at = $3, updated_at = $3
WHERE id::text = $1 AND payment_status = 'awaiting_payment'
`, in.OrderID, in.CassoID, in.MatchedAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("%w: order %s no longer awaiting payment", domain.ErrConflict, in.OrderID)
	}

	for i := range in.Tasks {
		in.Tasks[i].OrderID = in.OrderID
	}
	if err := outbox.InsertTx(ctx, tx, in.Tasks...); err != nil {
		return fmt.Errorf("enqueue tasks: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	r.logger.Info().Str("casso_id", in.CassoID).Str("order_id", in.OrderID).Str("order_number", in.OrderNumber).Msg("payment repo: matched")
	return nil
}

func (r *postgresRepo) MarkUnmatched(ctx context.Context, cassoID string) error {
	_, err := r.pool.Exec(ctx, `
UPDATE casso_transactions
SET match_status = 'unmatched', processed = TRUE, updated_at = now()
WHERE casso_id = $1 AND match_status = 'pending'
`, cassoID)
	return err
}

func (r *postgresRepo) ListUnmatched(ctx context.Context, limit, offset int) ([]domain.CassoTransaction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.pool.Query(ctx, `
SELECT `+txColumns+`
FROM casso_transactions
WHERE match_status = 'unmatched'
ORDER BY created_at DESC
LIMIT $1 OFFSET $2
`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.CassoTransaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func scanTransaction(row pgx.Row) (*domain.CassoTransaction, error) {
	var t domain.CassoTransaction
	var status string
	var when *time.Time
	if err := row.Scan(&t.CassoID, &t.TID, &t.Amount, &t.Description, &when, &t.BankAccountID, &status, &t.Processed,
		&t.OrderID, &t.OrderNumber, &t.MatchedAt, &t.DeliveryCount, &t.CreatedAt); err != nil {
		return nil, err
	}
	if when != nil {
		t.When = *when
	}
	t.MatchStatus = domain.MatchStatus(status)
	return &t, nil
}
