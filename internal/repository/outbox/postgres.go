package outbox

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"restaurant-fulfillment/internal/domain"
)

// DefaultMaxAttempts applies when a NewTask leaves MaxAttempts at zero.
const DefaultMaxAttempts = 8

type postgresRepo struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

func NewPostgres(pool *pgxpool.Pool, logger zerolog.Logger) Repository {
	return &postgresRepo{pool: pool, logger: logger}
}

// InsertTx records tasks in the caller's transaction so they commit or roll
// back together with the change that produced them.
func InsertTx(ctx context.Context, tx pgx.Tx, tasks ...domain.NewTask) error {
	const q = `
INSERT INTO outbox_tasks (kind, order_id, payload, max_attempts)
VALUES ($1, $2, $3, $4)
`
	for _, t := range tasks {
		maxAttempts := t.MaxAttempts
		if maxAttempts <= 0 {
			maxAttempts = DefaultMaxAttempts
		}
		var payload []byte
		if len(t.Payload) > 0 {
			payload = t.Payload
		}
		if _, err := tx.Exec(ctx, q, string(t.Kind), t.OrderID, payload, maxAttempts); err != nil {
			return err
		}
	}
	return nil
}

const taskColumns = `id::text, kind, order_id, payload, status, attempts, max_attempts, next_run_at, last_error, created_at, updated_at`

func (r *postgresRepo) Claim(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]domain.Task, error) {
	const q = `
UPDATE outbox_tasks
SET attempts = attempts + 1,
    next_run_at = $1::timestamptz + make_interval(secs => $3),
    updated_at = now()
WHERE id IN (
    SELECT id FROM outbox_tasks
    WHERE status = 'pending' AND next_run_at <= $1
    ORDER BY next_run_at
    LIMIT $2
    FOR UPDATE SKIP LOCKED
)
RETURNING ` + taskColumns
	rows, err := r.pool.Query(ctx, q, now, limit, lease.Seconds())
	if err != nil {
		r.logger.Error().Err(err).Msg("outbox repo: claim")
		return nil, err
	}
	return collectTasks(rows)
}

func (r *postgresRepo) Complete(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `UPDATE outbox_tasks SET status = 'done', last_error = '', updated_at = now() WHERE id = $1`, id)
	return err
}

func (r *postgresRepo) Retry(ctx context.Context, id string, nextRunAt time.Time, lastErr string) error {
	_, err := r.pool.Exec(ctx, `UPDATE outbox_tasks SET next_run_at = $2, last_error = $3, updated_at = now() WHERE id = $1`, id, nextRunAt, lastErr)
	return err
}

func (r *postgresRepo) Bury(ctx context.Context, id string, lastErr string) error {
	_, err := r.pool.Exec(ctx, `UPDATE outbox_tasks SET status = 'dead', last_error = $2, updated_at = now() WHERE id = $1`, id, lastErr)
	return err
}

func (r *postgresRepo) List(ctx context.Context, status domain.TaskStatus, limit int) ([]domain.Task, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `SELECT `+taskColumns+` FROM outbox_tasks WHERE status = $1 ORDER BY updated_at DESC LIMIT $2`, string(status), limit)
	if err != nil {
		return nil, err
	}
	return collectTasks(rows)
}

func collectTasks(rows pgx.Rows) ([]domain.Task, error) {
	defer rows.Close()
	var tasks []domain.Task
	for rows.Next() {
		var t domain.Task
		var kind, status string
		var payload []byte
		if err := rows.Scan(&t.ID, &kind, &t.OrderID, &payload, &status, &t.Attempts, &t.MaxAttempts, &t.NextRunAt, &t.LastError, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		t.Kind = domain.TaskKind(kind)
		t.Status = domain.TaskStatus(status)
		t.Payload = payload
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}
