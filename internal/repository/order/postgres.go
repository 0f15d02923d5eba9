package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"restaurant-fulfillment/internal/domain"
	"restaurant-fulfillment/internal/repository/outbox"
)

type postgresRepo struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

func NewPostgres(pool *pgxpool.Pool, logger zerolog.Logger) Repository {
	return &postgresRepo{pool: pool, logger: logger}
}

// Columns shared with the payment repository's candidate search.
const Columns = `id::text, order_number, COALESCE(customer_id, ''), COALESCE(session_id, ''), customer_info, items, order_type, delivery,
subtotal, tax, delivery_fee, discount, total, payment_method, payment_status, COALESCE(transaction_id, ''), paid_at,
status, coupon_code, notes, estimated_completion_time, actual_completion_time, total_time, created_at, updated_at`

func (r *postgresRepo) Create(ctx context.Context, o *domain.Order, tasks []domain.NewTask) error {
	customerInfo, err := json.Marshal(o.CustomerInfo)
	if err != nil {
		return fmt.Errorf("encode customer info: %w", err)
	}
	items, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("encode items: %w", err)
	}
	delivery, err := json.Marshal(o.Delivery)
	if err != nil {
		return fmt.Errorf("encode delivery: %w", err)
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	const q = `
INSERT INTO orders (
    order_number, customer_id, session_id, customer_info, items, order_type, delivery,
    subtotal, tax, delivery_fee, discount, total, payment_method, payment_status,
    status, coupon_code, notes, estimated_completion_time, created_at, updated_at)
VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $19)
RETURNING id::text
`
	err = tx.QueryRow(ctx, q,
		o.OrderNumber, o.CustomerID, o.SessionID, customerInfo, items, string(o.OrderType), delivery,
		o.Pricing.Subtotal, o.Pricing.Tax, o.Pricing.DeliveryFee, o.Pricing.Discount, o.Pricing.Total,
		string(o.Payment.Method), string(o.Payment.Status),
		string(o.Status), o.CouponCode, o.Notes, o.EstimatedCompletionTime, o.CreatedAt,
	).Scan(&o.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrAlreadyExists
		}
		r.logger.Error().Err(err).Str("order_number", o.OrderNumber).Msg("order repo: create")
		return err
	}

	for _, entry := range o.Timeline {
		if err := insertTimeline(ctx, tx, o.ID, entry); err != nil {
			return err
		}
	}
	for i := range tasks {
		tasks[i].OrderID = o.ID
	}
	if err := outbox.InsertTx(ctx, tx, tasks...); err != nil {
		return fmt.Errorf("enqueue tasks: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	r.logger.Info().Str("order_id", o.ID).Str("order_number", o.OrderNumber).Str("status", string(o.Status)).Msg("order repo: created")
	return nil
}

func (r *postgresRepo) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	return r.getOne(ctx, `SELECT `+Columns+` FROM orders WHERE id::text = $1`, id)
}

func (r *postgresRepo) GetByNumber(ctx context.Context, number string) (*domain.Order, error) {
	return r.getOne(ctx, `SELECT `+Columns+` FROM orders WHERE order_number = $1`, strings.ToUpper(strings.TrimSpace(number)))
}

func (r *postgresRepo) getOne(ctx context.Context, q string, arg string) (*domain.Order, error) {
	o, err := ScanOrder(r.pool.QueryRow(ctx, q, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		r.logger.Error().Err(err).Str("key", arg).Msg("order repo: get")
		return nil, err
	}
	timeline, err := r.timeline(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	o.Timeline = timeline
	return o, nil
}

func (r *postgresRepo) List(ctx context.Context, f ListFilter) ([]domain.Order, error) {
	var where []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.CustomerID != "" {
		add("customer_id = $%d", f.CustomerID)
	}
	if f.SessionID != "" {
		add("session_id = $%d", f.SessionID)
	}
	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	q := `SELECT ` + Columns + ` FROM orders`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, limit, offset)
	q += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		r.logger.Error().Err(err).Msg("order repo: list")
		return nil, err
	}
	defer rows.Close()

	var out []domain.Order
	for rows.Next() {
		o, err := ScanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

func (r *postgresRepo) ApplyTransition(ctx context.Context, in TransitionInput) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	const q = `
UPDATE orders
SET status = $3,
    actual_completion_time = COALESCE($4, actual_completion_time),
    total_time = COALESCE($5, total_time),
    payment_status = COALESCE(NULLIF($6, ''), payment_status),
    updated_at = $7
WHERE id::text = $1 AND status = $2
`
	cmd, err := tx.Exec(ctx, q, in.OrderID, string(in.From), string(in.To), in.ActualCompletionTime, in.TotalTime, string(in.PaymentStatus), in.Entry.Timestamp)
	if err != nil {
		r.logger.Error().Err(err).Str("order_id", in.OrderID).Msg("order repo: transition")
		return err
	}
	if cmd.RowsAffected() == 0 {
		var current string
		err := tx.QueryRow(ctx, `SELECT status FROM orders WHERE id::text = $1`, in.OrderID).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: order %s is %s, expected %s", domain.ErrConflict, in.OrderID, current, in.From)
	}

	if err := insertTimeline(ctx, tx, in.OrderID, in.Entry); err != nil {
		return err
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
	r.logger.Info().
		Str("order_id", in.OrderID).
		Str("from", string(in.From)).
		Str("to", string(in.To)).
		Int("tasks", len(in.Tasks)).
		Msg("order repo: transition applied")
	return nil
}

func (r *postgresRepo) timeline(ctx context.Context, orderID string) ([]domain.TimelineEntry, error) {
	rows, err := r.pool.Query(ctx, `
SELECT status, note, updated_by, created_at
FROM order_timeline
WHERE order_id::text = $1
ORDER BY id ASC
`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.TimelineEntry
	for rows.Next() {
		var e domain.TimelineEntry
		var status string
		if err := rows.Scan(&status, &e.Note, &e.UpdatedBy, &e.Timestamp); err != nil {
			return nil, err
		}
		e.Status = domain.OrderStatus(status)
		out = append(out, e)
	}
	return out, rows.Err()
}

func insertTimeline(ctx context.Context, tx pgx.Tx, orderID string, e domain.TimelineEntry) error {
	_, err := tx.Exec(ctx, `
INSERT INTO order_timeline (order_id, status, note, updated_by, created_at)
VALUES ($1::uuid, $2, $3, $4, $5)
`, orderID, string(e.Status), e.Note, e.UpdatedBy, e.Timestamp)
	return err
}

// ScanOrder reads a row selected with Columns. Timeline is loaded separately.
func ScanOrder(row pgx.Row) (*domain.Order, error) {
	var o domain.Order
	var customerInfo, items, delivery []byte
	var orderType, method, paymentStatus, status string
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.CustomerID, &o.SessionID, &customerInfo, &items, &orderType, &delivery,
		&o.Pricing.Subtotal, &o.Pricing.Tax, &o.Pricing.DeliveryFee, &o.Pricing.Discount, &o.Pricing.Total,
		&method, &paymentStatus, &o.Payment.TransactionID, &o.Payment.PaidAt,
		&status, &o.CouponCode, &o.Notes, &o.EstimatedCompletionTime, &o.ActualCompletionTime, &o.TotalTime,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.OrderType = domain.DeliveryType(orderType)
	o.Payment.Method = domain.PaymentMethod(method)
	o.Payment.Status = domain.PaymentStatus(paymentStatus)
	o.Status = domain.OrderStatus(status)
	if err := json.Unmarshal(customerInfo, &o.CustomerInfo); err != nil {
		return nil, fmt.Errorf("decode customer info: %w", err)
	}
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return nil, fmt.Errorf("decode items: %w", err)
	}
	if err := json.Unmarshal(delivery, &o.Delivery); err != nil {
		return nil, fmt.Errorf("decode delivery: %w", err)
	}
	return &o, nil
}
