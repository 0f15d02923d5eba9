package outbox

import (
	"context"
	"time"

	"restaurant-fulfillment/internal/domain"
)

// Repository is the worker side of the outbox. Producers insert tasks with
// InsertTx inside their own transaction.
type Repository interface {
	// Claim leases up to limit due tasks until now+lease and bumps their attempt count.
	Claim(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]domain.Task, error)
	Complete(ctx context.Context, id string) error
	Retry(ctx context.Context, id string, nextRunAt time.Time, lastErr string) error
	Bury(ctx context.Context, id string, lastErr string) error
	List(ctx context.Context, status domain.TaskStatus, limit int) ([]domain.Task, error)
}
