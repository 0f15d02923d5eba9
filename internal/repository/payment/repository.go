package payment

import (
	"context"
	"time"

	"restaurant-fulfillment/internal/domain"
)

// MatchInput settles one bank transaction against one order.
type MatchInput struct {
	CassoID     string
	OrderID     string
	OrderNumber string
	MatchedAt   time.Time
	Tasks       []domain.NewTask
}

type Repository interface {
	// Record stores a first delivery. For a known cassoId it bumps the
	// delivery counter and returns the stored record with created=false.
	Record(ctx context.Context, tx domain.CassoTransaction) (stored *domain.CassoTransaction, created bool, err error)
	Get(ctx context.Context, cassoID string) (*domain.CassoTransaction, error)
	// Candidates lists orders still awaiting a payment of exactly amount.
	Candidates(ctx context.Context, amount int64) ([]domain.Order, error)
	// Match claims the order (only while awaiting_payment) and marks the
	// transaction matched in one database transaction. A lost claim returns
	// domain.ErrConflict; an already matched transaction returns
	// domain.ErrAlreadyMatched.
	Match(ctx context.Context, in MatchInput) error
	MarkUnmatched(ctx context.Context, cassoID string) error
	ListUnmatched(ctx context.Context, limit, offset int) ([]domain.CassoTransaction, error)
}
