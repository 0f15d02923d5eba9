package order

import (
	"context"
	"time"

	"restaurant-fulfillment/internal/domain"
)

type ListFilter struct {
	Status     domain.OrderStatus
	CustomerID string
	SessionID  string
	Limit      int
	Offset     int
}

// TransitionInput is one accepted status change. The update only applies
// while the stored status still equals From.
type TransitionInput struct {
	OrderID              string
	From                 domain.OrderStatus
	To                   domain.OrderStatus
	Entry                domain.TimelineEntry
	ActualCompletionTime *time.Time
	TotalTime            *int
	PaymentStatus        domain.PaymentStatus
	Tasks                []domain.NewTask
}

type Repository interface {
	// Create persists the order, its first timeline entry and tasks atomically.
	// A duplicate order number yields domain.ErrAlreadyExists.
	Create(ctx context.Context, order *domain.Order, tasks []domain.NewTask) error
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	GetByNumber(ctx context.Context, number string) (*domain.Order, error)
	List(ctx context.Context, filter ListFilter) ([]domain.Order, error)
	ApplyTransition(ctx context.Context, in TransitionInput) error
}
