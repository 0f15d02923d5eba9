package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"restaurant-fulfillment/internal/domain"
	"restaurant-fulfillment/internal/outbox"
)

type orderReader interface {
	GetByID(ctx context.Context, id string) (*domain.Order, error)
}

type reducer interface {
	Reduce(ctx context.Context, orderID string, items []domain.OrderItem) (domain.ReductionReport, error)
}

// TaskHandler runs reconcile_inventory outbox tasks.
type TaskHandler struct {
	reducer reducer
	orders  orderReader
	logger  zerolog.Logger
}

func NewTaskHandler(r reducer, orders orderReader, logger zerolog.Logger) *TaskHandler {
	return &TaskHandler{reducer: r, orders: orders, logger: logger}
}

func (h *TaskHandler) Handle(ctx context.Context, task domain.Task) error {
	o, err := h.orders.GetByID(ctx, task.OrderID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return outbox.Permanent(fmt.Errorf("order %s not found", task.OrderID))
		}
		return err
	}
	if o.Status == domain.StatusCancelled || o.Status == domain.StatusRefunded {
		h.logger.Info().Str("order_id", o.ID).Str("status", string(o.Status)).Msg("inventory: order withdrawn before reconciliation, skipping")
		return nil
	}

	report, err := h.reducer.Reduce(ctx, o.ID, o.Items)
	if err != nil {
		return err
	}
	if !report.Succeeded {
		var failed []string
		for _, res := range report.Results {
			if res.Outcome == domain.OutcomeFailed {
				failed = append(failed, res.IngredientName)
			}
		}
		return fmt.Errorf("reduction incomplete for %d ingredient(s): %v", len(failed), failed)
	}
	return nil
}
