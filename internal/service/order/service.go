package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"restaurant-fulfillment/internal/auth"
	"restaurant-fulfillment/internal/domain"
	"restaurant-fulfillment/internal/pricing"
	orderrepo "restaurant-fulfillment/internal/repository/order"
)

const (
	numberAttempts = 5
	// eventAttempts keeps order event fan-out best effort.
	eventAttempts = 3
)

type Service struct {
	repo   orderrepo.Repository
	logger zerolog.Logger
	now    func() time.Time
}

func New(repo orderrepo.Repository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, logger: logger, now: time.Now}
}

// CheckoutInput is what the cart hands over at checkout. Cart.Summary must
// already be recomputed.
type CheckoutInput struct {
	Cart          *domain.Cart
	Customer      domain.ContactInfo
	PaymentMethod domain.PaymentMethod
	Delivery      domain.Delivery
	Notes         string
	UpdatedBy     string
}

func (s *Service) CreateFromCheckout(ctx context.Context, in CheckoutInput) (*domain.Order, error) {
	if in.Cart == nil {
		return nil, domain.Validationf("cart required")
	}
	owner := in.Cart.Owner
	if !owner.Valid() {
		return nil, domain.Validationf("exactly one of customerId or sessionId is required")
	}
	if len(in.Cart.Items) == 0 {
		return nil, domain.EmptyCartError
	}
	if !in.PaymentMethod.Valid() {
		return nil, domain.Validationf("unsupported payment method %q", in.PaymentMethod)
	}
	delivery := in.Delivery
	if !delivery.Type.Valid() {
		return nil, domain.Validationf("unsupported delivery type %q", delivery.Type)
	}
	if delivery.EstimatedTime <= 0 {
		delivery.EstimatedTime = domain.DefaultEstimatedMinutes(delivery.Type)
	}

	now := s.now().UTC()
	status := domain.InitialStatus(delivery.Type)
	items := make([]domain.OrderItem, 0, len(in.Cart.Items))
	for _, it := range in.Cart.Items {
		items = append(items, domain.OrderItem{
			MenuItemID:     it.MenuItemID,
			Name:           it.Name,
			Price:          it.Price,
			Quantity:       it.Quantity,
			Customizations: it.Customizations,
			Subtotal:       it.Price * int64(it.Quantity),
		})
	}
	o := &domain.Order{
		CustomerID:   owner.CustomerID,
		SessionID:    owner.SessionID,
		CustomerInfo: in.Customer,
		Items:        items,
		OrderType:    delivery.Type,
		Delivery:     delivery,
		Pricing:      pricing.ForOrder(in.Cart.Summary),
		Payment: domain.Payment{
			Method: in.PaymentMethod,
			Status: in.PaymentMethod.InitialPaymentStatus(),
		},
		Status: status,
		Timeline: []domain.TimelineEntry{{
			Status:    status,
			Timestamp: now,
			Note:      "order created",
			UpdatedBy: in.UpdatedBy,
		}},
		Notes:                   strings.TrimSpace(in.Notes),
		EstimatedCompletionTime: now.Add(time.Duration(delivery.EstimatedTime) * time.Minute),
		CreatedAt:               now,
		UpdatedAt:               now,
	}
	if in.Cart.AppliedCoupon != nil {
		o.CouponCode = in.Cart.AppliedCoupon.Code
	}

	for i := 0; i < numberAttempts; i++ {
		number, err := newOrderNumber(now)
		if err != nil {
			return nil, err
		}
		o.OrderNumber = number
		// The order id is only known after insert, so the payload omits it and
		// the publisher fills it from the task row.
		task, err := EventTask(o, now)
		if err != nil {
			return nil, err
		}
		err = s.repo.Create(ctx, o, []domain.NewTask{task})
		if err == nil {
			s.logger.Info().Str("order_id", o.ID).Str("order_number", o.OrderNumber).Int64("total", o.Pricing.Total).Msg("order: created")
			return o, nil
		}
		if errors.Is(err, domain.ErrAlreadyExists) {
			s.logger.Debug().Str("order_number", number).Msg("order: number collision, regenerating")
			continue
		}
		return nil, err
	}
	return nil, errors.New("order number collision")
}

// Transition moves an order along the status graph on behalf of staff or the system.
func (s *Service) Transition(ctx context.Context, id string, to domain.OrderStatus, note string, actor auth.Actor) (*domain.Order, error) {
	if !actor.Can(auth.PermOrdersTransition) {
		return nil, fmt.Errorf("%w: %s may not change order status", domain.ErrForbidden, actor.Role)
	}
	if !to.Valid() {
		return nil, domain.Validationf("unknown status %q", to)
	}
	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.Status == domain.StatusPreparing && to == domain.StatusCancelled && !actor.Can(auth.PermOrdersOverride) {
		return nil, fmt.Errorf("%w: cancelling an order in preparation requires override", domain.ErrForbidden)
	}
	if !domain.CanTransition(o.Status, to) {
		return nil, &domain.InvalidTransitionError{From: o.Status, To: to}
	}
	return s.apply(ctx, o, to, note, actor, "")
}

// Cancel is the customer-facing path. Owners cancel their own orders; staff
// may cancel any order still inside the cancellation window.
func (s *Service) Cancel(ctx context.Context, id, reason string, actor auth.Actor) (*domain.Order, error) {
	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.Owns(o.Owner()) && !actor.Can(auth.PermOrdersCancel) {
		return nil, fmt.Errorf("%w: order %s belongs to someone else", domain.ErrForbidden, o.OrderNumber)
	}
	if !o.Status.Cancellable() {
		return nil, &domain.InvalidTransitionError{From: o.Status, To: domain.StatusCancelled}
	}
	if strings.TrimSpace(reason) == "" {
		reason = "cancelled"
	}
	return s.apply(ctx, o, domain.StatusCancelled, reason, actor, "")
}

// Refund closes an order that is past cancellation. Stock already consumed
// is not restored.
func (s *Service) Refund(ctx context.Context, id, reason string, actor auth.Actor) (*domain.Order, error) {
	if !actor.Can(auth.PermOrdersRefund) {
		return nil, fmt.Errorf("%w: %s may not refund orders", domain.ErrForbidden, actor.Role)
	}
	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !o.Status.Refundable() {
		return nil, &domain.InvalidTransitionError{From: o.Status, To: domain.StatusRefunded}
	}
	var payment domain.PaymentStatus
	if o.Payment.Status == domain.PaymentPaid {
		payment = domain.PaymentRefunded
	}
	if strings.TrimSpace(reason) == "" {
		reason = "refunded"
	}
	return s.apply(ctx, o, domain.StatusRefunded, reason, actor, payment)
}

func (s *Service) apply(ctx context.Context, o *domain.Order, to domain.OrderStatus, note string, actor auth.Actor, payment domain.PaymentStatus) (*domain.Order, error) {
	now := s.now().UTC()
	from := o.Status
	entry := domain.TimelineEntry{Status: to, Timestamp: now, Note: strings.TrimSpace(note), UpdatedBy: actor.Name()}

	next := *o
	next.Status = to
	next.UpdatedAt = now
	next.Timeline = append(append([]domain.TimelineEntry(nil), o.Timeline...), entry)
	if payment != "" {
		next.Payment.Status = payment
	}

	in := orderrepo.TransitionInput{
		OrderID:       o.ID,
		From:          from,
		To:            to,
		Entry:         entry,
		PaymentStatus: payment,
	}
	if to.CompletesOrder() {
		done := now
		minutes := int(now.Sub(o.CreatedAt) / time.Minute)
		next.ActualCompletionTime = &done
		next.TotalTime = &minutes
		in.ActualCompletionTime = &done
		in.TotalTime = &minutes
	}
	if to.TriggersReconciliation() {
		in.Tasks = append(in.Tasks, domain.NewTask{Kind: domain.TaskReconcileInventory, OrderID: o.ID})
	}
	event, err := EventTask(&next, now)
	if err != nil {
		return nil, err
	}
	in.Tasks = append(in.Tasks, event)

	if err := s.repo.ApplyTransition(ctx, in); err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("order_id", o.ID).
		Str("order_number", o.OrderNumber).
		Str("from", string(from)).
		Str("to", string(to)).
		Str("actor", actor.Name()).
		Msg("order: status changed")
	return &next, nil
}

func (s *Service) Get(ctx context.Context, id string, actor auth.Actor) (*domain.Order, error) {
	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return visible(o, actor)
}

func (s *Service) GetByNumber(ctx context.Context, number string, actor auth.Actor) (*domain.Order, error) {
	o, err := s.repo.GetByNumber(ctx, strings.TrimSpace(number))
	if err != nil {
		return nil, err
	}
	return visible(o, actor)
}

// List shows staff every order matching the filter; everyone else only sees
// their own.
func (s *Service) List(ctx context.Context, filter orderrepo.ListFilter, actor auth.Actor) ([]domain.Order, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, domain.Validationf("unknown status %q", filter.Status)
	}
	if !actor.Can(auth.PermOrdersRead) {
		owner := actor.Owner()
		if !owner.Valid() {
			return nil, domain.ErrUnauthenticated
		}
		filter.CustomerID = owner.CustomerID
		filter.SessionID = owner.SessionID
	}
	return s.repo.List(ctx, filter)
}

func visible(o *domain.Order, actor auth.Actor) (*domain.Order, error) {
	if actor.Can(auth.PermOrdersRead) || actor.Owns(o.Owner()) {
		return o, nil
	}
	return nil, domain.ErrNotFound
}

// EventTask builds the publish_order_event task carrying a snapshot of o.
func EventTask(o *domain.Order, at time.Time) (domain.NewTask, error) {
	payload, err := json.Marshal(domain.OrderEvent{
		OrderID:       o.ID,
		OrderNumber:   o.OrderNumber,
		Status:        o.Status,
		PaymentStatus: o.Payment.Status,
		OccurredAt:    at,
		Order:         o,
	})
	if err != nil {
		return domain.NewTask{}, fmt.Errorf("encode order event: %w", err)
	}
	return domain.NewTask{
		Kind:        domain.TaskPublishOrderEvent,
		OrderID:     o.ID,
		Payload:     payload,
		MaxAttempts: eventAttempts,
	}, nil
}
