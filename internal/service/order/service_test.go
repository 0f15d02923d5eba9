package order

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"restaurant-fulfillment/internal/auth"
	"restaurant-fulfillment/internal/domain"
	"restaurant-fulfillment/internal/pricing"
	orderrepo "restaurant-fulfillment/internal/repository/order"
)

type stubRepo struct {
	orders      map[string]*domain.Order
	createTasks []domain.NewTask
	collisions  int
	creates     int
	transitions []orderrepo.TransitionInput
	transErr    error
	lastFilter  orderrepo.ListFilter
}

func newStubRepo() *stubRepo {
	return &stubRepo{orders: map[string]*domain.Order{}}
}

func (s *stubRepo) Create(_ context.Context, o *domain.Order, tasks []domain.NewTask) error {
	s.creates++
	if s.collisions > 0 {
		s.collisions--
		return domain.ErrAlreadyExists
	}
	o.ID = fmt.Sprintf("order-%d", s.creates)
	cp := *o
	s.orders[o.ID] = &cp
	s.createTasks = tasks
	return nil
}

func (s *stubRepo) GetByID(_ context.Context, id string) (*domain.Order, error) {
	o, ok := s.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (s *stubRepo) GetByNumber(_ context.Context, number string) (*domain.Order, error) {
	for _, o := range s.orders {
		if o.OrderNumber == number {
			cp := *o
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *stubRepo) List(_ context.Context, f orderrepo.ListFilter) ([]domain.Order, error) {
	s.lastFilter = f
	return nil, nil
}

func (s *stubRepo) ApplyTransition(_ context.Context, in orderrepo.TransitionInput) error {
	if s.transErr != nil {
		return s.transErr
	}
	o := s.orders[in.OrderID]
	if o.Status != in.From {
		return domain.Conflictf("order %s is %s", in.OrderID, o.Status)
	}
	o.Status = in.To
	if in.PaymentStatus != "" {
		o.Payment.Status = in.PaymentStatus
	}
	o.Timeline = append(o.Timeline, in.Entry)
	s.transitions = append(s.transitions, in)
	return nil
}

var (
	fixedNow = time.Date(2026, 10, 15, 9, 30, 0, 0, time.UTC)
	staff    = auth.Actor{ID: "staff-1", Role: auth.RoleStaff}
	manager  = auth.Actor{ID: "mgr-1", Role: auth.RoleManager}
	owner    = auth.Actor{ID: "cust-1", Role: auth.RoleCustomer}
	stranger = auth.Actor{ID: "cust-2", Role: auth.RoleCustomer}
)

func newService(repo *stubRepo) *Service {
	svc := New(repo, zerolog.Nop())
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func checkoutCart(t domain.DeliveryType) *domain.Cart {
	c := &domain.Cart{
		Owner:    domain.Owner{CustomerID: "cust-1"},
		Items:    []domain.CartItem{{LineID: "l1", MenuItemID: "pho", Name: "Pho Bo", Price: 100000, Quantity: 2}},
		Delivery: domain.Delivery{Type: t},
	}
	pricing.DefaultRules().Summarize(c, domain.MembershipBronze)
	return c
}

func create(t *testing.T, svc *Service, typ domain.DeliveryType, method domain.PaymentMethod) *domain.Order {
	t.Helper()
	cart := checkoutCart(typ)
	o, err := svc.CreateFromCheckout(context.Background(), CheckoutInput{
		Cart:          cart,
		Customer:      domain.ContactInfo{Name: "An", Phone: "0900"},
		PaymentMethod: method,
		Delivery:      cart.Delivery,
	})
	require.NoError(t, err)
	return o
}

var numberPattern = regexp.MustCompile(`^ORD261015[0-9A-HJKMNP-TV-Z]{6}$`)

func TestCreateFromCheckout(t *testing.T) {
	repo := newStubRepo()
	o := create(t, newService(repo), domain.DeliveryTypeDelivery, domain.PaymentBankTransfer)

	assert.Regexp(t, numberPattern, o.OrderNumber)
	assert.Equal(t, domain.StatusPending, o.Status)
	assert.Equal(t, domain.PaymentAwaiting, o.Payment.Status)
	assert.Equal(t, domain.OrderPricing{Subtotal: 200000, Tax: 16000, DeliveryFee: 30000, Total: 246000}, o.Pricing)
	require.Len(t, o.Timeline, 1)
	assert.Equal(t, "order created", o.Timeline[0].Note)
	assert.Equal(t, fixedNow.Add(45*time.Minute), o.EstimatedCompletionTime)
	assert.Equal(t, int64(200000), o.Items[0].Subtotal)

	require.Len(t, repo.createTasks, 1)
	assert.Equal(t, domain.TaskPublishOrderEvent, repo.createTasks[0].Kind)
}

func TestCreateDineInStartsOrdered(t *testing.T) {
	o := create(t, newService(newStubRepo()), domain.DeliveryTypeDineIn, domain.PaymentCash)
	assert.Equal(t, domain.StatusOrdered, o.Status)
	assert.Equal(t, domain.PaymentPending, o.Payment.Status)
	assert.Equal(t, fixedNow.Add(30*time.Minute), o.EstimatedCompletionTime)
}

func TestCreateRetriesNumberCollision(t *testing.T) {
	repo := newStubRepo()
	repo.collisions = 2
	o := create(t, newService(repo), domain.DeliveryTypePickup, domain.PaymentCash)
	assert.Equal(t, 3, repo.creates)
	assert.NotEmpty(t, o.ID)

	repo = newStubRepo()
	repo.collisions = numberAttempts
	cart := checkoutCart(domain.DeliveryTypePickup)
	_, err := newService(repo).CreateFromCheckout(context.Background(), CheckoutInput{Cart: cart, PaymentMethod: domain.PaymentCash, Delivery: cart.Delivery})
	assert.Error(t, err)
}

func TestCreateValidation(t *testing.T) {
	svc := newService(newStubRepo())
	ctx := context.Background()

	_, err := svc.CreateFromCheckout(ctx, CheckoutInput{})
	assert.ErrorIs(t, err, domain.ErrValidation)

	both := checkoutCart(domain.DeliveryTypePickup)
	both.Owner.SessionID = "s1"
	_, err = svc.CreateFromCheckout(ctx, CheckoutInput{Cart: both, PaymentMethod: domain.PaymentCash, Delivery: both.Delivery})
	assert.ErrorIs(t, err, domain.ErrValidation)

	empty := checkoutCart(domain.DeliveryTypePickup)
	empty.Items = nil
	_, err = svc.CreateFromCheckout(ctx, CheckoutInput{Cart: empty, PaymentMethod: domain.PaymentCash, Delivery: empty.Delivery})
	assert.ErrorIs(t, err, domain.ErrEmptyCart)

	c := checkoutCart(domain.DeliveryTypePickup)
	_, err = svc.CreateFromCheckout(ctx, CheckoutInput{Cart: c, PaymentMethod: "barter", Delivery: c.Delivery})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestNewOrderNumberFormat(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		n, err := newOrderNumber(fixedNow)
		require.NoError(t, err)
		require.Regexp(t, numberPattern, n)
		seen[n] = true
	}
	assert.Greater(t, len(seen), 190)
}

func TestTransitionHappyPathEnqueuesTasks(t *testing.T) {
	repo := newStubRepo()
	svc := newService(repo)
	o := create(t, svc, domain.DeliveryTypeDelivery, domain.PaymentCash)
	ctx := context.Background()

	confirmed, err := svc.Transition(ctx, o.ID, domain.StatusConfirmed, "kitchen accepted", staff)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, confirmed.Status)
	require.Len(t, confirmed.Timeline, 2)
	assert.Equal(t, "staff-1", confirmed.Timeline[1].UpdatedBy)

	in := repo.transitions[0]
	assert.Equal(t, domain.StatusPending, in.From)
	require.Len(t, in.Tasks, 2)
	assert.Equal(t, domain.TaskReconcileInventory, in.Tasks[0].Kind)
	assert.Equal(t, domain.TaskPublishOrderEvent, in.Tasks[1].Kind)

	var ev domain.OrderEvent
	require.NoError(t, json.Unmarshal(in.Tasks[1].Payload, &ev))
	assert.Equal(t, domain.StatusConfirmed, ev.Status)
	assert.Equal(t, o.ID, ev.OrderID)
}

func TestTransitionWalkToDelivered(t *testing.T) {
	repo := newStubRepo()
	svc := newService(repo)
	o := create(t, svc, domain.DeliveryTypeDelivery, domain.PaymentCash)
	ctx := context.Background()

	steps := []domain.OrderStatus{domain.StatusConfirmed, domain.StatusPreparing, domain.StatusReady, domain.StatusOutForDelivery}
	for _, st := range steps {
		_, err := svc.Transition(ctx, o.ID, st, "", staff)
		require.NoError(t, err, "to %s", st)
	}
	svc.now = func() time.Time { return fixedNow.Add(52 * time.Minute) }
	done, err := svc.Transition(ctx, o.ID, domain.StatusDelivered, "", staff)
	require.NoError(t, err)
	require.NotNil(t, done.TotalTime)
	assert.Equal(t, 52, *done.TotalTime)
	require.NotNil(t, done.ActualCompletionTime)

	reconciles := 0
	for _, tr := range repo.transitions {
		for _, task := range tr.Tasks {
			if task.Kind == domain.TaskReconcileInventory {
				reconciles++
			}
		}
	}
	assert.Equal(t, 2, reconciles)
	assert.Len(t, repo.orders[o.ID].Timeline, 6)
}

func TestTransitionRejectsIllegalEdge(t *testing.T) {
	repo := newStubRepo()
	svc := newService(repo)
	o := create(t, svc, domain.DeliveryTypeDelivery, domain.PaymentCash)

	_, err := svc.Transition(context.Background(), o.ID, domain.StatusDelivered, "", staff)
	var ite *domain.InvalidTransitionError
	require.ErrorAs(t, err, &ite)
	assert.Equal(t, domain.StatusPending, ite.From)
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Empty(t, repo.transitions)
	assert.Equal(t, domain.StatusPending, repo.orders[o.ID].Status)
}

func TestTransitionPermissions(t *testing.T) {
	repo := newStubRepo()
	svc := newService(repo)
	o := create(t, svc, domain.DeliveryTypeDelivery, domain.PaymentCash)
	ctx := context.Background()

	_, err := svc.Transition(ctx, o.ID, domain.StatusConfirmed, "", owner)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = svc.Transition(ctx, o.ID, domain.StatusConfirmed, "", staff)
	require.NoError(t, err)
	_, err = svc.Transition(ctx, o.ID, domain.StatusPreparing, "", staff)
	require.NoError(t, err)

	_, err = svc.Transition(ctx, o.ID, domain.StatusCancelled, "", staff)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = svc.Transition(ctx, o.ID, domain.StatusCancelled, "burnt", manager)
	require.NoError(t, err)
}

func TestTransitionConcurrentChangeIsConflict(t *testing.T) {
	repo := newStubRepo()
	svc := newService(repo)
	o := create(t, svc, domain.DeliveryTypeDelivery, domain.PaymentCash)
	repo.transErr = domain.Conflictf("order changed")

	_, err := svc.Transition(context.Background(), o.ID, domain.StatusConfirmed, "", staff)
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestCancel(t *testing.T) {
	repo := newStubRepo()
	svc := newService(repo)
	ctx := context.Background()

	o := create(t, svc, domain.DeliveryTypeDelivery, domain.PaymentCash)
	_, err := svc.Cancel(ctx, o.ID, "", stranger)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	cancelled, err := svc.Cancel(ctx, o.ID, "changed my mind", owner)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, cancelled.Status)
	last := repo.transitions[len(repo.transitions)-1]
	require.Len(t, last.Tasks, 1)
	assert.Equal(t, domain.TaskPublishOrderEvent, last.Tasks[0].Kind)

	o2 := create(t, svc, domain.DeliveryTypeDelivery, domain.PaymentCash)
	for _, st := range []domain.OrderStatus{domain.StatusConfirmed, domain.StatusPreparing} {
		_, err := svc.Transition(ctx, o2.ID, st, "", staff)
		require.NoError(t, err)
	}
	_, err = svc.Cancel(ctx, o2.ID, "", owner)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestRefund(t *testing.T) {
	repo := newStubRepo()
	svc := newService(repo)
	ctx := context.Background()
	o := create(t, svc, domain.DeliveryTypeDelivery, domain.PaymentBankTransfer)

	_, err := svc.Refund(ctx, o.ID, "", manager)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition, "pending is still cancellable")

	for _, st := range []domain.OrderStatus{domain.StatusConfirmed, domain.StatusPreparing} {
		_, err := svc.Transition(ctx, o.ID, st, "", staff)
		require.NoError(t, err)
	}
	repo.orders[o.ID].Payment.Status = domain.PaymentPaid

	_, err = svc.Refund(ctx, o.ID, "", staff)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	refunded, err := svc.Refund(ctx, o.ID, "cold food", manager)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRefunded, refunded.Status)
	assert.Equal(t, domain.PaymentRefunded, refunded.Payment.Status)
	assert.Equal(t, domain.PaymentRefunded, repo.orders[o.ID].Payment.Status)

	_, err = svc.Refund(ctx, o.ID, "", manager)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestGetVisibility(t *testing.T) {
	repo := newStubRepo()
	svc := newService(repo)
	ctx := context.Background()
	o := create(t, svc, domain.DeliveryTypePickup, domain.PaymentCash)

	_, err := svc.Get(ctx, o.ID, owner)
	require.NoError(t, err)
	_, err = svc.Get(ctx, o.ID, staff)
	require.NoError(t, err)
	_, err = svc.Get(ctx, o.ID, stranger)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	got, err := svc.GetByNumber(ctx, o.OrderNumber, owner)
	require.NoError(t, err)
	assert.Equal(t, o.ID, got.ID)
}

func TestListScopesNonStaffToOwner(t *testing.T) {
	repo := newStubRepo()
	svc := newService(repo)
	ctx := context.Background()

	_, err := svc.List(ctx, orderrepo.ListFilter{CustomerID: "someone"}, owner)
	require.NoError(t, err)
	assert.Equal(t, "cust-1", repo.lastFilter.CustomerID)

	_, err = svc.List(ctx, orderrepo.ListFilter{Status: domain.StatusPending}, staff)
	require.NoError(t, err)
	assert.Equal(t, "", repo.lastFilter.CustomerID)

	_, err = svc.List(ctx, orderrepo.ListFilter{Status: "lost"}, staff)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.List(ctx, orderrepo.ListFilter{}, auth.Actor{Role: auth.RoleGuest})
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
}
