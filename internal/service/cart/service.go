package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"restaurant-fulfillment/internal/domain"
	"restaurant-fulfillment/internal/pricing"
	ordersvc "restaurant-fulfillment/internal/service/order"
)

const saveAttempts = 3

type Service struct {
	repo      cartRepo
	menu      menuCatalog
	coupons   couponRepo
	customers customerInfo
	orders    orderPlacer
	rules     pricing.Rules
	ttl       time.Duration
	logger    zerolog.Logger
	now       func() time.Time
}

type cartRepo interface {
	GetByOwner(ctx context.Context, owner domain.Owner) (*domain.Cart, error)
	Create(ctx context.Context, cart *domain.Cart) error
	Save(ctx context.Context, cart *domain.Cart) error
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

type menuCatalog interface {
	GetByID(ctx context.Context, id string) (*domain.MenuItem, error)
}

type couponRepo interface {
	Get(ctx context.Context, code string) (*domain.Coupon, error)
}

type customerInfo interface {
	Info(ctx context.Context, customerID string) (domain.CustomerInfo, error)
}

type orderPlacer interface {
	CreateFromCheckout(ctx context.Context, in ordersvc.CheckoutInput) (*domain.Order, error)
}

type Deps struct {
	Repo      cartRepo
	Menu      menuCatalog
	Coupons   couponRepo
	Customers customerInfo
	Orders    orderPlacer
	Rules     pricing.Rules
	TTL       time.Duration
	Logger    zerolog.Logger
}

func New(d Deps) *Service {
	ttl := d.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{
		repo:      d.Repo,
		menu:      d.Menu,
		coupons:   d.Coupons,
		customers: d.Customers,
		orders:    d.Orders,
		rules:     d.Rules,
		ttl:       ttl,
		logger:    d.Logger,
		now:       time.Now,
	}
}

type UpdateInput struct {
	Actions []UpdateAction `json:"actions"`
}

type UpdateAction struct {
	Action         string         `json:"action"`
	MenuItemID     string         `json:"menuItemId,omitempty"`
	LineItemID     string         `json:"lineItemId,omitempty"`
	Quantity       int            `json:"quantity,omitempty"`
	Customizations string         `json:"customizations,omitempty"`
	Code           string         `json:"code,omitempty"`
	Delivery       *DeliveryInput `json:"delivery,omitempty"`
}

type DeliveryInput struct {
	Type        domain.DeliveryType `json:"type"`
	Address     string              `json:"address,omitempty"`
	TableNumber string              `json:"tableNumber,omitempty"`
}

type CheckoutInput struct {
	Customer      domain.ContactInfo   `json:"customerInfo"`
	PaymentMethod domain.PaymentMethod `json:"paymentMethod"`
	Notes         string               `json:"notes,omitempty"`
	UpdatedBy     string               `json:"-"`
}

// Get returns the owner's cart, creating it on first access. An expired cart
// comes back empty.
func (s *Service) Get(ctx context.Context, owner domain.Owner) (*domain.Cart, error) {
	if !owner.Valid() {
		return nil, domain.Validationf("exactly one of customerId or sessionId is required")
	}
	cart, err := s.load(ctx, owner)
	if err != nil {
		return nil, err
	}
	if cart.Expired(s.now()) {
		return s.Update(ctx, owner, UpdateInput{})
	}
	return cart, nil
}

func (s *Service) AddItem(ctx context.Context, owner domain.Owner, menuItemID string, quantity int, customizations string) (*domain.Cart, error) {
	return s.one(ctx, owner, UpdateAction{Action: "addLineItem", MenuItemID: menuItemID, Quantity: quantity, Customizations: customizations})
}

func (s *Service) UpdateItemQuantity(ctx context.Context, owner domain.Owner, lineID string, quantity int) (*domain.Cart, error) {
	return s.one(ctx, owner, UpdateAction{Action: "changeLineItemQuantity", LineItemID: lineID, Quantity: quantity})
}

func (s *Service) RemoveItem(ctx context.Context, owner domain.Owner, lineID string) (*domain.Cart, error) {
	return s.one(ctx, owner, UpdateAction{Action: "removeLineItem", LineItemID: lineID})
}

func (s *Service) ApplyCoupon(ctx context.Context, owner domain.Owner, code string) (*domain.Cart, error) {
	return s.one(ctx, owner, UpdateAction{Action: "applyCoupon", Code: code})
}

func (s *Service) RemoveCoupon(ctx context.Context, owner domain.Owner) (*domain.Cart, error) {
	return s.one(ctx, owner, UpdateAction{Action: "removeCoupon"})
}

func (s *Service) SetDelivery(ctx context.Context, owner domain.Owner, d DeliveryInput) (*domain.Cart, error) {
	return s.one(ctx, owner, UpdateAction{Action: "setDelivery", Delivery: &d})
}

func (s *Service) one(ctx context.Context, owner domain.Owner, a UpdateAction) (*domain.Cart, error) {
	return s.Update(ctx, owner, UpdateInput{Actions: []UpdateAction{a}})
}

// Update applies all actions to a fresh read of the cart, re-derives the
// summary and writes it back. A concurrent writer forces a full re-run.
func (s *Service) Update(ctx context.Context, owner domain.Owner, in UpdateInput) (*domain.Cart, error) {
	if !owner.Valid() {
		return nil, domain.Validationf("exactly one of customerId or sessionId is required")
	}
	var lastErr error
	for attempt := 1; attempt <= saveAttempts; attempt++ {
		cart, err := s.load(ctx, owner)
		if err != nil {
			return nil, err
		}
		now := s.now()
		if cart.Expired(now) {
			s.reset(cart)
		}
		for _, action := range in.Actions {
			if err := s.apply(ctx, cart, action); err != nil {
				return nil, err
			}
		}
		s.recompute(ctx, cart)
		cart.ExpiresAt = now.Add(s.ttl)

		err = s.repo.Save(ctx, cart)
		if err == nil {
			return cart, nil
		}
		if !errors.Is(err, domain.ErrConflict) {
			return nil, err
		}
		lastErr = err
		s.logger.Debug().Str("cart_id", cart.ID).Int("attempt", attempt).Msg("cart: concurrent update, retrying")
	}
	return nil, lastErr
}

func (s *Service) apply(ctx context.Context, cart *domain.Cart, action UpdateAction) error {
	switch strings.ToLower(strings.TrimSpace(action.Action)) {
	case "addlineitem":
		return s.addLine(ctx, cart, action)
	case "changelineitemquantity":
		lineID := strings.TrimSpace(action.LineItemID)
		if lineID == "" {
			return domain.Validationf("lineItemId required")
		}
		idx := lineIndex(cart, lineID)
		if idx < 0 {
			return fmt.Errorf("line item %s: %w", lineID, domain.ErrNotFound)
		}
		if action.Quantity == 0 {
			cart.Items = append(cart.Items[:idx], cart.Items[idx+1:]...)
			return nil
		}
		if err := checkQuantity(action.Quantity); err != nil {
			return err
		}
		cart.Items[idx].Quantity = action.Quantity
	case "removelineitem":
		lineID := strings.TrimSpace(action.LineItemID)
		if lineID == "" {
			return domain.Validationf("lineItemId required")
		}
		idx := lineIndex(cart, lineID)
		if idx < 0 {
			return fmt.Errorf("line item %s: %w", lineID, domain.ErrNotFound)
		}
		cart.Items = append(cart.Items[:idx], cart.Items[idx+1:]...)
	case "applycoupon":
		return s.applyCoupon(ctx, cart, action.Code)
	case "removecoupon":
		cart.AppliedCoupon = nil
	case "setdelivery":
		if action.Delivery == nil {
			return domain.Validationf("delivery required")
		}
		if !action.Delivery.Type.Valid() {
			return domain.Validationf("unsupported delivery type %q", action.Delivery.Type)
		}
		cart.Delivery = domain.Delivery{
			Type:          action.Delivery.Type,
			Address:       strings.TrimSpace(action.Delivery.Address),
			TableNumber:   strings.TrimSpace(action.Delivery.TableNumber),
			EstimatedTime: domain.DefaultEstimatedMinutes(action.Delivery.Type),
		}
	default:
		return domain.Validationf("unsupported action %q", action.Action)
	}
	return nil
}

func (s *Service) addLine(ctx context.Context, cart *domain.Cart, action UpdateAction) error {
	menuItemID := strings.TrimSpace(action.MenuItemID)
	if menuItemID == "" {
		return domain.Validationf("menuItemId required")
	}
	if err := checkQuantity(action.Quantity); err != nil {
		return err
	}
	if s.menu == nil {
		return errors.New("menu catalog unavailable")
	}
	item, err := s.menu.GetByID(ctx, menuItemID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Validationf("menu item %s not found", menuItemID)
		}
		return err
	}
	if !item.Available {
		return domain.Validationf("menu item %s is not available", item.Name)
	}

	customizations := strings.TrimSpace(action.Customizations)
	for i := range cart.Items {
		line := &cart.Items[i]
		if line.MenuItemID == item.ID && line.Customizations == customizations {
			merged := line.Quantity + action.Quantity
			if err := checkQuantity(merged); err != nil {
				return err
			}
			line.Quantity = merged
			return nil
		}
	}
	cart.Items = append(cart.Items, domain.CartItem{
		LineID:         uuid.NewString(),
		MenuItemID:     item.ID,
		Name:           item.Name,
		Price:          item.Price,
		Quantity:       action.Quantity,
		Customizations: customizations,
	})
	return nil
}

func (s *Service) applyCoupon(ctx context.Context, cart *domain.Cart, code string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return domain.Validationf("coupon code required")
	}
	if s.coupons == nil {
		return errors.New("coupon store unavailable")
	}
	c, err := s.coupons.Get(ctx, code)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Validationf("coupon %s not found", strings.ToUpper(code))
		}
		return err
	}
	if !c.UsableAt(s.now()) {
		return domain.Validationf("coupon %s is not active", c.Code)
	}
	if c.MinOrderValue > 0 && subtotalOf(cart) < c.MinOrderValue {
		return domain.Validationf("coupon %s requires a minimum order of %d", c.Code, c.MinOrderValue)
	}
	cart.AppliedCoupon = &domain.AppliedCoupon{
		Code:          c.Code,
		DiscountType:  c.DiscountType,
		DiscountValue: c.DiscountValue,
		MinOrderValue: c.MinOrderValue,
		MaxDiscount:   c.MaxDiscount,
	}
	return nil
}

// Checkout hands the cart to order creation and clears it only once the
// order exists. A failed clear is logged; the order still stands.
func (s *Service) Checkout(ctx context.Context, owner domain.Owner, in CheckoutInput) (*domain.Order, error) {
	if !owner.Valid() {
		return nil, domain.Validationf("exactly one of customerId or sessionId is required")
	}
	cart, err := s.load(ctx, owner)
	if err != nil {
		return nil, err
	}
	if cart.Expired(s.now()) || len(cart.Items) == 0 {
		return nil, domain.EmptyCartError
	}
	if err := validateCheckout(cart, in); err != nil {
		return nil, err
	}
	s.recompute(ctx, cart)

	created, err := s.orders.CreateFromCheckout(ctx, ordersvc.CheckoutInput{
		Cart:          cart,
		Customer:      in.Customer,
		PaymentMethod: in.PaymentMethod,
		Delivery:      cart.Delivery,
		Notes:         in.Notes,
		UpdatedBy:     in.UpdatedBy,
	})
	if err != nil {
		return nil, err
	}

	s.clear(ctx, cart, created.OrderNumber)
	return created, nil
}

func (s *Service) clear(ctx context.Context, checkedOut *domain.Cart, orderNumber string) {
	cart := *checkedOut
	s.reset(&cart)
	s.recompute(ctx, &cart)
	cart.ExpiresAt = s.now().Add(s.ttl)
	if err := s.repo.Save(ctx, &cart); err != nil {
		s.logger.Warn().Err(err).Str("cart_id", cart.ID).Str("order_number", orderNumber).Msg("cart: clear after checkout failed")
	}
}

// PurgeExpired deletes carts whose TTL has elapsed.
func (s *Service) PurgeExpired(ctx context.Context) error {
	n, err := s.repo.PurgeExpired(ctx, s.now())
	if err != nil {
		return err
	}
	if n > 0 {
		s.logger.Info().Int64("carts", n).Msg("cart: purged expired carts")
	}
	return nil
}

func (s *Service) load(ctx context.Context, owner domain.Owner) (*domain.Cart, error) {
	cart, err := s.repo.GetByOwner(ctx, owner)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	fresh := &domain.Cart{
		Owner:     owner,
		Items:     []domain.CartItem{},
		Delivery:  domain.Delivery{Type: domain.DeliveryTypeDelivery, EstimatedTime: domain.DefaultEstimatedMinutes(domain.DeliveryTypeDelivery)},
		ExpiresAt: s.now().Add(s.ttl),
	}
	s.recompute(ctx, fresh)
	if err := s.repo.Create(ctx, fresh); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			return s.repo.GetByOwner(ctx, owner)
		}
		return nil, err
	}
	return fresh, nil
}

func (s *Service) reset(cart *domain.Cart) {
	cart.Items = []domain.CartItem{}
	cart.AppliedCoupon = nil
}

// recompute fetches the membership tier once and re-derives the summary.
func (s *Service) recompute(ctx context.Context, cart *domain.Cart) {
	s.rules.Summarize(cart, s.tier(ctx, cart.Owner))
}

func (s *Service) tier(ctx context.Context, owner domain.Owner) domain.MembershipLevel {
	if owner.CustomerID == "" || s.customers == nil {
		return domain.MembershipBronze
	}
	info, err := s.customers.Info(ctx, owner.CustomerID)
	if err != nil {
		s.logger.Warn().Err(err).Bool("degraded", true).Str("customer_id", owner.CustomerID).Msg("cart: customer lookup failed, pricing as bronze")
		return domain.MembershipBronze
	}
	return domain.ParseMembershipLevel(string(info.MembershipLevel))
}

func validateCheckout(cart *domain.Cart, in CheckoutInput) error {
	if !in.PaymentMethod.Valid() {
		return domain.Validationf("unsupported payment method %q", in.PaymentMethod)
	}
	switch cart.Delivery.Type {
	case domain.DeliveryTypeDelivery:
		if cart.Delivery.Address == "" {
			return domain.Validationf("delivery address required")
		}
		if strings.TrimSpace(in.Customer.Phone) == "" {
			return domain.Validationf("contact phone required for delivery")
		}
	case domain.DeliveryTypeDineIn:
		if cart.Delivery.TableNumber == "" {
			return domain.Validationf("table number required for dine-in")
		}
	}
	return nil
}

func checkQuantity(q int) error {
	if q < domain.MinLineQuantity || q > domain.MaxLineQuantity {
		return domain.Validationf("quantity must be between %d and %d", domain.MinLineQuantity, domain.MaxLineQuantity)
	}
	return nil
}

func lineIndex(cart *domain.Cart, lineID string) int {
	for i, it := range cart.Items {
		if it.LineID == lineID {
			return i
		}
	}
	return -1
}

func subtotalOf(cart *domain.Cart) int64 {
	var sum int64
	for _, it := range cart.Items {
		sum += it.Price * int64(it.Quantity)
	}
	return sum
}
