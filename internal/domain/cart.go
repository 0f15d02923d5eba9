package domain

import "time"

const (
	MinLineQuantity = 1
	MaxLineQuantity = 50
)

type DeliveryType string

const (
	DeliveryTypeDelivery DeliveryType = "delivery"
	DeliveryTypePickup   DeliveryType = "pickup"
	DeliveryTypeDineIn   DeliveryType = "dine_in"
)

func (t DeliveryType) Valid() bool {
	switch t {
	case DeliveryTypeDelivery, DeliveryTypePickup, DeliveryTypeDineIn:
		return true
	}
	return false
}

type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

// Owner identifies who a cart or order belongs to. Exactly one field is set.
type Owner struct {
	CustomerID string `json:"customerId,omitempty"`
	SessionID  string `json:"sessionId,omitempty"`
}

func (o Owner) Valid() bool {
	return (o.CustomerID == "") != (o.SessionID == "")
}

func (o Owner) IsGuest() bool {
	return o.CustomerID == "" && o.SessionID != ""
}

// Key is the unique storage key for the owner's cart.
func (o Owner) Key() string {
	if o.CustomerID != "" {
		return "customer:" + o.CustomerID
	}
	return "session:" + o.SessionID
}

type Cart struct {
	ID            string         `json:"id"`
	Owner         Owner          `json:"owner"`
	Items         []CartItem     `json:"items"`
	AppliedCoupon *AppliedCoupon `json:"appliedCoupon,omitempty"`
	Delivery      Delivery       `json:"delivery"`
	Summary       CartSummary    `json:"summary"`
	Version       int            `json:"version"`
	ExpiresAt     time.Time      `json:"expiresAt"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

type CartItem struct {
	LineID         string `json:"lineId"`
	MenuItemID     string `json:"menuItemId"`
	Name           string `json:"name"`
	Price          int64  `json:"price"`
	Quantity       int    `json:"quantity"`
	Customizations string `json:"customizations,omitempty"`
	Subtotal       int64  `json:"subtotal"`
}

type AppliedCoupon struct {
	Code            string       `json:"code"`
	DiscountType    DiscountType `json:"discountType"`
	DiscountValue   int64        `json:"discountValue"`
	MinOrderValue   int64        `json:"minOrderValue,omitempty"`
	MaxDiscount     int64        `json:"maxDiscount,omitempty"`
	AppliedDiscount int64        `json:"appliedDiscount"`
}

type Delivery struct {
	Type          DeliveryType `json:"type"`
	Fee           int64        `json:"fee"`
	Address       string       `json:"address,omitempty"`
	TableNumber   string       `json:"tableNumber,omitempty"`
	EstimatedTime int          `json:"estimatedTime,omitempty"`
}

type CartSummary struct {
	Subtotal        int64 `json:"subtotal"`
	Tax             int64 `json:"tax"`
	DeliveryFee     int64 `json:"deliveryFee"`
	LoyaltyDiscount int64 `json:"loyaltyDiscount"`
	CouponDiscount  int64 `json:"couponDiscount"`
	Total           int64 `json:"total"`
}

// Coupon is the catalog entry a cart coupon is resolved from.
type Coupon struct {
	Code          string       `json:"code"`
	DiscountType  DiscountType `json:"discountType"`
	DiscountValue int64        `json:"discountValue"`
	MinOrderValue int64        `json:"minOrderValue"`
	MaxDiscount   int64        `json:"maxDiscount"`
	ValidFrom     *time.Time   `json:"validFrom,omitempty"`
	ValidUntil    *time.Time   `json:"validUntil,omitempty"`
	Active        bool         `json:"active"`
}

// UsableAt reports whether the coupon can be applied at the given time.
func (c Coupon) UsableAt(now time.Time) bool {
	if !c.Active {
		return false
	}
	if c.ValidFrom != nil && now.Before(*c.ValidFrom) {
		return false
	}
	if c.ValidUntil != nil && now.After(*c.ValidUntil) {
		return false
	}
	return true
}

// ItemsSubtotal sums line subtotals.
func (c *Cart) ItemsSubtotal() int64 {
	var sum int64
	for _, it := range c.Items {
		sum += it.Subtotal
	}
	return sum
}

// Expired reports whether the rolling TTL has elapsed.
func (c *Cart) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

// DefaultEstimatedMinutes is the preparation estimate used when a cart does not carry one.
func DefaultEstimatedMinutes(t DeliveryType) int {
	switch t {
	case DeliveryTypePickup:
		return 20
	case DeliveryTypeDineIn:
		return 30
	default:
		return 45
	}
}
