// Package pricing derives cart summaries. Every function is pure so the same
// numbers come out of a cart mutation, a checkout, and a test.
package pricing

import (
	"github.com/shopspring/decimal"

	"restaurant-fulfillment/internal/config"
	"restaurant-fulfillment/internal/domain"
)

// Rules are the tunable inputs of a summary. Amounts are VND.
type Rules struct {
	TaxRate               decimal.Decimal
	DeliveryFee           int64
	FreeDeliveryThreshold int64
	LoyaltyRates          map[domain.MembershipLevel]decimal.Decimal
}

// DefaultRules returns 8% tax, a 30 000 flat delivery fee waived above 500 000,
// and the bronze/silver/gold/platinum loyalty ladder.
func DefaultRules() Rules {
	return RulesFromConfig(config.Pricing{
		TaxRate:               0.08,
		DeliveryFee:           30000,
		FreeDeliveryThreshold: 500000,
	})
}

func RulesFromConfig(cfg config.Pricing) Rules {
	return Rules{
		TaxRate:               decimal.NewFromFloat(cfg.TaxRate),
		DeliveryFee:           cfg.DeliveryFee,
		FreeDeliveryThreshold: cfg.FreeDeliveryThreshold,
		LoyaltyRates: map[domain.MembershipLevel]decimal.Decimal{
			domain.MembershipBronze:   decimal.Zero,
			domain.MembershipSilver:   decimal.RequireFromString("0.05"),
			domain.MembershipGold:     decimal.RequireFromString("0.10"),
			domain.MembershipPlatinum: decimal.RequireFromString("0.15"),
		},
	}
}

// Summarize recomputes the cart summary and the coupon's applied discount.
// cart.Summary and cart.AppliedCoupon.AppliedDiscount are overwritten.
func (r Rules) Summarize(cart *domain.Cart, tier domain.MembershipLevel) domain.CartSummary {
	subtotal := int64(0)
	for i := range cart.Items {
		it := &cart.Items[i]
		it.Subtotal = it.Price * int64(it.Quantity)
		subtotal += it.Subtotal
	}

	s := domain.CartSummary{
		Subtotal:        subtotal,
		Tax:             r.Tax(subtotal),
		DeliveryFee:     r.DeliveryFeeFor(cart.Delivery.Type, tier, subtotal),
		LoyaltyDiscount: r.LoyaltyDiscount(subtotal, tier),
	}
	if cart.AppliedCoupon != nil {
		s.CouponDiscount = CouponDiscount(*cart.AppliedCoupon, subtotal)
		cart.AppliedCoupon.AppliedDiscount = s.CouponDiscount
	}
	s.Total = s.Subtotal + s.Tax + s.DeliveryFee - s.LoyaltyDiscount - s.CouponDiscount
	if s.Total < 0 {
		s.Total = 0
	}

	cart.Delivery.Fee = s.DeliveryFee
	cart.Summary = s
	return s
}

func (r Rules) Tax(subtotal int64) int64 {
	return roundMul(subtotal, r.TaxRate)
}

func (r Rules) LoyaltyDiscount(subtotal int64, tier domain.MembershipLevel) int64 {
	rate, ok := r.LoyaltyRates[tier]
	if !ok {
		return 0
	}
	return roundMul(subtotal, rate)
}

// DeliveryFeeFor waives the fee for non-delivery orders, gold and platinum
// members, and subtotals strictly above the free threshold.
func (r Rules) DeliveryFeeFor(t domain.DeliveryType, tier domain.MembershipLevel, subtotal int64) int64 {
	if t != domain.DeliveryTypeDelivery {
		return 0
	}
	if tier == domain.MembershipGold || tier == domain.MembershipPlatinum {
		return 0
	}
	if subtotal > r.FreeDeliveryThreshold {
		return 0
	}
	return r.DeliveryFee
}

// CouponDiscount never goes below zero or above subtotal.
func CouponDiscount(c domain.AppliedCoupon, subtotal int64) int64 {
	if subtotal <= 0 || c.DiscountValue <= 0 {
		return 0
	}
	if c.MinOrderValue > 0 && subtotal < c.MinOrderValue {
		return 0
	}

	var discount int64
	switch c.DiscountType {
	case domain.DiscountPercentage:
		pct := decimal.NewFromInt(c.DiscountValue).Div(decimal.NewFromInt(100))
		discount = roundMul(subtotal, pct)
		if c.MaxDiscount > 0 && discount > c.MaxDiscount {
			discount = c.MaxDiscount
		}
	case domain.DiscountFixed:
		discount = c.DiscountValue
	default:
		return 0
	}

	if discount > subtotal {
		discount = subtotal
	}
	if discount < 0 {
		discount = 0
	}
	return discount
}

// ForOrder folds the cart discounts into one order discount. When the cart
// total was clamped at zero the discount shrinks so that
// total = subtotal + tax + deliveryFee - discount still holds.
func ForOrder(s domain.CartSummary) domain.OrderPricing {
	gross := s.Subtotal + s.Tax + s.DeliveryFee
	discount := s.LoyaltyDiscount + s.CouponDiscount
	if discount > gross {
		discount = gross
	}
	return domain.OrderPricing{
		Subtotal:    s.Subtotal,
		Tax:         s.Tax,
		DeliveryFee: s.DeliveryFee,
		Discount:    discount,
		Total:       gross - discount,
	}
}

// roundMul is amount × rate rounded half away from zero to whole VND.
func roundMul(amount int64, rate decimal.Decimal) int64 {
	return decimal.NewFromInt(amount).Mul(rate).Round(0).IntPart()
}
