package domain

import "time"

type PaymentMethod string

const (
	PaymentCash         PaymentMethod = "cash"
	PaymentCard         PaymentMethod = "card"
	PaymentBankTransfer PaymentMethod = "bank_transfer"
	PaymentEWallet      PaymentMethod = "e_wallet"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentCard, PaymentBankTransfer, PaymentEWallet:
		return true
	}
	return false
}

// InitialPaymentStatus is bank transfers waiting on a Casso webhook, everything else pending.
func (m PaymentMethod) InitialPaymentStatus() PaymentStatus {
	if m == PaymentBankTransfer {
		return PaymentAwaiting
	}
	return PaymentPending
}

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentAwaiting PaymentStatus = "awaiting_payment"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

type Order struct {
	ID                      string          `json:"id"`
	OrderNumber             string          `json:"orderNumber"`
	CustomerID              string          `json:"customerId,omitempty"`
	SessionID               string          `json:"sessionId,omitempty"`
	CustomerInfo            ContactInfo     `json:"customerInfo"`
	Items                   []OrderItem     `json:"items"`
	OrderType               DeliveryType    `json:"orderType"`
	Delivery                Delivery        `json:"delivery"`
	Pricing                 OrderPricing    `json:"pricing"`
	Payment                 Payment         `json:"payment"`
	Status                  OrderStatus     `json:"status"`
	Timeline                []TimelineEntry `json:"timeline"`
	CouponCode              string          `json:"couponCode,omitempty"`
	Notes                   string          `json:"notes,omitempty"`
	EstimatedCompletionTime time.Time       `json:"estimatedCompletionTime"`
	ActualCompletionTime    *time.Time      `json:"actualCompletionTime,omitempty"`
	TotalTime               *int            `json:"totalTime,omitempty"`
	CreatedAt               time.Time       `json:"createdAt"`
	UpdatedAt               time.Time       `json:"updatedAt"`
}

type OrderItem struct {
	MenuItemID     string `json:"menuItemId"`
	Name           string `json:"name"`
	Price          int64  `json:"price"`
	Quantity       int    `json:"quantity"`
	Customizations string `json:"customizations,omitempty"`
	Subtotal       int64  `json:"subtotal"`
}

type OrderPricing struct {
	Subtotal    int64 `json:"subtotal"`
	Tax         int64 `json:"tax"`
	DeliveryFee int64 `json:"deliveryFee"`
	Discount    int64 `json:"discount"`
	Total       int64 `json:"total"`
}

// Balanced checks total = subtotal + tax + deliveryFee - discount.
func (p OrderPricing) Balanced() bool {
	return p.Total == p.Subtotal+p.Tax+p.DeliveryFee-p.Discount
}

type Payment struct {
	Method        PaymentMethod `json:"method"`
	Status        PaymentStatus `json:"status"`
	TransactionID string        `json:"transactionId,omitempty"`
	PaidAt        *time.Time    `json:"paidAt,omitempty"`
}

type TimelineEntry struct {
	Status    OrderStatus `json:"status"`
	Timestamp time.Time   `json:"timestamp"`
	Note      string      `json:"note,omitempty"`
	UpdatedBy string      `json:"updatedBy,omitempty"`
}

// Owner returns the customer or session the order belongs to.
func (o *Order) Owner() Owner {
	return Owner{CustomerID: o.CustomerID, SessionID: o.SessionID}
}
