package domain

type OrderStatus string

const (
	StatusPending        OrderStatus = "pending"
	StatusConfirmed      OrderStatus = "confirmed"
	StatusPreparing      OrderStatus = "preparing"
	StatusReady          OrderStatus = "ready"
	StatusOutForDelivery OrderStatus = "out_for_delivery"
	StatusPickedUp       OrderStatus = "picked_up"
	StatusDelivered      OrderStatus = "delivered"
	StatusCompleted      OrderStatus = "completed"
	StatusCancelled      OrderStatus = "cancelled"
	StatusRefunded       OrderStatus = "refunded"

	// Dine-in flow.
	StatusOrdered OrderStatus = "ordered"
	StatusCooking OrderStatus = "cooking"
	StatusServed  OrderStatus = "served"
	StatusDining  OrderStatus = "dining"
)

var allowedTransitions = map[OrderStatus]map[OrderStatus]bool{
	StatusPending:        {StatusConfirmed: true, StatusCancelled: true},
	StatusConfirmed:      {StatusPreparing: true, StatusCancelled: true},
	StatusPreparing:      {StatusReady: true, StatusCancelled: true},
	StatusReady:          {StatusOutForDelivery: true, StatusPickedUp: true, StatusServed: true},
	StatusOutForDelivery: {StatusDelivered: true},
	StatusPickedUp:       {StatusCompleted: true},
	StatusServed:         {StatusDining: true, StatusCompleted: true},
	StatusDining:         {StatusCompleted: true},
	StatusOrdered:        {StatusCooking: true, StatusCancelled: true},
	StatusCooking:        {StatusServed: true},
	StatusDelivered:      {},
	StatusCompleted:      {},
	StatusCancelled:      {},
	StatusRefunded:       {},
}

// Valid reports whether s is a known status.
func (s OrderStatus) Valid() bool {
	_, ok := allowedTransitions[s]
	return ok
}

// Terminal statuses have no outgoing transitions.
func (s OrderStatus) Terminal() bool {
	switch s {
	case StatusDelivered, StatusCompleted, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

// CompletesOrder marks the successful end states that stamp completion time.
func (s OrderStatus) CompletesOrder() bool {
	return s == StatusDelivered || s == StatusCompleted
}

// TriggersReconciliation marks statuses whose entry schedules the inventory decrement.
func (s OrderStatus) TriggersReconciliation() bool {
	return s == StatusConfirmed || s == StatusPreparing || s == StatusCooking
}

// Cancellable is the canCancel predicate.
func (s OrderStatus) Cancellable() bool {
	return s == StatusPending || s == StatusConfirmed || s == StatusOrdered
}

// Refundable is true past the cancellation window but before a terminal status.
func (s OrderStatus) Refundable() bool {
	return s.Valid() && !s.Terminal() && !s.Cancellable()
}

// CanTransition reports whether from -> to is an edge of the status graph.
func CanTransition(from, to OrderStatus) bool {
	nexts := allowedTransitions[from]
	return nexts != nil && nexts[to]
}

// NextStatuses lists the legal targets from a status.
func NextStatuses(from OrderStatus) []OrderStatus {
	var out []OrderStatus
	for to := range allowedTransitions[from] {
		out = append(out, to)
	}
	return out
}

// InitialStatus is where a new order of the given type starts.
func InitialStatus(t DeliveryType) OrderStatus {
	if t == DeliveryTypeDineIn {
		return StatusOrdered
	}
	return StatusPending
}
