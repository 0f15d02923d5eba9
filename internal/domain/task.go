package domain

import (
	"encoding/json"
	"time"
)

type TaskKind string

const (
	TaskReconcileInventory TaskKind = "reconcile_inventory"
	TaskPublishOrderEvent  TaskKind = "publish_order_event"
)

type TaskStatus string

const (
	TaskPending TaskStatus = "pending"
	TaskDone    TaskStatus = "done"
	TaskDead    TaskStatus = "dead"
)

// Task is a durable side effect recorded alongside the write that caused it.
type Task struct {
	ID          string          `json:"id"`
	Kind        TaskKind        `json:"kind"`
	OrderID     string          `json:"orderId"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Status      TaskStatus      `json:"status"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"maxAttempts"`
	NextRunAt   time.Time       `json:"nextRunAt"`
	LastError   string          `json:"lastError,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// NewTask is a task to be inserted in the same transaction as its cause.
type NewTask struct {
	Kind        TaskKind
	OrderID     string
	Payload     json.RawMessage
	MaxAttempts int
}

// OrderEvent is the fan-out message emitted for every order change.
type OrderEvent struct {
	OrderID       string        `json:"orderId"`
	OrderNumber   string        `json:"orderNumber"`
	Status        OrderStatus   `json:"status"`
	PaymentStatus PaymentStatus `json:"paymentStatus"`
	OccurredAt    time.Time     `json:"occurredAt"`
	Order         *Order        `json:"order,omitempty"`
}
