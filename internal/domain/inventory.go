package domain

import "time"

type StockStatus string

const (
	StockInStock    StockStatus = "in-stock"
	StockLowStock   StockStatus = "low-stock"
	StockOutOfStock StockStatus = "out-of-stock"
)

// DeriveStockStatus classifies a quantity against the ingredient's minimum threshold.
func DeriveStockStatus(quantity, minimum float64) StockStatus {
	switch {
	case quantity <= 0:
		return StockOutOfStock
	case quantity <= minimum:
		return StockLowStock
	default:
		return StockInStock
	}
}

type Ingredient struct {
	Name         string      `json:"name"`
	Quantity     float64     `json:"quantity"`
	Unit         string      `json:"unit"`
	MinimumStock float64     `json:"minimumStock"`
	Status       StockStatus `json:"status"`
	UpdatedAt    time.Time   `json:"updatedAt"`
}

// Requirement is the aggregated amount of one ingredient an order consumes.
type Requirement struct {
	IngredientName string  `json:"name"`
	Quantity       float64 `json:"quantity"`
	Unit           string  `json:"unit"`
}

type ReductionOutcome string

const (
	OutcomeReduced  ReductionOutcome = "reduced"
	OutcomeSkipped  ReductionOutcome = "skipped"
	OutcomeNotFound ReductionOutcome = "not_found"
	OutcomeFailed   ReductionOutcome = "failed"
)

type IngredientResult struct {
	IngredientName   string           `json:"ingredientName"`
	Required         float64          `json:"required"`
	PreviousQuantity float64          `json:"previousQuantity"`
	Remaining        float64          `json:"remaining"`
	Unit             string           `json:"unit"`
	Status           StockStatus      `json:"status,omitempty"`
	Outcome          ReductionOutcome `json:"outcome"`
	Error            string           `json:"error,omitempty"`
}

type ReductionReport struct {
	OrderID   string             `json:"orderId"`
	Succeeded bool               `json:"succeeded"`
	Results   []IngredientResult `json:"results"`
}

// MissingIngredient describes a shortfall for one line of an availability check.
type MissingIngredient struct {
	Name      string  `json:"name"`
	Required  float64 `json:"required"`
	Available float64 `json:"available"`
	Unit      string  `json:"unit"`
}

type ItemAvailability struct {
	MenuItemID         string              `json:"menuItemId,omitempty"`
	Name               string              `json:"name"`
	Quantity           int                 `json:"quantity"`
	Available          bool                `json:"available"`
	MissingIngredients []MissingIngredient `json:"missingIngredients"`
}

type Availability struct {
	AllAvailable bool               `json:"allAvailable"`
	PerItem      []ItemAvailability `json:"perItem"`
}
