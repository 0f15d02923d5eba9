package client

import (
	"context"
	"net/http"

	"restaurant-fulfillment/internal/domain"
)

// Inventory is the remote ingredient store. The service keys stock by
// ingredient name and dedupes reductions on the Idempotency-Key header.
type Inventory struct {
	base
}

func NewInventory(baseURL string, hc *http.Client) *Inventory {
	return &Inventory{base: newBase(baseURL, hc)}
}

type CheckStockRequest struct {
	Ingredients []string `json:"ingredients"`
}

type CheckStockResponse struct {
	Items []domain.Ingredient `json:"items"`
}

type ReduceStockRequest struct {
	OrderID string               `json:"orderId"`
	Items   []domain.Requirement `json:"items"`
}

type ReduceStockResponse struct {
	Results []domain.IngredientResult `json:"results"`
}

func (c *Inventory) Stock(ctx context.Context, names []string) (map[string]domain.Ingredient, error) {
	var resp CheckStockResponse
	if err := c.do(ctx, http.MethodPost, "/check-stock", CheckStockRequest{Ingredients: names}, nil, &resp); err != nil {
		return nil, err
	}
	out := make(map[string]domain.Ingredient, len(resp.Items))
	for _, it := range resp.Items {
		out[domain.NormalizeName(it.Name)] = it
	}
	return out, nil
}

func (c *Inventory) Reduce(ctx context.Context, orderID string, reqs []domain.Requirement) ([]domain.IngredientResult, error) {
	var resp ReduceStockResponse
	header := http.Header{"Idempotency-Key": []string{orderID}}
	if err := c.do(ctx, http.MethodPost, "/reduce-stock", ReduceStockRequest{OrderID: orderID, Items: reqs}, header, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}
