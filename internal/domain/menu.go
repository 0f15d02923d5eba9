package domain

import (
	"strings"
	"time"
)

// MenuItem is the catalog read model: price snapshot source and recipe holder.
type MenuItem struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	Price       int64              `json:"price"`
	Category    string             `json:"category,omitempty"`
	Available   bool               `json:"available"`
	Ingredients []RecipeIngredient `json:"ingredients,omitempty"`
	CreatedAt   time.Time          `json:"createdAt"`
}

// RecipeIngredient is the consumption of one ingredient per ordered unit.
type RecipeIngredient struct {
	IngredientName  string  `json:"name"`
	QuantityPerUnit float64 `json:"quantity"`
	Unit            string  `json:"unit"`
}

// NormalizeName is the lookup key used for menu items and ingredients.
func NormalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}
