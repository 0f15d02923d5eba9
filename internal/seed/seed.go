package seed

import (
	"context"
	"fmt"

	"restaurant-fulfillment/internal/domain"
)

type menuWriter interface {
	Upsert(ctx context.Context, item domain.MenuItem) (*domain.MenuItem, error)
}

type ingredientWriter interface {
	Upsert(ctx context.Context, ing domain.Ingredient) error
}

type couponWriter interface {
	Upsert(ctx context.Context, c domain.Coupon) error
}

var ingredients = []domain.Ingredient{
	{Name: "Beef", Quantity: 20, Unit: "kg", MinimumStock: 3},
	{Name: "Chicken", Quantity: 15, Unit: "kg", MinimumStock: 3},
	{Name: "Rice noodles", Quantity: 40, Unit: "kg", MinimumStock: 5},
	{Name: "Broth", Quantity: 60, Unit: "l", MinimumStock: 10},
	{Name: "Herbs", Quantity: 5, Unit: "kg", MinimumStock: 1},
	{Name: "Tea", Quantity: 3, Unit: "kg", MinimumStock: 0.5},
}

var menu = []domain.MenuItem{
	{
		Name: "Pho Bo", Description: "Beef noodle soup", Category: "noodles", Price: 65000, Available: true,
		Ingredients: []domain.RecipeIngredient{
			{IngredientName: "Beef", QuantityPerUnit: 0.15, Unit: "kg"},
			{IngredientName: "Rice noodles", QuantityPerUnit: 0.2, Unit: "kg"},
			{IngredientName: "Broth", QuantityPerUnit: 0.5, Unit: "l"},
			{IngredientName: "Herbs", QuantityPerUnit: 0.02, Unit: "kg"},
		},
	},
	{
		Name: "Pho Ga", Description: "Chicken noodle soup", Category: "noodles", Price: 60000, Available: true,
		Ingredients: []domain.RecipeIngredient{
			{IngredientName: "Chicken", QuantityPerUnit: 0.15, Unit: "kg"},
			{IngredientName: "Rice noodles", QuantityPerUnit: 0.2, Unit: "kg"},
			{IngredientName: "Broth", QuantityPerUnit: 0.5, Unit: "l"},
		},
	},
	{
		Name: "Tra Da", Description: "Iced tea", Category: "drinks", Price: 10000, Available: true,
		Ingredients: []domain.RecipeIngredient{
			{IngredientName: "Tea", QuantityPerUnit: 0.005, Unit: "kg"},
		},
	},
	{Name: "Banh Flan", Description: "Caramel custard", Category: "desserts", Price: 25000, Available: true},
}

var coupons = []domain.Coupon{
	{Code: "WELCOME10", DiscountType: domain.DiscountPercentage, DiscountValue: 10, MaxDiscount: 50000, Active: true},
	{Code: "FREESHIP", DiscountType: domain.DiscountFixed, DiscountValue: 30000, MinOrderValue: 150000, Active: true},
	{Code: "EXPIRED", DiscountType: domain.DiscountFixed, DiscountValue: 20000, Active: false},
}

// Apply inserts demo ingredients, menu items and coupons. Every write is an
// upsert, so running it twice is harmless.
func Apply(ctx context.Context, m menuWriter, ing ingredientWriter, c couponWriter) error {
	for _, i := range ingredients {
		if err := ing.Upsert(ctx, i); err != nil {
			return fmt.Errorf("upsert ingredient %s: %w", i.Name, err)
		}
	}
	for _, item := range menu {
		if _, err := m.Upsert(ctx, item); err != nil {
			return fmt.Errorf("upsert menu item %s: %w", item.Name, err)
		}
	}
	for _, cp := range coupons {
		if err := c.Upsert(ctx, cp); err != nil {
			return fmt.Errorf("upsert coupon %s: %w", cp.Code, err)
		}
	}
	return nil
}
