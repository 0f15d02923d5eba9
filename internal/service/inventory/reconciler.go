// Package inventory turns ordered dishes into ingredient requirements and
// applies them to the stock store.
package inventory

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"restaurant-fulfillment/internal/auth"
	"restaurant-fulfillment/internal/domain"
	"restaurant-fulfillment/internal/service/recipe"
)

type recipeResolver interface {
	ResolveItem(ctx context.Context, id, name string) (recipe.Recipe, bool, error)
}

// Store is the ingredient stock backend: the local table or the remote service.
type Store interface {
	Stock(ctx context.Context, names []string) (map[string]domain.Ingredient, error)
	Reduce(ctx context.Context, orderID string, reqs []domain.Requirement) ([]domain.IngredientResult, error)
}

type Reconciler struct {
	recipes recipeResolver
	store   Store
	logger  zerolog.Logger
}

func New(recipes recipeResolver, store Store, logger zerolog.Logger) *Reconciler {
	return &Reconciler{recipes: recipes, store: store, logger: logger}
}

// expansion is the recipe breakdown of an order: per line and aggregated.
type expansion struct {
	lines  [][]domain.Requirement
	totals []domain.Requirement
}

type accumulator struct {
	order []string
	sums  map[string]decimal.Decimal
	units map[string]string
	names map[string]string
}

func newAccumulator() *accumulator {
	return &accumulator{sums: map[string]decimal.Decimal{}, units: map[string]string{}, names: map[string]string{}}
}

func (a *accumulator) add(name string, qty decimal.Decimal, unit string) {
	key := domain.NormalizeName(name)
	if _, ok := a.sums[key]; !ok {
		a.order = append(a.order, key)
		a.units[key] = unit
		a.names[key] = name
	}
	a.sums[key] = a.sums[key].Add(qty)
}

func (a *accumulator) requirements() []domain.Requirement {
	out := make([]domain.Requirement, 0, len(a.order))
	for _, key := range a.order {
		out = append(out, domain.Requirement{
			IngredientName: a.names[key],
			Quantity:       a.sums[key].InexactFloat64(),
			Unit:           a.units[key],
		})
	}
	return out
}

// expand resolves every line. With strict set a resolver failure aborts;
// otherwise the line is treated as unconstrained and the failure logged.
func (r *Reconciler) expand(ctx context.Context, items []domain.OrderItem, strict bool) (expansion, error) {
	total := newAccumulator()
	exp := expansion{lines: make([][]domain.Requirement, len(items))}
	for i, item := range items {
		if item.Quantity <= 0 {
			continue
		}
		rec, ok, err := r.recipes.ResolveItem(ctx, item.MenuItemID, item.Name)
		if err != nil {
			if strict {
				return expansion{}, fmt.Errorf("resolve recipe for %q: %w", item.Name, err)
			}
			r.logger.Warn().Err(err).Bool("degraded", true).Str("item", item.Name).Msg("inventory: recipe lookup failed, treating as available")
			continue
		}
		if !ok {
			continue
		}
		line := newAccumulator()
		units := decimal.NewFromInt(int64(item.Quantity))
		for _, ing := range rec.Ingredients {
			if ing.QuantityPerUnit <= 0 {
				continue
			}
			qty := decimal.NewFromFloat(ing.QuantityPerUnit).Mul(units)
			line.add(ing.IngredientName, qty, ing.Unit)
			total.add(ing.IngredientName, qty, ing.Unit)
		}
		exp.lines[i] = line.requirements()
	}
	exp.totals = total.requirements()
	return exp, nil
}

// Requirements is the aggregated ingredient demand of a set of order lines.
func (r *Reconciler) Requirements(ctx context.Context, items []domain.OrderItem) ([]domain.Requirement, error) {
	exp, err := r.expand(ctx, items, true)
	if err != nil {
		return nil, err
	}
	return exp.totals, nil
}

// CheckAvailability compares aggregated demand with current stock. A line is
// unavailable when any of its ingredients is short across the whole order.
func (r *Reconciler) CheckAvailability(ctx context.Context, items []domain.OrderItem) (domain.Availability, error) {
	exp, err := r.expand(ctx, items, false)
	if err != nil {
		return domain.Availability{}, err
	}
	result := domain.Availability{AllAvailable: true, PerItem: make([]domain.ItemAvailability, len(items))}

	var stock map[string]domain.Ingredient
	if len(exp.totals) > 0 {
		names := make([]string, 0, len(exp.totals))
		for _, req := range exp.totals {
			names = append(names, req.IngredientName)
		}
		stock, err = r.store.Stock(ctx, names)
		if err != nil {
			return domain.Availability{}, fmt.Errorf("read stock: %w", err)
		}
	}
	required := make(map[string]domain.Requirement, len(exp.totals))
	for _, req := range exp.totals {
		required[domain.NormalizeName(req.IngredientName)] = req
	}

	for i, item := range items {
		ia := domain.ItemAvailability{
			MenuItemID:         item.MenuItemID,
			Name:               item.Name,
			Quantity:           item.Quantity,
			Available:          true,
			MissingIngredients: []domain.MissingIngredient{},
		}
		for _, req := range exp.lines[i] {
			key := domain.NormalizeName(req.IngredientName)
			need := required[key]
			have := stock[key]
			if decimal.NewFromFloat(need.Quantity).GreaterThan(decimal.NewFromFloat(have.Quantity)) {
				ia.Available = false
				ia.MissingIngredients = append(ia.MissingIngredients, domain.MissingIngredient{
					Name:      req.IngredientName,
					Required:  need.Quantity,
					Available: have.Quantity,
					Unit:      req.Unit,
				})
			}
		}
		if !ia.Available {
			result.AllAvailable = false
		}
		result.PerItem[i] = ia
	}
	return result, nil
}

// Reduce decrements stock for an order. Replays for the same order are
// reported as skipped by the store. An error means nothing could be attempted
// and the caller should retry.
func (r *Reconciler) Reduce(ctx context.Context, orderID string, items []domain.OrderItem) (domain.ReductionReport, error) {
	if orderID == "" {
		return domain.ReductionReport{}, domain.Validationf("order id required")
	}
	exp, err := r.expand(ctx, items, true)
	if err != nil {
		return domain.ReductionReport{}, err
	}
	report := domain.ReductionReport{OrderID: orderID, Succeeded: true, Results: []domain.IngredientResult{}}
	if len(exp.totals) == 0 {
		r.logger.Info().Str("order_id", orderID).Msg("inventory: nothing to reduce")
		return report, nil
	}

	results, err := r.store.Reduce(ctx, orderID, exp.totals)
	if err != nil {
		return domain.ReductionReport{}, fmt.Errorf("reduce stock: %w", err)
	}
	report.Results = results

	var reduced, skipped, missing, failed int
	for _, res := range results {
		switch res.Outcome {
		case domain.OutcomeReduced:
			reduced++
		case domain.OutcomeSkipped:
			skipped++
		case domain.OutcomeNotFound:
			missing++
		case domain.OutcomeFailed:
			failed++
			report.Succeeded = false
		}
		if res.Status == domain.StockLowStock || res.Status == domain.StockOutOfStock {
			r.logger.Warn().Str("ingredient", res.IngredientName).Str("status", string(res.Status)).Float64("remaining", res.Remaining).Msg("inventory: stock running low")
		}
	}
	r.logger.Info().
		Str("order_id", orderID).
		Int("reduced", reduced).
		Int("skipped", skipped).
		Int("not_found", missing).
		Int("failed", failed).
		Msg("inventory: reduction applied")
	return report, nil
}

// ReduceAs is Reduce behind the inventory:reduce permission.
func (r *Reconciler) ReduceAs(ctx context.Context, actor auth.Actor, orderID string, items []domain.OrderItem) (domain.ReductionReport, error) {
	if !actor.Can(auth.PermInventoryReduce) {
		return domain.ReductionReport{}, fmt.Errorf("%w: %s", domain.ErrForbidden, auth.PermInventoryReduce)
	}
	return r.Reduce(ctx, orderID, items)
}

// Stock exposes the store's current levels for the given ingredients.
func (r *Reconciler) Stock(ctx context.Context, names []string) (map[string]domain.Ingredient, error) {
	return r.store.Stock(ctx, names)
}
