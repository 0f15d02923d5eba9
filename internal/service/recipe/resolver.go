// Package recipe maps ordered menu items to the ingredients they consume.
package recipe

import (
	"context"
	"errors"
	"strings"

	"restaurant-fulfillment/internal/domain"
)

// Recipe is the per-unit ingredient list of one menu item.
type Recipe struct {
	MenuItemID   string
	MenuItemName string
	Ingredients  []domain.RecipeIngredient
}

// Source is a catalog the resolver can read menu items from. Implementations
// return domain.ErrNotFound for unknown items.
type Source interface {
	GetByID(ctx context.Context, id string) (*domain.MenuItem, error)
	GetByName(ctx context.Context, name string) (*domain.MenuItem, error)
}

// Resolver tries its sources in order. The first source that knows the item wins.
type Resolver struct {
	sources []Source
}

func New(sources ...Source) *Resolver {
	return &Resolver{sources: sources}
}

// Resolve looks an item up by name. ok is false when no source has a recipe
// for it; that is not an error.
func (r *Resolver) Resolve(ctx context.Context, name string) (Recipe, bool, error) {
	return r.ResolveItem(ctx, "", name)
}

// ResolveItem prefers the menu item id and falls back to the name.
func (r *Resolver) ResolveItem(ctx context.Context, id, name string) (Recipe, bool, error) {
	id = strings.TrimSpace(id)
	name = strings.TrimSpace(name)
	if id == "" && name == "" {
		return Recipe{}, false, nil
	}

	var errs []error
	for _, src := range r.sources {
		item, err := lookup(ctx, src, id, name)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			errs = append(errs, err)
			continue
		}
		if len(item.Ingredients) == 0 {
			return Recipe{}, false, nil
		}
		return Recipe{MenuItemID: item.ID, MenuItemName: item.Name, Ingredients: item.Ingredients}, true, nil
	}
	if len(errs) > 0 {
		return Recipe{}, false, errors.Join(errs...)
	}
	return Recipe{}, false, nil
}

func lookup(ctx context.Context, src Source, id, name string) (*domain.MenuItem, error) {
	if id != "" {
		item, err := src.GetByID(ctx, id)
		if err == nil {
			return item, nil
		}
		if !errors.Is(err, domain.ErrNotFound) || name == "" {
			return nil, err
		}
	}
	return src.GetByName(ctx, name)
}

// Static is an in-memory Source keyed by id and normalised name.
type Static struct {
	byID   map[string]domain.MenuItem
	byName map[string]domain.MenuItem
}

func NewStatic(items ...domain.MenuItem) *Static {
	s := &Static{byID: map[string]domain.MenuItem{}, byName: map[string]domain.MenuItem{}}
	for _, it := range items {
		if it.ID != "" {
			s.byID[it.ID] = it
		}
		s.byName[domain.NormalizeName(it.Name)] = it
	}
	return s
}

func (s *Static) GetByID(_ context.Context, id string) (*domain.MenuItem, error) {
	it, ok := s.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &it, nil
}

func (s *Static) GetByName(_ context.Context, name string) (*domain.MenuItem, error) {
	it, ok := s.byName[domain.NormalizeName(name)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &it, nil
}
