// Package importer loads menu recipes and ingredient stock from CSV exports.
package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"restaurant-fulfillment/internal/domain"
)

type Kind string

const (
	KindMenu        Kind = "menu"
	KindIngredients Kind = "ingredients"
)

type MenuWriter interface {
	Upsert(ctx context.Context, item domain.MenuItem) (*domain.MenuItem, error)
}

type IngredientWriter interface {
	Upsert(ctx context.Context, ing domain.Ingredient) error
}

// DetectKind peeks at the header row. Menu exports carry a price column,
// ingredient exports a minimumStock column.
func DetectKind(r io.Reader) (Kind, error) {
	headers, err := csv.NewReader(r).Read()
	if err != nil {
		return "", fmt.Errorf("read headers: %w", err)
	}
	index := headerIndex(headers)
	switch {
	case has(index, "price"):
		return KindMenu, nil
	case has(index, "minimumStock"), has(index, "quantity") && !has(index, "ingredient.name"):
		return KindIngredients, nil
	}
	return "", fmt.Errorf("unrecognised csv headers %v", headers)
}

// CSVImporter upserts menu items or ingredients from one CSV stream.
//
// Menu files list one recipe ingredient per row. A row with a name starts a
// new menu item; rows that only carry ingredient columns extend the current one:
//
//	id,name,description,category,price,available,ingredient.name,ingredient.quantity,ingredient.unit
//	,Pho Bo,Beef noodle soup,noodles,65000,true,Beef,0.15,kg
//	,,,,,,Rice noodles,0.2,kg
type CSVImporter struct {
	reader      *csv.Reader
	menu        MenuWriter
	ingredients IngredientWriter
}

func NewCSVImporter(r io.Reader, menu MenuWriter, ingredients IngredientWriter) *CSVImporter {
	csvr := csv.NewReader(r)
	csvr.FieldsPerRecord = -1 // rows may have trailing commas
	return &CSVImporter{reader: csvr, menu: menu, ingredients: ingredients}
}

type menuRow struct {
	line int
	item domain.MenuItem
}

// Run imports every row and returns the number of menu items or ingredients written.
func (i *CSVImporter) Run(ctx context.Context) (int, error) {
	headers, err := i.reader.Read()
	if err != nil {
		return 0, fmt.Errorf("read headers: %w", err)
	}
	index := headerIndex(headers)
	if has(index, "price") {
		if i.menu == nil {
			return 0, errors.New("menu writer required for menu csv")
		}
		return i.runMenu(ctx, index)
	}
	if i.ingredients == nil {
		return 0, errors.New("ingredient writer required for ingredient csv")
	}
	return i.runIngredients(ctx, index)
}

func (i *CSVImporter) runMenu(ctx context.Context, index map[string]int) (int, error) {
	var (
		current  *menuRow
		imported int
		line     = 1
	)
	for {
		record, err := i.reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return imported, fmt.Errorf("read row: %w", err)
		}
		line++

		name := pick(record, index, "name")
		ing, hasIngredient, err := parseRecipeIngredient(record, index)
		if err != nil {
			return imported, fmt.Errorf("line %d: %w", line, err)
		}

		if name != "" {
			if current != nil {
				if err := i.saveMenu(ctx, current); err != nil {
					return imported, err
				}
				imported++
			}
			item, err := parseMenuItem(record, index)
			if err != nil {
				return imported, fmt.Errorf("line %d: %w", line, err)
			}
			current = &menuRow{line: line, item: item}
		}
		if !hasIngredient {
			continue
		}
		if current == nil {
			return imported, fmt.Errorf("line %d: ingredient row before any menu item", line)
		}
		current.item.Ingredients = append(current.item.Ingredients, ing)
	}

	if current != nil {
		if err := i.saveMenu(ctx, current); err != nil {
			return imported, err
		}
		imported++
	}
	return imported, nil
}

func (i *CSVImporter) saveMenu(ctx context.Context, row *menuRow) error {
	if row.item.Price <= 0 {
		return fmt.Errorf("line %d: menu item %q needs a positive price", row.line, row.item.Name)
	}
	if _, err := i.menu.Upsert(ctx, row.item); err != nil {
		return fmt.Errorf("upsert menu item %q: %w", row.item.Name, err)
	}
	return nil
}

func (i *CSVImporter) runIngredients(ctx context.Context, index map[string]int) (int, error) {
	imported := 0
	line := 1
	for {
		record, err := i.reader.Read()
		if errors.Is(err, io.EOF) {
			return imported, nil
		}
		if err != nil {
			return imported, fmt.Errorf("read row: %w", err)
		}
		line++

		name := pick(record, index, "name")
		if name == "" {
			continue
		}
		qty, err := parseFloat(pick(record, index, "quantity"))
		if err != nil || qty < 0 {
			return imported, fmt.Errorf("line %d: invalid quantity for %q", line, name)
		}
		minimum, err := parseFloat(pick(record, index, "minimumStock"))
		if err != nil || minimum < 0 {
			return imported, fmt.Errorf("line %d: invalid minimumStock for %q", line, name)
		}
		ing := domain.Ingredient{
			Name:         name,
			Quantity:     qty,
			Unit:         pick(record, index, "unit"),
			MinimumStock: minimum,
		}
		if err := i.ingredients.Upsert(ctx, ing); err != nil {
			return imported, fmt.Errorf("upsert ingredient %q: %w", name, err)
		}
		imported++
	}
}

func parseMenuItem(record []string, index map[string]int) (domain.MenuItem, error) {
	item := domain.MenuItem{
		ID:          pick(record, index, "id"),
		Name:        pick(record, index, "name"),
		Description: pick(record, index, "description"),
		Category:    pick(record, index, "category"),
		Available:   true,
	}
	if item.ID != "" {
		if _, err := uuid.Parse(item.ID); err != nil {
			return item, fmt.Errorf("invalid id for %q: %s", item.Name, item.ID)
		}
	}
	price, err := strconv.ParseInt(pick(record, index, "price"), 10, 64)
	if err != nil {
		return item, fmt.Errorf("invalid price for %q", item.Name)
	}
	item.Price = price
	if raw := pick(record, index, "available"); raw != "" {
		available, err := strconv.ParseBool(raw)
		if err != nil {
			return item, fmt.Errorf("invalid available flag for %q: %s", item.Name, raw)
		}
		item.Available = available
	}
	return item, nil
}

func parseRecipeIngredient(record []string, index map[string]int) (domain.RecipeIngredient, bool, error) {
	name := pick(record, index, "ingredient.name")
	if name == "" {
		return domain.RecipeIngredient{}, false, nil
	}
	qty, err := parseFloat(pick(record, index, "ingredient.quantity"))
	if err != nil || qty <= 0 {
		return domain.RecipeIngredient{}, false, fmt.Errorf("invalid quantity for ingredient %q", name)
	}
	return domain.RecipeIngredient{
		IngredientName:  name,
		QuantityPerUnit: qty,
		Unit:            pick(record, index, "ingredient.unit"),
	}, true, nil
}

func parseFloat(raw string) (float64, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseFloat(raw, 64)
}

func headerIndex(headers []string) map[string]int {
	idx := make(map[string]int, len(headers))
	for i, h := range headers {
		idx[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	return idx
}

func has(index map[string]int, key string) bool {
	_, ok := index[key]
	return ok
}

func pick(record []string, index map[string]int, key string) string {
	pos, ok := index[key]
	if !ok || pos >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[pos])
}
