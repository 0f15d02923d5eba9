package client

import (
	"context"
	"net/http"
	"net/url"

	"restaurant-fulfillment/internal/domain"
)

// Menu reads menu items, recipes included, from the menu service.
type Menu struct {
	base
}

func NewMenu(baseURL string, hc *http.Client) *Menu {
	return &Menu{base: newBase(baseURL, hc)}
}

func (m *Menu) GetByID(ctx context.Context, id string) (*domain.MenuItem, error) {
	var item domain.MenuItem
	if err := m.do(ctx, http.MethodGet, "/menu-items/"+url.PathEscape(id), nil, nil, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

func (m *Menu) GetByName(ctx context.Context, name string) (*domain.MenuItem, error) {
	var item domain.MenuItem
	if err := m.do(ctx, http.MethodGet, "/menu-items/by-name/"+url.PathEscape(name), nil, nil, &item); err != nil {
		return nil, err
	}
	return &item, nil
}
