package client

import (
	"context"
	"net/http"
	"net/url"

	"restaurant-fulfillment/internal/domain"
)

type Customers struct {
	base
}

func NewCustomers(baseURL string, hc *http.Client) *Customers {
	return &Customers{base: newBase(baseURL, hc)}
}

// Info returns the customer's loyalty standing.
func (c *Customers) Info(ctx context.Context, customerID string) (domain.CustomerInfo, error) {
	var info domain.CustomerInfo
	if err := c.do(ctx, http.MethodGet, "/customers/"+url.PathEscape(customerID)+"/info", nil, nil, &info); err != nil {
		return domain.CustomerInfo{}, err
	}
	info.MembershipLevel = domain.ParseMembershipLevel(string(info.MembershipLevel))
	return info, nil
}
