package repository

import (
	"context"
	"time"

	"github.com/example/swirly-orders/internal/domain/order"
)

// Filter narrows Search results. Zero values do not filter.
type Filter struct {
	Status    order.Status
	From      time.Time
	To        time.Time
	MinAmount float64
	MaxAmount float64
}

// Match reports whether o passes every set criterion.
func (f Filter) Match(o *order.Order) bool {
	if f.Status != "" && o.Status != f.Status {
		return false
	}
	if !f.From.IsZero() && o.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && o.CreatedAt.After(f.To) {
		return false
	}
	if f.MinAmount > 0 && o.Total < f.MinAmount {
		return false
	}
	if f.MaxAmount > 0 && o.Total > f.MaxAmount {
		return false
	}
	return true
}

// Search returns the orders of userID that match f. An empty userID searches
// every order.
func (r *Repository) Search(ctx context.Context, userID string, f Filter) ([]*order.Order, error) {
	var (
		all []*order.Order
		err error
	)
	switch {
	case userID != "":
		all, err = r.FetchByUser(ctx, userID)
	case f.Status != "":
		all, err = r.queryOrders(ctx, "status", string(f.Status))
	default:
		all, err = r.FetchAll(ctx)
	}
	if err != nil {
		return nil, err
	}

	out := make([]*order.Order, 0, len(all))
	for _, o := range all {
		if f.Match(o) {
			out = append(out, o)
		}
	}
	return out, nil
}
