// Package projection derives read-side views from order records and keeps
// them current from realtime subscriptions.
package projection

import (
	"sort"

	"github.com/example/swirly-orders/internal/domain/order"
)

// Analytics summarises a set of orders.
type Analytics struct {
	TotalOrders       int                  `json:"totalOrders"`
	TotalSpent        float64              `json:"totalSpent"`
	AverageOrderValue float64              `json:"averageOrderValue"`
	StatusCounts      map[order.Status]int `json:"statusCounts"`
}

// ComputeAnalytics returns count, sum, mean and per-status counts. An empty
// set yields zeros.
func ComputeAnalytics(orders []*order.Order) Analytics {
	a := Analytics{StatusCounts: make(map[order.Status]int)}
	for _, o := range orders {
		a.TotalOrders++
		a.TotalSpent += o.Total
		a.StatusCounts[o.Status]++
	}
	if a.TotalOrders > 0 {
		a.AverageOrderValue = a.TotalSpent / float64(a.TotalOrders)
	}
	return a
}

// SortNewestFirst orders by creation time, newest first, breaking ties by ID.
func SortNewestFirst(orders []*order.Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		if !orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].CreatedAt.After(orders[j].CreatedAt)
		}
		return orders[i].ID > orders[j].ID
	})
}

// Stats are the admin dashboard counters.
type Stats struct {
	Total        int     `json:"total"`
	Preparing    int     `json:"preparing"`
	OnTheWay     int     `json:"onTheWay"`
	Delivered    int     `json:"delivered"`
	TotalRevenue float64 `json:"totalRevenue"`
}

func ComputeStats(orders []*order.Order) Stats {
	var s Stats
	for _, o := range orders {
		s.Total++
		s.TotalRevenue += o.Total
		switch o.Status {
		case order.StatusPreparing:
			s.Preparing++
		case order.StatusOnTheWay:
			s.OnTheWay++
		case order.StatusDelivered:
			s.Delivered++
		}
	}
	return s
}

// FilterByStatus keeps orders in status s. An empty status keeps everything.
func FilterByStatus(orders []*order.Order, s order.Status) []*order.Order {
	out := make([]*order.Order, 0, len(orders))
	for _, o := range orders {
		if s == "" || o.Status == s {
			out = append(out, o)
		}
	}
	return out
}

func cloneOrder(o *order.Order) *order.Order {
	if o == nil {
		return nil
	}
	cp := *o
	cp.Items = append([]order.LineItem(nil), o.Items...)
	return &cp
}
