package query

import (
	"context"

	"github.com/example/swirly-orders/internal/domain/order"
	"github.com/example/swirly-orders/internal/projection"
	"github.com/example/swirly-orders/internal/repository"
	"github.com/pkg/errors"
)

type Handler struct {
	orders *repository.Repository
}

func NewHandler(orders *repository.Repository) *Handler {
	return &Handler{orders: orders}
}

// GetOrder returns the order with its tracking timeline.
func (h *Handler) GetOrder(ctx context.Context, id string) (*OrderReadModel, error) {
	o, found, err := h.orders.FetchByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errors.Wrapf(order.ErrOrderNotFound, "order %s", id)
	}
	return newOrderReadModel(o), nil
}

// ListMyOrders returns the caller's orders newest first. Signed-in users
// are looked up by user ID, guests by device ID.
func (h *Handler) ListMyOrders(ctx context.Context, userID, deviceID string) ([]*order.Order, error) {
	var (
		orders []*order.Order
		err    error
	)
	switch {
	case userID != "":
		orders, err = h.orders.FetchByUser(ctx, userID)
	case deviceID != "":
		orders, err = h.orders.FetchByDevice(ctx, deviceID)
	default:
		return []*order.Order{}, nil
	}
	if err != nil {
		return nil, err
	}
	projection.SortNewestFirst(orders)
	return orders, nil
}

// SearchMyOrders filters the user's orders, newest first.
func (h *Handler) SearchMyOrders(ctx context.Context, userID string, f repository.Filter) ([]*order.Order, error) {
	orders, err := h.orders.Search(ctx, userID, f)
	if err != nil {
		return nil, err
	}
	projection.SortNewestFirst(orders)
	return orders, nil
}

func (h *Handler) MyAnalytics(ctx context.Context, userID string) (projection.Analytics, error) {
	orders, err := h.orders.FetchByUser(ctx, userID)
	if err != nil {
		return projection.Analytics{}, err
	}
	return projection.ComputeAnalytics(orders), nil
}

// OrderHistory returns the status trail of an existing order, oldest first.
func (h *Handler) OrderHistory(ctx context.Context, id string) ([]order.HistoryEntry, error) {
	found, err := h.orders.Exists(ctx, id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errors.Wrapf(order.ErrOrderNotFound, "order %s", id)
	}
	entries, err := h.orders.History(ctx, id)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []order.HistoryEntry{}
	}
	return entries, nil
}

// Admin

// ListAllOrders returns every order in status s (all when s is empty), newest first.
func (h *Handler) ListAllOrders(ctx context.Context, s order.Status) ([]*order.Order, error) {
	orders, err := h.orders.FetchAll(ctx)
	if err != nil {
		return nil, err
	}
	orders = projection.FilterByStatus(orders, s)
	projection.SortNewestFirst(orders)
	return orders, nil
}

func (h *Handler) Stats(ctx context.Context) (projection.Stats, error) {
	orders, err := h.orders.FetchAll(ctx)
	if err != nil {
		return projection.Stats{}, err
	}
	return projection.ComputeStats(orders), nil
}
