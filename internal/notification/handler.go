package notification

import (
	"context"

	"github.com/example/swirly-orders/internal/changefeed"
	"github.com/example/swirly-orders/internal/domain/order"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "notifier")

// Mailer sends the customer-facing order emails.
type Mailer interface {
	SendOrderConfirmation(to, orderID string, total float64, items []order.LineItem) error
	SendStatusUpdate(to, orderID string, status order.Status) error
}

// OrderFetcher loads the order a status event refers to.
type OrderFetcher interface {
	FetchByID(ctx context.Context, id string) (*order.Order, bool, error)
}

// Handler turns change feed events into customer emails
type Handler struct {
	mailer Mailer
	orders OrderFetcher
}

func NewHandler(mailer Mailer, orders OrderFetcher) *Handler {
	return &Handler{mailer: mailer, orders: orders}
}

// HandleEvent processes one change feed event. Events it does not notify
// on are ignored.
func (h *Handler) HandleEvent(ctx context.Context, event changefeed.Event) error {
	switch event.EventType {
	case order.EventOrderPlaced:
		return h.handleOrderPlaced(event)
	case order.EventOrderStatusChanged:
		return h.handleStatusChanged(ctx, event)
	}
	return nil
}

func (h *Handler) handleOrderPlaced(event changefeed.Event) error {
	var e order.OrderPlaced
	if err := event.Decode(&e); err != nil {
		return err
	}
	entry := log.WithField("order_id", e.OrderID)
	if e.CustomerEmail == "" {
		entry.Info("no customer email, skipping confirmation")
		return nil
	}

	if err := h.mailer.SendOrderConfirmation(e.CustomerEmail, e.OrderID, e.Total, e.Items); err != nil {
		entry.WithError(err).Error("failed to send order confirmation")
		return err
	}
	entry.Info("order confirmation sent")
	return nil
}

func (h *Handler) handleStatusChanged(ctx context.Context, event changefeed.Event) error {
	var e order.OrderStatusChanged
	if err := event.Decode(&e); err != nil {
		return err
	}
	entry := log.WithFields(logrus.Fields{"order_id": e.OrderID, "status": e.Status})

	o, found, err := h.orders.FetchByID(ctx, e.OrderID)
	if err != nil {
		entry.WithError(err).Error("failed to load order")
		return err
	}
	if !found {
		entry.Info("order no longer exists, skipping status email")
		return nil
	}
	if o.CustomerEmail == "" {
		return nil
	}

	if err := h.mailer.SendStatusUpdate(o.CustomerEmail, e.OrderID, e.Status); err != nil {
		entry.WithError(err).Error("failed to send status update")
		return err
	}
	entry.Info("status update sent")
	return nil
}
