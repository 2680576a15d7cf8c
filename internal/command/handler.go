package command

import (
	"context"
	"time"

	"github.com/example/swirly-orders/internal/checkout"
	"github.com/example/swirly-orders/internal/domain/order"
	"github.com/example/swirly-orders/internal/repository"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "command")

type Handler struct {
	orders   *repository.Repository
	orderSvc *order.Service
	payments checkout.PaymentProcessor
	now      func() time.Time
}

func NewHandler(orders *repository.Repository, orderSvc *order.Service, payments checkout.PaymentProcessor) *Handler {
	return &Handler{
		orders:   orders,
		orderSvc: orderSvc,
		payments: payments,
		now:      time.Now,
	}
}

// PlaceOrder prices the cart, checks payment details, allocates a free ID,
// charges the customer and stores the order as confirmed.
func (h *Handler) PlaceOrder(ctx context.Context, cmd PlaceOrder) (*order.Order, error) {
	quote, err := checkout.Price(cmd.Items)
	if err != nil {
		return nil, err
	}
	if err := checkout.ValidatePayment(cmd.PaymentMethod, cmd.Card); err != nil {
		return nil, err
	}

	id, err := checkout.AllocateID(ctx, h.orders, nil)
	if err != nil {
		return nil, err
	}

	now := h.now()
	o := &order.Order{
		ID:              id,
		Items:           cmd.Items,
		Subtotal:        quote.Subtotal,
		Tax:             quote.Tax,
		Delivery:        quote.Delivery,
		Total:           quote.Total,
		CustomerName:    cmd.CustomerName,
		CustomerEmail:   cmd.CustomerEmail,
		DeliveryAddress: cmd.DeliveryAddress,
		PaymentMethod:   cmd.PaymentMethod,
		Status:          order.StatusConfirmed,
		OrderDate:       now,
		CreatedAt:       now,
		UserID:          cmd.UserID,
		DeviceID:        cmd.DeviceID,
	}
	// Reject incomplete orders before charging.
	if err := order.Validate(o); err != nil {
		return nil, err
	}

	if err := h.payments.Charge(ctx, o.ID, o.Total); err != nil {
		return nil, err
	}
	if err := h.orders.Create(ctx, o); err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{"order_id": o.ID, "total": o.Total, "payment": o.PaymentMethod}).Info("checkout completed")
	return o, nil
}

// AdvanceOrder moves an order to the next status.
func (h *Handler) AdvanceOrder(ctx context.Context, cmd AdvanceOrder) (order.Status, error) {
	return h.orderSvc.AdvanceOrder(ctx, cmd.OrderID, order.Actor{ID: cmd.ActorID, At: h.now()})
}

// SetOrderStatus moves an order to an explicit status, which must be the
// next one in the sequence.
func (h *Handler) SetOrderStatus(ctx context.Context, cmd SetOrderStatus) error {
	target, err := order.ParseStatus(cmd.Status)
	if err != nil {
		return err
	}
	return h.orderSvc.Apply(ctx, cmd.OrderID, target, order.Actor{ID: cmd.ActorID, At: h.now()})
}

// DeleteOrder removes an order from both stores. Administrative cleanup only.
func (h *Handler) DeleteOrder(ctx context.Context, cmd DeleteOrder) error {
	found, err := h.orders.Exists(ctx, cmd.OrderID)
	if err != nil {
		return err
	}
	if !found {
		return errors.Wrapf(order.ErrOrderNotFound, "order %s", cmd.OrderID)
	}
	return h.orders.Remove(ctx, cmd.OrderID)
}
