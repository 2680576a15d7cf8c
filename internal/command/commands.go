package command

import (
	"github.com/example/swirly-orders/internal/checkout"
	"github.com/example/swirly-orders/internal/domain/order"
)

// Order Commands
type PlaceOrder struct {
	UserID          string              `json:"-"`
	DeviceID        string              `json:"-"`
	Items           []order.LineItem    `json:"items"`
	CustomerName    string              `json:"customerName"`
	CustomerEmail   string              `json:"customerEmail"`
	DeliveryAddress string              `json:"deliveryAddress"`
	PaymentMethod   order.PaymentMethod `json:"paymentMethod"`
	Card            *checkout.Card      `json:"card,omitempty"`
}

type AdvanceOrder struct {
	OrderID string `json:"-"`
	ActorID string `json:"-"`
}

type SetOrderStatus struct {
	OrderID string `json:"-"`
	Status  string `json:"status"`
	ActorID string `json:"-"`
}

type DeleteOrder struct {
	OrderID string `json:"-"`
}
