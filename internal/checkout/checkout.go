package checkout

import (
	"context"
	"math"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/example/swirly-orders/internal/domain/order"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "checkout")

var (
	ErrEmptyCart      = errors.New("cart is empty")
	ErrPaymentDetails = errors.New("invalid payment details")
	ErrIDExhausted    = errors.New("could not allocate a free order id")
)

const (
	TaxRate           = 0.05
	FreeDeliveryAbove = 30.0
	DeliveryFee       = 10.0

	// MaxIDAttempts bounds the collision retries when allocating an order ID.
	MaxIDAttempts = 5

	DefaultPaymentDelay = 2 * time.Second
)

// Quote is the price breakdown of a cart.
type Quote struct {
	Subtotal float64 `json:"subtotal"`
	Tax      float64 `json:"tax"`
	Delivery float64 `json:"delivery"`
	Total    float64 `json:"total"`
}

// Price computes the quote for items. Tax is rounded to a whole amount and
// delivery is free above FreeDeliveryAbove.
func Price(items []order.LineItem) (Quote, error) {
	if len(items) == 0 {
		return Quote{}, ErrEmptyCart
	}
	var q Quote
	for _, it := range items {
		if it.Quantity <= 0 || it.Price < 0 {
			return Quote{}, errors.Wrapf(order.ErrValidation, "item %s has quantity %d and price %.2f", it.ID, it.Quantity, it.Price)
		}
		q.Subtotal += it.Price * float64(it.Quantity)
	}
	q.Tax = math.Round(q.Subtotal * TaxRate)
	if q.Subtotal <= FreeDeliveryAbove {
		q.Delivery = DeliveryFee
	}
	q.Total = q.Subtotal + q.Tax + q.Delivery
	return q, nil
}

// Card holds the card fields collected at checkout. They are checked and
// then discarded, never stored.
type Card struct {
	Number string `json:"cardNumber"`
	Name   string `json:"cardName"`
	Expiry string `json:"cardExpiry"`
	CVV    string `json:"cardCVV"`
}

// ValidatePayment checks the payment method and, for cards, the card fields.
func ValidatePayment(method order.PaymentMethod, card *Card) error {
	if !method.Valid() {
		return errors.Wrapf(ErrPaymentDetails, "unknown payment method %q", method)
	}
	if method != order.PaymentCard {
		return nil
	}
	if card == nil || card.Number == "" || card.Name == "" || card.Expiry == "" || card.CVV == "" {
		return errors.Wrap(ErrPaymentDetails, "all card fields are required")
	}
	if digits := strings.ReplaceAll(card.Number, " ", ""); len(digits) != 16 || !numeric(digits) {
		return errors.Wrap(ErrPaymentDetails, "card number must be 16 digits")
	}
	if len(card.CVV) != 3 || !numeric(card.CVV) {
		return errors.Wrap(ErrPaymentDetails, "CVV must be 3 digits")
	}
	return nil
}

func numeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// PaymentProcessor charges an order total.
type PaymentProcessor interface {
	Charge(ctx context.Context, orderID string, amount float64) error
}

// SimulatedProcessor approves every charge after Delay. Cancelling ctx
// aborts the wait.
type SimulatedProcessor struct {
	Delay time.Duration
}

func (p SimulatedProcessor) Charge(ctx context.Context, orderID string, amount float64) error {
	t := time.NewTimer(p.Delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		log.WithField("order_id", orderID).Info("payment cancelled")
		return errors.Wrap(ctx.Err(), "payment cancelled")
	case <-t.C:
	}
	log.WithFields(logrus.Fields{"order_id": orderID, "amount": amount}).Debug("payment approved")
	return nil
}

// ExistenceChecker reports whether an order ID is taken.
type ExistenceChecker interface {
	Exists(ctx context.Context, id string) (bool, error)
}

// AllocateID draws order IDs until one is free, giving up after MaxIDAttempts.
func AllocateID(ctx context.Context, orders ExistenceChecker, r *rand.Rand) (string, error) {
	for attempt := 1; attempt <= MaxIDAttempts; attempt++ {
		id := order.NewID(r)
		taken, err := orders.Exists(ctx, id)
		if err != nil {
			return "", err
		}
		if !taken {
			return id, nil
		}
		log.WithFields(logrus.Fields{"order_id": id, "attempt": attempt}).Warn("order id collision")
	}
	return "", ErrIDExhausted
}
