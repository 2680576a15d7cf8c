package order

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrValidation        = errors.New("order validation failed")
	ErrInvalidTransition = errors.New("invalid order status transition")
	ErrTerminalState     = errors.New("order is already in its terminal state")
	ErrUnknownStatus     = errors.New("unknown order status")
)

// Required fields reported by ValidationError.
const (
	FieldID              = "id"
	FieldItems           = "items"
	FieldCustomerName    = "customerName"
	FieldCustomerEmail   = "customerEmail"
	FieldDeliveryAddress = "deliveryAddress"
	FieldTotal           = "total"
)

// ValidationError lists every required field that was missing or invalid.
type ValidationError struct {
	MissingFields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: missing %s", ErrValidation, strings.Join(e.MissingFields, ", "))
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Missing reports whether field was flagged.
func (e *ValidationError) Missing(field string) bool {
	for _, f := range e.MissingFields {
		if f == field {
			return true
		}
	}
	return false
}

// transitionError explains why from -> to was rejected.
func transitionError(from, to Status) error {
	if from.Terminal() {
		return errors.Wrapf(ErrTerminalState, "order is %s", from)
	}
	return errors.Wrapf(ErrInvalidTransition, "cannot transition from %s to %s", from, to)
}
