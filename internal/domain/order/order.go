package order

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// PaymentMethod is the checkout payment tag.
type PaymentMethod string

const (
	PaymentCard PaymentMethod = "card"
	PaymentUPI  PaymentMethod = "upi"
	PaymentCOD  PaymentMethod = "cod"
)

func (p PaymentMethod) Valid() bool {
	switch p {
	case PaymentCard, PaymentUPI, PaymentCOD:
		return true
	}
	return false
}

// LineItem is one menu item captured at checkout.
type LineItem struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
	Image    string  `json:"image,omitempty"`
}

// Order is the canonical order record shared by both stores.
type Order struct {
	ID                 string        `json:"id"`
	Items              []LineItem    `json:"items"`
	Subtotal           float64       `json:"subtotal"`
	Tax                float64       `json:"tax"`
	Delivery           float64       `json:"delivery"`
	Total              float64       `json:"total"`
	CustomerName       string        `json:"customerName"`
	CustomerEmail      string        `json:"customerEmail"`
	DeliveryAddress    string        `json:"deliveryAddress"`
	PaymentMethod      PaymentMethod `json:"paymentMethod"`
	Status             Status        `json:"status"`
	CurrentStatusIndex int           `json:"currentStatusIndex"`
	OrderDate          time.Time     `json:"orderDate"`
	CreatedAt          time.Time     `json:"createdAt"`
	LastUpdated        *time.Time    `json:"lastUpdated,omitempty"`
	UpdatedBy          string        `json:"updatedBy,omitempty"`
	UpdateTime         *time.Time    `json:"updateTime,omitempty"`
	UserID             string        `json:"userId"`
	DeviceID           string        `json:"deviceId"`
}

// Actor describes who performed a status change.
type Actor struct {
	ID string    `json:"updatedBy,omitempty"`
	At time.Time `json:"updateTime"`
}

// HistoryEntry is one append-only record of a status change.
type HistoryEntry struct {
	Status      Status     `json:"status"`
	StatusIndex int        `json:"statusIndex"`
	Timestamp   time.Time  `json:"timestamp"`
	UpdatedBy   string     `json:"updatedBy,omitempty"`
	UpdateTime  *time.Time `json:"updateTime,omitempty"`
}

// Validate checks the fields every accepted order must carry.
func Validate(o *Order) error {
	if o == nil {
		return &ValidationError{MissingFields: []string{FieldID, FieldItems, FieldCustomerName,
			FieldCustomerEmail, FieldDeliveryAddress, FieldTotal}}
	}
	var missing []string
	if strings.TrimSpace(o.ID) == "" {
		missing = append(missing, FieldID)
	}
	if len(o.Items) == 0 {
		missing = append(missing, FieldItems)
	}
	if strings.TrimSpace(o.CustomerName) == "" {
		missing = append(missing, FieldCustomerName)
	}
	if strings.TrimSpace(o.CustomerEmail) == "" {
		missing = append(missing, FieldCustomerEmail)
	}
	if strings.TrimSpace(o.DeliveryAddress) == "" {
		missing = append(missing, FieldDeliveryAddress)
	}
	if !(o.Total > 0) {
		missing = append(missing, FieldTotal)
	}
	if len(missing) > 0 {
		return &ValidationError{MissingFields: missing}
	}
	return nil
}

// SyncStatusIndex derives CurrentStatusIndex from Status. An empty status
// becomes StatusConfirmed.
func (o *Order) SyncStatusIndex() error {
	if o.Status == "" {
		o.Status = StatusConfirmed
	}
	i := o.Status.Index()
	if i < 0 {
		return errors.Wrapf(ErrUnknownStatus, "%q", o.Status)
	}
	o.CurrentStatusIndex = i
	return nil
}

// Progress returns how far along the sequence o is, in percent.
func Progress(o *Order) float64 {
	i := o.Status.Index()
	if i < 0 {
		return 0
	}
	return float64(i+1) / float64(len(sequence)) * 100
}

// IDPrefix is prepended to every generated order ID.
const IDPrefix = "ORD-"

// NewID returns "ORD-" followed by a random 6 digit number.
func NewID(r *rand.Rand) string {
	var n int
	if r == nil {
		n = rand.IntN(1_000_000)
	} else {
		n = r.IntN(1_000_000)
	}
	return fmt.Sprintf("%s%06d", IDPrefix, n)
}

// StatusFields is the partial record written on every status change.
func StatusFields(s Status, actor Actor, now time.Time) map[string]any {
	fields := map[string]any{
		"status":             s,
		"currentStatusIndex": s.Index(),
		"lastUpdated":        now,
	}
	if actor.ID != "" {
		fields["updatedBy"] = actor.ID
	}
	if !actor.At.IsZero() {
		fields["updateTime"] = actor.At
	}
	return fields
}
