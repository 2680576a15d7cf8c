package order

import "time"

const AggregateType = "Order"

const (
	EventOrderPlaced        = "OrderPlaced"
	EventOrderStatusChanged = "OrderStatusChanged"
	EventOrderDeleted       = "OrderDeleted"
)

type OrderPlaced struct {
	OrderID       string     `json:"order_id"`
	UserID        string     `json:"user_id"`
	DeviceID      string     `json:"device_id"`
	CustomerName  string     `json:"customer_name"`
	CustomerEmail string     `json:"customer_email"`
	Items         []LineItem `json:"items"`
	Total         float64    `json:"total"`
	PlacedAt      time.Time  `json:"placed_at"`
}

type OrderStatusChanged struct {
	OrderID     string    `json:"order_id"`
	Status      Status    `json:"status"`
	StatusIndex int       `json:"status_index"`
	UpdatedBy   string    `json:"updated_by,omitempty"`
	ChangedAt   time.Time `json:"changed_at"`
}

type OrderDeleted struct {
	OrderID   string    `json:"order_id"`
	DeletedAt time.Time `json:"deleted_at"`
}
