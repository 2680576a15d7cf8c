package query

import (
	"time"

	"github.com/example/swirly-orders/internal/domain/order"
)

// StepReadModel is one stage of the tracking timeline.
type StepReadModel struct {
	Status          order.Status `json:"status"`
	Label           string       `json:"label"`
	Done            bool         `json:"done"`
	Current         bool         `json:"current"`
	ExpectedMinutes int          `json:"expectedMinutes"`
}

// OrderReadModel is an order together with its tracking presentation.
type OrderReadModel struct {
	*order.Order
	StatusLabel string          `json:"statusLabel"`
	Progress    float64         `json:"progress"`
	Steps       []StepReadModel `json:"steps"`
}

func newOrderReadModel(o *order.Order) *OrderReadModel {
	cur := o.Status.Index()
	steps := make([]StepReadModel, 0, len(order.Statuses()))
	for i, s := range order.Statuses() {
		steps = append(steps, StepReadModel{
			Status:          s,
			Label:           s.Label(),
			Done:            i <= cur,
			Current:         i == cur,
			ExpectedMinutes: int(s.ExpectedDuration() / time.Minute),
		})
	}
	return &OrderReadModel{
		Order:       o,
		StatusLabel: o.Status.Label(),
		Progress:    order.Progress(o),
		Steps:       steps,
	}
}
