package projection

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/example/swirly-orders/internal/domain/order"
	"github.com/example/swirly-orders/internal/subscription"
	"github.com/pkg/errors"
)

// OrderFetcher loads one order.
type OrderFetcher interface {
	FetchByID(ctx context.Context, id string) (*order.Order, bool, error)
}

// OrderView is the live tracking view of one order: an initial snapshot
// with every realtime payload shallow-merged over it.
type OrderView struct {
	mu       sync.Mutex
	current  *order.Order
	closed   bool
	cancel   subscription.CancelFunc
	onChange func(*order.Order)
}

// OpenOrderView loads orderID and starts following it. onChange may be nil.
func OpenOrderView(ctx context.Context, orders OrderFetcher, mgr *subscription.Manager, orderID string,
	onChange func(*order.Order), onError func(error)) (*OrderView, error) {
	o, found, err := orders.FetchByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errors.Wrapf(order.ErrOrderNotFound, "order %s", orderID)
	}

	v := &OrderView{current: o, onChange: onChange}
	v.cancel = mgr.SubscribeToOrderChanges(orderID, v.apply, onError)
	return v, nil
}

// Current returns a copy of the held record.
func (v *OrderView) Current() *order.Order {
	v.mu.Lock()
	defer v.mu.Unlock()
	return cloneOrder(v.current)
}

// Close stops following the order. Updates arriving afterwards are ignored.
func (v *OrderView) Close() {
	v.mu.Lock()
	v.closed = true
	v.mu.Unlock()
	if v.cancel != nil {
		v.cancel()
	}
}

func (v *OrderView) apply(fields map[string]json.RawMessage) {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	merged, err := mergeOrder(v.current, fields)
	if err != nil {
		v.mu.Unlock()
		log.WithError(err).WithField("order_id", v.current.ID).Warn("discarding undecodable order payload")
		return
	}
	v.current = merged
	out := cloneOrder(merged)
	v.mu.Unlock()

	if v.onChange != nil {
		v.onChange(out)
	}
}

// mergeOrder overlays the top-level fields onto o.
func mergeOrder(o *order.Order, fields map[string]json.RawMessage) (*order.Order, error) {
	raw, err := json.Marshal(o)
	if err != nil {
		return nil, errors.Wrap(err, "encode order")
	}
	var base map[string]json.RawMessage
	if err := json.Unmarshal(raw, &base); err != nil {
		return nil, errors.Wrap(err, "decode order")
	}
	for k, val := range fields {
		base[k] = val
	}
	raw, err = json.Marshal(base)
	if err != nil {
		return nil, errors.Wrap(err, "encode merged order")
	}
	var out order.Order
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, errors.Wrap(err, "decode merged order")
	}
	if out.ID == "" {
		out.ID = o.ID
	}
	if i := out.Status.Index(); i >= 0 {
		out.CurrentStatusIndex = i
	}
	return &out, nil
}
