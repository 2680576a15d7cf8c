package projection

import (
	"sync"

	"github.com/example/swirly-orders/internal/domain/order"
	"github.com/example/swirly-orders/internal/subscription"
)

// Dashboard is the admin view over every order.
type Dashboard struct {
	mu       sync.Mutex
	orders   []*order.Order
	closed   bool
	ready    chan struct{}
	once     sync.Once
	cancel   subscription.CancelFunc
	onChange func([]*order.Order, Stats)
}

// OpenDashboard starts following all orders. onChange may be nil.
func OpenDashboard(mgr *subscription.Manager, onChange func([]*order.Order, Stats), onError func(error)) *Dashboard {
	d := &Dashboard{onChange: onChange, ready: make(chan struct{})}
	d.cancel = mgr.SubscribeToAllOrders(d.replace, onError)
	return d
}

// Ready is closed once the first snapshot has arrived.
func (d *Dashboard) Ready() <-chan struct{} { return d.ready }

// Orders returns the orders in status s (all when s is empty), newest first.
func (d *Dashboard) Orders(s order.Status) []*order.Order {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := FilterByStatus(d.orders, s)
	for i, o := range out {
		out[i] = cloneOrder(o)
	}
	return out
}

func (d *Dashboard) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return ComputeStats(d.orders)
}

func (d *Dashboard) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	if d.cancel != nil {
		d.cancel()
	}
}

func (d *Dashboard) replace(orders []*order.Order) {
	SortNewestFirst(orders)

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.orders = orders
	stats := ComputeStats(orders)
	out := make([]*order.Order, len(orders))
	for i, o := range orders {
		out[i] = cloneOrder(o)
	}
	d.mu.Unlock()

	d.once.Do(func() { close(d.ready) })
	if d.onChange != nil {
		d.onChange(out, stats)
	}
}
