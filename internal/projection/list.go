package projection

import (
	"context"
	"sync"

	"github.com/example/swirly-orders/internal/domain/order"
	"github.com/example/swirly-orders/internal/subscription"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "projection")

// UserOrderFetcher loads every order of one user.
type UserOrderFetcher interface {
	FetchByUser(ctx context.Context, userID string) ([]*order.Order, error)
}

// OrderList is the live "my orders" list of one user, always newest first.
// It follows the user's order index and keeps one status listener per order.
type OrderList struct {
	mu       sync.Mutex
	orders   map[string]*order.Order
	closed   bool
	cancel   subscription.CancelFunc
	group    *subscription.Group
	onChange func([]*order.Order)
}

// OpenOrderList loads the user's orders and starts following them. onChange may be nil.
func OpenOrderList(ctx context.Context, orders UserOrderFetcher, mgr *subscription.Manager, userID string,
	onChange func([]*order.Order), onError func(error)) (*OrderList, error) {
	initial, err := orders.FetchByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	l := &OrderList{orders: make(map[string]*order.Order, len(initial)), onChange: onChange}
	ids := make([]string, 0, len(initial))
	for _, o := range initial {
		l.orders[o.ID] = o
		ids = append(ids, o.ID)
	}

	l.group = mgr.NewGroup(l.applyOrder, onError)
	l.group.ResubscribeAll(ids)
	l.cancel = mgr.SubscribeToUserOrders(userID, l.replace, onError)
	return l, nil
}

// Orders returns copies of the held orders, newest first.
func (l *OrderList) Orders() []*order.Order {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sortedLocked()
}

// Tracked returns the order IDs with an active status listener.
func (l *OrderList) Tracked() []string {
	return l.group.Active()
}

// Close stops following the user's orders.
func (l *OrderList) Close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	if l.cancel != nil {
		l.cancel()
	}
	l.group.Close()
}

func (l *OrderList) replace(orders []*order.Order) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	// Tracked orders keep what their status listener delivered; the fan-out
	// copy may predate it.
	next := make(map[string]*order.Order, len(orders))
	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		if held, ok := l.orders[o.ID]; ok {
			next[o.ID] = held
		} else {
			next[o.ID] = o
		}
		ids = append(ids, o.ID)
	}
	l.orders = next
	l.mu.Unlock()

	l.group.ResubscribeAll(ids)
	l.emit()
}

func (l *OrderList) applyOrder(o *order.Order) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	if _, tracked := l.orders[o.ID]; !tracked {
		l.mu.Unlock()
		return
	}
	l.orders[o.ID] = o
	l.mu.Unlock()
	l.emit()
}

func (l *OrderList) emit() {
	if l.onChange == nil {
		return
	}
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	out := l.sortedLocked()
	l.mu.Unlock()
	l.onChange(out)
}

func (l *OrderList) sortedLocked() []*order.Order {
	out := make([]*order.Order, 0, len(l.orders))
	for _, o := range l.orders {
		out = append(out, cloneOrder(o))
	}
	SortNewestFirst(out)
	return out
}
