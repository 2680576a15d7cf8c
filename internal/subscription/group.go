package subscription

import (
	"sort"
	"sync"

	"github.com/example/swirly-orders/internal/domain/order"
)

// Group holds at most one order subscription per order ID for one caller.
// Callbacks must not call back into the group.
type Group struct {
	m        *Manager
	onUpdate func(*order.Order)
	onError  func(error)

	mu     sync.Mutex
	subs   map[string]CancelFunc
	closed bool
}

// NewGroup returns an empty group delivering every member's updates to onUpdate.
func (m *Manager) NewGroup(onUpdate func(*order.Order), onError func(error)) *Group {
	return &Group{
		m:        m,
		onUpdate: onUpdate,
		onError:  onError,
		subs:     make(map[string]CancelFunc),
	}
}

// Subscribe attaches a listener for orderID, cancelling any earlier one.
func (g *Group) Subscribe(orderID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}
	if cancel, ok := g.subs[orderID]; ok {
		cancel()
	}
	g.subs[orderID] = g.m.SubscribeToOrder(orderID, g.onUpdate, g.onError)
}

// Unsubscribe detaches the listener for orderID, if any.
func (g *Group) Unsubscribe(orderID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if cancel, ok := g.subs[orderID]; ok {
		cancel()
		delete(g.subs, orderID)
	}
}

// ResubscribeAll makes the group track exactly ids: listeners for IDs no
// longer present are cancelled, new IDs are subscribed, the rest are kept.
func (g *Group) ResubscribeAll(ids []string) {
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}
	for id, cancel := range g.subs {
		if _, keep := want[id]; !keep {
			cancel()
			delete(g.subs, id)
		}
	}
	for id := range want {
		if _, ok := g.subs[id]; !ok {
			g.subs[id] = g.m.SubscribeToOrder(id, g.onUpdate, g.onError)
		}
	}
}

// Active returns the subscribed order IDs, sorted.
func (g *Group) Active() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	ids := make([]string, 0, len(g.subs))
	for id := range g.subs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close cancels every listener. The group can not be reused.
func (g *Group) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for id, cancel := range g.subs {
		cancel()
		delete(g.subs, id)
	}
	g.closed = true
}
