// Package subscription turns realtime store listeners into typed order feeds.
package subscription

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/example/swirly-orders/internal/domain/order"
	"github.com/example/swirly-orders/internal/infrastructure/store"
	"github.com/example/swirly-orders/internal/repository"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var log = logrus.WithField("component", "subscription")

const defaultFanoutLimit = 8

// CancelFunc detaches a subscription. It is safe to call more than once.
type CancelFunc func()

// OrderReader resolves order IDs during user-order fan-out.
type OrderReader interface {
	FetchByID(ctx context.Context, id string) (*order.Order, bool, error)
}

// Manager attaches listeners to the realtime store.
type Manager struct {
	rt          store.RealtimeStore
	orders      OrderReader
	fanoutLimit int
}

type Option func(*Manager)

// WithFanoutLimit bounds the number of parallel reads per index change.
func WithFanoutLimit(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.fanoutLimit = n
		}
	}
}

func NewManager(rt store.RealtimeStore, orders OrderReader, opts ...Option) *Manager {
	m := &Manager{rt: rt, orders: orders, fanoutLimit: defaultFanoutLimit}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SubscribeToOrder delivers the full order every time it changes. Deleted or
// missing orders are not delivered.
func (m *Manager) SubscribeToOrder(orderID string, onUpdate func(*order.Order), onError func(error)) CancelFunc {
	target := repository.OrderPath(orderID)
	unsub := m.rt.Subscribe(target, func(snap store.Snapshot) {
		if !snap.Exists() {
			return
		}
		var o order.Order
		if err := snap.Decode(&o); err != nil {
			report(onError, target, err)
			return
		}
		if o.ID == "" {
			o.ID = orderID
		}
		onUpdate(&o)
	}, errorSink(onError, target))
	return once(unsub)
}

// SubscribeToOrderChanges delivers the raw top-level fields of the order
// node on every change.
func (m *Manager) SubscribeToOrderChanges(orderID string, onChange func(map[string]json.RawMessage), onError func(error)) CancelFunc {
	target := repository.OrderPath(orderID)
	unsub := m.rt.Subscribe(target, func(snap store.Snapshot) {
		if !snap.Exists() {
			return
		}
		var fields map[string]json.RawMessage
		if err := snap.Decode(&fields); err != nil {
			report(onError, target, err)
			return
		}
		onChange(fields)
	}, errorSink(onError, target))
	return once(unsub)
}

// SubscribeToUserOrders delivers the resolved orders of userID every time
// the user's order index changes. IDs that do not resolve are dropped. A
// newer index change supersedes a fan-out still in flight. Cancel waits for
// a delivery already running and nothing is delivered after it returns, so
// it must not be called from inside onUpdate.
func (m *Manager) SubscribeToUserOrders(userID string, onUpdate func([]*order.Order), onError func(error)) CancelFunc {
	target := repository.UserOrdersPath(userID)
	ctx, cancelCtx := context.WithCancel(context.Background())

	var (
		mu        sync.Mutex
		deliverMu sync.Mutex
		gen       uint64
		cancelled bool
	)
	current := func(g uint64) bool {
		mu.Lock()
		defer mu.Unlock()
		return !cancelled && g == gen
	}

	unsub := m.rt.Subscribe(target, func(snap store.Snapshot) {
		ids, err := decodeIndex(snap)
		if err != nil {
			report(onError, target, err)
			return
		}

		mu.Lock()
		if cancelled {
			mu.Unlock()
			return
		}
		gen++
		g := gen
		mu.Unlock()

		go func() {
			orders := m.resolve(ctx, ids)
			deliverMu.Lock()
			defer deliverMu.Unlock()
			if !current(g) {
				log.WithField("user_id", userID).Debug("dropping superseded order list")
				return
			}
			onUpdate(orders)
		}()
	}, errorSink(onError, target))

	return once(func() {
		mu.Lock()
		cancelled = true
		mu.Unlock()
		cancelCtx()
		unsub()
		deliverMu.Lock()
		deliverMu.Unlock()
	})
}

// SubscribeToAllOrders delivers every order each time any order changes.
func (m *Manager) SubscribeToAllOrders(onUpdate func([]*order.Order), onError func(error)) CancelFunc {
	target := repository.CollectionOrders
	unsub := m.rt.Subscribe(target, func(snap store.Snapshot) {
		if !snap.Exists() {
			onUpdate(nil)
			return
		}
		var byID map[string]order.Order
		if err := snap.Decode(&byID); err != nil {
			report(onError, target, err)
			return
		}
		out := make([]*order.Order, 0, len(byID))
		for id, o := range byID {
			o := o
			if o.ID == "" {
				o.ID = id
			}
			out = append(out, &o)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
		onUpdate(out)
	}, errorSink(onError, target))
	return once(unsub)
}

// resolve fetches ids in parallel and keeps the ones that resolved, in the
// order of ids.
func (m *Manager) resolve(ctx context.Context, ids []string) []*order.Order {
	results := make([]*order.Order, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.fanoutLimit)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			o, found, err := m.orders.FetchByID(gctx, id)
			if err != nil {
				log.WithError(err).WithField("order_id", id).Debug("order did not resolve")
				return nil
			}
			if found {
				results[i] = o
			}
			return nil
		})
	}
	_ = g.Wait()

	out := make([]*order.Order, 0, len(ids))
	for _, o := range results {
		if o != nil {
			out = append(out, o)
		}
	}
	return out
}

// decodeIndex reads an owner index node. Both the keyed form
// {"ORD-1": true} and the legacy list form ["ORD-1"] are accepted.
func decodeIndex(snap store.Snapshot) ([]string, error) {
	if !snap.Exists() {
		return nil, nil
	}
	var keyed map[string]json.RawMessage
	if err := json.Unmarshal(snap.Value, &keyed); err == nil {
		ids := make([]string, 0, len(keyed))
		for id := range keyed {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		return ids, nil
	}
	var list []string
	if err := json.Unmarshal(snap.Value, &list); err != nil {
		return nil, errors.Wrap(err, "decode order index")
	}
	return list, nil
}

func errorSink(onError func(error), target string) func(error) {
	return func(err error) { report(onError, target, err) }
}

func report(onError func(error), target string, err error) {
	serr := &SubscriptionError{Target: target, Err: err}
	log.WithError(err).WithField("target", target).Warn("subscription error")
	if onError != nil {
		onError(serr)
	}
}

func once(fn func()) CancelFunc {
	var o sync.Once
	return func() { o.Do(fn) }
}
