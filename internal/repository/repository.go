// Package repository writes orders through both stores and reads them back.
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/example/swirly-orders/internal/changefeed"
	"github.com/example/swirly-orders/internal/domain/order"
	"github.com/example/swirly-orders/internal/infrastructure/store"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "repository")

// Collections and realtime roots.
const (
	CollectionOrders       = "orders"
	CollectionUserOrders   = "user_orders"
	CollectionDeviceOrders = "device_orders"
	PathStatusHistory      = "order_status_history"
)

// OrderPath is the realtime path of one order.
func OrderPath(id string) string { return store.JoinPath(CollectionOrders, id) }

// UserOrdersPath is the realtime path of one user's order index.
func UserOrdersPath(userID string) string { return store.JoinPath(CollectionUserOrders, userID) }

// HistoryPath is the realtime path of one order's status trail.
func HistoryPath(id string) string { return store.JoinPath(PathStatusHistory, id) }

// Repository keeps the document store and the realtime store in step.
type Repository struct {
	docs      store.DocumentStore
	rt        store.RealtimeStore
	publisher changefeed.Publisher
	now       func() time.Time
}

type Option func(*Repository)

// WithPublisher sends a change event after every successful write.
func WithPublisher(p changefeed.Publisher) Option {
	return func(r *Repository) { r.publisher = p }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) { r.now = now }
}

func New(docs store.DocumentStore, rt store.RealtimeStore, opts ...Option) *Repository {
	r := &Repository{docs: docs, rt: rt, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create validates o and writes it to both stores together with the owner indexes.
func (r *Repository) Create(ctx context.Context, o *order.Order) error {
	if err := order.Validate(o); err != nil {
		return err
	}
	if o.Status != "" && o.Status != order.StatusConfirmed {
		return errors.Wrapf(order.ErrInvalidTransition, "new order %s must start at %s, got %q", o.ID, order.StatusConfirmed, o.Status)
	}
	if err := o.SyncStatusIndex(); err != nil {
		return err
	}
	now := r.now()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	if o.OrderDate.IsZero() {
		o.OrderDate = o.CreatedAt
	}

	if err := r.docs.Set(ctx, CollectionOrders, o.ID, o); err != nil {
		return persistErr(StoreDocument, "create", o.ID, err)
	}
	if err := r.rt.Set(ctx, OrderPath(o.ID), o); err != nil {
		return persistErr(StoreRealtime, "create", o.ID, err)
	}
	if o.UserID != "" {
		if err := r.index(ctx, CollectionUserOrders, o.UserID, o.ID, true); err != nil {
			return err
		}
	}
	if o.DeviceID != "" {
		if err := r.index(ctx, CollectionDeviceOrders, o.DeviceID, o.ID, true); err != nil {
			return err
		}
	}

	log.WithFields(logrus.Fields{"order_id": o.ID, "user_id": o.UserID}).Info("order created")
	r.publish(ctx, o.ID, order.EventOrderPlaced, order.OrderPlaced{
		OrderID:       o.ID,
		UserID:        o.UserID,
		DeviceID:      o.DeviceID,
		CustomerName:  o.CustomerName,
		CustomerEmail: o.CustomerEmail,
		Items:         o.Items,
		Total:         o.Total,
		PlacedAt:      o.CreatedAt,
	}, now)
	return nil
}

// Exists reports whether an order with id is already stored.
func (r *Repository) Exists(ctx context.Context, id string) (bool, error) {
	_, found, err := r.docs.Get(ctx, CollectionOrders, id)
	if err != nil {
		return false, persistErr(StoreDocument, "exists", id, err)
	}
	return found, nil
}

// UpdateStatus writes the status fields to both stores and appends a
// history entry, in that order, stopping at the first failure. The index is
// always derived from status.
func (r *Repository) UpdateStatus(ctx context.Context, id string, status order.Status, actor order.Actor) error {
	if !status.Valid() {
		return errors.Wrapf(order.ErrUnknownStatus, "%q", status)
	}
	now := r.now()
	fields := order.StatusFields(status, actor, now)

	if err := r.docs.Update(ctx, CollectionOrders, id, fields); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return errors.Wrapf(order.ErrOrderNotFound, "order %s", id)
		}
		return persistErr(StoreDocument, "update status", id, err)
	}
	if err := r.rt.Update(ctx, OrderPath(id), fields); err != nil {
		return persistErr(StoreRealtime, "update status", id, err)
	}

	entry := order.HistoryEntry{
		Status:      status,
		StatusIndex: status.Index(),
		Timestamp:   now,
		UpdatedBy:   actor.ID,
	}
	if !actor.At.IsZero() {
		at := actor.At
		entry.UpdateTime = &at
	}
	// The status index keeps keys unique when two transitions share a timestamp.
	key := historyKey(now, status)
	if err := r.rt.Set(ctx, store.JoinPath(HistoryPath(id), key), entry); err != nil {
		return persistErr(StoreRealtime, "append history", id, err)
	}

	r.publish(ctx, id, order.EventOrderStatusChanged, order.OrderStatusChanged{
		OrderID:     id,
		Status:      status,
		StatusIndex: status.Index(),
		UpdatedBy:   actor.ID,
		ChangedAt:   now,
	}, now)
	return nil
}

// FetchByID reads one order from the document store. A missing order is
// (nil, false, nil).
func (r *Repository) FetchByID(ctx context.Context, id string) (*order.Order, bool, error) {
	raw, found, err := r.docs.Get(ctx, CollectionOrders, id)
	if err != nil {
		return nil, false, persistErr(StoreDocument, "fetch", id, err)
	}
	if !found {
		return nil, false, nil
	}
	o, err := decodeOrder(raw)
	if err != nil {
		return nil, false, persistErr(StoreDocument, "decode", id, err)
	}
	if o.ID == "" {
		o.ID = id
	}
	return o, true, nil
}

// FetchByUser returns every order owned by userID in no particular order.
func (r *Repository) FetchByUser(ctx context.Context, userID string) ([]*order.Order, error) {
	return r.queryOrders(ctx, "userId", userID)
}

// FetchByDevice returns every order placed from deviceID in no particular order.
func (r *Repository) FetchByDevice(ctx context.Context, deviceID string) ([]*order.Order, error) {
	return r.queryOrders(ctx, "deviceId", deviceID)
}

// FetchAll returns every order.
func (r *Repository) FetchAll(ctx context.Context) ([]*order.Order, error) {
	rows, err := r.docs.List(ctx, CollectionOrders)
	if err != nil {
		return nil, persistErr(StoreDocument, "list", "", err)
	}
	return decodeOrders(rows)
}

// History returns the status trail of one order, oldest first.
func (r *Repository) History(ctx context.Context, id string) ([]order.HistoryEntry, error) {
	snap, err := r.rt.Get(ctx, HistoryPath(id))
	if err != nil {
		return nil, persistErr(StoreRealtime, "history", id, err)
	}
	if !snap.Exists() {
		return nil, nil
	}
	var byKey map[string]order.HistoryEntry
	if err := snap.Decode(&byKey); err != nil {
		return nil, persistErr(StoreRealtime, "decode history", id, err)
	}

	out := make([]order.HistoryEntry, 0, len(byKey))
	for _, e := range byKey {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].StatusIndex < out[j].StatusIndex
	})
	return out, nil
}

func historyKey(at time.Time, status order.Status) string {
	return fmt.Sprintf("%d-%d", at.UnixNano(), status.Index())
}

// Remove deletes the order from both stores, its history and the owner indexes.
func (r *Repository) Remove(ctx context.Context, id string) error {
	o, found, err := r.FetchByID(ctx, id)
	if err != nil {
		return err
	}

	if err := r.docs.Delete(ctx, CollectionOrders, id); err != nil {
		return persistErr(StoreDocument, "remove", id, err)
	}
	if err := r.rt.Remove(ctx, OrderPath(id)); err != nil {
		return persistErr(StoreRealtime, "remove", id, err)
	}
	if err := r.rt.Remove(ctx, HistoryPath(id)); err != nil {
		return persistErr(StoreRealtime, "remove history", id, err)
	}
	if found {
		if o.UserID != "" {
			if err := r.index(ctx, CollectionUserOrders, o.UserID, id, false); err != nil {
				return err
			}
		}
		if o.DeviceID != "" {
			if err := r.index(ctx, CollectionDeviceOrders, o.DeviceID, id, false); err != nil {
				return err
			}
		}
	}

	log.WithField("order_id", id).Info("order removed")
	now := r.now()
	r.publish(ctx, id, order.EventOrderDeleted, order.OrderDeleted{OrderID: id, DeletedAt: now}, now)
	return nil
}

// index adds or drops orderID in the owner's index in both stores.
func (r *Repository) index(ctx context.Context, collection, owner, orderID string, add bool) error {
	var entry any
	if add {
		entry = true
	}
	fields := map[string]any{orderID: entry}

	err := r.docs.Update(ctx, collection, owner, fields)
	if errors.Is(err, store.ErrNotFound) {
		if add {
			err = r.docs.Set(ctx, collection, owner, fields)
		} else {
			err = nil
		}
	}
	if err != nil {
		return persistErr(StoreDocument, "index "+collection, orderID, err)
	}
	if err := r.rt.Update(ctx, store.JoinPath(collection, owner), fields); err != nil {
		return persistErr(StoreRealtime, "index "+collection, orderID, err)
	}
	return nil
}

func (r *Repository) queryOrders(ctx context.Context, field, value string) ([]*order.Order, error) {
	rows, err := r.docs.Query(ctx, CollectionOrders, field, value)
	if err != nil {
		return nil, persistErr(StoreDocument, "query "+field, "", err)
	}
	return decodeOrders(rows)
}

func (r *Repository) publish(ctx context.Context, orderID, eventType string, payload any, at time.Time) {
	if r.publisher == nil {
		return
	}
	e, err := changefeed.NewEvent(order.AggregateType, orderID, eventType, payload, at)
	if err == nil {
		err = r.publisher.Publish(ctx, e)
	}
	if err != nil {
		log.WithError(err).WithFields(logrus.Fields{
			"order_id":   orderID,
			"event_type": eventType,
		}).Warn("change feed publish failed")
	}
}

func decodeOrder(raw json.RawMessage) (*order.Order, error) {
	var o order.Order
	if err := json.Unmarshal(raw, &o); err != nil {
		return nil, errors.Wrap(err, "decode order")
	}
	return &o, nil
}

func decodeOrders(rows []json.RawMessage) ([]*order.Order, error) {
	out := make([]*order.Order, 0, len(rows))
	for _, raw := range rows {
		o, err := decodeOrder(raw)
		if err != nil {
			return nil, persistErr(StoreDocument, "decode", "", err)
		}
		out = append(out, o)
	}
	return out, nil
}
