package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/example/swirly-orders/internal/api/middleware"
	"github.com/example/swirly-orders/internal/domain/order"
	"github.com/example/swirly-orders/internal/projection"
	"github.com/go-chi/chi/v5"
)

// latest is a one-slot mailbox: put never blocks and a newer value
// replaces one not yet taken.
type latest[T any] struct {
	ch chan T
}

func newLatest[T any]() *latest[T] { return &latest[T]{ch: make(chan T, 1)} }

func (l *latest[T]) put(v T) {
	for {
		select {
		case l.ch <- v:
			return
		default:
			select {
			case <-l.ch:
			default:
			}
		}
	}
}

type sseWriter struct {
	w http.ResponseWriter
	f http.Flusher
}

func startSSE(w http.ResponseWriter) (*sseWriter, bool) {
	f, ok := w.(http.Flusher)
	if !ok {
		respondMessage(w, http.StatusInternalServerError, "streaming unsupported")
		return nil, false
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	f.Flush()
	return &sseWriter{w: w, f: f}, true
}

func (s *sseWriter) send(event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	s.f.Flush()
	return nil
}

func (s *sseWriter) ping() error {
	if _, err := fmt.Fprint(s.w, ": ping\n\n"); err != nil {
		return err
	}
	s.f.Flush()
	return nil
}

// pump writes every value taken from updates as an SSE event until the
// client goes away. Listener errors are forwarded as "error" events.
func pump[T any](h *Handlers, r *http.Request, sse *sseWriter, event string, updates *latest[T], errs *latest[error]) {
	var tick <-chan time.Time
	if h.heartbeat > 0 {
		t := time.NewTicker(h.heartbeat)
		defer t.Stop()
		tick = t.C
	}
	for {
		var err error
		select {
		case <-r.Context().Done():
			return
		case v := <-updates.ch:
			err = sse.send(event, v)
		case e := <-errs.ch:
			err = sse.send("error", map[string]string{"error": e.Error()})
		case <-tick:
			err = sse.ping()
		}
		if err != nil {
			log.WithError(err).WithField("path", r.URL.Path).Debug("stream closed")
			return
		}
	}
}

// StreamOrder pushes the live state of one order.
func (h *Handlers) StreamOrder(w http.ResponseWriter, r *http.Request) {
	updates, errs := newLatest[*order.Order](), newLatest[error]()
	view, err := projection.OpenOrderView(r.Context(), h.orders, h.subs, chi.URLParam(r, "id"), updates.put, errs.put)
	if err != nil {
		respondError(w, r, err)
		return
	}
	defer view.Close()

	sse, ok := startSSE(w)
	if !ok {
		return
	}
	updates.put(view.Current())
	pump(h, r, sse, "order", updates, errs)
}

// StreamMyOrders pushes the caller's order list, newest first, on every change.
func (h *Handlers) StreamMyOrders(w http.ResponseWriter, r *http.Request) {
	updates, errs := newLatest[[]*order.Order](), newLatest[error]()
	list, err := projection.OpenOrderList(r.Context(), h.orders, h.subs, middleware.GetUserID(r.Context()), updates.put, errs.put)
	if err != nil {
		respondError(w, r, err)
		return
	}
	defer list.Close()

	sse, ok := startSSE(w)
	if !ok {
		return
	}
	updates.put(list.Orders())
	pump(h, r, sse, "orders", updates, errs)
}

type dashboardUpdate struct {
	Orders []*order.Order    `json:"orders"`
	Stats  projection.Stats `json:"stats"`
}

// StreamDashboard pushes every order and the admin counters on every change.
func (h *Handlers) StreamDashboard(w http.ResponseWriter, r *http.Request) {
	var status order.Status
	if raw := r.URL.Query().Get("status"); raw != "" {
		s, err := order.ParseStatus(raw)
		if err != nil {
			respondError(w, r, err)
			return
		}
		status = s
	}

	updates, errs := newLatest[dashboardUpdate](), newLatest[error]()
	dash := projection.OpenDashboard(h.subs, func(orders []*order.Order, stats projection.Stats) {
		updates.put(dashboardUpdate{Orders: projection.FilterByStatus(orders, status), Stats: stats})
	}, errs.put)
	defer dash.Close()

	sse, ok := startSSE(w)
	if !ok {
		return
	}
	pump(h, r, sse, "dashboard", updates, errs)
}
