package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/example/swirly-orders/internal/api/middleware"
	"github.com/example/swirly-orders/internal/command"
	"github.com/example/swirly-orders/internal/domain/order"
	"github.com/example/swirly-orders/internal/query"
	"github.com/example/swirly-orders/internal/repository"
	"github.com/example/swirly-orders/internal/subscription"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
)

type Handlers struct {
	cmdHandler   *command.Handler
	queryHandler *query.Handler
	orders       *repository.Repository
	subs         *subscription.Manager
	heartbeat    time.Duration
}

func NewHandlers(cmdHandler *command.Handler, queryHandler *query.Handler, orders *repository.Repository,
	subs *subscription.Manager, heartbeat time.Duration) *Handlers {
	return &Handlers{
		cmdHandler:   cmdHandler,
		queryHandler: queryHandler,
		orders:       orders,
		subs:         subs,
		heartbeat:    heartbeat,
	}
}

// Order Handlers

func (h *Handlers) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var cmd command.PlaceOrder
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		respondMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	cmd.UserID = middleware.GetUserID(r.Context())
	cmd.DeviceID = middleware.GetDeviceID(r.Context())

	o, err := h.cmdHandler.PlaceOrder(r.Context(), cmd)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, o)
}

func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.queryHandler.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

func (h *Handlers) GetOrderHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.queryHandler.OrderHistory(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, entries)
}

// My Orders Handlers

func (h *Handlers) ListMyOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.queryHandler.ListMyOrders(r.Context(), middleware.GetUserID(r.Context()), middleware.GetDeviceID(r.Context()))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, orders)
}

func (h *Handlers) SearchMyOrders(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	orders, err := h.queryHandler.SearchMyOrders(r.Context(), middleware.GetUserID(r.Context()), f)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, orders)
}

func (h *Handlers) MyAnalytics(w http.ResponseWriter, r *http.Request) {
	a, err := h.queryHandler.MyAnalytics(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, a)
}

// Admin Handlers

func (h *Handlers) ListAllOrders(w http.ResponseWriter, r *http.Request) {
	var status order.Status
	if raw := r.URL.Query().Get("status"); raw != "" {
		s, err := order.ParseStatus(raw)
		if err != nil {
			respondError(w, r, err)
			return
		}
		status = s
	}
	orders, err := h.queryHandler.ListAllOrders(r.Context(), status)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, orders)
}

func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.queryHandler.Stats(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

func (h *Handlers) AdvanceOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	next, err := h.cmdHandler.AdvanceOrder(r.Context(), command.AdvanceOrder{
		OrderID: id,
		ActorID: middleware.GetUserID(r.Context()),
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"id":                 id,
		"status":             next,
		"currentStatusIndex": next.Index(),
	})
}

func (h *Handlers) SetOrderStatus(w http.ResponseWriter, r *http.Request) {
	var cmd command.SetOrderStatus
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		respondMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	cmd.OrderID = chi.URLParam(r, "id")
	cmd.ActorID = middleware.GetUserID(r.Context())

	if err := h.cmdHandler.SetOrderStatus(r.Context(), cmd); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.cmdHandler.DeleteOrder(r.Context(), command.DeleteOrder{OrderID: chi.URLParam(r, "id")}); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// parseFilter reads status, from, to, min and max query parameters. Dates
// are RFC 3339 or YYYY-MM-DD; a bare "to" date includes the whole day.
func parseFilter(r *http.Request) (repository.Filter, error) {
	q := r.URL.Query()
	var f repository.Filter
	if raw := q.Get("status"); raw != "" {
		s, err := order.ParseStatus(raw)
		if err != nil {
			return f, err
		}
		f.Status = s
	}

	var err error
	if f.From, _, err = parseDate(q.Get("from")); err != nil {
		return f, err
	}
	var dayOnly bool
	if f.To, dayOnly, err = parseDate(q.Get("to")); err != nil {
		return f, err
	}
	if dayOnly {
		f.To = f.To.Add(24*time.Hour - time.Nanosecond)
	}
	if f.MinAmount, err = parseAmount(q.Get("min")); err != nil {
		return f, err
	}
	if f.MaxAmount, err = parseAmount(q.Get("max")); err != nil {
		return f, err
	}
	return f, nil
}

func parseDate(raw string) (time.Time, bool, error) {
	if raw == "" {
		return time.Time{}, false, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, false, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, false, errors.Wrapf(order.ErrValidation, "bad date %q", raw)
	}
	return t, true, nil
}

func parseAmount(raw string) (float64, error) {
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 {
		return 0, errors.Wrapf(order.ErrValidation, "bad amount %q", raw)
	}
	return v, nil
}
