package api

import (
	"encoding/json"
	"net/http"

	"github.com/example/swirly-orders/internal/checkout"
	"github.com/example/swirly-orders/internal/domain/order"
	"github.com/example/swirly-orders/internal/repository"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "api")

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondMessage(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondError maps a domain error onto an HTTP status. Persistence failures
// get a generic retry message; their detail only goes to the log.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, order.ErrValidation),
		errors.Is(err, order.ErrUnknownStatus),
		errors.Is(err, checkout.ErrEmptyCart),
		errors.Is(err, checkout.ErrPaymentDetails):
		respondMessage(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, order.ErrOrderNotFound):
		respondMessage(w, http.StatusNotFound, "order not found")
	case errors.Is(err, order.ErrInvalidTransition),
		errors.Is(err, order.ErrTerminalState):
		respondMessage(w, http.StatusConflict, err.Error())
	case errors.Is(err, repository.ErrPersistence),
		errors.Is(err, checkout.ErrIDExhausted):
		log.WithError(err).WithField("path", r.URL.Path).Error("storage failure")
		respondMessage(w, http.StatusServiceUnavailable, "could not save your changes, please retry")
	default:
		log.WithError(err).WithField("path", r.URL.Path).Error("unhandled error")
		respondMessage(w, http.StatusInternalServerError, "internal error")
	}
}
