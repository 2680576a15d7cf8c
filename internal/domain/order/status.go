package order

import (
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Status is the wire-level status token stored with every order.
type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusPreparing Status = "preparing"
	StatusReady     Status = "ready"
	StatusOnTheWay  Status = "on-the-way"
	StatusDelivered Status = "delivered"
)

// statusAliases are accepted on input only. "completed" was used for the
// terminal stage by older clients and is normalized to StatusDelivered.
var statusAliases = map[string]Status{
	"completed": StatusDelivered,
}

// sequence is the fixed forward-only progression of an order.
var sequence = []Status{
	StatusConfirmed,
	StatusPreparing,
	StatusReady,
	StatusOnTheWay,
	StatusDelivered,
}

var labels = map[Status]string{
	StatusConfirmed: "Order Confirmed",
	StatusPreparing: "Preparing Your Food",
	StatusReady:     "Ready for Pickup",
	StatusOnTheWay:  "On The Way",
	StatusDelivered: "Delivered",
}

var expectedDurations = map[Status]time.Duration{
	StatusConfirmed: 5 * time.Minute,
	StatusPreparing: 20 * time.Minute,
	StatusReady:     10 * time.Minute,
	StatusOnTheWay:  30 * time.Minute,
	StatusDelivered: 0,
}

// Statuses returns a copy of the status sequence in order.
func Statuses() []Status {
	out := make([]Status, len(sequence))
	copy(out, sequence)
	return out
}

// Index returns the 0-based position of s in the sequence, or -1 if s is unknown.
func (s Status) Index() int {
	for i, st := range sequence {
		if st == s {
			return i
		}
	}
	return -1
}

// Valid reports whether s is one of the five canonical statuses.
func (s Status) Valid() bool { return s.Index() >= 0 }

// Terminal reports whether s is the last stage.
func (s Status) Terminal() bool { return s == sequence[len(sequence)-1] }

// Label returns the customer-facing description of s.
func (s Status) Label() string {
	if l, ok := labels[s]; ok {
		return l
	}
	return string(s)
}

// ExpectedDuration is the typical time an order spends in s.
func (s Status) ExpectedDuration() time.Duration { return expectedDurations[s] }

// StatusAt returns the status at position i of the sequence.
func StatusAt(i int) (Status, error) {
	if i < 0 || i >= len(sequence) {
		return "", errors.Wrapf(ErrUnknownStatus, "index %d", i)
	}
	return sequence[i], nil
}

// ParseStatus converts a client supplied token into a canonical Status.
func ParseStatus(raw string) (Status, error) {
	token := strings.ToLower(strings.TrimSpace(raw))
	if alias, ok := statusAliases[token]; ok {
		return alias, nil
	}
	s := Status(token)
	if !s.Valid() {
		return "", errors.Wrapf(ErrUnknownStatus, "%q", raw)
	}
	return s, nil
}

// CanTransition is true iff to is exactly one stage after from.
func CanTransition(from, to Status) bool {
	fi, ti := from.Index(), to.Index()
	if fi < 0 || ti < 0 {
		return false
	}
	return ti == fi+1
}

// Next returns the status following s, or ErrTerminalState if s is the last stage.
func Next(s Status) (Status, error) {
	i := s.Index()
	if i < 0 {
		return "", errors.Wrapf(ErrUnknownStatus, "%q", s)
	}
	if s.Terminal() {
		return "", ErrTerminalState
	}
	return sequence[i+1], nil
}
