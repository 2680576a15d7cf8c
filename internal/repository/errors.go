package repository

import (
	"fmt"

	"github.com/pkg/errors"
)

var ErrPersistence = errors.New("persistence failure")

// Store names reported by PersistenceError.
const (
	StoreDocument = "document"
	StoreRealtime = "realtime"
)

// PersistenceError reports which store and which step failed. Writes that
// already reached the other store are not rolled back.
type PersistenceError struct {
	Store   string
	Op      string
	OrderID string
	Err     error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s store: %s %s: %v", e.Store, e.Op, e.OrderID, e.Err)
}

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

func (e *PersistenceError) Unwrap() error { return e.Err }

func persistErr(storeName, op, orderID string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Store: storeName, Op: op, OrderID: orderID, Err: err}
}
