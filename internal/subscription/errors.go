package subscription

import (
	"fmt"

	"github.com/pkg/errors"
)

var ErrSubscription = errors.New("subscription failure")

// SubscriptionError wraps a listener failure reported by the realtime store.
// The subscription stays attached after it is reported.
type SubscriptionError struct {
	Target string
	Err    error
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("subscription %s: %v", e.Target, e.Err)
}

func (e *SubscriptionError) Is(target error) bool { return target == ErrSubscription }

func (e *SubscriptionError) Unwrap() error { return e.Err }
