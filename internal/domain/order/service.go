package order

import (
	"context"
	"time"

	"github.com/example/swirly-orders/internal/pkg/keylock"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "order")

// Repository is the persistence the transition engine needs.
type Repository interface {
	FetchByID(ctx context.Context, id string) (*Order, bool, error)
	UpdateStatus(ctx context.Context, id string, status Status, actor Actor) error
}

// Service owns every status change. Transitions of the same order are
// serialized within the process.
type Service struct {
	repo  Repository
	locks *keylock.Locker
	now   func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{
		repo:  repo,
		locks: keylock.New(),
		now:   time.Now,
	}
}

// Advance returns the status that follows o's current one. It never writes.
func (s *Service) Advance(o *Order) (Status, error) {
	if o == nil {
		return "", ErrOrderNotFound
	}
	return Next(o.Status)
}

// Apply moves order orderID to target if target is exactly one stage ahead.
func (s *Service) Apply(ctx context.Context, orderID string, target Status, actor Actor) error {
	if !target.Valid() {
		return errors.Wrapf(ErrUnknownStatus, "%q", target)
	}

	unlock := s.locks.Lock(orderID)
	defer unlock()

	o, err := s.load(ctx, orderID)
	if err != nil {
		return err
	}
	return s.apply(ctx, o, target, actor)
}

// AdvanceOrder moves order orderID to its next stage and returns that stage.
func (s *Service) AdvanceOrder(ctx context.Context, orderID string, actor Actor) (Status, error) {
	unlock := s.locks.Lock(orderID)
	defer unlock()

	o, err := s.load(ctx, orderID)
	if err != nil {
		return "", err
	}
	next, err := s.Advance(o)
	if err != nil {
		return "", err
	}
	if err := s.apply(ctx, o, next, actor); err != nil {
		return "", err
	}
	return next, nil
}

func (s *Service) load(ctx context.Context, orderID string) (*Order, error) {
	o, found, err := s.repo.FetchByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errors.Wrapf(ErrOrderNotFound, "order %s", orderID)
	}
	return o, nil
}

func (s *Service) apply(ctx context.Context, o *Order, target Status, actor Actor) error {
	if !CanTransition(o.Status, target) {
		return transitionError(o.Status, target)
	}
	if actor.At.IsZero() {
		actor.At = s.now()
	}
	if err := s.repo.UpdateStatus(ctx, o.ID, target, actor); err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"order_id": o.ID,
		"from":     o.Status,
		"to":       target,
		"actor":    actor.ID,
	}).Info("order status changed")
	return nil
}
