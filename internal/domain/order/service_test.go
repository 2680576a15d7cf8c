package order

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type updateCall struct {
	ID     string
	Status Status
	Actor  Actor
}

type fakeRepository struct {
	mu          sync.Mutex
	orders      map[string]*Order
	updateCalls []updateCall
	fetchErr    error
	updateErr   error
}

func newFakeRepository(orders ...*Order) *fakeRepository {
	r := &fakeRepository{orders: make(map[string]*Order)}
	for _, o := range orders {
		r.orders[o.ID] = o
	}
	return r
}

func (r *fakeRepository) FetchByID(_ context.Context, id string) (*Order, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fetchErr != nil {
		return nil, false, r.fetchErr
	}
	o, ok := r.orders[id]
	if !ok {
		return nil, false, nil
	}
	cp := *o
	return &cp, true, nil
}

func (r *fakeRepository) UpdateStatus(_ context.Context, id string, s Status, actor Actor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updateCalls = append(r.updateCalls, updateCall{ID: id, Status: s, Actor: actor})
	if r.updateErr != nil {
		return r.updateErr
	}
	r.orders[id].Status = s
	r.orders[id].CurrentStatusIndex = s.Index()
	return nil
}

func newTestService(orders ...*Order) (*Service, *fakeRepository) {
	repo := newFakeRepository(orders...)
	svc := NewService(repo)
	svc.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return svc, repo
}

func orderAt(id string, s Status) *Order {
	o := newTestOrder()
	o.ID = id
	o.Status = s
	o.CurrentStatusIndex = s.Index()
	return o
}

// ============================================
// Advance Tests
// ============================================

func TestService_Advance(t *testing.T) {
	svc, repo := newTestService()

	next, err := svc.Advance(orderAt("ORD-1", StatusPreparing))

	require.NoError(t, err)
	assert.Equal(t, StatusReady, next)
	assert.Empty(t, repo.updateCalls)
}

func TestService_Advance_Terminal(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.Advance(orderAt("ORD-1", StatusDelivered))
	assert.ErrorIs(t, err, ErrTerminalState)
}

// ============================================
// Apply Tests
// ============================================

func TestService_Apply_Success(t *testing.T) {
	svc, repo := newTestService(orderAt("ORD-100042", StatusPreparing))

	err := svc.Apply(context.Background(), "ORD-100042", StatusReady, Actor{ID: "admin-1"})

	require.NoError(t, err)
	require.Len(t, repo.updateCalls, 1)
	call := repo.updateCalls[0]
	assert.Equal(t, StatusReady, call.Status)
	assert.Equal(t, "admin-1", call.Actor.ID)
	assert.False(t, call.Actor.At.IsZero())
	assert.Equal(t, 2, repo.orders["ORD-100042"].CurrentStatusIndex)
}

func TestService_Apply_SkipRejected(t *testing.T) {
	svc, repo := newTestService(orderAt("ORD-1", StatusConfirmed))

	err := svc.Apply(context.Background(), "ORD-1", StatusReady, Actor{})

	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Empty(t, repo.updateCalls)
}

func TestService_Apply_BackwardRejected(t *testing.T) {
	svc, repo := newTestService(orderAt("ORD-1", StatusReady))

	err := svc.Apply(context.Background(), "ORD-1", StatusPreparing, Actor{})

	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Empty(t, repo.updateCalls)
}

func TestService_Apply_Terminal(t *testing.T) {
	svc, repo := newTestService(orderAt("ORD-1", StatusDelivered))

	err := svc.Apply(context.Background(), "ORD-1", StatusConfirmed, Actor{})

	assert.ErrorIs(t, err, ErrTerminalState)
	assert.Empty(t, repo.updateCalls)
}

func TestService_Apply_NotFound(t *testing.T) {
	svc, _ := newTestService()
	err := svc.Apply(context.Background(), "ORD-404", StatusPreparing, Actor{})
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestService_Apply_UnknownTarget(t *testing.T) {
	svc, _ := newTestService(orderAt("ORD-1", StatusConfirmed))
	err := svc.Apply(context.Background(), "ORD-1", "completed", Actor{})
	assert.ErrorIs(t, err, ErrUnknownStatus)
}

func TestService_Apply_PropagatesPersistenceError(t *testing.T) {
	svc, repo := newTestService(orderAt("ORD-1", StatusConfirmed))
	repo.updateErr = errors.New("store down")

	err := svc.Apply(context.Background(), "ORD-1", StatusPreparing, Actor{})

	assert.EqualError(t, err, "store down")
}

func TestService_Apply_FetchError(t *testing.T) {
	svc, repo := newTestService(orderAt("ORD-1", StatusConfirmed))
	repo.fetchErr = errors.New("read failed")

	err := svc.Apply(context.Background(), "ORD-1", StatusPreparing, Actor{})

	assert.EqualError(t, err, "read failed")
	assert.Empty(t, repo.updateCalls)
}

// ============================================
// AdvanceOrder Tests
// ============================================

func TestService_AdvanceOrder_FullLifecycle(t *testing.T) {
	svc, repo := newTestService(orderAt("ORD-1", StatusConfirmed))
	ctx := context.Background()

	for _, want := range []Status{StatusPreparing, StatusReady, StatusOnTheWay, StatusDelivered} {
		got, err := svc.AdvanceOrder(ctx, "ORD-1", Actor{ID: "admin"})
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := svc.AdvanceOrder(ctx, "ORD-1", Actor{ID: "admin"})
	assert.ErrorIs(t, err, ErrTerminalState)
	assert.Len(t, repo.updateCalls, 4)
}

func TestService_AdvanceOrder_ConcurrentCallsDoNotSkip(t *testing.T) {
	svc, repo := newTestService(orderAt("ORD-1", StatusConfirmed))
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make(chan Status, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := svc.AdvanceOrder(ctx, "ORD-1", Actor{})
			if err == nil {
				results <- s
			}
		}()
	}
	wg.Wait()
	close(results)

	var got []Status
	for s := range results {
		got = append(got, s)
	}
	assert.ElementsMatch(t, []Status{StatusPreparing, StatusReady}, got)
	assert.Equal(t, StatusReady, repo.orders["ORD-1"].Status)
}
