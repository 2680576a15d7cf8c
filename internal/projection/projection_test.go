package projection

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/example/swirly-orders/internal/domain/order"
	"github.com/example/swirly-orders/internal/infrastructure/store/mocks"
	"github.com/example/swirly-orders/internal/repository"
	"github.com/example/swirly-orders/internal/subscription"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	rt   *mocks.MockRealtimeStore
	repo *repository.Repository
	mgr  *subscription.Manager
	svc  *order.Service
}

func newFixture() *fixture {
	rt := mocks.NewMockRealtimeStore()
	repo := repository.New(mocks.NewMockDocumentStore(), rt)
	return &fixture{
		rt:   rt,
		repo: repo,
		mgr:  subscription.NewManager(rt, repo),
		svc:  order.NewService(repo),
	}
}

func (f *fixture) place(t *testing.T, id, userID string, createdAt time.Time) {
	t.Helper()
	require.NoError(t, f.repo.Create(context.Background(), &order.Order{
		ID:              id,
		Items:           []order.LineItem{{ID: "m1", Name: "Veg Biryani", Price: 180, Quantity: 1}},
		Subtotal:        180,
		Tax:             9,
		Delivery:        10,
		Total:           199,
		CustomerName:    "Kiran",
		CustomerEmail:   "kiran@example.com",
		DeliveryAddress: "22 Hill View",
		UserID:          userID,
		CreatedAt:       createdAt,
	}))
}

// ============================================
// OrderView Tests
// ============================================

func TestOrderView_FollowsStatus(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.place(t, "ORD-1", "u1", base)

	var mu sync.Mutex
	var seen []order.Status
	v, err := OpenOrderView(ctx, f.repo, f.mgr, "ORD-1", func(o *order.Order) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, o.Status)
	}, nil)
	require.NoError(t, err)
	defer v.Close()

	_, err = f.svc.AdvanceOrder(ctx, "ORD-1", order.Actor{ID: "admin"})
	require.NoError(t, err)

	cur := v.Current()
	assert.Equal(t, order.StatusPreparing, cur.Status)
	assert.Equal(t, 1, cur.CurrentStatusIndex)
	assert.Equal(t, "Kiran", cur.CustomerName, "fields absent from the payload are kept")
	assert.Equal(t, "admin", cur.UpdatedBy)
	assert.Contains(t, seen, order.StatusPreparing)
}

func TestOrderView_MergesPartialPayload(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.place(t, "ORD-1", "u1", base)

	v, err := OpenOrderView(ctx, f.repo, f.mgr, "ORD-1", nil, nil)
	require.NoError(t, err)
	defer v.Close()

	// A writer that replaces the node with a partial record.
	f.rt.SetData("orders/ORD-1", map[string]any{"status": "ready"})

	cur := v.Current()
	assert.Equal(t, order.StatusReady, cur.Status)
	assert.Equal(t, 2, cur.CurrentStatusIndex)
	assert.Equal(t, 199.0, cur.Total)
}

func TestOrderView_NotFound(t *testing.T) {
	f := newFixture()
	_, err := OpenOrderView(context.Background(), f.repo, f.mgr, "ORD-404", nil, nil)
	assert.ErrorIs(t, err, order.ErrOrderNotFound)
}

func TestOrderView_IgnoresUpdatesAfterClose(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.place(t, "ORD-1", "u1", base)

	v, err := OpenOrderView(ctx, f.repo, f.mgr, "ORD-1", nil, nil)
	require.NoError(t, err)
	v.Close()

	_, err = f.svc.AdvanceOrder(ctx, "ORD-1", order.Actor{})
	require.NoError(t, err)
	assert.Equal(t, order.StatusConfirmed, v.Current().Status)
	assert.Equal(t, 0, f.rt.ListenerCount())
}

// ============================================
// OrderList Tests
// ============================================

func TestOrderList_NewestFirstAndResortedOnUpdate(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.place(t, "ORD-1", "u1", base.Add(-2*time.Hour))
	f.place(t, "ORD-2", "u1", base.Add(-time.Hour))

	l, err := OpenOrderList(ctx, f.repo, f.mgr, "u1", nil, nil)
	require.NoError(t, err)
	defer l.Close()

	got := l.Orders()
	require.Len(t, got, 2)
	assert.Equal(t, "ORD-2", got[0].ID)

	f.place(t, "ORD-3", "u1", base)

	require.Eventually(t, func() bool {
		got := l.Orders()
		return len(got) == 3 && got[0].ID == "ORD-3" && got[2].ID == "ORD-1"
	}, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool {
		return fmt.Sprint(l.Tracked()) == "[ORD-1 ORD-2 ORD-3]"
	}, time.Second, 5*time.Millisecond)
}

func TestOrderList_StatusChangesReachTheList(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.place(t, "ORD-1", "u1", base)

	l, err := OpenOrderList(ctx, f.repo, f.mgr, "u1", nil, nil)
	require.NoError(t, err)
	defer l.Close()

	_, err = f.svc.AdvanceOrder(ctx, "ORD-1", order.Actor{})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		got := l.Orders()
		return len(got) == 1 && got[0].Status == order.StatusPreparing
	}, time.Second, 5*time.Millisecond)
}

func TestOrderList_RemovedOrderLeaves(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.place(t, "ORD-1", "u1", base)
	f.place(t, "ORD-2", "u1", base.Add(time.Minute))

	l, err := OpenOrderList(ctx, f.repo, f.mgr, "u1", nil, nil)
	require.NoError(t, err)
	defer l.Close()

	require.NoError(t, f.repo.Remove(ctx, "ORD-1"))

	assert.Eventually(t, func() bool {
		got := l.Orders()
		return len(got) == 1 && got[0].ID == "ORD-2" && fmt.Sprint(l.Tracked()) == "[ORD-2]"
	}, time.Second, 5*time.Millisecond)
}

func TestOrderList_CloseDetachesEverything(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.place(t, "ORD-1", "u1", base)

	l, err := OpenOrderList(ctx, f.repo, f.mgr, "u1", nil, nil)
	require.NoError(t, err)
	l.Close()

	assert.Equal(t, 0, f.rt.ListenerCount())
}

// ============================================
// Dashboard Tests
// ============================================

func TestDashboard_StatsAndFilter(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.place(t, "ORD-1", "u1", base)
	f.place(t, "ORD-2", "u2", base.Add(time.Minute))

	d := OpenDashboard(f.mgr, nil, nil)
	defer d.Close()
	<-d.Ready()

	_, err := f.svc.AdvanceOrder(ctx, "ORD-2", order.Actor{})
	require.NoError(t, err)

	assert.Equal(t, Stats{Total: 2, Preparing: 1, TotalRevenue: 398}, d.Stats())
	preparing := d.Orders(order.StatusPreparing)
	require.Len(t, preparing, 1)
	assert.Equal(t, "ORD-2", preparing[0].ID)
	all := d.Orders("")
	require.Len(t, all, 2)
	assert.Equal(t, "ORD-2", all[0].ID)
}
