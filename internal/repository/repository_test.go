package repository

import (
	"context"
	"testing"
	"time"

	"github.com/example/swirly-orders/internal/changefeed"
	"github.com/example/swirly-orders/internal/domain/order"
	"github.com/example/swirly-orders/internal/infrastructure/store/mocks"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type testRepo struct {
	*Repository
	docs *mocks.MockDocumentStore
	rt   *mocks.MockRealtimeStore
	feed *changefeed.Recorder
	tick time.Duration
}

func newTestRepository() *testRepo {
	tr := &testRepo{
		docs: mocks.NewMockDocumentStore(),
		rt:   mocks.NewMockRealtimeStore(),
		feed: changefeed.NewRecorder(),
	}
	tr.Repository = New(tr.docs, tr.rt, WithPublisher(tr.feed), WithClock(func() time.Time {
		tr.tick += time.Second
		return testNow.Add(tr.tick)
	}))
	return tr
}

func butterChicken() *order.Order {
	return &order.Order{
		ID:              "ORD-100042",
		Items:           []order.LineItem{{ID: "bc", Name: "Butter Chicken", Price: 280, Quantity: 1}},
		Subtotal:        280,
		Tax:             14,
		Delivery:        0,
		Total:           294,
		CustomerName:    "Ravi",
		CustomerEmail:   "ravi@example.com",
		DeliveryAddress: "4 Park Street",
		PaymentMethod:   order.PaymentCard,
		UserID:          "u1",
		DeviceID:        "dev-1",
	}
}

// ============================================
// Create Tests
// ============================================

func TestRepository_Create_WritesBothStoresAndIndexes(t *testing.T) {
	r := newTestRepository()
	ctx := context.Background()

	require.NoError(t, r.Create(ctx, butterChicken()))

	var stored order.Order
	require.True(t, r.docs.GetData(CollectionOrders, "ORD-100042", &stored))
	assert.Equal(t, order.StatusConfirmed, stored.Status)
	assert.Equal(t, 0, stored.CurrentStatusIndex)
	assert.False(t, stored.CreatedAt.IsZero())

	snap := r.rt.GetData(OrderPath("ORD-100042"))
	require.True(t, snap.Exists())
	var live order.Order
	require.NoError(t, snap.Decode(&live))
	assert.Equal(t, "Butter Chicken", live.Items[0].Name)

	var userIdx map[string]bool
	require.True(t, r.docs.GetData(CollectionUserOrders, "u1", &userIdx))
	assert.True(t, userIdx["ORD-100042"])
	assert.JSONEq(t, `{"ORD-100042":true}`, string(r.rt.GetData("user_orders/u1").Value))
	assert.JSONEq(t, `{"ORD-100042":true}`, string(r.rt.GetData("device_orders/dev-1").Value))

	assert.Equal(t, []string{order.EventOrderPlaced}, r.feed.Types())
}

func TestRepository_Create_FetchByIDRoundTrip(t *testing.T) {
	r := newTestRepository()
	ctx := context.Background()

	in := butterChicken()
	require.NoError(t, r.Create(ctx, in))

	got, found, err := r.FetchByID(ctx, in.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, in, got)
}

func TestRepository_Create_AppendsToExistingIndex(t *testing.T) {
	r := newTestRepository()
	ctx := context.Background()
	first := butterChicken()
	second := butterChicken()
	second.ID = "ORD-100043"

	require.NoError(t, r.Create(ctx, first))
	require.NoError(t, r.Create(ctx, second))

	var userIdx map[string]bool
	require.True(t, r.docs.GetData(CollectionUserOrders, "u1", &userIdx))
	assert.Len(t, userIdx, 2)
}

func TestRepository_Create_DerivesIndexFromStatus(t *testing.T) {
	r := newTestRepository()
	o := butterChicken()
	o.Status = order.StatusConfirmed
	o.CurrentStatusIndex = 3

	require.NoError(t, r.Create(context.Background(), o))

	var stored order.Order
	require.True(t, r.docs.GetData(CollectionOrders, o.ID, &stored))
	assert.Equal(t, 0, stored.CurrentStatusIndex)
}

func TestRepository_Create_RejectsLaterStartingStatus(t *testing.T) {
	for _, s := range []order.Status{order.StatusPreparing, order.StatusDelivered} {
		t.Run(string(s), func(t *testing.T) {
			r := newTestRepository()
			o := butterChicken()
			o.Status = s

			err := r.Create(context.Background(), o)

			assert.ErrorIs(t, err, order.ErrInvalidTransition)
			_, found, ferr := r.FetchByID(context.Background(), o.ID)
			require.NoError(t, ferr)
			assert.False(t, found)
			assert.False(t, r.rt.GetData(OrderPath(o.ID)).Exists())
			assert.Empty(t, r.feed.Types())
		})
	}
}

func TestRepository_Create_ValidationFailsBeforeWriting(t *testing.T) {
	r := newTestRepository()
	o := butterChicken()
	o.CustomerEmail = ""

	err := r.Create(context.Background(), o)

	assert.ErrorIs(t, err, order.ErrValidation)
	assert.Empty(t, r.docs.SetCalls)
	assert.Empty(t, r.rt.SetCalls)
}

func TestRepository_Create_RealtimeFailureLeavesDocument(t *testing.T) {
	r := newTestRepository()
	r.rt.SetErr = errors.New("rtdb unavailable")

	err := r.Create(context.Background(), butterChicken())

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPersistence)
	var perr *PersistenceError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, StoreRealtime, perr.Store)
	exists, err := r.Exists(context.Background(), "ORD-100042")
	require.NoError(t, err)
	assert.True(t, exists, "document write is not rolled back")
	assert.Empty(t, r.feed.Events())
}

func TestRepository_Create_DocumentFailure(t *testing.T) {
	r := newTestRepository()
	r.docs.SetErr = errors.New("firestore unavailable")

	err := r.Create(context.Background(), butterChicken())

	var perr *PersistenceError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, StoreDocument, perr.Store)
	assert.Empty(t, r.rt.SetCalls)
}

// ============================================
// UpdateStatus Tests
// ============================================

func TestRepository_UpdateStatus_WritesBothStoresAndHistory(t *testing.T) {
	r := newTestRepository()
	ctx := context.Background()
	require.NoError(t, r.Create(ctx, butterChicken()))

	err := r.UpdateStatus(ctx, "ORD-100042", order.StatusPreparing, order.Actor{ID: "admin-1", At: testNow})
	require.NoError(t, err)

	o, found, err := r.FetchByID(ctx, "ORD-100042")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, order.StatusPreparing, o.Status)
	assert.Equal(t, 1, o.CurrentStatusIndex)
	assert.Equal(t, "admin-1", o.UpdatedBy)
	require.NotNil(t, o.LastUpdated)

	var live order.Order
	require.NoError(t, r.rt.GetData(OrderPath("ORD-100042")).Decode(&live))
	assert.Equal(t, order.StatusPreparing, live.Status)
	assert.Equal(t, 1, live.CurrentStatusIndex)

	history, err := r.History(ctx, "ORD-100042")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, order.StatusPreparing, history[0].Status)
	assert.Equal(t, 1, history[0].StatusIndex)
	assert.Equal(t, "admin-1", history[0].UpdatedBy)

	assert.Equal(t, []string{order.EventOrderPlaced, order.EventOrderStatusChanged}, r.feed.Types())
}

func TestRepository_UpdateStatus_UnknownOrder(t *testing.T) {
	r := newTestRepository()

	err := r.UpdateStatus(context.Background(), "ORD-404", order.StatusPreparing, order.Actor{})

	assert.ErrorIs(t, err, order.ErrOrderNotFound)
	assert.Empty(t, r.rt.UpdateCalls)
}

func TestRepository_UpdateStatus_UnknownStatus(t *testing.T) {
	r := newTestRepository()
	err := r.UpdateStatus(context.Background(), "ORD-1", "completed", order.Actor{})
	assert.ErrorIs(t, err, order.ErrUnknownStatus)
}

func TestRepository_UpdateStatus_StopsAtFirstFailure(t *testing.T) {
	r := newTestRepository()
	ctx := context.Background()
	require.NoError(t, r.Create(ctx, butterChicken()))
	setsBefore := len(r.rt.SetCalls)
	r.rt.UpdateErr = errors.New("rtdb unavailable")

	err := r.UpdateStatus(ctx, "ORD-100042", order.StatusPreparing, order.Actor{})

	var perr *PersistenceError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, StoreRealtime, perr.Store)
	assert.Len(t, r.rt.SetCalls, setsBefore, "history must not be appended")

	var stored order.Order
	require.True(t, r.docs.GetData(CollectionOrders, "ORD-100042", &stored))
	assert.Equal(t, order.StatusPreparing, stored.Status, "document store keeps the partial write")
}

func TestRepository_UpdateStatus_PublishFailureIsNotSurfaced(t *testing.T) {
	r := newTestRepository()
	ctx := context.Background()
	require.NoError(t, r.Create(ctx, butterChicken()))
	r.feed.Err = errors.New("broker down")

	assert.NoError(t, r.UpdateStatus(ctx, "ORD-100042", order.StatusPreparing, order.Actor{}))
}

// ============================================
// Read Tests
// ============================================

func TestRepository_FetchByID_Missing(t *testing.T) {
	r := newTestRepository()
	o, found, err := r.FetchByID(context.Background(), "ORD-404")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, o)
}

func TestRepository_FetchByID_StoreError(t *testing.T) {
	r := newTestRepository()
	r.docs.GetErr = errors.New("timeout")

	_, _, err := r.FetchByID(context.Background(), "ORD-1")

	assert.ErrorIs(t, err, ErrPersistence)
}

func TestRepository_FetchByUserAndDevice(t *testing.T) {
	r := newTestRepository()
	ctx := context.Background()
	a := butterChicken()
	b := butterChicken()
	b.ID, b.UserID, b.DeviceID = "ORD-2", "u2", "dev-1"
	require.NoError(t, r.Create(ctx, a))
	require.NoError(t, r.Create(ctx, b))

	mine, err := r.FetchByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "ORD-100042", mine[0].ID)

	device, err := r.FetchByDevice(ctx, "dev-1")
	require.NoError(t, err)
	assert.Len(t, device, 2)

	all, err := r.FetchAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestRepository_History_SortedOldestFirst(t *testing.T) {
	r := newTestRepository()
	ctx := context.Background()
	require.NoError(t, r.Create(ctx, butterChicken()))
	for _, s := range []order.Status{order.StatusPreparing, order.StatusReady, order.StatusOnTheWay} {
		require.NoError(t, r.UpdateStatus(ctx, "ORD-100042", s, order.Actor{}))
	}

	history, err := r.History(ctx, "ORD-100042")

	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, order.StatusPreparing, history[0].Status)
	assert.Equal(t, order.StatusOnTheWay, history[2].Status)
}

func TestRepository_History_SameTimestampKeepsEveryEntry(t *testing.T) {
	docs, rt := mocks.NewMockDocumentStore(), mocks.NewMockRealtimeStore()
	r := New(docs, rt, WithClock(func() time.Time { return testNow }))
	svc := order.NewService(r)
	ctx := context.Background()
	require.NoError(t, r.Create(ctx, butterChicken()))

	for i := 0; i < 2; i++ {
		_, err := svc.AdvanceOrder(ctx, "ORD-100042", order.Actor{ID: "admin-1"})
		require.NoError(t, err)
	}

	history, err := r.History(ctx, "ORD-100042")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, order.StatusPreparing, history[0].Status)
	assert.Equal(t, order.StatusReady, history[1].Status)
}

func TestRepository_History_Empty(t *testing.T) {
	r := newTestRepository()
	history, err := r.History(context.Background(), "ORD-1")
	require.NoError(t, err)
	assert.Empty(t, history)
}

// ============================================
// Remove Tests
// ============================================

func TestRepository_Remove(t *testing.T) {
	r := newTestRepository()
	ctx := context.Background()
	require.NoError(t, r.Create(ctx, butterChicken()))
	require.NoError(t, r.UpdateStatus(ctx, "ORD-100042", order.StatusPreparing, order.Actor{}))

	require.NoError(t, r.Remove(ctx, "ORD-100042"))

	_, found, err := r.FetchByID(ctx, "ORD-100042")
	require.NoError(t, err)
	assert.False(t, found)
	assert.False(t, r.rt.GetData(OrderPath("ORD-100042")).Exists())
	assert.False(t, r.rt.GetData(HistoryPath("ORD-100042")).Exists())
	assert.False(t, r.rt.GetData("user_orders/u1").Exists())

	var userIdx map[string]bool
	require.True(t, r.docs.GetData(CollectionUserOrders, "u1", &userIdx))
	assert.NotContains(t, userIdx, "ORD-100042")
	assert.Contains(t, r.feed.Types(), order.EventOrderDeleted)
}

func TestRepository_Remove_Missing(t *testing.T) {
	r := newTestRepository()
	assert.NoError(t, r.Remove(context.Background(), "ORD-404"))
}

// ============================================
// Search Tests
// ============================================

func TestRepository_Search(t *testing.T) {
	r := newTestRepository()
	ctx := context.Background()
	cheap := butterChicken()
	cheap.ID, cheap.Total = "ORD-1", 50
	cheap.CreatedAt = testNow.Add(-48 * time.Hour)
	pricey := butterChicken()
	pricey.ID, pricey.Total = "ORD-2", 900
	pricey.CreatedAt = testNow
	require.NoError(t, r.Create(ctx, cheap))
	require.NoError(t, r.Create(ctx, pricey))
	require.NoError(t, r.UpdateStatus(ctx, "ORD-2", order.StatusPreparing, order.Actor{}))

	got, err := r.Search(ctx, "u1", Filter{MinAmount: 100})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "ORD-2", got[0].ID)

	got, err = r.Search(ctx, "u1", Filter{To: testNow.Add(-time.Hour)})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "ORD-1", got[0].ID)

	got, err = r.Search(ctx, "", Filter{Status: order.StatusPreparing})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "ORD-2", got[0].ID)

	got, err = r.Search(ctx, "u1", Filter{Status: order.StatusDelivered})
	require.NoError(t, err)
	assert.Empty(t, got)
}
