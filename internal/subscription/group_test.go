package subscription

import (
	"context"
	"testing"

	"github.com/example/swirly-orders/internal/domain/order"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroup_SubscribeTwiceDeliversOnce(t *testing.T) {
	f := newTestManager()
	ctx := context.Background()
	require.NoError(t, f.repo.Create(ctx, newOrder("ORD-1", "u1")))

	sink := &orderSink{}
	g := f.mgr.NewGroup(sink.onUpdate, sink.onError)
	defer g.Close()

	g.Subscribe("ORD-1")
	g.Subscribe("ORD-1")
	before := sink.count()

	require.NoError(t, f.repo.UpdateStatus(ctx, "ORD-1", order.StatusPreparing, order.Actor{}))

	assert.Equal(t, before+1, sink.count(), "exactly one callback per change")
	assert.Equal(t, 1, f.rt.ListenerCount())
}

func TestGroup_ResubscribeAllDiffs(t *testing.T) {
	f := newTestManager()
	ctx := context.Background()
	for _, id := range []string{"ORD-1", "ORD-2", "ORD-3"} {
		require.NoError(t, f.repo.Create(ctx, newOrder(id, "u1")))
	}

	sink := &orderSink{}
	g := f.mgr.NewGroup(sink.onUpdate, sink.onError)
	defer g.Close()

	g.ResubscribeAll([]string{"ORD-1", "ORD-2"})
	assert.Equal(t, []string{"ORD-1", "ORD-2"}, g.Active())

	g.ResubscribeAll([]string{"ORD-2", "ORD-3"})
	assert.Equal(t, []string{"ORD-2", "ORD-3"}, g.Active())
	assert.Equal(t, 2, f.rt.ListenerCount())

	before := sink.count()
	require.NoError(t, f.repo.UpdateStatus(ctx, "ORD-1", order.StatusPreparing, order.Actor{}))
	assert.Equal(t, before, sink.count(), "ORD-1 was dropped from the group")

	require.NoError(t, f.repo.UpdateStatus(ctx, "ORD-2", order.StatusPreparing, order.Actor{}))
	assert.Equal(t, before+1, sink.count(), "ORD-2 was kept, not doubled")
}

func TestGroup_UnsubscribeAndClose(t *testing.T) {
	f := newTestManager()
	ctx := context.Background()
	require.NoError(t, f.repo.Create(ctx, newOrder("ORD-1", "u1")))
	require.NoError(t, f.repo.Create(ctx, newOrder("ORD-2", "u1")))

	sink := &orderSink{}
	g := f.mgr.NewGroup(sink.onUpdate, sink.onError)
	g.Subscribe("ORD-1")
	g.Subscribe("ORD-2")

	g.Unsubscribe("ORD-1")
	g.Unsubscribe("ORD-404")
	assert.Equal(t, []string{"ORD-2"}, g.Active())

	g.Close()
	g.Subscribe("ORD-1")
	assert.Empty(t, g.Active())
	assert.Equal(t, 0, f.rt.ListenerCount())
}
