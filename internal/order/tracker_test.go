package order_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"mm-engine/internal/domain"
	"mm-engine/internal/order"
)

func newBuy(id string, createdAt int64) *domain.TrackedOrder {
	return &domain.TrackedOrder{OrderID: id, Side: domain.SideBuy, Status: domain.OrderPending, Price: "100", Size: "1", CreatedAt: createdAt}
}

func newSell(id string, price, size string, createdAt int64) *domain.TrackedOrder {
	return &domain.TrackedOrder{OrderID: id, Side: domain.SideSell, Status: domain.OrderPending, Price: price, Size: size, CreatedAt: createdAt}
}

func TestTrackerActiveBuySlot(t *testing.T) {
	tr := order.NewTracker()
	tr.Add(newBuy("b1", 1))

	active, ok := tr.ActiveBuy()
	require.True(t, ok)
	require.Equal(t, "b1", active.OrderID)

	tr.SetStatus("b1", domain.OrderFilled, nil)
	_, ok = tr.ActiveBuy()
	require.False(t, ok)
}

func TestTrackerPendingSellsOrderedByCreatedAt(t *testing.T) {
	tr := order.NewTracker()
	tr.Add(newSell("s2", "110", "1", 20))
	tr.Add(newSell("s1", "105", "1", 10))

	sells := tr.PendingSells()
	require.Len(t, sells, 2)
	require.Equal(t, "s1", sells[0].OrderID)
	require.Equal(t, "s2", sells[1].OrderID)
}

func TestTrackerTotalPendingSellNotional(t *testing.T) {
	tr := order.NewTracker()
	tr.Add(newSell("s1", "100", "2", 1))
	tr.Add(newSell("s2", "50", "4", 2))

	require.InDelta(t, 400.0, tr.TotalPendingSellNotional(), 1e-9)
}

func TestTrackerSetStatusRejectsTerminalRegression(t *testing.T) {
	tr := order.NewTracker()
	tr.Add(newSell("s1", "100", "1", 1))
	require.True(t, tr.SetStatus("s1", domain.OrderFilled, nil))
	require.False(t, tr.SetStatus("s1", domain.OrderCancelled, nil))

	o, _ := tr.Get("s1")
	require.Equal(t, domain.OrderFilled, o.Status)
}

func TestTrackerSetLinkedOrderIDOnce(t *testing.T) {
	tr := order.NewTracker()
	tr.Add(newBuy("b1", 1))
	tr.SetLinkedOrderID("b1", "s1")
	tr.SetLinkedOrderID("b1", "s2")

	o, _ := tr.Get("b1")
	require.Equal(t, "s1", o.LinkedOrderID)
}

func TestTrackerCleanupKeepsPendingRegardlessOfCap(t *testing.T) {
	tr := order.NewTracker()
	for i := 0; i < order.MaxNonPendingHistory+10; i++ {
		o := newSell(string(rune('a'))+string(rune(i)), "100", "1", int64(i))
		o.Status = domain.OrderFilled
		tr.Add(o)
	}
	tr.Add(newBuy("still-pending", 0))

	tr.Cleanup()
	list := tr.List()
	require.LessOrEqual(t, len(list)-1, order.MaxNonPendingHistory)

	_, ok := tr.Get("still-pending")
	require.True(t, ok)
}
