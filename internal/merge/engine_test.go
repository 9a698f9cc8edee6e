package merge_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"mm-engine/internal/domain"
	"mm-engine/internal/exchangeiface"
	"mm-engine/internal/merge"
	"mm-engine/internal/order"
)

type fakeOrderService struct {
	cancelResult exchangeiface.CancelResult
	cancelErr    error
	placeResult  exchangeiface.PlaceOrderResult
	placeErr     error
	placedParams []exchangeiface.PlaceOrderParams
}

func (f *fakeOrderService) PlaceOrder(ctx context.Context, p exchangeiface.PlaceOrderParams) (exchangeiface.PlaceOrderResult, error) {
	f.placedParams = append(f.placedParams, p)
	return f.placeResult, f.placeErr
}
func (f *fakeOrderService) CancelOrder(ctx context.Context, symbol, orderID string) error { return nil }
func (f *fakeOrderService) BatchCancelOrders(ctx context.Context, symbol string, orderIDs []string) (exchangeiface.CancelResult, error) {
	return f.cancelResult, f.cancelErr
}
func (f *fakeOrderService) GetPendingOrders(ctx context.Context, symbol string) ([]exchangeiface.OrderDetail, error) {
	return nil, nil
}
func (f *fakeOrderService) GetOrderDetail(ctx context.Context, symbol, orderID string) (exchangeiface.OrderDetail, error) {
	return exchangeiface.OrderDetail{}, nil
}

func seedSells(tr *order.Tracker) {
	tr.Add(&domain.TrackedOrder{OrderID: "s1", Side: domain.SideSell, Status: domain.OrderPending, Price: "100.1", Size: "1", CreatedAt: 1})
	tr.Add(&domain.TrackedOrder{OrderID: "s2", Side: domain.SideSell, Status: domain.OrderPending, Price: "100.3", Size: "2", CreatedAt: 2})
	tr.Add(&domain.TrackedOrder{OrderID: "s3", Side: domain.SideSell, Status: domain.OrderPending, Price: "100.5", Size: "3", CreatedAt: 3})
}

func TestMergeComputesWeightedAveragePrice(t *testing.T) {
	tr := order.NewTracker()
	seedSells(tr)

	svc := &fakeOrderService{
		cancelResult: exchangeiface.CancelResult{Succeeded: []string{"s1", "s2"}},
		placeResult:  exchangeiface.PlaceOrderResult{OrderID: "merged-1"},
	}
	var events []domain.StrategyEvent
	eng := merge.New("BTCUSDT", tr, svc, nil, 1, 0)
	eng.OnEvent(func(ev domain.StrategyEvent) { events = append(events, ev) })

	require.NoError(t, eng.Run(context.Background(), 2))
	require.Len(t, svc.placedParams, 1)
	require.Equal(t, "100.2", svc.placedParams[0].Price)
	require.Equal(t, "3", svc.placedParams[0].Size)

	require.Len(t, events, 1)
	require.Equal(t, domain.EventOrdersMerged, events[0].Type)
	require.Equal(t, 2, events[0].Data["mergedCount"])

	merged, ok := tr.Get("merged-1")
	require.True(t, ok)
	require.Equal(t, domain.OrderPending, merged.Status)
	require.Empty(t, merged.LinkedOrderID)

	_, stillTracked := tr.Get("s1")
	require.False(t, stillTracked, "merged-away sell should be removed, not just cancelled")
}

func TestMergeFailsWhenNoCancellationsSucceed(t *testing.T) {
	tr := order.NewTracker()
	seedSells(tr)

	svc := &fakeOrderService{cancelResult: exchangeiface.CancelResult{}}
	var events []domain.StrategyEvent
	eng := merge.New("BTCUSDT", tr, svc, nil, 1, 0)
	eng.OnEvent(func(ev domain.StrategyEvent) { events = append(events, ev) })

	err := eng.Run(context.Background(), 2)
	require.ErrorIs(t, err, domain.ErrStrategyMergeFailed)
	require.Empty(t, svc.placedParams)
	require.Len(t, events, 1)
}

func TestMergeSkipsWhenFewerThanThresholdPending(t *testing.T) {
	tr := order.NewTracker()
	tr.Add(&domain.TrackedOrder{OrderID: "s1", Side: domain.SideSell, Status: domain.OrderPending, Price: "100", Size: "1", CreatedAt: 1})

	svc := &fakeOrderService{}
	eng := merge.New("BTCUSDT", tr, svc, nil, 1, 0)

	require.NoError(t, eng.Run(context.Background(), 2))
	require.Empty(t, svc.placedParams)
}

func TestShouldTriggerAtThreshold(t *testing.T) {
	require.True(t, merge.ShouldTrigger(3, 3))
	require.False(t, merge.ShouldTrigger(2, 3))
}
