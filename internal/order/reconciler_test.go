package order_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"mm-engine/internal/domain"
	"mm-engine/internal/exchangeiface"
	"mm-engine/internal/order"
)

type fakeOrderService struct {
	pending []exchangeiface.OrderDetail
	details map[string]exchangeiface.OrderDetail
	detailErr map[string]error
}

func (f *fakeOrderService) PlaceOrder(ctx context.Context, p exchangeiface.PlaceOrderParams) (exchangeiface.PlaceOrderResult, error) {
	return exchangeiface.PlaceOrderResult{}, nil
}
func (f *fakeOrderService) CancelOrder(ctx context.Context, symbol, orderID string) error { return nil }
func (f *fakeOrderService) BatchCancelOrders(ctx context.Context, symbol string, orderIDs []string) (exchangeiface.CancelResult, error) {
	return exchangeiface.CancelResult{}, nil
}
func (f *fakeOrderService) GetPendingOrders(ctx context.Context, symbol string) ([]exchangeiface.OrderDetail, error) {
	return f.pending, nil
}
func (f *fakeOrderService) GetOrderDetail(ctx context.Context, symbol, orderID string) (exchangeiface.OrderDetail, error) {
	if err, ok := f.detailErr[orderID]; ok {
		return exchangeiface.OrderDetail{}, err
	}
	return f.details[orderID], nil
}

func TestReconcileMarksDisappearedFilledOrder(t *testing.T) {
	tr := order.NewTracker()
	tr.Add(newBuy("b1", 1))

	svc := &fakeOrderService{
		pending: nil,
		details: map[string]exchangeiface.OrderDetail{"b1": {OrderID: "b1", State: "filled"}},
	}
	r := order.NewReconciler(tr, svc)
	var filled domain.TrackedOrder
	r.OnFill(func(o domain.TrackedOrder) { filled = o })

	require.NoError(t, r.Reconcile(context.Background(), "BTCUSDT"))
	o, _ := tr.Get("b1")
	require.Equal(t, domain.OrderFilled, o.Status)
	require.Equal(t, "b1", filled.OrderID)
}

func TestReconcileMarksDisappearedCancelledOrder(t *testing.T) {
	tr := order.NewTracker()
	tr.Add(newBuy("b1", 1))

	svc := &fakeOrderService{
		details: map[string]exchangeiface.OrderDetail{"b1": {OrderID: "b1", State: "cancelled"}},
	}
	r := order.NewReconciler(tr, svc)
	var cancelled bool
	r.OnCancel(func(o domain.TrackedOrder) { cancelled = true })

	require.NoError(t, r.Reconcile(context.Background(), "BTCUSDT"))
	o, _ := tr.Get("b1")
	require.Equal(t, domain.OrderCancelled, o.Status)
	require.True(t, cancelled)
}

func TestReconcileLeavesOrderStillOnExchangeUntouched(t *testing.T) {
	tr := order.NewTracker()
	tr.Add(newBuy("b1", 1))

	svc := &fakeOrderService{pending: []exchangeiface.OrderDetail{{OrderID: "b1", State: "live"}}}
	r := order.NewReconciler(tr, svc)

	require.NoError(t, r.Reconcile(context.Background(), "BTCUSDT"))
	o, _ := tr.Get("b1")
	require.Equal(t, domain.OrderPending, o.Status)
}

func TestReconcileFailedDetailLookupNeverAssumesFill(t *testing.T) {
	tr := order.NewTracker()
	tr.Add(newBuy("b1", 1))

	svc := &fakeOrderService{detailErr: map[string]error{"b1": domain.NewError(domain.KindExchangeTransport, "detail", nil)}}
	r := order.NewReconciler(tr, svc)

	require.NoError(t, r.Reconcile(context.Background(), "BTCUSDT"))
	o, _ := tr.Get("b1")
	require.Equal(t, domain.OrderPending, o.Status)
}

func TestReconcilePartiallyFilledStaysPending(t *testing.T) {
	tr := order.NewTracker()
	tr.Add(newSell("s1", "100", "1", 1))

	svc := &fakeOrderService{details: map[string]exchangeiface.OrderDetail{"s1": {OrderID: "s1", State: "partially_filled"}}}
	r := order.NewReconciler(tr, svc)

	require.NoError(t, r.Reconcile(context.Background(), "BTCUSDT"))
	o, _ := tr.Get("s1")
	require.Equal(t, domain.OrderPending, o.Status)
}
