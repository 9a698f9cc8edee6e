package order

import (
	"context"

	"mm-engine/internal/domain"
	"mm-engine/internal/exchangeiface"
)

// Reconciler runs the two-step protocol: first it diffs the tracker's
// pending set against the exchange's pending-order list to find locally
// tracked orders that have disappeared from the exchange side, then it
// looks up each disappeared order's detail and dispatches on its
// authoritative state. A failed detail lookup never causes a fill
// assumption; the order is left pending and retried on the next tick.
type Reconciler struct {
	tracker *Tracker
	orders  exchangeiface.OrderService
	onFill  func(o domain.TrackedOrder)
	onCancel func(o domain.TrackedOrder)
}

func NewReconciler(tracker *Tracker, orders exchangeiface.OrderService) *Reconciler {
	return &Reconciler{tracker: tracker, orders: orders}
}

// OnFill registers the callback invoked after an order is marked filled.
func (r *Reconciler) OnFill(fn func(o domain.TrackedOrder)) { r.onFill = fn }

// OnCancel registers the callback invoked after an order is marked
// cancelled.
func (r *Reconciler) OnCancel(fn func(o domain.TrackedOrder)) { r.onCancel = fn }

// Reconcile runs one tick of the two-step protocol for symbol.
func (r *Reconciler) Reconcile(ctx context.Context, symbol string) error {
	localPending := r.tracker.PendingOrderIDs()
	if len(localPending) == 0 {
		return nil
	}

	exchangePending, err := r.orders.GetPendingOrders(ctx, symbol)
	if err != nil {
		return domain.NewError(domain.KindExchangeTransport, "get_pending_orders", err)
	}

	disappeared := findDisappeared(localPending, exchangePending)
	for _, orderID := range disappeared {
		r.reconcileOne(ctx, symbol, orderID)
	}
	return nil
}

// findDisappeared returns local order IDs absent from the exchange's
// current pending list.
func findDisappeared(localPending []string, exchangePending []exchangeiface.OrderDetail) []string {
	onExchange := make(map[string]struct{}, len(exchangePending))
	for _, d := range exchangePending {
		onExchange[d.OrderID] = struct{}{}
	}
	out := make([]string, 0)
	for _, id := range localPending {
		if _, ok := onExchange[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

// reconcileOne performs the detail lookup for a single disappeared order
// and dispatches on its authoritative state. A transport failure leaves
// the order pending for the next tick rather than guessing its outcome.
func (r *Reconciler) reconcileOne(ctx context.Context, symbol, orderID string) {
	detail, err := r.orders.GetOrderDetail(ctx, symbol, orderID)
	if err != nil {
		return
	}

	switch detail.State {
	case "live", "new", "partially_filled":
		// still resting on the book despite not appearing in the pending
		// list snapshot; leave pending, the next tick will re-check.
		return
	case "filled":
		if r.tracker.SetStatus(orderID, domain.OrderFilled, nil) {
			if o, ok := r.tracker.Get(orderID); ok && r.onFill != nil {
				r.onFill(o)
			}
		}
	case "cancelled", "canceled":
		if r.tracker.SetStatus(orderID, domain.OrderCancelled, nil) {
			if o, ok := r.tracker.Get(orderID); ok && r.onCancel != nil {
				r.onCancel(o)
			}
		}
	}
}
