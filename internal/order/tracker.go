package order

import (
	"sort"
	"sync"

	"mm-engine/internal/domain"
)

// MaxNonPendingHistory bounds the tracker's footprint after cleanup; all
// pending orders are retained regardless of this cap.
const MaxNonPendingHistory = 500

// Tracker is the OrderTracker: a set of domain.TrackedOrder keyed by
// orderId, plus an activeBuyOrderId slot (at most one outstanding buy).
// Safe for concurrent use by both scalping loops and the persistence
// worker; no lock is ever held across exchange I/O by callers of this
// type.
type Tracker struct {
	mu            sync.RWMutex
	orders        map[string]*domain.TrackedOrder
	activeBuyID   string
}

func NewTracker() *Tracker {
	return &Tracker{orders: make(map[string]*domain.TrackedOrder)}
}

// Add registers a newly placed order. If it is a pending buy, it becomes
// the active buy, replacing whichever buy held that slot before; Add does
// not check ActiveBuy itself, so the one-pending-buy rule of the scalping
// engine rests on its caller checking ActiveBuy before placing.
func (t *Tracker) Add(o *domain.TrackedOrder) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.orders[o.OrderID] = o
	if o.Side == domain.SideBuy && o.Status == domain.OrderPending {
		t.activeBuyID = o.OrderID
	}
}

func (t *Tracker) Get(orderID string) (domain.TrackedOrder, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	o, ok := t.orders[orderID]
	if !ok {
		return domain.TrackedOrder{}, false
	}
	return *o, true
}

// ActiveBuy returns the current outstanding buy, if any. Invariant: if
// non-null, it references a pending buy in the set.
func (t *Tracker) ActiveBuy() (domain.TrackedOrder, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.activeBuyID == "" {
		return domain.TrackedOrder{}, false
	}
	o, ok := t.orders[t.activeBuyID]
	if !ok || o.Status != domain.OrderPending {
		return domain.TrackedOrder{}, false
	}
	return *o, true
}

// PendingSells returns pending sells ordered by createdAt ascending.
func (t *Tracker) PendingSells() []domain.TrackedOrder {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]domain.TrackedOrder, 0)
	for _, o := range t.orders {
		if o.Side == domain.SideSell && o.Status == domain.OrderPending {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out
}

// PendingOrderIDs snapshots the local pending set. The reconciler must
// call this before fetching the exchange's pending list so an order
// placed after the snapshot is never treated as disappeared in the same
// tick.
func (t *Tracker) PendingOrderIDs() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0)
	for id, o := range t.orders {
		if o.Status == domain.OrderPending {
			out = append(out, id)
		}
	}
	return out
}

// TotalPendingSellNotional sums price*size over pending sells, used as the
// current position notional for the risk controller's position cap.
func (t *Tracker) TotalPendingSellNotional() float64 {
	sells := t.PendingSells()
	total := 0.0
	for _, s := range sells {
		price, _ := domain.ParseDecimal(s.Price)
		size, _ := domain.ParseDecimal(s.Size)
		total += price * size
	}
	return total
}

// SetStatus applies a status transition to orderID, refusing to regress a
// terminal status and clearing the active-buy slot if that order is the
// one being marked terminal.
func (t *Tracker) SetStatus(orderID string, status domain.OrderStatus, filledAt *int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	o, ok := t.orders[orderID]
	if !ok {
		return false
	}
	if !o.SetStatus(status) {
		return false
	}
	if filledAt != nil {
		o.FilledAt = filledAt
	}
	if status.Terminal() && t.activeBuyID == orderID {
		t.activeBuyID = ""
	}
	return true
}

// SetLinkedOrderID sets a buy's linkedOrderId once; subsequent calls are
// no-ops, matching the invariant that it never changes after being set.
func (t *Tracker) SetLinkedOrderID(orderID, linkedOrderID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	o, ok := t.orders[orderID]
	if !ok || o.LinkedOrderID != "" {
		return
	}
	o.LinkedOrderID = linkedOrderID
}

// Cleanup keeps at most MaxNonPendingHistory non-pending orders; pending
// orders are never evicted.
func (t *Tracker) Cleanup() {
	t.mu.Lock()
	defer t.mu.Unlock()

	var nonPending []*domain.TrackedOrder
	for _, o := range t.orders {
		if o.Status != domain.OrderPending {
			nonPending = append(nonPending, o)
		}
	}
	if len(nonPending) <= MaxNonPendingHistory {
		return
	}
	sort.Slice(nonPending, func(i, j int) bool { return nonPending[i].CreatedAt < nonPending[j].CreatedAt })
	evict := len(nonPending) - MaxNonPendingHistory
	for i := 0; i < evict; i++ {
		delete(t.orders, nonPending[i].OrderID)
	}
}

// Remove deletes an order outright. Used by the merge engine once a
// merged-away sell's cancellation has been persisted: that sell is folded
// into the new averaged order and nothing downstream needs to see it again.
func (t *Tracker) Remove(orderID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.orders, orderID)
	if t.activeBuyID == orderID {
		t.activeBuyID = ""
	}
}

// List returns every tracked order, a value copy safe for the persistence
// worker and UI snapshots.
func (t *Tracker) List() []domain.TrackedOrder {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]domain.TrackedOrder, 0, len(t.orders))
	for _, o := range t.orders {
		out = append(out, *o)
	}
	return out
}
