// Package merge implements the scalping-only order-merge engine: when
// pending sells saturate maxPendingOrders, it collapses the oldest
// mergeThreshold of them into a single size-weighted-average sell so the
// book doesn't accumulate an unbounded ladder of stale asks.
package merge

import (
	"context"
	"sync/atomic"

	"mm-engine/internal/domain"
	"mm-engine/internal/exchangeiface"
	"mm-engine/internal/order"
	"mm-engine/internal/persistence"
)

const batchCancelChunkSize = 50

// Engine runs the merge protocol for one strategy instance.
type Engine struct {
	symbol      string
	tracker     *order.Tracker
	orders      exchangeiface.OrderService
	persist     *persistence.Worker
	pricePlace  int
	volumePlace int
	inFlight    atomic.Bool
	onEvent     func(domain.StrategyEvent)
}

func New(symbol string, tracker *order.Tracker, orders exchangeiface.OrderService, persist *persistence.Worker, pricePlace, volumePlace int) *Engine {
	return &Engine{symbol: symbol, tracker: tracker, orders: orders, persist: persist, pricePlace: pricePlace, volumePlace: volumePlace}
}

// OnEvent registers the callback invoked with ORDERS_MERGED events and
// with STRATEGY_ERROR events whose reason is STRATEGY_MERGE_FAILED.
func (e *Engine) OnEvent(fn func(domain.StrategyEvent)) { e.onEvent = fn }

// ShouldTrigger reports whether the current pending-sell count warrants a
// merge.
func ShouldTrigger(pendingSellCount, maxPendingOrders int) bool {
	return pendingSellCount >= maxPendingOrders
}

// Run executes one merge pass: collapse the oldest mergeThreshold pending
// sells into a single averaged order. Re-entry is blocked by a latch so a
// slow batch-cancel round-trip never overlaps with another merge pass.
func (e *Engine) Run(ctx context.Context, mergeThreshold int) error {
	if !e.inFlight.CompareAndSwap(false, true) {
		return nil
	}
	defer e.inFlight.Store(false)

	sells := e.tracker.PendingSells()
	if len(sells) < mergeThreshold {
		return nil
	}
	batch := sells[:mergeThreshold]

	totalSize := 0.0
	weightedPrice := 0.0
	orderIDs := make([]string, 0, len(batch))
	for _, s := range batch {
		price, err := domain.ParseDecimal(s.Price)
		if err != nil {
			return domain.NewError(domain.KindValidation, "merge_parse_price", err)
		}
		size, err := domain.ParseDecimal(s.Size)
		if err != nil {
			return domain.NewError(domain.KindValidation, "merge_parse_size", err)
		}
		totalSize += size
		weightedPrice += price * size
		orderIDs = append(orderIDs, s.OrderID)
	}
	if totalSize == 0 {
		return nil
	}
	avgPrice := domain.Round(weightedPrice/totalSize, e.pricePlace)
	mergedSize := domain.Round(totalSize, e.volumePlace)

	cancelled, err := e.batchCancel(ctx, orderIDs)
	if err != nil {
		return err
	}
	if len(cancelled) == 0 {
		e.emit(domain.StrategyEvent{Type: domain.EventStrategyError, Data: map[string]any{
			"reason": "STRATEGY_MERGE_FAILED",
		}})
		return domain.ErrStrategyMergeFailed
	}
	for _, id := range cancelled {
		e.tracker.SetStatus(id, domain.OrderCancelled, nil)
		if e.persist != nil {
			e.persist.PersistOrderStatusChange(id, domain.OrderCancelled, nil, nil)
		}
		// Merged-away sells are folded into the new averaged order below;
		// nothing else needs to see their cancelled state, so drop them
		// now instead of waiting for Cleanup's history cap.
		e.tracker.Remove(id)
	}

	result, err := e.orders.PlaceOrder(ctx, exchangeiface.PlaceOrderParams{
		Symbol:       e.symbol,
		Side:         domain.SideSell,
		Price:        domain.FormatAt(avgPrice, e.pricePlace),
		Size:         domain.FormatAt(mergedSize, e.volumePlace),
		Force:        exchangeiface.ForcePostOnly,
		TradeSide:    exchangeiface.TradeSideClose,
		HasTradeSide: true,
	})
	if err != nil {
		return err
	}

	// The merged order intentionally does not inherit any cancelled
	// sell's linkedOrderId: the weighted-average order represents a new
	// exit, not a continuation of any one buy's pairing.
	e.tracker.Add(&domain.TrackedOrder{
		OrderID: result.OrderID,
		Side:    domain.SideSell,
		Price:   domain.FormatAt(avgPrice, e.pricePlace),
		Size:    domain.FormatAt(mergedSize, e.volumePlace),
		Status:  domain.OrderPending,
	})

	e.emit(domain.StrategyEvent{Type: domain.EventOrdersMerged, Data: map[string]any{
		"mergedCount": len(cancelled),
		"newOrderId":  result.OrderID,
	}})
	return nil
}

// batchCancel cancels orderIDs in chunks of 50, collecting the union of
// succeeded IDs across chunks; a chunk-level failure does not abort the
// remaining chunks.
func (e *Engine) batchCancel(ctx context.Context, orderIDs []string) ([]string, error) {
	var cancelled []string
	for start := 0; start < len(orderIDs); start += batchCancelChunkSize {
		end := start + batchCancelChunkSize
		if end > len(orderIDs) {
			end = len(orderIDs)
		}
		result, err := e.orders.BatchCancelOrders(ctx, e.symbol, orderIDs[start:end])
		if err != nil {
			continue
		}
		cancelled = append(cancelled, result.Succeeded...)
	}
	return cancelled, nil
}

func (e *Engine) emit(ev domain.StrategyEvent) {
	if e.onEvent != nil {
		e.onEvent(ev)
	}
}
