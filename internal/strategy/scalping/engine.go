// Package scalping implements the maker-ladder scalping engine: a single
// outstanding buy tracked against the best bid, each fill paired with a
// sell at buyPrice+priceSpread.
package scalping

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"mm-engine/internal/alert"
	"mm-engine/internal/domain"
	"mm-engine/internal/exchangeiface"
	"mm-engine/internal/logging"
	"mm-engine/internal/merge"
	"mm-engine/internal/metrics"
	"mm-engine/internal/order"
	"mm-engine/internal/persistence"
	"mm-engine/internal/risk"
)

const (
	minPollInterval        = 200 * time.Millisecond
	minOrderCheckInterval  = 500 * time.Millisecond
	buyGraceAge            = 3 * time.Second
	postOnlyCancelCooldown = 3 * time.Second
	maxConsecutiveErrors   = 5
	errorRestoreAfter      = 30 * time.Second
	sellSettleDelay        = 3 * time.Second
)

var sellRetryBackoff = []time.Duration{2 * time.Second, 3 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second, 3 * time.Second, 0}

// Deps bundles everything the engine needs but does not construct itself;
// the strategy manager assembles one Deps per start and hands it in.
type Deps struct {
	Config     domain.ScalpingConfig
	Spec       domain.InstrumentSpec
	Services   exchangeiface.Services
	Persist    *persistence.Worker
	Metrics    *metrics.Registry
	Log        *logging.Logger
	Alerts     *alert.Manager
	PendingOnStart []domain.TrackedOrder
}

// Engine is one running scalping instance.
type Engine struct {
	cfg      domain.ScalpingConfig
	spec     domain.InstrumentSpec
	services exchangeiface.Services
	persist  *persistence.Worker
	metrics  *metrics.Registry
	log      *logging.Logger

	tracker     *order.Tracker
	reconciler  *order.Reconciler
	riskCtl     *risk.Controller
	mergeEngine *merge.Engine
	events      *domain.EventRing

	state atomic.Value // domain.EngineState

	consecutivePostOnlyCancels atomic.Int32
	lastBuyCancelledAt         atomic.Int64
	consecutiveErrorsA         atomic.Int32
	consecutiveErrorsB         atomic.Int32

	mu       sync.Mutex
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	lastErr  string
}

func New(deps Deps) *Engine {
	tracker := order.NewTracker()
	for _, o := range deps.PendingOnStart {
		cp := o
		tracker.Add(&cp)
	}
	e := &Engine{
		cfg:      deps.Config,
		spec:     deps.Spec,
		services: deps.Services,
		persist:  deps.Persist,
		metrics:  deps.Metrics,
		log:      deps.Log,
		tracker:  tracker,
		events:   domain.NewEventRing(domain.DefaultEventRingCapacity),
	}
	e.reconciler = order.NewReconciler(tracker, deps.Services.Order)
	e.reconciler.OnFill(e.handleDisappearedFill)
	e.reconciler.OnCancel(e.handleDisappearedCancel)
	e.riskCtl = risk.NewController(risk.ControllerConfig{
		MaxDailyLoss:       deps.Config.MaxDailyLoss,
		MaxDrawdownPercent: deps.Config.MaxDrawdownPercent,
		MaxPosition:        deps.Config.MaxPosition,
		CooldownMs:         deps.Config.CooldownMs,
		InitialEquity:      deps.Config.Notional,
	}, deps.Metrics, deps.Alerts)
	e.mergeEngine = merge.New(deps.Config.Symbol, tracker, deps.Services.Order, deps.Persist, deps.Config.PricePrecision, deps.Config.SizePrecision)
	e.mergeEngine.OnEvent(e.pushEvent)
	e.state.Store(domain.StateStopped)
	return e
}

func (e *Engine) State() domain.EngineState { return e.state.Load().(domain.EngineState) }

func (e *Engine) Events(n int) []domain.StrategyEvent { return e.events.Tail(n) }

// Start transitions STOPPED -> STARTING -> RUNNING and arms both loops.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.state.Store(domain.StateStarting)

	if e.cfg.Notional <= 0 || e.cfg.PriceSpread <= 0 {
		e.state.Store(domain.StateStopped)
		return domain.ErrConfigInvalid
	}

	e.pushEvent(domain.StrategyEvent{Type: domain.EventStrategyStarted, Data: map[string]any{"symbol": e.cfg.Symbol}})

	e.advisorCheckFeeCoverage()

	e.state.Store(domain.StateRunning)

	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	pollInterval := clampInterval(time.Duration(e.cfg.PollIntervalMs)*time.Millisecond, minPollInterval)
	checkInterval := clampInterval(time.Duration(e.cfg.OrderCheckIntervalMs)*time.Millisecond, minOrderCheckInterval)

	e.wg.Add(2)
	go e.runLoopA(runCtx, pollInterval)
	go e.runLoopB(runCtx, checkInterval)
	return nil
}

// Stop cancels the active buy best-effort, stops both loops, and
// transitions to STOPPED.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.state.Store(domain.StateStopping)
	if buy, ok := e.tracker.ActiveBuy(); ok {
		_ = e.services.Order.CancelOrder(ctx, e.cfg.Symbol, buy.OrderID)
	}
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()

	e.state.Store(domain.StateStopped)
	e.pushEvent(domain.StrategyEvent{Type: domain.EventStrategyStopped})
	return nil
}

// EmergencyStop cancels everything pending via batch cancel without going
// through STOPPING, then stops the loops.
func (e *Engine) EmergencyStop(ctx context.Context) error {
	e.mu.Lock()
	pendingIDs := e.tracker.PendingOrderIDs()
	e.mu.Unlock()

	for start := 0; start < len(pendingIDs); start += 50 {
		end := start + 50
		if end > len(pendingIDs) {
			end = len(pendingIDs)
		}
		_, _ = e.services.Order.BatchCancelOrders(ctx, e.cfg.Symbol, pendingIDs[start:end])
	}

	e.mu.Lock()
	if e.cancel != nil {
		e.cancel()
	}
	e.mu.Unlock()
	e.wg.Wait()

	e.state.Store(domain.StateStopped)
	e.pushEvent(domain.StrategyEvent{Type: domain.EventEmergencyStop})
	return nil
}

func (e *Engine) runLoopA(ctx context.Context, interval time.Duration) {
	defer e.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.tickLoopA(ctx); err != nil {
				e.onLoopError(&e.consecutiveErrorsA, err)
			} else {
				e.consecutiveErrorsA.Store(0)
			}
		}
	}
}

func (e *Engine) tickLoopA(ctx context.Context) error {
	notional := e.tracker.TotalPendingSellNotional()
	if denial := e.riskCtl.Evaluate(notional); denial != nil {
		return nil
	}

	bidStr, err := e.services.Market.GetBestBid(ctx, e.cfg.Symbol)
	if err != nil {
		return err
	}
	bid, err := domain.ParseDecimal(bidStr)
	if err != nil {
		return err
	}

	tickSize := math.Pow10(-e.cfg.PricePrecision)

	if active, ok := e.tracker.ActiveBuy(); ok {
		price, _ := domain.ParseDecimal(active.Price)
		age := time.Since(time.UnixMilli(active.CreatedAt))
		overpaying := price > bid+2*e.cfg.PriceSpread
		tooFarBelow := bid-price > 5*e.cfg.PriceSpread
		if age >= buyGraceAge && (overpaying || tooFarBelow) {
			_ = e.services.Order.CancelOrder(ctx, e.cfg.Symbol, active.OrderID)
		}
		return nil
	}

	lastCancel := e.lastBuyCancelledAt.Load()
	if lastCancel != 0 && time.Since(time.UnixMilli(lastCancel)) < postOnlyCancelCooldown {
		return nil
	}

	cancels := e.consecutivePostOnlyCancels.Load()
	offset := tickSize * math.Min(float64(2+cancels), 10)
	price := domain.Round(bid-offset, e.cfg.PricePrecision)
	if price <= 0 {
		return nil
	}

	size := domain.RoundDown(e.cfg.Notional/price, e.cfg.SizePrecision)
	minStep := math.Pow10(-e.cfg.SizePrecision)
	if size < e.spec.MinTradeNum || size < minStep {
		e.pushEvent(domain.StrategyEvent{Type: domain.EventStrategyError, Data: map[string]any{
			"reason": "size_below_minimum", "size": size,
		}})
		return nil
	}

	force := exchangeiface.ForcePostOnly
	if cancels >= 5 {
		force = exchangeiface.ForceGTC
	}

	params := exchangeiface.PlaceOrderParams{
		Symbol:    e.cfg.Symbol,
		Side:      domain.SideBuy,
		Price:     domain.FormatAt(price, e.cfg.PricePrecision),
		Size:      domain.FormatAt(size, e.cfg.SizePrecision),
		Force:     force,
		ClientOID: uuid.NewString(),
	}
	if e.cfg.TradingType == domain.TradingDerivatives {
		if side := e.openTradeSide(); side != "" {
			params.HasTradeSide = true
			params.TradeSide = side
		}
		params.ProductType = e.cfg.ProductType
		params.MarginMode = e.cfg.MarginMode
		params.MarginCoin = e.cfg.MarginCoin
	}

	result, err := e.services.Order.PlaceOrder(ctx, params)
	if err != nil {
		return err
	}

	now := time.Now().UnixMilli()
	e.tracker.Add(&domain.TrackedOrder{
		OrderID:   result.OrderID,
		ClientOID: params.ClientOID,
		Side:      domain.SideBuy,
		Price:     params.Price,
		Size:      params.Size,
		Status:    domain.OrderPending,
		CreatedAt: now,
	})
	if e.persist != nil {
		e.persist.PersistNewOrder(domain.TrackedOrder{OrderID: result.OrderID, ClientOID: params.ClientOID, Side: domain.SideBuy, Price: params.Price, Size: params.Size, Status: domain.OrderPending, CreatedAt: now},
			e.cfg.Symbol, string(e.cfg.TradingType), e.cfg.MarginCoin)
	}
	if e.metrics != nil {
		e.metrics.OrdersPlaced.Inc()
	}
	e.pushEvent(domain.StrategyEvent{Type: domain.EventBuyOrderPlaced, Data: map[string]any{"orderId": result.OrderID, "price": params.Price}})
	return nil
}

func (e *Engine) openTradeSide() exchangeiface.TradeSide {
	if e.services.HoldMode == exchangeiface.HoldModeDouble {
		return exchangeiface.TradeSideOpen
	}
	return ""
}

func (e *Engine) closeTradeSide(invert bool) (exchangeiface.TradeSide, bool) {
	if e.services.HoldMode != exchangeiface.HoldModeDouble {
		return "", false
	}
	if invert {
		return exchangeiface.TradeSideOpen, true
	}
	return exchangeiface.TradeSideClose, true
}

func (e *Engine) runLoopB(ctx context.Context, interval time.Duration) {
	defer e.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.tickLoopB(ctx); err != nil {
				e.onLoopError(&e.consecutiveErrorsB, err)
			} else {
				e.consecutiveErrorsB.Store(0)
			}
		}
	}
}

func (e *Engine) tickLoopB(ctx context.Context) error {
	if err := e.reconciler.Reconcile(ctx, e.cfg.Symbol); err != nil {
		return err
	}

	if merge.ShouldTrigger(len(e.tracker.PendingSells()), e.cfg.MaxPendingOrders) {
		if err := e.mergeEngine.Run(ctx, e.cfg.MergeThreshold); err != nil && err != domain.ErrStrategyMergeFailed {
			return err
		}
	}

	e.tracker.Cleanup()

	if equity, err := e.services.Account.GetAccountEquity(ctx, e.cfg.MarginCoin); err == nil {
		e.riskCtl.UpdateEquity(equity.Equity)
	}
	if e.metrics != nil {
		e.metrics.ReconcileIterations.Inc()
	}
	return nil
}

// handleDisappearedFill dispatches on which side filled.
func (e *Engine) handleDisappearedFill(o domain.TrackedOrder) {
	if e.metrics != nil {
		e.metrics.OrdersFilled.Inc()
	}
	now := time.Now().UnixMilli()
	if e.persist != nil {
		e.persist.PersistOrderStatusChange(o.OrderID, domain.OrderFilled, &now, nil)
	}
	if o.Side == domain.SideBuy {
		e.consecutivePostOnlyCancels.Store(0)
		e.pushEvent(domain.StrategyEvent{Type: domain.EventBuyOrderFilled, Data: map[string]any{"orderId": o.OrderID}})
		go e.pairSell(o)
		return
	}
	e.handleSellFilled(o)
}

func (e *Engine) handleDisappearedCancel(o domain.TrackedOrder) {
	if e.metrics != nil {
		e.metrics.OrdersCancelled.Inc()
	}
	if e.persist != nil {
		e.persist.PersistOrderStatusChange(o.OrderID, domain.OrderCancelled, nil, nil)
	}
	if o.Side == domain.SideBuy {
		e.lastBuyCancelledAt.Store(time.Now().UnixMilli())
		e.consecutivePostOnlyCancels.Add(1)
		e.pushEvent(domain.StrategyEvent{Type: domain.EventBuyOrderCancelled, Data: map[string]any{"orderId": o.OrderID}})
	}
}

// pairSell runs the buy-filled handler: settle delay, then up to 7
// attempts with the spec's fixed backoff sequence.
func (e *Engine) pairSell(buy domain.TrackedOrder) {
	time.Sleep(sellSettleDelay)

	buyPrice, _ := domain.ParseDecimal(buy.Price)
	sellPrice := domain.Round(buyPrice+e.cfg.PriceSpread, e.cfg.PricePrecision)
	priceStr := domain.FormatAt(sellPrice, e.cfg.PricePrecision)

	ctx := context.Background()
	for attempt := 0; attempt < len(sellRetryBackoff); attempt++ {
		params := exchangeiface.PlaceOrderParams{
			Symbol:    e.cfg.Symbol,
			Side:      domain.SideSell,
			Price:     priceStr,
			Size:      buy.Size,
			Force:     exchangeiface.ForcePostOnly,
			ClientOID: uuid.NewString(),
		}
		if attempt == 6 {
			params.OrderType = exchangeiface.OrderTypeMarket
			params.Force = exchangeiface.ForceGTC
		}
		if e.cfg.TradingType == domain.TradingDerivatives {
			invert := attempt == 5
			if side, ok := e.closeTradeSide(invert); ok {
				params.HasTradeSide = true
				params.TradeSide = side
			}
			if attempt == 6 {
				params.HasTradeSide = true
				params.TradeSide = exchangeiface.TradeSideClose
			}
			params.ProductType = e.cfg.ProductType
			params.MarginMode = e.cfg.MarginMode
			params.MarginCoin = e.cfg.MarginCoin
		}

		result, err := e.services.Order.PlaceOrder(ctx, params)
		if err == nil {
			now := time.Now().UnixMilli()
			e.tracker.Add(&domain.TrackedOrder{
				OrderID: result.OrderID, ClientOID: params.ClientOID, Side: domain.SideSell, Price: priceStr, Size: buy.Size,
				Status: domain.OrderPending, LinkedOrderID: buy.OrderID, CreatedAt: now,
			})
			e.tracker.SetLinkedOrderID(buy.OrderID, result.OrderID)
			if e.persist != nil {
				e.persist.PersistNewOrder(domain.TrackedOrder{OrderID: result.OrderID, ClientOID: params.ClientOID, Side: domain.SideSell, Price: priceStr, Size: buy.Size, Status: domain.OrderPending, LinkedOrderID: buy.OrderID, CreatedAt: now}, e.cfg.Symbol, string(e.cfg.TradingType), e.cfg.MarginCoin)
			}
			e.pushEvent(domain.StrategyEvent{Type: domain.EventSellOrderPlaced, Data: map[string]any{"orderId": result.OrderID, "buyOrderId": buy.OrderID}})
			return
		}

		if !isRetryableSellError(err) {
			e.pushEvent(domain.StrategyEvent{Type: domain.EventSellOrderFailed, Data: map[string]any{"buyOrderId": buy.OrderID, "error": err.Error()}})
			return
		}

		wait := sellRetryBackoff[attempt]
		if wait > 0 {
			time.Sleep(wait)
		}
	}
	e.pushEvent(domain.StrategyEvent{Type: domain.EventSellOrderFailed, Data: map[string]any{"buyOrderId": buy.OrderID, "reason": "retries_exhausted"}})
}

func isRetryableSellError(err error) bool {
	var exchErr *domain.ExchangeError
	if !errors.As(err, &exchErr) {
		return false
	}
	return exchErr.Code == domain.CodeNoPosition || exchErr.Code == domain.CodeTradeSideMismatch
}

func (e *Engine) handleSellFilled(o domain.TrackedOrder) {
	sellPrice, _ := domain.ParseDecimal(o.Price)
	size, _ := domain.ParseDecimal(o.Size)

	var buyPrice float64
	if o.LinkedOrderID != "" {
		if buy, ok := e.tracker.Get(o.LinkedOrderID); ok {
			buyPrice, _ = domain.ParseDecimal(buy.Price)
		}
	}
	grossPnl := (sellPrice - buyPrice) * size
	notional := sellPrice * size
	fee := 2 * notional * e.spec.MakerFeeRate
	netPnl := grossPnl - fee

	e.riskCtl.RecordPnl(netPnl)
	if e.persist != nil {
		e.persist.PersistRealizedPnl(netPnl, fee, netPnl >= 0, domain.StrategyScalping)
	}
	e.pushEvent(domain.StrategyEvent{Type: domain.EventSellOrderFilled, Data: map[string]any{
		"orderId": o.OrderID, "netPnl": netPnl,
	}})
}

func (e *Engine) onLoopError(counter *atomic.Int32, err error) {
	n := counter.Add(1)
	e.lastErr = err.Error()
	if e.log != nil {
		e.log.LogError(err, map[string]any{"symbol": e.cfg.Symbol})
	}
	if n >= maxConsecutiveErrors {
		e.state.Store(domain.StateError)
		e.pushEvent(domain.StrategyEvent{Type: domain.EventStrategyError, Data: map[string]any{"error": e.lastErr}})
		go e.armRestoreTimer(counter)
	}
}

func (e *Engine) armRestoreTimer(counter *atomic.Int32) {
	time.Sleep(errorRestoreAfter)
	counter.Store(0)
	if e.State() == domain.StateError {
		e.state.Store(domain.StateRunning)
	}
}

func (e *Engine) advisorCheckFeeCoverage() {
	totalFee := e.spec.MakerFeeRate + e.spec.TakerFeeRate
	if totalFee <= 0 {
		return
	}
	if e.cfg.PriceSpread/totalFee < 200_000 {
		refPrice := 70_000.0
		estLoss := refPrice * totalFee * 2
		e.pushEvent(domain.StrategyEvent{Type: domain.EventStrategyError, Data: map[string]any{
			"warning": "priceSpread may not cover round-trip fees", "estimatedLossAtRef": estLoss,
		}})
	}
}

func (e *Engine) pushEvent(ev domain.StrategyEvent) {
	ev.Timestamp = time.Now().UnixMilli()
	e.events.Push(ev)
}

func clampInterval(d, min time.Duration) time.Duration {
	if d < min {
		return min
	}
	return d
}
