// Package grid implements the fixed-ladder grid market-making engine: a
// static set of price levels between lowerPrice and upperPrice, each
// independently cycling empty -> buy_pending -> buy_filled -> sell_pending
// -> empty.
package grid

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"mm-engine/internal/alert"
	"mm-engine/internal/domain"
	"mm-engine/internal/exchangeiface"
	"mm-engine/internal/logging"
	"mm-engine/internal/metrics"
	"mm-engine/internal/order"
	"mm-engine/internal/persistence"
	"mm-engine/internal/risk"
)

const (
	minPollInterval      = 200 * time.Millisecond
	maxConsecutiveErrors = 5
	errorRestoreAfter    = 30 * time.Second
	sellSettleDelay      = 800 * time.Millisecond
	sellMaxAttempts      = 3
)

// Deps bundles the engine's external collaborators, assembled by the
// strategy manager per start.
type Deps struct {
	Config   domain.GridConfig
	Spec     domain.InstrumentSpec
	Services exchangeiface.Services
	Persist  *persistence.Worker
	Metrics  *metrics.Registry
	Log      *logging.Logger
	Alerts   *alert.Manager
}

// Engine is one running grid instance.
type Engine struct {
	cfg        domain.GridConfig
	spec       domain.InstrumentSpec
	services   exchangeiface.Services
	persist    *persistence.Worker
	metrics    *metrics.Registry
	log        *logging.Logger
	instanceID string

	mu      sync.Mutex
	levels  []domain.GridLevel
	orphans []domain.OrphanPosition

	tracker *order.Tracker
	riskCtl *risk.Controller
	events  *domain.EventRing

	state              atomic.Value
	consecutiveErrors  atomic.Int32

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// BuildLevels generates the fixed ladder per the configured spacing
// formula and notional-derived size at each rung.
func BuildLevels(cfg domain.GridConfig, pricePlace, volumePlace int) ([]domain.GridLevel, error) {
	if cfg.UpperPrice <= 0 || cfg.LowerPrice <= 0 || cfg.UpperPrice <= cfg.LowerPrice {
		return nil, domain.ErrGridConfigInvalid
	}
	levels := make([]domain.GridLevel, 0, cfg.GridCount+1)
	for i := 0; i <= cfg.GridCount; i++ {
		var price float64
		if cfg.Kind == domain.GridGeometric {
			ratio := cfg.UpperPrice / cfg.LowerPrice
			price = cfg.LowerPrice * math.Pow(ratio, float64(i)/float64(cfg.GridCount))
		} else {
			price = cfg.LowerPrice + float64(i)*(cfg.UpperPrice-cfg.LowerPrice)/float64(cfg.GridCount)
		}
		price = domain.Round(price, pricePlace)
		size := domain.Round(cfg.Notional/price, volumePlace)
		levels = append(levels, domain.GridLevel{
			Index: i,
			Price: domain.FormatAt(price, pricePlace),
			State: domain.LevelEmpty,
			Size:  domain.FormatAt(size, volumePlace),
		})
	}
	return levels, nil
}

func New(deps Deps) (*Engine, error) {
	levels, err := BuildLevels(deps.Config, deps.Config.PricePrecision, deps.Config.SizePrecision)
	if err != nil {
		return nil, err
	}
	if deps.Persist != nil && deps.Config.InstanceID != "" {
		if persisted, err := deps.Persist.LoadGridLevels(context.Background(), deps.Config.InstanceID); err == nil && len(persisted) == len(levels) {
			levels = persisted
		}
	}
	e := &Engine{
		cfg:        deps.Config,
		spec:       deps.Spec,
		services:   deps.Services,
		persist:    deps.Persist,
		metrics:    deps.Metrics,
		log:        deps.Log,
		instanceID: deps.Config.InstanceID,
		levels:     levels,
		tracker:    order.NewTracker(),
		events:     domain.NewEventRing(domain.DefaultEventRingCapacity),
	}
	e.riskCtl = risk.NewController(risk.ControllerConfig{
		MaxDailyLoss:       deps.Config.MaxDailyLoss,
		MaxDrawdownPercent: deps.Config.MaxDrawdownPercent,
		MaxPosition:        deps.Config.MaxPosition,
		CooldownMs:         deps.Config.CooldownMs,
		InitialEquity:      deps.Config.Notional,
	}, deps.Metrics, deps.Alerts)
	e.state.Store(domain.StateStopped)
	return e, nil
}

func (e *Engine) State() domain.EngineState { return e.state.Load().(domain.EngineState) }

func (e *Engine) Events(n int) []domain.StrategyEvent { return e.events.Tail(n) }

func (e *Engine) Levels() []domain.GridLevel {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.GridLevel, len(e.levels))
	copy(out, e.levels)
	return out
}

// Orphans lists inventory left behind by an exchange-cancelled sell on a
// level that reset to empty while still holding a filled buy's position.
func (e *Engine) Orphans() []domain.OrphanPosition {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.OrphanPosition, len(e.orphans))
	copy(out, e.orphans)
	return out
}

func (e *Engine) Start(ctx context.Context) error {
	e.pushEvent(domain.StrategyEvent{Type: domain.EventStrategyStarted, Data: map[string]any{"symbol": e.cfg.Symbol}})
	e.state.Store(domain.StateRunning)

	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	interval := e.cfg.PollIntervalMs
	pollInterval := time.Duration(interval) * time.Millisecond
	if pollInterval < minPollInterval {
		pollInterval = minPollInterval
	}

	e.wg.Add(1)
	go e.run(runCtx, pollInterval)
	return nil
}

func (e *Engine) Stop(ctx context.Context) error {
	e.state.Store(domain.StateStopping)
	e.cancelAllAndReset(ctx)
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
	e.state.Store(domain.StateStopped)
	e.pushEvent(domain.StrategyEvent{Type: domain.EventStrategyStopped})
	return nil
}

func (e *Engine) EmergencyStop(ctx context.Context) error {
	e.cancelAllAndReset(ctx)
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
	e.state.Store(domain.StateStopped)
	e.pushEvent(domain.StrategyEvent{Type: domain.EventEmergencyStop})
	return nil
}

func (e *Engine) cancelAllAndReset(ctx context.Context) {
	pendingIDs := e.tracker.PendingOrderIDs()
	for start := 0; start < len(pendingIDs); start += 50 {
		end := start + 50
		if end > len(pendingIDs) {
			end = len(pendingIDs)
		}
		_, _ = e.services.Order.BatchCancelOrders(ctx, e.cfg.Symbol, pendingIDs[start:end])
	}
	e.mu.Lock()
	for i := range e.levels {
		e.levels[i].State = domain.LevelEmpty
		e.levels[i].BuyOrderID = ""
		e.levels[i].SellOrderID = ""
	}
	snapshot := make([]domain.GridLevel, len(e.levels))
	copy(snapshot, e.levels)
	e.mu.Unlock()

	for _, lvl := range snapshot {
		e.persistLevel(lvl)
	}
}

func (e *Engine) run(ctx context.Context, interval time.Duration) {
	defer e.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.tick(ctx); err != nil {
				e.onLoopError(err)
			} else {
				e.consecutiveErrors.Store(0)
			}
		}
	}
}

func (e *Engine) tick(ctx context.Context) error {
	ticker, err := e.services.Market.GetTicker(ctx, e.cfg.Symbol)
	if err != nil {
		return err
	}
	currentPrice, err := domain.ParseDecimal(ticker.LastPrice)
	if err != nil {
		return err
	}

	notional := e.tracker.TotalPendingSellNotional()
	denial := e.riskCtl.Evaluate(notional)

	if err := e.reconcile(ctx); err != nil {
		return err
	}
	if denial == nil {
		e.placeBuys(ctx, currentPrice)
	}
	e.placeSells(ctx)

	if equity, err := e.services.Account.GetAccountEquity(ctx, e.cfg.MarginCoin); err == nil {
		e.riskCtl.UpdateEquity(equity.Equity)
	}
	return nil
}

// reconcile drives each pending level's state transition off the
// exchange's authoritative order state, the same two-step detail lookup
// the scalping reconciler uses.
func (e *Engine) reconcile(ctx context.Context) error {
	pendingIDs := e.tracker.PendingOrderIDs()
	if len(pendingIDs) == 0 {
		return nil
	}
	exchangePending, err := e.services.Order.GetPendingOrders(ctx, e.cfg.Symbol)
	if err != nil {
		return err
	}
	onExchange := make(map[string]struct{}, len(exchangePending))
	for _, d := range exchangePending {
		onExchange[d.OrderID] = struct{}{}
	}

	for _, id := range pendingIDs {
		if _, ok := onExchange[id]; ok {
			continue
		}
		detail, err := e.services.Order.GetOrderDetail(ctx, e.cfg.Symbol, id)
		if err != nil {
			continue
		}
		switch detail.State {
		case "live", "new", "partially_filled":
			continue
		case "filled":
			e.tracker.SetStatus(id, domain.OrderFilled, nil)
			e.onLevelOrderFilled(id)
		case "cancelled", "canceled":
			e.tracker.SetStatus(id, domain.OrderCancelled, nil)
			e.onLevelOrderCancelled(id)
		}
	}
	return nil
}

func (e *Engine) onLevelOrderFilled(orderID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.levels {
		lvl := &e.levels[i]
		if lvl.BuyOrderID == orderID && lvl.State == domain.LevelBuyPending {
			lvl.State = domain.LevelBuyFilled
			e.persistLevel(*lvl)
			e.pushEvent(domain.StrategyEvent{Type: domain.EventGridBuyFilled, Data: map[string]any{"level": lvl.Index, "orderId": orderID}})
			return
		}
		if lvl.SellOrderID == orderID && lvl.State == domain.LevelSellPending {
			e.recordGridPnl(*lvl)
			lvl.State = domain.LevelEmpty
			lvl.BuyOrderID = ""
			lvl.SellOrderID = ""
			e.persistLevel(*lvl)
			e.pushEvent(domain.StrategyEvent{Type: domain.EventGridSellFilled, Data: map[string]any{"level": lvl.Index, "orderId": orderID}})
			return
		}
	}
}

func (e *Engine) onLevelOrderCancelled(orderID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.levels {
		lvl := &e.levels[i]
		if lvl.BuyOrderID == orderID && lvl.State == domain.LevelBuyPending {
			lvl.State = domain.LevelEmpty
			lvl.BuyOrderID = ""
			e.persistLevel(*lvl)
			return
		}
		if lvl.SellOrderID == orderID && lvl.State == domain.LevelSellPending {
			e.orphans = append(e.orphans, domain.OrphanPosition{
				LevelIndex: lvl.Index, BuyPrice: lvl.Price, Size: lvl.Size, DetectedAt: time.Now().UnixMilli(),
			})
			lvl.State = domain.LevelEmpty
			lvl.BuyOrderID = ""
			lvl.SellOrderID = ""
			e.persistLevel(*lvl)
			return
		}
	}
}

// recordGridPnl books the realized PnL for a level's completed buy/sell
// pair. The buy price is lvl.Price and the paired sell price is the next
// rung up, where placeLevelSell quoted it; both come from the level's
// price and index, which the caller leaves unchanged.
func (e *Engine) recordGridPnl(lvl domain.GridLevel) {
	buyPrice, _ := domain.ParseDecimal(lvl.Price)
	sellPrice, _ := domain.ParseDecimal(e.nextLevelPrice(lvl.Index))
	size, _ := domain.ParseDecimal(lvl.Size)

	notional := buyPrice * size
	gross := (sellPrice - buyPrice) * size
	fee := 2 * notional * e.spec.MakerFeeRate
	net := gross - fee

	e.riskCtl.RecordPnl(net)
	if e.persist != nil {
		e.persist.PersistRealizedPnl(net, fee, net >= 0, domain.StrategyGrid)
	}
}

func (e *Engine) placeBuys(ctx context.Context, currentPrice float64) {
	e.mu.Lock()
	candidates := make([]int, 0)
	for i, lvl := range e.levels {
		if lvl.State != domain.LevelEmpty {
			continue
		}
		price, _ := domain.ParseDecimal(lvl.Price)
		if price < currentPrice {
			candidates = append(candidates, i)
		}
	}
	e.mu.Unlock()

	for _, idx := range candidates {
		notional := e.tracker.TotalPendingSellNotional()
		if denial := e.riskCtl.Evaluate(notional); denial != nil {
			break
		}
		e.placeLevelBuy(ctx, idx)
	}
}

func (e *Engine) placeLevelBuy(ctx context.Context, idx int) {
	e.mu.Lock()
	lvl := e.levels[idx]
	e.mu.Unlock()

	params := exchangeiface.PlaceOrderParams{
		Symbol: e.cfg.Symbol, Side: domain.SideBuy, Price: lvl.Price, Size: lvl.Size, Force: exchangeiface.ForceGTC,
		ClientOID: uuid.NewString(),
	}
	if e.cfg.TradingType == domain.TradingDerivatives {
		if e.services.HoldMode == exchangeiface.HoldModeDouble {
			params.HasTradeSide = true
			params.TradeSide = exchangeiface.TradeSideOpen
		}
		params.ProductType = e.cfg.ProductType
		params.MarginMode = e.cfg.MarginMode
		params.MarginCoin = e.cfg.MarginCoin
	}

	result, err := e.services.Order.PlaceOrder(ctx, params)
	if err != nil {
		return
	}
	now := time.Now().UnixMilli()
	e.tracker.Add(&domain.TrackedOrder{OrderID: result.OrderID, ClientOID: params.ClientOID, Side: domain.SideBuy, Price: lvl.Price, Size: lvl.Size, Status: domain.OrderPending, CreatedAt: now})
	if e.persist != nil {
		e.persist.PersistNewOrder(domain.TrackedOrder{OrderID: result.OrderID, ClientOID: params.ClientOID, Side: domain.SideBuy, Price: lvl.Price, Size: lvl.Size, Status: domain.OrderPending, CreatedAt: now}, e.cfg.Symbol, string(e.cfg.TradingType), e.cfg.MarginCoin)
	}

	e.mu.Lock()
	e.levels[idx].State = domain.LevelBuyPending
	e.levels[idx].BuyOrderID = result.OrderID
	updated := e.levels[idx]
	e.mu.Unlock()
	e.persistLevel(updated)
}

// placeSells claims every buy_filled level synchronously, flipping it to
// sell_pending before the placement goroutine is spawned, so a tick that
// fires during the goroutine's settle delay never re-selects the same
// level and double-places a sell against one buy's inventory.
func (e *Engine) placeSells(ctx context.Context) {
	e.mu.Lock()
	candidates := make([]int, 0)
	for i := range e.levels {
		if e.levels[i].State == domain.LevelBuyFilled {
			e.levels[i].State = domain.LevelSellPending
			candidates = append(candidates, i)
		}
	}
	claimed := make([]domain.GridLevel, len(candidates))
	for j, idx := range candidates {
		claimed[j] = e.levels[idx]
	}
	e.mu.Unlock()

	for j, idx := range candidates {
		e.persistLevel(claimed[j])
		go e.placeLevelSell(ctx, idx)
	}
}

func (e *Engine) placeLevelSell(ctx context.Context, idx int) {
	time.Sleep(sellSettleDelay)

	e.mu.Lock()
	lvl := e.levels[idx]
	sellPrice := e.nextLevelPrice(idx)
	e.mu.Unlock()

	params := exchangeiface.PlaceOrderParams{
		Symbol: e.cfg.Symbol, Side: domain.SideSell, Price: sellPrice, Size: lvl.Size, Force: exchangeiface.ForceGTC,
		ClientOID: uuid.NewString(),
	}
	if e.cfg.TradingType == domain.TradingDerivatives {
		if e.services.HoldMode == exchangeiface.HoldModeDouble {
			params.HasTradeSide = true
			params.TradeSide = exchangeiface.TradeSideClose
		}
		params.ProductType = e.cfg.ProductType
		params.MarginMode = e.cfg.MarginMode
		params.MarginCoin = e.cfg.MarginCoin
	}

	var result exchangeiface.PlaceOrderResult
	var err error
	for attempt := 0; attempt < sellMaxAttempts; attempt++ {
		result, err = e.services.Order.PlaceOrder(ctx, params)
		if err == nil {
			break
		}
		time.Sleep(time.Second)
	}
	if err != nil {
		// persistent position error: roll the claim back to buy_filled so
		// the next tick retries placement instead of leaving the level
		// stuck at sell_pending with no sell order outstanding.
		e.mu.Lock()
		e.levels[idx].State = domain.LevelBuyFilled
		rolledBack := e.levels[idx]
		e.mu.Unlock()
		e.persistLevel(rolledBack)
		return
	}

	now := time.Now().UnixMilli()
	e.tracker.Add(&domain.TrackedOrder{OrderID: result.OrderID, ClientOID: params.ClientOID, Side: domain.SideSell, Price: sellPrice, Size: lvl.Size, Status: domain.OrderPending, CreatedAt: now})
	if e.persist != nil {
		e.persist.PersistNewOrder(domain.TrackedOrder{OrderID: result.OrderID, ClientOID: params.ClientOID, Side: domain.SideSell, Price: sellPrice, Size: lvl.Size, Status: domain.OrderPending, CreatedAt: now}, e.cfg.Symbol, string(e.cfg.TradingType), e.cfg.MarginCoin)
	}

	e.mu.Lock()
	e.levels[idx].SellOrderID = result.OrderID
	updated := e.levels[idx]
	e.mu.Unlock()
	e.persistLevel(updated)

	e.pushEvent(domain.StrategyEvent{Type: domain.EventGridLevelUpdated, Data: map[string]any{"level": idx, "state": string(domain.LevelSellPending)}})
}

// nextLevelPrice returns the next-higher level's price, or
// thisPrice+spacing if idx is already the top rung.
func (e *Engine) nextLevelPrice(idx int) string {
	if idx+1 < len(e.levels) {
		return e.levels[idx+1].Price
	}
	price, _ := domain.ParseDecimal(e.levels[idx].Price)
	spacing := (e.cfg.UpperPrice - e.cfg.LowerPrice) / float64(e.cfg.GridCount)
	return domain.FormatAt(price+spacing, e.cfg.PricePrecision)
}

func (e *Engine) onLoopError(err error) {
	n := e.consecutiveErrors.Add(1)
	if e.log != nil {
		e.log.LogError(err, map[string]any{"symbol": e.cfg.Symbol})
	}
	if n >= maxConsecutiveErrors {
		e.state.Store(domain.StateError)
		e.pushEvent(domain.StrategyEvent{Type: domain.EventStrategyError, Data: map[string]any{"error": err.Error()}})
		go e.armRestoreTimer()
	}
}

func (e *Engine) armRestoreTimer() {
	time.Sleep(errorRestoreAfter)
	e.consecutiveErrors.Store(0)
	if e.State() == domain.StateError {
		e.state.Store(domain.StateRunning)
	}
}

// persistLevel enqueues the level's current state for recovery after a
// restart. Caller must hold e.mu or pass a snapshot copy.
func (e *Engine) persistLevel(lvl domain.GridLevel) {
	if e.persist != nil && e.instanceID != "" {
		e.persist.PersistGridLevel(e.instanceID, lvl)
	}
}

func (e *Engine) pushEvent(ev domain.StrategyEvent) {
	ev.Timestamp = time.Now().UnixMilli()
	e.events.Push(ev)
}
