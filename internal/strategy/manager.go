package strategy

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"mm-engine/internal/alert"
	"mm-engine/internal/domain"
	"mm-engine/internal/exchangeiface"
	"mm-engine/internal/logging"
	"mm-engine/internal/metrics"
	"mm-engine/internal/persistence"
	"mm-engine/internal/specs"
	"mm-engine/internal/strategy/grid"
	"mm-engine/internal/strategy/scalping"
)

const stopWatchdog = 10 * time.Second

// runningEngine is the minimal surface the manager needs from whichever
// variant is active, satisfied by both *scalping.Engine and *grid.Engine.
type runningEngine interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	EmergencyStop(ctx context.Context) error
	State() domain.EngineState
}

// orphanLister is an optional capability only *grid.Engine satisfies:
// inventory left behind by an exchange-cancelled sell.
type orphanLister interface {
	Orphans() []domain.OrphanPosition
}

// Manager is the process-wide singleton holding at most one active
// strategy instance. It never touches the exchange or the tracker
// directly; it only owns the instance reference and the engine behind
// it.
type Manager struct {
	mu       sync.Mutex
	engine   runningEngine
	instance *domain.StrategyInstance
	history  []domain.StrategyInstance

	specs      *specs.Cache
	factory    *exchangeiface.Factory
	persist    *persistence.Worker
	metrics    *metrics.Registry
	log        *logging.Logger
	alerts     *alert.Manager
}

func NewManager(specCache *specs.Cache, factory *exchangeiface.Factory, persist *persistence.Worker, m *metrics.Registry, log *logging.Logger, alerts *alert.Manager) *Manager {
	return &Manager{specs: specCache, factory: factory, persist: persist, metrics: m, log: log, alerts: alerts}
}

// CreateAndStart builds the requested variant's engine and starts it. It
// fails with ErrAlreadyRunning if an instance already exists with status
// in {STARTING, RUNNING}.
func (mgr *Manager) CreateAndStart(ctx context.Context, cfg any) error {
	mgr.mu.Lock()
	if mgr.instance != nil {
		switch mgr.instance.Status {
		case domain.StateStarting, domain.StateRunning:
			mgr.mu.Unlock()
			return domain.ErrAlreadyRunning
		}
	}
	mgr.mu.Unlock()

	switch c := cfg.(type) {
	case domain.ScalpingConfig:
		return mgr.startScalping(ctx, c)
	case domain.GridConfig:
		return mgr.startGrid(ctx, c)
	default:
		return domain.ErrConfigInvalid
	}
}

func (mgr *Manager) startScalping(ctx context.Context, cfg domain.ScalpingConfig) error {
	if err := ValidateScalping(cfg); err != nil {
		return err
	}
	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
	}
	venue := venueFor(cfg.TradingType)
	spec, err := mgr.specs.GetSpec(ctx, cfg.Symbol, venue)
	if err != nil {
		return err
	}
	cfg.PricePrecision = spec.PricePlace
	cfg.SizePrecision = spec.VolumePlace

	services := mgr.factory.Build(ctx, cfg.TradingType, cfg.Symbol, cfg.PositionModeOverride)

	var pending []domain.TrackedOrder
	if mgr.persist != nil {
		pending, _ = mgr.persist.LoadPendingOrders(ctx, cfg.Symbol, string(cfg.TradingType))
	}

	eng := scalping.New(scalping.Deps{
		Config: cfg, Spec: spec, Services: services, Persist: mgr.persist,
		Metrics: mgr.metrics, Log: mgr.log, Alerts: mgr.alerts, PendingOnStart: pending,
	})

	inst := &domain.StrategyInstance{
		InstanceID: cfg.InstanceID, StrategyType: domain.StrategyScalping, TradingType: cfg.TradingType,
		Symbol: cfg.Symbol, Status: domain.StateStarting, StartedAt: time.Now().UnixMilli(),
	}
	mgr.setActive(eng, inst)

	if err := eng.Start(ctx); err != nil {
		mgr.clearActive(err)
		return err
	}
	mgr.markRunning()
	return nil
}

func (mgr *Manager) startGrid(ctx context.Context, cfg domain.GridConfig) error {
	if err := ValidateGrid(cfg); err != nil {
		return err
	}
	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
	}
	venue := venueFor(cfg.TradingType)
	spec, err := mgr.specs.GetSpec(ctx, cfg.Symbol, venue)
	if err != nil {
		return err
	}
	cfg.PricePrecision = spec.PricePlace
	cfg.SizePrecision = spec.VolumePlace

	services := mgr.factory.Build(ctx, cfg.TradingType, cfg.Symbol, cfg.PositionModeOverride)

	eng, err := grid.New(grid.Deps{
		Config: cfg, Spec: spec, Services: services, Persist: mgr.persist,
		Metrics: mgr.metrics, Log: mgr.log, Alerts: mgr.alerts,
	})
	if err != nil {
		return err
	}

	inst := &domain.StrategyInstance{
		InstanceID: cfg.InstanceID, StrategyType: domain.StrategyGrid, TradingType: cfg.TradingType,
		Symbol: cfg.Symbol, Status: domain.StateStarting, StartedAt: time.Now().UnixMilli(),
	}
	mgr.setActive(eng, inst)

	if err := eng.Start(ctx); err != nil {
		mgr.clearActive(err)
		return err
	}
	mgr.markRunning()
	return nil
}

func venueFor(t domain.TradingType) domain.VenueKind {
	if t == domain.TradingDerivatives {
		return domain.VenueDerivatives
	}
	return domain.VenueSpot
}

func (mgr *Manager) setActive(eng runningEngine, inst *domain.StrategyInstance) {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	mgr.engine = eng
	mgr.instance = inst
}

func (mgr *Manager) markRunning() {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	if mgr.instance != nil {
		mgr.instance.Status = domain.StateRunning
	}
}

func (mgr *Manager) clearActive(err error) {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	if mgr.instance != nil {
		mgr.instance.Status = domain.StateStopped
		mgr.instance.LastError = err.Error()
		now := time.Now().UnixMilli()
		mgr.instance.StoppedAt = &now
		mgr.history = append(mgr.history, *mgr.instance)
	}
	mgr.engine = nil
	mgr.instance = nil
}

// StopActive is a no-op when nothing is active. It bounds the stop call
// with a watchdog so a hung engine cannot block the caller indefinitely.
func (mgr *Manager) StopActive(ctx context.Context) error {
	mgr.mu.Lock()
	eng := mgr.engine
	mgr.mu.Unlock()
	if eng == nil {
		return nil
	}

	stopCtx, cancel := context.WithTimeout(ctx, stopWatchdog)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- eng.Stop(stopCtx) }()

	var err error
	select {
	case err = <-done:
	case <-stopCtx.Done():
		err = stopCtx.Err()
	}
	mgr.finishStop(err)
	return err
}

// EmergencyStopActive bypasses STOPPING and cancels all pending orders
// immediately, even from ERROR state. No-op when nothing is active.
func (mgr *Manager) EmergencyStopActive(ctx context.Context) error {
	mgr.mu.Lock()
	eng := mgr.engine
	mgr.mu.Unlock()
	if eng == nil {
		return nil
	}
	err := eng.EmergencyStop(ctx)
	mgr.finishStop(err)
	return err
}

func (mgr *Manager) finishStop(err error) {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	if mgr.instance != nil {
		mgr.instance.Status = domain.StateStopped
		if err != nil {
			mgr.instance.LastError = err.Error()
		}
		now := time.Now().UnixMilli()
		mgr.instance.StoppedAt = &now
		mgr.history = append(mgr.history, *mgr.instance)
	}
	mgr.engine = nil
	mgr.instance = nil
}

// GetState returns the active engine's state, or the canonical STOPPED
// state if none is active.
func (mgr *Manager) GetState() domain.EngineState {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	if mgr.engine == nil {
		return domain.StateStopped
	}
	return mgr.engine.State()
}

// ActiveInstance returns a copy of the active instance record, or nil if
// none is active.
func (mgr *Manager) ActiveInstance() *domain.StrategyInstance {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	if mgr.instance == nil {
		return nil
	}
	cp := *mgr.instance
	return &cp
}

// Orphans returns the active engine's orphaned inventory, or nil if
// nothing is active or the active variant doesn't track orphans (scalping
// never leaves one: a cancelled sell there just frees the level, it
// doesn't need buy-side inventory tracked separately).
func (mgr *Manager) Orphans() []domain.OrphanPosition {
	mgr.mu.Lock()
	eng := mgr.engine
	mgr.mu.Unlock()
	if lister, ok := eng.(orphanLister); ok {
		return lister.Orphans()
	}
	return nil
}

// ListHistory returns the most recent n instances that have stopped,
// newest last. Kept bounded by the caller's request, not by the manager
// itself, since the manager only appends on stop.
func (mgr *Manager) ListHistory(n int) []domain.StrategyInstance {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	if n <= 0 || n > len(mgr.history) {
		n = len(mgr.history)
	}
	start := len(mgr.history) - n
	out := make([]domain.StrategyInstance, n)
	copy(out, mgr.history[start:])
	return out
}
