package risk

import (
	"sync"
	"time"

	"mm-engine/internal/alert"
	"mm-engine/internal/domain"
	"mm-engine/internal/metrics"
)

// DenialReason is the closed set of reasons Evaluate can deny a trade for.
type DenialReason string

const (
	DenyCooldown  DenialReason = "cooldown"
	DenyDailyLoss DenialReason = "daily_loss"
	DenyDrawdown  DenialReason = "drawdown"
	DenyPosition  DenialReason = "position_cap"
)

// Denial carries why a trade was refused and, for cooldown-driven
// denials, how many seconds remain.
type Denial struct {
	Reason        DenialReason
	RemainingSecs int64
}

// ControllerConfig is the per-instance risk parameterization, sourced
// from the owning strategy's BaseConfig.
type ControllerConfig struct {
	MaxDailyLoss       float64
	MaxDrawdownPercent float64 // percent, e.g. 10 means 10%
	MaxPosition        float64
	CooldownMs         int64
	InitialEquity      float64
}

// Controller is the per-instance risk gate: one evaluation sequence run
// ahead of every order placement.
type Controller struct {
	mu      sync.Mutex
	cfg     ControllerConfig
	state   domain.RiskState
	metrics *metrics.Registry
	alerts  *alert.Manager
	now     func() time.Time
}

func NewController(cfg ControllerConfig, m *metrics.Registry, alerts *alert.Manager) *Controller {
	now := time.Now()
	return &Controller{
		cfg: cfg,
		state: domain.RiskState{
			PeakEquity:    cfg.InitialEquity,
			CurrentEquity: cfg.InitialEquity,
			DailyResetKey: now.UTC().Format("2006-01-02"),
		},
		metrics: m,
		alerts:  alerts,
		now:     time.Now,
	}
}

// Evaluate runs the five-step check in order against currentNotional, the
// position the caller is about to add to or open.
func (c *Controller) Evaluate(currentNotional float64) *Denial {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.rollover(now)

	if c.state.CoolingUntil > 0 {
		remaining := c.state.CoolingUntil - now.UnixMilli()
		if remaining > 0 {
			return c.deny(DenyCooldown, remaining/1000)
		}
		c.state.CoolingUntil = 0
	}

	if c.cfg.MaxDailyLoss > 0 && c.state.DailyPnl <= -c.cfg.MaxDailyLoss {
		c.enterCooldown(now)
		return c.deny(DenyDailyLoss, c.cfg.CooldownMs/1000)
	}

	if c.cfg.MaxDrawdownPercent > 0 && c.state.PeakEquity > 0 {
		drawdownPct := (c.state.PeakEquity - c.state.CurrentEquity) / c.state.PeakEquity * 100
		if drawdownPct >= c.cfg.MaxDrawdownPercent {
			c.enterCooldown(now)
			return c.deny(DenyDrawdown, c.cfg.CooldownMs/1000)
		}
	}

	if c.cfg.MaxPosition > 0 && currentNotional >= c.cfg.MaxPosition {
		return c.deny(DenyPosition, 0)
	}

	return nil
}

// RecordPnl accumulates a realized fill's net PnL into dailyPnl and
// currentEquity, tracks win/loss counts, and raises peakEquity if the new
// equity exceeds it.
func (c *Controller) RecordPnl(net float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.rollover(c.now())
	c.state.DailyPnl += net
	c.state.CurrentEquity += net
	c.state.TotalTrades++
	if net >= 0 {
		c.state.WinTrades++
		c.state.SumWin += net
	} else {
		c.state.LossTrades++
		c.state.SumLoss += -net
	}
	if c.state.CurrentEquity > c.state.PeakEquity {
		c.state.PeakEquity = c.state.CurrentEquity
	}
	c.report()
}

// UpdateEquity overwrites currentEquity from the exchange's own account
// snapshot, preventing drift between internal accounting and reality.
func (c *Controller) UpdateEquity(equity float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state.CurrentEquity = equity
	if equity > c.state.PeakEquity {
		c.state.PeakEquity = equity
	}
	c.report()
}

// Snapshot returns a value copy of the current risk state.
func (c *Controller) Snapshot() domain.RiskState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Snapshot()
}

func (c *Controller) rollover(now time.Time) {
	today := now.UTC().Format("2006-01-02")
	if today != c.state.DailyResetKey {
		c.state.DailyPnl = 0
		c.state.DailyResetKey = today
	}
}

func (c *Controller) enterCooldown(now time.Time) {
	c.state.CoolingUntil = now.UnixMilli() + c.cfg.CooldownMs
}

func (c *Controller) deny(reason DenialReason, remainingSecs int64) *Denial {
	if c.metrics != nil {
		c.metrics.RiskDenials.WithLabelValues(string(reason)).Inc()
	}
	if c.alerts != nil && (reason == DenyDailyLoss || reason == DenyDrawdown) {
		_ = c.alerts.Send(domain.AlertEvent{
			Level:   domain.AlertWarning,
			Message: "RISK_LIMIT_HIT: " + string(reason),
			Fields:  map[string]any{"reason": string(reason)},
		})
	}
	return &Denial{Reason: reason, RemainingSecs: remainingSecs}
}

func (c *Controller) report() {
	if c.metrics == nil {
		return
	}
	if c.state.PeakEquity > 0 {
		c.metrics.RiskDrawdown.Set((c.state.PeakEquity - c.state.CurrentEquity) / c.state.PeakEquity)
	}
	c.metrics.RiskDailyPnl.Set(c.state.DailyPnl)
	if c.state.CoolingUntil > 0 {
		remaining := float64(c.state.CoolingUntil-c.now().UnixMilli()) / 1000
		if remaining < 0 {
			remaining = 0
		}
		c.metrics.RiskCooldownS.Set(remaining)
	} else {
		c.metrics.RiskCooldownS.Set(0)
	}
}
