package autocalc

import (
	"fmt"

	"mm-engine/internal/domain"
)

// TickerSnapshot is the subset of ticker data auto-calc needs.
type TickerSnapshot struct {
	LastPrice float64
	High24h   float64
	Low24h    float64
}

func (t TickerSnapshot) Range24h() float64 {
	return t.High24h - t.Low24h
}

// Input is the reduced parameter set an operator supplies.
type Input struct {
	StrategyType domain.StrategyType
	TradingType  domain.TradingType
	Symbol       string
	Notional     float64
	RiskLevel    RiskLevel
	Direction    domain.Direction
}

// Result carries the derived config plus any non-fatal warnings.
type Result struct {
	Scalping *domain.ScalpingConfig
	Grid     *domain.GridConfig
	Warnings []string
}

// Derive produces a full strategy config from the reduced input, combining
// the preset table, the instrument spec, a ticker snapshot and the
// available balance. Deterministic given the same four inputs.
func Derive(in Input, presets PresetTable, spec domain.InstrumentSpec, ticker TickerSnapshot, balance float64) (Result, error) {
	switch in.StrategyType {
	case domain.StrategyScalping:
		return deriveScalping(in, presets, spec, ticker, balance)
	case domain.StrategyGrid:
		return deriveGrid(in, presets, spec, ticker, balance)
	default:
		return Result{}, fmt.Errorf("autocalc: unknown strategy type %q", in.StrategyType)
	}
}

func deriveScalping(in Input, presets PresetTable, spec domain.InstrumentSpec, ticker TickerSnapshot, balance float64) (Result, error) {
	preset, ok := presets.Scalping[in.RiskLevel]
	if !ok {
		return Result{}, fmt.Errorf("autocalc: unknown risk level %q", in.RiskLevel)
	}

	minSpread := ticker.LastPrice * (spec.MakerFeeRate + spec.TakerFeeRate) * preset.SpreadMultiplier
	priceSpread := domain.Round(max(minSpread, ticker.Range24h()*0.001), spec.PricePlace)

	maxPosition := domain.Round(balance*preset.MaxPositionPct, 2)
	maxDailyLoss := domain.Round(balance*preset.DailyLossPct, 2)

	cfg := &domain.ScalpingConfig{
		BaseConfig: domain.BaseConfig{
			Symbol:               in.Symbol,
			StrategyType:         domain.StrategyScalping,
			TradingType:          in.TradingType,
			Notional:             in.Notional,
			MaxPosition:          maxPosition,
			MaxDrawdownPercent:   preset.DrawdownPct,
			StopLossPercent:      preset.StopLossPct,
			MaxDailyLoss:         maxDailyLoss,
			CooldownMs:           preset.CooldownMs,
			PricePrecision:       spec.PricePlace,
			SizePrecision:        spec.VolumePlace,
			PollIntervalMs:       preset.PollIntervalMs,
			OrderCheckIntervalMs: preset.OrderCheckMs,
			Direction:            in.Direction,
		},
		PriceSpread:      priceSpread,
		MaxPendingOrders: preset.MaxPendingOrders,
		MergeThreshold:   preset.MergeThreshold,
	}

	var warnings []string
	if minCoverage := spec.MakerFeeRate + spec.TakerFeeRate; minCoverage > 0 && priceSpread/minCoverage < 200_000 {
		warnings = append(warnings, "priceSpread may not cover round-trip fees at current spread multiplier")
	}
	return Result{Scalping: cfg, Warnings: warnings}, nil
}

func deriveGrid(in Input, presets PresetTable, spec domain.InstrumentSpec, ticker TickerSnapshot, balance float64) (Result, error) {
	preset, ok := presets.Grid[in.RiskLevel]
	if !ok {
		return Result{}, fmt.Errorf("autocalc: unknown risk level %q", in.RiskLevel)
	}
	scalpingPreset, ok := presets.Scalping[in.RiskLevel]
	if !ok {
		return Result{}, fmt.Errorf("autocalc: unknown risk level %q", in.RiskLevel)
	}

	upper := domain.Round(ticker.LastPrice*(1+preset.RangePercent/200), spec.PricePlace)
	lower := domain.Round(ticker.LastPrice*(1-preset.RangePercent/200), spec.PricePlace)

	maxPosition := domain.Round(balance*scalpingPreset.MaxPositionPct, 2)
	maxDailyLoss := domain.Round(balance*scalpingPreset.DailyLossPct, 2)

	cfg := &domain.GridConfig{
		BaseConfig: domain.BaseConfig{
			Symbol:               in.Symbol,
			StrategyType:         domain.StrategyGrid,
			TradingType:          in.TradingType,
			Notional:             in.Notional,
			MaxPosition:          maxPosition,
			MaxDrawdownPercent:   scalpingPreset.DrawdownPct,
			StopLossPercent:      scalpingPreset.StopLossPct,
			MaxDailyLoss:         maxDailyLoss,
			CooldownMs:           scalpingPreset.CooldownMs,
			PricePrecision:       spec.PricePlace,
			SizePrecision:        spec.VolumePlace,
			PollIntervalMs:       scalpingPreset.PollIntervalMs,
			OrderCheckIntervalMs: scalpingPreset.OrderCheckMs,
			Direction:            in.Direction,
		},
		UpperPrice: upper,
		LowerPrice: lower,
		GridCount:  preset.GridCount,
		Kind:       domain.GridArithmetic,
	}

	var warnings []string
	if cfg.GridCount > 0 {
		gridSpacing := (upper - lower) / float64(cfg.GridCount)
		minProfitableSpread := ticker.LastPrice * (spec.MakerFeeRate + spec.TakerFeeRate) * 2
		if gridSpacing < minProfitableSpread {
			warnings = append(warnings, "grid spacing may be below the minimum profitable spread")
		}
	}
	return Result{Grid: cfg, Warnings: warnings}, nil
}

// Bounds reports per-field min/recommended/max based on spec, balance and
// 24h range.
type Bounds struct {
	PriceSpreadMin float64
	PriceSpreadRec float64
	PriceSpreadMax float64
	MaxPositionMin float64
	MaxPositionMax float64
}

func ComputeBounds(spec domain.InstrumentSpec, ticker TickerSnapshot, balance float64) Bounds {
	feeFloor := ticker.LastPrice * (spec.MakerFeeRate + spec.TakerFeeRate)
	return Bounds{
		PriceSpreadMin: domain.Round(feeFloor, spec.PricePlace),
		PriceSpreadRec: domain.Round(feeFloor*2, spec.PricePlace),
		PriceSpreadMax: domain.Round(ticker.Range24h()*0.05, spec.PricePlace),
		MaxPositionMin: domain.Round(balance*0.01, 2),
		MaxPositionMax: domain.Round(balance*0.5, 2),
	}
}
