// Package strategy owns the process-wide strategy manager singleton and
// the mutable config it hands to whichever engine variant is active.
package strategy

import (
	"fmt"
	"sync"

	"mm-engine/internal/domain"
)

// DefaultScalpingConfig returns the baseline scalping config before any
// overrides are applied.
func DefaultScalpingConfig() domain.ScalpingConfig {
	return domain.ScalpingConfig{
		BaseConfig: domain.BaseConfig{
			StrategyType:         domain.StrategyScalping,
			TradingType:          domain.TradingSpot,
			MaxDrawdownPercent:   10,
			MaxDailyLoss:         0,
			CooldownMs:           60_000,
			PricePrecision:       2,
			SizePrecision:        4,
			PollIntervalMs:       500,
			OrderCheckIntervalMs: 1000,
			Leverage:             1,
		},
		PriceSpread:      0,
		MaxPendingOrders: 20,
		MergeThreshold:   5,
	}
}

// DefaultGridConfig returns the baseline grid config before any
// overrides are applied.
func DefaultGridConfig() domain.GridConfig {
	return domain.GridConfig{
		BaseConfig: domain.BaseConfig{
			StrategyType:         domain.StrategyGrid,
			TradingType:          domain.TradingSpot,
			MaxDrawdownPercent:   10,
			MaxDailyLoss:         0,
			CooldownMs:           60_000,
			PricePrecision:       2,
			SizePrecision:        4,
			PollIntervalMs:       1000,
			OrderCheckIntervalMs: 1000,
			Leverage:             1,
		},
		GridCount: 10,
		Kind:      domain.GridArithmetic,
	}
}

// ConfigManager owns one mutable strategy config, enforcing the
// immutable-key set on update and rolling back on a failed validation.
type ConfigManager struct {
	mu           sync.RWMutex
	scalping     *domain.ScalpingConfig
	grid         *domain.GridConfig
}

// NewScalpingConfigManager applies overrides on top of the scalping
// default and validates the result.
func NewScalpingConfigManager(overrides domain.ScalpingConfig) (*ConfigManager, error) {
	cfg := mergeScalping(DefaultScalpingConfig(), overrides)
	if err := ValidateScalping(cfg); err != nil {
		return nil, err
	}
	return &ConfigManager{scalping: &cfg}, nil
}

// NewGridConfigManager applies overrides on top of the grid default and
// validates the result.
func NewGridConfigManager(overrides domain.GridConfig) (*ConfigManager, error) {
	cfg := mergeGrid(DefaultGridConfig(), overrides)
	if err := ValidateGrid(cfg); err != nil {
		return nil, err
	}
	return &ConfigManager{grid: &cfg}, nil
}

func (m *ConfigManager) Scalping() domain.ScalpingConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return *m.scalping
}

func (m *ConfigManager) Grid() domain.GridConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return *m.grid
}

// UpdateScalping applies a partial update, refusing any change to an
// immutable key, validating the merged result, and rolling back to the
// prior config if validation fails.
func (m *ConfigManager) UpdateScalping(partial map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.scalping == nil {
		return domain.ErrNotRunning
	}
	if err := rejectImmutableKeys(partial); err != nil {
		return err
	}
	next := *m.scalping
	if err := applyPartialScalping(&next, partial); err != nil {
		return err
	}
	if err := ValidateScalping(next); err != nil {
		return err
	}
	m.scalping = &next
	return nil
}

// UpdateGrid mirrors UpdateScalping for the grid variant.
func (m *ConfigManager) UpdateGrid(partial map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.grid == nil {
		return domain.ErrNotRunning
	}
	if err := rejectImmutableKeys(partial); err != nil {
		return err
	}
	next := *m.grid
	if err := applyPartialGrid(&next, partial); err != nil {
		return err
	}
	if err := ValidateGrid(next); err != nil {
		return err
	}
	m.grid = &next
	return nil
}

func rejectImmutableKeys(partial map[string]any) error {
	for k := range partial {
		if domain.ImmutableKeys[k] {
			return domain.ErrConfigImmutableKey
		}
	}
	return nil
}

func mergeScalping(base, overrides domain.ScalpingConfig) domain.ScalpingConfig {
	if overrides.Symbol != "" {
		base.Symbol = overrides.Symbol
	}
	if overrides.TradingType != "" {
		base.TradingType = overrides.TradingType
	}
	if overrides.Notional != 0 {
		base.Notional = overrides.Notional
	}
	if overrides.MaxPosition != 0 {
		base.MaxPosition = overrides.MaxPosition
	}
	if overrides.MaxDrawdownPercent != 0 {
		base.MaxDrawdownPercent = overrides.MaxDrawdownPercent
	}
	if overrides.MaxDailyLoss != 0 {
		base.MaxDailyLoss = overrides.MaxDailyLoss
	}
	if overrides.CooldownMs != 0 {
		base.CooldownMs = overrides.CooldownMs
	}
	if overrides.PricePrecision != 0 {
		base.PricePrecision = overrides.PricePrecision
	}
	if overrides.SizePrecision != 0 {
		base.SizePrecision = overrides.SizePrecision
	}
	if overrides.PollIntervalMs != 0 {
		base.PollIntervalMs = overrides.PollIntervalMs
	}
	if overrides.OrderCheckIntervalMs != 0 {
		base.OrderCheckIntervalMs = overrides.OrderCheckIntervalMs
	}
	if overrides.Leverage != 0 {
		base.Leverage = overrides.Leverage
	}
	if overrides.ProductType != "" {
		base.ProductType = overrides.ProductType
	}
	if overrides.MarginMode != "" {
		base.MarginMode = overrides.MarginMode
	}
	if overrides.MarginCoin != "" {
		base.MarginCoin = overrides.MarginCoin
	}
	if overrides.PositionModeOverride != "" {
		base.PositionModeOverride = overrides.PositionModeOverride
	}
	if overrides.PriceSpread != 0 {
		base.PriceSpread = overrides.PriceSpread
	}
	if overrides.MaxPendingOrders != 0 {
		base.MaxPendingOrders = overrides.MaxPendingOrders
	}
	if overrides.MergeThreshold != 0 {
		base.MergeThreshold = overrides.MergeThreshold
	}
	return base
}

func mergeGrid(base, overrides domain.GridConfig) domain.GridConfig {
	if overrides.Symbol != "" {
		base.Symbol = overrides.Symbol
	}
	if overrides.TradingType != "" {
		base.TradingType = overrides.TradingType
	}
	if overrides.Notional != 0 {
		base.Notional = overrides.Notional
	}
	if overrides.MaxPosition != 0 {
		base.MaxPosition = overrides.MaxPosition
	}
	if overrides.MaxDrawdownPercent != 0 {
		base.MaxDrawdownPercent = overrides.MaxDrawdownPercent
	}
	if overrides.MaxDailyLoss != 0 {
		base.MaxDailyLoss = overrides.MaxDailyLoss
	}
	if overrides.CooldownMs != 0 {
		base.CooldownMs = overrides.CooldownMs
	}
	if overrides.PricePrecision != 0 {
		base.PricePrecision = overrides.PricePrecision
	}
	if overrides.SizePrecision != 0 {
		base.SizePrecision = overrides.SizePrecision
	}
	if overrides.PollIntervalMs != 0 {
		base.PollIntervalMs = overrides.PollIntervalMs
	}
	if overrides.OrderCheckIntervalMs != 0 {
		base.OrderCheckIntervalMs = overrides.OrderCheckIntervalMs
	}
	if overrides.Leverage != 0 {
		base.Leverage = overrides.Leverage
	}
	if overrides.ProductType != "" {
		base.ProductType = overrides.ProductType
	}
	if overrides.MarginMode != "" {
		base.MarginMode = overrides.MarginMode
	}
	if overrides.MarginCoin != "" {
		base.MarginCoin = overrides.MarginCoin
	}
	if overrides.PositionModeOverride != "" {
		base.PositionModeOverride = overrides.PositionModeOverride
	}
	if overrides.UpperPrice != 0 {
		base.UpperPrice = overrides.UpperPrice
	}
	if overrides.LowerPrice != 0 {
		base.LowerPrice = overrides.LowerPrice
	}
	if overrides.GridCount != 0 {
		base.GridCount = overrides.GridCount
	}
	if overrides.Kind != "" {
		base.Kind = overrides.Kind
	}
	return base
}

// applyPartialScalping applies a handful of commonly-patched numeric
// fields from an untyped partial; an unrecognized key is rejected with an
// "unknown config key" error.
func applyPartialScalping(cfg *domain.ScalpingConfig, partial map[string]any) error {
	for k, v := range partial {
		switch k {
		case "notional":
			cfg.Notional = toFloat(v)
		case "maxPosition":
			cfg.MaxPosition = toFloat(v)
		case "maxDrawdownPercent":
			cfg.MaxDrawdownPercent = toFloat(v)
		case "maxDailyLoss":
			cfg.MaxDailyLoss = toFloat(v)
		case "cooldownMs":
			cfg.CooldownMs = toInt64(v)
		case "pollIntervalMs":
			cfg.PollIntervalMs = toInt64(v)
		case "orderCheckIntervalMs":
			cfg.OrderCheckIntervalMs = toInt64(v)
		case "priceSpread":
			cfg.PriceSpread = toFloat(v)
		case "maxPendingOrders":
			cfg.MaxPendingOrders = int(toInt64(v))
		case "mergeThreshold":
			cfg.MergeThreshold = int(toInt64(v))
		case "leverage":
			cfg.Leverage = int(toInt64(v))
		default:
			return fmt.Errorf("unknown config key %q", k)
		}
	}
	return nil
}

func applyPartialGrid(cfg *domain.GridConfig, partial map[string]any) error {
	for k, v := range partial {
		switch k {
		case "notional":
			cfg.Notional = toFloat(v)
		case "maxPosition":
			cfg.MaxPosition = toFloat(v)
		case "maxDrawdownPercent":
			cfg.MaxDrawdownPercent = toFloat(v)
		case "maxDailyLoss":
			cfg.MaxDailyLoss = toFloat(v)
		case "cooldownMs":
			cfg.CooldownMs = toInt64(v)
		case "pollIntervalMs":
			cfg.PollIntervalMs = toInt64(v)
		case "orderCheckIntervalMs":
			cfg.OrderCheckIntervalMs = toInt64(v)
		case "upperPrice":
			cfg.UpperPrice = toFloat(v)
		case "lowerPrice":
			cfg.LowerPrice = toFloat(v)
		case "gridCount":
			cfg.GridCount = int(toInt64(v))
		case "leverage":
			cfg.Leverage = int(toInt64(v))
		default:
			return fmt.Errorf("unknown config key %q", k)
		}
	}
	return nil
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}

// ValidateScalping enforces the shared base rules plus scalping's own.
func ValidateScalping(cfg domain.ScalpingConfig) error {
	if err := validateBase(cfg.BaseConfig); err != nil {
		return err
	}
	if cfg.PriceSpread <= 0 {
		return domain.ErrConfigInvalid
	}
	if cfg.MaxPendingOrders < 1 || cfg.MaxPendingOrders > 500 {
		return domain.ErrConfigInvalid
	}
	if cfg.MergeThreshold < 2 || cfg.MergeThreshold > cfg.MaxPendingOrders {
		return domain.ErrConfigInvalid
	}
	return nil
}

// ValidateGrid enforces the shared base rules plus grid's own.
func ValidateGrid(cfg domain.GridConfig) error {
	if err := validateBase(cfg.BaseConfig); err != nil {
		return err
	}
	if cfg.GridCount < 2 || cfg.GridCount > 200 {
		return domain.ErrConfigInvalid
	}
	if cfg.UpperPrice != 0 && cfg.LowerPrice != 0 && cfg.UpperPrice <= cfg.LowerPrice {
		return domain.ErrConfigInvalid
	}
	return nil
}

func validateBase(cfg domain.BaseConfig) error {
	if cfg.Symbol == "" {
		return domain.ErrConfigInvalid
	}
	if cfg.Notional <= 0 {
		return domain.ErrConfigInvalid
	}
	if cfg.MaxPosition <= 0 {
		return domain.ErrConfigInvalid
	}
	if cfg.TradingType == domain.TradingDerivatives && (cfg.Leverage < 1 || cfg.Leverage > 125) {
		return domain.ErrConfigInvalid
	}
	if cfg.PollIntervalMs < 200 {
		return domain.ErrConfigInvalid
	}
	if cfg.OrderCheckIntervalMs < 500 {
		return domain.ErrConfigInvalid
	}
	if cfg.MaxDrawdownPercent <= 0 || cfg.MaxDrawdownPercent > 100 {
		return domain.ErrConfigInvalid
	}
	if cfg.CooldownMs < 0 {
		return domain.ErrConfigInvalid
	}
	if cfg.PricePrecision < 0 || cfg.PricePrecision > 8 {
		return domain.ErrConfigInvalid
	}
	if cfg.SizePrecision < 0 || cfg.SizePrecision > 8 {
		return domain.ErrConfigInvalid
	}
	return nil
}
