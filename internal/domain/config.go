package domain

// StrategyType tags which variant a StrategyConfig carries.
type StrategyType string

const (
	StrategyScalping StrategyType = "scalping"
	StrategyGrid     StrategyType = "grid"
)

// TradingType selects the trading-service adapter family.
type TradingType string

const (
	TradingDerivatives TradingType = "derivatives"
	TradingSpot        TradingType = "spot"
)

// GridType selects the ladder spacing formula.
type GridType string

const (
	GridArithmetic GridType = "arithmetic"
	GridGeometric  GridType = "geometric"
)

// PositionMode overrides automatic hold-mode detection. Empty means trust
// the detected/defaulted mode.
type PositionMode string

const (
	PositionModeUnset  PositionMode = ""
	PositionModeSingle PositionMode = "single_hold"
	PositionModeDouble PositionMode = "double_hold"
)

// BaseConfig carries the fields shared by every strategy variant.
type BaseConfig struct {
	InstanceID  string
	Symbol      string
	StrategyType StrategyType
	TradingType TradingType

	Notional    float64
	MaxPosition float64

	MaxDrawdownPercent float64
	StopLossPercent    float64
	MaxDailyLoss       float64
	CooldownMs         int64

	PricePrecision int
	SizePrecision  int

	PollIntervalMs       int64
	OrderCheckIntervalMs int64

	// Derivatives-only, ignored by spot adapters.
	ProductType  string
	MarginMode   string
	MarginCoin   string
	Leverage     int
	Direction    Direction
	PositionModeOverride PositionMode
}

// ScalpingConfig is the scalping variant.
type ScalpingConfig struct {
	BaseConfig
	PriceSpread     float64
	MaxPendingOrders int
	MergeThreshold   int
}

// GridConfig is the grid variant.
type GridConfig struct {
	BaseConfig
	UpperPrice float64
	LowerPrice float64
	GridCount  int
	Kind       GridType
}

// ImmutableKeys is the set of field names a running config may never
// change via a partial update.
var ImmutableKeys = map[string]bool{
	"symbol":       true,
	"strategyType": true,
	"tradingType":  true,
	"marginMode":   true,
	"marginCoin":   true,
	"productType":  true,
	"instanceId":   true,
}
