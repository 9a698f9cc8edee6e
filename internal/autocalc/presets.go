package autocalc

// RiskLevel selects a row of the preset table.
type RiskLevel string

const (
	RiskConservative RiskLevel = "conservative"
	RiskBalanced     RiskLevel = "balanced"
	RiskAggressive   RiskLevel = "aggressive"
)

// Preset is one row of the scalping preset table, values exactly as
// specified.
type Preset struct {
	SpreadMultiplier  float64 `yaml:"spreadMultiplier"`
	MaxPositionPct    float64 `yaml:"maxPositionPct"`
	DailyLossPct      float64 `yaml:"dailyLossPct"`
	DrawdownPct       float64 `yaml:"drawdownPct"`
	StopLossPct       float64 `yaml:"stopLossPct"`
	MaxPendingOrders  int     `yaml:"maxPendingOrders"`
	MergeThreshold    int     `yaml:"mergeThreshold"`
	PollIntervalMs    int64   `yaml:"pollIntervalMs"`
	OrderCheckMs      int64   `yaml:"orderCheckMs"`
	CooldownMs        int64   `yaml:"cooldownMs"`
}

// GridPreset is one row of the grid preset table.
type GridPreset struct {
	RangePercent float64 `yaml:"rangePercent"`
	GridCount    int     `yaml:"gridCount"`
}

// PresetTable holds both the scalping and grid preset rows, keyed by risk
// level, loaded from the application config yaml.
type PresetTable struct {
	Scalping map[RiskLevel]Preset     `yaml:"scalping"`
	Grid     map[RiskLevel]GridPreset `yaml:"grid"`
}

// DefaultPresetTable returns the exact values specified for the scalping
// and grid preset tables.
func DefaultPresetTable() PresetTable {
	return PresetTable{
		Scalping: map[RiskLevel]Preset{
			RiskConservative: {
				SpreadMultiplier: 3.0, MaxPositionPct: 0.10, DailyLossPct: 0.02,
				DrawdownPct: 3, StopLossPct: 2, MaxPendingOrders: 100, MergeThreshold: 15,
				PollIntervalMs: 2000, OrderCheckMs: 3000, CooldownMs: 120000,
			},
			RiskBalanced: {
				SpreadMultiplier: 2.0, MaxPositionPct: 0.20, DailyLossPct: 0.05,
				DrawdownPct: 5, StopLossPct: 3, MaxPendingOrders: 200, MergeThreshold: 21,
				PollIntervalMs: 1000, OrderCheckMs: 2000, CooldownMs: 60000,
			},
			RiskAggressive: {
				SpreadMultiplier: 1.5, MaxPositionPct: 0.40, DailyLossPct: 0.10,
				DrawdownPct: 10, StopLossPct: 5, MaxPendingOrders: 300, MergeThreshold: 30,
				PollIntervalMs: 500, OrderCheckMs: 1000, CooldownMs: 30000,
			},
		},
		Grid: map[RiskLevel]GridPreset{
			RiskConservative: {RangePercent: 5, GridCount: 10},
			RiskBalanced:     {RangePercent: 10, GridCount: 20},
			RiskAggressive:   {RangePercent: 20, GridCount: 50},
		},
	}
}
