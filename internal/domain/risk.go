package domain

// RiskState is the risk controller's per-instance mutable state. Lifetime
// equals the owning strategy instance.
type RiskState struct {
	PeakEquity    float64
	CurrentEquity float64
	DailyPnl      float64
	DailyResetKey string // UTC date, "2006-01-02"
	CoolingUntil  int64  // epoch ms, 0 means not cooling

	TotalTrades int64
	WinTrades   int64
	LossTrades  int64
	SumWin      float64
	SumLoss     float64
}

// Snapshot returns a value copy safe to hand to metrics/alerting.
func (r *RiskState) Snapshot() RiskState {
	return *r
}
