package risk_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mm-engine/internal/risk"
)

func TestControllerDailyLossEntersCooldown(t *testing.T) {
	c := risk.NewController(risk.ControllerConfig{
		MaxDailyLoss: 100,
		CooldownMs:   60_000,
		InitialEquity: 1000,
	}, nil, nil)

	c.RecordPnl(-150)
	denial := c.Evaluate(0)
	require.NotNil(t, denial)
	require.Equal(t, risk.DenyDailyLoss, denial.Reason)

	denial2 := c.Evaluate(0)
	require.NotNil(t, denial2)
	require.Equal(t, risk.DenyCooldown, denial2.Reason)
	require.Greater(t, denial2.RemainingSecs, int64(0))
}

func TestControllerDrawdownDeniesAndCoolsDown(t *testing.T) {
	c := risk.NewController(risk.ControllerConfig{
		MaxDrawdownPercent: 10,
		CooldownMs:         1000,
		InitialEquity:      1000,
	}, nil, nil)

	c.UpdateEquity(1000)
	c.UpdateEquity(880) // 12% drawdown from peak 1000

	denial := c.Evaluate(0)
	require.NotNil(t, denial)
	require.Equal(t, risk.DenyDrawdown, denial.Reason)
}

func TestControllerPositionCapDeniesWithoutCooldown(t *testing.T) {
	c := risk.NewController(risk.ControllerConfig{
		MaxPosition:   500,
		InitialEquity: 1000,
	}, nil, nil)

	denial := c.Evaluate(500)
	require.NotNil(t, denial)
	require.Equal(t, risk.DenyPosition, denial.Reason)
	require.Zero(t, denial.RemainingSecs)

	// position cap carries no cooldown; the very next evaluation below cap passes.
	require.Nil(t, c.Evaluate(100))
}

func TestControllerAllowsWhenWithinLimits(t *testing.T) {
	c := risk.NewController(risk.ControllerConfig{
		MaxDailyLoss:       1000,
		MaxDrawdownPercent: 50,
		MaxPosition:        1000,
		InitialEquity:      1000,
	}, nil, nil)

	require.Nil(t, c.Evaluate(10))
}

func TestControllerRecordPnlTracksWinLossAndPeak(t *testing.T) {
	c := risk.NewController(risk.ControllerConfig{InitialEquity: 1000}, nil, nil)
	c.RecordPnl(50)
	c.RecordPnl(-20)

	snap := c.Snapshot()
	require.Equal(t, int64(2), snap.TotalTrades)
	require.Equal(t, int64(1), snap.WinTrades)
	require.Equal(t, int64(1), snap.LossTrades)
	require.Equal(t, 1050.0, snap.PeakEquity)
	require.InDelta(t, 1030.0, snap.CurrentEquity, 1e-9)
}

func TestControllerDailyPnlAccumulatesWithinSameUTCDay(t *testing.T) {
	c := risk.NewController(risk.ControllerConfig{InitialEquity: 1000}, nil, nil)
	c.RecordPnl(-10)
	require.Equal(t, -10.0, c.Snapshot().DailyPnl)

	// The daily reset key is not exposed and rolling real time forward in
	// a unit test is undesirable, so this test only verifies that same-day
	// accumulation stays intact.
	time.Sleep(time.Millisecond)
	c.RecordPnl(-5)
	require.Equal(t, -15.0, c.Snapshot().DailyPnl)
}
