package autocalc_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"mm-engine/internal/autocalc"
	"mm-engine/internal/domain"
)

func testSpec() domain.InstrumentSpec {
	return domain.InstrumentSpec{
		Symbol: "BTCUSDT", Venue: domain.VenueDerivatives,
		PricePlace: 1, VolumePlace: 6,
		MakerFeeRate: 0.0002, TakerFeeRate: 0.0006,
		MinTradeNum: 0.000001,
	}
}

func TestDeriveScalpingIsDeterministic(t *testing.T) {
	presets := autocalc.DefaultPresetTable()
	spec := testSpec()
	ticker := autocalc.TickerSnapshot{LastPrice: 70000, High24h: 71000, Low24h: 69000}

	in := autocalc.Input{
		StrategyType: domain.StrategyScalping,
		TradingType:  domain.TradingDerivatives,
		Symbol:       "BTCUSDT",
		Notional:     10,
		RiskLevel:    autocalc.RiskBalanced,
	}

	r1, err := autocalc.Derive(in, presets, spec, ticker, 5000)
	require.NoError(t, err)
	r2, err := autocalc.Derive(in, presets, spec, ticker, 5000)
	require.NoError(t, err)

	require.Equal(t, r1.Scalping.PriceSpread, r2.Scalping.PriceSpread)
	require.Equal(t, r1.Scalping.MaxPosition, r2.Scalping.MaxPosition)
}

func TestDeriveScalpingUsesFeeFloorWhenAboveRangeFloor(t *testing.T) {
	presets := autocalc.DefaultPresetTable()
	spec := testSpec()
	// tight 24h range so the fee-derived floor dominates.
	ticker := autocalc.TickerSnapshot{LastPrice: 70000, High24h: 70010, Low24h: 70000}

	in := autocalc.Input{
		StrategyType: domain.StrategyScalping,
		TradingType:  domain.TradingDerivatives,
		Symbol:       "BTCUSDT",
		Notional:     10,
		RiskLevel:    autocalc.RiskConservative,
	}

	res, err := autocalc.Derive(in, presets, spec, ticker, 5000)
	require.NoError(t, err)

	minSpread := 70000 * (0.0002 + 0.0006) * 3.0
	require.InDelta(t, domain.Round(minSpread, 1), res.Scalping.PriceSpread, 1e-9)
}

func TestDeriveGridBoundsSanity(t *testing.T) {
	presets := autocalc.DefaultPresetTable()
	spec := domain.InstrumentSpec{Symbol: "ETHUSDT", PricePlace: 2, VolumePlace: 4, MakerFeeRate: 0.0002, TakerFeeRate: 0.0006}
	ticker := autocalc.TickerSnapshot{LastPrice: 3000, High24h: 3100, Low24h: 2900}

	in := autocalc.Input{
		StrategyType: domain.StrategyGrid,
		TradingType:  domain.TradingDerivatives,
		Symbol:       "ETHUSDT",
		Notional:     10,
		RiskLevel:    autocalc.RiskBalanced,
	}

	res, err := autocalc.Derive(in, presets, spec, ticker, 5000)
	require.NoError(t, err)
	require.Greater(t, res.Grid.UpperPrice, res.Grid.LowerPrice)
	require.Equal(t, 20, res.Grid.GridCount)
}

func TestDeriveRejectsUnknownRiskLevel(t *testing.T) {
	presets := autocalc.DefaultPresetTable()
	spec := testSpec()
	ticker := autocalc.TickerSnapshot{LastPrice: 70000}

	in := autocalc.Input{StrategyType: domain.StrategyScalping, RiskLevel: "unknown"}
	_, err := autocalc.Derive(in, presets, spec, ticker, 1000)
	require.Error(t, err)
}

func TestComputeBoundsOrdering(t *testing.T) {
	spec := testSpec()
	ticker := autocalc.TickerSnapshot{LastPrice: 70000, High24h: 71000, Low24h: 69000}
	b := autocalc.ComputeBounds(spec, ticker, 5000)
	require.LessOrEqual(t, b.PriceSpreadMin, b.PriceSpreadRec)
	require.LessOrEqual(t, b.MaxPositionMin, b.MaxPositionMax)
}
