package grid

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"mm-engine/internal/domain"
	"mm-engine/internal/exchangeiface"
)

type nopOrderService struct{}

func (nopOrderService) PlaceOrder(ctx context.Context, p exchangeiface.PlaceOrderParams) (exchangeiface.PlaceOrderResult, error) {
	return exchangeiface.PlaceOrderResult{}, nil
}
func (nopOrderService) CancelOrder(ctx context.Context, symbol, orderID string) error { return nil }
func (nopOrderService) BatchCancelOrders(ctx context.Context, symbol string, orderIDs []string) (exchangeiface.CancelResult, error) {
	return exchangeiface.CancelResult{}, nil
}
func (nopOrderService) GetPendingOrders(ctx context.Context, symbol string) ([]exchangeiface.OrderDetail, error) {
	return nil, nil
}
func (nopOrderService) GetOrderDetail(ctx context.Context, symbol, orderID string) (exchangeiface.OrderDetail, error) {
	return exchangeiface.OrderDetail{}, nil
}

type nopMarketData struct{}

func (nopMarketData) GetTicker(ctx context.Context, symbol string) (exchangeiface.Ticker, error) {
	return exchangeiface.Ticker{}, nil
}
func (nopMarketData) GetBestBid(ctx context.Context, symbol string) (string, error) { return "", nil }
func (nopMarketData) GetBestAsk(ctx context.Context, symbol string) (string, error) { return "", nil }

type nopAccount struct{}

func (nopAccount) GetAvailableBalance(ctx context.Context, coin string) (float64, error) { return 0, nil }
func (nopAccount) GetAccountEquity(ctx context.Context, coin string) (exchangeiface.Equity, error) {
	return exchangeiface.Equity{}, nil
}

// pnlTestEngine builds the lower=100/upper=110/gridCount=10 ladder used by
// the paired-fill worked example: level 3 at 103, level 4 at 104.
func pnlTestEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := domain.GridConfig{
		BaseConfig: domain.BaseConfig{
			Symbol: "BTCUSDT", Notional: 10, MaxPosition: 10000,
			PricePrecision: 2, SizePrecision: 4, PollIntervalMs: 200,
			MaxDrawdownPercent: 50,
		},
		UpperPrice: 110, LowerPrice: 100, GridCount: 10, Kind: domain.GridArithmetic,
	}
	e, err := New(Deps{
		Config:   cfg,
		Spec:     domain.InstrumentSpec{Symbol: "BTCUSDT", MakerFeeRate: 0.0002, TakerFeeRate: 0.0006},
		Services: exchangeiface.Services{Order: nopOrderService{}, Market: nopMarketData{}, Account: nopAccount{}},
	})
	require.NoError(t, err)
	return e
}

func TestRecordGridPnlUsesPairedBuyAndSellPrices(t *testing.T) {
	e := pnlTestEngine(t)
	lvl := e.levels[3]
	require.Equal(t, "103.00", lvl.Price)
	require.Equal(t, "0.0971", lvl.Size)

	e.recordGridPnl(lvl)

	net := e.riskCtl.Snapshot().DailyPnl
	require.InDelta(t, 0.0931, net, 0.001)
}

// TestPlaceSellsClaimsLevelSynchronously guards the fix for the race where
// overlapping ticks could both select a buy_filled level before the first
// placement goroutine finished settling.
func TestPlaceSellsClaimsLevelSynchronously(t *testing.T) {
	e := pnlTestEngine(t)
	e.levels[3].State = domain.LevelBuyFilled

	e.placeSells(context.Background())

	require.Equal(t, domain.LevelSellPending, e.levels[3].State)

	// A second call, representing the next tick firing before the settle
	// delay elapses, must find no remaining buy_filled candidates.
	before := len(e.levels)
	candidatesBefore := 0
	for i := 0; i < before; i++ {
		if e.levels[i].State == domain.LevelBuyFilled {
			candidatesBefore++
		}
	}
	require.Zero(t, candidatesBefore)
}
