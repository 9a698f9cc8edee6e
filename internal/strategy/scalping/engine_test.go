package scalping_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"mm-engine/internal/domain"
	"mm-engine/internal/exchangeiface"
	"mm-engine/internal/strategy/scalping"
)

type fakeOrderService struct {
	placeResult exchangeiface.PlaceOrderResult
	placeErr    error
	placed      []exchangeiface.PlaceOrderParams
	pending     []exchangeiface.OrderDetail
}

func (f *fakeOrderService) PlaceOrder(ctx context.Context, p exchangeiface.PlaceOrderParams) (exchangeiface.PlaceOrderResult, error) {
	f.placed = append(f.placed, p)
	return f.placeResult, f.placeErr
}
func (f *fakeOrderService) CancelOrder(ctx context.Context, symbol, orderID string) error { return nil }
func (f *fakeOrderService) BatchCancelOrders(ctx context.Context, symbol string, orderIDs []string) (exchangeiface.CancelResult, error) {
	return exchangeiface.CancelResult{Succeeded: orderIDs}, nil
}
func (f *fakeOrderService) GetPendingOrders(ctx context.Context, symbol string) ([]exchangeiface.OrderDetail, error) {
	return f.pending, nil
}
func (f *fakeOrderService) GetOrderDetail(ctx context.Context, symbol, orderID string) (exchangeiface.OrderDetail, error) {
	return exchangeiface.OrderDetail{}, nil
}

type fakeMarketData struct{ bid string }

func (f *fakeMarketData) GetTicker(ctx context.Context, symbol string) (exchangeiface.Ticker, error) {
	return exchangeiface.Ticker{}, nil
}
func (f *fakeMarketData) GetBestBid(ctx context.Context, symbol string) (string, error) { return f.bid, nil }
func (f *fakeMarketData) GetBestAsk(ctx context.Context, symbol string) (string, error) { return f.bid, nil }

type fakeAccount struct{}

func (f *fakeAccount) GetAvailableBalance(ctx context.Context, marginCoin string) (float64, error) {
	return 1000, nil
}
func (f *fakeAccount) GetAccountEquity(ctx context.Context, marginCoin string) (exchangeiface.Equity, error) {
	return exchangeiface.Equity{Equity: 1000, Available: 1000}, nil
}

func baseDeps(orders *fakeOrderService, market *fakeMarketData) scalping.Deps {
	return scalping.Deps{
		Config: domain.ScalpingConfig{
			BaseConfig: domain.BaseConfig{
				Symbol: "BTCUSDT", Notional: 100, MaxPosition: 10000,
				PricePrecision: 1, SizePrecision: 4, PollIntervalMs: 200, OrderCheckIntervalMs: 500,
			},
			PriceSpread: 0.5, MaxPendingOrders: 5, MergeThreshold: 2,
		},
		Spec:     domain.InstrumentSpec{Symbol: "BTCUSDT", MinTradeNum: 0.0001, MakerFeeRate: 0.0002, TakerFeeRate: 0.0006},
		Services: exchangeiface.Services{Order: orders, Market: market, Account: &fakeAccount{}},
	}
}

func TestEngineStartEmitsStartedEvent(t *testing.T) {
	orders := &fakeOrderService{}
	market := &fakeMarketData{bid: "100"}
	e := scalping.New(baseDeps(orders, market))

	require.NoError(t, e.Start(context.Background()))
	require.Equal(t, domain.StateRunning, e.State())

	events := e.Events(10)
	require.NotEmpty(t, events)
	require.Equal(t, domain.EventStrategyStarted, events[0].Type)

	require.NoError(t, e.Stop(context.Background()))
	require.Equal(t, domain.StateStopped, e.State())
}

func TestEngineStartRejectsInvalidConfig(t *testing.T) {
	orders := &fakeOrderService{}
	market := &fakeMarketData{bid: "100"}
	deps := baseDeps(orders, market)
	deps.Config.Notional = 0
	e := scalping.New(deps)

	err := e.Start(context.Background())
	require.ErrorIs(t, err, domain.ErrConfigInvalid)
	require.Equal(t, domain.StateStopped, e.State())
}
