package exchangeiface_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"mm-engine/internal/domain"
	"mm-engine/internal/exchangeiface"
)

// fakeClient is the hand-written fake standing in for the signed
// transport; it answers with whatever envelope the test case queues per
// path, matching how the reconciler/order tests fake the gateway.
type fakeClient struct {
	byPath map[string]exchangeiface.Envelope
	err    error
}

func (f *fakeClient) Do(ctx context.Context, method, path string, query map[string]string, body any) (exchangeiface.Envelope, error) {
	if f.err != nil {
		return exchangeiface.Envelope{}, f.err
	}
	return f.byPath[path], nil
}

func env(t *testing.T, data any) exchangeiface.Envelope {
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	return exchangeiface.Envelope{Code: "00000", Data: raw}
}

func TestFactoryBuildSpotDerivesEquityFromAvailable(t *testing.T) {
	client := &fakeClient{byPath: map[string]exchangeiface.Envelope{
		"/api/v2/spot/account/assets": env(t, []map[string]string{{"coin": "USDT", "available": "123.45"}}),
	}}
	f := exchangeiface.NewFactory(client, "")
	services := f.Build(context.Background(), domain.TradingSpot, "BTCUSDT", domain.PositionModeUnset)

	eq, err := services.Account.GetAccountEquity(context.Background(), "USDT")
	require.NoError(t, err)
	require.Equal(t, 123.45, eq.Equity)
	require.Equal(t, 123.45, eq.Available)
	require.Zero(t, eq.UnrealizedPL)
}

func TestFactoryBuildDerivativesDefaultsToDoubleHoldOnFailure(t *testing.T) {
	client := &fakeClient{err: domain.NewError(domain.KindExchangeTransport, "account", nil)}
	f := exchangeiface.NewFactory(client, "")
	services := f.Build(context.Background(), domain.TradingDerivatives, "BTCUSDT", domain.PositionModeUnset)

	require.Equal(t, exchangeiface.HoldModeDouble, services.HoldMode)
}

func TestFactoryBuildDerivativesHonorsOverride(t *testing.T) {
	client := &fakeClient{}
	f := exchangeiface.NewFactory(client, "")
	services := f.Build(context.Background(), domain.TradingDerivatives, "BTCUSDT", domain.PositionModeSingle)

	require.Equal(t, exchangeiface.HoldModeSingle, services.HoldMode)
}

func TestClassifyPreservesExchangeCode(t *testing.T) {
	err := exchangeiface.Classify(exchangeiface.Envelope{Code: domain.CodeNoPosition, Msg: "no position"}, nil)
	require.Error(t, err)

	var exchErr *domain.ExchangeError
	de, ok := err.(*domain.Error)
	require.True(t, ok)
	require.ErrorAs(t, de, &exchErr)
	require.Equal(t, domain.CodeNoPosition, exchErr.Code)
}
