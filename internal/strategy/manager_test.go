package strategy_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"mm-engine/internal/domain"
	"mm-engine/internal/exchangeiface"
	"mm-engine/internal/specs"
	"mm-engine/internal/strategy"
)

type fakeStore struct{}

func (f *fakeStore) LoadSpec(ctx context.Context, key domain.SpecKey) (domain.InstrumentSpec, bool, error) {
	return domain.InstrumentSpec{}, false, nil
}
func (f *fakeStore) SaveSpec(ctx context.Context, spec domain.InstrumentSpec) error { return nil }
func (f *fakeStore) ListSpecs(ctx context.Context, venue domain.VenueKind) ([]domain.InstrumentSpec, error) {
	return nil, nil
}

type fakeLister struct{ specs []domain.InstrumentSpec }

func (f *fakeLister) ListSymbols(ctx context.Context, venue domain.VenueKind) ([]domain.InstrumentSpec, error) {
	return f.specs, nil
}

type fakeRawClient struct{}

func (f *fakeRawClient) Do(ctx context.Context, method, path string, query map[string]string, body any) (exchangeiface.Envelope, error) {
	return exchangeiface.Envelope{Code: "00000", Data: json.RawMessage(`{}`)}, nil
}

func newTestManager() *strategy.Manager {
	lister := &fakeLister{specs: []domain.InstrumentSpec{
		{Symbol: "BTCUSDT", Venue: domain.VenueSpot, PricePlace: 1, VolumePlace: 4, MinTradeNum: 0.0001, MakerFeeRate: 0.0002, TakerFeeRate: 0.0006},
	}}
	cache := specs.New(&fakeStore{}, lister, nil)
	factory := exchangeiface.NewFactory(&fakeRawClient{}, "")
	return strategy.NewManager(cache, factory, nil, nil, nil, nil)
}

func baseScalpingConfig() domain.ScalpingConfig {
	cfg := strategy.DefaultScalpingConfig()
	cfg.Symbol = "BTCUSDT"
	cfg.Notional = 100
	cfg.MaxPosition = 10000
	cfg.PriceSpread = 0.5
	return cfg
}

func TestCreateAndStartRejectsInvalidConfig(t *testing.T) {
	mgr := newTestManager()
	cfg := baseScalpingConfig()
	cfg.Notional = 0

	err := mgr.CreateAndStart(context.Background(), cfg)
	require.ErrorIs(t, err, domain.ErrConfigInvalid)
	require.Equal(t, domain.StateStopped, mgr.GetState())
}

func TestCreateAndStartFailsWhenAlreadyRunning(t *testing.T) {
	mgr := newTestManager()
	cfg := baseScalpingConfig()

	require.NoError(t, mgr.CreateAndStart(context.Background(), cfg))
	require.Equal(t, domain.StateRunning, mgr.GetState())

	err := mgr.CreateAndStart(context.Background(), cfg)
	require.ErrorIs(t, err, domain.ErrAlreadyRunning)

	require.NoError(t, mgr.StopActive(context.Background()))
	require.Equal(t, domain.StateStopped, mgr.GetState())
}

func TestStopActiveIsNoopWhenNothingActive(t *testing.T) {
	mgr := newTestManager()
	require.NoError(t, mgr.StopActive(context.Background()))
	require.NoError(t, mgr.EmergencyStopActive(context.Background()))
}

func TestListHistoryRecordsStoppedInstance(t *testing.T) {
	mgr := newTestManager()
	cfg := baseScalpingConfig()

	require.NoError(t, mgr.CreateAndStart(context.Background(), cfg))
	require.NoError(t, mgr.StopActive(context.Background()))

	history := mgr.ListHistory(10)
	require.Len(t, history, 1)
	require.Equal(t, domain.StateStopped, history[0].Status)
	require.Equal(t, "BTCUSDT", history[0].Symbol)
}
