package specs_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mm-engine/internal/domain"
	"mm-engine/internal/specs"
)

type fakeStore struct {
	specs map[domain.SpecKey]domain.InstrumentSpec
	saves int
}

func (f *fakeStore) LoadSpec(ctx context.Context, key domain.SpecKey) (domain.InstrumentSpec, bool, error) {
	spec, ok := f.specs[key]
	return spec, ok, nil
}

func (f *fakeStore) SaveSpec(ctx context.Context, spec domain.InstrumentSpec) error {
	f.saves++
	if f.specs == nil {
		f.specs = make(map[domain.SpecKey]domain.InstrumentSpec)
	}
	f.specs[domain.SpecKey{Symbol: spec.Symbol, Venue: spec.Venue}] = spec
	return nil
}

func (f *fakeStore) ListSpecs(ctx context.Context, venue domain.VenueKind) ([]domain.InstrumentSpec, error) {
	out := make([]domain.InstrumentSpec, 0, len(f.specs))
	for _, s := range f.specs {
		if s.Venue == venue {
			out = append(out, s)
		}
	}
	return out, nil
}

type fakeLister struct {
	calls int
	specs []domain.InstrumentSpec
}

func (f *fakeLister) ListSymbols(ctx context.Context, venue domain.VenueKind) ([]domain.InstrumentSpec, error) {
	f.calls++
	return f.specs, nil
}

func TestGetSpecFallsThroughTiers(t *testing.T) {
	lister := &fakeLister{specs: []domain.InstrumentSpec{
		{Symbol: "BTCUSDT", Venue: domain.VenueDerivatives, PricePlace: 1, VolumePlace: 6, Status: "online"},
	}}
	store := &fakeStore{}
	cache := specs.New(store, lister, nil)

	spec, err := cache.GetSpec(context.Background(), "BTCUSDT", domain.VenueDerivatives)
	require.NoError(t, err)
	require.Equal(t, 1, spec.PricePlace)
	require.Equal(t, 1, lister.calls)
	require.Equal(t, 1, store.saves)

	// second call should hit memory, not the exchange.
	_, err = cache.GetSpec(context.Background(), "BTCUSDT", domain.VenueDerivatives)
	require.NoError(t, err)
	require.Equal(t, 1, lister.calls)
}

func TestGetSpecUnknownSymbolFails(t *testing.T) {
	lister := &fakeLister{}
	cache := specs.New(&fakeStore{}, lister, nil)
	_, err := cache.GetSpec(context.Background(), "DOESNOTEXIST", domain.VenueDerivatives)
	require.ErrorIs(t, err, domain.ErrInstrumentSpecNotFound)
}

func TestListAvailableFiltersSpotQuoteCoin(t *testing.T) {
	lister := &fakeLister{specs: []domain.InstrumentSpec{
		{Symbol: "BTCUSDT", BaseCoin: "BTC", QuoteCoin: "USDT", Venue: domain.VenueSpot, Status: "online"},
		{Symbol: "BTCEUR", BaseCoin: "BTC", QuoteCoin: "EUR", Venue: domain.VenueSpot, Status: "online"},
	}}
	cache := specs.New(&fakeStore{}, lister, nil)
	result, err := cache.ListAvailable(context.Background(), domain.VenueSpot, "BTC")
	require.NoError(t, err)
	require.Len(t, result, 1)
	require.Equal(t, "BTCUSDT", result[0].Symbol)
}

func TestGetHotPairsSkipsFailedLookups(t *testing.T) {
	lister := &fakeLister{specs: []domain.InstrumentSpec{
		{Symbol: "BTCUSDT", Venue: domain.VenueDerivatives, Status: "online"},
	}}
	cache := specs.New(&fakeStore{}, lister, nil)
	pairs := cache.GetHotPairs(context.Background(), domain.VenueDerivatives)
	require.Len(t, pairs, 1)
}

func TestGetSpecServesMemoryEntryWithinTTL(t *testing.T) {
	lister := &fakeLister{specs: []domain.InstrumentSpec{
		{Symbol: "BTCUSDT", Venue: domain.VenueDerivatives, PricePlace: 2, Status: "online"},
	}}
	cache := specs.New(&fakeStore{}, lister, nil)
	_, err := cache.GetSpec(context.Background(), "BTCUSDT", domain.VenueDerivatives)
	require.NoError(t, err)
	require.Equal(t, 1, lister.calls)

	time.Sleep(time.Millisecond)
	_, err = cache.GetSpec(context.Background(), "BTCUSDT", domain.VenueDerivatives)
	require.NoError(t, err)
	require.Equal(t, 1, lister.calls) // still within the 1h TTL
}
