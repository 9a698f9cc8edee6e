package specs

import (
	"context"
	"strings"
	"sync"
	"time"

	"mm-engine/internal/domain"
	"mm-engine/internal/metrics"
)

// Store is the durable tier: tabular spot_specs / contract_specs rows.
type Store interface {
	LoadSpec(ctx context.Context, key domain.SpecKey) (domain.InstrumentSpec, bool, error)
	SaveSpec(ctx context.Context, spec domain.InstrumentSpec) error
	ListSpecs(ctx context.Context, venue domain.VenueKind) ([]domain.InstrumentSpec, error)
}

// ExchangeLister is the exchange public endpoint: returns every symbol for
// a venue kind in one call; the cache filters down to a single row.
type ExchangeLister interface {
	ListSymbols(ctx context.Context, venue domain.VenueKind) ([]domain.InstrumentSpec, error)
}

var hotPairs = []string{"BTCUSDT", "ETHUSDT", "SOLUSDT", "XRPUSDT", "DOGEUSDT", "BNBUSDT", "ADAUSDT", "AVAXUSDT"}

// Cache is the three-tier instrument-spec cache: in-memory TTL, durable
// store, exchange public endpoint.
type Cache struct {
	mu      sync.RWMutex
	memory  map[domain.SpecKey]domain.InstrumentSpec
	store   Store
	lister  ExchangeLister
	metrics *metrics.Registry
	now     func() time.Time
}

func New(store Store, lister ExchangeLister, m *metrics.Registry) *Cache {
	return &Cache{
		memory:  make(map[domain.SpecKey]domain.InstrumentSpec),
		store:   store,
		lister:  lister,
		metrics: m,
		now:     time.Now,
	}
}

// GetSpec walks the tiers in order: memory -> durable store -> exchange.
func (c *Cache) GetSpec(ctx context.Context, symbol string, venue domain.VenueKind) (domain.InstrumentSpec, error) {
	key := domain.SpecKey{Symbol: symbol, Venue: venue}

	if spec, ok := c.fromMemory(key); ok {
		c.hit()
		return spec, nil
	}

	if c.store != nil {
		if spec, ok, err := c.store.LoadSpec(ctx, key); err == nil && ok && spec.Fresh(c.now()) {
			c.hit()
			c.putMemory(spec)
			return spec, nil
		}
	}

	c.miss()
	return c.RefreshSpec(ctx, symbol, venue)
}

// RefreshSpec forces tier 3: the exchange public endpoint.
func (c *Cache) RefreshSpec(ctx context.Context, symbol string, venue domain.VenueKind) (domain.InstrumentSpec, error) {
	if c.lister == nil {
		return domain.InstrumentSpec{}, domain.ErrInstrumentSpecNotFound
	}
	all, err := c.lister.ListSymbols(ctx, venue)
	if err != nil {
		return domain.InstrumentSpec{}, err
	}
	for _, spec := range all {
		if spec.Symbol != symbol {
			continue
		}
		spec.FetchedAt = c.now()
		c.putMemory(spec)
		if c.store != nil {
			_ = c.store.SaveSpec(ctx, spec)
		}
		return spec, nil
	}
	return domain.InstrumentSpec{}, domain.ErrInstrumentSpecNotFound
}

// ListAvailable returns up to 50 entries filtered by uppercase substring
// match on symbol or baseCoin, restricted to online/normal status and (for
// spot) quoteCoin == USDT.
func (c *Cache) ListAvailable(ctx context.Context, venue domain.VenueKind, search string) ([]domain.InstrumentSpec, error) {
	var all []domain.InstrumentSpec
	if c.lister != nil {
		listed, err := c.lister.ListSymbols(ctx, venue)
		if err != nil {
			return nil, err
		}
		all = listed
	} else if c.store != nil {
		listed, err := c.store.ListSpecs(ctx, venue)
		if err != nil {
			return nil, err
		}
		all = listed
	}

	upperSearch := strings.ToUpper(search)
	out := make([]domain.InstrumentSpec, 0, 50)
	for _, spec := range all {
		if spec.Status != "" && spec.Status != "online" && spec.Status != "normal" {
			continue
		}
		if venue == domain.VenueSpot && spec.QuoteCoin != "USDT" {
			continue
		}
		if upperSearch != "" &&
			!strings.Contains(strings.ToUpper(spec.Symbol), upperSearch) &&
			!strings.Contains(strings.ToUpper(spec.BaseCoin), upperSearch) {
			continue
		}
		out = append(out, spec)
		if len(out) == 50 {
			break
		}
	}
	return out, nil
}

// GetHotPairs returns resolved specs for a small hard-coded popularity
// list, skipping entries that fail lookup.
func (c *Cache) GetHotPairs(ctx context.Context, venue domain.VenueKind) []domain.InstrumentSpec {
	out := make([]domain.InstrumentSpec, 0, len(hotPairs))
	for _, sym := range hotPairs {
		spec, err := c.GetSpec(ctx, sym, venue)
		if err != nil {
			continue
		}
		out = append(out, spec)
	}
	return out
}

func (c *Cache) fromMemory(key domain.SpecKey) (domain.InstrumentSpec, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	spec, ok := c.memory[key]
	if !ok || !spec.Fresh(c.now()) {
		return domain.InstrumentSpec{}, false
	}
	return spec, true
}

func (c *Cache) putMemory(spec domain.InstrumentSpec) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.memory[domain.SpecKey{Symbol: spec.Symbol, Venue: spec.Venue}] = spec
}

func (c *Cache) hit() {
	if c.metrics != nil {
		c.metrics.SpecCacheHits.Inc()
	}
}

func (c *Cache) miss() {
	if c.metrics != nil {
		c.metrics.SpecCacheMisses.Inc()
	}
}
