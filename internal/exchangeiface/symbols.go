package exchangeiface

import (
	"context"

	"mm-engine/internal/domain"
)

// SymbolLister is the instrument-spec cache's tier-3 exchange source: the
// public contract/symbol endpoints, queried once per miss and filtered
// down to a single row by the cache.
type SymbolLister struct {
	client      RawClient
	productType string
}

func NewSymbolLister(client RawClient, productType string) *SymbolLister {
	if productType == "" {
		productType = "USDT-FUTURES"
	}
	return &SymbolLister{client: client, productType: productType}
}

type rawSymbolInfo struct {
	Symbol          string `json:"symbol"`
	BaseCoin        string `json:"baseCoin"`
	QuoteCoin       string `json:"quoteCoin"`
	PricePlace      string `json:"pricePlace"`
	VolumePlace     string `json:"volumePlace"`
	MinTradeNum     string `json:"minTradeNum"`
	MinTradeAmount  string `json:"minTradeAmount"`
	SizeMultiplier  string `json:"sizeMultiplier"`
	MakerFeeRate    string `json:"makerFeeRate"`
	TakerFeeRate    string `json:"takerFeeRate"`
	Status          string `json:"status"`
	SymbolStatus    string `json:"symbolStatus"`
}

func (r rawSymbolInfo) toSpec(venue domain.VenueKind) domain.InstrumentSpec {
	pricePlace, _ := parseFloats(orDefault(r.PricePlace, "0"))
	volumePlace, _ := parseFloats(orDefault(r.VolumePlace, "0"))
	minTrade, _ := parseFloats(orDefault(r.MinTradeNum, r.MinTradeAmount))
	sizeMult, _ := parseFloats(orDefault(r.SizeMultiplier, "1"))
	makerFee, _ := parseFloats(orDefault(r.MakerFeeRate, "0"))
	takerFee, _ := parseFloats(orDefault(r.TakerFeeRate, "0"))

	status := r.Status
	if status == "" {
		status = r.SymbolStatus
	}

	spec := domain.InstrumentSpec{
		Symbol: r.Symbol, Venue: venue, BaseCoin: r.BaseCoin, QuoteCoin: r.QuoteCoin, Status: status,
	}
	if len(pricePlace) > 0 {
		spec.PricePlace = int(pricePlace[0])
	}
	if len(volumePlace) > 0 {
		spec.VolumePlace = int(volumePlace[0])
	}
	if len(minTrade) > 0 {
		spec.MinTradeNum = minTrade[0]
	}
	if len(sizeMult) > 0 {
		spec.SizeMultiplier = sizeMult[0]
	} else {
		spec.SizeMultiplier = 1
	}
	if len(makerFee) > 0 {
		spec.MakerFeeRate = makerFee[0]
	}
	if len(takerFee) > 0 {
		spec.TakerFeeRate = takerFee[0]
	}
	return spec
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func (l *SymbolLister) ListSymbols(ctx context.Context, venue domain.VenueKind) ([]domain.InstrumentSpec, error) {
	var raw []rawSymbolInfo
	var err error
	if venue == domain.VenueSpot {
		err = Call(ctx, l.client, "GET", "/api/v2/spot/public/symbols", nil, nil, &raw)
	} else {
		query := map[string]string{"productType": l.productType}
		err = Call(ctx, l.client, "GET", "/api/v2/mix/market/contracts", query, nil, &raw)
	}
	if err != nil {
		return nil, err
	}

	specs := make([]domain.InstrumentSpec, 0, len(raw))
	for _, r := range raw {
		specs = append(specs, r.toSpec(venue))
	}
	return specs, nil
}
