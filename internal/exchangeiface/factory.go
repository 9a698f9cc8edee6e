package exchangeiface

import (
	"context"

	"mm-engine/internal/domain"
)

// Factory builds the order/market-data/account triple for a tradingType.
type Factory struct {
	client      RawClient
	productType string
}

func NewFactory(client RawClient, productType string) *Factory {
	if productType == "" {
		productType = "USDT-FUTURES"
	}
	return &Factory{client: client, productType: productType}
}

// Build returns the capability triple. For derivatives it additionally
// consults getHoldMode once and caches it on the returned Services; on
// failure it defaults to double_hold, the safer bias because the
// exchange's hedge-mode endpoint rejects a missing tradeSide outright.
// An operator-set PositionModeOverride is trusted over the detected or
// defaulted mode.
func (f *Factory) Build(ctx context.Context, tradingType domain.TradingType, symbol string, override domain.PositionMode) Services {
	switch tradingType {
	case domain.TradingSpot:
		return Services{
			Order:   newSpotOrderService(f.client),
			Market:  newSpotMarketData(f.client),
			Account: newSpotAccount(f.client),
		}
	default:
		account := newDerivativesAccount(f.client, f.productType)
		holdMode := HoldModeDouble
		switch override {
		case domain.PositionModeSingle:
			holdMode = HoldModeSingle
		case domain.PositionModeDouble:
			holdMode = HoldModeDouble
		default:
			if detected, err := account.getHoldMode(ctx, symbol); err == nil {
				holdMode = detected
			}
		}
		return Services{
			Order:    newDerivativesOrderService(f.client, f.productType),
			Market:   newDerivativesMarketData(f.client, f.productType),
			Account:  account,
			HoldMode: holdMode,
		}
	}
}
