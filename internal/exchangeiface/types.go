package exchangeiface

import (
	"context"

	"mm-engine/internal/domain"
)

// TradeSide distinguishes opening vs closing intent in hedge mode.
type TradeSide string

const (
	TradeSideOpen  TradeSide = "open"
	TradeSideClose TradeSide = "close"
)

// Force is the order's time-in-force.
type Force string

const (
	ForcePostOnly Force = "post_only"
	ForceGTC      Force = "gtc"
)

// OrderType distinguishes a resting limit order from an immediate-execution
// market order. Zero value behaves as OrderTypeLimit.
type OrderType string

const (
	OrderTypeLimit  OrderType = "limit"
	OrderTypeMarket OrderType = "market"
)

// PlaceOrderParams is the unified parameter struct both adapter families
// accept; derivatives-only fields are ignored by the spot adapter. Price is
// ignored when OrderType is OrderTypeMarket.
type PlaceOrderParams struct {
	Symbol    string
	ClientOID string
	Side      domain.OrderSide
	Price     string
	Size      string
	Force     Force
	OrderType OrderType

	ProductType string
	MarginMode  string
	MarginCoin  string
	TradeSide   TradeSide
	HasTradeSide bool
}

// PlaceOrderResult is the adapter's response to a successful placement.
type PlaceOrderResult struct {
	OrderID string
}

// CancelResult partitions a batch cancel into successes and failures.
type CancelResult struct {
	Succeeded []string
	Failed    []string
}

// OrderDetail is the authoritative exchange-side order state the
// reconciler dispatches on.
type OrderDetail struct {
	OrderID string
	State   string // live, new, partially_filled, filled, cancelled, canceled
	Price   string
	Size    string
}

// OrderService is the order capability: placeOrder, cancelOrder,
// batchCancelOrders, getPendingOrders, getOrderDetail.
type OrderService interface {
	PlaceOrder(ctx context.Context, p PlaceOrderParams) (PlaceOrderResult, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
	BatchCancelOrders(ctx context.Context, symbol string, orderIDs []string) (CancelResult, error)
	GetPendingOrders(ctx context.Context, symbol string) ([]OrderDetail, error)
	GetOrderDetail(ctx context.Context, symbol, orderID string) (OrderDetail, error)
}

// Ticker is the subset of ticker fields the core consumes.
type Ticker struct {
	LastPrice string
	High24h   string
	Low24h    string
	BestBid   string
	BestAsk   string
}

// MarketDataService is the market-data capability. Spot derives bid/ask
// from a ticker row; derivatives calls a depth endpoint at depth 1.
type MarketDataService interface {
	GetTicker(ctx context.Context, symbol string) (Ticker, error)
	GetBestBid(ctx context.Context, symbol string) (string, error)
	GetBestAsk(ctx context.Context, symbol string) (string, error)
}

// Equity is the account capability's equity snapshot.
type Equity struct {
	Equity       float64
	Available    float64
	UnrealizedPL float64
}

// AccountService is the account capability. For spot, Equity.Equity ==
// Available and UnrealizedPL == 0.
type AccountService interface {
	GetAvailableBalance(ctx context.Context, marginCoin string) (float64, error)
	GetAccountEquity(ctx context.Context, marginCoin string) (Equity, error)
}

// HoldMode is the derivatives position-mode result the factory caches on
// the engine once per start.
type HoldMode string

const (
	HoldModeSingle HoldMode = "single_hold"
	HoldModeDouble HoldMode = "double_hold"
)

// Services is the triple an engine depends on.
type Services struct {
	Order   OrderService
	Market  MarketDataService
	Account AccountService
	// HoldMode is only meaningful for derivatives; zero value for spot.
	HoldMode HoldMode
}
