package exchangeiface

import (
	"context"
	"fmt"

	"mm-engine/internal/domain"
)

// derivativesOrderService talks to the futures endpoints; it always
// forwards productType/marginMode/marginCoin/tradeSide.
type derivativesOrderService struct {
	client      RawClient
	productType string
}

func newDerivativesOrderService(client RawClient, productType string) *derivativesOrderService {
	return &derivativesOrderService{client: client, productType: productType}
}

func (s *derivativesOrderService) PlaceOrder(ctx context.Context, p PlaceOrderParams) (PlaceOrderResult, error) {
	orderType := p.OrderType
	if orderType == "" {
		orderType = OrderTypeLimit
	}
	body := map[string]any{
		"symbol":      p.Symbol,
		"clientOid":   p.ClientOID,
		"side":        p.Side,
		"orderType":   orderType,
		"force":       p.Force,
		"size":        p.Size,
		"productType": s.productType,
		"marginMode":  p.MarginMode,
		"marginCoin":  p.MarginCoin,
	}
	if orderType != OrderTypeMarket {
		body["price"] = p.Price
	}
	if p.HasTradeSide {
		body["tradeSide"] = p.TradeSide
	}
	var out struct {
		OrderID string `json:"orderId"`
	}
	if err := Call(ctx, s.client, "POST", "/api/v2/mix/order/place-order", nil, body, &out); err != nil {
		return PlaceOrderResult{}, err
	}
	return PlaceOrderResult{OrderID: out.OrderID}, nil
}

func (s *derivativesOrderService) CancelOrder(ctx context.Context, symbol, orderID string) error {
	body := map[string]any{"symbol": symbol, "orderId": orderID, "productType": s.productType}
	return Call(ctx, s.client, "POST", "/api/v2/mix/order/cancel-order", nil, body, nil)
}

func (s *derivativesOrderService) BatchCancelOrders(ctx context.Context, symbol string, orderIDs []string) (CancelResult, error) {
	body := map[string]any{"symbol": symbol, "orderIdList": orderIDs, "productType": s.productType}
	var out struct {
		SuccessList []struct {
			OrderID string `json:"orderId"`
		} `json:"successList"`
		FailureList []struct {
			OrderID string `json:"orderId"`
		} `json:"failureList"`
	}
	if err := Call(ctx, s.client, "POST", "/api/v2/mix/order/batch-cancel-orders", nil, body, &out); err != nil {
		return CancelResult{}, err
	}
	res := CancelResult{}
	for _, s := range out.SuccessList {
		res.Succeeded = append(res.Succeeded, s.OrderID)
	}
	for _, f := range out.FailureList {
		res.Failed = append(res.Failed, f.OrderID)
	}
	return res, nil
}

func (s *derivativesOrderService) GetPendingOrders(ctx context.Context, symbol string) ([]OrderDetail, error) {
	var out struct {
		EntrustedList []rawOrderDetail `json:"entrustedList"`
	}
	query := map[string]string{"symbol": symbol, "productType": s.productType}
	if err := Call(ctx, s.client, "GET", "/api/v2/mix/order/orders-pending", query, nil, &out); err != nil {
		return nil, err
	}
	return toOrderDetails(out.EntrustedList), nil
}

func (s *derivativesOrderService) GetOrderDetail(ctx context.Context, symbol, orderID string) (OrderDetail, error) {
	var out rawOrderDetail
	query := map[string]string{"symbol": symbol, "orderId": orderID, "productType": s.productType}
	if err := Call(ctx, s.client, "GET", "/api/v2/mix/order/detail", query, nil, &out); err != nil {
		return OrderDetail{}, err
	}
	return out.toDetail(), nil
}

type rawOrderDetail struct {
	OrderID string `json:"orderId"`
	State   string `json:"state"`
	Price   string `json:"price"`
	Size    string `json:"size"`
}

func (r rawOrderDetail) toDetail() OrderDetail {
	return OrderDetail{OrderID: r.OrderID, State: normalizeState(r.State), Price: r.Price, Size: r.Size}
}

func toOrderDetails(raw []rawOrderDetail) []OrderDetail {
	out := make([]OrderDetail, 0, len(raw))
	for _, r := range raw {
		out = append(out, r.toDetail())
	}
	return out
}

// normalizeState maps the exchange's state vocabulary onto the
// reconciler's dispatch set: {live, new} -> live; partially_filled;
// filled; cancelled/canceled -> cancelled.
func normalizeState(raw string) string {
	switch raw {
	case "live", "new":
		return "live"
	case "cancelled", "canceled":
		return "cancelled"
	default:
		return raw
	}
}

type derivativesMarketData struct {
	client      RawClient
	productType string
}

func newDerivativesMarketData(client RawClient, productType string) *derivativesMarketData {
	return &derivativesMarketData{client: client, productType: productType}
}

func (m *derivativesMarketData) GetTicker(ctx context.Context, symbol string) (Ticker, error) {
	var out struct {
		LastPr  string `json:"lastPr"`
		High24h string `json:"high24h"`
		Low24h  string `json:"low24h"`
	}
	query := map[string]string{"symbol": symbol, "productType": m.productType}
	if err := Call(ctx, m.client, "GET", "/api/v2/mix/market/ticker", query, nil, &out); err != nil {
		return Ticker{}, err
	}
	bid, ask, err := m.depthOne(ctx, symbol)
	if err != nil {
		return Ticker{}, err
	}
	return Ticker{LastPrice: out.LastPr, High24h: out.High24h, Low24h: out.Low24h, BestBid: bid, BestAsk: ask}, nil
}

func (m *derivativesMarketData) depthOne(ctx context.Context, symbol string) (bid, ask string, err error) {
	var out struct {
		Bids [][2]string `json:"bids"`
		Asks [][2]string `json:"asks"`
	}
	query := map[string]string{"symbol": symbol, "productType": m.productType, "limit": "1"}
	if err := Call(ctx, m.client, "GET", "/api/v2/mix/market/merge-depth", query, nil, &out); err != nil {
		return "", "", err
	}
	if len(out.Bids) > 0 {
		bid = out.Bids[0][0]
	}
	if len(out.Asks) > 0 {
		ask = out.Asks[0][0]
	}
	return bid, ask, nil
}

func (m *derivativesMarketData) GetBestBid(ctx context.Context, symbol string) (string, error) {
	bid, _, err := m.depthOne(ctx, symbol)
	return bid, err
}

func (m *derivativesMarketData) GetBestAsk(ctx context.Context, symbol string) (string, error) {
	_, ask, err := m.depthOne(ctx, symbol)
	return ask, err
}

type derivativesAccount struct {
	client      RawClient
	productType string
}

func newDerivativesAccount(client RawClient, productType string) *derivativesAccount {
	return &derivativesAccount{client: client, productType: productType}
}

func (a *derivativesAccount) GetAvailableBalance(ctx context.Context, marginCoin string) (float64, error) {
	eq, err := a.GetAccountEquity(ctx, marginCoin)
	if err != nil {
		return 0, err
	}
	return eq.Available, nil
}

func (a *derivativesAccount) GetAccountEquity(ctx context.Context, marginCoin string) (Equity, error) {
	var out struct {
		Equity          string `json:"equity"`
		Available       string `json:"available"`
		UnrealizedPL    string `json:"unrealizedPL"`
	}
	query := map[string]string{"marginCoin": marginCoin, "productType": a.productType}
	if err := Call(ctx, a.client, "GET", "/api/v2/mix/account/account", query, nil, &out); err != nil {
		return Equity{}, err
	}
	eq, err := parseFloats(out.Equity, out.Available, out.UnrealizedPL)
	if err != nil {
		return Equity{}, err
	}
	return Equity{Equity: eq[0], Available: eq[1], UnrealizedPL: eq[2]}, nil
}

// getHoldMode consults the position-mode endpoint once per start; on
// failure the caller defaults to double_hold (the safe bias documented
// for papertrading).
func (a *derivativesAccount) getHoldMode(ctx context.Context, symbol string) (HoldMode, error) {
	var out struct {
		PosMode string `json:"posMode"`
	}
	query := map[string]string{"symbol": symbol, "productType": a.productType}
	if err := Call(ctx, a.client, "GET", "/api/v2/mix/account/account", query, nil, &out); err != nil {
		return "", err
	}
	if out.PosMode == string(HoldModeSingle) {
		return HoldModeSingle, nil
	}
	return HoldModeDouble, nil
}

func parseFloats(ss ...string) ([]float64, error) {
	out := make([]float64, len(ss))
	for i, s := range ss {
		v, err := domain.ParseDecimal(s)
		if err != nil {
			return nil, fmt.Errorf("parse %q: %w", s, err)
		}
		out[i] = v
	}
	return out, nil
}
