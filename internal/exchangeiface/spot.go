package exchangeiface

import (
	"context"
)

type spotOrderService struct {
	client RawClient
}

func newSpotOrderService(client RawClient) *spotOrderService {
	return &spotOrderService{client: client}
}

func (s *spotOrderService) PlaceOrder(ctx context.Context, p PlaceOrderParams) (PlaceOrderResult, error) {
	orderType := p.OrderType
	if orderType == "" {
		orderType = OrderTypeLimit
	}
	body := map[string]any{
		"symbol":    p.Symbol,
		"clientOid": p.ClientOID,
		"side":      p.Side,
		"orderType": orderType,
		"force":     p.Force,
		"size":      p.Size,
	}
	if orderType != OrderTypeMarket {
		body["price"] = p.Price
	}
	var out struct {
		OrderID string `json:"orderId"`
	}
	if err := Call(ctx, s.client, "POST", "/api/v2/spot/trade/place-order", nil, body, &out); err != nil {
		return PlaceOrderResult{}, err
	}
	return PlaceOrderResult{OrderID: out.OrderID}, nil
}

func (s *spotOrderService) CancelOrder(ctx context.Context, symbol, orderID string) error {
	body := map[string]any{"symbol": symbol, "orderId": orderID}
	return Call(ctx, s.client, "POST", "/api/v2/spot/trade/cancel-order", nil, body, nil)
}

// BatchCancelOrders degrades to per-order cancellation whenever the batch
// endpoint fails.
func (s *spotOrderService) BatchCancelOrders(ctx context.Context, symbol string, orderIDs []string) (CancelResult, error) {
	body := map[string]any{"symbol": symbol, "orderIdList": orderIDs}
	var out struct {
		SuccessList []struct {
			OrderID string `json:"orderId"`
		} `json:"successList"`
	}
	if err := Call(ctx, s.client, "POST", "/api/v2/spot/trade/batch-cancel-orders", nil, body, &out); err == nil {
		res := CancelResult{}
		succeeded := make(map[string]bool, len(out.SuccessList))
		for _, item := range out.SuccessList {
			res.Succeeded = append(res.Succeeded, item.OrderID)
			succeeded[item.OrderID] = true
		}
		for _, id := range orderIDs {
			if !succeeded[id] {
				res.Failed = append(res.Failed, id)
			}
		}
		return res, nil
	}

	res := CancelResult{}
	for _, id := range orderIDs {
		if err := s.CancelOrder(ctx, symbol, id); err != nil {
			res.Failed = append(res.Failed, id)
		} else {
			res.Succeeded = append(res.Succeeded, id)
		}
	}
	return res, nil
}

func (s *spotOrderService) GetPendingOrders(ctx context.Context, symbol string) ([]OrderDetail, error) {
	var out struct {
		Orders []rawOrderDetail `json:"orderList"`
	}
	query := map[string]string{"symbol": symbol}
	if err := Call(ctx, s.client, "GET", "/api/v2/spot/trade/unfilled-orders", query, nil, &out); err != nil {
		return nil, err
	}
	return toOrderDetails(out.Orders), nil
}

func (s *spotOrderService) GetOrderDetail(ctx context.Context, symbol, orderID string) (OrderDetail, error) {
	var out rawOrderDetail
	query := map[string]string{"symbol": symbol, "orderId": orderID}
	if err := Call(ctx, s.client, "GET", "/api/v2/spot/trade/orderInfo", query, nil, &out); err != nil {
		return OrderDetail{}, err
	}
	return out.toDetail(), nil
}

type spotMarketData struct {
	client RawClient
}

func newSpotMarketData(client RawClient) *spotMarketData {
	return &spotMarketData{client: client}
}

func (m *spotMarketData) rawTicker(ctx context.Context, symbol string) (struct {
	LastPr  string `json:"lastPr"`
	High24h string `json:"high24h"`
	Low24h  string `json:"low24h"`
	BidPr   string `json:"bidPr"`
	AskPr   string `json:"askPr"`
}, error) {
	var out struct {
		LastPr  string `json:"lastPr"`
		High24h string `json:"high24h"`
		Low24h  string `json:"low24h"`
		BidPr   string `json:"bidPr"`
		AskPr   string `json:"askPr"`
	}
	query := map[string]string{"symbol": symbol}
	err := Call(ctx, m.client, "GET", "/api/v2/spot/market/tickers", query, nil, &out)
	return out, err
}

func (m *spotMarketData) GetTicker(ctx context.Context, symbol string) (Ticker, error) {
	out, err := m.rawTicker(ctx, symbol)
	if err != nil {
		return Ticker{}, err
	}
	return Ticker{LastPrice: out.LastPr, High24h: out.High24h, Low24h: out.Low24h, BestBid: out.BidPr, BestAsk: out.AskPr}, nil
}

func (m *spotMarketData) GetBestBid(ctx context.Context, symbol string) (string, error) {
	out, err := m.rawTicker(ctx, symbol)
	return out.BidPr, err
}

func (m *spotMarketData) GetBestAsk(ctx context.Context, symbol string) (string, error) {
	out, err := m.rawTicker(ctx, symbol)
	return out.AskPr, err
}

type spotAccount struct {
	client RawClient
}

func newSpotAccount(client RawClient) *spotAccount {
	return &spotAccount{client: client}
}

func (a *spotAccount) GetAvailableBalance(ctx context.Context, coin string) (float64, error) {
	var out []struct {
		Coin      string `json:"coin"`
		Available string `json:"available"`
	}
	query := map[string]string{"coin": coin}
	if err := Call(ctx, a.client, "GET", "/api/v2/spot/account/assets", query, nil, &out); err != nil {
		return 0, err
	}
	for _, row := range out {
		if row.Coin == coin {
			v, err := parseFloats(row.Available)
			if err != nil {
				return 0, err
			}
			return v[0], nil
		}
	}
	return 0, nil
}

// GetAccountEquity for spot: equity == available, unrealizedPL == 0.
func (a *spotAccount) GetAccountEquity(ctx context.Context, coin string) (Equity, error) {
	avail, err := a.GetAvailableBalance(ctx, coin)
	if err != nil {
		return Equity{}, err
	}
	return Equity{Equity: avail, Available: avail, UnrealizedPL: 0}, nil
}
