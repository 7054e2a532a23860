package alpaca

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"bigdipper/pkg/broker"
)

// Provider implements broker.Provider on top of the Alpaca REST client.
type Provider struct {
	client *Client
}

// NewProvider wraps a configured client.
func NewProvider(client *Client) *Provider {
	return &Provider{client: client}
}

// GetAccount fetches a fresh account snapshot.
func (p *Provider) GetAccount(ctx context.Context) (*broker.Account, error) {
	const op = "get_account"
	var resp accountResponse
	if err := p.client.do(ctx, op, http.MethodGet, p.client.tradingEndpoint("/v2/account"), nil, &resp); err != nil {
		return nil, err
	}
	return &broker.Account{
		Equity:            parseFloat(resp.Equity),
		Cash:              parseFloat(resp.Cash),
		BuyingPower:       parseFloat(resp.RegTBuyingPower),
		MaintenanceMargin: parseFloat(resp.MaintenanceMargin),
		Currency:          resp.Currency,
	}, nil
}

// GetPositions fetches all open positions.
func (p *Provider) GetPositions(ctx context.Context) ([]broker.Position, error) {
	const op = "get_positions"
	var resp []positionResponse
	if err := p.client.do(ctx, op, http.MethodGet, p.client.tradingEndpoint("/v2/positions"), nil, &resp); err != nil {
		return nil, err
	}
	out := make([]broker.Position, 0, len(resp))
	for _, raw := range resp {
		out = append(out, broker.Position{
			Symbol:        raw.Symbol,
			Qty:           parseFloat(raw.Qty),
			AvgEntryPrice: parseFloat(raw.AvgEntryPrice),
			MarketValue:   parseFloat(raw.MarketValue),
			AssetClass:    broker.AssetClass(raw.AssetClass),
		})
	}
	return out, nil
}

// GetBars fetches daily bars covering the lookback window, oldest first.
// Twice the window in calendar days is requested so weekends and holidays
// still leave enough trading days.
func (p *Provider) GetBars(ctx context.Context, symbol string, lookbackDays int) ([]broker.Bar, error) {
	const op = "get_bars"
	if lookbackDays <= 0 {
		return nil, fmt.Errorf("alpaca: lookbackDays must be positive")
	}
	start := time.Now().AddDate(0, 0, -2*lookbackDays)
	query := url.Values{}
	query.Set("timeframe", "1Day")
	query.Set("start", start.UTC().Format(time.RFC3339))
	query.Set("limit", strconv.Itoa(2*lookbackDays))
	query.Set("adjustment", "split")

	var resp barsResponse
	endpoint := p.client.dataEndpoint("/v2/stocks/"+url.PathEscape(symbol)+"/bars", query)
	if err := p.client.do(ctx, op, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}
	out := make([]broker.Bar, 0, len(resp.Bars))
	for _, raw := range resp.Bars {
		out = append(out, broker.Bar{
			Timestamp: raw.Timestamp,
			Open:      raw.Open,
			High:      raw.High,
			Low:       raw.Low,
			Close:     raw.Close,
			Volume:    raw.Volume,
		})
	}
	return out, nil
}

// GetLatestQuote fetches the latest top-of-book quote.
func (p *Provider) GetLatestQuote(ctx context.Context, symbol string) (*broker.Quote, error) {
	const op = "get_latest_quote"
	var resp latestQuoteResponse
	endpoint := p.client.dataEndpoint("/v2/stocks/"+url.PathEscape(symbol)+"/quotes/latest", nil)
	if err := p.client.do(ctx, op, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}
	return &broker.Quote{
		Symbol:    symbol,
		BidPrice:  resp.Quote.BidPrice,
		BidSize:   resp.Quote.BidSize,
		AskPrice:  resp.Quote.AskPrice,
		AskSize:   resp.Quote.AskSize,
		Timestamp: resp.Quote.Timestamp,
	}, nil
}

// GetClock fetches the venue market clock.
func (p *Provider) GetClock(ctx context.Context) (*broker.Clock, error) {
	const op = "get_clock"
	var resp clockResponse
	if err := p.client.do(ctx, op, http.MethodGet, p.client.tradingEndpoint("/v2/clock"), nil, &resp); err != nil {
		return nil, err
	}
	return &broker.Clock{
		Timestamp: resp.Timestamp,
		IsOpen:    resp.IsOpen,
		NextOpen:  resp.NextOpen,
		NextClose: resp.NextClose,
	}, nil
}

// SubmitLimitOrder places a day limit order.
func (p *Provider) SubmitLimitOrder(ctx context.Context, req broker.OrderRequest) (*broker.Order, error) {
	const op = "submit_limit_order"
	if req.Qty <= 0 {
		return nil, fmt.Errorf("alpaca: order qty must be positive")
	}
	if req.LimitPrice <= 0 {
		return nil, fmt.Errorf("alpaca: limit price must be positive")
	}
	clientID := req.ClientOrderID
	if clientID == "" {
		clientID = uuid.NewString()
	}
	payload := orderRequestPayload{
		Symbol:        req.Symbol,
		Qty:           formatQty(req.Qty),
		Side:          string(req.Side),
		Type:          "limit",
		TimeInForce:   "day",
		LimitPrice:    strconv.FormatFloat(req.LimitPrice, 'f', 2, 64),
		ExtendedHours: req.ExtendedHours,
		ClientOrderID: clientID,
	}
	var resp orderResponse
	if err := p.client.do(ctx, op, http.MethodPost, p.client.tradingEndpoint("/v2/orders"), payload, &resp); err != nil {
		return nil, err
	}
	order := normalizeOrder(resp)
	return &order, nil
}

// CancelOrder cancels an open order by broker order ID.
func (p *Provider) CancelOrder(ctx context.Context, orderID string) error {
	const op = "cancel_order"
	endpoint := p.client.tradingEndpoint("/v2/orders/" + url.PathEscape(orderID))
	return p.client.do(ctx, op, http.MethodDelete, endpoint, nil, nil)
}

// ListOpenOrders returns all currently open orders.
func (p *Provider) ListOpenOrders(ctx context.Context) ([]broker.Order, error) {
	const op = "list_open_orders"
	endpoint := p.client.tradingEndpoint("/v2/orders?status=open&limit=500")
	var resp []orderResponse
	if err := p.client.do(ctx, op, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}
	out := make([]broker.Order, 0, len(resp))
	for _, raw := range resp {
		out = append(out, normalizeOrder(raw))
	}
	return out, nil
}

func normalizeOrder(raw orderResponse) broker.Order {
	return broker.Order{
		ID:            raw.ID,
		ClientOrderID: raw.ClientOrderID,
		Symbol:        raw.Symbol,
		Side:          broker.OrderSide(raw.Side),
		Qty:           parseFloat(raw.Qty),
		FilledQty:     parseFloat(raw.FilledQty),
		LimitPrice:    parseFloat(raw.LimitPrice),
		Status:        normalizeStatus(raw.Status),
		SubmittedAt:   raw.SubmittedAt,
		ExtendedHours: raw.ExtendedHours,
	}
}

func normalizeStatus(s string) broker.OrderStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "new", "accepted", "pending_new", "accepted_for_bidding":
		return broker.OrderStatusNew
	case "partially_filled":
		return broker.OrderStatusPartiallyFilled
	case "filled":
		return broker.OrderStatusFilled
	case "canceled", "expired", "stopped", "pending_cancel":
		return broker.OrderStatusCanceled
	default:
		return broker.OrderStatusRejected
	}
}

func parseFloat(s string) float64 {
	if s == "" {
		return 0
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v
	}
	return 0
}

// formatQty trims trailing zeros so fractional quantities survive the wire
// without drifting into scientific notation.
func formatQty(qty float64) string {
	s := strconv.FormatFloat(qty, 'f', 6, 64)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

// Registry hook for broker.Config.
func init() {
	broker.RegisterProvider("alpaca", func(name string, cfg *broker.ProviderConfig) (broker.Provider, error) {
		if cfg.APIKey == "" || cfg.APISecret == "" {
			return nil, fmt.Errorf("alpaca provider %s: api_key and api_secret are required", name)
		}
		opts := []Option{WithBaseURLs(cfg.TradingURL, cfg.DataURL)}
		if cfg.Timeout > 0 {
			opts = append(opts, WithTimeout(cfg.Timeout))
		}
		client := NewClient(cfg.APIKey, cfg.APISecret, cfg.Paper, opts...)
		return NewProvider(client), nil
	})
}
