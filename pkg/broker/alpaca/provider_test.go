package alpaca

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bigdipper/pkg/broker"
)

func newTestProvider(t *testing.T, handler http.Handler) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := NewClient("key", "secret", true,
		WithBaseURLs(srv.URL, srv.URL),
		WithHTTPClient(srv.Client()),
		WithRateLimit(1000),
	)
	return NewProvider(client)
}

func TestGetAccount(t *testing.T) {
	p := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/account", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("APCA-API-KEY-ID"))
		assert.Equal(t, "secret", r.Header.Get("APCA-API-SECRET-KEY"))
		w.Write([]byte(`{
			"currency":"USD","cash":"2533.10","equity":"34830.00",
			"buying_power":"10000.00","regt_buying_power":"5066.20",
			"maintenance_margin":"9689.10"
		}`))
	}))

	acct, err := p.GetAccount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 34_830.00, acct.Equity)
	assert.Equal(t, 2_533.10, acct.Cash)
	assert.Equal(t, 5_066.20, acct.BuyingPower, "RegT buying power, not the marginable figure")
	assert.Equal(t, "USD", acct.Currency)
}

func TestGetPositions(t *testing.T) {
	p := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/positions", r.URL.Path)
		w.Write([]byte(`[
			{"symbol":"VOO","qty":"10.5","avg_entry_price":"400.10","market_value":"4305.00","asset_class":"us_equity"},
			{"symbol":"BLV","qty":"100","avg_entry_price":"70.00","market_value":"7100.00","asset_class":"us_equity"}
		]`))
	}))

	positions, err := p.GetPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 2)
	assert.Equal(t, "VOO", positions[0].Symbol)
	assert.Equal(t, 10.5, positions[0].Qty)
	assert.Equal(t, 4_305.00, positions[0].MarketValue)
	assert.Equal(t, broker.AssetClassEquity, positions[0].AssetClass)
}

func TestGetBars(t *testing.T) {
	p := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/stocks/VOO/bars", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "1Day", q.Get("timeframe"))
		assert.Equal(t, "40", q.Get("limit"), "twice the window to cover weekends")
		assert.Equal(t, "split", q.Get("adjustment"))
		w.Write([]byte(`{"symbol":"VOO","bars":[
			{"t":"2026-02-27T05:00:00Z","o":99,"h":100,"l":98,"c":99.5,"v":1200000},
			{"t":"2026-03-02T05:00:00Z","o":95,"h":96,"l":93,"c":94,"v":2500000}
		]}`))
	}))

	bars, err := p.GetBars(context.Background(), "VOO", 20)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, 100.0, bars[0].High)
	assert.Equal(t, 94.0, bars[1].Close)
	assert.Equal(t, int64(2_500_000), bars[1].Volume)
}

func TestGetLatestQuote(t *testing.T) {
	p := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/stocks/VOO/quotes/latest", r.URL.Path)
		w.Write([]byte(`{"symbol":"VOO","quote":{"t":"2026-03-02T15:00:00Z","bp":93.95,"bs":4,"ap":94.05,"as":2}}`))
	}))

	q, err := p.GetLatestQuote(context.Background(), "VOO")
	require.NoError(t, err)
	assert.Equal(t, 93.95, q.BidPrice)
	assert.Equal(t, 94.05, q.AskPrice)
	assert.Equal(t, "VOO", q.Symbol)
}

func TestSubmitLimitOrder(t *testing.T) {
	p := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v2/orders", r.URL.Path)

		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "VOO", payload["symbol"])
		assert.Equal(t, "buy", payload["side"])
		assert.Equal(t, "limit", payload["type"])
		assert.Equal(t, "day", payload["time_in_force"])
		assert.Equal(t, "93.63", payload["limit_price"])
		assert.Equal(t, "10.5", payload["qty"], "fractional qty without trailing zeros")
		assert.NotEmpty(t, payload["client_order_id"])

		w.Write([]byte(`{"id":"ord-1","client_order_id":"c-1","symbol":"VOO","side":"buy",
			"qty":"10.5","filled_qty":"0","limit_price":"93.63","status":"accepted",
			"submitted_at":"2026-03-02T15:00:01Z"}`))
	}))

	order, err := p.SubmitLimitOrder(context.Background(), broker.OrderRequest{
		Symbol: "VOO", Side: broker.OrderSideBuy, Qty: 10.5, LimitPrice: 93.63,
	})
	require.NoError(t, err)
	assert.Equal(t, "ord-1", order.ID)
	assert.Equal(t, broker.OrderStatusNew, order.Status, "accepted normalizes to new")
	assert.Equal(t, 10.5, order.Qty)
}

func TestSubmitLimitOrderWashTrade(t *testing.T) {
	p := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"code":40310000,"message":"potential wash trade detected"}`))
	}))

	_, err := p.SubmitLimitOrder(context.Background(), broker.OrderRequest{
		Symbol: "VOO", Side: broker.OrderSideBuy, Qty: 1, LimitPrice: 90,
	})
	assert.True(t, broker.IsKind(err, broker.KindConflictingOrder))
}

func TestCancelOrder(t *testing.T) {
	var cancelled string
	p := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			cancelled = r.URL.Path
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"code":40410000,"message":"order not found"}`))
	}))

	require.NoError(t, p.CancelOrder(context.Background(), "ord-1"))
	assert.Equal(t, "/v2/orders/ord-1", cancelled)
}

func TestCancelOrderNotFound(t *testing.T) {
	p := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"code":40410000,"message":"order not found"}`))
	}))
	err := p.CancelOrder(context.Background(), "gone")
	assert.True(t, broker.IsKind(err, broker.KindNotFound))
}

func TestListOpenOrders(t *testing.T) {
	p := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/orders", r.URL.Path)
		assert.Equal(t, "open", r.URL.Query().Get("status"))
		w.Write([]byte(`[{"id":"ord-1","symbol":"VOO","side":"buy","qty":"10","filled_qty":"0",
			"limit_price":"93.63","status":"new","submitted_at":"2026-03-02T15:00:01Z"}]`))
	}))

	orders, err := p.ListOpenOrders(context.Background())
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "ord-1", orders[0].ID)
	assert.True(t, orders[0].Status.IsOpen())
}

func TestOrderValidation(t *testing.T) {
	p := NewProvider(NewClient("k", "s", true))
	_, err := p.SubmitLimitOrder(context.Background(), broker.OrderRequest{Symbol: "VOO", Side: broker.OrderSideBuy, Qty: 0, LimitPrice: 90})
	assert.Error(t, err)
	_, err = p.SubmitLimitOrder(context.Background(), broker.OrderRequest{Symbol: "VOO", Side: broker.OrderSideBuy, Qty: 1, LimitPrice: 0})
	assert.Error(t, err)
}
