package sim

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bigdipper/pkg/broker"
)

func TestAccountMarksToMarket(t *testing.T) {
	p := New()
	p.SetCash(50_000)
	p.SeedPosition("VOO", 100, 400, broker.AssetClassEquity)
	p.SetMarkPrice("VOO", 410)

	acct, err := p.GetAccount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 50_000.0, acct.Cash)
	assert.Equal(t, 91_000.0, acct.Equity)

	positions, err := p.GetPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, 41_000.0, positions[0].MarketValue)
	assert.Equal(t, broker.AssetClassEquity, positions[0].AssetClass)
}

func TestMarketableBuyFillsImmediately(t *testing.T) {
	p := New()
	p.SetCash(10_000)
	p.SetMarkPrice("VOO", 94)

	order, err := p.SubmitLimitOrder(context.Background(), broker.OrderRequest{
		Symbol: "VOO", Side: broker.OrderSideBuy, Qty: 10, LimitPrice: 95,
	})
	require.NoError(t, err)
	assert.Equal(t, broker.OrderStatusFilled, order.Status)
	assert.Equal(t, 10.0, order.FilledQty)

	acct, err := p.GetAccount(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 10_000-940, acct.Cash, 1e-9)
}

func TestRestingBuyFillsOnMark(t *testing.T) {
	p := New()
	p.SetMarkPrice("VOO", 94)

	order, err := p.SubmitLimitOrder(context.Background(), broker.OrderRequest{
		Symbol: "VOO", Side: broker.OrderSideBuy, Qty: 10, LimitPrice: 93,
	})
	require.NoError(t, err)
	assert.Equal(t, broker.OrderStatusNew, order.Status)

	open, err := p.ListOpenOrders(context.Background())
	require.NoError(t, err)
	require.Len(t, open, 1)

	p.SetMarkPrice("VOO", 92.5)
	p.MarkFill()

	got, ok := p.OrderByID(order.ID)
	require.True(t, ok)
	assert.Equal(t, broker.OrderStatusFilled, got.Status)

	open, err = p.ListOpenOrders(context.Background())
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestCancelOrder(t *testing.T) {
	p := New()
	p.SetMarkPrice("VOO", 94)

	order, err := p.SubmitLimitOrder(context.Background(), broker.OrderRequest{
		Symbol: "VOO", Side: broker.OrderSideBuy, Qty: 10, LimitPrice: 90,
	})
	require.NoError(t, err)

	require.NoError(t, p.CancelOrder(context.Background(), order.ID))

	err = p.CancelOrder(context.Background(), order.ID)
	assert.True(t, broker.IsKind(err, broker.KindNotFound), "double cancel reports not found")

	err = p.CancelOrder(context.Background(), "no-such-order")
	assert.True(t, broker.IsKind(err, broker.KindNotFound))
}

func TestBarsTruncatedToLookback(t *testing.T) {
	p := New()
	bars := make([]broker.Bar, 30)
	base := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	for i := range bars {
		bars[i] = broker.Bar{Timestamp: base.AddDate(0, 0, i-30), Close: float64(100 + i)}
	}
	p.SetBars("voo", bars)

	got, err := p.GetBars(context.Background(), "VOO", 20)
	require.NoError(t, err)
	require.Len(t, got, 20)
	assert.Equal(t, 129.0, got[len(got)-1].Close, "newest bar last")

	_, err = p.GetBars(context.Background(), "QQQ", 20)
	assert.True(t, broker.IsKind(err, broker.KindNotFound))
}

func TestFailNextInjectsClassifiedError(t *testing.T) {
	p := New()
	p.FailNext("get_account", broker.KindRateLimited)

	_, err := p.GetAccount(context.Background())
	assert.True(t, broker.IsKind(err, broker.KindRateLimited))

	// One-shot: the next call succeeds.
	_, err = p.GetAccount(context.Background())
	assert.NoError(t, err)
}

func TestRejectsInvalidOrders(t *testing.T) {
	p := New()
	_, err := p.SubmitLimitOrder(context.Background(), broker.OrderRequest{
		Symbol: "VOO", Side: broker.OrderSideBuy, Qty: 0, LimitPrice: 90,
	})
	assert.Error(t, err)

	_, err = p.SubmitLimitOrder(context.Background(), broker.OrderRequest{
		Symbol: "VOO", Side: broker.OrderSideBuy, Qty: 1, LimitPrice: 0,
	})
	assert.Error(t, err)

	_, err = p.SubmitLimitOrder(context.Background(), broker.OrderRequest{
		Symbol: "VOO", Side: "short", Qty: 1, LimitPrice: 90,
	})
	assert.Error(t, err)
}
