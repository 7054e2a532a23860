package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bigdipper/pkg/broker"
	"bigdipper/pkg/broker/sim"
)

func newTestOrderManager(t *testing.T) (*OrderManager, *sim.Provider, *time.Time) {
	t.Helper()
	provider := sim.New()
	now := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	provider.SetNow(func() time.Time { return now })

	m := NewOrderManager(provider, testConfig(t))
	m.nowFn = func() time.Time { return now }
	return m, provider, &now
}

func TestLimitPricing(t *testing.T) {
	m, _, _ := newTestOrderManager(t)
	q := &broker.Quote{BidPrice: 94.00, AskPrice: 94.10}

	px, err := m.LimitPrice(q, SessionRegular)
	require.NoError(t, err)
	assert.InDelta(t, 93.63, px, 1e-9, "regular hours price just under the ask")

	px, err = m.LimitPrice(q, SessionAfterHours)
	require.NoError(t, err)
	assert.InDelta(t, 94.09, px, 1e-9, "extended hours price just over the bid")

	_, err = m.LimitPrice(&broker.Quote{}, SessionRegular)
	assert.Error(t, err, "empty book must not produce a zero-priced order")
}

func TestSubmitTracksOrder(t *testing.T) {
	m, provider, _ := newTestOrderManager(t)
	provider.SetQuote("VOO", broker.Quote{BidPrice: 94.00, AskPrice: 94.10})

	order, err := m.Submit(context.Background(), "VOO", 10, SessionRegular)
	require.NoError(t, err)
	assert.Equal(t, "VOO", order.Symbol)
	assert.InDelta(t, 93.63, order.LimitPrice, 1e-9)
	assert.False(t, order.ExtendedHours)

	assert.Equal(t, 1, m.PendingCount())
	assert.True(t, m.HasPending("VOO"))
	assert.False(t, m.HasPending("QQQ"))
}

func TestSweepCancelsOnTimeoutExactlyOnce(t *testing.T) {
	m, provider, now := newTestOrderManager(t)
	provider.SetQuote("VOO", broker.Quote{BidPrice: 94.00, AskPrice: 94.10})

	_, err := m.Submit(context.Background(), "VOO", 10, SessionRegular)
	require.NoError(t, err)

	// Within the timeout nothing happens.
	res, err := m.Sweep(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Cancelled)
	assert.Equal(t, 1, m.PendingCount())

	*now = now.Add(16 * time.Minute)
	res, err = m.Sweep(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Cancelled, 1)
	assert.Equal(t, "VOO", res.Cancelled[0].Symbol)
	assert.Zero(t, m.PendingCount())

	// The next sweep sees no open order and issues nothing.
	res, err = m.Sweep(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Cancelled)
	assert.Empty(t, res.Completed)
}

func TestSweepDropsFilledOrders(t *testing.T) {
	m, provider, _ := newTestOrderManager(t)
	provider.SetQuote("VOO", broker.Quote{BidPrice: 94.00, AskPrice: 94.10})

	_, err := m.Submit(context.Background(), "VOO", 10, SessionRegular)
	require.NoError(t, err)

	// Market trades down through the limit.
	provider.SetMarkPrice("VOO", 93.00)
	provider.MarkFill()

	res, err := m.Sweep(context.Background())
	require.NoError(t, err)
	assert.Len(t, res.Completed, 1)
	assert.Zero(t, m.PendingCount())
}

func TestSweepExpiresUntrackedStaleOrders(t *testing.T) {
	m, provider, now := newTestOrderManager(t)
	provider.SetQuote("VOO", broker.Quote{BidPrice: 94.00, AskPrice: 94.10})

	// An order left behind by a previous process run: open at the broker,
	// unknown to this manager, but signed with the engine's prefix.
	stale, err := provider.SubmitLimitOrder(context.Background(), broker.OrderRequest{
		Symbol: "VOO", Side: broker.OrderSideBuy, Qty: 5, LimitPrice: 90,
		ClientOrderID: ClientOrderPrefix + "prior-run",
	})
	require.NoError(t, err)

	*now = now.Add(20 * time.Minute)
	res, err := m.Sweep(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Expired, 1)
	assert.Equal(t, stale.ID, res.Expired[0])

	got, ok := provider.OrderByID(stale.ID)
	require.True(t, ok)
	assert.Equal(t, broker.OrderStatusCanceled, got.Status)
}

func TestSweepLeavesManualOrdersAlone(t *testing.T) {
	m, provider, now := newTestOrderManager(t)

	// An operator's hand-placed limit buy carries no engine signature.
	// No matter how long it rests, the sweep must not touch it.
	manual, err := provider.SubmitLimitOrder(context.Background(), broker.OrderRequest{
		Symbol: "VOO", Side: broker.OrderSideBuy, Qty: 5, LimitPrice: 90,
	})
	require.NoError(t, err)

	*now = now.Add(16 * time.Minute)
	res, err := m.Sweep(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Expired)
	assert.Empty(t, res.Cancelled)

	got, ok := provider.OrderByID(manual.ID)
	require.True(t, ok)
	assert.Equal(t, broker.OrderStatusNew, got.Status)
}
