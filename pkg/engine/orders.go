package engine

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"bigdipper/pkg/broker"
)

// ClientOrderPrefix marks orders submitted by this engine. The timeout
// sweep only ever cancels orders carrying it; an operator's manual
// orders at the same broker are left alone.
const ClientOrderPrefix = "dipper-"

// OrderManager submits adaptively-priced limit orders and cancels the
// ones the market never filled. It tracks its own submissions in memory;
// the broker stays authoritative for fill state.
type OrderManager struct {
	provider broker.Provider

	timeout           time.Duration
	limitOffsetPct    float64
	extendedOffsetPct float64

	pending map[string]pendingOrder // broker order ID -> order
	nowFn   func() time.Time
}

type pendingOrder struct {
	Symbol      string
	Qty         float64
	LimitPrice  float64
	SubmittedAt time.Time
}

func NewOrderManager(provider broker.Provider, cfg *Config) *OrderManager {
	return &OrderManager{
		provider:          provider,
		timeout:           cfg.OrderTimeout,
		limitOffsetPct:    cfg.LimitOffsetPct,
		extendedOffsetPct: cfg.ExtendedOffsetPct,
		pending:           make(map[string]pendingOrder),
		nowFn:             time.Now,
	}
}

// LimitPrice derives the order price from the live quote. Regular hours
// bid just under the ask so fills are likely without paying the full
// spread; extended hours bid just over the bid, where spreads are wide
// and crossing them is expensive. Prices are rounded to the cent.
func (m *OrderManager) LimitPrice(q *broker.Quote, session Session) (float64, error) {
	var px float64
	if session.IsExtended() {
		px = q.BidPrice * (1 + m.extendedOffsetPct)
	} else {
		px = q.AskPrice * (1 - m.limitOffsetPct)
	}
	px = math.Round(px*100) / 100
	if px <= 0 {
		return 0, fmt.Errorf("quote unusable: bid=%.2f ask=%.2f", q.BidPrice, q.AskPrice)
	}
	return px, nil
}

// Submit fetches a fresh quote, prices the order for the session and
// submits a day limit buy. The order is tracked for timeout management.
func (m *OrderManager) Submit(ctx context.Context, symbol string, qty float64, session Session) (*broker.Order, error) {
	quote, err := m.provider.GetLatestQuote(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("quote %s: %w", symbol, err)
	}
	px, err := m.LimitPrice(quote, session)
	if err != nil {
		return nil, fmt.Errorf("price %s: %w", symbol, err)
	}

	order, err := m.provider.SubmitLimitOrder(ctx, broker.OrderRequest{
		Symbol:        symbol,
		Side:          broker.OrderSideBuy,
		Qty:           qty,
		LimitPrice:    px,
		ClientOrderID: ClientOrderPrefix + uuid.NewString(),
		ExtendedHours: session.IsExtended(),
	})
	if err != nil {
		return nil, err
	}

	m.pending[order.ID] = pendingOrder{
		Symbol:      symbol,
		Qty:         qty,
		LimitPrice:  px,
		SubmittedAt: m.nowFn(),
	}
	return order, nil
}

// SweepResult summarises one timeout sweep.
type SweepResult struct {
	Cancelled []broker.Order // open past the timeout, cancellation issued
	Completed []string       // tracked IDs no longer open at the broker
	Expired   []string       // stale engine-signed orders left by a previous process run
}

// Sweep reconciles tracked orders against the broker's open-order list.
// Orders open longer than the timeout are cancelled exactly once;
// tracked orders that are no longer open are dropped from tracking.
// Untracked open buys past the timeout are cancelled only when their
// client order ID carries ClientOrderPrefix, which is how a stale order
// from a previous run is told apart from an operator's manual order.
func (m *OrderManager) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult

	open, err := m.provider.ListOpenOrders(ctx)
	if err != nil {
		return res, fmt.Errorf("list open orders: %w", err)
	}

	now := m.nowFn()
	openByID := make(map[string]broker.Order, len(open))
	for _, o := range open {
		openByID[o.ID] = o
	}

	for id, p := range m.pending {
		o, stillOpen := openByID[id]
		if !stillOpen {
			delete(m.pending, id)
			res.Completed = append(res.Completed, id)
			continue
		}
		delete(openByID, id)
		if now.Sub(p.SubmittedAt) < m.timeout {
			continue
		}
		if err := m.provider.CancelOrder(ctx, id); err != nil {
			if broker.KindOf(err) == broker.KindNotFound {
				delete(m.pending, id)
				continue
			}
			return res, fmt.Errorf("cancel order %s: %w", id, err)
		}
		delete(m.pending, id)
		res.Cancelled = append(res.Cancelled, o)
	}

	// Anything left in openByID was never submitted by this process.
	for id, o := range openByID {
		if !strings.HasPrefix(o.ClientOrderID, ClientOrderPrefix) {
			continue
		}
		if o.Side != broker.OrderSideBuy || o.SubmittedAt.IsZero() || now.Sub(o.SubmittedAt) < m.timeout {
			continue
		}
		if err := m.provider.CancelOrder(ctx, id); err != nil {
			if broker.KindOf(err) == broker.KindNotFound {
				continue
			}
			return res, fmt.Errorf("cancel stale order %s: %w", id, err)
		}
		res.Expired = append(res.Expired, id)
	}

	return res, nil
}

// HasPending reports whether a tracked order is still outstanding for
// symbol.
func (m *OrderManager) HasPending(symbol string) bool {
	for _, p := range m.pending {
		if p.Symbol == symbol {
			return true
		}
	}
	return false
}

// PendingCount returns the number of tracked outstanding orders.
func (m *OrderManager) PendingCount() int { return len(m.pending) }
