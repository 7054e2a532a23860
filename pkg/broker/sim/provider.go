// Package sim provides an in-memory paper broker used by the engine tests and
// dry runs. Limit buys rest on a simulated book until the mark price crosses
// the limit; account equity and position values are marked to the latest
// prices on every read.
package sim

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"bigdipper/pkg/broker"
)

const defaultInitialCash = 100000.0

// Provider is a paper broker implementation that keeps account, position and
// order state in-memory.
type Provider struct {
	mu sync.Mutex

	cash      float64
	positions map[string]*positionState
	markPx    map[string]float64
	bars      map[string][]broker.Bar
	quotes    map[string]broker.Quote
	orders    map[string]*broker.Order
	clock     broker.Clock

	nowFn    func() time.Time
	failNext map[string]broker.ErrorKind // op -> kind injected on next call
}

type positionState struct {
	Symbol     string
	Qty        float64
	Entry      float64
	AssetClass broker.AssetClass
}

// New constructs a simulator with default starting cash and an open market.
func New() *Provider {
	return &Provider{
		cash:      defaultInitialCash,
		positions: make(map[string]*positionState),
		markPx:    make(map[string]float64),
		bars:      make(map[string][]broker.Bar),
		quotes:    make(map[string]broker.Quote),
		orders:    make(map[string]*broker.Order),
		clock:     broker.Clock{IsOpen: true, Timestamp: time.Now()},
		nowFn:     time.Now,
		failNext:  make(map[string]broker.ErrorKind),
	}
}

func canonical(symbol string) string { return strings.ToUpper(strings.TrimSpace(symbol)) }

// SetCash overrides the simulated cash balance.
func (p *Provider) SetCash(v float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cash = v
}

// SetClock overrides the simulated market clock.
func (p *Provider) SetClock(c broker.Clock) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clock = c
}

// SetNow injects a clock function for deterministic tests.
func (p *Provider) SetNow(fn func() time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nowFn = fn
}

// SetMarkPrice updates the reference price used for valuation and fills.
func (p *Provider) SetMarkPrice(symbol string, price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.markPx[canonical(symbol)] = price
}

// SetBars seeds the daily bar history returned by GetBars.
func (p *Provider) SetBars(symbol string, bars []broker.Bar) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bars[canonical(symbol)] = bars
}

// SetQuote seeds the latest quote for a symbol and aligns the mark price to
// the bid when no mark has been set.
func (p *Provider) SetQuote(symbol string, q broker.Quote) {
	p.mu.Lock()
	defer p.mu.Unlock()
	sym := canonical(symbol)
	q.Symbol = sym
	p.quotes[sym] = q
	if _, ok := p.markPx[sym]; !ok && q.BidPrice > 0 {
		p.markPx[sym] = q.BidPrice
	}
}

// SeedPosition installs an existing holding, bypassing order flow.
func (p *Provider) SeedPosition(symbol string, qty, entry float64, class broker.AssetClass) {
	p.mu.Lock()
	defer p.mu.Unlock()
	sym := canonical(symbol)
	if class == "" {
		class = broker.AssetClassEquity
	}
	p.positions[sym] = &positionState{Symbol: sym, Qty: qty, Entry: entry, AssetClass: class}
	if _, ok := p.markPx[sym]; !ok {
		p.markPx[sym] = entry
	}
}

// FailNext injects a classified error on the next call of the named provider
// operation (e.g. "submit_limit_order").
func (p *Provider) FailNext(op string, kind broker.ErrorKind) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failNext[op] = kind
}

func (p *Provider) takeInjectedLocked(op string) error {
	if kind, ok := p.failNext[op]; ok {
		delete(p.failNext, op)
		return broker.NewError(kind, op, "injected")
	}
	return nil
}

// GetAccount returns the marked-to-market account snapshot.
func (p *Provider) GetAccount(ctx context.Context) (*broker.Account, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.takeInjectedLocked("get_account"); err != nil {
		return nil, err
	}
	total := p.totalPositionValueLocked()
	equity := p.cash + total
	buyingPower := p.cash
	if buyingPower < 0 {
		buyingPower = 0
	}
	return &broker.Account{
		Equity:      equity,
		Cash:        p.cash,
		BuyingPower: buyingPower,
		Currency:    "USD",
	}, nil
}

// GetPositions returns current holdings sorted by symbol.
func (p *Provider) GetPositions(ctx context.Context) ([]broker.Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.takeInjectedLocked("get_positions"); err != nil {
		return nil, err
	}
	out := make([]broker.Position, 0, len(p.positions))
	for sym, st := range p.positions {
		out = append(out, broker.Position{
			Symbol:        sym,
			Qty:           st.Qty,
			AvgEntryPrice: st.Entry,
			MarketValue:   st.Qty * p.resolveMarkLocked(sym),
			AssetClass:    st.AssetClass,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

// GetBars returns up to lookbackDays of the seeded history, newest last.
func (p *Provider) GetBars(ctx context.Context, symbol string, lookbackDays int) ([]broker.Bar, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.takeInjectedLocked("get_bars"); err != nil {
		return nil, err
	}
	bars, ok := p.bars[canonical(symbol)]
	if !ok {
		return nil, broker.NewError(broker.KindNotFound, "get_bars", fmt.Sprintf("no bars for %s", symbol))
	}
	if lookbackDays > 0 && len(bars) > lookbackDays {
		bars = bars[len(bars)-lookbackDays:]
	}
	out := make([]broker.Bar, len(bars))
	copy(out, bars)
	return out, nil
}

// GetLatestQuote returns the seeded quote for the symbol.
func (p *Provider) GetLatestQuote(ctx context.Context, symbol string) (*broker.Quote, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.takeInjectedLocked("get_latest_quote"); err != nil {
		return nil, err
	}
	q, ok := p.quotes[canonical(symbol)]
	if !ok {
		return nil, broker.NewError(broker.KindNotFound, "get_latest_quote", fmt.Sprintf("no quote for %s", symbol))
	}
	out := q
	return &out, nil
}

// GetClock returns the simulated market clock.
func (p *Provider) GetClock(ctx context.Context) (*broker.Clock, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.takeInjectedLocked("get_clock"); err != nil {
		return nil, err
	}
	out := p.clock
	if out.Timestamp.IsZero() {
		out.Timestamp = p.nowFn()
	}
	return &out, nil
}

// SubmitLimitOrder accepts a limit order. Marketable buys (limit at or above
// the mark) fill immediately; the rest rest until MarkFill or cancellation.
func (p *Provider) SubmitLimitOrder(ctx context.Context, req broker.OrderRequest) (*broker.Order, error) {
	if req.Qty <= 0 {
		return nil, fmt.Errorf("sim: order qty must be positive")
	}
	if req.LimitPrice <= 0 {
		return nil, fmt.Errorf("sim: limit price must be positive")
	}
	if req.Side != broker.OrderSideBuy && req.Side != broker.OrderSideSell {
		return nil, fmt.Errorf("sim: unknown order side %q", req.Side)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.takeInjectedLocked("submit_limit_order"); err != nil {
		return nil, err
	}

	clientID := req.ClientOrderID
	if clientID == "" {
		clientID = uuid.NewString()
	}
	order := &broker.Order{
		ID:            uuid.NewString(),
		ClientOrderID: clientID,
		Symbol:        canonical(req.Symbol),
		Side:          req.Side,
		Qty:           req.Qty,
		LimitPrice:    req.LimitPrice,
		Status:        broker.OrderStatusNew,
		SubmittedAt:   p.nowFn(),
		ExtendedHours: req.ExtendedHours,
	}
	p.orders[order.ID] = order
	p.tryFillLocked(order)
	out := *order
	return &out, nil
}

// CancelOrder removes a resting order.
func (p *Provider) CancelOrder(ctx context.Context, orderID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.takeInjectedLocked("cancel_order"); err != nil {
		return err
	}
	order, ok := p.orders[orderID]
	if !ok {
		return broker.NewError(broker.KindNotFound, "cancel_order", fmt.Sprintf("order %s not found", orderID))
	}
	if !order.Status.IsOpen() {
		return broker.NewError(broker.KindNotFound, "cancel_order", fmt.Sprintf("order %s is %s", orderID, order.Status))
	}
	order.Status = broker.OrderStatusCanceled
	return nil
}

// ListOpenOrders returns open orders ordered by submission time.
func (p *Provider) ListOpenOrders(ctx context.Context) ([]broker.Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.takeInjectedLocked("list_open_orders"); err != nil {
		return nil, err
	}
	out := make([]broker.Order, 0, len(p.orders))
	for _, o := range p.orders {
		if o.Status.IsOpen() {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	return out, nil
}

// MarkFill sweeps resting orders against the latest mark prices.
func (p *Provider) MarkFill() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, o := range p.orders {
		if o.Status.IsOpen() {
			p.tryFillLocked(o)
		}
	}
}

// OrderByID exposes a tracked order for assertions in tests.
func (p *Provider) OrderByID(orderID string) (broker.Order, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.orders[orderID]
	if !ok {
		return broker.Order{}, false
	}
	return *o, true
}

func (p *Provider) tryFillLocked(order *broker.Order) {
	mark := p.resolveMarkLocked(order.Symbol)
	if mark <= 0 {
		return
	}
	marketable := (order.Side == broker.OrderSideBuy && order.LimitPrice >= mark) ||
		(order.Side == broker.OrderSideSell && order.LimitPrice <= mark)
	if !marketable {
		return
	}

	fillPx := mark
	st := p.positions[order.Symbol]
	switch order.Side {
	case broker.OrderSideBuy:
		if st == nil {
			st = &positionState{Symbol: order.Symbol, AssetClass: broker.AssetClassEquity}
			p.positions[order.Symbol] = st
		}
		newQty := st.Qty + order.Qty
		if newQty != 0 {
			st.Entry = (st.Qty*st.Entry + order.Qty*fillPx) / newQty
		}
		st.Qty = newQty
		p.cash -= order.Qty * fillPx
	case broker.OrderSideSell:
		if st == nil || st.Qty < order.Qty {
			order.Status = broker.OrderStatusRejected
			return
		}
		st.Qty -= order.Qty
		p.cash += order.Qty * fillPx
		if st.Qty == 0 {
			delete(p.positions, order.Symbol)
		}
	}
	order.FilledQty = order.Qty
	order.Status = broker.OrderStatusFilled
}

func (p *Provider) resolveMarkLocked(symbol string) float64 {
	if px, ok := p.markPx[symbol]; ok && px > 0 {
		return px
	}
	if st, ok := p.positions[symbol]; ok && st.Entry > 0 {
		return st.Entry
	}
	return 0
}

func (p *Provider) totalPositionValueLocked() float64 {
	total := 0.0
	for sym, st := range p.positions {
		total += st.Qty * p.resolveMarkLocked(sym)
	}
	return total
}

// Registry hook for broker.Config.
func init() {
	broker.RegisterProvider("sim", func(name string, cfg *broker.ProviderConfig) (broker.Provider, error) {
		return New(), nil
	})
}
