package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sourcegraph/conc/pool"
	"github.com/zeromicro/go-zero/core/logx"

	"bigdipper/pkg/broker"
	"bigdipper/pkg/journal"
)

// Engine runs the scan-and-buy loop: fetch a fresh account snapshot,
// check leverage, scan the symbol universe for qualifying dips, execute
// the best ones, and sweep stale orders. Nothing survives a cycle except
// the cooldown map, the brake counter and the set of tracked open
// orders.
type Engine struct {
	cfg      *Config
	provider broker.Provider
	rules    *RuleSet
	guard    *LeverageGuard
	orders   *OrderManager

	cooldowns map[string]time.Time
	cycle     int

	nowFn   func() time.Time
	journal *journal.Writer
	onCycle func(CycleSummary)
}

// Option configures optional engine collaborators.
type Option func(*Engine)

// WithJournal records a CycleRecord after every completed cycle.
func WithJournal(w *journal.Writer) Option {
	return func(e *Engine) { e.journal = w }
}

// WithCycleHook calls fn with the summary of every cycle, successful or
// not. Used for metrics.
func WithCycleHook(fn func(CycleSummary)) Option {
	return func(e *Engine) { e.onCycle = fn }
}

// WithNow overrides the engine clock. Tests only.
func WithNow(fn func() time.Time) Option {
	return func(e *Engine) { e.nowFn = fn }
}

func New(cfg *Config, provider broker.Provider, opts ...Option) *Engine {
	e := &Engine{
		cfg:       cfg,
		provider:  provider,
		rules:     NewRuleSet(cfg),
		guard:     NewLeverageGuard(cfg),
		orders:    NewOrderManager(provider, cfg),
		cooldowns: make(map[string]time.Time),
		nowFn:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.rules.now = e.nowFn
	e.orders.nowFn = e.nowFn
	return e
}

// CycleSummary is the outcome of one cycle, for metrics and the journal.
type CycleSummary struct {
	Cycle   int
	Session Session

	Equity        float64
	Cash          float64
	PositionValue float64
	LeverageRatio float64

	State       GuardState
	BrakeCycles int

	Scanned     int
	Qualified   int
	Executed    int
	Deployed    float64
	SkipReasons map[Reason]int

	// Qualified symbols that went unfunded after capital ran out, in
	// score order. Only populated when at least one order was placed
	// first; an account that funds nothing is the guard's story, not a
	// capital exhaustion one.
	Unfunded []string

	OrdersCancelled int
	OrdersCompleted int

	Err error
}

// Run executes cycles at the configured interval until ctx is cancelled.
// Failed cycles add an exponential pause on top of the regular interval
// so a broken broker connection is not hammered once a minute.
func (e *Engine) Run(ctx context.Context) error {
	logx.Infow("engine started",
		logx.Field("event", "engine_started"),
		logx.Field("symbols", len(e.cfg.Symbols)),
		logx.Field("scan_interval", e.cfg.ScanInterval.String()),
	)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 5 * time.Second
	bo.MaxInterval = 2 * time.Minute

	ticker := time.NewTicker(e.cfg.ScanInterval)
	defer ticker.Stop()

	for {
		summary := e.RunCycle(ctx)
		if summary.Err != nil {
			pause := bo.NextBackOff()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(pause):
			}
		} else {
			bo.Reset()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunCycle performs a single full cycle and returns its summary. A
// fatal-for-cycle error (account or position fetch failure, equity not
// positive) aborts before any trading decision is made.
func (e *Engine) RunCycle(ctx context.Context) CycleSummary {
	e.cycle++
	summary := CycleSummary{
		Cycle:       e.cycle,
		SkipReasons: make(map[Reason]int),
	}
	defer func() {
		if summary.Err != nil {
			e.record(&summary, nil)
		}
		if e.onCycle != nil {
			e.onCycle(summary)
		}
	}()

	acct, err := e.provider.GetAccount(ctx)
	if err != nil {
		summary.Err = fmt.Errorf("fetch account: %w", err)
		logCycleError(e.cycle, "account", summary.Err)
		return summary
	}
	if acct.Equity <= 0 {
		summary.Err = fmt.Errorf("equity not positive: %.2f", acct.Equity)
		logCycleError(e.cycle, "account", summary.Err)
		return summary
	}

	positions, err := e.provider.GetPositions(ctx)
	if err != nil {
		summary.Err = fmt.Errorf("fetch positions: %w", err)
		logCycleError(e.cycle, "positions", summary.Err)
		return summary
	}

	clock, err := e.provider.GetClock(ctx)
	if err != nil {
		summary.Err = fmt.Errorf("fetch clock: %w", err)
		logCycleError(e.cycle, "clock", summary.Err)
		return summary
	}
	session := DetectSession(clock, e.nowFn())

	bySymbol := make(map[string]broker.Position, len(positions))
	totalPositionValue := 0.0
	for _, p := range positions {
		bySymbol[p.Symbol] = p
		totalPositionValue += p.MarketValue
	}

	summary.Session = session
	summary.Equity = acct.Equity
	summary.Cash = acct.Cash
	summary.PositionValue = totalPositionValue

	if !session.Tradable(e.cfg.TradeExtendedHours) {
		// The brake counter only advances in tradable sessions, so a
		// closed weekend cannot burn through the rescan window before
		// the market reopens.
		summary.LeverageRatio = LeverageRatio(totalPositionValue, acct.Equity)
		summary.State = e.guard.State()
		summary.BrakeCycles = e.guard.BrakeCycles()
		logAccountSnapshot(e.cycle, session, acct, totalPositionValue, summary.LeverageRatio, len(positions))
		e.sweepOrders(ctx, &summary)
		e.record(&summary, nil)
		return summary
	}

	check := e.guard.CheckCycle(totalPositionValue, acct.Cash, acct.Equity)

	summary.LeverageRatio = check.Ratio
	summary.State = check.State
	summary.BrakeCycles = check.BrakeCycles

	logAccountSnapshot(e.cycle, session, acct, totalPositionValue, check.Ratio, len(positions))

	switch {
	case check.State == StateBrake && check.Changed:
		logBrakeEngaged(check)
	case check.State == StateBrake:
		logBrakeHeld(check)
	case check.Changed:
		logBrakeCleared(check)
	}

	if check.State == StateBrake {
		// No new orders while braked; stale ones still get cancelled,
		// and the market is rescanned occasionally so the log shows
		// what the brake cost.
		if e.guard.ShouldRescan() {
			opps, _, _ := e.scan(ctx, acct.Equity, bySymbol)
			for _, opp := range opps {
				logMissedOpportunity(opp, check.BrakeCycles)
			}
		}
		e.sweepOrders(ctx, &summary)
		e.record(&summary, nil)
		return summary
	}

	opps, skips, scanned := e.scan(ctx, acct.Equity, bySymbol)
	summary.Scanned = scanned
	summary.Qualified = len(opps)
	for _, s := range skips {
		summary.SkipReasons[s.reason]++
		logOpportunitySkipped(s.symbol, s.reason, s.detail)
	}

	trades := e.execute(ctx, opps, acct, totalPositionValue, session, &summary)

	e.sweepOrders(ctx, &summary)
	e.record(&summary, trades)
	return summary
}

type skipRecord struct {
	symbol string
	reason Reason
	detail string
}

// scan evaluates every configured symbol concurrently and returns the
// qualified opportunities sorted best first.
func (e *Engine) scan(ctx context.Context, equity float64, positions map[string]broker.Position) ([]Opportunity, []skipRecord, int) {
	var (
		mu    sync.Mutex
		opps  []Opportunity
		skips []skipRecord
	)

	p := pool.New().WithMaxGoroutines(e.cfg.ScanConcurrency)
	for _, symbol := range e.cfg.Symbols {
		symbol := symbol
		p.Go(func() {
			opp, skip := e.scanSymbol(ctx, symbol, equity, positions)
			mu.Lock()
			defer mu.Unlock()
			if opp != nil {
				opps = append(opps, *opp)
			}
			if skip != nil {
				skips = append(skips, *skip)
			}
		})
	}
	p.Wait()

	SortOpportunities(opps)
	return opps, skips, len(e.cfg.Symbols)
}

func (e *Engine) scanSymbol(ctx context.Context, symbol string, equity float64, positions map[string]broker.Position) (*Opportunity, *skipRecord) {
	if e.cfg.IsCollateral(symbol) {
		return nil, nil
	}
	if e.orders.HasPending(symbol) {
		return nil, &skipRecord{symbol, ReasonOrderPending, "order already outstanding"}
	}

	days := e.cfg.LookbackDays
	if e.cfg.Filters.Momentum && e.cfg.Filters.MomentumRSIPeriod+1 > days {
		days = e.cfg.Filters.MomentumRSIPeriod + 1
	}
	bars, err := e.provider.GetBars(ctx, symbol, days)
	if err != nil {
		logx.Errorw("bar fetch failed",
			logx.Field("symbol", symbol), logx.Field("error", err.Error()))
		return nil, nil
	}

	quote, err := e.provider.GetLatestQuote(ctx, symbol)
	if err != nil {
		logx.Errorw("quote fetch failed",
			logx.Field("symbol", symbol), logx.Field("error", err.Error()))
		return nil, nil
	}
	price := currentPrice(quote, bars)
	if price <= 0 {
		return nil, nil
	}

	dip, ok := CalculateDip(price, bars, e.cfg.LookbackDays)
	if !ok {
		return nil, nil
	}

	pos := positions[symbol]
	positionValue := 0.0
	if pos.AssetClass == broker.AssetClassEquity {
		positionValue = pos.MarketValue
	}

	cand := Candidate{
		Symbol:        symbol,
		Price:         price,
		DipPct:        dip,
		Bars:          bars,
		PositionValue: positionValue,
		LastBuy:       e.cooldowns[symbol],
	}
	if v := e.rules.Evaluate(cand, equity); !v.OK {
		return nil, &skipRecord{symbol, v.Reason, v.Detail}
	}

	opp := &Opportunity{
		Symbol:        symbol,
		Price:         price,
		DipPct:        dip,
		Threshold:     e.cfg.EffectiveThreshold(symbol),
		VolFactor:     VolatilityFactor(bars),
		IntradayDrop:  IntradayDrop(price, bars),
		IntradayBoost: 1.0,
		PositionValue: positionValue,
	}
	if e.cfg.IsVolatile(symbol) && -opp.IntradayDrop >= e.cfg.IntradayDropThreshold {
		opp.IntradayBoost = e.cfg.IntradayMultiplier
	}
	logOpportunityQualified(*opp)
	return opp, nil
}

// execute works through opportunities best first, sizing each and
// submitting until capital or the hard limit runs out. Rejections are
// per-candidate: a hard-limit breach on a large order does not stop a
// smaller one later in the list.
func (e *Engine) execute(ctx context.Context, opps []Opportunity, acct *broker.Account, totalPositionValue float64, session Session, summary *CycleSummary) []journal.Trade {
	var trades []journal.Trade
	var unfunded []string
	deployed := 0.0

	for _, opp := range opps {
		size := SizePosition(e.cfg, acct.Equity, opp)
		if !size.OK {
			summary.SkipReasons[size.Reason]++
			logOpportunitySkipped(opp.Symbol, size.Reason, "sizing rejected")
			continue
		}

		if v := e.guard.CheckTrade(totalPositionValue, acct.Equity, deployed, size.Notional); !v.OK {
			summary.SkipReasons[v.Reason]++
			logOpportunitySkipped(opp.Symbol, v.Reason, v.Detail)
			if IsCapitalExhaustion(v.Reason) {
				unfunded = append(unfunded, opp.Symbol)
			}
			continue
		}

		if deployed+size.Notional > acct.BuyingPower {
			summary.SkipReasons[ReasonInsufficientFunds]++
			logOpportunitySkipped(opp.Symbol, ReasonInsufficientFunds,
				fmt.Sprintf("need $%.2f, $%.2f buying power left", size.Notional, acct.BuyingPower-deployed))
			unfunded = append(unfunded, opp.Symbol)
			continue
		}

		order, err := e.orders.Submit(ctx, opp.Symbol, size.Qty, session)
		if err != nil {
			reason := submitFailureReason(err)
			summary.SkipReasons[reason]++
			logOpportunitySkipped(opp.Symbol, reason, err.Error())
			continue
		}

		e.cooldowns[opp.Symbol] = e.nowFn()
		deployed += size.Notional
		summary.Executed++
		summary.Deployed = deployed
		logTradeExecuted(opp, order, size.Notional)
		trades = append(trades, journal.Trade{
			Symbol:     opp.Symbol,
			OrderID:    order.ID,
			Qty:        order.Qty,
			LimitPrice: order.LimitPrice,
			Notional:   size.Notional,
			DipPct:     opp.DipPct,
			Score:      opp.Score(),
		})
	}

	if deployed > 0 && len(unfunded) > 0 {
		summary.Unfunded = unfunded
		logCapitalExhausted(unfunded, deployed, acct.Equity*e.cfg.HardLimit)
	}
	return trades
}

func submitFailureReason(err error) Reason {
	switch broker.KindOf(err) {
	case broker.KindConflictingOrder:
		return ReasonWashTradeBlocked
	case broker.KindInsufficientFunds:
		return ReasonInsufficientFunds
	default:
		return ReasonSubmitFailed
	}
}

func (e *Engine) sweepOrders(ctx context.Context, summary *CycleSummary) {
	res, err := e.orders.Sweep(ctx)
	if err != nil {
		logx.Errorw("order sweep failed", logx.Field("error", err.Error()))
		return
	}
	for _, o := range res.Cancelled {
		logOrderCancelled(o, e.cfg.OrderTimeout.String())
	}
	summary.OrdersCancelled = len(res.Cancelled) + len(res.Expired)
	summary.OrdersCompleted = len(res.Completed)
}

func (e *Engine) record(summary *CycleSummary, trades []journal.Trade) {
	if e.journal == nil {
		return
	}
	rec := &journal.CycleRecord{
		Timestamp:     e.nowFn().UTC(),
		Cycle:         summary.Cycle,
		Session:       string(summary.Session),
		Equity:        summary.Equity,
		Cash:          summary.Cash,
		PositionValue: summary.PositionValue,
		LeverageRatio: summary.LeverageRatio,
		State:         string(summary.State),
		BrakeCycles:   summary.BrakeCycles,
		Qualified:     summary.Qualified,
		Executed:      summary.Executed,
		Deployed:      summary.Deployed,
		Unfunded:      summary.Unfunded,
		Trades:        trades,
	}
	if summary.Err != nil {
		rec.ErrorMessage = summary.Err.Error()
	}
	if len(summary.SkipReasons) > 0 {
		rec.Skips = make(map[string]int, len(summary.SkipReasons))
		for r, n := range summary.SkipReasons {
			rec.Skips[string(r)] = n
		}
	}
	if err := e.journal.Append(rec); err != nil {
		logx.Errorw("journal write failed", logx.Field("error", err.Error()))
	}
}

// currentPrice is the bid side of the latest quote. The bid understates
// the price, which makes a dip look deeper, which biases toward earlier
// entry rather than later. Falls back to the ask and then the latest
// close when the book is one-sided (common outside regular hours).
func currentPrice(q *broker.Quote, bars []broker.Bar) float64 {
	if q != nil && q.BidPrice > 0 {
		return q.BidPrice
	}
	if q != nil && q.AskPrice > 0 {
		return q.AskPrice
	}
	if len(bars) > 0 {
		return bars[len(bars)-1].Close
	}
	return 0
}
