package engine

import (
	"strings"

	"github.com/zeromicro/go-zero/core/logx"

	"bigdipper/pkg/broker"
)

// Structured log events. The monitoring collaborator parses these by the
// "event" field, so field names are stable and every event carries the
// values needed to reconstruct the decision without reading other lines.

func logAccountSnapshot(cycle int, session Session, acct *broker.Account, positionValue, ratio float64, positions int) {
	logx.Infow("account snapshot",
		logx.Field("event", "account_snapshot"),
		logx.Field("cycle", cycle),
		logx.Field("session", string(session)),
		logx.Field("equity", acct.Equity),
		logx.Field("cash", acct.Cash),
		logx.Field("buying_power", acct.BuyingPower),
		logx.Field("position_value", positionValue),
		logx.Field("positions", positions),
		logx.Field("leverage_ratio", ratio),
	)
}

func logOpportunityQualified(opp Opportunity) {
	logx.Infow("opportunity qualified",
		logx.Field("event", "opportunity_qualified"),
		logx.Field("symbol", opp.Symbol),
		logx.Field("dip_pct", opp.DipPct),
		logx.Field("threshold", opp.Threshold),
		logx.Field("price", opp.Price),
		logx.Field("vol_factor", opp.VolFactor),
		logx.Field("score", opp.Score()),
	)
}

func logOpportunitySkipped(symbol string, reason Reason, detail string) {
	logx.Infow("opportunity skipped",
		logx.Field("event", "opportunity_skipped"),
		logx.Field("symbol", symbol),
		logx.Field("reason", string(reason)),
		logx.Field("detail", detail),
	)
}

func logTradeExecuted(opp Opportunity, order *broker.Order, notional float64) {
	logx.Infow("trade executed",
		logx.Field("event", "trade_executed"),
		logx.Field("symbol", opp.Symbol),
		logx.Field("order_id", order.ID),
		logx.Field("qty", order.Qty),
		logx.Field("limit_price", order.LimitPrice),
		logx.Field("notional", notional),
		logx.Field("dip_pct", opp.DipPct),
		logx.Field("score", opp.Score()),
		logx.Field("extended_hours", order.ExtendedHours),
	)
}

func logBrakeEngaged(check CycleCheck) {
	logx.Errorw("emergency brake engaged",
		logx.Field("event", "brake_engaged"),
		logx.Field("leverage_ratio", check.Ratio),
		logx.Field("margin_debt", check.MarginDebt),
		logx.Field("reduction_needed", check.Reduction),
	)
}

func logBrakeHeld(check CycleCheck) {
	logx.Infow("emergency brake holding",
		logx.Field("event", "brake_held"),
		logx.Field("leverage_ratio", check.Ratio),
		logx.Field("margin_debt", check.MarginDebt),
		logx.Field("reduction_needed", check.Reduction),
		logx.Field("brake_cycles", check.BrakeCycles),
	)
}

func logBrakeCleared(check CycleCheck) {
	logx.Infow("emergency brake cleared",
		logx.Field("event", "brake_cleared"),
		logx.Field("leverage_ratio", check.Ratio),
	)
}

func logMissedOpportunity(opp Opportunity, brakeCycles int) {
	logx.Infow("missed opportunity during brake",
		logx.Field("event", "missed_opportunity"),
		logx.Field("symbol", opp.Symbol),
		logx.Field("dip_pct", opp.DipPct),
		logx.Field("score", opp.Score()),
		logx.Field("brake_cycles", brakeCycles),
	)
}

func logCapitalExhausted(unfunded []string, deployed, limitValue float64) {
	logx.Infow("capital exhausted, remaining opportunities unfunded",
		logx.Field("event", "capital_exhausted"),
		logx.Field("unfunded", strings.Join(unfunded, ",")),
		logx.Field("deployed", deployed),
		logx.Field("limit_value", limitValue),
	)
}

func logOrderCancelled(order broker.Order, timeout string) {
	logx.Infow("order cancelled on timeout",
		logx.Field("event", "order_cancelled"),
		logx.Field("order_id", order.ID),
		logx.Field("symbol", order.Symbol),
		logx.Field("timeout", timeout),
	)
}

func logCycleError(cycle int, stage string, err error) {
	logx.Errorw("cycle aborted",
		logx.Field("event", "cycle_error"),
		logx.Field("cycle", cycle),
		logx.Field("stage", stage),
		logx.Field("error", err.Error()),
	)
}
