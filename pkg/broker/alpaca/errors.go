package alpaca

import (
	"encoding/json"
	"net/http"
	"strings"

	"bigdipper/pkg/broker"
)

// Alpaca error codes observed in trading API rejections. The set is not
// exhaustive; anything unrecognised falls through to a status-based kind.
const (
	codeWashTrade           = 40310000
	codeInsufficientBP      = 40310001
	codeInsufficientDayBP   = 40310002
	codeAssetNotTradable    = 40410001
	codeOrderNotFound       = 40410000
	codeInsufficientFunds40 = 40010001
)

// classifyError maps a non-2xx trading/data API response to a tagged broker
// error. Classification happens only here, at the adapter boundary.
func classifyError(op string, status int, body []byte) error {
	var payload apiError
	_ = json.Unmarshal(body, &payload)
	message := strings.TrimSpace(payload.Message)
	if message == "" {
		message = strings.TrimSpace(string(body))
	}

	switch payload.Code {
	case codeWashTrade:
		return broker.NewError(broker.KindConflictingOrder, op, message)
	case codeInsufficientBP, codeInsufficientDayBP, codeInsufficientFunds40:
		return broker.NewError(broker.KindInsufficientFunds, op, message)
	case codeAssetNotTradable:
		return broker.NewError(broker.KindNotTradable, op, message)
	case codeOrderNotFound:
		return broker.NewError(broker.KindNotFound, op, message)
	}

	// Older API revisions omit the numeric code on some rejections; fall back
	// to the documented message fragments before the generic status mapping.
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "wash trade"):
		return broker.NewError(broker.KindConflictingOrder, op, message)
	case strings.Contains(lower, "insufficient buying power"), strings.Contains(lower, "insufficient balance"):
		return broker.NewError(broker.KindInsufficientFunds, op, message)
	case strings.Contains(lower, "not tradable"), strings.Contains(lower, "not active"):
		return broker.NewError(broker.KindNotTradable, op, message)
	}

	switch status {
	case http.StatusNotFound:
		return broker.NewError(broker.KindNotFound, op, message)
	case http.StatusTooManyRequests:
		return broker.NewError(broker.KindRateLimited, op, message)
	case http.StatusForbidden:
		return broker.NewError(broker.KindInsufficientFunds, op, message)
	default:
		return broker.NewError(broker.KindUnavailable, op, message)
	}
}
