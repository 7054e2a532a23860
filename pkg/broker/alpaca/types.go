package alpaca

import "time"

// Wire-level payloads for the Alpaca trading and market data APIs. The
// trading API serializes most numbers as strings; values are parsed once at
// the adapter boundary and never leak past it.

type accountResponse struct {
	ID                string `json:"id"`
	AccountNumber     string `json:"account_number"`
	Status            string `json:"status"`
	Currency          string `json:"currency"`
	Cash              string `json:"cash"`
	Equity            string `json:"equity"`
	BuyingPower       string `json:"buying_power"`
	RegTBuyingPower   string `json:"regt_buying_power"`
	MaintenanceMargin string `json:"maintenance_margin"`
	PatternDayTrader  bool   `json:"pattern_day_trader"`
	TradingBlocked    bool   `json:"trading_blocked"`
}

type positionResponse struct {
	Symbol        string `json:"symbol"`
	Qty           string `json:"qty"`
	AvgEntryPrice string `json:"avg_entry_price"`
	MarketValue   string `json:"market_value"`
	AssetClass    string `json:"asset_class"`
	Side          string `json:"side"`
}

type orderResponse struct {
	ID            string    `json:"id"`
	ClientOrderID string    `json:"client_order_id"`
	Symbol        string    `json:"symbol"`
	Side          string    `json:"side"`
	Qty           string    `json:"qty"`
	FilledQty     string    `json:"filled_qty"`
	Type          string    `json:"type"`
	LimitPrice    string    `json:"limit_price"`
	Status        string    `json:"status"`
	SubmittedAt   time.Time `json:"submitted_at"`
	ExtendedHours bool      `json:"extended_hours"`
}

type orderRequestPayload struct {
	Symbol        string `json:"symbol"`
	Qty           string `json:"qty"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	TimeInForce   string `json:"time_in_force"`
	LimitPrice    string `json:"limit_price"`
	ExtendedHours bool   `json:"extended_hours"`
	ClientOrderID string `json:"client_order_id,omitempty"`
}

type clockResponse struct {
	Timestamp time.Time `json:"timestamp"`
	IsOpen    bool      `json:"is_open"`
	NextOpen  time.Time `json:"next_open"`
	NextClose time.Time `json:"next_close"`
}

// Market data API payloads use plain JSON numbers.

type barPayload struct {
	Timestamp time.Time `json:"t"`
	Open      float64   `json:"o"`
	High      float64   `json:"h"`
	Low       float64   `json:"l"`
	Close     float64   `json:"c"`
	Volume    int64     `json:"v"`
}

type barsResponse struct {
	Bars          []barPayload `json:"bars"`
	Symbol        string       `json:"symbol"`
	NextPageToken *string      `json:"next_page_token"`
}

type quotePayload struct {
	Timestamp time.Time `json:"t"`
	BidPrice  float64   `json:"bp"`
	BidSize   float64   `json:"bs"`
	AskPrice  float64   `json:"ap"`
	AskSize   float64   `json:"as"`
}

type latestQuoteResponse struct {
	Symbol string       `json:"symbol"`
	Quote  quotePayload `json:"quote"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}
