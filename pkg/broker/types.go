package broker

import "time"

// Core brokerage domain types shared across broker implementations.
// These structures stay brokerage-agnostic so the engine never depends on a
// specific venue's payload shapes.

// OrderSide represents order direction.
type OrderSide string

const (
	// OrderSideBuy executes a buy.
	OrderSideBuy OrderSide = "buy"
	// OrderSideSell executes a sell.
	OrderSideSell OrderSide = "sell"
)

// AssetClass identifies the instrument category of a position.
type AssetClass string

const (
	AssetClassEquity AssetClass = "us_equity"
	AssetClassOption AssetClass = "us_option"
	AssetClassCrypto AssetClass = "crypto"
)

// OrderStatus is the broker-reported lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "new"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusCanceled        OrderStatus = "canceled"
	OrderStatusRejected        OrderStatus = "rejected"
)

// IsOpen reports whether the order can still fill.
func (s OrderStatus) IsOpen() bool {
	return s == OrderStatusNew || s == OrderStatusPartiallyFilled
}

// Account summarizes a trading account at a point in time. A fresh value is
// fetched every cycle; nothing here is cached.
type Account struct {
	Equity            float64 // Total account value in USD
	Cash              float64 // Settled cash; negative when funds are borrowed
	BuyingPower       float64 // Broker-reported buying power
	MaintenanceMargin float64 // Maintenance margin requirement
	Currency          string
}

// Position captures one live holding.
type Position struct {
	Symbol        string
	Qty           float64
	AvgEntryPrice float64
	MarketValue   float64
	AssetClass    AssetClass
}

// Bar is a single daily OHLCV bar.
type Bar struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
}

// Quote holds the latest top-of-book bid/ask for a symbol.
type Quote struct {
	Symbol    string
	BidPrice  float64
	BidSize   float64
	AskPrice  float64
	AskSize   float64
	Timestamp time.Time
}

// OrderRequest describes a limit order submission.
type OrderRequest struct {
	Symbol        string
	Side          OrderSide
	Qty           float64
	LimitPrice    float64
	ExtendedHours bool
	ClientOrderID string // Optional; generated by the adapter when empty
}

// Order is the broker's view of a submitted order.
type Order struct {
	ID            string
	ClientOrderID string
	Symbol        string
	Side          OrderSide
	Qty           float64
	FilledQty     float64
	LimitPrice    float64
	Status        OrderStatus
	SubmittedAt   time.Time
	ExtendedHours bool
}

// Clock reports the venue's market session state.
type Clock struct {
	Timestamp time.Time
	IsOpen    bool
	NextOpen  time.Time
	NextClose time.Time
}
