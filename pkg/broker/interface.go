package broker

import "context"

// Provider exposes brokerage capabilities in a venue-agnostic fashion.
// The engine consumes this contract and never talks to a venue directly.
type Provider interface {
	// Account information.
	GetAccount(ctx context.Context) (*Account, error)
	GetPositions(ctx context.Context) ([]Position, error)

	// Market data.
	GetBars(ctx context.Context, symbol string, lookbackDays int) ([]Bar, error)
	GetLatestQuote(ctx context.Context, symbol string) (*Quote, error)
	GetClock(ctx context.Context) (*Clock, error)

	// Order management.
	SubmitLimitOrder(ctx context.Context, req OrderRequest) (*Order, error)
	CancelOrder(ctx context.Context, orderID string) error
	ListOpenOrders(ctx context.Context) ([]Order, error)
}
