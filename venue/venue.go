// Package venue defines the broker capability surface the grid engine
// trades through, plus the common market data and account types.
package venue

import (
	"context"
	"time"
)

// Venue is the minimal broker capability set the engine needs. Adapters
// (live exchange, paper simulator) implement this interface.
type Venue interface {
	// GetTick returns the current best bid/ask for a symbol.
	GetTick(ctx context.Context, symbol string) (Tick, error)

	// GetAccountSnapshot returns balance, equity and free margin.
	GetAccountSnapshot(ctx context.Context) (AccountSnapshot, error)

	// PlaceStopOrder submits a conditional stop-entry order with an
	// attached take-profit and returns the venue order ID.
	PlaceStopOrder(ctx context.Context, req StopOrderRequest) (*StopOrderResult, error)

	// CancelOrder cancels a pending order by ID.
	CancelOrder(ctx context.Context, symbol string, orderID int64) error

	// ListOpenPositions returns all open positions for a symbol.
	ListOpenPositions(ctx context.Context, symbol string) ([]Position, error)

	// ListPendingOrders returns all pending conditional orders for a symbol.
	ListPendingOrders(ctx context.Context, symbol string) ([]Order, error)

	// ListTradeHistory returns deals executed inside [since, until].
	ListTradeHistory(ctx context.Context, symbol string, since, until time.Time) ([]Deal, error)

	// ClosePosition closes an open position at market.
	ClosePosition(ctx context.Context, symbol string, positionID int64) error
}
