package venue

import "time"

// Side is the direction of an order or position.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Tick is a best bid/ask snapshot for a symbol.
type Tick struct {
	Symbol string    `json:"symbol"`
	Bid    float64   `json:"bid"`
	Ask    float64   `json:"ask"`
	Time   time.Time `json:"time"`
}

// Mid returns the bid/ask midpoint.
func (t Tick) Mid() float64 {
	return (t.Bid + t.Ask) / 2
}

// Spread returns the ask-bid distance.
func (t Tick) Spread() float64 {
	return t.Ask - t.Bid
}

// AccountSnapshot is a point-in-time view of the trading account.
type AccountSnapshot struct {
	Balance    float64 `json:"balance"`     // realized balance
	Equity     float64 `json:"equity"`      // balance + floating PnL
	FreeMargin float64 `json:"free_margin"` // margin available for new orders
}

// Position is an open position held at the venue.
type Position struct {
	ID        int64     `json:"id"`
	Symbol    string    `json:"symbol"`
	Side      Side      `json:"side"`
	Volume    float64   `json:"volume"`
	OpenPrice float64   `json:"open_price"`
	Profit    float64   `json:"profit"` // floating PnL
	OpenTime  time.Time `json:"open_time"`
}

// Order is a pending (not yet triggered) conditional order at the venue.
type Order struct {
	ID     int64   `json:"id"`
	Symbol string  `json:"symbol"`
	Side   Side    `json:"side"`
	Price  float64 `json:"price"`  // trigger price
	Target float64 `json:"target"` // attached take-profit price
	Volume float64 `json:"volume"`
	Tag    string  `json:"tag"` // opaque client tag, echoed back by the venue
}

// Deal is a historical execution record. A filled conditional order produces
// a deal whose PositionID equals the originating order's ID; closing that
// position produces a second deal carrying the realized profit.
type Deal struct {
	OrderID    int64     `json:"order_id"`
	PositionID int64     `json:"position_id"`
	Symbol     string    `json:"symbol"`
	Side       Side      `json:"side"`
	Volume     float64   `json:"volume"`
	Price      float64   `json:"price"`
	Profit     float64   `json:"profit"`
	Time       time.Time `json:"time"`
}

// StopOrderRequest describes a conditional stop-entry order with an
// attached take-profit.
type StopOrderRequest struct {
	Symbol string
	Side   Side
	Price  float64 // trigger price
	Target float64 // take-profit price
	Volume float64
	Tag    string
}

// StopOrderResult is returned by a successful order placement.
type StopOrderResult struct {
	OrderID int64
}
