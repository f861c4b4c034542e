package grid

import (
	"context"
	"fmt"
	"time"

	"griddca/venue"
)

// FillEvent reports a pending order that became a live position.
type FillEvent struct {
	Order Order
	Price float64
}

// CloseEvent reports a filled position that closed at its target.
type CloseEvent struct {
	Order  Order
	Profit float64
}

// Tracker derives fill and closure events by polling venue trade
// history and open positions. The venue is the source of truth; the
// tracker only records what it has already reported so repeating a poll
// against unchanged venue state yields nothing new.
type Tracker struct {
	venue  venue.Venue
	symbol string
}

// NewTracker wires a tracker to its venue.
func NewTracker(v venue.Venue, symbol string) *Tracker {
	return &Tracker{venue: v, symbol: symbol}
}

// Poll detects newly filled and newly closed orders since the cycle
// start and returns the floating PnL of the still-open strategy
// positions. State sets are updated as events are produced, so calling
// twice in a row is safe.
func (t *Tracker) Poll(ctx context.Context, st *State, now time.Time) (fills []FillEvent, closes []CloseEvent, openPnl float64, err error) {
	deals, err := t.venue.ListTradeHistory(ctx, t.symbol, st.CycleStart, now)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("%w: trade history: %v", ErrVenueUnavailable, err)
	}
	positions, err := t.venue.ListOpenPositions(ctx, t.symbol)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("%w: open positions: %v", ErrVenueUnavailable, err)
	}

	// a pending order fills when a deal's position ID equals its order ID
	for _, o := range st.Orders {
		if o.Status != StatusPlaced || st.IsFilled(o.VenueID) {
			continue
		}
		for _, d := range deals {
			if d.PositionID != o.VenueID {
				continue
			}
			st.MarkFilled(o.VenueID, o.Key)
			price := d.Price
			if price <= 0 {
				price = o.EntryPrice
			}
			fills = append(fills, FillEvent{Order: *o, Price: price})
			break
		}
	}

	open := make(map[int64]float64, len(positions))
	for _, p := range positions {
		open[p.ID] = p.Profit
	}

	// a filled position closes when it is no longer among open positions
	for _, id := range st.OpenVenueIDs() {
		if profit, stillOpen := open[id]; stillOpen {
			openPnl += profit
			continue
		}
		key, ok := st.FilledKey(id)
		if !ok {
			continue
		}
		var order Order
		if o, exists := st.Orders[key]; exists {
			order = *o
		} else {
			order = Order{Key: key, VenueID: id}
		}
		if _, ok := st.MarkClosed(id); !ok {
			continue
		}
		closes = append(closes, CloseEvent{Order: order, Profit: lastProfit(deals, id)})
	}

	return fills, closes, openPnl, nil
}

// lastProfit returns the profit of the most recent deal for a position.
// The closing deal sorts after the opening one, so the last match
// carries the realized PnL.
func lastProfit(deals []venue.Deal, positionID int64) float64 {
	profit := 0.0
	for _, d := range deals {
		if d.PositionID == positionID {
			profit = d.Profit
		}
	}
	return profit
}
