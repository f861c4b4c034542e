package grid

import (
	"fmt"

	"griddca/venue"
)

// Status is the lifecycle of a tracked grid order. Transitions are
// monotonic: unplaced → placed → filled → closed. The only way back is a
// full cycle reset, which discards the order entirely.
type Status int

const (
	StatusUnplaced Status = iota
	StatusPlaced
	StatusFilled
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusUnplaced:
		return "unplaced"
	case StatusPlaced:
		return "placed"
	case StatusFilled:
		return "filled"
	case StatusClosed:
		return "closed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Key identifies a ladder slot: side plus signed layer index. It is the
// typed identity carried end-to-end; the string form is only used as an
// opaque venue tag and is never parsed back.
type Key struct {
	Side  venue.Side
	Index int
}

// String renders the slot identity, e.g. "buy_2" or "sell_-1".
func (k Key) String() string {
	return fmt.Sprintf("%s_%d", k.Side, k.Index)
}

// Order is one conditional order the engine placed or is tracking.
// Prices and volume are fixed at construction and never mutated after
// placement.
type Order struct {
	Key         Key
	VenueID     int64
	EntryPrice  float64
	TargetPrice float64
	Volume      float64
	Status      Status
}
