package grid

import (
	"time"
)

// State holds everything belonging to one active cycle. It is owned
// exclusively by a single Controller and only mutated from its tick
// loop; a cycle reset replaces the whole value rather than patching it.
type State struct {
	AnchorIndex int

	// Orders maps ladder slot to the order occupying it. A slot whose
	// position closed at target is deleted so the next build can refill
	// it with a fresh order.
	Orders map[Key]*Order

	// filled and closed record venue IDs already processed, so polling
	// the same venue state twice never produces duplicate events.
	filled map[int64]Key
	closed map[int64]bool

	CycleStartBalance float64
	CycleRealizedPnl  float64
	MaxDrawdown       float64
	CycleStart        time.Time
}

// NewState starts a fresh cycle anchored at index 0.
func NewState(startBalance float64, now time.Time) *State {
	return &State{
		Orders:            make(map[Key]*Order),
		filled:            make(map[int64]Key),
		closed:            make(map[int64]bool),
		CycleStartBalance: startBalance,
		CycleStart:        now,
	}
}

// Record stores a freshly placed order in its slot.
func (s *State) Record(o *Order) {
	s.Orders[o.Key] = o
}

// PlacedCount returns how many slots currently hold a placed (not yet
// filled) order.
func (s *State) PlacedCount() int {
	n := 0
	for _, o := range s.Orders {
		if o.Status == StatusPlaced {
			n++
		}
	}
	return n
}

// FilledLayers lists the slots whose orders have filled but not closed,
// as input for the pattern detector.
func (s *State) FilledLayers() []Key {
	out := make([]Key, 0, len(s.filled))
	for id, key := range s.filled {
		if !s.closed[id] {
			out = append(out, key)
		}
	}
	return out
}

// IsFilled reports whether a venue ID was already seen as filled.
func (s *State) IsFilled(venueID int64) bool {
	_, ok := s.filled[venueID]
	return ok
}

// FilledKey returns the slot a filled venue ID belongs to.
func (s *State) FilledKey(venueID int64) (Key, bool) {
	key, ok := s.filled[venueID]
	return key, ok
}

// IsClosed reports whether a venue ID was already seen as closed.
func (s *State) IsClosed(venueID int64) bool {
	return s.closed[venueID]
}

// MarkFilled transitions the slot's order to filled and remembers the
// venue ID.
func (s *State) MarkFilled(venueID int64, key Key) {
	s.filled[venueID] = key
	if o, ok := s.Orders[key]; ok {
		o.Status = StatusFilled
	}
}

// MarkClosed transitions the slot's order to closed, remembers the
// venue ID, and clears the slot so a fresh order can take it.
func (s *State) MarkClosed(venueID int64) (Key, bool) {
	key, ok := s.filled[venueID]
	if !ok || s.closed[venueID] {
		return Key{}, false
	}
	s.closed[venueID] = true
	if o, exists := s.Orders[key]; exists && o.VenueID == venueID {
		o.Status = StatusClosed
		delete(s.Orders, key)
	}
	return key, true
}

// OpenVenueIDs lists venue IDs filled but not yet observed closed.
func (s *State) OpenVenueIDs() []int64 {
	out := make([]int64, 0, len(s.filled))
	for id := range s.filled {
		if !s.closed[id] {
			out = append(out, id)
		}
	}
	return out
}

// ObserveEquity updates the worst drawdown seen this cycle.
func (s *State) ObserveEquity(equity float64) {
	if dd := s.CycleStartBalance - equity; dd > s.MaxDrawdown {
		s.MaxDrawdown = dd
	}
}
