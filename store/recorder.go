package store

import (
	"griddca/grid"
)

// GridRecorder adapts the store to the engine's persistence interface.
type GridRecorder struct {
	s *Store
}

// Recorder returns a grid.Recorder backed by this store.
func (s *Store) Recorder() *GridRecorder {
	return &GridRecorder{s: s}
}

func (r *GridRecorder) SaveCycle(rec grid.CycleRecord) error {
	return r.s.Cycle().Save(&CycleRow{
		Symbol:       rec.Symbol,
		StartedAt:    rec.StartedAt,
		EndedAt:      rec.EndedAt,
		StartBalance: rec.StartBalance,
		EndBalance:   rec.EndBalance,
		RealizedPnl:  rec.RealizedPnl,
		MaxDrawdown:  rec.MaxDrawdown,
		Emergency:    rec.Emergency,
	})
}

func (r *GridRecorder) SaveTrade(rec grid.TradeRecord) error {
	return r.s.Trade().Save(&TradeRow{
		Symbol:  rec.Symbol,
		Slot:    rec.Slot,
		VenueID: rec.VenueID,
		Side:    string(rec.Side),
		Event:   rec.Event,
		Price:   rec.Price,
		Volume:  rec.Volume,
		Profit:  rec.Profit,
		Time:    rec.Time,
	})
}
