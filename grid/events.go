package grid

import "time"

// Events receives engine notifications. Implementations must be fast or
// hand off internally; calls happen inline on the tick loop.
type Events interface {
	OrderPlaced(o Order)
	OrderRejected(key Key, err error)
	OrderFilled(o Order, price float64)
	PositionClosed(o Order, profit float64)
	CycleReset(realized float64, startBalance, endBalance float64, started time.Time)
	GuardBlocked(reason Reason)
	EmergencyStopped(equity, startBalance, threshold float64)
}

// NopEvents discards everything.
type NopEvents struct{}

func (NopEvents) OrderPlaced(Order)                               {}
func (NopEvents) OrderRejected(Key, error)                        {}
func (NopEvents) OrderFilled(Order, float64)                      {}
func (NopEvents) PositionClosed(Order, float64)                   {}
func (NopEvents) CycleReset(float64, float64, float64, time.Time) {}
func (NopEvents) GuardBlocked(Reason)                             {}
func (NopEvents) EmergencyStopped(float64, float64, float64)      {}
