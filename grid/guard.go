package grid

import (
	"time"

	"griddca/venue"
)

// Reason explains why the guard evaluator blocked grid construction.
type Reason string

const (
	ReasonNone              Reason = ""
	ReasonBlackout          Reason = "Blackout"
	ReasonMaxReduceBreached Reason = "MaxReduceBreached"
	ReasonLowMargin         Reason = "LowMargin"
	ReasonSpreadTooWide     Reason = "SpreadTooWide"
	ReasonCapacityReached   Reason = "CapacityReached"
	ReasonMaxExposure       Reason = "MaxExposure"
)

// BlackoutWindow is a recurring time-of-day range during which new grid
// activity must not start. A window may wrap past midnight
// (Start 22:00, End 02:00). Empty Weekdays means every day.
type BlackoutWindow struct {
	Start    ClockTime      `json:"start"`
	End      ClockTime      `json:"end"`
	Weekdays []time.Weekday `json:"weekdays,omitempty"`
}

// ClockTime is a wall-clock instant within a day.
type ClockTime struct {
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

func (c ClockTime) minutes() int { return c.Hour*60 + c.Minute }

// Contains reports whether t falls inside the window.
func (w BlackoutWindow) Contains(t time.Time) bool {
	if len(w.Weekdays) > 0 {
		match := false
		for _, d := range w.Weekdays {
			if t.Weekday() == d {
				match = true
				break
			}
		}
		if !match {
			return false
		}
	}
	now := t.Hour()*60 + t.Minute()
	start, end := w.Start.minutes(), w.End.minutes()
	if start <= end {
		return now >= start && now < end
	}
	// wraps past midnight
	return now >= start || now < end
}

// QuietHours is a recurring low-liquidity window during which the next
// cycle's base amount is multiplied by Factor.
type QuietHours struct {
	Start  ClockTime `json:"start"`
	End    ClockTime `json:"end"`
	Factor float64   `json:"factor"`
}

// GuardConfig holds the externally adjustable risk thresholds. Nil
// pointer means the threshold is unset and the check passes. Changes
// take effect on the next tick, never retroactively.
type GuardConfig struct {
	// MaxReduce is the emergency equity-reduction cap: if equity falls
	// more than this below the cycle-start balance, the controller
	// flattens everything and stops.
	MaxReduce *float64 `json:"max_reduce,omitempty"`

	// MinFreeMargin is the floor below which no new orders are placed.
	MinFreeMargin *float64 `json:"min_free_margin,omitempty"`

	// MaxSpread blocks construction when ask-bid exceeds it.
	MaxSpread *float64 `json:"max_spread,omitempty"`

	// MaxPositions / MaxOrders cap concurrent strategy-owned exposure.
	MaxPositions *int `json:"max_positions,omitempty"`
	MaxOrders    *int `json:"max_orders,omitempty"`

	// MaxExposure caps the summed open volume across strategy positions.
	MaxExposure *float64 `json:"max_exposure,omitempty"`

	Blackouts []BlackoutWindow `json:"blackouts,omitempty"`

	// AllowCycleCompletion lets a cycle already in flight keep running
	// through a blackout; only new cycles are held back.
	AllowCycleCompletion bool `json:"allow_cycle_completion"`

	Quiet *QuietHours `json:"quiet_hours,omitempty"`
}

// GuardInput is the snapshot a guard evaluation runs against.
type GuardInput struct {
	Tick              venue.Tick
	Account           venue.AccountSnapshot
	CycleStartBalance float64
	OpenPositions     int
	PendingOrders     int
	OpenVolume        float64

	// CycleLive indicates an existing cycle is mid-flight (at least one
	// order filled or placed), enabling the blackout continuation
	// carve-out.
	CycleLive bool
}

// Decision is the outcome of a guard evaluation.
type Decision struct {
	Allowed bool
	Reason  Reason

	// Emergency is set with ReasonMaxReduceBreached and tells the
	// controller to flatten all exposure and stop.
	Emergency bool
}

var allow = Decision{Allowed: true}

// EvaluateGuards runs the guard checks in order, short-circuiting on
// the first failure. Pure: the only out-of-band effect is the Emergency
// flag the caller must act on.
func EvaluateGuards(in GuardInput, cfg *GuardConfig, now time.Time) Decision {
	if cfg == nil {
		return allow
	}

	for _, w := range cfg.Blackouts {
		if !w.Contains(now) {
			continue
		}
		if in.CycleLive && cfg.AllowCycleCompletion {
			break // mid-cycle continuation permitted
		}
		return Decision{Reason: ReasonBlackout}
	}

	if cfg.MaxReduce != nil {
		if in.CycleStartBalance-in.Account.Equity > *cfg.MaxReduce {
			return Decision{Reason: ReasonMaxReduceBreached, Emergency: true}
		}
	}

	if cfg.MinFreeMargin != nil && in.Account.FreeMargin < *cfg.MinFreeMargin {
		return Decision{Reason: ReasonLowMargin}
	}

	if cfg.MaxSpread != nil && in.Tick.Spread() > *cfg.MaxSpread {
		return Decision{Reason: ReasonSpreadTooWide}
	}

	if cfg.MaxPositions != nil && in.OpenPositions >= *cfg.MaxPositions {
		return Decision{Reason: ReasonCapacityReached}
	}
	if cfg.MaxOrders != nil && in.PendingOrders >= *cfg.MaxOrders {
		return Decision{Reason: ReasonCapacityReached}
	}

	if cfg.MaxExposure != nil && in.OpenVolume >= *cfg.MaxExposure {
		return Decision{Reason: ReasonMaxExposure}
	}

	return allow
}

// QuietFactor returns the volume scaling factor for the quiet-hours
// window, or 1 when now is outside it (or no window is configured).
func (c *GuardConfig) QuietFactor(now time.Time) float64 {
	if c == nil || c.Quiet == nil || c.Quiet.Factor <= 0 {
		return 1
	}
	w := BlackoutWindow{Start: c.Quiet.Start, End: c.Quiet.End}
	if w.Contains(now) {
		return c.Quiet.Factor
	}
	return 1
}
