package grid

import (
	"sort"

	"griddca/venue"
)

// SuppressSide selects which side's nearest layer a directional streak
// suppresses. "same" holds back the layer that would pile onto the
// streak; "opposite" fades it instead.
type SuppressSide string

const (
	SuppressSame     SuppressSide = "same"
	SuppressOpposite SuppressSide = "opposite"
)

// PatternConfig tunes the directional-streak detector.
type PatternConfig struct {
	// MinPairs is how many adjacent same-side fill pairs constitute a
	// streak. Default 2.
	MinPairs int `json:"min_pairs"`

	// Policy names the suppressed side.
	Policy SuppressSide `json:"policy"`
}

// PatternSignal tells the builder which nearest layers to skip.
type PatternSignal struct {
	SuppressBuy  bool
	SuppressSell bool
}

// DetectPattern inspects the currently filled layers for directional
// runs: adjacent same-side fills whose indices differ by exactly one.
// Enough of them on one side produces a suppression signal for that
// side's (or, under the opposite policy, the other side's) nearest
// layer.
func DetectPattern(filled []Key, cfg PatternConfig) PatternSignal {
	minPairs := cfg.MinPairs
	if minPairs <= 0 {
		minPairs = 2
	}

	var buys, sells []int
	for _, k := range filled {
		switch k.Side {
		case venue.SideBuy:
			buys = append(buys, k.Index)
		case venue.SideSell:
			sells = append(sells, k.Index)
		}
	}

	buyStreak := adjacentPairs(buys) >= minPairs
	sellStreak := adjacentPairs(sells) >= minPairs

	var sig PatternSignal
	switch cfg.Policy {
	case SuppressOpposite:
		sig.SuppressSell = buyStreak
		sig.SuppressBuy = sellStreak
	default:
		sig.SuppressBuy = buyStreak
		sig.SuppressSell = sellStreak
	}
	return sig
}

// adjacentPairs counts index pairs exactly 1 apart after sorting.
// Duplicate indices cannot occur: a slot holds at most one live order.
func adjacentPairs(indices []int) int {
	if len(indices) < 2 {
		return 0
	}
	sort.Ints(indices)
	pairs := 0
	for i := 1; i < len(indices); i++ {
		if indices[i]-indices[i-1] == 1 {
			pairs++
		}
	}
	return pairs
}
