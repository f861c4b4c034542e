package grid

import "fmt"

// DefaultScalingTable widens volume stepwise with distance from the
// anchor, flattening out at 13x.
var DefaultScalingTable = []float64{1, 1, 2, 2, 3, 3, 5, 5, 8, 8, 13, 13, 13, 13, 13}

// VolumeFor computes the order volume for a ladder layer:
// base × table[min(abs(index), len(table)-1)]. Indices beyond the table
// reuse the last multiplier. Pure function.
func VolumeFor(base float64, table []float64, layerIndex int) (float64, error) {
	if base <= 0 {
		return 0, fmt.Errorf("%w: base amount %v must be positive", ErrInvalidConfiguration, base)
	}
	if len(table) == 0 {
		return 0, fmt.Errorf("%w: empty scaling table", ErrInvalidConfiguration)
	}
	if table[0] < 1 {
		return 0, fmt.Errorf("%w: scaling table starts at %v, want >= 1", ErrInvalidConfiguration, table[0])
	}
	idx := layerIndex
	if idx < 0 {
		idx = -idx
	}
	if idx >= len(table) {
		idx = len(table) - 1
	}
	mult := table[idx]
	if mult <= 0 {
		return 0, fmt.Errorf("%w: scaling multiplier %v at %d must be positive", ErrInvalidConfiguration, mult, idx)
	}
	return base * mult, nil
}
