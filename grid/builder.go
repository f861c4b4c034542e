package grid

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"

	"griddca/logger"
	"griddca/venue"
)

// BuilderConfig tunes ladder geometry.
type BuilderConfig struct {
	Symbol string `json:"symbol"`

	// EntryOffset is the base distance between the reference price and
	// a layer's trigger price.
	EntryOffset float64 `json:"entry_offset"`

	// ProfitDistance is the base distance between a layer's entry and
	// its take-profit.
	ProfitDistance float64 `json:"profit_distance"`

	// SpacingScale widens both distances by
	// (1 + SpacingScale × abs(index) / 100), so deeper layers sit
	// further apart and are less likely to be hit by noise.
	SpacingScale float64 `json:"spacing_scale"`

	ScalingTable []float64 `json:"scaling_table"`

	// PriceTolerance is the duplicate-suppression radius: a pending
	// order within this distance of a computed entry means the layer is
	// treated as already placed.
	PriceTolerance float64 `json:"price_tolerance"`

	Pattern PatternConfig `json:"pattern"`
}

func (c *BuilderConfig) tolerance() float64 {
	if c.PriceTolerance > 0 {
		return c.PriceTolerance
	}
	return 1e-4
}

// Builder computes and submits the six-layer conditional order ladder
// around an anchor index.
type Builder struct {
	venue  venue.Venue
	cfg    BuilderConfig
	events Events
}

// NewBuilder wires a builder to its venue and event sink.
func NewBuilder(v venue.Venue, cfg BuilderConfig, events Events) *Builder {
	if events == nil {
		events = NopEvents{}
	}
	return &Builder{venue: v, cfg: cfg, events: events}
}

// layerSpec is one computed rung before submission.
type layerSpec struct {
	key    Key
	entry  float64
	target float64
	// nearest marks the layer at the anchor index itself, the only one
	// the pattern detector may suppress.
	nearest bool
}

func (b *Builder) widen(index int) float64 {
	return 1 + b.cfg.SpacingScale*math.Abs(float64(index))/100
}

// layersAt computes the three buy and three sell rungs for an anchor.
// Entry offsets accumulate the profit distances of the shallower rungs,
// so each deeper rung sits one take-profit beyond the previous one.
func (b *Builder) layersAt(anchor int, ref float64) []layerSpec {
	delta, profit := b.cfg.EntryOffset, b.cfg.ProfitDistance

	specs := make([]layerSpec, 0, 6)

	// buy side: anchor, anchor+1, anchor+2 above the reference
	base := ref
	for n := 0; n < 3; n++ {
		idx := anchor + n
		entry := base + delta*b.widen(idx)
		specs = append(specs, layerSpec{
			key:     Key{Side: venue.SideBuy, Index: idx},
			entry:   entry,
			target:  entry + profit*b.widen(idx),
			nearest: n == 0,
		})
		base += profit * b.widen(idx)
	}

	// sell side: anchor, anchor-1, anchor-2 below the reference
	base = ref
	for n := 0; n < 3; n++ {
		idx := anchor - n
		entry := base - delta*b.widen(idx)
		specs = append(specs, layerSpec{
			key:     Key{Side: venue.SideSell, Index: idx},
			entry:   entry,
			target:  entry - profit*b.widen(idx),
			nearest: n == 0,
		})
		base -= profit * b.widen(idx)
	}

	return specs
}

// BuildAt submits every ladder layer not already placed, honoring the
// guard decision and the pattern suppression signal. A blocked decision
// places zero orders and is not an error. refPrice <= 0 means "use the
// current mid price".
func (b *Builder) BuildAt(ctx context.Context, st *State, refPrice, baseAmount float64, dec Decision) error {
	if !dec.Allowed {
		return nil
	}

	if refPrice <= 0 {
		tick, err := b.venue.GetTick(ctx, b.cfg.Symbol)
		if err != nil {
			return fmt.Errorf("%w: tick: %v", ErrVenueUnavailable, err)
		}
		refPrice = tick.Mid()
	}

	pending, err := b.venue.ListPendingOrders(ctx, b.cfg.Symbol)
	if err != nil {
		return fmt.Errorf("%w: pending orders: %v", ErrVenueUnavailable, err)
	}
	buckets := priceBuckets(pending, b.cfg.tolerance())

	sig := DetectPattern(st.FilledLayers(), b.cfg.Pattern)

	for _, spec := range b.layersAt(st.AnchorIndex, refPrice) {
		if o, ok := st.Orders[spec.key]; ok && o.Status != StatusUnplaced {
			continue
		}
		if spec.nearest {
			if (spec.key.Side == venue.SideBuy && sig.SuppressBuy) ||
				(spec.key.Side == venue.SideSell && sig.SuppressSell) {
				logger.Infof("📐 [Grid] %s suppressed by directional streak", spec.key)
				continue
			}
		}
		if buckets.contains(spec.entry) {
			// an equivalent order already sits at this price
			logger.Debugf("📐 [Grid] %s duplicate at %.5f, skipping", spec.key, spec.entry)
			continue
		}

		vol, err := VolumeFor(baseAmount, b.cfg.ScalingTable, spec.key.Index)
		if err != nil {
			logger.Errorf("❌ [Grid] sizing %s: %v", spec.key, err)
			continue
		}

		res, err := b.venue.PlaceStopOrder(ctx, venue.StopOrderRequest{
			Symbol: b.cfg.Symbol,
			Side:   spec.key.Side,
			Price:  spec.entry,
			Target: spec.target,
			Volume: vol,
			Tag:    fmt.Sprintf("%s_%s", spec.key, uuid.NewString()[:8]),
		})
		if err != nil {
			logger.Warnf("⚠️ [Grid] place %s entry=%.5f: %v", spec.key, spec.entry, err)
			b.events.OrderRejected(spec.key, err)
			continue
		}

		order := &Order{
			Key:         spec.key,
			VenueID:     res.OrderID,
			EntryPrice:  spec.entry,
			TargetPrice: spec.target,
			Volume:      vol,
			Status:      StatusPlaced,
		}
		st.Record(order)
		buckets.add(spec.entry)
		b.events.OrderPlaced(*order)
		logger.Infof("📊 [Grid] placed %s entry=%.5f tp=%.5f vol=%.2f id=%d",
			spec.key, spec.entry, spec.target, vol, res.OrderID)
	}

	return nil
}

// bucketSet indexes prices by tolerance-sized buckets so duplicate
// checks are O(1) instead of a scan per layer. A price near a bucket
// edge lands in either of two adjacent buckets, so both are checked.
type bucketSet struct {
	tol     float64
	buckets map[int64]struct{}
}

func priceBuckets(orders []venue.Order, tol float64) bucketSet {
	s := bucketSet{tol: tol, buckets: make(map[int64]struct{}, len(orders))}
	for _, o := range orders {
		s.add(o.Price)
	}
	return s
}

func (s bucketSet) bucket(price float64) int64 {
	return int64(math.Floor(price / s.tol))
}

func (s bucketSet) add(price float64) {
	s.buckets[s.bucket(price)] = struct{}{}
}

func (s bucketSet) contains(price float64) bool {
	b := s.bucket(price)
	for _, n := range [3]int64{b - 1, b, b + 1} {
		if _, ok := s.buckets[n]; ok {
			return true
		}
	}
	return false
}
