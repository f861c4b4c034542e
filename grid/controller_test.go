package grid

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"griddca/venue"
	"griddca/venue/paper"
)

// captureEvents counts engine notifications for assertions.
type captureEvents struct {
	mu          sync.Mutex
	placed      int
	rejected    int
	filled      int
	closed      int
	resets      int
	blocked     []Reason
	emergencies int
}

func (e *captureEvents) OrderPlaced(Order) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.placed++
}

func (e *captureEvents) OrderRejected(Key, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rejected++
}

func (e *captureEvents) OrderFilled(Order, float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.filled++
}

func (e *captureEvents) PositionClosed(Order, float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed++
}

func (e *captureEvents) CycleReset(float64, float64, float64, time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resets++
}

func (e *captureEvents) GuardBlocked(r Reason) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.blocked = append(e.blocked, r)
}

func (e *captureEvents) EmergencyStopped(float64, float64, float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.emergencies++
}

type ControllerSuite struct {
	suite.Suite

	ctx    context.Context
	pv     *paper.Venue
	ctl    *Controller
	events *captureEvents
	clock  time.Time
}

func TestControllerSuite(t *testing.T) {
	suite.Run(t, new(ControllerSuite))
}

func (s *ControllerSuite) SetupTest() {
	s.ctx = context.Background()
	s.clock = time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC)
	s.pv = paper.New("XAUUSD", 1000)
	s.pv.SetTick(100.00, 100.04, s.clock)
	s.events = &captureEvents{}
	s.newController(Config{
		Symbol:     "XAUUSD",
		BaseAmount: 0.1,
		Builder:    testBuilderConfig(),
		Guards:     &GuardConfig{AllowCycleCompletion: true},
	})
}

func (s *ControllerSuite) newController(cfg Config) {
	s.ctl = NewController(s.pv, cfg, s.events, nil)
	s.ctl.now = func() time.Time { return s.clock }
	s.ctl.apply(Command{Kind: CmdStart})
}

// advance moves the clock and pushes a quote, running the simulated
// venue's matching pass.
func (s *ControllerSuite) advance(bid, ask float64) {
	s.clock = s.clock.Add(time.Minute)
	s.pv.SetTick(bid, ask, s.clock)
}

func (s *ControllerSuite) TestInitialBuild() {
	s.ctl.tick(s.ctx)

	s.Require().NotNil(s.ctl.st)
	s.Equal(0, s.ctl.st.AnchorIndex)
	s.Len(s.ctl.st.Orders, 6)
	s.Equal(6, s.events.placed)

	pending, err := s.pv.ListPendingOrders(s.ctx, "XAUUSD")
	s.Require().NoError(err)
	s.Len(pending, 6)
}

func (s *ControllerSuite) TestFillDoesNotMoveAnchor() {
	s.ctl.tick(s.ctx)

	// cross the nearest buy trigger (ref 100.02, offset 0.8)
	s.advance(100.90, 100.94)
	s.ctl.tick(s.ctx)

	s.Equal(0, s.ctl.st.AnchorIndex)
	s.Equal(1, s.events.filled)
	s.Len(s.ctl.st.FilledLayers(), 1)
}

func (s *ControllerSuite) TestCloseAdvancesAnchorAndRebuilds() {
	s.ctl.tick(s.ctx)
	s.advance(100.90, 100.94)
	s.ctl.tick(s.ctx)

	// cross the buy take-profit without touching the next buy trigger
	s.advance(102.85, 102.89)
	s.ctl.tick(s.ctx)

	s.Equal(1, s.ctl.st.AnchorIndex)
	s.InDelta(0.2, s.ctl.st.CycleRealizedPnl, 1e-9)
	s.Equal(1, s.events.closed)

	// the ladder re-centered on the new anchor
	s.Contains(s.ctl.st.Orders, Key{Side: venue.SideSell, Index: 1})
	s.NotContains(s.ctl.st.Orders, Key{Side: venue.SideBuy, Index: 0})
}

func (s *ControllerSuite) TestSellCloseRetreatsAnchor() {
	s.ctl.tick(s.ctx)

	// cross the nearest sell trigger (ref 100.02 - 0.8)
	s.advance(99.10, 99.14)
	s.ctl.tick(s.ctx)
	s.Equal(0, s.ctl.st.AnchorIndex)

	// cross the sell take-profit without touching the next sell trigger
	s.advance(97.15, 97.19)
	s.ctl.tick(s.ctx)

	s.Equal(-1, s.ctl.st.AnchorIndex)
	s.InDelta(0.2, s.ctl.st.CycleRealizedPnl, 1e-9)
}

func (s *ControllerSuite) TestDeepLayerCloseReanchorsBeyondIt() {
	s.newController(Config{
		Symbol:            "XAUUSD",
		BaseAmount:        0.1,
		SkipRebuildOnFill: true,
		Builder:           testBuilderConfig(),
		Guards:            &GuardConfig{AllowCycleCompletion: true},
	})

	// a ladder mid-flight: only the buy layer-2 rung still resting,
	// anchor unchanged at 0
	s.ctl.st = NewState(1000, s.clock)
	res, err := s.pv.PlaceStopOrder(s.ctx, venue.StopOrderRequest{
		Symbol: "XAUUSD",
		Side:   venue.SideBuy,
		Price:  100.90,
		Target: 102.90,
		Volume: 6.0,
	})
	s.Require().NoError(err)
	s.ctl.st.Record(&Order{
		Key:         Key{Side: venue.SideBuy, Index: 2},
		VenueID:     res.OrderID,
		EntryPrice:  100.90,
		TargetPrice: 102.90,
		Volume:      6.0,
		Status:      StatusPlaced,
	})

	s.advance(100.88, 100.92) // ask crosses the layer-2 trigger
	s.ctl.tick(s.ctx)
	s.Equal(0, s.ctl.st.AnchorIndex)

	s.advance(102.91, 102.95) // bid crosses its take-profit
	s.ctl.tick(s.ctx)

	// the anchor lands one step beyond the closed layer, not one step
	// from its previous value
	s.Equal(3, s.ctl.st.AnchorIndex)
	s.InDelta(12.0, s.ctl.st.CycleRealizedPnl, 1e-9)
	s.Equal(1, s.events.closed)
}

func (s *ControllerSuite) TestBlackoutHoldsNewCycleAfterReset() {
	blackout := BlackoutWindow{
		Start: ClockTime{Hour: 10, Minute: 30},
		End:   ClockTime{Hour: 11, Minute: 30},
	}
	s.newController(Config{
		Symbol:     "XAUUSD",
		BaseAmount: 0.1,
		Builder:    testBuilderConfig(),
		Guards: &GuardConfig{
			AllowCycleCompletion: true,
			Blackouts:            []BlackoutWindow{blackout},
		},
	})

	// 10:00, before the window: the cycle starts normally
	s.ctl.tick(s.ctx)
	s.Len(s.ctl.st.Orders, 6)

	s.advance(100.90, 100.94) // 10:01, fill the nearest buy
	s.ctl.tick(s.ctx)
	s.Equal(1, s.events.filled)

	// 10:45, inside the window: the live cycle keeps completing
	s.clock = s.clock.Add(44 * time.Minute)
	s.pv.SetTick(102.85, 102.89, s.clock)
	s.ctl.tick(s.ctx)
	s.Equal(1, s.events.closed)
	s.Equal(1, s.ctl.st.AnchorIndex)

	// still inside the window: the reset flattens but the next cycle
	// must not start
	s.ctl.st.CycleRealizedPnl = s.ctl.cycleTarget() + 1
	s.advance(102.85, 102.89)
	s.ctl.tick(s.ctx)

	s.Equal(1, s.events.resets)
	s.True(s.ctl.needBuild)
	s.Empty(s.ctl.st.Orders)
	pending, err := s.pv.ListPendingOrders(s.ctx, "XAUUSD")
	s.Require().NoError(err)
	s.Empty(pending)

	s.advance(102.85, 102.89)
	s.ctl.tick(s.ctx)
	s.Empty(s.ctl.st.Orders)
	s.Contains(s.events.blocked, ReasonBlackout)

	// 11:35, past the window: the held cycle finally builds
	s.clock = s.clock.Add(48 * time.Minute)
	s.pv.SetTick(102.85, 102.89, s.clock)
	s.ctl.tick(s.ctx)
	s.Len(s.ctl.st.Orders, 6)
	s.False(s.ctl.needBuild)
}

func (s *ControllerSuite) TestCycleResetFlattensEverything() {
	s.ctl.tick(s.ctx)

	// open exposure on both sides without crossing any take-profit
	s.advance(100.90, 100.94)
	s.ctl.tick(s.ctx)
	s.advance(99.10, 99.14)
	s.ctl.tick(s.ctx)
	s.Len(s.ctl.st.OpenVenueIDs(), 2)

	// force the cycle target condition with open positions remaining
	s.ctl.st.CycleRealizedPnl = s.ctl.cycleTarget() + 1
	s.advance(99.10, 99.14)
	s.ctl.tick(s.ctx)

	s.Equal(1, s.events.resets)
	s.Require().NotNil(s.ctl.st)
	s.Equal(0, s.ctl.st.AnchorIndex)
	s.Zero(s.ctl.st.CycleRealizedPnl)
	s.Empty(s.ctl.st.FilledLayers())

	positions, err := s.pv.ListOpenPositions(s.ctx, "XAUUSD")
	s.Require().NoError(err)
	s.Empty(positions)

	// the fresh ladder went straight back up
	pending, err := s.pv.ListPendingOrders(s.ctx, "XAUUSD")
	s.Require().NoError(err)
	s.Len(pending, len(s.ctl.st.Orders))
	s.NotEmpty(s.ctl.st.Orders)
}

func (s *ControllerSuite) TestEmergencyStop() {
	s.events = &captureEvents{}
	s.newController(Config{
		Symbol:     "XAUUSD",
		BaseAmount: 0.1,
		Builder:    testBuilderConfig(),
		Guards:     &GuardConfig{MaxReduce: fptr(0.3), AllowCycleCompletion: true},
	})

	s.ctl.tick(s.ctx)
	s.advance(100.90, 100.94)
	s.ctl.tick(s.ctx)

	// crash: the open buy position's floating loss breaches the cap
	s.advance(90.00, 90.04)
	s.ctl.tick(s.ctx)

	s.Equal(StateEmergencyStopped, s.ctl.runState)
	s.Equal(1, s.events.emergencies)

	positions, err := s.pv.ListOpenPositions(s.ctx, "XAUUSD")
	s.Require().NoError(err)
	s.Empty(positions)
	pending, err := s.pv.ListPendingOrders(s.ctx, "XAUUSD")
	s.Require().NoError(err)
	s.Empty(pending)

	// start is refused until the stop is acknowledged
	s.ctl.apply(Command{Kind: CmdStart})
	s.Equal(StateEmergencyStopped, s.ctl.runState)

	s.ctl.apply(Command{Kind: CmdAckEmergency})
	s.Equal(StatePaused, s.ctl.runState)
	s.ctl.apply(Command{Kind: CmdStart})
	s.Equal(StateRunning, s.ctl.runState)
}

func (s *ControllerSuite) TestGuardBlockedTickPlacesNothing() {
	s.events = &captureEvents{}
	s.newController(Config{
		Symbol:     "XAUUSD",
		BaseAmount: 0.1,
		Builder:    testBuilderConfig(),
		Guards:     &GuardConfig{MaxSpread: fptr(0.5), AllowCycleCompletion: true},
	})

	s.advance(100.00, 100.80) // spread 0.8 over the 0.5 cap
	s.ctl.tick(s.ctx)

	s.Empty(s.ctl.st.Orders)
	s.Equal([]Reason{ReasonSpreadTooWide}, s.events.blocked)

	// spread back to normal: construction resumes
	s.advance(100.00, 100.04)
	s.ctl.tick(s.ctx)
	s.Len(s.ctl.st.Orders, 6)
}

func (s *ControllerSuite) TestStopAfterCyclePausesOnReset() {
	s.ctl.tick(s.ctx)
	s.ctl.apply(Command{Kind: CmdStopAfterCycle})

	s.ctl.st.CycleRealizedPnl = s.ctl.cycleTarget() + 1
	s.advance(100.00, 100.04)
	s.ctl.tick(s.ctx)

	s.Equal(StatePaused, s.ctl.runState)
	s.Empty(s.ctl.st.Orders)
	pending, err := s.pv.ListPendingOrders(s.ctx, "XAUUSD")
	s.Require().NoError(err)
	s.Empty(pending)
}

func (s *ControllerSuite) TestBaseAmountOverrideAppliesNextCycle() {
	s.ctl.tick(s.ctx)
	s.ctl.apply(Command{Kind: CmdSetBaseAmount, Amount: 0.25})
	s.InDelta(0.1, s.ctl.baseAmount, 1e-9) // current cycle unchanged

	s.ctl.st.CycleRealizedPnl = s.ctl.cycleTarget() + 1
	s.advance(100.00, 100.04)
	s.ctl.tick(s.ctx)

	s.InDelta(0.25, s.ctl.baseAmount, 1e-9)
}

func (s *ControllerSuite) TestGuardUpdateTakesEffectNextTick() {
	s.ctl.tick(s.ctx)
	s.ctl.apply(Command{Kind: CmdUpdateGuards, Apply: func(g *GuardConfig) {
		g.MaxSpread = fptr(0.01)
	}})

	g := s.ctl.Guards()
	s.Require().NotNil(g.MaxSpread)
	s.InDelta(0.01, *g.MaxSpread, 1e-9)
}

func (s *ControllerSuite) TestStatusSnapshot() {
	s.ctl.tick(s.ctx)
	s.ctl.publishSnapshot(0)

	snap := s.ctl.Status()
	s.Equal(StateRunning, snap.State)
	s.Equal("XAUUSD", snap.Symbol)
	s.Equal(0, snap.AnchorIndex)
	s.Equal(6, snap.PlacedOrders)
	s.InDelta(1000, snap.CycleStartBalance, 1e-9)
}
