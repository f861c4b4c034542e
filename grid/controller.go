package grid

import (
	"context"
	"sync"
	"time"

	"griddca/logger"
	"griddca/venue"
)

// RunState is the controller's lifecycle state.
type RunState string

const (
	StatePaused           RunState = "paused"
	StateRunning          RunState = "running"
	StateEmergencyStopped RunState = "emergency_stopped"
)

// CommandKind enumerates inbound control commands.
type CommandKind int

const (
	CmdStart CommandKind = iota
	CmdPause
	CmdStopAfterCycle
	CmdSetBaseAmount
	CmdUpdateGuards
	CmdAckEmergency
)

// Command is handed to the controller through a channel and applied at
// the start of the next loop iteration, never concurrently with a tick.
type Command struct {
	Kind   CommandKind
	Amount float64
	// Apply mutates guard thresholds for CmdUpdateGuards.
	Apply func(*GuardConfig)
}

// Recorder persists completed cycles and executions. A nil Recorder
// disables persistence.
type Recorder interface {
	SaveCycle(rec CycleRecord) error
	SaveTrade(rec TradeRecord) error
}

// CycleRecord summarizes one completed (or aborted) cycle.
type CycleRecord struct {
	Symbol       string
	StartedAt    time.Time
	EndedAt      time.Time
	StartBalance float64
	EndBalance   float64
	RealizedPnl  float64
	MaxDrawdown  float64
	Emergency    bool
}

// TradeRecord is one fill or closure worth persisting.
type TradeRecord struct {
	Symbol  string
	Slot    string
	VenueID int64
	Side    venue.Side
	Event   string // "filled" or "closed"
	Price   float64
	Volume  float64
	Profit  float64
	Time    time.Time
}

// Config tunes a Controller.
type Config struct {
	Symbol     string  `json:"symbol"`
	BaseAmount float64 `json:"base_amount"`

	// CycleTarget is the cumulative PnL that completes a cycle.
	// Zero means baseAmount × 1000.
	CycleTarget float64 `json:"cycle_target"`

	// TickInterval is the loop sleep between ticks. Zero means 5s.
	TickInterval time.Duration `json:"-"`

	// SkipRebuildOnFill defers re-centering the ladder until the next
	// closure instead of rebuilding immediately at the fill price. The
	// immediate rebuild densifies the grid during a run of fills
	// without profit-taking.
	SkipRebuildOnFill bool `json:"skip_rebuild_on_fill"`

	Builder BuilderConfig `json:"builder"`
	Guards  *GuardConfig  `json:"guards"`
}

func (c *Config) tickInterval() time.Duration {
	if c.TickInterval > 0 {
		return c.TickInterval
	}
	return 5 * time.Second
}

// StatusSnapshot is a read-only view of the controller, safe to hand to
// the API and notification layers.
type StatusSnapshot struct {
	State             RunState  `json:"state"`
	Symbol            string    `json:"symbol"`
	AnchorIndex       int       `json:"anchor_index"`
	BaseAmount        float64   `json:"base_amount"`
	CycleTarget       float64   `json:"cycle_target"`
	CycleStart        time.Time `json:"cycle_start"`
	CycleStartBalance float64   `json:"cycle_start_balance"`
	CycleRealizedPnl  float64   `json:"cycle_realized_pnl"`
	OpenPnl           float64   `json:"open_pnl"`
	MaxDrawdown       float64   `json:"max_drawdown"`
	OpenPositions     int       `json:"open_positions"`
	PlacedOrders      int       `json:"placed_orders"`
	StopAfterCycle    bool      `json:"stop_after_cycle"`
}

// Controller owns one cycle's state and drives the whole engine from a
// single loop: guard checks, fill/closure tracking, ladder rebuilds and
// cycle resets all happen sequentially inside tick, so no two ticks
// ever overlap and nothing else mutates State.
type Controller struct {
	venue    venue.Venue
	cfg      Config
	guards   *GuardConfig
	builder  *Builder
	tracker  *Tracker
	events   Events
	recorder Recorder

	st             *State
	runState       RunState
	baseAmount     float64
	overrideAmount *float64
	stopAfterCycle bool
	needBuild      bool
	lastBlock      Reason

	commands chan Command
	stopCh   chan struct{}
	wg       sync.WaitGroup

	mu       sync.RWMutex
	snapshot StatusSnapshot

	now func() time.Time
}

// NewController wires the engine together. events and recorder may be
// nil.
func NewController(v venue.Venue, cfg Config, events Events, recorder Recorder) *Controller {
	if events == nil {
		events = NopEvents{}
	}
	guards := cfg.Guards
	if guards == nil {
		guards = &GuardConfig{AllowCycleCompletion: true}
	}
	if cfg.Builder.Symbol == "" {
		cfg.Builder.Symbol = cfg.Symbol
	}
	c := &Controller{
		venue:      v,
		cfg:        cfg,
		guards:     guards,
		builder:    NewBuilder(v, cfg.Builder, events),
		tracker:    NewTracker(v, cfg.Symbol),
		events:     events,
		recorder:   recorder,
		runState:   StatePaused,
		baseAmount: cfg.BaseAmount,
		commands:   make(chan Command, 16),
		stopCh:     make(chan struct{}),
		now:        time.Now,
	}
	c.publishSnapshot(0)
	return c
}

// Send queues a command for the next loop iteration.
func (c *Controller) Send(cmd Command) {
	select {
	case c.commands <- cmd:
	default:
		logger.Warnf("⚠️ [Cycle] command queue full, dropping %d", cmd.Kind)
	}
}

// Status returns the latest published snapshot.
func (c *Controller) Status() StatusSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot
}

// Guards returns a copy of the current guard thresholds.
func (c *Controller) Guards() GuardConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return *c.guards
}

// Start launches the tick loop.
func (c *Controller) Start(ctx context.Context) {
	c.wg.Add(1)
	go c.run(ctx)
	logger.Infof("🚀 [Cycle] controller started for %s (interval %v)", c.cfg.Symbol, c.cfg.tickInterval())
}

// Stop shuts the loop down and waits for the in-flight tick.
func (c *Controller) Stop() {
	close(c.stopCh)
	c.wg.Wait()
	logger.Infof("🛑 [Cycle] controller stopped for %s", c.cfg.Symbol)
}

func (c *Controller) run(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.cfg.tickInterval())
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.drainCommands()
			if c.runState == StateRunning {
				c.tick(ctx)
			}
			c.publishSnapshot(c.snapshot.OpenPnl)
		}
	}
}

func (c *Controller) drainCommands() {
	for {
		select {
		case cmd := <-c.commands:
			c.apply(cmd)
		default:
			return
		}
	}
}

func (c *Controller) apply(cmd Command) {
	switch cmd.Kind {
	case CmdStart:
		if c.runState == StateEmergencyStopped {
			logger.Warnf("⚠️ [Cycle] start refused: emergency stop must be acknowledged first")
			return
		}
		if c.runState == StatePaused {
			c.runState = StateRunning
			c.stopAfterCycle = false
			logger.Infof("▶️ [Cycle] running")
		}
	case CmdPause:
		if c.runState == StateRunning {
			c.runState = StatePaused
			logger.Infof("⏸️ [Cycle] paused")
		}
	case CmdStopAfterCycle:
		c.stopAfterCycle = true
		logger.Infof("🏁 [Cycle] will pause after the current cycle completes")
	case CmdSetBaseAmount:
		if cmd.Amount > 0 {
			amt := cmd.Amount
			c.overrideAmount = &amt
			logger.Infof("💰 [Cycle] base amount override set to %.2f (applies from next cycle)", amt)
		} else {
			c.overrideAmount = nil
			logger.Infof("💰 [Cycle] base amount override cleared")
		}
	case CmdUpdateGuards:
		if cmd.Apply != nil {
			c.mu.Lock()
			cmd.Apply(c.guards)
			c.mu.Unlock()
			logger.Infof("🛡️ [Cycle] guard thresholds updated")
		}
	case CmdAckEmergency:
		if c.runState == StateEmergencyStopped {
			c.runState = StatePaused
			logger.Infof("✅ [Cycle] emergency stop acknowledged")
		}
	}
}

// tick runs one full engine pass. Every venue failure is logged and the
// pass abandoned; nothing is assumed changed without venue confirmation.
func (c *Controller) tick(ctx context.Context) {
	now := c.now()

	account, err := c.venue.GetAccountSnapshot(ctx)
	if err != nil {
		logger.Warnf("⚠️ [Cycle] account snapshot: %v", err)
		return
	}

	if c.st == nil {
		c.st = NewState(account.Balance, now)
		c.needBuild = true
		logger.Infof("🧭 [Cycle] new cycle: balance=%.2f base=%.2f target=%.2f",
			account.Balance, c.baseAmount, c.cycleTarget())
	}
	c.st.ObserveEquity(account.Equity)

	tick, err := c.venue.GetTick(ctx, c.cfg.Symbol)
	if err != nil {
		logger.Warnf("⚠️ [Cycle] tick: %v", err)
		return
	}

	c.mu.RLock()
	guards := *c.guards
	c.mu.RUnlock()

	open := c.st.OpenVenueIDs()
	dec := EvaluateGuards(GuardInput{
		Tick:              tick,
		Account:           account,
		CycleStartBalance: c.st.CycleStartBalance,
		OpenPositions:     len(open),
		PendingOrders:     c.st.PlacedCount(),
		OpenVolume:        c.openVolume(),
		CycleLive:         len(c.st.Orders) > 0 || len(open) > 0,
	}, &guards, now)

	if dec.Emergency {
		c.emergencyStop(ctx, account, guards)
		return
	}
	if !dec.Allowed {
		if dec.Reason != c.lastBlock {
			c.lastBlock = dec.Reason
			c.events.GuardBlocked(dec.Reason)
			logger.Warnf("🛡️ [Cycle] construction blocked: %s", dec.Reason)
		}
	} else {
		c.lastBlock = ReasonNone
	}

	if c.needBuild && dec.Allowed {
		if err := c.builder.BuildAt(ctx, c.st, 0, c.baseAmount, dec); err != nil {
			logger.Warnf("⚠️ [Cycle] initial build: %v", err)
			return
		}
		c.needBuild = false
	}

	fills, closes, openPnl, err := c.tracker.Poll(ctx, c.st, now)
	if err != nil {
		logger.Warnf("⚠️ [Cycle] poll: %v", err)
		return
	}

	for _, f := range fills {
		logger.Infof("🎯 [Cycle] %s filled at %.5f (id=%d)", f.Order.Key, f.Price, f.Order.VenueID)
		c.events.OrderFilled(f.Order, f.Price)
		c.saveTrade(f.Order, "filled", f.Price, 0, now)
		if c.cfg.SkipRebuildOnFill {
			continue
		}
		// re-center the ladder on the fresh entry without waiting for
		// the next tick; the anchor itself moves only on closure
		if err := c.builder.BuildAt(ctx, c.st, f.Price, c.baseAmount, dec); err != nil {
			logger.Warnf("⚠️ [Cycle] rebuild after fill: %v", err)
		}
	}

	for _, cl := range closes {
		c.st.CycleRealizedPnl += cl.Profit
		// the next anchor derives from the layer that took profit, not
		// from the previous anchor: a deep layer closing re-centers the
		// ladder one step beyond that layer
		if cl.Order.Key.Side == venue.SideBuy {
			c.st.AnchorIndex = cl.Order.Key.Index + 1
		} else {
			c.st.AnchorIndex = cl.Order.Key.Index - 1
		}
		logger.Infof("💵 [Cycle] %s closed, profit %.2f, anchor now %d",
			cl.Order.Key, cl.Profit, c.st.AnchorIndex)
		c.events.PositionClosed(cl.Order, cl.Profit)
		c.saveTrade(cl.Order, "closed", cl.Order.TargetPrice, cl.Profit, now)
		if err := c.builder.BuildAt(ctx, c.st, 0, c.baseAmount, dec); err != nil {
			logger.Warnf("⚠️ [Cycle] rebuild after close: %v", err)
		}
	}

	c.publishSnapshot(openPnl)

	if c.st.CycleRealizedPnl+openPnl >= c.cycleTarget() {
		c.resetCycle(ctx, now)
	}
}

func (c *Controller) cycleTarget() float64 {
	if c.cfg.CycleTarget > 0 {
		return c.cfg.CycleTarget
	}
	return c.baseAmount * 1000
}

func (c *Controller) openVolume() float64 {
	vol := 0.0
	for _, o := range c.st.Orders {
		if o.Status == StatusFilled {
			vol += o.Volume
		}
	}
	return vol
}

// flatten closes every tracked open position and cancels every placed
// pending order. Failures are logged and skipped; the venue remains the
// source of truth either way.
func (c *Controller) flatten(ctx context.Context) {
	for _, id := range c.st.OpenVenueIDs() {
		if err := c.venue.ClosePosition(ctx, c.cfg.Symbol, id); err != nil {
			logger.Errorf("❌ [Cycle] close position %d: %v", id, err)
		}
	}
	for _, o := range c.st.Orders {
		if o.Status != StatusPlaced {
			continue
		}
		if err := c.venue.CancelOrder(ctx, c.cfg.Symbol, o.VenueID); err != nil {
			logger.Errorf("❌ [Cycle] cancel order %d: %v", o.VenueID, err)
		}
	}
}

// resetCycle flattens all exposure, records the finished cycle and
// starts a fresh one anchored at index 0.
func (c *Controller) resetCycle(ctx context.Context, now time.Time) {
	logger.Infof("🔄 [Cycle] target reached (realized %.2f), resetting", c.st.CycleRealizedPnl)
	c.flatten(ctx)

	endBalance := c.st.CycleStartBalance + c.st.CycleRealizedPnl
	if account, err := c.venue.GetAccountSnapshot(ctx); err == nil {
		endBalance = account.Balance
	}

	c.events.CycleReset(c.st.CycleRealizedPnl, c.st.CycleStartBalance, endBalance, c.st.CycleStart)
	if c.recorder != nil {
		if err := c.recorder.SaveCycle(CycleRecord{
			Symbol:       c.cfg.Symbol,
			StartedAt:    c.st.CycleStart,
			EndedAt:      now,
			StartBalance: c.st.CycleStartBalance,
			EndBalance:   endBalance,
			RealizedPnl:  c.st.CycleRealizedPnl,
			MaxDrawdown:  c.st.MaxDrawdown,
		}); err != nil {
			logger.Errorf("❌ [Cycle] save cycle: %v", err)
		}
	}

	// next cycle's sizing: persistent override wins, otherwise base
	// scaled down during quiet hours
	if c.overrideAmount != nil {
		c.baseAmount = *c.overrideAmount
	} else {
		c.mu.RLock()
		factor := c.guards.QuietFactor(now)
		c.mu.RUnlock()
		c.baseAmount = c.cfg.BaseAmount * factor
	}

	c.st = NewState(endBalance, now)
	c.needBuild = true
	c.publishSnapshot(0)

	if c.stopAfterCycle {
		c.stopAfterCycle = false
		c.needBuild = false
		c.runState = StatePaused
		logger.Infof("🏁 [Cycle] pausing after completed cycle")
		return
	}

	// build immediately; if a guard (e.g. blackout) blocks the new
	// cycle, needBuild stays set and the next allowed tick builds
	c.mu.RLock()
	guards := *c.guards
	c.mu.RUnlock()
	tick, err := c.venue.GetTick(ctx, c.cfg.Symbol)
	if err != nil {
		logger.Warnf("⚠️ [Cycle] tick after reset: %v", err)
		return
	}
	account, err := c.venue.GetAccountSnapshot(ctx)
	if err != nil {
		logger.Warnf("⚠️ [Cycle] account after reset: %v", err)
		return
	}
	dec := EvaluateGuards(GuardInput{
		Tick:              tick,
		Account:           account,
		CycleStartBalance: c.st.CycleStartBalance,
	}, &guards, now)
	if dec.Allowed {
		if err := c.builder.BuildAt(ctx, c.st, tick.Mid(), c.baseAmount, dec); err == nil {
			c.needBuild = false
		}
	}
}

// emergencyStop flattens everything once and locks the controller until
// the stop is acknowledged.
func (c *Controller) emergencyStop(ctx context.Context, account venue.AccountSnapshot, guards GuardConfig) {
	threshold := 0.0
	if guards.MaxReduce != nil {
		threshold = *guards.MaxReduce
	}
	logger.Errorf("🚨 [Cycle] equity reduction cap breached: start=%.2f equity=%.2f threshold=%.2f",
		c.st.CycleStartBalance, account.Equity, threshold)

	c.flatten(ctx)
	c.events.EmergencyStopped(account.Equity, c.st.CycleStartBalance, threshold)
	if c.recorder != nil {
		if err := c.recorder.SaveCycle(CycleRecord{
			Symbol:       c.cfg.Symbol,
			StartedAt:    c.st.CycleStart,
			EndedAt:      c.now(),
			StartBalance: c.st.CycleStartBalance,
			EndBalance:   account.Equity,
			RealizedPnl:  c.st.CycleRealizedPnl,
			MaxDrawdown:  c.st.MaxDrawdown,
			Emergency:    true,
		}); err != nil {
			logger.Errorf("❌ [Cycle] save cycle: %v", err)
		}
	}
	c.st = nil
	c.runState = StateEmergencyStopped
	c.publishSnapshot(0)
}

func (c *Controller) saveTrade(o Order, event string, price, profit float64, now time.Time) {
	if c.recorder == nil {
		return
	}
	if err := c.recorder.SaveTrade(TradeRecord{
		Symbol:  c.cfg.Symbol,
		Slot:    o.Key.String(),
		VenueID: o.VenueID,
		Side:    o.Key.Side,
		Event:   event,
		Price:   price,
		Volume:  o.Volume,
		Profit:  profit,
		Time:    now,
	}); err != nil {
		logger.Errorf("❌ [Cycle] save trade: %v", err)
	}
}

func (c *Controller) publishSnapshot(openPnl float64) {
	snap := StatusSnapshot{
		State:          c.runState,
		Symbol:         c.cfg.Symbol,
		BaseAmount:     c.baseAmount,
		CycleTarget:    c.cycleTarget(),
		OpenPnl:        openPnl,
		StopAfterCycle: c.stopAfterCycle,
	}
	if c.st != nil {
		snap.AnchorIndex = c.st.AnchorIndex
		snap.CycleStart = c.st.CycleStart
		snap.CycleStartBalance = c.st.CycleStartBalance
		snap.CycleRealizedPnl = c.st.CycleRealizedPnl
		snap.MaxDrawdown = c.st.MaxDrawdown
		snap.OpenPositions = len(c.st.OpenVenueIDs())
		snap.PlacedOrders = c.st.PlacedCount()
	}
	c.mu.Lock()
	c.snapshot = snap
	c.mu.Unlock()
}
