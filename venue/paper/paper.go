// Package paper implements an in-memory simulated venue. Stop orders
// trigger and take-profits execute against ticks pushed via SetTick, so
// the engine can be exercised deterministically without a live account.
package paper

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"griddca/venue"
)

type position struct {
	id        int64
	side      venue.Side
	volume    float64
	openPrice float64
	target    float64
	openTime  time.Time
}

type pendingOrder struct {
	venue.Order
	volume float64
	target float64
}

// Venue is a simulated broker backed by pushed ticks.
type Venue struct {
	mu      sync.Mutex
	symbol  string
	balance float64
	tick    venue.Tick
	nextID  int64
	pending map[int64]*pendingOrder
	open    map[int64]*position
	deals   []venue.Deal

	feedStop chan struct{}
	feedWG   sync.WaitGroup
}

// New creates a paper venue for one symbol with a starting balance.
func New(symbol string, balance float64) *Venue {
	return &Venue{
		symbol:  symbol,
		balance: balance,
		nextID:  1000,
		pending: make(map[int64]*pendingOrder),
		open:    make(map[int64]*position),
	}
}

// StartRandomWalk feeds the venue synthetic quotes so it can run
// unattended: the mid price random-walks around start with a fixed
// spread, pushing one tick per interval. The first quote is pushed
// before returning, so GetTick works immediately. Stop the feed with
// StopFeed.
func (v *Venue) StartRandomWalk(start, spread, step float64, interval time.Duration) {
	v.SetTick(start-spread/2, start+spread/2, time.Now())
	v.feedStop = make(chan struct{})
	v.feedWG.Add(1)
	go func() {
		defer v.feedWG.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		mid := start
		for {
			select {
			case <-v.feedStop:
				return
			case now := <-ticker.C:
				mid += (rand.Float64()*2 - 1) * step
				if mid < spread {
					mid = spread
				}
				v.SetTick(mid-spread/2, mid+spread/2, now)
			}
		}
	}()
}

// StopFeed ends the synthetic quote feed. Safe to call when no feed was
// started.
func (v *Venue) StopFeed() {
	if v.feedStop == nil {
		return
	}
	close(v.feedStop)
	v.feedWG.Wait()
	v.feedStop = nil
}

// SetTick pushes a new quote and runs the matching pass: pending stops
// that the price crossed become positions, positions whose target the
// price crossed are closed with realized profit.
func (v *Venue) SetTick(bid, ask float64, at time.Time) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.tick = venue.Tick{Symbol: v.symbol, Bid: bid, Ask: ask, Time: at}

	for id, o := range v.pending {
		triggered := (o.Side == venue.SideBuy && ask >= o.Price) ||
			(o.Side == venue.SideSell && bid <= o.Price)
		if !triggered {
			continue
		}
		delete(v.pending, id)
		v.open[id] = &position{
			id:        id,
			side:      o.Side,
			volume:    o.volume,
			openPrice: o.Price,
			target:    o.target,
			openTime:  at,
		}
		// position keeps the order's ID, so the fill deal carries it as
		// both order and position identifier
		v.deals = append(v.deals, venue.Deal{
			OrderID:    id,
			PositionID: id,
			Symbol:     v.symbol,
			Side:       o.Side,
			Volume:     o.volume,
			Price:      o.Price,
			Time:       at,
		})
	}

	for id, p := range v.open {
		done := (p.side == venue.SideBuy && bid >= p.target) ||
			(p.side == venue.SideSell && ask <= p.target)
		if !done {
			continue
		}
		v.settle(p, p.target, at)
		delete(v.open, id)
	}
}

// settle books a closing deal at the given price. Caller holds the lock.
func (v *Venue) settle(p *position, price float64, at time.Time) {
	pnl := (price - p.openPrice) * p.volume
	if p.side == venue.SideSell {
		pnl = -pnl
	}
	v.balance += pnl
	v.deals = append(v.deals, venue.Deal{
		OrderID:    p.id,
		PositionID: p.id,
		Symbol:     v.symbol,
		Side:       p.side.Opposite(),
		Volume:     p.volume,
		Price:      price,
		Profit:     pnl,
		Time:       at,
	})
}

func (v *Venue) floating() float64 {
	pnl := 0.0
	for _, p := range v.open {
		pnl += v.positionProfit(p)
	}
	return pnl
}

func (v *Venue) positionProfit(p *position) float64 {
	if p.side == venue.SideBuy {
		return (v.tick.Bid - p.openPrice) * p.volume
	}
	return (p.openPrice - v.tick.Ask) * p.volume
}

func (v *Venue) GetTick(_ context.Context, symbol string) (venue.Tick, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if symbol != v.symbol {
		return venue.Tick{}, fmt.Errorf("unknown symbol %q", symbol)
	}
	if v.tick.Time.IsZero() {
		return venue.Tick{}, fmt.Errorf("no quote for %q yet", symbol)
	}
	return v.tick, nil
}

func (v *Venue) GetAccountSnapshot(context.Context) (venue.AccountSnapshot, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	equity := v.balance + v.floating()
	margin := 0.0
	for _, p := range v.open {
		margin += p.volume * p.openPrice * 0.01
	}
	return venue.AccountSnapshot{
		Balance:    v.balance,
		Equity:     equity,
		FreeMargin: equity - margin,
	}, nil
}

func (v *Venue) PlaceStopOrder(_ context.Context, req venue.StopOrderRequest) (*venue.StopOrderResult, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if req.Volume <= 0 {
		return nil, fmt.Errorf("volume must be positive")
	}
	if req.Symbol != v.symbol {
		return nil, fmt.Errorf("unknown symbol %q", req.Symbol)
	}
	v.nextID++
	id := v.nextID
	v.pending[id] = &pendingOrder{
		Order: venue.Order{
			ID:     id,
			Symbol: req.Symbol,
			Side:   req.Side,
			Price:  req.Price,
			Target: req.Target,
			Volume: req.Volume,
			Tag:    req.Tag,
		},
		volume: req.Volume,
		target: req.Target,
	}
	return &venue.StopOrderResult{OrderID: id}, nil
}

func (v *Venue) CancelOrder(_ context.Context, _ string, orderID int64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.pending[orderID]; !ok {
		return fmt.Errorf("order %d not found", orderID)
	}
	delete(v.pending, orderID)
	return nil
}

func (v *Venue) ListOpenPositions(_ context.Context, symbol string) ([]venue.Position, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]venue.Position, 0, len(v.open))
	for _, p := range v.open {
		out = append(out, venue.Position{
			ID:        p.id,
			Symbol:    symbol,
			Side:      p.side,
			Volume:    p.volume,
			OpenPrice: p.openPrice,
			Profit:    v.positionProfit(p),
			OpenTime:  p.openTime,
		})
	}
	return out, nil
}

func (v *Venue) ListPendingOrders(_ context.Context, symbol string) ([]venue.Order, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]venue.Order, 0, len(v.pending))
	for _, o := range v.pending {
		out = append(out, o.Order)
	}
	return out, nil
}

func (v *Venue) ListTradeHistory(_ context.Context, _ string, since, until time.Time) ([]venue.Deal, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]venue.Deal, 0, len(v.deals))
	for _, d := range v.deals {
		if d.Time.Before(since) || d.Time.After(until) {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func (v *Venue) ClosePosition(_ context.Context, _ string, positionID int64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	p, ok := v.open[positionID]
	if !ok {
		return fmt.Errorf("position %d not found", positionID)
	}
	price := v.tick.Bid
	if p.side == venue.SideSell {
		price = v.tick.Ask
	}
	v.settle(p, price, v.tick.Time)
	delete(v.open, positionID)
	return nil
}
