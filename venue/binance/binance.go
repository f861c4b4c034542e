// Package binance adapts Binance USD-M futures to the venue interface.
//
// Binance has no per-position identifiers, so the adapter carries the
// entry order's ID as the position identity: each stop entry gets a
// paired reduce-only take-profit order, and the link between the two is
// tracked locally. A position counts as open while its entry has
// executed and its take-profit order is still resting.
package binance

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2/futures"

	"griddca/logger"
	"griddca/venue"
)

type link struct {
	tpID     int64
	side     venue.Side
	volume   float64
	entry    float64
	target   float64
	openTime time.Time
}

// StoredLink is the durable form of an entry/take-profit pairing.
type StoredLink struct {
	EntryID  int64
	TPID     int64
	Side     venue.Side
	Volume   float64
	Entry    float64
	Target   float64
	OpenTime time.Time
}

// LinkStore persists entry/take-profit pairings so the adapter can
// rebuild its position identities after a restart.
type LinkStore interface {
	Save(StoredLink) error
	Delete(entryID int64) error
	Load() ([]StoredLink, error)
}

// Venue talks to Binance USD-M futures.
type Venue struct {
	client *futures.Client
	store  LinkStore // nil means in-memory only

	mu    sync.Mutex
	links map[int64]*link // entry order ID -> take-profit pairing
}

// New creates an adapter with API credentials.
func New(apiKey, secretKey string) *Venue {
	return NewWithClient(futures.NewClient(apiKey, secretKey))
}

// NewWithClient wraps an existing futures client (tests point it at a
// mock server).
func NewWithClient(client *futures.Client) *Venue {
	return &Venue{client: client, links: make(map[int64]*link)}
}

// WithLinkStore attaches durable link storage and restores the pairings
// a previous run recorded. Without it, a restart loses the mapping and
// resting positions become invisible.
func (v *Venue) WithLinkStore(ls LinkStore) (*Venue, error) {
	stored, err := ls.Load()
	if err != nil {
		return nil, fmt.Errorf("load links: %w", err)
	}
	v.mu.Lock()
	for _, sl := range stored {
		v.links[sl.EntryID] = &link{
			tpID:     sl.TPID,
			side:     sl.Side,
			volume:   sl.Volume,
			entry:    sl.Entry,
			target:   sl.Target,
			openTime: sl.OpenTime,
		}
	}
	v.mu.Unlock()
	v.store = ls
	if len(stored) > 0 {
		logger.Infof("🔗 [Binance] restored %d entry/take-profit links", len(stored))
	}
	return v, nil
}

// persistence is best effort: a storage hiccup must not fail an order
// that is already live at the venue.
func (v *Venue) saveLink(entryID int64, lk *link) {
	if v.store == nil {
		return
	}
	err := v.store.Save(StoredLink{
		EntryID:  entryID,
		TPID:     lk.tpID,
		Side:     lk.side,
		Volume:   lk.volume,
		Entry:    lk.entry,
		Target:   lk.target,
		OpenTime: lk.openTime,
	})
	if err != nil {
		logger.Warnf("⚠️ [Binance] failed to persist link %d: %v", entryID, err)
	}
}

func (v *Venue) dropLink(entryID int64) {
	if v.store == nil {
		return
	}
	if err := v.store.Delete(entryID); err != nil {
		logger.Warnf("⚠️ [Binance] failed to drop link %d: %v", entryID, err)
	}
}

func sideType(s venue.Side) futures.SideType {
	if s == venue.SideBuy {
		return futures.SideTypeBuy
	}
	return futures.SideTypeSell
}

func fromSideType(s futures.SideType) venue.Side {
	if s == futures.SideTypeBuy {
		return venue.SideBuy
	}
	return venue.SideSell
}

func fnum(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func pnum(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

func (v *Venue) GetTick(ctx context.Context, symbol string) (venue.Tick, error) {
	tickers, err := v.client.NewListBookTickersService().Symbol(symbol).Do(ctx)
	if err != nil {
		return venue.Tick{}, fmt.Errorf("book ticker: %w", err)
	}
	if len(tickers) == 0 {
		return venue.Tick{}, fmt.Errorf("no book ticker for %s", symbol)
	}
	t := tickers[0]
	return venue.Tick{
		Symbol: symbol,
		Bid:    pnum(t.BidPrice),
		Ask:    pnum(t.AskPrice),
		Time:   time.Now(),
	}, nil
}

func (v *Venue) GetAccountSnapshot(ctx context.Context) (venue.AccountSnapshot, error) {
	acct, err := v.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return venue.AccountSnapshot{}, fmt.Errorf("account: %w", err)
	}
	return venue.AccountSnapshot{
		Balance:    pnum(acct.TotalWalletBalance),
		Equity:     pnum(acct.TotalMarginBalance),
		FreeMargin: pnum(acct.AvailableBalance),
	}, nil
}

// PlaceStopOrder submits a stop-limit entry plus a reduce-only
// TAKE_PROFIT_MARKET at the target. If the take-profit cannot be
// placed, the entry is cancelled so no unprotected order rests.
func (v *Venue) PlaceStopOrder(ctx context.Context, req venue.StopOrderRequest) (*venue.StopOrderResult, error) {
	entry, err := v.client.NewCreateOrderService().
		Symbol(req.Symbol).
		Side(sideType(req.Side)).
		Type(futures.OrderTypeStop).
		TimeInForce(futures.TimeInForceTypeGTC).
		Quantity(fnum(req.Volume)).
		Price(fnum(req.Price)).
		StopPrice(fnum(req.Price)).
		NewClientOrderID(req.Tag).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("place entry: %w", err)
	}

	tp, err := v.client.NewCreateOrderService().
		Symbol(req.Symbol).
		Side(sideType(req.Side.Opposite())).
		Type(futures.OrderTypeTakeProfitMarket).
		Quantity(fnum(req.Volume)).
		StopPrice(fnum(req.Target)).
		ReduceOnly(true).
		Do(ctx)
	if err != nil {
		if _, cancelErr := v.client.NewCancelOrderService().
			Symbol(req.Symbol).OrderID(entry.OrderID).Do(ctx); cancelErr != nil {
			return nil, fmt.Errorf("place take-profit: %w (entry %d left resting: %v)", err, entry.OrderID, cancelErr)
		}
		return nil, fmt.Errorf("place take-profit: %w", err)
	}

	lk := &link{
		tpID:     tp.OrderID,
		side:     req.Side,
		volume:   req.Volume,
		entry:    req.Price,
		target:   req.Target,
		openTime: time.Now(),
	}
	v.mu.Lock()
	v.links[entry.OrderID] = lk
	v.mu.Unlock()
	v.saveLink(entry.OrderID, lk)

	return &venue.StopOrderResult{OrderID: entry.OrderID}, nil
}

func (v *Venue) CancelOrder(ctx context.Context, symbol string, orderID int64) error {
	if _, err := v.client.NewCancelOrderService().
		Symbol(symbol).OrderID(orderID).Do(ctx); err != nil {
		return fmt.Errorf("cancel %d: %w", orderID, err)
	}
	v.mu.Lock()
	lk := v.links[orderID]
	delete(v.links, orderID)
	v.mu.Unlock()
	v.dropLink(orderID)
	if lk != nil {
		// best effort: the paired take-profit must not survive alone
		if _, err := v.client.NewCancelOrderService().
			Symbol(symbol).OrderID(lk.tpID).Do(ctx); err != nil {
			return fmt.Errorf("cancel paired take-profit %d: %w", lk.tpID, err)
		}
	}
	return nil
}

func (v *Venue) openOrderIDs(ctx context.Context, symbol string) (map[int64]*futures.Order, error) {
	orders, err := v.client.NewListOpenOrdersService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("open orders: %w", err)
	}
	out := make(map[int64]*futures.Order, len(orders))
	for _, o := range orders {
		out[o.OrderID] = o
	}
	return out, nil
}

// ListOpenPositions reports each tracked entry whose stop has executed
// while its take-profit is still resting. Floating PnL is derived from
// the current book against the entry price.
func (v *Venue) ListOpenPositions(ctx context.Context, symbol string) ([]venue.Position, error) {
	resting, err := v.openOrderIDs(ctx, symbol)
	if err != nil {
		return nil, err
	}

	v.mu.Lock()
	type tracked struct {
		id int64
		lk link
	}
	candidates := make([]tracked, 0, len(v.links))
	for id, lk := range v.links {
		candidates = append(candidates, tracked{id: id, lk: *lk})
	}
	v.mu.Unlock()

	var mid float64
	if len(candidates) > 0 {
		tick, err := v.GetTick(ctx, symbol)
		if err != nil {
			return nil, err
		}
		mid = tick.Mid()
	}

	var out []venue.Position
	var closed []int64
	for _, c := range candidates {
		if _, entryResting := resting[c.id]; entryResting {
			continue // not filled yet
		}
		if _, tpResting := resting[c.lk.tpID]; !tpResting {
			// both legs gone: the position has closed, the pairing is done
			closed = append(closed, c.id)
			continue
		}
		profit := (mid - c.lk.entry) * c.lk.volume
		if c.lk.side == venue.SideSell {
			profit = -profit
		}
		out = append(out, venue.Position{
			ID:        c.id,
			Symbol:    symbol,
			Side:      c.lk.side,
			Volume:    c.lk.volume,
			OpenPrice: c.lk.entry,
			Profit:    profit,
			OpenTime:  c.lk.openTime,
		})
	}
	if len(closed) > 0 {
		v.mu.Lock()
		for _, id := range closed {
			delete(v.links, id)
		}
		v.mu.Unlock()
		for _, id := range closed {
			v.dropLink(id)
		}
	}
	return out, nil
}

func (v *Venue) ListPendingOrders(ctx context.Context, symbol string) ([]venue.Order, error) {
	orders, err := v.client.NewListOpenOrdersService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("open orders: %w", err)
	}
	out := make([]venue.Order, 0, len(orders))
	for _, o := range orders {
		if o.Type != futures.OrderTypeStop {
			continue // take-profit legs are not ladder entries
		}
		out = append(out, venue.Order{
			ID:     o.OrderID,
			Symbol: o.Symbol,
			Side:   fromSideType(o.Side),
			Price:  pnum(o.StopPrice),
			Volume: pnum(o.OrigQuantity),
			Tag:    o.ClientOrderID,
		})
	}
	return out, nil
}

// ListTradeHistory maps executions back to entry identities: a trade on
// an entry order is a fill deal, a trade on its paired take-profit is a
// closing deal carrying the realized PnL.
func (v *Venue) ListTradeHistory(ctx context.Context, symbol string, since, until time.Time) ([]venue.Deal, error) {
	trades, err := v.client.NewListAccountTradeService().
		Symbol(symbol).
		StartTime(since.UnixMilli()).
		EndTime(until.UnixMilli()).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("account trades: %w", err)
	}

	v.mu.Lock()
	tpToEntry := make(map[int64]int64, len(v.links))
	for id, lk := range v.links {
		tpToEntry[lk.tpID] = id
	}
	v.mu.Unlock()

	out := make([]venue.Deal, 0, len(trades))
	for _, t := range trades {
		positionID := t.OrderID
		if entryID, ok := tpToEntry[t.OrderID]; ok {
			positionID = entryID
		}
		out = append(out, venue.Deal{
			OrderID:    t.OrderID,
			PositionID: positionID,
			Symbol:     t.Symbol,
			Side:       fromSideType(t.Side),
			Volume:     pnum(t.Quantity),
			Price:      pnum(t.Price),
			Profit:     pnum(t.RealizedPnl),
			Time:       time.UnixMilli(t.Time),
		})
	}
	return out, nil
}

// ClosePosition cancels the resting take-profit and flattens the
// tracked quantity at market.
func (v *Venue) ClosePosition(ctx context.Context, symbol string, positionID int64) error {
	v.mu.Lock()
	lk, ok := v.links[positionID]
	if ok {
		delete(v.links, positionID)
	}
	v.mu.Unlock()
	if !ok {
		return fmt.Errorf("position %d not tracked", positionID)
	}

	if _, err := v.client.NewCancelOrderService().
		Symbol(symbol).OrderID(lk.tpID).Do(ctx); err != nil {
		return fmt.Errorf("cancel take-profit %d: %w", lk.tpID, err)
	}

	if _, err := v.client.NewCreateOrderService().
		Symbol(symbol).
		Side(sideType(lk.side.Opposite())).
		Type(futures.OrderTypeMarket).
		Quantity(fnum(lk.volume)).
		ReduceOnly(true).
		Do(ctx); err != nil {
		return fmt.Errorf("market close %d: %w", positionID, err)
	}
	return nil
}
