package paper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"griddca/venue"
)

var t0 = time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC)

func TestStopOrderTriggersAndClosesAtTarget(t *testing.T) {
	ctx := context.Background()
	v := New("XAUUSD", 1000)
	v.SetTick(100.00, 100.04, t0)

	res, err := v.PlaceStopOrder(ctx, venue.StopOrderRequest{
		Symbol: "XAUUSD",
		Side:   venue.SideBuy,
		Price:  100.80,
		Target: 102.80,
		Volume: 0.1,
		Tag:    "buy_0_test",
	})
	require.NoError(t, err)

	// below the trigger: still pending
	v.SetTick(100.50, 100.54, t0.Add(time.Minute))
	pos, err := v.ListOpenPositions(ctx, "XAUUSD")
	require.NoError(t, err)
	require.Empty(t, pos)

	// ask crosses the stop price: position opens at the stop
	v.SetTick(100.78, 100.82, t0.Add(2*time.Minute))
	pos, err = v.ListOpenPositions(ctx, "XAUUSD")
	require.NoError(t, err)
	require.Len(t, pos, 1)
	require.Equal(t, res.OrderID, pos[0].ID)
	require.InDelta(t, 100.80, pos[0].OpenPrice, 1e-9)

	deals, err := v.ListTradeHistory(ctx, "XAUUSD", t0, t0.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, deals, 1)
	require.Equal(t, res.OrderID, deals[0].PositionID)

	// bid crosses the target: position settles with (102.80-100.80)*0.1
	v.SetTick(102.81, 102.85, t0.Add(3*time.Minute))
	pos, err = v.ListOpenPositions(ctx, "XAUUSD")
	require.NoError(t, err)
	require.Empty(t, pos)

	acc, err := v.GetAccountSnapshot(ctx)
	require.NoError(t, err)
	require.InDelta(t, 1000.2, acc.Balance, 1e-9)

	deals, err = v.ListTradeHistory(ctx, "XAUUSD", t0, t0.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, deals, 2)
	require.InDelta(t, 0.2, deals[1].Profit, 1e-9)
}

func TestSellStopTriggersOnBid(t *testing.T) {
	ctx := context.Background()
	v := New("XAUUSD", 1000)
	v.SetTick(100.00, 100.04, t0)

	_, err := v.PlaceStopOrder(ctx, venue.StopOrderRequest{
		Symbol: "XAUUSD",
		Side:   venue.SideSell,
		Price:  99.20,
		Target: 97.20,
		Volume: 0.1,
	})
	require.NoError(t, err)

	v.SetTick(99.18, 99.22, t0.Add(time.Minute))
	pos, err := v.ListOpenPositions(ctx, "XAUUSD")
	require.NoError(t, err)
	require.Len(t, pos, 1)
	require.Equal(t, venue.SideSell, pos[0].Side)

	// floating profit for a short marks against the ask
	v.SetTick(98.16, 98.20, t0.Add(2*time.Minute))
	pos, _ = v.ListOpenPositions(ctx, "XAUUSD")
	require.InDelta(t, (99.20-98.20)*0.1, pos[0].Profit, 1e-9)
}

func TestCancelAndManualClose(t *testing.T) {
	ctx := context.Background()
	v := New("XAUUSD", 1000)
	v.SetTick(100.00, 100.04, t0)

	res, err := v.PlaceStopOrder(ctx, venue.StopOrderRequest{
		Symbol: "XAUUSD",
		Side:   venue.SideBuy,
		Price:  100.80,
		Target: 102.80,
		Volume: 0.1,
	})
	require.NoError(t, err)
	require.NoError(t, v.CancelOrder(ctx, "XAUUSD", res.OrderID))
	require.Error(t, v.CancelOrder(ctx, "XAUUSD", res.OrderID))

	res, err = v.PlaceStopOrder(ctx, venue.StopOrderRequest{
		Symbol: "XAUUSD",
		Side:   venue.SideBuy,
		Price:  100.80,
		Target: 102.80,
		Volume: 0.1,
	})
	require.NoError(t, err)
	v.SetTick(100.78, 100.82, t0.Add(time.Minute))

	// manual close settles at the bid
	require.NoError(t, v.ClosePosition(ctx, "XAUUSD", res.OrderID))
	acc, _ := v.GetAccountSnapshot(ctx)
	require.InDelta(t, 1000+(100.78-100.80)*0.1, acc.Balance, 1e-9)

	require.Error(t, v.ClosePosition(ctx, "XAUUSD", res.OrderID))
}

func TestRejectsBadOrders(t *testing.T) {
	ctx := context.Background()
	v := New("XAUUSD", 1000)
	v.SetTick(100.00, 100.04, t0)

	_, err := v.PlaceStopOrder(ctx, venue.StopOrderRequest{Symbol: "XAUUSD", Side: venue.SideBuy, Price: 100.8, Volume: 0})
	require.Error(t, err)
	_, err = v.PlaceStopOrder(ctx, venue.StopOrderRequest{Symbol: "EURUSD", Side: venue.SideBuy, Price: 100.8, Volume: 0.1})
	require.Error(t, err)
	_, err = v.GetTick(ctx, "EURUSD")
	require.Error(t, err)
}

func TestRandomWalkFeedsTicks(t *testing.T) {
	ctx := context.Background()
	v := New("XAUUSD", 1000)
	v.StartRandomWalk(100, 0.04, 0.05, time.Millisecond)
	defer v.StopFeed()

	// the first quote is pushed synchronously
	tick, err := v.GetTick(ctx, "XAUUSD")
	require.NoError(t, err)
	require.Greater(t, tick.Ask, tick.Bid)
	require.InDelta(t, 100, tick.Mid(), 1e-9)
	require.InDelta(t, 0.04, tick.Spread(), 1e-9)

	first := tick.Time
	require.Eventually(t, func() bool {
		tk, err := v.GetTick(ctx, "XAUUSD")
		return err == nil && tk.Time.After(first)
	}, time.Second, time.Millisecond)

	v.StopFeed()
	v.StopFeed() // stopping twice is harmless
}
