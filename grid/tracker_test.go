package grid

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"griddca/venue"
	"griddca/venue/paper"
)

func TestTrackerFillAndClose(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC)

	pv := paper.New("XAUUSD", 1000)
	pv.SetTick(100.00, 100.04, start)

	st := NewState(1000, start)
	tr := NewTracker(pv, "XAUUSD")

	res, err := pv.PlaceStopOrder(ctx, venue.StopOrderRequest{
		Symbol: "XAUUSD",
		Side:   venue.SideBuy,
		Price:  100.8,
		Target: 102.8,
		Volume: 0.1,
		Tag:    "buy_0_test",
	})
	require.NoError(t, err)
	st.Record(&Order{
		Key:         Key{Side: venue.SideBuy, Index: 0},
		VenueID:     res.OrderID,
		EntryPrice:  100.8,
		TargetPrice: 102.8,
		Volume:      0.1,
		Status:      StatusPlaced,
	})

	// nothing crossed yet
	fills, closes, openPnl, err := tr.Poll(ctx, st, start)
	require.NoError(t, err)
	require.Empty(t, fills)
	require.Empty(t, closes)
	require.Zero(t, openPnl)

	// price crosses the trigger
	t1 := start.Add(time.Minute)
	pv.SetTick(100.90, 100.94, t1)

	fills, closes, _, err = tr.Poll(ctx, st, t1)
	require.NoError(t, err)
	require.Len(t, fills, 1)
	require.Empty(t, closes)
	require.Equal(t, res.OrderID, fills[0].Order.VenueID)
	require.InDelta(t, 100.8, fills[0].Price, 1e-9)
	require.Equal(t, StatusFilled, st.Orders[Key{Side: venue.SideBuy, Index: 0}].Status)

	// polling unchanged venue state again yields nothing new
	fills, closes, _, err = tr.Poll(ctx, st, t1)
	require.NoError(t, err)
	require.Empty(t, fills)
	require.Empty(t, closes)

	// still open: floating PnL is reported
	t2 := start.Add(2 * time.Minute)
	pv.SetTick(101.90, 101.94, t2)
	fills, closes, openPnl, err = tr.Poll(ctx, st, t2)
	require.NoError(t, err)
	require.Empty(t, fills)
	require.Empty(t, closes)
	require.InDelta(t, (101.90-100.8)*0.1, openPnl, 1e-9)

	// price crosses the target
	t3 := start.Add(3 * time.Minute)
	pv.SetTick(102.85, 102.89, t3)

	fills, closes, openPnl, err = tr.Poll(ctx, st, t3)
	require.NoError(t, err)
	require.Empty(t, fills)
	require.Len(t, closes, 1)
	require.InDelta(t, 0.2, closes[0].Profit, 1e-9)
	require.Zero(t, openPnl)

	// slot is cleared for the next order at that layer
	require.NotContains(t, st.Orders, Key{Side: venue.SideBuy, Index: 0})

	// closure is reported exactly once
	fills, closes, _, err = tr.Poll(ctx, st, t3)
	require.NoError(t, err)
	require.Empty(t, fills)
	require.Empty(t, closes)
}

func TestTrackerManualCloseDetected(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC)

	pv := paper.New("XAUUSD", 1000)
	pv.SetTick(100.00, 100.04, start)

	st := NewState(1000, start)
	tr := NewTracker(pv, "XAUUSD")

	res, err := pv.PlaceStopOrder(ctx, venue.StopOrderRequest{
		Symbol: "XAUUSD",
		Side:   venue.SideSell,
		Price:  99.2,
		Target: 97.2,
		Volume: 0.1,
	})
	require.NoError(t, err)
	st.Record(&Order{
		Key:         Key{Side: venue.SideSell, Index: 0},
		VenueID:     res.OrderID,
		EntryPrice:  99.2,
		TargetPrice: 97.2,
		Volume:      0.1,
		Status:      StatusPlaced,
	})

	t1 := start.Add(time.Minute)
	pv.SetTick(99.10, 99.14, t1)
	fills, _, _, err := tr.Poll(ctx, st, t1)
	require.NoError(t, err)
	require.Len(t, fills, 1)

	// closed away from the target (manual/forced flatten)
	require.NoError(t, pv.ClosePosition(ctx, "XAUUSD", res.OrderID))

	_, closes, _, err := tr.Poll(ctx, st, t1)
	require.NoError(t, err)
	require.Len(t, closes, 1)
	require.InDelta(t, (99.2-99.14)*0.1, closes[0].Profit, 1e-9)
}
