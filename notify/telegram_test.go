package notify

import (
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/require"

	"griddca/grid"
	"griddca/venue/paper"
)

func newTestTelegram(t *testing.T) *Telegram {
	t.Helper()
	pv := paper.New("XAUUSD", 1000)
	pv.SetTick(100.00, 100.04, time.Now())
	ctl := grid.NewController(pv, grid.Config{
		Symbol:     "XAUUSD",
		BaseAmount: 0.1,
		Builder: grid.BuilderConfig{
			EntryOffset:    0.8,
			ProfitDistance: 2.0,
			ScalingTable:   []float64{1, 1, 2},
		},
	}, nil, nil)
	return &Telegram{
		chatID: 42,
		ctl:    ctl,
		outCh:  make(chan string, outboundBuffer),
		stopCh: make(chan struct{}),
	}
}

func message(chatID int64, text string) *tgbotapi.Message {
	return &tgbotapi.Message{
		Chat: &tgbotapi.Chat{ID: chatID},
		Text: text,
	}
}

func TestHandleMessage(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"start", "/start", "start requested"},
		{"pause", "/pause", "pause requested"},
		{"stop after cycle", "/stop", "pause after the current cycle"},
		{"ack", "/ack", "acknowledged"},
		{"set amount", "/setamount 0.25", "0.25"},
		{"clear amount", "/setamount 0", "cleared"},
		{"bad amount", "/setamount abc", "invalid amount"},
		{"missing amount", "/setamount", "usage:"},
		{"set max reduce", "/setmaxreduce 500", "max reduce set to 500"},
		{"set spread", "/setspread 0.5", "max spread set to 0.5"},
		{"bad threshold", "/setspread -1", "invalid value"},
		{"set max exposure", "/setmaxexposure 1.5", "max exposure set to 1.5"},
		{"set max positions", "/setmaxpositions 6", "max positions set to 6"},
		{"bad count", "/setmaxorders 0", "invalid count"},
		{"set blackout", "/blackout 22:00-02:30", "blackout window 22:00-02:30 set"},
		{"clear blackout", "/blackout off", "blackout window cleared"},
		{"bad blackout", "/blackout 25:00-02:00", "invalid window"},
		{"set quiet", "/quiet 23:00-01:00 0.5", "quiet hours 23:00-01:00 factor 0.50 set"},
		{"clear quiet", "/quiet off", "quiet hours cleared"},
		{"bad quiet factor", "/quiet 23:00-01:00 2", "invalid factor"},
		{"status", "/status", "XAUUSD"},
		{"help", "/help", "/setamount"},
		{"unknown", "/frobnicate", "unknown command"},
	}

	tg := newTestTelegram(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tg.handleMessage(message(42, tt.text))
			require.Contains(t, got, tt.want)
		})
	}
}

func TestHandleMessageIgnoresOtherChats(t *testing.T) {
	tg := newTestTelegram(t)
	require.Empty(t, tg.handleMessage(message(99, "/start")))
}

func TestHandleMessageIgnoresPlainText(t *testing.T) {
	tg := newTestTelegram(t)
	require.Empty(t, tg.handleMessage(message(42, "hello there")))
}

func TestSendNeverBlocksTheCaller(t *testing.T) {
	tg := &Telegram{chatID: 42, outCh: make(chan string, 2), stopCh: make(chan struct{})}

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			tg.send("notification")
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("send blocked on a full outbound buffer")
	}
	require.Len(t, tg.outCh, 2) // overflow is dropped, not queued
}

func TestEventsEnqueueNotifications(t *testing.T) {
	tg := newTestTelegram(t)

	tg.OrderFilled(grid.Order{Key: grid.Key{Side: "buy", Index: 0}, EntryPrice: 100.84}, 100.84)
	tg.PositionClosed(grid.Order{Key: grid.Key{Side: "buy", Index: 0}}, 2.0)

	require.Len(t, tg.outCh, 2)
	require.Contains(t, <-tg.outCh, "100.84")
	require.Contains(t, <-tg.outCh, "profit 2.00")
}

func TestFormatStatus(t *testing.T) {
	s := grid.StatusSnapshot{
		Symbol:           "XAUUSD",
		State:            grid.StateRunning,
		AnchorIndex:      3,
		BaseAmount:       0.1,
		CycleTarget:      100,
		CycleRealizedPnl: 12.5,
	}
	out := formatStatus(s)
	require.True(t, strings.Contains(out, "anchor: 3"))
	require.True(t, strings.Contains(out, "running"))
}
