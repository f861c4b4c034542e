// Package notify delivers engine events to Telegram and accepts
// control commands from the configured chat.
package notify

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"griddca/grid"
	"griddca/logger"
	"griddca/store"
)

// Telegram is both the engine's event sink and its chat command
// surface. All notifications go to a single configured chat; commands
// from any other chat are ignored.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	ctl    *grid.Controller
	store  *store.Store

	outCh  chan string
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// outboundBuffer bounds how many notifications may queue before new
// ones are dropped. Events fire on the engine tick loop, which must
// never wait on the Telegram API.
const outboundBuffer = 64

// NewTelegram connects the bot. store may be nil (overrides then do not
// survive restarts). ctl may be nil at construction time, because the
// bot is itself the controller's event sink; bind it with
// SetController before Start.
func NewTelegram(token string, chatID int64, ctl *grid.Controller, st *store.Store) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram connect: %w", err)
	}
	logger.Infof("📨 [Telegram] authorized as @%s", bot.Self.UserName)
	return &Telegram{
		bot:    bot,
		chatID: chatID,
		ctl:    ctl,
		store:  st,
		outCh:  make(chan string, outboundBuffer),
		stopCh: make(chan struct{}),
	}, nil
}

// SetController binds the controller commands are forwarded to. Must be
// called before Start when the bot was constructed without one.
func (t *Telegram) SetController(ctl *grid.Controller) {
	t.ctl = ctl
}

// Start launches the update polling loop and the outbound sender.
func (t *Telegram) Start() {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		for {
			select {
			case <-t.stopCh:
				return
			case text := <-t.outCh:
				if _, err := t.bot.Send(tgbotapi.NewMessage(t.chatID, text)); err != nil {
					logger.Warnf("⚠️ [Telegram] send: %v", err)
				}
			}
		}
	}()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := t.bot.GetUpdatesChan(u)

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		for {
			select {
			case <-t.stopCh:
				return
			case upd, ok := <-updates:
				if !ok {
					return
				}
				if upd.Message == nil {
					continue
				}
				if reply := t.handleMessage(upd.Message); reply != "" {
					t.reply(upd.Message.Chat.ID, reply)
				}
			}
		}
	}()
}

// Stop shuts the polling loop down.
func (t *Telegram) Stop() {
	close(t.stopCh)
	t.bot.StopReceivingUpdates()
	t.wg.Wait()
}

// handleMessage parses one chat message and queues the resulting
// command. The returned text is sent back as the reply.
func (t *Telegram) handleMessage(msg *tgbotapi.Message) string {
	if msg.Chat == nil || msg.Chat.ID != t.chatID {
		return ""
	}
	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	fields := strings.Fields(text)
	cmd := strings.ToLower(strings.TrimPrefix(fields[0], "/"))
	args := fields[1:]

	switch cmd {
	case "start":
		t.ctl.Send(grid.Command{Kind: grid.CmdStart})
		return "▶️ start requested"
	case "pause":
		t.ctl.Send(grid.Command{Kind: grid.CmdPause})
		return "⏸️ pause requested"
	case "stop":
		t.ctl.Send(grid.Command{Kind: grid.CmdStopAfterCycle})
		return "🏁 will pause after the current cycle completes"
	case "ack":
		t.ctl.Send(grid.Command{Kind: grid.CmdAckEmergency})
		return "✅ emergency stop acknowledged"
	case "setamount":
		if len(args) != 1 {
			return "usage: /setamount <amount> (0 clears the override)"
		}
		amount, err := strconv.ParseFloat(args[0], 64)
		if err != nil || amount < 0 {
			return fmt.Sprintf("invalid amount %q", args[0])
		}
		t.ctl.Send(grid.Command{Kind: grid.CmdSetBaseAmount, Amount: amount})
		t.persistFloat("base_amount_override", amount)
		if amount == 0 {
			return "💰 base amount override cleared"
		}
		return fmt.Sprintf("💰 base amount override %.4g (applies from next cycle)", amount)
	case "setmaxreduce":
		return t.setGuardThreshold(args, "max reduce", func(g *grid.GuardConfig, v float64) {
			g.MaxReduce = &v
		})
	case "setspread":
		return t.setGuardThreshold(args, "max spread", func(g *grid.GuardConfig, v float64) {
			g.MaxSpread = &v
		})
	case "setmargin":
		return t.setGuardThreshold(args, "min free margin", func(g *grid.GuardConfig, v float64) {
			g.MinFreeMargin = &v
		})
	case "setmaxexposure":
		return t.setGuardThreshold(args, "max exposure", func(g *grid.GuardConfig, v float64) {
			g.MaxExposure = &v
		})
	case "setmaxpositions":
		return t.setGuardCount(args, "max positions", func(g *grid.GuardConfig, n int) {
			g.MaxPositions = &n
		})
	case "setmaxorders":
		return t.setGuardCount(args, "max orders", func(g *grid.GuardConfig, n int) {
			g.MaxOrders = &n
		})
	case "blackout":
		return t.handleBlackout(args)
	case "quiet":
		return t.handleQuiet(args)
	case "status":
		return formatStatus(t.ctl.Status())
	case "help":
		return helpText
	default:
		return "unknown command, try /help"
	}
}

const helpText = `commands:
/start — resume trading
/pause — pause at the next tick
/stop — pause after the current cycle completes
/ack — acknowledge an emergency stop
/setamount X — base amount override for future cycles (0 clears)
/setmaxreduce X — emergency equity-reduction cap
/setspread X — max spread
/setmargin X — min free margin
/setmaxexposure X — total open volume cap
/setmaxpositions N — open position cap
/setmaxorders N — pending order cap
/blackout HH:MM-HH:MM — no-trading window (or "off")
/quiet HH:MM-HH:MM F — low-liquidity window with size factor F (or "off")
/status — engine status`

func (t *Telegram) setGuardThreshold(args []string, name string, apply func(*grid.GuardConfig, float64)) string {
	if len(args) != 1 {
		return fmt.Sprintf("usage: /set%s <value>", strings.ReplaceAll(name, " ", ""))
	}
	v, err := strconv.ParseFloat(args[0], 64)
	if err != nil || v <= 0 {
		return fmt.Sprintf("invalid value %q", args[0])
	}
	t.ctl.Send(grid.Command{Kind: grid.CmdUpdateGuards, Apply: func(g *grid.GuardConfig) {
		apply(g, v)
	}})
	return fmt.Sprintf("🛡️ %s set to %.4g (takes effect next tick)", name, v)
}

func (t *Telegram) setGuardCount(args []string, name string, apply func(*grid.GuardConfig, int)) string {
	if len(args) != 1 {
		return fmt.Sprintf("usage: /set%s <count>", strings.ReplaceAll(name, " ", ""))
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n <= 0 {
		return fmt.Sprintf("invalid count %q", args[0])
	}
	t.ctl.Send(grid.Command{Kind: grid.CmdUpdateGuards, Apply: func(g *grid.GuardConfig) {
		apply(g, n)
	}})
	return fmt.Sprintf("🛡️ %s set to %d (takes effect next tick)", name, n)
}

func (t *Telegram) handleBlackout(args []string) string {
	if len(args) == 1 && strings.EqualFold(args[0], "off") {
		t.ctl.Send(grid.Command{Kind: grid.CmdUpdateGuards, Apply: func(g *grid.GuardConfig) {
			g.Blackouts = nil
		}})
		return "🛡️ blackout window cleared"
	}
	if len(args) != 1 {
		return "usage: /blackout HH:MM-HH:MM (or /blackout off)"
	}
	start, end, err := parseClockRange(args[0])
	if err != nil {
		return fmt.Sprintf("invalid window %q: %v", args[0], err)
	}
	t.ctl.Send(grid.Command{Kind: grid.CmdUpdateGuards, Apply: func(g *grid.GuardConfig) {
		g.Blackouts = []grid.BlackoutWindow{{Start: start, End: end}}
	}})
	return fmt.Sprintf("🛡️ blackout window %02d:%02d-%02d:%02d set",
		start.Hour, start.Minute, end.Hour, end.Minute)
}

func (t *Telegram) handleQuiet(args []string) string {
	if len(args) == 1 && strings.EqualFold(args[0], "off") {
		t.ctl.Send(grid.Command{Kind: grid.CmdUpdateGuards, Apply: func(g *grid.GuardConfig) {
			g.Quiet = nil
		}})
		return "🌙 quiet hours cleared"
	}
	if len(args) != 2 {
		return "usage: /quiet HH:MM-HH:MM <factor> (or /quiet off)"
	}
	start, end, err := parseClockRange(args[0])
	if err != nil {
		return fmt.Sprintf("invalid window %q: %v", args[0], err)
	}
	factor, err := strconv.ParseFloat(args[1], 64)
	if err != nil || factor <= 0 || factor > 1 {
		return fmt.Sprintf("invalid factor %q (want 0 < f ≤ 1)", args[1])
	}
	t.ctl.Send(grid.Command{Kind: grid.CmdUpdateGuards, Apply: func(g *grid.GuardConfig) {
		g.Quiet = &grid.QuietHours{Start: start, End: end, Factor: factor}
	}})
	return fmt.Sprintf("🌙 quiet hours %02d:%02d-%02d:%02d factor %.2f set",
		start.Hour, start.Minute, end.Hour, end.Minute, factor)
}

// parseClockRange parses "HH:MM-HH:MM".
func parseClockRange(s string) (start, end grid.ClockTime, err error) {
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 {
		return start, end, fmt.Errorf("want HH:MM-HH:MM")
	}
	if start, err = parseClock(parts[0]); err != nil {
		return start, end, err
	}
	end, err = parseClock(parts[1])
	return start, end, err
}

func parseClock(s string) (grid.ClockTime, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return grid.ClockTime{}, fmt.Errorf("bad time %q", s)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return grid.ClockTime{}, fmt.Errorf("time %q out of range", s)
	}
	return grid.ClockTime{Hour: h, Minute: m}, nil
}

func formatStatus(s grid.StatusSnapshot) string {
	return fmt.Sprintf(
		"📊 %s [%s]\nanchor: %d\nbase: %.4g  target: %.2f\nrealized: %.2f  open: %.2f\nmax drawdown: %.2f\npositions: %d  orders: %d",
		s.Symbol, s.State, s.AnchorIndex, s.BaseAmount, s.CycleTarget,
		s.CycleRealizedPnl, s.OpenPnl, s.MaxDrawdown, s.OpenPositions, s.PlacedOrders)
}

func (t *Telegram) persistFloat(key string, v float64) {
	if t.store == nil {
		return
	}
	if err := t.store.Settings().SetFloat(key, v); err != nil {
		logger.Errorf("❌ [Telegram] persist %s: %v", key, err)
	}
}

func (t *Telegram) reply(chatID int64, text string) {
	if _, err := t.bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		logger.Warnf("⚠️ [Telegram] send reply: %v", err)
	}
}

// send enqueues a notification for the sender goroutine. Callers run on
// the engine tick loop, so a full buffer drops the message rather than
// blocking the tick.
func (t *Telegram) send(text string) {
	select {
	case t.outCh <- text:
	default:
		logger.Warnf("⚠️ [Telegram] outbound buffer full, dropping: %s", text)
	}
}

// ============================================================================
// grid.Events implementation
// ============================================================================

func (t *Telegram) OrderPlaced(o grid.Order) {
	t.send(fmt.Sprintf("📊 placed %s  entry %.5f  tp %.5f  vol %.4g",
		o.Key, o.EntryPrice, o.TargetPrice, o.Volume))
}

func (t *Telegram) OrderRejected(key grid.Key, err error) {
	t.send(fmt.Sprintf("⚠️ %s rejected by venue: %v", key, err))
}

func (t *Telegram) OrderFilled(o grid.Order, price float64) {
	t.send(fmt.Sprintf("🎯 %s filled at %.5f", o.Key, price))
}

func (t *Telegram) PositionClosed(o grid.Order, profit float64) {
	t.send(fmt.Sprintf("💵 %s closed, profit %.2f", o.Key, profit))
}

func (t *Telegram) CycleReset(realized, startBalance, endBalance float64, started time.Time) {
	t.send(fmt.Sprintf("🔄 cycle complete: %.2f realized (%.2f → %.2f) in %s",
		realized, startBalance, endBalance, time.Since(started).Round(time.Minute)))
}

func (t *Telegram) GuardBlocked(reason grid.Reason) {
	t.send(fmt.Sprintf("🛡️ construction blocked: %s", reason))
}

func (t *Telegram) EmergencyStopped(equity, startBalance, threshold float64) {
	t.send(fmt.Sprintf(
		"🚨 EMERGENCY STOP\nequity %.2f fell more than %.2f below cycle start %.2f\nall exposure flattened — send /ack then /start to resume",
		equity, threshold, startBalance))
}
