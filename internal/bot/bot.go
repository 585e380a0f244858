// Package bot implements the Telegram command surface: subscription
// management, display-mode switching, digest opt-in, and the admin-only
// threshold recompute trigger.
package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"volsignals-bot/internal/logger"
	"volsignals-bot/internal/models"
)

// store is the slice of the persistence layer the command surface needs.
type store interface {
	GetOrCreateUser(chatID int64) (*models.User, error)
	SaveUser(u *models.User) error
}

// responder sends command replies. The notifier satisfies it.
type responder interface {
	SendText(chatID int64, text string) error
}

// recomputer runs the threshold recompute on demand.
type recomputer interface {
	RecomputeAll(ctx context.Context, symbols []string) (int, error)
}

// botAPI is the slice of the Telegram client the listener needs: the update
// stream, plus direct sends for keyboard messages and callback answers.
type botAPI interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Config tunes one Bot.
type Config struct {
	AdminChatID      int64
	ThresholdSymbols []string
}

// Bot consumes Telegram updates and applies subscription commands.
type Bot struct {
	api       botAPI
	storage   store
	respond   responder
	recompute recomputer
	cfg       Config

	mu         sync.Mutex
	recalcBusy bool
}

// New creates the command listener.
func New(api botAPI, storage store, respond responder, recompute recomputer, cfg Config) *Bot {
	return &Bot{
		api:       api,
		storage:   storage,
		respond:   respond,
		recompute: recompute,
		cfg:       cfg,
	}
}

// Run consumes updates until ctx is cancelled or the channel closes.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := b.api.GetUpdatesChan(u)
	logger.Info("Command listener started")

	for {
		select {
		case <-ctx.Done():
			logger.Info("Command listener stopped")
			return
		case update, ok := <-updates:
			if !ok {
				logger.Info("Update channel closed")
				return
			}
			switch {
			case update.CallbackQuery != nil && update.CallbackQuery.Message != nil:
				cb := update.CallbackQuery
				b.handleCallback(cb.Message.Chat.ID, cb.ID, cb.Data)
			case update.Message != nil && update.Message.Text != "":
				b.handleText(ctx, update.Message.Chat.ID, update.Message.Text)
			}
		}
	}
}

// handleText parses and applies one command message. Non-command text is
// ignored.
func (b *Bot) handleText(ctx context.Context, chatID int64, text string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return
	}
	fields := strings.Fields(text)
	command := strings.ToLower(strings.TrimPrefix(fields[0], "/"))
	// Strip the bot-name suffix used in group chats.
	if at := strings.Index(command, "@"); at >= 0 {
		command = command[:at]
	}
	args := strings.Join(fields[1:], " ")

	// /addBTCUSDT and /add BTCUSDT are equivalent.
	if symbol, ok := strings.CutPrefix(command, "add"); ok {
		if symbol == "" {
			symbol = args
		}
		b.reply(chatID, b.addSymbol(chatID, symbol))
		return
	}

	switch command {
	case "start":
		b.reply(chatID, b.start(chatID))
	case "help":
		b.reply(chatID, helpText)
	case "remove":
		b.reply(chatID, b.removeSymbol(chatID, args))
	case "list":
		b.reply(chatID, b.list(chatID))
	case "top":
		b.reply(chatID, b.setTopVolatile(chatID, args))
	case "modmarket":
		b.reply(chatID, b.setMode(chatID, models.ModeMarket))
	case "modbag":
		b.reply(chatID, b.setMode(chatID, models.ModePortfolio))
	case "recalc":
		b.reply(chatID, b.recalc(ctx, chatID))
	default:
		logger.Debug("Ignoring unknown command %q from chat %d", command, chatID)
	}
}

func (b *Bot) reply(chatID int64, text string) {
	if text == "" {
		return
	}
	if err := b.respond.SendText(chatID, text); err != nil {
		logger.Error("Failed to reply to chat %d: %v", chatID, err)
	}
}

const helpText = `<b>Commands</b>
/add &lt;symbol&gt; — track a symbol (up to 5; the oldest is dropped when full)
/remove &lt;symbol&gt; — stop tracking a symbol
/list — show your subscriptions
/top on|off — pinned digest of the most volatile symbols
/modmarket — signals include market context
/modbag — signals show only your symbols
/help — this message`

const (
	callbackModeMarket    = "mode_market"
	callbackModePortfolio = "mode_bag"
)

func (b *Bot) start(chatID int64) string {
	if _, err := b.storage.GetOrCreateUser(chatID); err != nil {
		logger.Error("Failed to create user %d: %v", chatID, err)
		return "Something went wrong, try again."
	}

	msg := tgbotapi.NewMessage(chatID,
		"👋 I watch futures volatility and ping you when your symbols move.\n\nPick a signal mode:")
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📈 Market", callbackModeMarket),
			tgbotapi.NewInlineKeyboardButtonData("💼 Portfolio", callbackModePortfolio),
		),
	)
	if _, err := b.api.Send(msg); err != nil {
		logger.Error("Failed to send start keyboard to chat %d: %v", chatID, err)
		return "Something went wrong, try again."
	}
	return helpText
}

// handleCallback applies an inline-keyboard choice and acknowledges it so the
// client stops showing the spinner.
func (b *Bot) handleCallback(chatID int64, callbackID, data string) {
	var reply string
	switch data {
	case callbackModeMarket:
		reply = b.setMode(chatID, models.ModeMarket)
	case callbackModePortfolio:
		reply = b.setMode(chatID, models.ModePortfolio)
	default:
		logger.Debug("Ignoring unknown callback %q from chat %d", data, chatID)
		return
	}
	if _, err := b.api.Request(tgbotapi.NewCallback(callbackID, "")); err != nil {
		logger.Debug("Failed to answer callback for chat %d: %v", chatID, err)
	}
	b.reply(chatID, reply)
}

func (b *Bot) addSymbol(chatID int64, symbol string) string {
	symbol = normalizeSymbol(symbol)
	if symbol == "" {
		return "Usage: /add &lt;symbol&gt;, e.g. /add BTCUSDT"
	}
	u, err := b.storage.GetOrCreateUser(chatID)
	if err != nil {
		logger.Error("Failed to load user %d: %v", chatID, err)
		return "Something went wrong, try again."
	}
	evicted, added := u.AddSymbol(symbol)
	if !added {
		return fmt.Sprintf("%s is already on your list.", symbol)
	}
	if err := b.storage.SaveUser(u); err != nil {
		logger.Error("Failed to save user %d: %v", chatID, err)
		return "Something went wrong, try again."
	}
	if evicted != "" {
		return fmt.Sprintf("Added %s. Dropped %s to stay within %d symbols.", symbol, evicted, models.MaxSymbols)
	}
	return fmt.Sprintf("Added %s.", symbol)
}

func (b *Bot) removeSymbol(chatID int64, symbol string) string {
	symbol = normalizeSymbol(symbol)
	if symbol == "" {
		return "Usage: /remove &lt;symbol&gt;"
	}
	u, err := b.storage.GetOrCreateUser(chatID)
	if err != nil {
		logger.Error("Failed to load user %d: %v", chatID, err)
		return "Something went wrong, try again."
	}
	if !u.RemoveSymbol(symbol) {
		return fmt.Sprintf("%s is not on your list.", symbol)
	}
	if err := b.storage.SaveUser(u); err != nil {
		logger.Error("Failed to save user %d: %v", chatID, err)
		return "Something went wrong, try again."
	}
	return fmt.Sprintf("Removed %s.", symbol)
}

func (b *Bot) list(chatID int64) string {
	u, err := b.storage.GetOrCreateUser(chatID)
	if err != nil {
		logger.Error("Failed to load user %d: %v", chatID, err)
		return "Something went wrong, try again."
	}
	var sb strings.Builder
	if len(u.Symbols) == 0 {
		sb.WriteString("No symbols yet. Add one with /add &lt;symbol&gt;.")
	} else {
		sb.WriteString("<b>Your symbols</b>\n")
		for _, s := range u.Symbols {
			sb.WriteString("• " + s + "\n")
		}
	}
	fmt.Fprintf(&sb, "\nMode: %s", u.Mode)
	if u.TopVolatile {
		sb.WriteString("\nDigest: on")
	} else {
		sb.WriteString("\nDigest: off")
	}
	return sb.String()
}

func (b *Bot) setTopVolatile(chatID int64, arg string) string {
	var enabled bool
	switch strings.ToLower(strings.TrimSpace(arg)) {
	case "on":
		enabled = true
	case "off":
		enabled = false
	default:
		return "Usage: /top on|off"
	}
	u, err := b.storage.GetOrCreateUser(chatID)
	if err != nil {
		logger.Error("Failed to load user %d: %v", chatID, err)
		return "Something went wrong, try again."
	}
	u.TopVolatile = enabled
	if err := b.storage.SaveUser(u); err != nil {
		logger.Error("Failed to save user %d: %v", chatID, err)
		return "Something went wrong, try again."
	}
	if enabled {
		return "Digest enabled. You'll get a pinned list of the most volatile symbols during active hours."
	}
	return "Digest disabled."
}

func (b *Bot) setMode(chatID int64, mode models.Mode) string {
	u, err := b.storage.GetOrCreateUser(chatID)
	if err != nil {
		logger.Error("Failed to load user %d: %v", chatID, err)
		return "Something went wrong, try again."
	}
	u.Mode = mode
	if err := b.storage.SaveUser(u); err != nil {
		logger.Error("Failed to save user %d: %v", chatID, err)
		return "Something went wrong, try again."
	}
	if mode == models.ModeMarket {
		return "Market mode: signals now include overall market context."
	}
	return "Portfolio mode: signals show only your symbols."
}

// recalc triggers a background threshold recompute. Admin only, one at a
// time.
func (b *Bot) recalc(ctx context.Context, chatID int64) string {
	if b.cfg.AdminChatID == 0 || chatID != b.cfg.AdminChatID {
		return ""
	}
	if b.recompute == nil {
		return "Recompute is not configured."
	}

	b.mu.Lock()
	if b.recalcBusy {
		b.mu.Unlock()
		return "A recompute is already running."
	}
	b.recalcBusy = true
	b.mu.Unlock()

	go func() {
		defer func() {
			b.mu.Lock()
			b.recalcBusy = false
			b.mu.Unlock()
		}()
		updated, err := b.recompute.RecomputeAll(ctx, b.cfg.ThresholdSymbols)
		if err != nil {
			b.reply(chatID, fmt.Sprintf("Recompute finished with errors: %d symbol(s) updated.", updated))
			return
		}
		b.reply(chatID, fmt.Sprintf("Recompute done: %d symbol(s) updated.", updated))
	}()
	return fmt.Sprintf("Recomputing thresholds for %d symbol(s)…", len(b.cfg.ThresholdSymbols))
}

func normalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
