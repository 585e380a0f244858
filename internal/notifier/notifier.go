// Package notifier delivers signal and digest messages through the Telegram
// Bot API. Delivery is best-effort: failures are reported to the caller for
// logging but never abort a cycle.
package notifier

import (
	"fmt"
	"html"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"volsignals-bot/internal/analytics"
	"volsignals-bot/internal/logger"
	"volsignals-bot/internal/models"
)

// botAPI is the slice of the Telegram client the notifier needs. It lets
// tests substitute a fake transport.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Notifier sends formatted notifications and tracks the per-chat pinned
// digest message.
type Notifier struct {
	bot            botAPI
	maxRetries     int
	retryDelayBase time.Duration

	mu     sync.Mutex
	pinned map[int64]int // chat -> pinned digest message id
}

// New creates a Notifier on top of a connected bot client.
func New(bot *tgbotapi.BotAPI, maxRetries int, retryDelayBase time.Duration) *Notifier {
	return newWithAPI(bot, maxRetries, retryDelayBase)
}

func newWithAPI(bot botAPI, maxRetries int, retryDelayBase time.Duration) *Notifier {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}
	return &Notifier{
		bot:            bot,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
		pinned:         make(map[int64]int),
	}
}

// sendHTML sends an HTML-formatted message with linear-backoff retry.
func (n *Notifier) sendHTML(chatID int64, text string) (tgbotapi.Message, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML

	var lastErr error
	for i := 0; i < n.maxRetries; i++ {
		sent, err := n.bot.Send(msg)
		if err == nil {
			return sent, nil
		}
		lastErr = err
		time.Sleep(n.retryDelayBase * time.Duration(i+1))
	}
	return tgbotapi.Message{}, fmt.Errorf("failed after %d retries: %w", n.maxRetries, lastErr)
}

// SendSignal delivers one per-user volatility signal.
func (n *Notifier) SendSignal(sig models.Signal, mode models.Mode, trend analytics.Trend) error {
	_, err := n.sendHTML(sig.ChatID, FormatSignal(sig, mode, trend))
	return err
}

// SendDigest delivers or refreshes the pinned top-volatility digest for one
// chat. The first send inside the active window pins a fresh message;
// subsequent sends edit it in place. A failed edit falls back to a fresh
// send-and-pin instead of failing the cycle.
func (n *Notifier) SendDigest(chatID int64, entries []models.DigestEntry) error {
	text := FormatDigest(entries)

	n.mu.Lock()
	messageID, tracked := n.pinned[chatID]
	n.mu.Unlock()

	if tracked {
		edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
		edit.ParseMode = tgbotapi.ModeHTML
		_, err := n.bot.Send(edit)
		if err == nil {
			return nil
		}
		logger.Warn("Failed to edit pinned digest for chat %d, sending fresh: %v", chatID, err)
	}

	sent, err := n.sendHTML(chatID, text)
	if err != nil {
		return err
	}

	n.mu.Lock()
	n.pinned[chatID] = sent.MessageID
	n.mu.Unlock()

	// Pinning is best-effort; the bot may lack pin rights in the chat.
	pin := tgbotapi.PinChatMessageConfig{
		ChatID:              chatID,
		MessageID:           sent.MessageID,
		DisableNotification: true,
	}
	if _, err := n.bot.Request(pin); err != nil {
		logger.Warn("Failed to pin digest for chat %d: %v", chatID, err)
	}
	return nil
}

// ReleaseDigest drops the pinned-digest tracking for a chat once the active
// window closes. Unpinning is attempted but not guaranteed.
func (n *Notifier) ReleaseDigest(chatID int64) {
	n.mu.Lock()
	messageID, tracked := n.pinned[chatID]
	delete(n.pinned, chatID)
	n.mu.Unlock()

	if !tracked {
		return
	}
	unpin := tgbotapi.UnpinChatMessageConfig{ChatID: chatID, MessageID: messageID}
	if _, err := n.bot.Request(unpin); err != nil {
		logger.Debug("Failed to unpin digest for chat %d: %v", chatID, err)
	}
}

// TrackedDigests lists chats that currently have a pinned digest.
func (n *Notifier) TrackedDigests() []int64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	chats := make([]int64, 0, len(n.pinned))
	for chatID := range n.pinned {
		chats = append(chats, chatID)
	}
	return chats
}

// SendError notifies a chat about a cycle failure.
// Call this only on the first occurrence of a consecutive error sequence.
func (n *Notifier) SendError(chatID int64, cycleErr error) error {
	text := fmt.Sprintf("⚠️ <b>Cycle error</b>\n<i>%s</i>", html.EscapeString(cycleErr.Error()))
	_, err := n.sendHTML(chatID, text)
	return err
}

// SendRecovery notifies a chat after consecutive failures cleared.
func (n *Notifier) SendRecovery(chatID int64, failureCount int) error {
	text := fmt.Sprintf("✅ <b>Recovered</b> after %d consecutive failure(s)", failureCount)
	_, err := n.sendHTML(chatID, text)
	return err
}

// SendText sends a plain HTML message, used by the command surface.
func (n *Notifier) SendText(chatID int64, text string) error {
	_, err := n.sendHTML(chatID, text)
	return err
}

// FormatSignal renders one volatility signal. Market mode appends the
// reference symbol's context; portfolio mode shows only the symbol's own
// metrics.
func FormatSignal(sig models.Signal, mode models.Mode, trend analytics.Trend) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b>: volatility %.2f%% %s\n",
		html.EscapeString(sig.Symbol), sig.VolatilityPct, analytics.LevelEmoji(sig.Level))
	fmt.Fprintf(&b, "Volume: %.2f USDT (6h avg: %.2f USDT)\n", sig.QuoteVolume, sig.AvgVolume)
	fmt.Fprintf(&b, "Trend 1h: %s", trend.Marker())
	if mode == models.ModeMarket {
		fmt.Fprintf(&b, "\nBTC: %.2f%% %s", sig.RefVolatilityPct, analytics.LevelEmoji(sig.RefLevel))
	}
	return b.String()
}

// FormatDigest renders the top-volatility digest.
func FormatDigest(entries []models.DigestEntry) string {
	var b strings.Builder
	b.WriteString("🔥 <b>Most volatile right now</b>\n")
	for i, e := range entries {
		fmt.Fprintf(&b, "%d. %s: %.2f%%\n", i+1, html.EscapeString(e.Symbol), e.VolatilityPct)
	}
	return b.String()
}
