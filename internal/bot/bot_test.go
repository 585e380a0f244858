package bot

import (
	"context"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"volsignals-bot/internal/models"
)

type fakeStore struct {
	users map[int64]*models.User
}

func newFakeStore() *fakeStore {
	return &fakeStore{users: make(map[int64]*models.User)}
}

func (f *fakeStore) GetOrCreateUser(chatID int64) (*models.User, error) {
	if u, ok := f.users[chatID]; ok {
		return u, nil
	}
	u := models.NewUser(chatID)
	f.users[chatID] = u
	return u, nil
}

func (f *fakeStore) SaveUser(u *models.User) error {
	f.users[u.ChatID] = u
	return nil
}

type fakeResponder struct {
	replies chan string
}

func newFakeResponder() *fakeResponder {
	return &fakeResponder{replies: make(chan string, 16)}
}

func (f *fakeResponder) SendText(_ int64, text string) error {
	f.replies <- text
	return nil
}

func (f *fakeResponder) next(t *testing.T) string {
	t.Helper()
	select {
	case text := <-f.replies:
		return text
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for reply")
		return ""
	}
}

func (f *fakeResponder) expectSilence(t *testing.T) {
	t.Helper()
	select {
	case text := <-f.replies:
		t.Fatalf("unexpected reply: %q", text)
	case <-time.After(50 * time.Millisecond):
	}
}

type fakeAPI struct {
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
}

func (f *fakeAPI) GetUpdatesChan(_ tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	ch := make(chan tgbotapi.Update)
	return ch
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c)
	return tgbotapi.Message{MessageID: len(f.sent)}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

type fakeRecomputer struct {
	calls   int
	symbols []string
}

func (f *fakeRecomputer) RecomputeAll(_ context.Context, symbols []string) (int, error) {
	f.calls++
	f.symbols = symbols
	return len(symbols), nil
}

func newTestBot(st *fakeStore, r *fakeResponder, rc recomputer) (*Bot, *fakeAPI) {
	api := &fakeAPI{}
	return New(api, st, r, rc, Config{
		AdminChatID:      1,
		ThresholdSymbols: []string{"BTCUSDT", "ETHUSDT"},
	}), api
}

func TestAddSymbol_BothSpellings(t *testing.T) {
	st := newFakeStore()
	r := newFakeResponder()
	b, _ := newTestBot(st, r, nil)
	ctx := context.Background()

	b.handleText(ctx, 42, "/addBTCUSDT")
	if reply := r.next(t); !strings.Contains(reply, "Added BTCUSDT") {
		t.Errorf("unexpected reply: %q", reply)
	}
	b.handleText(ctx, 42, "/add ethusdt")
	if reply := r.next(t); !strings.Contains(reply, "Added ETHUSDT") {
		t.Errorf("unexpected reply: %q", reply)
	}

	u := st.users[42]
	if len(u.Symbols) != 2 || u.Symbols[0] != "BTCUSDT" || u.Symbols[1] != "ETHUSDT" {
		t.Errorf("symbols = %v", u.Symbols)
	}
}

func TestAddSymbol_DuplicateAndEviction(t *testing.T) {
	st := newFakeStore()
	r := newFakeResponder()
	b, _ := newTestBot(st, r, nil)
	ctx := context.Background()

	for _, s := range []string{"AUSDT", "BUSDT", "CUSDT", "DUSDT", "EUSDT"} {
		b.handleText(ctx, 42, "/add "+s)
		_ = r.next(t)
	}

	b.handleText(ctx, 42, "/add AUSDT")
	if reply := r.next(t); !strings.Contains(reply, "already") {
		t.Errorf("unexpected duplicate reply: %q", reply)
	}

	b.handleText(ctx, 42, "/add FUSDT")
	reply := r.next(t)
	if !strings.Contains(reply, "Dropped AUSDT") {
		t.Errorf("expected eviction notice, got %q", reply)
	}
	u := st.users[42]
	if len(u.Symbols) != models.MaxSymbols || u.HasSymbol("AUSDT") || !u.HasSymbol("FUSDT") {
		t.Errorf("symbols after eviction = %v", u.Symbols)
	}
}

func TestRemoveSymbol(t *testing.T) {
	st := newFakeStore()
	r := newFakeResponder()
	b, _ := newTestBot(st, r, nil)
	ctx := context.Background()

	b.handleText(ctx, 42, "/add BTCUSDT")
	_ = r.next(t)

	b.handleText(ctx, 42, "/remove btcusdt")
	if reply := r.next(t); !strings.Contains(reply, "Removed BTCUSDT") {
		t.Errorf("unexpected reply: %q", reply)
	}
	b.handleText(ctx, 42, "/remove BTCUSDT")
	if reply := r.next(t); !strings.Contains(reply, "not on your list") {
		t.Errorf("unexpected reply: %q", reply)
	}
	b.handleText(ctx, 42, "/remove")
	if reply := r.next(t); !strings.Contains(reply, "Usage") {
		t.Errorf("unexpected reply: %q", reply)
	}
}

func TestListAndModes(t *testing.T) {
	st := newFakeStore()
	r := newFakeResponder()
	b, _ := newTestBot(st, r, nil)
	ctx := context.Background()

	b.handleText(ctx, 42, "/list")
	if reply := r.next(t); !strings.Contains(reply, "No symbols yet") {
		t.Errorf("unexpected empty list reply: %q", reply)
	}

	b.handleText(ctx, 42, "/modmarket")
	if reply := r.next(t); !strings.Contains(reply, "Market mode") {
		t.Errorf("unexpected reply: %q", reply)
	}
	if st.users[42].Mode != models.ModeMarket {
		t.Errorf("mode = %s", st.users[42].Mode)
	}

	b.handleText(ctx, 42, "/modbag")
	_ = r.next(t)
	if st.users[42].Mode != models.ModePortfolio {
		t.Errorf("mode = %s", st.users[42].Mode)
	}

	b.handleText(ctx, 42, "/add BTCUSDT")
	_ = r.next(t)
	b.handleText(ctx, 42, "/list")
	reply := r.next(t)
	if !strings.Contains(reply, "BTCUSDT") || !strings.Contains(reply, "Mode: portfolio") {
		t.Errorf("unexpected list reply: %q", reply)
	}
}

func TestTopVolatileToggle(t *testing.T) {
	st := newFakeStore()
	r := newFakeResponder()
	b, _ := newTestBot(st, r, nil)
	ctx := context.Background()

	b.handleText(ctx, 42, "/top on")
	_ = r.next(t)
	if !st.users[42].TopVolatile {
		t.Error("digest not enabled")
	}
	b.handleText(ctx, 42, "/top off")
	_ = r.next(t)
	if st.users[42].TopVolatile {
		t.Error("digest not disabled")
	}
	b.handleText(ctx, 42, "/top maybe")
	if reply := r.next(t); !strings.Contains(reply, "Usage") {
		t.Errorf("unexpected reply: %q", reply)
	}
}

func TestRecalc_AdminOnly(t *testing.T) {
	st := newFakeStore()
	r := newFakeResponder()
	rc := &fakeRecomputer{}
	b, _ := newTestBot(st, r, rc)
	ctx := context.Background()

	// Non-admin gets nothing, not even a refusal.
	b.handleText(ctx, 42, "/recalc")
	r.expectSilence(t)
	if rc.calls != 0 {
		t.Error("non-admin must not trigger a recompute")
	}

	b.handleText(ctx, 1, "/recalc")
	if reply := r.next(t); !strings.Contains(reply, "Recomputing") {
		t.Errorf("unexpected ack: %q", reply)
	}
	if reply := r.next(t); !strings.Contains(reply, "2 symbol(s) updated") {
		t.Errorf("unexpected completion reply: %q", reply)
	}
	if rc.calls != 1 {
		t.Errorf("recompute calls = %d", rc.calls)
	}
}

func TestStart_SendsModeKeyboard(t *testing.T) {
	st := newFakeStore()
	r := newFakeResponder()
	b, api := newTestBot(st, r, nil)

	b.handleText(context.Background(), 42, "/start")
	if reply := r.next(t); !strings.Contains(reply, "Commands") {
		t.Errorf("expected help text, got %q", reply)
	}
	if _, ok := st.users[42]; !ok {
		t.Error("start must create the user record")
	}
	if len(api.sent) != 1 {
		t.Fatalf("got %d direct sends, want 1 keyboard message", len(api.sent))
	}
	msg, ok := api.sent[0].(tgbotapi.MessageConfig)
	if !ok {
		t.Fatalf("unexpected send type %T", api.sent[0])
	}
	markup, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	if !ok {
		t.Fatalf("unexpected reply markup %T", msg.ReplyMarkup)
	}
	if len(markup.InlineKeyboard) != 1 || len(markup.InlineKeyboard[0]) != 2 {
		t.Errorf("unexpected keyboard shape: %+v", markup.InlineKeyboard)
	}
}

func TestHandleCallback_SetsMode(t *testing.T) {
	st := newFakeStore()
	r := newFakeResponder()
	b, api := newTestBot(st, r, nil)

	b.handleCallback(42, "cb-1", "mode_market")
	if reply := r.next(t); !strings.Contains(reply, "Market mode") {
		t.Errorf("unexpected reply: %q", reply)
	}
	if st.users[42].Mode != models.ModeMarket {
		t.Errorf("mode = %s", st.users[42].Mode)
	}
	if len(api.requests) != 1 {
		t.Errorf("got %d callback answers, want 1", len(api.requests))
	}

	b.handleCallback(42, "cb-2", "mode_bag")
	_ = r.next(t)
	if st.users[42].Mode != models.ModePortfolio {
		t.Errorf("mode = %s", st.users[42].Mode)
	}

	// Unknown callback data is ignored without an answer.
	b.handleCallback(42, "cb-3", "mode_warp")
	r.expectSilence(t)
}

func TestNonCommandsIgnored(t *testing.T) {
	st := newFakeStore()
	r := newFakeResponder()
	b, _ := newTestBot(st, r, nil)
	ctx := context.Background()

	b.handleText(ctx, 42, "hello there")
	b.handleText(ctx, 42, "/unknowncommand")
	r.expectSilence(t)
}

func TestCommandWithBotNameSuffix(t *testing.T) {
	st := newFakeStore()
	r := newFakeResponder()
	b, _ := newTestBot(st, r, nil)

	b.handleText(context.Background(), 42, "/list@volsignals_bot")
	if reply := r.next(t); !strings.Contains(reply, "No symbols yet") {
		t.Errorf("unexpected reply: %q", reply)
	}
}
