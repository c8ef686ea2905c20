package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/admit-hub/admission-calc-bot/internal/application/broadcast"
	"github.com/admit-hub/admission-calc-bot/internal/application/conversation"
	"github.com/admit-hub/admission-calc-bot/internal/application/query"
	"github.com/admit-hub/admission-calc-bot/internal/application/referral"
	"github.com/admit-hub/admission-calc-bot/internal/application/registration"
	"github.com/admit-hub/admission-calc-bot/internal/domain/ledger"
	"github.com/admit-hub/admission-calc-bot/internal/domain/scoring"
	"github.com/admit-hub/admission-calc-bot/internal/domain/university"
	"github.com/admit-hub/admission-calc-bot/internal/domain/user"
	"github.com/admit-hub/admission-calc-bot/internal/infrastructure/external/telegram"
	"github.com/admit-hub/admission-calc-bot/internal/interface/telegram/presenter"
)

// ─────────────────────────────────────────────────────────────────────────────
// Fake Telegram API
// ─────────────────────────────────────────────────────────────────────────────

type apiMessage struct {
	ChatID int64
	Text   string
}

type apiCapture struct {
	mu       sync.Mutex
	sent     []apiMessage
	edits    []apiMessage
	answered []string
}

func (a *apiCapture) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		method := r.URL.Path[strings.LastIndexByte(r.URL.Path, '/')+1:]

		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)

		a.mu.Lock()
		switch method {
		case "sendMessage":
			a.sent = append(a.sent, apiMessage{ChatID: asID(body["chat_id"]), Text: asText(body["text"])})
		case "editMessageText":
			a.edits = append(a.edits, apiMessage{ChatID: asID(body["chat_id"]), Text: asText(body["text"])})
		case "answerCallbackQuery":
			a.answered = append(a.answered, asText(body["callback_query_id"]))
		}
		a.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		switch method {
		case "getMe":
			fmt.Fprint(w, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"Calc","username":"calc_test_bot"}}`)
		case "sendMessage", "editMessageText":
			fmt.Fprint(w, `{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":1,"type":"private"}}}`)
		default:
			fmt.Fprint(w, `{"ok":true,"result":true}`)
		}
	}
}

func asID(v interface{}) int64 {
	n, _ := v.(float64)
	return int64(n)
}

func asText(v interface{}) string {
	s, _ := v.(string)
	return s
}

func (a *apiCapture) sentMessages() []apiMessage {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]apiMessage(nil), a.sent...)
}

func (a *apiCapture) editedMessages() []apiMessage {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]apiMessage(nil), a.edits...)
}

func (a *apiCapture) answeredQueries() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.answered...)
}

// ─────────────────────────────────────────────────────────────────────────────
// In-memory storage
// Mirrors the persistence semantics: creating a user credits the signup
// bonus, claiming a referral credits the referrer, both observably
// atomic from the outside.
// ─────────────────────────────────────────────────────────────────────────────

type memStore struct {
	mu            sync.Mutex
	users         map[user.TelegramID]*user.User
	referredBy    map[user.TelegramID]user.TelegramID
	balances      map[ledger.UserID]ledger.Points
	entries       []*ledger.Transaction
	signupBonus   ledger.Points
	referralBonus ledger.Points
}

func newMemStore(signup, referralBonus ledger.Points) *memStore {
	return &memStore{
		users:         make(map[user.TelegramID]*user.User),
		referredBy:    make(map[user.TelegramID]user.TelegramID),
		balances:      make(map[ledger.UserID]ledger.Points),
		signupBonus:   signup,
		referralBonus: referralBonus,
	}
}

func (m *memStore) credit(userID ledger.UserID, delta ledger.Points, reason ledger.Reason) {
	m.balances[userID] = m.balances[userID].Add(delta)
	m.entries = append(m.entries, &ledger.Transaction{
		ID:        fmt.Sprintf("tx-%d", len(m.entries)+1),
		UserID:    userID,
		Delta:     delta,
		Reason:    reason,
		CreatedAt: time.Now().UTC(),
	})
}

// user.Repository

func (m *memStore) CreateIfAbsent(_ context.Context, u *user.User) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.TelegramID]; ok {
		return false, nil
	}
	m.users[u.TelegramID] = u
	m.credit(ledger.UserID(u.TelegramID.Int64()), m.signupBonus, ledger.ReasonSignupBonus)
	return true, nil
}

func (m *memStore) GetByTelegramID(_ context.Context, id user.TelegramID) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, user.ErrUserNotFound
	}
	return u, nil
}

func (m *memStore) ListIDs(_ context.Context) ([]user.TelegramID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]user.TelegramID, 0, len(m.users))
	for id := range m.users {
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *memStore) Count(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users), nil
}

func (m *memStore) CountSince(_ context.Context, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, u := range m.users {
		if !u.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *memStore) CountReferredBy(_ context.Context, referrer user.TelegramID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, by := range m.referredBy {
		if by == referrer {
			n++
		}
	}
	return n, nil
}

// user.ReferralRepository

func (m *memStore) Claim(_ context.Context, referee, referrer user.TelegramID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.referredBy[referee]; ok {
		return false, nil
	}
	if _, ok := m.users[referee]; !ok {
		return false, nil
	}
	if _, ok := m.users[referrer]; !ok {
		return false, nil
	}
	m.referredBy[referee] = referrer
	m.credit(ledger.UserID(referrer.Int64()), m.referralBonus, ledger.ReasonReferralBonus)
	return true, nil
}

// ledger.Ledger

func (m *memStore) Apply(_ context.Context, tx *ledger.Transaction) (ledger.Points, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.credit(tx.UserID, tx.Delta, tx.Reason)
	return m.balances[tx.UserID], nil
}

func (m *memStore) Balance(_ context.Context, userID ledger.UserID) (ledger.Points, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	balance, ok := m.balances[userID]
	if !ok {
		return 0, ledger.ErrBalanceNotFound
	}
	return balance, nil
}

func (m *memStore) History(_ context.Context, userID ledger.UserID, limit int) ([]*ledger.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*ledger.Transaction
	for i := len(m.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if m.entries[i].UserID == userID {
			out = append(out, m.entries[i])
		}
	}
	return out, nil
}

func (m *memStore) CalculationCount(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, tx := range m.entries {
		if tx.Reason.IsCalculation() {
			n++
		}
	}
	return n, nil
}

func (m *memStore) CalculationCountSince(_ context.Context, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, tx := range m.entries {
		if tx.Reason.IsCalculation() && !tx.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *memStore) CountByReasonSince(_ context.Context, reason ledger.Reason, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, tx := range m.entries {
		if tx.Reason == reason && !tx.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *memStore) balanceOf(id int64) ledger.Points {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[ledger.UserID(id)]
}

// ─────────────────────────────────────────────────────────────────────────────
// Test bot assembly
// ─────────────────────────────────────────────────────────────────────────────

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRegistry(t *testing.T) *university.Registry {
	t.Helper()
	reg, err := university.NewRegistry([]university.University{
		{ID: "unilag", Name: "University of Lagos (UNILAG)", Method: scoring.MethodScoreAdmissionCredentials},
		{ID: "unical", Name: "University of Calabar (UNICAL)", Method: scoring.MethodScoreOnly},
	})
	require.NoError(t, err)
	return reg
}

func newTestBot(t *testing.T, admins ...int64) (*Bot, *apiCapture, *memStore) {
	t.Helper()

	capture := &apiCapture{}
	server := httptest.NewServer(capture.handler())
	t.Cleanup(server.Close)

	clientConfig := telegram.DefaultClientConfig("test-token")
	clientConfig.BaseURL = server.URL
	clientConfig.Logger = discardLogger()
	client := telegram.NewClient(clientConfig)

	store := newMemStore(10, 5)

	sessions := conversation.NewStore(time.Minute)
	t.Cleanup(sessions.Stop)
	registry := testRegistry(t)
	engine := conversation.NewEngine(sessions, registry, store, conversation.DefaultCalculationCost)

	config := DefaultBotConfig("test-token")
	config.Logger = discardLogger()
	config.AdminIDs = admins

	bot, err := NewBot(config, BotDependencies{
		Client:        client,
		Registration:  registration.NewService(store, nil, time.Hour),
		Engine:        engine,
		Registry:      registry,
		Points:        store,
		Referrals:     referral.NewService(store, store),
		Broadcaster:   broadcast.NewService(store, telegram.NewBroadcastSender(client), &memBroadcasts{}, discardLogger(), 2),
		HistoryQuery:  query.NewGetHistoryHandler(store),
		StatsQuery:    query.NewGetUsageStatsHandler(store, store, engine, nil),
		SignupBonus:   10,
		ReferralBonus: 5,
	})
	require.NoError(t, err)

	// Normally set by Start after getMe.
	bot.botUsername = "calc_test_bot"

	return bot, capture, store
}

type memBroadcasts struct {
	mu    sync.Mutex
	saved []*broadcast.Record
}

func (m *memBroadcasts) Save(_ context.Context, rec *broadcast.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, rec)
	return nil
}

func (m *memBroadcasts) List(_ context.Context, limit int) ([]*broadcast.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit > len(m.saved) {
		limit = len(m.saved)
	}
	return append([]*broadcast.Record(nil), m.saved[len(m.saved)-limit:]...), nil
}

func commandMessage(telegramID int64, text string) *telegram.Message {
	length := len(text)
	if i := strings.IndexByte(text, ' '); i > 0 {
		length = i
	}
	return &telegram.Message{
		MessageID: 100,
		From:      &telegram.User{ID: telegramID, FirstName: "Ada", Username: "ada"},
		Chat:      &telegram.Chat{ID: telegramID, Type: "private"},
		Text:      text,
		Entities:  []telegram.MessageEntity{{Type: "bot_command", Offset: 0, Length: length}},
	}
}

func textMessage(telegramID int64, text string) *telegram.Message {
	return &telegram.Message{
		MessageID: 101,
		From:      &telegram.User{ID: telegramID, FirstName: "Ada", Username: "ada"},
		Chat:      &telegram.Chat{ID: telegramID, Type: "private"},
		Text:      text,
	}
}

func callbackUpdate(telegramID int64, data string) *telegram.CallbackQuery {
	return &telegram.CallbackQuery{
		ID:   "cb-1",
		From: &telegram.User{ID: telegramID, FirstName: "Ada"},
		Message: &telegram.Message{
			MessageID: 200,
			Chat:      &telegram.Chat{ID: telegramID, Type: "private"},
		},
		Data: data,
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Tests
// ─────────────────────────────────────────────────────────────────────────────

func TestBotWelcomesNewUserOnStart(t *testing.T) {
	bot, capture, store := newTestBot(t)

	err := bot.handleMessage(context.Background(), commandMessage(42, "/start"))
	require.NoError(t, err)

	sent := capture.sentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, int64(42), sent[0].ChatID)
	assert.Contains(t, sent[0].Text, "Welcome, Ada")
	assert.Contains(t, sent[0].Text, "10 points")

	assert.Equal(t, ledger.Points(10), store.balanceOf(42))
}

func TestBotCreditsReferralOnDeepLink(t *testing.T) {
	bot, capture, store := newTestBot(t)

	// The referrer must exist before their link works.
	require.NoError(t, bot.handleMessage(context.Background(), commandMessage(99, "/start")))

	err := bot.handleMessage(context.Background(), commandMessage(42, "/start ref_99"))
	require.NoError(t, err)

	assert.Equal(t, ledger.Points(15), store.balanceOf(99), "referrer gets signup plus referral bonus")
	assert.Equal(t, ledger.Points(10), store.balanceOf(42))

	// Referrer welcome, then referee welcome, then the referrer notice.
	sent := capture.sentMessages()
	require.Len(t, sent, 3)
	assert.Equal(t, int64(42), sent[1].ChatID)
	assert.Contains(t, sent[1].Text, "friend's invite")
	assert.Equal(t, int64(99), sent[2].ChatID)
	assert.Contains(t, sent[2].Text, "Ada")
}

func TestBotReferralClaimIsAtMostOnce(t *testing.T) {
	bot, _, store := newTestBot(t)
	ctx := context.Background()

	require.NoError(t, bot.handleMessage(ctx, commandMessage(99, "/start")))
	require.NoError(t, bot.handleMessage(ctx, commandMessage(42, "/start ref_99")))
	require.NoError(t, bot.handleMessage(ctx, commandMessage(42, "/start ref_99")))

	assert.Equal(t, ledger.Points(15), store.balanceOf(99), "second claim must not credit again")
}

func TestBotAnswersDeveloperCard(t *testing.T) {
	bot, capture, _ := newTestBot(t)
	ctx := context.Background()

	require.NoError(t, bot.handleMessage(ctx, commandMessage(42, "/developer")))

	sent := capture.sentMessages()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Text, "Developer")
	assert.Contains(t, sent[0].Text, "@Danzy_101")
}

func TestBotGatesAdminCommands(t *testing.T) {
	bot, capture, _ := newTestBot(t, 8)
	ctx := context.Background()

	require.NoError(t, bot.handleMessage(ctx, commandMessage(7, "/stats")))
	sent := capture.sentMessages()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Text, "administrators")

	require.NoError(t, bot.handleMessage(ctx, commandMessage(8, "/stats")))
	sent = capture.sentMessages()
	require.Len(t, sent, 2)
	assert.Contains(t, sent[1].Text, "Usage summary")
}

func TestBotCallbackStartsDialog(t *testing.T) {
	bot, capture, _ := newTestBot(t)
	ctx := context.Background()

	require.NoError(t, bot.handleMessage(ctx, commandMessage(42, "/start")))

	err := bot.handleCallbackQuery(ctx, callbackUpdate(42, presenter.CallbackStandardCalc))
	require.NoError(t, err)

	assert.Contains(t, capture.answeredQueries(), "cb-1")
	edits := capture.editedMessages()
	require.Len(t, edits, 1)
	assert.Equal(t, int64(42), edits[0].ChatID)
	assert.Contains(t, edits[0].Text, "Question 1 of")
}

func TestBotRunsStandardCalculationEndToEnd(t *testing.T) {
	bot, capture, store := newTestBot(t)
	ctx := context.Background()

	require.NoError(t, bot.handleMessage(ctx, commandMessage(42, "/start")))
	require.NoError(t, bot.handleCallbackQuery(ctx, callbackUpdate(42, presenter.CallbackStandardCalc)))
	require.NoError(t, bot.handleMessage(ctx, textMessage(42, "300")))
	require.NoError(t, bot.handleMessage(ctx, textMessage(42, "70")))

	sent := capture.sentMessages()
	require.NotEmpty(t, sent)
	result := sent[len(sent)-1]
	assert.Contains(t, result.Text, "72.50")

	assert.Equal(t, ledger.Points(9), store.balanceOf(42), "one calculation costs one point")
}

func TestBotIgnoresGroupMessages(t *testing.T) {
	bot, capture, store := newTestBot(t)

	msg := commandMessage(42, "/start")
	msg.Chat.Type = "group"

	require.NoError(t, bot.handleMessage(context.Background(), msg))

	assert.Empty(t, capture.sentMessages())
	assert.Equal(t, ledger.Points(0), store.balanceOf(42))
}

func TestBotRateLimitsAfterBurst(t *testing.T) {
	bot, capture, _ := newTestBot(t)
	ctx := context.Background()

	// Default burst is 5 tokens; the sixth immediate request is refused.
	for i := 0; i < 6; i++ {
		require.NoError(t, bot.handleMessage(ctx, commandMessage(77, "/help")))
	}

	sent := capture.sentMessages()
	require.Len(t, sent, 6)
	assert.Contains(t, sent[5].Text, "Too many requests")
}

func TestCallbackMetricLabel(t *testing.T) {
	assert.Equal(t, "callback:calc", callbackMetricLabel("calc:uni:unilag"))
	assert.Equal(t, "callback:cmd", callbackMetricLabel("cmd:help"))
	assert.Equal(t, "callback:noscheme", callbackMetricLabel("noscheme"))
}
