package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/admit-hub/admission-calc-bot/internal/application/broadcast"
	"github.com/admit-hub/admission-calc-bot/internal/application/conversation"
	"github.com/admit-hub/admission-calc-bot/internal/application/query"
	"github.com/admit-hub/admission-calc-bot/internal/application/referral"
	"github.com/admit-hub/admission-calc-bot/internal/domain/ledger"
	"github.com/admit-hub/admission-calc-bot/internal/domain/scoring"
	"github.com/admit-hub/admission-calc-bot/internal/domain/university"
	"github.com/admit-hub/admission-calc-bot/internal/domain/user"
	"github.com/admit-hub/admission-calc-bot/internal/interface/telegram/presenter"
)

// ─────────────────────────────────────────────
// Fakes
// ─────────────────────────────────────────────

// fakeLedger is an in-memory ledger.Ledger for handler tests.
type fakeLedger struct {
	mu       sync.Mutex
	balances map[ledger.UserID]ledger.Points
	applied  []*ledger.Transaction
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{balances: make(map[ledger.UserID]ledger.Points)}
}

func (f *fakeLedger) set(userID ledger.UserID, balance ledger.Points) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[userID] = balance
}

func (f *fakeLedger) Apply(_ context.Context, tx *ledger.Transaction) (ledger.Points, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applied = append(f.applied, tx)
	f.balances[tx.UserID] = f.balances[tx.UserID].Add(tx.Delta)
	return f.balances[tx.UserID], nil
}

func (f *fakeLedger) Balance(_ context.Context, userID ledger.UserID) (ledger.Points, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	balance, ok := f.balances[userID]
	if !ok {
		return 0, ledger.ErrBalanceNotFound
	}
	return balance, nil
}

func (f *fakeLedger) History(_ context.Context, userID ledger.UserID, limit int) ([]*ledger.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*ledger.Transaction
	for i := len(f.applied) - 1; i >= 0 && len(out) < limit; i-- {
		if f.applied[i].UserID == userID {
			out = append(out, f.applied[i])
		}
	}
	return out, nil
}

func (f *fakeLedger) CalculationCount(_ context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, tx := range f.applied {
		if tx.Reason.IsCalculation() {
			n++
		}
	}
	return n, nil
}

func (f *fakeLedger) CalculationCountSince(_ context.Context, since time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, tx := range f.applied {
		if tx.Reason.IsCalculation() && !tx.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (f *fakeLedger) CountByReasonSince(_ context.Context, reason ledger.Reason, since time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, tx := range f.applied {
		if tx.Reason == reason && !tx.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

// fakeUsers is a configurable user.Repository.
type fakeUsers struct {
	ids      []user.TelegramID
	total    int
	referred int
}

func (f *fakeUsers) CreateIfAbsent(_ context.Context, _ *user.User) (bool, error) { return false, nil }

func (f *fakeUsers) GetByTelegramID(_ context.Context, _ user.TelegramID) (*user.User, error) {
	return nil, user.ErrUserNotFound
}

func (f *fakeUsers) ListIDs(_ context.Context) ([]user.TelegramID, error) { return f.ids, nil }

func (f *fakeUsers) Count(_ context.Context) (int, error) { return f.total, nil }

func (f *fakeUsers) CountSince(_ context.Context, _ time.Time) (int, error) { return 0, nil }

func (f *fakeUsers) CountReferredBy(_ context.Context, _ user.TelegramID) (int, error) {
	return f.referred, nil
}

// fakeClaims is a scripted user.ReferralRepository.
type fakeClaims struct {
	claimed     bool
	err         error
	gotReferee  user.TelegramID
	gotReferrer user.TelegramID
}

func (f *fakeClaims) Claim(_ context.Context, referee, referrer user.TelegramID) (bool, error) {
	f.gotReferee = referee
	f.gotReferrer = referrer
	return f.claimed, f.err
}

// fakeSender records broadcast deliveries.
type fakeSender struct {
	mu   sync.Mutex
	sent []int64
}

func (f *fakeSender) SendMessage(_ context.Context, chatID int64, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, chatID)
	return nil
}

// fakeRecords swallows broadcast audit rows.
type fakeRecords struct{}

func (f *fakeRecords) Save(_ context.Context, _ *broadcast.Record) error { return nil }

func (f *fakeRecords) List(_ context.Context, _ int) ([]*broadcast.Record, error) { return nil, nil }

// ─────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRegistry(t *testing.T) *university.Registry {
	t.Helper()
	reg, err := university.NewRegistry([]university.University{
		{ID: "unilag", Name: "University of Lagos (UNILAG)", Method: scoring.MethodScoreAdmissionCredentials},
		{ID: "futa", Name: "Federal University of Technology, Akure (FUTA)", Method: scoring.MethodInstitutionScreening},
	})
	require.NoError(t, err)
	return reg
}

// hasButton reports whether any inline button carries the given
// callback data or URL fragment.
func hasButton(view *presenter.View, fragment string) bool {
	if view == nil || view.Keyboard == nil {
		return false
	}
	for _, row := range view.Keyboard.Rows {
		for _, btn := range row {
			if btn.CallbackData == fragment || btn.URL == fragment {
				return true
			}
		}
	}
	return false
}

func newStartHandler(points ledger.Ledger, claims user.ReferralRepository) *StartHandler {
	refs := referral.NewService(&fakeUsers{}, claims)
	return NewStartHandler(refs, points, presenter.NewReportPresenter(), 10, 5, discardLogger())
}

// ─────────────────────────────────────────────
// /start
// ─────────────────────────────────────────────

func TestStartHandlerWelcomesNewUser(t *testing.T) {
	h := newStartHandler(newFakeLedger(), &fakeClaims{})

	resp, err := h.Handle(context.Background(), StartRequest{
		TelegramID:     42,
		FirstName:      "Ada",
		JustRegistered: true,
	})
	require.NoError(t, err)
	require.NotNil(t, resp.View)

	assert.Contains(t, resp.View.Text, "Ada")
	assert.Contains(t, resp.View.Text, "10 points")
	assert.Nil(t, resp.ReferrerNotice)
}

func TestStartHandlerClaimsReferralDeepLink(t *testing.T) {
	claims := &fakeClaims{claimed: true}
	h := newStartHandler(newFakeLedger(), claims)

	resp, err := h.Handle(context.Background(), StartRequest{
		TelegramID:     42,
		FirstName:      "Ada",
		Payload:        "ref_99",
		JustRegistered: true,
	})
	require.NoError(t, err)

	assert.EqualValues(t, 42, claims.gotReferee)
	assert.EqualValues(t, 99, claims.gotReferrer)

	require.NotNil(t, resp.ReferrerNotice, "the referrer must be notified about the bonus")
	assert.EqualValues(t, 99, resp.ReferrerNotice.TelegramID)
	require.NotNil(t, resp.ReferrerNotice.View)
	assert.Contains(t, resp.ReferrerNotice.View.Text, "Ada")
}

func TestStartHandlerIgnoresMalformedPayload(t *testing.T) {
	claims := &fakeClaims{claimed: true}
	h := newStartHandler(newFakeLedger(), claims)

	resp, err := h.Handle(context.Background(), StartRequest{
		TelegramID:     42,
		FirstName:      "Ada",
		Payload:        "not_a_referral",
		JustRegistered: true,
	})
	require.NoError(t, err)

	assert.Nil(t, resp.ReferrerNotice)
	assert.Zero(t, claims.gotReferrer, "a malformed payload must never reach the claim")
}

func TestStartHandlerSurvivesClaimFailure(t *testing.T) {
	claims := &fakeClaims{err: errors.New("db down")}
	h := newStartHandler(newFakeLedger(), claims)

	resp, err := h.Handle(context.Background(), StartRequest{
		TelegramID:     42,
		FirstName:      "Ada",
		Payload:        "ref_99",
		JustRegistered: true,
	})
	require.NoError(t, err, "the welcome must go out even when the claim fails")

	require.NotNil(t, resp.View)
	assert.Nil(t, resp.ReferrerNotice)
}

func TestStartHandlerWelcomesBack(t *testing.T) {
	points := newFakeLedger()
	points.set(42, 7)
	h := newStartHandler(points, &fakeClaims{})

	resp, err := h.Handle(context.Background(), StartRequest{
		TelegramID: 42,
		FirstName:  "Ada",
	})
	require.NoError(t, err)

	assert.Contains(t, resp.View.Text, "7")
	assert.Nil(t, resp.ReferrerNotice)
}

// ─────────────────────────────────────────────
// /calculate and text answers
// ─────────────────────────────────────────────

func TestCalculateHandlerShowsPicker(t *testing.T) {
	h := NewCalculateHandler(testRegistry(t), presenter.NewFlowPresenter())

	resp, err := h.Handle(context.Background(), CalculateRequest{TelegramID: 42})
	require.NoError(t, err)

	assert.Contains(t, resp.View.Text, "Choose your institution")
	assert.True(t, hasButton(resp.View, "calc:uni:unilag"))
	assert.True(t, hasButton(resp.View, presenter.CallbackStandardCalc))
}

func TestAnswerHandlerWithoutSession(t *testing.T) {
	engine := conversation.NewEngine(
		conversation.NewStore(time.Minute),
		testRegistry(t),
		newFakeLedger(),
		conversation.DefaultCalculationCost,
	)
	h := NewAnswerHandler(engine, presenter.NewFlowPresenter())

	resp, err := h.Handle(context.Background(), AnswerRequest{TelegramID: 42, Text: "300"})
	require.NoError(t, err)

	require.NotNil(t, resp.View)
	assert.True(t, hasButton(resp.View, "cmd:calculate"), "the hint must point back to the menu")
}

// ─────────────────────────────────────────────
// /balance and /history
// ─────────────────────────────────────────────

func TestBalanceHandlerReportsBalanceAndInvites(t *testing.T) {
	points := newFakeLedger()
	points.set(42, 42)
	refs := referral.NewService(&fakeUsers{referred: 3}, &fakeClaims{})

	h := NewBalanceHandler(points, refs, presenter.NewReportPresenter(), 5)

	resp, err := h.Handle(context.Background(), BalanceRequest{TelegramID: 42})
	require.NoError(t, err)

	assert.Contains(t, resp.View.Text, "42")
	assert.Contains(t, resp.View.Text, "3")
}

func TestBalanceHandlerZeroForUnknownUser(t *testing.T) {
	refs := referral.NewService(&fakeUsers{}, &fakeClaims{})
	h := NewBalanceHandler(newFakeLedger(), refs, presenter.NewReportPresenter(), 5)

	resp, err := h.Handle(context.Background(), BalanceRequest{TelegramID: 42})
	require.NoError(t, err)

	assert.Contains(t, resp.View.Text, "0")
}

func TestHistoryHandlerFormatsLedger(t *testing.T) {
	points := newFakeLedger()
	_, err := points.Apply(context.Background(), &ledger.Transaction{
		UserID:    42,
		Delta:     10,
		Reason:    ledger.ReasonSignupBonus,
		CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	_, err = points.Apply(context.Background(), &ledger.Transaction{
		UserID:    42,
		Delta:     -1,
		Reason:    ledger.CalculationReason("unilag", "score_admission_credentials"),
		CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	h := NewHistoryHandler(query.NewGetHistoryHandler(points), presenter.NewReportPresenter())

	resp, err := h.Handle(context.Background(), HistoryRequest{TelegramID: 42})
	require.NoError(t, err)

	assert.Contains(t, resp.View.Text, "+10")
	assert.Contains(t, resp.View.Text, "-1")
	assert.Contains(t, resp.View.Text, "UNILAG")
}

// ─────────────────────────────────────────────
// /refer
// ─────────────────────────────────────────────

func TestReferHandlerBuildsLinks(t *testing.T) {
	refs := referral.NewService(&fakeUsers{referred: 2}, &fakeClaims{})
	h := NewReferHandler(refs, presenter.NewReportPresenter(), 5)

	resp, err := h.Handle(context.Background(), ReferRequest{TelegramID: 42, BotUsername: "TestBot"})
	require.NoError(t, err)

	assert.Contains(t, resp.View.Text, "https://t.me/TestBot?start=ref_42")

	require.NotNil(t, resp.View.Keyboard)
	hasShare := false
	for _, row := range resp.View.Keyboard.Rows {
		for _, btn := range row {
			if btn.URL != "" {
				assert.Contains(t, btn.URL, "https://t.me/share/url?")
				hasShare = true
			}
		}
	}
	assert.True(t, hasShare, "the invite card must carry a share button")
}

// ─────────────────────────────────────────────
// /stats and /broadcast
// ─────────────────────────────────────────────

func TestStatsHandlerFormatsSummary(t *testing.T) {
	stats := query.NewGetUsageStatsHandler(&fakeUsers{total: 57}, newFakeLedger(), nil, nil)
	h := NewStatsHandler(stats, presenter.NewReportPresenter())

	resp, err := h.Handle(context.Background(), StatsRequest{TelegramID: 1})
	require.NoError(t, err)

	assert.Contains(t, resp.View.Text, "57")
}

func TestBroadcastHandlerShowsUsageWithoutText(t *testing.T) {
	svc := broadcast.NewService(&fakeUsers{}, &fakeSender{}, &fakeRecords{}, discardLogger(), 2)
	h := NewBroadcastHandler(svc, presenter.NewReportPresenter())

	resp, err := h.Handle(context.Background(), BroadcastRequest{TelegramID: 1, Text: "   "})
	require.NoError(t, err)

	assert.Contains(t, resp.View.Text, "/broadcast")
}

func TestBroadcastHandlerSendsAndSummarizes(t *testing.T) {
	sender := &fakeSender{}
	users := &fakeUsers{ids: []user.TelegramID{1, 2, 3}}
	svc := broadcast.NewService(users, sender, &fakeRecords{}, discardLogger(), 2)
	h := NewBroadcastHandler(svc, presenter.NewReportPresenter())

	resp, err := h.Handle(context.Background(), BroadcastRequest{TelegramID: 1, Text: "maintenance tonight"})
	require.NoError(t, err)

	assert.Len(t, sender.sent, 3)
	assert.Contains(t, resp.View.Text, "3")
}
