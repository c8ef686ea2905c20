package query

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/admit-hub/admission-calc-bot/internal/domain/ledger"
	"github.com/admit-hub/admission-calc-bot/internal/domain/shared"
)

// stubLedger serves canned balances and history for query tests.
type stubLedger struct {
	ledger.Ledger

	balance    ledger.Points
	balanceErr error
	history    []*ledger.Transaction
	historyErr error
	gotLimit   int
}

func (s *stubLedger) Balance(context.Context, ledger.UserID) (ledger.Points, error) {
	if s.balanceErr != nil {
		return 0, s.balanceErr
	}
	return s.balance, nil
}

func (s *stubLedger) History(_ context.Context, _ ledger.UserID, limit int) ([]*ledger.Transaction, error) {
	s.gotLimit = limit
	if s.historyErr != nil {
		return nil, s.historyErr
	}
	if limit < len(s.history) {
		return s.history[:limit], nil
	}
	return s.history, nil
}

func tx(delta int64, reason ledger.Reason, at time.Time) *ledger.Transaction {
	return &ledger.Transaction{
		ID:        "tx-" + reason.String(),
		UserID:    42,
		Delta:     ledger.Points(delta),
		Reason:    reason,
		CreatedAt: at,
	}
}

func TestGetHistoryReturnsEntriesWithBalance(t *testing.T) {
	now := time.Now().UTC()
	store := &stubLedger{
		balance: 14,
		history: []*ledger.Transaction{
			tx(-1, ledger.CalculationReason("unilag", "score_plus_admission_test_plus_credentials"), now),
			tx(-1, ledger.CalculationReason("", "score_only"), now.Add(-time.Hour)),
			tx(5, ledger.ReasonReferralBonus, now.Add(-2*time.Hour)),
			tx(10, ledger.ReasonSignupBonus, now.Add(-3*time.Hour)),
		},
	}
	handler := NewGetHistoryHandler(store)

	result, err := handler.Handle(context.Background(), GetHistoryQuery{UserID: 42})
	require.NoError(t, err)

	assert.Equal(t, int64(42), result.UserID)
	assert.Equal(t, int64(14), result.Balance)
	require.Len(t, result.Entries, 4)

	first := result.Entries[0]
	assert.Equal(t, int64(-1), first.Delta)
	assert.False(t, first.Credit)
	assert.Equal(t, "unilag", first.Institution)
	assert.Equal(t, "score_plus_admission_test_plus_credentials", first.Method)

	standard := result.Entries[1]
	assert.Empty(t, standard.Institution)
	assert.Equal(t, "score_only", standard.Method)

	referral := result.Entries[2]
	assert.True(t, referral.Credit)
	assert.Empty(t, referral.Institution)
	assert.Empty(t, referral.Method)
	assert.Equal(t, "referral_bonus", referral.Reason)

	assert.False(t, result.GeneratedAt.IsZero())
}

func TestGetHistoryUnknownUserHasZeroBalance(t *testing.T) {
	store := &stubLedger{balanceErr: ledger.ErrBalanceNotFound}
	handler := NewGetHistoryHandler(store)

	result, err := handler.Handle(context.Background(), GetHistoryQuery{UserID: 7})
	require.NoError(t, err)

	assert.Equal(t, int64(0), result.Balance)
	assert.Empty(t, result.Entries)
}

func TestGetHistoryNormalizesLimit(t *testing.T) {
	cases := map[string]struct {
		limit int
		want  int
	}{
		"default": {limit: 0, want: ledger.DefaultHistoryLimit},
		"custom":  {limit: 5, want: 5},
		"capped":  {limit: 1000, want: MaxHistoryLimit},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			store := &stubLedger{}
			handler := NewGetHistoryHandler(store)

			_, err := handler.Handle(context.Background(), GetHistoryQuery{UserID: 42, Limit: tc.limit})
			require.NoError(t, err)
			assert.Equal(t, tc.want, store.gotLimit)
		})
	}
}

func TestGetHistoryRejectsBadQuery(t *testing.T) {
	handler := NewGetHistoryHandler(&stubLedger{})

	_, err := handler.Handle(context.Background(), GetHistoryQuery{UserID: 0})
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = handler.Handle(context.Background(), GetHistoryQuery{UserID: 42, Limit: -1})
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestGetHistoryWrapsStorageFailure(t *testing.T) {
	store := &stubLedger{historyErr: errors.New("connection reset")}
	handler := NewGetHistoryHandler(store)

	_, err := handler.Handle(context.Background(), GetHistoryQuery{UserID: 42})
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrExternalService)
}

func TestFormatDelta(t *testing.T) {
	assert.Equal(t, "+10", FormatDelta(10))
	assert.Equal(t, "-1", FormatDelta(-1))
}

func TestFormatEntryReason(t *testing.T) {
	assert.Equal(t, "Signup bonus", FormatEntryReason(HistoryEntryDTO{Reason: "signup_bonus"}))
	assert.Equal(t, "Referral bonus", FormatEntryReason(HistoryEntryDTO{Reason: "referral_bonus"}))
	assert.Equal(t, "Calculation (UNILAG)", FormatEntryReason(HistoryEntryDTO{
		Reason:      "calculation:unilag:score_plus_admission_test",
		Institution: "unilag",
		Method:      "score_plus_admission_test",
	}))
	assert.Equal(t, "Calculation", FormatEntryReason(HistoryEntryDTO{
		Reason: "calculation:-:score_only",
		Method: "score_only",
	}))
	assert.Equal(t, "manual_adjustment", FormatEntryReason(HistoryEntryDTO{Reason: "manual_adjustment"}))
}
