package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTransaction(t *testing.T) {
	tx, err := NewTransaction(NewTransactionParams{
		ID:     "3f1b2a90-0000-0000-0000-000000000001",
		UserID: 42,
		Delta:  -1,
		Reason: CalculationReason("unilag", "score_plus_admission_test_plus_credentials"),
	})
	require.NoError(t, err)

	assert.Equal(t, UserID(42), tx.UserID)
	assert.Equal(t, Points(-1), tx.Delta)
	assert.False(t, tx.IsCredit())
	assert.False(t, tx.CreatedAt.IsZero())
}

func TestNewTransactionValidates(t *testing.T) {
	valid := NewTransactionParams{
		ID:     "id",
		UserID: 42,
		Delta:  5,
		Reason: ReasonReferralBonus,
	}

	p := valid
	p.ID = ""
	_, err := NewTransaction(p)
	assert.ErrorIs(t, err, ErrInvalidTransactionID)

	p = valid
	p.UserID = 0
	_, err = NewTransaction(p)
	assert.ErrorIs(t, err, ErrInvalidUserID)

	p = valid
	p.Delta = 0
	_, err = NewTransaction(p)
	assert.ErrorIs(t, err, ErrZeroDelta)

	p = valid
	p.Reason = "   "
	_, err = NewTransaction(p)
	assert.ErrorIs(t, err, ErrEmptyReason)
}

func TestCreditAndDebit(t *testing.T) {
	credit, err := NewTransaction(NewTransactionParams{
		ID: "a", UserID: 1, Delta: 10, Reason: ReasonSignupBonus,
	})
	require.NoError(t, err)
	assert.True(t, credit.IsCredit())

	debit, err := NewTransaction(NewTransactionParams{
		ID: "b", UserID: 1, Delta: -1, Reason: CalculationReason("", "score_only"),
	})
	require.NoError(t, err)
	assert.False(t, debit.IsCredit())
}

func TestCalculationReason(t *testing.T) {
	r := CalculationReason("unilag", "institution_specific_screening")
	assert.Equal(t, Reason("calculation:unilag:institution_specific_screening"), r)
	assert.True(t, r.IsCalculation())

	// Стандартный расчёт без вуза получает заполнитель.
	r = CalculationReason("", "score_only")
	assert.Equal(t, Reason("calculation:-:score_only"), r)
	assert.True(t, r.IsCalculation())

	assert.False(t, ReasonSignupBonus.IsCalculation())
	assert.False(t, ReasonReferralBonus.IsCalculation())
}

func TestCalculationParts(t *testing.T) {
	inst, method, ok := CalculationReason("futa", "institution_specific_screening").CalculationParts()
	require.True(t, ok)
	assert.Equal(t, "futa", inst)
	assert.Equal(t, "institution_specific_screening", method)

	inst, method, ok = CalculationReason("", "score_only").CalculationParts()
	require.True(t, ok)
	assert.Equal(t, "", inst)
	assert.Equal(t, "score_only", method)

	_, _, ok = ReasonSignupBonus.CalculationParts()
	assert.False(t, ok)
}

func TestPointsArithmetic(t *testing.T) {
	var balance Points = 10

	balance = balance.Add(-1)
	assert.Equal(t, Points(9), balance)

	balance = balance.Add(5)
	assert.Equal(t, Points(14), balance)

	assert.True(t, balance.IsPositive())
	assert.False(t, Points(0).IsPositive())
	assert.False(t, Points(-2).IsPositive())
}
