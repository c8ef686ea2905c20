package user

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUser(t *testing.T) {
	u, err := NewUser(NewUserParams{
		TelegramID: 42,
		Username:   " @tunde ",
		FirstName:  "  Tunde ",
	})
	require.NoError(t, err)

	assert.Equal(t, TelegramID(42), u.TelegramID)
	assert.Equal(t, "tunde", u.Username)
	assert.Equal(t, "Tunde", u.FirstName)
	assert.False(t, u.Referred)
	assert.Nil(t, u.ReferredBy)
	assert.False(t, u.CreatedAt.IsZero())
}

func TestNewUserRejectsInvalidTelegramID(t *testing.T) {
	_, err := NewUser(NewUserParams{TelegramID: 0})
	assert.ErrorIs(t, err, ErrInvalidTelegramID)

	_, err = NewUser(NewUserParams{TelegramID: -1})
	assert.ErrorIs(t, err, ErrInvalidTelegramID)
}

func TestDisplayName(t *testing.T) {
	u := &User{TelegramID: 42, FirstName: "Tunde", Username: "tunde"}
	assert.Equal(t, "Tunde", u.DisplayName())

	u = &User{TelegramID: 42, Username: "tunde"}
	assert.Equal(t, "@tunde", u.DisplayName())

	u = &User{TelegramID: 42}
	assert.Equal(t, "user 42", u.DisplayName())
}

func TestMarkReferredBy(t *testing.T) {
	u, err := NewUser(NewUserParams{TelegramID: 42})
	require.NoError(t, err)

	require.NoError(t, u.MarkReferredBy(7))

	assert.True(t, u.Referred)
	require.NotNil(t, u.ReferredBy)
	assert.Equal(t, TelegramID(7), *u.ReferredBy)
}

func TestMarkReferredByHappensAtMostOnce(t *testing.T) {
	u, err := NewUser(NewUserParams{TelegramID: 42})
	require.NoError(t, err)

	require.NoError(t, u.MarkReferredBy(7))

	err = u.MarkReferredBy(9)
	assert.ErrorIs(t, err, ErrAlreadyReferred)

	// Первая отметка не затирается.
	assert.Equal(t, TelegramID(7), *u.ReferredBy)
}

func TestMarkReferredByRejectsSelf(t *testing.T) {
	u, err := NewUser(NewUserParams{TelegramID: 42})
	require.NoError(t, err)

	err = u.MarkReferredBy(42)
	assert.ErrorIs(t, err, ErrSelfReferral)
	assert.False(t, u.Referred)
}

func TestMarkReferredByRejectsInvalidReferrer(t *testing.T) {
	u, err := NewUser(NewUserParams{TelegramID: 42})
	require.NoError(t, err)

	err = u.MarkReferredBy(0)
	assert.ErrorIs(t, err, ErrInvalidTelegramID)
	assert.False(t, u.Referred)
}
