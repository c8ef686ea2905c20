package referral

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/admit-hub/admission-calc-bot/internal/domain/user"
)

// fakeClaims implements user.ReferralRepository with check-and-set
// semantics: the first claim for a referee wins, later ones return false.
type fakeClaims struct {
	mu      sync.Mutex
	known   map[user.TelegramID]bool
	claimed map[user.TelegramID]user.TelegramID
	credits int
}

func newFakeClaims(knownUsers ...user.TelegramID) *fakeClaims {
	known := make(map[user.TelegramID]bool, len(knownUsers))
	for _, id := range knownUsers {
		known[id] = true
	}
	return &fakeClaims{
		known:   known,
		claimed: make(map[user.TelegramID]user.TelegramID),
	}
}

func (f *fakeClaims) Claim(_ context.Context, referee, referrer user.TelegramID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.known[referrer] || !f.known[referee] {
		return false, nil
	}
	if _, done := f.claimed[referee]; done {
		return false, nil
	}

	f.claimed[referee] = referrer
	f.credits++
	return true, nil
}

type fakeUsers struct {
	user.Repository
	referredBy map[user.TelegramID]int
}

func (f *fakeUsers) CountReferredBy(_ context.Context, referrer user.TelegramID) (int, error) {
	return f.referredBy[referrer], nil
}

func TestClaimCreditsReferrerOnce(t *testing.T) {
	claims := newFakeClaims(7, 42)
	svc := NewService(&fakeUsers{}, claims)

	claimed, err := svc.Claim(context.Background(), 42, 7)
	require.NoError(t, err)
	assert.True(t, claimed)

	// The same referee cannot be claimed again, by anyone.
	claimed, err = svc.Claim(context.Background(), 42, 7)
	require.NoError(t, err)
	assert.False(t, claimed)

	claims.known[9] = true
	claimed, err = svc.Claim(context.Background(), 42, 9)
	require.NoError(t, err)
	assert.False(t, claimed)

	assert.Equal(t, 1, claims.credits)
	assert.Equal(t, user.TelegramID(7), claims.claimed[42])
}

func TestConcurrentClaimsProduceSingleCredit(t *testing.T) {
	claims := newFakeClaims(7, 42)
	svc := NewService(&fakeUsers{}, claims)

	const attempts = 32

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		succeed int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, err := svc.Claim(context.Background(), 42, 7)
			assert.NoError(t, err)
			if claimed {
				mu.Lock()
				succeed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeed)
	assert.Equal(t, 1, claims.credits)
}

func TestSelfClaimIsSilentlyIgnored(t *testing.T) {
	claims := newFakeClaims(42)
	svc := NewService(&fakeUsers{}, claims)

	claimed, err := svc.Claim(context.Background(), 42, 42)
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.Zero(t, claims.credits)
}

func TestClaimIgnoresInvalidIDs(t *testing.T) {
	claims := newFakeClaims(7, 42)
	svc := NewService(&fakeUsers{}, claims)

	claimed, err := svc.Claim(context.Background(), 0, 7)
	require.NoError(t, err)
	assert.False(t, claimed)

	claimed, err = svc.Claim(context.Background(), 42, -1)
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestClaimUnknownReferrer(t *testing.T) {
	claims := newFakeClaims(42)
	svc := NewService(&fakeUsers{}, claims)

	claimed, err := svc.Claim(context.Background(), 42, 999)
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.Zero(t, claims.credits)
}

func TestParsePayload(t *testing.T) {
	id, ok := ParsePayload("ref_123")
	require.True(t, ok)
	assert.Equal(t, user.TelegramID(123), id)

	id, ok = ParsePayload("  ref_7 ")
	require.True(t, ok)
	assert.Equal(t, user.TelegramID(7), id)

	for _, payload := range []string{"", "123", "ref_", "ref_abc", "ref_-5", "ref_0", "REF_123"} {
		_, ok := ParsePayload(payload)
		assert.Falsef(t, ok, "payload %q", payload)
	}
}

func TestLink(t *testing.T) {
	assert.Equal(t,
		"https://t.me/admitcalcbot?start=ref_42",
		Link("admitcalcbot", 42))
}

func TestCountFor(t *testing.T) {
	users := &fakeUsers{referredBy: map[user.TelegramID]int{7: 3}}
	svc := NewService(users, newFakeClaims())

	n, err := svc.CountFor(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}
