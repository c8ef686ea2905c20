// Package referral contains the referral program: deep-link payloads and
// the one-time claim that rewards the referrer with bonus points.
package referral

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/admit-hub/admission-calc-bot/internal/domain/user"
)

// ══════════════════════════════════════════════════════════════════════════════
// DEEP LINK PAYLOAD
// Referral links look like https://t.me/<bot>?start=ref_<telegram id>.
// Telegram delivers the part after "?start=" as the /start payload.
// ══════════════════════════════════════════════════════════════════════════════

// Prefix marks a referral payload in /start.
const Prefix = "ref_"

// Link builds the referral deep link for a user.
func Link(botUsername string, referrer user.TelegramID) string {
	return fmt.Sprintf("https://t.me/%s?start=%s%d", botUsername, Prefix, referrer.Int64())
}

// ParsePayload extracts the referrer id from a /start payload.
// ok == false for anything that is not a well-formed referral payload.
func ParsePayload(payload string) (user.TelegramID, bool) {
	raw, found := strings.CutPrefix(strings.TrimSpace(payload), Prefix)
	if !found {
		return 0, false
	}

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return user.TelegramID(id), true
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVICE
// ══════════════════════════════════════════════════════════════════════════════

// Service processes referral claims.
type Service struct {
	users  user.Repository
	claims user.ReferralRepository
}

// NewService creates a referral service.
func NewService(users user.Repository, claims user.ReferralRepository) *Service {
	return &Service{
		users:  users,
		claims: claims,
	}
}

// Claim marks referee as referred by referrer and credits the bonus.
// A user is credited for a given referee at most once: the underlying
// check-and-set is atomic, so concurrent claims produce a single credit.
//
// Self referrals and malformed ids are ignored without error, the
// referee simply proceeds as an ordinary user.
func (s *Service) Claim(ctx context.Context, referee, referrer user.TelegramID) (claimed bool, err error) {
	if !referee.IsValid() || !referrer.IsValid() || referee == referrer {
		return false, nil
	}

	claimed, err = s.claims.Claim(ctx, referee, referrer)
	if err != nil {
		return false, fmt.Errorf("referral: failed to claim: %w", err)
	}
	return claimed, nil
}

// CountFor returns how many users the referrer has brought in.
func (s *Service) CountFor(ctx context.Context, referrer user.TelegramID) (int, error) {
	n, err := s.users.CountReferredBy(ctx, referrer)
	if err != nil {
		return 0, fmt.Errorf("referral: failed to count referrals: %w", err)
	}
	return n, nil
}
