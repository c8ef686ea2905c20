package handler

import (
	"context"
	"net/url"

	"github.com/admit-hub/admission-calc-bot/internal/application/referral"
	"github.com/admit-hub/admission-calc-bot/internal/domain/ledger"
	"github.com/admit-hub/admission-calc-bot/internal/domain/user"
	"github.com/admit-hub/admission-calc-bot/internal/interface/telegram/presenter"
)

// ══════════════════════════════════════════════════════════════════════════════
// REFER HANDLER
// Handles /refer - the personal invite link. Every friend who joins
// through it earns the referrer a points bonus.
// ══════════════════════════════════════════════════════════════════════════════

// shareText accompanies the invite link in Telegram's share dialog.
const shareText = "Calculate your university admission score right in Telegram!"

// ReferHandler serves the /refer command.
type ReferHandler struct {
	referrals     *referral.Service
	reports       *presenter.ReportPresenter
	referralBonus ledger.Points
}

// NewReferHandler wires up the handler.
func NewReferHandler(
	referrals *referral.Service,
	reports *presenter.ReportPresenter,
	referralBonus ledger.Points,
) *ReferHandler {
	return &ReferHandler{
		referrals:     referrals,
		reports:       reports,
		referralBonus: referralBonus,
	}
}

// ReferRequest is the parsed /refer command.
type ReferRequest struct {
	// TelegramID identifies the requesting user.
	TelegramID int64

	// BotUsername is the bot's own username (without @), needed to
	// build the deep link.
	BotUsername string
}

// ReferResponse is what goes back to the chat.
type ReferResponse struct {
	// View is the invite card with the personal link.
	View *presenter.View
}

// Handle runs the /refer command.
func (h *ReferHandler) Handle(ctx context.Context, req ReferRequest) (*ReferResponse, error) {
	invited, err := h.referrals.CountFor(ctx, user.TelegramID(req.TelegramID))
	if err != nil {
		return nil, err
	}

	link := referral.Link(req.BotUsername, user.TelegramID(req.TelegramID))

	return &ReferResponse{
		View: h.reports.FormatReferral(link, buildShareURL(link), invited, h.referralBonus),
	}, nil
}

// buildShareURL wraps the invite link into Telegram's share dialog URL.
func buildShareURL(link string) string {
	values := url.Values{}
	values.Set("url", link)
	values.Set("text", shareText)

	return "https://t.me/share/url?" + values.Encode()
}
