// Package handler implements the bot's command handlers.
// A handler takes a parsed request, calls the application layer and
// hands a response struct back to the router for presentation.
package handler

import (
	"context"
	"errors"
	"log/slog"

	"github.com/admit-hub/admission-calc-bot/internal/application/referral"
	"github.com/admit-hub/admission-calc-bot/internal/domain/ledger"
	"github.com/admit-hub/admission-calc-bot/internal/domain/user"
	"github.com/admit-hub/admission-calc-bot/internal/interface/telegram/presenter"
)

// ══════════════════════════════════════════════════════════════════════════════
// START HANDLER
// Handles /start - the first contact with the bot. Registration itself
// already happened in the middleware chain; this handler only decides
// which welcome to show and settles a referral deep link if one came
// along.
// ══════════════════════════════════════════════════════════════════════════════

// StartHandler serves the /start command.
type StartHandler struct {
	referrals     *referral.Service
	points        ledger.Ledger
	reports       *presenter.ReportPresenter
	signupBonus   ledger.Points
	referralBonus ledger.Points
	logger        *slog.Logger
}

// NewStartHandler wires up the handler.
func NewStartHandler(
	referrals *referral.Service,
	points ledger.Ledger,
	reports *presenter.ReportPresenter,
	signupBonus ledger.Points,
	referralBonus ledger.Points,
	logger *slog.Logger,
) *StartHandler {
	if logger == nil {
		logger = slog.Default()
	}

	return &StartHandler{
		referrals:     referrals,
		points:        points,
		reports:       reports,
		signupBonus:   signupBonus,
		referralBonus: referralBonus,
		logger:        logger,
	}
}

// StartRequest is the parsed /start command.
type StartRequest struct {
	// TelegramID identifies the requesting user.
	TelegramID int64

	// FirstName is the first name Telegram reports for the account.
	FirstName string

	// Payload is the deep link parameter (e.g. /start ref_123456).
	Payload string

	// JustRegistered is true when the registration middleware created
	// the user on this very update.
	JustRegistered bool
}

// ReferrerNotice is a side message for the user whose link was used.
type ReferrerNotice struct {
	// TelegramID of the referrer to notify.
	TelegramID int64

	// View is the notification to send.
	View *presenter.View
}

// StartResponse is what goes back to the chat.
type StartResponse struct {
	// View is the welcome message for the user who sent /start.
	View *presenter.View

	// ReferrerNotice is set when a referral was claimed and the
	// referrer should hear about the bonus. Nil otherwise.
	ReferrerNotice *ReferrerNotice
}

// Handle runs the /start command.
func (h *StartHandler) Handle(ctx context.Context, req StartRequest) (*StartResponse, error) {
	viaReferral := false
	var notice *ReferrerNotice

	// A deep link payload may carry a referral mark. The claim is
	// atomic and at most once per user, so replays and races settle
	// inside the repository.
	if req.Payload != "" {
		if referrer, ok := referral.ParsePayload(req.Payload); ok {
			claimed, err := h.referrals.Claim(ctx, user.TelegramID(req.TelegramID), referrer)
			switch {
			case err != nil:
				// The welcome must go out even if the claim failed.
				h.logger.Warn("referral claim failed",
					"referee", req.TelegramID,
					"referrer", referrer.Int64(),
					"error", err,
				)
			case claimed:
				viaReferral = true
				notice = &ReferrerNotice{
					TelegramID: referrer.Int64(),
					View:       h.reports.FormatReferrerCredit(req.FirstName, h.referralBonus),
				}
			}
		}
	}

	if req.JustRegistered {
		return &StartResponse{
			View:           h.reports.FormatWelcomeNew(req.FirstName, h.signupBonus, viaReferral),
			ReferrerNotice: notice,
		}, nil
	}

	balance, err := h.points.Balance(ctx, ledger.UserID(req.TelegramID))
	if err != nil {
		if !errors.Is(err, ledger.ErrBalanceNotFound) {
			return nil, err
		}
		balance = 0
	}

	return &StartResponse{
		View:           h.reports.FormatWelcomeBack(req.FirstName, balance),
		ReferrerNotice: notice,
	}, nil
}
