package handler

import (
	"context"
	"errors"

	"github.com/admit-hub/admission-calc-bot/internal/application/referral"
	"github.com/admit-hub/admission-calc-bot/internal/domain/ledger"
	"github.com/admit-hub/admission-calc-bot/internal/domain/user"
	"github.com/admit-hub/admission-calc-bot/internal/interface/telegram/presenter"
)

// ══════════════════════════════════════════════════════════════════════════════
// BALANCE HANDLER
// Handles /balance - current points plus how to earn more.
// ══════════════════════════════════════════════════════════════════════════════

// BalanceHandler serves the /balance command.
type BalanceHandler struct {
	points        ledger.Ledger
	referrals     *referral.Service
	reports       *presenter.ReportPresenter
	referralBonus ledger.Points
}

// NewBalanceHandler wires up the handler.
func NewBalanceHandler(
	points ledger.Ledger,
	referrals *referral.Service,
	reports *presenter.ReportPresenter,
	referralBonus ledger.Points,
) *BalanceHandler {
	return &BalanceHandler{
		points:        points,
		referrals:     referrals,
		reports:       reports,
		referralBonus: referralBonus,
	}
}

// BalanceRequest is the parsed /balance command.
type BalanceRequest struct {
	// TelegramID identifies the requesting user.
	TelegramID int64
}

// BalanceResponse is what goes back to the chat.
type BalanceResponse struct {
	// View is the balance card.
	View *presenter.View
}

// Handle runs the /balance command.
func (h *BalanceHandler) Handle(ctx context.Context, req BalanceRequest) (*BalanceResponse, error) {
	balance, err := h.points.Balance(ctx, ledger.UserID(req.TelegramID))
	if err != nil {
		if !errors.Is(err, ledger.ErrBalanceNotFound) {
			return nil, err
		}
		balance = 0
	}

	invited, err := h.referrals.CountFor(ctx, user.TelegramID(req.TelegramID))
	if err != nil {
		return nil, err
	}

	return &BalanceResponse{
		View: h.reports.FormatBalance(balance, invited, h.referralBonus),
	}, nil
}
