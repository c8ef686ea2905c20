package handler

import (
	"context"
	"errors"
	"strings"

	"github.com/admit-hub/admission-calc-bot/internal/application/broadcast"
	"github.com/admit-hub/admission-calc-bot/internal/domain/shared"
	"github.com/admit-hub/admission-calc-bot/internal/domain/user"
	"github.com/admit-hub/admission-calc-bot/internal/interface/telegram/presenter"
)

// ══════════════════════════════════════════════════════════════════════════════
// BROADCAST HANDLER
// Handles /broadcast <text> - an announcement to every user. Admin
// gating happens in the bot before dispatch. Delivery failures are
// counted in the summary, never surfaced one by one.
// ══════════════════════════════════════════════════════════════════════════════

// BroadcastHandler serves the /broadcast command.
type BroadcastHandler struct {
	broadcaster *broadcast.Service
	reports     *presenter.ReportPresenter
}

// NewBroadcastHandler wires up the handler.
func NewBroadcastHandler(broadcaster *broadcast.Service, reports *presenter.ReportPresenter) *BroadcastHandler {
	return &BroadcastHandler{
		broadcaster: broadcaster,
		reports:     reports,
	}
}

// BroadcastRequest is the parsed /broadcast command.
type BroadcastRequest struct {
	// TelegramID is the admin's Telegram ID.
	TelegramID int64

	// Text is everything after the command name.
	Text string
}

// BroadcastResponse is what goes back to the chat.
type BroadcastResponse struct {
	// View is the delivery summary, or the usage hint when the
	// message text is missing.
	View *presenter.View
}

// Handle runs the /broadcast command.
func (h *BroadcastHandler) Handle(ctx context.Context, req BroadcastRequest) (*BroadcastResponse, error) {
	if strings.TrimSpace(req.Text) == "" {
		return &BroadcastResponse{View: h.reports.FormatBroadcastUsage()}, nil
	}

	result, err := h.broadcaster.Send(ctx, user.TelegramID(req.TelegramID), req.Text)
	if err != nil {
		if errors.Is(err, shared.ErrBroadcastEmpty) {
			return &BroadcastResponse{View: h.reports.FormatBroadcastUsage()}, nil
		}
		return nil, err
	}

	return &BroadcastResponse{
		View: h.reports.FormatBroadcastSummary(result),
	}, nil
}
