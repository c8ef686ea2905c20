package handler

import (
	"context"

	"github.com/admit-hub/admission-calc-bot/internal/interface/telegram/presenter"
)

// ══════════════════════════════════════════════════════════════════════════════
// HELP HANDLER
// Handles /help - the static command reference.
// ══════════════════════════════════════════════════════════════════════════════

// HelpHandler serves the /help command.
type HelpHandler struct {
	reports *presenter.ReportPresenter
}

// NewHelpHandler wires up the handler.
func NewHelpHandler(reports *presenter.ReportPresenter) *HelpHandler {
	return &HelpHandler{reports: reports}
}

// HelpRequest is the parsed /help command.
type HelpRequest struct {
	// TelegramID identifies the requesting user.
	TelegramID int64
}

// HelpResponse is what goes back to the chat.
type HelpResponse struct {
	// View is the command reference.
	View *presenter.View
}

// Handle runs the /help command.
func (h *HelpHandler) Handle(_ context.Context, _ HelpRequest) (*HelpResponse, error) {
	return &HelpResponse{View: h.reports.FormatHelp()}, nil
}
