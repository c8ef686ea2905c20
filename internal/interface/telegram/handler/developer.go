package handler

import (
	"context"

	"github.com/admit-hub/admission-calc-bot/internal/interface/telegram/presenter"
)

// ══════════════════════════════════════════════════════════════════════════════
// DEVELOPER HANDLER
// Handles /developer - the contact card for whoever runs the bot.
// ══════════════════════════════════════════════════════════════════════════════

// DeveloperHandler serves the /developer command.
type DeveloperHandler struct {
	reports *presenter.ReportPresenter
}

// NewDeveloperHandler wires up the handler.
func NewDeveloperHandler(reports *presenter.ReportPresenter) *DeveloperHandler {
	return &DeveloperHandler{reports: reports}
}

// DeveloperResponse is what goes back to the chat.
type DeveloperResponse struct {
	// View is the contact card.
	View *presenter.View
}

// Handle runs the /developer command.
func (h *DeveloperHandler) Handle(_ context.Context) (*DeveloperResponse, error) {
	return &DeveloperResponse{View: h.reports.FormatDeveloper()}, nil
}
