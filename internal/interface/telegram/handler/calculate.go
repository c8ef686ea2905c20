package handler

import (
	"context"

	"github.com/admit-hub/admission-calc-bot/internal/domain/university"
	"github.com/admit-hub/admission-calc-bot/internal/interface/telegram/presenter"
)

// ══════════════════════════════════════════════════════════════════════════════
// CALCULATE HANDLER
// Handles /calculate - the entry point of the score dialog. The command
// itself only shows the institution picker; the dialog is driven by the
// calc:* callbacks and by plain text answers.
// ══════════════════════════════════════════════════════════════════════════════

// CalculateHandler serves the /calculate command.
type CalculateHandler struct {
	registry *university.Registry
	flow     *presenter.FlowPresenter
}

// NewCalculateHandler wires up the handler.
func NewCalculateHandler(registry *university.Registry, flow *presenter.FlowPresenter) *CalculateHandler {
	return &CalculateHandler{
		registry: registry,
		flow:     flow,
	}
}

// CalculateRequest is the parsed /calculate command.
type CalculateRequest struct {
	// TelegramID identifies the requesting user.
	TelegramID int64
}

// CalculateResponse is what goes back to the chat.
type CalculateResponse struct {
	// View is the first page of the institution picker.
	View *presenter.View
}

// Handle runs the /calculate command.
func (h *CalculateHandler) Handle(_ context.Context, _ CalculateRequest) (*CalculateResponse, error) {
	entries, hasMore := h.registry.Page(1, presenter.UniversitiesPerPage)

	return &CalculateResponse{
		View: h.flow.FormatUniversityPicker(entries, 1, hasMore),
	}, nil
}
