// Package callback contains inline button callback handlers.
// Callbacks handle user interactions with inline keyboards.
package callback

import (
	"context"
	"strconv"
	"strings"

	"github.com/admit-hub/admission-calc-bot/internal/application/conversation"
	"github.com/admit-hub/admission-calc-bot/internal/domain/university"
	"github.com/admit-hub/admission-calc-bot/internal/interface/telegram/presenter"
)

// ══════════════════════════════════════════════════════════════════════════════
// CALCULATE FLOW CALLBACKS
// Handles every calc:* button: institution choice, picker pagination,
// the standard fallback and the sitting answer. Buttons edit the
// message they live on, so the chat never fills with stale keyboards.
// ══════════════════════════════════════════════════════════════════════════════

// CalculateHandler handles calc:* callbacks.
type CalculateHandler struct {
	engine   *conversation.Engine
	registry *university.Registry
	flow     *presenter.FlowPresenter
}

// NewCalculateHandler wires up the handler.
func NewCalculateHandler(
	engine *conversation.Engine,
	registry *university.Registry,
	flow *presenter.FlowPresenter,
) *CalculateHandler {
	return &CalculateHandler{
		engine:   engine,
		registry: registry,
		flow:     flow,
	}
}

// CalculateRequest is the parsed callback.
type CalculateRequest struct {
	// TelegramID identifies the user who pressed the button.
	TelegramID int64

	// Data is the raw callback data (calc:...).
	Data string
}

// CalculateResponse contains the response data.
type CalculateResponse struct {
	// AnswerText is the text for the callback answer toast. Empty
	// means a silent acknowledgement.
	AnswerText string

	// Edit replaces the message the button was attached to.
	Edit *presenter.View
}

// Handle processes a calc:* callback.
func (h *CalculateHandler) Handle(ctx context.Context, req CalculateRequest) (*CalculateResponse, error) {
	switch {
	case req.Data == presenter.CallbackStandardCalc:
		return h.startStandard(ctx, req.TelegramID)

	case strings.HasPrefix(req.Data, presenter.CallbackUniversityPrefix):
		rawID := strings.TrimPrefix(req.Data, presenter.CallbackUniversityPrefix)
		return h.startForInstitution(ctx, req.TelegramID, rawID)

	case strings.HasPrefix(req.Data, presenter.CallbackPagePrefix):
		rawPage := strings.TrimPrefix(req.Data, presenter.CallbackPagePrefix)
		return h.showPage(rawPage)

	case req.Data == presenter.CallbackSittingYes:
		return h.answerSitting(ctx, req.TelegramID, "yes")

	case req.Data == presenter.CallbackSittingNo:
		return h.answerSitting(ctx, req.TelegramID, "no")

	default:
		return &CalculateResponse{AnswerText: "Unknown action"}, nil
	}
}

// startStandard begins the standard calculation dialog.
func (h *CalculateHandler) startStandard(ctx context.Context, telegramID int64) (*CalculateResponse, error) {
	outcome, err := h.engine.StartStandard(ctx, telegramID)
	if err != nil {
		return nil, err
	}

	return &CalculateResponse{Edit: h.flow.FormatOutcome(outcome)}, nil
}

// startForInstitution begins the dialog for a picked institution.
// An unknown identifier silently falls back to the standard dialog.
func (h *CalculateHandler) startForInstitution(ctx context.Context, telegramID int64, rawID string) (*CalculateResponse, error) {
	outcome, err := h.engine.StartForInstitution(ctx, telegramID, rawID)
	if err != nil {
		return nil, err
	}

	return &CalculateResponse{Edit: h.flow.FormatOutcome(outcome)}, nil
}

// showPage flips the institution picker to another page.
func (h *CalculateHandler) showPage(rawPage string) (*CalculateResponse, error) {
	page, err := strconv.Atoi(rawPage)
	if err != nil || page < 1 {
		page = 1
	}

	entries, hasMore := h.registry.Page(page, presenter.UniversitiesPerPage)
	if len(entries) == 0 && page > 1 {
		// Past the end, e.g. a stale button after a registry change.
		page = 1
		entries, hasMore = h.registry.Page(page, presenter.UniversitiesPerPage)
	}

	return &CalculateResponse{Edit: h.flow.FormatUniversityPicker(entries, page, hasMore)}, nil
}

// answerSitting feeds the sitting button press into the dialog as if
// the user had typed the answer.
func (h *CalculateHandler) answerSitting(ctx context.Context, telegramID int64, answer string) (*CalculateResponse, error) {
	outcome, err := h.engine.HandleText(ctx, telegramID, answer)
	if err != nil {
		return nil, err
	}

	return &CalculateResponse{Edit: h.flow.FormatOutcome(outcome)}, nil
}
