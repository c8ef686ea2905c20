package handler

import (
	"context"

	"github.com/admit-hub/admission-calc-bot/internal/application/conversation"
	"github.com/admit-hub/admission-calc-bot/internal/interface/telegram/presenter"
)

// ══════════════════════════════════════════════════════════════════════════════
// ANSWER HANDLER
// Handles plain text messages - answers to the current dialog question.
// The engine decides everything: advance, reprompt, finish or report
// that there is no dialog at all.
// ══════════════════════════════════════════════════════════════════════════════

// AnswerHandler feeds free-form text into the calculation dialog.
type AnswerHandler struct {
	engine *conversation.Engine
	flow   *presenter.FlowPresenter
}

// NewAnswerHandler wires up the handler.
func NewAnswerHandler(engine *conversation.Engine, flow *presenter.FlowPresenter) *AnswerHandler {
	return &AnswerHandler{
		engine: engine,
		flow:   flow,
	}
}

// AnswerRequest contains one text message from the user.
type AnswerRequest struct {
	// TelegramID identifies the requesting user.
	TelegramID int64

	// Text is the raw message text.
	Text string
}

// AnswerResponse is what goes back to the chat.
type AnswerResponse struct {
	// View is the next dialog prompt, the result, or a hint that no
	// dialog is running.
	View *presenter.View
}

// Handle processes a text answer.
func (h *AnswerHandler) Handle(ctx context.Context, req AnswerRequest) (*AnswerResponse, error) {
	outcome, err := h.engine.HandleText(ctx, req.TelegramID, req.Text)
	if err != nil {
		return nil, err
	}

	return &AnswerResponse{
		View: h.flow.FormatOutcome(outcome),
	}, nil
}
