package handler

import (
	"context"

	"github.com/admit-hub/admission-calc-bot/internal/application/query"
	"github.com/admit-hub/admission-calc-bot/internal/interface/telegram/presenter"
)

// ══════════════════════════════════════════════════════════════════════════════
// HISTORY HANDLER
// Handles /history - the last ledger transactions with the running
// balance, newest first.
// ══════════════════════════════════════════════════════════════════════════════

// HistoryHandler serves the /history command.
type HistoryHandler struct {
	history *query.GetHistoryHandler
	reports *presenter.ReportPresenter
}

// NewHistoryHandler wires up the handler.
func NewHistoryHandler(history *query.GetHistoryHandler, reports *presenter.ReportPresenter) *HistoryHandler {
	return &HistoryHandler{
		history: history,
		reports: reports,
	}
}

// HistoryRequest is the parsed /history command.
type HistoryRequest struct {
	// TelegramID identifies the requesting user.
	TelegramID int64
}

// HistoryResponse is what goes back to the chat.
type HistoryResponse struct {
	// View is the transaction list.
	View *presenter.View
}

// Handle runs the /history command.
func (h *HistoryHandler) Handle(ctx context.Context, req HistoryRequest) (*HistoryResponse, error) {
	result, err := h.history.Handle(ctx, query.GetHistoryQuery{UserID: req.TelegramID})
	if err != nil {
		return nil, err
	}

	return &HistoryResponse{
		View: h.reports.FormatHistory(result),
	}, nil
}
