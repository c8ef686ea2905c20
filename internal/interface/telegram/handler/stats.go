package handler

import (
	"context"

	"github.com/admit-hub/admission-calc-bot/internal/application/query"
	"github.com/admit-hub/admission-calc-bot/internal/interface/telegram/presenter"
)

// ══════════════════════════════════════════════════════════════════════════════
// STATS HANDLER
// Handles /stats - the usage summary for administrators. Admin gating
// happens in the bot before dispatch; the handler itself is plain.
// ══════════════════════════════════════════════════════════════════════════════

// StatsHandler serves the /stats command.
type StatsHandler struct {
	stats   *query.GetUsageStatsHandler
	reports *presenter.ReportPresenter
}

// NewStatsHandler wires up the handler.
func NewStatsHandler(stats *query.GetUsageStatsHandler, reports *presenter.ReportPresenter) *StatsHandler {
	return &StatsHandler{
		stats:   stats,
		reports: reports,
	}
}

// StatsRequest is the parsed /stats command.
type StatsRequest struct {
	// TelegramID is the admin's Telegram ID.
	TelegramID int64
}

// StatsResponse is what goes back to the chat.
type StatsResponse struct {
	// View is the usage summary.
	View *presenter.View
}

// Handle runs the /stats command.
func (h *StatsHandler) Handle(ctx context.Context, _ StatsRequest) (*StatsResponse, error) {
	result, err := h.stats.Handle(ctx, query.GetUsageStatsQuery{})
	if err != nil {
		return nil, err
	}

	return &StatsResponse{
		View: h.reports.FormatUsageStats(result),
	}, nil
}
