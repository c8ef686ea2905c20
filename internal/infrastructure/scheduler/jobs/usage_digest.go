// Package jobs contains the scheduled jobs run by the worker binary.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/admit-hub/admission-calc-bot/internal/application/query"
)

// ══════════════════════════════════════════════════════════════════════════════
// USAGE DIGEST JOB
// ══════════════════════════════════════════════════════════════════════════════

// UsageDigestJob sends a daily usage summary to the bot administrators.
// It is the push counterpart of the /stats command: admins get the same
// numbers every morning without having to ask for them.
type UsageDigestJob struct {
	stats  StatsQuery
	sender DigestSender
	logger *slog.Logger
	config UsageDigestConfig

	lastRunStats atomic.Value // *UsageDigestStats
}

// StatsQuery produces the usage summary the digest is built from.
type StatsQuery interface {
	Handle(ctx context.Context, q query.GetUsageStatsQuery) (*query.UsageStatsResult, error)
}

// DigestSender delivers one digest message to one chat.
type DigestSender interface {
	SendDigest(ctx context.Context, chatID int64, html string) error
}

// UsageDigestConfig contains configuration for the usage digest job.
type UsageDigestConfig struct {
	// AdminChatIDs are the Telegram chats that receive the digest.
	AdminChatIDs []int64

	// Window is the period the "+N" counters cover.
	Window time.Duration

	// Timezone used for the date line in the message.
	Timezone *time.Location

	// Timeout is the maximum duration for the whole job.
	Timeout time.Duration
}

// DefaultUsageDigestConfig returns sensible defaults.
func DefaultUsageDigestConfig() UsageDigestConfig {
	loc, err := time.LoadLocation("Africa/Lagos")
	if err != nil {
		loc = time.FixedZone("UTC+1", 60*60)
	}

	return UsageDigestConfig{
		Window:   24 * time.Hour,
		Timezone: loc,
		Timeout:  2 * time.Minute,
	}
}

// UsageDigestStats contains statistics from a digest run.
type UsageDigestStats struct {
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
	Recipients  int
	Delivered   int
	Failed      int
	Errors      []error
}

// NewUsageDigestJob creates a new usage digest job.
func NewUsageDigestJob(stats StatsQuery, sender DigestSender, logger *slog.Logger, config UsageDigestConfig) *UsageDigestJob {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Window <= 0 {
		config.Window = 24 * time.Hour
	}
	if config.Timezone == nil {
		config.Timezone = time.UTC
	}

	return &UsageDigestJob{
		stats:  stats,
		sender: sender,
		logger: logger,
		config: config,
	}
}

// Name returns the job name.
func (j *UsageDigestJob) Name() string {
	return "usage_digest"
}

// Description returns a human-readable description.
func (j *UsageDigestJob) Description() string {
	return "Sends the daily usage summary to bot administrators"
}

// Run executes the usage digest job.
func (j *UsageDigestJob) Run(ctx context.Context) error {
	startedAt := time.Now()
	stats := &UsageDigestStats{
		StartedAt:  startedAt,
		Recipients: len(j.config.AdminChatIDs),
	}

	if len(j.config.AdminChatIDs) == 0 {
		j.logger.Info("usage digest has no recipients, skipping")
		return nil
	}

	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	// The digest is the one consumer that always wants fresh numbers,
	// cached summaries may be up to a minute behind.
	result, err := j.stats.Handle(ctx, query.GetUsageStatsQuery{
		Window:    j.config.Window,
		SkipCache: true,
	})
	if err != nil {
		return fmt.Errorf("collect usage stats: %w", err)
	}

	message := j.formatDigestMessage(result)

	for _, chatID := range j.config.AdminChatIDs {
		if err := j.sender.SendDigest(ctx, chatID, message); err != nil {
			stats.Failed++
			stats.Errors = append(stats.Errors, err)
			j.logger.Error("failed to deliver usage digest",
				"chat_id", chatID,
				"error", err,
			)
			continue
		}
		stats.Delivered++
	}

	stats.CompletedAt = time.Now()
	stats.Duration = stats.CompletedAt.Sub(startedAt)
	j.lastRunStats.Store(stats)

	j.logger.Info("usage digest completed",
		"duration", stats.Duration.String(),
		"recipients", stats.Recipients,
		"delivered", stats.Delivered,
		"failed", stats.Failed,
	)

	if stats.Delivered == 0 {
		return errors.Join(stats.Errors...)
	}

	return nil
}

// formatDigestMessage renders the usage summary as a Telegram HTML message.
func (j *UsageDigestJob) formatDigestMessage(result *query.UsageStatsResult) string {
	var sb strings.Builder

	sb.WriteString("📊 <b>Daily usage digest</b>\n")
	sb.WriteString(fmt.Sprintf("<i>%s</i>\n\n", time.Now().In(j.config.Timezone).Format("Mon, 02 Jan 2006")))

	sb.WriteString(fmt.Sprintf("👥 Users: <b>%d</b> total", result.TotalUsers))
	if result.NewUsers > 0 {
		sb.WriteString(fmt.Sprintf(" • <b>+%d</b> %s", result.NewUsers, formatWindow(result.Window)))
	}
	sb.WriteString("\n")

	sb.WriteString(fmt.Sprintf("🎯 Calculations: <b>%d</b> total", result.TotalCalculations))
	if result.Calculations > 0 {
		sb.WriteString(fmt.Sprintf(" • <b>+%d</b> %s", result.Calculations, formatWindow(result.Window)))
	}
	sb.WriteString("\n")

	sb.WriteString(fmt.Sprintf("🎁 Referral credits %s: <b>%d</b>\n", formatWindow(result.Window), result.ReferralCredits))
	sb.WriteString(fmt.Sprintf("💬 Dialogs running now: <b>%d</b>", result.ActiveSessions))

	return sb.String()
}

// formatWindow renders the counting window for captions.
func formatWindow(d time.Duration) string {
	if d == 24*time.Hour {
		return "in 24h"
	}
	if d > 0 && d%time.Hour == 0 {
		return fmt.Sprintf("in %dh", int(d.Hours()))
	}
	return fmt.Sprintf("in %s", d)
}

// LastRunStats returns statistics from the last digest run.
func (j *UsageDigestJob) LastRunStats() *UsageDigestStats {
	stats := j.lastRunStats.Load()
	if stats == nil {
		return nil
	}
	return stats.(*UsageDigestStats)
}
