package presenter

import (
	"fmt"
	"strings"
	"time"

	"github.com/admit-hub/admission-calc-bot/internal/application/broadcast"
	"github.com/admit-hub/admission-calc-bot/internal/application/query"
	"github.com/admit-hub/admission-calc-bot/internal/domain/ledger"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPORT PRESENTER
// Форматирует всё, что не является шагом диалога: приветствия, баланс,
// историю начислений, реферальную ссылку, сводку использования и
// результаты рассылки.
// ══════════════════════════════════════════════════════════════════════════════

// ReportPresenter форматирует отчётные экраны бота.
type ReportPresenter struct {
	keyboardBuilder *KeyboardBuilder
}

// NewReportPresenter создаёт новый презентер отчётов.
func NewReportPresenter() *ReportPresenter {
	return &ReportPresenter{
		keyboardBuilder: NewKeyboardBuilder(),
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// WELCOME
// ─────────────────────────────────────────────────────────────────────────────

// FormatWelcomeNew форматирует приветствие для нового пользователя.
func (p *ReportPresenter) FormatWelcomeNew(firstName string, bonus ledger.Points, viaReferral bool) *View {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("👋 <b>Welcome, %s!</b>\n\n", escapeHTML(firstName)))
	sb.WriteString("I estimate your university admission score from your exam results.\n\n")
	sb.WriteString("🎯 <b>What I can do:</b>\n")
	sb.WriteString("• Calculate your admission score for your chosen university\n")
	sb.WriteString("• Use each school's own screening formula\n")
	sb.WriteString("• Track your points and referral rewards\n\n")
	sb.WriteString(fmt.Sprintf("🎁 You start with <b>%d points</b> on the house.\n", bonus))

	if viaReferral {
		sb.WriteString("\n🤝 You joined through a friend's invite, so they just earned bonus points too.\n")
	}

	sb.WriteString("\n💡 <i>Tap a button below or send /calculate to begin.</i>")

	return &View{
		Text:      sb.String(),
		Keyboard:  p.keyboardBuilder.MainMenuKeyboard(),
		ParseMode: "HTML",
	}
}

// FormatWelcomeBack форматирует приветствие для вернувшегося пользователя.
func (p *ReportPresenter) FormatWelcomeBack(firstName string, balance ledger.Points) *View {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("👋 <b>Welcome back, %s!</b>\n\n", escapeHTML(firstName)))
	sb.WriteString(fmt.Sprintf("💰 Balance: <b>%d points</b>\n\n", balance))
	sb.WriteString("Ready for another calculation?")

	return &View{
		Text:      sb.String(),
		Keyboard:  p.keyboardBuilder.MainMenuKeyboard(),
		ParseMode: "HTML",
	}
}

// FormatReferrerCredit форматирует уведомление пригласившему о бонусе.
func (p *ReportPresenter) FormatReferrerCredit(friendName string, bonus ledger.Points) *View {
	var sb strings.Builder

	sb.WriteString("🎉 <b>Your invite worked!</b>\n\n")
	if friendName != "" {
		sb.WriteString(fmt.Sprintf("%s just joined through your link.\n", escapeHTML(friendName)))
	} else {
		sb.WriteString("A friend just joined through your link.\n")
	}
	sb.WriteString(fmt.Sprintf("💰 <b>+%d points</b> added to your balance.", bonus))

	return &View{
		Text:      sb.String(),
		ParseMode: "HTML",
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// HELP
// ─────────────────────────────────────────────────────────────────────────────

// FormatHelp форматирует справку по командам.
func (p *ReportPresenter) FormatHelp() *View {
	text := `ℹ️ <b>How this bot works</b>

Every completed calculation costs <b>1 point</b>. You get starter points when you join and earn more by inviting friends.

🤖 <b>Commands:</b>
/calculate - calculate your admission score
/balance - check your points balance
/history - see where your points went
/refer - get your personal invite link
/developer - who built this bot
/help - show this message

📝 <b>During a calculation:</b>
Answer each question in turn. Wrong input just repeats the question. Send /calculate to start over at any time.`

	return &View{
		Text:      text,
		Keyboard:  p.keyboardBuilder.MainMenuKeyboard(),
		ParseMode: "HTML",
	}
}

// FormatDeveloper форматирует карточку разработчика.
func (p *ReportPresenter) FormatDeveloper() *View {
	return &View{
		Text:      "👨‍💻 <b>Developer:</b> Daniel\nTelegram: @Danzy_101",
		ParseMode: "HTML",
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// BALANCE
// ─────────────────────────────────────────────────────────────────────────────

// FormatBalance форматирует экран баланса.
func (p *ReportPresenter) FormatBalance(balance ledger.Points, invited int, referralBonus ledger.Points) *View {
	var sb strings.Builder

	sb.WriteString("💰 <b>Your points</b>\n\n")
	sb.WriteString(fmt.Sprintf("Balance: <b>%d</b>\n", balance))
	sb.WriteString(fmt.Sprintf("Friends invited: <b>%d</b>\n\n", invited))
	sb.WriteString(fmt.Sprintf("Each calculation costs 1 point. Every friend who joins brings you <b>%d points</b>.", referralBonus))

	keyboard := NewInlineKeyboard().
		AddRow(
			CallbackButton("🎯 Calculate", "cmd:calculate"),
			CallbackButton("🎁 Invite friends", "cmd:refer"),
		)

	return &View{
		Text:      sb.String(),
		Keyboard:  keyboard,
		ParseMode: "HTML",
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// HISTORY
// ─────────────────────────────────────────────────────────────────────────────

// FormatHistory форматирует историю начислений.
func (p *ReportPresenter) FormatHistory(result *query.GetHistoryResult) *View {
	var sb strings.Builder

	sb.WriteString("📜 <b>Points history</b>\n\n")

	if len(result.Entries) == 0 {
		sb.WriteString("<i>Nothing here yet. Your signup bonus will appear after your first /start.</i>")
	} else {
		for _, entry := range result.Entries {
			sb.WriteString(p.formatHistoryEntry(entry))
			sb.WriteString("\n")
		}
		sb.WriteString("─────────────────────\n")
		sb.WriteString(fmt.Sprintf("💰 Balance: <b>%d</b>", result.Balance))
	}

	keyboard := NewInlineKeyboard().
		AddRow(
			CallbackButton("🎯 Calculate", "cmd:calculate"),
			CallbackButton("💰 Balance", "cmd:balance"),
		)

	return &View{
		Text:      sb.String(),
		Keyboard:  keyboard,
		ParseMode: "HTML",
	}
}

// formatHistoryEntry форматирует одну строку истории.
func (p *ReportPresenter) formatHistoryEntry(entry query.HistoryEntryDTO) string {
	marker := "🔻"
	if entry.Credit {
		marker = "🔹"
	}

	return fmt.Sprintf("%s <code>%s</code> %s • <i>%s</i>",
		marker,
		query.FormatDelta(entry.Delta),
		escapeHTML(query.FormatEntryReason(entry)),
		entry.CreatedAt.Format("02 Jan 15:04"),
	)
}

// ─────────────────────────────────────────────────────────────────────────────
// REFERRAL
// ─────────────────────────────────────────────────────────────────────────────

// FormatReferral форматирует экран реферальной ссылки.
// shareURL - готовая t.me/share ссылка для кнопки.
func (p *ReportPresenter) FormatReferral(link, shareURL string, invited int, bonus ledger.Points) *View {
	var sb strings.Builder

	sb.WriteString("🎁 <b>Invite friends, earn points</b>\n\n")
	sb.WriteString(fmt.Sprintf("Every friend who starts the bot through your link brings you <b>%d points</b>.\n\n", bonus))
	sb.WriteString("🔗 Your personal link:\n")
	sb.WriteString(fmt.Sprintf("<code>%s</code>\n\n", escapeHTML(link)))
	sb.WriteString(fmt.Sprintf("👥 Friends joined so far: <b>%d</b>", invited))

	return &View{
		Text:      sb.String(),
		Keyboard:  p.keyboardBuilder.ReferralKeyboard(shareURL),
		ParseMode: "HTML",
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// USAGE STATS (admin)
// ─────────────────────────────────────────────────────────────────────────────

// FormatUsageStats форматирует сводку использования для администратора.
func (p *ReportPresenter) FormatUsageStats(stats *query.UsageStatsResult) *View {
	var sb strings.Builder

	sb.WriteString("📊 <b>Usage summary</b>\n\n")

	sb.WriteString(fmt.Sprintf("👥 Users: <b>%d</b> total", stats.TotalUsers))
	if stats.NewUsers > 0 {
		sb.WriteString(fmt.Sprintf(" • <b>+%d</b> %s", stats.NewUsers, formatWindow(stats.Window)))
	}
	sb.WriteString("\n")

	sb.WriteString(fmt.Sprintf("🎯 Calculations: <b>%d</b> total", stats.TotalCalculations))
	if stats.Calculations > 0 {
		sb.WriteString(fmt.Sprintf(" • <b>+%d</b> %s", stats.Calculations, formatWindow(stats.Window)))
	}
	sb.WriteString("\n")

	sb.WriteString(fmt.Sprintf("🎁 Referral credits %s: <b>%d</b>\n", formatWindow(stats.Window), stats.ReferralCredits))
	sb.WriteString(fmt.Sprintf("💬 Dialogs running now: <b>%d</b>\n\n", stats.ActiveSessions))

	sb.WriteString(fmt.Sprintf("<i>Generated %s UTC</i>", stats.GeneratedAt.Format("02 Jan 15:04")))

	return &View{
		Text:      sb.String(),
		ParseMode: "HTML",
	}
}

// formatWindow форматирует окно счётчиков для подписи.
func formatWindow(d time.Duration) string {
	if d == 24*time.Hour {
		return "in 24h"
	}
	if d%time.Hour == 0 {
		return fmt.Sprintf("in %dh", int(d.Hours()))
	}
	return fmt.Sprintf("in %s", d)
}

// ─────────────────────────────────────────────────────────────────────────────
// BROADCAST (admin)
// ─────────────────────────────────────────────────────────────────────────────

// FormatBroadcastSummary форматирует итог завершённой рассылки.
func (p *ReportPresenter) FormatBroadcastSummary(res *broadcast.Result) *View {
	var sb strings.Builder

	sb.WriteString("📢 <b>Broadcast finished</b>\n\n")
	sb.WriteString(fmt.Sprintf("Recipients: <b>%d</b>\n", res.Recipients))
	sb.WriteString(fmt.Sprintf("Delivered: <b>%d</b>\n", res.Delivered))
	if res.Failed > 0 {
		sb.WriteString(fmt.Sprintf("Failed: <b>%d</b>\n", res.Failed))
	}
	sb.WriteString(fmt.Sprintf("\n⏱ Took %s", res.Duration.Round(time.Millisecond)))

	return &View{
		Text:      sb.String(),
		ParseMode: "HTML",
	}
}

// FormatBroadcastUsage форматирует подсказку по использованию /broadcast.
func (p *ReportPresenter) FormatBroadcastUsage() *View {
	text := `📢 <b>Broadcast a message to all users</b>

Usage: <code>/broadcast your message here</code>

The text after the command is delivered to every registered user.`

	return &View{
		Text:      text,
		ParseMode: "HTML",
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// ERROR STATES
// ─────────────────────────────────────────────────────────────────────────────

// FormatAccessDenied форматирует отказ в доступе к админской команде.
func (p *ReportPresenter) FormatAccessDenied() *View {
	return &View{
		Text:      "🚫 This command is only available to administrators.",
		ParseMode: "HTML",
	}
}

// FormatError форматирует сообщение об ошибке.
func (p *ReportPresenter) FormatError(message string) *View {
	text := fmt.Sprintf(`⚠️ <b>Something went wrong</b>

%s

Please try again in a few seconds.`, escapeHTML(message))

	return &View{
		Text:      text,
		ParseMode: "HTML",
	}
}
