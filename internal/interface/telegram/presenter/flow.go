package presenter

import (
	"errors"
	"fmt"
	"strings"

	"github.com/admit-hub/admission-calc-bot/internal/application/conversation"
	"github.com/admit-hub/admission-calc-bot/internal/domain/ledger"
	"github.com/admit-hub/admission-calc-bot/internal/domain/scoring"
	"github.com/admit-hub/admission-calc-bot/internal/domain/session"
	"github.com/admit-hub/admission-calc-bot/internal/domain/university"
)

// ══════════════════════════════════════════════════════════════════════════════
// FLOW PRESENTER
// Форматирует исходы диалога расчёта: вопрос текущего шага, прогресс,
// ошибки ввода и итоговый балл. Движок диалога возвращает Outcome,
// презентер превращает его в готовое сообщение.
// ══════════════════════════════════════════════════════════════════════════════

// View содержит отформатированное сообщение, готовое к отправке.
type View struct {
	// Text - основной текст сообщения (с HTML-разметкой).
	Text string

	// Keyboard - inline-клавиатура, nil если клавиатура не нужна.
	Keyboard *InlineKeyboard

	// ParseMode - режим парсинга ("HTML").
	ParseMode string
}

// FlowPresenter форматирует шаги и результаты диалога расчёта.
type FlowPresenter struct {
	keyboardBuilder *KeyboardBuilder
}

// NewFlowPresenter создаёт новый презентер диалога.
func NewFlowPresenter() *FlowPresenter {
	return &FlowPresenter{
		keyboardBuilder: NewKeyboardBuilder(),
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// OUTCOME DISPATCH
// ─────────────────────────────────────────────────────────────────────────────

// FormatOutcome форматирует любой исход движка диалога.
func (p *FlowPresenter) FormatOutcome(out *conversation.Outcome) *View {
	switch out.Kind {
	case conversation.OutcomeCompleted:
		return p.formatResult(out)
	case conversation.OutcomeInsufficientPoints:
		return p.FormatInsufficientPoints(out.Balance)
	case conversation.OutcomeReprompt:
		return p.formatStep(out, p.validationMessage(out.Err))
	case conversation.OutcomeNoSession:
		return p.FormatNoSession()
	default:
		return p.formatStep(out, "")
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// UNIVERSITY PICKER
// ─────────────────────────────────────────────────────────────────────────────

// FormatUniversityPicker форматирует страницу выбора вуза.
func (p *FlowPresenter) FormatUniversityPicker(entries []university.University, page int, hasMore bool) *View {
	var sb strings.Builder

	sb.WriteString("🏫 <b>Choose your institution</b>\n\n")
	sb.WriteString("Each school uses its own screening formula. ")
	sb.WriteString("Pick yours, or use the standard calculation if it isn't listed.")

	if page > 1 || hasMore {
		sb.WriteString(fmt.Sprintf("\n\n📄 Page %d", page))
	}

	return &View{
		Text:      sb.String(),
		Keyboard:  p.keyboardBuilder.UniversityPageKeyboard(entries, page, hasMore),
		ParseMode: "HTML",
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// STEP PROMPTS
// ─────────────────────────────────────────────────────────────────────────────

// formatStep форматирует вопрос шага. rejection - сообщение об ошибке
// ввода для повторного вопроса, пустая строка для первого показа.
func (p *FlowPresenter) formatStep(out *conversation.Outcome, rejection string) *View {
	var sb strings.Builder

	if rejection != "" {
		sb.WriteString(fmt.Sprintf("⚠️ <i>%s</i>\n\n", rejection))
	} else if out.StepNumber == 1 {
		sb.WriteString(p.formatIntro(out))
		sb.WriteString("\n\n")
	}

	sb.WriteString(p.questionFor(out.Step, out.Method))
	sb.WriteString(fmt.Sprintf("\n\n📍 Question %d of %d", out.StepNumber, out.StepTotal))

	var keyboard *InlineKeyboard
	if out.Step.Kind == session.StepSittingCount {
		keyboard = p.keyboardBuilder.SittingKeyboard()
	}

	return &View{
		Text:      sb.String(),
		Keyboard:  keyboard,
		ParseMode: "HTML",
	}
}

// formatIntro форматирует заголовок первого вопроса диалога.
func (p *FlowPresenter) formatIntro(out *conversation.Outcome) string {
	var sb strings.Builder

	sb.WriteString("🎯 <b>Admission score calculation</b>\n")
	if out.InstitutionName != "" {
		sb.WriteString(fmt.Sprintf("🏫 %s\n", escapeHTML(out.InstitutionName)))
	}
	sb.WriteString(fmt.Sprintf("📐 %s\n\n", out.Method.Title()))
	sb.WriteString("<i>Answer the questions one by one. Restart anytime with /calculate.</i>")

	return sb.String()
}

// questionFor возвращает текст вопроса для шага.
func (p *FlowPresenter) questionFor(step session.Step, m scoring.Method) string {
	switch step.Kind {
	case session.StepPrimaryScore:
		return fmt.Sprintf("Enter your <b>UTME score</b> (0-%d).", scoring.PrimaryScoreMax)

	case session.StepSecondaryScore:
		label := "screening score"
		if m == scoring.MethodScorePlusAdmissionTest || m == scoring.MethodScoreAdmissionCredentials {
			label = "Post-UTME score"
		}
		return fmt.Sprintf("Enter your <b>%s</b> (0-%d).", label, scoring.SecondaryScoreMax)

	case session.StepCredentialList:
		return fmt.Sprintf(
			"Enter your best <b>%d O'Level grades</b> in one line, separated by commas.\n<i>Example: A1, B2, B3, C4, C5</i>",
			scoring.CredentialListLen,
		)

	case session.StepSingleCredential:
		return fmt.Sprintf("Enter your O'Level grade for <b>subject %d</b>.\n<i>Example: B3</i>", step.Index)

	case session.StepSittingCount:
		return "Did you get all your O'Level results in <b>one sitting</b>?"
	}

	return "Enter your answer."
}

// validationMessage подбирает понятное сообщение для ошибки ввода.
func (p *FlowPresenter) validationMessage(err error) string {
	switch {
	case errors.Is(err, scoring.ErrScoreNotANumber):
		return "That doesn't look like a number. Digits only, please."
	case errors.Is(err, scoring.ErrScoreOutOfRange):
		return "That score is out of range for this exam."
	case errors.Is(err, scoring.ErrUnknownGradeCode):
		return "Unknown grade. Valid grades: " + gradeCodesLine() + "."
	case errors.Is(err, scoring.ErrGradeCountMismatch):
		return fmt.Sprintf("Please enter exactly %d grades separated by commas.", scoring.CredentialListLen)
	case errors.Is(err, scoring.ErrUnknownSittingAnswer):
		return "Please answer yes or no, or use the buttons."
	}
	return "That answer didn't work. Please try again."
}

// gradeCodesLine перечисляет допустимые коды оценок.
func gradeCodesLine() string {
	codes := scoring.AllGradeCodes()
	parts := make([]string, 0, len(codes))
	for _, c := range codes {
		parts = append(parts, c.String())
	}
	return strings.Join(parts, ", ")
}

// ─────────────────────────────────────────────────────────────────────────────
// RESULT
// ─────────────────────────────────────────────────────────────────────────────

// formatResult форматирует итог завершённого расчёта.
func (p *FlowPresenter) formatResult(out *conversation.Outcome) *View {
	var sb strings.Builder

	sb.WriteString("🎓 <b>Your estimated admission score</b>\n\n")

	if out.InstitutionName != "" {
		sb.WriteString(fmt.Sprintf("🏫 %s\n", escapeHTML(out.InstitutionName)))
	}
	sb.WriteString(fmt.Sprintf("📐 %s\n\n", out.Method.Title()))

	sb.WriteString(fmt.Sprintf("✨ Score: <b>%.2f</b>\n\n", out.Score))
	sb.WriteString(fmt.Sprintf("💰 Balance: <b>%d</b>\n\n", out.Balance))

	sb.WriteString("<i>This is an estimate based on the published screening formula. ")
	sb.WriteString("Admission decisions always rest with the institution.</i>")

	return &View{
		Text:      sb.String(),
		Keyboard:  p.keyboardBuilder.ResultKeyboard(),
		ParseMode: "HTML",
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// EDGE STATES
// ─────────────────────────────────────────────────────────────────────────────

// FormatInsufficientPoints форматирует отказ из-за нехватки баллов.
func (p *FlowPresenter) FormatInsufficientPoints(balance ledger.Points) *View {
	var sb strings.Builder

	sb.WriteString("😔 <b>Not enough points</b>\n\n")
	sb.WriteString(fmt.Sprintf("Your balance is <b>%d</b> and a calculation needs more than that.\n\n", balance))
	sb.WriteString("🎁 Invite friends with /refer: you earn points for every friend who joins.")

	return &View{
		Text:      sb.String(),
		Keyboard:  p.keyboardBuilder.InsufficientPointsKeyboard(),
		ParseMode: "HTML",
	}
}

// FormatNoSession форматирует ответ на текст вне диалога.
func (p *FlowPresenter) FormatNoSession() *View {
	var sb strings.Builder

	sb.WriteString("🤔 I wasn't expecting an answer right now.\n\n")
	sb.WriteString("Use /calculate to start a score calculation, or pick an option below.")

	return &View{
		Text:      sb.String(),
		Keyboard:  p.keyboardBuilder.MainMenuKeyboard(),
		ParseMode: "HTML",
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// UTILITY FUNCTIONS
// ─────────────────────────────────────────────────────────────────────────────

// escapeHTML экранирует HTML-символы в пользовательских строках.
func escapeHTML(s string) string {
	replacer := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
	)
	return replacer.Replace(s)
}
