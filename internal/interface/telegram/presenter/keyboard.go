// Package presenter turns application results into what the user sees.
// Everything user-facing lives here: message text, report layout and
// inline keyboards. No Telegram library types appear in this package;
// the bot layer converts keyboards to wire format on the way out.
package presenter

import (
	"fmt"

	"github.com/admit-hub/admission-calc-bot/internal/domain/university"
)

// ══════════════════════════════════════════════════════════════════════════════
// INLINE KEYBOARD TYPES
// Library-agnostic keyboard shapes. The bot layer maps them onto the
// concrete Bot API structures when a message goes out.
// ══════════════════════════════════════════════════════════════════════════════

// InlineKeyboard is rows of inline buttons.
type InlineKeyboard struct {
	Rows [][]InlineButton
}

// InlineButton is one button in a row.
type InlineButton struct {
	// Text is the visible label.
	Text string

	// CallbackData rides back to the router when the button is pressed.
	CallbackData string

	// URL, when set, opens in the browser instead of firing a callback.
	URL string
}

// NewInlineKeyboard creates a keyboard with no rows.
func NewInlineKeyboard() *InlineKeyboard {
	return &InlineKeyboard{
		Rows: make([][]InlineButton, 0),
	}
}

// AddRow appends one row of buttons.
func (k *InlineKeyboard) AddRow(buttons ...InlineButton) *InlineKeyboard {
	k.Rows = append(k.Rows, buttons)
	return k
}

// CallbackButton builds a button that fires a callback query.
func CallbackButton(text, callbackData string) InlineButton {
	return InlineButton{
		Text:         text,
		CallbackData: callbackData,
	}
}

// URLButton builds a button that opens a link.
func URLButton(text, url string) InlineButton {
	return InlineButton{
		Text: text,
		URL:  url,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CALLBACK DATA SCHEME
// Callback data is colon-separated and shared between keyboards and the
// router. Keeping the constants here means a button and its route can
// never drift apart.
// ══════════════════════════════════════════════════════════════════════════════

const (
	// CallbackCommandPrefix re-dispatches a slash command from a button,
	// e.g. "cmd:balance" behaves exactly like typing /balance.
	CallbackCommandPrefix = "cmd:"

	// CallbackStandardCalc starts the standard calculation flow without
	// an institution.
	CallbackStandardCalc = "calc:standard"

	// CallbackUniversityPrefix starts the flow for a catalog institution,
	// e.g. "calc:uni:unilag".
	CallbackUniversityPrefix = "calc:uni:"

	// CallbackPagePrefix flips the institution picker to another page,
	// e.g. "calc:page:2".
	CallbackPagePrefix = "calc:page:"

	// CallbackSittingYes and CallbackSittingNo answer the single-sitting
	// question from buttons.
	CallbackSittingYes = "calc:sitting:yes"
	CallbackSittingNo  = "calc:sitting:no"
)

// UniversitiesPerPage is the institution picker page size.
const UniversitiesPerPage = 8

// ══════════════════════════════════════════════════════════════════════════════
// KEYBOARD BUILDER
// One keyboard per screen the bot can show.
// ══════════════════════════════════════════════════════════════════════════════

// KeyboardBuilder assembles the keyboards the handlers send.
type KeyboardBuilder struct{}

// NewKeyboardBuilder creates the builder.
func NewKeyboardBuilder() *KeyboardBuilder {
	return &KeyboardBuilder{}
}

// ─────────────────────────────────────────────────────────────────────────────
// MENU KEYBOARDS
// ─────────────────────────────────────────────────────────────────────────────

// MainMenuKeyboard creates the main menu shown by /start and /help.
func (b *KeyboardBuilder) MainMenuKeyboard() *InlineKeyboard {
	return NewInlineKeyboard().
		AddRow(
			CallbackButton("🎯 Calculate my score", "cmd:calculate"),
		).
		AddRow(
			CallbackButton("💰 Balance", "cmd:balance"),
			CallbackButton("📜 History", "cmd:history"),
		).
		AddRow(
			CallbackButton("🎁 Invite friends", "cmd:refer"),
			CallbackButton("ℹ️ Help", "cmd:help"),
		)
}

// ─────────────────────────────────────────────────────────────────────────────
// CALCULATION FLOW KEYBOARDS
// ─────────────────────────────────────────────────────────────────────────────

// UniversityPageKeyboard creates one page of the institution picker.
// page is 1-based; hasMore reports whether a next page exists.
func (b *KeyboardBuilder) UniversityPageKeyboard(entries []university.University, page int, hasMore bool) *InlineKeyboard {
	kb := NewInlineKeyboard()

	for _, u := range entries {
		kb.AddRow(CallbackButton(u.Name, CallbackUniversityPrefix+string(u.ID)))
	}

	// Navigation row
	navRow := make([]InlineButton, 0, 2)
	if page > 1 {
		navRow = append(navRow, CallbackButton("◀️ Back", fmt.Sprintf("%s%d", CallbackPagePrefix, page-1)))
	}
	if hasMore {
		navRow = append(navRow, CallbackButton("Next ▶️", fmt.Sprintf("%s%d", CallbackPagePrefix, page+1)))
	}
	if len(navRow) > 0 {
		kb.AddRow(navRow...)
	}

	kb.AddRow(CallbackButton("🏫 My school isn't listed", CallbackStandardCalc))

	return kb
}

// SittingKeyboard creates the yes/no keyboard for the single-sitting
// question. The answers land in the dialog as plain text would.
func (b *KeyboardBuilder) SittingKeyboard() *InlineKeyboard {
	return NewInlineKeyboard().
		AddRow(
			CallbackButton("✅ Yes, one sitting", CallbackSittingYes),
			CallbackButton("❌ No, two sittings", CallbackSittingNo),
		)
}

// ResultKeyboard creates the keyboard shown under a computed score.
func (b *KeyboardBuilder) ResultKeyboard() *InlineKeyboard {
	return NewInlineKeyboard().
		AddRow(
			CallbackButton("🔁 Calculate again", "cmd:calculate"),
		).
		AddRow(
			CallbackButton("💰 Balance", "cmd:balance"),
			CallbackButton("🎁 Invite friends", "cmd:refer"),
		)
}

// InsufficientPointsKeyboard creates the keyboard shown when the user
// cannot afford a calculation.
func (b *KeyboardBuilder) InsufficientPointsKeyboard() *InlineKeyboard {
	return NewInlineKeyboard().
		AddRow(
			CallbackButton("🎁 Invite friends for points", "cmd:refer"),
		).
		AddRow(
			CallbackButton("💰 Balance", "cmd:balance"),
		)
}

// ─────────────────────────────────────────────────────────────────────────────
// REFERRAL KEYBOARDS
// ─────────────────────────────────────────────────────────────────────────────

// ReferralKeyboard creates the keyboard under the referral link message.
// shareURL is a t.me/share link prefilled with the user's invite link.
func (b *KeyboardBuilder) ReferralKeyboard(shareURL string) *InlineKeyboard {
	return NewInlineKeyboard().
		AddRow(
			URLButton("📤 Share your link", shareURL),
		).
		AddRow(
			CallbackButton("💰 Check balance", "cmd:balance"),
		)
}
