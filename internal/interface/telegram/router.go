// Package telegram implements the Telegram bot interface for the
// admission score calculator.
package telegram

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/admit-hub/admission-calc-bot/internal/infrastructure/external/telegram"
	"github.com/admit-hub/admission-calc-bot/internal/interface/telegram/presenter"
)

// ══════════════════════════════════════════════════════════════════════════════
// ROUTER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// RouterConfig tunes routing behavior.
type RouterConfig struct {
	// Logger receives routing logs.
	Logger *slog.Logger

	// Debug logs every routing decision.
	Debug bool
}

// ══════════════════════════════════════════════════════════════════════════════
// CONTEXT TYPES
// These types carry update information through the routing process.
// ══════════════════════════════════════════════════════════════════════════════

// CommandContext is everything a command handler gets.
type CommandContext struct {
	// TelegramID identifies the requesting user.
	TelegramID int64

	// ChatID is the chat the command arrived in.
	ChatID int64

	// MessageID is the message that carried the command.
	MessageID int64

	// Args is the text after the command itself.
	Args string

	// FirstName is the sender's first name from Telegram.
	FirstName string

	// BotUsername is the bot's own username (without @).
	BotUsername string

	// JustRegistered is true when this very update created the user.
	JustRegistered bool

	// Client sends the reply.
	Client *telegram.Client
}

// CallbackContext is everything a callback handler gets.
type CallbackContext struct {
	// TelegramID identifies the requesting user.
	TelegramID int64

	// ChatID is the chat the keyboard lives in.
	ChatID int64

	// MessageID is the message carrying the keyboard.
	MessageID int64

	// QueryID is needed to answer the callback query.
	QueryID string

	// Data is the raw callback payload.
	Data string

	// FirstName is the sender's first name from Telegram.
	FirstName string

	// BotUsername is the bot's own username (without @).
	BotUsername string

	// Client answers and edits through the API.
	Client *telegram.Client
}

// TextContext contains context for plain text handling (dialog answers).
type TextContext struct {
	// TelegramID identifies the requesting user.
	TelegramID int64

	// ChatID is the chat to reply into.
	ChatID int64

	// Text is the message text.
	Text string

	// Client performs the send.
	Client *telegram.Client
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER FUNCTION TYPES
// The registries hold plain functions; the bot wires its handlers in
// with small closures, so the router never learns concrete handler
// types.
// ══════════════════════════════════════════════════════════════════════════════

// CommandHandlerFunc processes one command update.
type CommandHandlerFunc func(ctx context.Context, cmdCtx CommandContext) error

// CallbackHandlerFunc processes one callback query.
type CallbackHandlerFunc func(ctx context.Context, cbCtx CallbackContext) error

// TextHandlerFunc processes one plain text message.
type TextHandlerFunc func(ctx context.Context, txtCtx TextContext) error

// ══════════════════════════════════════════════════════════════════════════════
// ROUTER
// Routes incoming updates to registered handlers.
// ══════════════════════════════════════════════════════════════════════════════

// Router routes Telegram updates to registered handlers.
type Router struct {
	config RouterConfig
	logger *slog.Logger

	mu sync.RWMutex

	// Handlers keyed by command name, no slash
	commands map[string]CommandHandlerFunc

	// Callback handlers by data prefix
	callbackPrefixes map[string]CallbackHandlerFunc

	// Plain text handler (dialog answers)
	textHandler TextHandlerFunc

	// Fallbacks for unknown commands and callbacks
	defaultCommand  CommandHandlerFunc
	defaultCallback CallbackHandlerFunc
}

// NewRouter creates an empty router.
func NewRouter(config RouterConfig) *Router {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	r := &Router{
		config:           config,
		logger:           config.Logger,
		commands:         make(map[string]CommandHandlerFunc),
		callbackPrefixes: make(map[string]CallbackHandlerFunc),
	}

	r.defaultCommand = r.handleUnknownCommand
	r.defaultCallback = r.handleUnknownCallback

	// Menu buttons re-enter the command table.
	r.RegisterCallbackPrefix(presenter.CallbackCommandPrefix, r.handleCommandCallback)

	return r
}

// ══════════════════════════════════════════════════════════════════════════════
// REGISTRATION
// ══════════════════════════════════════════════════════════════════════════════

// RegisterCommand registers a handler for a command (without the
// leading "/").
func (r *Router) RegisterCommand(command string, fn CommandHandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.commands[command] = fn

	if r.config.Debug {
		r.logger.Debug("registered command handler", "command", command)
	}
}

// RegisterCallbackPrefix registers a handler for callbacks matching a
// prefix. The longest registered prefix wins.
func (r *Router) RegisterCallbackPrefix(prefix string, fn CallbackHandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.callbackPrefixes[prefix] = fn

	if r.config.Debug {
		r.logger.Debug("registered callback prefix handler", "prefix", prefix)
	}
}

// RegisterTextHandler registers the handler for plain text messages.
func (r *Router) RegisterTextHandler(fn TextHandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.textHandler = fn
}

// SetDefaultCommandHandler overrides the fallback for unknown commands.
func (r *Router) SetDefaultCommandHandler(fn CommandHandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.defaultCommand = fn
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTING
// ══════════════════════════════════════════════════════════════════════════════

// HandleCommand dispatches one command.
func (r *Router) HandleCommand(ctx context.Context, command string, cmdCtx CommandContext) error {
	r.mu.RLock()
	fn, ok := r.commands[command]
	def := r.defaultCommand
	r.mu.RUnlock()

	if !ok {
		if r.config.Debug {
			r.logger.Debug("no handler for command", "command", command)
		}
		return def(ctx, cmdCtx)
	}

	return fn(ctx, cmdCtx)
}

// HandleCallback routes a callback query by longest matching prefix.
func (r *Router) HandleCallback(ctx context.Context, cbCtx CallbackContext) error {
	r.mu.RLock()
	var matched CallbackHandlerFunc
	matchedLen := -1
	for prefix, fn := range r.callbackPrefixes {
		if strings.HasPrefix(cbCtx.Data, prefix) && len(prefix) > matchedLen {
			matched = fn
			matchedLen = len(prefix)
		}
	}
	def := r.defaultCallback
	r.mu.RUnlock()

	if matched == nil {
		if r.config.Debug {
			r.logger.Debug("no handler for callback", "data", cbCtx.Data)
		}
		return def(ctx, cbCtx)
	}

	return matched(ctx, cbCtx)
}

// HandleText routes a plain text message to the text handler.
func (r *Router) HandleText(ctx context.Context, txtCtx TextContext) error {
	r.mu.RLock()
	fn := r.textHandler
	r.mu.RUnlock()

	if fn == nil {
		return nil
	}

	return fn(ctx, txtCtx)
}

// ══════════════════════════════════════════════════════════════════════════════
// MENU BUTTON RE-DISPATCH
// cmd:<command> buttons behave exactly like typing the command, with a
// fresh message rather than an edit so the menu stays usable.
// ══════════════════════════════════════════════════════════════════════════════

// handleCommandCallback turns a cmd:* callback into a command dispatch.
func (r *Router) handleCommandCallback(ctx context.Context, cbCtx CallbackContext) error {
	command := strings.TrimPrefix(cbCtx.Data, presenter.CallbackCommandPrefix)
	if command == "" {
		return nil
	}

	if err := cbCtx.Client.AnswerCallbackQuery(ctx, cbCtx.QueryID, "", false); err != nil {
		r.logger.Warn("failed to answer callback", "error", err)
	}

	cmdCtx := CommandContext{
		TelegramID:  cbCtx.TelegramID,
		ChatID:      cbCtx.ChatID,
		MessageID:   cbCtx.MessageID,
		FirstName:   cbCtx.FirstName,
		BotUsername: cbCtx.BotUsername,
		Client:      cbCtx.Client,
	}

	return r.HandleCommand(ctx, command, cmdCtx)
}

// ══════════════════════════════════════════════════════════════════════════════
// DEFAULT HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleUnknownCommand answers commands that have no registered handler.
func (r *Router) handleUnknownCommand(ctx context.Context, cmdCtx CommandContext) error {
	text := "❓ <b>Unknown command</b>\n\n" +
		"Available commands:\n" +
		"• /calculate - calculate your admission score\n" +
		"• /balance - your points\n" +
		"• /history - recent transactions\n" +
		"• /refer - invite friends, earn points\n" +
		"• /help - how the bot works"

	_, err := cmdCtx.Client.SendHTML(ctx, cmdCtx.ChatID, text)
	return err
}

// handleUnknownCallback answers callbacks that have no registered
// handler. The answer clears the loading spinner on the button.
func (r *Router) handleUnknownCallback(ctx context.Context, cbCtx CallbackContext) error {
	r.logger.Warn("unknown callback", "data", cbCtx.Data)
	return cbCtx.Client.AnswerCallbackQuery(ctx, cbCtx.QueryID, "", false)
}

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// Send sends a view as a new message.
func (r *Router) Send(ctx context.Context, client *telegram.Client, chatID int64, view *presenter.View) error {
	if view == nil {
		return nil
	}

	params := telegram.SendMessageParams{
		ChatID:    chatID,
		Text:      view.Text,
		ParseMode: view.ParseMode,
	}
	if view.Keyboard != nil {
		params.ReplyMarkup = convertKeyboard(view.Keyboard)
	}

	_, err := client.SendMessage(ctx, params)
	return err
}

// Edit replaces an existing message with a view.
func (r *Router) Edit(ctx context.Context, client *telegram.Client, chatID, messageID int64, view *presenter.View) error {
	if view == nil {
		return nil
	}

	var kb *telegram.InlineKeyboardMarkup
	if view.Keyboard != nil {
		kb = convertKeyboard(view.Keyboard)
	}

	_, err := client.EditMessageText(ctx, chatID, messageID, view.Text, view.ParseMode, kb)
	return err
}

// convertKeyboard converts presenter.InlineKeyboard to the wire format.
func convertKeyboard(kb *presenter.InlineKeyboard) *telegram.InlineKeyboardMarkup {
	if kb == nil || len(kb.Rows) == 0 {
		return nil
	}

	markup := &telegram.InlineKeyboardMarkup{
		InlineKeyboard: make([][]telegram.InlineKeyboardButton, len(kb.Rows)),
	}

	for i, row := range kb.Rows {
		markup.InlineKeyboard[i] = make([]telegram.InlineKeyboardButton, len(row))
		for j, btn := range row {
			markup.InlineKeyboard[i][j] = telegram.InlineKeyboardButton{
				Text:         btn.Text,
				CallbackData: btn.CallbackData,
				URL:          btn.URL,
			}
		}
	}

	return markup
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTE INFO (for startup logs)
// ══════════════════════════════════════════════════════════════════════════════

// RegisteredCommands returns the registered command names.
func (r *Router) RegisteredCommands() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	commands := make([]string, 0, len(r.commands))
	for cmd := range r.commands {
		commands = append(commands, cmd)
	}
	return commands
}

// RegisteredCallbackPrefixes returns the registered callback prefixes.
func (r *Router) RegisteredCallbackPrefixes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	prefixes := make([]string, 0, len(r.callbackPrefixes))
	for prefix := range r.callbackPrefixes {
		prefixes = append(prefixes, prefix)
	}
	return prefixes
}
