// Package telegram wraps the Telegram Bot API: typed wire structs, a
// retrying HTTP client, a long polling runner and the broadcast sender
// used for admin announcements.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/admit-hub/admission-calc-bot/pkg/circuitbreaker"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// ClientConfig configures the API client.
type ClientConfig struct {
	Token   string
	BaseURL string

	// Timeout must exceed the long polling timeout plus network slack.
	Timeout time.Duration

	RetryAttempts int
	RetryDelay    time.Duration

	Logger *slog.Logger
	Debug  bool
}

// DefaultClientConfig returns the production defaults for a bot token.
func DefaultClientConfig(token string) ClientConfig {
	return ClientConfig{
		Token:         token,
		BaseURL:       "https://api.telegram.org",
		Timeout:       60 * time.Second,
		RetryAttempts: 3,
		RetryDelay:    1 * time.Second,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client talks to the Telegram Bot API over HTTPS.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	logger     *slog.Logger

	offsetMu sync.Mutex
	offset   int64 // next update_id to request
}

// NewClient builds a client from the given config.
func NewClient(config ClientConfig) *Client {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://api.telegram.org"
	}

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     config.Logger,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// WIRE TYPES
// ══════════════════════════════════════════════════════════════════════════════

// Update is one entry from getUpdates.
type Update struct {
	UpdateID      int64          `json:"update_id"`
	Message       *Message       `json:"message,omitempty"`
	CallbackQuery *CallbackQuery `json:"callback_query,omitempty"`
	EditedMessage *Message       `json:"edited_message,omitempty"`
}

// Message is an incoming or sent Telegram message.
type Message struct {
	MessageID int64           `json:"message_id"`
	From      *User           `json:"from,omitempty"`
	Chat      *Chat           `json:"chat"`
	Date      int64           `json:"date"`
	Text      string          `json:"text,omitempty"`
	Entities  []MessageEntity `json:"entities,omitempty"`
}

// MessageEntity marks a span of the message text, such as a bot command.
type MessageEntity struct {
	Type   string `json:"type"`
	Offset int    `json:"offset"`
	Length int    `json:"length"`
	User   *User  `json:"user,omitempty"`
}

// User is a Telegram account.
type User struct {
	ID           int64  `json:"id"`
	IsBot        bool   `json:"is_bot"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name,omitempty"`
	Username     string `json:"username,omitempty"`
	LanguageCode string `json:"language_code,omitempty"`
}

// FullName joins first and last name when both are present.
func (u *User) FullName() string {
	if u.LastName != "" {
		return u.FirstName + " " + u.LastName
	}
	return u.FirstName
}

// Chat is the conversation a message belongs to.
type Chat struct {
	ID        int64  `json:"id"`
	Type      string `json:"type"`
	Title     string `json:"title,omitempty"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// CallbackQuery is a press on an inline keyboard button.
type CallbackQuery struct {
	ID              string   `json:"id"`
	From            *User    `json:"from"`
	Message         *Message `json:"message,omitempty"`
	InlineMessageID string   `json:"inline_message_id,omitempty"`
	Data            string   `json:"data,omitempty"`
}

// InlineKeyboardMarkup is the reply_markup payload for inline keyboards.
type InlineKeyboardMarkup struct {
	InlineKeyboard [][]InlineKeyboardButton `json:"inline_keyboard"`
}

// InlineKeyboardButton is a single keyboard button. Exactly one of
// CallbackData and URL should be set.
type InlineKeyboardButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data,omitempty"`
	URL          string `json:"url,omitempty"`
}

// APIResponse is the envelope every Bot API method responds with.
type APIResponse struct {
	OK          bool                `json:"ok"`
	Result      json.RawMessage     `json:"result,omitempty"`
	Description string              `json:"description,omitempty"`
	ErrorCode   int                 `json:"error_code,omitempty"`
	Parameters  *ResponseParameters `json:"parameters,omitempty"`
}

// ResponseParameters carries extra hints attached to some errors.
type ResponseParameters struct {
	MigrateToChatID int64 `json:"migrate_to_chat_id,omitempty"`
	RetryAfter      int   `json:"retry_after,omitempty"`
}

// ══════════════════════════════════════════════════════════════════════════════
// BOT API METHODS
// ══════════════════════════════════════════════════════════════════════════════

// SendMessageParams are the options for SendMessage.
type SendMessageParams struct {
	ChatID              int64
	Text                string
	ParseMode           string // "HTML", "Markdown", "MarkdownV2"
	DisableNotification bool
	DisableWebPreview   bool
	ReplyMarkup         *InlineKeyboardMarkup
}

// SendMessage sends a message to a chat.
func (c *Client) SendMessage(ctx context.Context, params SendMessageParams) (*Message, error) {
	body := map[string]interface{}{
		"chat_id": params.ChatID,
		"text":    params.Text,
	}
	if params.ParseMode != "" {
		body["parse_mode"] = params.ParseMode
	}
	if params.DisableNotification {
		body["disable_notification"] = true
	}
	if params.DisableWebPreview {
		body["disable_web_page_preview"] = true
	}
	if params.ReplyMarkup != nil {
		body["reply_markup"] = params.ReplyMarkup
	}

	var message Message
	if err := c.callAPI(ctx, "sendMessage", body, &message); err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	return &message, nil
}

// SendText sends a plain text message.
func (c *Client) SendText(ctx context.Context, chatID int64, text string) (*Message, error) {
	return c.SendMessage(ctx, SendMessageParams{ChatID: chatID, Text: text})
}

// SendHTML sends a message with HTML parse mode.
func (c *Client) SendHTML(ctx context.Context, chatID int64, html string) (*Message, error) {
	return c.SendMessage(ctx, SendMessageParams{
		ChatID:    chatID,
		Text:      html,
		ParseMode: "HTML",
	})
}

// EditMessageText replaces the text (and optionally the keyboard) of a
// previously sent message.
func (c *Client) EditMessageText(ctx context.Context, chatID int64, messageID int64, text string, parseMode string, keyboard *InlineKeyboardMarkup) (*Message, error) {
	body := map[string]interface{}{
		"chat_id":    chatID,
		"message_id": messageID,
		"text":       text,
	}
	if parseMode != "" {
		body["parse_mode"] = parseMode
	}
	if keyboard != nil {
		body["reply_markup"] = keyboard
	}

	var message Message
	if err := c.callAPI(ctx, "editMessageText", body, &message); err != nil {
		return nil, fmt.Errorf("edit message text: %w", err)
	}
	return &message, nil
}

// AnswerCallbackQuery acknowledges a button press. With text it shows a
// toast, or a modal alert when showAlert is set.
func (c *Client) AnswerCallbackQuery(ctx context.Context, callbackQueryID string, text string, showAlert bool) error {
	body := map[string]interface{}{
		"callback_query_id": callbackQueryID,
	}
	if text != "" {
		body["text"] = text
		body["show_alert"] = showAlert
	}

	var result bool
	if err := c.callAPI(ctx, "answerCallbackQuery", body, &result); err != nil {
		return fmt.Errorf("answer callback query: %w", err)
	}
	return nil
}

// GetUpdates long polls for new updates.
func (c *Client) GetUpdates(ctx context.Context, offset int64, limit int, timeout int) ([]Update, error) {
	body := map[string]interface{}{
		"timeout": timeout,
	}
	if offset > 0 {
		body["offset"] = offset
	}
	if limit > 0 {
		body["limit"] = limit
	}

	var updates []Update
	if err := c.callAPI(ctx, "getUpdates", body, &updates); err != nil {
		return nil, fmt.Errorf("get updates: %w", err)
	}
	return updates, nil
}

// DeleteWebhook removes a previously configured webhook.
// Long polling refuses to start while a webhook is set, so the bot
// drops any leftover webhook before its first getUpdates call.
func (c *Client) DeleteWebhook(ctx context.Context, dropPendingUpdates bool) error {
	body := map[string]interface{}{
		"drop_pending_updates": dropPendingUpdates,
	}

	var result bool
	if err := c.callAPI(ctx, "deleteWebhook", body, &result); err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}
	return nil
}

// GetMe returns the bot's own account.
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	var user User
	if err := c.callAPI(ctx, "getMe", nil, &user); err != nil {
		return nil, fmt.Errorf("get me: %w", err)
	}
	return &user, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// LONG POLLING RUNNER
// ══════════════════════════════════════════════════════════════════════════════

// UpdateHandler processes one Telegram update.
type UpdateHandler func(ctx context.Context, update *Update) error

// StartPolling runs the long polling loop until ctx is cancelled.
// Handler errors are logged and polling continues.
func (c *Client) StartPolling(ctx context.Context, handler UpdateHandler) error {
	c.logger.Info("starting telegram long polling")

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("stopping telegram long polling")
			return ctx.Err()
		default:
		}

		updates, err := c.GetUpdates(ctx, c.currentOffset(), 100, 30)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			c.logger.Error("failed to get updates", "error", err)
			time.Sleep(5 * time.Second)
			continue
		}

		for i := range updates {
			update := &updates[i]
			c.advanceOffset(update.UpdateID)

			if err := handler(ctx, update); err != nil {
				c.logger.Error("failed to handle update",
					"update_id", update.UpdateID,
					"error", err)
			}
		}
	}
}

func (c *Client) currentOffset() int64 {
	c.offsetMu.Lock()
	defer c.offsetMu.Unlock()
	return c.offset
}

// advanceOffset confirms an update so the next getUpdates skips past it.
func (c *Client) advanceOffset(updateID int64) {
	c.offsetMu.Lock()
	defer c.offsetMu.Unlock()

	if updateID >= c.offset {
		c.offset = updateID + 1
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// BROADCAST SENDER
// ══════════════════════════════════════════════════════════════════════════════

// ErrRecipientUnreachable marks sends that can never succeed for this
// chat: the user blocked the bot or the chat does not exist.
var ErrRecipientUnreachable = errors.New("telegram: recipient unreachable")

// BroadcastSender adapts the Client to the broadcast.Sender interface
// used by the announcement fan-out. A circuit breaker sits in front of
// the API, so a Telegram outage mid-broadcast fails the remaining sends
// fast instead of walking every recipient through the full retry budget.
type BroadcastSender struct {
	client  *Client
	breaker *circuitbreaker.CircuitBreaker
}

// NewBroadcastSender creates a new BroadcastSender.
func NewBroadcastSender(client *Client) *BroadcastSender {
	logger := client.logger
	breaker := circuitbreaker.TelegramAPIBreaker(
		func(name string, from, to circuitbreaker.State) {
			logger.Warn("circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String())
		},
		// Blocked bots and deleted chats are per-recipient outcomes,
		// not signs of the API being down.
		circuitbreaker.WithIsFailure(func(err error) bool {
			return !client.isUserBlocked(err) && !client.isChatNotFound(err)
		}),
	)

	return &BroadcastSender{
		client:  client,
		breaker: breaker,
	}
}

// SendMessage delivers one plain-text message to one chat. While the
// breaker is open it returns circuitbreaker.ErrCircuitOpen, which the
// fan-out records as a plain failure, not an unreachable recipient.
func (s *BroadcastSender) SendMessage(ctx context.Context, chatID int64, text string) error {
	err := s.breaker.Execute(ctx, func(ctx context.Context) error {
		_, sendErr := s.client.SendText(ctx, chatID, text)
		return sendErr
	})
	if err == nil {
		return nil
	}

	if s.client.isUserBlocked(err) || s.client.isChatNotFound(err) {
		return fmt.Errorf("%w: %v", ErrRecipientUnreachable, err)
	}
	return err
}

// ══════════════════════════════════════════════════════════════════════════════
// KEYBOARD BUILDER
// ══════════════════════════════════════════════════════════════════════════════

// KeyboardBuilder assembles inline keyboards row by row.
type KeyboardBuilder struct {
	rows [][]InlineKeyboardButton
}

// NewKeyboard starts an empty keyboard.
func NewKeyboard() *KeyboardBuilder {
	return &KeyboardBuilder{rows: make([][]InlineKeyboardButton, 0)}
}

// Row appends one row of buttons.
func (kb *KeyboardBuilder) Row(buttons ...InlineKeyboardButton) *KeyboardBuilder {
	kb.rows = append(kb.rows, buttons)
	return kb
}

// Build returns the finished markup.
func (kb *KeyboardBuilder) Build() *InlineKeyboardMarkup {
	return &InlineKeyboardMarkup{InlineKeyboard: kb.rows}
}

// Button makes a callback button.
func Button(text, callbackData string) InlineKeyboardButton {
	return InlineKeyboardButton{Text: text, CallbackData: callbackData}
}

// URLButton makes a button that opens a link.
func URLButton(text, url string) InlineKeyboardButton {
	return InlineKeyboardButton{Text: text, URL: url}
}

// ══════════════════════════════════════════════════════════════════════════════
// TRANSPORT
// ══════════════════════════════════════════════════════════════════════════════

// callAPI performs one Bot API call with retries on transient failures.
func (c *Client) callAPI(ctx context.Context, method string, body map[string]interface{}, result interface{}) error {
	var lastErr error

	for attempt := 0; attempt <= c.config.RetryAttempts; attempt++ {
		if attempt > 0 {
			if err := c.waitBeforeRetry(ctx, attempt, lastErr); err != nil {
				return err
			}
		}

		lastErr = c.doRequest(ctx, method, body, result)
		if lastErr == nil {
			return nil
		}
		if !c.isRetryableError(lastErr) {
			return lastErr
		}
	}

	return fmt.Errorf("api call failed after %d retries: %w", c.config.RetryAttempts, lastErr)
}

// waitBeforeRetry sleeps out the exponential backoff for the attempt,
// stretched to a server-provided retry_after when that is longer.
func (c *Client) waitBeforeRetry(ctx context.Context, attempt int, lastErr error) error {
	delay := c.config.RetryDelay * time.Duration(1<<uint(attempt-1))

	var apiErr *APIError
	if errors.As(lastErr, &apiErr) && apiErr.RetryAfter > 0 {
		if ra := time.Duration(apiErr.RetryAfter) * time.Second; ra > delay {
			delay = ra
		}
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

// doRequest performs a single HTTP round trip to the Bot API.
func (c *Client) doRequest(ctx context.Context, method string, body map[string]interface{}, result interface{}) error {
	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		payload = bytes.NewReader(raw)
	}

	url := fmt.Sprintf("%s/bot%s/%s", c.config.BaseURL, c.config.Token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, payload)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if c.config.Debug {
		c.logger.Debug("telegram api call", "method", method)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	return decodeAPIResponse(resp.Body, result)
}

// decodeAPIResponse unpacks the Bot API envelope and, on success, the
// result payload into out.
func decodeAPIResponse(r io.Reader, out interface{}) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var envelope APIResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}

	if !envelope.OK {
		apiErr := &APIError{
			Code:        envelope.ErrorCode,
			Description: envelope.Description,
		}
		if envelope.Parameters != nil {
			apiErr.RetryAfter = envelope.Parameters.RetryAfter
		}
		return apiErr
	}

	if out != nil && len(envelope.Result) > 0 {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return fmt.Errorf("unmarshal result: %w", err)
		}
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR CLASSIFICATION
// ══════════════════════════════════════════════════════════════════════════════

// APIError is a Bot API level failure (ok=false in the envelope).
type APIError struct {
	Code        int
	Description string
	RetryAfter  int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram api error %d: %s", e.Code, e.Description)
}

// isRetryableError reports whether another attempt could succeed.
func (c *Client) isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == 429:
			return true
		case apiErr.Code >= 500:
			return true
		case apiErr.Code >= 400:
			return false
		}
	}

	// Transport-level failures.
	return containsAny(err.Error(), "timeout", "connection refused", "temporary", "reset")
}

// isChatNotFound reports whether the chat is gone.
func (c *Client) isChatNotFound(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == 400 &&
			containsAny(apiErr.Description, "chat not found", "CHAT_NOT_FOUND")
	}
	return false
}

// isUserBlocked reports whether the recipient blocked the bot or left.
func (c *Client) isUserBlocked(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == 403 ||
			containsAny(apiErr.Description, "bot was blocked", "user is deactivated", "BLOCKED_BY_USER")
	}
	return false
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// ══════════════════════════════════════════════════════════════════════════════
// MESSAGE HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// ExtractCommand returns the command name from a message, without the
// leading slash or a trailing @botname mention.
func ExtractCommand(msg *Message) string {
	if msg == nil || msg.Text == "" {
		return ""
	}

	for _, entity := range msg.Entities {
		if entity.Type != "bot_command" || entity.Offset != 0 {
			continue
		}

		cmd := msg.Text[1:entity.Length]
		if at := strings.IndexByte(cmd, '@'); at >= 0 {
			return cmd[:at]
		}
		return cmd
	}
	return ""
}

// ExtractCommandArgs returns the text following the command, with the
// separating space trimmed.
func ExtractCommandArgs(msg *Message) string {
	if msg == nil || msg.Text == "" {
		return ""
	}

	for _, entity := range msg.Entities {
		if entity.Type != "bot_command" || entity.Offset != 0 {
			continue
		}
		if entity.Length >= len(msg.Text) {
			return ""
		}
		return strings.TrimPrefix(msg.Text[entity.Length:], " ")
	}
	return ""
}

// IsPrivateChat reports whether the message came from a one-on-one chat.
func IsPrivateChat(msg *Message) bool {
	return msg != nil && msg.Chat != nil && msg.Chat.Type == "private"
}
