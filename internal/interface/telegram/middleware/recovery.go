// Package middleware contains the bot's update-processing middlewares.
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECOVERY MIDDLEWARE
// A crashing handler must not take the polling loop down. The panic is
// logged with its stack and the user gets a generic apology, never a
// trace.
// ══════════════════════════════════════════════════════════════════════════════

// RecoveryConfig tunes panic handling.
type RecoveryConfig struct {
	// EnableStackTrace captures the stack into PanicInfo.
	EnableStackTrace bool

	// OnPanic runs after logging. Counters and alerting hook in here.
	OnPanic func(ctx context.Context, panicInfo *PanicInfo)

	// UserErrorMessage is what the affected user sees.
	UserErrorMessage string

	// MaxPanicsPerMinute caps full panic processing per minute.
	MaxPanicsPerMinute int
}

// DefaultRecoveryConfig returns the standard settings.
func DefaultRecoveryConfig() RecoveryConfig {
	return RecoveryConfig{
		EnableStackTrace: true,
		OnPanic:          nil,
		UserErrorMessage: "😔 Something went wrong on our side.\n\n" +
			"The team already knows about it. Please try again in a few minutes.",
		MaxPanicsPerMinute: 100,
	}
}

// PanicInfo describes one recovered panic.
type PanicInfo struct {
	// Error is the panic value normalized to an error.
	Error error

	// PanicValue is whatever was passed to panic.
	PanicValue interface{}

	// StackTrace is the captured goroutine stack.
	StackTrace string

	// RequestID is the request ID from context, when present.
	RequestID string

	// TelegramID is the Telegram user ID, when known.
	TelegramID int64

	// Command is the command that was being processed, when known.
	Command string

	// Timestamp records when the panic happened.
	Timestamp time.Time
}

// RecoveryMiddleware converts handler panics into user-facing errors.
type RecoveryMiddleware struct {
	config RecoveryConfig
	logger *slog.Logger
	budget *panicBudget
}

// NewRecoveryMiddleware builds the middleware around a logger.
func NewRecoveryMiddleware(config RecoveryConfig, logger *slog.Logger) *RecoveryMiddleware {
	if logger == nil {
		logger = slog.Default()
	}

	return &RecoveryMiddleware{
		config: config,
		logger: logger,
		budget: newPanicBudget(config.MaxPanicsPerMinute),
	}
}

// RecoveryResult tells the dispatcher how a handler call ended.
type RecoveryResult struct {
	// Recovered is true when a panic was caught.
	Recovered bool

	// UserMessage is what to send to the affected chat.
	UserMessage string
}

// RecoverWithHandler runs the handler, catching any panic.
// On panic the returned result carries the user-facing message; otherwise
// the handler's own error comes back untouched.
func (m *RecoveryMiddleware) RecoverWithHandler(
	ctx context.Context,
	telegramID int64,
	command string,
	handler func() error,
) (result *RecoveryResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = m.handlePanic(ctx, r, telegramID, command)
			err = nil
		}
	}()

	err = handler()
	return &RecoveryResult{Recovered: false}, err
}

// handlePanic logs a recovered panic and fires the OnPanic hook.
func (m *RecoveryMiddleware) handlePanic(
	ctx context.Context,
	value interface{},
	telegramID int64,
	command string,
) *RecoveryResult {
	out := &RecoveryResult{
		Recovered:   true,
		UserMessage: m.config.UserErrorMessage,
	}

	// Over budget: reply to the user but skip logging and hooks.
	if !m.budget.allow() {
		return out
	}

	info := &PanicInfo{
		Error:      panicToError(value),
		PanicValue: value,
		Timestamp:  time.Now().UTC(),
		TelegramID: telegramID,
		Command:    command,
		RequestID:  RequestIDFromContext(ctx),
	}
	if m.config.EnableStackTrace {
		info.StackTrace = string(debug.Stack())
	}

	m.logger.Error("panic recovered",
		"error", info.Error,
		"command", command,
		"telegram_id", telegramID,
		"request_id", info.RequestID,
		"stack", info.StackTrace,
	)

	if m.config.OnPanic != nil {
		m.config.OnPanic(ctx, info)
	}

	return out
}

// panicToError normalizes a panic value into an error.
func panicToError(value interface{}) error {
	switch v := value.(type) {
	case error:
		return v
	case string:
		return fmt.Errorf("%s", v)
	default:
		return fmt.Errorf("panic: %v", v)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// PANIC BUDGET
// ══════════════════════════════════════════════════════════════════════════════

// panicBudget caps how many panics per minute get the full logging
// treatment, so a crash loop cannot flood the log.
type panicBudget struct {
	mu     sync.Mutex
	count  int
	limit  int
	window time.Time
}

func newPanicBudget(limit int) *panicBudget {
	return &panicBudget{limit: limit, window: time.Now()}
}

func (p *panicBudget) allow() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	if now.Sub(p.window) > time.Minute {
		p.count = 0
		p.window = now
	}

	if p.count >= p.limit {
		return false
	}

	p.count++
	return true
}
