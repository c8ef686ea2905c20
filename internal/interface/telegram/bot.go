// Package telegram implements the Telegram bot interface for the
// admission score calculator.
package telegram

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/admit-hub/admission-calc-bot/internal/application/broadcast"
	"github.com/admit-hub/admission-calc-bot/internal/application/conversation"
	"github.com/admit-hub/admission-calc-bot/internal/application/query"
	"github.com/admit-hub/admission-calc-bot/internal/application/referral"
	"github.com/admit-hub/admission-calc-bot/internal/application/registration"
	"github.com/admit-hub/admission-calc-bot/internal/domain/ledger"
	"github.com/admit-hub/admission-calc-bot/internal/domain/shared"
	"github.com/admit-hub/admission-calc-bot/internal/domain/university"
	"github.com/admit-hub/admission-calc-bot/internal/domain/user"
	"github.com/admit-hub/admission-calc-bot/internal/infrastructure/external/telegram"
	"github.com/admit-hub/admission-calc-bot/internal/interface/telegram/handler"
	"github.com/admit-hub/admission-calc-bot/internal/interface/telegram/handler/callback"
	"github.com/admit-hub/admission-calc-bot/internal/interface/telegram/middleware"
	"github.com/admit-hub/admission-calc-bot/internal/interface/telegram/presenter"
)

// ══════════════════════════════════════════════════════════════════════════════
// BOT CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// BotConfig describes how the bot runs.
type BotConfig struct {
	// Token authenticates against the Bot API.
	Token string

	// AdminIDs lists Telegram IDs allowed to run admin commands.
	AdminIDs []int64

	// Debug turns on verbose logging.
	Debug bool

	// Logger receives the bot's structured output.
	Logger *slog.Logger

	// MaxConcurrentUpdates caps in-flight update goroutines.
	MaxConcurrentUpdates int

	// GracefulShutdownTimeout bounds the wait for in-flight updates
	// during Stop.
	GracefulShutdownTimeout time.Duration
}

// DefaultBotConfig returns the standard settings.
func DefaultBotConfig(token string) BotConfig {
	return BotConfig{
		Token:                   token,
		Debug:                   false,
		Logger:                  slog.Default(),
		MaxConcurrentUpdates:    64,
		GracefulShutdownTimeout: 30 * time.Second,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// BOT DEPENDENCIES
// Aggregates the application services the handlers need.
// ══════════════════════════════════════════════════════════════════════════════

// BotDependencies carries the application services the handlers use.
type BotDependencies struct {
	// Client is the Telegram client to use. When nil, NewBot creates
	// one from the config token. Passing it in lets the broadcast
	// sender share the same client.
	Client *telegram.Client

	// Services
	Registration *registration.Service
	Engine       *conversation.Engine
	Registry     *university.Registry
	Points       ledger.Ledger
	Referrals    *referral.Service
	Broadcaster  *broadcast.Service

	// Queries
	HistoryQuery *query.GetHistoryHandler
	StatsQuery   *query.GetUsageStatsHandler

	// Point amounts credited by /start
	SignupBonus   ledger.Points
	ReferralBonus ledger.Points
}

// ══════════════════════════════════════════════════════════════════════════════
// BOT
// Long polling, the middleware chain and handler dispatch live here.
// ══════════════════════════════════════════════════════════════════════════════

// Bot owns the polling loop and the update pipeline.
type Bot struct {
	config BotConfig
	client *telegram.Client
	router *Router
	logger *slog.Logger
	admins map[int64]bool

	// Set once in Start, before polling begins.
	botUsername string

	// Middlewares
	registration *middleware.RegistrationMiddleware
	rateLimiter  *middleware.RateLimiter
	recovery     *middleware.RecoveryMiddleware
	metrics      *middleware.MetricsMiddleware

	// Handlers
	startHandler     *handler.StartHandler
	calculateHandler *handler.CalculateHandler
	answerHandler    *handler.AnswerHandler
	balanceHandler   *handler.BalanceHandler
	historyHandler   *handler.HistoryHandler
	referHandler     *handler.ReferHandler
	statsHandler     *handler.StatsHandler
	broadcastHandler *handler.BroadcastHandler
	helpHandler      *handler.HelpHandler
	developerHandler *handler.DeveloperHandler
	calcCallback     *callback.CalculateHandler

	reports *presenter.ReportPresenter

	// Lifecycle
	running    bool
	runningMu  sync.RWMutex
	pollCancel context.CancelFunc
	updateSem  chan struct{}
	wg         sync.WaitGroup
}

// NewBot assembles the bot from its dependencies.
func NewBot(config BotConfig, deps BotDependencies) (*Bot, error) {
	if config.Token == "" && deps.Client == nil {
		return nil, errors.New("telegram token is required")
	}

	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.MaxConcurrentUpdates <= 0 {
		config.MaxConcurrentUpdates = DefaultBotConfig(config.Token).MaxConcurrentUpdates
	}
	if config.GracefulShutdownTimeout <= 0 {
		config.GracefulShutdownTimeout = DefaultBotConfig(config.Token).GracefulShutdownTimeout
	}

	client := deps.Client
	if client == nil {
		clientConfig := telegram.DefaultClientConfig(config.Token)
		clientConfig.Logger = config.Logger
		clientConfig.Debug = config.Debug
		client = telegram.NewClient(clientConfig)
	}

	// Presenters
	reports := presenter.NewReportPresenter()
	flow := presenter.NewFlowPresenter()

	// Metrics first so the recovery hook can reference it
	metricsConfig := middleware.DefaultMetricsConfig()
	metricsConfig.OnSlowRequest = func(command string, duration time.Duration, telegramID int64) {
		config.Logger.Warn("slow update",
			"command", command,
			"duration", duration,
			"telegram_id", telegramID,
		)
	}
	metrics := middleware.NewMetricsMiddleware(metricsConfig)

	recoveryConfig := middleware.DefaultRecoveryConfig()
	recoveryConfig.OnPanic = func(ctx context.Context, panicInfo *middleware.PanicInfo) {
		metrics.RecordPanic()
	}
	recovery := middleware.NewRecoveryMiddleware(recoveryConfig, config.Logger)

	rateLimitConfig := middleware.DefaultRateLimitConfig()
	rateLimitConfig.WhitelistedUsers = make(map[int64]bool, len(config.AdminIDs))
	for _, id := range config.AdminIDs {
		rateLimitConfig.WhitelistedUsers[id] = true
	}
	rateLimiter := middleware.NewRateLimiter(rateLimitConfig)

	registrationMW := middleware.NewRegistrationMiddleware(
		deps.Registration,
		middleware.DefaultRegistrationConfig(),
	)

	admins := make(map[int64]bool, len(config.AdminIDs))
	for _, id := range config.AdminIDs {
		admins[id] = true
	}

	bot := &Bot{
		config:       config,
		client:       client,
		logger:       config.Logger,
		admins:       admins,
		registration: registrationMW,
		rateLimiter:  rateLimiter,
		recovery:     recovery,
		metrics:      metrics,
		startHandler: handler.NewStartHandler(
			deps.Referrals,
			deps.Points,
			reports,
			deps.SignupBonus,
			deps.ReferralBonus,
			config.Logger,
		),
		calculateHandler: handler.NewCalculateHandler(deps.Registry, flow),
		answerHandler:    handler.NewAnswerHandler(deps.Engine, flow),
		balanceHandler:   handler.NewBalanceHandler(deps.Points, deps.Referrals, reports, deps.ReferralBonus),
		historyHandler:   handler.NewHistoryHandler(deps.HistoryQuery, reports),
		referHandler:     handler.NewReferHandler(deps.Referrals, reports, deps.ReferralBonus),
		statsHandler:     handler.NewStatsHandler(deps.StatsQuery, reports),
		broadcastHandler: handler.NewBroadcastHandler(deps.Broadcaster, reports),
		helpHandler:      handler.NewHelpHandler(reports),
		developerHandler: handler.NewDeveloperHandler(reports),
		calcCallback:     callback.NewCalculateHandler(deps.Engine, deps.Registry, flow),
		reports:          reports,
		updateSem:        make(chan struct{}, config.MaxConcurrentUpdates),
	}

	bot.router = NewRouter(RouterConfig{
		Logger: config.Logger,
		Debug:  config.Debug,
	})
	bot.registerRoutes()

	return bot, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTE REGISTRATION
// Each route is a small closure that builds the handler request,
// invokes the handler, and sends the resulting view.
// ══════════════════════════════════════════════════════════════════════════════

func (b *Bot) registerRoutes() {
	b.router.RegisterCommand("start", b.routeStart)
	b.router.RegisterCommand("calculate", b.routeCalculate)
	b.router.RegisterCommand("balance", b.routeBalance)
	b.router.RegisterCommand("history", b.routeHistory)
	b.router.RegisterCommand("refer", b.routeRefer)
	b.router.RegisterCommand("help", b.routeHelp)
	b.router.RegisterCommand("developer", b.routeDeveloper)
	b.router.RegisterCommand("stats", b.requireAdmin(b.routeStats))
	b.router.RegisterCommand("broadcast", b.requireAdmin(b.routeBroadcast))

	b.router.RegisterTextHandler(b.routeAnswer)

	// All calculator buttons share one handler; its Handle switches on
	// the exact data string.
	for _, prefix := range []string{
		presenter.CallbackStandardCalc,
		presenter.CallbackUniversityPrefix,
		presenter.CallbackPagePrefix,
		presenter.CallbackSittingYes,
		presenter.CallbackSittingNo,
	} {
		b.router.RegisterCallbackPrefix(prefix, b.routeCalcCallback)
	}
}

func (b *Bot) routeStart(ctx context.Context, c CommandContext) error {
	resp, err := b.startHandler.Handle(ctx, handler.StartRequest{
		TelegramID:     c.TelegramID,
		FirstName:      c.FirstName,
		Payload:        strings.TrimSpace(c.Args),
		JustRegistered: c.JustRegistered,
	})
	if err != nil {
		return err
	}

	if err := b.router.Send(ctx, c.Client, c.ChatID, resp.View); err != nil {
		return err
	}

	// The referrer may have never opened a chat with the bot, so
	// failures here are expected and must not fail the welcome.
	if resp.ReferrerNotice != nil {
		notice := resp.ReferrerNotice
		if err := b.router.Send(ctx, c.Client, notice.TelegramID, notice.View); err != nil {
			b.logger.Warn("failed to notify referrer",
				"referrer", notice.TelegramID,
				"error", err,
			)
		}
	}

	return nil
}

func (b *Bot) routeCalculate(ctx context.Context, c CommandContext) error {
	resp, err := b.calculateHandler.Handle(ctx, handler.CalculateRequest{TelegramID: c.TelegramID})
	if err != nil {
		return err
	}
	return b.router.Send(ctx, c.Client, c.ChatID, resp.View)
}

func (b *Bot) routeBalance(ctx context.Context, c CommandContext) error {
	resp, err := b.balanceHandler.Handle(ctx, handler.BalanceRequest{TelegramID: c.TelegramID})
	if err != nil {
		return err
	}
	return b.router.Send(ctx, c.Client, c.ChatID, resp.View)
}

func (b *Bot) routeHistory(ctx context.Context, c CommandContext) error {
	resp, err := b.historyHandler.Handle(ctx, handler.HistoryRequest{TelegramID: c.TelegramID})
	if err != nil {
		return err
	}
	return b.router.Send(ctx, c.Client, c.ChatID, resp.View)
}

func (b *Bot) routeRefer(ctx context.Context, c CommandContext) error {
	resp, err := b.referHandler.Handle(ctx, handler.ReferRequest{
		TelegramID:  c.TelegramID,
		BotUsername: c.BotUsername,
	})
	if err != nil {
		return err
	}
	return b.router.Send(ctx, c.Client, c.ChatID, resp.View)
}

func (b *Bot) routeHelp(ctx context.Context, c CommandContext) error {
	resp, err := b.helpHandler.Handle(ctx, handler.HelpRequest{TelegramID: c.TelegramID})
	if err != nil {
		return err
	}
	return b.router.Send(ctx, c.Client, c.ChatID, resp.View)
}

func (b *Bot) routeDeveloper(ctx context.Context, c CommandContext) error {
	resp, err := b.developerHandler.Handle(ctx)
	if err != nil {
		return err
	}
	return b.router.Send(ctx, c.Client, c.ChatID, resp.View)
}

func (b *Bot) routeStats(ctx context.Context, c CommandContext) error {
	resp, err := b.statsHandler.Handle(ctx, handler.StatsRequest{TelegramID: c.TelegramID})
	if err != nil {
		return err
	}
	return b.router.Send(ctx, c.Client, c.ChatID, resp.View)
}

func (b *Bot) routeBroadcast(ctx context.Context, c CommandContext) error {
	resp, err := b.broadcastHandler.Handle(ctx, handler.BroadcastRequest{
		TelegramID: c.TelegramID,
		Text:       c.Args,
	})
	if err != nil {
		return err
	}
	return b.router.Send(ctx, c.Client, c.ChatID, resp.View)
}

func (b *Bot) routeAnswer(ctx context.Context, c TextContext) error {
	resp, err := b.answerHandler.Handle(ctx, handler.AnswerRequest{
		TelegramID: c.TelegramID,
		Text:       c.Text,
	})
	if err != nil {
		return err
	}
	return b.router.Send(ctx, c.Client, c.ChatID, resp.View)
}

func (b *Bot) routeCalcCallback(ctx context.Context, c CallbackContext) error {
	resp, err := b.calcCallback.Handle(ctx, callback.CalculateRequest{
		TelegramID: c.TelegramID,
		Data:       c.Data,
	})
	if err != nil {
		_ = c.Client.AnswerCallbackQuery(ctx, c.QueryID, "", false)
		return err
	}

	if err := c.Client.AnswerCallbackQuery(ctx, c.QueryID, resp.AnswerText, false); err != nil {
		b.logger.Warn("failed to answer callback", "error", err)
	}

	if resp.Edit != nil {
		return b.router.Edit(ctx, c.Client, c.ChatID, c.MessageID, resp.Edit)
	}
	return nil
}

// requireAdmin wraps a command handler with an admin check.
func (b *Bot) requireAdmin(next CommandHandlerFunc) CommandHandlerFunc {
	return func(ctx context.Context, c CommandContext) error {
		if !b.isAdmin(c.TelegramID) {
			return b.router.Send(ctx, c.Client, c.ChatID, b.reports.FormatAccessDenied())
		}
		return next(ctx, c)
	}
}

func (b *Bot) isAdmin(telegramID int64) bool {
	return b.admins[telegramID]
}

// ══════════════════════════════════════════════════════════════════════════════
// LIFECYCLE MANAGEMENT
// ══════════════════════════════════════════════════════════════════════════════

// Start verifies the token, clears any webhook, and blocks polling for
// updates until the context is cancelled or Stop is called.
func (b *Bot) Start(ctx context.Context) error {
	b.runningMu.Lock()
	if b.running {
		b.runningMu.Unlock()
		return errors.New("bot is already running")
	}
	b.running = true
	b.runningMu.Unlock()

	me, err := b.client.GetMe(ctx)
	if err != nil {
		return err
	}
	b.botUsername = me.Username

	b.logger.Info("bot verified",
		"id", me.ID,
		"username", me.Username,
		"commands", b.router.RegisteredCommands(),
	)

	// Long polling and webhooks are mutually exclusive on the API side.
	if err := b.client.DeleteWebhook(ctx, false); err != nil {
		b.logger.Warn("failed to delete webhook", "error", err)
	}

	pollCtx, cancel := context.WithCancel(ctx)
	b.runningMu.Lock()
	b.pollCancel = cancel
	b.runningMu.Unlock()

	return b.client.StartPolling(pollCtx, b.handleUpdate)
}

// Stop halts polling and waits for in-flight updates.
func (b *Bot) Stop(ctx context.Context) error {
	b.runningMu.Lock()
	if !b.running {
		b.runningMu.Unlock()
		return nil
	}
	b.running = false
	cancel := b.pollCancel
	b.runningMu.Unlock()

	b.logger.Info("stopping telegram bot")

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.logger.Info("all updates completed gracefully")
	case <-time.After(b.config.GracefulShutdownTimeout):
		b.logger.Warn("graceful shutdown timeout exceeded")
	case <-ctx.Done():
		b.logger.Warn("context cancelled during shutdown")
		return ctx.Err()
	}

	return nil
}

// IsRunning reports whether polling is active.
func (b *Bot) IsRunning() bool {
	b.runningMu.RLock()
	defer b.runningMu.RUnlock()
	return b.running
}

// ══════════════════════════════════════════════════════════════════════════════
// UPDATE HANDLING
// The polling loop delivers updates one at a time; each is processed in
// its own goroutine so one slow handler cannot stall the queue. The
// semaphore bounds the fan-out.
// ══════════════════════════════════════════════════════════════════════════════

// handleUpdate schedules processing of a single Telegram update.
func (b *Bot) handleUpdate(ctx context.Context, update *telegram.Update) error {
	if update == nil {
		return nil
	}

	select {
	case b.updateSem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer func() { <-b.updateSem }()
		b.processUpdate(ctx, update)
	}()

	return nil
}

// processUpdate runs the middleware chain and dispatches one update.
func (b *Bot) processUpdate(ctx context.Context, update *telegram.Update) {
	ctx = middleware.ContextWithRequestID(ctx, uuid.NewString())

	var err error
	switch {
	case update.Message != nil:
		err = b.handleMessage(ctx, update.Message)
	case update.CallbackQuery != nil:
		err = b.handleCallbackQuery(ctx, update.CallbackQuery)
	default:
		return
	}

	if err != nil {
		b.logger.Error("failed to handle update",
			"update_id", update.UpdateID,
			"request_id", middleware.RequestIDFromContext(ctx),
			"error", err,
		)
	}
}

// handleMessage runs one incoming message through the pipeline.
func (b *Bot) handleMessage(ctx context.Context, msg *telegram.Message) error {
	if msg == nil || msg.From == nil || msg.From.IsBot {
		return nil
	}
	if !telegram.IsPrivateChat(msg) {
		return nil
	}

	telegramID := msg.From.ID
	chatID := msg.Chat.ID
	ctx = middleware.ContextWithTelegramID(ctx, telegramID)

	rl := b.rateLimiter.Check(telegramID)
	if !rl.Allowed {
		if !rl.IsBanned && rl.ResponseMessage != "" {
			_, err := b.client.SendText(ctx, chatID, rl.ResponseMessage)
			return err
		}
		return nil
	}

	created, err := b.registration.EnsureKnown(ctx, user.NewUserParams{
		TelegramID: user.TelegramID(telegramID),
		Username:   msg.From.Username,
		FirstName:  msg.From.FirstName,
	})
	if err != nil {
		b.logger.Error("registration failed",
			"telegram_id", telegramID,
			"error", err,
		)
		return b.router.Send(ctx, b.client, chatID,
			b.reports.FormatError("Service is temporarily unavailable. Please try again in a minute."))
	}

	command := telegram.ExtractCommand(msg)
	if command != "" {
		return b.dispatchCommand(ctx, command, CommandContext{
			TelegramID:     telegramID,
			ChatID:         chatID,
			MessageID:      msg.MessageID,
			Args:           telegram.ExtractCommandArgs(msg),
			FirstName:      msg.From.FirstName,
			BotUsername:    b.botUsername,
			JustRegistered: created,
			Client:         b.client,
		})
	}

	if msg.Text != "" {
		return b.dispatchText(ctx, TextContext{
			TelegramID: telegramID,
			ChatID:     chatID,
			Text:       msg.Text,
			Client:     b.client,
		})
	}

	return nil
}

// dispatchCommand runs one command through metrics and panic recovery.
func (b *Bot) dispatchCommand(ctx context.Context, command string, c CommandContext) error {
	rc := b.metrics.Start(command, c.TelegramID)

	result, err := b.recovery.RecoverWithHandler(ctx, c.TelegramID, command, func() error {
		return b.router.HandleCommand(ctx, command, c)
	})
	rc.End(err)

	if result.Recovered {
		_, sendErr := b.client.SendHTML(ctx, c.ChatID, result.UserMessage)
		return sendErr
	}

	// Storage and upstream failures get a generic notice; everything
	// else is presented by the handler itself.
	if shared.IsExternalService(err) {
		if sendErr := b.router.Send(ctx, c.Client, c.ChatID,
			b.reports.FormatError("Service is temporarily unavailable. Please try again in a minute.")); sendErr != nil {
			b.logger.Warn("failed to send error notice", "error", sendErr)
		}
	}
	return err
}

// dispatchText runs a dialog answer through metrics and panic recovery.
func (b *Bot) dispatchText(ctx context.Context, c TextContext) error {
	rc := b.metrics.Start("answer", c.TelegramID)

	result, err := b.recovery.RecoverWithHandler(ctx, c.TelegramID, "answer", func() error {
		return b.router.HandleText(ctx, c)
	})
	rc.End(err)

	if result.Recovered {
		_, sendErr := b.client.SendHTML(ctx, c.ChatID, result.UserMessage)
		return sendErr
	}
	return err
}

// handleCallbackQuery processes a callback query from an inline keyboard.
func (b *Bot) handleCallbackQuery(ctx context.Context, cq *telegram.CallbackQuery) error {
	if cq == nil || cq.From == nil {
		return nil
	}

	telegramID := cq.From.ID
	ctx = middleware.ContextWithTelegramID(ctx, telegramID)

	var chatID, messageID int64
	if cq.Message != nil {
		chatID = cq.Message.Chat.ID
		messageID = cq.Message.MessageID
	}

	rl := b.rateLimiter.Check(telegramID)
	if !rl.Allowed {
		return b.client.AnswerCallbackQuery(ctx, cq.ID, "Too fast. Give it a moment.", true)
	}

	if _, err := b.registration.EnsureKnown(ctx, user.NewUserParams{
		TelegramID: user.TelegramID(telegramID),
		Username:   cq.From.Username,
		FirstName:  cq.From.FirstName,
	}); err != nil {
		b.logger.Error("registration failed",
			"telegram_id", telegramID,
			"error", err,
		)
		return b.client.AnswerCallbackQuery(ctx, cq.ID, "Temporary hiccup. Try again.", true)
	}

	label := callbackMetricLabel(cq.Data)
	rc := b.metrics.Start(label, telegramID)

	result, err := b.recovery.RecoverWithHandler(ctx, telegramID, label, func() error {
		return b.router.HandleCallback(ctx, CallbackContext{
			TelegramID:  telegramID,
			ChatID:      chatID,
			MessageID:   messageID,
			QueryID:     cq.ID,
			Data:        cq.Data,
			FirstName:   cq.From.FirstName,
			BotUsername: b.botUsername,
			Client:      b.client,
		})
	})
	rc.End(err)

	if result.Recovered {
		if chatID != 0 {
			_, _ = b.client.SendHTML(ctx, chatID, result.UserMessage)
		}
		return b.client.AnswerCallbackQuery(ctx, cq.ID, "", false)
	}
	return err
}

// callbackMetricLabel reduces callback data to its scheme so metrics
// stay low cardinality ("calc:uni:unilag" becomes "callback:calc").
func callbackMetricLabel(data string) string {
	scheme := data
	if i := strings.IndexByte(data, ':'); i > 0 {
		scheme = data[:i]
	}
	return "callback:" + scheme
}

// ══════════════════════════════════════════════════════════════════════════════
// INTROSPECTION
// ══════════════════════════════════════════════════════════════════════════════

// MetricsSnapshot returns a point-in-time view of update metrics.
func (b *Bot) MetricsSnapshot() *middleware.MetricsSnapshot {
	return b.metrics.Snapshot()
}

// Client exposes the underlying Bot API client.
// Use sparingly. Prefer going through handlers.
func (b *Bot) Client() *telegram.Client {
	return b.client
}
