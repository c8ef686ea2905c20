// Package main - точка входа Telegram-бота калькулятора admission score.
//
// Бот ведёт абитуриента по шагам расчёта проходного балла, хранит баллы
// и историю начислений в PostgreSQL и отдаёт служебные HTTP-запросы:
// health-пробы, статистику использования и публичный каталог
// университетов.
//
// Архитектура повторяет слои приложения:
// - Domain: чистая бизнес-логика (scoring, ledger, user, university)
// - Application: сценарии (conversation, registration, referral, broadcast, query)
// - Infrastructure: PostgreSQL, Redis, Telegram API, каталог
// - Interface: Telegram-хендлеры и HTTP endpoints
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/admit-hub/admission-calc-bot/config"

	// Application services
	"github.com/admit-hub/admission-calc-bot/internal/application/broadcast"
	"github.com/admit-hub/admission-calc-bot/internal/application/conversation"
	"github.com/admit-hub/admission-calc-bot/internal/application/query"
	"github.com/admit-hub/admission-calc-bot/internal/application/referral"
	"github.com/admit-hub/admission-calc-bot/internal/application/registration"

	// Domain layer
	"github.com/admit-hub/admission-calc-bot/internal/domain/ledger"
	"github.com/admit-hub/admission-calc-bot/internal/domain/user"

	// Infrastructure
	"github.com/admit-hub/admission-calc-bot/internal/infrastructure/catalog"
	tgclient "github.com/admit-hub/admission-calc-bot/internal/infrastructure/external/telegram"
	"github.com/admit-hub/admission-calc-bot/internal/infrastructure/persistence/postgres"
	"github.com/admit-hub/admission-calc-bot/internal/infrastructure/persistence/redis"

	// Interfaces
	httpserver "github.com/admit-hub/admission-calc-bot/internal/interface/http"
	"github.com/admit-hub/admission-calc-bot/internal/interface/http/handlers"
	"github.com/admit-hub/admission-calc-bot/internal/interface/telegram"

	// Shared helpers
	"github.com/admit-hub/admission-calc-bot/pkg/logger"
	"github.com/admit-hub/admission-calc-bot/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. ЧТЕНИЕ КОНФИГУРАЦИИ
	// ─────────────────────────────────────────────────────────────────────────

	// .env нужен только локально, в production переменные заданы напрямую.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. НАСТРОЙКА ЛОГГЕРА
	// ─────────────────────────────────────────────────────────────────────────
	log := logger.New(logger.Options{
		Level:  cfg.Observability.LogLevel,
		Format: cfg.Observability.LogFormat,
		Debug:  cfg.App.Debug,
	})

	log.Info("starting admission calculator bot",
		"env", cfg.App.Environment,
		"version", cfg.App.Version,
		"debug", cfg.App.Debug,
		"timezone", cfg.App.Timezone,
	)

	for _, f := range cfg.Features.All() {
		log.Info("feature flag", "name", f.Name, "enabled", f.Enabled)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. ПОДКЛЮЧЕНИЕ К БАЗЕ ДАННЫХ (PostgreSQL)
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("connecting to database...")
	dbConn, err := connectDatabase(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		log.Info("closing database connection...")
		dbConn.Close()
	}()

	// На старте база может ещё подниматься, поэтому пингуем с ретраями.
	if err := retry.StartupRetrier().Do(ctx, dbConn.Ping); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	log.Info("database connection established")

	// ─────────────────────────────────────────────────────────────────────────
	// 4. МИГРАЦИИ СХЕМЫ
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("running database migrations...")
	migrator := postgres.NewMigrator(dbConn)
	if err := migrator.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	applied, err := migrator.GetAppliedMigrations(ctx)
	if err != nil {
		log.Warn("failed to get migration status", "error", err)
	} else {
		log.Info("migrations completed", "applied", len(applied))
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. ПОДКЛЮЧЕНИЕ К REDIS (опционально)
	// Бот обязан переживать отсутствие Redis: все кеши выключаемы,
	// балансы и сессии в Redis не живут никогда.
	// ─────────────────────────────────────────────────────────────────────────
	var (
		redisCache     *redis.Cache
		knownUserCache user.Cache
		statsCache     query.StatsCache
	)

	if cfg.Redis.Disabled {
		log.Info("Redis disabled by config, caching off")
	} else {
		log.Info("connecting to Redis...")
		redisCache, err = redis.NewCache(redisConfig(cfg))
		if err != nil {
			log.Warn("failed to connect to Redis, caching disabled", "error", err)
		} else {
			defer redisCache.Close()
			log.Info("Redis connection established")

			if cfg.Features.IsEnabled(config.FeatureKnownUserCache) {
				knownUserCache = redis.NewKnownUserCache(redisCache)
			}
			if cfg.Features.IsEnabled(config.FeatureStatsCache) {
				statsCache = redis.NewUsageStatsCache(redisCache)
			}
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. СБОРКА РЕПОЗИТОРИЕВ
	// Бонусы зашиты в репозитории: signup-бонус начисляется в той же
	// транзакции, что и создание пользователя, реферальный - в той же,
	// что и отметка приглашения.
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing repositories...")
	userRepo := postgres.NewUserRepository(dbConn, ledger.Points(cfg.Points.SignupBonus))
	ledgerRepo := postgres.NewLedgerRepository(dbConn)
	referralRepo := postgres.NewReferralRepository(dbConn, ledger.Points(cfg.Points.ReferralBonus))
	broadcastRepo := postgres.NewBroadcastRepository(dbConn)

	// ─────────────────────────────────────────────────────────────────────────
	// 7. ЗАГРУЗКА КАТАЛОГА УНИВЕРСИТЕТОВ
	// ─────────────────────────────────────────────────────────────────────────
	registry, err := catalog.Load()
	if err != nil {
		return fmt.Errorf("failed to load university catalog: %w", err)
	}
	log.Info("university catalog loaded", "universities", registry.Len())

	// ─────────────────────────────────────────────────────────────────────────
	// 8. ДИАЛОГОВЫЙ ДВИЖОК
	// ─────────────────────────────────────────────────────────────────────────
	store := conversation.NewStore(cfg.Session.IdleTTL)
	defer store.Stop()

	engine := conversation.NewEngine(store, registry, ledgerRepo, ledger.Points(cfg.Points.CalculationCost))

	// ─────────────────────────────────────────────────────────────────────────
	// 9. TELEGRAM-КЛИЕНТ И СЕРВИСЫ ПРИЛОЖЕНИЯ
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing application services...")

	clientConfig := tgclient.DefaultClientConfig(cfg.Telegram.Token)
	if cfg.Telegram.APIBaseURL != "" {
		clientConfig.BaseURL = cfg.Telegram.APIBaseURL
	}
	clientConfig.Logger = log
	clientConfig.Debug = cfg.App.Debug
	client := tgclient.NewClient(clientConfig)

	registrationSvc := registration.NewService(userRepo, knownUserCache, 0)
	referralSvc := referral.NewService(userRepo, referralRepo)
	broadcastSvc := broadcast.NewService(userRepo, tgclient.NewBroadcastSender(client), broadcastRepo, log, 0)

	historyQuery := query.NewGetHistoryHandler(ledgerRepo)
	statsQuery := query.NewGetUsageStatsHandler(userRepo, ledgerRepo, engine, statsCache)

	// ─────────────────────────────────────────────────────────────────────────
	// 10. СОЗДАНИЕ TELEGRAM BOT
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing Telegram bot...")

	botConfig := telegram.DefaultBotConfig(cfg.Telegram.Token)
	botConfig.AdminIDs = cfg.Telegram.AdminIDs
	botConfig.Debug = cfg.App.Debug
	botConfig.Logger = log
	botConfig.MaxConcurrentUpdates = cfg.Telegram.MaxConcurrentUpdates
	botConfig.GracefulShutdownTimeout = cfg.App.ShutdownTimeout

	botDeps := telegram.BotDependencies{
		Client:        client,
		Registration:  registrationSvc,
		Engine:        engine,
		Registry:      registry,
		Points:        ledgerRepo,
		Referrals:     referralSvc,
		Broadcaster:   broadcastSvc,
		HistoryQuery:  historyQuery,
		StatsQuery:    statsQuery,
		SignupBonus:   ledger.Points(cfg.Points.SignupBonus),
		ReferralBonus: ledger.Points(cfg.Points.ReferralBonus),
	}

	bot, err := telegram.NewBot(botConfig, botDeps)
	if err != nil {
		return fmt.Errorf("failed to create bot: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 11. СОЗДАНИЕ HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing HTTP server...")

	httpConfig := httpserver.DefaultConfig()
	httpConfig.Host = cfg.HTTP.Host
	httpConfig.Port = cfg.HTTP.Port
	httpConfig.RateLimitPerMinute = cfg.HTTP.RateLimitPerMinute
	httpConfig.APIKeyHashes = cfg.HTTP.APIKeyHashes
	httpConfig.EnableMetrics = cfg.HTTP.EnableMetrics

	health := handlers.NewCompositeHealthChecker(cfg.App.Version)
	health.AddCheck("postgres", handlers.NewDatabaseCheck(dbConn))
	if redisCache != nil {
		health.AddCheck("redis", handlers.NewCacheCheck(redisCache))
	}
	health.AddCheck("telegram", func(ctx context.Context) error {
		_, err := client.GetMe(ctx)
		return err
	})

	httpDeps := httpserver.Dependencies{
		StatsQuery:    statsQuery,
		Registry:      registry,
		Metrics:       bot,
		HealthChecker: health,
		Logger:        log,
	}

	httpServer := httpserver.NewServer(httpConfig, httpDeps)

	// ─────────────────────────────────────────────────────────────────────────
	// 12. ЗАПУСК СЕРВИСОВ
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("starting services...")

	errCh := make(chan error, 2)

	go func() {
		log.Info("starting HTTP server", "address", httpServer.Address())
		if err := httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	go func() {
		log.Info("starting Telegram bot")
		if err := bot.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("telegram bot error: %w", err)
		}
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 13. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("admission calculator bot is running",
		"http_address", httpServer.Address(),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		log.Error("service error", "error", err)
		return err
	}

	log.Info("starting graceful shutdown...", "timeout", cfg.App.ShutdownTimeout.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer shutdownCancel()

	var shutdownErr error

	// Сначала бот: перестаём тянуть апдейты и ждём обработку текущих.
	log.Info("stopping Telegram bot...")
	if err := bot.Stop(shutdownCtx); err != nil {
		log.Error("failed to stop bot gracefully", "error", err)
		shutdownErr = err
	}

	log.Info("stopping HTTP server...")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to stop HTTP server gracefully", "error", err)
		shutdownErr = err
	}

	// База, Redis и хранилище сессий закрываются через defer.

	if shutdownErr != nil {
		log.Warn("shutdown completed with errors")
	} else {
		log.Info("shutdown completed successfully")
	}

	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// connectDatabase открывает пул соединений: либо по DATABASE_URL,
// либо по отдельным DB_* параметрам.
func connectDatabase(ctx context.Context, cfg *config.Config) (*postgres.Connection, error) {
	if cfg.Database.URL != "" {
		return postgres.NewConnectionFromURL(ctx, cfg.Database.URL)
	}

	pgCfg := postgres.DefaultConfig()
	pgCfg.Host = cfg.Database.Host
	pgCfg.Port = cfg.Database.Port
	pgCfg.Database = cfg.Database.Name
	pgCfg.User = cfg.Database.User
	pgCfg.Password = cfg.Database.Password
	pgCfg.SSLMode = cfg.Database.SSLMode
	pgCfg.MaxConns = int32(cfg.Database.MaxConns)
	pgCfg.MinConns = int32(cfg.Database.MinConns)
	pgCfg.MaxConnLifetime = cfg.Database.ConnMaxLifetime
	pgCfg.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime
	pgCfg.ConnectTimeout = cfg.Database.ConnectTimeout

	return postgres.NewConnection(ctx, pgCfg)
}

// redisConfig собирает конфигурацию Redis-клиента.
func redisConfig(cfg *config.Config) redis.Config {
	redisCfg := redis.DefaultConfig()
	redisCfg.Host = cfg.Redis.Host
	redisCfg.Port = cfg.Redis.Port
	redisCfg.Password = cfg.Redis.Password
	redisCfg.DB = cfg.Redis.DB
	redisCfg.PoolSize = cfg.Redis.PoolSize
	redisCfg.MinIdleConns = cfg.Redis.MinIdleConns
	redisCfg.DialTimeout = cfg.Redis.DialTimeout
	redisCfg.ReadTimeout = cfg.Redis.ReadTimeout
	redisCfg.WriteTimeout = cfg.Redis.WriteTimeout

	return redisCfg
}
