// Package main - точка входа фонового worker-процесса бота.
//
// Worker выполняет периодические задачи по расписанию:
// - ежедневный дайджест использования для администраторов
//
// Он разделяет с ботом PostgreSQL, но не держит ни long polling,
// ни HTTP-сервер: упавший worker не влияет на диалоги с ботом.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/admit-hub/admission-calc-bot/config"

	// Application services
	"github.com/admit-hub/admission-calc-bot/internal/application/query"

	// Domain layer
	"github.com/admit-hub/admission-calc-bot/internal/domain/ledger"

	// Infrastructure
	tgclient "github.com/admit-hub/admission-calc-bot/internal/infrastructure/external/telegram"
	"github.com/admit-hub/admission-calc-bot/internal/infrastructure/persistence/postgres"
	"github.com/admit-hub/admission-calc-bot/internal/infrastructure/scheduler"
	"github.com/admit-hub/admission-calc-bot/internal/infrastructure/scheduler/jobs"

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

	log.Info("starting admission calculator worker",
		"env", cfg.App.Environment,
		"version", cfg.App.Version,
		"timezone", cfg.App.Timezone,
	)

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

	if err := retry.StartupRetrier().Do(ctx, dbConn.Ping); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	log.Info("database connection established")

	// ─────────────────────────────────────────────────────────────────────────
	// 4. МИГРАЦИИ СХЕМЫ
	// Worker может стартовать раньше бота, поэтому миграции гоняют оба:
	// повторный прогон идемпотентен.
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("running database migrations...")
	migrator := postgres.NewMigrator(dbConn)
	if err := migrator.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. РЕПОЗИТОРИИ И QUERY
	// Дайджест всегда считает сводку заново, кеш ему не нужен.
	// ─────────────────────────────────────────────────────────────────────────
	userRepo := postgres.NewUserRepository(dbConn, ledger.Points(cfg.Points.SignupBonus))
	ledgerRepo := postgres.NewLedgerRepository(dbConn)
	statsQuery := query.NewGetUsageStatsHandler(userRepo, ledgerRepo, nil, nil)

	// ─────────────────────────────────────────────────────────────────────────
	// 6. TELEGRAM-КЛИЕНТ (только исходящие сообщения)
	// ─────────────────────────────────────────────────────────────────────────
	clientConfig := tgclient.DefaultClientConfig(cfg.Telegram.Token)
	if cfg.Telegram.APIBaseURL != "" {
		clientConfig.BaseURL = cfg.Telegram.APIBaseURL
	}
	clientConfig.Logger = log
	clientConfig.Debug = cfg.App.Debug
	client := tgclient.NewClient(clientConfig)

	// ─────────────────────────────────────────────────────────────────────────
	// 7. SCHEDULER И ЗАДАЧИ
	// ─────────────────────────────────────────────────────────────────────────
	sched := scheduler.New(scheduler.Config{
		Logger:   log,
		Timezone: cfg.App.Location,
	})

	if cfg.Digest.Enabled {
		digestConfig := jobs.DefaultUsageDigestConfig()
		digestConfig.AdminChatIDs = cfg.Telegram.AdminIDs
		digestConfig.Window = cfg.Digest.Window
		digestConfig.Timezone = cfg.App.Location

		digestJob := jobs.NewUsageDigestJob(statsQuery, &digestSender{client: client}, log, digestConfig)

		spec := fmt.Sprintf("%d %d * * *", cfg.Digest.Minute, cfg.Digest.Hour)
		if err := sched.Register(digestJob, spec); err != nil {
			return fmt.Errorf("failed to register digest job: %w", err)
		}
	} else {
		log.Info("usage digest disabled by config")
	}

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 8. ОЖИДАНИЕ СИГНАЛА И ОСТАНОВКА
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("admission calculator worker is running",
		"jobs", len(sched.ListJobs()),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	sig := <-sigCh
	log.Info("received shutdown signal", "signal", sig.String())

	if err := sched.Stop(); err != nil {
		log.Error("failed to stop scheduler gracefully", "error", err)
	}

	log.Info("shutdown completed successfully")
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

// ══════════════════════════════════════════════════════════════════════════════
// ADAPTERS
// ══════════════════════════════════════════════════════════════════════════════

// digestSender адаптирует Telegram-клиент к jobs.DigestSender:
// дайджест уходит с HTML-разметкой и без звука уведомления.
type digestSender struct {
	client *tgclient.Client
}

// SendDigest implements jobs.DigestSender.
func (s *digestSender) SendDigest(ctx context.Context, chatID int64, html string) error {
	_, err := s.client.SendMessage(ctx, tgclient.SendMessageParams{
		ChatID:              chatID,
		Text:                html,
		ParseMode:           "HTML",
		DisableNotification: true,
	})
	return err
}
