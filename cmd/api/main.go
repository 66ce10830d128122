// Package main - точка входа REST API приложения DevSecOps Academy
// Progression Engine.
//
// Сервис ведёт прогресс обучения: опыт и уровни, ежедневные серии,
// достижения и лидерборд. Все изменения прогресса пишутся атомарно
// с оптимистической блокировкой; конфликты разрешаются повтором.
//
// Архитектура следует принципам Clean Architecture и DDD:
// - Domain: чистая бизнес-логика без внешних зависимостей
// - Application: оркестрация use cases (Commands/Queries)
// - Infrastructure: PostgreSQL, Redis, event bus
// - Interface: HTTP endpoints
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	// Configuration
	"github.com/devsecops-academy/progression-engine/config"

	// Application layer
	"github.com/devsecops-academy/progression-engine/internal/application/command"
	"github.com/devsecops-academy/progression-engine/internal/application/eventhandler"
	"github.com/devsecops-academy/progression-engine/internal/application/query"

	// Domain layer
	"github.com/devsecops-academy/progression-engine/internal/domain/achievement"
	"github.com/devsecops-academy/progression-engine/internal/domain/shared"

	// Infrastructure layer
	"github.com/devsecops-academy/progression-engine/internal/infrastructure/messaging"
	"github.com/devsecops-academy/progression-engine/internal/infrastructure/persistence/postgres"
	"github.com/devsecops-academy/progression-engine/internal/infrastructure/persistence/redis"

	// Interface layer
	httpserver "github.com/devsecops-academy/progression-engine/internal/interface/http"
	"github.com/devsecops-academy/progression-engine/internal/interface/http/handlers"

	// Packages
	"github.com/devsecops-academy/progression-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	// Создаём корневой контекст с возможностью отмены
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Запускаем приложение
	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. ЗАГРУЗКА КОНФИГУРАЦИИ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. НАСТРОЙКА ЛОГИРОВАНИЯ
	// ─────────────────────────────────────────────────────────────────────────
	log := setupLogger(cfg)
	appLog := setupAppLogger(cfg)
	log.Info("starting DevSecOps Academy Progression Engine",
		"env", string(cfg.App.Environment),
		"version", cfg.App.Version,
		"debug", cfg.App.Debug,
	)

	// Серии считаются по календарным дням UTC; таймзона влияет
	// только на отображение и расписания.
	log.Info("using timezone", "configured", cfg.App.Timezone)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. ПОДКЛЮЧЕНИЕ К БАЗЕ ДАННЫХ (PostgreSQL)
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("connecting to database...")
	dbConn, err := postgres.NewConnectionFromURL(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		log.Info("closing database connection...")
		dbConn.Close()
	}()

	// Проверяем соединение
	if err := dbConn.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	log.Info("database connection established")

	// ─────────────────────────────────────────────────────────────────────────
	// 4. ЗАПУСК МИГРАЦИЙ
	// ─────────────────────────────────────────────────────────────────────────
	if cfg.Database.MigrateOnStart {
		log.Info("running database migrations...")
		migrator := postgres.NewMigrator(dbConn)
		if err := migrator.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}

		status, err := migrator.Status(ctx)
		if err != nil {
			log.Warn("failed to get migration status", "error", err)
		} else {
			appliedCount := 0
			for _, m := range status {
				if m.IsApplied {
					appliedCount++
				}
			}
			log.Info("migrations completed", "applied", appliedCount, "total", len(status))
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. ИНИЦИАЛИЗАЦИЯ REDIS (опционально)
	// ─────────────────────────────────────────────────────────────────────────
	var redisCache *redis.Cache
	var profileCache *redis.ProfileCache
	var leaderboardCache *redis.LeaderboardCache

	if !cfg.Redis.Disabled {
		log.Info("connecting to Redis...")
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

		redisCache, err = redis.NewCache(redisCfg)
		if err != nil {
			log.Warn("failed to connect to Redis, caching disabled", "error", err)
			redisCache = nil
		} else {
			defer redisCache.Close()
			profileCache = redis.NewProfileCache(redisCache)
			leaderboardCache = redis.NewLeaderboardCache(redisCache)
			log.Info("Redis connection established")
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. ИНИЦИАЛИЗАЦИЯ РЕПОЗИТОРИЕВ
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing repositories...")
	store := postgres.NewStore(dbConn)
	catalogRepo := postgres.NewCatalogRepository(dbConn)

	// ─────────────────────────────────────────────────────────────────────────
	// 7. ЗАГРУЗКА КАТАЛОГА ДОСТИЖЕНИЙ
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("loading achievement catalog...")
	if err := catalogRepo.SeedAchievements(ctx, achievement.DefaultCatalog()); err != nil {
		return fmt.Errorf("failed to seed achievement catalog: %w", err)
	}

	catalog, err := catalogRepo.ListAchievements(ctx)
	if err != nil {
		return fmt.Errorf("failed to load achievement catalog: %w", err)
	}

	engine, err := achievement.NewEngine(catalog)
	if err != nil {
		return fmt.Errorf("invalid achievement catalog: %w", err)
	}
	log.Info("achievement catalog loaded", "achievements", len(catalog))

	// ─────────────────────────────────────────────────────────────────────────
	// 8. ИНИЦИАЛИЗАЦИЯ EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing event bus...")
	busConfig := messaging.DefaultInMemoryEventBusConfig()
	busConfig.Logger = log
	busConfig.AsyncMode = true

	var eventBus shared.EventBus
	var busCloser interface{ Close() error }

	useRedisBus := redisCache != nil &&
		cfg.Features.IsEnabled(config.FeatureExperimentalRedisBus, nil)
	if useRedisBus {
		redisBus, err := messaging.NewRedisEventBus(messaging.RedisEventBusConfig{
			Client:         messaging.NewGoRedisClient(redisCache.Client()),
			LocalBusConfig: busConfig,
			Logger:         log,
		})
		if err != nil {
			return fmt.Errorf("failed to create redis event bus: %w", err)
		}
		eventBus, busCloser = redisBus, redisBus
		log.Info("event bus initialized", "mode", "redis")
	} else {
		localBus := messaging.NewInMemoryEventBus(busConfig)
		eventBus, busCloser = localBus, localBus
		log.Info("event bus initialized", "mode", "in-memory")
	}
	defer func() {
		log.Info("closing event bus...")
		_ = busCloser.Close()
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 9. ИНИЦИАЛИЗАЦИЯ APPLICATION LAYER (Commands, Queries)
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing application layer...")

	// Кеши опциональны: nil отключает соответствующий слой.
	var cacheInvalidator command.ProfileCacheInvalidator
	var overviewCache query.OverviewCache
	var lbCache query.LeaderboardCache

	if profileCache != nil && cfg.Features.IsEnabled(config.FeatureOverviewCache, nil) {
		cacheInvalidator = profileCache
		overviewCache = profileCache
	}
	if leaderboardCache != nil && cfg.Features.IsEnabled(config.FeatureLeaderboardCache, nil) {
		lbCache = leaderboardCache
	}

	registerUserCmd := command.NewRegisterUserHandler(
		store, eventBus, appLog, command.DefaultRegisterUserHandlerConfig())
	completeLessonCmd := command.NewCompleteLessonHandler(
		store, catalogRepo, engine, eventBus, cacheInvalidator, appLog,
		command.DefaultCompleteLessonHandlerConfig())
	recordAttemptCmd := command.NewRecordChallengeAttemptHandler(
		store, catalogRepo, engine, eventBus, cacheInvalidator, appLog,
		command.DefaultRecordChallengeAttemptHandlerConfig())

	overviewQuery := query.NewGetProfileOverviewHandler(store, catalogRepo, overviewCache, appLog)
	leaderboardQuery := query.NewGetLeaderboardHandler(store, lbCache, appLog)

	// ─────────────────────────────────────────────────────────────────────────
	// 10. РЕГИСТРАЦИЯ EVENT HANDLERS
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("registering event handlers...")

	if leaderboardCache != nil && cfg.Features.IsEnabled(config.FeatureLeaderboardIncremental, nil) {
		xpHandler := eventhandler.NewOnXPGainedHandler(leaderboardCache, appLog)
		if err := eventBus.Subscribe(xpHandler.EventType(), xpHandler.Handle); err != nil {
			return fmt.Errorf("failed to subscribe xp handler: %w", err)
		}
	}

	if profileCache != nil {
		unlockHandler := eventhandler.NewOnAchievementUnlockedHandler(profileCache, appLog)
		if err := eventBus.Subscribe(unlockHandler.EventType(), unlockHandler.Handle); err != nil {
			return fmt.Errorf("failed to subscribe achievement handler: %w", err)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 11. СОЗДАНИЕ HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing HTTP server...")

	healthChecker := handlers.NewCompositeHealthChecker(cfg.App.Version)
	healthChecker.AddCheck("database", handlers.NewDatabaseCheck(dbConn))
	if redisCache != nil {
		healthChecker.AddCheck("cache", handlers.NewCacheCheck(redisCache))
	}

	httpConfig := httpserver.DefaultConfig()
	httpConfig.Host = cfg.HTTP.Host
	httpConfig.Port = cfg.HTTP.Port
	httpConfig.ReadTimeout = cfg.HTTP.ReadTimeout
	httpConfig.WriteTimeout = cfg.HTTP.WriteTimeout
	httpConfig.IdleTimeout = cfg.HTTP.IdleTimeout
	httpConfig.EnableCORS = cfg.HTTP.EnableCORS
	httpConfig.AllowedOrigins = cfg.HTTP.AllowedOrigins
	httpConfig.RateLimitPerMinute = cfg.HTTP.RateLimitPerMinute

	httpDeps := httpserver.Dependencies{
		RegisterUserHandler:           registerUserCmd,
		CompleteLessonHandler:         completeLessonCmd,
		RecordChallengeAttemptHandler: recordAttemptCmd,
		GetProfileOverviewHandler:     overviewQuery,
		GetLeaderboardHandler:         leaderboardQuery,
		Logger:                        appLog,
		HealthChecker:                 healthChecker,
	}

	httpServer := httpserver.NewServer(httpConfig, httpDeps)

	// ─────────────────────────────────────────────────────────────────────────
	// 12. ЗАПУСК СЕРВИСОВ
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("starting services...")

	errCh := make(chan error, 1)

	go func() {
		log.Info("starting HTTP server", "address", httpServer.Address())
		if err := httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 13. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("Progression Engine is running",
		"http_address", httpServer.Address(),
	)

	// Ожидаем сигнал завершения или ошибку
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		log.Error("service error", "error", err)
		return err
	}

	// Начинаем graceful shutdown
	log.Info("starting graceful shutdown...", "timeout", cfg.App.ShutdownTimeout.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to stop HTTP server gracefully", "error", err)
		return err
	}

	log.Info("shutdown complete")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// setupLogger настраивает slog для инфраструктурных компонентов.
func setupLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Observability.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Observability.LogFormat == "text" || cfg.IsDevelopment() {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	log := slog.New(handler)
	slog.SetDefault(log)
	return log
}

// setupAppLogger настраивает структурный логгер application-слоя.
func setupAppLogger(cfg *config.Config) *logger.Logger {
	level := logger.LevelInfo
	switch cfg.Observability.LogLevel {
	case "debug":
		level = logger.LevelDebug
	case "warn":
		level = logger.LevelWarn
	case "error":
		level = logger.LevelError
	}

	return logger.New(logger.Options{
		Output: os.Stdout,
		Level:  level,
	})
}
