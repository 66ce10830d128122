// Package main - точка входа для фоновых процессов (Worker) Progression Engine.
//
// Worker отвечает за периодические задачи:
// - Полная пересборка кеша лидерборда из хранилища
//
// Инкрементальные обновления счёта выполняет API-процесс по событиям;
// Worker периодически пересобирает кеш целиком, устраняя накопившиеся
// расхождения и восстанавливая кеш после рестарта Redis.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	// Configuration
	"github.com/devsecops-academy/progression-engine/config"

	// Infrastructure layer
	"github.com/devsecops-academy/progression-engine/internal/infrastructure/persistence/postgres"
	"github.com/devsecops-academy/progression-engine/internal/infrastructure/persistence/redis"
	"github.com/devsecops-academy/progression-engine/internal/infrastructure/scheduler"
	"github.com/devsecops-academy/progression-engine/internal/infrastructure/scheduler/jobs"
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
	// 1. ЗАГРУЗКА КОНФИГУРАЦИИ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if !cfg.Scheduler.Enabled {
		return fmt.Errorf("scheduler is disabled, nothing to run (set SCHEDULER_ENABLED=true)")
	}
	if cfg.Redis.Disabled {
		return fmt.Errorf("worker requires Redis: the only scheduled job rebuilds the leaderboard cache")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. НАСТРОЙКА ЛОГИРОВАНИЯ
	// ─────────────────────────────────────────────────────────────────────────
	log := setupLogger(cfg)
	log.Info("starting Progression Engine Worker",
		"env", string(cfg.App.Environment),
		"version", cfg.App.Version,
	)

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

	if err := dbConn.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	log.Info("database connection established")

	// Worker не запускает миграции: схемой управляет API-процесс.

	// ─────────────────────────────────────────────────────────────────────────
	// 4. ИНИЦИАЛИЗАЦИЯ REDIS
	// ─────────────────────────────────────────────────────────────────────────
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

	redisCache, err := redis.NewCache(redisCfg)
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	defer redisCache.Close()
	log.Info("Redis connection established")

	leaderboardCache := redis.NewLeaderboardCache(redisCache)

	// ─────────────────────────────────────────────────────────────────────────
	// 5. ИНИЦИАЛИЗАЦИЯ РЕПОЗИТОРИЕВ
	// ─────────────────────────────────────────────────────────────────────────
	store := postgres.NewStore(dbConn)

	// ─────────────────────────────────────────────────────────────────────────
	// 6. РЕГИСТРАЦИЯ ЗАДАЧ И ЗАПУСК SCHEDULER
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing scheduler...")

	schedConfig := scheduler.DefaultSchedulerConfig()
	schedConfig.Logger = log
	schedConfig.Timezone = cfg.App.Location
	sched := scheduler.NewScheduler(schedConfig)

	rebuildConfig := jobs.DefaultRebuildLeaderboardConfig()
	rebuildConfig.TopN = cfg.Scheduler.LeaderboardTopN
	rebuildConfig.Timeout = cfg.Scheduler.JobTimeout
	rebuildJob := jobs.NewRebuildLeaderboardJob(store, leaderboardCache, log, rebuildConfig)

	rebuildSchedule := scheduler.NewIntervalSchedule(cfg.Scheduler.RebuildLeaderboardInterval)
	if err := sched.Register(rebuildJob, rebuildSchedule); err != nil {
		return fmt.Errorf("failed to register rebuild job: %w", err)
	}

	// Ночная глубокая пересборка: загружает расширенный срез рейтинга,
	// возвращая в кеш пользователей, вытесненных из верхушки за день.
	resyncConfig := jobs.DefaultRebuildLeaderboardConfig()
	resyncConfig.Name = "resync_leaderboard_nightly"
	resyncConfig.TopN = cfg.Scheduler.LeaderboardTopN * 10
	resyncConfig.Timeout = cfg.Scheduler.JobTimeout
	resyncJob := jobs.NewRebuildLeaderboardJob(store, leaderboardCache, log, resyncConfig)

	resyncSchedule, err := scheduler.ParseCronExpression(scheduler.EveryDayMidnight)
	if err != nil {
		return fmt.Errorf("failed to parse resync schedule: %w", err)
	}
	if err := sched.Register(resyncJob, resyncSchedule); err != nil {
		return fmt.Errorf("failed to register resync job: %w", err)
	}

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	// Первая пересборка сразу при старте: кеш может быть пуст.
	if _, err := sched.RunNow(ctx, rebuildJob.Name()); err != nil {
		log.Warn("initial leaderboard rebuild failed", "error", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("Progression Engine Worker is running",
		"rebuild_interval", cfg.Scheduler.RebuildLeaderboardInterval.String(),
		"top_n", cfg.Scheduler.LeaderboardTopN,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	sig := <-sigCh
	log.Info("received shutdown signal", "signal", sig.String())

	log.Info("stopping scheduler...")
	if err := sched.Stop(); err != nil {
		log.Error("failed to stop scheduler gracefully", "error", err)
		return err
	}

	log.Info("shutdown complete")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// setupLogger настраивает slog для Worker процесса.
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
