package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Freeeeeet/telehealth_scheduler/internal/app"
	"github.com/Freeeeeet/telehealth_scheduler/internal/config"
	"github.com/Freeeeeet/telehealth_scheduler/internal/controller"
	"github.com/Freeeeeet/telehealth_scheduler/internal/controller/handlers"
	"github.com/Freeeeeet/telehealth_scheduler/internal/controller/httpapi"
	"github.com/Freeeeeet/telehealth_scheduler/internal/controller/state"
	"github.com/Freeeeeet/telehealth_scheduler/internal/events"
	"github.com/Freeeeeet/telehealth_scheduler/internal/lock"
	"github.com/Freeeeeet/telehealth_scheduler/internal/model"
	"github.com/Freeeeeet/telehealth_scheduler/internal/notifier"
	"github.com/Freeeeeet/telehealth_scheduler/internal/repository"
	"github.com/Freeeeeet/telehealth_scheduler/internal/service"
	"github.com/Freeeeeet/telehealth_scheduler/migrations"
	"github.com/gin-gonic/gin"
	"github.com/go-telegram/bot"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const serviceName = "telehealth-scheduler"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := app.NewLogger(cfg.Environment, serviceName)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Scheduler stopped with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := app.SetupTracing(ctx, cfg.OTelEndpoint, serviceName)
	if err != nil {
		return err
	}
	defer shutdownWithTimeout(logger, "tracing", shutdownTracing)

	// База данных и миграции
	pool, err := pgxpool.New(ctx, cfg.DBDSN)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return err
	}

	migrator, err := app.NewMigrator(pool, migrations.FS, logger)
	if err != nil {
		return err
	}
	if err := migrator.Run(ctx); err != nil {
		_ = migrator.Close()
		return err
	}
	_ = migrator.Close()

	appointmentRepo := repository.NewAppointmentRepository(pool)
	userRepo := repository.NewUserRepository(pool)

	// Блокировка бронирований
	var locker service.Locker = lock.NewLocal()
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return err
		}
		redisCfg := lock.DefaultRedisConfig()
		redisCfg.TTL = cfg.LockTTL
		locker = lock.NewRedis(rdb, redisCfg, logger)
		logger.Info("Using Redis booking lock", zap.String("addr", cfg.RedisAddr))
	}

	// События. Sink закрывается после того, как шина дослала очередь.
	var sink *events.AMQPSink
	if cfg.RabbitURL != "" {
		sink, err = events.NewAMQPSink(cfg.RabbitURL, cfg.RabbitExchange)
		if err != nil {
			return err
		}
		defer sink.Close()
	}

	bus := events.NewBus(events.Config{
		QueueSize: cfg.EventQueueSize,
		Workers:   cfg.EventWorkers,
	}, logger)
	defer shutdownWithTimeout(logger, "event bus", bus.Close)

	if sink != nil {
		if err := bus.SubscribeAll(sink.Handle); err != nil {
			return err
		}
		logger.Info("Publishing events to RabbitMQ", zap.String("exchange", cfg.RabbitExchange))
	}

	schedulingService := service.NewSchedulingService(appointmentRepo, bus, locker, logger)
	userService := service.NewUserService(userRepo, logger)

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	// Telegram
	if cfg.TelegramToken != "" {
		b, err := bot.New(cfg.TelegramToken)
		if err != nil {
			return err
		}

		tg := notifier.NewTelegram(b, userRepo, loc, logger)
		for _, t := range []model.EventType{
			model.EventAppointmentCreated,
			model.EventAppointmentStatusUpdated,
			model.EventAppointmentReminder,
		} {
			if err := bus.Subscribe(t, tg.Handle); err != nil {
				return err
			}
		}

		botController := controller.NewBotController(b, handlers.NewHandlers(userService, schedulingService, state.NewManager(state.DefaultTTL), loc, logger), logger)
		if err := botController.RegisterHandlers(ctx); err != nil {
			logger.Warn("Bot commands were not registered", zap.Error(err))
		}
		go botController.Start(ctx)
	} else {
		logger.Info("TELEGRAM_TOKEN is empty, bot and notifications disabled")
	}

	// Напоминания
	reminders := app.NewScheduler(schedulingService, bus, cfg.ReminderInterval, cfg.ReminderLead, logger)
	reminders.Start(ctx)
	defer reminders.Stop()

	// HTTP
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := httpapi.NewRouter(
		httpapi.NewHandler(schedulingService, appointmentRepo, logger),
		httpapi.RouterConfig{
			JWTSecret:      cfg.JWTSecret,
			RateLimitRPS:   cfg.RateLimitRPS,
			RateLimitBurst: cfg.RateLimitBurst,
		},
		logger,
	)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errCh:
		return err
	}

	shutdownWithTimeout(logger, "http server", srv.Shutdown)
	return nil
}

func shutdownWithTimeout(logger *zap.Logger, name string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := fn(ctx); err != nil {
		logger.Warn("Shutdown failed", zap.String("component", name), zap.Error(err))
	}
}
