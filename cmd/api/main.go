package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/mialabs/receptionist/internal/api/router"
	"github.com/mialabs/receptionist/internal/appointment"
	"github.com/mialabs/receptionist/internal/calendar"
	"github.com/mialabs/receptionist/internal/calllog"
	appconfig "github.com/mialabs/receptionist/internal/config"
	"github.com/mialabs/receptionist/internal/confirmation"
	"github.com/mialabs/receptionist/internal/events"
	"github.com/mialabs/receptionist/internal/http/handlers"
	observemetrics "github.com/mialabs/receptionist/internal/observability/metrics"
	"github.com/mialabs/receptionist/internal/reminder"
	"github.com/mialabs/receptionist/internal/sms"
	"github.com/mialabs/receptionist/internal/voice"
	"github.com/mialabs/receptionist/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting receptionist relay",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serviceCalendars, err := cfg.ServiceCalendars()
	if err != nil {
		logger.Error("invalid service calendar map", "error", err)
		os.Exit(1)
	}

	window, err := confirmation.ParseCallWindow(cfg.CallWindowStart, cfg.CallWindowEnd, cfg.CallWindowTimezone)
	if err != nil {
		logger.Error("invalid call window", "error", err)
		os.Exit(1)
	}
	clinicLoc, err := time.LoadLocation(cfg.CallWindowTimezone)
	if err != nil {
		logger.Error("invalid clinic timezone", "error", err)
		os.Exit(1)
	}

	var store appointment.Store
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		store = appointment.NewPostgresStore(pool)
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory appointment store")
		store = appointment.NewMemoryStore()
	}

	var dedupe *events.ProcessedStore
	if cfg.RedisAddr != "" {
		opts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		rdb := redis.NewClient(opts)
		defer func() { _ = rdb.Close() }()
		dedupe = events.NewProcessedStore(rdb)
	} else {
		logger.Warn("REDIS_ADDR not set, webhook dedupe disabled")
	}

	voiceClient, err := voice.NewClient(voice.ClientConfig{
		APIKey:  cfg.VoiceAPIKey,
		BaseURL: cfg.VoiceBaseURL,
		Logger:  logger,
	})
	if err != nil {
		logger.Error("voice client init failed", "error", err)
		os.Exit(1)
	}

	var calClient *calendar.Client
	if cfg.CalendarAPIKey != "" {
		calClient, err = calendar.NewClient(calendar.ClientConfig{
			APIKey:  cfg.CalendarAPIKey,
			BaseURL: cfg.CalendarBaseURL,
			Logger:  logger,
		})
		if err != nil {
			logger.Error("calendar client init failed", "error", err)
			os.Exit(1)
		}
	} else {
		logger.Warn("CALENDAR_API_KEY not set, booking and upstream import disabled")
	}

	var smsSender confirmation.SMSSender
	if cfg.TwilioAccountSID != "" && cfg.TwilioAuthToken != "" {
		smsSender = sms.NewTwilioSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber, logger)
	} else {
		logger.Warn("twilio credentials not set, SMS fallback disabled")
	}

	metrics := observemetrics.NewConfirmationMetrics(nil)
	auditLog := calllog.New(cfg.CallLogPath, logger)

	machine, err := confirmation.NewMachine(confirmation.Config{
		Store:   store,
		Calls:   voiceClient,
		SMS:     smsSender,
		CallLog: auditLog,
		Mirror:  calendar.NewMirror(calClient),
		Metrics: metrics,
		Logger:  logger,
		Policy: confirmation.Policy{
			MaxAttempts: cfg.MaxCallAttempts,
			RetryDelay:  cfg.CallRetryDelay,
		},
		BaseURL: cfg.PublicBaseURL,
		Persona: cfg.VoicePersona,
	})
	if err != nil {
		logger.Error("state machine init failed", "error", err)
		os.Exit(1)
	}

	retryWorker := confirmation.NewRetryWorker(store, machine, logger).
		WithInterval(cfg.RetrySweepInterval)
	go retryWorker.Run(ctx)

	sweeper, err := reminder.NewSweeper(reminder.Config{
		Store:     store,
		Machine:   machine,
		Calendar:  calClient,
		Calendars: serviceCalendars,
		Window:    window,
		Logger:    logger,
	})
	if err != nil {
		logger.Error("sweeper init failed", "error", err)
		os.Exit(1)
	}

	var bookingHandler *handlers.BookingHandler
	if calClient != nil {
		bookingHandler = handlers.NewBookingHandler(handlers.BookingConfig{
			Calendar:  calClient,
			Calendars: serviceCalendars,
			Store:     store,
			Location:  clinicLoc,
			Logger:    logger,
		})
	}

	r := router.New(&router.Config{
		Logger:    logger,
		Booking:   bookingHandler,
		Reminders: handlers.NewRemindersHandler(sweeper, logger),
		VoiceWebhooks: handlers.NewVoiceWebhookHandler(handlers.VoiceWebhookConfig{
			Machine: machine,
			Dedupe:  dedupe,
			Metrics: metrics,
			Logger:  logger,
		}),
		MetricsHandler: promhttp.Handler(),
		TriggerToken:   cfg.ReminderTriggerToken,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
