package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mialabs/receptionist/internal/http/handlers"
	httpmiddleware "github.com/mialabs/receptionist/internal/http/middleware"
	"github.com/mialabs/receptionist/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger         *logging.Logger
	Booking        *handlers.BookingHandler
	Reminders      *handlers.RemindersHandler
	VoiceWebhooks  *handlers.VoiceWebhookHandler
	MetricsHandler http.Handler
	TriggerToken   string
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", handlers.HealthCheck)

	if cfg.Booking != nil {
		r.Post("/check-and-book", cfg.Booking.CheckAndBook)
	}
	if cfg.Reminders != nil {
		r.With(httpmiddleware.RequireTriggerToken(cfg.TriggerToken)).Post("/send-reminders", cfg.Reminders.SendReminders)
	}
	if cfg.VoiceWebhooks != nil {
		r.Route("/webhooks/voice", func(wh chi.Router) {
			wh.Post("/confirmation", cfg.VoiceWebhooks.HandleConfirmation)
			wh.Post("/status", cfg.VoiceWebhooks.HandleCallStatus)
		})
	}
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	return r
}
