// cmd/server/server.go
package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ahughesmx/ace-booking-system-sub000/internal/api"
	"github.com/ahughesmx/ace-booking-system-sub000/internal/api/bookings"
	"github.com/ahughesmx/ace-booking-system-sub000/internal/api/courts"
	"github.com/ahughesmx/ace-booking-system-sub000/internal/api/maintenance"
	"github.com/ahughesmx/ace-booking-system-sub000/internal/booking/calendar"
	"github.com/ahughesmx/ace-booking-system-sub000/internal/booking/closure"
	"github.com/ahughesmx/ace-booking-system-sub000/internal/booking/lifecycle"
	"github.com/ahughesmx/ace-booking-system-sub000/internal/config"
	"github.com/ahughesmx/ace-booking-system-sub000/internal/db"
	"github.com/ahughesmx/ace-booking-system-sub000/internal/notify"
	"github.com/ahughesmx/ace-booking-system-sub000/internal/ratelimit"
	"github.com/ahughesmx/ace-booking-system-sub000/internal/scheduler"
)

func newServer(cfg *config.Config) (*http.Server, func(), error) {
	database, err := db.NewFromConfig(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}

	cal, err := calendar.New(cfg.Booking.Timezone)
	if err != nil {
		database.Close()
		return nil, nil, err
	}

	dispatcher, closePublisher := newDispatcher(cfg, database)

	controller, err := lifecycle.NewController(database, cal, lifecycle.Config{
		Notifier:   dispatcher,
		PendingTTL: cfg.PendingExpiry(),
	})
	if err != nil {
		database.Close()
		return nil, nil, err
	}

	closureResolver, err := closure.NewResolver(database, cal, nil, dispatcher)
	if err != nil {
		database.Close()
		return nil, nil, err
	}

	if err := scheduler.Init(); err != nil {
		database.Close()
		return nil, nil, fmt.Errorf("init scheduler: %w", err)
	}
	if err := scheduler.RegisterBookingJobs(cfg.Jobs, controller, database); err != nil {
		database.Close()
		return nil, nil, err
	}

	limiter := ratelimit.New(nil)

	bookings.InitHandlers(controller, database.Queries)
	courts.InitHandlers(database.Queries)
	maintenance.InitHandlers(closureResolver)

	router := http.NewServeMux()
	registerRoutes(router, limiter)

	handler := api.ChainMiddleware(
		router,
		api.WithLogging,
		api.WithRecovery,
		api.WithActor,
		api.WithRequestID,
	)

	cleanup := func() {
		limiter.Close()
		closePublisher()
		if err := database.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database")
		}
	}

	return &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.App.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}, cleanup, nil
}

// newDispatcher assembles the notification fan-out from whatever transports
// are configured. Missing credentials disable a transport rather than
// failing startup.
func newDispatcher(cfg *config.Config, database *db.DB) (*notify.Dispatcher, func()) {
	var sender notify.EmailSender
	sesClient, err := notify.NewSESClient(
		cfg.Notify.AWSAccessKeyID,
		cfg.Notify.AWSSecretAccessKey,
		cfg.Notify.SESRegion,
		cfg.Notify.SESSender,
	)
	if err != nil {
		log.Warn().Err(err).Msg("Email notifications disabled")
	} else {
		sender = sesClient
	}

	var publisher notify.EventPublisher
	closePublisher := func() {}
	if cfg.Notify.AMQPURL != "" {
		amqpPublisher, err := notify.NewPublisher(cfg.Notify.AMQPURL, "booking.events")
		if err != nil {
			log.Warn().Err(err).Msg("Event publishing disabled")
		} else {
			publisher = amqpPublisher
			closePublisher = func() {
				if err := amqpPublisher.Close(); err != nil {
					log.Error().Err(err).Msg("Error closing event publisher")
				}
			}
		}
	}

	return notify.NewDispatcher(database.Queries, sender, publisher, cfg.Notify.PhoneRegion), closePublisher
}

func registerRoutes(mux *http.ServeMux, limiter *ratelimit.Limiter) {
	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Booking routes; creation goes through the rate limiter.
	throttled := api.WithRateLimit(limiter, true)
	mux.Handle("POST /api/v1/bookings", throttled(http.HandlerFunc(bookings.HandleCreateBooking)))
	mux.HandleFunc("POST /api/v1/bookings/{id}/confirm", bookings.HandleConfirmPayment)
	mux.HandleFunc("POST /api/v1/bookings/{id}/cancel", bookings.HandleCancelBooking)
	mux.HandleFunc("POST /api/v1/bookings/{id}/reschedule", bookings.HandleReschedule)
	mux.HandleFunc("POST /api/v1/bookings/series", bookings.HandleCreateSeries)
	mux.HandleFunc("POST /api/v1/bookings/series/{tag}/cancel", bookings.HandleCancelSeries)

	// Court routes
	mux.HandleFunc("GET /api/v1/courts", courts.HandleListCourts)
	mux.HandleFunc("POST /api/v1/courts", courts.HandleCreateCourt)
	mux.HandleFunc("POST /api/v1/courts/{id}/active", courts.HandleSetCourtActive)
	mux.HandleFunc("GET /api/v1/courts/{id}/availability", bookings.HandleDayAvailability)

	// Booking rule routes
	mux.HandleFunc("GET /api/v1/rules/{sport}", courts.HandleGetRule)
	mux.HandleFunc("PUT /api/v1/rules/{sport}", courts.HandleUpsertRule)

	// Maintenance routes
	mux.HandleFunc("POST /api/v1/maintenance/preview", maintenance.HandlePreviewClosure)
	mux.HandleFunc("POST /api/v1/maintenance", maintenance.HandleApplyClosure)
	mux.HandleFunc("POST /api/v1/maintenance/emergency", maintenance.HandleEmergencyClosure)
	mux.HandleFunc("POST /api/v1/maintenance/reopen", maintenance.HandleReopen)
}
