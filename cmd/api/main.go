package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/clinic-booking/internal/api/router"
	"github.com/wolfman30/clinic-booking/internal/app/bootstrap"
	"github.com/wolfman30/clinic-booking/internal/blocked"
	"github.com/wolfman30/clinic-booking/internal/booking"
	appconfig "github.com/wolfman30/clinic-booking/internal/config"
	"github.com/wolfman30/clinic-booking/internal/doctors"
	"github.com/wolfman30/clinic-booking/internal/observability/metrics"
	"github.com/wolfman30/clinic-booking/internal/schedule"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

func main() {
	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting clinic-booking API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	loc, err := cfg.Location()
	if err != nil {
		logger.Error("invalid clinic timezone", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	persistence, err := bootstrap.BuildPersistence(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize persistence", "error", err)
		os.Exit(1)
	}
	defer persistence.Close()

	metricsHandler, bookingMetrics := setupMetrics()

	bookingSvc := booking.NewService(persistence.Stores, booking.Config{
		StoreTimeout: cfg.StoreTimeout,
		Location:     loc,
		HorizonDays:  cfg.BookingHorizonDays,
	}, logger).WithMetrics(bookingMetrics)

	var scheduleAudit schedule.AuditLogger
	auditSvc := bootstrap.BuildAudit(persistence.SQLDB)
	if auditSvc != nil {
		bookingSvc.WithAudit(auditSvc)
		scheduleAudit = auditSvc
	} else {
		logger.Warn("audit trail disabled: no SQL database")
	}

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	} else {
		logger.Warn("redis unavailable; bookings will not require confirmation codes")
	}
	otpSvc := bootstrap.BuildOTP(cfg, redisClient, persistence.Stores, auditSvc, bookingMetrics, logger)

	assistantHandler, closeAssistant, err := bootstrap.BuildAssistant(ctx, cfg, bookingSvc, bookingMetrics, logger)
	if err != nil {
		logger.Error("failed to initialize assistant", "error", err)
		os.Exit(1)
	}
	defer func() { _ = closeAssistant() }()

	// Setup router
	r := router.New(&router.Config{
		Logger:               logger,
		Booking:              booking.NewHandler(bookingSvc, otpSvc, logger),
		Doctors:              doctors.NewHandler(persistence.Stores.Doctors, logger),
		Schedule:             schedule.NewHandler(persistence.Stores.Schedule, scheduleAudit, logger),
		Blocked:              blocked.NewHandler(persistence.Stores.Blocked, logger),
		Assistant:            assistantHandler,
		Directory:            persistence.Stores.Doctors,
		StaffJWTSecret:       cfg.StaffJWTSecret,
		MetricsHandler:       metricsHandler,
		CORSAllowedOrigins:   cfg.CORSAllowedOrigins,
		PortalAllowedOrigins: cfg.PortalAllowedOrigins,
		RateLimitRPS:         cfg.RateLimitRPS,
		RateLimitBurst:       cfg.RateLimitBurst,
	})

	// Assistant requests may span several model rounds.
	writeTimeout := 15 * time.Second
	if assistantHandler != nil {
		writeTimeout = 2*cfg.GatewayTimeout + 15*time.Second
	}
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		logger.Error("server error", "error", err)
		return
	}

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		return
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

func setupMetrics() (http.Handler, *metrics.BookingMetrics) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewBookingMetrics(registry)
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}), m
}
