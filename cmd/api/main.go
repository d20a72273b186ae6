package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"magicworld/backend/internal/broadcast"
	"magicworld/backend/internal/config"
	"magicworld/backend/internal/db"
	"magicworld/backend/internal/http/handlers"
	"magicworld/backend/internal/http/middleware"
	"magicworld/backend/internal/integrations"
	"magicworld/backend/internal/logging"
	"magicworld/backend/internal/payment"
	"magicworld/backend/internal/repository"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger, cleanup, err := logging.New(cfg.Logging)
	if err != nil {
		log.Fatalf("log error: %v", err)
	}
	defer func() {
		_ = cleanup()
	}()
	logger = logger.With("service", "api")
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("db error", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	repo := repository.New(pool)
	gateway := integrations.NewPaymentGateway(integrations.GatewayConfig{
		BaseURL:   cfg.Gateway.BaseURL,
		SecretKey: cfg.Gateway.SecretKey,
	}, nil, logger)

	hub, err := broadcast.NewHub(cfg.RedisURL, logger)
	if err != nil {
		logger.Error("broadcast error", "error", err)
		os.Exit(1)
	}
	defer hub.Close()
	go func() {
		if err := hub.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("broadcast hub stopped", "error", err)
		}
	}()

	payments := payment.NewService(repo, repo, repo, gateway, repo, logger)

	h := handlers.New(repo, payments, hub, cfg, logger)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimw.Recoverer)
	r.Use(corsMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// No request timeout here, the connection stays open for pushes.
	r.Get("/ws/availability", h.AvailabilityWS)

	r.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(30 * time.Second))

		r.Get("/payment/availability", h.GetAvailability)
		r.Post("/payment/calculate", h.CalculatePrice)
		r.Post("/payment/process", h.ProcessPayment)

		r.Get("/ticket-types", h.ListTicketTypes)
		r.Get("/admin/ticket-types", h.ListTicketTypes)
		r.Post("/admin/ticket-types", h.CreateTicketType)
		r.Patch("/admin/ticket-types/{typeName}", h.UpdateTicketType)
		r.Delete("/admin/ticket-types/{typeName}", h.DeleteTicketType)
		r.Get("/admin/discounts", h.ListDiscounts)
		r.Post("/admin/discounts", h.CreateDiscount)
		r.Delete("/admin/discounts/{code}", h.DeleteDiscount)
	})

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	go func() {
		logger.Info("api_listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutdown", "service", "api")
	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = srv.Shutdown(ctxShutdown)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PATCH,DELETE,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization,Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
