package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"magicworld/backend/internal/broadcast"
	"magicworld/backend/internal/config"
	"magicworld/backend/internal/payment"
	"magicworld/backend/internal/rate"
	"magicworld/backend/internal/repository"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
)

type Handler struct {
	repo            *repository.Repository
	payments        *payment.Service
	hub             *broadcast.Hub
	cfg             *config.Config
	logger          *slog.Logger
	validator       *validator.Validate
	purchaseLimiter *rate.WindowLimiter
}

func New(repo *repository.Repository, payments *payment.Service, hub *broadcast.Hub, cfg *config.Config, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		repo:            repo,
		payments:        payments,
		hub:             hub,
		cfg:             cfg,
		logger:          logger,
		validator:       validator.New(),
		purchaseLimiter: rate.NewWindowLimiter(10, time.Minute),
	}
}

func (h *Handler) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, 15*time.Second)
}

func (h *Handler) loggerForRequest(r *http.Request) *slog.Logger {
	logger := h.logger
	if logger == nil {
		return slog.Default()
	}
	if reqID := chimw.GetReqID(r.Context()); reqID != "" {
		logger = logger.With("request_id", reqID)
	}
	return logger
}
