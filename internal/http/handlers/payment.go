package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"magicworld/backend/internal/models"
	"magicworld/backend/internal/payment"
)

type calculateRequest struct {
	Items         []models.PaymentLineItem `json:"items" validate:"required,min=1,dive"`
	DiscountCodes []string                 `json:"discountCodes"`
}

type processRequest struct {
	VisitDate       string                   `json:"visitDate"`
	Items           []models.PaymentLineItem `json:"items"`
	DiscountCodes   []string                 `json:"discountCodes"`
	Email           string                   `json:"email"`
	FirstName       string                   `json:"firstName"`
	LastName        string                   `json:"lastName"`
	PaymentMethodID string                   `json:"paymentMethodId"`
}

type availabilityResponse struct {
	VisitDate string                      `json:"visitDate"`
	Tickets   []models.TicketAvailability `json:"tickets"`
}

// GetAvailability lists every ticket type with remaining capacity for the
// requested date. Defaults to today when no date is given.
func (h *Handler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)

	date := time.Now().UTC()
	if raw := strings.TrimSpace(r.URL.Query().Get("date")); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		date = parsed
	}

	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	tickets, err := h.payments.Availability(ctx, date)
	if err != nil {
		logger.Error("availability", "status", "internal_error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, availabilityResponse{
		VisitDate: date.Format("2006-01-02"),
		Tickets:   tickets,
	})
}

// CalculatePrice quotes a basket without reserving anything.
func (h *Handler) CalculatePrice(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)

	var req calculateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("calculate_price", "status", "invalid_json")
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	quote, err := h.payments.Calculate(ctx, req.Items, req.DiscountCodes)
	if err != nil {
		h.handlePaymentError(logger, w, "calculate_price", err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

// ProcessPayment runs the full purchase flow for a visit date.
func (h *Handler) ProcessPayment(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)

	if !h.purchaseLimiter.Allow(r.RemoteAddr) {
		writeError(w, http.StatusTooManyRequests, "too many purchase attempts, slow down")
		return
	}

	var req processRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("process_payment", "status", "invalid_json")
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	visitDate, err := time.Parse("2006-01-02", strings.TrimSpace(req.VisitDate))
	if err != nil {
		writeError(w, http.StatusBadRequest, "visitDate must be YYYY-MM-DD")
		return
	}

	paymentReq := models.PaymentRequest{
		VisitDate:       visitDate,
		Items:           req.Items,
		DiscountCodes:   req.DiscountCodes,
		Email:           strings.TrimSpace(req.Email),
		FirstName:       strings.TrimSpace(req.FirstName),
		LastName:        strings.TrimSpace(req.LastName),
		PaymentMethodID: strings.TrimSpace(req.PaymentMethodID),
	}
	if err := h.validator.Struct(paymentReq); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	result, err := h.payments.Process(ctx, paymentReq)
	if err != nil {
		h.handlePaymentError(logger, w, "process_payment", err)
		return
	}
	logger.Info("process_payment", "status", "completed", "purchase_id", result.PurchaseID, "warnings", len(result.Warnings))
	writeJSON(w, http.StatusCreated, result)
}

func (h *Handler) handlePaymentError(logger interface {
	Error(string, ...any)
	Warn(string, ...any)
}, w http.ResponseWriter, action string, err error) {
	switch {
	case errors.Is(err, payment.ErrTicketTypeNotFound), errors.Is(err, payment.ErrPurchaseNotFound):
		logger.Warn(action, "status", "not_found", "error", err)
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, payment.ErrValidation), errors.Is(err, payment.ErrPastVisitDate), errors.Is(err, payment.ErrInvalidTotal), errors.Is(err, payment.ErrDiscountChanged):
		logger.Warn(action, "status", "invalid_request", "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, payment.ErrInsufficientAvailability):
		logger.Warn(action, "status", "conflict", "error", err)
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, payment.ErrPaymentDeclined):
		logger.Warn(action, "status", "declined", "error", err)
		writeError(w, http.StatusPaymentRequired, err.Error())
	default:
		logger.Error(action, "status", "internal_error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
