package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"magicworld/backend/internal/models"
	"magicworld/backend/internal/payment"
)

// ListTicketTypes returns the full catalog.
func (h *Handler) ListTicketTypes(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)

	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	tickets, err := h.repo.ListTicketTypes(ctx)
	if err != nil {
		logger.Error("list_ticket_types", "status", "internal_error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, tickets)
}

// CreateTicketType adds a new ticket type to the catalog.
func (h *Handler) CreateTicketType(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)

	var input models.TicketTypeInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validator.Struct(input); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	created, err := h.repo.CreateTicketType(ctx, input)
	if err != nil {
		logger.Error("create_ticket_type", "status", "internal_error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	logger.Info("create_ticket_type", "status", "created", "type_name", created.TypeName)
	writeJSON(w, http.StatusCreated, created)
}

// UpdateTicketType patches a ticket type by name.
func (h *Handler) UpdateTicketType(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)

	typeName := strings.TrimSpace(chi.URLParam(r, "typeName"))
	if typeName == "" {
		writeError(w, http.StatusBadRequest, "typeName is required")
		return
	}

	var patch models.TicketTypePatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validator.Struct(patch); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	updated, err := h.repo.UpdateTicketType(ctx, typeName, patch)
	if err != nil {
		if errors.Is(err, payment.ErrTicketTypeNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		logger.Error("update_ticket_type", "status", "internal_error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// DeleteTicketType removes a ticket type by name.
func (h *Handler) DeleteTicketType(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)

	typeName := strings.TrimSpace(chi.URLParam(r, "typeName"))
	if typeName == "" {
		writeError(w, http.StatusBadRequest, "typeName is required")
		return
	}

	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	if err := h.repo.DeleteTicketType(ctx, typeName); err != nil {
		if errors.Is(err, payment.ErrTicketTypeNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		if errors.Is(err, payment.ErrTicketTypeInUse) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		logger.Error("delete_ticket_type", "status", "internal_error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	logger.Info("delete_ticket_type", "status", "deleted", "type_name", typeName)
	w.WriteHeader(http.StatusNoContent)
}

// ListDiscounts returns every configured discount.
func (h *Handler) ListDiscounts(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)

	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	discounts, err := h.repo.ListDiscounts(ctx)
	if err != nil {
		logger.Error("list_discounts", "status", "internal_error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, discounts)
}

// CreateDiscount adds a discount, optionally scoped to ticket types.
func (h *Handler) CreateDiscount(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)

	var input models.DiscountInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validator.Struct(input); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	created, err := h.repo.CreateDiscount(ctx, input)
	if err != nil {
		logger.Error("create_discount", "status", "internal_error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	logger.Info("create_discount", "status", "created", "discount_code", created.DiscountCode)
	writeJSON(w, http.StatusCreated, created)
}

// DeleteDiscount removes a discount by code.
func (h *Handler) DeleteDiscount(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)

	code := strings.TrimSpace(chi.URLParam(r, "code"))
	if code == "" {
		writeError(w, http.StatusBadRequest, "code is required")
		return
	}

	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	if err := h.repo.DeleteDiscount(ctx, code); err != nil {
		if errors.Is(err, payment.ErrDiscountNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		logger.Error("delete_discount", "status", "internal_error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	logger.Info("delete_discount", "status", "deleted", "discount_code", code)
	w.WriteHeader(http.StatusNoContent)
}
