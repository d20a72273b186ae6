package payment

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"magicworld/backend/internal/models"
	"magicworld/backend/internal/pricing"
)

// CatalogStore is the read side of the ticket and discount catalog.
type CatalogStore interface {
	FindTicketTypeByName(ctx context.Context, typeName string) (models.TicketType, error)
	ListTicketTypes(ctx context.Context) ([]models.TicketType, error)
	// FindDiscountByCode returns nil with no error when the code is unknown.
	FindDiscountByCode(ctx context.Context, code string) (*models.Discount, error)
}

// SalesLedger exposes committed sales per ticket type and visit date.
type SalesLedger interface {
	SumCommittedQuantity(ctx context.Context, typeName string, date time.Time) (int, error)
}

// AuthorizeFunc charges the recomputed total against the gateway. It runs
// inside the purchase transaction so a decline rolls everything back.
type AuthorizeFunc func(ctx context.Context, total decimal.Decimal, currency string) (paymentID string, err error)

// PurchaseStore commits a purchase with its lines as one atomic unit,
// enforcing per (ticket type, visit date) capacity at commit time.
type PurchaseStore interface {
	CommitPurchase(ctx context.Context, params models.CommitPurchaseParams, authorize AuthorizeFunc) (models.Purchase, error)
}

// Gateway is the external card processor.
type Gateway interface {
	AuthorizeAndCapture(ctx context.Context, amount decimal.Decimal, currency, paymentMethodID string) (string, error)
}

// JobQueue enqueues post-commit side effects for the worker.
type JobQueue interface {
	Enqueue(ctx context.Context, kind string, payload any) error
}

type Service struct {
	catalog   CatalogStore
	ledger    SalesLedger
	purchases PurchaseStore
	gateway   Gateway
	jobs      JobQueue
	logger    *slog.Logger
	now       func() time.Time
}

func NewService(catalog CatalogStore, ledger SalesLedger, purchases PurchaseStore, gateway Gateway, jobs JobQueue, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		catalog:   catalog,
		ledger:    ledger,
		purchases: purchases,
		gateway:   gateway,
		jobs:      jobs,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the service clock. Tests use it to pin "today".
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Availability lists every ticket type with its remaining sellable quantity
// for the date. Pure read; a type with no sales reports its full maxPerDay.
func (s *Service) Availability(ctx context.Context, date time.Time) ([]models.TicketAvailability, error) {
	types, err := s.catalog.ListTicketTypes(ctx)
	if err != nil {
		return nil, fmt.Errorf("list ticket types: %w", err)
	}

	out := make([]models.TicketAvailability, 0, len(types))
	for _, tt := range types {
		sold, err := s.ledger.SumCommittedQuantity(ctx, tt.TypeName, date)
		if err != nil {
			return nil, fmt.Errorf("sum committed quantity for %s: %w", tt.TypeName, err)
		}
		available := tt.MaxPerDay - sold
		if available < 0 {
			available = 0
		}
		out = append(out, models.TicketAvailability{
			ID:          tt.ID,
			TypeName:    tt.TypeName,
			Description: tt.Description,
			Cost:        tt.Cost,
			Currency:    tt.Currency,
			PhotoURL:    tt.PhotoURL,
			MaxPerDay:   tt.MaxPerDay,
			Available:   available,
		})
	}
	return out, nil
}

// Calculate produces a price quote for the line items and codes. It never
// writes and never reserves capacity; discount problems are classified in
// the quote, not raised as errors. Only an unknown ticket type fails.
func (s *Service) Calculate(ctx context.Context, items []models.PaymentLineItem, codes []string) (models.PriceQuote, error) {
	if len(items) == 0 {
		return models.PriceQuote{}, fmt.Errorf("%w: at least one line item is required", ErrValidation)
	}
	for _, item := range items {
		if item.Quantity <= 0 {
			return models.PriceQuote{}, fmt.Errorf("%w: quantity must be positive", ErrValidation)
		}
	}

	priced, lines, err := s.priceLines(ctx, items)
	if err != nil {
		return models.PriceQuote{}, err
	}
	resolution, err := s.resolveCodes(ctx, lines, codes)
	if err != nil {
		return models.PriceQuote{}, err
	}
	return pricing.Calculate(priced, resolution), nil
}

// Process runs the purchase orchestration: date validation, commit-time
// availability re-check, server-side price recomputation, gateway charge
// and atomic persistence, then post-commit side effects. Any rejection
// leaves no partial state behind.
func (s *Service) Process(ctx context.Context, req models.PaymentRequest) (models.PaymentResult, error) {
	if err := validateRequest(req); err != nil {
		return models.PaymentResult{}, err
	}
	if visitDay(req.VisitDate).Before(visitDay(s.now())) {
		return models.PaymentResult{}, ErrPastVisitDate
	}

	quote, err := s.Calculate(ctx, req.Items, req.DiscountCodes)
	if err != nil {
		return models.PaymentResult{}, err
	}

	// The buyer confirmed a quote that may have aged. If any code they
	// submitted no longer resolves to an applicable discount the purchase
	// is rejected instead of silently charging a different total.
	if problematic := append(append([]string{}, quote.InvalidCodes...), quote.ValidButNotApplicableCodes...); len(problematic) > 0 {
		return models.PaymentResult{}, fmt.Errorf("%w: %s", ErrDiscountChanged, strings.Join(problematic, ", "))
	}
	if !quote.Total.IsPositive() {
		return models.PaymentResult{}, ErrInvalidTotal
	}

	currency := s.purchaseCurrency(ctx, req.Items)
	params := models.CommitPurchaseParams{
		VisitDate:      visitDay(req.VisitDate),
		Lines:          quote.Lines,
		Subtotal:       quote.Subtotal,
		DiscountAmount: quote.DiscountAmount,
		Total:          quote.Total,
		Currency:       currency,
		AppliedCodes:   quote.ValidCodes,
		Email:          strings.TrimSpace(req.Email),
		FirstName:      strings.TrimSpace(req.FirstName),
		LastName:       strings.TrimSpace(req.LastName),
	}

	purchase, err := s.purchases.CommitPurchase(ctx, params, func(ctx context.Context, total decimal.Decimal, currency string) (string, error) {
		return s.gateway.AuthorizeAndCapture(ctx, total, currency, req.PaymentMethodID)
	})
	if err != nil {
		return models.PaymentResult{}, err
	}

	result := models.PaymentResult{
		Success:          true,
		Message:          "payment completed",
		PurchaseID:       purchase.ID,
		GatewayPaymentID: purchase.GatewayPaymentID,
		TotalAmount:      quote.Total,
		DiscountAmount:   quote.DiscountAmount,
		AppliedCodes:     quote.ValidCodes,
	}
	result.Warnings = s.dispatchSideEffects(ctx, purchase, req)
	return result, nil
}

// dispatchSideEffects enqueues the post-commit work. Failures degrade to
// warnings on the already committed purchase, never to an error.
func (s *Service) dispatchSideEffects(ctx context.Context, purchase models.Purchase, req models.PaymentRequest) []string {
	var warnings []string

	emailPayload := map[string]any{
		"purchaseId": purchase.ID,
		"email":      req.Email,
		"firstName":  req.FirstName,
	}
	if err := s.jobs.Enqueue(ctx, models.JobKindPurchaseEmail, emailPayload); err != nil {
		s.logger.Warn("enqueue_purchase_email", "purchase_id", purchase.ID, "error", err)
		warnings = append(warnings, "confirmation email could not be scheduled")
	}

	broadcastPayload := map[string]any{
		"date": purchase.VisitDate.Format("2006-01-02"),
	}
	if err := s.jobs.Enqueue(ctx, models.JobKindAvailabilityBroadcast, broadcastPayload); err != nil {
		s.logger.Warn("enqueue_availability_broadcast", "purchase_id", purchase.ID, "error", err)
		warnings = append(warnings, "availability broadcast could not be scheduled")
	}
	return warnings
}

func (s *Service) priceLines(ctx context.Context, items []models.PaymentLineItem) ([]pricing.PricedLine, []pricing.LineItem, error) {
	priced := make([]pricing.PricedLine, 0, len(items))
	lines := make([]pricing.LineItem, 0, len(items))
	for _, item := range items {
		tt, err := s.catalog.FindTicketTypeByName(ctx, item.TicketTypeName)
		if err != nil {
			return nil, nil, err
		}
		priced = append(priced, pricing.PricedLine{
			TicketTypeName: tt.TypeName,
			Quantity:       item.Quantity,
			UnitCost:       tt.Cost,
		})
		lines = append(lines, pricing.LineItem{
			TicketTypeName: tt.TypeName,
			Quantity:       item.Quantity,
		})
	}
	return priced, lines, nil
}

func (s *Service) resolveCodes(ctx context.Context, lines []pricing.LineItem, codes []string) (pricing.Resolution, error) {
	submitted := make([]pricing.SubmittedCode, 0, len(codes))
	for _, raw := range codes {
		code := strings.TrimSpace(raw)
		if code == "" {
			continue
		}
		discount, err := s.catalog.FindDiscountByCode(ctx, code)
		if err != nil {
			return pricing.Resolution{}, fmt.Errorf("find discount %s: %w", code, err)
		}
		var rule *pricing.DiscountRule
		if discount != nil {
			appliesTo := make(map[string]struct{}, len(discount.ApplicableTicketTypes))
			for _, name := range discount.ApplicableTicketTypes {
				appliesTo[name] = struct{}{}
			}
			rule = &pricing.DiscountRule{
				Code:       discount.DiscountCode,
				Percentage: discount.DiscountPercentage,
				ExpiryDate: discount.ExpiryDate,
				AppliesTo:  appliesTo,
			}
		}
		submitted = append(submitted, pricing.SubmittedCode{Code: code, Rule: rule})
	}
	return pricing.Resolve(lines, submitted, s.now()), nil
}

// purchaseCurrency takes the currency of the first line's ticket type,
// falling back to EUR when the lookup cannot resolve one.
func (s *Service) purchaseCurrency(ctx context.Context, items []models.PaymentLineItem) string {
	names := make([]string, 0, len(items))
	for _, item := range items {
		names = append(names, item.TicketTypeName)
	}
	sort.Strings(names)
	for _, name := range names {
		tt, err := s.catalog.FindTicketTypeByName(ctx, name)
		if err == nil && tt.Currency != "" {
			return strings.ToLower(tt.Currency)
		}
	}
	return "eur"
}

func validateRequest(req models.PaymentRequest) error {
	if len(req.Items) == 0 {
		return fmt.Errorf("%w: at least one line item is required", ErrValidation)
	}
	for _, item := range req.Items {
		if strings.TrimSpace(item.TicketTypeName) == "" {
			return fmt.Errorf("%w: ticket type name is required", ErrValidation)
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("%w: quantity must be positive", ErrValidation)
		}
	}
	if strings.TrimSpace(req.Email) == "" {
		return fmt.Errorf("%w: email is required", ErrValidation)
	}
	if req.VisitDate.IsZero() {
		return fmt.Errorf("%w: visit date is required", ErrValidation)
	}
	return nil
}

func visitDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
