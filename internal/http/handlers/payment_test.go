package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"magicworld/backend/internal/config"
	"magicworld/backend/internal/models"
	"magicworld/backend/internal/payment"
)

type stubCatalog struct {
	types     map[string]models.TicketType
	discounts map[string]*models.Discount
}

func (s *stubCatalog) FindTicketTypeByName(ctx context.Context, typeName string) (models.TicketType, error) {
	tt, ok := s.types[strings.ToUpper(strings.TrimSpace(typeName))]
	if !ok {
		return models.TicketType{}, fmt.Errorf("%w: %s", payment.ErrTicketTypeNotFound, typeName)
	}
	return tt, nil
}

func (s *stubCatalog) ListTicketTypes(ctx context.Context) ([]models.TicketType, error) {
	out := make([]models.TicketType, 0, len(s.types))
	for _, tt := range s.types {
		out = append(out, tt)
	}
	return out, nil
}

func (s *stubCatalog) FindDiscountByCode(ctx context.Context, code string) (*models.Discount, error) {
	return s.discounts[strings.ToUpper(strings.TrimSpace(code))], nil
}

type stubLedger struct {
	sold map[string]int
}

func (s *stubLedger) SumCommittedQuantity(ctx context.Context, typeName string, date time.Time) (int, error) {
	return s.sold[strings.ToUpper(typeName)], nil
}

type stubPurchases struct {
	commitErr error
}

func (s *stubPurchases) CommitPurchase(ctx context.Context, params models.CommitPurchaseParams, authorize payment.AuthorizeFunc) (models.Purchase, error) {
	if s.commitErr != nil {
		return models.Purchase{}, s.commitErr
	}
	gatewayID, err := authorize(ctx, params.Total, params.Currency)
	if err != nil {
		return models.Purchase{}, err
	}
	return models.Purchase{
		ID:               "p-handler-1",
		BuyerID:          1,
		VisitDate:        params.VisitDate,
		Subtotal:         params.Subtotal,
		DiscountAmount:   params.DiscountAmount,
		Total:            params.Total,
		Currency:         params.Currency,
		AppliedCodes:     params.AppliedCodes,
		GatewayPaymentID: gatewayID,
	}, nil
}

type stubGateway struct {
	declineErr error
}

func (s *stubGateway) AuthorizeAndCapture(ctx context.Context, amount decimal.Decimal, currency, paymentMethodID string) (string, error) {
	if s.declineErr != nil {
		return "", s.declineErr
	}
	return "pi_handler_test", nil
}

type stubJobs struct{}

func (s *stubJobs) Enqueue(ctx context.Context, kind string, payload any) error { return nil }

func newTestHandler(t *testing.T, purchases *stubPurchases, gateway *stubGateway) *Handler {
	t.Helper()
	catalog := &stubCatalog{
		types: map[string]models.TicketType{
			"ADULT": {
				ID:        1,
				TypeName:  "ADULT",
				Cost:      decimal.RequireFromString("50.00"),
				Currency:  "EUR",
				MaxPerDay: 100,
			},
			"CHILD": {
				ID:        2,
				TypeName:  "CHILD",
				Cost:      decimal.RequireFromString("30.00"),
				Currency:  "EUR",
				MaxPerDay: 50,
			},
		},
		discounts: map[string]*models.Discount{
			"SAVE10": {
				ID:                    1,
				DiscountCode:          "SAVE10",
				DiscountPercentage:    10,
				ExpiryDate:            time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC),
				ApplicableTicketTypes: []string{"ADULT"},
			},
			"SAVE30": {
				ID:                    2,
				DiscountCode:          "SAVE30",
				DiscountPercentage:    30,
				ExpiryDate:            time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC),
				ApplicableTicketTypes: []string{"ADULT"},
			},
		},
	}
	payments := payment.NewService(catalog, &stubLedger{sold: map[string]int{"ADULT": 40}}, purchases, gateway, &stubJobs{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return New(nil, payments, nil, &config.Config{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func testRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()
	r.Get("/tickets/availability", h.GetAvailability)
	r.Post("/payments/calculate", h.CalculatePrice)
	r.Post("/payments/process", h.ProcessPayment)
	return r
}

// TestGetAvailabilityListsTicketTypes verifies the availability endpoint
// reports remaining capacity per type for the requested date.
func TestGetAvailabilityListsTicketTypes(t *testing.T) {
	h := newTestHandler(t, &stubPurchases{}, &stubGateway{})
	r := testRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/tickets/availability?date=2099-06-15", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var body availabilityResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.VisitDate != "2099-06-15" {
		t.Fatalf("expected visitDate 2099-06-15, got %q", body.VisitDate)
	}
	if len(body.Tickets) != 2 {
		t.Fatalf("expected 2 ticket types, got %d", len(body.Tickets))
	}
	for _, ticket := range body.Tickets {
		if ticket.TypeName == "ADULT" && ticket.Available != 60 {
			t.Fatalf("expected 60 adult tickets available, got %d", ticket.Available)
		}
	}
}

// TestGetAvailabilityRejectsBadDate verifies a malformed date query is a 400.
func TestGetAvailabilityRejectsBadDate(t *testing.T) {
	h := newTestHandler(t, &stubPurchases{}, &stubGateway{})
	r := testRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/tickets/availability?date=15-06-2099", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

// TestCalculatePriceAppliesBestDiscount verifies the quote endpoint picks the
// highest percentage per line and rounds once at the end.
func TestCalculatePriceAppliesBestDiscount(t *testing.T) {
	h := newTestHandler(t, &stubPurchases{}, &stubGateway{})
	r := testRouter(h)

	body := `{"items":[{"ticketTypeName":"ADULT","quantity":1}],"discountCodes":["SAVE10","SAVE30"]}`
	req := httptest.NewRequest(http.MethodPost, "/payments/calculate", strings.NewReader(body))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var quote models.PriceQuote
	if err := json.Unmarshal(resp.Body.Bytes(), &quote); err != nil {
		t.Fatalf("decode quote: %v", err)
	}
	if !quote.Total.Equal(decimal.RequireFromString("35.00")) {
		t.Fatalf("expected total 35.00, got %s", quote.Total)
	}
	if !quote.DiscountAmount.Equal(decimal.RequireFromString("15.00")) {
		t.Fatalf("expected discount 15.00, got %s", quote.DiscountAmount)
	}
}

// TestCalculatePriceUnknownTicketType verifies an unknown type maps to 404.
func TestCalculatePriceUnknownTicketType(t *testing.T) {
	h := newTestHandler(t, &stubPurchases{}, &stubGateway{})
	r := testRouter(h)

	body := `{"items":[{"ticketTypeName":"DRAGON","quantity":1}]}`
	req := httptest.NewRequest(http.MethodPost, "/payments/calculate", strings.NewReader(body))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", resp.Code, resp.Body.String())
	}
}

// TestCalculatePriceRejectsInvalidJSON verifies a garbage body is a 400.
func TestCalculatePriceRejectsInvalidJSON(t *testing.T) {
	h := newTestHandler(t, &stubPurchases{}, &stubGateway{})
	r := testRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/payments/calculate", strings.NewReader("{not json"))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func processBody(visitDate string) string {
	return fmt.Sprintf(`{
		"visitDate": %q,
		"items": [{"ticketTypeName": "ADULT", "quantity": 2}],
		"discountCodes": ["SAVE30"],
		"email": "visitor@example.com",
		"firstName": "Ada",
		"lastName": "Lovelace",
		"paymentMethodId": "pm_card_visa"
	}`, visitDate)
}

// TestProcessPaymentSucceeds verifies the happy path returns 201 with the
// committed purchase.
func TestProcessPaymentSucceeds(t *testing.T) {
	h := newTestHandler(t, &stubPurchases{}, &stubGateway{})
	r := testRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/payments/process", strings.NewReader(processBody("2099-06-15")))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}

	var result models.PaymentResult
	if err := json.Unmarshal(resp.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	if result.PurchaseID != "p-handler-1" {
		t.Fatalf("expected purchase id p-handler-1, got %q", result.PurchaseID)
	}
	if !result.TotalAmount.Equal(decimal.RequireFromString("70.00")) {
		t.Fatalf("expected total 70.00, got %s", result.TotalAmount)
	}
}

// TestProcessPaymentRejectsBadVisitDate verifies a malformed date is a 400
// before any pricing happens.
func TestProcessPaymentRejectsBadVisitDate(t *testing.T) {
	h := newTestHandler(t, &stubPurchases{}, &stubGateway{})
	r := testRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/payments/process", strings.NewReader(processBody("15/06/2099")))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

// TestProcessPaymentRejectsMissingEmail verifies request validation runs
// server side.
func TestProcessPaymentRejectsMissingEmail(t *testing.T) {
	h := newTestHandler(t, &stubPurchases{}, &stubGateway{})
	r := testRouter(h)

	body := `{"visitDate":"2099-06-15","items":[{"ticketTypeName":"ADULT","quantity":1}],"firstName":"Ada","lastName":"Lovelace","paymentMethodId":"pm_card_visa"}`
	req := httptest.NewRequest(http.MethodPost, "/payments/process", strings.NewReader(body))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

// TestProcessPaymentSoldOut verifies capacity conflicts map to 409.
func TestProcessPaymentSoldOut(t *testing.T) {
	h := newTestHandler(t, &stubPurchases{commitErr: payment.ErrInsufficientAvailability}, &stubGateway{})
	r := testRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/payments/process", strings.NewReader(processBody("2099-06-15")))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", resp.Code, resp.Body.String())
	}
}

// TestProcessPaymentDeclined verifies gateway declines map to 402.
func TestProcessPaymentDeclined(t *testing.T) {
	h := newTestHandler(t, &stubPurchases{}, &stubGateway{declineErr: fmt.Errorf("%w: card was declined", payment.ErrPaymentDeclined)})
	r := testRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/payments/process", strings.NewReader(processBody("2099-06-15")))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d: %s", resp.Code, resp.Body.String())
	}
}

// TestProcessPaymentRateLimited verifies repeated purchase attempts from one
// address hit the per-client window limit.
func TestProcessPaymentRateLimited(t *testing.T) {
	h := newTestHandler(t, &stubPurchases{}, &stubGateway{})
	r := testRouter(h)

	var last int
	for i := 0; i < 11; i++ {
		req := httptest.NewRequest(http.MethodPost, "/payments/process", strings.NewReader(processBody("2099-06-15")))
		req.RemoteAddr = "203.0.113.7:4242"
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, req)
		last = resp.Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("expected 429 on the 11th attempt, got %d", last)
	}

	req := httptest.NewRequest(http.MethodPost, "/payments/process", strings.NewReader(processBody("2099-06-15")))
	req.RemoteAddr = "198.51.100.9:4242"
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected a different client to pass, got %d", resp.Code)
	}
}

// TestProcessPaymentTrimsFields verifies whitespace is trimmed before
// validation.
func TestProcessPaymentTrimsFields(t *testing.T) {
	h := newTestHandler(t, &stubPurchases{}, &stubGateway{})
	r := testRouter(h)

	body := `{
		"visitDate": " 2099-06-15 ",
		"items": [{"ticketTypeName": "ADULT", "quantity": 1}],
		"email": "visitor@example.com",
		"firstName": " Ada ",
		"lastName": "Lovelace",
		"paymentMethodId": "pm_card_visa"
	}`
	req := httptest.NewRequest(http.MethodPost, "/payments/process", strings.NewReader(body))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
}
