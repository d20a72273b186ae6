package integrations

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"

	"magicworld/backend/internal/payment"
)

// TestAuthorizeAndCaptureSuccess verifies authorize and capture success behavior.
func TestAuthorizeAndCaptureSuccess(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/payment_intents" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk_test_key" {
			t.Fatalf("unexpected auth header: %s", got)
		}
		_ = r.ParseForm()
		if got := r.Form.Get("amount"); got != "10000" {
			t.Fatalf("unexpected amount: %s", got)
		}
		if got := r.Form.Get("currency"); got != "eur" {
			t.Fatalf("unexpected currency: %s", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":     "pi_123",
			"status": "succeeded",
		})
	}))
	defer srv.Close()

	gw := NewPaymentGateway(GatewayConfig{BaseURL: srv.URL, SecretKey: "sk_test_key"}, srv.Client(), nil)
	id, err := gw.AuthorizeAndCapture(context.Background(), decimal.RequireFromString("100.00"), "EUR", "pm_card")
	if err != nil {
		t.Fatalf("AuthorizeAndCapture(): %v", err)
	}
	if id != "pi_123" {
		t.Fatalf("unexpected payment intent id: %s", id)
	}
}

// TestAuthorizeAndCaptureDecline verifies authorize and capture decline behavior.
func TestAuthorizeAndCaptureDecline(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]interface{}{
				"type":    "card_error",
				"code":    "card_declined",
				"message": "Your card was declined.",
			},
		})
	}))
	defer srv.Close()

	gw := NewPaymentGateway(GatewayConfig{BaseURL: srv.URL, SecretKey: "sk_test_key"}, srv.Client(), nil)
	_, err := gw.AuthorizeAndCapture(context.Background(), decimal.RequireFromString("42.00"), "eur", "pm_card")
	if !errors.Is(err, payment.ErrPaymentDeclined) {
		t.Fatalf("expected ErrPaymentDeclined, got %v", err)
	}
}

// TestAuthorizeAndCaptureAPIError verifies authorize and capture a p i error behavior.
func TestAuthorizeAndCaptureAPIError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]interface{}{
				"type":    "api_error",
				"message": "internal",
			},
		})
	}))
	defer srv.Close()

	gw := NewPaymentGateway(GatewayConfig{BaseURL: srv.URL, SecretKey: "sk_test_key"}, srv.Client(), nil)
	_, err := gw.AuthorizeAndCapture(context.Background(), decimal.RequireFromString("42.00"), "eur", "pm_card")
	var apiErr *GatewayAPIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected GatewayAPIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusInternalServerError {
		t.Fatalf("unexpected status: %d", apiErr.StatusCode)
	}
}
