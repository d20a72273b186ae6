package integrations

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"magicworld/backend/internal/payment"
)

type GatewayConfig struct {
	BaseURL   string
	SecretKey string
}

// PaymentGateway charges cards through a Stripe style payment intents API.
type PaymentGateway struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

type GatewayAPIError struct {
	StatusCode int
	Body       string
}

func (e *GatewayAPIError) Error() string {
	return fmt.Sprintf("gateway api status %d: %s", e.StatusCode, e.Body)
}

type paymentIntentResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  *struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func NewPaymentGateway(cfg GatewayConfig, httpClient *http.Client, logger *slog.Logger) *PaymentGateway {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.stripe.com/v1"
	}
	return &PaymentGateway{
		baseURL:    baseURL,
		secretKey:  strings.TrimSpace(cfg.SecretKey),
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(25), 50),
		logger:     logger,
	}
}

// AuthorizeAndCapture creates and confirms a payment intent for the amount.
// A card decline maps to payment.ErrPaymentDeclined; transport and API
// failures come back as is.
func (g *PaymentGateway) AuthorizeAndCapture(ctx context.Context, amount decimal.Decimal, currency, paymentMethodID string) (string, error) {
	if g.secretKey == "" {
		return "", fmt.Errorf("gateway secret key is required")
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return "", err
	}

	form := url.Values{}
	form.Set("amount", fmt.Sprintf("%d", minorUnits(amount)))
	form.Set("currency", strings.ToLower(strings.TrimSpace(currency)))
	form.Set("payment_method", strings.TrimSpace(paymentMethodID))
	form.Set("confirm", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/payment_intents", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+g.secretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	var intent paymentIntentResponse
	if err := json.Unmarshal(body, &intent); err != nil {
		return "", fmt.Errorf("decode payment intent response: %w", err)
	}

	if intent.Error != nil {
		if intent.Error.Type == "card_error" {
			return "", fmt.Errorf("%w: %s", payment.ErrPaymentDeclined, intent.Error.Message)
		}
		return "", &GatewayAPIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &GatewayAPIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	switch intent.Status {
	case "succeeded", "requires_capture", "processing":
		if g.logger != nil {
			g.logger.Debug("gateway_payment_confirmed", "payment_intent", intent.ID, "status", intent.Status)
		}
		return intent.ID, nil
	default:
		return "", fmt.Errorf("%w: payment intent status %s", payment.ErrPaymentDeclined, intent.Status)
	}
}

// minorUnits converts a two decimal amount to integer cents.
func minorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}
