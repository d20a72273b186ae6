package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentLineItem struct {
	TicketTypeName string `json:"ticketTypeName" validate:"required"`
	Quantity       int    `json:"quantity" validate:"required,min=1"`
}

type PaymentRequest struct {
	VisitDate       time.Time         `json:"-"`
	Items           []PaymentLineItem `json:"items" validate:"required,min=1,dive"`
	DiscountCodes   []string          `json:"discountCodes"`
	Email           string            `json:"email" validate:"required,email"`
	FirstName       string            `json:"firstName" validate:"required"`
	LastName        string            `json:"lastName" validate:"required"`
	PaymentMethodID string            `json:"paymentMethodId" validate:"required"`
}

// PriceQuote is recomputed on every pricing request and never persisted.
type PriceQuote struct {
	Subtotal                   decimal.Decimal     `json:"subtotal"`
	DiscountAmount             decimal.Decimal     `json:"discountAmount"`
	Total                      decimal.Decimal     `json:"total"`
	Lines                      []QuoteLine         `json:"lines"`
	ValidCodes                 []string            `json:"validDiscountCodes"`
	InvalidCodes               []string            `json:"invalidDiscountCodes"`
	ValidButNotApplicableCodes []string            `json:"validButNotApplicableCodes"`
	DiscountPercentages        map[string]int      `json:"discountPercentages"`
	DiscountAppliesTo          map[string][]string `json:"discountAppliesTo"`
}

type QuoteLine struct {
	TicketTypeName  string          `json:"ticketTypeName"`
	Quantity        int             `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unitPrice"`
	LineSubtotal    decimal.Decimal `json:"lineSubtotal"`
	DiscountPercent int             `json:"discountPercent"`
	LineDiscount    decimal.Decimal `json:"lineDiscount"`
	AppliedCode     string          `json:"appliedCode,omitempty"`
}

type PaymentResult struct {
	Success          bool            `json:"success"`
	Message          string          `json:"message"`
	PurchaseID       string          `json:"purchaseId,omitempty"`
	GatewayPaymentID string          `json:"gatewayPaymentId,omitempty"`
	TotalAmount      decimal.Decimal `json:"totalAmount"`
	DiscountAmount   decimal.Decimal `json:"discountAmount"`
	AppliedCodes     []string        `json:"appliedDiscountCodes"`
	Warnings         []string        `json:"warnings,omitempty"`
}

// CommitPurchaseParams carries everything the purchase transaction needs.
// Amounts are already recomputed server side; the client supplied only line
// items and codes.
type CommitPurchaseParams struct {
	VisitDate      time.Time
	Lines          []QuoteLine
	Subtotal       decimal.Decimal
	DiscountAmount decimal.Decimal
	Total          decimal.Decimal
	Currency       string
	AppliedCodes   []string
	Email          string
	FirstName      string
	LastName       string
}
