package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TicketType struct {
	ID          int64           `json:"id"`
	TypeName    string          `json:"typeName"`
	Description string          `json:"description"`
	Cost        decimal.Decimal `json:"cost"`
	Currency    string          `json:"currency"`
	PhotoURL    string          `json:"photoUrl,omitempty"`
	MaxPerDay   int             `json:"maxPerDay"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

type TicketTypeInput struct {
	TypeName    string          `json:"typeName" validate:"required,max=50"`
	Description string          `json:"description" validate:"max=500"`
	Cost        decimal.Decimal `json:"cost" validate:"required"`
	Currency    string          `json:"currency" validate:"required,len=3"`
	PhotoURL    string          `json:"photoUrl"`
	MaxPerDay   int             `json:"maxPerDay" validate:"required,min=1"`
}

type TicketTypePatch struct {
	Description *string          `json:"description"`
	Cost        *decimal.Decimal `json:"cost"`
	Currency    *string          `json:"currency"`
	PhotoURL    *string          `json:"photoUrl"`
	MaxPerDay   *int             `json:"maxPerDay"`
}

type Discount struct {
	ID                 int64     `json:"id"`
	DiscountCode       string    `json:"discountCode"`
	DiscountPercentage int       `json:"discountPercentage"`
	ExpiryDate         time.Time `json:"expiryDate"`
	// TypeNames the discount is restricted to. Empty means it applies to
	// every ticket type.
	ApplicableTicketTypes []string  `json:"applicableTicketTypes"`
	CreatedAt             time.Time `json:"createdAt"`
	UpdatedAt             time.Time `json:"updatedAt"`
}

type DiscountInput struct {
	DiscountCode          string   `json:"discountCode" validate:"required,max=50"`
	DiscountPercentage    int      `json:"discountPercentage" validate:"required,min=1,max=100"`
	ExpiryDate            string   `json:"expiryDate" validate:"required"`
	ApplicableTicketTypes []string `json:"applicableTicketTypes"`
}

type TicketAvailability struct {
	ID          int64           `json:"id"`
	TypeName    string          `json:"typeName"`
	Description string          `json:"description"`
	Cost        decimal.Decimal `json:"cost"`
	Currency    string          `json:"currency"`
	PhotoURL    string          `json:"photoUrl,omitempty"`
	MaxPerDay   int             `json:"maxPerDay"`
	Available   int             `json:"available"`
}

type Buyer struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
}

type Purchase struct {
	ID               string          `json:"id"`
	BuyerID          int64           `json:"buyerId"`
	VisitDate        time.Time       `json:"visitDate"`
	PurchaseDate     time.Time       `json:"purchaseDate"`
	Subtotal         decimal.Decimal `json:"subtotal"`
	DiscountAmount   decimal.Decimal `json:"discountAmount"`
	Total            decimal.Decimal `json:"total"`
	Currency         string          `json:"currency"`
	AppliedCodes     []string        `json:"appliedCodes"`
	GatewayPaymentID string          `json:"gatewayPaymentId,omitempty"`
	Lines            []PurchaseLine  `json:"lines"`
}

type PurchaseLine struct {
	ID             int64           `json:"id"`
	PurchaseID     string          `json:"purchaseId"`
	TicketTypeName string          `json:"ticketTypeName"`
	ValidDate      time.Time       `json:"validDate"`
	Quantity       int             `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unitPrice"`
	TotalCost      decimal.Decimal `json:"totalCost"`
}

type SideEffectJob struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Payload   []byte    `json:"payload"`
	Status    string    `json:"status"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"lastError,omitempty"`
	RunAt     time.Time `json:"runAt"`
	CreatedAt time.Time `json:"createdAt"`
}

const (
	JobKindPurchaseEmail         = "purchase_email"
	JobKindAvailabilityBroadcast = "availability_broadcast"

	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusDone       = "done"
	JobStatusFailed     = "failed"
)
