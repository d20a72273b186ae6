package payment

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"magicworld/backend/internal/models"
)

// fakeCatalog implements CatalogStore over in-memory maps.
type fakeCatalog struct {
	types     map[string]models.TicketType
	discounts map[string]*models.Discount
}

func (f *fakeCatalog) FindTicketTypeByName(_ context.Context, typeName string) (models.TicketType, error) {
	tt, ok := f.types[strings.ToUpper(typeName)]
	if !ok {
		return models.TicketType{}, ErrTicketTypeNotFound
	}
	return tt, nil
}

func (f *fakeCatalog) ListTicketTypes(_ context.Context) ([]models.TicketType, error) {
	out := make([]models.TicketType, 0, len(f.types))
	for _, tt := range f.types {
		out = append(out, tt)
	}
	return out, nil
}

func (f *fakeCatalog) FindDiscountByCode(_ context.Context, code string) (*models.Discount, error) {
	return f.discounts[strings.ToUpper(code)], nil
}

// fakeLedger implements SalesLedger with fixed sold counts per type name.
type fakeLedger struct {
	sold map[string]int
}

func (f *fakeLedger) SumCommittedQuantity(_ context.Context, typeName string, _ time.Time) (int, error) {
	return f.sold[strings.ToUpper(typeName)], nil
}

// fakePurchases captures the commit call and simulates the transactional
/// boundary: when the authorize callback fails, nothing is persisted.
type fakePurchases struct {
	commitErr error
	committed *models.CommitPurchaseParams
	purchase  models.Purchase
}

func (f *fakePurchases) CommitPurchase(ctx context.Context, params models.CommitPurchaseParams, authorize AuthorizeFunc) (models.Purchase, error) {
	if f.commitErr != nil {
		return models.Purchase{}, f.commitErr
	}
	paymentID, err := authorize(ctx, params.Total, params.Currency)
	if err != nil {
		return models.Purchase{}, err
	}
	f.committed = &params
	purchase := f.purchase
	if purchase.ID == "" {
		purchase.ID = "p-1"
	}
	purchase.VisitDate = params.VisitDate
	purchase.Total = params.Total
	purchase.GatewayPaymentID = paymentID
	return purchase, nil
}

// fakeGateway implements Gateway, optionally declining.
type fakeGateway struct {
	declineErr error
	charged    []decimal.Decimal
}

func (f *fakeGateway) AuthorizeAndCapture(_ context.Context, amount decimal.Decimal, _, _ string) (string, error) {
	if f.declineErr != nil {
		return "", f.declineErr
	}
	f.charged = append(f.charged, amount)
	return "pi_test", nil
}

// fakeJobs implements JobQueue, recording enqueued kinds.
type fakeJobs struct {
	enqueueErr error
	kinds      []string
}

func (f *fakeJobs) Enqueue(_ context.Context, kind string, _ any) error {
	if f.enqueueErr != nil {
		return f.enqueueErr
	}
	f.kinds = append(f.kinds, kind)
	return nil
}
