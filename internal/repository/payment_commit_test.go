package repository

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"magicworld/backend/internal/db"
	"magicworld/backend/internal/models"
	"magicworld/backend/internal/payment"
)

func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}
	pool, err := db.NewPool(context.Background(), dsn)
	if err != nil {
		t.Fatalf("db connection: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

func insertTestTicketType(ctx context.Context, pool *pgxpool.Pool, name string, maxPerDay int) (int64, error) {
	row := pool.QueryRow(ctx, `
INSERT INTO ticket_types (type_name, description, cost, currency, max_per_day)
VALUES ($1, 'test type', 50.00, 'EUR', $2)
RETURNING id;`, name, maxPerDay)
	var id int64
	err := row.Scan(&id)
	return id, err
}

func cleanupTestTicketType(ctx context.Context, pool *pgxpool.Pool, id int64) {
	_, _ = pool.Exec(ctx, `DELETE FROM ticket_sales WHERE ticket_type_id = $1`, id)
	_, _ = pool.Exec(ctx, `DELETE FROM ticket_types WHERE id = $1`, id)
}

func commitParams(typeName string, quantity int, visitDate time.Time) models.CommitPurchaseParams {
	unit := decimal.RequireFromString("50.00")
	subtotal := unit.Mul(decimal.NewFromInt(int64(quantity)))
	return models.CommitPurchaseParams{
		VisitDate: visitDate,
		Lines: []models.QuoteLine{{
			TicketTypeName: typeName,
			Quantity:       quantity,
			UnitPrice:      unit,
			LineSubtotal:   subtotal,
			LineDiscount:   decimal.Zero,
		}},
		Subtotal:       subtotal,
		DiscountAmount: decimal.Zero,
		Total:          subtotal,
		Currency:       "eur",
		AppliedCodes:   []string{},
		Email:          "commit-test@example.com",
		FirstName:      "Test",
		LastName:       "Buyer",
	}
}

func approveAll(_ context.Context, _ decimal.Decimal, _ string) (string, error) {
	return "pi_repo_test", nil
}

// TestCommitPurchasePersistsEverything verifies commit purchase persists everything behavior.
func TestCommitPurchasePersistsEverything(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	repo := New(pool)

	typeID, err := insertTestTicketType(ctx, pool, "COMMIT_TEST_ADULT", 10)
	if err != nil {
		t.Fatalf("insert ticket type: %v", err)
	}
	visitDate := time.Now().UTC().AddDate(0, 0, 7).Truncate(24 * time.Hour)

	var purchaseID string
	t.Cleanup(func() {
		if purchaseID != "" {
			_, _ = pool.Exec(ctx, `DELETE FROM purchases WHERE id = $1::uuid`, purchaseID)
		}
		_, _ = pool.Exec(ctx, `DELETE FROM buyers WHERE email = 'commit-test@example.com'`)
		cleanupTestTicketType(ctx, pool, typeID)
	})

	purchase, err := repo.CommitPurchase(ctx, commitParams("COMMIT_TEST_ADULT", 3, visitDate), approveAll)
	if err != nil {
		t.Fatalf("CommitPurchase(): %v", err)
	}
	purchaseID = purchase.ID
	if purchase.GatewayPaymentID != "pi_repo_test" {
		t.Fatalf("expected gateway payment id, got %q", purchase.GatewayPaymentID)
	}
	if len(purchase.Lines) != 1 || purchase.Lines[0].Quantity != 3 {
		t.Fatalf("unexpected purchase lines: %+v", purchase.Lines)
	}

	sold, err := repo.SumCommittedQuantity(ctx, "COMMIT_TEST_ADULT", visitDate)
	if err != nil {
		t.Fatalf("SumCommittedQuantity(): %v", err)
	}
	if sold != 3 {
		t.Fatalf("expected sold=3, got %d", sold)
	}

	loaded, err := repo.GetPurchase(ctx, purchase.ID)
	if err != nil {
		t.Fatalf("GetPurchase(): %v", err)
	}
	if !loaded.Total.Equal(purchase.Total) {
		t.Fatalf("expected total=%s, got %s", purchase.Total, loaded.Total)
	}
}

// TestCommitPurchaseRejectsOversell verifies commit purchase rejects oversell behavior.
func TestCommitPurchaseRejectsOversell(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	repo := New(pool)

	typeID, err := insertTestTicketType(ctx, pool, "COMMIT_TEST_LIMITED", 5)
	if err != nil {
		t.Fatalf("insert ticket type: %v", err)
	}
	visitDate := time.Now().UTC().AddDate(0, 0, 7).Truncate(24 * time.Hour)

	var firstID string
	t.Cleanup(func() {
		if firstID != "" {
			_, _ = pool.Exec(ctx, `DELETE FROM purchases WHERE id = $1::uuid`, firstID)
		}
		_, _ = pool.Exec(ctx, `DELETE FROM buyers WHERE email = 'commit-test@example.com'`)
		cleanupTestTicketType(ctx, pool, typeID)
	})

	first, err := repo.CommitPurchase(ctx, commitParams("COMMIT_TEST_LIMITED", 4, visitDate), approveAll)
	if err != nil {
		t.Fatalf("first CommitPurchase(): %v", err)
	}
	firstID = first.ID

	_, err = repo.CommitPurchase(ctx, commitParams("COMMIT_TEST_LIMITED", 2, visitDate), approveAll)
	if !errors.Is(err, payment.ErrInsufficientAvailability) {
		t.Fatalf("expected ErrInsufficientAvailability, got %v", err)
	}

	sold, err := repo.SumCommittedQuantity(ctx, "COMMIT_TEST_LIMITED", visitDate)
	if err != nil {
		t.Fatalf("SumCommittedQuantity(): %v", err)
	}
	if sold != 4 {
		t.Fatalf("expected sold=4 after rejected oversell, got %d", sold)
	}
}

// TestCommitPurchaseDeclineRollsBack verifies commit purchase decline rolls back behavior.
func TestCommitPurchaseDeclineRollsBack(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	repo := New(pool)

	typeID, err := insertTestTicketType(ctx, pool, "COMMIT_TEST_DECLINE", 10)
	if err != nil {
		t.Fatalf("insert ticket type: %v", err)
	}
	visitDate := time.Now().UTC().AddDate(0, 0, 7).Truncate(24 * time.Hour)

	t.Cleanup(func() {
		cleanupTestTicketType(ctx, pool, typeID)
	})

	decline := func(_ context.Context, _ decimal.Decimal, _ string) (string, error) {
		return "", payment.ErrPaymentDeclined
	}
	_, err = repo.CommitPurchase(ctx, commitParams("COMMIT_TEST_DECLINE", 2, visitDate), decline)
	if !errors.Is(err, payment.ErrPaymentDeclined) {
		t.Fatalf("expected ErrPaymentDeclined, got %v", err)
	}

	sold, err := repo.SumCommittedQuantity(ctx, "COMMIT_TEST_DECLINE", visitDate)
	if err != nil {
		t.Fatalf("SumCommittedQuantity(): %v", err)
	}
	if sold != 0 {
		t.Fatalf("expected sold=0 after declined payment, got %d", sold)
	}

	var purchaseCount int
	if err := pool.QueryRow(ctx, `
SELECT count(*)
FROM purchases p
JOIN buyers b ON b.id = p.buyer_id
WHERE b.email = 'commit-test@example.com'
	AND p.visit_date = $1::date;`, visitDate).Scan(&purchaseCount); err != nil {
		t.Fatalf("purchase count: %v", err)
	}
	if purchaseCount != 0 {
		t.Fatalf("expected no purchase rows after decline, got %d", purchaseCount)
	}
}
