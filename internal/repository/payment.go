package repository

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"magicworld/backend/internal/models"
	"magicworld/backend/internal/payment"
)

// SumCommittedQuantity returns the quantity already sold for the ticket type
// on the visit date. Zero when no aggregate row exists yet.
func (r *Repository) SumCommittedQuantity(ctx context.Context, typeName string, date time.Time) (int, error) {
	row := r.pool.QueryRow(ctx, `
SELECT COALESCE(s.sold_quantity, 0)
FROM ticket_types tt
LEFT JOIN ticket_sales s ON s.ticket_type_id = tt.id AND s.visit_date = $2::date
WHERE lower(tt.type_name) = lower($1);`, strings.TrimSpace(typeName), date)
	var sold int
	if err := row.Scan(&sold); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, payment.ErrTicketTypeNotFound
		}
		return 0, err
	}
	return sold, nil
}

// CommitPurchase claims capacity, charges the gateway and persists the
// purchase with its lines in one transaction. The authorize callback runs
// after capacity is claimed; any failure rolls the whole transaction back.
func (r *Repository) CommitPurchase(ctx context.Context, params models.CommitPurchaseParams, authorize payment.AuthorizeFunc) (models.Purchase, error) {
	quantities := map[string]int{}
	for _, line := range params.Lines {
		quantities[line.TicketTypeName] += line.Quantity
	}
	// Lock ticket types in a stable order so concurrent purchases cannot
	// deadlock on each other.
	typeNames := make([]string, 0, len(quantities))
	for name := range quantities {
		typeNames = append(typeNames, name)
	}
	sort.Strings(typeNames)

	var out models.Purchase
	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		for _, name := range typeNames {
			var typeID int64
			if err := tx.QueryRow(ctx, `
SELECT id
FROM ticket_types
WHERE lower(type_name) = lower($1)
FOR UPDATE;`, name).Scan(&typeID); err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return payment.ErrTicketTypeNotFound
				}
				return err
			}

			if _, err := tx.Exec(ctx, `
INSERT INTO ticket_sales (ticket_type_id, visit_date, sold_quantity)
VALUES ($1, $2::date, 0)
ON CONFLICT (ticket_type_id, visit_date) DO NOTHING;`, typeID, params.VisitDate); err != nil {
				return err
			}

			cmd, err := tx.Exec(ctx, `
UPDATE ticket_sales s
SET sold_quantity = s.sold_quantity + $3,
	updated_at = now()
FROM ticket_types tt
WHERE s.ticket_type_id = tt.id
	AND tt.id = $1
	AND s.visit_date = $2::date
	AND s.sold_quantity + $3 <= tt.max_per_day;`, typeID, params.VisitDate, quantities[name])
			if err != nil {
				return err
			}
			if cmd.RowsAffected() == 0 {
				return payment.ErrInsufficientAvailability
			}
		}

		paymentID, err := authorize(ctx, params.Total, params.Currency)
		if err != nil {
			return err
		}

		buyerID, err := upsertBuyer(ctx, tx, params)
		if err != nil {
			return err
		}

		purchaseID := uuid.NewString()
		row := tx.QueryRow(ctx, `
INSERT INTO purchases (id, buyer_id, visit_date, subtotal, discount_amount, total, currency, applied_codes, gateway_payment_id)
VALUES ($1::uuid, $2, $3::date, $4, $5, $6, $7, $8, $9)
RETURNING purchase_date;`,
			purchaseID,
			buyerID,
			params.VisitDate,
			params.Subtotal,
			params.DiscountAmount,
			params.Total,
			params.Currency,
			params.AppliedCodes,
			nullString(paymentID),
		)
		var purchaseDate time.Time
		if err := row.Scan(&purchaseDate); err != nil {
			return err
		}

		lines := make([]models.PurchaseLine, 0, len(params.Lines))
		for _, line := range params.Lines {
			lineRow := tx.QueryRow(ctx, `
INSERT INTO purchase_lines (purchase_id, ticket_type_name, valid_date, quantity, unit_price, total_cost)
VALUES ($1::uuid, $2, $3::date, $4, $5, $6)
RETURNING id;`,
				purchaseID,
				line.TicketTypeName,
				params.VisitDate,
				line.Quantity,
				line.UnitPrice,
				line.LineSubtotal.Sub(line.LineDiscount),
			)
			var lineID int64
			if err := lineRow.Scan(&lineID); err != nil {
				return err
			}
			lines = append(lines, models.PurchaseLine{
				ID:             lineID,
				PurchaseID:     purchaseID,
				TicketTypeName: line.TicketTypeName,
				ValidDate:      params.VisitDate,
				Quantity:       line.Quantity,
				UnitPrice:      line.UnitPrice,
				TotalCost:      line.LineSubtotal.Sub(line.LineDiscount),
			})
		}

		out = models.Purchase{
			ID:               purchaseID,
			BuyerID:          buyerID,
			VisitDate:        params.VisitDate,
			PurchaseDate:     purchaseDate,
			Subtotal:         params.Subtotal,
			DiscountAmount:   params.DiscountAmount,
			Total:            params.Total,
			Currency:         params.Currency,
			AppliedCodes:     params.AppliedCodes,
			GatewayPaymentID: paymentID,
			Lines:            lines,
		}
		return nil
	})
	if err != nil {
		return models.Purchase{}, err
	}
	return out, nil
}

func upsertBuyer(ctx context.Context, tx pgx.Tx, params models.CommitPurchaseParams) (int64, error) {
	row := tx.QueryRow(ctx, `
INSERT INTO buyers (username, first_name, last_name, email)
VALUES ($1, $2, $3, lower($4))
ON CONFLICT (email) DO UPDATE SET
	first_name = EXCLUDED.first_name,
	last_name = EXCLUDED.last_name,
	updated_at = now()
RETURNING id;`,
		"guest_"+uuid.NewString()[:8],
		params.FirstName,
		params.LastName,
		params.Email,
	)
	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// GetPurchase loads a purchase with its lines.
func (r *Repository) GetPurchase(ctx context.Context, purchaseID string) (models.Purchase, error) {
	row := r.pool.QueryRow(ctx, `
SELECT id::text, buyer_id, visit_date, purchase_date, subtotal, discount_amount, total, currency, applied_codes, gateway_payment_id
FROM purchases
WHERE id = $1::uuid;`, purchaseID)

	var out models.Purchase
	var gatewayPaymentID *string
	if err := row.Scan(
		&out.ID,
		&out.BuyerID,
		&out.VisitDate,
		&out.PurchaseDate,
		&out.Subtotal,
		&out.DiscountAmount,
		&out.Total,
		&out.Currency,
		&out.AppliedCodes,
		&gatewayPaymentID,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Purchase{}, payment.ErrPurchaseNotFound
		}
		return models.Purchase{}, err
	}
	if gatewayPaymentID != nil {
		out.GatewayPaymentID = *gatewayPaymentID
	}

	rows, err := r.pool.Query(ctx, `
SELECT id, purchase_id::text, ticket_type_name, valid_date, quantity, unit_price, total_cost
FROM purchase_lines
WHERE purchase_id = $1::uuid
ORDER BY id ASC;`, purchaseID)
	if err != nil {
		return models.Purchase{}, err
	}
	defer rows.Close()

	lines := make([]models.PurchaseLine, 0)
	for rows.Next() {
		var line models.PurchaseLine
		if err := rows.Scan(
			&line.ID,
			&line.PurchaseID,
			&line.TicketTypeName,
			&line.ValidDate,
			&line.Quantity,
			&line.UnitPrice,
			&line.TotalCost,
		); err != nil {
			return models.Purchase{}, err
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return models.Purchase{}, err
	}
	out.Lines = lines
	return out, nil
}

// GetBuyer loads the buyer attached to a purchase.
func (r *Repository) GetBuyer(ctx context.Context, buyerID int64) (models.Buyer, error) {
	row := r.pool.QueryRow(ctx, `
SELECT id, username, first_name, last_name, email
FROM buyers
WHERE id = $1;`, buyerID)
	var out models.Buyer
	err := row.Scan(&out.ID, &out.Username, &out.FirstName, &out.LastName, &out.Email)
	return out, err
}
