package repository

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"magicworld/backend/internal/models"
	"magicworld/backend/internal/payment"
)

func (r *Repository) ListTicketTypes(ctx context.Context) ([]models.TicketType, error) {
	rows, err := r.pool.Query(ctx, `
SELECT id, type_name, description, cost, currency, photo_url, max_per_day, created_at, updated_at
FROM ticket_types
ORDER BY type_name ASC;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]models.TicketType, 0)
	for rows.Next() {
		tt, err := scanTicketType(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, tt)
	}
	return items, rows.Err()
}

func (r *Repository) FindTicketTypeByName(ctx context.Context, typeName string) (models.TicketType, error) {
	row := r.pool.QueryRow(ctx, `
SELECT id, type_name, description, cost, currency, photo_url, max_per_day, created_at, updated_at
FROM ticket_types
WHERE lower(type_name) = lower($1);`, strings.TrimSpace(typeName))
	tt, err := scanTicketType(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.TicketType{}, payment.ErrTicketTypeNotFound
	}
	return tt, err
}

func (r *Repository) CreateTicketType(ctx context.Context, in models.TicketTypeInput) (models.TicketType, error) {
	row := r.pool.QueryRow(ctx, `
INSERT INTO ticket_types (type_name, description, cost, currency, photo_url, max_per_day)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, type_name, description, cost, currency, photo_url, max_per_day, created_at, updated_at;`,
		strings.ToUpper(strings.TrimSpace(in.TypeName)),
		in.Description,
		in.Cost,
		strings.ToUpper(strings.TrimSpace(in.Currency)),
		nullString(in.PhotoURL),
		in.MaxPerDay,
	)
	return scanTicketType(row)
}

func (r *Repository) UpdateTicketType(ctx context.Context, typeName string, patch models.TicketTypePatch) (models.TicketType, error) {
	var currency interface{}
	if patch.Currency != nil {
		currency = strings.ToUpper(strings.TrimSpace(*patch.Currency))
	}

	row := r.pool.QueryRow(ctx, `
UPDATE ticket_types
SET description = COALESCE($2, description),
	cost = COALESCE($3, cost),
	currency = COALESCE($4, currency),
	photo_url = COALESCE($5, photo_url),
	max_per_day = COALESCE($6, max_per_day),
	updated_at = now()
WHERE lower(type_name) = lower($1)
RETURNING id, type_name, description, cost, currency, photo_url, max_per_day, created_at, updated_at;`,
		strings.TrimSpace(typeName),
		stringPtrOrNil(patch.Description),
		decimalPtrOrNil(patch.Cost),
		currency,
		stringPtrOrNil(patch.PhotoURL),
		intPtrOrNil(patch.MaxPerDay),
	)
	tt, err := scanTicketType(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.TicketType{}, payment.ErrTicketTypeNotFound
	}
	return tt, err
}

// DeleteTicketType removes a catalog entry. Types referenced by committed
// purchase lines are refused, history must keep resolving.
func (r *Repository) DeleteTicketType(ctx context.Context, typeName string) error {
	name := strings.TrimSpace(typeName)
	return r.WithTx(ctx, func(tx pgx.Tx) error {
		var sold int64
		err := tx.QueryRow(ctx, `
SELECT COALESCE(SUM(quantity), 0)
FROM purchase_lines
WHERE lower(ticket_type_name) = lower($1);`, name).Scan(&sold)
		if err != nil {
			return err
		}
		if sold > 0 {
			return payment.ErrTicketTypeInUse
		}
		cmd, err := tx.Exec(ctx, `DELETE FROM ticket_types WHERE lower(type_name) = lower($1)`, name)
		if err != nil {
			return err
		}
		if cmd.RowsAffected() == 0 {
			return payment.ErrTicketTypeNotFound
		}
		return nil
	})
}

func (r *Repository) ListDiscounts(ctx context.Context) ([]models.Discount, error) {
	rows, err := r.pool.Query(ctx, `
SELECT id, discount_code, discount_percentage, expiry_date, created_at, updated_at
FROM discounts
ORDER BY discount_code ASC;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]models.Discount, 0)
	for rows.Next() {
		d, err := scanDiscount(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range items {
		names, err := r.listApplicableTypes(ctx, items[i].ID)
		if err != nil {
			return nil, err
		}
		items[i].ApplicableTicketTypes = names
	}
	return items, nil
}

// FindDiscountByCode returns nil with no error when the code does not exist.
func (r *Repository) FindDiscountByCode(ctx context.Context, code string) (*models.Discount, error) {
	row := r.pool.QueryRow(ctx, `
SELECT id, discount_code, discount_percentage, expiry_date, created_at, updated_at
FROM discounts
WHERE lower(discount_code) = lower($1);`, strings.TrimSpace(code))
	d, err := scanDiscount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	d.ApplicableTicketTypes, err = r.listApplicableTypes(ctx, d.ID)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *Repository) CreateDiscount(ctx context.Context, in models.DiscountInput) (models.Discount, error) {
	expiry, err := time.Parse("2006-01-02", strings.TrimSpace(in.ExpiryDate))
	if err != nil {
		return models.Discount{}, err
	}

	var out models.Discount
	err = r.WithTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
INSERT INTO discounts (discount_code, discount_percentage, expiry_date)
VALUES ($1, $2, $3)
RETURNING id, discount_code, discount_percentage, expiry_date, created_at, updated_at;`,
			strings.ToUpper(strings.TrimSpace(in.DiscountCode)),
			in.DiscountPercentage,
			expiry,
		)
		d, err := scanDiscount(row)
		if err != nil {
			return err
		}

		names := make([]string, 0, len(in.ApplicableTicketTypes))
		for _, name := range in.ApplicableTicketTypes {
			name = strings.ToUpper(strings.TrimSpace(name))
			if name == "" {
				continue
			}
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if _, err := tx.Exec(ctx, `
INSERT INTO discount_ticket_types (discount_id, ticket_type_name)
VALUES ($1, $2)
ON CONFLICT DO NOTHING;`, d.ID, name); err != nil {
				return err
			}
		}
		d.ApplicableTicketTypes = names
		out = d
		return nil
	})
	if err != nil {
		return models.Discount{}, err
	}
	return out, nil
}

func (r *Repository) DeleteDiscount(ctx context.Context, code string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM discounts WHERE lower(discount_code) = lower($1)`, strings.TrimSpace(code))
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return payment.ErrDiscountNotFound
	}
	return nil
}

func (r *Repository) listApplicableTypes(ctx context.Context, discountID int64) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
SELECT ticket_type_name
FROM discount_ticket_types
WHERE discount_id = $1
ORDER BY ticket_type_name ASC;`, discountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func scanTicketType(row pgx.Row) (models.TicketType, error) {
	var out models.TicketType
	var photoURL *string
	if err := row.Scan(
		&out.ID,
		&out.TypeName,
		&out.Description,
		&out.Cost,
		&out.Currency,
		&photoURL,
		&out.MaxPerDay,
		&out.CreatedAt,
		&out.UpdatedAt,
	); err != nil {
		return out, err
	}
	if photoURL != nil {
		out.PhotoURL = *photoURL
	}
	return out, nil
}

func scanDiscount(row pgx.Row) (models.Discount, error) {
	var out models.Discount
	if err := row.Scan(
		&out.ID,
		&out.DiscountCode,
		&out.DiscountPercentage,
		&out.ExpiryDate,
		&out.CreatedAt,
		&out.UpdatedAt,
	); err != nil {
		return out, err
	}
	return out, nil
}

func stringPtrOrNil(value *string) interface{} {
	if value == nil {
		return nil
	}
	return *value
}

func intPtrOrNil(value *int) interface{} {
	if value == nil {
		return nil
	}
	return *value
}

func decimalPtrOrNil(value *decimal.Decimal) interface{} {
	if value == nil {
		return nil
	}
	return *value
}
