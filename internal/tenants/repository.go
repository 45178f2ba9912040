package tenants

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when no tenant matches.
var ErrNotFound = errors.New("tenants: not found")

// Repository exposes the read side of tenancies needed by billing and reminders.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository builds a pgx-backed tenant repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const selectTenant = `
SELECT t.id, t.user_id, t.unit_id, t.lease_start_date, t.lease_end_date,
       t.monthly_rent::text, t.lease_status,
       u.id, u.name, u.email, u.phone, u.role,
       un.unit_number, p.id, p.name, p.address
FROM tenants t
LEFT JOIN users u ON u.id = t.user_id
JOIN units un ON un.id = t.unit_id
JOIN properties p ON p.id = un.property_id`

// Get loads one tenant with user and unit context.
func (r *Repository) Get(ctx context.Context, id int64) (*Tenant, error) {
	row := r.pool.QueryRow(ctx, selectTenant+` WHERE t.id = $1`, id)
	t, err := scanTenant(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("tenants: get: %w", err)
	}
	return t, nil
}

// GetByUserID resolves the tenancy held by a user account.
func (r *Repository) GetByUserID(ctx context.Context, userID int64) (*Tenant, error) {
	row := r.pool.QueryRow(ctx, selectTenant+` WHERE t.user_id = $1 ORDER BY t.lease_start_date DESC LIMIT 1`, userID)
	t, err := scanTenant(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("tenants: get by user: %w", err)
	}
	return t, nil
}

// ListActive returns every tenant whose lease is active.
func (r *Repository) ListActive(ctx context.Context) ([]Tenant, error) {
	return r.list(ctx, selectTenant+` WHERE t.lease_status = 'active' ORDER BY t.id`)
}

// ListExpiringLeases returns active tenants whose lease ends within [from, to].
func (r *Repository) ListExpiringLeases(ctx context.Context, from, to time.Time) ([]Tenant, error) {
	return r.list(ctx, selectTenant+`
 WHERE t.lease_status = 'active' AND t.lease_end_date IS NOT NULL
   AND t.lease_end_date BETWEEN $1 AND $2
 ORDER BY t.lease_end_date, t.id`, from, to)
}

func (r *Repository) list(ctx context.Context, query string, args ...any) ([]Tenant, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("tenants: list: %w", err)
	}
	defer rows.Close()
	var out []Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("tenants: scan: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func scanTenant(row pgx.Row) (*Tenant, error) {
	var (
		t         Tenant
		userID    pgtype.Int8
		leaseEnd  pgtype.Date
		rent      string
		status    string
		uID       pgtype.Int8
		uName     pgtype.Text
		uEmail    pgtype.Text
		uPhone    pgtype.Text
		uRole     pgtype.Text
		unit      Unit
		leaseFrom time.Time
	)
	if err := row.Scan(&t.ID, &userID, &t.UnitID, &leaseFrom, &leaseEnd, &rent, &status,
		&uID, &uName, &uEmail, &uPhone, &uRole,
		&unit.UnitNumber, &unit.Property.ID, &unit.Property.Name, &unit.Property.Address); err != nil {
		return nil, err
	}
	amount, err := decimal.NewFromString(rent)
	if err != nil {
		return nil, fmt.Errorf("monthly_rent: %w", err)
	}
	t.MonthlyRent = amount
	t.LeaseStatus = LeaseStatus(status)
	t.LeaseStartDate = leaseFrom.UTC()
	if userID.Valid {
		id := userID.Int64
		t.UserID = &id
	}
	if leaseEnd.Valid {
		end := leaseEnd.Time.UTC()
		t.LeaseEndDate = &end
	}
	if uID.Valid {
		t.User = &User{ID: uID.Int64, Name: uName.String, Email: uEmail.String, Phone: uPhone.String, Role: uRole.String}
	}
	unit.ID = t.UnitID
	t.Unit = &unit
	return &t, nil
}
