package reminders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository builds the Postgres-backed reminder repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const reminderColumns = `id, tenant_id, invoice_id, type, subject, message,
       reminder_date, status, channel, sent_at, created_at`

func (r *repository) FindPendingForInvoice(ctx context.Context, invoiceID int64, typ Type, on *time.Time) (*Reminder, error) {
	query := `SELECT ` + reminderColumns + ` FROM reminders
WHERE invoice_id = $1 AND type = $2 AND status = 'pending'
  AND ($3::date IS NULL OR reminder_date = $3::date)
ORDER BY id LIMIT 1`
	return r.one(ctx, query, invoiceID, string(typ), on)
}

func (r *repository) FindPendingForTenant(ctx context.Context, tenantID int64, typ Type) (*Reminder, error) {
	return r.one(ctx, `SELECT `+reminderColumns+` FROM reminders
WHERE tenant_id = $1 AND type = $2 AND status = 'pending'
ORDER BY id LIMIT 1`, tenantID, string(typ))
}

func (r *repository) Create(ctx context.Context, rem Reminder) (*Reminder, error) {
	return scanReminder(r.pool.QueryRow(ctx, `INSERT INTO reminders
    (tenant_id, invoice_id, type, subject, message, reminder_date, status, channel)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING `+reminderColumns,
		rem.TenantID, rem.InvoiceID, string(rem.Type), rem.Subject, rem.Message,
		rem.ReminderDate, string(rem.Status), string(rem.Channel)))
}

func (r *repository) ListDue(ctx context.Context, asOf time.Time) ([]Reminder, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+reminderColumns+` FROM reminders
WHERE status = 'pending' AND reminder_date <= $1
ORDER BY reminder_date, id`, asOf)
	if err != nil {
		return nil, fmt.Errorf("reminders: list due: %w", err)
	}
	defer rows.Close()
	var out []Reminder
	for rows.Next() {
		rem, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rem)
	}
	return out, rows.Err()
}

func (r *repository) Claim(ctx context.Context, id int64, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE reminders
SET status = 'dispatching', claimed_at = $2, updated_at = NOW()
WHERE id = $1 AND status = 'pending'`, id, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repository) Release(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `UPDATE reminders
SET status = 'pending', claimed_at = NULL, updated_at = NOW()
WHERE id = $1 AND status = 'dispatching'`, id)
	return err
}

func (r *repository) MarkSent(ctx context.Context, id int64, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE reminders
SET status = 'sent', sent_at = $2, updated_at = NOW()
WHERE id = $1 AND status = 'dispatching'`, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotPending
	}
	return nil
}

func (r *repository) FindActiveTemplate(ctx context.Context, typ Type, daysBefore *int) (*Template, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, name, type, subject, message, is_active, days_before, variables_help
FROM reminder_templates
WHERE type = $1 AND is_active
  AND ($2::int IS NULL OR days_before IS NULL OR days_before = $2::int)
ORDER BY days_before DESC NULLS LAST, id
LIMIT 1`, string(typ), daysBefore)
	tpl, err := scanTemplate(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTemplateNotFound
	}
	return tpl, err
}

func (r *repository) UpsertTemplate(ctx context.Context, t Template) (*Template, error) {
	help, err := json.Marshal(t.VariablesHelp)
	if err != nil {
		return nil, fmt.Errorf("encode variables help: %w", err)
	}
	// Existing rows keep their staff-edited text.
	row := r.pool.QueryRow(ctx, `INSERT INTO reminder_templates
    (name, type, subject, message, is_active, days_before, variables_help)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
RETURNING id, name, type, subject, message, is_active, days_before, variables_help`,
		t.Name, string(t.Type), t.Subject, t.Message, t.IsActive, t.DaysBefore, help)
	return scanTemplate(row)
}

func (r *repository) one(ctx context.Context, query string, args ...any) (*Reminder, error) {
	rem, err := scanReminder(r.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rem, err
}

func scanReminder(row pgx.Row) (*Reminder, error) {
	var (
		rem       Reminder
		invoiceID pgtype.Int8
		typ       string
		status    string
		channel   string
		sentAt    pgtype.Timestamptz
	)
	if err := row.Scan(&rem.ID, &rem.TenantID, &invoiceID, &typ, &rem.Subject, &rem.Message,
		&rem.ReminderDate, &status, &channel, &sentAt, &rem.CreatedAt); err != nil {
		return nil, err
	}
	rem.Type = Type(typ)
	rem.Status = Status(status)
	rem.Channel = Channel(channel)
	rem.ReminderDate = rem.ReminderDate.UTC()
	if invoiceID.Valid {
		id := invoiceID.Int64
		rem.InvoiceID = &id
	}
	if sentAt.Valid {
		t := sentAt.Time
		rem.SentAt = &t
	}
	return &rem, nil
}

func scanTemplate(row pgx.Row) (*Template, error) {
	var (
		tpl        Template
		typ        string
		daysBefore pgtype.Int4
		help       []byte
	)
	if err := row.Scan(&tpl.ID, &tpl.Name, &typ, &tpl.Subject, &tpl.Message, &tpl.IsActive, &daysBefore, &help); err != nil {
		return nil, err
	}
	tpl.Type = Type(typ)
	if daysBefore.Valid {
		d := int(daysBefore.Int32)
		tpl.DaysBefore = &d
	}
	if len(help) > 0 {
		if err := json.Unmarshal(help, &tpl.VariablesHelp); err != nil {
			return nil, fmt.Errorf("template variables_help: %w", err)
		}
	}
	return &tpl, nil
}
