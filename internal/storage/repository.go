// Package storage is the persistence collaborator: the engine fetches
// snapshots from it and the HTTP layer drives record/template mutations
// through it. The engine itself never writes.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/tmaly1980/banked/internal/core"
	"github.com/tmaly1980/banked/internal/engine"
)

// ErrNotFound is returned when a record or template id does not exist.
var ErrNotFound = errors.New("not found")

// Repository is the SQLite-backed store for actual records and
// recurrence templates.
type Repository struct {
	db *sql.DB
}

var _ engine.Store = (*Repository)(nil)

func NewRepository(dbPath string) (*Repository, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// FetchRecords implements engine.Store.
func (r *Repository) FetchRecords(ctx context.Context, userID string, kind core.EventKind) ([]core.Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, kind, amount_cents, event_date, notes, paid, created_at
		FROM records WHERE user_id = ? AND kind = ?
		ORDER BY event_date, created_at`, userID, string(kind))
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var out []core.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// FetchTemplates implements engine.Store.
func (r *Repository) FetchTemplates(ctx context.Context, userID string, kind core.EventKind) ([]core.Template, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, kind, amount_cents, start_date, end_date, unit, interval_count, created_at
		FROM templates WHERE user_id = ? AND kind = ?
		ORDER BY start_date, created_at`, userID, string(kind))
	if err != nil {
		return nil, fmt.Errorf("query templates: %w", err)
	}
	defer rows.Close()

	var out []core.Template
	for rows.Next() {
		tpl, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tpl)
	}
	return out, rows.Err()
}

// CreateRecord inserts an actual record, assigning an id when empty.
func (r *Repository) CreateRecord(ctx context.Context, rec core.Record) (core.Record, error) {
	if err := rec.Validate(); err != nil {
		return core.Record{}, err
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO records (id, user_id, kind, amount_cents, event_date, notes, paid, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.UserID, string(rec.Kind), rec.Amount.Cents,
		rec.Date.String(), rec.Notes, boolToInt(rec.Paid),
		rec.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return core.Record{}, fmt.Errorf("insert record: %w", err)
	}

	slog.InfoContext(ctx, "record saved",
		"id", rec.ID, "kind", rec.Kind,
		"amount_cents", rec.Amount.Cents, "date", rec.Date.String())
	return rec, nil
}

// UpdateRecord replaces the mutable fields of an existing record.
func (r *Repository) UpdateRecord(ctx context.Context, rec core.Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE records SET amount_cents = ?, event_date = ?, notes = ?, paid = ?
		WHERE id = ? AND user_id = ?`,
		rec.Amount.Cents, rec.Date.String(), rec.Notes, boolToInt(rec.Paid),
		rec.ID, rec.UserID)
	if err != nil {
		return fmt.Errorf("update record: %w", err)
	}
	return requireRow(res, rec.ID)
}

// DeleteRecord removes an actual record.
func (r *Repository) DeleteRecord(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM records WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	return requireRow(res, id)
}

// MarkPaid flags a record as paid.
func (r *Repository) MarkPaid(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE records SET paid = 1 WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("mark record paid: %w", err)
	}
	return requireRow(res, id)
}

// GetRecord fetches a single record by id.
func (r *Repository) GetRecord(ctx context.Context, userID, id string) (core.Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, kind, amount_cents, event_date, notes, paid, created_at
		FROM records WHERE id = ? AND user_id = ?`, id, userID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Record{}, fmt.Errorf("record %s: %w", id, ErrNotFound)
	}
	return rec, err
}

// CreateTemplate inserts a recurrence template, assigning an id when empty.
func (r *Repository) CreateTemplate(ctx context.Context, tpl core.Template) (core.Template, error) {
	if err := tpl.Validate(); err != nil {
		return core.Template{}, err
	}
	if tpl.ID == "" {
		tpl.ID = uuid.NewString()
	}
	if tpl.CreatedAt.IsZero() {
		tpl.CreatedAt = time.Now().UTC()
	}

	var endDate any
	if tpl.EndDate != nil {
		endDate = tpl.EndDate.String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO templates (id, user_id, kind, amount_cents, start_date, end_date, unit, interval_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tpl.ID, tpl.UserID, string(tpl.Kind), tpl.Amount.Cents,
		tpl.StartDate.String(), endDate, string(tpl.Unit), tpl.Interval,
		tpl.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return core.Template{}, fmt.Errorf("insert template: %w", err)
	}

	slog.InfoContext(ctx, "template saved",
		"id", tpl.ID, "kind", tpl.Kind, "unit", tpl.Unit,
		"interval", tpl.Interval, "start_date", tpl.StartDate.String())
	return tpl, nil
}

// UpdateTemplate replaces the mutable fields of an existing template.
func (r *Repository) UpdateTemplate(ctx context.Context, tpl core.Template) error {
	if err := tpl.Validate(); err != nil {
		return err
	}
	var endDate any
	if tpl.EndDate != nil {
		endDate = tpl.EndDate.String()
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE templates SET amount_cents = ?, start_date = ?, end_date = ?, unit = ?, interval_count = ?
		WHERE id = ? AND user_id = ?`,
		tpl.Amount.Cents, tpl.StartDate.String(), endDate,
		string(tpl.Unit), tpl.Interval, tpl.ID, tpl.UserID)
	if err != nil {
		return fmt.Errorf("update template: %w", err)
	}
	return requireRow(res, tpl.ID)
}

// DeleteTemplate removes a recurrence template.
func (r *Repository) DeleteTemplate(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM templates WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	return requireRow(res, id)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (core.Record, error) {
	var (
		rec       core.Record
		kind      string
		date      string
		paid      int64
		createdAt string
	)
	err := row.Scan(&rec.ID, &rec.UserID, &kind, &rec.Amount.Cents,
		&date, &rec.Notes, &paid, &createdAt)
	if err != nil {
		return core.Record{}, err
	}
	rec.Kind = core.EventKind(kind)
	rec.Paid = paid != 0
	if rec.Date, err = core.ParseDate(date); err != nil {
		return core.Record{}, fmt.Errorf("record %s: %w", rec.ID, err)
	}
	if rec.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return core.Record{}, fmt.Errorf("record %s created_at: %w", rec.ID, err)
	}
	return rec, nil
}

func scanTemplate(row rowScanner) (core.Template, error) {
	var (
		tpl       core.Template
		kind      string
		start     string
		end       sql.NullString
		unit      string
		createdAt string
	)
	err := row.Scan(&tpl.ID, &tpl.UserID, &kind, &tpl.Amount.Cents,
		&start, &end, &unit, &tpl.Interval, &createdAt)
	if err != nil {
		return core.Template{}, err
	}
	tpl.Kind = core.EventKind(kind)
	tpl.Unit = core.RecurrenceUnit(unit)
	if tpl.StartDate, err = core.ParseDate(start); err != nil {
		return core.Template{}, fmt.Errorf("template %s: %w", tpl.ID, err)
	}
	if end.Valid {
		d, err := core.ParseDate(end.String)
		if err != nil {
			return core.Template{}, fmt.Errorf("template %s: %w", tpl.ID, err)
		}
		tpl.EndDate = &d
	}
	if tpl.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return core.Template{}, fmt.Errorf("template %s created_at: %w", tpl.ID, err)
	}
	return tpl, nil
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return nil
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
