package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"repair_tracker/internal/models"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")
	ErrInUse    = errors.New("still referenced")
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type AssigneeRepo interface {
	Create(ctx context.Context, a models.Assignee) (int64, error)
	Update(ctx context.Context, a models.Assignee) error
	Delete(ctx context.Context, id int64) error
	Get(ctx context.Context, id int64) (models.Assignee, error)
	GetByName(ctx context.Context, name string) (*models.Assignee, error)
	List(ctx context.Context, activeOnly bool) ([]models.Assignee, error)
}

type StatusRepo interface {
	Create(ctx context.Context, s models.Status) (int64, error)
	Update(ctx context.Context, s models.Status) error
	Delete(ctx context.Context, id int64) error
	Get(ctx context.Context, id int64) (models.Status, error)
	List(ctx context.Context) ([]models.Status, error)
}

type UnitModelRepo interface {
	Create(ctx context.Context, m models.UnitModel) (int64, error)
	Update(ctx context.Context, m models.UnitModel) error
	Delete(ctx context.Context, id int64) error
	Get(ctx context.Context, id int64) (models.UnitModel, error)
	List(ctx context.Context) ([]models.UnitModel, error)
}

type OrderRepo interface {
	Create(ctx context.Context, o models.RepairOrder) (int64, error)
	Update(ctx context.Context, o models.RepairOrder) error
	Delete(ctx context.Context, id int64) error
	Get(ctx context.Context, id int64) (models.RepairOrder, error)
	List(ctx context.Context) ([]models.RepairOrder, error)
}

type UnitRepo interface {
	Create(ctx context.Context, u models.RepairUnit) (int64, error)
	Update(ctx context.Context, u models.RepairUnit) error
	Delete(ctx context.Context, id int64) error
	Get(ctx context.Context, id int64) (models.RepairUnit, error)
	ListByOrder(ctx context.Context, orderID int64) ([]models.RepairUnit, error)
	OrderIDsWithStatus(ctx context.Context, statusID int64) ([]int64, error)
}

type Repository struct {
	db *sql.DB

	Assignees  AssigneeRepo
	Statuses   StatusRepo
	UnitModels UnitModelRepo
	Orders     OrderRepo
	Units      UnitRepo
}

func NewRepository(db *sql.DB) *Repository {
	r := bind(db)
	r.db = db
	return r
}

func bind(q DBTX) *Repository {
	return &Repository{
		Assignees:  NewAssigneeSQLite(q),
		Statuses:   NewStatusSQLite(q),
		UnitModels: NewUnitModelSQLite(q),
		Orders:     NewOrderSQLite(q),
		Units:      NewUnitSQLite(q),
	}
}

// Transact runs fn with repositories bound to a single transaction. The
// transaction commits when fn returns nil and rolls back otherwise.
func (r *Repository) Transact(ctx context.Context, fn func(tx *Repository) error) error {
	if r.db == nil {
		return errors.New("transact on a transaction-bound repository")
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		// no-op after a successful commit
		_ = tx.Rollback()
	}()

	if err := fn(bind(tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Timestamps are stored as RFC3339Nano UTC text so they sort lexically and
// round-trip without driver-specific parsing.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

func formatNullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	id := v.Int64
	return &id
}

// classify maps SQLite constraint failures onto the package sentinels.
func classify(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return fmt.Errorf("%w: %v", ErrInUse, err)
	}
	return err
}

// mustAffect turns a zero-row update/delete into ErrNotFound.
func mustAffect(res sql.Result, what string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for %s %d: %w", what, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", what, id, ErrNotFound)
	}
	return nil
}
