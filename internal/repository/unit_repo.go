package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"repair_tracker/internal/models"
)

type UnitSQLite struct {
	db DBTX
}

func NewUnitSQLite(db DBTX) *UnitSQLite { return &UnitSQLite{db: db} }

var _ UnitRepo = (*UnitSQLite)(nil)

const (
	unitColumns = `id, serial, type, model_id, current_status_id, current_assignee_id, repair_order_id, created, updated_at, events_json`

	insertUnitSQL = `
		INSERT INTO repair_units (serial, type, model_id, current_status_id, current_assignee_id, repair_order_id, created, updated_at, events_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	updateUnitSQL = `
		UPDATE repair_units SET
			serial = ?,
			type = ?,
			model_id = ?,
			current_status_id = ?,
			current_assignee_id = ?,
			updated_at = ?,
			events_json = ?
		WHERE id = ?
	`
	deleteUnitSQL         = `DELETE FROM repair_units WHERE id = ?`
	selectUnitSQL         = `SELECT ` + unitColumns + ` FROM repair_units WHERE id = ?`
	listUnitsByOrderSQL   = `SELECT ` + unitColumns + ` FROM repair_units WHERE repair_order_id = ? ORDER BY id`
	orderIDsWithStatusSQL = `SELECT DISTINCT repair_order_id FROM repair_units WHERE current_status_id = ? ORDER BY repair_order_id`
)

func (r *UnitSQLite) Create(ctx context.Context, u models.RepairUnit) (int64, error) {
	events, err := marshalEvents(u.Events)
	if err != nil {
		return 0, err
	}
	created := orNow(u.Created)
	updated := u.UpdatedAt
	if updated.IsZero() {
		updated = created
	}

	res, err := r.db.ExecContext(ctx, insertUnitSQL,
		u.Serial,
		string(u.Type),
		nullInt64(u.ModelID),
		u.CurrentStatusID,
		nullInt64(u.CurrentAssigneeID),
		u.RepairOrderID,
		formatTime(created),
		formatTime(updated),
		events,
	)
	if err != nil {
		return 0, fmt.Errorf("insert unit: %w", classify(err))
	}
	return res.LastInsertId()
}

// Update persists the unit including its log and derived fields. The owning
// order and creation time never change.
func (r *UnitSQLite) Update(ctx context.Context, u models.RepairUnit) error {
	events, err := marshalEvents(u.Events)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, updateUnitSQL,
		u.Serial,
		string(u.Type),
		nullInt64(u.ModelID),
		u.CurrentStatusID,
		nullInt64(u.CurrentAssigneeID),
		formatTime(u.UpdatedAt),
		events,
		u.ID,
	)
	if err != nil {
		return fmt.Errorf("update unit %d: %w", u.ID, classify(err))
	}
	return mustAffect(res, "unit", u.ID)
}

func (r *UnitSQLite) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, deleteUnitSQL, id)
	if err != nil {
		return fmt.Errorf("delete unit %d: %w", id, classify(err))
	}
	return mustAffect(res, "unit", id)
}

func (r *UnitSQLite) Get(ctx context.Context, id int64) (models.RepairUnit, error) {
	u, err := scanUnit(r.db.QueryRowContext(ctx, selectUnitSQL, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.RepairUnit{}, fmt.Errorf("unit %d: %w", id, ErrNotFound)
		}
		return models.RepairUnit{}, fmt.Errorf("select unit %d: %w", id, err)
	}
	return u, nil
}

func (r *UnitSQLite) ListByOrder(ctx context.Context, orderID int64) ([]models.RepairUnit, error) {
	rows, err := r.db.QueryContext(ctx, listUnitsByOrderSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("list units of order %d: %w", orderID, err)
	}
	defer rows.Close()

	out := make([]models.RepairUnit, 0, 16)
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// OrderIDsWithStatus lists the orders owning at least one unit currently in statusID.
func (r *UnitSQLite) OrderIDsWithStatus(ctx context.Context, statusID int64) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, orderIDsWithStatusSQL, statusID)
	if err != nil {
		return nil, fmt.Errorf("orders with status %d: %w", statusID, err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func scanUnit(row scanner) (models.RepairUnit, error) {
	var (
		u                   models.RepairUnit
		typ                 string
		modelID, assigneeID sql.NullInt64
		created, updated    string
		events              string
	)
	if err := row.Scan(&u.ID, &u.Serial, &typ, &modelID, &u.CurrentStatusID, &assigneeID,
		&u.RepairOrderID, &created, &updated, &events); err != nil {
		return models.RepairUnit{}, err
	}
	u.Type = models.UnitType(typ)
	u.ModelID = int64Ptr(modelID)
	u.CurrentAssigneeID = int64Ptr(assigneeID)

	var err error
	if u.Created, err = parseTime(created); err != nil {
		return models.RepairUnit{}, err
	}
	if u.UpdatedAt, err = parseTime(updated); err != nil {
		return models.RepairUnit{}, err
	}
	if u.Events, err = unmarshalEvents(events); err != nil {
		return models.RepairUnit{}, fmt.Errorf("unit %d events: %w", u.ID, err)
	}
	return u, nil
}

// marshalEvents converts the log to its JSON column value.
func marshalEvents(events []models.Entry) (string, error) {
	if events == nil {
		events = []models.Entry{}
	}
	b, err := json.Marshal(events)
	if err != nil {
		return "", fmt.Errorf("marshal events: %w", err)
	}
	return string(b), nil
}

// unmarshalEvents parses the JSON column value. Unknown entry types fail.
func unmarshalEvents(s string) ([]models.Entry, error) {
	if s == "" {
		return nil, nil
	}
	var events []models.Entry
	if err := json.Unmarshal([]byte(s), &events); err != nil {
		return nil, err
	}
	return events, nil
}

func orNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}
