package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"repair_tracker/internal/models"
)

type StatusSQLite struct {
	db DBTX
}

func NewStatusSQLite(db DBTX) *StatusSQLite { return &StatusSQLite{db: db} }

var _ StatusRepo = (*StatusSQLite)(nil)

const (
	statusColumns = `id, status, color, is_ending_status, can_use_for_order, can_use_for_machine, can_use_for_hashboard`

	insertStatusSQL = `
		INSERT INTO statuses (status, color, is_ending_status, can_use_for_order, can_use_for_machine, can_use_for_hashboard)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	updateStatusSQL = `
		UPDATE statuses SET status = ?, color = ?, is_ending_status = ?,
			can_use_for_order = ?, can_use_for_machine = ?, can_use_for_hashboard = ?
		WHERE id = ?
	`
	deleteStatusSQL = `DELETE FROM statuses WHERE id = ?`
	selectStatusSQL = `SELECT ` + statusColumns + ` FROM statuses WHERE id = ?`
	listStatusesSQL = `SELECT ` + statusColumns + ` FROM statuses ORDER BY id`
)

func (r *StatusSQLite) Create(ctx context.Context, s models.Status) (int64, error) {
	res, err := r.db.ExecContext(ctx, insertStatusSQL,
		s.Status, s.Color, s.IsEnding, s.CanUseForOrder, s.CanUseForMachine, s.CanUseForHashboard)
	if err != nil {
		return 0, fmt.Errorf("insert status %q: %w", s.Status, classify(err))
	}
	return res.LastInsertId()
}

func (r *StatusSQLite) Update(ctx context.Context, s models.Status) error {
	res, err := r.db.ExecContext(ctx, updateStatusSQL,
		s.Status, s.Color, s.IsEnding, s.CanUseForOrder, s.CanUseForMachine, s.CanUseForHashboard, s.ID)
	if err != nil {
		return fmt.Errorf("update status %d: %w", s.ID, classify(err))
	}
	return mustAffect(res, "status", s.ID)
}

func (r *StatusSQLite) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, deleteStatusSQL, id)
	if err != nil {
		return fmt.Errorf("delete status %d: %w", id, classify(err))
	}
	return mustAffect(res, "status", id)
}

func (r *StatusSQLite) Get(ctx context.Context, id int64) (models.Status, error) {
	s, err := scanStatus(r.db.QueryRowContext(ctx, selectStatusSQL, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Status{}, fmt.Errorf("status %d: %w", id, ErrNotFound)
		}
		return models.Status{}, fmt.Errorf("select status %d: %w", id, err)
	}
	return s, nil
}

func (r *StatusSQLite) List(ctx context.Context) ([]models.Status, error) {
	rows, err := r.db.QueryContext(ctx, listStatusesSQL)
	if err != nil {
		return nil, fmt.Errorf("list statuses: %w", err)
	}
	defer rows.Close()

	out := make([]models.Status, 0, 16)
	for rows.Next() {
		s, err := scanStatus(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanStatus(row scanner) (models.Status, error) {
	var s models.Status
	err := row.Scan(&s.ID, &s.Status, &s.Color, &s.IsEnding, &s.CanUseForOrder, &s.CanUseForMachine, &s.CanUseForHashboard)
	return s, err
}

type UnitModelSQLite struct {
	db DBTX
}

func NewUnitModelSQLite(db DBTX) *UnitModelSQLite { return &UnitModelSQLite{db: db} }

var _ UnitModelRepo = (*UnitModelSQLite)(nil)

const (
	insertUnitModelSQL = `INSERT INTO unit_models (name) VALUES (?)`
	updateUnitModelSQL = `UPDATE unit_models SET name = ? WHERE id = ?`
	deleteUnitModelSQL = `DELETE FROM unit_models WHERE id = ?`
	selectUnitModelSQL = `SELECT id, name FROM unit_models WHERE id = ?`
	listUnitModelsSQL  = `SELECT id, name FROM unit_models ORDER BY id`
)

func (r *UnitModelSQLite) Create(ctx context.Context, m models.UnitModel) (int64, error) {
	res, err := r.db.ExecContext(ctx, insertUnitModelSQL, m.Name)
	if err != nil {
		return 0, fmt.Errorf("insert unit model %q: %w", m.Name, classify(err))
	}
	return res.LastInsertId()
}

func (r *UnitModelSQLite) Update(ctx context.Context, m models.UnitModel) error {
	res, err := r.db.ExecContext(ctx, updateUnitModelSQL, m.Name, m.ID)
	if err != nil {
		return fmt.Errorf("update unit model %d: %w", m.ID, classify(err))
	}
	return mustAffect(res, "unit model", m.ID)
}

func (r *UnitModelSQLite) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, deleteUnitModelSQL, id)
	if err != nil {
		return fmt.Errorf("delete unit model %d: %w", id, classify(err))
	}
	return mustAffect(res, "unit model", id)
}

func (r *UnitModelSQLite) Get(ctx context.Context, id int64) (models.UnitModel, error) {
	var m models.UnitModel
	if err := r.db.QueryRowContext(ctx, selectUnitModelSQL, id).Scan(&m.ID, &m.Name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.UnitModel{}, fmt.Errorf("unit model %d: %w", id, ErrNotFound)
		}
		return models.UnitModel{}, fmt.Errorf("select unit model %d: %w", id, err)
	}
	return m, nil
}

func (r *UnitModelSQLite) List(ctx context.Context) ([]models.UnitModel, error) {
	rows, err := r.db.QueryContext(ctx, listUnitModelsSQL)
	if err != nil {
		return nil, fmt.Errorf("list unit models: %w", err)
	}
	defer rows.Close()

	out := make([]models.UnitModel, 0, 16)
	for rows.Next() {
		var m models.UnitModel
		if err := rows.Scan(&m.ID, &m.Name); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
