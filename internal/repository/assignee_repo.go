package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"repair_tracker/internal/models"
)

type AssigneeSQLite struct {
	db DBTX
}

func NewAssigneeSQLite(db DBTX) *AssigneeSQLite {
	return &AssigneeSQLite{db: db}
}

// Ensure implementation of AssigneeRepo interface at compile time.
var _ AssigneeRepo = (*AssigneeSQLite)(nil)

const (
	insertAssigneeSQL     = `INSERT INTO assignees (name, is_active) VALUES (?, ?)`
	updateAssigneeSQL     = `UPDATE assignees SET name = ?, is_active = ? WHERE id = ?`
	deleteAssigneeSQL     = `DELETE FROM assignees WHERE id = ?`
	selectAssigneeSQL     = `SELECT id, name, is_active FROM assignees WHERE id = ?`
	selectAssigneeByName  = `SELECT id, name, is_active FROM assignees WHERE name = ?`
	listAssigneesSQL      = `SELECT id, name, is_active FROM assignees ORDER BY id`
	listActiveAssigneeSQL = `SELECT id, name, is_active FROM assignees WHERE is_active = 1 ORDER BY id`
)

// Create inserts a new assignee and returns its ID.
func (r *AssigneeSQLite) Create(ctx context.Context, a models.Assignee) (int64, error) {
	res, err := r.db.ExecContext(ctx, insertAssigneeSQL, a.Name, a.IsActive)
	if err != nil {
		return 0, fmt.Errorf("insert assignee %q: %w", a.Name, classify(err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get last insert id for assignee %q: %w", a.Name, err)
	}
	return id, nil
}

func (r *AssigneeSQLite) Update(ctx context.Context, a models.Assignee) error {
	res, err := r.db.ExecContext(ctx, updateAssigneeSQL, a.Name, a.IsActive, a.ID)
	if err != nil {
		return fmt.Errorf("update assignee %d: %w", a.ID, classify(err))
	}
	return mustAffect(res, "assignee", a.ID)
}

func (r *AssigneeSQLite) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, deleteAssigneeSQL, id)
	if err != nil {
		return fmt.Errorf("delete assignee %d: %w", id, classify(err))
	}
	return mustAffect(res, "assignee", id)
}

func (r *AssigneeSQLite) Get(ctx context.Context, id int64) (models.Assignee, error) {
	var a models.Assignee
	err := r.db.QueryRowContext(ctx, selectAssigneeSQL, id).Scan(&a.ID, &a.Name, &a.IsActive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Assignee{}, fmt.Errorf("assignee %d: %w", id, ErrNotFound)
		}
		return models.Assignee{}, fmt.Errorf("select assignee %d: %w", id, err)
	}
	return a, nil
}

// GetByName fetches an assignee by name. Returns (nil, nil) if not found.
func (r *AssigneeSQLite) GetByName(ctx context.Context, name string) (*models.Assignee, error) {
	var a models.Assignee
	err := r.db.QueryRowContext(ctx, selectAssigneeByName, name).Scan(&a.ID, &a.Name, &a.IsActive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select assignee %q: %w", name, err)
	}
	return &a, nil
}

func (r *AssigneeSQLite) List(ctx context.Context, activeOnly bool) ([]models.Assignee, error) {
	q := listAssigneesSQL
	if activeOnly {
		q = listActiveAssigneeSQL
	}
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list assignees: %w", err)
	}
	defer rows.Close()

	out := make([]models.Assignee, 0, 16)
	for rows.Next() {
		var a models.Assignee
		if err := rows.Scan(&a.ID, &a.Name, &a.IsActive); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
