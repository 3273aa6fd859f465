package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"repair_tracker/internal/models"
)

type OrderSQLite struct {
	db DBTX
}

func NewOrderSQLite(db DBTX) *OrderSQLite {
	return &OrderSQLite{db: db}
}

var _ OrderRepo = (*OrderSQLite)(nil)

const (
	orderColumns = `id, name, status_id, summary, color, created, received, received_quantity, started, finished`

	insertOrderSQL = `
		INSERT INTO repair_orders (name, status_id, summary, color, created, received, received_quantity, started, finished)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	updateOrderSQL = `
		UPDATE repair_orders SET
			name = ?,
			status_id = ?,
			summary = ?,
			color = ?,
			received = ?,
			received_quantity = ?,
			started = ?,
			finished = ?
		WHERE id = ?
	`
	deleteOrderSQL = `DELETE FROM repair_orders WHERE id = ?`
	selectOrderSQL = `SELECT ` + orderColumns + ` FROM repair_orders WHERE id = ?`
	listOrdersSQL  = `SELECT ` + orderColumns + ` FROM repair_orders ORDER BY id`
)

// Create inserts the order. A zero Created is stamped with the current time.
func (r *OrderSQLite) Create(ctx context.Context, o models.RepairOrder) (int64, error) {
	res, err := r.db.ExecContext(ctx, insertOrderSQL,
		o.Name,
		o.StatusID,
		o.Summary,
		o.Color,
		formatTime(orNow(o.Created)),
		formatNullTime(o.Received),
		nullInt(o.ReceivedQuantity),
		formatNullTime(o.Started),
		formatNullTime(o.Finished),
	)
	if err != nil {
		return 0, fmt.Errorf("insert order %q: %w", o.Name, classify(err))
	}
	return res.LastInsertId()
}

// Update writes every mutable column, including the derived started/finished pair.
func (r *OrderSQLite) Update(ctx context.Context, o models.RepairOrder) error {
	res, err := r.db.ExecContext(ctx, updateOrderSQL,
		o.Name,
		o.StatusID,
		o.Summary,
		o.Color,
		formatNullTime(o.Received),
		nullInt(o.ReceivedQuantity),
		formatNullTime(o.Started),
		formatNullTime(o.Finished),
		o.ID,
	)
	if err != nil {
		return fmt.Errorf("update order %d: %w", o.ID, classify(err))
	}
	return mustAffect(res, "order", o.ID)
}

func (r *OrderSQLite) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, deleteOrderSQL, id)
	if err != nil {
		return fmt.Errorf("delete order %d: %w", id, classify(err))
	}
	return mustAffect(res, "order", id)
}

func (r *OrderSQLite) Get(ctx context.Context, id int64) (models.RepairOrder, error) {
	o, err := scanOrder(r.db.QueryRowContext(ctx, selectOrderSQL, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.RepairOrder{}, fmt.Errorf("order %d: %w", id, ErrNotFound)
		}
		return models.RepairOrder{}, fmt.Errorf("select order %d: %w", id, err)
	}
	return o, nil
}

func (r *OrderSQLite) List(ctx context.Context) ([]models.RepairOrder, error) {
	rows, err := r.db.QueryContext(ctx, listOrdersSQL)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	out := make([]models.RepairOrder, 0, 16)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func scanOrder(row scanner) (models.RepairOrder, error) {
	var (
		o                           models.RepairOrder
		created                     string
		received, started, finished sql.NullString
		quantity                    sql.NullInt64
	)
	if err := row.Scan(&o.ID, &o.Name, &o.StatusID, &o.Summary, &o.Color,
		&created, &received, &quantity, &started, &finished); err != nil {
		return models.RepairOrder{}, err
	}

	var err error
	if o.Created, err = parseTime(created); err != nil {
		return models.RepairOrder{}, err
	}
	if o.Received, err = parseNullTime(received); err != nil {
		return models.RepairOrder{}, err
	}
	if o.Started, err = parseNullTime(started); err != nil {
		return models.RepairOrder{}, err
	}
	if o.Finished, err = parseNullTime(finished); err != nil {
		return models.RepairOrder{}, err
	}
	if quantity.Valid {
		q := int(quantity.Int64)
		o.ReceivedQuantity = &q
	}
	return o, nil
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}
