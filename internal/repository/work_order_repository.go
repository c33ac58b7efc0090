package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/opustrack/opustrack/internal/model"
)

// WorkOrderRepo manages work orders and the parts they consume. Stock
// movements happen in the same transaction as the work order change.
type WorkOrderRepo struct{ DB *sql.DB }

func NewWorkOrderRepo(db *sql.DB) *WorkOrderRepo { return &WorkOrderRepo{DB: db} }

type WorkOrderFilter struct {
	VICID      *uint64
	IncidentID uint64
	Status     string
	AssignedTo uint64
}

const workOrderSelect = `SELECT w.id, w.incident_id, w.assigned_to, w.description, w.status, w.completed_at,
	w.created_at, w.updated_at, i.vic_id
	FROM work_orders w JOIN incidents i ON i.id = w.incident_id`

const completedAtExpr = `CASE WHEN ? = 'COMPLETED' THEN COALESCE(completed_at, UTC_TIMESTAMP()) ELSE NULL END`

func scanWorkOrder(row interface{ Scan(...any) error }) (*model.WorkOrder, error) {
	var (
		wo        model.WorkOrder
		assigned  sql.NullInt64
		completed sql.NullTime
	)
	if err := row.Scan(&wo.ID, &wo.IncidentID, &assigned, &wo.Description, &wo.Status, &completed,
		&wo.CreatedAt, &wo.UpdatedAt, &wo.VICID); err != nil {
		return nil, err
	}
	wo.AssignedTo = nullableID(assigned)
	wo.CompletedAt = nullableTime(completed)
	return &wo, nil
}

func (r *WorkOrderRepo) Create(ctx context.Context, wo *model.WorkOrder) error {
	if wo.Status == "" {
		wo.Status = model.WorkOrderOpen
	}
	res, err := r.DB.ExecContext(ctx,
		`INSERT INTO work_orders (incident_id, assigned_to, description, status, completed_at)
		 VALUES (?, ?, ?, ?, CASE WHEN ? = 'COMPLETED' THEN UTC_TIMESTAMP() ELSE NULL END)`,
		wo.IncidentID, idArg(wo.AssignedTo), wo.Description, wo.Status, wo.Status)
	if err != nil {
		return mapErr(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	fresh, err := r.GetByID(ctx, uint64(id))
	if err != nil {
		return err
	}
	*wo = *fresh
	return nil
}

// GetByID loads the work order together with its consumed parts.
func (r *WorkOrderRepo) GetByID(ctx context.Context, id uint64) (*model.WorkOrder, error) {
	wo, err := scanWorkOrder(r.DB.QueryRowContext(ctx, workOrderSelect+" WHERE w.id = ?", id))
	if err != nil {
		return nil, mapErr(err)
	}
	parts, err := r.ListParts(ctx, id)
	if err != nil {
		return nil, err
	}
	wo.Parts = parts
	return wo, nil
}

func (r *WorkOrderRepo) ListParts(ctx context.Context, workOrderID uint64) ([]model.WorkOrderPart, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT wp.work_order_id, wp.part_id, p.sku, p.name, wp.quantity
		 FROM work_order_parts wp JOIN parts p ON p.id = wp.part_id
		 WHERE wp.work_order_id = ? ORDER BY p.sku`, workOrderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.WorkOrderPart
	for rows.Next() {
		var wp model.WorkOrderPart
		if err := rows.Scan(&wp.WorkOrderID, &wp.PartID, &wp.SKU, &wp.Name, &wp.Quantity); err != nil {
			return nil, err
		}
		out = append(out, wp)
	}
	return out, rows.Err()
}

// List returns one page of work orders, newest first. Parts are not loaded.
func (r *WorkOrderRepo) List(ctx context.Context, f WorkOrderFilter, p Page) ([]*model.WorkOrder, int64, error) {
	p = p.Normalize()
	var w where
	if f.VICID != nil {
		w.add("i.vic_id = ?", *f.VICID)
	}
	if f.IncidentID != 0 {
		w.add("w.incident_id = ?", f.IncidentID)
	}
	if f.Status != "" {
		w.add("w.status = ?", f.Status)
	}
	if f.AssignedTo != 0 {
		w.add("w.assigned_to = ?", f.AssignedTo)
	}
	var total int64
	if err := r.DB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM work_orders w JOIN incidents i ON i.id = w.incident_id WHERE "+w.String(),
		w.args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args := append(append([]any{}, w.args...), p.PageSize, p.Offset())
	rows, err := r.DB.QueryContext(ctx,
		workOrderSelect+" WHERE "+w.String()+" ORDER BY w.created_at DESC, w.id DESC LIMIT ? OFFSET ?", args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := []*model.WorkOrder{}
	for rows.Next() {
		wo, err := scanWorkOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, wo)
	}
	return out, total, rows.Err()
}

// Update writes assignee, description and status. completed_at is stamped
// when the status becomes COMPLETED and cleared when it leaves it.
func (r *WorkOrderRepo) Update(ctx context.Context, wo *model.WorkOrder) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE work_orders SET assigned_to = ?, description = ?, status = ?, completed_at = `+completedAtExpr+`,
		 updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		idArg(wo.AssignedTo), wo.Description, wo.Status, wo.Status, wo.ID)
	if err != nil {
		return mapErr(err)
	}
	if err := expectAffected(res); err != nil {
		return err
	}
	fresh, err := r.GetByID(ctx, wo.ID)
	if err != nil {
		return err
	}
	*wo = *fresh
	return nil
}

// Delete removes a work order and returns its consumed parts to stock.
func (r *WorkOrderRepo) Delete(ctx context.Context, id uint64) (err error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()
	if _, err = tx.ExecContext(ctx,
		`UPDATE parts p JOIN work_order_parts wp ON wp.part_id = p.id
		 SET p.quantity = p.quantity + wp.quantity, p.updated_at = CURRENT_TIMESTAMP
		 WHERE wp.work_order_id = ?`, id); err != nil {
		return mapErr(err)
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM work_orders WHERE id = ?", id)
	if err != nil {
		return mapErr(err)
	}
	err = expectAffected(res)
	return err
}

// AddPart takes qty units of a part out of stock and books them on the work
// order. Repeated calls for the same part accumulate. The part as it stands
// after the withdrawal is returned so callers can react to low stock.
func (r *WorkOrderRepo) AddPart(ctx context.Context, workOrderID, partID uint64, qty uint32) (part *model.Part, err error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	res, err := tx.ExecContext(ctx,
		`UPDATE parts SET quantity = quantity - ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND quantity >= ?`, qty, partID, qty)
	if err != nil {
		return nil, mapErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var exists int
		if qerr := tx.QueryRowContext(ctx, "SELECT 1 FROM parts WHERE id = ?", partID).Scan(&exists); qerr != nil {
			if errors.Is(qerr, sql.ErrNoRows) {
				err = ErrNotFound
				return nil, err
			}
			err = qerr
			return nil, err
		}
		err = ErrInsufficientStock
		return nil, err
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO work_order_parts (work_order_id, part_id, quantity) VALUES (?,?,?)
		 ON DUPLICATE KEY UPDATE quantity = quantity + VALUES(quantity)`,
		workOrderID, partID, qty); err != nil {
		err = mapErr(err)
		return nil, err
	}
	part, err = scanPart(tx.QueryRowContext(ctx, partSelect+" WHERE id = ?", partID))
	if err != nil {
		err = mapErr(err)
		return nil, err
	}
	return part, nil
}

// RemovePart drops a part booking from the work order and puts the units
// back into stock.
func (r *WorkOrderRepo) RemovePart(ctx context.Context, workOrderID, partID uint64) (err error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	var qty uint32
	if err = tx.QueryRowContext(ctx,
		"SELECT quantity FROM work_order_parts WHERE work_order_id = ? AND part_id = ? FOR UPDATE",
		workOrderID, partID).Scan(&qty); err != nil {
		err = mapErr(err)
		return err
	}
	if _, err = tx.ExecContext(ctx,
		"DELETE FROM work_order_parts WHERE work_order_id = ? AND part_id = ?", workOrderID, partID); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		"UPDATE parts SET quantity = quantity + ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?", qty, partID)
	return err
}
