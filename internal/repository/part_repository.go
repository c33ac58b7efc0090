package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/opustrack/opustrack/internal/model"
)

// PartRepo manages the parts inventory.
type PartRepo struct{ DB *sql.DB }

func NewPartRepo(db *sql.DB) *PartRepo { return &PartRepo{DB: db} }

type PartFilter struct {
	Q        string
	LowStock bool
}

const partSelect = `SELECT id, sku, name, description, quantity, min_quantity, unit_cost_cents,
	created_at, updated_at FROM parts`

func scanPart(row interface{ Scan(...any) error }) (*model.Part, error) {
	p := new(model.Part)
	if err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.Description, &p.Quantity, &p.MinQuantity, &p.UnitCostCents,
		&p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *PartRepo) Create(ctx context.Context, p *model.Part) error {
	p.SKU = strings.ToUpper(strings.TrimSpace(p.SKU))
	res, err := r.DB.ExecContext(ctx,
		`INSERT INTO parts (sku, name, description, quantity, min_quantity, unit_cost_cents)
		 VALUES (?,?,?,?,?,?)`,
		p.SKU, p.Name, p.Description, p.Quantity, p.MinQuantity, p.UnitCostCents)
	if err != nil {
		return mapErr(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = uint64(id)
	return nil
}

func (r *PartRepo) GetByID(ctx context.Context, id uint64) (*model.Part, error) {
	p, err := scanPart(r.DB.QueryRowContext(ctx, partSelect+" WHERE id = ?", id))
	return p, mapErr(err)
}

// List pages through parts ordered by SKU. LowStock keeps only parts at or
// below their reorder threshold.
func (r *PartRepo) List(ctx context.Context, f PartFilter, pg Page) ([]*model.Part, int64, error) {
	pg = pg.Normalize()
	var w where
	if q := strings.TrimSpace(f.Q); q != "" {
		w.add("(LOWER(sku) LIKE ? OR LOWER(name) LIKE ?)", "%"+strings.ToLower(q)+"%", "%"+strings.ToLower(q)+"%")
	}
	if f.LowStock {
		w.add("quantity <= min_quantity")
	}
	var total int64
	if err := r.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM parts WHERE "+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args := append(append([]any{}, w.args...), pg.PageSize, pg.Offset())
	rows, err := r.DB.QueryContext(ctx, partSelect+" WHERE "+w.String()+" ORDER BY sku LIMIT ? OFFSET ?", args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := []*model.Part{}
	for rows.Next() {
		p, err := scanPart(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

// Update writes the descriptive columns of p, and quantity only when
// setQuantity is true. Work order bookings adjust quantity in place.
func (r *PartRepo) Update(ctx context.Context, p *model.Part, setQuantity bool) error {
	p.SKU = strings.ToUpper(strings.TrimSpace(p.SKU))
	set := "sku = ?, name = ?, description = ?, min_quantity = ?, unit_cost_cents = ?"
	args := []any{p.SKU, p.Name, p.Description, p.MinQuantity, p.UnitCostCents}
	if setQuantity {
		set += ", quantity = ?"
		args = append(args, p.Quantity)
	}
	res, err := r.DB.ExecContext(ctx,
		"UPDATE parts SET "+set+", updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		append(args, p.ID)...)
	if err != nil {
		return mapErr(err)
	}
	return expectAffected(res)
}

// Delete fails with ErrInvalidReference while work orders reference the part.
func (r *PartRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM parts WHERE id = ?", id)
	if err != nil {
		return mapErr(err)
	}
	return expectAffected(res)
}
