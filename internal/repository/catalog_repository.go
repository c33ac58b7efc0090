package repository

// Lookup tables shared by every tenant: states, VICs and incident statuses.
// They are small, so List returns everything without paging.

import (
	"context"
	"database/sql"
	"strings"

	"github.com/opustrack/opustrack/internal/model"
)

// CatalogRepo groups the lookup tables behind one handle.
type CatalogRepo struct{ DB *sql.DB }

func NewCatalogRepo(db *sql.DB) *CatalogRepo { return &CatalogRepo{DB: db} }

// ---- States ----

func (r *CatalogRepo) ListStates(ctx context.Context) ([]*model.State, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT id, code, name, created_at, updated_at FROM states ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []*model.State{}
	for rows.Next() {
		s := new(model.State)
		if err := rows.Scan(&s.ID, &s.Code, &s.Name, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *CatalogRepo) GetState(ctx context.Context, id uint64) (*model.State, error) {
	s := new(model.State)
	err := r.DB.QueryRowContext(ctx,
		"SELECT id, code, name, created_at, updated_at FROM states WHERE id = ?", id).
		Scan(&s.ID, &s.Code, &s.Name, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return s, nil
}

func (r *CatalogRepo) CreateState(ctx context.Context, s *model.State) error {
	s.Code = strings.ToUpper(strings.TrimSpace(s.Code))
	res, err := r.DB.ExecContext(ctx, "INSERT INTO states (code, name) VALUES (?,?)", s.Code, s.Name)
	if err != nil {
		return mapErr(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	s.ID = uint64(id)
	return nil
}

func (r *CatalogRepo) UpdateState(ctx context.Context, s *model.State) error {
	s.Code = strings.ToUpper(strings.TrimSpace(s.Code))
	res, err := r.DB.ExecContext(ctx,
		"UPDATE states SET code = ?, name = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?", s.Code, s.Name, s.ID)
	if err != nil {
		return mapErr(err)
	}
	return expectAffected(res)
}

func (r *CatalogRepo) DeleteState(ctx context.Context, id uint64) error {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM states WHERE id = ?", id)
	if err != nil {
		return mapErr(err)
	}
	return expectAffected(res)
}

// ---- VICs ----

const vicSelect = "SELECT id, code, name, state_id, address, active, created_at, updated_at FROM vics"

func scanVIC(row interface{ Scan(...any) error }) (*model.VIC, error) {
	v := new(model.VIC)
	if err := row.Scan(&v.ID, &v.Code, &v.Name, &v.StateID, &v.Address, &v.Active, &v.CreatedAt, &v.UpdatedAt); err != nil {
		return nil, err
	}
	return v, nil
}

// ListVICs returns all VICs, optionally restricted to one state.
func (r *CatalogRepo) ListVICs(ctx context.Context, stateID uint64) ([]*model.VIC, error) {
	q, args := vicSelect+" ORDER BY name", []any{}
	if stateID != 0 {
		q, args = vicSelect+" WHERE state_id = ? ORDER BY name", []any{stateID}
	}
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []*model.VIC{}
	for rows.Next() {
		v, err := scanVIC(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (r *CatalogRepo) GetVIC(ctx context.Context, id uint64) (*model.VIC, error) {
	v, err := scanVIC(r.DB.QueryRowContext(ctx, vicSelect+" WHERE id = ?", id))
	return v, mapErr(err)
}

func (r *CatalogRepo) CreateVIC(ctx context.Context, v *model.VIC) error {
	v.Code = strings.ToUpper(strings.TrimSpace(v.Code))
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO vics (code, name, state_id, address, active) VALUES (?,?,?,?,?)",
		v.Code, v.Name, v.StateID, v.Address, v.Active)
	if err != nil {
		return mapErr(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	v.ID = uint64(id)
	return nil
}

func (r *CatalogRepo) UpdateVIC(ctx context.Context, v *model.VIC) error {
	v.Code = strings.ToUpper(strings.TrimSpace(v.Code))
	res, err := r.DB.ExecContext(ctx,
		`UPDATE vics SET code = ?, name = ?, state_id = ?, address = ?, active = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		v.Code, v.Name, v.StateID, v.Address, v.Active, v.ID)
	if err != nil {
		return mapErr(err)
	}
	return expectAffected(res)
}

func (r *CatalogRepo) DeleteVIC(ctx context.Context, id uint64) error {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM vics WHERE id = ?", id)
	if err != nil {
		return mapErr(err)
	}
	return expectAffected(res)
}

// ---- Incident statuses ----

const statusSelect = "SELECT id, name, is_final, sort_order, created_at, updated_at FROM incident_statuses"

func scanStatus(row interface{ Scan(...any) error }) (*model.IncidentStatus, error) {
	s := new(model.IncidentStatus)
	if err := row.Scan(&s.ID, &s.Name, &s.IsFinal, &s.SortOrder, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	return s, nil
}

func (r *CatalogRepo) ListIncidentStatuses(ctx context.Context) ([]*model.IncidentStatus, error) {
	rows, err := r.DB.QueryContext(ctx, statusSelect+" ORDER BY sort_order, id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []*model.IncidentStatus{}
	for rows.Next() {
		s, err := scanStatus(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *CatalogRepo) GetIncidentStatus(ctx context.Context, id uint64) (*model.IncidentStatus, error) {
	s, err := scanStatus(r.DB.QueryRowContext(ctx, statusSelect+" WHERE id = ?", id))
	return s, mapErr(err)
}

// DefaultIncidentStatus is the first non-final status by sort order; new
// incidents start there when the client does not pick one.
func (r *CatalogRepo) DefaultIncidentStatus(ctx context.Context) (*model.IncidentStatus, error) {
	s, err := scanStatus(r.DB.QueryRowContext(ctx,
		statusSelect+" WHERE is_final = 0 ORDER BY sort_order, id LIMIT 1"))
	return s, mapErr(err)
}

func (r *CatalogRepo) CreateIncidentStatus(ctx context.Context, s *model.IncidentStatus) error {
	s.Name = strings.ToUpper(strings.TrimSpace(s.Name))
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO incident_statuses (name, is_final, sort_order) VALUES (?,?,?)", s.Name, s.IsFinal, s.SortOrder)
	if err != nil {
		return mapErr(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	s.ID = uint64(id)
	return nil
}

func (r *CatalogRepo) UpdateIncidentStatus(ctx context.Context, s *model.IncidentStatus) error {
	s.Name = strings.ToUpper(strings.TrimSpace(s.Name))
	res, err := r.DB.ExecContext(ctx,
		`UPDATE incident_statuses SET name = ?, is_final = ?, sort_order = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`, s.Name, s.IsFinal, s.SortOrder, s.ID)
	if err != nil {
		return mapErr(err)
	}
	return expectAffected(res)
}

func (r *CatalogRepo) DeleteIncidentStatus(ctx context.Context, id uint64) error {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM incident_statuses WHERE id = ?", id)
	if err != nil {
		return mapErr(err)
	}
	return expectAffected(res)
}
