package repository

import (
	"context"
	"database/sql"

	"github.com/opustrack/opustrack/internal/model"
)

// RoleRepo manages the roles table. Role ids are chosen by the caller
// because they encode the privilege level.
type RoleRepo struct{ DB *sql.DB }

func NewRoleRepo(db *sql.DB) *RoleRepo { return &RoleRepo{DB: db} }

const roleSelect = "SELECT id, name, default_path, created_at, updated_at FROM roles"

func scanRole(row interface{ Scan(...any) error }) (*model.Role, error) {
	var ro model.Role
	if err := row.Scan(&ro.ID, &ro.Name, &ro.DefaultPath, &ro.CreatedAt, &ro.UpdatedAt); err != nil {
		return nil, err
	}
	return &ro, nil
}

func (r *RoleRepo) List(ctx context.Context) ([]*model.Role, error) {
	rows, err := r.DB.QueryContext(ctx, roleSelect+" ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []*model.Role{}
	for rows.Next() {
		ro, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ro)
	}
	return out, rows.Err()
}

func (r *RoleRepo) GetByID(ctx context.Context, id uint8) (*model.Role, error) {
	ro, err := scanRole(r.DB.QueryRowContext(ctx, roleSelect+" WHERE id = ?", id))
	return ro, mapErr(err)
}

func (r *RoleRepo) Create(ctx context.Context, ro *model.Role) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO roles (id, name, default_path) VALUES (?,?,?)", ro.ID, ro.Name, ro.DefaultPath)
	return mapErr(err)
}

func (r *RoleRepo) Update(ctx context.Context, ro *model.Role) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE roles SET name = ?, default_path = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		ro.Name, ro.DefaultPath, ro.ID)
	if err != nil {
		return mapErr(err)
	}
	return expectAffected(res)
}

// Delete fails with ErrInvalidReference while users still hold the role.
func (r *RoleRepo) Delete(ctx context.Context, id uint8) error {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM roles WHERE id = ?", id)
	if err != nil {
		return mapErr(err)
	}
	return expectAffected(res)
}
