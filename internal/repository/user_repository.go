package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/opustrack/opustrack/internal/model"
	"github.com/opustrack/opustrack/internal/utils"
)

type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// UserFilter narrows List. Zero values mean "any".
type UserFilter struct {
	Q      string
	RoleID uint8
	VICID  *uint64
	Active *bool
}

const userSelect = `SELECT u.id, u.name, u.email, u.password_hash, u.role_id, u.vic_id, u.active,
	u.created_at, u.updated_at, r.name, r.default_path
	FROM users u JOIN roles r ON r.id = u.role_id`

func scanUser(row interface{ Scan(...any) error }) (*model.User, error) {
	var (
		u   model.User
		vic sql.NullInt64
	)
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.RoleID, &vic, &u.Active,
		&u.CreatedAt, &u.UpdatedAt, &u.RoleName, &u.DefaultPath); err != nil {
		return nil, err
	}
	u.VICID = nullableID(vic)
	return &u, nil
}

// Create hashes the password and inserts the user, filling in its ID.
// The email is normalized to lower case.
func (r *UserRepo) Create(ctx context.Context, u *model.User, password string, cost int) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return err
	}
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (name, email, password_hash, role_id, vic_id, active) VALUES (?,?,?,?,?,?)",
		u.Name, u.Email, hash, u.RoleID, idArg(u.VICID), u.Active)
	if err != nil {
		return mapErr(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	u.ID = uint64(id)
	u.PasswordHash = hash
	return nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	u, err := scanUser(r.DB.QueryRowContext(ctx, userSelect+" WHERE u.email = ? LIMIT 1", email))
	return u, mapErr(err)
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (*model.User, error) {
	u, err := scanUser(r.DB.QueryRowContext(ctx, userSelect+" WHERE u.id = ? LIMIT 1", id))
	return u, mapErr(err)
}

// List returns one page of users ordered by id together with the total
// number of matches.
func (r *UserRepo) List(ctx context.Context, f UserFilter, p Page) ([]*model.User, int64, error) {
	p = p.Normalize()
	var w where
	if q := strings.TrimSpace(f.Q); q != "" {
		w.add("(LOWER(u.name) LIKE ? OR LOWER(u.email) LIKE ?)", "%"+strings.ToLower(q)+"%", "%"+strings.ToLower(q)+"%")
	}
	if f.RoleID != 0 {
		w.add("u.role_id = ?", f.RoleID)
	}
	if f.VICID != nil {
		w.add("u.vic_id = ?", *f.VICID)
	}
	if f.Active != nil {
		w.add("u.active = ?", *f.Active)
	}

	var total int64
	if err := r.DB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM users u WHERE "+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args := append(append([]any{}, w.args...), p.PageSize, p.Offset())
	rows, err := r.DB.QueryContext(ctx,
		userSelect+" WHERE "+w.String()+" ORDER BY u.id LIMIT ? OFFSET ?", args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []*model.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, u)
	}
	return out, total, rows.Err()
}

// Update writes the editable profile fields. The password is not touched.
func (r *UserRepo) Update(ctx context.Context, u *model.User) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	res, err := r.DB.ExecContext(ctx,
		`UPDATE users SET name = ?, email = ?, role_id = ?, vic_id = ?, active = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		u.Name, u.Email, u.RoleID, idArg(u.VICID), u.Active, u.ID)
	if err != nil {
		return mapErr(err)
	}
	return expectAffected(res)
}

// SetPassword replaces the stored bcrypt hash.
func (r *UserRepo) SetPassword(ctx context.Context, id uint64, password string, cost int) error {
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return err
	}
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET password_hash = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?", hash, id)
	if err != nil {
		return mapErr(err)
	}
	return expectAffected(res)
}

// Deactivate is the soft delete: the row stays for foreign keys, login is refused.
func (r *UserRepo) Deactivate(ctx context.Context, id uint64) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET active = 0, updated_at = CURRENT_TIMESTAMP WHERE id = ?", id)
	if err != nil {
		return mapErr(err)
	}
	return expectAffected(res)
}

// Delete removes the user row. Users referenced by incidents or work orders
// cannot be hard-deleted and yield ErrInvalidReference.
func (r *UserRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM users WHERE id = ?", id)
	if err != nil {
		return mapErr(err)
	}
	return expectAffected(res)
}
