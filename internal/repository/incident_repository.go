package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/opustrack/opustrack/internal/model"
)

// IncidentRepo encapsulates all queries on incidents and their attachments.
type IncidentRepo struct{ DB *sql.DB }

func NewIncidentRepo(db *sql.DB) *IncidentRepo { return &IncidentRepo{DB: db} }

// IncidentFilter narrows List. VICID set by the handler enforces tenancy.
type IncidentFilter struct {
	VICID    *uint64
	StatusID uint64
	Q        string
	Open     *bool
}

const incidentSelect = `SELECT i.id, i.vic_id, i.status_id, i.title, i.description, i.reported_by,
	i.closed_at, i.created_at, i.updated_at, s.name, v.name
	FROM incidents i
	JOIN incident_statuses s ON s.id = i.status_id
	JOIN vics v ON v.id = i.vic_id`

// closedAtExpr stamps closed_at when the target status is final and clears
// it otherwise. An already closed incident keeps its original timestamp.
const closedAtExpr = `CASE WHEN (SELECT is_final FROM incident_statuses WHERE id = ?) = 1
	THEN COALESCE(closed_at, UTC_TIMESTAMP()) ELSE NULL END`

const closedAtOnInsert = `CASE WHEN (SELECT is_final FROM incident_statuses WHERE id = ?) = 1
	THEN UTC_TIMESTAMP() ELSE NULL END`

func scanIncident(row interface{ Scan(...any) error }) (*model.Incident, error) {
	var (
		in     model.Incident
		closed sql.NullTime
	)
	if err := row.Scan(&in.ID, &in.VICID, &in.StatusID, &in.Title, &in.Description, &in.ReportedBy,
		&closed, &in.CreatedAt, &in.UpdatedAt, &in.StatusName, &in.VICName); err != nil {
		return nil, err
	}
	in.ClosedAt = nullableTime(closed)
	return &in, nil
}

// Create inserts the incident and reloads it so joined names and
// timestamps are populated.
func (r *IncidentRepo) Create(ctx context.Context, in *model.Incident) error {
	res, err := r.DB.ExecContext(ctx,
		`INSERT INTO incidents (vic_id, status_id, title, description, reported_by, closed_at)
		 VALUES (?, ?, ?, ?, ?, `+closedAtOnInsert+`)`,
		in.VICID, in.StatusID, in.Title, in.Description, in.ReportedBy, in.StatusID)
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
	*in = *fresh
	return nil
}

func (r *IncidentRepo) GetByID(ctx context.Context, id uint64) (*model.Incident, error) {
	in, err := scanIncident(r.DB.QueryRowContext(ctx, incidentSelect+" WHERE i.id = ?", id))
	return in, mapErr(err)
}

// List returns one page of incidents, newest first.
func (r *IncidentRepo) List(ctx context.Context, f IncidentFilter, p Page) ([]*model.Incident, int64, error) {
	p = p.Normalize()
	var w where
	if f.VICID != nil {
		w.add("i.vic_id = ?", *f.VICID)
	}
	if f.StatusID != 0 {
		w.add("i.status_id = ?", f.StatusID)
	}
	if q := strings.TrimSpace(f.Q); q != "" {
		w.like("i.title", q)
	}
	if f.Open != nil {
		if *f.Open {
			w.add("i.closed_at IS NULL")
		} else {
			w.add("i.closed_at IS NOT NULL")
		}
	}

	var total int64
	if err := r.DB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM incidents i WHERE "+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args := append(append([]any{}, w.args...), p.PageSize, p.Offset())
	rows, err := r.DB.QueryContext(ctx,
		incidentSelect+" WHERE "+w.String()+" ORDER BY i.created_at DESC, i.id DESC LIMIT ? OFFSET ?", args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := []*model.Incident{}
	for rows.Next() {
		in, err := scanIncident(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, in)
	}
	return out, total, rows.Err()
}

// Update writes title, description, status and VIC. closed_at follows the
// status' is_final flag.
func (r *IncidentRepo) Update(ctx context.Context, in *model.Incident) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE incidents SET vic_id = ?, status_id = ?, title = ?, description = ?,
		 closed_at = `+closedAtExpr+`, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		in.VICID, in.StatusID, in.Title, in.Description, in.StatusID, in.ID)
	if err != nil {
		return mapErr(err)
	}
	if err := expectAffected(res); err != nil {
		return err
	}
	fresh, err := r.GetByID(ctx, in.ID)
	if err != nil {
		return err
	}
	*in = *fresh
	return nil
}

// Delete removes an incident. Incidents with work orders are protected by
// the foreign key and yield ErrInvalidReference; attachments cascade.
func (r *IncidentRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM incidents WHERE id = ?", id)
	if err != nil {
		return mapErr(err)
	}
	return expectAffected(res)
}

// ---- Attachments ----

func (r *IncidentRepo) AddAttachment(ctx context.Context, a *model.IncidentAttachment) error {
	res, err := r.DB.ExecContext(ctx,
		`INSERT INTO incident_attachments (incident_id, file_key, original_name, content_type, size_bytes, uploaded_by)
		 VALUES (?,?,?,?,?,?)`,
		a.IncidentID, a.FileKey, a.OriginalName, a.ContentType, a.SizeBytes, a.UploadedBy)
	if err != nil {
		return mapErr(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	a.ID = uint64(id)
	return nil
}

const attachmentSelect = `SELECT id, incident_id, file_key, original_name, content_type, size_bytes,
	uploaded_by, created_at FROM incident_attachments`

func scanAttachment(row interface{ Scan(...any) error }) (*model.IncidentAttachment, error) {
	a := new(model.IncidentAttachment)
	if err := row.Scan(&a.ID, &a.IncidentID, &a.FileKey, &a.OriginalName, &a.ContentType, &a.SizeBytes,
		&a.UploadedBy, &a.CreatedAt); err != nil {
		return nil, err
	}
	return a, nil
}

func (r *IncidentRepo) ListAttachments(ctx context.Context, incidentID uint64) ([]*model.IncidentAttachment, error) {
	rows, err := r.DB.QueryContext(ctx, attachmentSelect+" WHERE incident_id = ? ORDER BY id", incidentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []*model.IncidentAttachment{}
	for rows.Next() {
		a, err := scanAttachment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// GetAttachment loads one attachment of one incident.
func (r *IncidentRepo) GetAttachment(ctx context.Context, incidentID, id uint64) (*model.IncidentAttachment, error) {
	a, err := scanAttachment(r.DB.QueryRowContext(ctx,
		attachmentSelect+" WHERE id = ? AND incident_id = ?", id, incidentID))
	return a, mapErr(err)
}

// GetAttachmentByKey resolves a stored file back to its attachment row.
func (r *IncidentRepo) GetAttachmentByKey(ctx context.Context, key string) (*model.IncidentAttachment, error) {
	a, err := scanAttachment(r.DB.QueryRowContext(ctx, attachmentSelect+" WHERE file_key = ?", key))
	return a, mapErr(err)
}

func (r *IncidentRepo) DeleteAttachment(ctx context.Context, incidentID, id uint64) error {
	res, err := r.DB.ExecContext(ctx,
		"DELETE FROM incident_attachments WHERE id = ? AND incident_id = ?", id, incidentID)
	if err != nil {
		return mapErr(err)
	}
	return expectAffected(res)
}
