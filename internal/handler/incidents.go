package handler

import (
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/opustrack/opustrack/internal/middleware"
	"github.com/opustrack/opustrack/internal/model"
	"github.com/opustrack/opustrack/internal/queue"
	"github.com/opustrack/opustrack/internal/repository"
	"github.com/opustrack/opustrack/internal/service"
	"github.com/opustrack/opustrack/internal/utils"
)

// IncidentHandler serves incidents and their attachments. Callers below
// SUPERVISOR only ever see incidents of their own VIC; anything else is
// reported as not found.
type IncidentHandler struct {
	Incidents IncidentStore
	Catalog   CatalogStore
	Events    service.EventPublisher

	UploadDir     string
	MaxUpload     int64
	PublicBaseURL string
}

type incidentReq struct {
	VICID       *uint64 `json:"vic_id"`
	StatusID    *uint64 `json:"status_id"`
	Title       *string `json:"title"`
	Description *string `json:"description"`
}

var errNoVIC = errors.New("no VIC assigned")

// load fetches an incident and hides it when it belongs to another tenant.
func (h *IncidentHandler) load(c echo.Context, id uint64) (*model.Incident, error) {
	ctx, cancel := dbContext(c)
	defer cancel()
	in, err := h.Incidents.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canAccessVIC(middleware.ClaimsFrom(c), in.VICID) {
		return nil, repository.ErrNotFound
	}
	return in, nil
}

func incidentEvent(typ string, in *model.Incident) queue.DomainEvent {
	vic := in.VICID
	return queue.DomainEvent{
		Type:     typ,
		Entity:   "incident",
		EntityID: in.ID,
		VICID:    &vic,
		Data:     map[string]any{"status_id": in.StatusID, "title": in.Title},
	}
}

// List supports ?status_id, ?vic_id, ?q, ?open and pagination. The tenant
// scope wins over ?vic_id.
func (h *IncidentHandler) List(c echo.Context) error {
	cl := middleware.ClaimsFrom(c)
	p := pageFrom(c)
	scope, ok := tenantScope(cl)
	if !ok {
		return listResponse(c, []*model.Incident{}, 0, p)
	}
	f := repository.IncidentFilter{VICID: scope, Q: c.QueryParam("q"), Open: queryBool(c, "open")}
	var err error
	if f.StatusID, err = queryUint(c, "status_id"); err != nil {
		return badRequest(c, "invalid status_id")
	}
	if scope == nil {
		vic, err := queryUint(c, "vic_id")
		if err != nil {
			return badRequest(c, "invalid vic_id")
		}
		if vic != 0 {
			f.VICID = &vic
		}
	}
	ctx, cancel := dbContext(c)
	defer cancel()
	items, total, err := h.Incidents.List(ctx, f, p)
	if err != nil {
		return respondError(c, err, "incident")
	}
	return listResponse(c, items, total, p)
}

func (h *IncidentHandler) Get(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	in, err := h.load(c, id)
	if err != nil {
		return respondError(c, err, "incident")
	}
	return c.JSON(http.StatusOK, in)
}

// Create opens an incident. Callers bound to a VIC report against it; the
// status defaults to the first non-final one.
func (h *IncidentHandler) Create(c echo.Context) error {
	cl := middleware.ClaimsFrom(c)
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	var req incidentReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	in := &model.Incident{ReportedBy: uid}
	if req.Title != nil {
		in.Title = strings.TrimSpace(*req.Title)
	}
	if in.Title == "" {
		return badRequest(c, "title required")
	}
	if req.Description != nil {
		in.Description = strings.TrimSpace(*req.Description)
	}

	scope, ok := tenantScope(cl)
	switch {
	case !ok:
		return c.JSON(http.StatusForbidden, echo.Map{"error": errNoVIC.Error()})
	case scope != nil && req.VICID != nil && *req.VICID != *scope:
		return c.JSON(http.StatusForbidden, echo.Map{"error": "cannot report for another VIC"})
	case scope != nil:
		in.VICID = *scope
	case req.VICID != nil && *req.VICID != 0:
		in.VICID = *req.VICID
	case cl.VICID != nil:
		in.VICID = *cl.VICID
	default:
		return badRequest(c, "vic_id required")
	}

	ctx, cancel := dbContext(c)
	defer cancel()
	if req.StatusID != nil && *req.StatusID != 0 {
		in.StatusID = *req.StatusID
	} else {
		st, err := h.Catalog.DefaultIncidentStatus(ctx)
		if err != nil {
			return respondError(c, err, "incident status")
		}
		in.StatusID = st.ID
	}
	if err := h.Incidents.Create(ctx, in); err != nil {
		return respondError(c, err, "incident")
	}
	emit(c, h.Events, incidentEvent(queue.IncidentCreated, in))
	return c.JSON(http.StatusCreated, in)
}

// Update applies the fields present in the body. Moving an incident to
// another VIC requires SUPERVISOR.
func (h *IncidentHandler) Update(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	var req incidentReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	in, err := h.load(c, id)
	if err != nil {
		return respondError(c, err, "incident")
	}
	prevStatus := in.StatusID
	if req.Title != nil {
		if in.Title = strings.TrimSpace(*req.Title); in.Title == "" {
			return badRequest(c, "title cannot be empty")
		}
	}
	if req.Description != nil {
		in.Description = strings.TrimSpace(*req.Description)
	}
	if req.StatusID != nil {
		if *req.StatusID == 0 {
			return badRequest(c, "invalid status_id")
		}
		in.StatusID = *req.StatusID
	}
	if req.VICID != nil && *req.VICID != in.VICID {
		if middleware.ClaimsFrom(c).RoleID < model.RoleSupervisor {
			return c.JSON(http.StatusForbidden, echo.Map{"error": "cannot move incident to another VIC"})
		}
		in.VICID = *req.VICID
	}

	ctx, cancel := dbContext(c)
	defer cancel()
	if err := h.Incidents.Update(ctx, in); err != nil {
		return respondError(c, err, "incident")
	}
	ev := incidentEvent(queue.IncidentUpdated, in)
	ev.Data["previous_status_id"] = prevStatus
	emit(c, h.Events, ev)
	return c.JSON(http.StatusOK, in)
}

// Delete removes the incident and its stored files.
func (h *IncidentHandler) Delete(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	in, err := h.load(c, id)
	if err != nil {
		return respondError(c, err, "incident")
	}
	ctx, cancel := dbContext(c)
	defer cancel()
	files, err := h.Incidents.ListAttachments(ctx, id)
	if err != nil {
		return respondError(c, err, "incident")
	}
	if err := h.Incidents.Delete(ctx, id); err != nil {
		return respondError(c, err, "incident")
	}
	for _, a := range files {
		h.removeFile(a.FileKey)
	}
	emit(c, h.Events, incidentEvent(queue.IncidentDeleted, in))
	return c.NoContent(http.StatusNoContent)
}

// ---- Attachments ----

func (h *IncidentHandler) withURL(a *model.IncidentAttachment) *model.IncidentAttachment {
	a.URL = utils.FileURL(h.PublicBaseURL, a.FileKey)
	return a
}

func (h *IncidentHandler) removeFile(key string) {
	if !utils.ValidFileKey(key) {
		return
	}
	if err := os.Remove(utils.FilePath(h.UploadDir, key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("handler: remove upload %s: %v", key, err)
	}
}

func (h *IncidentHandler) ListAttachments(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	if _, err := h.load(c, id); err != nil {
		return respondError(c, err, "incident")
	}
	ctx, cancel := dbContext(c)
	defer cancel()
	items, err := h.Incidents.ListAttachments(ctx, id)
	if err != nil {
		return respondError(c, err, "attachment")
	}
	for _, a := range items {
		h.withURL(a)
	}
	return c.JSON(http.StatusOK, items)
}

// UploadAttachment stores the multipart field "file" under the upload
// directory and records it against the incident.
func (h *IncidentHandler) UploadAttachment(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	if _, err := h.load(c, id); err != nil {
		return respondError(c, err, "incident")
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return badRequest(c, "multipart field \"file\" required")
	}
	if h.MaxUpload > 0 && fh.Size > h.MaxUpload {
		return c.JSON(http.StatusRequestEntityTooLarge, echo.Map{"error": "file too large"})
	}
	src, err := fh.Open()
	if err != nil {
		return respondError(c, err, "attachment")
	}
	defer src.Close()

	if err := os.MkdirAll(h.UploadDir, 0o755); err != nil {
		return respondError(c, err, "attachment")
	}
	key := utils.NewFileKey(fh.Filename)
	dst, err := os.OpenFile(utils.FilePath(h.UploadDir, key), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return respondError(c, err, "attachment")
	}
	var r io.Reader = src
	if h.MaxUpload > 0 {
		r = io.LimitReader(src, h.MaxUpload+1)
	}
	n, err := io.Copy(dst, r)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		h.removeFile(key)
		return respondError(c, err, "attachment")
	}
	if h.MaxUpload > 0 && n > h.MaxUpload {
		h.removeFile(key)
		return c.JSON(http.StatusRequestEntityTooLarge, echo.Map{"error": "file too large"})
	}

	ct := fh.Header.Get("Content-Type")
	if ct == "" {
		ct = "application/octet-stream"
	}
	a := &model.IncidentAttachment{
		IncidentID:   id,
		FileKey:      key,
		OriginalName: fh.Filename,
		ContentType:  ct,
		SizeBytes:    n,
		UploadedBy:   uid,
	}
	ctx, cancel := dbContext(c)
	defer cancel()
	if err := h.Incidents.AddAttachment(ctx, a); err != nil {
		h.removeFile(key)
		return respondError(c, err, "attachment")
	}
	return c.JSON(http.StatusCreated, h.withURL(a))
}

// ServeFile streams a stored attachment. The file is only visible to
// callers who can see its incident.
func (h *IncidentHandler) ServeFile(c echo.Context) error {
	key := c.Param("key")
	if !utils.ValidFileKey(key) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "file not found"})
	}
	ctx, cancel := dbContext(c)
	a, err := h.Incidents.GetAttachmentByKey(ctx, key)
	cancel()
	if err != nil {
		return respondError(c, err, "file")
	}
	if _, err := h.load(c, a.IncidentID); err != nil {
		return respondError(c, err, "file")
	}
	return c.Inline(utils.FilePath(h.UploadDir, a.FileKey), a.OriginalName)
}

func (h *IncidentHandler) DeleteAttachment(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	aid, err := parseID(c, "aid")
	if err != nil {
		return badRequest(c, err.Error())
	}
	if _, err := h.load(c, id); err != nil {
		return respondError(c, err, "incident")
	}
	ctx, cancel := dbContext(c)
	defer cancel()
	a, err := h.Incidents.GetAttachment(ctx, id, aid)
	if err != nil {
		return respondError(c, err, "attachment")
	}
	if err := h.Incidents.DeleteAttachment(ctx, id, aid); err != nil {
		return respondError(c, err, "attachment")
	}
	h.removeFile(a.FileKey)
	return c.NoContent(http.StatusNoContent)
}
