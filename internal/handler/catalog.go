package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/opustrack/opustrack/internal/middleware"
	"github.com/opustrack/opustrack/internal/model"
)

// CatalogHandler serves the lookup tables: states, VICs and incident
// statuses. Reads are open to every role and cached; writes are admin
// operations that drop the cache.
type CatalogHandler struct {
	Catalog CatalogStore
	Cache   middleware.CacheInvalidator
}

func NewCatalogHandler(s CatalogStore, inv middleware.CacheInvalidator) *CatalogHandler {
	return &CatalogHandler{Catalog: s, Cache: inv}
}

// ---- States ----

type stateReq struct {
	Code *string `json:"code"`
	Name *string `json:"name"`
}

func (h *CatalogHandler) ListStates(c echo.Context) error {
	ctx, cancel := dbContext(c)
	defer cancel()
	items, err := h.Catalog.ListStates(ctx)
	if err != nil {
		return respondError(c, err, "state")
	}
	return c.JSON(http.StatusOK, items)
}

func (h *CatalogHandler) GetState(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	ctx, cancel := dbContext(c)
	defer cancel()
	s, err := h.Catalog.GetState(ctx, id)
	if err != nil {
		return respondError(c, err, "state")
	}
	return c.JSON(http.StatusOK, s)
}

func applyState(s *model.State, req stateReq) bool {
	if req.Code != nil {
		s.Code = strings.ToUpper(strings.TrimSpace(*req.Code))
	}
	if req.Name != nil {
		s.Name = strings.TrimSpace(*req.Name)
	}
	return s.Code != "" && s.Name != ""
}

func (h *CatalogHandler) CreateState(c echo.Context) error {
	var req stateReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	s := &model.State{}
	if !applyState(s, req) {
		return badRequest(c, "code and name are required")
	}
	ctx, cancel := dbContext(c)
	defer cancel()
	if err := h.Catalog.CreateState(ctx, s); err != nil {
		return respondError(c, err, "state")
	}
	invalidate(c, h.Cache)
	if fresh, err := h.Catalog.GetState(ctx, s.ID); err == nil {
		s = fresh
	}
	return c.JSON(http.StatusCreated, s)
}

func (h *CatalogHandler) UpdateState(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	var req stateReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	ctx, cancel := dbContext(c)
	defer cancel()
	s, err := h.Catalog.GetState(ctx, id)
	if err != nil {
		return respondError(c, err, "state")
	}
	if !applyState(s, req) {
		return badRequest(c, "code and name cannot be empty")
	}
	if err := h.Catalog.UpdateState(ctx, s); err != nil {
		return respondError(c, err, "state")
	}
	invalidate(c, h.Cache)
	return c.JSON(http.StatusOK, s)
}

func (h *CatalogHandler) DeleteState(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	ctx, cancel := dbContext(c)
	defer cancel()
	if err := h.Catalog.DeleteState(ctx, id); err != nil {
		return respondError(c, err, "state")
	}
	invalidate(c, h.Cache)
	return c.NoContent(http.StatusNoContent)
}

// ---- VICs ----

type vicReq struct {
	Code    *string `json:"code"`
	Name    *string `json:"name"`
	StateID *uint64 `json:"state_id"`
	Address *string `json:"address"`
	Active  *bool   `json:"active"`
}

// ListVICs accepts ?state_id.
func (h *CatalogHandler) ListVICs(c echo.Context) error {
	stateID, err := queryUint(c, "state_id")
	if err != nil {
		return badRequest(c, "invalid state_id")
	}
	ctx, cancel := dbContext(c)
	defer cancel()
	items, err := h.Catalog.ListVICs(ctx, stateID)
	if err != nil {
		return respondError(c, err, "vic")
	}
	return c.JSON(http.StatusOK, items)
}

func (h *CatalogHandler) GetVIC(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	ctx, cancel := dbContext(c)
	defer cancel()
	v, err := h.Catalog.GetVIC(ctx, id)
	if err != nil {
		return respondError(c, err, "vic")
	}
	return c.JSON(http.StatusOK, v)
}

func applyVIC(v *model.VIC, req vicReq) bool {
	if req.Code != nil {
		v.Code = strings.ToUpper(strings.TrimSpace(*req.Code))
	}
	if req.Name != nil {
		v.Name = strings.TrimSpace(*req.Name)
	}
	if req.StateID != nil {
		v.StateID = *req.StateID
	}
	if req.Address != nil {
		v.Address = strings.TrimSpace(*req.Address)
	}
	if req.Active != nil {
		v.Active = *req.Active
	}
	return v.Code != "" && v.Name != "" && v.StateID != 0
}

func (h *CatalogHandler) CreateVIC(c echo.Context) error {
	var req vicReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	v := &model.VIC{Active: true}
	if !applyVIC(v, req) {
		return badRequest(c, "code, name and state_id are required")
	}
	ctx, cancel := dbContext(c)
	defer cancel()
	if err := h.Catalog.CreateVIC(ctx, v); err != nil {
		return respondError(c, err, "vic")
	}
	invalidate(c, h.Cache)
	if fresh, err := h.Catalog.GetVIC(ctx, v.ID); err == nil {
		v = fresh
	}
	return c.JSON(http.StatusCreated, v)
}

func (h *CatalogHandler) UpdateVIC(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	var req vicReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	ctx, cancel := dbContext(c)
	defer cancel()
	v, err := h.Catalog.GetVIC(ctx, id)
	if err != nil {
		return respondError(c, err, "vic")
	}
	if !applyVIC(v, req) {
		return badRequest(c, "code, name and state_id cannot be empty")
	}
	if err := h.Catalog.UpdateVIC(ctx, v); err != nil {
		return respondError(c, err, "vic")
	}
	invalidate(c, h.Cache)
	return c.JSON(http.StatusOK, v)
}

func (h *CatalogHandler) DeleteVIC(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	ctx, cancel := dbContext(c)
	defer cancel()
	if err := h.Catalog.DeleteVIC(ctx, id); err != nil {
		return respondError(c, err, "vic")
	}
	invalidate(c, h.Cache)
	return c.NoContent(http.StatusNoContent)
}

// ---- Incident statuses ----

type statusReq struct {
	Name      *string `json:"name"`
	IsFinal   *bool   `json:"is_final"`
	SortOrder *int    `json:"sort_order"`
}

func (h *CatalogHandler) ListIncidentStatuses(c echo.Context) error {
	ctx, cancel := dbContext(c)
	defer cancel()
	items, err := h.Catalog.ListIncidentStatuses(ctx)
	if err != nil {
		return respondError(c, err, "incident status")
	}
	return c.JSON(http.StatusOK, items)
}

func (h *CatalogHandler) GetIncidentStatus(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	ctx, cancel := dbContext(c)
	defer cancel()
	s, err := h.Catalog.GetIncidentStatus(ctx, id)
	if err != nil {
		return respondError(c, err, "incident status")
	}
	return c.JSON(http.StatusOK, s)
}

func applyStatus(s *model.IncidentStatus, req statusReq) bool {
	if req.Name != nil {
		s.Name = strings.ToUpper(strings.TrimSpace(*req.Name))
	}
	if req.IsFinal != nil {
		s.IsFinal = *req.IsFinal
	}
	if req.SortOrder != nil {
		s.SortOrder = *req.SortOrder
	}
	return s.Name != ""
}

func (h *CatalogHandler) CreateIncidentStatus(c echo.Context) error {
	var req statusReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	s := &model.IncidentStatus{}
	if !applyStatus(s, req) {
		return badRequest(c, "name required")
	}
	ctx, cancel := dbContext(c)
	defer cancel()
	if err := h.Catalog.CreateIncidentStatus(ctx, s); err != nil {
		return respondError(c, err, "incident status")
	}
	invalidate(c, h.Cache)
	if fresh, err := h.Catalog.GetIncidentStatus(ctx, s.ID); err == nil {
		s = fresh
	}
	return c.JSON(http.StatusCreated, s)
}

// UpdateIncidentStatus does not touch closed_at of existing incidents;
// that only follows status changes on the incident itself.
func (h *CatalogHandler) UpdateIncidentStatus(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	var req statusReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	ctx, cancel := dbContext(c)
	defer cancel()
	s, err := h.Catalog.GetIncidentStatus(ctx, id)
	if err != nil {
		return respondError(c, err, "incident status")
	}
	if !applyStatus(s, req) {
		return badRequest(c, "name cannot be empty")
	}
	if err := h.Catalog.UpdateIncidentStatus(ctx, s); err != nil {
		return respondError(c, err, "incident status")
	}
	invalidate(c, h.Cache)
	return c.JSON(http.StatusOK, s)
}

func (h *CatalogHandler) DeleteIncidentStatus(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	ctx, cancel := dbContext(c)
	defer cancel()
	if err := h.Catalog.DeleteIncidentStatus(ctx, id); err != nil {
		return respondError(c, err, "incident status")
	}
	invalidate(c, h.Cache)
	return c.NoContent(http.StatusNoContent)
}
