package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/opustrack/opustrack/internal/middleware"
	"github.com/opustrack/opustrack/internal/model"
)

// RoleHandler manages roles. A role's id is its privilege level, so it is
// chosen by the caller and never changes.
type RoleHandler struct {
	Roles RoleStore
	Cache middleware.CacheInvalidator
}

func NewRoleHandler(r RoleStore, inv middleware.CacheInvalidator) *RoleHandler {
	return &RoleHandler{Roles: r, Cache: inv}
}

type roleReq struct {
	ID          uint8   `json:"id"`
	Name        *string `json:"name"`
	DefaultPath *string `json:"default_path"`
}

func parseRoleID(c echo.Context) (uint8, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 8)
	if err != nil || id == 0 {
		return 0, errBadID
	}
	return uint8(id), nil
}

func validDefaultPath(p string) bool {
	return strings.HasPrefix(p, "/") && !strings.ContainsAny(p, "?# ")
}

func (h *RoleHandler) List(c echo.Context) error {
	ctx, cancel := dbContext(c)
	defer cancel()
	roles, err := h.Roles.List(ctx)
	if err != nil {
		return respondError(c, err, "role")
	}
	return c.JSON(http.StatusOK, roles)
}

func (h *RoleHandler) Get(c echo.Context) error {
	id, err := parseRoleID(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	ctx, cancel := dbContext(c)
	defer cancel()
	ro, err := h.Roles.GetByID(ctx, id)
	if err != nil {
		return respondError(c, err, "role")
	}
	return c.JSON(http.StatusOK, ro)
}

func (h *RoleHandler) Create(c echo.Context) error {
	var req roleReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if req.ID == 0 || req.Name == nil || req.DefaultPath == nil {
		return badRequest(c, "id, name and default_path are required")
	}
	ro := &model.Role{
		ID:          req.ID,
		Name:        strings.ToUpper(strings.TrimSpace(*req.Name)),
		DefaultPath: strings.TrimSpace(*req.DefaultPath),
	}
	if ro.Name == "" || !validDefaultPath(ro.DefaultPath) {
		return badRequest(c, "name required and default_path must be an absolute path")
	}
	ctx, cancel := dbContext(c)
	defer cancel()
	if err := h.Roles.Create(ctx, ro); err != nil {
		return respondError(c, err, "role")
	}
	invalidate(c, h.Cache)
	fresh, err := h.Roles.GetByID(ctx, ro.ID)
	if err != nil {
		return respondError(c, err, "role")
	}
	return c.JSON(http.StatusCreated, fresh)
}

func (h *RoleHandler) Update(c echo.Context) error {
	id, err := parseRoleID(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	var req roleReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	ctx, cancel := dbContext(c)
	defer cancel()
	ro, err := h.Roles.GetByID(ctx, id)
	if err != nil {
		return respondError(c, err, "role")
	}
	if req.Name != nil {
		ro.Name = strings.ToUpper(strings.TrimSpace(*req.Name))
	}
	if req.DefaultPath != nil {
		ro.DefaultPath = strings.TrimSpace(*req.DefaultPath)
	}
	if ro.Name == "" || !validDefaultPath(ro.DefaultPath) {
		return badRequest(c, "name required and default_path must be an absolute path")
	}
	if err := h.Roles.Update(ctx, ro); err != nil {
		return respondError(c, err, "role")
	}
	invalidate(c, h.Cache)
	return c.JSON(http.StatusOK, ro)
}

func (h *RoleHandler) Delete(c echo.Context) error {
	id, err := parseRoleID(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	ctx, cancel := dbContext(c)
	defer cancel()
	if err := h.Roles.Delete(ctx, id); err != nil {
		return respondError(c, err, "role")
	}
	invalidate(c, h.Cache)
	return c.NoContent(http.StatusNoContent)
}
