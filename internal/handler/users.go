package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/opustrack/opustrack/internal/model"
	"github.com/opustrack/opustrack/internal/queue"
	"github.com/opustrack/opustrack/internal/repository"
	"github.com/opustrack/opustrack/internal/service"
	"github.com/opustrack/opustrack/internal/utils"
)

// UserHandler serves the admin user management API.
type UserHandler struct {
	Users      UserStore
	Tokens     TokenStore
	Events     service.EventPublisher
	BcryptCost int
}

func NewUserHandler(u UserStore, t TokenStore, ev service.EventPublisher, cost int) *UserHandler {
	return &UserHandler{Users: u, Tokens: t, Events: ev, BcryptCost: cost}
}

type createUserReq struct {
	Name     string  `json:"name"`
	Email    string  `json:"email"`
	Password string  `json:"password"`
	RoleID   uint8   `json:"role_id"`
	VICID    *uint64 `json:"vic_id"`
	Active   *bool   `json:"active"`
}

type updateUserReq struct {
	Name     *string          `json:"name"`
	Email    *string          `json:"email"`
	Password *string          `json:"password"`
	RoleID   *uint8           `json:"role_id"`
	VICID    optional[uint64] `json:"vic_id"`
	Active   *bool            `json:"active"`
}

// List supports ?q, ?role_id, ?vic_id, ?active and pagination.
func (h *UserHandler) List(c echo.Context) error {
	var f repository.UserFilter
	f.Q = c.QueryParam("q")
	role, err := queryUint(c, "role_id")
	if err != nil || role > 255 {
		return badRequest(c, "invalid role_id")
	}
	f.RoleID = uint8(role)
	vic, err := queryUint(c, "vic_id")
	if err != nil {
		return badRequest(c, "invalid vic_id")
	}
	if vic != 0 {
		f.VICID = &vic
	}
	f.Active = queryBool(c, "active")

	p := pageFrom(c)
	ctx, cancel := dbContext(c)
	defer cancel()
	items, total, err := h.Users.List(ctx, f, p)
	if err != nil {
		return respondError(c, err, "user")
	}
	return listResponse(c, items, total, p)
}

func (h *UserHandler) Get(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	ctx, cancel := dbContext(c)
	defer cancel()
	u, err := h.Users.GetByID(ctx, id)
	if err != nil {
		return respondError(c, err, "user")
	}
	return c.JSON(http.StatusOK, u)
}

// Create adds a user. Accounts are active unless the body says otherwise.
func (h *UserHandler) Create(c echo.Context) error {
	var req createUserReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Name == "" || !utils.ValidEmail(req.Email) {
		return badRequest(c, "name and a valid email are required")
	}
	if req.RoleID == 0 {
		return badRequest(c, "role_id required")
	}
	if err := utils.CheckPassword(req.Password); err != nil {
		return badRequest(c, err.Error())
	}
	u := &model.User{
		Name:   req.Name,
		Email:  req.Email,
		RoleID: req.RoleID,
		VICID:  req.VICID,
		Active: req.Active == nil || *req.Active,
	}
	ctx, cancel := dbContext(c)
	defer cancel()
	if err := h.Users.Create(ctx, u, req.Password, h.BcryptCost); err != nil {
		return respondError(c, err, "user")
	}
	// reload for role name and default path
	if fresh, err := h.Users.GetByID(ctx, u.ID); err == nil {
		u = fresh
	}
	emit(c, h.Events, queue.DomainEvent{
		Type:     queue.UserCreated,
		Entity:   "user",
		EntityID: u.ID,
		VICID:    u.VICID,
		Data:     map[string]any{"email": u.Email, "role_id": u.RoleID},
	})
	return c.JSON(http.StatusCreated, u)
}

// Update applies the fields present in the body (PUT and PATCH alike).
// A new password or deactivation signs the user out everywhere.
func (h *UserHandler) Update(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	var req updateUserReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	ctx, cancel := dbContext(c)
	defer cancel()
	u, err := h.Users.GetByID(ctx, id)
	if err != nil {
		return respondError(c, err, "user")
	}
	wasActive, wasRole := u.Active, u.RoleID

	if req.Name != nil {
		if u.Name = strings.TrimSpace(*req.Name); u.Name == "" {
			return badRequest(c, "name cannot be empty")
		}
	}
	if req.Email != nil {
		if u.Email = strings.ToLower(strings.TrimSpace(*req.Email)); !utils.ValidEmail(u.Email) {
			return badRequest(c, "invalid email")
		}
	}
	if req.RoleID != nil {
		if *req.RoleID == 0 {
			return badRequest(c, "invalid role_id")
		}
		u.RoleID = *req.RoleID
	}
	req.VICID.apply(&u.VICID)
	if req.Active != nil {
		u.Active = *req.Active
	}
	if req.Password != nil {
		if err := utils.CheckPassword(*req.Password); err != nil {
			return badRequest(c, err.Error())
		}
	}
	if self, err := getUserID(c); err == nil && self == id && (!u.Active || u.RoleID < wasRole) {
		return badRequest(c, "cannot deactivate or demote your own account")
	}

	if err := h.Users.Update(ctx, u); err != nil {
		return respondError(c, err, "user")
	}
	signOut := false
	if req.Password != nil {
		if err := h.Users.SetPassword(ctx, id, *req.Password, h.BcryptCost); err != nil {
			return respondError(c, err, "user")
		}
		signOut = true
	}
	if wasActive && !u.Active {
		signOut = true
		emit(c, h.Events, queue.DomainEvent{Type: queue.UserDeactivated, Entity: "user", EntityID: id, VICID: u.VICID})
	}
	if signOut {
		if err := h.Tokens.RevokeAllForUser(ctx, id); err != nil {
			return respondError(c, err, "token")
		}
	}
	fresh, err := h.Users.GetByID(ctx, id)
	if err != nil {
		return respondError(c, err, "user")
	}
	return c.JSON(http.StatusOK, fresh)
}

// Delete deactivates the user; ?hard=true removes the row instead.
// Admins cannot delete themselves.
func (h *UserHandler) Delete(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	if self, err := getUserID(c); err == nil && self == id {
		return badRequest(c, "cannot delete your own account")
	}
	hard := false
	if b := queryBool(c, "hard"); b != nil {
		hard = *b
	}
	ctx, cancel := dbContext(c)
	defer cancel()
	u, err := h.Users.GetByID(ctx, id)
	if err != nil {
		return respondError(c, err, "user")
	}
	if hard {
		err = h.Users.Delete(ctx, id)
	} else {
		err = h.Users.Deactivate(ctx, id)
	}
	if err != nil {
		return respondError(c, err, "user")
	}
	// hard deletes cascade the tokens
	if !hard {
		if err := h.Tokens.RevokeAllForUser(ctx, id); err != nil && !errors.Is(err, repository.ErrNotFound) {
			return respondError(c, err, "token")
		}
	}
	emit(c, h.Events, queue.DomainEvent{
		Type:     queue.UserDeactivated,
		Entity:   "user",
		EntityID: id,
		VICID:    u.VICID,
		Data:     map[string]any{"hard": hard},
	})
	return c.NoContent(http.StatusNoContent)
}
