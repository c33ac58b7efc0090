package handler // handler defines http handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/opustrack/opustrack/internal/middleware"
	"github.com/opustrack/opustrack/internal/model"
	"github.com/opustrack/opustrack/internal/repository"
	"github.com/opustrack/opustrack/internal/utils"
)

const dbTimeout = 5 * time.Second

func dbContext(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), dbTimeout)
}

// errBadID is returned by parseID for non-numeric or zero ids.
var errBadID = errors.New("invalid id")

// parseID reads a positive numeric path parameter.
func parseID(c echo.Context, name string) (uint64, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, errBadID
	}
	return id, nil
}

// getUserID extracts the caller's id from the verified claims.
func getUserID(c echo.Context) (uint64, error) {
	cl := middleware.ClaimsFrom(c)
	if cl == nil {
		return 0, errors.New("no claims in context")
	}
	return cl.UserID()
}

// respondError maps repository sentinels to HTTP statuses. what names the
// resource for 404 messages ("incident not found").
func respondError(c echo.Context, err error, what string) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": what + " not found"})
	case errors.Is(err, repository.ErrInsufficientStock):
		return c.JSON(http.StatusConflict, echo.Map{"error": "insufficient stock"})
	case errors.Is(err, repository.ErrConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": what + " already exists"})
	case errors.Is(err, repository.ErrInvalidReference):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reference"})
	case errors.Is(err, context.DeadlineExceeded):
		return c.JSON(http.StatusGatewayTimeout, echo.Map{"error": "database timeout"})
	}
	log.Printf("handler: %s %s: %v", c.Request().Method, c.Path(), err)
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
}

// pageFrom reads ?page and ?page_size; invalid values fall back to the defaults.
func pageFrom(c echo.Context) repository.Page {
	p, _ := strconv.Atoi(c.QueryParam("page"))
	s, _ := strconv.Atoi(c.QueryParam("page_size"))
	return repository.Page{Page: p, PageSize: s}.Normalize()
}

func listResponse(c echo.Context, items any, total int64, p repository.Page) error {
	return c.JSON(http.StatusOK, echo.Map{
		"items":     items,
		"total":     total,
		"page":      p.Page,
		"page_size": p.PageSize,
	})
}

// queryUint parses an optional unsigned query parameter; absent means 0.
func queryUint(c echo.Context, name string) (uint64, error) {
	v := c.QueryParam(name)
	if v == "" {
		return 0, nil
	}
	return strconv.ParseUint(v, 10, 64)
}

func queryBool(c echo.Context, name string) *bool {
	v := c.QueryParam(name)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil
	}
	return &b
}

// tenantScope returns the VIC a caller is confined to. Supervisors and
// above see every VIC (nil, true). Lower roles without a VIC see nothing
// (nil, false).
func tenantScope(cl *utils.Claims) (*uint64, bool) {
	if cl.RoleID >= model.RoleSupervisor {
		return nil, true
	}
	if cl.VICID == nil {
		return nil, false
	}
	v := *cl.VICID
	return &v, true
}

// canAccessVIC reports whether the caller may touch rows of vicID.
func canAccessVIC(cl *utils.Claims, vicID uint64) bool {
	scope, ok := tenantScope(cl)
	if !ok {
		return false
	}
	return scope == nil || *scope == vicID
}

// identityOf shapes a user row into the token identity.
func identityOf(u *model.User) utils.Identity {
	return utils.Identity{
		UserID:      u.ID,
		Name:        u.Name,
		Email:       u.Email,
		RoleID:      u.RoleID,
		RoleName:    u.RoleName,
		DefaultPath: u.DefaultPath,
		VICID:       u.VICID,
	}
}
