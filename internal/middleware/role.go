package middleware // middleware provides shared request processing for handlers

import (
    "net/http"

    "github.com/labstack/echo/v4"

    "github.com/opustrack/opustrack/internal/access"
)

// RequireRole rejects callers whose role level is below min with 403. It
// assumes Authenticate ran first; a missing identity is a 401.
func RequireRole(min uint8) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            cl := ClaimsFrom(c)
            if cl == nil {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
            }
            if cl.RoleID < min {
                return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
            }
            return next(c)
        }
    }
}

// AccessGuard enforces the route table on the request path.
func AccessGuard(tbl *access.Table) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            cl := ClaimsFrom(c)
            if cl == nil {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
            }
            if !tbl.Allowed(c.Request().URL.Path, cl.RoleID) {
                return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
            }
            return next(c)
        }
    }
}
