package middleware

import (
    "net/http"
    "strings"

    "github.com/labstack/echo/v4"

    "github.com/opustrack/opustrack/internal/utils"
)

// TokenFromRequest extracts the raw access token: the Authorization bearer
// first, then the session cookie. An empty cookieName disables cookies.
func TokenFromRequest(c echo.Context, cookieName string) string {
    if auth := c.Request().Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
        return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
    }
    if cookieName != "" {
        if ck, err := c.Cookie(cookieName); err == nil {
            return ck.Value
        }
    }
    return ""
}

// Authenticate validates the access token and stores its claims in the
// context under ClaimsKey. Requests without a valid token are rejected with 401.
func Authenticate(secret, cookieName string) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            raw := TokenFromRequest(c, cookieName)
            if raw == "" {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
            }
            claims, err := utils.ParseAccessToken(secret, raw)
            if err != nil {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
            }
            c.Set(ClaimsKey, claims)
            return next(c)
        }
    }
}

// OptionalAuth is Authenticate without the rejection: a valid token is
// recorded, anything else is ignored.
func OptionalAuth(secret, cookieName string) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            if raw := TokenFromRequest(c, cookieName); raw != "" {
                if claims, err := utils.ParseAccessToken(secret, raw); err == nil {
                    c.Set(ClaimsKey, claims)
                }
            }
            return next(c)
        }
    }
}
