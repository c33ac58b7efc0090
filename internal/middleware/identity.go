package middleware

// identity.go holds the context keys shared by the auth, role, access and
// rate-limit middlewares and the handlers behind them.

import (
    "github.com/labstack/echo/v4"

    "github.com/opustrack/opustrack/internal/utils"
)

const ClaimsKey = "claims"

// ClaimsFrom returns the verified claims stored by Authenticate, or nil.
func ClaimsFrom(c echo.Context) *utils.Claims {
    cl, _ := c.Get(ClaimsKey).(*utils.Claims)
    return cl
}

// userID is the rate-limit identity of the request: the token subject, or
// "guest" for unauthenticated calls.
func userID(c echo.Context) string {
    if cl := ClaimsFrom(c); cl != nil && cl.Subject != "" {
        return cl.Subject
    }
    return "guest"
}
