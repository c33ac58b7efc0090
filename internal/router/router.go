package router // router defines how HTTP routes are registered for the API

import (
	"database/sql"

	"github.com/labstack/echo/v4"

	"github.com/opustrack/opustrack/internal/handler"
	"github.com/opustrack/opustrack/internal/middleware"
	"github.com/opustrack/opustrack/internal/utils"
)

// Guard is the middleware every protected route shares.
type Guard struct {
	Secret    string
	Cookie    string
	RateLimit echo.MiddlewareFunc
	Access    echo.MiddlewareFunc
}

// authenticated returns the middleware chain of a protected group: rate
// limit after the identity is known so keys can include the user.
func (g Guard) authenticated() []echo.MiddlewareFunc {
	mws := []echo.MiddlewareFunc{middleware.Authenticate(g.Secret, g.Cookie)}
	if g.RateLimit != nil {
		mws = append(mws, g.RateLimit)
	}
	if g.Access != nil {
		mws = append(mws, g.Access)
	}
	return mws
}

// RegisterRoutes registers the probes. They bypass auth and rate limits.
func RegisterRoutes(e *echo.Echo, db *sql.DB) {
	e.GET("/healthz", handler.Health)
	e.GET("/readyz", handler.Ready(db))
}

// RegisterFiles serves uploaded attachments to callers who may see the
// owning incident. Browsers authenticate with the session cookie.
func RegisterFiles(e *echo.Echo, in *handler.IncidentHandler, g Guard) {
	files := e.Group(utils.FilesRoute, g.authenticated()...)
	files.GET("/:key", in.ServeFile)
}

// RegisterAuth registers the token and cookie session endpoints under
// /v1/auth plus the access check used by the dashboard.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, g Guard) {
	pub := e.Group("/v1/auth")
	if g.RateLimit != nil {
		pub.Use(g.RateLimit)
	}
	pub.POST("/login", a.Login)
	// rotates the refresh token
	pub.POST("/refresh", a.Refresh)
	pub.POST("/refresh-access", a.RefreshAccess)
	pub.POST("/logout", a.Logout)

	pub.POST("/session", a.SessionLogin)
	pub.POST("/session/refresh", a.SessionRefresh)
	pub.DELETE("/session", a.SessionLogout)

	e.GET("/v1/access/check", a.AccessCheck, middleware.OptionalAuth(g.Secret, g.Cookie))

	me := e.Group("/v1/me", g.authenticated()...)
	me.GET("", a.Me)
	me.PUT("/password", a.ChangePassword)
}
