package router

import (
	"github.com/labstack/echo/v4"

	"github.com/opustrack/opustrack/internal/handler"
	"github.com/opustrack/opustrack/internal/middleware"
	"github.com/opustrack/opustrack/internal/model"
)

// RegisterAdmin registers catalog maintenance (SUPERVISOR) and user and
// role management (ADMIN) under /v1/admin. The role checks repeat what the
// access table says so a permissive table override cannot open them up.
func RegisterAdmin(e *echo.Echo, cat *handler.CatalogHandler, users *handler.UserHandler, roles *handler.RoleHandler, g Guard) {
	mws := append(g.authenticated(), middleware.RequireRole(model.RoleSupervisor))
	adm := e.Group("/v1/admin", mws...)

	// ---- Catalog ----
	adm.POST("/states", cat.CreateState)
	adm.GET("/states/:id", cat.GetState)
	adm.PUT("/states/:id", cat.UpdateState)
	adm.PATCH("/states/:id", cat.UpdateState)
	adm.DELETE("/states/:id", cat.DeleteState)

	adm.POST("/vics", cat.CreateVIC)
	adm.GET("/vics/:id", cat.GetVIC)
	adm.PUT("/vics/:id", cat.UpdateVIC)
	adm.PATCH("/vics/:id", cat.UpdateVIC)
	adm.DELETE("/vics/:id", cat.DeleteVIC)

	adm.POST("/incident-statuses", cat.CreateIncidentStatus)
	adm.GET("/incident-statuses/:id", cat.GetIncidentStatus)
	adm.PUT("/incident-statuses/:id", cat.UpdateIncidentStatus)
	adm.PATCH("/incident-statuses/:id", cat.UpdateIncidentStatus)
	adm.DELETE("/incident-statuses/:id", cat.DeleteIncidentStatus)

	admin := middleware.RequireRole(model.RoleAdmin)

	// ---- Users ----
	u := adm.Group("/users", admin)
	u.GET("", users.List)
	u.POST("", users.Create)
	u.GET("/:id", users.Get)
	u.PUT("/:id", users.Update)
	u.PATCH("/:id", users.Update)
	u.DELETE("/:id", users.Delete)

	// ---- Roles ----
	r := adm.Group("/roles", admin)
	r.GET("", roles.List)
	r.POST("", roles.Create)
	r.GET("/:id", roles.Get)
	r.PUT("/:id", roles.Update)
	r.PATCH("/:id", roles.Update)
	r.DELETE("/:id", roles.Delete)
}
