package router

import (
	"github.com/labstack/echo/v4"

	"github.com/opustrack/opustrack/internal/handler"
	"github.com/opustrack/opustrack/internal/middleware"
	"github.com/opustrack/opustrack/internal/model"
)

// RegisterCatalog registers the read-only lookup endpoints. Responses are
// shared by every caller, so they go through the response cache.
func RegisterCatalog(e *echo.Echo, h *handler.CatalogHandler, roles *handler.RoleHandler, g Guard, cache echo.MiddlewareFunc) {
	mws := g.authenticated()
	if cache != nil {
		mws = append(mws, cache)
	}
	cat := e.Group("/v1/catalog", mws...)
	cat.GET("/states", h.ListStates)
	cat.GET("/states/:id", h.GetState)
	cat.GET("/vics", h.ListVICs)
	cat.GET("/vics/:id", h.GetVIC)
	cat.GET("/incident-statuses", h.ListIncidentStatuses)
	cat.GET("/incident-statuses/:id", h.GetIncidentStatus)
	cat.GET("/roles", roles.List)
}

// RegisterIncidents registers incident, attachment and work order routes.
// Every role may use them within its VIC; deletes need SUPERVISOR.
func RegisterIncidents(e *echo.Echo, in *handler.IncidentHandler, wo *handler.WorkOrderHandler, g Guard) {
	supervisor := middleware.RequireRole(model.RoleSupervisor)

	inc := e.Group("/v1/incidents", g.authenticated()...)
	inc.GET("", in.List)
	inc.POST("", in.Create)
	inc.GET("/:id", in.Get)
	inc.PUT("/:id", in.Update)
	inc.PATCH("/:id", in.Update)
	inc.DELETE("/:id", in.Delete, supervisor)

	inc.GET("/:id/attachments", in.ListAttachments)
	inc.POST("/:id/attachments", in.UploadAttachment)
	inc.DELETE("/:id/attachments/:aid", in.DeleteAttachment)

	w := e.Group("/v1/work-orders", g.authenticated()...)
	w.GET("", wo.List)
	w.POST("", wo.Create)
	w.GET("/:id", wo.Get)
	w.PUT("/:id", wo.Update)
	w.PATCH("/:id", wo.Update)
	w.DELETE("/:id", wo.Delete, supervisor)
	w.POST("/:id/parts", wo.AddPart)
	w.DELETE("/:id/parts/:part_id", wo.RemovePart)
}

// RegisterParts registers the inventory. Reading is for INSPECTOR and up
// (enforced by the access table), changing stock for SUPERVISOR and up.
func RegisterParts(e *echo.Echo, h *handler.PartHandler, g Guard) {
	supervisor := middleware.RequireRole(model.RoleSupervisor)

	p := e.Group("/v1/parts", g.authenticated()...)
	p.GET("", h.List)
	p.GET("/:id", h.Get)
	p.POST("", h.Create, supervisor)
	p.PUT("/:id", h.Update, supervisor)
	p.PATCH("/:id", h.Update, supervisor)
	p.DELETE("/:id", h.Delete, supervisor)
}
