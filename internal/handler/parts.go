package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/opustrack/opustrack/internal/model"
	"github.com/opustrack/opustrack/internal/queue"
	"github.com/opustrack/opustrack/internal/repository"
	"github.com/opustrack/opustrack/internal/service"
)

// PartHandler serves the parts inventory. Reads need INSPECTOR, writes
// SUPERVISOR; both are enforced by the router.
type PartHandler struct {
	Parts  PartStore
	Events service.EventPublisher
}

func NewPartHandler(p PartStore, ev service.EventPublisher) *PartHandler {
	return &PartHandler{Parts: p, Events: ev}
}

type partReq struct {
	SKU           *string `json:"sku"`
	Name          *string `json:"name"`
	Description   *string `json:"description"`
	Quantity      *uint32 `json:"quantity"`
	MinQuantity   *uint32 `json:"min_quantity"`
	UnitCostCents *uint64 `json:"unit_cost_cents"`
}

func applyPart(p *model.Part, req partReq) bool {
	if req.SKU != nil {
		p.SKU = strings.ToUpper(strings.TrimSpace(*req.SKU))
	}
	if req.Name != nil {
		p.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		p.Description = strings.TrimSpace(*req.Description)
	}
	if req.Quantity != nil {
		p.Quantity = *req.Quantity
	}
	if req.MinQuantity != nil {
		p.MinQuantity = *req.MinQuantity
	}
	if req.UnitCostCents != nil {
		p.UnitCostCents = *req.UnitCostCents
	}
	return p.SKU != "" && p.Name != ""
}

func (h *PartHandler) stockLow(c echo.Context, p *model.Part) {
	if !p.LowStock() {
		return
	}
	emit(c, h.Events, queue.DomainEvent{
		Type:     queue.PartStockLow,
		Entity:   "part",
		EntityID: p.ID,
		Data:     map[string]any{"sku": p.SKU, "quantity": p.Quantity, "min_quantity": p.MinQuantity},
	})
}

// List supports ?q (sku or name), ?low_stock=true and pagination.
func (h *PartHandler) List(c echo.Context) error {
	f := repository.PartFilter{Q: c.QueryParam("q")}
	if b := queryBool(c, "low_stock"); b != nil {
		f.LowStock = *b
	}
	p := pageFrom(c)
	ctx, cancel := dbContext(c)
	defer cancel()
	items, total, err := h.Parts.List(ctx, f, p)
	if err != nil {
		return respondError(c, err, "part")
	}
	return listResponse(c, items, total, p)
}

func (h *PartHandler) Get(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	ctx, cancel := dbContext(c)
	defer cancel()
	p, err := h.Parts.GetByID(ctx, id)
	if err != nil {
		return respondError(c, err, "part")
	}
	return c.JSON(http.StatusOK, p)
}

func (h *PartHandler) Create(c echo.Context) error {
	var req partReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	p := &model.Part{}
	if !applyPart(p, req) {
		return badRequest(c, "sku and name are required")
	}
	ctx, cancel := dbContext(c)
	defer cancel()
	if err := h.Parts.Create(ctx, p); err != nil {
		return respondError(c, err, "part")
	}
	if fresh, err := h.Parts.GetByID(ctx, p.ID); err == nil {
		p = fresh
	}
	return c.JSON(http.StatusCreated, p)
}

// Update applies the fields present in the body. Stock is written only when
// the body sets quantity, so a rename cannot undo a concurrent booking.
func (h *PartHandler) Update(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	var req partReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	ctx, cancel := dbContext(c)
	defer cancel()
	p, err := h.Parts.GetByID(ctx, id)
	if err != nil {
		return respondError(c, err, "part")
	}
	wasLow := p.LowStock()
	if !applyPart(p, req) {
		return badRequest(c, "sku and name cannot be empty")
	}
	if err := h.Parts.Update(ctx, p, req.Quantity != nil); err != nil {
		return respondError(c, err, "part")
	}
	if fresh, err := h.Parts.GetByID(ctx, id); err == nil {
		p = fresh
	}
	if !wasLow {
		h.stockLow(c, p)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *PartHandler) Delete(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	ctx, cancel := dbContext(c)
	defer cancel()
	if err := h.Parts.Delete(ctx, id); err != nil {
		return respondError(c, err, "part")
	}
	return c.NoContent(http.StatusNoContent)
}
