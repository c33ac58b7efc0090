package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/opustrack/opustrack/internal/middleware"
	"github.com/opustrack/opustrack/internal/model"
	"github.com/opustrack/opustrack/internal/queue"
	"github.com/opustrack/opustrack/internal/repository"
	"github.com/opustrack/opustrack/internal/service"
)

// WorkOrderHandler serves work orders and the parts booked on them. A work
// order belongs to the VIC of its incident.
type WorkOrderHandler struct {
	WorkOrders WorkOrderStore
	Incidents  IncidentStore
	Events     service.EventPublisher
}

func NewWorkOrderHandler(w WorkOrderStore, i IncidentStore, ev service.EventPublisher) *WorkOrderHandler {
	return &WorkOrderHandler{WorkOrders: w, Incidents: i, Events: ev}
}

type workOrderReq struct {
	IncidentID  uint64           `json:"incident_id"`
	AssignedTo  optional[uint64] `json:"assigned_to"`
	Description *string          `json:"description"`
	Status      *string          `json:"status"`
}

type addPartReq struct {
	PartID   uint64 `json:"part_id"`
	Quantity uint32 `json:"quantity"`
}

func (h *WorkOrderHandler) load(c echo.Context, id uint64) (*model.WorkOrder, error) {
	ctx, cancel := dbContext(c)
	defer cancel()
	wo, err := h.WorkOrders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canAccessVIC(middleware.ClaimsFrom(c), wo.VICID) {
		return nil, repository.ErrNotFound
	}
	return wo, nil
}

func workOrderEvent(typ string, wo *model.WorkOrder) queue.DomainEvent {
	vic := wo.VICID
	return queue.DomainEvent{
		Type:     typ,
		Entity:   "work_order",
		EntityID: wo.ID,
		VICID:    &vic,
		Data:     map[string]any{"incident_id": wo.IncidentID, "status": wo.Status},
	}
}

func normStatus(s string) string { return strings.ToUpper(strings.TrimSpace(s)) }

// List supports ?incident_id, ?status, ?assigned_to, ?vic_id (supervisors)
// and pagination.
func (h *WorkOrderHandler) List(c echo.Context) error {
	p := pageFrom(c)
	scope, ok := tenantScope(middleware.ClaimsFrom(c))
	if !ok {
		return listResponse(c, []*model.WorkOrder{}, 0, p)
	}
	f := repository.WorkOrderFilter{VICID: scope}
	var err error
	if f.IncidentID, err = queryUint(c, "incident_id"); err != nil {
		return badRequest(c, "invalid incident_id")
	}
	if f.AssignedTo, err = queryUint(c, "assigned_to"); err != nil {
		return badRequest(c, "invalid assigned_to")
	}
	if s := c.QueryParam("status"); s != "" {
		if f.Status = normStatus(s); !model.ValidWorkOrderStatus(f.Status) {
			return badRequest(c, "invalid status")
		}
	}
	if scope == nil {
		vic, err := queryUint(c, "vic_id")
		if err != nil {
			return badRequest(c, "invalid vic_id")
		}
		if vic != 0 {
			f.VICID = &vic
		}
	}
	ctx, cancel := dbContext(c)
	defer cancel()
	items, total, err := h.WorkOrders.List(ctx, f, p)
	if err != nil {
		return respondError(c, err, "work order")
	}
	return listResponse(c, items, total, p)
}

func (h *WorkOrderHandler) Get(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	wo, err := h.load(c, id)
	if err != nil {
		return respondError(c, err, "work order")
	}
	return c.JSON(http.StatusOK, wo)
}

// Create opens a work order against an incident the caller can see.
func (h *WorkOrderHandler) Create(c echo.Context) error {
	var req workOrderReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if req.IncidentID == 0 {
		return badRequest(c, "incident_id required")
	}
	wo := &model.WorkOrder{IncidentID: req.IncidentID, Status: model.WorkOrderOpen, AssignedTo: req.AssignedTo.Value}
	if req.Description != nil {
		wo.Description = strings.TrimSpace(*req.Description)
	}
	if wo.Description == "" {
		return badRequest(c, "description required")
	}
	if req.Status != nil {
		if wo.Status = normStatus(*req.Status); !model.ValidWorkOrderStatus(wo.Status) {
			return badRequest(c, "invalid status")
		}
	}

	ctx, cancel := dbContext(c)
	defer cancel()
	in, err := h.Incidents.GetByID(ctx, req.IncidentID)
	if err != nil {
		return respondError(c, err, "incident")
	}
	if !canAccessVIC(middleware.ClaimsFrom(c), in.VICID) {
		return respondError(c, repository.ErrNotFound, "incident")
	}
	if err := h.WorkOrders.Create(ctx, wo); err != nil {
		return respondError(c, err, "work order")
	}
	emit(c, h.Events, workOrderEvent(queue.WorkOrderCreated, wo))
	return c.JSON(http.StatusCreated, wo)
}

// Update applies the fields present in the body. Any status transition is
// allowed; the incident of a work order is fixed.
func (h *WorkOrderHandler) Update(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	var req workOrderReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	wo, err := h.load(c, id)
	if err != nil {
		return respondError(c, err, "work order")
	}
	if req.IncidentID != 0 && req.IncidentID != wo.IncidentID {
		return badRequest(c, "incident_id cannot be changed")
	}
	prev := wo.Status
	if req.Description != nil {
		if wo.Description = strings.TrimSpace(*req.Description); wo.Description == "" {
			return badRequest(c, "description cannot be empty")
		}
	}
	if req.Status != nil {
		if wo.Status = normStatus(*req.Status); !model.ValidWorkOrderStatus(wo.Status) {
			return badRequest(c, "invalid status")
		}
	}
	req.AssignedTo.apply(&wo.AssignedTo)

	ctx, cancel := dbContext(c)
	defer cancel()
	if err := h.WorkOrders.Update(ctx, wo); err != nil {
		return respondError(c, err, "work order")
	}
	ev := workOrderEvent(queue.WorkOrderUpdated, wo)
	ev.Data["previous_status"] = prev
	emit(c, h.Events, ev)
	return c.JSON(http.StatusOK, wo)
}

// Delete removes the work order; booked parts go back to stock.
func (h *WorkOrderHandler) Delete(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	wo, err := h.load(c, id)
	if err != nil {
		return respondError(c, err, "work order")
	}
	ctx, cancel := dbContext(c)
	defer cancel()
	if err := h.WorkOrders.Delete(ctx, id); err != nil {
		return respondError(c, err, "work order")
	}
	emit(c, h.Events, workOrderEvent(queue.WorkOrderDeleted, wo))
	return c.NoContent(http.StatusNoContent)
}

// AddPart books stock on the work order. A part that drops to its reorder
// threshold raises part.stock_low.
func (h *WorkOrderHandler) AddPart(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	var req addPartReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if req.PartID == 0 || req.Quantity == 0 {
		return badRequest(c, "part_id and a positive quantity are required")
	}
	wo, err := h.load(c, id)
	if err != nil {
		return respondError(c, err, "work order")
	}
	ctx, cancel := dbContext(c)
	defer cancel()
	part, err := h.WorkOrders.AddPart(ctx, id, req.PartID, req.Quantity)
	if err != nil {
		return respondError(c, err, "part")
	}
	if part.LowStock() {
		vic := wo.VICID
		emit(c, h.Events, queue.DomainEvent{
			Type:     queue.PartStockLow,
			Entity:   "part",
			EntityID: part.ID,
			VICID:    &vic,
			Data: map[string]any{
				"sku":           part.SKU,
				"quantity":      part.Quantity,
				"min_quantity":  part.MinQuantity,
				"work_order_id": id,
			},
		})
	}
	fresh, err := h.WorkOrders.GetByID(ctx, id)
	if err != nil {
		return respondError(c, err, "work order")
	}
	return c.JSON(http.StatusOK, fresh)
}

func (h *WorkOrderHandler) RemovePart(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	partID, err := parseID(c, "part_id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	if _, err := h.load(c, id); err != nil {
		return respondError(c, err, "work order")
	}
	ctx, cancel := dbContext(c)
	defer cancel()
	if err := h.WorkOrders.RemovePart(ctx, id, partID); err != nil {
		return respondError(c, err, "part")
	}
	return c.NoContent(http.StatusNoContent)
}
