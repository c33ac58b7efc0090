package model

import "time"

const (
    WorkOrderOpen       = "OPEN"
    WorkOrderInProgress = "IN_PROGRESS"
    WorkOrderCompleted  = "COMPLETED"
    WorkOrderCancelled  = "CANCELLED"
)

// ValidWorkOrderStatus reports whether s is a known work order status.
func ValidWorkOrderStatus(s string) bool {
    switch s {
    case WorkOrderOpen, WorkOrderInProgress, WorkOrderCompleted, WorkOrderCancelled:
        return true
    }
    return false
}

type WorkOrder struct {
    ID          uint64     `json:"id"`
    IncidentID  uint64     `json:"incident_id"`
    AssignedTo  *uint64    `json:"assigned_to"`
    Description string     `json:"description"`
    Status      string     `json:"status"`
    CompletedAt *time.Time `json:"completed_at"`
    CreatedAt   time.Time  `json:"created_at"`
    UpdatedAt   time.Time  `json:"updated_at"`

    // VICID comes from the parent incident and is used for tenant checks.
    VICID uint64          `json:"vic_id"`
    Parts []WorkOrderPart `json:"parts,omitempty"`
}

// WorkOrderPart records stock consumed by a work order.
type WorkOrderPart struct {
    WorkOrderID uint64 `json:"work_order_id"`
    PartID      uint64 `json:"part_id"`
    SKU         string `json:"sku,omitempty"`
    Name        string `json:"name,omitempty"`
    Quantity    uint32 `json:"quantity"`
}
