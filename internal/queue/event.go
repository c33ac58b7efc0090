// Package queue defines message payloads exchanged over the message broker
// and the consumer that turns them into an audit trail.
package queue

import "time"

// Event types published by the API.
const (
    IncidentCreated  = "incident.created"
    IncidentUpdated  = "incident.updated"
    IncidentDeleted  = "incident.deleted"
    WorkOrderCreated = "work_order.created"
    WorkOrderUpdated = "work_order.updated"
    WorkOrderDeleted = "work_order.deleted"
    PartStockLow     = "part.stock_low"
    UserCreated      = "user.created"
    UserDeactivated  = "user.deactivated"
)

// DomainEvent is published after a successful write. It carries enough
// context for downstream consumers (audit log, notifications) to act
// without querying the primary database.
type DomainEvent struct {
    Type       string         `json:"type"`
    Entity     string         `json:"entity"`
    EntityID   uint64         `json:"entity_id"`
    ActorID    uint64         `json:"actor_id"`
    VICID      *uint64        `json:"vic_id,omitempty"`
    Data       map[string]any `json:"data,omitempty"`
    OccurredAt time.Time      `json:"occurred_at"`
}
