package model

import "time"

// State is a federal state; VICs are grouped by state.
type State struct {
    ID        uint64    `json:"id"`
    Code      string    `json:"code"`
    Name      string    `json:"name"`
    CreatedAt time.Time `json:"created_at"`
    UpdatedAt time.Time `json:"updated_at"`
}

// VIC is a vehicle inspection center, the tenant boundary for incidents
// and work orders.
type VIC struct {
    ID        uint64    `json:"id"`
    Code      string    `json:"code"`
    Name      string    `json:"name"`
    StateID   uint64    `json:"state_id"`
    Address   string    `json:"address"`
    Active    bool      `json:"active"`
    CreatedAt time.Time `json:"created_at"`
    UpdatedAt time.Time `json:"updated_at"`
}

// IncidentStatus is a configurable incident status. Moving an incident
// into a final status closes it.
type IncidentStatus struct {
    ID        uint64    `json:"id"`
    Name      string    `json:"name"`
    IsFinal   bool      `json:"is_final"`
    SortOrder int       `json:"sort_order"`
    CreatedAt time.Time `json:"created_at"`
    UpdatedAt time.Time `json:"updated_at"`
}
