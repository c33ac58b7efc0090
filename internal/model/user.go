package model

import "time"

// Role levels. The role id doubles as its privilege level: a higher id
// grants everything a lower id does.
const (
    RoleTechnician uint8 = 1
    RoleInspector  uint8 = 2
    RoleSupervisor uint8 = 3
    RoleAdmin      uint8 = 4
)

// User represents a row of the `users` table. VICID is nil for staff
// that are not bound to a single inspection center.
type User struct {
    ID           uint64    `json:"id"`
    Name         string    `json:"name"`
    Email        string    `json:"email"`
    PasswordHash string    `json:"-"`
    RoleID       uint8     `json:"role_id"`
    VICID        *uint64   `json:"vic_id"`
    Active       bool      `json:"active"`
    CreatedAt    time.Time `json:"created_at"`
    UpdatedAt    time.Time `json:"updated_at"`

    // Populated by joins on read paths.
    RoleName    string `json:"role,omitempty"`
    DefaultPath string `json:"default_path,omitempty"`
}

// Role maps a level to a name and the dashboard page users of that role
// land on after login.
type Role struct {
    ID          uint8     `json:"id"`
    Name        string    `json:"name"`
    DefaultPath string    `json:"default_path"`
    CreatedAt   time.Time `json:"created_at"`
    UpdatedAt   time.Time `json:"updated_at"`
}
