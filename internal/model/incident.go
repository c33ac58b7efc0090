package model

import "time"

type Incident struct {
    ID          uint64     `json:"id"`
    VICID       uint64     `json:"vic_id"`
    StatusID    uint64     `json:"status_id"`
    Title       string     `json:"title"`
    Description string     `json:"description"`
    ReportedBy  uint64     `json:"reported_by"`
    ClosedAt    *time.Time `json:"closed_at"`
    CreatedAt   time.Time  `json:"created_at"`
    UpdatedAt   time.Time  `json:"updated_at"`

    StatusName string `json:"status,omitempty"`
    VICName    string `json:"vic,omitempty"`
}

// IncidentAttachment is a file uploaded against an incident. FileKey is
// the name under the upload directory; URL is filled in by handlers.
type IncidentAttachment struct {
    ID           uint64    `json:"id"`
    IncidentID   uint64    `json:"incident_id"`
    FileKey      string    `json:"file_key"`
    OriginalName string    `json:"original_name"`
    ContentType  string    `json:"content_type"`
    SizeBytes    int64     `json:"size_bytes"`
    UploadedBy   uint64    `json:"uploaded_by"`
    CreatedAt    time.Time `json:"created_at"`
    URL          string    `json:"url,omitempty"`
}
