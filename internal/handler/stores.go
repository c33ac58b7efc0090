package handler

// Storage contracts the handlers depend on. The repository package
// satisfies them against MySQL; tests use in-memory fakes.

import (
	"context"
	"time"

	"github.com/opustrack/opustrack/internal/model"
	"github.com/opustrack/opustrack/internal/repository"
)

type UserStore interface {
	Create(ctx context.Context, u *model.User, password string, cost int) error
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByID(ctx context.Context, id uint64) (*model.User, error)
	List(ctx context.Context, f repository.UserFilter, p repository.Page) ([]*model.User, int64, error)
	Update(ctx context.Context, u *model.User) error
	SetPassword(ctx context.Context, id uint64, password string, cost int) error
	Deactivate(ctx context.Context, id uint64) error
	Delete(ctx context.Context, id uint64) error
}

type TokenStore interface {
	StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error
	ValidateRefresh(ctx context.Context, tokenHash string) (uint64, error)
	RevokeByHash(ctx context.Context, tokenHash string) error
	RevokeAllForUser(ctx context.Context, userID uint64) error
}

type RoleStore interface {
	List(ctx context.Context) ([]*model.Role, error)
	GetByID(ctx context.Context, id uint8) (*model.Role, error)
	Create(ctx context.Context, r *model.Role) error
	Update(ctx context.Context, r *model.Role) error
	Delete(ctx context.Context, id uint8) error
}

type CatalogStore interface {
	ListStates(ctx context.Context) ([]*model.State, error)
	GetState(ctx context.Context, id uint64) (*model.State, error)
	CreateState(ctx context.Context, s *model.State) error
	UpdateState(ctx context.Context, s *model.State) error
	DeleteState(ctx context.Context, id uint64) error

	ListVICs(ctx context.Context, stateID uint64) ([]*model.VIC, error)
	GetVIC(ctx context.Context, id uint64) (*model.VIC, error)
	CreateVIC(ctx context.Context, v *model.VIC) error
	UpdateVIC(ctx context.Context, v *model.VIC) error
	DeleteVIC(ctx context.Context, id uint64) error

	ListIncidentStatuses(ctx context.Context) ([]*model.IncidentStatus, error)
	GetIncidentStatus(ctx context.Context, id uint64) (*model.IncidentStatus, error)
	DefaultIncidentStatus(ctx context.Context) (*model.IncidentStatus, error)
	CreateIncidentStatus(ctx context.Context, s *model.IncidentStatus) error
	UpdateIncidentStatus(ctx context.Context, s *model.IncidentStatus) error
	DeleteIncidentStatus(ctx context.Context, id uint64) error
}

type IncidentStore interface {
	Create(ctx context.Context, in *model.Incident) error
	GetByID(ctx context.Context, id uint64) (*model.Incident, error)
	List(ctx context.Context, f repository.IncidentFilter, p repository.Page) ([]*model.Incident, int64, error)
	Update(ctx context.Context, in *model.Incident) error
	Delete(ctx context.Context, id uint64) error

	AddAttachment(ctx context.Context, a *model.IncidentAttachment) error
	ListAttachments(ctx context.Context, incidentID uint64) ([]*model.IncidentAttachment, error)
	GetAttachment(ctx context.Context, incidentID, id uint64) (*model.IncidentAttachment, error)
	GetAttachmentByKey(ctx context.Context, key string) (*model.IncidentAttachment, error)
	DeleteAttachment(ctx context.Context, incidentID, id uint64) error
}

type WorkOrderStore interface {
	Create(ctx context.Context, wo *model.WorkOrder) error
	GetByID(ctx context.Context, id uint64) (*model.WorkOrder, error)
	List(ctx context.Context, f repository.WorkOrderFilter, p repository.Page) ([]*model.WorkOrder, int64, error)
	Update(ctx context.Context, wo *model.WorkOrder) error
	Delete(ctx context.Context, id uint64) error
	AddPart(ctx context.Context, workOrderID, partID uint64, qty uint32) (*model.Part, error)
	RemovePart(ctx context.Context, workOrderID, partID uint64) error
}

type PartStore interface {
	Create(ctx context.Context, p *model.Part) error
	GetByID(ctx context.Context, id uint64) (*model.Part, error)
	List(ctx context.Context, f repository.PartFilter, p repository.Page) ([]*model.Part, int64, error)
	// Update leaves stock alone unless setQuantity; bookings change it concurrently.
	Update(ctx context.Context, p *model.Part, setQuantity bool) error
	Delete(ctx context.Context, id uint64) error
}
