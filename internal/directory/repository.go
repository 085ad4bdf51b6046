package directory

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrCentreNotFound  = errors.New("centre not found")
	ErrServiceNotFound = errors.New("service not found")
	ErrStaffNotFound   = errors.New("staff member not found")
	ErrClientNotFound  = errors.New("client not found")
)

// Repository is read-only reference data. Centre, service and staff edits
// belong to the administrative flows, not this module.
type Repository interface {
	GetCentre(ctx context.Context, id uuid.UUID) (*Centre, error)
	GetService(ctx context.Context, id uuid.UUID) (*Service, error)
	GetStaff(ctx context.Context, id uuid.UUID) (*StaffMember, error)
	GetClient(ctx context.Context, id uuid.UUID) (*Client, error)

	ListActiveStaff(ctx context.Context) ([]StaffMember, error)
}
