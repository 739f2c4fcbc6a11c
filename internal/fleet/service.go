// Package fleet keeps the in-memory fleet state consistent with the remote fleet
// service. Vehicle updates are optimistic with exact rollback; deletes are pessimistic.
package fleet

import (
	"context"
	"errors"

	"github.com/ukydev/fleet-dashboard/internal/models"
)

var (
	ErrNotAuthenticated = errors.New("not signed in")
	ErrForbidden        = errors.New("insufficient permissions")
	ErrAdminLimit       = errors.New("admin limit reached")
	ErrVehicleNotFound  = errors.New("vehicle not found")
	ErrRecordNotFound   = errors.New("record not found")
	ErrTripAlreadyOpen  = errors.New("vehicle already has an open trip")
	ErrNoOpenTrip       = errors.New("vehicle has no open trip")
	ErrSelfDelete       = errors.New("cannot delete your own account")
)

// Service is the remote fleet service. *remote.Client implements it.
type Service interface {
	SetToken(token string)

	ListVehicles(ctx context.Context) ([]models.Vehicle, error)
	CreateVehicle(ctx context.Context, v models.Vehicle) (*models.Vehicle, error)
	UpdateVehicle(ctx context.Context, vin string, patch models.VehiclePatch) (*models.Vehicle, error)
	DeleteVehicle(ctx context.Context, vin string) error

	Authenticate(ctx context.Context, username, password string) (*models.LoginResponse, error)
	ListUsers(ctx context.Context, requester string) ([]models.User, error)
	RegisterUser(ctx context.Context, admin string, draft models.UserDraft, password string) (*models.User, error)
	DeleteUser(ctx context.Context, admin, target string) error

	ListMaintenance(ctx context.Context) ([]models.Maintenance, error)
	CreateMaintenance(ctx context.Context, m models.Maintenance) (*models.Maintenance, error)
	UpdateMaintenance(ctx context.Context, id string, patch models.MaintenancePatch) (*models.Maintenance, error)
	DeleteMaintenance(ctx context.Context, id string) error

	ListTrips(ctx context.Context) ([]models.InUseRecord, error)
	CreateTrip(ctx context.Context, r models.InUseRecord) (*models.InUseRecord, error)
	UpdateTrip(ctx context.Context, id string, patch models.TripPatch) (*models.InUseRecord, error)
}

// Notifier receives one user-facing message per mutation outcome. *notify.Queue implements it.
type Notifier interface {
	Notify(t models.NotificationType, message string)
}

// SessionStore persists the signed-in profile between runs. Load returns nil, nil
// when nothing is stored.
type SessionStore interface {
	Load(ctx context.Context) (*models.Session, error)
	Save(ctx context.Context, s models.Session) error
	Clear(ctx context.Context) error
}

type discardNotifier struct{}

func (discardNotifier) Notify(models.NotificationType, string) {}

type noSessionStore struct{}

func (noSessionStore) Load(context.Context) (*models.Session, error) { return nil, nil }
func (noSessionStore) Save(context.Context, models.Session) error    { return nil }
func (noSessionStore) Clear(context.Context) error                   { return nil }
