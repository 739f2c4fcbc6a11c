package fleet

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fleet-dashboard/internal/models"
	"github.com/ukydev/fleet-dashboard/internal/session"
)

// MockService is a mock implementation of Service
type MockService struct {
	mock.Mock
}

func (m *MockService) SetToken(token string) {
	m.Called(token)
}

func (m *MockService) ListVehicles(ctx context.Context) ([]models.Vehicle, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Vehicle), args.Error(1)
}

func (m *MockService) CreateVehicle(ctx context.Context, v models.Vehicle) (*models.Vehicle, error) {
	args := m.Called(ctx, v)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Vehicle), args.Error(1)
}

func (m *MockService) UpdateVehicle(ctx context.Context, vin string, patch models.VehiclePatch) (*models.Vehicle, error) {
	args := m.Called(ctx, vin, patch)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Vehicle), args.Error(1)
}

func (m *MockService) DeleteVehicle(ctx context.Context, vin string) error {
	args := m.Called(ctx, vin)
	return args.Error(0)
}

func (m *MockService) Authenticate(ctx context.Context, username, password string) (*models.LoginResponse, error) {
	args := m.Called(ctx, username, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.LoginResponse), args.Error(1)
}

func (m *MockService) ListUsers(ctx context.Context, requester string) ([]models.User, error) {
	args := m.Called(ctx, requester)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.User), args.Error(1)
}

func (m *MockService) RegisterUser(ctx context.Context, admin string, draft models.UserDraft, password string) (*models.User, error) {
	args := m.Called(ctx, admin, draft, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockService) DeleteUser(ctx context.Context, admin, target string) error {
	args := m.Called(ctx, admin, target)
	return args.Error(0)
}

func (m *MockService) ListMaintenance(ctx context.Context) ([]models.Maintenance, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Maintenance), args.Error(1)
}

func (m *MockService) CreateMaintenance(ctx context.Context, rec models.Maintenance) (*models.Maintenance, error) {
	args := m.Called(ctx, rec)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Maintenance), args.Error(1)
}

func (m *MockService) UpdateMaintenance(ctx context.Context, id string, patch models.MaintenancePatch) (*models.Maintenance, error) {
	args := m.Called(ctx, id, patch)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Maintenance), args.Error(1)
}

func (m *MockService) DeleteMaintenance(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockService) ListTrips(ctx context.Context) ([]models.InUseRecord, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.InUseRecord), args.Error(1)
}

func (m *MockService) CreateTrip(ctx context.Context, r models.InUseRecord) (*models.InUseRecord, error) {
	args := m.Called(ctx, r)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.InUseRecord), args.Error(1)
}

func (m *MockService) UpdateTrip(ctx context.Context, id string, patch models.TripPatch) (*models.InUseRecord, error) {
	args := m.Called(ctx, id, patch)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.InUseRecord), args.Error(1)
}

// recordingNotifier keeps every notification it receives.
type recordingNotifier struct {
	mu  sync.Mutex
	got []models.Notification
}

func (r *recordingNotifier) Notify(t models.NotificationType, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, models.Notification{Type: t, Message: message})
}

func (r *recordingNotifier) all() []models.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Notification(nil), r.got...)
}

func (r *recordingNotifier) last() models.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.got) == 0 {
		return models.Notification{}
	}
	return r.got[len(r.got)-1]
}

func (r *recordingNotifier) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = nil
}

var testNow = time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)

func quietLogger() *log.Logger {
	l := log.New()
	l.SetOutput(io.Discard)
	return l
}

var (
	adminUser  = models.User{Username: "admin1", Role: models.RoleAdmin}
	superUser  = models.User{Username: "root", Role: models.RoleAdmin, IsSuperUser: true}
	driverUser = models.User{Username: "driver1", Role: models.RoleDriver}
)

// newSynchronizer returns a synchronizer signed in as user with vehicles and users
// already loaded. Load expectations are consumed; callers add their own.
func newSynchronizer(t *testing.T, user models.User, users []models.User, vehicles ...models.Vehicle) (*Synchronizer, *MockService, *recordingNotifier) {
	t.Helper()
	ctx := context.Background()

	svc := new(MockService)
	svc.On("SetToken", mock.Anything).Return()
	svc.On("ListVehicles", mock.Anything).Return(vehicles, nil).Once()
	svc.On("ListUsers", mock.Anything, user.Username).Return(users, nil).Once()
	svc.On("ListTrips", mock.Anything).Return([]models.InUseRecord{}, nil).Once()

	store := session.NewMemoryStore()
	require.NoError(t, store.Save(ctx, models.Session{Username: user.Username, Role: user.Role, IsSuperUser: user.IsSuperUser}))

	notes := &recordingNotifier{}
	s := New(svc,
		WithNotifier(notes),
		WithSessionStore(store),
		WithLogger(quietLogger()),
		WithClock(func() time.Time { return testNow }),
	)
	ok, err := s.Restore(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	notes.reset()
	return s, svc, notes
}

func corolla() models.Vehicle {
	return models.Vehicle{VIN: "V1", Make: "Toyota", Model: "Corolla", Year: 2022, Mileage: 0, Status: models.StatusAvailable}
}

func vehicle(vin, mk, model string, year, mileage int, status models.VehicleStatus) models.Vehicle {
	return models.Vehicle{VIN: vin, Make: mk, Model: model, Year: year, Mileage: mileage, Status: status}
}
