package fleet

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-dashboard/internal/auth"
	"github.com/ukydev/fleet-dashboard/internal/models"
	"github.com/ukydev/fleet-dashboard/internal/remote"
	"golang.org/x/sync/errgroup"
)

// Synchronizer owns the canonical vin→Vehicle collection plus the users, open trips
// and maintenance records of the signed-in session. It is safe for concurrent use;
// no lock is held across a remote call.
type Synchronizer struct {
	svc      Service
	notifier Notifier
	store    SessionStore
	logger   log.FieldLogger
	now      func() time.Time

	adminCap        int
	bulkConcurrency int

	mu          sync.RWMutex
	session     *models.Session
	vehicles    map[string]models.Vehicle
	users       []models.User
	trips       map[string]models.InUseRecord // open trips by vin
	maintenance map[string]models.Maintenance
	edits       map[string]*vehicleEdits // vins with updates in flight
	editSeq     uint64
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

func WithNotifier(n Notifier) Option { return func(s *Synchronizer) { s.notifier = n } }

func WithSessionStore(st SessionStore) Option { return func(s *Synchronizer) { s.store = st } }

func WithLogger(l log.FieldLogger) Option { return func(s *Synchronizer) { s.logger = l } }

// WithClock replaces time.Now for trip timestamps and token expiry checks.
func WithClock(now func() time.Time) Option { return func(s *Synchronizer) { s.now = now } }

// WithAdminCap sets how many non-super admins may exist before a non-super admin
// is refused creating another. Zero leaves user creation to super users; a negative
// value restores the default.
func WithAdminCap(n int) Option { return func(s *Synchronizer) { s.adminCap = n } }

// WithBulkConcurrency limits in-flight requests during bulk operations. Zero or
// less issues every request at once.
func WithBulkConcurrency(n int) Option { return func(s *Synchronizer) { s.bulkConcurrency = n } }

// New creates a synchronizer backed by svc.
func New(svc Service, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		svc:         svc,
		notifier:    discardNotifier{},
		store:       noSessionStore{},
		logger:      log.StandardLogger(),
		now:         time.Now,
		adminCap:    models.DefaultAdminCap,
		vehicles:    make(map[string]models.Vehicle),
		trips:       make(map[string]models.InUseRecord),
		maintenance: make(map[string]models.Maintenance),
		edits:       make(map[string]*vehicleEdits),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.adminCap < 0 {
		s.adminCap = models.DefaultAdminCap
	}
	return s
}

func (s *Synchronizer) notify(t models.NotificationType, format string, args ...any) {
	s.notifier.Notify(t, fmt.Sprintf(format, args...))
}

// fail notifies and returns err unchanged.
func (s *Synchronizer) fail(err error, format string, args ...any) error {
	s.notifier.Notify(models.NotifyError, fmt.Sprintf(format, args...)+": "+describe(err))
	return err
}

// describe renders an error for a user-facing message.
func describe(err error) string {
	var ve *models.ValidationError
	switch {
	case errors.As(err, &ve):
		return ve.Error()
	case errors.Is(err, remote.ErrUnauthorized):
		return "not authorized"
	case errors.Is(err, remote.ErrConflict):
		return "already exists"
	case errors.Is(err, remote.ErrNotFound):
		return "not found"
	case errors.Is(err, remote.ErrEndpointMissing):
		return "not supported by the server"
	default:
		return err.Error()
	}
}

// Session returns the signed-in profile.
func (s *Synchronizer) Session() (models.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return models.Session{}, false
	}
	return *s.session, true
}

// currentUser returns the signed-in user or ErrNotAuthenticated.
func (s *Synchronizer) currentUser() (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return models.User{}, ErrNotAuthenticated
	}
	return s.session.User(), nil
}

// requireAdmin returns the signed-in admin, notifying when the check fails.
func (s *Synchronizer) requireAdmin(action string) (models.User, error) {
	u, err := s.currentUser()
	if err != nil {
		return u, s.fail(err, "Cannot %s", action)
	}
	if !u.IsAdmin() {
		return u, s.fail(ErrForbidden, "Cannot %s", action)
	}
	return u, nil
}

// IsAdmin reports whether the signed-in user may use admin affordances.
func (s *Synchronizer) IsAdmin() bool {
	u, err := s.currentUser()
	return err == nil && u.IsAdmin()
}

// Login authenticates, persists the normalized profile, and loads the fleet.
func (s *Synchronizer) Login(ctx context.Context, username, password string) (models.Session, error) {
	if username == "" || password == "" {
		err := &models.ValidationError{Field: "credentials", Err: models.ErrMissingField}
		return models.Session{}, s.fail(err, "Login failed")
	}
	resp, err := s.svc.Authenticate(ctx, username, password)
	if err != nil {
		s.logger.WithError(err).WithField("username", username).Warn("Login failed")
		if errors.Is(err, remote.ErrUnauthorized) {
			s.notify(models.NotifyError, "Invalid username or password")
			return models.Session{}, err
		}
		return models.Session{}, s.fail(err, "Login failed")
	}

	sess := models.NewSession(*resp)
	if err := s.store.Save(ctx, sess); err != nil {
		// Signing in still works; only the next restore is affected.
		s.logger.WithError(err).Warn("Failed to persist session")
	}
	s.begin(sess)
	s.logger.WithFields(log.Fields{"username": sess.Username, "role": sess.Role}).Info("Signed in")
	s.notify(models.NotifySuccess, "Welcome, %s", sess.Username)

	return sess, s.Load(ctx)
}

// Restore resumes a persisted session. It reports false when nothing usable is stored;
// a stored token that has already expired is cleared.
func (s *Synchronizer) Restore(ctx context.Context) (bool, error) {
	stored, err := s.store.Load(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to load session: %w", err)
	}
	if stored == nil || stored.Username == "" {
		return false, nil
	}
	if stored.Token != "" {
		if claims, err := auth.Inspect(stored.Token); err == nil && claims.Expired(s.now()) {
			s.logger.WithField("username", stored.Username).Info("Stored session expired")
			if err := s.store.Clear(ctx); err != nil {
				return false, fmt.Errorf("failed to clear expired session: %w", err)
			}
			return false, nil
		}
	}

	sess := *stored
	sess.Role = models.NormalizeRole(sess.Role)
	s.begin(sess)
	return true, s.Load(ctx)
}

func (s *Synchronizer) begin(sess models.Session) {
	s.svc.SetToken(sess.Token)
	s.mu.Lock()
	s.session = &sess
	s.mu.Unlock()
}

// Logout clears the persisted session and every in-memory collection.
func (s *Synchronizer) Logout(ctx context.Context) error {
	s.svc.SetToken("")
	s.mu.Lock()
	s.session = nil
	s.vehicles = make(map[string]models.Vehicle)
	s.users = nil
	s.trips = make(map[string]models.InUseRecord)
	s.maintenance = make(map[string]models.Maintenance)
	s.edits = make(map[string]*vehicleEdits)
	s.mu.Unlock()

	if err := s.store.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	s.notify(models.NotifyInfo, "Signed out")
	return nil
}

// Load fetches vehicles, users and trips independently. A failed fetch leaves that
// collection empty and never affects the others.
func (s *Synchronizer) Load(ctx context.Context) error {
	u, err := s.currentUser()
	if err != nil {
		return err
	}

	var (
		g        errgroup.Group
		vehicles []models.Vehicle
		users    []models.User
		trips    []models.InUseRecord
	)
	g.Go(func() error {
		vs, err := s.svc.ListVehicles(ctx)
		if err != nil {
			s.logger.WithError(err).Warn("Failed to load vehicles")
			s.notify(models.NotifyError, "Failed to load vehicles: %s", describe(err))
			return nil
		}
		vehicles = vs
		return nil
	})
	g.Go(func() error {
		us, err := s.svc.ListUsers(ctx, u.Username)
		if err != nil {
			// Drivers are normally refused here.
			s.logger.WithError(err).WithField("username", u.Username).Debug("Users unavailable")
			return nil
		}
		users = us
		return nil
	})
	g.Go(func() error {
		rs, err := s.svc.ListTrips(ctx)
		if err != nil {
			s.logger.WithError(err).Warn("Failed to load trips")
			return nil
		}
		trips = rs
		return nil
	})
	_ = g.Wait()

	byVIN := make(map[string]models.Vehicle, len(vehicles))
	for _, v := range vehicles {
		byVIN[v.VIN] = v.Clone()
	}
	open := make(map[string]models.InUseRecord)
	for _, r := range trips {
		if r.Open() {
			open[r.VIN] = r.Clone()
		}
	}

	s.mu.Lock()
	s.vehicles = byVIN
	s.edits = make(map[string]*vehicleEdits)
	s.users = append([]models.User(nil), users...)
	s.trips = open
	s.mu.Unlock()

	s.logger.WithFields(log.Fields{
		"vehicles":   len(byVIN),
		"users":      len(users),
		"open_trips": len(open),
	}).Info("Fleet loaded")
	return nil
}

// Vehicles returns a snapshot of the collection sorted by VIN.
func (s *Synchronizer) Vehicles() []models.Vehicle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Vehicle, 0, len(s.vehicles))
	for _, v := range s.vehicles {
		out = append(out, v.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VIN < out[j].VIN })
	return out
}

// Vehicle returns the in-memory record for vin.
func (s *Synchronizer) Vehicle(vin string) (models.Vehicle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vehicles[vin]
	return v.Clone(), ok
}

// Users returns the user collection as last loaded.
func (s *Synchronizer) Users() []models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.User(nil), s.users...)
}
