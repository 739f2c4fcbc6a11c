package fleet

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-dashboard/internal/auth"
	"github.com/ukydev/fleet-dashboard/internal/models"
	"github.com/ukydev/fleet-dashboard/internal/remote"
)

// CanCreateAdmin reports whether the signed-in user may create another ADMIN given
// the current user collection.
func (s *Synchronizer) CanCreateAdmin() bool {
	u, err := s.currentUser()
	if err != nil {
		return false
	}
	return u.CanCreateAdmin(s.Users(), s.adminCap)
}

// RegisterUser creates an account. Validation, duplicate and admin-cap checks run
// before anything is sent.
func (s *Synchronizer) RegisterUser(ctx context.Context, draft models.UserDraft, password string) (models.User, error) {
	admin, err := s.requireAdmin("create user")
	if err != nil {
		return models.User{}, err
	}

	draft.Username = strings.TrimSpace(draft.Username)
	draft.Role = models.NormalizeRole(draft.Role)
	if err := auth.ValidateUsername(draft.Username); err != nil {
		return models.User{}, s.fail(&models.ValidationError{Field: "username", Err: err}, "Cannot create user")
	}
	if err := auth.ValidatePassword(password); err != nil {
		return models.User{}, s.fail(&models.ValidationError{Field: "password", Err: err}, "Cannot create user")
	}
	if draft.IsSuperUser && !admin.IsSuperUser {
		return models.User{}, s.fail(ErrForbidden, "Cannot create super user")
	}

	users := s.Users()
	for _, u := range users {
		if strings.EqualFold(u.Username, draft.Username) {
			err := fmt.Errorf("%w: username %q", remote.ErrConflict, draft.Username)
			s.notify(models.NotifyError, "Username %s already exists", draft.Username)
			return models.User{}, err
		}
	}
	if draft.Role == models.RoleAdmin && !draft.IsSuperUser && !admin.CanCreateAdmin(users, s.adminCap) {
		return models.User{}, s.fail(fmt.Errorf("%w (%d)", ErrAdminLimit, s.adminCap), "Cannot create admin")
	}

	created, err := s.svc.RegisterUser(ctx, admin.Username, draft, password)
	if err != nil {
		s.logger.WithError(err).WithField("username", draft.Username).Warn("Failed to register user")
		return models.User{}, s.fail(err, "Failed to create user %s", draft.Username)
	}
	created.Role = models.NormalizeRole(created.Role)

	s.mu.Lock()
	s.users = append(s.users, *created)
	s.mu.Unlock()

	s.logger.WithFields(log.Fields{"username": created.Username, "role": created.Role}).Info("User registered")
	s.notify(models.NotifySuccess, "User %s created", created.Username)
	return *created, nil
}

// DeleteUser removes an account. Admins cannot delete themselves.
func (s *Synchronizer) DeleteUser(ctx context.Context, username string) error {
	admin, err := s.requireAdmin("delete user")
	if err != nil {
		return err
	}
	if strings.EqualFold(admin.Username, username) {
		return s.fail(ErrSelfDelete, "Cannot delete user %s", username)
	}
	if err := s.svc.DeleteUser(ctx, admin.Username, username); err != nil {
		s.logger.WithError(err).WithField("username", username).Warn("Failed to delete user")
		return s.fail(err, "Failed to delete user %s", username)
	}

	s.mu.Lock()
	kept := s.users[:0]
	for _, u := range s.users {
		if u.Username != username {
			kept = append(kept, u)
		}
	}
	s.users = kept
	s.mu.Unlock()

	s.logger.WithField("username", username).Info("User deleted")
	s.notify(models.NotifySuccess, "User %s deleted", username)
	return nil
}
