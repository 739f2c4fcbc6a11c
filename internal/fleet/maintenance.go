package fleet

import (
	"context"
	"fmt"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-dashboard/internal/models"
)

// LoadMaintenance replaces the maintenance log with the service's records.
func (s *Synchronizer) LoadMaintenance(ctx context.Context) error {
	if _, err := s.requireAdmin("load maintenance"); err != nil {
		return err
	}
	records, err := s.svc.ListMaintenance(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to load maintenance")
		s.mu.Lock()
		s.maintenance = make(map[string]models.Maintenance)
		s.mu.Unlock()
		return s.fail(err, "Failed to load maintenance")
	}
	byID := make(map[string]models.Maintenance, len(records))
	for _, m := range records {
		byID[m.ID] = m
	}
	s.mu.Lock()
	s.maintenance = byID
	s.mu.Unlock()
	return nil
}

// LogMaintenance records a maintenance event. When markInMaintenance is set the vehicle
// is moved to In Maintenance afterwards.
func (s *Synchronizer) LogMaintenance(ctx context.Context, m models.Maintenance, markInMaintenance bool) (models.Maintenance, error) {
	if _, err := s.requireAdmin("log maintenance"); err != nil {
		return models.Maintenance{}, err
	}
	if _, ok := s.Vehicle(m.VIN); !ok {
		return models.Maintenance{}, s.fail(fmt.Errorf("%w: %s", ErrVehicleNotFound, m.VIN), "Cannot log maintenance")
	}
	if strings.TrimSpace(m.ServiceType) == "" {
		return models.Maintenance{}, s.fail(&models.ValidationError{Field: "serviceType", Err: models.ErrMissingField}, "Cannot log maintenance")
	}
	if m.Mileage < 0 {
		return models.Maintenance{}, s.fail(&models.ValidationError{Field: "mileage", Err: models.ErrNegativeMileage}, "Cannot log maintenance")
	}
	if m.ServiceDate.IsZero() {
		now := s.now()
		m.ServiceDate = models.NewDate(now.Year(), now.Month(), now.Day())
	}

	created, err := s.svc.CreateMaintenance(ctx, m)
	if err != nil {
		s.logger.WithError(err).WithField("vin", m.VIN).Warn("Failed to log maintenance")
		return models.Maintenance{}, s.fail(err, "Failed to log maintenance for %s", m.VIN)
	}

	s.mu.Lock()
	s.maintenance[created.ID] = *created
	s.mu.Unlock()
	s.logger.WithFields(log.Fields{"vin": created.VIN, "maintenance_id": created.ID, "service_type": created.ServiceType}).Info("Maintenance logged")
	s.notify(models.NotifySuccess, "Maintenance logged for %s", created.VIN)

	if markInMaintenance {
		if _, err := s.ChangeStatus(ctx, created.VIN, models.StatusChange{Status: models.StatusInMaintenance}); err != nil {
			return *created, err
		}
	}
	return *created, nil
}

// UpdateMaintenance applies a partial update once the service accepts it.
func (s *Synchronizer) UpdateMaintenance(ctx context.Context, id string, patch models.MaintenancePatch) (models.Maintenance, error) {
	if _, err := s.requireAdmin("update maintenance"); err != nil {
		return models.Maintenance{}, err
	}
	s.mu.RLock()
	current, ok := s.maintenance[id]
	s.mu.RUnlock()
	if !ok {
		return models.Maintenance{}, s.fail(fmt.Errorf("maintenance record %s: %w", id, ErrRecordNotFound), "Cannot update maintenance")
	}

	updated, err := s.svc.UpdateMaintenance(ctx, id, patch)
	if err != nil {
		s.logger.WithError(err).WithField("maintenance_id", id).Warn("Failed to update maintenance")
		return models.Maintenance{}, s.fail(err, "Failed to update maintenance")
	}
	next := patch.Apply(current)
	if updated != nil {
		next = *updated
	}

	s.mu.Lock()
	s.maintenance[id] = next
	s.mu.Unlock()
	s.notify(models.NotifySuccess, "Maintenance record updated")
	return next, nil
}

// DeleteMaintenance removes a record once the service confirms.
func (s *Synchronizer) DeleteMaintenance(ctx context.Context, id string) error {
	if _, err := s.requireAdmin("delete maintenance"); err != nil {
		return err
	}
	if err := s.svc.DeleteMaintenance(ctx, id); err != nil {
		s.logger.WithError(err).WithField("maintenance_id", id).Warn("Failed to delete maintenance")
		return s.fail(err, "Failed to delete maintenance record")
	}
	s.mu.Lock()
	delete(s.maintenance, id)
	s.mu.Unlock()
	s.notify(models.NotifySuccess, "Maintenance record deleted")
	return nil
}

// MaintenanceFor returns the records for vin, newest service date first.
func (s *Synchronizer) MaintenanceFor(vin string) []models.Maintenance {
	s.mu.RLock()
	var out []models.Maintenance
	for _, m := range s.maintenance {
		if m.VIN == vin {
			out = append(out, m)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ServiceDate.Equal(out[j].ServiceDate.Time) {
			return out[i].ServiceDate.After(out[j].ServiceDate.Time)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
