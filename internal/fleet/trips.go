package fleet

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-dashboard/internal/models"
)

// OpenTrip returns the open trip for vin.
func (s *Synchronizer) OpenTrip(vin string) (models.InUseRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.trips[vin]
	return r.Clone(), ok
}

// openTripByID finds an open trip by its record id.
func (s *Synchronizer) openTripByID(id string) (models.InUseRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.trips {
		if r.ID == id {
			return r.Clone(), true
		}
	}
	return models.InUseRecord{}, false
}

// StartTrip creates a trip record and then marks the vehicle In Use with the trip's
// driver and route. The record is created only after validation passes and only when
// the vehicle has no open trip.
func (s *Synchronizer) StartTrip(ctx context.Context, vin string, draft models.TripDraft) (models.InUseRecord, error) {
	if _, err := s.currentUser(); err != nil {
		return models.InUseRecord{}, s.fail(err, "Cannot start trip")
	}
	if _, ok := s.Vehicle(vin); !ok {
		return models.InUseRecord{}, s.fail(fmt.Errorf("%w: %s", ErrVehicleNotFound, vin), "Cannot start trip")
	}
	if err := draft.Validate(); err != nil {
		return models.InUseRecord{}, s.fail(err, "Cannot start trip for %s", vin)
	}
	if _, open := s.OpenTrip(vin); open {
		return models.InUseRecord{}, s.fail(ErrTripAlreadyOpen, "Cannot start trip for %s", vin)
	}

	record := models.InUseRecord{
		VIN:             vin,
		CurrentLocation: strings.TrimSpace(draft.CurrentLocation),
		Destination:     strings.TrimSpace(draft.Destination),
		KmOut:           draft.KmOut,
		Driver:          strings.TrimSpace(draft.Driver),
		Notes:           draft.Notes,
		StartTime:       s.now().UTC(),
		Pitstops:        append([]models.Pitstop{}, draft.Pitstops...),
	}
	created, err := s.svc.CreateTrip(ctx, record)
	if err != nil {
		s.logger.WithError(err).WithField("vin", vin).Warn("Failed to start trip")
		return models.InUseRecord{}, s.fail(err, "Failed to start trip for %s", vin)
	}
	if created.VIN == "" {
		created.VIN = vin
	}

	s.mu.Lock()
	s.trips[vin] = created.Clone()
	s.mu.Unlock()
	s.logger.WithFields(log.Fields{"vin": vin, "trip_id": created.ID, "driver": created.Driver}).Info("Trip started")

	_, err = s.ChangeStatus(ctx, vin, models.StatusChange{
		Status: models.StatusInUse,
		Trip: &models.TripAssignment{
			Driver:          created.Driver,
			CurrentLocation: created.CurrentLocation,
			Destination:     created.Destination,
		},
	})
	// The trip record exists either way; the status error is reported alongside it.
	return created.Clone(), err
}

// UpdateTrip applies a partial update to an open trip. Required-field rules do not
// apply to updates.
func (s *Synchronizer) UpdateTrip(ctx context.Context, id string, patch models.TripPatch) (models.InUseRecord, error) {
	if _, err := s.currentUser(); err != nil {
		return models.InUseRecord{}, s.fail(err, "Cannot update trip")
	}
	r, err := s.updateTrip(ctx, id, patch)
	if err != nil {
		return models.InUseRecord{}, s.fail(err, "Failed to update trip")
	}
	s.notify(models.NotifySuccess, "Trip for %s updated", r.VIN)
	return r, nil
}

func (s *Synchronizer) updateTrip(ctx context.Context, id string, patch models.TripPatch) (models.InUseRecord, error) {
	current, ok := s.openTripByID(id)
	if !ok {
		return models.InUseRecord{}, fmt.Errorf("%w: trip %s", ErrNoOpenTrip, id)
	}
	updated, err := s.svc.UpdateTrip(ctx, id, patch)
	if err != nil {
		s.logger.WithError(err).WithField("trip_id", id).Warn("Failed to update trip")
		return models.InUseRecord{}, err
	}
	next := patch.Apply(current)
	if updated != nil {
		next = updated.Clone()
		if next.VIN == "" {
			next.VIN = current.VIN
		}
	}

	s.mu.Lock()
	if next.Open() {
		s.trips[current.VIN] = next
	} else {
		delete(s.trips, current.VIN)
	}
	s.mu.Unlock()
	return next.Clone(), nil
}

// AddPitstop appends a stop to an open trip, preserving insertion order.
func (s *Synchronizer) AddPitstop(ctx context.Context, id string, stop models.Pitstop) (models.InUseRecord, error) {
	if strings.TrimSpace(stop.Location) == "" {
		return models.InUseRecord{}, s.fail(&models.ValidationError{Field: "location", Err: models.ErrMissingField}, "Cannot add pitstop")
	}
	current, ok := s.openTripByID(id)
	if !ok {
		return models.InUseRecord{}, s.fail(fmt.Errorf("%w: trip %s", ErrNoOpenTrip, id), "Cannot add pitstop")
	}
	stops := append(append([]models.Pitstop{}, current.Pitstops...), stop)
	return s.UpdateTrip(ctx, id, models.TripPatch{Pitstops: stops})
}

// EndTrip closes the open trip for vin, then returns the vehicle to Available with the
// trip fields cleared. Mileage is raised to kmIn when it is higher.
func (s *Synchronizer) EndTrip(ctx context.Context, vin string, kmIn int) (models.InUseRecord, error) {
	if _, err := s.currentUser(); err != nil {
		return models.InUseRecord{}, s.fail(err, "Cannot end trip")
	}
	trip, open := s.OpenTrip(vin)
	if !open {
		return models.InUseRecord{}, s.fail(fmt.Errorf("%w: %s", ErrNoOpenTrip, vin), "Cannot end trip")
	}
	if kmIn < trip.KmOut {
		err := &models.ValidationError{Field: "kmIn", Err: fmt.Errorf("%w: %d < %d", models.ErrKmInBelowKmOut, kmIn, trip.KmOut)}
		return models.InUseRecord{}, s.fail(err, "Cannot end trip for %s", vin)
	}

	end := s.now().UTC()
	closed, err := s.updateTrip(ctx, trip.ID, models.TripPatch{KmIn: models.Ptr(kmIn), EndTime: &end})
	if err != nil {
		return models.InUseRecord{}, s.fail(err, "Failed to end trip for %s", vin)
	}
	// Closing is authoritative even if the service echoed an open record.
	s.mu.Lock()
	delete(s.trips, vin)
	s.mu.Unlock()
	s.logger.WithFields(log.Fields{"vin": vin, "trip_id": trip.ID, "km": kmIn - trip.KmOut}).Info("Trip ended")

	change := models.StatusChange{Status: models.StatusAvailable}
	if v, ok := s.Vehicle(vin); ok && kmIn > v.Mileage {
		change.Extra = models.VehiclePatch{Mileage: models.Ptr(kmIn)}
	}
	_, err = s.ChangeStatus(ctx, vin, change)
	return closed, err
}
