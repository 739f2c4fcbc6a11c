package fleet

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-dashboard/internal/models"
	"golang.org/x/sync/errgroup"
)

// Add validates draft, submits it, and stores the record the service returns.
// Nothing is sent when validation fails.
func (s *Synchronizer) Add(ctx context.Context, draft models.VehicleDraft) (models.Vehicle, error) {
	if _, err := s.requireAdmin("add vehicle"); err != nil {
		return models.Vehicle{}, err
	}
	v, err := draft.Vehicle()
	if err != nil {
		return models.Vehicle{}, s.fail(err, "Cannot add vehicle")
	}

	created, err := s.svc.CreateVehicle(ctx, v)
	if err != nil {
		s.logger.WithError(err).WithField("vin", v.VIN).Warn("Failed to add vehicle")
		return models.Vehicle{}, s.fail(err, "Failed to add vehicle %s", v.VIN)
	}
	if created.VIN == "" {
		created.VIN = v.VIN
	}

	s.mu.Lock()
	s.vehicles[created.VIN] = created.Clone()
	s.mu.Unlock()

	s.logger.WithField("vin", created.VIN).Info("Vehicle added")
	s.notify(models.NotifySuccess, "Vehicle %s added", created.VIN)
	return created.Clone(), nil
}

// Update applies patch to the in-memory record immediately, then submits it. When the
// service rejects the patch the record is restored to exactly what it was before.
func (s *Synchronizer) Update(ctx context.Context, vin string, patch models.VehiclePatch) (models.Vehicle, error) {
	if _, err := s.currentUser(); err != nil {
		return models.Vehicle{}, s.fail(err, "Cannot update vehicle %s", vin)
	}
	v, err := s.update(ctx, vin, patch)
	if err != nil {
		return v, s.fail(err, "Failed to update vehicle %s", vin)
	}
	s.notify(models.NotifySuccess, "Vehicle %s updated", vin)
	return v, nil
}

// vehicleEdits tracks a vin while updates are in flight. The visible record is
// always base with the pending patches applied in submission order.
type vehicleEdits struct {
	base    models.Vehicle // last state the service accepted
	pending []pendingPatch
}

type pendingPatch struct {
	id    uint64
	patch models.VehiclePatch
}

func (e *vehicleEdits) visible() models.Vehicle {
	v := e.base.Clone()
	for _, p := range e.pending {
		v = p.patch.Apply(v)
	}
	return v
}

func (e *vehicleEdits) settle(id uint64) {
	for i, p := range e.pending {
		if p.id == id {
			e.pending = append(e.pending[:i], e.pending[i+1:]...)
			return
		}
	}
}

// update is Update without notifications. Overlapping updates to one vin each roll
// back only their own patch.
func (s *Synchronizer) update(ctx context.Context, vin string, patch models.VehiclePatch) (models.Vehicle, error) {
	s.mu.Lock()
	current, ok := s.vehicles[vin]
	if !ok {
		s.mu.Unlock()
		return models.Vehicle{}, fmt.Errorf("%w: %s", ErrVehicleNotFound, vin)
	}
	edits, busy := s.edits[vin]
	if !busy {
		edits = &vehicleEdits{base: current.Clone()}
		s.edits[vin] = edits
	}
	s.editSeq++
	id := s.editSeq
	edits.pending = append(edits.pending, pendingPatch{id: id, patch: patch})
	s.vehicles[vin] = edits.visible()
	s.mu.Unlock()

	out := ApplyThenConfirm(ctx, current, patch, func(ctx context.Context, p models.VehiclePatch) (*models.Vehicle, error) {
		return s.svc.UpdateVehicle(ctx, vin, p)
	})

	s.mu.Lock()
	edits.settle(id)
	switch {
	case out.FromServer:
		edits.base = out.State
	case out.Err == nil:
		edits.base = patch.Apply(edits.base)
	}
	state := edits.visible()
	// A concurrent delete or reload wins over both confirmation and rollback.
	if s.edits[vin] == edits {
		if _, still := s.vehicles[vin]; still {
			s.vehicles[vin] = state
		}
		if len(edits.pending) == 0 {
			delete(s.edits, vin)
		}
	}
	s.mu.Unlock()

	if out.Err != nil {
		s.logger.WithError(out.Err).WithField("vin", vin).Warn("Update rejected, rolled back")
		return state, out.Err
	}
	s.logger.WithField("vin", vin).Info("Vehicle updated")
	return state, nil
}

// Delete removes the vehicle remotely first and drops it from memory only on success.
func (s *Synchronizer) Delete(ctx context.Context, vin string) error {
	if _, err := s.requireAdmin("delete vehicle"); err != nil {
		return err
	}
	if err := s.delete(ctx, vin); err != nil {
		return s.fail(err, "Failed to delete vehicle %s", vin)
	}
	s.notify(models.NotifySuccess, "Vehicle %s deleted", vin)
	return nil
}

func (s *Synchronizer) delete(ctx context.Context, vin string) error {
	if err := s.svc.DeleteVehicle(ctx, vin); err != nil {
		s.logger.WithError(err).WithField("vin", vin).Warn("Failed to delete vehicle")
		return err
	}
	s.mu.Lock()
	delete(s.vehicles, vin)
	delete(s.trips, vin)
	delete(s.edits, vin)
	s.mu.Unlock()
	s.logger.WithField("vin", vin).Info("Vehicle deleted")
	return nil
}

// IncrementMileage adds delta to the current mileage through Update. Delta is not clamped.
func (s *Synchronizer) IncrementMileage(ctx context.Context, vin string, delta int) (models.Vehicle, error) {
	v, ok := s.Vehicle(vin)
	if !ok {
		return models.Vehicle{}, s.fail(fmt.Errorf("%w: %s", ErrVehicleNotFound, vin), "Cannot update mileage")
	}
	return s.Update(ctx, vin, models.VehiclePatch{Mileage: models.Ptr(v.Mileage + delta)})
}

// ChangeStatus validates the transition and routes it through Update. An unknown
// status is refused before anything is sent.
func (s *Synchronizer) ChangeStatus(ctx context.Context, vin string, change models.StatusChange) (models.Vehicle, error) {
	patch, err := change.Patch()
	if err != nil {
		return models.Vehicle{}, s.fail(err, "Cannot change status of %s", vin)
	}
	return s.Update(ctx, vin, patch)
}

// BulkResult reports per-vehicle outcomes of a bulk operation.
type BulkResult struct {
	Succeeded []string
	Failed    map[string]error
}

// Total is the number of distinct vehicles attempted.
func (r BulkResult) Total() int { return len(r.Succeeded) + len(r.Failed) }

// BulkChangeStatus applies the same status change to every vin concurrently. Each item
// follows the single-item rollback rule; one aggregate notification is emitted.
func (s *Synchronizer) BulkChangeStatus(ctx context.Context, vins []string, status models.VehicleStatus) (BulkResult, error) {
	if _, err := s.currentUser(); err != nil {
		return BulkResult{}, s.fail(err, "Cannot change status")
	}
	patch, err := models.StatusChange{Status: status}.Patch()
	if err != nil {
		return BulkResult{}, s.fail(err, "Cannot change status")
	}
	res := s.fanOut(ctx, vins, func(ctx context.Context, vin string) error {
		_, err := s.update(ctx, vin, patch)
		return err
	})
	s.report(res, fmt.Sprintf("Status set to %s", status), "change status")
	return res, nil
}

// BulkDelete deletes every vin concurrently. Vehicles whose delete failed stay in memory.
func (s *Synchronizer) BulkDelete(ctx context.Context, vins []string) (BulkResult, error) {
	if _, err := s.requireAdmin("delete vehicles"); err != nil {
		return BulkResult{}, err
	}
	res := s.fanOut(ctx, vins, s.delete)
	s.report(res, "Deleted", "delete")
	return res, nil
}

func (s *Synchronizer) fanOut(ctx context.Context, vins []string, op func(context.Context, string) error) BulkResult {
	seen := make(map[string]bool, len(vins))
	unique := make([]string, 0, len(vins))
	for _, vin := range vins {
		if vin != "" && !seen[vin] {
			seen[vin] = true
			unique = append(unique, vin)
		}
	}

	errs := make([]error, len(unique))
	var g errgroup.Group
	if s.bulkConcurrency > 0 {
		g.SetLimit(s.bulkConcurrency)
	}
	for i, vin := range unique {
		g.Go(func() error {
			errs[i] = op(ctx, vin)
			// Per-item errors are collected, never short-circuit the batch.
			return nil
		})
	}
	_ = g.Wait()

	res := BulkResult{Succeeded: []string{}, Failed: map[string]error{}}
	for i, vin := range unique {
		if errs[i] != nil {
			res.Failed[vin] = errs[i]
			continue
		}
		res.Succeeded = append(res.Succeeded, vin)
	}
	return res
}

func (s *Synchronizer) report(res BulkResult, done, action string) {
	total := res.Total()
	s.logger.WithFields(log.Fields{
		"action":    action,
		"succeeded": len(res.Succeeded),
		"failed":    len(res.Failed),
	}).Info("Bulk operation finished")

	switch {
	case total == 0:
		s.notify(models.NotifyInfo, "No vehicles selected")
	case len(res.Failed) == 0:
		s.notify(models.NotifySuccess, "%s: %d vehicle(s)", done, total)
	case len(res.Succeeded) == 0:
		s.notify(models.NotifyError, "Failed to %s all %d vehicle(s)", action, total)
	default:
		s.notify(models.NotifyWarning, "%s: %d of %d vehicle(s); %d failed", done, len(res.Succeeded), total, len(res.Failed))
	}
}
