package fleet

import (
	"context"

	"github.com/ukydev/fleet-dashboard/internal/models"
)

// RemoteUpdate submits a patch for one vehicle. A nil vehicle with a nil error means
// the service acknowledged without returning the record.
type RemoteUpdate func(ctx context.Context, patch models.VehiclePatch) (*models.Vehicle, error)

// Outcome is the result of ApplyThenConfirm.
type Outcome struct {
	// Optimistic is the state shown while the remote call is in flight.
	Optimistic models.Vehicle
	// State is the state to keep: the confirmed record on success, the original on failure.
	State     models.Vehicle
	Confirmed bool
	// FromServer is set when State is the record the service returned.
	FromServer bool
	Err        error
}

// ApplyThenConfirm applies patch to current, submits it, and decides which record
// survives. It has no side effects besides calling remote.
func ApplyThenConfirm(ctx context.Context, current models.Vehicle, patch models.VehiclePatch, remote RemoteUpdate) Outcome {
	optimistic := patch.Apply(current)
	confirmed, err := remote(ctx, patch)
	if err != nil {
		return Outcome{Optimistic: optimistic, State: current.Clone(), Err: err}
	}
	if confirmed != nil && confirmed.VIN == current.VIN {
		return Outcome{Optimistic: optimistic, State: confirmed.Clone(), Confirmed: true, FromServer: true}
	}
	return Outcome{Optimistic: optimistic, State: optimistic, Confirmed: true}
}
