package models

import (
	"encoding/json"
	"fmt"
)

// VehiclePatch is a partial vehicle update. Nil fields are left untouched.
// The Clear flags remove an expiry date and win over a date set in the same patch.
// Extra carries extension fields that are forwarded to the remote service as-is.
type VehiclePatch struct {
	Make                 *string
	Model                *string
	Year                 *int
	Mileage              *int
	Status               *VehicleStatus
	Description          *string
	DiscExpiryDate       *Date
	InsuranceExpiryDate  *Date
	AssignedDriver       *string
	CurrentLocation      *string
	Destination          *string
	ClearDiscExpiry      bool
	ClearInsuranceExpiry bool
	Extra                map[string]any
}

// IsEmpty reports whether the patch changes nothing.
func (p VehiclePatch) IsEmpty() bool {
	return p.Make == nil && p.Model == nil && p.Year == nil && p.Mileage == nil &&
		p.Status == nil && p.Description == nil && p.DiscExpiryDate == nil &&
		p.InsuranceExpiryDate == nil && p.AssignedDriver == nil &&
		p.CurrentLocation == nil && p.Destination == nil &&
		!p.ClearDiscExpiry && !p.ClearInsuranceExpiry && len(p.Extra) == 0
}

// Apply returns a copy of v with the patch applied. The VIN is never changed.
func (p VehiclePatch) Apply(v Vehicle) Vehicle {
	out := v.Clone()
	if p.Make != nil {
		out.Make = *p.Make
	}
	if p.Model != nil {
		out.Model = *p.Model
	}
	if p.Year != nil {
		out.Year = *p.Year
	}
	if p.Mileage != nil {
		out.Mileage = *p.Mileage
	}
	if p.Status != nil {
		out.Status = *p.Status
	}
	if p.Description != nil {
		out.Description = *p.Description
	}
	switch {
	case p.ClearDiscExpiry:
		out.DiscExpiryDate = nil
	case p.DiscExpiryDate != nil:
		d := *p.DiscExpiryDate
		out.DiscExpiryDate = &d
	}
	switch {
	case p.ClearInsuranceExpiry:
		out.InsuranceExpiryDate = nil
	case p.InsuranceExpiryDate != nil:
		d := *p.InsuranceExpiryDate
		out.InsuranceExpiryDate = &d
	}
	if p.AssignedDriver != nil {
		out.AssignedDriver = *p.AssignedDriver
	}
	if p.CurrentLocation != nil {
		out.CurrentLocation = *p.CurrentLocation
	}
	if p.Destination != nil {
		out.Destination = *p.Destination
	}
	return out
}

// Merge returns a patch with the fields of other layered over p.
func (p VehiclePatch) Merge(other VehiclePatch) VehiclePatch {
	out := p
	if other.Make != nil {
		out.Make = other.Make
	}
	if other.Model != nil {
		out.Model = other.Model
	}
	if other.Year != nil {
		out.Year = other.Year
	}
	if other.Mileage != nil {
		out.Mileage = other.Mileage
	}
	if other.Status != nil {
		out.Status = other.Status
	}
	if other.Description != nil {
		out.Description = other.Description
	}
	switch {
	case other.ClearDiscExpiry:
		out.DiscExpiryDate, out.ClearDiscExpiry = nil, true
	case other.DiscExpiryDate != nil:
		out.DiscExpiryDate, out.ClearDiscExpiry = other.DiscExpiryDate, false
	}
	switch {
	case other.ClearInsuranceExpiry:
		out.InsuranceExpiryDate, out.ClearInsuranceExpiry = nil, true
	case other.InsuranceExpiryDate != nil:
		out.InsuranceExpiryDate, out.ClearInsuranceExpiry = other.InsuranceExpiryDate, false
	}
	if other.AssignedDriver != nil {
		out.AssignedDriver = other.AssignedDriver
	}
	if other.CurrentLocation != nil {
		out.CurrentLocation = other.CurrentLocation
	}
	if other.Destination != nil {
		out.Destination = other.Destination
	}
	if len(other.Extra) > 0 {
		extra := make(map[string]any, len(p.Extra)+len(other.Extra))
		for k, v := range p.Extra {
			extra[k] = v
		}
		for k, v := range other.Extra {
			extra[k] = v
		}
		out.Extra = extra
	}
	return out
}

// MarshalJSON encodes only the fields that are set, merged with Extra.
// Typed fields win over Extra keys of the same name.
func (p VehiclePatch) MarshalJSON() ([]byte, error) {
	body := make(map[string]any, len(p.Extra)+4)
	for k, v := range p.Extra {
		body[k] = v
	}
	set := func(key string, ok bool, v any) {
		if ok {
			body[key] = v
		}
	}
	set("make", p.Make != nil, deref(p.Make))
	set("model", p.Model != nil, deref(p.Model))
	set("year", p.Year != nil, deref(p.Year))
	set("mileage", p.Mileage != nil, deref(p.Mileage))
	set("status", p.Status != nil, deref(p.Status))
	set("description", p.Description != nil, deref(p.Description))
	set("discExpiryDate", p.DiscExpiryDate != nil || p.ClearDiscExpiry, clearable(p.DiscExpiryDate, p.ClearDiscExpiry))
	set("insuranceExpiryDate", p.InsuranceExpiryDate != nil || p.ClearInsuranceExpiry, clearable(p.InsuranceExpiryDate, p.ClearInsuranceExpiry))
	set("assignedDriver", p.AssignedDriver != nil, deref(p.AssignedDriver))
	set("currentLocation", p.CurrentLocation != nil, deref(p.CurrentLocation))
	set("destination", p.Destination != nil, deref(p.Destination))
	return json.Marshal(body)
}

// clearable encodes a cleared date as null.
func clearable(d *Date, cleared bool) any {
	if cleared || d == nil {
		return nil
	}
	return *d
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}

// TripAssignment holds the fields shown on a vehicle while it is in use.
type TripAssignment struct {
	Driver          string
	CurrentLocation string
	Destination     string
}

// StatusChange is a validated status transition plus optional extension fields.
type StatusChange struct {
	Status VehicleStatus
	// Trip is applied when moving to StatusInUse.
	Trip  *TripAssignment
	Extra VehiclePatch
}

// Patch validates the transition and converts it into a VehiclePatch.
func (c StatusChange) Patch() (VehiclePatch, error) {
	if !IsValidStatus(c.Status) {
		return VehiclePatch{}, &ValidationError{Field: "status", Err: fmt.Errorf("%w: %q", ErrInvalidStatus, c.Status)}
	}
	p := VehiclePatch{Status: Ptr(c.Status)}
	switch c.Status {
	case StatusAvailable:
		p.AssignedDriver = Ptr("")
		p.CurrentLocation = Ptr("")
		p.Destination = Ptr("")
	case StatusInUse:
		if c.Trip != nil {
			p.AssignedDriver = Ptr(c.Trip.Driver)
			p.CurrentLocation = Ptr(c.Trip.CurrentLocation)
			p.Destination = Ptr(c.Trip.Destination)
		}
	}
	// The status itself always comes from the transition.
	extra := c.Extra
	extra.Status = nil
	return p.Merge(extra), nil
}
