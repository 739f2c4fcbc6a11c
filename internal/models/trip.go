package models

import (
	"errors"
	"strings"
	"time"
)

// ErrKmInBelowKmOut is returned when a trip would close with a lower odometer reading
// than it opened with.
var ErrKmInBelowKmOut = errors.New("kmIn is below kmOut")

// Pitstop is an intermediate stop on an in-use trip.
type Pitstop struct {
	Location string `json:"location"`
	Notes    string `json:"notes,omitempty"`
}

// InUseRecord represents an active (or closed) assignment of a vehicle to a driver and route.
type InUseRecord struct {
	ID              string     `json:"id"`
	VIN             string     `json:"vehicle"`
	CurrentLocation string     `json:"currentLocation"`
	Destination     string     `json:"destination"`
	KmOut           int        `json:"kmOut"`
	KmIn            *int       `json:"kmIn,omitempty"`
	Driver          string     `json:"driver"`
	Notes           string     `json:"notes,omitempty"`
	StartTime       time.Time  `json:"startTime"`
	EndTime         *time.Time `json:"endTime,omitempty"`
	Pitstops        []Pitstop  `json:"pitstops"`
}

// Open reports whether the trip has not been closed yet.
func (r InUseRecord) Open() bool {
	return r.EndTime == nil
}

// Clone returns a deep copy of the record.
func (r InUseRecord) Clone() InUseRecord {
	out := r
	out.Pitstops = append([]Pitstop(nil), r.Pitstops...)
	if r.KmIn != nil {
		km := *r.KmIn
		out.KmIn = &km
	}
	if r.EndTime != nil {
		t := *r.EndTime
		out.EndTime = &t
	}
	return out
}

// TripDraft is the input required to open a new trip.
type TripDraft struct {
	CurrentLocation string
	Destination     string
	KmOut           int
	Driver          string
	Notes           string
	Pitstops        []Pitstop
}

// Validate enforces the fields required to open a trip.
func (d TripDraft) Validate() error {
	for _, f := range []struct {
		name  string
		value string
	}{
		{"currentLocation", d.CurrentLocation},
		{"destination", d.Destination},
		{"driver", d.Driver},
	} {
		if strings.TrimSpace(f.value) == "" {
			return &ValidationError{Field: f.name, Err: ErrMissingField}
		}
	}
	if d.KmOut <= 0 {
		return &ValidationError{Field: "kmOut", Err: ErrMissingField}
	}
	return nil
}

// TripPatch is a partial trip update. Required-field rules do not apply to updates.
type TripPatch struct {
	CurrentLocation *string    `json:"currentLocation,omitempty"`
	Destination     *string    `json:"destination,omitempty"`
	KmOut           *int       `json:"kmOut,omitempty"`
	KmIn            *int       `json:"kmIn,omitempty"`
	Driver          *string    `json:"driver,omitempty"`
	Notes           *string    `json:"notes,omitempty"`
	EndTime         *time.Time `json:"endTime,omitempty"`
	Pitstops        []Pitstop  `json:"pitstops,omitempty"`
}

// Apply returns a copy of r with the patch applied.
func (p TripPatch) Apply(r InUseRecord) InUseRecord {
	out := r.Clone()
	if p.CurrentLocation != nil {
		out.CurrentLocation = *p.CurrentLocation
	}
	if p.Destination != nil {
		out.Destination = *p.Destination
	}
	if p.KmOut != nil {
		out.KmOut = *p.KmOut
	}
	if p.KmIn != nil {
		km := *p.KmIn
		out.KmIn = &km
	}
	if p.Driver != nil {
		out.Driver = *p.Driver
	}
	if p.Notes != nil {
		out.Notes = *p.Notes
	}
	if p.EndTime != nil {
		t := *p.EndTime
		out.EndTime = &t
	}
	if p.Pitstops != nil {
		out.Pitstops = append([]Pitstop(nil), p.Pitstops...)
	}
	return out
}
