package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// VehicleStatus is the operational state of a fleet vehicle.
type VehicleStatus string

const (
	StatusAvailable     VehicleStatus = "Available"
	StatusInUse         VehicleStatus = "In Use"
	StatusInMaintenance VehicleStatus = "In Maintenance"
)

var (
	ErrMissingField    = errors.New("required field is missing")
	ErrInvalidNumber   = errors.New("value is not a number")
	ErrInvalidStatus   = errors.New("unknown vehicle status")
	ErrNegativeMileage = errors.New("mileage cannot be negative")
)

// ValidationError reports which field failed client-side validation.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// KnownStatuses returns the fixed, ordered set of recognised statuses.
func KnownStatuses() []VehicleStatus {
	return []VehicleStatus{StatusAvailable, StatusInUse, StatusInMaintenance}
}

// IsValidStatus checks if a status is one of the known statuses
func IsValidStatus(s VehicleStatus) bool {
	switch s {
	case StatusAvailable, StatusInUse, StatusInMaintenance:
		return true
	default:
		return false
	}
}

// ParseStatus validates a raw status string.
func ParseStatus(raw string) (VehicleStatus, error) {
	s := VehicleStatus(strings.TrimSpace(raw))
	if !IsValidStatus(s) {
		return "", &ValidationError{Field: "status", Err: fmt.Errorf("%w: %q", ErrInvalidStatus, raw)}
	}
	return s, nil
}

// Vehicle represents a fleet vehicle. VIN is the primary key and never changes.
type Vehicle struct {
	VIN                 string        `json:"vin"`
	Make                string        `json:"make"`
	Model               string        `json:"model"`
	Year                int           `json:"year"`
	Mileage             int           `json:"mileage"`
	Status              VehicleStatus `json:"status"`
	Description         string        `json:"description,omitempty"`
	DiscExpiryDate      *Date         `json:"discExpiryDate,omitempty"`
	InsuranceExpiryDate *Date         `json:"insuranceExpiryDate,omitempty"`
	// Populated only while Status is StatusInUse.
	AssignedDriver  string `json:"assignedDriver,omitempty"`
	CurrentLocation string `json:"currentLocation,omitempty"`
	Destination     string `json:"destination,omitempty"`
}

// UnmarshalJSON decodes a vehicle. An empty or null expiry date leaves the field nil.
func (v *Vehicle) UnmarshalJSON(data []byte) error {
	type plain Vehicle
	aux := struct {
		*plain
		DiscExpiryDate      json.RawMessage `json:"discExpiryDate"`
		InsuranceExpiryDate json.RawMessage `json:"insuranceExpiryDate"`
	}{plain: (*plain)(v)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if err := decodeOptionalDate(aux.DiscExpiryDate, &v.DiscExpiryDate); err != nil {
		return fmt.Errorf("discExpiryDate: %w", err)
	}
	if err := decodeOptionalDate(aux.InsuranceExpiryDate, &v.InsuranceExpiryDate); err != nil {
		return fmt.Errorf("insuranceExpiryDate: %w", err)
	}
	return nil
}

// decodeOptionalDate leaves dst untouched when the key was absent.
func decodeOptionalDate(raw json.RawMessage, dst **Date) error {
	if raw == nil {
		return nil
	}
	var d *Date
	if err := json.Unmarshal(raw, &d); err != nil {
		return err
	}
	if d != nil && d.IsZero() {
		d = nil
	}
	*dst = d
	return nil
}

// Clone returns a deep copy of the vehicle.
func (v Vehicle) Clone() Vehicle {
	out := v
	if v.DiscExpiryDate != nil {
		d := *v.DiscExpiryDate
		out.DiscExpiryDate = &d
	}
	if v.InsuranceExpiryDate != nil {
		d := *v.InsuranceExpiryDate
		out.InsuranceExpiryDate = &d
	}
	return out
}

// VehicleDraft is unvalidated vehicle input as typed into a form.
type VehicleDraft struct {
	VIN                 string
	Make                string
	Model               string
	Year                string
	Mileage             string
	Status              string
	Description         string
	DiscExpiryDate      *Date
	InsuranceExpiryDate *Date
}

// Validate checks that every required field is present.
func (d VehicleDraft) Validate() error {
	required := []struct {
		name  string
		value string
	}{
		{"vin", d.VIN},
		{"make", d.Make},
		{"model", d.Model},
		{"year", d.Year},
		{"mileage", d.Mileage},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			return &ValidationError{Field: f.name, Err: ErrMissingField}
		}
	}
	return nil
}

// Vehicle validates the draft and coerces it into a Vehicle.
func (d VehicleDraft) Vehicle() (Vehicle, error) {
	if err := d.Validate(); err != nil {
		return Vehicle{}, err
	}
	year, err := strconv.Atoi(strings.TrimSpace(d.Year))
	if err != nil {
		return Vehicle{}, &ValidationError{Field: "year", Err: ErrInvalidNumber}
	}
	mileage, err := strconv.Atoi(strings.TrimSpace(d.Mileage))
	if err != nil {
		return Vehicle{}, &ValidationError{Field: "mileage", Err: ErrInvalidNumber}
	}
	if mileage < 0 {
		return Vehicle{}, &ValidationError{Field: "mileage", Err: ErrNegativeMileage}
	}
	status := StatusAvailable
	if strings.TrimSpace(d.Status) != "" {
		if status, err = ParseStatus(d.Status); err != nil {
			return Vehicle{}, err
		}
	}
	return Vehicle{
		VIN:                 strings.TrimSpace(d.VIN),
		Make:                strings.TrimSpace(d.Make),
		Model:               strings.TrimSpace(d.Model),
		Year:                year,
		Mileage:             mileage,
		Status:              status,
		Description:         d.Description,
		DiscExpiryDate:      d.DiscExpiryDate,
		InsuranceExpiryDate: d.InsuranceExpiryDate,
	}, nil
}

// Date is a calendar date without a time component.
type Date struct {
	time.Time
}

const dateLayout = "2006-01-02"

// NewDate builds a Date from its parts.
func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return Date{t}, nil
}

func (d Date) String() string {
	return d.Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	// Backends sometimes return full timestamps for date columns.
	if len(s) > len(dateLayout) {
		s = s[:len(dateLayout)]
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
