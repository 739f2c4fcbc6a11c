package models

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVehicleDraft_Validate(t *testing.T) {
	full := VehicleDraft{VIN: "V1", Make: "Toyota", Model: "Corolla", Year: "2022", Mileage: "0"}

	tests := []struct {
		name  string
		draft func() VehicleDraft
		field string
	}{
		{"missing vin", func() VehicleDraft { d := full; d.VIN = ""; return d }, "vin"},
		{"missing make", func() VehicleDraft { d := full; d.Make = " "; return d }, "make"},
		{"missing model", func() VehicleDraft { d := full; d.Model = ""; return d }, "model"},
		{"missing year", func() VehicleDraft { d := full; d.Year = ""; return d }, "year"},
		{"missing mileage", func() VehicleDraft { d := full; d.Mileage = ""; return d }, "mileage"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.draft().Validate()
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			assert.ErrorIs(t, err, ErrMissingField)
		})
	}

	assert.NoError(t, full.Validate())
}

func TestVehicleDraft_Vehicle(t *testing.T) {
	v, err := VehicleDraft{VIN: " V1 ", Make: "Toyota", Model: "Corolla", Year: "2022", Mileage: " 0"}.Vehicle()
	require.NoError(t, err)
	assert.Equal(t, "V1", v.VIN)
	assert.Equal(t, 2022, v.Year)
	assert.Equal(t, 0, v.Mileage)
	assert.Equal(t, StatusAvailable, v.Status)

	_, err = VehicleDraft{VIN: "V1", Make: "a", Model: "b", Year: "twenty", Mileage: "0"}.Vehicle()
	assert.ErrorIs(t, err, ErrInvalidNumber)

	_, err = VehicleDraft{VIN: "V1", Make: "a", Model: "b", Year: "2020", Mileage: "-5"}.Vehicle()
	assert.ErrorIs(t, err, ErrNegativeMileage)

	_, err = VehicleDraft{VIN: "V1", Make: "a", Model: "b", Year: "2020", Mileage: "5", Status: "Parked"}.Vehicle()
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestParseStatus(t *testing.T) {
	for _, s := range KnownStatuses() {
		got, err := ParseStatus(string(s))
		assert.NoError(t, err)
		assert.Equal(t, s, got)
	}
	_, err := ParseStatus("in use")
	assert.True(t, errors.Is(err, ErrInvalidStatus))
}

func TestVehicle_JSONShape(t *testing.T) {
	disc := NewDate(2025, time.March, 1)
	v := Vehicle{VIN: "V1", Make: "Toyota", Model: "Corolla", Year: 2022, Status: StatusInUse, DiscExpiryDate: &disc, AssignedDriver: "bob"}

	data, err := json.Marshal(v)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "V1", raw["vin"])
	assert.Equal(t, "In Use", raw["status"])
	assert.Equal(t, "2025-03-01", raw["discExpiryDate"])
	assert.Equal(t, "bob", raw["assignedDriver"])
	assert.NotContains(t, raw, "insuranceExpiryDate")
}

func TestDate_UnmarshalTimestamp(t *testing.T) {
	var v Vehicle
	require.NoError(t, json.Unmarshal([]byte(`{"vin":"V1","insuranceExpiryDate":"2026-01-31T00:00:00.000Z","discExpiryDate":null}`), &v))
	require.NotNil(t, v.InsuranceExpiryDate)
	assert.Equal(t, "2026-01-31", v.InsuranceExpiryDate.String())
	assert.Nil(t, v.DiscExpiryDate)
}

func TestVehicle_UnmarshalEmptyDates(t *testing.T) {
	var v Vehicle
	require.NoError(t, json.Unmarshal([]byte(`{"vin":"V1","discExpiryDate":"","insuranceExpiryDate":""}`), &v))
	assert.Nil(t, v.DiscExpiryDate)
	assert.Nil(t, v.InsuranceExpiryDate)
	assert.Equal(t, "V1", v.VIN)

	var vs []Vehicle
	require.NoError(t, json.Unmarshal([]byte(`[{"vin":"V1","discExpiryDate":"2025-06-01"},{"vin":"V2","discExpiryDate":""}]`), &vs))
	require.Len(t, vs, 2)
	require.NotNil(t, vs[0].DiscExpiryDate)
	assert.Equal(t, "2025-06-01", vs[0].DiscExpiryDate.String())
	assert.Nil(t, vs[1].DiscExpiryDate)

	var bad Vehicle
	assert.Error(t, json.Unmarshal([]byte(`{"vin":"V1","discExpiryDate":"June"}`), &bad))
}

func TestVehicle_CloneIsDeep(t *testing.T) {
	d := NewDate(2025, time.May, 5)
	v := Vehicle{VIN: "V1", DiscExpiryDate: &d}
	c := v.Clone()
	c.DiscExpiryDate.Time = c.DiscExpiryDate.AddDate(1, 0, 0)
	assert.Equal(t, "2025-05-05", v.DiscExpiryDate.String())
}
